package utils

import (
	"sync"

	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/spf13/pflag"
)

/*
 * Non-flag variables
 */
var (
	Version       string
	WasTerminated bool
	/*
	 * Used for synchronizing DoCleanup.  In DoInit() we increment the group
	 * and then wait for at least one DoCleanup to finish, either in DoTeardown
	 * or the signal handler.
	 */
	CleanupGroup *sync.WaitGroup
)

/*
 * Command-line flags
 */
var CmdFlags *pflag.FlagSet

/*
 * Setter functions
 */

func SetCmdFlags(flagSet *pflag.FlagSet) {
	CmdFlags = flagSet
}

// Util functions to enable ease of access to global flag values

func MustGetFlagString(flagName string) string {
	value, err := CmdFlags.GetString(flagName)
	gplog.FatalOnError(err)
	return value
}

func MustGetFlagBool(flagName string) bool {
	value, err := CmdFlags.GetBool(flagName)
	gplog.FatalOnError(err)
	return value
}

func MustGetFlagStringSlice(flagName string) []string {
	value, err := CmdFlags.GetStringSlice(flagName)
	gplog.FatalOnError(err)
	return value
}
