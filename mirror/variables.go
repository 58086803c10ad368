package mirror

import (
	"os"

	"github.com/dstreev/hms-mirror-sub000/internal/dbconn"
	"github.com/dstreev/hms-mirror-sub000/options"
)

/*
 * This file contains global variables for the command line run.
 */

const (
	SucceededFileName = "hms_mirror_succeeded"
	FailedFileName    = "hms_mirror_failed"
)

/*
 * Non-flag variables
 */
var (
	config          *options.Config
	pools           *dbconn.Pools
	session         *Session
	timestamp       string
	applicationName string
	fSucceeded      *os.File
	fFailed         *os.File
)
