package mirror

import (
	"github.com/dstreev/hms-mirror-sub000/options"
	"github.com/dstreev/hms-mirror-sub000/utils"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

/*
 * This file contains functions related to validating user input.
 */

func validateFlagCombinations(flags *pflag.FlagSet) {
	options.CheckExclusiveFlags(flags, options.DEBUG, options.QUIET, options.VERBOSE)
	options.CheckExclusiveFlags(flags, options.DB_PREFIX, options.DB_RENAME)
	options.CheckExclusiveFlags(flags, options.COMMON_STORAGE, options.INTERMEDIATE_STORAGE)
	options.CheckExclusiveFlags(flags, options.MIGRATE_ACID_ONLY, options.TABLE_EXCLUDE_FILTER)
	options.CheckExclusiveFlags(flags, options.GLM, options.AUTO_GLM)
	options.CheckExclusiveFlags(flags, options.GLM_MAPPING_FILE, options.AUTO_GLM)

	validateDatabases(flags)
	validateDbRename(flags)
}

func validateDatabases(flags *pflag.FlagSet) {
	if utils.ArrayIsDuplicated(utils.MustGetFlagStringSlice(options.DATABASES)) {
		gplog.Fatal(errors.Errorf("Option \"databases\" has duplicated items"), "")
	}
	if flags.Changed(options.DATABASE_FILE) {
		if _, err := utils.ReadListFile(utils.MustGetFlagString(options.DATABASE_FILE)); err != nil {
			gplog.Fatal(errors.Errorf("failed to read file \"%v\": %v ", utils.MustGetFlagString(options.DATABASE_FILE), err), "")
		}
	}
}

func validateDbRename(flags *pflag.FlagSet) {
	if flags.Changed(options.DB_RENAME) && len(utils.MustGetFlagStringSlice(options.DATABASES)) > 1 {
		gplog.Fatal(errors.Errorf("Option \"--db-rename\" only supports a single database in \"--databases\""), "")
	}
}

// validateConfig runs once the config file and the flag overrides are merged.
func validateConfig(config *options.Config) {
	if err := config.Validate(); err != nil {
		gplog.Fatal(err, "")
	}
	for _, path := range []string{config.OutputDirectory, config.Translator.GlmFile} {
		if err := utils.ValidateFullPath(path); err != nil {
			gplog.Fatal(err, "")
		}
	}
}
