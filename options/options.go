package options

import (
	"strings"

	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/dstreev/hms-mirror-sub000/utils"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const (
	APPLY_ON_WARNING          = "apply-on-warning"
	CONCURRENCY               = "concurrency"
	CONFIG                    = "config"
	CONSOLIDATION_LEVEL       = "consolidation-level"
	DATA_MOVEMENT             = "data-movement"
	DATA_STRATEGY             = "data-strategy"
	DATABASES                 = "databases"
	DATABASE_FILE             = "database-file"
	DB_PREFIX                 = "db-prefix"
	DB_RENAME                 = "db-rename"
	DEBUG                     = "debug"
	EXECUTE                   = "execute"
	GLM                       = "glm"
	GLM_MAPPING_FILE          = "glm-mapping-file"
	AUTO_GLM                  = "auto-glm"
	METADATA_JOBS             = "metadata-jobs"
	MIGRATE_ACID              = "migrate-acid"
	MIGRATE_ACID_ONLY         = "migrate-acid-only"
	DOWNGRADE_ACID            = "downgrade-acid"
	ACID_INPLACE              = "acid-inplace"
	OUTPUT_DIR                = "output-dir"
	QUIET                     = "quiet"
	READ_ONLY                 = "read-only"
	RESET_TO_DEFAULT_LOCATION = "reset-to-default-location"
	SYNC                      = "sync"
	TABLE_FILTER              = "table-filter"
	TABLE_EXCLUDE_FILTER      = "table-exclude-filter"
	TARGET_NAMESPACE          = "target-namespace"
	COMMON_STORAGE            = "common-storage"
	INTERMEDIATE_STORAGE      = "intermediate-storage"
	EXTERNAL_WAREHOUSE_DIR    = "external-warehouse-dir"
	MANAGED_WAREHOUSE_DIR     = "managed-warehouse-dir"
	STRICT                    = "strict"
	ANALYZE                   = "analyze"
	VERBOSE                   = "verbose"
)

func SetFlagDefaults(flagSet *pflag.FlagSet) {
	flagSet.Bool(ANALYZE, false, "Compute statistics on TARGET tables after they are processed")
	flagSet.Bool(APPLY_ON_WARNING, false, "Apply tables whose plan finished with warnings")
	flagSet.Int(CONCURRENCY, 4, "The maximum number of tables built and applied concurrently, valid values are between 1 and 1024")
	flagSet.String(CONFIG, "", "The hms-mirror YAML configuration file")
	flagSet.Int(CONSOLIDATION_LEVEL, 1, "Number of directory levels the distcp plan consolidates targets by")
	flagSet.String(DATA_MOVEMENT, "", "Data movement for storage migration: SQL, DISTCP or EXPORT_IMPORT")
	flagSet.String(DATA_STRATEGY, "", "The data strategy: "+strings.Join(strategyNames(), ", "))
	flagSet.StringSlice(DATABASES, []string{}, "The database(s) to be migrated, separated by commas")
	flagSet.String(DATABASE_FILE, "", "File listing the databases to be migrated, one per line")
	flagSet.String(DB_PREFIX, "", "Prefix added to every database name on TARGET")
	flagSet.String(DB_RENAME, "", "Name of the database on TARGET, only with a single database")
	flagSet.Bool(DEBUG, false, "Print debug log messages")
	flagSet.Bool(EXECUTE, false, "Apply the generated SQL, otherwise only write it out")
	flagSet.StringSlice(GLM, []string{}, "Global location map entries, in the format source_prefix=target_prefix")
	flagSet.String(GLM_MAPPING_FILE, "", "File of global location map entries, one source_prefix=target_prefix per line")
	flagSet.Bool(AUTO_GLM, false, "Derive global location map entries from the SOURCE metastore")
	flagSet.Bool("help", false, "Print help info and exit")
	flagSet.Int(METADATA_JOBS, 2, "The maximum number of concurrent metadata discovery tasks, valid values are between 1 and 1024")
	flagSet.Bool(MIGRATE_ACID, false, "Include transactional tables")
	flagSet.Bool(MIGRATE_ACID_ONLY, false, "Only migrate transactional tables")
	flagSet.Bool(DOWNGRADE_ACID, false, "Convert transactional tables to external tables on TARGET")
	flagSet.Bool(ACID_INPLACE, false, "Downgrade transactional tables in place on SOURCE")
	flagSet.String(OUTPUT_DIR, "", "Directory the run artifacts are written to")
	flagSet.Bool(QUIET, false, "Suppress non-warning, non-error log messages")
	flagSet.Bool(READ_ONLY, false, "Create TARGET tables that never purge their data")
	flagSet.Bool(RESET_TO_DEFAULT_LOCATION, false, "Place tables under the warehouse directories instead of keeping relative paths")
	flagSet.Bool(SYNC, false, "Drop and recreate TARGET tables whose schema differs")
	flagSet.String(TABLE_FILTER, "", "Only migrate tables matching this regular expression")
	flagSet.String(TABLE_EXCLUDE_FILTER, "", "Skip tables matching this regular expression")
	flagSet.String(TARGET_NAMESPACE, "", "The storage namespace on TARGET, e.g. hdfs://target")
	flagSet.String(COMMON_STORAGE, "", "Storage namespace shared by both clusters, wins over target-namespace")
	flagSet.String(INTERMEDIATE_STORAGE, "", "Staging storage data is pushed through")
	flagSet.String(EXTERNAL_WAREHOUSE_DIR, "", "The external warehouse directory used by every database without a plan")
	flagSet.String(MANAGED_WAREHOUSE_DIR, "", "The managed warehouse directory used by every database without a plan")
	flagSet.Bool(STRICT, false, "Fail locations outside the SOURCE namespace instead of dropping the foreign namespace")
	flagSet.Bool(VERBOSE, false, "Print verbose log messages")
	flagSet.Bool("version", false, "Print version number and exit")
}

func strategyNames() []string {
	names := make([]string, 0, len(model.AllDataStrategies))
	for _, ds := range model.AllDataStrategies {
		names = append(names, string(ds))
	}
	return names
}

func CheckExclusiveFlags(flags *pflag.FlagSet, flagNames ...string) {
	numSet := 0
	for _, name := range flagNames {
		if flags.Changed(name) {
			numSet++
		}
	}
	if numSet > 1 {
		gplog.Fatal(errors.Errorf("The following flags may not be specified together: %s", strings.Join(flagNames, ", ")), "")
	}
}

/*
 * ApplyFlagOverrides copies every flag the operator set on the command line
 * onto config. Flags left at their defaults never override the file.
 */
func ApplyFlagOverrides(config *Config, flags *pflag.FlagSet) error {
	var err error
	if flags.Changed(DATA_STRATEGY) {
		if config.DataStrategy, err = model.ParseDataStrategy(mustString(flags, DATA_STRATEGY)); err != nil {
			return err
		}
	}
	if flags.Changed(DATABASES) {
		config.Databases = mustStringSlice(flags, DATABASES)
	}
	if flags.Changed(DATABASE_FILE) {
		databases, err := utils.ReadListFile(mustString(flags, DATABASE_FILE))
		if err != nil {
			return errors.Wrapf(err, "failed to read file \"%v\"", mustString(flags, DATABASE_FILE))
		}
		config.Databases = append(config.Databases, databases...)
	}
	overrideString(flags, DB_PREFIX, &config.DbPrefix)
	overrideString(flags, DB_RENAME, &config.DbRename)
	overrideString(flags, OUTPUT_DIR, &config.OutputDirectory)
	overrideBool(flags, EXECUTE, &config.Execute)
	overrideBool(flags, APPLY_ON_WARNING, &config.ApplyOnWarning)
	overrideBool(flags, RESET_TO_DEFAULT_LOCATION, &config.ResetToDefaultLocation)
	overrideBool(flags, READ_ONLY, &config.ReadOnly)
	overrideBool(flags, SYNC, &config.Sync)
	overrideInt(flags, CONCURRENCY, &config.Concurrency)
	overrideInt(flags, METADATA_JOBS, &config.MetadataJobs)

	overrideString(flags, TABLE_FILTER, &config.Filter.TblRegEx)
	overrideString(flags, TABLE_EXCLUDE_FILTER, &config.Filter.TblExcludeRegEx)

	overrideBool(flags, MIGRATE_ACID, &config.MigrateACID.On)
	overrideBool(flags, MIGRATE_ACID_ONLY, &config.MigrateACID.Only)
	overrideBool(flags, DOWNGRADE_ACID, &config.MigrateACID.Downgrade)
	overrideBool(flags, ACID_INPLACE, &config.MigrateACID.InPlace)
	if config.MigrateACID.Only {
		config.MigrateACID.On = true
	}

	overrideString(flags, TARGET_NAMESPACE, &config.Transfer.TargetNamespace)
	overrideString(flags, COMMON_STORAGE, &config.Transfer.CommonStorage)
	overrideString(flags, INTERMEDIATE_STORAGE, &config.Transfer.IntermediateStorage)
	overrideString(flags, EXTERNAL_WAREHOUSE_DIR, &config.Transfer.Warehouse.ExternalDirectory)
	overrideString(flags, MANAGED_WAREHOUSE_DIR, &config.Transfer.Warehouse.ManagedDirectory)
	overrideBool(flags, STRICT, &config.Transfer.StorageMigration.Strict)
	overrideInt(flags, CONSOLIDATION_LEVEL, &config.Transfer.StorageMigration.ConsolidationLevel)
	if flags.Changed(DATA_MOVEMENT) {
		config.Transfer.StorageMigration.DataMovementStrategy = model.DataMovementStrategy(strings.ToUpper(mustString(flags, DATA_MOVEMENT)))
	}

	overrideBool(flags, AUTO_GLM, &config.Translator.AutoGlobalLocationMap)
	overrideBool(flags, ANALYZE, &config.Optimization.AnalyzeTarget)

	if flags.Changed(GLM_MAPPING_FILE) {
		entries, err := utils.ReadMapFile(mustString(flags, GLM_MAPPING_FILE), "=")
		if err != nil {
			return errors.Wrapf(err, "failed to read file \"%v\"", mustString(flags, GLM_MAPPING_FILE))
		}
		config.AddGlobalLocationMapEntries(entries)
	}
	if flags.Changed(GLM) {
		entries, err := parseMapEntries(mustStringSlice(flags, GLM), "=")
		if err != nil {
			return err
		}
		config.AddGlobalLocationMapEntries(entries)
	}
	return nil
}

func parseMapEntries(items []string, separator string) (map[string]string, error) {
	results := make(map[string]string)
	for _, item := range items {
		kv := strings.SplitN(item, separator, 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" || strings.TrimSpace(kv[1]) == "" {
			return nil, errors.Errorf("invalid entry \"%v\", expected the format source%vtarget", item, separator)
		}
		results[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return results, nil
}

func mustString(flags *pflag.FlagSet, name string) string {
	value, err := flags.GetString(name)
	gplog.FatalOnError(err)
	return value
}

func mustStringSlice(flags *pflag.FlagSet, name string) []string {
	value, err := flags.GetStringSlice(name)
	gplog.FatalOnError(err)
	return value
}

func overrideString(flags *pflag.FlagSet, name string, target *string) {
	if flags.Changed(name) {
		*target = mustString(flags, name)
	}
}

func overrideBool(flags *pflag.FlagSet, name string, target *bool) {
	if flags.Changed(name) {
		value, err := flags.GetBool(name)
		gplog.FatalOnError(err)
		*target = value
	}
}

func overrideInt(flags *pflag.FlagSet, name string, target *int) {
	if flags.Changed(name) {
		value, err := flags.GetInt(name)
		gplog.FatalOnError(err)
		*target = value
	}
}
