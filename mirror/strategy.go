package mirror

/*
 * One DataStrategy implementation per model.DataStrategy value. Build only
 * records SQL on the table; Execute applies what Build recorded.
 */

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/dstreev/hms-mirror-sub000/utils"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

type DataStrategy interface {
	Build(ctx context.Context, s *Session, tbl *model.TableMirror) error
	Execute(ctx context.Context, s *Session, tbl *model.TableMirror) error
}

var strategies = map[model.DataStrategy]DataStrategy{
	model.SCHEMA_ONLY:            &schemaOnlyStrategy{},
	model.SQL:                    &sqlStrategy{},
	model.EXPORT_IMPORT:          &exportImportStrategy{},
	model.HYBRID:                 &hybridStrategy{},
	model.STORAGE_MIGRATION:      &storageMigrationStrategy{},
	model.LINKED:                 &linkedStrategy{},
	model.COMMON:                 &linkedStrategy{common: true},
	model.DUMP:                   &dumpStrategy{},
	model.CONVERT_LINKED:         &convertLinkedStrategy{},
	model.ACID_DOWNGRADE_INPLACE: &acidDowngradeInPlaceStrategy{},
}

func StrategyFor(ds model.DataStrategy) (DataStrategy, error) {
	strategy, ok := strategies[ds]
	if !ok {
		return nil, errors.Errorf("no implementation for data strategy \"%v\"", ds)
	}
	return strategy, nil
}

// sqlApplier is the Execute shared by every strategy that applies its SQL.
type sqlApplier struct{}

func (sqlApplier) Execute(ctx context.Context, s *Session, tbl *model.TableMirror) error {
	for _, env := range []model.Environment{model.SOURCE, model.TARGET} {
		et, ok := tbl.Lookup(env)
		if !ok {
			continue
		}
		if err := applyPairs(ctx, s, env, tbl.FQN(), et.SQL); err != nil {
			return err
		}
	}
	for _, env := range []model.Environment{model.SOURCE, model.TARGET} {
		et, ok := tbl.Lookup(env)
		if !ok {
			continue
		}
		if err := applyPairs(ctx, s, env, tbl.FQN(), et.CleanupSQL); err != nil {
			tbl.AddIssue(env, fmt.Sprintf("Cleanup failed, drop the leftover objects manually: %v", err))
		}
	}
	return nil
}

func applyPairs(ctx context.Context, s *Session, env model.Environment, fqn string, pairs []model.Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	if s.DryRun() {
		for _, pair := range pairs {
			gplog.Info("[%v] %v would run: %v", env, fqn, pair.Action)
		}
		return nil
	}
	conn, err := s.Conns.Acquire(ctx, env)
	if err != nil {
		return err
	}
	defer conn.Close()
	for _, pair := range pairs {
		gplog.Debug("[%v] [Conn %v] %v: %v", env, conn.Which, pair.Description, pair.Action)
		if err := conn.Exec(ctx, pair.Action); err != nil {
			return errors.Wrapf(err, "%v %v", env, pair.Description)
		}
	}
	return nil
}

func qualified(database, table string) string {
	return utils.MakeFQN(database, table)
}

func useDatabase(database string) string {
	return "USE " + utils.QuoteIdentifier(database)
}

// targetPlan is the TARGET definition a strategy is about to create, next to what TARGET already has.
type targetPlan struct {
	Definition []string
	Existing   []string
	Exists     bool
}

type targetOptions struct {
	linked bool
}

/*
 * buildTargetDefinition derives the TARGET definition from SOURCE: renamed
 * into the target database, converted to external when required, and with
 * its location translated. The result is stored on the TARGET environment.
 */
func buildTargetDefinition(s *Session, tbl *model.TableMirror, opts targetOptions) (targetPlan, error) {
	source := tbl.Env(model.SOURCE)
	target := tbl.Env(model.TARGET)
	plan := targetPlan{Existing: append([]string{}, target.Definition...), Exists: target.Exists}

	def := model.ChangeTableName(source.Definition, tbl.TargetDatabase, tbl.Name)
	acid := source.IsACID()
	switch {
	case acid && s.Config.MigrateACID.Downgrade:
		def = model.MakeExternal(def)
		def = model.UpsertTblProperty(def, model.TBL_PROP_EXTERNAL_PURGE, "true")
	case !acid && model.IsManaged(def) && s.ConversionsPossible():
		def = model.MakeExternal(def)
		def = model.UpsertTblProperty(def, model.TBL_PROP_EXTERNAL_PURGE, "true")
		def = model.UpsertTblProperty(def, model.TBL_PROP_LEGACY_MANAGED, "true")
	}
	if opts.linked {
		def = model.MakeExternal(def)
	}
	if opts.linked || (s.Config.ReadOnly && model.IsExternal(def)) {
		def = model.UpsertTblProperty(def, model.TBL_PROP_EXTERNAL_PURGE, "false")
	}
	for _, stat := range []string{model.TBL_PROP_NUM_FILES, model.TBL_PROP_TOTAL_SIZE, model.TBL_PROP_NUM_ROWS} {
		def = model.RemoveTblProperty(def, stat)
	}
	def = model.UpsertTblProperty(def, model.TBL_PROP_MIRROR_METADATA, s.Timestamp)
	target.Definition = def

	if location := source.Location(); location != "" {
		translated, err := s.Translator.TranslateTableLocation(tbl, location, 0, "")
		if err != nil {
			return plan, err
		}
		def = model.UpdateLocation(def, translated.Target)
		target.Definition = def
	}
	plan.Definition = def
	return plan, nil
}

/*
 * reconcileExisting decides what happens when TARGET already has the table.
 * It returns false when the table must not be created.
 */
func reconcileExisting(s *Session, tbl *model.TableMirror, plan targetPlan) (bool, error) {
	if !plan.Exists {
		return true, nil
	}
	target := tbl.Env(model.TARGET)
	fqn := qualified(tbl.TargetDatabase, tbl.Name)
	if model.SchemaMatches(plan.Existing, plan.Definition) {
		tbl.AddIssue(model.TARGET, "Schema exists on TARGET and matches, no action necessary")
		return false, nil
	}
	if !s.Config.Sync {
		return false, errors.Errorf("Schema exists on TARGET and differs from SOURCE, enable sync to replace it")
	}
	if !model.IsExternal(plan.Existing) || model.GetTblProperty(plan.Existing, model.TBL_PROP_EXTERNAL_PURGE) == "true" {
		tbl.AddIssue(model.TARGET, "Existing TARGET table owns its data, dropping it removes that data")
	}
	target.AddSQL("Drop the out of sync TARGET table", "DROP TABLE IF EXISTS "+fqn)
	return true, nil
}

func addCreateSQL(tbl *model.TableMirror, env model.Environment, database string, def []string) {
	et := tbl.Env(env)
	et.AddSQL("Use database", useDatabase(database))
	et.AddSQL("Create table", model.ToCreateStatement(def))
}

/*
 * addPartitionSQL translates the SOURCE partitions and registers them on
 * TARGET, either one by one or with a single MSCK.
 */
func addPartitionSQL(s *Session, tbl *model.TableMirror) error {
	source := tbl.Env(model.SOURCE)
	if !model.IsPartitioned(source.Definition) || len(source.Partitions) == 0 {
		return nil
	}
	missing, err := s.Translator.TranslatePartitionLocations(tbl, 0)
	if err != nil {
		return err
	}
	target := tbl.Env(model.TARGET)
	fqn := qualified(tbl.TargetDatabase, tbl.Name)
	if s.Config.Cluster(model.TARGET).PartitionDiscovery.InitMSCK {
		target.AddSQL("Discover partitions", "MSCK REPAIR TABLE "+fqn)
	} else {
		specs := lo.Keys(target.Partitions)
		sort.Strings(specs)
		for _, spec := range specs {
			target.AddSQL("Add partition "+spec, fmt.Sprintf("ALTER TABLE %v ADD IF NOT EXISTS PARTITION (%v) LOCATION %v",
				fqn, model.PartitionClause(spec), model.QuoteLiteral(target.Partitions[spec])))
		}
	}
	if missing > 0 {
		return warn(model.SOURCE, "%d partition(s) have no location and were not added", missing)
	}
	return nil
}

// sessionSettings are prepended to statements that move data with SQL.
func sessionSettings(s *Session) []model.Pair {
	settings := []model.Pair{{Description: "Allow dynamic partitions", Action: "SET hive.exec.dynamic.partition.mode=nonstrict"}}
	if s.Config.Optimization.SortDynamicPartitionInserts {
		settings = append(settings, model.Pair{Description: "Sort dynamic partition inserts", Action: "SET hive.optimize.sort.dynamic.partition=true"})
	} else {
		settings = append(settings, model.Pair{Description: "Do not sort dynamic partition inserts", Action: "SET hive.optimize.sort.dynamic.partition=false"})
	}
	if s.Config.Optimization.CompressTextOutput {
		settings = append(settings, model.Pair{Description: "Compress text output", Action: "SET hive.exec.compress.output=true"})
	}
	return settings
}

func addSessionSettings(s *Session, et *model.EnvironmentTable) {
	for _, pair := range sessionSettings(s) {
		et.AddSQL(pair.Description, pair.Action)
	}
}

func partitionColumns(tbl *model.TableMirror) string {
	for spec := range tbl.Env(model.SOURCE).Partitions {
		parts := strings.Split(strings.Trim(spec, "/"), "/")
		columns := make([]string, 0, len(parts))
		for _, part := range parts {
			columns = append(columns, utils.QuoteIdentifier(strings.SplitN(part, "=", 2)[0]))
		}
		return strings.Join(columns, ", ")
	}
	return ""
}

// insertOverwrite copies every row of from into into, with dynamic partitions when the table is partitioned.
func insertOverwrite(tbl *model.TableMirror, into, from string) string {
	if columns := partitionColumns(tbl); columns != "" {
		return fmt.Sprintf("INSERT OVERWRITE TABLE %v PARTITION (%v) SELECT * FROM %v", into, columns, from)
	}
	return fmt.Sprintf("INSERT OVERWRITE TABLE %v SELECT * FROM %v", into, from)
}

func partitionCount(tbl *model.TableMirror) int {
	return len(tbl.Env(model.SOURCE).Partitions)
}
