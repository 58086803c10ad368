package mirror

import (
	"context"
	"fmt"
	"regexp"

	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/pkg/errors"
	"github.com/scylladb/go-set/strset"
	"golang.org/x/sync/errgroup"
)

const STAT_FILE_FORMAT = "fileFormat"

// Strategies that migrate views along with tables.
var viewStrategies = map[model.DataStrategy]bool{
	model.SCHEMA_ONLY: true,
	model.DUMP:        true,
	model.LINKED:      true,
	model.COMMON:      true,
}

type tableFilter struct {
	include *regexp.Regexp
	exclude *regexp.Regexp
}

func newTableFilter(include, exclude string) (tableFilter, error) {
	var filter tableFilter
	var err error
	if include != "" {
		if filter.include, err = regexp.Compile(include); err != nil {
			return filter, errors.Wrapf(err, "invalid table filter \"%v\"", include)
		}
	}
	if exclude != "" {
		if filter.exclude, err = regexp.Compile(exclude); err != nil {
			return filter, errors.Wrapf(err, "invalid table exclude filter \"%v\"", exclude)
		}
	}
	return filter, nil
}

func (f tableFilter) matches(table string) bool {
	if f.include != nil && !f.include.MatchString(table) {
		return false
	}
	return f.exclude == nil || !f.exclude.MatchString(table)
}

/*
 * DiscoverTables lists the SOURCE tables of db and fetches their metadata on
 * a pool of metadataJobs workers. A table whose metadata cannot be read is
 * added in ERROR so it shows up in the report.
 */
func DiscoverTables(ctx context.Context, s *Session, db *model.DBMirror) error {
	filter, err := newTableFilter(s.Config.Filter.TblRegEx, s.Config.Filter.TblExcludeRegEx)
	if err != nil {
		return err
	}
	names, err := s.Catalog.ListTables(ctx, model.SOURCE, db.Name)
	if err != nil {
		return errors.Wrapf(err, "list tables of database %v", db.Name)
	}
	onTarget := strset.New()
	if !s.Config.DataStrategy.InPlace() && s.Config.HasCluster(model.TARGET) {
		targetNames, err := s.Catalog.ListTables(ctx, model.TARGET, db.TargetName)
		if err != nil {
			gplog.Verbose("Could not list tables of %v on TARGET, assuming none exist: %v", db.TargetName, err)
		} else {
			onTarget.Add(targetNames...)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(s.Config.MetadataJobs)
	for _, name := range names {
		if !filter.matches(name) {
			gplog.Debug("Table %v.%v does not match the table filters", db.Name, name)
			continue
		}
		name := name
		g.Go(func() error {
			discoverTable(ctx, s, db, name, onTarget.Has(name))
			return nil
		})
	}
	_ = g.Wait()
	gplog.Info("Discovered %d of %d tables in database %v", len(db.TableNames()), len(names), db.Name)
	return nil
}

func discoverTable(ctx context.Context, s *Session, db *model.DBMirror, name string, onTarget bool) {
	tbl := model.NewTableMirror(db.Name, db.TargetName, name, s.Config.DataStrategy)
	source := tbl.Env(model.SOURCE)
	def, err := s.Catalog.FetchDefinition(ctx, model.SOURCE, db.Name, name)
	if err != nil {
		failDiscovery(db, tbl, model.SOURCE, err)
		return
	}
	source.Exists = true
	source.Definition = def

	if reason := skipReason(s, def); reason != "" {
		gplog.Verbose("Skipping table %v: %v", tbl.FQN(), reason)
		db.AddIssue(model.SOURCE, fmt.Sprintf("%v: %v", name, reason))
		return
	}

	if model.IsPartitioned(def) {
		partitions, err := s.Catalog.FetchPartitions(ctx, model.SOURCE, db.Name, name)
		if err != nil {
			failDiscovery(db, tbl, model.SOURCE, err)
			return
		}
		source.Partitions = partitions
		if limit := s.Config.Filter.TblPartitionLimit; limit > 0 && len(partitions) > limit {
			db.AddIssue(model.SOURCE, fmt.Sprintf("%v: %d partitions exceed the partition limit of %d", name, len(partitions), limit))
			return
		}
	}
	if !s.Config.Optimization.SkipStatsCollection {
		collectStatistics(source)
	}

	if onTarget {
		target := tbl.Env(model.TARGET)
		targetDef, err := s.Catalog.FetchDefinition(ctx, model.TARGET, db.TargetName, name)
		if err != nil {
			failDiscovery(db, tbl, model.TARGET, err)
			return
		}
		target.Exists = true
		target.Definition = targetDef
	}
	db.AddTable(tbl)
}

func skipReason(s *Session, def []string) string {
	if model.IsView(def) {
		if !viewStrategies[s.Config.DataStrategy] {
			return fmt.Sprintf("views are not migrated by %v", s.Config.DataStrategy)
		}
		return ""
	}
	acid := model.IsACID(def)
	switch {
	case acid && !s.Config.MigrateACID.On:
		return "transactional table, ACID migration is off"
	case !acid && s.Config.MigrateACID.Only:
		return "not a transactional table, only ACID tables are migrated"
	}
	return ""
}

func collectStatistics(et *model.EnvironmentTable) {
	for _, key := range []string{model.TBL_PROP_NUM_FILES, model.TBL_PROP_TOTAL_SIZE, model.TBL_PROP_NUM_ROWS} {
		if value := model.GetTblProperty(et.Definition, key); value != "" {
			et.Statistics[key] = value
		}
	}
	if format := model.FileFormat(et.Definition); format != "" {
		et.Statistics[STAT_FILE_FORMAT] = format
	}
}

func failDiscovery(db *model.DBMirror, tbl *model.TableMirror, env model.Environment, err error) {
	gplog.Error("Failed to read metadata of table %v on %v: %v", tbl.FQN(), env, err)
	tbl.AddError(env, err.Error())
	_ = tbl.SetPhaseState(model.CALCULATING_SQL)
	_ = tbl.SetPhaseState(model.ERROR)
	db.AddTable(tbl)
}
