package mirror

import (
	"context"
	"fmt"

	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/dstreev/hms-mirror-sub000/translator"
)

type exportImportStrategy struct {
	sqlApplier
}

func exportDirectory(s *Session, tbl *model.TableMirror) string {
	return translator.JoinPath(s.Config.Transfer.ExportBaseDirPrefix+tbl.Database, tbl.Name)
}

func importStatement(def []string, table, from string) string {
	kind := "IMPORT TABLE"
	if model.IsExternal(def) {
		kind = "IMPORT EXTERNAL TABLE"
	}
	statement := fmt.Sprintf("%v %v FROM '%v'", kind, table, from)
	if location := model.GetLocation(def); location != "" {
		statement += fmt.Sprintf(" LOCATION '%v'", location)
	}
	return statement
}

func (exportImportStrategy) Build(ctx context.Context, s *Session, tbl *model.TableMirror) error {
	count := partitionCount(tbl)
	if limit := s.Config.Hybrid.ExportImportPartitionLimit; limit > 0 && count > limit {
		tbl.AddIssue(model.SOURCE, fmt.Sprintf("Table has %d partitions, EXPORT_IMPORT is slow above %d partitions", count, limit))
	}
	if limit := s.Config.MigrateACID.PartitionLimit; tbl.Env(model.SOURCE).IsACID() && limit > 0 && count > limit {
		tbl.AddIssue(model.SOURCE, fmt.Sprintf("Transactional table has %d partitions, more than the ACID partition limit of %d", count, limit))
	}
	plan, err := buildTargetDefinition(s, tbl, targetOptions{})
	if err != nil {
		return err
	}
	create, err := reconcileExisting(s, tbl, plan)
	if err != nil || !create {
		return err
	}
	source := tbl.Env(model.SOURCE)
	target := tbl.Env(model.TARGET)
	exportDir := exportDirectory(s, tbl)

	source.AddSQL("Use database", useDatabase(tbl.Database))
	source.AddSQL("Export table", fmt.Sprintf("EXPORT TABLE %v TO '%v'", qualified(tbl.Database, tbl.Name), exportDir))

	target.AddSQL("Use database", useDatabase(tbl.TargetDatabase))
	target.AddSQL("Import table", importStatement(plan.Definition, qualified(tbl.TargetDatabase, tbl.Name), s.Config.SourceNamespace()+exportDir))
	return nil
}

/*
 * HYBRID picks a strategy per table: in-place downgrade or SQL for
 * transactional tables, SQL for tables with many partitions, EXPORT_IMPORT
 * for everything else.
 */
type hybridStrategy struct {
	sqlApplier
}

func (hybridStrategy) Build(ctx context.Context, s *Session, tbl *model.TableMirror) error {
	source := tbl.Env(model.SOURCE)
	count := partitionCount(tbl)
	limit := s.Config.Hybrid.ExportImportPartitionLimit
	switch {
	case source.IsACID() && s.Config.MigrateACID.InPlace:
		tbl.AddIssue(model.SOURCE, "HYBRID selected ACID_DOWNGRADE_INPLACE for this transactional table")
		return acidDowngradeInPlaceStrategy{}.Build(ctx, s, tbl)
	case source.IsACID():
		tbl.AddIssue(model.SOURCE, "HYBRID selected SQL for this transactional table")
		return buildSQLMigration(s, tbl)
	case limit > 0 && count > limit:
		tbl.AddIssue(model.SOURCE, fmt.Sprintf("HYBRID selected SQL, %d partitions exceed the EXPORT_IMPORT limit of %d", count, limit))
		return buildSQLMigration(s, tbl)
	}
	tbl.AddIssue(model.SOURCE, "HYBRID selected EXPORT_IMPORT")
	return exportImportStrategy{}.Build(ctx, s, tbl)
}
