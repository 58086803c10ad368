package mirror

import (
	"context"
	"fmt"
	"sort"

	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

/*
 * STORAGE_MIGRATION moves a table to new storage on the SOURCE cluster. With
 * DISTCP movement only the metadata is pointed at the new location and the
 * copy happens outside of Hive.
 */
type storageMigrationStrategy struct {
	sqlApplier
}

func (storageMigrationStrategy) Build(ctx context.Context, s *Session, tbl *model.TableMirror) error {
	source := tbl.Env(model.SOURCE)
	if model.IsView(source.Definition) {
		tbl.AddIssue(model.SOURCE, "Views have no storage to migrate")
		return nil
	}
	location := source.Location()
	if location == "" {
		return errors.Errorf("SOURCE definition has no location")
	}
	translated, err := s.Translator.TranslateTableLocation(tbl, location, 0, "")
	if err != nil {
		return err
	}
	if translated.Target == location {
		tbl.AddIssue(model.SOURCE, "Table is already at its migrated location")
		return nil
	}

	switch s.Config.Transfer.StorageMigration.DataMovementStrategy {
	case model.MovementDistcp:
		return buildStorageMigrationDistcp(s, tbl, translated.Target)
	case model.MovementExportImport:
		return buildStorageMigrationExportImport(s, tbl, translated.Target)
	}
	return buildStorageMigrationSQL(s, tbl, translated.Target)
}

func buildStorageMigrationDistcp(s *Session, tbl *model.TableMirror, location string) error {
	source := tbl.Env(model.SOURCE)
	fqn := qualified(tbl.Database, tbl.Name)
	source.AddSQL("Use database", useDatabase(tbl.Database))
	source.AddSQL("Point the table at the new location", fmt.Sprintf("ALTER TABLE %v SET LOCATION %v", fqn, model.QuoteLiteral(location)))

	missing := 0
	if model.IsPartitioned(source.Definition) && len(source.Partitions) > 0 {
		var err error
		if missing, err = s.Translator.TranslatePartitionLocations(tbl, 0); err != nil {
			return err
		}
		moved := tbl.Env(model.TARGET).Partitions
		specs := lo.Keys(moved)
		sort.Strings(specs)
		for _, spec := range specs {
			source.AddSQL("Point partition "+spec+" at the new location", fmt.Sprintf("ALTER TABLE %v PARTITION (%v) SET LOCATION %v",
				fqn, model.PartitionClause(spec), model.QuoteLiteral(moved[spec])))
		}
	}
	if source.IsACID() && !s.Config.MigrateACID.Downgrade {
		return warn(model.SOURCE, "distcp cannot move ACID data of a live transactional table, downgrade it or use SQL data movement")
	}
	if missing > 0 {
		return warn(model.SOURCE, "%d partition(s) have no location and were not moved", missing)
	}
	return nil
}

func buildStorageMigrationSQL(s *Session, tbl *model.TableMirror, location string) error {
	if err := checkPartitionLimits(s, tbl); err != nil {
		return err
	}
	source := tbl.Env(model.SOURCE)
	fqn := qualified(tbl.Database, tbl.Name)
	newName := tbl.Name + s.Config.Transfer.StorageMigrationPostfix
	newFQN := qualified(tbl.Database, newName)
	archiveFQN := qualified(tbl.Database, archiveName(s, tbl.Name))

	def := model.ChangeTableName(source.Definition, tbl.Database, newName)
	if source.IsACID() && s.Config.MigrateACID.Downgrade {
		def = model.MakeExternal(def)
		def = model.UpsertTblProperty(def, model.TBL_PROP_EXTERNAL_PURGE, "true")
	}
	for _, stat := range []string{model.TBL_PROP_NUM_FILES, model.TBL_PROP_TOTAL_SIZE, model.TBL_PROP_NUM_ROWS} {
		def = model.RemoveTblProperty(def, stat)
	}
	def = model.UpsertTblProperty(def, model.TBL_PROP_MIRROR_METADATA, s.Timestamp)
	def = model.UpdateLocation(def, location)

	addCreateSQL(tbl, model.SOURCE, tbl.Database, def)
	addSessionSettings(s, source)
	source.AddSQL("Copy data to the new location", insertOverwrite(tbl, newFQN, fqn))
	source.AddSQL("Archive the original table", fmt.Sprintf("ALTER TABLE %v RENAME TO %v", fqn, archiveFQN))
	source.AddSQL("Take over the original name", fmt.Sprintf("ALTER TABLE %v RENAME TO %v", newFQN, fqn))
	tbl.AddIssue(model.SOURCE, fmt.Sprintf("The original table is kept as %v, drop it once the migration is verified", archiveFQN))
	return nil
}

func buildStorageMigrationExportImport(s *Session, tbl *model.TableMirror, location string) error {
	source := tbl.Env(model.SOURCE)
	fqn := qualified(tbl.Database, tbl.Name)
	archiveFQN := qualified(tbl.Database, archiveName(s, tbl.Name))
	exportDir := exportDirectory(s, tbl)

	def := model.UpdateLocation(source.Definition, location)
	if source.IsACID() && s.Config.MigrateACID.Downgrade {
		def = model.MakeExternal(def)
	}
	source.AddSQL("Use database", useDatabase(tbl.Database))
	source.AddSQL("Export table", fmt.Sprintf("EXPORT TABLE %v TO '%v'", fqn, exportDir))
	source.AddSQL("Archive the original table", fmt.Sprintf("ALTER TABLE %v RENAME TO %v", fqn, archiveFQN))
	source.AddSQL("Import table at the new location", importStatement(def, fqn, exportDir))
	tbl.AddIssue(model.SOURCE, fmt.Sprintf("The original table is kept as %v, drop it once the migration is verified", archiveFQN))
	return nil
}
