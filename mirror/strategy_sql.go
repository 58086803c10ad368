package mirror

import (
	"context"
	"fmt"
	"sort"

	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/dstreev/hms-mirror-sub000/translator"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

/*
 * SQL moves data with INSERT OVERWRITE. TARGET reads the SOURCE files through
 * a shadow table; transactional tables are first copied into a transfer table
 * on SOURCE since TARGET cannot read live ACID files.
 */
type sqlStrategy struct {
	sqlApplier
}

func (sqlStrategy) Build(ctx context.Context, s *Session, tbl *model.TableMirror) error {
	if tbl.Env(model.SOURCE).IsACID() && s.Config.MigrateACID.InPlace {
		return acidDowngradeInPlaceStrategy{}.Build(ctx, s, tbl)
	}
	return buildSQLMigration(s, tbl)
}

func checkPartitionLimits(s *Session, tbl *model.TableMirror) error {
	count := partitionCount(tbl)
	if limit := s.Config.Hybrid.SqlPartitionLimit; limit > 0 && count > limit {
		return errors.Errorf("table has %d partitions, more than the SQL partition limit of %d", count, limit)
	}
	if limit := s.Config.MigrateACID.PartitionLimit; tbl.Env(model.SOURCE).IsACID() && limit > 0 && count > limit {
		return errors.Errorf("transactional table has %d partitions, more than the ACID partition limit of %d", count, limit)
	}
	return nil
}

func buildSQLMigration(s *Session, tbl *model.TableMirror) error {
	if err := checkPartitionLimits(s, tbl); err != nil {
		return err
	}
	source := tbl.Env(model.SOURCE)
	dataLocation := source.Location()
	if dataLocation == "" {
		return errors.Errorf("SOURCE definition has no location")
	}
	plan, err := buildTargetDefinition(s, tbl, targetOptions{})
	if err != nil {
		return err
	}
	create, err := reconcileExisting(s, tbl, plan)
	if err != nil || !create {
		return err
	}

	explicitPartitions := true
	if source.IsACID() {
		dataLocation = buildTransferTable(s, tbl)
		explicitPartitions = false
	}

	target := tbl.Env(model.TARGET)
	shadowName := s.Config.Transfer.ShadowPrefix + tbl.Name
	shadowFQN := qualified(tbl.TargetDatabase, shadowName)
	shadow := tbl.Env(model.SHADOW)
	shadow.Name = shadowName
	shadow.Definition = model.MakeExternal(model.ChangeTableName(source.Definition, tbl.TargetDatabase, shadowName))
	shadow.Definition = model.UpsertTblProperty(shadow.Definition, model.TBL_PROP_EXTERNAL_PURGE, "false")
	shadow.Definition = model.UpdateLocation(shadow.Definition, dataLocation)

	addCreateSQL(tbl, model.TARGET, tbl.TargetDatabase, plan.Definition)
	target.AddSQL("Create shadow table", model.ToCreateStatement(shadow.Definition))
	if model.IsPartitioned(source.Definition) {
		if explicitPartitions {
			specs := lo.Keys(source.Partitions)
			sort.Strings(specs)
			for _, spec := range specs {
				if source.Partitions[spec] == "" {
					continue
				}
				target.AddSQL("Add shadow partition "+spec, fmt.Sprintf("ALTER TABLE %v ADD IF NOT EXISTS PARTITION (%v) LOCATION %v",
					shadowFQN, model.PartitionClause(spec), model.QuoteLiteral(source.Partitions[spec])))
			}
		} else {
			target.AddSQL("Discover shadow partitions", "MSCK REPAIR TABLE "+shadowFQN)
		}
	}
	addSessionSettings(s, target)
	target.AddSQL("Move data from the shadow table", insertOverwrite(tbl, qualified(tbl.TargetDatabase, tbl.Name), shadowFQN))
	target.AddCleanupSQL("Drop shadow table", "DROP TABLE IF EXISTS "+shadowFQN)
	return nil
}

// buildTransferTable stages a transactional table as plain files on SOURCE and returns their location.
func buildTransferTable(s *Session, tbl *model.TableMirror) string {
	source := tbl.Env(model.SOURCE)
	transferName := s.Config.Transfer.TransferPrefix + tbl.Name
	transferFQN := qualified(tbl.Database, transferName)
	location := translator.JoinPath(s.Config.SourceNamespace(), s.Config.Transfer.RemoteWorkingDirectory, s.RunID, tbl.Database, tbl.Name)

	transfer := tbl.Env(model.TRANSFER)
	transfer.Name = transferName
	transfer.Definition = model.MakeExternal(model.ChangeTableName(source.Definition, tbl.Database, transferName))
	transfer.Definition = model.UpsertTblProperty(transfer.Definition, model.TBL_PROP_EXTERNAL_PURGE, "true")
	transfer.Definition = model.UpdateLocation(transfer.Definition, location)

	addCreateSQL(tbl, model.SOURCE, tbl.Database, transfer.Definition)
	addSessionSettings(s, source)
	source.AddSQL("Copy transactional data to the transfer table", insertOverwrite(tbl, transferFQN, qualified(tbl.Database, tbl.Name)))
	source.AddCleanupSQL("Drop transfer table", "DROP TABLE IF EXISTS "+transferFQN)
	return location
}

/*
 * ACID_DOWNGRADE_INPLACE rewrites a transactional SOURCE table as an external
 * one under the same name. The original is renamed away, copied back, and
 * dropped once the copy succeeded.
 */
type acidDowngradeInPlaceStrategy struct {
	sqlApplier
}

func archiveName(s *Session, table string) string {
	return fmt.Sprintf("%v_archive_%v", table, s.Timestamp)
}

func (acidDowngradeInPlaceStrategy) Build(ctx context.Context, s *Session, tbl *model.TableMirror) error {
	source := tbl.Env(model.SOURCE)
	if !source.IsACID() {
		tbl.AddIssue(model.SOURCE, "Table is not transactional, nothing to downgrade")
		return nil
	}
	count := partitionCount(tbl)
	if limit := s.Config.MigrateACID.PartitionLimit; limit > 0 && count > limit {
		return errors.Errorf("transactional table has %d partitions, more than the ACID partition limit of %d", count, limit)
	}
	fqn := qualified(tbl.Database, tbl.Name)
	archiveFQN := qualified(tbl.Database, archiveName(s, tbl.Name))

	def := model.MakeExternal(source.Definition)
	def = model.UpsertTblProperty(def, model.TBL_PROP_EXTERNAL_PURGE, "true")
	for _, stat := range []string{model.TBL_PROP_NUM_FILES, model.TBL_PROP_TOTAL_SIZE, model.TBL_PROP_NUM_ROWS} {
		def = model.RemoveTblProperty(def, stat)
	}
	def = model.UpsertTblProperty(def, model.TBL_PROP_MIRROR_METADATA, s.Timestamp)
	if wh, err := s.Translator.Warehouses().Resolve(tbl.Database); err == nil {
		def = model.UpdateLocation(def, s.Config.SourceNamespace()+translator.JoinPath(wh.Root(model.EXTERNAL_TABLE), tbl.Database+".db", tbl.Name))
	} else {
		def = model.RemoveLocation(def)
	}

	source.AddSQL("Use database", useDatabase(tbl.Database))
	source.AddSQL("Archive the transactional table", fmt.Sprintf("ALTER TABLE %v RENAME TO %v", fqn, archiveFQN))
	source.AddSQL("Create the external table", model.ToCreateStatement(def))
	addSessionSettings(s, source)
	source.AddSQL("Copy data from the archive", insertOverwrite(tbl, fqn, archiveFQN))
	source.AddCleanupSQL("Drop the archived table", "DROP TABLE IF EXISTS "+archiveFQN)
	return nil
}
