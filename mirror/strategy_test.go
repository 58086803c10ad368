package mirror_test

import (
	"context"

	"github.com/dstreev/hms-mirror-sub000/internal/dbconn"
	"github.com/dstreev/hms-mirror-sub000/mirror"
	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/dstreev/hms-mirror-sub000/options"
	"github.com/dstreev/hms-mirror-sub000/translator"
	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("mirror/strategy tests", func() {
	var (
		ctx    context.Context
		config *options.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
	})
	build := func(tbl *model.TableMirror) (*mirror.Session, error) {
		s := newSession(config, dbconn.NewPools(), newFakeCatalog())
		strategy, err := mirror.StrategyFor(tbl.Strategy)
		Expect(err).ToNot(HaveOccurred())
		return s, strategy.Build(ctx, s, tbl)
	}

	Describe("StrategyFor", func() {
		It("has an implementation for every data strategy", func() {
			for _, ds := range model.AllDataStrategies {
				_, err := mirror.StrategyFor(ds)
				Expect(err).ToNot(HaveOccurred())
			}
		})
		It("rejects an unknown data strategy", func() {
			_, err := mirror.StrategyFor(model.DataStrategy("MAGIC"))
			Expect(err).To(MatchError(ContainSubstring("MAGIC")))
		})
	})
	Describe("SCHEMA_ONLY", func() {
		BeforeEach(func() {
			config = newConfig(model.SCHEMA_ONLY)
		})
		It("creates the table on TARGET at the translated location", func() {
			tbl := newTable(model.SCHEMA_ONLY, "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())

			sql := actions(tbl.Env(model.TARGET).SQL)
			Expect(sql).To(HaveLen(2))
			Expect(sql[0]).To(Equal("USE `db`"))
			Expect(sql[1]).To(HavePrefix("CREATE EXTERNAL TABLE IF NOT EXISTS `db`.`t1`("))
			Expect(sql[1]).To(ContainSubstring("'hdfs://tgt/data/db/t1'"))
			Expect(sql[1]).To(ContainSubstring("'hmsMirror_Metadata_Stage1'='" + testTimestamp + "'"))
			Expect(sql[1]).ToNot(ContainSubstring("numFiles"))
			Expect(tbl.Env(model.SOURCE).SQL).To(BeEmpty())
		})
		It("does nothing when TARGET already has a matching schema", func() {
			tbl := newTable(model.SCHEMA_ONLY, "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
			target := tbl.Env(model.TARGET)
			target.Exists = true
			target.Definition = externalDefinition("t1", "hdfs://tgt/data/db/t1")
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			Expect(tbl.Env(model.TARGET).SQL).To(BeEmpty())
			Expect(tbl.HasIssue("matches")).To(BeTrue())
		})
		It("fails when TARGET has a different schema and sync is off", func() {
			tbl := newTable(model.SCHEMA_ONLY, "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
			target := tbl.Env(model.TARGET)
			target.Exists = true
			target.Definition = partitionedDefinition("t1", "hdfs://tgt/data/db/t1")
			_, err := build(tbl)
			Expect(err).To(MatchError(ContainSubstring("enable sync")))
		})
		It("drops and recreates a different TARGET schema when sync is on", func() {
			config.Sync = true
			tbl := newTable(model.SCHEMA_ONLY, "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
			target := tbl.Env(model.TARGET)
			target.Exists = true
			target.Definition = partitionedDefinition("t1", "hdfs://tgt/data/db/t1")
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			sql := actions(tbl.Env(model.TARGET).SQL)
			Expect(sql[0]).To(Equal("DROP TABLE IF EXISTS `db`.`t1`"))
			Expect(sql).To(HaveLen(3))
		})
		It("adds every partition at its translated location", func() {
			tbl := newTable(model.SCHEMA_ONLY, "p1", partitionedDefinition("p1", "hdfs://src/data/db/p1"))
			tbl.Env(model.SOURCE).Partitions = map[string]string{
				"dt=2024-01-02": "hdfs://src/data/db/p1/dt=2024-01-02",
				"dt=2024-01-01": "hdfs://src/data/db/p1/dt=2024-01-01",
			}
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			sql := actions(tbl.Env(model.TARGET).SQL)
			Expect(sql).To(HaveLen(4))
			Expect(sql[2]).To(Equal("ALTER TABLE `db`.`p1` ADD IF NOT EXISTS PARTITION (`dt`='2024-01-01') LOCATION 'hdfs://tgt/data/db/p1/dt=2024-01-01'"))
			Expect(sql[3]).To(Equal("ALTER TABLE `db`.`p1` ADD IF NOT EXISTS PARTITION (`dt`='2024-01-02') LOCATION 'hdfs://tgt/data/db/p1/dt=2024-01-02'"))
		})
		It("discovers partitions with MSCK when configured", func() {
			config.Clusters[model.TARGET].PartitionDiscovery.InitMSCK = true
			tbl := newTable(model.SCHEMA_ONLY, "p1", partitionedDefinition("p1", "hdfs://src/data/db/p1"))
			tbl.Env(model.SOURCE).Partitions = map[string]string{"dt=2024-01-01": "hdfs://src/data/db/p1/dt=2024-01-01"}
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			Expect(actions(tbl.Env(model.TARGET).SQL)).To(ContainElement("MSCK REPAIR TABLE `db`.`p1`"))
		})
		It("warns about partitions without a location", func() {
			tbl := newTable(model.SCHEMA_ONLY, "p1", partitionedDefinition("p1", "hdfs://src/data/db/p1"))
			tbl.Env(model.SOURCE).Partitions = map[string]string{
				"dt=2024-01-01": "hdfs://src/data/db/p1/dt=2024-01-01",
				"dt=2024-01-02": "",
			}
			_, err := build(tbl)
			var warning *mirror.ValidationWarning
			Expect(errors.As(err, &warning)).To(BeTrue())
			Expect(warning.Message).To(ContainSubstring("1 partition(s) have no location"))
			Expect(actions(tbl.Env(model.TARGET).SQL)).To(HaveLen(3))
		})
		It("recreates views unchanged", func() {
			tbl := newTable(model.SCHEMA_ONLY, "v1", viewDefinition("v1"))
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			Expect(actions(tbl.Env(model.TARGET).SQL)).To(Equal([]string{"USE `db`", viewDefinition("v1")[0]}))
		})
	})
	Describe("SQL", func() {
		BeforeEach(func() {
			config = newConfig(model.SQL)
		})
		It("moves data through a shadow table over the SOURCE files", func() {
			tbl := newTable(model.SQL, "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())

			target := tbl.Env(model.TARGET)
			sql := actions(target.SQL)
			Expect(sql[2]).To(HavePrefix("CREATE EXTERNAL TABLE IF NOT EXISTS `db`.`hms_mirror_shadow_t1`("))
			Expect(sql[2]).To(ContainSubstring("'hdfs://src/data/db/t1'"))
			Expect(sql[2]).To(ContainSubstring("'external.table.purge'='false'"))
			Expect(sql).To(ContainElement("SET hive.exec.dynamic.partition.mode=nonstrict"))
			Expect(sql).To(ContainElement("SET hive.optimize.sort.dynamic.partition=false"))
			Expect(sql[len(sql)-1]).To(Equal("INSERT OVERWRITE TABLE `db`.`t1` SELECT * FROM `db`.`hms_mirror_shadow_t1`"))
			Expect(actions(target.CleanupSQL)).To(Equal([]string{"DROP TABLE IF EXISTS `db`.`hms_mirror_shadow_t1`"}))
			Expect(tbl.Env(model.SHADOW).Name).To(Equal("hms_mirror_shadow_t1"))
		})
		It("stages transactional tables in a transfer table on SOURCE", func() {
			config.MigrateACID.On = true
			tbl := newTable(model.SQL, "t3", acidDefinition("t3", "hdfs://src/warehouse/managed/db.db/t3"))
			s, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())

			transferLocation := "hdfs://src/hms_mirror_working/" + s.RunID + "/db/t3"
			source := actions(tbl.Env(model.SOURCE).SQL)
			Expect(source[1]).To(HavePrefix("CREATE EXTERNAL TABLE IF NOT EXISTS `db`.`hms_mirror_transfer_t3`("))
			Expect(source[1]).To(ContainSubstring(transferLocation))
			Expect(source[len(source)-1]).To(Equal("INSERT OVERWRITE TABLE `db`.`hms_mirror_transfer_t3` SELECT * FROM `db`.`t3`"))
			Expect(actions(tbl.Env(model.SOURCE).CleanupSQL)).To(Equal([]string{"DROP TABLE IF EXISTS `db`.`hms_mirror_transfer_t3`"}))
			Expect(actions(tbl.Env(model.TARGET).SQL)[2]).To(ContainSubstring(transferLocation))
		})
		It("downgrades transactional tables when configured", func() {
			config.MigrateACID.On = true
			config.MigrateACID.Downgrade = true
			tbl := newTable(model.SQL, "t3", acidDefinition("t3", "hdfs://src/warehouse/managed/db.db/t3"))
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			create := actions(tbl.Env(model.TARGET).SQL)[1]
			Expect(create).To(HavePrefix("CREATE EXTERNAL TABLE IF NOT EXISTS `db`.`t3`("))
			Expect(create).ToNot(ContainSubstring("'transactional'"))
			Expect(create).To(ContainSubstring("'external.table.purge'='true'"))
		})
		It("refuses tables above the partition limit", func() {
			config.Hybrid.SqlPartitionLimit = 1
			tbl := newTable(model.SQL, "p1", partitionedDefinition("p1", "hdfs://src/data/db/p1"))
			tbl.Env(model.SOURCE).Partitions = map[string]string{
				"dt=1": "hdfs://src/data/db/p1/dt=1",
				"dt=2": "hdfs://src/data/db/p1/dt=2",
			}
			_, err := build(tbl)
			Expect(err).To(MatchError(ContainSubstring("SQL partition limit of 1")))
		})
		It("inserts partitioned tables with dynamic partitions", func() {
			tbl := newTable(model.SQL, "p1", partitionedDefinition("p1", "hdfs://src/data/db/p1"))
			tbl.Env(model.SOURCE).Partitions = map[string]string{"dt=1": "hdfs://src/data/db/p1/dt=1"}
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			sql := actions(tbl.Env(model.TARGET).SQL)
			Expect(sql).To(ContainElement("ALTER TABLE `db`.`hms_mirror_shadow_p1` ADD IF NOT EXISTS PARTITION (`dt`='1') LOCATION 'hdfs://src/data/db/p1/dt=1'"))
			Expect(sql[len(sql)-1]).To(Equal("INSERT OVERWRITE TABLE `db`.`p1` PARTITION (`dt`) SELECT * FROM `db`.`hms_mirror_shadow_p1`"))
		})
	})
	Describe("EXPORT_IMPORT", func() {
		BeforeEach(func() {
			config = newConfig(model.EXPORT_IMPORT)
		})
		It("exports on SOURCE and imports on TARGET", func() {
			tbl := newTable(model.EXPORT_IMPORT, "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			Expect(actions(tbl.Env(model.SOURCE).SQL)).To(Equal([]string{
				"USE `db`",
				"EXPORT TABLE `db`.`t1` TO '/apps/hive/warehouse/export_db/t1'",
			}))
			Expect(actions(tbl.Env(model.TARGET).SQL)).To(Equal([]string{
				"USE `db`",
				"IMPORT EXTERNAL TABLE `db`.`t1` FROM 'hdfs://src/apps/hive/warehouse/export_db/t1' LOCATION 'hdfs://tgt/data/db/t1'",
			}))
		})
	})
	Describe("HYBRID", func() {
		BeforeEach(func() {
			config = newConfig(model.HYBRID)
			config.MigrateACID.On = true
		})
		It("uses EXPORT_IMPORT for plain tables", func() {
			tbl := newTable(model.HYBRID, "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			Expect(tbl.HasIssue("HYBRID selected EXPORT_IMPORT")).To(BeTrue())
			Expect(actions(tbl.Env(model.SOURCE).SQL)).To(ContainElement(HavePrefix("EXPORT TABLE")))
		})
		It("uses SQL for transactional tables", func() {
			tbl := newTable(model.HYBRID, "t3", acidDefinition("t3", "hdfs://src/warehouse/managed/db.db/t3"))
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			Expect(tbl.HasIssue("HYBRID selected SQL for this transactional table")).To(BeTrue())
			Expect(tbl.HasEnv(model.TRANSFER)).To(BeTrue())
		})
		It("uses SQL above the EXPORT_IMPORT partition limit", func() {
			config.Hybrid.ExportImportPartitionLimit = 1
			tbl := newTable(model.HYBRID, "p1", partitionedDefinition("p1", "hdfs://src/data/db/p1"))
			tbl.Env(model.SOURCE).Partitions = map[string]string{
				"dt=1": "hdfs://src/data/db/p1/dt=1",
				"dt=2": "hdfs://src/data/db/p1/dt=2",
			}
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			Expect(tbl.HasIssue("exceed the EXPORT_IMPORT limit of 1")).To(BeTrue())
			Expect(tbl.HasEnv(model.SHADOW)).To(BeTrue())
		})
		It("downgrades in place when configured", func() {
			config.MigrateACID.InPlace = true
			tbl := newTable(model.HYBRID, "t3", acidDefinition("t3", "hdfs://src/warehouse/managed/db.db/t3"))
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			Expect(tbl.HasIssue("ACID_DOWNGRADE_INPLACE")).To(BeTrue())
			Expect(actions(tbl.Env(model.SOURCE).SQL)).To(ContainElement("ALTER TABLE `db`.`t3` RENAME TO `db`.`t3_archive_" + testTimestamp + "`"))
		})
	})
	Describe("LINKED and COMMON", func() {
		It("points TARGET at the SOURCE data without owning it", func() {
			config = newConfig(model.LINKED)
			tbl := newTable(model.LINKED, "t2", managedDefinition("t2", "hdfs://src/warehouse/db.db/t2"))
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			create := actions(tbl.Env(model.TARGET).SQL)[1]
			Expect(create).To(HavePrefix("CREATE EXTERNAL TABLE IF NOT EXISTS `db`.`t2`("))
			Expect(create).To(ContainSubstring("'hdfs://src/warehouse/db.db/t2'"))
			Expect(create).To(ContainSubstring("'external.table.purge'='false'"))
			Expect(tbl.HasIssue("linked to the SOURCE data")).To(BeTrue())
		})
		It("refuses transactional tables", func() {
			config = newConfig(model.COMMON)
			config.MigrateACID.On = true
			tbl := newTable(model.COMMON, "t3", acidDefinition("t3", "hdfs://src/warehouse/managed/db.db/t3"))
			_, err := build(tbl)
			Expect(err).To(MatchError(ContainSubstring("cannot be shared")))
		})
		It("reports shared common storage", func() {
			config = newConfig(model.COMMON)
			tbl := newTable(model.COMMON, "t1", externalDefinition("t1", "s3a://common/data/db/t1"))
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			Expect(tbl.HasIssue("common storage")).To(BeTrue())
			Expect(actions(tbl.Env(model.TARGET).SQL)[1]).To(ContainSubstring("'s3a://common/data/db/t1'"))
		})
	})
	Describe("DUMP", func() {
		It("writes the SOURCE schema with translated locations and never applies it", func() {
			config = newConfig(model.DUMP)
			tbl := newTable(model.DUMP, "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
			s, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			sql := actions(tbl.Env(model.SOURCE).SQL)
			Expect(sql[0]).To(Equal("USE `db`"))
			Expect(sql[1]).To(ContainSubstring("'hdfs://tgt/data/db/t1'"))
			Expect(tbl.Env(model.TARGET).SQL).To(BeEmpty())

			strategy, _ := mirror.StrategyFor(model.DUMP)
			Expect(strategy.Execute(ctx, s, tbl)).To(Succeed())
		})
	})
	Describe("CONVERT_LINKED", func() {
		BeforeEach(func() {
			config = newConfig(model.CONVERT_LINKED)
		})
		It("requires a linked table on TARGET", func() {
			tbl := newTable(model.CONVERT_LINKED, "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
			_, err := build(tbl)
			Expect(err).To(MatchError(ContainSubstring("no linked table to convert")))
		})
		It("refuses a TARGET table that owns its data", func() {
			tbl := newTable(model.CONVERT_LINKED, "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
			target := tbl.Env(model.TARGET)
			target.Exists = true
			target.Definition = model.UpsertTblProperty(externalDefinition("t1", "hdfs://src/data/db/t1"), model.TBL_PROP_EXTERNAL_PURGE, "true")
			_, err := build(tbl)
			Expect(err).To(MatchError(ContainSubstring("already owns its data")))
		})
		It("detaches and drops the linked table before creating the owned one", func() {
			tbl := newTable(model.CONVERT_LINKED, "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
			target := tbl.Env(model.TARGET)
			target.Exists = true
			target.Definition = model.UpsertTblProperty(externalDefinition("t1", "hdfs://src/data/db/t1"), model.TBL_PROP_EXTERNAL_PURGE, "false")
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			sql := actions(tbl.Env(model.TARGET).SQL)
			Expect(sql[0]).To(Equal("ALTER TABLE `db`.`t1` SET TBLPROPERTIES ('external.table.purge'='false')"))
			Expect(sql[1]).To(Equal("DROP TABLE IF EXISTS `db`.`t1`"))
			Expect(sql[3]).To(ContainSubstring("'hdfs://tgt/data/db/t1'"))
		})
	})
	Describe("STORAGE_MIGRATION", func() {
		BeforeEach(func() {
			config = newConfig(model.STORAGE_MIGRATION)
			delete(config.Clusters, model.TARGET)
		})
		It("refuses a migration that would not move the data", func() {
			tbl := newTable(model.STORAGE_MIGRATION, "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
			_, err := build(tbl)
			var missing *translator.MissingConfigurationError
			Expect(errors.As(err, &missing)).To(BeTrue())
			Expect(missing.Table).To(Equal("t1"))
		})
		It("copies the data with SQL and swaps the tables", func() {
			config.AddGlobalLocationMapEntries(map[string]string{"/data": "/new/data"})
			tbl := newTable(model.STORAGE_MIGRATION, "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			Expect(tbl.ReMapped).To(BeTrue())
			sql := actions(tbl.Env(model.SOURCE).SQL)
			Expect(sql[1]).To(HavePrefix("CREATE EXTERNAL TABLE IF NOT EXISTS `db`.`t1_storage_migration`("))
			Expect(sql[1]).To(ContainSubstring("'hdfs://src/new/data/db/t1'"))
			Expect(sql[len(sql)-3]).To(Equal("INSERT OVERWRITE TABLE `db`.`t1_storage_migration` SELECT * FROM `db`.`t1`"))
			Expect(sql[len(sql)-2]).To(Equal("ALTER TABLE `db`.`t1` RENAME TO `db`.`t1_archive_" + testTimestamp + "`"))
			Expect(sql[len(sql)-1]).To(Equal("ALTER TABLE `db`.`t1_storage_migration` RENAME TO `db`.`t1`"))
			Expect(tbl.HasIssue("kept as `db`.`t1_archive_" + testTimestamp + "`")).To(BeTrue())
		})
		It("only points the metadata at the new location with distcp", func() {
			config.AddGlobalLocationMapEntries(map[string]string{"/data": "/new/data"})
			config.Transfer.StorageMigration.DataMovementStrategy = model.MovementDistcp
			tbl := newTable(model.STORAGE_MIGRATION, "p1", partitionedDefinition("p1", "hdfs://src/data/db/p1"))
			tbl.Env(model.SOURCE).Partitions = map[string]string{"dt=1": "hdfs://src/data/db/p1/dt=1"}
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			Expect(actions(tbl.Env(model.SOURCE).SQL)).To(Equal([]string{
				"USE `db`",
				"ALTER TABLE `db`.`p1` SET LOCATION 'hdfs://src/new/data/db/p1'",
				"ALTER TABLE `db`.`p1` PARTITION (`dt`='1') SET LOCATION 'hdfs://src/new/data/db/p1/dt=1'",
			}))
		})
		It("warns that distcp cannot move live transactional data", func() {
			config.MigrateACID.On = true
			config.AddGlobalLocationMapEntries(map[string]string{"/warehouse": "/new/warehouse"})
			config.Transfer.StorageMigration.DataMovementStrategy = model.MovementDistcp
			tbl := newTable(model.STORAGE_MIGRATION, "t3", acidDefinition("t3", "hdfs://src/warehouse/managed/db.db/t3"))
			_, err := build(tbl)
			var warning *mirror.ValidationWarning
			Expect(errors.As(err, &warning)).To(BeTrue())
			Expect(warning.Message).To(ContainSubstring("distcp cannot move ACID"))
		})
		It("exports and imports at the new location", func() {
			config.AddGlobalLocationMapEntries(map[string]string{"/data": "/new/data"})
			config.Transfer.StorageMigration.DataMovementStrategy = model.MovementExportImport
			tbl := newTable(model.STORAGE_MIGRATION, "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			sql := actions(tbl.Env(model.SOURCE).SQL)
			Expect(sql[1]).To(Equal("EXPORT TABLE `db`.`t1` TO '/apps/hive/warehouse/export_db/t1'"))
			Expect(sql[3]).To(Equal("IMPORT EXTERNAL TABLE `db`.`t1` FROM '/apps/hive/warehouse/export_db/t1' LOCATION 'hdfs://src/new/data/db/t1'"))
		})
		It("leaves a table that is already in place alone", func() {
			config.AddGlobalLocationMapEntries(map[string]string{"/data": "/data"})
			tbl := newTable(model.STORAGE_MIGRATION, "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			Expect(tbl.HasIssue("already at its migrated location")).To(BeTrue())
			Expect(tbl.Env(model.SOURCE).SQL).To(BeEmpty())
		})
		It("skips views", func() {
			tbl := newTable(model.STORAGE_MIGRATION, "v1", viewDefinition("v1"))
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			Expect(tbl.HasIssue("no storage to migrate")).To(BeTrue())
		})
	})
	Describe("ACID_DOWNGRADE_INPLACE", func() {
		BeforeEach(func() {
			config = newConfig(model.ACID_DOWNGRADE_INPLACE)
			config.MigrateACID.On = true
		})
		It("only reports tables that are not transactional", func() {
			tbl := newTable(model.ACID_DOWNGRADE_INPLACE, "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			Expect(tbl.HasIssue("nothing to downgrade")).To(BeTrue())
			Expect(tbl.Env(model.SOURCE).SQL).To(BeEmpty())
		})
		It("archives the table and copies it back as external", func() {
			config.Transfer.Warehouse = translator.Warehouse{ExternalDirectory: "/warehouse/external", ManagedDirectory: "/warehouse/managed"}
			tbl := newTable(model.ACID_DOWNGRADE_INPLACE, "t3", acidDefinition("t3", "hdfs://src/warehouse/managed/db.db/t3"))
			_, err := build(tbl)
			Expect(err).ToNot(HaveOccurred())
			archive := "`db`.`t3_archive_" + testTimestamp + "`"
			source := tbl.Env(model.SOURCE)
			sql := actions(source.SQL)
			Expect(sql[1]).To(Equal("ALTER TABLE `db`.`t3` RENAME TO " + archive))
			Expect(sql[2]).To(HavePrefix("CREATE EXTERNAL TABLE `t3`("))
			Expect(sql[2]).To(ContainSubstring("'hdfs://src/warehouse/external/db.db/t3'"))
			Expect(sql[2]).ToNot(ContainSubstring("'transactional'"))
			Expect(sql[len(sql)-1]).To(Equal("INSERT OVERWRITE TABLE `db`.`t3` SELECT * FROM " + archive))
			Expect(actions(source.CleanupSQL)).To(Equal([]string{"DROP TABLE IF EXISTS " + archive}))
		})
	})
})
