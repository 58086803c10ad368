package mirror_test

import (
	"context"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dstreev/hms-mirror-sub000/internal/dbconn"
	"github.com/dstreev/hms-mirror-sub000/mirror"
	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/dstreev/hms-mirror-sub000/options"
	"github.com/dstreev/hms-mirror-sub000/testutils"
	"github.com/dstreev/hms-mirror-sub000/translator"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/greenplum-db/gp-common-go-libs/operating"
	"github.com/greenplum-db/gp-common-go-libs/testhelper"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("mirror/run tests", func() {
	var (
		ctx     context.Context
		config  *options.Config
		catalog *fakeCatalog
		db      *model.DBMirror
	)

	BeforeEach(func() {
		ctx = context.Background()
		config = newConfig(model.SCHEMA_ONLY)
		config.OutputDirectory = GinkgoT().TempDir()
		catalog = newFakeCatalog()
		catalog.addDatabase(model.SOURCE, "db", map[string]string{model.DB_COMMENT: "sales data"})
		catalog.addTable(model.SOURCE, "db", "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
		catalog.addTable(model.SOURCE, "db", "t2", managedDefinition("t2", "hdfs://src/data/db/t2"))
		catalog.addTable(model.SOURCE, "db", "t3", acidDefinition("t3", "hdfs://src/warehouse/managed/db.db/t3"))
		catalog.addTable(model.SOURCE, "db", "v1", viewDefinition("v1"))
		db = model.NewDBMirror("db", "db")
	})

	Describe("DiscoverTables", func() {
		It("adds every table that can be migrated", func() {
			err := mirror.DiscoverTables(ctx, newSession(config, dbconn.NewPools(), catalog), db)
			Expect(err).ToNot(HaveOccurred())
			Expect(db.TableNames()).To(ConsistOf("t1", "t2", "v1"))
			Expect(db.Issues[model.SOURCE]).To(ContainElement("t3: transactional table, ACID migration is off"))

			t1, _ := db.Table("t1")
			Expect(t1.PhaseState()).To(Equal(model.INIT))
			Expect(t1.Env(model.SOURCE).Exists).To(BeTrue())
			Expect(t1.Env(model.SOURCE).Statistics).To(Equal(map[string]string{
				model.TBL_PROP_NUM_FILES:  "4",
				model.TBL_PROP_TOTAL_SIZE: "1024",
				mirror.STAT_FILE_FORMAT:   "TEXTFILE",
			}))
		})
		It("includes transactional tables once ACID migration is on", func() {
			config.MigrateACID.On = true
			Expect(mirror.DiscoverTables(ctx, newSession(config, dbconn.NewPools(), catalog), db)).To(Succeed())
			Expect(db.TableNames()).To(ContainElement("t3"))
		})
		It("only includes transactional tables when asked to", func() {
			config.MigrateACID.On = true
			config.MigrateACID.Only = true
			Expect(mirror.DiscoverTables(ctx, newSession(config, dbconn.NewPools(), catalog), db)).To(Succeed())
			Expect(db.TableNames()).To(ConsistOf("t3", "v1"))
			Expect(db.Issues[model.SOURCE]).To(ContainElement("t1: not a transactional table, only ACID tables are migrated"))
		})
		It("skips views for strategies that move data", func() {
			config.DataStrategy = model.SQL
			Expect(mirror.DiscoverTables(ctx, newSession(config, dbconn.NewPools(), catalog), db)).To(Succeed())
			Expect(db.TableNames()).ToNot(ContainElement("v1"))
			Expect(db.Issues[model.SOURCE]).To(ContainElement("v1: views are not migrated by SQL"))
		})
		It("applies the include and exclude filters", func() {
			config.Filter.TblRegEx = "^t"
			config.Filter.TblExcludeRegEx = "2$"
			Expect(mirror.DiscoverTables(ctx, newSession(config, dbconn.NewPools(), catalog), db)).To(Succeed())
			Expect(db.TableNames()).To(ConsistOf("t1"))
		})
		It("rejects an invalid filter", func() {
			config.Filter.TblRegEx = "t[1"
			err := mirror.DiscoverTables(ctx, newSession(config, dbconn.NewPools(), catalog), db)
			Expect(err).To(MatchError(ContainSubstring("invalid table filter")))
		})
		It("fails when the database cannot be listed", func() {
			db = model.NewDBMirror("missing", "missing")
			err := mirror.DiscoverTables(ctx, newSession(config, dbconn.NewPools(), catalog), db)
			Expect(err).To(MatchError(ContainSubstring("list tables of database missing")))
		})
		It("adds a table whose metadata cannot be read in ERROR", func() {
			catalog.failures["db.t2"] = errors.New("metastore timeout")
			Expect(mirror.DiscoverTables(ctx, newSession(config, dbconn.NewPools(), catalog), db)).To(Succeed())
			t2, ok := db.Table("t2")
			Expect(ok).To(BeTrue())
			Expect(t2.PhaseState()).To(Equal(model.ERROR))
			Expect(t2.Errors()).To(ContainElement(ContainSubstring("metastore timeout")))
		})
		It("skips tables over the partition limit", func() {
			config.Filter.TblPartitionLimit = 1
			catalog.addTable(model.SOURCE, "db", "p1", partitionedDefinition("p1", "hdfs://src/data/db/p1"))
			catalog.addPartitions(model.SOURCE, "db", "p1", map[string]string{
				"dt=1": "hdfs://src/data/db/p1/dt=1",
				"dt=2": "hdfs://src/data/db/p1/dt=2",
			})
			Expect(mirror.DiscoverTables(ctx, newSession(config, dbconn.NewPools(), catalog), db)).To(Succeed())
			Expect(db.TableNames()).ToNot(ContainElement("p1"))
			Expect(db.Issues[model.SOURCE]).To(ContainElement("p1: 2 partitions exceed the partition limit of 1"))
		})
		It("loads the partitions of a partitioned table", func() {
			catalog.addTable(model.SOURCE, "db", "p1", partitionedDefinition("p1", "hdfs://src/data/db/p1"))
			catalog.addPartitions(model.SOURCE, "db", "p1", map[string]string{"dt=1": "hdfs://src/data/db/p1/dt=1"})
			Expect(mirror.DiscoverTables(ctx, newSession(config, dbconn.NewPools(), catalog), db)).To(Succeed())
			p1, _ := db.Table("p1")
			Expect(p1.Env(model.SOURCE).Partitions).To(Equal(map[string]string{"dt=1": "hdfs://src/data/db/p1/dt=1"}))
		})
		It("reads the TARGET definition of tables that already exist there", func() {
			catalog.addTable(model.TARGET, "db", "t1", externalDefinition("t1", "hdfs://tgt/data/db/t1"))
			Expect(mirror.DiscoverTables(ctx, newSession(config, dbconn.NewPools(), catalog), db)).To(Succeed())
			t1, _ := db.Table("t1")
			Expect(t1.Env(model.TARGET).Exists).To(BeTrue())
			Expect(t1.Env(model.TARGET).Definition).To(ContainElement("  'hdfs://tgt/data/db/t1'"))
			t2, _ := db.Table("t2")
			Expect(t2.Env(model.TARGET).Exists).To(BeFalse())
		})
		It("does not look at the TARGET for in place strategies", func() {
			config = newConfig(model.STORAGE_MIGRATION)
			catalog.addTable(model.TARGET, "db", "t1", externalDefinition("t1", "hdfs://tgt/data/db/t1"))
			Expect(mirror.DiscoverTables(ctx, newSession(config, dbconn.NewPools(), catalog), db)).To(Succeed())
			t1, _ := db.Table("t1")
			Expect(t1.Env(model.TARGET).Exists).To(BeFalse())
		})
	})

	Describe("BuildDatabaseSQL", func() {
		It("creates the TARGET database with the SOURCE comment", func() {
			Expect(mirror.BuildDatabaseSQL(ctx, newSession(config, dbconn.NewPools(), catalog), db)).To(Succeed())
			Expect(actions(db.SQL[model.TARGET])).To(Equal([]string{"CREATE DATABASE IF NOT EXISTS `db` COMMENT 'sales data'"}))
			Expect(db.SQL[model.SOURCE]).To(BeEmpty())
		})
		It("places the database in its warehouse", func() {
			config.Translator.WarehousePlans["db"] = translator.Warehouse{ExternalDirectory: "/warehouse/external", ManagedDirectory: "/warehouse/managed"}
			Expect(mirror.BuildDatabaseSQL(ctx, newSession(config, dbconn.NewPools(), catalog), db)).To(Succeed())
			Expect(actions(db.SQL[model.TARGET])).To(Equal([]string{
				"CREATE DATABASE IF NOT EXISTS `db` COMMENT 'sales data' LOCATION 'hdfs://tgt/warehouse/external/db.db' MANAGEDLOCATION 'hdfs://tgt/warehouse/managed/db.db'",
			}))
			Expect(db.Definition(model.TARGET)[model.DB_LOCATION]).To(Equal("hdfs://tgt/warehouse/external/db.db"))
		})
		It("leaves out the managed location on legacy Hive", func() {
			config.Clusters[model.TARGET].LegacyHive = true
			config.Transfer.Warehouse = translator.Warehouse{ExternalDirectory: "/warehouse/external", ManagedDirectory: "/warehouse/managed"}
			Expect(mirror.BuildDatabaseSQL(ctx, newSession(config, dbconn.NewPools(), catalog), db)).To(Succeed())
			Expect(actions(db.SQL[model.TARGET])).To(Equal([]string{
				"CREATE DATABASE IF NOT EXISTS `db` COMMENT 'sales data' LOCATION 'hdfs://tgt/warehouse/external/db.db'",
			}))
		})
		It("uses the renamed database", func() {
			config.DbRename = "db_copy"
			db = model.NewDBMirror("db", config.TargetDatabase("db"))
			Expect(mirror.BuildDatabaseSQL(ctx, newSession(config, dbconn.NewPools(), catalog), db)).To(Succeed())
			Expect(actions(db.SQL[model.TARGET])).To(Equal([]string{"CREATE DATABASE IF NOT EXISTS `db_copy` COMMENT 'sales data'"}))
		})
		It("writes the create statement for SOURCE on a dump", func() {
			config.DataStrategy = model.DUMP
			Expect(mirror.BuildDatabaseSQL(ctx, newSession(config, dbconn.NewPools(), catalog), db)).To(Succeed())
			Expect(actions(db.SQL[model.SOURCE])).To(Equal([]string{"CREATE DATABASE IF NOT EXISTS `db` COMMENT 'sales data'"}))
			Expect(db.SQL[model.TARGET]).To(BeEmpty())
		})
		It("has no database SQL for an in place downgrade", func() {
			config = newConfig(model.ACID_DOWNGRADE_INPLACE)
			Expect(mirror.BuildDatabaseSQL(ctx, newSession(config, dbconn.NewPools(), catalog), db)).To(Succeed())
			Expect(db.SQL).To(BeEmpty())
		})
		It("fails when the SOURCE database does not exist", func() {
			db = model.NewDBMirror("missing", "missing")
			err := mirror.BuildDatabaseSQL(ctx, newSession(config, dbconn.NewPools(), catalog), db)
			Expect(err).To(MatchError(ContainSubstring("describe database missing")))
		})
		Describe("STORAGE_MIGRATION", func() {
			BeforeEach(func() {
				config = newConfig(model.STORAGE_MIGRATION)
				delete(config.Clusters, model.TARGET)
			})
			It("moves the SOURCE database to its warehouse", func() {
				config.Translator.WarehousePlans["db"] = translator.Warehouse{ExternalDirectory: "/warehouse/external", ManagedDirectory: "/warehouse/managed"}
				Expect(mirror.BuildDatabaseSQL(ctx, newSession(config, dbconn.NewPools(), catalog), db)).To(Succeed())
				Expect(actions(db.SQL[model.SOURCE])).To(Equal([]string{
					"ALTER DATABASE `db` SET LOCATION 'hdfs://src/warehouse/external/db.db'",
					"ALTER DATABASE `db` SET MANAGEDLOCATION 'hdfs://src/warehouse/managed/db.db'",
				}))
			})
			It("reports a database without a warehouse plan", func() {
				Expect(mirror.BuildDatabaseSQL(ctx, newSession(config, dbconn.NewPools(), catalog), db)).To(Succeed())
				Expect(db.SQL[model.SOURCE]).To(BeEmpty())
				Expect(db.Issues[model.SOURCE]).To(ContainElement("No warehouse plan for the database, its location was not changed"))
			})
			It("skips the location when asked to", func() {
				config.Transfer.StorageMigration.SkipDatabaseLocationAdjustments = true
				config.Transfer.Warehouse = translator.Warehouse{ExternalDirectory: "/warehouse/external", ManagedDirectory: "/warehouse/managed"}
				Expect(mirror.BuildDatabaseSQL(ctx, newSession(config, dbconn.NewPools(), catalog), db)).To(Succeed())
				Expect(db.SQL[model.SOURCE]).To(BeEmpty())
				Expect(db.Issues[model.SOURCE]).To(ContainElement("Database location adjustments are skipped"))
			})
		})
	})

	Describe("ApplyDatabaseSQL", func() {
		It("only logs the statements on a dry run", func() {
			_, _, logfile := testhelper.SetupTestLogger()
			s := newSession(config, dbconn.NewPools(), catalog)
			Expect(mirror.BuildDatabaseSQL(ctx, s, db)).To(Succeed())
			Expect(mirror.ApplyDatabaseSQL(ctx, s, db)).To(Succeed())
			testhelper.ExpectRegexp(logfile, "[TARGET] db would run: CREATE DATABASE IF NOT EXISTS `db` COMMENT 'sales data'")
		})
		Describe("execute", func() {
			var mockEnv *testutils.MockEnvironment

			BeforeEach(func() {
				mockEnv, _, _, _ = testutils.SetupTestEnvironment(1, model.SOURCE, model.TARGET)
				config.Execute = true
			})
			AfterEach(func() {
				mockEnv.Pools.Close()
			})
			It("creates the database on TARGET", func() {
				mockEnv.Mock(model.TARGET).ExpectExec(regexp.QuoteMeta("CREATE DATABASE IF NOT EXISTS `db`")).WillReturnResult(sqlmock.NewResult(0, 0))
				s := newSession(config, mockEnv.Pools, catalog)
				Expect(mirror.BuildDatabaseSQL(ctx, s, db)).To(Succeed())
				Expect(mirror.ApplyDatabaseSQL(ctx, s, db)).To(Succeed())
				Expect(mockEnv.ExpectationsWereMet()).To(Succeed())
			})
			It("records the failure on the database", func() {
				mockEnv.Mock(model.TARGET).ExpectExec(regexp.QuoteMeta("CREATE DATABASE IF NOT EXISTS `db`")).WillReturnError(errors.New("permission denied"))
				s := newSession(config, mockEnv.Pools, catalog)
				Expect(mirror.BuildDatabaseSQL(ctx, s, db)).To(Succeed())
				err := mirror.ApplyDatabaseSQL(ctx, s, db)
				Expect(err).To(MatchError(ContainSubstring("permission denied")))
				Expect(db.Issues[model.TARGET]).To(ContainElement(ContainSubstring("permission denied")))
			})
			It("fails every table of the database", func() {
				gplog.SetVerbosity(gplog.LOGERROR)
				defer gplog.SetVerbosity(gplog.LOGINFO)
				mockEnv.Mock(model.TARGET).ExpectExec(regexp.QuoteMeta("CREATE DATABASE IF NOT EXISTS `db`")).WillReturnError(errors.New("permission denied"))
				s := newSession(config, mockEnv.Pools, catalog)

				report, err := mirror.RunDatabase(ctx, s, "db")
				Expect(err).ToNot(HaveOccurred())
				Expect(report.Summary).To(Equal(map[model.PhaseState]int{model.ERROR: 3}))
				for _, tbl := range report.Tables {
					Expect(tbl.Errors).To(ConsistOf(HavePrefix("TARGET: database DDL failed")))
				}
			})
		})
	})

	Describe("WriteDatabaseScripts", func() {
		It("writes the execute and cleanup scripts of each environment", func() {
			config.DataStrategy = model.SQL
			dir := GinkgoT().TempDir()
			s := newSession(config, dbconn.NewPools(), catalog)
			Expect(mirror.BuildDatabaseSQL(ctx, s, db)).To(Succeed())
			db.AddTable(newTable(model.SQL, "t1", externalDefinition("t1", "hdfs://src/data/db/t1")))
			mirror.NewTransferOrchestrator(s, db, nil).Run(ctx)

			Expect(mirror.WriteDatabaseScripts(s, db, dir)).To(Succeed())
			execute, err := os.ReadFile(filepath.Join(dir, "db_TARGET_execute.sql"))
			Expect(err).ToNot(HaveOccurred())
			Expect(string(execute)).To(HavePrefix("-- hms-mirror SQL, run " + s.RunID + ", db on TARGET\n\n-- Create database\nCREATE DATABASE IF NOT EXISTS `db` COMMENT 'sales data';\n"))
			Expect(string(execute)).To(ContainSubstring("INSERT OVERWRITE TABLE `db`.`t1`"))
			cleanup, err := os.ReadFile(filepath.Join(dir, "db_TARGET_cleanup.sql"))
			Expect(err).ToNot(HaveOccurred())
			Expect(string(cleanup)).To(ContainSubstring("DROP TABLE IF EXISTS `db`.`hms_mirror_shadow_t1`;"))
			Expect(filepath.Join(dir, "db_SOURCE_execute.sql")).ToNot(BeAnExistingFile())
		})
		It("leaves out tables that failed", func() {
			dir := GinkgoT().TempDir()
			s := newSession(config, dbconn.NewPools(), catalog)
			tbl := newTable(model.SCHEMA_ONLY, "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
			tbl.Env(model.TARGET).SQL = []model.Pair{{Description: "Create table", Action: "CREATE TABLE broken"}}
			tbl.AddError(model.TARGET, "broken")
			_ = tbl.SetPhaseState(model.CALCULATING_SQL)
			_ = tbl.SetPhaseState(model.ERROR)
			db.AddTable(tbl)

			Expect(mirror.WriteDatabaseScripts(s, db, dir)).To(Succeed())
			Expect(filepath.Join(dir, "db_TARGET_execute.sql")).ToNot(BeAnExistingFile())
		})
	})

	Describe("DefaultOutputDirectory", func() {
		AfterEach(func() {
			operating.System = operating.InitializeSystemFunctions()
		})
		It("places the output under the home directory", func() {
			operating.System.CurrentUser = func() (*user.User, error) { return &user.User{HomeDir: "/home/hive"}, nil }
			Expect(mirror.DefaultOutputDirectory()).To(Equal("/home/hive/hms-mirror"))
		})
		It("fails when the current user cannot be looked up", func() {
			operating.System.CurrentUser = func() (*user.User, error) { return nil, errors.New("no passwd entry") }
			_, err := mirror.DefaultOutputDirectory()
			Expect(err).To(MatchError("could not look up the current user: no passwd entry"))
		})
	})
	Describe("WriteDistcpPlans", func() {
		var (
			dir string
			s   *mirror.Session
		)

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
			s = newSession(config, dbconn.NewPools(), catalog)
		})
		appendTables := func(level int) {
			for _, name := range []string{"t1", "t2"} {
				s.Ledger().Append(model.SOURCE, "db", translator.NewTranslationLevel("db", "hdfs://src/data/db/"+name, "hdfs://src/new/data/db/"+name, 0))
			}
			config.Transfer.StorageMigration.ConsolidationLevel = level
		}
		readScript := func() string {
			script, err := os.ReadFile(filepath.Join(dir, "db_SOURCE_distcp_script.sh"))
			Expect(err).ToNot(HaveOccurred())
			return string(script)
		}

		It("copies the source directories beneath the consolidated target", func() {
			appendTables(1)

			plans, err := mirror.WriteDistcpPlans(s, db, dir)
			Expect(err).ToNot(HaveOccurred())
			Expect(plans[model.SOURCE].ToMap()).To(Equal(map[string][]string{
				"hdfs://src/new/data/db": {"hdfs://src/data/db/t1", "hdfs://src/data/db/t2"},
			}))
			workDir := translator.JoinPath(config.Transfer.RemoteWorkingDirectory, s.RunID)
			script := readScript()
			Expect(script).To(HavePrefix("#!/usr/bin/env bash\n\nset -e\n\nDISTCP_OPTS=\"${DISTCP_OPTS:-}\"\n\n"))
			Expect(script).To(ContainSubstring("hadoop distcp $DISTCP_OPTS -f " + workDir + "/db_SOURCE_distcp_source_1.txt hdfs://src/new/data/db\n"))
			Expect(script).ToNot(ContainSubstring("-update"))
			Expect(script).ToNot(ContainSubstring("-skipcrccheck"))
		})
		It("copies the contents of each table directory at level 0", func() {
			appendTables(0)

			plans, err := mirror.WriteDistcpPlans(s, db, dir)
			Expect(err).ToNot(HaveOccurred())
			Expect(plans[model.SOURCE].Targets()).To(Equal([]string{"hdfs://src/new/data/db/t1", "hdfs://src/new/data/db/t2"}))
			workDir := translator.JoinPath(config.Transfer.RemoteWorkingDirectory, s.RunID)
			script := readScript()
			Expect(script).To(ContainSubstring("hadoop distcp $DISTCP_OPTS -update -f " + workDir + "/db_SOURCE_distcp_source_1.txt hdfs://src/new/data/db/t1\n"))
			Expect(script).To(ContainSubstring("hadoop distcp $DISTCP_OPTS -update -f " + workDir + "/db_SOURCE_distcp_source_2.txt hdfs://src/new/data/db/t2\n"))
		})
	})

	Describe("Run", func() {
		var mockEnv *testutils.MockEnvironment

		BeforeEach(func() {
			gplog.SetVerbosity(gplog.LOGERROR)
			gplog.SetErrorCode(0)
			mockEnv, _, _, _ = testutils.SetupTestEnvironment(2, model.SOURCE)
			config = newConfig(model.STORAGE_MIGRATION)
			delete(config.Clusters, model.TARGET)
			config.OutputDirectory = GinkgoT().TempDir()
			config.Execute = true
			config.MigrateACID.On = true
			config.Transfer.StorageMigration.DataMovementStrategy = model.MovementDistcp
			config.AddGlobalLocationMapEntries(map[string]string{"/data": "/new/data"})
			catalog = newFakeCatalog()
			catalog.addDatabase(model.SOURCE, "db", map[string]string{})
			catalog.addTable(model.SOURCE, "db", "t1", externalDefinition("t1", "hdfs://src/data/db/t1"))
			catalog.addTable(model.SOURCE, "db", "t2", managedDefinition("t2", "hdfs://src/data/db/t2"))
			catalog.addTable(model.SOURCE, "db", "t3", acidDefinition("t3", "hdfs://src/data/db/t3"))
		})
		AfterEach(func() {
			mockEnv.Pools.Close()
			gplog.SetVerbosity(gplog.LOGINFO)
			gplog.SetErrorCode(0)
		})
		It("migrates the storage of a database and writes the run artifacts", func() {
			mock := mockEnv.Mock(model.SOURCE)
			mock.ExpectExec(regexp.QuoteMeta("USE `db`")).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec(regexp.QuoteMeta("USE `db`")).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE `db`.`t1` SET LOCATION 'hdfs://src/new/data/db/t1'")).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE `db`.`t2` SET LOCATION 'hdfs://src/new/data/db/t2'")).WillReturnResult(sqlmock.NewResult(0, 0))
			s := newSession(config, mockEnv.Pools, catalog)

			report, err := mirror.Run(ctx, s)
			Expect(err).ToNot(HaveOccurred())
			Expect(mockEnv.ExpectationsWereMet()).To(Succeed())
			Expect(gplog.GetErrorCode()).To(Equal(0))

			Expect(report.RunID).To(Equal(s.RunID))
			Expect(report.Databases).To(HaveLen(1))
			dbReport := report.Databases[0]
			Expect(dbReport.Summary).To(Equal(map[model.PhaseState]int{model.PROCESSED: 2, model.CALCULATED_SQL_WARNING: 1}))
			Expect(dbReport.Issues[model.SOURCE]).To(ContainElement("No warehouse plan for the database, its location was not changed"))
			Expect(dbReport.Distcp).To(Equal(map[model.Environment]map[string][]string{
				model.SOURCE: {"hdfs://src/new/data/db": {"hdfs://src/data/db/t1", "hdfs://src/data/db/t2"}},
			}))
			phases := make(map[string]model.PhaseState)
			for _, tbl := range dbReport.Tables {
				phases[tbl.Name] = tbl.Phase
				if tbl.Phase == model.PROCESSED {
					Expect(tbl.ReMapped).To(BeTrue())
				}
			}
			Expect(phases).To(Equal(map[string]model.PhaseState{
				"t1": model.PROCESSED, "t2": model.PROCESSED, "t3": model.CALCULATED_SQL_WARNING,
			}))
			Expect(dbReport.Tables[2].Issues).To(ContainElement(ContainSubstring("distcp cannot move ACID")))

			dir := mirror.RunDirectory(s)
			Expect(dir).To(Equal(filepath.Join(config.OutputDirectory, testTimestamp)))
			for _, name := range []string{
				mirror.ReportFileName,
				mirror.GLMFileName,
				"db_SOURCE_execute.sql",
				"db_SOURCE_distcp_plan.yaml",
				"db_SOURCE_distcp_source_1.txt",
				"db_SOURCE_distcp_script.sh",
			} {
				Expect(filepath.Join(dir, name)).To(BeAnExistingFile())
			}
			Expect(filepath.Join(dir, "db_TARGET_execute.sql")).ToNot(BeAnExistingFile())

			sources, err := os.ReadFile(filepath.Join(dir, "db_SOURCE_distcp_source_1.txt"))
			Expect(err).ToNot(HaveOccurred())
			Expect(string(sources)).To(Equal("hdfs://src/data/db/t1\nhdfs://src/data/db/t2\n"))
			script, err := os.ReadFile(filepath.Join(dir, "db_SOURCE_distcp_script.sh"))
			Expect(err).ToNot(HaveOccurred())
			workDir := translator.JoinPath(config.Transfer.RemoteWorkingDirectory, s.RunID)
			Expect(string(script)).To(ContainSubstring("hadoop distcp $DISTCP_OPTS -f " + workDir + "/db_SOURCE_distcp_source_1.txt hdfs://src/new/data/db\n"))
			info, err := os.Stat(filepath.Join(dir, "db_SOURCE_distcp_script.sh"))
			Expect(err).ToNot(HaveOccurred())
			Expect(info.Mode().Perm() & 0100).ToNot(BeZero())

			succeeded, err := os.ReadFile(filepath.Join(dir, mirror.SucceededFileName))
			Expect(err).ToNot(HaveOccurred())
			Expect(strings.Fields(string(succeeded))).To(ConsistOf("db.t1", "db.t2"))

			contents, err := os.ReadFile(filepath.Join(dir, mirror.ReportFileName))
			Expect(err).ToNot(HaveOccurred())
			var written mirror.RunReport
			Expect(yaml.Unmarshal(contents, &written)).To(Succeed())
			Expect(written.DataStrategy).To(Equal(model.STORAGE_MIGRATION))
			Expect(written.Databases[0].Summary).To(Equal(dbReport.Summary))

			glm, err := os.ReadFile(filepath.Join(dir, mirror.GLMFileName))
			Expect(err).ToNot(HaveOccurred())
			Expect(string(glm)).To(ContainSubstring("/data"))
		})
		It("persists the location map for the next run", func() {
			config.Execute = false
			config.Translator.GlmFile = filepath.Join(config.OutputDirectory, "glm.yaml")
			_, err := mirror.Run(ctx, newSession(config, dbconn.NewPools(), catalog))
			Expect(err).ToNot(HaveOccurred())
			Expect(config.Translator.GlmFile).To(BeAnExistingFile())
		})
		It("sets the error code when a database fails", func() {
			config.Execute = false
			config.Databases = []string{"missing"}
			report, err := mirror.Run(ctx, newSession(config, dbconn.NewPools(), catalog))
			Expect(err).ToNot(HaveOccurred())
			Expect(report.Databases).To(BeEmpty())
			Expect(gplog.GetErrorCode()).To(Equal(1))
		})
	})
})
