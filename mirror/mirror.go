package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/dstreev/hms-mirror-sub000/meta"
	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/dstreev/hms-mirror-sub000/options"
	"github.com/dstreev/hms-mirror-sub000/translator"
	"github.com/dstreev/hms-mirror-sub000/utils"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

/*
 * We define and initialize flags separately to avoid import conflicts in tests.
 * The flag names and their defaults live in the options package.
 */

func initializeFlags(cmd *cobra.Command) {
	options.SetFlagDefaults(cmd.Flags())
	cmd.Flags().Bool("help", false, "Print help info and exit")
	cmd.Flags().Bool("version", false, "Print version number and exit")
	utils.SetCmdFlags(cmd.Flags())
}

// This function handles setup that can be done before parsing flags.
func DoInit(cmd *cobra.Command) {
	timestamp = utils.CurrentTimestamp()
	applicationName = "hms_mirror_" + timestamp

	gplog.SetLogFileNameFunc(logFileName)
	gplog.InitializeLogging("hms-mirror", "")

	utils.CleanupGroup = &sync.WaitGroup{}
	utils.CleanupGroup.Add(1)
	initializeFlags(cmd)
	utils.InitializeSignalHandler(DoCleanup, "mirror process", &utils.WasTerminated)
}

func logFileName(program, logdir string) string {
	return fmt.Sprintf("%v/%v.log", logdir, applicationName)
}

func DoFlagValidation(cmd *cobra.Command) {
	validateFlagCombinations(cmd.Flags())
}

// This function handles setup that must be done after parsing flags.
func DoSetup() {
	var err error

	SetLoggerVerbosity()

	gplog.Debug("I'm called with: [%s]", strings.Join(os.Args, " "))
	gplog.Info("Starting hms-mirror...")
	gplog.Info("Mirror Timestamp = %s", timestamp)

	config, err = options.LoadConfig(utils.MustGetFlagString(options.CONFIG))
	gplog.FatalOnError(err)
	gplog.FatalOnError(options.ApplyFlagOverrides(config, utils.CmdFlags))
	gplog.FatalOnError(config.PromptPasswords(options.TerminalPasswordReader))
	if config.OutputDirectory == "" {
		config.OutputDirectory, err = DefaultOutputDirectory()
		gplog.FatalOnError(err)
	}
	validateConfig(config)

	pools = establishConnections(config)
	session, err = NewSession(config, pools, meta.CreateCatalog(pools, config.CatalogCommon()), timestamp)
	gplog.FatalOnError(err)
	gplog.Info("Run id = %s, data strategy = %v, execute = %v", session.RunID, config.DataStrategy, config.Execute)

	if config.Translator.AutoGlobalLocationMap {
		gplog.FatalOnError(session.DeriveGlobalLocationMap(context.Background()))
	}
}

func DoMirror() {
	start := time.Now()
	report, err := Run(context.Background(), session)
	gplog.FatalOnError(err)
	gplog.Info("Run report written to %v", filepath.Join(RunDirectory(session), ReportFileName))
	gplog.Info("Processed %d database(s), total elapsed time: %v", len(report.Databases), time.Since(start))
}

/*
 * Run migrates every configured database, one after another, and leaves the
 * scripts, distcp plans, location map and report in the run directory.
 */
func Run(ctx context.Context, s *Session) (RunReport, error) {
	report := RunReport{
		RunID:        s.RunID,
		Timestamp:    s.Timestamp,
		DataStrategy: s.Config.DataStrategy,
		Execute:      s.Config.Execute,
		Databases:    make([]DatabaseReport, 0, len(s.Config.Databases)),
	}
	dir := RunDirectory(s)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return report, errors.Wrapf(err, "could not create output directory %v", dir)
	}
	fSucceeded = utils.OpenDataFile(filepath.Join(dir, SucceededFileName))
	fFailed = utils.OpenDataFile(filepath.Join(dir, FailedFileName))
	defer func() {
		utils.CloseDataFile(fSucceeded)
		utils.CloseDataFile(fFailed)
	}()

	failed := 0
	for _, name := range s.Config.Databases {
		if utils.WasTerminated {
			break
		}
		dbReport, err := runDatabase(ctx, s, name, dir)
		if err != nil {
			gplog.Error("Database %v failed: %v", name, err)
			failed++
		}
		if dbReport.Name != "" {
			report.Databases = append(report.Databases, dbReport)
		}
		if dbReport.Summary[model.ERROR] > 0 {
			failed++
		}
	}

	if err := WriteGlobalLocationMap(s, dir); err != nil {
		return report, err
	}
	if err := WriteRunReport(report, dir); err != nil {
		return report, err
	}
	if failed > 0 {
		gplog.SetErrorCode(1)
	}
	return report, nil
}

// RunDatabase migrates a single database, writing its artifacts into the run directory.
func RunDatabase(ctx context.Context, s *Session, name string) (DatabaseReport, error) {
	dir := RunDirectory(s)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return DatabaseReport{}, errors.Wrapf(err, "could not create output directory %v", dir)
	}
	return runDatabase(ctx, s, name, dir)
}

func runDatabase(ctx context.Context, s *Session, name, dir string) (DatabaseReport, error) {
	gplog.Info("Mirroring database %v with %v", name, s.Config.DataStrategy)
	db := model.NewDBMirror(name, s.Config.TargetDatabase(name))
	s.AddDatabase(db)

	if err := BuildDatabaseSQL(ctx, s, db); err != nil {
		return DatabaseReport{}, err
	}
	if err := DiscoverTables(ctx, s, db); err != nil {
		return NewDatabaseReport(db, nil), err
	}

	if err := ApplyDatabaseSQL(ctx, s, db); err != nil {
		failTables(db, err)
	} else {
		progressBar := utils.NewProgressBar(len(db.TableNames()), fmt.Sprintf("Tables of %v:", name), utils.ProgressBarMode())
		progressBar.Start()
		NewTransferOrchestrator(s, db, progressBar).WithDataFiles(fSucceeded, fFailed).Run(ctx)
	}

	var plans map[model.Environment]translator.DistcpPlan
	if s.Config.IsDistcp() {
		var err error
		if plans, err = WriteDistcpPlans(s, db, dir); err != nil {
			return NewDatabaseReport(db, nil), err
		}
	}
	if err := WriteDatabaseScripts(s, db, dir); err != nil {
		return NewDatabaseReport(db, plans), err
	}
	analyzeTables(ctx, s, db)

	report := NewDatabaseReport(db, plans)
	printDatabaseReport(report)
	return report, nil
}

// failTables moves every table of db to ERROR when its database DDL could not be applied.
func failTables(db *model.DBMirror, cause error) {
	for _, tbl := range db.SortedTables() {
		if tbl.PhaseState() == model.ERROR {
			continue
		}
		tbl.AddError(model.TARGET, fmt.Sprintf("database DDL failed: %v", cause))
		if tbl.PhaseState() == model.INIT {
			_ = tbl.SetPhaseState(model.CALCULATING_SQL)
		}
		_ = tbl.SetPhaseState(model.ERROR)
	}
}

func DoTeardown() {
	failed := false
	defer func() {
		DoCleanup(failed)

		errorCode := gplog.GetErrorCode()
		if errorCode == 0 {
			gplog.Info("Mirror completed successfully")
		}
		os.Exit(errorCode)
	}()

	errStr := ""
	if err := recover(); err != nil {
		// gplog's Fatal will cause a panic with error code 2
		if gplog.GetErrorCode() != 2 {
			gplog.Error(fmt.Sprintf("%v: %s", err, debug.Stack()))
			gplog.SetErrorCode(2)
		} else {
			errStr = fmt.Sprintf("%v", err)
		}
		failed = true
	}

	if utils.WasTerminated {
		/*
		 * Don't print an error if the run was canceled, as the signal handler will
		 * take care of cleanup and return codes. Just wait until the signal handler
		 * 's DoCleanup completes so the main goroutine doesn't exit while cleanup
		 * is still in progress.
		 */
		utils.CleanupGroup.Wait()
		failed = true
		return
	}

	if errStr != "" {
		fmt.Println(errStr)
	}
}

func DoCleanup(failed bool) {
	defer func() {
		if err := recover(); err != nil {
			gplog.Warn("Encountered error during cleanup: %v", err)
		}
		gplog.Verbose("Cleanup complete")
		utils.CleanupGroup.Done()
	}()

	gplog.Verbose("Beginning cleanup")

	if utils.WasTerminated && session != nil {
		gplog.Warn("Run %v was interrupted, SQL already applied is not rolled back", session.RunID)
	}

	if pools != nil {
		pools.Close()
	}
}
