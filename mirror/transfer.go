package mirror

/*
 * TransferOrchestrator runs every table of one database through build and
 * execute on a bounded pool. A table's execute is only reached when its own
 * build allows it; failures never leave the table they happened in.
 */

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/dstreev/hms-mirror-sub000/internal/dbconn"
	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/dstreev/hms-mirror-sub000/translator"
	"github.com/dstreev/hms-mirror-sub000/utils"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
)

// Strategies whose data may be moved by distcp.
var distcpStrategies = map[model.DataStrategy]bool{
	model.SCHEMA_ONLY:       true,
	model.STORAGE_MIGRATION: true,
	model.CONVERT_LINKED:    true,
}

type TableResult struct {
	Table string
	Phase model.PhaseState
}

type TransferOrchestrator struct {
	session     *Session
	db          *model.DBMirror
	progressBar utils.ProgressBar
	succeeded   *os.File
	failed      *os.File
}

func NewTransferOrchestrator(s *Session, db *model.DBMirror, progressBar utils.ProgressBar) *TransferOrchestrator {
	if progressBar == nil {
		progressBar = utils.NewProgressBar(0, "", utils.PB_NONE)
	}
	return &TransferOrchestrator{session: s, db: db, progressBar: progressBar}
}

// WithDataFiles makes the orchestrator list finished tables, one FQN per line.
func (o *TransferOrchestrator) WithDataFiles(succeeded, failed *os.File) *TransferOrchestrator {
	o.succeeded = succeeded
	o.failed = failed
	return o
}

/*
 * Run returns once every table reached a resting phase. Reading the ledger
 * for distcp plans is only safe after Run returns.
 */
func (o *TransferOrchestrator) Run(ctx context.Context) []TableResult {
	tables := o.db.SortedTables()
	p := pool.NewWithResults[TableResult]().WithMaxGoroutines(o.session.Config.Concurrency)
	for _, tbl := range tables {
		tbl := tbl
		p.Go(func() TableResult {
			return o.processTable(ctx, tbl)
		})
	}
	results := p.Wait()
	o.progressBar.Finish()
	return results
}

func (o *TransferOrchestrator) processTable(ctx context.Context, tbl *model.TableMirror) (result TableResult) {
	tbl.Start = time.Now()
	defer func() {
		if r := recover(); r != nil {
			gplog.Error("Table %v panicked: %v\n%s", tbl.FQN(), r, debug.Stack())
			tbl.AddError(model.SOURCE, fmt.Sprintf("unexpected failure: %v", r))
			if tbl.PhaseState() == model.INIT {
				_ = tbl.SetPhaseState(model.CALCULATING_SQL)
			}
			if err := tbl.SetPhaseState(model.ERROR); err != nil {
				gplog.Warn("%v, forcing ERROR", err)
				tbl.ForceError()
			}
		}
		tbl.End = time.Now()
		result = TableResult{Table: tbl.Name, Phase: tbl.PhaseState()}
		o.record(tbl, result.Phase)
		o.progressBar.Increment()
	}()

	if utils.WasTerminated {
		gplog.Verbose("Run was terminated, skipping table %v", tbl.FQN())
		return
	}
	if o.build(ctx, tbl) {
		o.execute(ctx, tbl)
	}
	return
}

func (o *TransferOrchestrator) record(tbl *model.TableMirror, phase model.PhaseState) {
	var f *os.File
	switch phase {
	case model.PROCESSED, model.CALCULATED_SQL:
		f = o.succeeded
	case model.ERROR:
		f = o.failed
	}
	if f != nil {
		if err := utils.WriteDataFile(f, tbl.FQN()+"\n"); err != nil {
			gplog.Warn("Failed to record table %v: %v", tbl.FQN(), err)
		}
	}
}

/*
 * build moves the table from INIT to CALCULATED_SQL, CALCULATED_SQL_WARNING
 * or ERROR. It reports whether the table may be executed.
 */
func (o *TransferOrchestrator) build(ctx context.Context, tbl *model.TableMirror) bool {
	start := time.Now()
	defer tbl.RecordStage("build", start)

	if tbl.PhaseState() == model.INIT {
		if err := tbl.SetPhaseState(model.CALCULATING_SQL); err != nil {
			gplog.Error("%v", err)
			return false
		}
	}
	if tbl.PhaseState() != model.CALCULATING_SQL {
		return false
	}
	gplog.Verbose("Building table %v with %v", tbl.FQN(), tbl.Strategy)

	strategy, err := StrategyFor(tbl.Strategy)
	if err == nil {
		err = strategy.Build(ctx, o.session, tbl)
	}
	warned, err := o.absorbWarning(tbl, err)
	if err != nil {
		o.fail(tbl, err)
		return false
	}
	if o.session.Config.IsDistcp() && distcpStrategies[tbl.Strategy] {
		distcpWarned, err := o.absorbWarning(tbl, o.registerDistcp(tbl))
		if err != nil {
			o.fail(tbl, err)
			return false
		}
		warned = warned || distcpWarned
	}

	next := model.CALCULATED_SQL
	if warned {
		next = model.CALCULATED_SQL_WARNING
	}
	if err := tbl.SetPhaseState(next); err != nil {
		gplog.Error("%v", err)
		return false
	}
	gplog.Verbose("Table %v is %v", tbl.FQN(), next)
	return next == model.CALCULATED_SQL || o.session.Config.ApplyOnWarning
}

// absorbWarning records a ValidationWarning as an issue. Any other error is returned.
func (o *TransferOrchestrator) absorbWarning(tbl *model.TableMirror, err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	var warning *ValidationWarning
	if errors.As(err, &warning) {
		gplog.Warn("Table %v: %v", tbl.FQN(), warning.Message)
		tbl.AddIssue(warning.Environment, warning.Message)
		return true, nil
	}
	return false, err
}

func (o *TransferOrchestrator) fail(tbl *model.TableMirror, err error) {
	env := model.SOURCE
	var connErr *dbconn.ConnectivityError
	if errors.As(err, &connErr) {
		env = connErr.Environment
	}
	gplog.Error("Table %v failed: %v", tbl.FQN(), err)
	tbl.AddError(env, err.Error())
	if setErr := tbl.SetPhaseState(model.ERROR); setErr != nil {
		gplog.Error("%v", setErr)
	}
}

func (o *TransferOrchestrator) execute(ctx context.Context, tbl *model.TableMirror) {
	start := time.Now()
	defer tbl.RecordStage("execute", start)

	if err := tbl.SetPhaseState(model.APPLYING_SQL); err != nil {
		gplog.Error("%v", err)
		return
	}
	strategy, err := StrategyFor(tbl.Strategy)
	if err == nil {
		err = strategy.Execute(ctx, o.session, tbl)
	}
	if err != nil {
		o.fail(tbl, err)
		return
	}
	if err := tbl.SetPhaseState(model.PROCESSED); err != nil {
		gplog.Error("%v", err)
		return
	}
	gplog.Verbose("Table %v is %v", tbl.FQN(), model.PROCESSED)
}

type locationMove struct {
	original string
	target   string
	level    int
}

/*
 * registerDistcp appends the table's location moves to the ledger, under
 * the environment that will run the copy.
 */
func (o *TransferOrchestrator) registerDistcp(tbl *model.TableMirror) error {
	s := o.session
	source := tbl.Env(model.SOURCE)
	if model.IsView(source.Definition) {
		return nil
	}
	if source.IsACID() && !s.Config.MigrateACID.Downgrade {
		if tbl.Strategy == model.STORAGE_MIGRATION {
			return nil
		}
		return warn(model.TARGET, "distcp cannot move ACID data of a live transactional table, enable downgrade or use SQL")
	}
	moves, err := o.locationMoves(tbl)
	if err != nil {
		return err
	}
	ledger := s.Ledger()
	appendMove := func(env model.Environment, original, target string, level int) {
		ledger.Append(env, tbl.Database, translator.NewTranslationLevel(tbl.Database, original, target, level))
	}

	transfer := s.Config.Transfer
	switch {
	case transfer.IntermediateStorage != "":
		staging := translator.NormalizeNamespace(transfer.IntermediateStorage)
		for _, move := range moves {
			_, path := translator.SplitNamespace(move.target)
			appendMove(model.SOURCE, move.original, staging+path, move.level)
			appendMove(model.TARGET, staging+path, move.target, move.level)
		}
	case tbl.Strategy == model.STORAGE_MIGRATION,
		transfer.TargetNamespace != "" || transfer.CommonStorage != "",
		transfer.StorageMigration.DataFlow == model.PUSH:
		for _, move := range moves {
			appendMove(model.SOURCE, move.original, move.target, move.level)
		}
	default:
		for _, move := range moves {
			appendMove(model.TARGET, move.original, move.target, move.level)
		}
	}
	return nil
}

func (o *TransferOrchestrator) locationMoves(tbl *model.TableMirror) ([]locationMove, error) {
	source := tbl.Env(model.SOURCE)
	moves := make([]locationMove, 0, len(source.Partitions)+1)
	location := source.Location()
	if location == "" {
		return moves, nil
	}
	translated, err := o.session.Translator.TranslateTableLocation(tbl, location, 0, "")
	if err != nil {
		return nil, err
	}
	if translated.Target != location {
		moves = append(moves, locationMove{original: location, target: translated.Target})
	}
	// A partition can move while its table directory stays.
	for spec, partLocation := range source.Partitions {
		if partLocation == "" {
			continue
		}
		level := model.PartitionDepth(spec)
		translated, err := o.session.Translator.TranslateTableLocation(tbl, partLocation, level, spec)
		if err != nil {
			return nil, errors.Wrapf(err, "partition %v", spec)
		}
		if translated.Target == partLocation {
			continue
		}
		moves = append(moves, locationMove{original: partLocation, target: translated.Target, level: level})
	}
	return moves, nil
}
