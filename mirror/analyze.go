package mirror

import (
	"context"
	"fmt"

	"github.com/dstreev/hms-mirror-sub000/meta/builtin"
	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/dstreev/hms-mirror-sub000/utils"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
)

// analyzeTables computes statistics for the processed tables of db where they now live.
func analyzeTables(ctx context.Context, s *Session, db *model.DBMirror) []error {
	env := model.TARGET
	database := db.TargetName
	if s.Config.DataStrategy.InPlace() {
		env = model.SOURCE
		database = db.Name
	}
	if !s.Config.Optimization.AnalyzeTarget || s.DryRun() || s.Config.DataStrategy == model.DUMP {
		return nil
	}
	if s.Config.Cluster(env).EnableAutoTableStats {
		gplog.Verbose("Automatic table statistics are enabled on %v, skipping analyze of %v", env, database)
		return nil
	}

	statements := make([]builtin.Statement, 0)
	for _, tbl := range db.SortedTables() {
		if tbl.PhaseState() != model.PROCESSED || model.IsView(tbl.Env(model.SOURCE).Definition) {
			continue
		}
		query := fmt.Sprintf("ANALYZE TABLE %v COMPUTE STATISTICS", qualified(database, tbl.Name))
		if columns := partitionColumns(tbl); columns != "" {
			query = fmt.Sprintf("ANALYZE TABLE %v PARTITION (%v) COMPUTE STATISTICS", qualified(database, tbl.Name), columns)
		}
		statements = append(statements, builtin.Statement{Database: database, Table: tbl.Name, Description: "Analyze table", SQL: query})
	}
	if len(statements) == 0 {
		return nil
	}
	gplog.Info("Analyzing %d tables of database %v on %v", len(statements), database, env)
	progressBar := utils.NewProgressBar(len(statements), fmt.Sprintf("Analyzing %v:", database), utils.ProgressBarMode())
	errs := builtin.ExecuteStatements(ctx, s.Conns, env, statements, progressBar, s.Config.Concurrency)
	progressBar.Finish()
	for _, err := range errs {
		gplog.Error("Failed to analyze: %v", err)
	}
	gplog.Info("Finished analyzing database %v", database)
	return errs
}
