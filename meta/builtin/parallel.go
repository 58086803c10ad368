package builtin

/*
 * This file contains functions related to executing multiple SQL statements in parallel.
 */

import (
	"context"
	"strings"
	"sync"

	"github.com/dstreev/hms-mirror-sub000/internal/dbconn"
	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/dstreev/hms-mirror-sub000/utils"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/pkg/errors"
)

type Statement struct {
	Database    string
	Table       string
	Description string
	SQL         string
}

func executeStatementsForConn(ctx context.Context, conn *dbconn.Conn, statements chan Statement, recordError func(Statement, error), progressBar utils.ProgressBar, whichWorker int) {
	for statement := range statements {
		gplog.Debug("[Worker %v] %v: %v", whichWorker, statement.Description, statement.SQL)
		err := conn.Exec(ctx, statement.SQL)
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			gplog.Verbose("[Worker %v] Error encountered when executing statement: %s Error was: %s", whichWorker, strings.TrimSpace(statement.SQL), err.Error())
			recordError(statement, err)
		}
		progressBar.Increment()
	}
}

/*
 * ExecuteStatements runs statements on env with up to numWorkers leased
 * connections. With one worker the statements run in order. Failed
 * statements are returned, they do not stop the others.
 */
func ExecuteStatements(ctx context.Context, conns dbconn.ConnectionProvider, env model.Environment, statements []Statement, progressBar utils.ProgressBar, numWorkers int) []error {
	var workerPool sync.WaitGroup
	var mu sync.Mutex
	errs := make([]error, 0)
	recordError := func(statement Statement, err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, errors.Wrapf(err, "%v.%v: %v", statement.Database, statement.Table, statement.Description))
	}

	tasks := make(chan Statement, len(statements))
	for _, statement := range statements {
		tasks <- statement
	}
	close(tasks)

	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > len(statements) {
		numWorkers = len(statements)
	}
	gplog.Debug("ExecuteStatements, %d statements on %v with %d workers", len(statements), env, numWorkers)
	for i := 0; i < numWorkers; i++ {
		workerPool.Add(1)
		go func(whichWorker int) {
			defer workerPool.Done()
			conn, err := conns.Acquire(ctx, env)
			if err != nil {
				for statement := range tasks {
					recordError(statement, err)
					progressBar.Increment()
				}
				return
			}
			defer conn.Close()
			executeStatementsForConn(ctx, conn, tasks, recordError, progressBar, whichWorker)
		}(i)
	}
	workerPool.Wait()

	if len(errs) > 0 {
		gplog.Error("Encountered %d errors executing statements on %v; see log file %s for a list of failed statements.", len(errs), env, gplog.GetLogFilePath())
	}
	return errs
}
