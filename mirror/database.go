package mirror

import (
	"context"
	"fmt"

	"github.com/dstreev/hms-mirror-sub000/meta/builtin"
	"github.com/dstreev/hms-mirror-sub000/meta/common"
	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/dstreev/hms-mirror-sub000/translator"
	"github.com/dstreev/hms-mirror-sub000/utils"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/pkg/errors"
)

/*
 * BuildDatabaseSQL records the database level DDL. Copy strategies create
 * the TARGET database, STORAGE_MIGRATION points the SOURCE database at its
 * new location, DUMP writes the create statement for SOURCE.
 */
func BuildDatabaseSQL(ctx context.Context, s *Session, db *model.DBMirror) error {
	definition, err := s.Catalog.DescribeDatabase(ctx, model.SOURCE, db.Name)
	if err != nil {
		return errors.Wrapf(err, "describe database %v", db.Name)
	}
	source := db.Definition(model.SOURCE)
	for key, value := range definition {
		source[key] = value
	}

	switch s.Config.DataStrategy {
	case model.ACID_DOWNGRADE_INPLACE:
		return nil
	case model.STORAGE_MIGRATION:
		buildDatabaseRelocation(s, db)
		return nil
	case model.DUMP:
		db.AddSQL(model.SOURCE, "Create database", createDatabaseStatement(s, db, model.SOURCE))
		return nil
	}
	db.AddSQL(model.TARGET, "Create database", createDatabaseStatement(s, db, model.TARGET))
	return nil
}

// databaseLocations resolves the external and managed location of the migrated database, if a warehouse plan exists.
func databaseLocations(s *Session, database, targetName string) (string, string, bool) {
	wh, err := s.Translator.Warehouses().Resolve(database)
	if err != nil {
		return "", "", false
	}
	ns := s.Config.TargetNamespace()
	return ns + translator.JoinPath(wh.Root(model.EXTERNAL_TABLE), targetName+".db"),
		ns + translator.JoinPath(wh.Root(model.MANAGED_TABLE), targetName+".db"), true
}

func createDatabaseStatement(s *Session, db *model.DBMirror, env model.Environment) string {
	statement := "CREATE DATABASE IF NOT EXISTS " + utils.QuoteIdentifier(db.TargetName)
	if comment := db.Definition(model.SOURCE)[model.DB_COMMENT]; comment != "" {
		statement += " COMMENT " + common.QuoteLiteral(comment)
	}
	if !s.Config.DataStrategy.CopiesLocation() {
		return statement
	}
	external, managed, ok := databaseLocations(s, db.Name, db.TargetName)
	if !ok {
		return statement
	}
	statement += fmt.Sprintf(" LOCATION '%v'", external)
	legacy := s.Config.Cluster(env).LegacyHive || s.Conns.Version(env).IsLegacy()
	if !legacy {
		statement += fmt.Sprintf(" MANAGEDLOCATION '%v'", managed)
	}
	db.Definition(env)[model.DB_LOCATION] = external
	return statement
}

func buildDatabaseRelocation(s *Session, db *model.DBMirror) {
	if s.Config.Transfer.StorageMigration.SkipDatabaseLocationAdjustments {
		db.AddIssue(model.SOURCE, "Database location adjustments are skipped")
		return
	}
	external, managed, ok := databaseLocations(s, db.Name, db.Name)
	if !ok {
		db.AddIssue(model.SOURCE, "No warehouse plan for the database, its location was not changed")
		return
	}
	name := utils.QuoteIdentifier(db.Name)
	db.AddSQL(model.SOURCE, "Set database location", fmt.Sprintf("ALTER DATABASE %v SET LOCATION '%v'", name, external))
	legacy := s.Config.Cluster(model.SOURCE).LegacyHive || s.Conns.Version(model.SOURCE).IsLegacy()
	if !legacy {
		db.AddSQL(model.SOURCE, "Set database managed location", fmt.Sprintf("ALTER DATABASE %v SET MANAGEDLOCATION '%v'", name, managed))
	}
}

/*
 * ApplyDatabaseSQL runs the database DDL in order, one environment at a time.
 * Tables of the database must not be processed before it returns.
 */
func ApplyDatabaseSQL(ctx context.Context, s *Session, db *model.DBMirror) error {
	if s.Config.DataStrategy == model.DUMP {
		return nil
	}
	for _, env := range []model.Environment{model.SOURCE, model.TARGET} {
		pairs := db.SQL[env]
		if len(pairs) == 0 {
			continue
		}
		if s.DryRun() {
			for _, pair := range pairs {
				gplog.Info("[%v] %v would run: %v", env, db.Name, pair.Action)
			}
			continue
		}
		statements := make([]builtin.Statement, 0, len(pairs))
		for _, pair := range pairs {
			statements = append(statements, builtin.Statement{Database: db.Name, Description: pair.Description, SQL: pair.Action})
		}
		progressBar := utils.NewProgressBar(len(statements), fmt.Sprintf("%v database DDL on %v:", db.Name, env), utils.PB_NONE)
		if errs := builtin.ExecuteStatements(ctx, s.Conns, env, statements, progressBar, 1); len(errs) > 0 {
			for _, err := range errs {
				db.AddIssue(env, err.Error())
			}
			return errors.Wrapf(errs[0], "database %v on %v", db.Name, env)
		}
	}
	return nil
}
