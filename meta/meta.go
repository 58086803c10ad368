package meta

import (
	"context"

	"github.com/dstreev/hms-mirror-sub000/internal/dbconn"
	"github.com/dstreev/hms-mirror-sub000/meta/builtin"
	"github.com/dstreev/hms-mirror-sub000/meta/common"
	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/dstreev/hms-mirror-sub000/translator"
)

// CatalogScanner reads Hive metadata for one environment.
type CatalogScanner interface {
	ListDatabases(ctx context.Context, env model.Environment) ([]string, error)
	ListTables(ctx context.Context, env model.Environment, database string) ([]string, error)
	DescribeDatabase(ctx context.Context, env model.Environment, database string) (map[string]string, error)
	FetchDefinition(ctx context.Context, env model.Environment, database, table string) ([]string, error)
	FetchPartitions(ctx context.Context, env model.Environment, database, table string) (map[string]string, error)
	ScanLocations(ctx context.Context, env model.Environment, database string, index *translator.SourceLocationIndex) error
}

func CreateCatalog(conns dbconn.ConnectionProvider, settings common.CatalogCommon) CatalogScanner {
	return builtin.NewHiveCatalog(conns, settings)
}
