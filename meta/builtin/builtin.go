package builtin

/*
 * HiveCatalog reads metadata through HiveServer2 and, when configured,
 * straight from the metastore backing database.
 */

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dstreev/hms-mirror-sub000/internal/dbconn"
	"github.com/dstreev/hms-mirror-sub000/meta/common"
	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/dstreev/hms-mirror-sub000/translator"
	"github.com/dstreev/hms-mirror-sub000/utils"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/pkg/errors"
)

type HiveCatalog struct {
	common.CatalogCommon
	Conns dbconn.ConnectionProvider
}

func NewHiveCatalog(conns dbconn.ConnectionProvider, settings common.CatalogCommon) *HiveCatalog {
	return &HiveCatalog{CatalogCommon: settings, Conns: conns}
}

func (h *HiveCatalog) selectStrings(ctx context.Context, env model.Environment, query string) ([]string, error) {
	conn, err := h.Conns.Acquire(ctx, env)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	gplog.Debug("[%v] Executing query: %v", env, query)
	results := make([]string, 0)
	if err = conn.Select(ctx, &results, query); err != nil {
		return nil, errors.Wrapf(err, "query was: %v", query)
	}
	return results, nil
}

func (h *HiveCatalog) ListDatabases(ctx context.Context, env model.Environment) ([]string, error) {
	return h.selectStrings(ctx, env, "SHOW DATABASES")
}

func (h *HiveCatalog) ListTables(ctx context.Context, env model.Environment, database string) ([]string, error) {
	tables, err := h.selectStrings(ctx, env, fmt.Sprintf("SHOW TABLES IN %s", utils.QuoteIdentifier(database)))
	if err != nil {
		return nil, err
	}
	sort.Strings(tables)
	return tables, nil
}

// DescribeDatabase returns the LOCATION, MANAGEDLOCATION and COMMENT of database.
func (h *HiveCatalog) DescribeDatabase(ctx context.Context, env model.Environment, database string) (map[string]string, error) {
	conn, err := h.Conns.Acquire(ctx, env)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query := fmt.Sprintf("DESCRIBE DATABASE EXTENDED %s", utils.QuoteIdentifier(database))
	gplog.Debug("[%v] Executing query: %v", env, query)
	rows, err := conn.QueryMaps(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "query was: %v", query)
	}
	if len(rows) == 0 {
		return nil, errors.Errorf("database %v was not found on %v", database, env)
	}
	results := make(map[string]string)
	for column, value := range rows[0] {
		switch strings.ToLower(column) {
		case "location":
			results[model.DB_LOCATION] = value
		case "managedlocation", "managed_location":
			results[model.DB_MANAGED_LOCATION] = value
		case "comment":
			results[model.DB_COMMENT] = value
		}
	}
	return results, nil
}

/*
 * FetchDefinition returns SHOW CREATE TABLE output, one line per element.
 * Some drivers return the statement as a single row, so rows are split again.
 */
func (h *HiveCatalog) FetchDefinition(ctx context.Context, env model.Environment, database, table string) ([]string, error) {
	rows, err := h.selectStrings(ctx, env, fmt.Sprintf("SHOW CREATE TABLE %s", utils.MakeFQN(database, table)))
	if err != nil {
		return nil, err
	}
	results := make([]string, 0, len(rows))
	for _, row := range rows {
		for _, line := range strings.Split(row, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			results = append(results, strings.TrimRight(line, " \r"))
		}
	}
	return results, nil
}

/*
 * FetchPartitions returns partition spec -> location. Without metastore
 * direct access only the specs are known, and the locations are assumed to
 * follow Hive's default layout under the table location.
 */
func (h *HiveCatalog) FetchPartitions(ctx context.Context, env model.Environment, database, table string) (map[string]string, error) {
	if h.HasMetastoreDirect(env) {
		return h.fetchPartitionLocations(ctx, env, database, table)
	}
	specs, err := h.selectStrings(ctx, env, fmt.Sprintf("SHOW PARTITIONS %s", utils.MakeFQN(database, table)))
	if err != nil {
		return nil, err
	}
	results := make(map[string]string, len(specs))
	if len(specs) == 0 {
		return results, nil
	}
	definition, err := h.FetchDefinition(ctx, env, database, table)
	if err != nil {
		return nil, err
	}
	tableLocation := model.GetLocation(definition)
	for _, spec := range specs {
		if tableLocation == "" {
			results[spec] = ""
			continue
		}
		results[spec] = translator.JoinPath(tableLocation, spec)
	}
	return results, nil
}
