package builtin

/*
 * This file contains the metastore direct queries. The metastore schema is
 * the same on MySQL and Postgres, but Postgres needs quoted identifiers.
 */

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dstreev/hms-mirror-sub000/internal/dbconn"
	"github.com/dstreev/hms-mirror-sub000/meta/common"
	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/dstreev/hms-mirror-sub000/translator"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/pkg/errors"
)

type TableLocation struct {
	TableName string         `db:"tbl_name"`
	TableType string         `db:"tbl_type"`
	Location  sql.NullString `db:"location"`
}

type PartitionLocation struct {
	TableName string         `db:"tbl_name"`
	TableType string         `db:"tbl_type"`
	PartName  string         `db:"part_name"`
	Location  sql.NullString `db:"location"`
}

// metastoreIdentifier quotes a metastore table or column name for the backend.
func metastoreIdentifier(metastoreType, name string) string {
	if metastoreType == dbconn.METASTORE_POSTGRES {
		return `"` + name + `"`
	}
	return name
}

// databaseFilter matches the database by name, within catalog when the metastore has catalogs.
func databaseFilter(metastoreType, catalog, database string) string {
	q := func(name string) string { return metastoreIdentifier(metastoreType, name) }
	filter := fmt.Sprintf("d.%s = %s", q("NAME"), common.QuoteLiteral(database))
	if catalog != "" {
		filter += fmt.Sprintf(" AND d.%s = %s", q("CTLG_NAME"), common.QuoteLiteral(catalog))
	}
	return filter
}

func tableLocationsQuery(metastoreType, catalog, database string) string {
	q := func(name string) string { return metastoreIdentifier(metastoreType, name) }
	return fmt.Sprintf(`
	SELECT t.%s AS tbl_name, t.%s AS tbl_type, s.%s AS location
	FROM %s d
		JOIN %s t ON d.%s = t.%s
		JOIN %s s ON t.%s = s.%s
	WHERE %s
		AND t.%s IN ('EXTERNAL_TABLE', 'MANAGED_TABLE')
	ORDER BY t.%s`,
		q("TBL_NAME"), q("TBL_TYPE"), q("LOCATION"),
		q("DBS"),
		q("TBLS"), q("DB_ID"), q("DB_ID"),
		q("SDS"), q("SD_ID"), q("SD_ID"),
		databaseFilter(metastoreType, catalog, database),
		q("TBL_TYPE"),
		q("TBL_NAME"))
}

func partitionLocationsQuery(metastoreType, catalog, database, table string) string {
	q := func(name string) string { return metastoreIdentifier(metastoreType, name) }
	tableFilter := ""
	if table != "" {
		tableFilter = fmt.Sprintf("\n\t\tAND t.%s = %s", q("TBL_NAME"), common.QuoteLiteral(table))
	}
	return fmt.Sprintf(`
	SELECT t.%s AS tbl_name, t.%s AS tbl_type, p.%s AS part_name, s.%s AS location
	FROM %s d
		JOIN %s t ON d.%s = t.%s
		JOIN %s p ON t.%s = p.%s
		JOIN %s s ON p.%s = s.%s
	WHERE %s%s
	ORDER BY t.%s, p.%s`,
		q("TBL_NAME"), q("TBL_TYPE"), q("PART_NAME"), q("LOCATION"),
		q("DBS"),
		q("TBLS"), q("DB_ID"), q("DB_ID"),
		q("PARTITIONS"), q("TBL_ID"), q("TBL_ID"),
		q("SDS"), q("SD_ID"), q("SD_ID"),
		databaseFilter(metastoreType, catalog, database), tableFilter,
		q("TBL_NAME"), q("PART_NAME"))
}

func (h *HiveCatalog) selectMetastore(ctx context.Context, env model.Environment, destination interface{}, query string) error {
	conn, err := h.Conns.AcquireMetastoreDirect(ctx, env)
	if err != nil {
		return err
	}
	defer conn.Close()

	gplog.Debug("[%v] Executing metastore query: %v", env, query)
	if err = conn.Select(ctx, destination, query); err != nil {
		return errors.Wrapf(err, "query was: %v", query)
	}
	return nil
}

func (h *HiveCatalog) fetchPartitionLocations(ctx context.Context, env model.Environment, database, table string) (map[string]string, error) {
	partitions := make([]PartitionLocation, 0)
	err := h.selectMetastore(ctx, env, &partitions, partitionLocationsQuery(h.MetastoreType(env), h.Catalog(env), database, table))
	if err != nil {
		return nil, err
	}
	results := make(map[string]string, len(partitions))
	for _, p := range partitions {
		results[p.PartName] = p.Location.String
	}
	return results, nil
}

/*
 * ScanLocations adds every table location of database to index. Partition
 * locations are added only when they live outside their table directory,
 * reduced to the level of a table directory.
 */
func (h *HiveCatalog) ScanLocations(ctx context.Context, env model.Environment, database string, index *translator.SourceLocationIndex) error {
	if !h.HasMetastoreDirect(env) {
		return errors.Errorf("scanning locations of %v requires metastore direct access on %v", database, env)
	}
	metastoreType := h.MetastoreType(env)
	catalog := h.Catalog(env)

	tables := make([]TableLocation, 0)
	if err := h.selectMetastore(ctx, env, &tables, tableLocationsQuery(metastoreType, catalog, database)); err != nil {
		return err
	}
	tableLocations := make(map[string]string, len(tables))
	for _, t := range tables {
		tableType, err := model.ParseTableType(t.TableType)
		if err != nil || !t.Location.Valid {
			continue
		}
		tableLocations[t.TableName] = t.Location.String
		index.Add(database, tableType, t.Location.String, t.TableName)
	}

	partitions := make([]PartitionLocation, 0)
	if err := h.selectMetastore(ctx, env, &partitions, partitionLocationsQuery(metastoreType, catalog, database, "")); err != nil {
		return err
	}
	outside := 0
	for _, p := range partitions {
		tableType, err := model.ParseTableType(p.TableType)
		if err != nil || !p.Location.Valid || p.Location.String == "" {
			continue
		}
		if tableLocation, ok := tableLocations[p.TableName]; ok && strings.HasPrefix(p.Location.String, tableLocation+"/") {
			continue
		}
		outside++
		index.Add(database, tableType, translator.ReduceURLBy(p.Location.String, model.PartitionDepth(p.PartName)), p.TableName)
	}
	gplog.Verbose("Scanned %d table and %d partition locations of %v on %v, %d partitions outside their table directory",
		len(tables), len(partitions), database, env, outside)
	return nil
}
