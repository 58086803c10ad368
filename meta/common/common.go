package common

import (
	"strings"

	"github.com/dstreev/hms-mirror-sub000/model"
)

type CatalogCommon struct {
	// MetastoreTypes holds MYSQL or POSTGRES per environment with metastore direct access.
	MetastoreTypes map[model.Environment]string
	// Catalogs holds the metastore catalog per environment. Legacy metastores have none.
	Catalogs map[model.Environment]string
}

const DEFAULT_CATALOG = "hive"

func (c CatalogCommon) MetastoreType(env model.Environment) string {
	if c.MetastoreTypes == nil {
		return ""
	}
	return strings.ToUpper(c.MetastoreTypes[env])
}

func (c CatalogCommon) Catalog(env model.Environment) string {
	if c.Catalogs == nil {
		return ""
	}
	return c.Catalogs[env]
}

func (c CatalogCommon) HasMetastoreDirect(env model.Environment) bool {
	return c.MetastoreType(env) != ""
}

// QuoteLiteral escapes value for use inside a single quoted SQL string.
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
