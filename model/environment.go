package model

import (
	"strings"

	"github.com/pkg/errors"
)

type Environment string

const (
	SOURCE   Environment = "SOURCE"
	TARGET   Environment = "TARGET"
	TRANSFER Environment = "TRANSFER"
	SHADOW   Environment = "SHADOW"
)

type TableType string

const (
	EXTERNAL_TABLE TableType = "EXTERNAL_TABLE"
	MANAGED_TABLE  TableType = "MANAGED_TABLE"
)

func ParseTableType(s string) (TableType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EXTERNAL", string(EXTERNAL_TABLE):
		return EXTERNAL_TABLE, nil
	case "MANAGED", string(MANAGED_TABLE):
		return MANAGED_TABLE, nil
	}
	return "", errors.Errorf("unknown table type \"%v\"", s)
}

type DataStrategy string

const (
	SCHEMA_ONLY            DataStrategy = "SCHEMA_ONLY"
	SQL                    DataStrategy = "SQL"
	EXPORT_IMPORT          DataStrategy = "EXPORT_IMPORT"
	HYBRID                 DataStrategy = "HYBRID"
	STORAGE_MIGRATION      DataStrategy = "STORAGE_MIGRATION"
	LINKED                 DataStrategy = "LINKED"
	COMMON                 DataStrategy = "COMMON"
	DUMP                   DataStrategy = "DUMP"
	CONVERT_LINKED         DataStrategy = "CONVERT_LINKED"
	ACID_DOWNGRADE_INPLACE DataStrategy = "ACID_DOWNGRADE_INPLACE"
)

var AllDataStrategies = []DataStrategy{
	SCHEMA_ONLY, SQL, EXPORT_IMPORT, HYBRID, STORAGE_MIGRATION,
	LINKED, COMMON, DUMP, CONVERT_LINKED, ACID_DOWNGRADE_INPLACE,
}

func ParseDataStrategy(s string) (DataStrategy, error) {
	candidate := DataStrategy(strings.ToUpper(strings.TrimSpace(s)))
	for _, ds := range AllDataStrategies {
		if ds == candidate {
			return ds, nil
		}
	}
	return "", errors.Errorf("unknown data strategy \"%v\"", s)
}

// CopiesLocation reports whether the strategy rewrites locations onto the
// target namespace. LINKED and COMMON point at the same physical bytes.
func (ds DataStrategy) CopiesLocation() bool {
	switch ds {
	case SCHEMA_ONLY, SQL, HYBRID, EXPORT_IMPORT, DUMP, STORAGE_MIGRATION, CONVERT_LINKED, ACID_DOWNGRADE_INPLACE:
		return true
	}
	return false
}

// InPlace strategies act on the SOURCE cluster only.
func (ds DataStrategy) InPlace() bool {
	return ds == STORAGE_MIGRATION || ds == DUMP || ds == ACID_DOWNGRADE_INPLACE
}

type DataMovementStrategy string

const (
	MovementSQL          DataMovementStrategy = "SQL"
	MovementDistcp       DataMovementStrategy = "DISTCP"
	MovementExportImport DataMovementStrategy = "EXPORT_IMPORT"
)

type DataFlow string

const (
	PULL DataFlow = "PULL"
	PUSH DataFlow = "PUSH"
)
