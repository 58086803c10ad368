package translator

import (
	"strings"

	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
)

type AutoGLMSettings struct {
	SourceNamespace    string
	ConsolidationLevel int
	Strict             bool

	// ConversionsPossible is set when managed tables may land as external ones on the target platform.
	ConversionsPossible bool

	// TargetDatabase maps a source database name to its target name. Nil keeps the name.
	TargetDatabase func(database string) string
}

func (s AutoGLMSettings) targetDatabase(database string) string {
	if s.TargetDatabase == nil {
		return database
	}
	return s.TargetDatabase(database)
}

/*
 * BuildGlobalLocationMap derives GLM entries from the observed locations.
 * Each location that is not already under its database's warehouse root is
 * reduced by the consolidation level and mapped to <root>/<db>.db. Errors
 * are collected per entry and do not stop the derivation.
 */
func BuildGlobalLocationMap(index *SourceLocationIndex, plans *WarehousePlanRegistry, settings AutoGLMSettings) (*GlobalLocationMap, []error) {
	glm := NewGlobalLocationMap()
	errs := make([]error, 0)
	for _, database := range index.Databases() {
		wh, err := plans.Resolve(database)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		dbDir := settings.targetDatabase(database) + ".db"
		externalRoot := JoinPath(wh.ExternalDirectory, dbDir)
		managedRoot := JoinPath(wh.ManagedDirectory, dbDir)

		for _, tableType := range []model.TableType{model.EXTERNAL_TABLE, model.MANAGED_TABLE} {
			root := strings.TrimSuffix(wh.Root(tableType), "/")
			for _, location := range index.Locations(database, tableType) {
				relative, err := StripNamespace(location, settings.SourceNamespace, settings.Strict)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if relative == root || strings.HasPrefix(relative, root+"/") {
					continue
				}
				reduced := ReduceURLBy(relative, settings.ConsolidationLevel)
				if tableType == model.EXTERNAL_TABLE {
					addDerived(glm, reduced, model.EXTERNAL_TABLE, externalRoot)
					continue
				}
				addDerived(glm, reduced, model.MANAGED_TABLE, managedRoot)
				if settings.ConversionsPossible {
					addDerived(glm, reduced, model.EXTERNAL_TABLE, externalRoot)
				}
			}
		}
	}
	return glm, errs
}

func addDerived(glm *GlobalLocationMap, prefix string, tableType model.TableType, target string) {
	if glm.Add(prefix, tableType, target) {
		gplog.Debug("Derived global location map entry %v (%v) -> %v", prefix, tableType, target)
		return
	}
	gplog.Warn("Location %v is shared by databases with different %v targets, keeping the first mapping", prefix, tableType)
}
