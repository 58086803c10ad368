package translator

import (
	"fmt"
	"sort"

	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

type Settings struct {
	SourceNamespace        string
	TargetNamespace        string
	CommonStorage          string
	Strategy               model.DataStrategy
	ResetToDefaultLocation bool
	Strict                 bool
}

// EffectiveTargetNamespace applies the single precedence rule: common storage wins over the target namespace.
func (s Settings) EffectiveTargetNamespace() string {
	if NormalizeNamespace(s.CommonStorage) != "" {
		return NormalizeNamespace(s.CommonStorage)
	}
	return NormalizeNamespace(s.TargetNamespace)
}

type NamespaceTranslator struct {
	settings   Settings
	glm        *GlobalLocationMap
	warehouses *WarehousePlanRegistry
	ledger     *TranslationLedger
}

// NewNamespaceTranslator accepts nil collaborators and replaces them with empty ones.
func NewNamespaceTranslator(settings Settings, glm *GlobalLocationMap, warehouses *WarehousePlanRegistry, ledger *TranslationLedger) *NamespaceTranslator {
	if glm == nil {
		glm = NewGlobalLocationMap()
	}
	if warehouses == nil {
		warehouses = NewWarehousePlanRegistry(nil)
	}
	if ledger == nil {
		ledger = NewTranslationLedger()
	}
	return &NamespaceTranslator{settings: settings, glm: glm, warehouses: warehouses, ledger: ledger}
}

func (t *NamespaceTranslator) Settings() Settings {
	return t.settings
}

func (t *NamespaceTranslator) GlobalLocationMap() *GlobalLocationMap {
	return t.glm
}

func (t *NamespaceTranslator) Warehouses() *WarehousePlanRegistry {
	return t.warehouses
}

func (t *NamespaceTranslator) Ledger() *TranslationLedger {
	return t.ledger
}

func (t *NamespaceTranslator) strategyFor(tbl *model.TableMirror) model.DataStrategy {
	if tbl.Strategy != "" {
		return tbl.Strategy
	}
	return t.settings.Strategy
}

func targetDatabase(tbl *model.TableMirror) string {
	if tbl.TargetDatabase != "" {
		return tbl.TargetDatabase
	}
	return tbl.Database
}

/*
 * TranslateTableLocation computes where original lives after the migration.
 * Rules are tried in order: no-op strategies, the global location map, the
 * warehouse default location, then a plain namespace swap. The returned
 * record is not added to the ledger; callers append it when the location
 * takes part in a distcp plan.
 */
func (t *NamespaceTranslator) TranslateTableLocation(tbl *model.TableMirror, original string, level int, partitionSpec string) (TranslationLevel, error) {
	strategy := t.strategyFor(tbl)
	if !strategy.CopiesLocation() {
		return NewTranslationLevel(tbl.Database, original, original, level), nil
	}
	relativeDir, err := StripNamespace(original, t.settings.SourceNamespace, t.settings.Strict)
	if err != nil {
		return TranslationLevel{}, err
	}
	targetNamespace := t.settings.EffectiveTargetNamespace()

	if mapped, ok := t.glm.Resolve(relativeDir, tbl.TableType() == model.EXTERNAL_TABLE); ok {
		tbl.ReMapped = true
		target := targetNamespace + mapped
		gplog.Debug("Table %v location %v remapped to %v", tbl.FQN(), original, target)
		return NewTranslationLevel(tbl.Database, original, target, level), nil
	}

	if t.settings.ResetToDefaultLocation {
		wh, err := t.warehouses.Resolve(tbl.Database)
		if err != nil {
			var missing *MissingConfigurationError
			if errors.As(err, &missing) {
				missing.Table = tbl.Name
			}
			return TranslationLevel{}, err
		}
		target := targetNamespace + JoinPath(wh.Root(tbl.TableType()), targetDatabase(tbl)+".db", tbl.Name, partitionSpec)
		gplog.Debug("Table %v location %v reset to %v", tbl.FQN(), original, target)
		return NewTranslationLevel(tbl.Database, original, target, level), nil
	}

	if strategy == model.STORAGE_MIGRATION && SameNamespace(t.settings.SourceNamespace, targetNamespace) {
		return TranslationLevel{}, &MissingConfigurationError{
			Database: tbl.Database,
			Table:    tbl.Name,
			Reason: fmt.Sprintf("storage migration of %v would not move the data: the namespaces match, "+
				"no global location map entry applies and reset to default location is off", original),
		}
	}

	target := targetNamespace + relativeDir
	gplog.Debug("Table %v location %v translated to %v", tbl.FQN(), original, target)
	return NewTranslationLevel(tbl.Database, original, target, level), nil
}

/*
 * TranslatePartitionLocations fills the TARGET partition map from the SOURCE
 * one. Partitions without a location are skipped and counted.
 */
func (t *NamespaceTranslator) TranslatePartitionLocations(tbl *model.TableMirror, level int) (int, error) {
	source := tbl.Env(model.SOURCE)
	target := tbl.Env(model.TARGET)
	specs := lo.Keys(source.Partitions)
	sort.Strings(specs)
	warnings := 0
	for _, spec := range specs {
		location := source.Partitions[spec]
		if location == "" {
			warnings++
			tbl.AddIssue(model.SOURCE, fmt.Sprintf("Partition %v has no location and was skipped", spec))
			continue
		}
		translated, err := t.TranslateTableLocation(tbl, location, level+model.PartitionDepth(spec), spec)
		if err != nil {
			return warnings, errors.Wrapf(err, "partition %v", spec)
		}
		target.Partitions[spec] = translated.Target
	}
	return warnings, nil
}
