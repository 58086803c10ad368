package translator

import (
	"sort"
	"strings"
	"sync"

	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

type Warehouse struct {
	ExternalDirectory string `yaml:"externalDirectory"`
	ManagedDirectory  string `yaml:"managedDirectory"`
}

func (w Warehouse) IsEmpty() bool {
	return w.ExternalDirectory == "" && w.ManagedDirectory == ""
}

func (w Warehouse) Validate() error {
	if strings.TrimSpace(w.ExternalDirectory) == "" || strings.TrimSpace(w.ManagedDirectory) == "" {
		return errors.Errorf("warehouse plan requires both externalDirectory and managedDirectory")
	}
	if strings.TrimRight(w.ExternalDirectory, "/") == strings.TrimRight(w.ManagedDirectory, "/") {
		return errors.Errorf("warehouse externalDirectory and managedDirectory must differ, both are \"%v\"", w.ExternalDirectory)
	}
	return nil
}

func (w Warehouse) Root(tableType model.TableType) string {
	if tableType == model.EXTERNAL_TABLE {
		return strings.TrimRight(w.ExternalDirectory, "/")
	}
	return strings.TrimRight(w.ManagedDirectory, "/")
}

type WarehousePlanRegistry struct {
	mu       sync.RWMutex
	plans    map[string]Warehouse
	fallback *Warehouse
}

// NewWarehousePlanRegistry takes an optional run-wide warehouse used when a database has no plan.
func NewWarehousePlanRegistry(fallback *Warehouse) *WarehousePlanRegistry {
	r := &WarehousePlanRegistry{plans: make(map[string]Warehouse)}
	if fallback != nil && !fallback.IsEmpty() {
		wh := *fallback
		r.fallback = &wh
	}
	return r
}

func (r *WarehousePlanRegistry) Add(database string, wh Warehouse) error {
	if err := wh.Validate(); err != nil {
		return errors.Wrapf(err, "database %v", database)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[database] = wh
	return nil
}

func (r *WarehousePlanRegistry) Get(database string) (Warehouse, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wh, ok := r.plans[database]
	return wh, ok
}

// Resolve returns the database plan, then the fallback, then a MissingConfigurationError.
func (r *WarehousePlanRegistry) Resolve(database string) (Warehouse, error) {
	if wh, ok := r.Get(database); ok {
		return wh, nil
	}
	if r.fallback != nil {
		if err := r.fallback.Validate(); err != nil {
			return Warehouse{}, &MissingConfigurationError{Database: database, Reason: err.Error()}
		}
		return *r.fallback, nil
	}
	return Warehouse{}, &MissingConfigurationError{Database: database, Reason: "no warehouse plan defined"}
}

func (r *WarehousePlanRegistry) Databases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dbs := lo.Keys(r.plans)
	sort.Strings(dbs)
	return dbs
}
