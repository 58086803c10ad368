package translator

import (
	"sort"
	"sync"

	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/samber/lo"
	"github.com/scylladb/go-set/strset"
)

// SourceLocationIndex records database -> table type -> location -> table names as seen by the metadata scan.
type SourceLocationIndex struct {
	mu      sync.RWMutex
	entries map[string]map[model.TableType]map[string]*strset.Set
}

func NewSourceLocationIndex() *SourceLocationIndex {
	return &SourceLocationIndex{entries: make(map[string]map[model.TableType]map[string]*strset.Set)}
}

func (idx *SourceLocationIndex) Add(database string, tableType model.TableType, location, table string) {
	if location == "" {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	byType, ok := idx.entries[database]
	if !ok {
		byType = make(map[model.TableType]map[string]*strset.Set)
		idx.entries[database] = byType
	}
	byLocation, ok := byType[tableType]
	if !ok {
		byLocation = make(map[string]*strset.Set)
		byType[tableType] = byLocation
	}
	tables, ok := byLocation[location]
	if !ok {
		tables = strset.New()
		byLocation[location] = tables
	}
	tables.Add(table)
}

func (idx *SourceLocationIndex) Databases() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	dbs := lo.Keys(idx.entries)
	sort.Strings(dbs)
	return dbs
}

func (idx *SourceLocationIndex) Locations(database string, tableType model.TableType) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	locations := lo.Keys(idx.entries[database][tableType])
	sort.Strings(locations)
	return locations
}

func (idx *SourceLocationIndex) Tables(database string, tableType model.TableType, location string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	tables, ok := idx.entries[database][tableType][location]
	if !ok {
		return []string{}
	}
	results := tables.List()
	sort.Strings(results)
	return results
}

func (idx *SourceLocationIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	count := 0
	for _, byType := range idx.entries {
		for _, byLocation := range byType {
			count += len(byLocation)
		}
	}
	return count
}
