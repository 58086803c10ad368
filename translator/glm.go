package translator

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/greenplum-db/gp-common-go-libs/gplog"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type GlobalLocationMapEntry struct {
	SourcePrefix string
	Targets      map[model.TableType]string
}

/*
 * GlobalLocationMap is a prefix rewrite table. Entries are kept sorted by
 * descending prefix length, then by prefix, so the first literal prefix
 * match is the most specific one.
 */
type GlobalLocationMap struct {
	mu      sync.RWMutex
	entries []*GlobalLocationMapEntry
}

func NewGlobalLocationMap() *GlobalLocationMap {
	return &GlobalLocationMap{entries: make([]*GlobalLocationMapEntry, 0)}
}

// NewGlobalLocationMapFrom builds a map from the YAML form: prefix -> table type -> target root.
func NewGlobalLocationMapFrom(raw map[string]map[model.TableType]string) (*GlobalLocationMap, error) {
	glm := NewGlobalLocationMap()
	for prefix, targets := range raw {
		for tableType, target := range targets {
			if _, err := model.ParseTableType(string(tableType)); err != nil {
				return nil, errors.Wrapf(err, "global location map entry %v", prefix)
			}
			if !glm.Add(prefix, tableType, target) {
				return nil, errors.Errorf("global location map entry %v has conflicting %v targets", prefix, tableType)
			}
		}
	}
	return glm, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) > 1 {
		prefix = strings.TrimRight(prefix, "/")
	}
	return prefix
}

func (glm *GlobalLocationMap) sort() {
	sort.SliceStable(glm.entries, func(i, j int) bool {
		left, right := glm.entries[i].SourcePrefix, glm.entries[j].SourcePrefix
		if len(left) != len(right) {
			return len(left) > len(right)
		}
		return left < right
	})
}

/*
 * Add registers target for prefix and tableType. It returns false, leaving
 * the map untouched, when the prefix already maps that table type elsewhere.
 */
func (glm *GlobalLocationMap) Add(prefix string, tableType model.TableType, target string) bool {
	prefix = normalizePrefix(prefix)
	target = normalizePrefix(target)
	glm.mu.Lock()
	defer glm.mu.Unlock()
	for _, entry := range glm.entries {
		if entry.SourcePrefix != prefix {
			continue
		}
		if existing, ok := entry.Targets[tableType]; ok {
			return existing == target
		}
		entry.Targets[tableType] = target
		return true
	}
	glm.entries = append(glm.entries, &GlobalLocationMapEntry{
		SourcePrefix: prefix,
		Targets:      map[model.TableType]string{tableType: target},
	})
	glm.sort()
	return true
}

// Merge copies entries from other that do not collide with existing ones.
func (glm *GlobalLocationMap) Merge(other *GlobalLocationMap) {
	if other == nil {
		return
	}
	for _, entry := range other.Entries() {
		for tableType, target := range entry.Targets {
			if !glm.Add(entry.SourcePrefix, tableType, target) {
				gplog.Verbose("Keeping existing %v mapping for %v, ignoring %v", tableType, entry.SourcePrefix, target)
			}
		}
	}
}

func (glm *GlobalLocationMap) Resolve(relativePath string, external bool) (string, bool) {
	tableType := model.MANAGED_TABLE
	if external {
		tableType = model.EXTERNAL_TABLE
	}
	glm.mu.RLock()
	defer glm.mu.RUnlock()
	for _, entry := range glm.entries {
		if !strings.HasPrefix(relativePath, entry.SourcePrefix) {
			continue
		}
		target, ok := entry.Targets[tableType]
		if !ok {
			continue
		}
		return target + relativePath[len(entry.SourcePrefix):], true
	}
	return relativePath, false
}

func (glm *GlobalLocationMap) Len() int {
	glm.mu.RLock()
	defer glm.mu.RUnlock()
	return len(glm.entries)
}

// Entries returns a copy of the entries in precedence order.
func (glm *GlobalLocationMap) Entries() []GlobalLocationMapEntry {
	glm.mu.RLock()
	defer glm.mu.RUnlock()
	results := make([]GlobalLocationMapEntry, 0, len(glm.entries))
	for _, entry := range glm.entries {
		targets := make(map[model.TableType]string, len(entry.Targets))
		for k, v := range entry.Targets {
			targets[k] = v
		}
		results = append(results, GlobalLocationMapEntry{SourcePrefix: entry.SourcePrefix, Targets: targets})
	}
	return results
}

func (glm *GlobalLocationMap) ToMap() map[string]map[model.TableType]string {
	results := make(map[string]map[model.TableType]string)
	for _, entry := range glm.Entries() {
		results[entry.SourcePrefix] = entry.Targets
	}
	return results
}

func (glm *GlobalLocationMap) Save(filename string) error {
	contents, err := yaml.Marshal(glm.ToMap())
	if err != nil {
		return errors.Wrap(err, "could not marshal global location map")
	}
	if err = os.WriteFile(filename, contents, 0644); err != nil {
		return errors.Wrapf(err, "could not write global location map to %v", filename)
	}
	return nil
}

func LoadGlobalLocationMap(filename string) (*GlobalLocationMap, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read global location map %v", filename)
	}
	raw := make(map[string]map[model.TableType]string)
	if err = yaml.Unmarshal(contents, &raw); err != nil {
		return nil, errors.Wrapf(err, "could not parse global location map %v", filename)
	}
	return NewGlobalLocationMapFrom(raw)
}
