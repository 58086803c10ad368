package translator

import (
	"sort"
	"sync"

	"github.com/dstreev/hms-mirror-sub000/model"
	"github.com/samber/lo"
	"github.com/scylladb/go-set/strset"
)

/*
 * TranslationLevel pairs an original and translated location. Level is the
 * number of trailing segments that belong to the object itself (partition
 * directories), so the adjusted locations always point at the table root.
 */
type TranslationLevel struct {
	Database         string `yaml:"database"`
	Original         string `yaml:"original"`
	Target           string `yaml:"target"`
	AdjustedOriginal string `yaml:"adjustedOriginal"`
	AdjustedTarget   string `yaml:"adjustedTarget"`
	Level            int    `yaml:"level"`
}

func NewTranslationLevel(database, original, target string, level int) TranslationLevel {
	return TranslationLevel{
		Database:         database,
		Original:         original,
		Target:           target,
		AdjustedOriginal: ReduceURLBy(original, level),
		AdjustedTarget:   ReduceURLBy(target, level),
		Level:            level,
	}
}

// TranslationLedger is append only. Appends from concurrent table workers are serialized.
type TranslationLedger struct {
	mu      sync.Mutex
	entries map[model.Environment]map[string][]TranslationLevel
}

func NewTranslationLedger() *TranslationLedger {
	return &TranslationLedger{entries: make(map[model.Environment]map[string][]TranslationLevel)}
}

func (l *TranslationLedger) Append(env model.Environment, database string, level TranslationLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byDatabase, ok := l.entries[env]
	if !ok {
		byDatabase = make(map[string][]TranslationLevel)
		l.entries[env] = byDatabase
	}
	byDatabase[database] = append(byDatabase[database], level)
}

func (l *TranslationLedger) Entries(env model.Environment, database string) []TranslationLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]TranslationLevel{}, l.entries[env][database]...)
}

func (l *TranslationLedger) Environments(database string) []model.Environment {
	l.mu.Lock()
	defer l.mu.Unlock()
	results := make([]model.Environment, 0)
	for env, byDatabase := range l.entries {
		if len(byDatabase[database]) > 0 {
			results = append(results, env)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	return results
}

func (l *TranslationLedger) Len(env model.Environment, database string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries[env][database])
}

// DistcpPlan maps a target directory to the source directories copied into it.
type DistcpPlan map[string]*strset.Set

func (p DistcpPlan) Targets() []string {
	targets := lo.Keys(p)
	sort.Strings(targets)
	return targets
}

func (p DistcpPlan) Sources(target string) []string {
	sources, ok := p[target]
	if !ok {
		return []string{}
	}
	results := sources.List()
	sort.Strings(results)
	return results
}

func (p DistcpPlan) ToMap() map[string][]string {
	results := make(map[string][]string, len(p))
	for _, target := range p.Targets() {
		results[target] = p.Sources(target)
	}
	return results
}

/*
 * BuildDistcpList groups the recorded translations of one database by the
 * target reduced by consolidationLevel segments. Sources are reduced one
 * level less, so each is a directory that distcp recreates under its key.
 * Call it only after every table of the database has been built.
 */
func (l *TranslationLedger) BuildDistcpList(database string, env model.Environment, consolidationLevel int) DistcpPlan {
	plan := make(DistcpPlan)
	sourceLevel := consolidationLevel - 1
	if sourceLevel < 0 {
		sourceLevel = 0
	}
	for _, tl := range l.Entries(env, database) {
		target := ReduceURLBy(tl.AdjustedTarget, consolidationLevel)
		source := ReduceURLBy(tl.AdjustedOriginal, sourceLevel)
		sources, ok := plan[target]
		if !ok {
			sources = strset.New()
			plan[target] = sources
		}
		sources.Add(source)
	}
	return plan
}
