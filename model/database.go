package model

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

const (
	DB_LOCATION         = "LOCATION"
	DB_MANAGED_LOCATION = "MANAGEDLOCATION"
	DB_COMMENT          = "COMMENT"
)

type DBMirror struct {
	Name        string                            `yaml:"name"`
	TargetName  string                            `yaml:"targetName"`
	Definitions map[Environment]map[string]string `yaml:"definitions"`
	SQL         map[Environment][]Pair            `yaml:"sql"`
	Issues      map[Environment][]string          `yaml:"issues"`
	Tables      map[string]*TableMirror           `yaml:"tables"`
	mu          sync.Mutex
}

func NewDBMirror(name, targetName string) *DBMirror {
	return &DBMirror{
		Name:        name,
		TargetName:  targetName,
		Definitions: make(map[Environment]map[string]string),
		SQL:         make(map[Environment][]Pair),
		Issues:      make(map[Environment][]string),
		Tables:      make(map[string]*TableMirror),
	}
}

func (db *DBMirror) AddTable(table *TableMirror) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.Tables[table.Name] = table
}

func (db *DBMirror) Table(name string) (*TableMirror, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.Tables[name]
	return t, ok
}

func (db *DBMirror) TableNames() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	names := lo.Keys(db.Tables)
	sort.Strings(names)
	return names
}

func (db *DBMirror) SortedTables() []*TableMirror {
	names := db.TableNames()
	results := make([]*TableMirror, 0, len(names))
	for _, name := range names {
		t, _ := db.Table(name)
		results = append(results, t)
	}
	return results
}

func (db *DBMirror) AddSQL(env Environment, description, action string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.SQL[env] = append(db.SQL[env], Pair{Description: description, Action: action})
}

func (db *DBMirror) AddIssue(env Environment, message string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.Issues[env] = append(db.Issues[env], message)
}

func (db *DBMirror) Definition(env Environment) map[string]string {
	db.mu.Lock()
	defer db.mu.Unlock()
	def, ok := db.Definitions[env]
	if !ok {
		def = make(map[string]string)
		db.Definitions[env] = def
	}
	return def
}

// PhaseSummary counts tables by their current phase.
func (db *DBMirror) PhaseSummary() map[PhaseState]int {
	summary := make(map[PhaseState]int)
	for _, t := range db.SortedTables() {
		summary[t.PhaseState()]++
	}
	return summary
}
