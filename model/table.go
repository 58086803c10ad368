package model

import (
	"strings"
	"sync"
	"time"
)

type Pair struct {
	Description string `yaml:"description"`
	Action      string `yaml:"action"`
}

// IssueSink receives informational issues and hard errors for one table.
type IssueSink interface {
	AddIssue(env Environment, message string)
	AddError(env Environment, message string)
}

type EnvironmentTable struct {
	Name       string            `yaml:"name"`
	Exists     bool              `yaml:"exists"`
	Definition []string          `yaml:"definition,omitempty"`
	Partitions map[string]string `yaml:"partitions,omitempty"`
	SQL        []Pair            `yaml:"sql,omitempty"`
	CleanupSQL []Pair            `yaml:"cleanupSql,omitempty"`
	Issues     []string          `yaml:"issues,omitempty"`
	Errors     []string          `yaml:"errors,omitempty"`
	Statistics map[string]string `yaml:"statistics,omitempty"`
}

func NewEnvironmentTable(name string) *EnvironmentTable {
	return &EnvironmentTable{
		Name:       name,
		Partitions: make(map[string]string),
		Statistics: make(map[string]string),
	}
}

func (et *EnvironmentTable) AddSQL(description, action string) {
	et.SQL = append(et.SQL, Pair{Description: description, Action: action})
}

func (et *EnvironmentTable) AddCleanupSQL(description, action string) {
	et.CleanupSQL = append(et.CleanupSQL, Pair{Description: description, Action: action})
}

func (et *EnvironmentTable) IsExternal() bool {
	return IsExternal(et.Definition)
}

func (et *EnvironmentTable) IsACID() bool {
	return IsACID(et.Definition)
}

func (et *EnvironmentTable) Location() string {
	return GetLocation(et.Definition)
}

func (et *EnvironmentTable) TableType() TableType {
	if et.IsExternal() {
		return EXTERNAL_TABLE
	}
	return MANAGED_TABLE
}

func (et *EnvironmentTable) HasDefinition() bool {
	return len(et.Definition) > 0
}

/*
 * TableMirror is created when a table is discovered and is then owned by
 * exactly one worker at a time: discovery, then build, then execute.
 */
type TableMirror struct {
	Name           string                            `yaml:"name"`
	Database       string                            `yaml:"database"`
	TargetDatabase string                            `yaml:"targetDatabase"`
	Strategy       DataStrategy                      `yaml:"strategy"`
	ReMapped       bool                              `yaml:"reMapped"`
	Environments   map[Environment]*EnvironmentTable `yaml:"environments"`
	PhaseHistory   []PhaseState                      `yaml:"phaseHistory"`
	StageDuration  map[string]time.Duration          `yaml:"stageDuration"`
	Start          time.Time                         `yaml:"start"`
	End            time.Time                         `yaml:"end"`
	phaseState     PhaseState
	mu             sync.Mutex
}

func NewTableMirror(database, targetDatabase, name string, strategy DataStrategy) *TableMirror {
	return &TableMirror{
		Name:           name,
		Database:       database,
		TargetDatabase: targetDatabase,
		Strategy:       strategy,
		Environments:   make(map[Environment]*EnvironmentTable),
		StageDuration:  make(map[string]time.Duration),
		PhaseHistory:   []PhaseState{INIT},
		phaseState:     INIT,
	}
}

func (t *TableMirror) FQN() string {
	return t.Database + "." + t.Name
}

// Env returns the environment table, creating an empty one on first use.
func (t *TableMirror) Env(env Environment) *EnvironmentTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	et, ok := t.Environments[env]
	if !ok {
		et = NewEnvironmentTable(t.Name)
		t.Environments[env] = et
	}
	return et
}

// Lookup returns the environment table without creating it.
func (t *TableMirror) Lookup(env Environment) (*EnvironmentTable, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	et, ok := t.Environments[env]
	return et, ok
}

func (t *TableMirror) HasEnv(env Environment) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	et, ok := t.Environments[env]
	return ok && et.HasDefinition()
}

func (t *TableMirror) PhaseState() PhaseState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phaseState
}

func (t *TableMirror) SetPhaseState(next PhaseState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.phaseState.CanTransitionTo(next) {
		return &PhaseTransitionError{Table: t.Database + "." + t.Name, From: t.phaseState, To: next}
	}
	t.phaseState = next
	t.PhaseHistory = append(t.PhaseHistory, next)
	return nil
}

// ForceError moves the table to ERROR from any phase, bypassing the transition rules.
func (t *TableMirror) ForceError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phaseState == ERROR {
		return
	}
	t.phaseState = ERROR
	t.PhaseHistory = append(t.PhaseHistory, ERROR)
}

func (t *TableMirror) AddIssue(env Environment, message string) {
	et := t.Env(env)
	t.mu.Lock()
	defer t.mu.Unlock()
	et.Issues = append(et.Issues, message)
}

func (t *TableMirror) AddError(env Environment, message string) {
	et := t.Env(env)
	t.mu.Lock()
	defer t.mu.Unlock()
	et.Errors = append(et.Errors, message)
}

func (t *TableMirror) Issues() []string {
	return t.collect(func(et *EnvironmentTable) []string { return et.Issues })
}

func (t *TableMirror) Errors() []string {
	return t.collect(func(et *EnvironmentTable) []string { return et.Errors })
}

func (t *TableMirror) collect(pick func(et *EnvironmentTable) []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	results := make([]string, 0)
	for _, env := range []Environment{SOURCE, TARGET, TRANSFER, SHADOW} {
		if et, ok := t.Environments[env]; ok {
			for _, msg := range pick(et) {
				results = append(results, string(env)+": "+msg)
			}
		}
	}
	return results
}

func (t *TableMirror) HasIssue(fragment string) bool {
	for _, issue := range t.Issues() {
		if strings.Contains(issue, fragment) {
			return true
		}
	}
	return false
}

func (t *TableMirror) RecordStage(stage string, start time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.StageDuration[stage] = time.Since(start)
}

// TableType prefers the TARGET definition, falling back to SOURCE.
func (t *TableMirror) TableType() TableType {
	if t.HasEnv(TARGET) {
		return t.Env(TARGET).TableType()
	}
	return t.Env(SOURCE).TableType()
}
