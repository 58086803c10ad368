package model

import (
	"fmt"
)

type PhaseState string

const (
	INIT                   PhaseState = "INIT"
	CALCULATING_SQL        PhaseState = "CALCULATING_SQL"
	CALCULATED_SQL         PhaseState = "CALCULATED_SQL"
	CALCULATED_SQL_WARNING PhaseState = "CALCULATED_SQL_WARNING"
	APPLYING_SQL           PhaseState = "APPLYING_SQL"
	PROCESSED              PhaseState = "PROCESSED"
	ERROR                  PhaseState = "ERROR"
)

/*
 * A table only ever moves forward through this graph. ERROR and PROCESSED are
 * terminal, CALCULATED_SQL_WARNING may still be applied when the run allows it.
 */
var phaseTransitions = map[PhaseState][]PhaseState{
	INIT:                   {CALCULATING_SQL},
	CALCULATING_SQL:        {CALCULATED_SQL, CALCULATED_SQL_WARNING, ERROR},
	CALCULATED_SQL:         {APPLYING_SQL},
	CALCULATED_SQL_WARNING: {APPLYING_SQL},
	APPLYING_SQL:           {PROCESSED, ERROR},
}

func (p PhaseState) CanTransitionTo(next PhaseState) bool {
	for _, allowed := range phaseTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (p PhaseState) IsTerminal() bool {
	return len(phaseTransitions[p]) == 0
}

func (p PhaseState) Built() bool {
	return p == CALCULATED_SQL || p == CALCULATED_SQL_WARNING
}

type PhaseTransitionError struct {
	Table string
	From  PhaseState
	To    PhaseState
}

func (e *PhaseTransitionError) Error() string {
	return fmt.Sprintf("table %v cannot move from phase %v to %v", e.Table, e.From, e.To)
}
