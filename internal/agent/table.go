package agent

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// ValueTable is a sparse action-value table. Rows are created on first
// touch and start at zero.
type ValueTable struct {
	width int
	rows  map[string][]float64
}

func NewValueTable(width int) *ValueTable {
	return &ValueTable{width: width, rows: make(map[string][]float64)}
}

func (t *ValueTable) Width() int {
	return t.width
}

func (t *ValueTable) Len() int {
	return len(t.rows)
}

func (t *ValueTable) Has(state string) bool {
	_, ok := t.rows[state]
	return ok
}

// Row returns the live row for state, creating it if needed.
func (t *ValueTable) Row(state string) []float64 {
	row, ok := t.rows[state]
	if !ok {
		row = make([]float64, t.width)
		t.rows[state] = row
	}
	return row
}

// Values returns a copy of the row for state without creating it.
func (t *ValueTable) Values(state string) ([]float64, bool) {
	row, ok := t.rows[state]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), row...), true
}

// States lists every addressed state in sorted order.
func (t *ValueTable) States() []string {
	states := make([]string, 0, len(t.rows))
	for state := range t.rows {
		states = append(states, state)
	}
	sort.Strings(states)
	return states
}

// MaskedArgmax returns the index of the largest value among allowed
// actions. Disallowed actions count as -Inf; ties go to the lowest index.
func MaskedArgmax(row []float64, allowed func(action int) bool) int {
	if len(row) == 0 {
		return 0
	}
	masked := make([]float64, len(row))
	for i, v := range row {
		if allowed != nil && !allowed(i) {
			masked[i] = math.Inf(-1)
			continue
		}
		masked[i] = v
	}
	return floats.MaxIdx(masked)
}

func maxValue(row []float64) float64 {
	if len(row) == 0 {
		return 0
	}
	return floats.Max(row)
}
