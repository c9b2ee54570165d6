package formula

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	if !dec(expected).Equal(actual) {
		assert.Fail(t, "decimal mismatch: expected "+expected+", got "+actual.String(), msgAndArgs...)
	}
}

// FormulaTestCase is a chainable scenario over a small set of cells. cells
// set with a formula get their cached value computed from the cells set
// before them.
type FormulaTestCase struct {
	t      *testing.T
	name   string
	engine *Engine
	cells  []Cell
	values map[string]decimal.Decimal
}

func NewFormulaTestCase(t *testing.T, name string) *FormulaTestCase {
	return &FormulaTestCase{
		t:      t,
		name:   name,
		engine: New(),
		values: make(map[string]decimal.Decimal),
	}
}

func (tc *FormulaTestCase) Set(ref string, value string) *FormulaTestCase {
	v := dec(value)
	tc.cells = append(tc.cells, StaticCell{Ref: ref, Value: v})
	tc.values[ref] = v
	return tc
}

func (tc *FormulaTestCase) SetFormula(ref string, formula string) *FormulaTestCase {
	v, err := tc.engine.Evaluate(formula, tc.values)
	require.NoError(tc.t, err, "%s: SetFormula(%s, %s)", tc.name, ref, formula)
	tc.cells = append(tc.cells, StaticCell{Ref: ref, Formula: formula, Value: v})
	tc.values[ref] = v
	return tc
}

func (tc *FormulaTestCase) Cells() []Cell {
	return tc.cells
}

func (tc *FormulaTestCase) AssertEval(formula string, expected string) *FormulaTestCase {
	tc.t.Helper()
	got, err := tc.engine.Evaluate(formula, tc.values)
	if assert.NoError(tc.t, err, "%s: Evaluate(%s)", tc.name, formula) {
		assertDecimal(tc.t, expected, got, "%s: Evaluate(%s)", tc.name, formula)
	}
	return tc
}

func (tc *FormulaTestCase) AssertWarning(formula string, code ErrorCode) *FormulaTestCase {
	tc.t.Helper()
	result, err := tc.engine.EvaluateDetailed(formula, tc.values)
	require.NoError(tc.t, err, "%s: EvaluateDetailed(%s)", tc.name, formula)

	codes := make([]ErrorCode, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(tc.t, codes, code, "%s: warnings of %s", tc.name, formula)
	return tc
}

func (tc *FormulaTestCase) AssertNoWarnings(formula string) *FormulaTestCase {
	tc.t.Helper()
	result, err := tc.engine.EvaluateDetailed(formula, tc.values)
	require.NoError(tc.t, err, "%s: EvaluateDetailed(%s)", tc.name, formula)
	assert.Empty(tc.t, result.Warnings, "%s: warnings of %s", tc.name, formula)
	return tc
}

func (tc *FormulaTestCase) AssertMalformed(formula string) *FormulaTestCase {
	tc.t.Helper()
	_, err := tc.engine.Evaluate(formula, tc.values)
	assert.True(tc.t, errors.Is(err, ErrMalformedFormula), "%s: expected %s to be malformed, got %v", tc.name, formula, err)
	return tc
}

func (tc *FormulaTestCase) AssertCycle(target, formula string, expected bool) *FormulaTestCase {
	tc.t.Helper()
	got := tc.engine.WouldCreateCircularDependency(target, formula, tc.cells)
	assert.Equal(tc.t, expected, got, "%s: WouldCreateCircularDependency(%s, %s)", tc.name, target, formula)
	return tc
}

func (tc *FormulaTestCase) AssertRecalc(ref string, newValue string, expected map[string]string) *FormulaTestCase {
	tc.t.Helper()
	var changed Cell = StaticCell{Ref: ref}
	for _, cell := range tc.cells {
		if cell.Reference() == ref {
			changed = cell
		}
	}

	got, err := tc.engine.RecalculateDependents(changed, dec(newValue), tc.cells)
	require.NoError(tc.t, err, "%s: RecalculateDependents(%s)", tc.name, ref)
	require.Len(tc.t, got, len(expected), "%s: RecalculateDependents(%s) = %v", tc.name, ref, got)
	for k, v := range expected {
		actual, ok := got[k]
		if assert.True(tc.t, ok, "%s: missing %s in %v", tc.name, k, got) {
			assertDecimal(tc.t, v, actual, "%s: value of %s", tc.name, k)
		}
	}
	return tc
}

func (tc *FormulaTestCase) AssertOrder(ref string, expected ...string) *FormulaTestCase {
	tc.t.Helper()
	cells := tc.engine.GetCellsToRecalculate(ref, tc.cells)
	refs := make([]string, 0, len(cells))
	for _, cell := range cells {
		refs = append(refs, cell.Reference())
	}
	if len(expected) == 0 {
		assert.Empty(tc.t, refs, "%s: GetCellsToRecalculate(%s)", tc.name, ref)
		return tc
	}
	assert.Equal(tc.t, expected, refs, "%s: GetCellsToRecalculate(%s)", tc.name, ref)
	return tc
}
