package formula

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/shopspring/decimal"
)

const (
	// DefaultDivisionPrecision is the number of decimal places kept by
	// division, percent and AVERAGE
	DefaultDivisionPrecision = 28

	// DefaultMaxFormulaLength is the formula length limit applied by
	// Engine.ValidateFormula
	DefaultMaxFormulaLength = 500

	// DefaultMaxRangeSize is the largest range that is expanded cell by
	// cell
	DefaultMaxRangeSize = 100_000
)

// Option is a functional option for configuring an Engine
type Option func(*Engine)

// WithLogger sets the logger used for evaluation and planning diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDivisionPrecision sets the number of decimal places kept by division
func WithDivisionPrecision(places int32) Option {
	return func(e *Engine) {
		if places > 0 {
			e.precision = places
		}
	}
}

// WithMaxFormulaLength sets the validation length limit. 0 disables it.
func WithMaxFormulaLength(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxFormulaLength = n
		}
	}
}

// WithMaxRangeSize limits how many cells a single range may cover. larger
// ranges fail validation, read as #NUM! inside aggregates and contribute
// only their bounds to the dependency graph. 0 lifts the limit.
func WithMaxRangeSize(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRangeSize = n
		}
	}
}

// Engine evaluates formulas and plans recalculation over caller supplied
// snapshots. it holds no state between calls and is safe for concurrent
// use.
type Engine struct {
	logger           *slog.Logger
	precision        int32
	maxFormulaLength int
	maxRangeSize     int
	functions        *BuiltInFunctions
}

// New creates an Engine with the given options.
//
// Default configuration:
//   - logger: discards everything
//   - division precision: 28 decimal places
//   - max formula length: 500 characters
//   - max range size: 100000 cells
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		precision:        DefaultDivisionPrecision,
		maxFormulaLength: DefaultMaxFormulaLength,
		maxRangeSize:     DefaultMaxRangeSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.functions = NewBuiltInFunctions(e.precision)
	return e
}

var defaultEngine = New()

// Evaluate evaluates a formula against a value map. keys are matched
// case-insensitively. soft failures read as zero; malformed formula text
// returns an *EvaluationError.
func (e *Engine) Evaluate(formula string, values map[string]decimal.Decimal) (decimal.Decimal, error) {
	result, err := e.EvaluateDetailed(formula, values)
	return result.Value, err
}

// EvaluateDetailed is Evaluate plus the warnings for every soft failure
// that was absorbed on the way
func (e *Engine) EvaluateDetailed(formula string, values map[string]decimal.Decimal) (Result, error) {
	return e.evaluate(formula, canonicalValues(values))
}

// ValidateFormula validates a formula, enforcing the engine's length limit
func (e *Engine) ValidateFormula(formula string) (bool, string) {
	return Validator{MaxLength: e.maxFormulaLength, MaxRangeSize: e.maxRangeSize}.Validate(formula)
}

// WouldCreateCircularDependency reports whether giving targetCell the
// formula newFormula would close a cycle in the graph formed by
// existingCells. it must be consulted before the formula is committed.
func (e *Engine) WouldCreateCircularDependency(targetCell, newFormula string, existingCells []Cell) bool {
	target := NormalizeReference(targetCell)
	deps := parseDependencies(newFormula, e.maxRangeSize)

	for _, dep := range deps {
		if dep == target {
			cycleChecksTotal.WithLabelValues(cycleFound).Inc()
			e.logger.Debug("formula references its own cell", "cell", target)
			return true
		}
	}

	dg := buildGraph(existingCells, e.maxRangeSize)
	dg.SetPrecedents(target, deps)

	if dg.HasCycleFrom(target) {
		cycleChecksTotal.WithLabelValues(cycleFound).Inc()
		e.logger.Debug("formula would create a cycle", "cell", target, "formula", newFormula)
		return true
	}
	cycleChecksTotal.WithLabelValues(cycleNotFound).Inc()
	return false
}

// GetCellsToRecalculate returns every cell downstream of changedRef in an
// order where each cell comes after all of its in-set inputs. the changed
// cell itself is not included.
func (e *Engine) GetCellsToRecalculate(changedRef string, allCells []Cell) []Cell {
	dg := buildGraph(allCells, e.maxRangeSize)
	root := NormalizeReference(changedRef)
	rootNode := dg.GetOrCreateNode(root)

	ordered, unordered := dg.CalculationOrder(rootNode.ID, dg.GetAllDependents(root))
	if len(unordered) > 0 {
		unorderedCellsTotal.Add(float64(len(unordered)))
		e.logger.Warn("dependents caught in a cycle, appending in discovery order",
			"cell", root,
			"count", len(unordered),
			"first", dg.nodes[unordered[0]].Ref,
		)
		ordered = append(ordered, unordered...)
	}

	// map graph nodes back to the caller's cells, the last cell wins on
	// duplicate references
	byRef := make(map[string]Cell, len(allCells))
	for _, cell := range allCells {
		byRef[NormalizeReference(cell.Reference())] = cell
	}

	result := make([]Cell, 0, len(ordered))
	for _, id := range ordered {
		ref, _ := dg.refs.GetReference(id)
		if cell, ok := byRef[ref]; ok {
			result = append(result, cell)
		}
	}
	return result
}

// Recalculation is a recalculated dependent and its new value
type Recalculation struct {
	Cell  Cell
	Value decimal.Decimal
}

// RecalculateDependents recomputes every cell downstream of changed after
// it takes newValue. the returned map is keyed by the cells' own
// references and includes the changed cell. a malformed dependent formula
// aborts the whole call.
func (e *Engine) RecalculateDependents(changed Cell, newValue decimal.Decimal, allCells []Cell) (map[string]decimal.Decimal, error) {
	recalculated, err := e.RecalculateInOrder(changed, newValue, allCells)
	if err != nil {
		return nil, err
	}

	result := make(map[string]decimal.Decimal, len(recalculated)+1)
	result[changed.Reference()] = newValue
	for _, r := range recalculated {
		result[r.Cell.Reference()] = r.Value
	}
	return result, nil
}

// RecalculateInOrder is RecalculateDependents returning the dependents in
// evaluation order, the order of GetCellsToRecalculate. the changed cell
// is not included.
func (e *Engine) RecalculateInOrder(changed Cell, newValue decimal.Decimal, allCells []Cell) ([]Recalculation, error) {
	changedRef := changed.Reference()
	if NormalizeReference(changedRef) == "" {
		return nil, ErrEmptyReference
	}

	// seed the running value map from cached values
	values := make(map[string]decimal.Decimal, len(allCells)+1)
	for _, cell := range allCells {
		values[NormalizeReference(cell.Reference())] = cell.CachedValue()
	}
	values[NormalizeReference(changedRef)] = newValue

	order := e.GetCellsToRecalculate(changedRef, allCells)
	recalculatedCells.Observe(float64(len(order)))

	result := make([]Recalculation, 0, len(order))
	for _, cell := range order {
		evaluated, err := e.evaluate(cell.FormulaText(), values)
		if err != nil {
			return nil, fmt.Errorf("failed to recalculate %s: %w", cell.Reference(), err)
		}
		values[NormalizeReference(cell.Reference())] = evaluated.Value
		result = append(result, Recalculation{Cell: cell, Value: evaluated.Value})
	}

	e.logger.Debug("recalculated dependents", "cell", changedRef, "count", len(order))
	return result, nil
}

// Evaluate evaluates a formula with the default engine
func Evaluate(formula string, values map[string]decimal.Decimal) (decimal.Decimal, error) {
	return defaultEngine.Evaluate(formula, values)
}

// EvaluateDetailed evaluates a formula with the default engine and
// returns the absorbed soft failures
func EvaluateDetailed(formula string, values map[string]decimal.Decimal) (Result, error) {
	return defaultEngine.EvaluateDetailed(formula, values)
}

// WouldCreateCircularDependency runs the cycle check with the default
// engine
func WouldCreateCircularDependency(targetCell, newFormula string, existingCells []Cell) bool {
	return defaultEngine.WouldCreateCircularDependency(targetCell, newFormula, existingCells)
}

// GetCellsToRecalculate plans recalculation with the default engine
func GetCellsToRecalculate(changedRef string, allCells []Cell) []Cell {
	return defaultEngine.GetCellsToRecalculate(changedRef, allCells)
}

// RecalculateDependents recalculates with the default engine
func RecalculateDependents(changed Cell, newValue decimal.Decimal, allCells []Cell) (map[string]decimal.Decimal, error) {
	return defaultEngine.RecalculateDependents(changed, newValue, allCells)
}

// RecalculateInOrder recalculates with the default engine
func RecalculateInOrder(changed Cell, newValue decimal.Decimal, allCells []Cell) ([]Recalculation, error) {
	return defaultEngine.RecalculateInOrder(changed, newValue, allCells)
}
