package formula

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// evalContext carries one evaluation: the canonical value map and the
// warnings collected so far
type evalContext struct {
	values       map[string]decimal.Decimal
	precision    int32
	maxRangeSize int
	functions    *BuiltInFunctions
	warnings     []Warning
}

func (ec *evalContext) lookup(ref string) (decimal.Decimal, bool) {
	v, ok := ec.values[ref]
	return v, ok
}

func (ec *evalContext) warn(code ErrorCode, pos int, format string, args ...any) {
	fe := newFormulaError(code, pos, format, args...)
	ec.warnings = append(ec.warnings, Warning{Code: fe.Code, Message: fe.Message, Position: fe.Position})
}

// absorb turns a soft failure into a warning
func (ec *evalContext) absorb(err error) {
	var fe *FormulaError
	if errors.As(err, &fe) {
		ec.warnings = append(ec.warnings, Warning{Code: fe.Code, Message: fe.Message, Position: fe.Position})
		return
	}
	ec.warnings = append(ec.warnings, Warning{Code: ErrorCodeValue, Message: err.Error()})
}

// evalOrZero evaluates a node and degrades any failure to zero
func (ec *evalContext) evalOrZero(node ASTNode) decimal.Decimal {
	v, err := node.Eval(ec)
	if err != nil {
		ec.absorb(err)
		return decimal.Zero
	}
	return v
}

// resolveArgs turns aggregate arguments into values. a range contributes
// its known members, a single reference its value when known, and any
// other expression its value when it evaluates cleanly.
func (ec *evalContext) resolveArgs(args []ASTNode) []decimal.Decimal {
	values := make([]decimal.Decimal, 0, len(args))
	for _, arg := range args {
		switch a := arg.(type) {
		case *RangeNode:
			if ec.maxRangeSize > 0 && a.Range.Len() > ec.maxRangeSize {
				ec.warn(ErrorCodeNum, a.Position.Start, "range %s has %d cells, the limit is %d", a.Text, a.Range.Len(), ec.maxRangeSize)
				continue
			}
			// missing members are skipped, not zero
			for ref := range a.Range.Iterate() {
				if v, ok := ec.lookup(ref); ok {
					values = append(values, v)
				}
			}
		case *CellRefNode:
			if v, ok := ec.lookup(a.Ref); ok {
				values = append(values, v)
			} else {
				ec.warn(ErrorCodeRef, a.Position.Start, "unknown reference %s skipped", a.Ref)
			}
		default:
			v, err := arg.Eval(ec)
			if err != nil {
				ec.absorb(err)
				continue
			}
			values = append(values, v)
		}
	}
	return values
}

// evalRoot evaluates the whole tree. decimal arithmetic panics when an
// exponent leaves the int32 range, that reads as a #NUM! soft failure.
func (ec *evalContext) evalRoot(node ASTNode) (value decimal.Decimal, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = decimal.Zero
			err = newFormulaError(ErrorCodeNum, node.GetPosition().Start, "numeric overflow: %s", fmt.Sprint(r))
		}
	}()
	return node.Eval(ec)
}

// canonicalValues re-keys a caller value map by canonical reference
func canonicalValues(values map[string]decimal.Decimal) map[string]decimal.Decimal {
	result := make(map[string]decimal.Decimal, len(values))
	for ref, v := range values {
		result[NormalizeReference(ref)] = v
	}
	return result
}

// evaluate runs one formula against an already canonical value map
func (e *Engine) evaluate(formula string, values map[string]decimal.Decimal) (Result, error) {
	node, err := ParseFormula(formula)
	if err != nil {
		evaluationsTotal.WithLabelValues(resultMalformed).Inc()
		e.logger.Debug("formula rejected", "formula", formula, "error", err)
		return Result{Value: decimal.Zero}, err
	}
	if node == nil {
		evaluationsTotal.WithLabelValues(resultOK).Inc()
		return Result{Value: decimal.Zero}, nil
	}

	ec := &evalContext{
		values:       values,
		precision:    e.precision,
		maxRangeSize: e.maxRangeSize,
		functions:    e.functions,
	}

	value, err := ec.evalRoot(node)
	if err != nil {
		// soft failure at the top level, the formula reads as zero
		ec.absorb(err)
		value = decimal.Zero
	}

	if len(ec.warnings) == 0 {
		evaluationsTotal.WithLabelValues(resultOK).Inc()
	} else {
		evaluationsTotal.WithLabelValues(resultSoftFail).Inc()
		for _, w := range ec.warnings {
			softFailuresTotal.WithLabelValues(w.Code.String()).Inc()
		}
		e.logger.Debug("formula evaluated with warnings",
			"formula", formula,
			"value", value.String(),
			"warnings", len(ec.warnings),
			"first", ec.warnings[0].String(),
		)
	}

	return Result{Value: value, Warnings: ec.warnings}, nil
}
