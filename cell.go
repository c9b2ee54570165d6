package formula

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorCode represents standard spreadsheet error codes following
// Excel conventions. the engine never returns these as values, they label
// the soft failures that were absorbed into a zero result.
type ErrorCode uint8

const (
	ErrorCodeDiv0  ErrorCode = 2 // #DIV/0! - division or modulo by zero
	ErrorCodeValue ErrorCode = 3 // #VALUE! - range used where a single value is expected
	ErrorCodeRef   ErrorCode = 4 // #REF! - reference with no known value
	ErrorCodeName  ErrorCode = 5 // #NAME? - unrecognized function name
	ErrorCodeNum   ErrorCode = 6 // #NUM! - number out of the supported range
	ErrorCodeNA    ErrorCode = 7 // #N/A - wrong number of arguments for function
)

// ErrorMapper maps error codes to their display strings
var ErrorMapper = map[ErrorCode]string{
	ErrorCodeDiv0:  "#DIV/0!",
	ErrorCodeValue: "#VALUE!",
	ErrorCodeRef:   "#REF!",
	ErrorCodeName:  "#NAME?",
	ErrorCodeNum:   "#NUM!",
	ErrorCodeNA:    "#N/A",
}

func (c ErrorCode) String() string {
	if s, ok := ErrorMapper[c]; ok {
		return s
	}
	return fmt.Sprintf("ErrorCode(%d)", uint8(c))
}

// FormulaError is a soft evaluation failure. it travels up the tree like a
// normal error until something absorbs it: an aggregate drops the
// argument, an IF condition treats the side as zero, and the top level
// turns it into a zero result plus a warning.
type FormulaError struct {
	Code     ErrorCode
	Message  string
	Position int
}

func (e *FormulaError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.String()
}

func newFormulaError(code ErrorCode, pos int, format string, args ...any) *FormulaError {
	return &FormulaError{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Position: pos,
	}
}

// Warning records a soft failure that was absorbed during evaluation
type Warning struct {
	Code     ErrorCode
	Message  string
	Position int
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %s (at %d)", w.Code, w.Message, w.Position)
}

// Result is the outcome of a detailed evaluation
type Result struct {
	Value    decimal.Decimal
	Warnings []Warning
}

// Cell is the view of a stored cell the engine needs for graph operations.
// the reference is the stable key used throughout the dependency graph.
type Cell interface {
	Reference() string
	FormulaText() string
	CachedValue() decimal.Decimal
}

// StaticCell is a plain value implementation of Cell
type StaticCell struct {
	Ref     string          `yaml:"ref" json:"ref"`
	Formula string          `yaml:"formula,omitempty" json:"formula,omitempty"`
	Value   decimal.Decimal `yaml:"value" json:"value"`
}

func (c StaticCell) Reference() string            { return c.Ref }
func (c StaticCell) FormulaText() string          { return c.Formula }
func (c StaticCell) CachedValue() decimal.Decimal { return c.Value }

// HasFormula reports whether the cell carries formula text
func HasFormula(c Cell) bool {
	return stripFormulaPrefix(c.FormulaText()) != ""
}
