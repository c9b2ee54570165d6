package formula

import (
	"strings"

	"github.com/shopspring/decimal"
)

// maxRoundPlaces is the largest number of decimal places ROUND accepts
const maxRoundPlaces = 28

// reservedNames are the function names excluded from dependency scanning
var reservedNames = map[string]struct{}{
	"SUM":     {},
	"AVG":     {},
	"AVERAGE": {},
	"MIN":     {},
	"MAX":     {},
	"COUNT":   {},
	"ABS":     {},
	"ROUND":   {},
	"IF":      {},
}

// IsReservedName reports whether name is part of the function vocabulary
func IsReservedName(name string) bool {
	_, ok := reservedNames[strings.ToUpper(name)]
	return ok
}

// BuiltInFunctions contains the aggregate functions. every function
// receives the already-resolved numeric values of its arguments: ranges
// contribute their known members and unresolvable arguments contribute
// nothing.
type BuiltInFunctions struct {
	precision int32
}

// NewBuiltInFunctions creates a BuiltInFunctions dividing with the given
// number of decimal places
func NewBuiltInFunctions(precision int32) *BuiltInFunctions {
	return &BuiltInFunctions{precision: precision}
}

// Has reports whether name is a known function
func (bf *BuiltInFunctions) Has(name string) bool {
	return IsReservedName(name)
}

// Call invokes a built-in function by name with the given values
func (bf *BuiltInFunctions) Call(name string, values []decimal.Decimal) (decimal.Decimal, error) {
	switch strings.ToUpper(name) {
	case "SUM":
		return bf.SUM(values), nil
	case "AVG", "AVERAGE":
		return bf.AVERAGE(values), nil
	case "MIN":
		return bf.MIN(values), nil
	case "MAX":
		return bf.MAX(values), nil
	case "COUNT":
		return bf.COUNT(values), nil
	case "ABS":
		return bf.ABS(values), nil
	case "ROUND":
		return bf.ROUND(values)
	default:
		return decimal.Zero, newFormulaError(ErrorCodeName, 0, "unknown function %s", name)
	}
}

func (bf *BuiltInFunctions) SUM(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(values[0], values[1:]...)
}

func (bf *BuiltInFunctions) AVERAGE(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return bf.SUM(values).DivRound(decimal.NewFromInt(int64(len(values))), bf.precision)
}

func (bf *BuiltInFunctions) MIN(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Min(values[0], values[1:]...)
}

func (bf *BuiltInFunctions) MAX(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Max(values[0], values[1:]...)
}

func (bf *BuiltInFunctions) COUNT(values []decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(len(values)))
}

// ABS returns the absolute value of the first value
func (bf *BuiltInFunctions) ABS(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return values[0].Abs()
}

// ROUND rounds half to even. the second value, truncated toward zero, is
// the number of decimal places.
func (bf *BuiltInFunctions) ROUND(values []decimal.Decimal) (decimal.Decimal, error) {
	switch len(values) {
	case 0:
		return decimal.Zero, nil
	case 1:
		return values[0].RoundBank(0), nil
	}

	places := values[1].IntPart()
	if places < 0 || places > maxRoundPlaces {
		return decimal.Zero, newFormulaError(ErrorCodeNum, 0, "ROUND places must be between 0 and %d, got %d", maxRoundPlaces, places)
	}
	return values[0].RoundBank(int32(places)), nil
}
