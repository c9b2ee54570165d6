package workbook

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// MaxFormulaLength and MaxSheetNameLength bound UpdateCellRequest
const (
	MaxFormulaLength   = 500
	MaxSheetNameLength = 100
)

var requestValidate = validator.New()

// UpdateCellRequest is one edit of a cell. a non-blank Formula makes the
// cell calculated and Value is ignored.
type UpdateCellRequest struct {
	RowID     string          `json:"row_id" yaml:"row_id" validate:"required"`
	ColumnID  string          `json:"column_id" yaml:"column_id" validate:"required"`
	Value     decimal.Decimal `json:"value" yaml:"value"`
	Formula   string          `json:"formula,omitempty" yaml:"formula,omitempty" validate:"max=500"`
	SheetName string          `json:"sheet_name,omitempty" yaml:"sheet_name,omitempty" validate:"max=100"`
	CellType  string          `json:"cell_type,omitempty" yaml:"cell_type,omitempty" validate:"omitempty,oneof=number percentage currency text formula date"`
}

// Validate returns an *AppError wrapping ErrInvalidRequest listing every
// field that failed
func (r *UpdateCellRequest) Validate() error {
	normalized := *r
	normalized.CellType = strings.ToLower(r.CellType)

	err := requestValidate.Struct(&normalized)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return NewApplicationError(InvalidArgument, ErrInvalidRequest, err.Error())
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fieldMessage(fe))
	}
	return NewApplicationError(InvalidArgument, ErrInvalidRequest, strings.Join(messages, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "RowID":
		return "Row ID is required"
	case "ColumnID":
		return "Column ID is required"
	case "Formula":
		return fmt.Sprintf("Formula must not exceed %d characters", MaxFormulaLength)
	case "SheetName":
		return fmt.Sprintf("Sheet name must not exceed %d characters", MaxSheetNameLength)
	case "CellType":
		return "Cell type must be one of: number, percentage, currency, text, formula, date"
	}
	return fe.Error()
}
