package workbook

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogtb/go-spreadsheet/packages/formula"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var fixedNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func num(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	planID   uuid.UUID
	store    *MemoryStore
	service  *Service
	recorder *tracetest.SpanRecorder
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	logs := &bytes.Buffer{}
	store := NewMemoryStore()
	opts = append([]ServiceOption{
		WithTracerProvider(tp),
		WithLogger(slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
		WithClock(func() time.Time { return fixedNow }),
	}, opts...)

	return &fixture{
		t:        t,
		ctx:      context.Background(),
		planID:   uuid.New(),
		store:    store,
		service:  NewService(store, opts...),
		recorder: recorder,
		logs:     logs,
	}
}

func (f *fixture) set(row, col, value string) []*Cell {
	f.t.Helper()
	cells, err := f.service.UpdateCell(f.ctx, f.planID, UpdateCellRequest{RowID: row, ColumnID: col, Value: num(value)})
	require.NoError(f.t, err)
	return cells
}

func (f *fixture) setFormula(row, col, text string) []*Cell {
	f.t.Helper()
	cells, err := f.service.UpdateCell(f.ctx, f.planID, UpdateCellRequest{RowID: row, ColumnID: col, Formula: text})
	require.NoError(f.t, err)
	return cells
}

func (f *fixture) value(row, col string) decimal.Decimal {
	f.t.Helper()
	cell, err := f.service.GetCell(f.ctx, f.planID, row, col)
	require.NoError(f.t, err)
	return cell.Value
}

func refsOf(cells []*Cell) []string {
	refs := make([]string, len(cells))
	for i, cell := range cells {
		refs[i] = cell.Reference()
	}
	return refs
}

func TestUpdateCellValue(t *testing.T) {
	f := newFixture(t)

	cells := f.set("revenue", "y1", "1000")
	require.Len(t, cells, 1)

	cell := cells[0]
	assert.Equal(t, "Main!revenue_y1", cell.Reference())
	assert.Equal(t, f.planID, cell.PlanID)
	assert.NotEqual(t, uuid.Nil, cell.ID)
	assert.Equal(t, DefaultCellType, cell.CellType)
	assert.False(t, cell.IsCalculated)
	assert.Equal(t, fixedNow, cell.CreatedAt)
	assert.Equal(t, fixedNow, cell.UpdatedAt)
	assert.True(t, num("1000").Equal(f.value("revenue", "y1")))

	// a second write keeps the identity of the cell
	again := f.set("revenue", "y1", "1200")
	assert.Equal(t, cell.ID, again[0].ID)
	assert.True(t, num("1200").Equal(f.value("revenue", "y1")))
}

func TestUpdateCellFormulaRecalculatesDependents(t *testing.T) {
	f := newFixture(t)

	f.set("revenue", "y1", "1000")
	f.set("growth", "rate", "10")
	cells := f.setFormula("revenue", "y2", "=Main!revenue_y1*(1+Main!growth_rate%)")
	require.Len(t, cells, 1)
	assert.True(t, cells[0].IsCalculated)
	assert.True(t, num("1100").Equal(cells[0].Value))

	f.setFormula("total", "all", "=SUM(Main!revenue_y1, Main!revenue_y2)")
	assert.True(t, num("2100").Equal(f.value("total", "all")))

	cells = f.set("revenue", "y1", "2000")
	assert.Equal(t, []string{"Main!revenue_y1", "Main!revenue_y2", "Main!total_all"}, refsOf(cells))
	assert.True(t, num("2200").Equal(f.value("revenue", "y2")))
	assert.True(t, num("4200").Equal(f.value("total", "all")))
	assert.Contains(t, f.logs.String(), "updated cell")
}

func TestUpdateCellReplacesFormulaWithValue(t *testing.T) {
	f := newFixture(t)

	f.set("a", "1", "2")
	f.setFormula("b", "1", "=Main!a_1*3")
	cells := f.set("b", "1", "5")

	assert.False(t, cells[0].IsCalculated)
	assert.Empty(t, cells[0].Formula)
	assert.True(t, num("5").Equal(f.value("b", "1")))

	// b no longer depends on a
	cells = f.set("a", "1", "10")
	assert.Len(t, cells, 1)
	assert.True(t, num("5").Equal(f.value("b", "1")))
}

func TestUpdateCellRejections(t *testing.T) {
	f := newFixture(t)

	f.setFormula("a", "1", "=Main!b_1")

	_, err := f.service.UpdateCell(f.ctx, f.planID, UpdateCellRequest{RowID: "b", ColumnID: "1", Formula: "=Main!a_1+1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircularDependency)
	assert.Equal(t, FailedPrecondition, CodeOf(err))
	assert.Equal(t, "This formula would create a circular dependency", err.Error())

	_, err = f.service.UpdateCell(f.ctx, f.planID, UpdateCellRequest{RowID: "b", ColumnID: "1", Formula: "=Main!b_1"})
	assert.ErrorIs(t, err, ErrCircularDependency)

	_, err = f.service.UpdateCell(f.ctx, f.planID, UpdateCellRequest{RowID: "b", ColumnID: "1", Formula: "=SUM(A1"})
	assert.ErrorIs(t, err, ErrInvalidFormula)
	assert.Equal(t, InvalidArgument, CodeOf(err))
	assert.Equal(t, "Unmatched opening parenthesis", err.Error())

	_, err = f.service.UpdateCell(f.ctx, f.planID, UpdateCellRequest{RowID: "b", ColumnID: "1", Formula: "=1+"})
	assert.ErrorIs(t, err, ErrInvalidFormula)
	assert.ErrorIs(t, err, formula.ErrMalformedFormula)

	// literals whose exponent would overflow decimal arithmetic
	_, err = f.service.UpdateCell(f.ctx, f.planID, UpdateCellRequest{RowID: "b", ColumnID: "1", Formula: "=1e2000000000*1e2000000000"})
	assert.ErrorIs(t, err, formula.ErrMalformedFormula)
	assert.Equal(t, InvalidArgument, CodeOf(err))

	_, err = f.service.UpdateCell(f.ctx, f.planID, UpdateCellRequest{RowID: "b", ColumnID: "1", Formula: "=SUM(A1:A2000000000)"})
	assert.ErrorIs(t, err, ErrInvalidFormula)
	assert.Equal(t, "Range A1:A2000000000 must not exceed 100000 cells", err.Error())

	// nothing was stored for the rejected edits
	_, err = f.service.GetCell(f.ctx, f.planID, "b", "1")
	assert.ErrorIs(t, err, ErrCellNotFound)
	assert.Equal(t, NotFound, CodeOf(err))
}

func TestUpdateCellLocked(t *testing.T) {
	f := newFixture(t)

	f.set("tax", "rate", "20")
	locked, err := f.service.SetLocked(f.ctx, f.planID, "tax", "rate", true)
	require.NoError(t, err)
	assert.True(t, locked.Locked)

	_, err = f.service.UpdateCell(f.ctx, f.planID, UpdateCellRequest{RowID: "tax", ColumnID: "rate", Value: num("25")})
	assert.ErrorIs(t, err, ErrCellLocked)
	assert.Equal(t, FailedPrecondition, CodeOf(err))
	assert.Equal(t, "This cell is locked and cannot be edited", err.Error())
	assert.True(t, num("20").Equal(f.value("tax", "rate")))

	_, err = f.service.SetLocked(f.ctx, f.planID, "tax", "rate", false)
	require.NoError(t, err)
	f.set("tax", "rate", "25")
	assert.True(t, num("25").Equal(f.value("tax", "rate")))

	_, err = f.service.SetLocked(f.ctx, f.planID, "missing", "cell", true)
	assert.ErrorIs(t, err, ErrCellNotFound)
}

func TestUpdateCellInvalidRequest(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		req     UpdateCellRequest
		message string
	}{
		{"missing row", UpdateCellRequest{ColumnID: "1"}, "Row ID is required"},
		{"missing column", UpdateCellRequest{RowID: "a"}, "Column ID is required"},
		{"long formula", UpdateCellRequest{RowID: "a", ColumnID: "1", Formula: "=" + strings.Repeat("1", 500)}, "Formula must not exceed 500 characters"},
		{"long sheet", UpdateCellRequest{RowID: "a", ColumnID: "1", SheetName: strings.Repeat("s", 101)}, "Sheet name must not exceed 100 characters"},
		{"bad type", UpdateCellRequest{RowID: "a", ColumnID: "1", CellType: "blob"}, "Cell type must be one of"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.UpdateCell(f.ctx, f.planID, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Equal(t, InvalidArgument, CodeOf(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	req := UpdateCellRequest{RowID: "a", ColumnID: "1", CellType: "Currency", SheetName: "Budget"}
	assert.NoError(t, req.Validate())
	cells, err := f.service.UpdateCell(f.ctx, f.planID, req)
	require.NoError(t, err)
	assert.Equal(t, "currency", cells[0].CellType)
	assert.Equal(t, "Budget!a_1", cells[0].Reference())
}

func TestUpdateCellSoftFailureWarnings(t *testing.T) {
	f := newFixture(t)

	cells := f.setFormula("ratio", "1", "=10/Main!missing_1")
	assert.True(t, cells[0].Value.IsZero())
	assert.Contains(t, f.logs.String(), "formula warning")
	assert.Contains(t, f.logs.String(), "#DIV/0!")
}

func TestUpdateCellTracing(t *testing.T) {
	f := newFixture(t)

	f.setFormula("a", "1", "=2*3")
	_, err := f.service.UpdateCell(f.ctx, f.planID, UpdateCellRequest{RowID: "a", ColumnID: "1", Formula: "=Main!a_1"})
	require.Error(t, err)

	spans := f.recorder.Ended()
	var updates []sdktrace.ReadOnlySpan
	for _, span := range spans {
		if span.Name() == "workbook.UpdateCell" {
			updates = append(updates, span)
		}
	}
	require.Len(t, updates, 2)
	assert.Equal(t, codes.Unset, updates[0].Status().Code)
	assert.Equal(t, codes.Error, updates[1].Status().Code)
	assert.NotEmpty(t, updates[1].Events(), "the error is recorded on the span")

	attrs := make(map[string]string)
	for _, kv := range updates[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, f.planID.String(), attrs["plan.id"])
	assert.Equal(t, "Main!a_1", attrs["cell.reference"])
	assert.Equal(t, "true", attrs["cell.has_formula"])
}

func TestUpdateCellCustomEngineAndSheet(t *testing.T) {
	engine := formula.New(formula.WithDivisionPrecision(2), formula.WithMaxFormulaLength(8))
	f := newFixture(t, WithEngine(engine), WithDefaultSheet("Budget"))

	cells := f.setFormula("third", "1", "=10/3")
	assert.Equal(t, "Budget!third_1", cells[0].Reference())
	assert.True(t, num("3.33").Equal(cells[0].Value))

	_, err := f.service.UpdateCell(f.ctx, f.planID, UpdateCellRequest{RowID: "x", ColumnID: "1", Formula: "=1+2+3+4+5"})
	assert.ErrorIs(t, err, ErrInvalidFormula)
}

func TestUpdateCellConcurrentWrites(t *testing.T) {
	f := newFixture(t)
	f.set("base", "1", "0")
	f.setFormula("double", "1", "=Main!base_1*2")

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.service.UpdateCell(f.ctx, f.planID, UpdateCellRequest{
				RowID:    "base",
				ColumnID: "1",
				Value:    decimal.NewFromInt(int64(i)),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	base := f.value("base", "1")
	assert.True(t, base.Mul(num("2")).Equal(f.value("double", "1")))
}

func TestUpdateCellCanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.service.UpdateCell(ctx, f.planID, UpdateCellRequest{RowID: "a", ColumnID: "1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, Internal, CodeOf(err))
}

func TestListCells(t *testing.T) {
	f := newFixture(t)
	f.set("b", "1", "2")
	f.set("a", "2", "1")
	f.set("a", "1", "3")

	cells, err := f.service.ListCells(f.ctx, f.planID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Main!a_1", "Main!a_2", "Main!b_1"}, refsOf(cells))

	// the store hands out copies
	cells[0].Value = num("99")
	assert.True(t, num("3").Equal(f.value("a", "1")))

	other, err := f.service.ListCells(f.ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestAppError(t *testing.T) {
	err := NewApplicationError(NotFound, ErrCellNotFound, "")
	assert.Equal(t, "cell not found", err.Error())
	assert.ErrorIs(t, err, ErrCellNotFound)
	assert.Equal(t, "NotFound", err.Code.String())
	assert.Equal(t, "AppErrorCode(42)", AppErrorCode(42).String())
	assert.Equal(t, OK, CodeOf(nil))
	assert.Equal(t, Internal, CodeOf(errors.New("boom")))

	// sentinels follow the error string convention, the message carries
	// the sentence shown to users
	locked := NewApplicationError(FailedPrecondition, ErrCellLocked, msgCellLocked)
	assert.Equal(t, "cell is locked", ErrCellLocked.Error())
	assert.Equal(t, "This cell is locked and cannot be edited", locked.Error())
	assert.ErrorIs(t, locked, ErrCellLocked)
	assert.Equal(t, "circular dependency", ErrCircularDependency.Error())
}
