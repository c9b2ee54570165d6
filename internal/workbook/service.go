package workbook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vogtb/go-spreadsheet/packages/formula"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName       = "formula.workbook"
	DefaultSheetName = "Main"
)

// ServiceOption is a functional option for configuring a Service
type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) ServiceOption {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

func WithEngine(engine *formula.Engine) ServiceOption {
	return func(s *Service) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// WithClock replaces time.Now for timestamps
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultSheet sets the sheet of cells created without one
func WithDefaultSheet(name string) ServiceOption {
	return func(s *Service) {
		if name != "" {
			s.defaultSheet = name
		}
	}
}

// Service applies cell edits to the plans of a Store. edits of the same
// plan are serialized; the engine only ever sees a consistent snapshot.
type Service struct {
	store        Store
	engine       *formula.Engine
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time
	defaultSheet string

	mu        sync.Mutex
	planLocks map[uuid.UUID]*sync.Mutex
}

// NewService creates a Service over store.
//
// Default configuration:
//   - engine: formula.New()
//   - logger: discards everything
//   - tracer: the global otel tracer provider
//   - clock: time.Now in UTC
//   - default sheet: Main
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:        store,
		engine:       formula.New(),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:       otel.Tracer(tracerName),
		now:          func() time.Time { return time.Now().UTC() },
		defaultSheet: DefaultSheetName,
		planLocks:    make(map[uuid.UUID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) lockPlan(planID uuid.UUID) func() {
	s.mu.Lock()
	lock, ok := s.planLocks[planID]
	if !ok {
		lock = &sync.Mutex{}
		s.planLocks[planID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// UpdateCell writes a value or a formula into a cell and recalculates
// everything that depends on it. the returned cells are the edited cell
// followed by its dependents in evaluation order, all already persisted.
func (s *Service) UpdateCell(ctx context.Context, planID uuid.UUID, req UpdateCellRequest) (cells []*Cell, err error) {
	ctx, span := s.tracer.Start(ctx, "workbook.UpdateCell",
		trace.WithAttributes(
			attribute.String("plan.id", planID.String()),
			attribute.String("cell.row_id", req.RowID),
			attribute.String("cell.column_id", req.ColumnID),
			attribute.Bool("cell.has_formula", strings.TrimSpace(req.Formula) != ""),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	unlock := s.lockPlan(planID)
	defer unlock()

	all, err := s.store.List(ctx, planID)
	if err != nil {
		return nil, NewApplicationError(Internal, err, fmt.Sprintf("failed to load cells of plan %s: %v", planID, err))
	}

	cell, isNew := s.getOrCreate(planID, req, all)
	if cell.Locked {
		s.logger.Info("rejected edit of locked cell", "plan", planID, "cell", cell.Reference())
		return nil, NewApplicationError(FailedPrecondition, ErrCellLocked, msgCellLocked)
	}
	if isNew {
		all = append(all, cell)
	}
	span.SetAttributes(attribute.String("cell.reference", cell.Reference()))

	if err := s.apply(ctx, cell, req, all); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	changed, err := s.recalculate(cell, all)
	if err != nil {
		return nil, err
	}

	if err := s.store.SaveAll(ctx, changed); err != nil {
		return nil, NewApplicationError(Internal, err, fmt.Sprintf("failed to save cells: %v", err))
	}

	span.SetAttributes(attribute.Int("cell.dependents", len(changed)-1))
	s.logger.Info("updated cell",
		"plan", planID,
		"cell", cell.Reference(),
		"dependents", len(changed)-1,
	)
	return changed, nil
}

func (s *Service) getOrCreate(planID uuid.UUID, req UpdateCellRequest, all []*Cell) (*Cell, bool) {
	for _, cell := range all {
		if cell.RowID == req.RowID && cell.ColumnID == req.ColumnID {
			if req.CellType != "" {
				cell.CellType = strings.ToLower(req.CellType)
			}
			return cell, false
		}
	}

	sheet := req.SheetName
	if sheet == "" {
		sheet = s.defaultSheet
	}
	cellType := strings.ToLower(req.CellType)
	if cellType == "" {
		cellType = DefaultCellType
	}

	return &Cell{
		ID:        uuid.New(),
		PlanID:    planID,
		SheetName: sheet,
		RowID:     req.RowID,
		ColumnID:  req.ColumnID,
		CellType:  cellType,
		CreatedAt: s.now(),
	}, true
}

// apply puts the requested formula or value into cell. formulas are
// validated, cycle-checked and evaluated against the current values first.
func (s *Service) apply(ctx context.Context, cell *Cell, req UpdateCellRequest, all []*Cell) error {
	cell.UpdatedAt = s.now()

	if strings.TrimSpace(req.Formula) == "" {
		cell.Formula = ""
		cell.IsCalculated = false
		cell.Value = req.Value
		return nil
	}

	_, span := s.tracer.Start(ctx, "workbook.checkFormula")
	defer span.End()

	if valid, message := s.engine.ValidateFormula(req.Formula); !valid {
		span.SetStatus(codes.Error, message)
		return NewApplicationError(InvalidArgument, ErrInvalidFormula, message)
	}

	if s.engine.WouldCreateCircularDependency(cell.Reference(), req.Formula, formulaCells(all)) {
		span.SetStatus(codes.Error, msgCircularDependency)
		return NewApplicationError(FailedPrecondition, ErrCircularDependency, msgCircularDependency)
	}

	result, err := s.engine.EvaluateDetailed(req.Formula, valueMap(all))
	if err != nil {
		span.RecordError(err)
		return &AppError{Code: InvalidArgument, Message: err.Error(), Err: errors.Join(ErrInvalidFormula, err)}
	}
	for _, w := range result.Warnings {
		s.logger.Debug("formula warning", "cell", cell.Reference(), "warning", w.String())
	}

	cell.Formula = req.Formula
	cell.IsCalculated = true
	cell.Value = result.Value
	return nil
}

// recalculate returns cell followed by every dependent with its new value
func (s *Service) recalculate(cell *Cell, all []*Cell) ([]*Cell, error) {
	recalculated, err := s.engine.RecalculateInOrder(cell, cell.Value, formulaCells(all))
	if err != nil {
		return nil, NewApplicationError(Internal, err, err.Error())
	}

	changed := []*Cell{cell}
	now := s.now()
	for _, r := range recalculated {
		dep := r.Cell.(*Cell)
		if dep.ID == cell.ID {
			continue
		}
		dep.Value = r.Value
		dep.UpdatedAt = now
		changed = append(changed, dep)
	}
	return changed, nil
}

// GetCell returns a cell of a plan
func (s *Service) GetCell(ctx context.Context, planID uuid.UUID, rowID, columnID string) (*Cell, error) {
	cell, err := s.store.Find(ctx, planID, rowID, columnID)
	if errors.Is(err, ErrCellNotFound) {
		return nil, NewApplicationError(NotFound, ErrCellNotFound, fmt.Sprintf("cell %s/%s not found", rowID, columnID))
	}
	if err != nil {
		return nil, NewApplicationError(Internal, err, err.Error())
	}
	return cell, nil
}

// ListCells returns every cell of a plan
func (s *Service) ListCells(ctx context.Context, planID uuid.UUID) ([]*Cell, error) {
	cells, err := s.store.List(ctx, planID)
	if err != nil {
		return nil, NewApplicationError(Internal, err, err.Error())
	}
	return cells, nil
}

// SetLocked locks or unlocks an existing cell
func (s *Service) SetLocked(ctx context.Context, planID uuid.UUID, rowID, columnID string, locked bool) (*Cell, error) {
	unlock := s.lockPlan(planID)
	defer unlock()

	cell, err := s.GetCell(ctx, planID, rowID, columnID)
	if err != nil {
		return nil, err
	}

	cell.Locked = locked
	cell.UpdatedAt = s.now()
	if err := s.store.SaveAll(ctx, []*Cell{cell}); err != nil {
		return nil, NewApplicationError(Internal, err, err.Error())
	}
	return cell, nil
}
