package workbook

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Store persists the cells of plans
type Store interface {
	// Find returns ErrCellNotFound when the plan has no such cell
	Find(ctx context.Context, planID uuid.UUID, rowID, columnID string) (*Cell, error)
	List(ctx context.Context, planID uuid.UUID) ([]*Cell, error)
	// SaveAll inserts or replaces every cell in one step
	SaveAll(ctx context.Context, cells []*Cell) error
}

type cellKey struct {
	rowID    string
	columnID string
}

// MemoryStore is a Store kept in process memory. cells are copied on the
// way in and out so callers never share them with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	plans map[uuid.UUID]map[cellKey]*Cell
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans: make(map[uuid.UUID]map[cellKey]*Cell),
	}
}

func (s *MemoryStore) Find(ctx context.Context, planID uuid.UUID, rowID, columnID string) (*Cell, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cell, ok := s.plans[planID][cellKey{rowID: rowID, columnID: columnID}]
	if !ok {
		return nil, ErrCellNotFound
	}
	return cell.clone(), nil
}

// List returns the cells of a plan ordered by sheet, row and column
func (s *MemoryStore) List(ctx context.Context, planID uuid.UUID) ([]*Cell, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	cells := make([]*Cell, 0, len(s.plans[planID]))
	for _, cell := range s.plans[planID] {
		cells = append(cells, cell.clone())
	}
	s.mu.RUnlock()

	sort.Slice(cells, func(i, j int) bool {
		if cells[i].SheetName != cells[j].SheetName {
			return cells[i].SheetName < cells[j].SheetName
		}
		if cells[i].RowID != cells[j].RowID {
			return cells[i].RowID < cells[j].RowID
		}
		return cells[i].ColumnID < cells[j].ColumnID
	})
	return cells, nil
}

func (s *MemoryStore) SaveAll(ctx context.Context, cells []*Cell) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cell := range cells {
		plan, ok := s.plans[cell.PlanID]
		if !ok {
			plan = make(map[cellKey]*Cell)
			s.plans[cell.PlanID] = plan
		}
		plan[cellKey{rowID: cell.RowID, columnID: cell.ColumnID}] = cell.clone()
	}
	return nil
}
