package warehouse

import (
	"context"
	"fmt"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/core/numerator"
	"docflow/pkg/logger"
)

// Service manages the warehouse directory.
type Service struct {
	repo Repository
}

var _ numerator.WarehouseCodes = (*Service)(nil)

// NewService creates a warehouse service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates and stores a warehouse. Codes are unique.
func (s *Service) Create(ctx context.Context, w *Warehouse) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if _, err := s.repo.GetByCode(ctx, w.Code); err == nil {
		return apperror.NewConflict("warehouse code already exists").WithDetail("code", w.Code)
	} else if !apperror.IsNotFound(err) {
		return err
	}
	if err := s.repo.Create(ctx, w); err != nil {
		return fmt.Errorf("create warehouse: %w", err)
	}
	logger.Info(ctx, "warehouse created", "warehouse_id", w.ID, "code", w.Code)
	return nil
}

// Get returns a warehouse by ID.
func (s *Service) Get(ctx context.Context, warehouseID id.ID) (*Warehouse, error) {
	return s.repo.GetByID(ctx, warehouseID)
}

// List returns warehouses ordered by code.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]*Warehouse, error) {
	return s.repo.List(ctx, activeOnly)
}

// Deactivate hides a warehouse from new documents. Its code stays reserved.
func (s *Service) Deactivate(ctx context.Context, warehouseID id.ID) error {
	return s.repo.SetActive(ctx, warehouseID, false)
}

// CodeOf resolves the code printed in document numbers.
func (s *Service) CodeOf(ctx context.Context, warehouseID id.ID) (string, error) {
	w, err := s.repo.GetByID(ctx, warehouseID)
	if err != nil {
		return "", err
	}
	return w.Code, nil
}

// RequireActive returns the warehouse or a validation error if it is inactive.
func (s *Service) RequireActive(ctx context.Context, warehouseID id.ID) (*Warehouse, error) {
	w, err := s.repo.GetByID(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	if !w.IsActive {
		return nil, apperror.NewValidation("warehouse is inactive").WithDetail("warehouse_id", warehouseID.String())
	}
	return w, nil
}
