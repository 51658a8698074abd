package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/elab-api/internal/dto"
	"github.com/noah-isme/elab-api/internal/models"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
)

type borrowRepository interface {
	Kind() models.ResourceKind
	FindOpenByResource(ctx context.Context, exec sqlx.ExtContext, resourceID string) (*models.BorrowRecord, error)
	FindByID(ctx context.Context, id string) (*models.BorrowRecord, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.BorrowRecord, error)
	Create(ctx context.Context, exec sqlx.ExtContext, record *models.BorrowRecord) error
	Close(ctx context.Context, exec sqlx.ExtContext, record *models.BorrowRecord) (bool, error)
	History(ctx context.Context, filter models.BorrowHistoryFilter) ([]models.BorrowRecord, int, error)
}

type lendableEquipment interface {
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Equipment, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.EquipmentStatus) error
}

type lendableKits interface {
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Kit, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.KitStatus) error
}

type kitReconciler interface {
	ReconcileWithTx(ctx context.Context, exec sqlx.ExtContext, kitID string, counts map[string]int) ([]models.KitAccessory, int, error)
}

// KitReturnResult is the closed kit record with the accessory counts after inspection.
type KitReturnResult struct {
	Record      *models.BorrowRecord  `json:"record"`
	Accessories []models.KitAccessory `json:"accessories,omitempty"`
}

// LendingServiceDeps bundles collaborators of LendingService.
type LendingServiceDeps struct {
	EquipmentBorrows borrowRepository
	KitBorrows       borrowRepository
	Equipment        lendableEquipment
	Kits             lendableKits
	Tracker          kitReconciler
	Runner           transitionRunner
	Exporter         *HistoryExportService
	Events           *EventRecorder
	Metrics          *MetricsService
	Validator        *validator.Validate
	Logger           *zap.Logger
	Now              func() time.Time
	// Location is the lab calendar used for history date ranges.
	Location         *time.Location
}

// LendingService is the checkout/return ledger for equipment and kits.
type LendingService struct {
	equipmentBorrows borrowRepository
	kitBorrows       borrowRepository
	equipment        lendableEquipment
	kits             lendableKits
	tracker          kitReconciler
	runner           transitionRunner
	exporter         *HistoryExportService
	events           *EventRecorder
	metrics          *MetricsService
	validator        *validator.Validate
	logger           *zap.Logger
	now              func() time.Time
	location         *time.Location
}

// NewLendingService instantiates LendingService.
func NewLendingService(deps LendingServiceDeps) *LendingService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &LendingService{
		equipmentBorrows: deps.EquipmentBorrows,
		kitBorrows:       deps.KitBorrows,
		equipment:        deps.Equipment,
		kits:             deps.Kits,
		tracker:          deps.Tracker,
		runner:           deps.Runner,
		exporter:         deps.Exporter,
		events:           deps.Events,
		metrics:          deps.Metrics,
		validator:        deps.Validator,
		logger:           deps.Logger,
		now:              deps.Now,
		location:         deps.Location,
	}
}

// CheckoutEquipment lends an AVAILABLE device to a team and marks it IN_USE.
func (s *LendingService) CheckoutEquipment(ctx context.Context, actor models.Actor, req dto.CheckoutEquipmentRequest) (*models.BorrowRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid checkout payload")
	}

	record := &models.BorrowRecord{
		TeamID:      req.TeamID,
		ClassID:     req.ClassID,
		ResourceID:  req.EquipmentID,
		Name:        req.Name,
		Description: req.Description,
		Status:      models.BorrowStatusBorrowing,
		CreatedBy:   actor.UserID,
	}
	err := s.runner.Run(ctx, "equipment.checkout", []string{EquipmentKey(req.EquipmentID)}, func(tx *sqlx.Tx) error {
		if err := s.ensureNotBorrowed(ctx, tx, s.equipmentBorrows, req.EquipmentID); err != nil {
			return err
		}
		item, err := s.equipment.FindByIDForUpdate(ctx, tx, req.EquipmentID)
		if err != nil {
			if isNotFound(err) {
				return appErrors.Clone(appErrors.ErrNotFound, "equipment not found")
			}
			return err
		}
		if item.Status != models.EquipmentStatusAvailable {
			s.logger.Debug("equipment unavailable for checkout", zap.String("equipment_id", item.ID), zap.String("status", string(item.Status)))
			return appErrors.WithDetails(appErrors.ErrResourceUnavailable, map[string]interface{}{"equipment_id": item.ID, "status": item.Status})
		}
		record.ResourceName = item.Name
		if record.Name == "" {
			record.Name = item.Name
		}
		record.BorrowDate = s.now().UTC()
		if err := s.equipmentBorrows.Create(ctx, tx, record); err != nil {
			return err
		}
		return s.equipment.UpdateStatus(ctx, tx, item.ID, models.EquipmentStatusInUse)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition(EventEquipmentCheckout)
	s.events.Record(ctx, EventEquipmentCheckout, string(models.ResourceEquipment), record.ResourceID, actor, map[string]interface{}{
		"record_id": record.ID,
		"team_id":   record.TeamID,
	})
	return record, nil
}

// CheckoutKit lends a VALID kit to a team and marks it IN_USE.
func (s *LendingService) CheckoutKit(ctx context.Context, actor models.Actor, req dto.CheckoutKitRequest) (*models.BorrowRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid checkout payload")
	}

	record := &models.BorrowRecord{
		TeamID:      req.TeamID,
		ClassID:     req.ClassID,
		ResourceID:  req.KitID,
		Name:        req.Name,
		Description: req.Description,
		Status:      models.BorrowStatusBorrowing,
		CreatedBy:   actor.UserID,
	}
	err := s.runner.Run(ctx, "kit.checkout", []string{KitKey(req.KitID)}, func(tx *sqlx.Tx) error {
		if err := s.ensureNotBorrowed(ctx, tx, s.kitBorrows, req.KitID); err != nil {
			return err
		}
		kit, err := s.kits.FindByIDForUpdate(ctx, tx, req.KitID)
		if err != nil {
			if isNotFound(err) {
				return appErrors.Clone(appErrors.ErrNotFound, "kit not found")
			}
			return err
		}
		if kit.Status != models.KitStatusValid {
			s.logger.Debug("kit unavailable for checkout", zap.String("kit_id", kit.ID), zap.String("status", string(kit.Status)))
			return appErrors.WithDetails(appErrors.ErrResourceUnavailable, map[string]interface{}{"kit_id": kit.ID, "status": kit.Status})
		}
		record.ResourceName = kit.Name
		if record.Name == "" {
			record.Name = kit.Name
		}
		record.BorrowDate = s.now().UTC()
		if err := s.kitBorrows.Create(ctx, tx, record); err != nil {
			return err
		}
		return s.kits.UpdateStatus(ctx, tx, kit.ID, models.KitStatusInUse)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition(EventKitCheckout)
	s.events.Record(ctx, EventKitCheckout, string(models.ResourceKit), record.ResourceID, actor, map[string]interface{}{
		"record_id": record.ID,
		"team_id":   record.TeamID,
	})
	return record, nil
}

// ReturnEquipment closes an open equipment record and makes the device AVAILABLE again.
func (s *LendingService) ReturnEquipment(ctx context.Context, actor models.Actor, req dto.ReturnRequest) (*models.BorrowRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid return payload")
	}
	current, err := s.findRecord(ctx, s.equipmentBorrows, req.ID)
	if err != nil {
		return nil, err
	}

	var record *models.BorrowRecord
	err = s.runner.Run(ctx, "equipment.return", []string{EquipmentKey(current.ResourceID)}, func(tx *sqlx.Tx) error {
		locked, err := s.closeRecord(ctx, tx, s.equipmentBorrows, actor, req.ID)
		if err != nil {
			return err
		}
		item, err := s.equipment.FindByIDForUpdate(ctx, tx, locked.ResourceID)
		if err != nil {
			return err
		}
		if item.Status == models.EquipmentStatusInUse {
			if err := s.equipment.UpdateStatus(ctx, tx, item.ID, models.EquipmentStatusAvailable); err != nil {
				return err
			}
		}
		record = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	record.ResourceName = current.ResourceName
	s.metrics.RecordTransition(EventEquipmentReturn)
	s.events.Record(ctx, EventEquipmentReturn, string(models.ResourceEquipment), record.ResourceID, actor, map[string]interface{}{
		"record_id": record.ID,
		"team_id":   record.TeamID,
	})
	return record, nil
}

// ReturnKit closes an open kit record, reconciles inspected accessory counts and makes the kit
// VALID again, all in one transaction.
func (s *LendingService) ReturnKit(ctx context.Context, actor models.Actor, req dto.ReturnKitRequest) (*KitReturnResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid return payload")
	}
	current, err := s.findRecord(ctx, s.kitBorrows, req.ID)
	if err != nil {
		return nil, err
	}

	result := &KitReturnResult{}
	changed := 0
	err = s.runner.Run(ctx, "kit.return", []string{KitKey(current.ResourceID)}, func(tx *sqlx.Tx) error {
		locked, err := s.closeRecord(ctx, tx, s.kitBorrows, actor, req.ID)
		if err != nil {
			return err
		}
		kit, err := s.kits.FindByIDForUpdate(ctx, tx, locked.ResourceID)
		if err != nil {
			return err
		}
		if len(req.AccessoryCounts) > 0 {
			rows, n, err := s.tracker.ReconcileWithTx(ctx, tx, kit.ID, req.AccessoryCounts)
			if err != nil {
				return err
			}
			result.Accessories = rows
			changed = n
		}
		if kit.Status == models.KitStatusInUse {
			if err := s.kits.UpdateStatus(ctx, tx, kit.ID, models.KitStatusValid); err != nil {
				return err
			}
		}
		result.Record = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Record.ResourceName = current.ResourceName
	s.metrics.RecordTransition(EventKitReturn)
	s.events.Record(ctx, EventKitReturn, string(models.ResourceKit), result.Record.ResourceID, actor, map[string]interface{}{
		"record_id":           result.Record.ID,
		"team_id":             result.Record.TeamID,
		"accessories_changed": changed,
	})
	if changed > 0 {
		s.metrics.RecordTransition(EventKitReconciled)
		s.events.Record(ctx, EventKitReconciled, string(models.ResourceKit), result.Record.ResourceID, actor, map[string]interface{}{
			"counts":  req.AccessoryCounts,
			"changed": changed,
		})
	}
	return result, nil
}

// History lists ledger records of one resource kind.
func (s *LendingService) History(ctx context.Context, kind models.ResourceKind, filter models.BorrowHistoryFilter) ([]models.BorrowRecord, *models.Pagination, error) {
	repo, err := s.ledger(kind)
	if err != nil {
		return nil, nil, err
	}
	records, total, err := repo.History(ctx, filter.InLocation(s.location))
	if err != nil {
		return nil, nil, internalError(s.logger, err, "failed to load borrow history", zap.String("kind", string(kind)))
	}
	if records == nil {
		records = []models.BorrowRecord{}
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ExportHistory renders the filtered history of one resource kind, walking pages up to the
// exporter's row cap.
func (s *LendingService) ExportHistory(ctx context.Context, kind models.ResourceKind, filter models.BorrowHistoryFilter, format models.ExportFormat) (*HistoryExport, error) {
	repo, err := s.ledger(kind)
	if err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "history export is not configured")
	}
	if !s.exporter.Supports(format) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	filter = filter.InLocation(s.location)
	limit := s.exporter.MaxRows()
	_, pageSize := models.NormalizePage(1, 100)
	filter.PageSize = pageSize
	var records []models.BorrowRecord
	for page := 1; len(records) < limit; page++ {
		filter.Page = page
		batch, total, err := repo.History(ctx, filter)
		if err != nil {
			return nil, internalError(s.logger, err, "failed to load borrow history for export", zap.String("kind", string(kind)))
		}
		records = append(records, batch...)
		if len(batch) < pageSize || len(records) >= total {
			break
		}
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return s.exporter.Render(kind, records, format)
}

func (s *LendingService) ledger(kind models.ResourceKind) (borrowRepository, error) {
	switch kind {
	case models.ResourceEquipment:
		return s.equipmentBorrows, nil
	case models.ResourceKit:
		return s.kitBorrows, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown resource kind")
	}
}

func (s *LendingService) ensureNotBorrowed(ctx context.Context, exec sqlx.ExtContext, repo borrowRepository, resourceID string) error {
	open, err := repo.FindOpenByResource(ctx, exec, resourceID)
	if err != nil {
		return err
	}
	if open != nil {
		s.logger.Debug("resource already borrowed", zap.String("resource_id", resourceID), zap.String("record_id", open.ID))
		return appErrors.WithDetails(appErrors.ErrAlreadyBorrowed, map[string]interface{}{
			"resource_id": resourceID,
			"record_id":   open.ID,
			"team_id":     open.TeamID,
		})
	}
	return nil
}

func (s *LendingService) findRecord(ctx context.Context, repo borrowRepository, id string) (*models.BorrowRecord, error) {
	record, err := repo.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "borrow record not found")
		}
		return nil, internalError(s.logger, err, "failed to load borrow record", zap.String("record_id", id))
	}
	return record, nil
}

func (s *LendingService) closeRecord(ctx context.Context, exec sqlx.ExtContext, repo borrowRepository, actor models.Actor, id string) (*models.BorrowRecord, error) {
	record, err := repo.FindByIDForUpdate(ctx, exec, id)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "borrow record not found")
		}
		return nil, err
	}
	notBorrowing := appErrors.WithDetails(appErrors.ErrNotBorrowing, map[string]interface{}{"record_id": record.ID})
	if record.Status != models.BorrowStatusBorrowing {
		return nil, notBorrowing
	}
	returnedAt := s.now().UTC()
	returnedBy := actor.UserID
	record.ReturnDate = &returnedAt
	record.ReturnedBy = &returnedBy
	closed, err := repo.Close(ctx, exec, record)
	if err != nil {
		return nil, err
	}
	if !closed {
		return nil, notBorrowing
	}
	return record, nil
}
