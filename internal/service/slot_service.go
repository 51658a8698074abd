package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/elab-api/internal/dto"
	"github.com/noah-isme/elab-api/internal/models"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
)

const (
	slotCachePrefix = "catalog:slots:"
	slotTimeLayout  = "15:04"
)

type slotRepository interface {
	List(ctx context.Context, filter models.SlotFilter) ([]models.Slot, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Slot, error)
	FindByIDForShare(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Slot, error)
	Create(ctx context.Context, slot *models.Slot) error
	Update(ctx context.Context, slot *models.Slot) error
	UpdateStatus(ctx context.Context, id string, status models.SlotStatus) error
	IsReferenced(ctx context.Context, id string) (bool, error)
}

// SlotService manages the catalog of daily time windows.
type SlotService struct {
	repo      slotRepository
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSlotService instantiates SlotService.
func NewSlotService(repo slotRepository, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *SlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{repo: repo, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// List returns slots, served from cache when possible. The bool reports a cache hit.
func (s *SlotService) List(ctx context.Context, filter models.SlotFilter) ([]models.Slot, bool, error) {
	var slots []models.Slot
	key := slotCachePrefix + "list:" + string(filter.Status)
	hit, err := s.cache.Fetch(ctx, key, &slots, s.cacheTTL, func() error {
		var loadErr error
		slots, loadErr = s.repo.List(ctx, filter)
		return loadErr
	})
	if err != nil {
		return nil, false, internalError(s.logger, err, "failed to list slots")
	}
	if slots == nil {
		slots = []models.Slot{}
	}
	return slots, hit, nil
}

// Get returns a slot by id.
func (s *SlotService) Get(ctx context.Context, id string) (*models.Slot, error) {
	slot, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, internalError(s.logger, err, "failed to load slot")
	}
	return slot, nil
}

// Create registers a new slot.
func (s *SlotService) Create(ctx context.Context, req dto.CreateSlotRequest) (*models.Slot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	if err := validateWindow(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	status := models.SlotStatus(req.Status)
	if status == "" {
		status = models.SlotStatusActive
	}
	slot := &models.Slot{Name: req.Name, StartTime: req.StartTime, EndTime: req.EndTime, Status: status}
	if err := s.repo.Create(ctx, slot); err != nil {
		return nil, internalError(s.logger, err, "failed to create slot")
	}
	s.invalidate(ctx)
	return slot, nil
}

// Update edits the name and window of a slot that nothing references yet.
func (s *SlotService) Update(ctx context.Context, id string, req dto.UpdateSlotRequest) (*models.Slot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	if err := validateWindow(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}
	slot, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	referenced, err := s.repo.IsReferenced(ctx, id)
	if err != nil {
		return nil, internalError(s.logger, err, "failed to check slot usage")
	}
	if referenced {
		return nil, appErrors.WithDetails(appErrors.ErrSlotInUse, map[string]interface{}{"slot_id": id})
	}

	slot.Name = req.Name
	slot.StartTime = req.StartTime
	slot.EndTime = req.EndTime
	if err := s.repo.Update(ctx, slot); err != nil {
		return nil, internalError(s.logger, err, "failed to update slot")
	}
	s.invalidate(ctx)
	return slot, nil
}

// UpdateStatus activates, deactivates or parks a slot.
func (s *SlotService) UpdateStatus(ctx context.Context, id string, req dto.UpdateStatusRequest) (*models.Slot, error) {
	status := models.SlotStatus(req.Status)
	switch status {
	case models.SlotStatusActive, models.SlotStatusInactive, models.SlotStatusPending:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown slot status %q", req.Status))
	}
	slot, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, internalError(s.logger, err, "failed to update slot status")
	}
	slot.Status = status
	s.invalidate(ctx)
	return slot, nil
}

func (s *SlotService) invalidate(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, slotCachePrefix+"*")
}

func validateWindow(start, end string) error {
	startAt, err := time.Parse(slotTimeLayout, start)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "start time must be HH:MM")
	}
	endAt, err := time.Parse(slotTimeLayout, end)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "end time must be HH:MM")
	}
	if !startAt.Before(endAt) {
		return appErrors.Clone(appErrors.ErrValidation, "start time must be before end time")
	}
	return nil
}
