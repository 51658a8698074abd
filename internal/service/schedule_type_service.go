package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/elab-api/internal/dto"
	"github.com/noah-isme/elab-api/internal/models"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
)

const scheduleTypeCachePrefix = "catalog:schedule-types:"

type scheduleTypeRepository interface {
	recurringLookup
	List(ctx context.Context, filter models.ScheduleTypeFilter) ([]models.ScheduleType, int, error)
	ListActive(ctx context.Context, classID, labID string) ([]models.ScheduleType, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ScheduleType, error)
	Create(ctx context.Context, exec sqlx.ExtContext, item *models.ScheduleType) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ScheduleTypeStatus) error
}

type transitionRunner interface {
	Run(ctx context.Context, operation string, keys []string, fn func(tx *sqlx.Tx) error) error
}

// ScheduleTypeListResult is a cached page of schedule types.
type ScheduleTypeListResult struct {
	Items      []models.ScheduleType `json:"items"`
	Pagination models.Pagination     `json:"pagination"`
}

// ScheduleTypeService maintains the recurring weekly grid.
type ScheduleTypeService struct {
	repo      scheduleTypeRepository
	slots     slotRepository
	runner    transitionRunner
	events    *EventRecorder
	cache     *CacheService
	cacheTTL  time.Duration
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// ScheduleTypeServiceDeps bundles collaborators of ScheduleTypeService.
type ScheduleTypeServiceDeps struct {
	Repo      scheduleTypeRepository
	Slots     slotRepository
	Runner    transitionRunner
	Events    *EventRecorder
	Cache     *CacheService
	CacheTTL  time.Duration
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewScheduleTypeService instantiates ScheduleTypeService.
func NewScheduleTypeService(deps ScheduleTypeServiceDeps) *ScheduleTypeService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ScheduleTypeService{
		repo:      deps.Repo,
		slots:     deps.Slots,
		runner:    deps.Runner,
		events:    deps.Events,
		cache:     deps.Cache,
		cacheTTL:  deps.CacheTTL,
		metrics:   deps.Metrics,
		validator: deps.Validator,
		logger:    deps.Logger,
	}
}

// scheduleClassKey guards a (day, slot) cell for one class.
func scheduleClassKey(day models.Weekday, slotID, classID string) string {
	return "schedule:" + string(day) + ":" + slotID + ":class:" + classID
}

// List returns schedule types matching filters, served from cache when possible.
func (s *ScheduleTypeService) List(ctx context.Context, filter models.ScheduleTypeFilter) ([]models.ScheduleType, *models.Pagination, bool, error) {
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	filter.Page, filter.PageSize = page, size
	key := fmt.Sprintf("%slist:%s:%s:%s:%s:%s:%d:%d", scheduleTypeCachePrefix, filter.DayOfWeek, filter.SlotID, filter.ClassID, filter.LabID, filter.Status, page, size)

	var result ScheduleTypeListResult
	hit, err := s.cache.Fetch(ctx, key, &result, s.cacheTTL, func() error {
		items, total, loadErr := s.repo.List(ctx, filter)
		if loadErr != nil {
			return loadErr
		}
		result = ScheduleTypeListResult{Items: items, Pagination: models.Pagination{Page: page, PageSize: size, TotalCount: total}}
		return nil
	})
	if err != nil {
		return nil, nil, false, internalError(s.logger, err, "failed to list schedule types")
	}
	items := result.Items
	if items == nil {
		items = []models.ScheduleType{}
	}
	for i := range items {
		items[i].Decorate()
	}
	pagination := result.Pagination
	return items, &pagination, hit, nil
}

// Get returns a schedule type by id.
func (s *ScheduleTypeService) Get(ctx context.Context, id string) (*models.ScheduleType, error) {
	item, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule type not found")
		}
		return nil, internalError(s.logger, err, "failed to load schedule type")
	}
	item.Decorate()
	return item, nil
}

// Assign places a class into a (day, slot) cell of a lab. The cell must be free for both the
// class and the lab.
func (s *ScheduleTypeService) Assign(ctx context.Context, actor models.Actor, req dto.AssignScheduleTypeRequest) (*models.ScheduleType, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule type payload")
	}
	day, ok := models.ParseWeekday(req.DayOfWeek)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown day of week %q", req.DayOfWeek))
	}

	item := &models.ScheduleType{
		DayOfWeek: day,
		SlotID:    req.SlotID,
		ClassID:   strings.TrimSpace(req.ClassID),
		LabID:     strings.TrimSpace(req.LabID),
		Name:      req.Name,
		Color:     req.Color,
		Status:    models.ScheduleTypeStatusValid,
	}
	keys := []string{ScheduleKey(day, item.SlotID, item.LabID), scheduleClassKey(day, item.SlotID, item.ClassID)}
	err := s.runner.Run(ctx, "schedule_type.assign", keys, func(tx *sqlx.Tx) error {
		if err := requireActiveSlot(ctx, s.slots, tx, item.SlotID); err != nil {
			return err
		}
		if err := s.ensureCellFree(ctx, tx, item, ""); err != nil {
			return err
		}
		return s.repo.Create(ctx, tx, item)
	})
	if err != nil {
		return nil, err
	}

	item.Decorate()
	s.metrics.RecordTransition(EventScheduleAssigned)
	s.events.Record(ctx, EventScheduleAssigned, "SCHEDULE_TYPE", item.ID, actor, map[string]interface{}{
		"day_of_week": item.DayOfWeek,
		"slot_id":     item.SlotID,
		"class_id":    item.ClassID,
		"lab_id":      item.LabID,
	})
	s.invalidate(ctx)
	return item, nil
}

// UpdateStatus toggles an entry between VALID and INVALID. Reactivation re-validates the cell.
func (s *ScheduleTypeService) UpdateStatus(ctx context.Context, actor models.Actor, id string, req dto.UpdateStatusRequest) (*models.ScheduleType, error) {
	status := models.ScheduleTypeStatus(req.Status)
	if status != models.ScheduleTypeStatusValid && status != models.ScheduleTypeStatusInvalid {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown schedule type status %q", req.Status))
	}
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status == status {
		return item, nil
	}

	keys := []string{ScheduleKey(item.DayOfWeek, item.SlotID, item.LabID), scheduleClassKey(item.DayOfWeek, item.SlotID, item.ClassID)}
	err = s.runner.Run(ctx, "schedule_type.status", keys, func(tx *sqlx.Tx) error {
		if status == models.ScheduleTypeStatusValid {
			if err := s.ensureCellFree(ctx, tx, item, item.ID); err != nil {
				return err
			}
		}
		return s.repo.UpdateStatus(ctx, tx, item.ID, status)
	})
	if err != nil {
		return nil, err
	}

	item.Status = status
	s.metrics.RecordTransition(EventScheduleStatusChanged)
	s.events.Record(ctx, EventScheduleStatusChanged, "SCHEDULE_TYPE", item.ID, actor, map[string]interface{}{"status": status})
	s.invalidate(ctx)
	return item, nil
}

// WeeklyGrid draws the day x slot grid of a class or a lab from active entries and slots.
func (s *ScheduleTypeService) WeeklyGrid(ctx context.Context, classID, labID string) ([]models.WeeklyGridDay, error) {
	if classID == "" && labID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "classId or labId is required")
	}
	slots, err := s.slots.List(ctx, models.SlotFilter{Status: models.SlotStatusActive})
	if err != nil {
		return nil, internalError(s.logger, err, "failed to load slots")
	}
	entries, err := s.repo.ListActive(ctx, classID, labID)
	if err != nil {
		return nil, internalError(s.logger, err, "failed to load schedule types")
	}

	occupied := make(map[string]*models.ScheduleType, len(entries))
	for i := range entries {
		entries[i].Decorate()
		occupied[string(entries[i].DayOfWeek)+"|"+entries[i].SlotID] = &entries[i]
	}

	grid := make([]models.WeeklyGridDay, 0, len(models.Weekdays))
	for _, day := range models.Weekdays {
		cells := make([]models.WeeklyGridCell, 0, len(slots))
		for _, slot := range slots {
			cells = append(cells, models.WeeklyGridCell{
				SlotID:       slot.ID,
				SlotName:     slot.Name,
				StartTime:    slot.StartTime,
				EndTime:      slot.EndTime,
				ScheduleType: occupied[string(day)+"|"+slot.ID],
			})
		}
		grid = append(grid, models.WeeklyGridDay{DayOfWeek: day, DayLabel: day.Label(), Cells: cells})
	}
	return grid, nil
}

func (s *ScheduleTypeService) ensureCellFree(ctx context.Context, tx sqlx.ExtContext, item *models.ScheduleType, excludeID string) error {
	existing, err := s.repo.FindActiveConflict(ctx, tx, item.DayOfWeek, item.SlotID, item.ClassID, item.LabID, excludeID)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	s.logger.Debug("schedule cell already occupied", zap.String("schedule_type_id", existing.ID))
	return appErrors.WithDetails(appErrors.ErrRecurringConflict, map[string]interface{}{
		"schedule_type_id": existing.ID,
		"day_of_week":      string(existing.DayOfWeek),
		"slot_id":          existing.SlotID,
		"class_id":         existing.ClassID,
		"lab_id":           existing.LabID,
	})
}

func (s *ScheduleTypeService) invalidate(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, scheduleTypeCachePrefix+"*")
}
