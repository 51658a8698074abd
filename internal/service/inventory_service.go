package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/elab-api/internal/dto"
	"github.com/noah-isme/elab-api/internal/models"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
)

type equipmentRepository interface {
	Search(ctx context.Context, filter models.InventoryFilter) ([]models.Equipment, int, error)
	FindByID(ctx context.Context, id string) (*models.Equipment, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Equipment, error)
	Create(ctx context.Context, item *models.Equipment) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.EquipmentStatus) error
}

type accessoryRepository interface {
	Search(ctx context.Context, filter models.InventoryFilter) ([]models.Accessory, int, error)
	FindByID(ctx context.Context, id string) (*models.Accessory, error)
	FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Accessory, error)
	Create(ctx context.Context, item *models.Accessory) error
	UpdateStatus(ctx context.Context, id string, status models.ValidityStatus) error
}

type kitTemplateRepository interface {
	Search(ctx context.Context, filter models.InventoryFilter) ([]models.KitTemplate, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.KitTemplate, error)
	Create(ctx context.Context, exec sqlx.ExtContext, item *models.KitTemplate) error
	UpdateStatus(ctx context.Context, id string, status models.ValidityStatus) error
	UpsertRecipeItem(ctx context.Context, exec sqlx.ExtContext, item *models.AccessoryKitTemplate) error
	ListRecipe(ctx context.Context, exec sqlx.ExtContext, templateID string) ([]models.AccessoryKitTemplate, error)
}

type kitRepository interface {
	Search(ctx context.Context, filter models.InventoryFilter) ([]models.Kit, int, error)
	FindByID(ctx context.Context, id string) (*models.Kit, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Kit, error)
	Create(ctx context.Context, exec sqlx.ExtContext, item *models.Kit) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.KitStatus) error
}

type kitAccessoryRepository interface {
	CreateBatch(ctx context.Context, exec sqlx.ExtContext, rows []models.KitAccessory) error
	ListByKit(ctx context.Context, exec sqlx.ExtContext, kitID string) ([]models.KitAccessory, error)
	UpdateCount(ctx context.Context, exec sqlx.ExtContext, row *models.KitAccessory) error
}

// equipmentAdminTransitions lists the maintenance moves an administrator may make.
// IN_USE is owned by the checkout/return ledger and never appears here.
var equipmentAdminTransitions = map[models.EquipmentStatus][]models.EquipmentStatus{
	models.EquipmentStatusAvailable:   {models.EquipmentStatusMaintenance, models.EquipmentStatusOutOfOrder},
	models.EquipmentStatusMaintenance: {models.EquipmentStatusAvailable, models.EquipmentStatusOutOfOrder},
	models.EquipmentStatusOutOfOrder:  {models.EquipmentStatusAvailable, models.EquipmentStatusMaintenance},
}

func canMoveEquipment(from, to models.EquipmentStatus) bool {
	for _, allowed := range equipmentAdminTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// EquipmentKey guards checkout, return and maintenance of one equipment.
func EquipmentKey(id string) string { return "equipment:" + id }

// KitKey guards checkout, return and reconciliation of one kit.
func KitKey(id string) string { return "kit:" + id }

func kitTemplateKey(id string) string { return "kit-template:" + id }

// InventoryServiceDeps bundles collaborators of InventoryService.
type InventoryServiceDeps struct {
	Equipment      equipmentRepository
	Accessories    accessoryRepository
	Templates      kitTemplateRepository
	Kits           kitRepository
	KitAccessories kitAccessoryRepository
	Runner         transitionRunner
	Events         *EventRecorder
	Metrics        *MetricsService
	Validator      *validator.Validate
	Logger         *zap.Logger
}

// InventoryService manages equipment, accessories, kit templates and kits.
type InventoryService struct {
	equipment      equipmentRepository
	accessories    accessoryRepository
	templates      kitTemplateRepository
	kits           kitRepository
	kitAccessories kitAccessoryRepository
	runner         transitionRunner
	events         *EventRecorder
	metrics        *MetricsService
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewInventoryService instantiates InventoryService.
func NewInventoryService(deps InventoryServiceDeps) *InventoryService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &InventoryService{
		equipment:      deps.Equipment,
		accessories:    deps.Accessories,
		templates:      deps.Templates,
		kits:           deps.Kits,
		kitAccessories: deps.KitAccessories,
		runner:         deps.Runner,
		events:         deps.Events,
		metrics:        deps.Metrics,
		validator:      deps.Validator,
		logger:         deps.Logger,
	}
}

func paginationFor(filter models.InventoryFilter, total int) *models.Pagination {
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

// CreateEquipment registers a device as AVAILABLE.
func (s *InventoryService) CreateEquipment(ctx context.Context, req dto.CreateEquipmentRequest) (*models.Equipment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid equipment payload")
	}
	item := &models.Equipment{
		Name:         req.Name,
		Code:         req.Code,
		SerialNumber: req.SerialNumber,
		Description:  req.Description,
		Status:       models.EquipmentStatusAvailable,
	}
	if err := s.equipment.Create(ctx, item); err != nil {
		return nil, internalError(s.logger, err, "failed to create equipment")
	}
	return item, nil
}

// GetEquipment returns equipment by id.
func (s *InventoryService) GetEquipment(ctx context.Context, id string) (*models.Equipment, error) {
	item, err := s.equipment.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "equipment not found")
		}
		return nil, internalError(s.logger, err, "failed to load equipment")
	}
	return item, nil
}

// SearchEquipment lists equipment by keyword and status.
func (s *InventoryService) SearchEquipment(ctx context.Context, filter models.InventoryFilter) ([]models.Equipment, *models.Pagination, error) {
	items, total, err := s.equipment.Search(ctx, filter)
	if err != nil {
		return nil, nil, internalError(s.logger, err, "failed to search equipment")
	}
	if items == nil {
		items = []models.Equipment{}
	}
	return items, paginationFor(filter, total), nil
}

// UpdateEquipmentStatus applies an administrator maintenance move under the equipment lock.
func (s *InventoryService) UpdateEquipmentStatus(ctx context.Context, actor models.Actor, id string, req dto.UpdateStatusRequest) (*models.Equipment, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may change equipment status")
	}
	target := models.EquipmentStatus(req.Status)
	switch target {
	case models.EquipmentStatusAvailable, models.EquipmentStatusMaintenance, models.EquipmentStatusOutOfOrder, models.EquipmentStatusInUse:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown equipment status %q", req.Status))
	}

	var item *models.Equipment
	err := s.runner.Run(ctx, "equipment.status", []string{EquipmentKey(id)}, func(tx *sqlx.Tx) error {
		locked, err := s.equipment.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			if isNotFound(err) {
				return appErrors.Clone(appErrors.ErrNotFound, "equipment not found")
			}
			return err
		}
		if !canMoveEquipment(locked.Status, target) {
			if locked.Status == models.EquipmentStatusInUse {
				return appErrors.WithDetails(appErrors.ErrResourceUnavailable, map[string]interface{}{"equipment_id": id, "status": locked.Status})
			}
			return invalidTransition(s.logger, fmt.Sprintf("equipment cannot move from %s to %s", locked.Status, target),
				zap.String("equipment_id", id), zap.String("actor_id", actor.UserID))
		}
		if err := s.equipment.UpdateStatus(ctx, tx, id, target); err != nil {
			return err
		}
		locked.Status = target
		item = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition(EventEquipmentStatusChanged)
	s.events.Record(ctx, EventEquipmentStatusChanged, string(models.ResourceEquipment), id, actor, map[string]interface{}{"status": target})
	return item, nil
}

// CreateAccessory registers a component type.
func (s *InventoryService) CreateAccessory(ctx context.Context, req dto.CreateAccessoryRequest) (*models.Accessory, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid accessory payload")
	}
	item := &models.Accessory{Name: req.Name, ValueCode: req.ValueCode, Category: req.Category, Status: models.ValidityValid}
	if err := s.accessories.Create(ctx, item); err != nil {
		return nil, internalError(s.logger, err, "failed to create accessory")
	}
	return item, nil
}

// GetAccessory returns an accessory by id.
func (s *InventoryService) GetAccessory(ctx context.Context, id string) (*models.Accessory, error) {
	item, err := s.accessories.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "accessory not found")
		}
		return nil, internalError(s.logger, err, "failed to load accessory")
	}
	return item, nil
}

// SearchAccessories lists accessories by keyword and status.
func (s *InventoryService) SearchAccessories(ctx context.Context, filter models.InventoryFilter) ([]models.Accessory, *models.Pagination, error) {
	items, total, err := s.accessories.Search(ctx, filter)
	if err != nil {
		return nil, nil, internalError(s.logger, err, "failed to search accessories")
	}
	if items == nil {
		items = []models.Accessory{}
	}
	return items, paginationFor(filter, total), nil
}

// UpdateAccessoryStatus marks an accessory type VALID or INVALID.
func (s *InventoryService) UpdateAccessoryStatus(ctx context.Context, id string, req dto.UpdateStatusRequest) (*models.Accessory, error) {
	status, err := parseValidity(req.Status)
	if err != nil {
		return nil, err
	}
	item, err := s.GetAccessory(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.accessories.UpdateStatus(ctx, id, status); err != nil {
		return nil, internalError(s.logger, err, "failed to update accessory status")
	}
	item.Status = status
	return item, nil
}

func parseValidity(raw string) (models.ValidityStatus, error) {
	status := models.ValidityStatus(raw)
	if status != models.ValidityValid && status != models.ValidityInvalid {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", raw))
	}
	return status, nil
}
