package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/elab-api/internal/dto"
	"github.com/noah-isme/elab-api/internal/models"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
)

// CreateKitTemplate registers a template together with its recipe lines.
func (s *InventoryService) CreateKitTemplate(ctx context.Context, req dto.CreateKitTemplateRequest) (*models.KitTemplate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid kit template payload")
	}
	items, err := mergeRecipe(req.Recipe)
	if err != nil {
		return nil, err
	}

	template := &models.KitTemplate{Name: req.Name, Quantity: req.Quantity, Status: models.ValidityValid}
	err = s.runner.Run(ctx, "kit_template.create", nil, func(tx *sqlx.Tx) error {
		if err := s.requireAccessories(ctx, tx, items); err != nil {
			return err
		}
		if err := s.templates.Create(ctx, tx, template); err != nil {
			return err
		}
		for _, item := range items {
			line := &models.AccessoryKitTemplate{KitTemplateID: template.ID, AccessoryID: item.AccessoryID, Quantity: item.Quantity}
			if err := s.templates.UpsertRecipeItem(ctx, tx, line); err != nil {
				return err
			}
		}
		recipe, err := s.templates.ListRecipe(ctx, tx, template.ID)
		if err != nil {
			return err
		}
		template.Recipe = recipe
		return nil
	})
	if err != nil {
		return nil, err
	}
	return template, nil
}

// GetKitTemplate returns a template with its recipe.
func (s *InventoryService) GetKitTemplate(ctx context.Context, id string) (*models.KitTemplate, error) {
	template, err := s.templates.FindByID(ctx, nil, id)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "kit template not found")
		}
		return nil, internalError(s.logger, err, "failed to load kit template")
	}
	recipe, err := s.templates.ListRecipe(ctx, nil, id)
	if err != nil {
		return nil, internalError(s.logger, err, "failed to load kit template recipe")
	}
	template.Recipe = recipe
	return template, nil
}

// SearchKitTemplates lists templates by keyword and status.
func (s *InventoryService) SearchKitTemplates(ctx context.Context, filter models.InventoryFilter) ([]models.KitTemplate, *models.Pagination, error) {
	items, total, err := s.templates.Search(ctx, filter)
	if err != nil {
		return nil, nil, internalError(s.logger, err, "failed to search kit templates")
	}
	if items == nil {
		items = []models.KitTemplate{}
	}
	return items, paginationFor(filter, total), nil
}

// UpdateKitTemplateStatus marks a template VALID or INVALID. Existing kits keep their snapshot.
func (s *InventoryService) UpdateKitTemplateStatus(ctx context.Context, id string, req dto.UpdateStatusRequest) (*models.KitTemplate, error) {
	status, err := parseValidity(req.Status)
	if err != nil {
		return nil, err
	}
	template, err := s.GetKitTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.templates.UpdateStatus(ctx, id, status); err != nil {
		return nil, internalError(s.logger, err, "failed to update kit template status")
	}
	template.Status = status
	return template, nil
}

// SetRecipe upserts recipe lines on a template. Kits already built from it are not touched.
func (s *InventoryService) SetRecipe(ctx context.Context, templateID string, req dto.SetRecipeRequest) (*models.KitTemplate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recipe payload")
	}
	items, err := mergeRecipe(req.Items)
	if err != nil {
		return nil, err
	}

	var template *models.KitTemplate
	err = s.runner.Run(ctx, "kit_template.recipe", []string{kitTemplateKey(templateID)}, func(tx *sqlx.Tx) error {
		found, err := s.templates.FindByID(ctx, tx, templateID)
		if err != nil {
			if isNotFound(err) {
				return appErrors.Clone(appErrors.ErrNotFound, "kit template not found")
			}
			return err
		}
		if err := s.requireAccessories(ctx, tx, items); err != nil {
			return err
		}
		for _, item := range items {
			line := &models.AccessoryKitTemplate{KitTemplateID: templateID, AccessoryID: item.AccessoryID, Quantity: item.Quantity}
			if err := s.templates.UpsertRecipeItem(ctx, tx, line); err != nil {
				return err
			}
		}
		if found.Recipe, err = s.templates.ListRecipe(ctx, tx, templateID); err != nil {
			return err
		}
		template = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return template, nil
}

// CreateKit builds a physical kit from a VALID template, snapshotting the recipe into
// kit accessory rows at full strength.
func (s *InventoryService) CreateKit(ctx context.Context, actor models.Actor, req dto.CreateKitRequest) (*models.KitDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid kit payload")
	}

	detail := &models.KitDetail{}
	err := s.runner.Run(ctx, "kit.create", []string{kitTemplateKey(req.KitTemplateID)}, func(tx *sqlx.Tx) error {
		template, err := s.templates.FindByID(ctx, tx, req.KitTemplateID)
		if err != nil {
			if isNotFound(err) {
				return appErrors.Clone(appErrors.ErrNotFound, "kit template not found")
			}
			return err
		}
		if template.Status != models.ValidityValid {
			return appErrors.WithDetails(appErrors.ErrResourceUnavailable, map[string]interface{}{"kit_template_id": template.ID, "status": template.Status})
		}
		recipe, err := s.templates.ListRecipe(ctx, tx, template.ID)
		if err != nil {
			return err
		}
		if len(recipe) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "kit template has no recipe")
		}

		kit := models.Kit{KitTemplateID: template.ID, Name: req.Name, Status: models.KitStatusValid}
		if err := s.kits.Create(ctx, tx, &kit); err != nil {
			return err
		}
		rows := make([]models.KitAccessory, 0, len(recipe))
		for _, line := range recipe {
			rows = append(rows, models.KitAccessory{
				KitID:           kit.ID,
				AccessoryID:     line.AccessoryID,
				AccessoryName:   line.AccessoryName,
				InitialQuantity: line.Quantity,
				CurrentQuantity: line.Quantity,
				ValidPercent:    100,
				Status:          models.ValidityValid,
			})
		}
		if err := s.kitAccessories.CreateBatch(ctx, tx, rows); err != nil {
			return err
		}
		detail.Kit = kit
		detail.Accessories = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition(EventKitCreated)
	s.events.Record(ctx, EventKitCreated, string(models.ResourceKit), detail.ID, actor, map[string]interface{}{
		"kit_template_id": detail.KitTemplateID,
		"accessories":     len(detail.Accessories),
	})
	return detail, nil
}

// GetKit returns a kit with its current accessory counts.
func (s *InventoryService) GetKit(ctx context.Context, id string) (*models.KitDetail, error) {
	kit, err := s.kits.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "kit not found")
		}
		return nil, internalError(s.logger, err, "failed to load kit")
	}
	rows, err := s.ListKitAccessories(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.KitDetail{Kit: *kit, Accessories: rows}, nil
}

// SearchKits lists kits by keyword and status.
func (s *InventoryService) SearchKits(ctx context.Context, filter models.InventoryFilter) ([]models.Kit, *models.Pagination, error) {
	items, total, err := s.kits.Search(ctx, filter)
	if err != nil {
		return nil, nil, internalError(s.logger, err, "failed to search kits")
	}
	if items == nil {
		items = []models.Kit{}
	}
	return items, paginationFor(filter, total), nil
}

// ListKitAccessories returns the accessory rows of a kit.
func (s *InventoryService) ListKitAccessories(ctx context.Context, kitID string) ([]models.KitAccessory, error) {
	rows, err := s.kitAccessories.ListByKit(ctx, nil, kitID)
	if err != nil {
		return nil, internalError(s.logger, err, "failed to load kit accessories", zap.String("kit_id", kitID))
	}
	if rows == nil {
		rows = []models.KitAccessory{}
	}
	return rows, nil
}

// mergeRecipe folds duplicate accessory lines into one and orders them by accessory id.
func mergeRecipe(items []dto.RecipeItem) ([]dto.RecipeItem, error) {
	totals := make(map[string]int, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("quantity for accessory %s must be positive", item.AccessoryID))
		}
		totals[item.AccessoryID] += item.Quantity
	}
	merged := make([]dto.RecipeItem, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, dto.RecipeItem{AccessoryID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].AccessoryID < merged[j].AccessoryID })
	return merged, nil
}

func (s *InventoryService) requireAccessories(ctx context.Context, exec sqlx.ExtContext, items []dto.RecipeItem) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.AccessoryID)
	}
	found, err := s.accessories.FindByIDs(ctx, exec, ids)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(found))
	for _, accessory := range found {
		known[accessory.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "unknown accessories in recipe"), map[string]interface{}{"accessory_ids": missing})
	}
	return nil
}
