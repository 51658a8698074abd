package service

import (
	"context"
	"math"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/elab-api/internal/dto"
	"github.com/noah-isme/elab-api/internal/models"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
)

type kitFinder interface {
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Kit, error)
}

// DegradationTrackerDeps bundles collaborators of DegradationTracker.
type DegradationTrackerDeps struct {
	Kits           kitFinder
	KitAccessories kitAccessoryRepository
	Runner         transitionRunner
	Events         *EventRecorder
	Metrics        *MetricsService
	// Threshold is the valid percentage at or below which an accessory row turns INVALID.
	// Zero invalidates only empty rows.
	Threshold int
	Validator *validator.Validate
	Logger    *zap.Logger
}

// DegradationTracker lowers kit accessory counts as inspections find parts missing.
// Counts never go up; restocking is outside the tracker.
type DegradationTracker struct {
	kits           kitFinder
	kitAccessories kitAccessoryRepository
	runner         transitionRunner
	events         *EventRecorder
	metrics        *MetricsService
	threshold      int
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewDegradationTracker instantiates DegradationTracker.
func NewDegradationTracker(deps DegradationTrackerDeps) *DegradationTracker {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Threshold < 0 || deps.Threshold > 100 {
		deps.Threshold = 0
	}
	return &DegradationTracker{
		kits:           deps.Kits,
		kitAccessories: deps.KitAccessories,
		runner:         deps.Runner,
		events:         deps.Events,
		metrics:        deps.Metrics,
		threshold:      deps.Threshold,
		validator:      deps.Validator,
		logger:         deps.Logger,
	}
}

// Reconcile applies observed counts to a kit under its lock and returns every accessory row.
func (t *DegradationTracker) Reconcile(ctx context.Context, actor models.Actor, req dto.ReconcileRequest) ([]models.KitAccessory, error) {
	if err := t.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reconcile payload")
	}

	var (
		rows    []models.KitAccessory
		changed int
	)
	err := t.runner.Run(ctx, "kit.reconcile", []string{KitKey(req.KitID)}, func(tx *sqlx.Tx) error {
		if _, err := t.kits.FindByIDForUpdate(ctx, tx, req.KitID); err != nil {
			if isNotFound(err) {
				return appErrors.Clone(appErrors.ErrNotFound, "kit not found")
			}
			return err
		}
		var err error
		rows, changed, err = t.ReconcileWithTx(ctx, tx, req.KitID, req.Counts)
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed > 0 {
		t.metrics.RecordTransition(EventKitReconciled)
		t.events.Record(ctx, EventKitReconciled, string(models.ResourceKit), req.KitID, actor, map[string]interface{}{
			"counts":  req.Counts,
			"changed": changed,
		})
	}
	return rows, nil
}

// ReconcileWithTx applies counts on the caller's transaction. The caller must hold the kit lock.
// Accessories absent from counts are left as they are. It returns every row of the kit and
// how many of them changed.
func (t *DegradationTracker) ReconcileWithTx(ctx context.Context, exec sqlx.ExtContext, kitID string, counts map[string]int) ([]models.KitAccessory, int, error) {
	rows, err := t.kitAccessories.ListByKit(ctx, exec, kitID)
	if err != nil {
		return nil, 0, err
	}
	if err := validateCounts(rows, counts); err != nil {
		return nil, 0, err
	}

	changed := 0
	for i := range rows {
		observed, ok := counts[rows[i].AccessoryID]
		if !ok {
			continue
		}
		next := t.degrade(rows[i], observed)
		if next.CurrentQuantity == rows[i].CurrentQuantity && next.ValidPercent == rows[i].ValidPercent && next.Status == rows[i].Status {
			continue
		}
		if err := t.kitAccessories.UpdateCount(ctx, exec, &next); err != nil {
			return nil, 0, err
		}
		rows[i] = next
		changed++
	}
	return rows, changed, nil
}

func (t *DegradationTracker) degrade(row models.KitAccessory, observed int) models.KitAccessory {
	if observed < row.CurrentQuantity {
		row.CurrentQuantity = observed
	}
	row.ValidPercent = validPercent(row.CurrentQuantity, row.InitialQuantity)
	if t.exhausted(row.CurrentQuantity, row.InitialQuantity) {
		row.Status = models.ValidityInvalid
	} else {
		row.Status = models.ValidityValid
	}
	return row
}

// exhausted compares the exact ratio against the threshold, so a single part left out of
// a large initial count keeps the row VALID even though its rounded percentage is 0.
func (t *DegradationTracker) exhausted(current, initial int) bool {
	if current == 0 {
		return true
	}
	return t.threshold > 0 && current*100 <= t.threshold*initial
}

func validPercent(current, initial int) int {
	if initial <= 0 {
		return 0
	}
	return int(math.Round(float64(current) / float64(initial) * 100))
}

func validateCounts(rows []models.KitAccessory, counts map[string]int) error {
	known := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		known[row.AccessoryID] = struct{}{}
	}
	var unknown, negative []string
	for id, count := range counts {
		if _, ok := known[id]; !ok {
			unknown = append(unknown, id)
			continue
		}
		if count < 0 {
			negative = append(negative, id)
		}
	}
	if len(unknown) == 0 && len(negative) == 0 {
		return nil
	}
	sort.Strings(unknown)
	sort.Strings(negative)
	details := map[string]interface{}{}
	if len(unknown) > 0 {
		details["unknown_accessory_ids"] = unknown
	}
	if len(negative) > 0 {
		details["negative_accessory_ids"] = negative
	}
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid accessory counts"), details)
}
