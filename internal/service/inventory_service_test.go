package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elab-api/internal/dto"
	"github.com/noah-isme/elab-api/internal/models"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
)

func TestEquipmentCreateAndSearch(t *testing.T) {
	f := newLabFixture(t, 0)

	item, err := f.inventory.CreateEquipment(context.Background(), dto.CreateEquipmentRequest{Name: "Multimeter", Code: "MM-01"})
	require.NoError(t, err)
	assert.Equal(t, models.EquipmentStatusAvailable, item.Status)

	_, err = f.inventory.CreateEquipment(context.Background(), dto.CreateEquipmentRequest{Code: "MM-02"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	items, pagination, err := f.inventory.SearchEquipment(context.Background(), models.InventoryFilter{Keyword: "multi"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestEquipmentAdminTransitions(t *testing.T) {
	cases := []struct {
		name    string
		from    models.EquipmentStatus
		to      string
		allowed bool
		code    string
	}{
		{name: "available to maintenance", from: models.EquipmentStatusAvailable, to: "MAINTENANCE", allowed: true},
		{name: "available to out of order", from: models.EquipmentStatusAvailable, to: "OUT_OF_ORDER", allowed: true},
		{name: "maintenance to available", from: models.EquipmentStatusMaintenance, to: "AVAILABLE", allowed: true},
		{name: "out of order to maintenance", from: models.EquipmentStatusOutOfOrder, to: "MAINTENANCE", allowed: true},
		{name: "cannot set in use", from: models.EquipmentStatusAvailable, to: "IN_USE", code: appErrors.ErrInvalidStateTransition.Code},
		{name: "cannot leave in use", from: models.EquipmentStatusInUse, to: "MAINTENANCE", code: appErrors.ErrResourceUnavailable.Code},
		{name: "same status", from: models.EquipmentStatusMaintenance, to: "MAINTENANCE", code: appErrors.ErrInvalidStateTransition.Code},
		{name: "unknown status", from: models.EquipmentStatusAvailable, to: "BROKEN", code: appErrors.ErrValidation.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newLabFixture(t, 0)
			f.seedEquipment("eq-1", tc.from)

			item, err := f.inventory.UpdateEquipmentStatus(context.Background(), admin, "eq-1", dto.UpdateStatusRequest{Status: tc.to})
			if tc.allowed {
				require.NoError(t, err)
				assert.Equal(t, models.EquipmentStatus(tc.to), item.Status)
				assert.Equal(t, models.EquipmentStatus(tc.to), f.store.equipment["eq-1"].Status)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
			assert.Equal(t, tc.from, f.store.equipment["eq-1"].Status)
		})
	}
}

func TestEquipmentStatusRequiresAdmin(t *testing.T) {
	f := newLabFixture(t, 0)
	f.seedEquipment("eq-1", models.EquipmentStatusAvailable)

	_, err := f.inventory.UpdateEquipmentStatus(context.Background(), lecturer, "eq-1", dto.UpdateStatusRequest{Status: "MAINTENANCE"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	_, err = f.inventory.UpdateEquipmentStatus(context.Background(), admin, "eq-404", dto.UpdateStatusRequest{Status: "MAINTENANCE"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func seedAccessories(t *testing.T, f *labFixture, names ...string) {
	t.Helper()
	for _, name := range names {
		f.store.accessories[name] = models.Accessory{ID: name, Name: name, Status: models.ValidityValid}
	}
}

func TestKitTemplateCreateMergesRecipe(t *testing.T) {
	f := newLabFixture(t, 0)
	seedAccessories(t, f, "resistor", "led")

	template, err := f.inventory.CreateKitTemplate(context.Background(), dto.CreateKitTemplateRequest{
		Name: "Starter",
		Recipe: []dto.RecipeItem{
			{AccessoryID: "resistor", Quantity: 6},
			{AccessoryID: "led", Quantity: 4},
			{AccessoryID: "resistor", Quantity: 4},
		},
	})
	require.NoError(t, err)
	require.Len(t, template.Recipe, 2)
	assert.Equal(t, "led", template.Recipe[0].AccessoryID)
	assert.Equal(t, 10, template.Recipe[1].Quantity)

	_, err = f.inventory.CreateKitTemplate(context.Background(), dto.CreateKitTemplateRequest{
		Name:   "Broken",
		Recipe: []dto.RecipeItem{{AccessoryID: "capacitor", Quantity: 1}},
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
	assert.Equal(t, []string{"capacitor"}, appErrors.FromError(err).Details["accessory_ids"])
	assert.Len(t, f.store.templates, 1)
}

func TestSetRecipeUpsertsLines(t *testing.T) {
	f := newLabFixture(t, 0)
	seedAccessories(t, f, "resistor", "led")
	template, err := f.inventory.CreateKitTemplate(context.Background(), dto.CreateKitTemplateRequest{
		Name:   "Starter",
		Recipe: []dto.RecipeItem{{AccessoryID: "resistor", Quantity: 6}},
	})
	require.NoError(t, err)

	updated, err := f.inventory.SetRecipe(context.Background(), template.ID, dto.SetRecipeRequest{Items: []dto.RecipeItem{
		{AccessoryID: "resistor", Quantity: 8},
		{AccessoryID: "led", Quantity: 2},
	}})
	require.NoError(t, err)
	require.Len(t, updated.Recipe, 2)
	assert.Equal(t, 8, updated.Recipe[1].Quantity)
	assert.Len(t, f.store.recipes, 2)

	_, err = f.inventory.SetRecipe(context.Background(), "missing", dto.SetRecipeRequest{Items: []dto.RecipeItem{{AccessoryID: "led", Quantity: 1}}})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func TestCreateKitSnapshotsRecipe(t *testing.T) {
	f := newLabFixture(t, 0)
	seedAccessories(t, f, "resistor", "led")
	template, err := f.inventory.CreateKitTemplate(context.Background(), dto.CreateKitTemplateRequest{
		Name:   "Starter",
		Recipe: []dto.RecipeItem{{AccessoryID: "resistor", Quantity: 10}, {AccessoryID: "led", Quantity: 4}},
	})
	require.NoError(t, err)

	kit, err := f.inventory.CreateKit(context.Background(), admin, dto.CreateKitRequest{KitTemplateID: template.ID, Name: "Kit 01"})
	require.NoError(t, err)
	assert.Equal(t, models.KitStatusValid, kit.Status)
	require.Len(t, kit.Accessories, 2)
	for _, row := range kit.Accessories {
		assert.Equal(t, row.InitialQuantity, row.CurrentQuantity)
		assert.Equal(t, 100, row.ValidPercent)
		assert.Equal(t, models.ValidityValid, row.Status)
	}

	// later recipe edits do not reach existing kits
	_, err = f.inventory.SetRecipe(context.Background(), template.ID, dto.SetRecipeRequest{Items: []dto.RecipeItem{{AccessoryID: "led", Quantity: 9}}})
	require.NoError(t, err)
	detail, err := f.inventory.GetKit(context.Background(), kit.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, detail.Accessories[0].InitialQuantity)
}

func TestCreateKitRequiresValidTemplate(t *testing.T) {
	f := newLabFixture(t, 0)
	seedAccessories(t, f, "led")
	template, err := f.inventory.CreateKitTemplate(context.Background(), dto.CreateKitTemplateRequest{
		Name:   "Starter",
		Recipe: []dto.RecipeItem{{AccessoryID: "led", Quantity: 4}},
	})
	require.NoError(t, err)
	empty, err := f.inventory.CreateKitTemplate(context.Background(), dto.CreateKitTemplateRequest{Name: "Empty"})
	require.NoError(t, err)

	_, err = f.inventory.CreateKit(context.Background(), admin, dto.CreateKitRequest{KitTemplateID: empty.ID, Name: "Kit"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = f.inventory.UpdateKitTemplateStatus(context.Background(), template.ID, dto.UpdateStatusRequest{Status: "INVALID"})
	require.NoError(t, err)
	_, err = f.inventory.CreateKit(context.Background(), admin, dto.CreateKitRequest{KitTemplateID: template.ID, Name: "Kit"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrResourceUnavailable.Code))
	assert.Empty(t, f.store.kits)
}

func TestCreateKitRollsBackWhenSnapshotFails(t *testing.T) {
	f := newLabFixture(t, 0)
	seedAccessories(t, f, "led")
	template, err := f.inventory.CreateKitTemplate(context.Background(), dto.CreateKitTemplateRequest{
		Name:   "Starter",
		Recipe: []dto.RecipeItem{{AccessoryID: "led", Quantity: 4}},
	})
	require.NoError(t, err)
	f.store.failOn["kitAccessories.CreateBatch"] = errors.New("disk full")

	_, err = f.inventory.CreateKit(context.Background(), admin, dto.CreateKitRequest{KitTemplateID: template.ID, Name: "Kit"})
	require.Error(t, err)
	assert.Empty(t, f.store.kits)
	assert.Empty(t, f.store.kitAccessories)
}

func TestAccessoryLifecycle(t *testing.T) {
	f := newLabFixture(t, 0)

	item, err := f.inventory.CreateAccessory(context.Background(), dto.CreateAccessoryRequest{Name: "LED", ValueCode: "5mm", Category: "optics"})
	require.NoError(t, err)
	assert.Equal(t, models.ValidityValid, item.Status)

	updated, err := f.inventory.UpdateAccessoryStatus(context.Background(), item.ID, dto.UpdateStatusRequest{Status: "INVALID"})
	require.NoError(t, err)
	assert.Equal(t, models.ValidityInvalid, updated.Status)

	_, err = f.inventory.UpdateAccessoryStatus(context.Background(), item.ID, dto.UpdateStatusRequest{Status: "LOST"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestMalformedEquipmentIDs(t *testing.T) {
	f := newLabFixture(t, 0)
	malformed := func() error {
		return fmt.Errorf("find equipment: %w", &pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`})
	}

	f.store.failOn["equipment.FindByID"] = malformed()
	_, err := f.inventory.GetEquipment(context.Background(), "abc")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	f.store.failOn["equipment.FindByID"] = malformed()
	_, err = f.lending.CheckoutEquipment(context.Background(), lecturer, checkoutEquipment("team-1", "abc"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
	assert.Empty(t, f.store.borrows[models.ResourceEquipment])

	f.store.failOn["equipment.Search"] = malformed()
	_, _, err = f.inventory.SearchEquipment(context.Background(), models.InventoryFilter{})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Empty(t, appErr.IncidentID)
}
