package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/elab-api/internal/models"
)

// memStore is an in-memory stand-in for the lab schema. Repositories below are thin views over it.
type memStore struct {
	mu sync.Mutex

	seq            int
	slots          map[string]models.Slot
	scheduleTypes  map[string]models.ScheduleType
	bookings       map[string]models.LabBooking
	equipment      map[string]models.Equipment
	accessories    map[string]models.Accessory
	templates      map[string]models.KitTemplate
	recipes        map[string]models.AccessoryKitTemplate
	kits           map[string]models.Kit
	kitAccessories map[string]models.KitAccessory
	borrows        map[models.ResourceKind]map[string]models.BorrowRecord
	events         []models.LendingEvent

	// failOn makes the named operation return the error once.
	failOn map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		slots:          map[string]models.Slot{},
		scheduleTypes:  map[string]models.ScheduleType{},
		bookings:       map[string]models.LabBooking{},
		equipment:      map[string]models.Equipment{},
		accessories:    map[string]models.Accessory{},
		templates:      map[string]models.KitTemplate{},
		recipes:        map[string]models.AccessoryKitTemplate{},
		kits:           map[string]models.Kit{},
		kitAccessories: map[string]models.KitAccessory{},
		borrows: map[models.ResourceKind]map[string]models.BorrowRecord{
			models.ResourceEquipment: {},
			models.ResourceKit:       {},
		},
		failOn: map[string]error{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) fail(op string) error {
	if err, ok := m.failOn[op]; ok {
		delete(m.failOn, op)
		return err
	}
	return nil
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

type memSnapshot struct {
	seq            int
	slots          map[string]models.Slot
	scheduleTypes  map[string]models.ScheduleType
	bookings       map[string]models.LabBooking
	equipment      map[string]models.Equipment
	accessories    map[string]models.Accessory
	templates      map[string]models.KitTemplate
	recipes        map[string]models.AccessoryKitTemplate
	kits           map[string]models.Kit
	kitAccessories map[string]models.KitAccessory
	borrows        map[models.ResourceKind]map[string]models.BorrowRecord
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	borrows := map[models.ResourceKind]map[string]models.BorrowRecord{}
	for kind, records := range m.borrows {
		borrows[kind] = copyMap(records)
	}
	return memSnapshot{
		seq:            m.seq,
		slots:          copyMap(m.slots),
		scheduleTypes:  copyMap(m.scheduleTypes),
		bookings:       copyMap(m.bookings),
		equipment:      copyMap(m.equipment),
		accessories:    copyMap(m.accessories),
		templates:      copyMap(m.templates),
		recipes:        copyMap(m.recipes),
		kits:           copyMap(m.kits),
		kitAccessories: copyMap(m.kitAccessories),
		borrows:        borrows,
	}
}

func (m *memStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq = s.seq
	m.slots = s.slots
	m.scheduleTypes = s.scheduleTypes
	m.bookings = s.bookings
	m.equipment = s.equipment
	m.accessories = s.accessories
	m.templates = s.templates
	m.recipes = s.recipes
	m.kits = s.kits
	m.kitAccessories = s.kitAccessories
	m.borrows = s.borrows
}

// memRunner serialises transitions like the keyed locks do and rolls the store back on error.
type memRunner struct {
	mu    sync.Mutex
	store *memStore
	runs  []string
	keys  [][]string
}

func (r *memRunner) Run(ctx context.Context, operation string, keys []string, fn func(tx *sqlx.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, operation)
	r.keys = append(r.keys, append([]string(nil), keys...))
	snap := r.store.snapshot()
	if err := fn(nil); err != nil {
		r.store.restore(snap)
		return err
	}
	return nil
}

type memSlots struct{ *memStore }

func (m memSlots) List(ctx context.Context, filter models.SlotFilter) ([]models.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("slots.List"); err != nil {
		return nil, err
	}
	var out []models.Slot
	for _, slot := range m.slots {
		if filter.Status == "" || slot.Status == filter.Status {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (m memSlots) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &slot, nil
}

func (m memSlots) FindByIDForShare(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Slot, error) {
	return m.FindByID(ctx, exec, id)
}

func (m memSlots) Create(ctx context.Context, slot *models.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot.ID == "" {
		slot.ID = m.nextID("slot")
	}
	m.slots[slot.ID] = *slot
	return nil
}

func (m memSlots) Update(ctx context.Context, slot *models.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[slot.ID] = *slot
	return nil
}

func (m memSlots) UpdateStatus(ctx context.Context, id string, status models.SlotStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot := m.slots[id]
	slot.Status = status
	m.slots[id] = slot
	return nil
}

func (m memSlots) IsReferenced(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.scheduleTypes {
		if item.SlotID == id {
			return true, nil
		}
	}
	for _, booking := range m.bookings {
		if booking.SlotID == id {
			return true, nil
		}
	}
	return false, nil
}

type memScheduleTypes struct{ *memStore }

func (m memScheduleTypes) List(ctx context.Context, filter models.ScheduleTypeFilter) ([]models.ScheduleType, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ScheduleType
	for _, item := range m.scheduleTypes {
		if filter.DayOfWeek != "" && item.DayOfWeek != filter.DayOfWeek {
			continue
		}
		if filter.ClassID != "" && item.ClassID != filter.ClassID {
			continue
		}
		if filter.LabID != "" && item.LabID != filter.LabID {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m memScheduleTypes) ListActive(ctx context.Context, classID, labID string) ([]models.ScheduleType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ScheduleType
	for _, item := range m.scheduleTypes {
		if item.Status != models.ScheduleTypeStatusValid {
			continue
		}
		if (classID != "" && item.ClassID == classID) || (labID != "" && item.LabID == labID) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m memScheduleTypes) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ScheduleType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.scheduleTypes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func (m memScheduleTypes) FindActiveConflict(ctx context.Context, exec sqlx.ExtContext, day models.Weekday, slotID, classID, labID, excludeID string) (*models.ScheduleType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("schedule.FindActiveConflict"); err != nil {
		return nil, err
	}
	for _, item := range m.scheduleTypes {
		if item.ID == excludeID || item.Status != models.ScheduleTypeStatusValid {
			continue
		}
		if item.DayOfWeek == day && item.SlotID == slotID && (item.ClassID == classID || item.LabID == labID) {
			found := item
			return &found, nil
		}
	}
	return nil, nil
}

func (m memScheduleTypes) Create(ctx context.Context, exec sqlx.ExtContext, item *models.ScheduleType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		item.ID = m.nextID("schedule")
	}
	m.scheduleTypes[item.ID] = *item
	return nil
}

func (m memScheduleTypes) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ScheduleTypeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.scheduleTypes[id]
	item.Status = status
	m.scheduleTypes[id] = item
	return nil
}

type memBookings struct{ *memStore }

func (m memBookings) List(ctx context.Context, filter models.LabBookingFilter) ([]models.LabBooking, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LabBooking
	for _, booking := range m.bookings {
		if filter.LabID != "" && booking.LabID != filter.LabID {
			continue
		}
		if filter.Status != "" && booking.Status != filter.Status {
			continue
		}
		if filter.DateFrom != nil && booking.BookingDate.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && booking.BookingDate.After(*filter.DateTo) {
			continue
		}
		out = append(out, booking)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, filter.Page, filter.PageSize), len(out), nil
}

func paginate[T any](items []T, page, size int) []T {
	page, size = models.NormalizePage(page, size)
	start := (page - 1) * size
	if start > len(items) {
		start = len(items)
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (m memBookings) FindByID(ctx context.Context, id string) (*models.LabBooking, error) {
	return m.FindByIDForUpdate(ctx, nil, id)
}

func (m memBookings) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.LabBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.bookings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &booking, nil
}

func (m memBookings) FindAccepted(ctx context.Context, exec sqlx.ExtContext, date time.Time, slotID, labID, excludeID string) (*models.LabBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, booking := range m.bookings {
		if booking.ID == excludeID || booking.Status != models.BookingStatusAccept {
			continue
		}
		if booking.BookingDate.Equal(date) && booking.SlotID == slotID && booking.LabID == labID {
			found := booking
			return &found, nil
		}
	}
	return nil, nil
}

func (m memBookings) Create(ctx context.Context, exec sqlx.ExtContext, booking *models.LabBooking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("bookings.Create"); err != nil {
		return err
	}
	if booking.ID == "" {
		booking.ID = m.nextID("booking")
	}
	m.bookings[booking.ID] = *booking
	return nil
}

func (m memBookings) UpdateDecision(ctx context.Context, exec sqlx.ExtContext, booking *models.LabBooking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[booking.ID] = *booking
	return nil
}

type memEquipment struct{ *memStore }

func (m memEquipment) Search(ctx context.Context, filter models.InventoryFilter) ([]models.Equipment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("equipment.Search"); err != nil {
		return nil, 0, err
	}
	var out []models.Equipment
	for _, item := range m.equipment {
		if filter.Status != "" && string(item.Status) != filter.Status {
			continue
		}
		if filter.Keyword != "" && !strings.Contains(strings.ToLower(item.Name), strings.ToLower(filter.Keyword)) {
			continue
		}
		out = append(out, item)
	}
	return out, len(out), nil
}

func (m memEquipment) FindByID(ctx context.Context, id string) (*models.Equipment, error) {
	return m.FindByIDForUpdate(ctx, nil, id)
}

func (m memEquipment) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Equipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("equipment.FindByID"); err != nil {
		return nil, err
	}
	item, ok := m.equipment[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func (m memEquipment) Create(ctx context.Context, item *models.Equipment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		item.ID = m.nextID("equipment")
	}
	m.equipment[item.ID] = *item
	return nil
}

func (m memEquipment) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.EquipmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("equipment.UpdateStatus"); err != nil {
		return err
	}
	item := m.equipment[id]
	item.Status = status
	m.equipment[id] = item
	return nil
}

type memAccessories struct{ *memStore }

func (m memAccessories) Search(ctx context.Context, filter models.InventoryFilter) ([]models.Accessory, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Accessory
	for _, item := range m.accessories {
		out = append(out, item)
	}
	return out, len(out), nil
}

func (m memAccessories) FindByID(ctx context.Context, id string) (*models.Accessory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.accessories[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func (m memAccessories) FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Accessory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Accessory
	for _, id := range ids {
		if item, ok := m.accessories[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m memAccessories) Create(ctx context.Context, item *models.Accessory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		item.ID = m.nextID("accessory")
	}
	m.accessories[item.ID] = *item
	return nil
}

func (m memAccessories) UpdateStatus(ctx context.Context, id string, status models.ValidityStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.accessories[id]
	item.Status = status
	m.accessories[id] = item
	return nil
}

type memTemplates struct{ *memStore }

func (m memTemplates) Search(ctx context.Context, filter models.InventoryFilter) ([]models.KitTemplate, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.KitTemplate
	for _, item := range m.templates {
		out = append(out, item)
	}
	return out, len(out), nil
}

func (m memTemplates) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.KitTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.templates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func (m memTemplates) Create(ctx context.Context, exec sqlx.ExtContext, item *models.KitTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		item.ID = m.nextID("template")
	}
	stored := *item
	stored.Recipe = nil
	m.templates[item.ID] = stored
	return nil
}

func (m memTemplates) UpdateStatus(ctx context.Context, id string, status models.ValidityStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.templates[id]
	item.Status = status
	m.templates[id] = item
	return nil
}

func (m memTemplates) UpsertRecipeItem(ctx context.Context, exec sqlx.ExtContext, item *models.AccessoryKitTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := item.KitTemplateID + "|" + item.AccessoryID
	if existing, ok := m.recipes[key]; ok {
		item.ID = existing.ID
	} else if item.ID == "" {
		item.ID = m.nextID("recipe")
	}
	m.recipes[key] = *item
	return nil
}

func (m memTemplates) ListRecipe(ctx context.Context, exec sqlx.ExtContext, templateID string) ([]models.AccessoryKitTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AccessoryKitTemplate
	for _, line := range m.recipes {
		if line.KitTemplateID == templateID {
			line.AccessoryName = m.accessories[line.AccessoryID].Name
			out = append(out, line)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccessoryID < out[j].AccessoryID })
	return out, nil
}

type memKits struct{ *memStore }

func (m memKits) Search(ctx context.Context, filter models.InventoryFilter) ([]models.Kit, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Kit
	for _, item := range m.kits {
		out = append(out, item)
	}
	return out, len(out), nil
}

func (m memKits) FindByID(ctx context.Context, id string) (*models.Kit, error) {
	return m.FindByIDForUpdate(ctx, nil, id)
}

func (m memKits) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Kit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.kits[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func (m memKits) Create(ctx context.Context, exec sqlx.ExtContext, item *models.Kit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		item.ID = m.nextID("kit")
	}
	m.kits[item.ID] = *item
	return nil
}

func (m memKits) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.KitStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("kits.UpdateStatus"); err != nil {
		return err
	}
	item := m.kits[id]
	item.Status = status
	m.kits[id] = item
	return nil
}

type memKitAccessories struct{ *memStore }

func (m memKitAccessories) CreateBatch(ctx context.Context, exec sqlx.ExtContext, rows []models.KitAccessory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("kitAccessories.CreateBatch"); err != nil {
		return err
	}
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = m.nextID("kit-accessory")
		}
		m.kitAccessories[rows[i].ID] = rows[i]
	}
	return nil
}

func (m memKitAccessories) ListByKit(ctx context.Context, exec sqlx.ExtContext, kitID string) ([]models.KitAccessory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.KitAccessory
	for _, row := range m.kitAccessories {
		if row.KitID == kitID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccessoryID < out[j].AccessoryID })
	return out, nil
}

func (m memKitAccessories) UpdateCount(ctx context.Context, exec sqlx.ExtContext, row *models.KitAccessory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kitAccessories[row.ID] = *row
	return nil
}

type memBorrows struct {
	*memStore
	kind models.ResourceKind
}

func (m memBorrows) Kind() models.ResourceKind { return m.kind }

func (m memBorrows) FindOpenByResource(ctx context.Context, exec sqlx.ExtContext, resourceID string) (*models.BorrowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.borrows[m.kind] {
		if record.ResourceID == resourceID && record.Status == models.BorrowStatusBorrowing {
			found := record
			return &found, nil
		}
	}
	return nil, nil
}

func (m memBorrows) FindByID(ctx context.Context, id string) (*models.BorrowRecord, error) {
	return m.FindByIDForUpdate(ctx, nil, id)
}

func (m memBorrows) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.BorrowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.borrows[m.kind][id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &record, nil
}

func (m memBorrows) Create(ctx context.Context, exec sqlx.ExtContext, record *models.BorrowRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.ID == "" {
		record.ID = m.nextID("borrow")
	}
	record.Kind = m.kind
	m.borrows[m.kind][record.ID] = *record
	return nil
}

func (m memBorrows) Close(ctx context.Context, exec sqlx.ExtContext, record *models.BorrowRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.borrows[m.kind][record.ID]
	if !ok || stored.Status != models.BorrowStatusBorrowing {
		return false, nil
	}
	record.Status = models.BorrowStatusPaid
	m.borrows[m.kind][record.ID] = *record
	return true, nil
}

func (m memBorrows) History(ctx context.Context, filter models.BorrowHistoryFilter) ([]models.BorrowRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.BorrowRecord
	for _, record := range m.borrows[m.kind] {
		if filter.TeamID != "" && record.TeamID != filter.TeamID {
			continue
		}
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if filter.BorrowedFrom != nil && record.BorrowDate.Before(*filter.BorrowedFrom) {
			continue
		}
		if filter.BorrowedBefore != nil && !record.BorrowDate.Before(*filter.BorrowedBefore) {
			continue
		}
		all = append(all, record)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	start := (page - 1) * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

type memEvents struct{ *memStore }

func (m memEvents) Create(ctx context.Context, event *models.LendingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("events.Create"); err != nil {
		return err
	}
	m.events = append(m.events, *event)
	return nil
}

func (m memEvents) List(ctx context.Context, filter models.LendingEventFilter) ([]models.LendingEvent, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LendingEvent
	for _, event := range m.events {
		if filter.EntityID != "" && event.EntityID != filter.EntityID {
			continue
		}
		out = append(out, event)
	}
	return out, len(out), nil
}

func (m memEvents) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
