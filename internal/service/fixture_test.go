package service

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/elab-api/internal/models"
)

var (
	lecturer = models.Actor{UserID: "lecturer-1", Role: models.RoleLecturer}
	admin    = models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
	student  = models.Actor{UserID: "student-1", Role: models.RoleStudent}
)

// labFixture wires every engine service over one in-memory store.
type labFixture struct {
	store     *memStore
	runner    *memRunner
	now       time.Time
	checker   *ConflictChecker
	slots     *SlotService
	schedules *ScheduleTypeService
	bookings  *LabBookingService
	inventory *InventoryService
	tracker   *DegradationTracker
	lending   *LendingService
}

func newLabFixture(t *testing.T, threshold int) *labFixture {
	t.Helper()
	store := newMemStore()
	runner := &memRunner{store: store}
	logger := zap.NewNop()
	now := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC) // a Monday

	f := &labFixture{store: store, runner: runner, now: now}
	f.checker = NewConflictChecker(memScheduleTypes{store}, memBookings{store}, nil, logger)
	f.slots = NewSlotService(memSlots{store}, nil, 0, nil, logger)
	f.schedules = NewScheduleTypeService(ScheduleTypeServiceDeps{
		Repo:   memScheduleTypes{store},
		Slots:  memSlots{store},
		Runner: runner,
		Logger: logger,
	})
	f.bookings = NewLabBookingService(LabBookingServiceDeps{
		Repo:    memBookings{store},
		Slots:   memSlots{store},
		Checker: f.checker,
		Runner:  runner,
		Logger:  logger,
		Now:     func() time.Time { return now },
	})
	f.inventory = NewInventoryService(InventoryServiceDeps{
		Equipment:      memEquipment{store},
		Accessories:    memAccessories{store},
		Templates:      memTemplates{store},
		Kits:           memKits{store},
		KitAccessories: memKitAccessories{store},
		Runner:         runner,
		Logger:         logger,
	})
	f.tracker = NewDegradationTracker(DegradationTrackerDeps{
		Kits:           memKits{store},
		KitAccessories: memKitAccessories{store},
		Runner:         runner,
		Threshold:      threshold,
		Logger:         logger,
	})
	f.lending = NewLendingService(LendingServiceDeps{
		EquipmentBorrows: memBorrows{store, models.ResourceEquipment},
		KitBorrows:       memBorrows{store, models.ResourceKit},
		Equipment:        memEquipment{store},
		Kits:             memKits{store},
		Tracker:          f.tracker,
		Runner:           runner,
		Exporter:         NewHistoryExportService(3, logger, nil, nil),
		Logger:           logger,
		Now:              func() time.Time { return now },
	})
	return f
}

func (f *labFixture) seedSlot(id string, status models.SlotStatus) {
	f.store.slots[id] = models.Slot{ID: id, Name: id, StartTime: "07:00", EndTime: "09:00", Status: status}
}

func (f *labFixture) seedSchedule(id string, day models.Weekday, slotID, classID, labID string) {
	f.store.scheduleTypes[id] = models.ScheduleType{ID: id, DayOfWeek: day, SlotID: slotID, ClassID: classID, LabID: labID, Status: models.ScheduleTypeStatusValid}
}

func (f *labFixture) seedBooking(id string, date time.Time, slotID, classID, labID string, status models.BookingStatus) {
	f.store.bookings[id] = models.LabBooking{ID: id, LecturerID: lecturer.UserID, BookingDate: date, SlotID: slotID, ClassID: classID, LabID: labID, Status: status}
}

func (f *labFixture) seedEquipment(id string, status models.EquipmentStatus) {
	f.store.equipment[id] = models.Equipment{ID: id, Name: "Oscilloscope " + id, Code: id, Status: status}
}

// seedKit creates a VALID kit whose accessories start at the given initial quantities.
func (f *labFixture) seedKit(id string, initial map[string]int) {
	f.store.kits[id] = models.Kit{ID: id, KitTemplateID: "template-1", Name: "Arduino kit " + id, Status: models.KitStatusValid}
	for accessoryID, qty := range initial {
		rowID := id + "-" + accessoryID
		f.store.kitAccessories[rowID] = models.KitAccessory{
			ID:              rowID,
			KitID:           id,
			AccessoryID:     accessoryID,
			InitialQuantity: qty,
			CurrentQuantity: qty,
			ValidPercent:    100,
			Status:          models.ValidityValid,
		}
	}
}

func (f *labFixture) kitRow(kitID, accessoryID string) models.KitAccessory {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.kitAccessories[kitID+"-"+accessoryID]
}

func mustDate(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := time.Parse(models.BookingDateLayout, raw)
	if err != nil {
		t.Fatalf("parse date %s: %v", raw, err)
	}
	return d
}
