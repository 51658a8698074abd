package models

import (
	"strings"
	"time"
)

// Weekday is the persisted day-of-week code.
type Weekday string

const (
	Monday    Weekday = "MON"
	Tuesday   Weekday = "TUE"
	Wednesday Weekday = "WED"
	Thursday  Weekday = "THU"
	Friday    Weekday = "FRI"
	Saturday  Weekday = "SAT"
	Sunday    Weekday = "SUN"
)

// Weekdays lists days in grid order.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var weekdayLabels = map[Weekday]string{
	Monday:    "Monday",
	Tuesday:   "Tuesday",
	Wednesday: "Wednesday",
	Thursday:  "Thursday",
	Friday:    "Friday",
	Saturday:  "Saturday",
	Sunday:    "Sunday",
}

var fromTimeWeekday = map[time.Weekday]Weekday{
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
	time.Sunday:    Sunday,
}

// WeekdayOf returns the day code of t in its own location.
func WeekdayOf(t time.Time) Weekday {
	return fromTimeWeekday[t.Weekday()]
}

// ParseWeekday accepts codes and full names case-insensitively.
func ParseWeekday(raw string) (Weekday, bool) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if len(raw) >= 3 {
		candidate := Weekday(raw[:3])
		if label, ok := weekdayLabels[candidate]; ok && (len(raw) == 3 || strings.EqualFold(label, raw)) {
			return candidate, true
		}
	}
	return "", false
}

// Label returns the display name of the day.
func (d Weekday) Label() string {
	return weekdayLabels[d]
}

// ScheduleTypeStatus marks whether a recurring assignment occupies its slot.
type ScheduleTypeStatus string

const (
	ScheduleTypeStatusValid   ScheduleTypeStatus = "VALID"
	ScheduleTypeStatusInvalid ScheduleTypeStatus = "INVALID"
)

// ScheduleType assigns a (day, slot) cell of the weekly grid to a class in a lab.
type ScheduleType struct {
	ID        string             `db:"id" json:"id"`
	DayOfWeek Weekday            `db:"day_of_week" json:"day_of_week"`
	DayLabel  string             `db:"-" json:"day_label"`
	SlotID    string             `db:"slot_id" json:"slot_id"`
	ClassID   string             `db:"class_id" json:"class_id"`
	LabID     string             `db:"lab_id" json:"lab_id"`
	Name      string             `db:"name" json:"name"`
	Color     string             `db:"color" json:"color"`
	Status    ScheduleTypeStatus `db:"status" json:"status"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

// Decorate fills derived presentation fields.
func (s *ScheduleType) Decorate() {
	s.DayLabel = s.DayOfWeek.Label()
}

// ScheduleTypeFilter narrows schedule type listings.
type ScheduleTypeFilter struct {
	DayOfWeek Weekday
	SlotID    string
	ClassID   string
	LabID     string
	Status    ScheduleTypeStatus
	Page      int
	PageSize  int
}

// WeeklyGridCell is one occupied cell of the weekly grid.
type WeeklyGridCell struct {
	SlotID       string        `json:"slot_id"`
	SlotName     string        `json:"slot_name"`
	StartTime    string        `json:"start_time"`
	EndTime      string        `json:"end_time"`
	ScheduleType *ScheduleType `json:"schedule_type,omitempty"`
}

// WeeklyGridDay groups the cells of one day.
type WeeklyGridDay struct {
	DayOfWeek Weekday          `json:"day_of_week"`
	DayLabel  string           `json:"day_label"`
	Cells     []WeeklyGridCell `json:"cells"`
}
