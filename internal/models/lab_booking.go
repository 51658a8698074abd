package models

import "time"

// BookingStatus is the lifecycle state of an ad-hoc lab booking.
type BookingStatus string

const (
	BookingStatusPending  BookingStatus = "PENDING"
	BookingStatusAccept   BookingStatus = "ACCEPT"
	BookingStatusRejected BookingStatus = "REJECTED"
)

// BookingDateLayout is the wire and storage layout of booking dates.
const BookingDateLayout = "2006-01-02"

// LabBooking is a one-off request to use a lab at a date and slot.
type LabBooking struct {
	ID          string        `db:"id" json:"id"`
	LecturerID  string        `db:"lecturer_id" json:"lecturer_id"`
	ClassID     string        `db:"class_id" json:"class_id"`
	LabID       string        `db:"lab_id" json:"lab_id"`
	SlotID      string        `db:"slot_id" json:"slot_id"`
	BookingDate time.Time     `db:"booking_date" json:"booking_date"`
	DayOfWeek   Weekday       `db:"-" json:"day_of_week"`
	DayLabel    string        `db:"-" json:"day_label"`
	Status      BookingStatus `db:"status" json:"status"`
	Description string        `db:"description" json:"description"`
	ApprovedBy  *string       `db:"approved_by" json:"approved_by,omitempty"`
	DecidedAt   *time.Time    `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// Decorate fills derived presentation fields.
func (b *LabBooking) Decorate() {
	b.DayOfWeek = WeekdayOf(b.BookingDate)
	b.DayLabel = b.DayOfWeek.Label()
}

// LabBookingFilter narrows booking listings.
type LabBookingFilter struct {
	LecturerID string
	ClassID    string
	LabID      string
	SlotID     string
	Status     BookingStatus
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
	PageSize   int
	SortOrder  string
}
