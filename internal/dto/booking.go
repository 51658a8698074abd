package dto

// CreateBookingRequest asks for a lab at a date and slot.
type CreateBookingRequest struct {
	LecturerID  string `json:"lecturerId"`
	ClassID     string `json:"classId" validate:"required"`
	LabID       string `json:"labId" validate:"required"`
	SlotID      string `json:"slotId" validate:"required"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Description string `json:"description" validate:"max=1000"`
}

// UpdateBookingStatusRequest decides a pending booking.
type UpdateBookingStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACCEPT REJECTED"`
}
