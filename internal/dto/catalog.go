package dto

// CreateSlotRequest registers a daily time window.
type CreateSlotRequest struct {
	Name      string `json:"name" validate:"required,max=50"`
	StartTime string `json:"startTime" validate:"required,len=5"`
	EndTime   string `json:"endTime" validate:"required,len=5"`
	Status    string `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE PENDING"`
}

// UpdateSlotRequest edits a slot that is not yet referenced.
type UpdateSlotRequest struct {
	Name      string `json:"name" validate:"required,max=50"`
	StartTime string `json:"startTime" validate:"required,len=5"`
	EndTime   string `json:"endTime" validate:"required,len=5"`
}

// UpdateStatusRequest is the generic status patch body.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AssignScheduleTypeRequest places a class into a cell of the weekly grid.
type AssignScheduleTypeRequest struct {
	DayOfWeek string `json:"dayOfWeek" validate:"required"`
	SlotID    string `json:"slotId" validate:"required"`
	ClassID   string `json:"classId" validate:"required"`
	LabID     string `json:"labId" validate:"required"`
	Name      string `json:"name" validate:"max=120"`
	Color     string `json:"color" validate:"max=16"`
}
