package models

import "time"

// ResourceKind distinguishes the two borrowable resource families.
type ResourceKind string

const (
	ResourceEquipment ResourceKind = "EQUIPMENT"
	ResourceKit       ResourceKind = "KIT"
)

// BorrowStatus is the state of a ledger entry.
type BorrowStatus string

const (
	BorrowStatusBorrowing BorrowStatus = "ARE_BORROWING"
	BorrowStatusPaid      BorrowStatus = "PAID"
)

// BorrowRecord is a team's custody of one equipment or kit (TeamEquipment / TeamKit).
type BorrowRecord struct {
	ID           string       `db:"id" json:"id"`
	Kind         ResourceKind `db:"-" json:"kind"`
	TeamID       string       `db:"team_id" json:"team_id"`
	ClassID      string       `db:"class_id" json:"class_id"`
	ResourceID   string       `db:"resource_id" json:"resource_id"`
	ResourceName string       `db:"resource_name" json:"resource_name,omitempty"`
	Name         string       `db:"name" json:"name"`
	Description  string       `db:"description" json:"description"`
	BorrowDate   time.Time    `db:"borrow_date" json:"borrow_date"`
	ReturnDate   *time.Time   `db:"return_date" json:"return_date,omitempty"`
	Status       BorrowStatus `db:"status" json:"status"`
	CreatedBy    string       `db:"created_by" json:"created_by"`
	ReturnedBy   *string      `db:"returned_by" json:"returned_by,omitempty"`
}

// BorrowHistoryFilter narrows ledger history queries.
type BorrowHistoryFilter struct {
	Keyword   string
	TeamID    string
	ClassID   string
	Status    BorrowStatus
	// From and To are inclusive lab calendar days.
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string

	// BorrowedFrom and BorrowedBefore bound borrow_date as [from, before); set by InLocation.
	BorrowedFrom   *time.Time
	BorrowedBefore *time.Time
}

// InLocation resolves the From/To calendar days into instants of loc. To covers its whole
// day, so the upper bound is the following midnight.
func (f BorrowHistoryFilter) InLocation(loc *time.Location) BorrowHistoryFilter {
	if loc == nil {
		loc = time.UTC
	}
	f.BorrowedFrom, f.BorrowedBefore = nil, nil
	if f.From != nil {
		start := time.Date(f.From.Year(), f.From.Month(), f.From.Day(), 0, 0, 0, 0, loc)
		f.BorrowedFrom = &start
	}
	if f.To != nil {
		end := time.Date(f.To.Year(), f.To.Month(), f.To.Day()+1, 0, 0, 0, 0, loc)
		f.BorrowedBefore = &end
	}
	return f
}

// ExportFormat enumerates supported history export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)
