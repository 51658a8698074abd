package models

// UserRole represents the portal roles recognised by the engine.
type UserRole string

const (
	RoleAdmin            UserRole = "ADMIN"
	RoleHeadOfDepartment UserRole = "HEAD_OF_DEPARTMENT"
	RoleLecturer         UserRole = "LECTURER"
	RoleStudent          UserRole = "STUDENT"
)

// Actor is the caller identity passed explicitly into every engine call.
type Actor struct {
	UserID string
	Role   UserRole
}

// IsAdmin reports whether the actor administers the lab.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NormalizePage clamps page and size the same way every list query does.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
