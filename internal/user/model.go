package user

import (
	"time"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

type Location struct {
	Label     string  `json:"label"     bson:"label"`
	Latitude  float64 `json:"latitude"  bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

type User struct {
	ID        string    `json:"id"                 bson:"_id"`
	Email     string    `json:"email"              bson:"email"`
	Name      string    `json:"name"               bson:"name"`
	Role      Role      `json:"role"               bson:"role"`
	Active    bool      `json:"active"             bson:"active"`
	Location  *Location `json:"location,omitempty" bson:"location,omitempty"`
	CreatedAt time.Time `json:"createdAt"          bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"          bson:"updatedAt"`
}

func (u User) IsAdmin() bool  { return u.Role == RoleAdmin }
func (u User) IsSeller() bool { return u.Role == RoleSeller }

func (u User) SortKey() (time.Time, string) { return u.CreatedAt, u.ID }

// ProfileRequest is the body of a profile registration or update.
// swagger:model ProfileRequest
type ProfileRequest struct {
	Email    string    `json:"email"    validate:"required,email" example:"ana@campus.edu"`
	Name     string    `json:"name"     validate:"required,max=120" example:"Ana Reyes"`
	Location *Location `json:"location"`
}

// ActiveRequest activates or deactivates an account.
// swagger:model ActiveRequest
type ActiveRequest struct {
	Active *bool `json:"active" validate:"required" example:"false"`
}
