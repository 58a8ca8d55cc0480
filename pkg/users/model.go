package users

import "time"

type Role string

const (
	RoleAdmin  Role = "Admin"
	RoleEditor Role = "Editor"
	RoleUser   Role = "User"
)

// Roles lists every accepted role in display order.
var Roles = []Role{RoleAdmin, RoleEditor, RoleUser}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleUser:
		return true
	}
	return false
}

type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Phone     *string   `json:"phone"`
	Website   *string   `json:"website"`
	Company   *string   `json:"company"`
	Bio       *string   `json:"bio"`
	Avatar    *string   `json:"avatar"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserInput is the writable part of a user, sent on create and full update.
type UserInput struct {
	Name     string  `json:"name" validate:"required,max=255"`
	Email    string  `json:"email" validate:"required,max=255,useremail"`
	Role     Role    `json:"role" validate:"omitempty,oneof=Admin Editor User"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Website  *string `json:"website,omitempty" validate:"omitempty,max=255,httpurl"`
	Company  *string `json:"company,omitempty" validate:"omitempty,max=255"`
	Bio      *string `json:"bio,omitempty" validate:"omitempty,max=1000"`
	Avatar   *string `json:"avatar,omitempty" validate:"omitempty,max=500"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// UserPatch carries a partial update; nil fields are left untouched.
type UserPatch struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Role     *Role   `json:"role,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Website  *string `json:"website,omitempty"`
	Company  *string `json:"company,omitempty"`
	Bio      *string `json:"bio,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// Input converts a stored user back into its writable form.
func (u User) Input() UserInput {
	active := u.IsActive
	return UserInput{
		Name:     u.Name,
		Email:    u.Email,
		Role:     u.Role,
		Phone:    u.Phone,
		Website:  u.Website,
		Company:  u.Company,
		Bio:      u.Bio,
		Avatar:   u.Avatar,
		IsActive: &active,
	}
}

// Apply overlays the non-nil fields of p onto in.
func (p UserPatch) Apply(in UserInput) UserInput {
	if p.Name != nil {
		in.Name = *p.Name
	}
	if p.Email != nil {
		in.Email = *p.Email
	}
	if p.Role != nil {
		in.Role = *p.Role
	}
	if p.Phone != nil {
		in.Phone = p.Phone
	}
	if p.Website != nil {
		in.Website = p.Website
	}
	if p.Company != nil {
		in.Company = p.Company
	}
	if p.Bio != nil {
		in.Bio = p.Bio
	}
	if p.Avatar != nil {
		in.Avatar = p.Avatar
	}
	if p.IsActive != nil {
		in.IsActive = p.IsActive
	}
	return in
}

// Status is the tri-state active filter. The zero value matches any user.
type Status string

const (
	StatusAny      Status = ""
	StatusActive   Status = "true"
	StatusInactive Status = "false"
)

// Bool returns the filter as a nullable bool.
func (s Status) Bool() *bool {
	switch s {
	case StatusActive:
		v := true
		return &v
	case StatusInactive:
		v := false
		return &v
	}
	return nil
}

// ListFilters is what the list endpoint accepts.
type ListFilters struct {
	Search    string
	Role      Role
	IsActive  *bool
	SortBy    string
	SortOrder string
	Page      int
	PerPage   int
}

type Pagination struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// NewPagination computes the cursor for a page of a result set of size total.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page < 1 {
		page = 1
	}
	last := (total + perPage - 1) / perPage
	if last < 1 {
		last = 1
	}
	return Pagination{CurrentPage: page, LastPage: last, PerPage: perPage, Total: total}
}

type UserList struct {
	Items      []User     `json:"items"`
	Pagination Pagination `json:"pagination"`
}

type Stats struct {
	Total    int          `json:"total"`
	Active   int          `json:"active"`
	Inactive int          `json:"inactive"`
	ByRole   map[Role]int `json:"by_role"`
}
