package store

import (
	"maps"
	"slices"

	"userdash/pkg/users"
)

// Filters is the committed list filter state.
type Filters struct {
	Search    string       `json:"search"`
	Role      users.Role   `json:"role"`
	Status    users.Status `json:"is_active"`
	SortBy    string       `json:"sort_by"`
	SortOrder string       `json:"sort_order"`
}

// FilterPatch changes only its non-nil fields.
type FilterPatch struct {
	Search    *string
	Role      *users.Role
	Status    *users.Status
	SortBy    *string
	SortOrder *string
}

func (p FilterPatch) empty() bool {
	return p.Search == nil && p.Role == nil && p.Status == nil && p.SortBy == nil && p.SortOrder == nil
}

// Merge returns f with the fields of p applied.
func (p FilterPatch) Merge(f Filters) Filters {
	if p.Search != nil {
		f.Search = *p.Search
	}
	if p.Role != nil {
		f.Role = *p.Role
	}
	if p.Status != nil {
		f.Status = *p.Status
	}
	if p.SortBy != nil {
		f.SortBy = *p.SortBy
	}
	if p.SortOrder != nil {
		f.SortOrder = *p.SortOrder
	}
	return f
}

// patch returns a FilterPatch that sets every field to the value in f.
func (f Filters) patch() FilterPatch {
	return FilterPatch{Search: &f.Search, Role: &f.Role, Status: &f.Status, SortBy: &f.SortBy, SortOrder: &f.SortOrder}
}

// State is everything the dashboard renders.
type State struct {
	Records    []users.User
	Loading    bool
	Err        error
	Pagination users.Pagination
	Filters    Filters
	Stats      *users.Stats
}

func initialState(perPage int) State {
	return State{
		Records:    []users.User{},
		Pagination: users.Pagination{CurrentPage: 1, LastPage: 1, PerPage: perPage, Total: 0},
		Filters:    Filters{SortBy: "id", SortOrder: "desc"},
	}
}

// clone returns a copy that shares nothing mutable with s.
func (s State) clone() State {
	out := s
	out.Records = slices.Clone(s.Records)
	if s.Stats != nil {
		st := *s.Stats
		st.ByRole = maps.Clone(s.Stats.ByRole)
		out.Stats = &st
	}
	return out
}

// action is one transition of the closed set below.
type action interface {
	apply(s *State)
}

type (
	setLoading    bool
	setError      struct{ err error }
	setPagination struct{ page int }
	setFilters    struct{ patch FilterPatch }
	updateUser    struct{ user users.User }
	deleteUser    struct{ id int64 }
	setStats      struct{ stats users.Stats }
)

// setUsers keeps the current cursor when pagination is nil.
type setUsers struct {
	records    []users.User
	pagination *users.Pagination
}

func (a setLoading) apply(s *State) { s.Loading = bool(a) }

func (a setError) apply(s *State) {
	s.Err = a.err
	s.Loading = false
}

func (a setUsers) apply(s *State) {
	s.Records = a.records
	if s.Records == nil {
		s.Records = []users.User{}
	}
	if a.pagination != nil {
		s.Pagination = *a.pagination
	}
	s.Loading = false
	s.Err = nil
}

func (a setPagination) apply(s *State) { s.Pagination.CurrentPage = a.page }

func (a setFilters) apply(s *State) { s.Filters = a.patch.Merge(s.Filters) }

// updateUser replaces the matching record in place; other records are untouched.
func (a updateUser) apply(s *State) {
	records := slices.Clone(s.Records)
	for i := range records {
		if records[i].ID == a.user.ID {
			records[i] = a.user
		}
	}
	s.Records = records
}

func (a deleteUser) apply(s *State) {
	s.Records = slices.DeleteFunc(slices.Clone(s.Records), func(u users.User) bool { return u.ID == a.id })
	s.Pagination.Total--
}

func (a setStats) apply(s *State) {
	st := a.stats
	s.Stats = &st
}
