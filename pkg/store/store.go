// Package store keeps the dashboard's view of the user collection in sync
// with the REST API. All state changes go through dispatch.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"userdash/pkg/apiclient"
	"userdash/pkg/logging"
	"userdash/pkg/users"
)

// ErrSuperseded is returned by FetchList when a newer list request was issued
// before this one completed. Its result is discarded.
var ErrSuperseded = errors.New("store: list response superseded by a newer request")

// API is the subset of *apiclient.Client the store uses.
type API interface {
	Get(ctx context.Context, path string, query apiclient.Query, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Put(ctx context.Context, path string, body, out any) error
	Patch(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, out any) error
}

// ListOptions overrides the committed filters and cursor for one fetch.
// Zero Page or PerPage means "use the current value".
type ListOptions struct {
	FilterPatch
	Page    int
	PerPage int
}

func (o ListOptions) empty() bool {
	return o.FilterPatch.empty() && o.Page == 0 && o.PerPage == 0
}

type envelope[T any] struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Data       T                 `json:"data"`
	Pagination *users.Pagination `json:"pagination"`
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithPerPage sets the initial page size.
func WithPerPage(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.state.Pagination.PerPage = n
		}
	}
}

type Store struct {
	api API
	log *slog.Logger

	// notifyMu orders subscriber callbacks in dispatch order.
	notifyMu sync.Mutex

	mu      sync.Mutex
	state   State
	listSeq uint64
	subs    map[int]func(State)
	nextSub int
}

func New(api API, opts ...Option) *Store {
	s := &Store{
		api:   api,
		log:   slog.Default(),
		state: initialState(users.DefaultPerPage),
		subs:  make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// dispatch applies actions in order as one transition and notifies subscribers.
// Subscribers must not dispatch synchronously.
func (s *Store) dispatch(actions ...action) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	for _, a := range actions {
		a.apply(&s.state)
	}
	snap, subs := s.state.clone(), s.subscribersLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// dispatchList applies a list completion only if seq is still the latest request.
func (s *Store) dispatchList(seq uint64, actions ...action) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if seq != s.listSeq {
		s.mu.Unlock()
		return false
	}
	for _, a := range actions {
		a.apply(&s.state)
	}
	snap, subs := s.state.clone(), s.subscribersLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return true
}

func (s *Store) subscribersLocked() []func(State) {
	out := make([]func(State), 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.clone()
}

// Subscribe registers fn to receive a snapshot after every transition.
// The returned func unregisters it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// beginList takes the next list sequence number and publishes the loading
// transition under one lock. An older request can never mark the list loading
// after a newer one has settled.
func (s *Store) beginList(opts ListOptions) (seq uint64, filters Filters, page, perPage int) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.listSeq++
	seq = s.listSeq
	filters = opts.FilterPatch.Merge(s.state.Filters)
	page = opts.Page
	if page <= 0 {
		page = s.state.Pagination.CurrentPage
	}
	perPage = opts.PerPage
	if perPage <= 0 {
		perPage = s.state.Pagination.PerPage
	}
	setLoading(true).apply(&s.state)
	snap, subs := s.state.clone(), s.subscribersLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return seq, filters, page, perPage
}

// FetchList loads one page using the committed filters merged with opts.
// Filters are committed only when opts is non-empty.
func (s *Store) FetchList(ctx context.Context, opts ListOptions) error {
	seq, filters, page, perPage := s.beginList(opts)

	query := apiclient.Query{
		"search":     filters.Search,
		"role":       string(filters.Role),
		"is_active":  string(filters.Status),
		"sort_by":    filters.SortBy,
		"sort_order": filters.SortOrder,
		"page":       page,
		"per_page":   perPage,
	}

	var resp envelope[[]users.User]
	if err := s.api.Get(ctx, "/users", query, &resp); err != nil {
		if !s.dispatchList(seq, setError{err: err}) {
			return ErrSuperseded
		}
		return err
	}

	actions := []action{setUsers{records: resp.Data, pagination: resp.Pagination}}
	if !opts.empty() {
		actions = append(actions, setFilters{patch: filters.patch()})
	}
	if !s.dispatchList(seq, actions...) {
		s.log.Debug("discarding superseded list response", slog.Uint64("seq", seq))
		return ErrSuperseded
	}
	return nil
}

// FetchStats refreshes the aggregate counts. Failures are logged and leave
// the previous stats in place.
func (s *Store) FetchStats(ctx context.Context) error {
	var resp envelope[users.Stats]
	if err := s.api.Get(ctx, "/users/stats", nil, &resp); err != nil {
		s.log.Warn("error fetching stats", logging.Err(err))
		return err
	}
	s.dispatch(setStats{stats: resp.Data})
	return nil
}

// Create posts a new user. The list is not touched; callers refetch.
func (s *Store) Create(ctx context.Context, in users.UserInput) (users.User, error) {
	s.dispatch(setLoading(true))

	var resp envelope[users.User]
	if err := s.api.Post(ctx, "/users", in, &resp); err != nil {
		s.dispatch(setError{err: err}, setLoading(false))
		return users.User{}, err
	}
	s.dispatch(setLoading(false))
	return resp.Data, nil
}

// Update replaces a user and swaps the server's copy into the current page.
func (s *Store) Update(ctx context.Context, id int64, in users.UserInput) (users.User, error) {
	s.dispatch(setLoading(true))

	var resp envelope[users.User]
	if err := s.api.Put(ctx, userPath(id), in, &resp); err != nil {
		s.dispatch(setError{err: err}, setLoading(false))
		return users.User{}, err
	}
	s.dispatch(updateUser{user: resp.Data}, setLoading(false))
	return resp.Data, nil
}

// SetActive changes only the status of a user through a partial update.
func (s *Store) SetActive(ctx context.Context, id int64, active bool) (users.User, error) {
	s.dispatch(setLoading(true))

	var resp envelope[users.User]
	if err := s.api.Patch(ctx, userPath(id), users.UserPatch{IsActive: &active}, &resp); err != nil {
		s.dispatch(setError{err: err}, setLoading(false))
		return users.User{}, err
	}
	s.dispatch(updateUser{user: resp.Data}, setLoading(false))
	return resp.Data, nil
}

// Delete removes a user and corrects the total locally.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.dispatch(setLoading(true))

	if err := s.api.Delete(ctx, userPath(id), nil); err != nil {
		s.dispatch(setError{err: err}, setLoading(false))
		return err
	}
	s.dispatch(deleteUser{id: id}, setLoading(false))
	return nil
}

// SetFilters merges p into the filters and returns to the first page.
func (s *Store) SetFilters(p FilterPatch) {
	s.dispatch(setFilters{patch: p}, setPagination{page: 1})
}

// SetPage moves the cursor without bounds checks.
func (s *Store) SetPage(n int) {
	s.dispatch(setPagination{page: n})
}

func userPath(id int64) string {
	return "/users/" + strconv.FormatInt(id, 10)
}
