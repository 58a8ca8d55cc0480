// Package dashboard drives the user dashboard: it owns the view-only state
// (search box, filters, edit form) and decides when the store refetches.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"userdash/pkg/debounce"
	"userdash/pkg/logging"
	"userdash/pkg/store"
	"userdash/pkg/users"
)

const (
	DefaultSearchDelay = 500 * time.Millisecond
	pageWindow         = 5
)

// Store is the part of *store.Store the controller drives.
type Store interface {
	FetchList(ctx context.Context, opts store.ListOptions) error
	FetchStats(ctx context.Context) error
	Create(ctx context.Context, in users.UserInput) (users.User, error)
	Update(ctx context.Context, id int64, in users.UserInput) (users.User, error)
	Delete(ctx context.Context, id int64) error
	SetActive(ctx context.Context, id int64, active bool) (users.User, error)
	SetPage(n int)
	Snapshot() store.State
}

// deps is the set of inputs the list depends on.
type deps struct {
	search string
	role   users.Role
	status users.Status
	page   int
}

type Option func(*Controller)

func WithSearchDelay(d time.Duration) Option {
	return func(c *Controller) { c.delay = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

type Controller struct {
	store  Store
	log    *slog.Logger
	delay  time.Duration
	search *debounce.Debouncer[string]

	mu        sync.Mutex
	ctx       context.Context
	mounted   bool
	text      string
	debounced string
	role      users.Role
	status    users.Status
	editing   *users.User
	formOpen  bool
	issued    *deps
}

func New(s Store, opts ...Option) *Controller {
	c := &Controller{
		store: s,
		log:   slog.Default(),
		delay: DefaultSearchDelay,
		ctx:   context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.search = debounce.New(c.delay, c.searchSettled)
	return c
}

// Mount loads the stats once and issues the first list fetch.
// ctx is also used for fetches triggered by the search debouncer.
func (c *Controller) Mount(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mounted = true
	c.mu.Unlock()

	_ = c.store.FetchStats(ctx)
	return c.refetch(ctx, false)
}

// Unmount cancels any pending search. A controller is not reusable after Unmount.
func (c *Controller) Unmount() {
	c.mu.Lock()
	c.mounted = false
	c.mu.Unlock()

	c.search.Stop()
}

// SetSearch records the raw search text and returns to the first page.
// The list follows once the text has been stable for the search delay.
func (c *Controller) SetSearch(ctx context.Context, text string) error {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()

	c.search.Push(text)
	c.store.SetPage(1)
	return c.refetch(ctx, false)
}

func (c *Controller) searchSettled(text string) {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.debounced = text
	ctx := c.ctx
	c.mu.Unlock()

	if err := c.refetch(ctx, false); err != nil {
		c.log.Warn("search refetch failed", slog.String("search", text), logging.Err(err))
	}
}

func (c *Controller) SetRole(ctx context.Context, role users.Role) error {
	c.mu.Lock()
	c.role = role
	c.mu.Unlock()

	c.store.SetPage(1)
	return c.refetch(ctx, false)
}

func (c *Controller) SetStatus(ctx context.Context, status users.Status) error {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()

	c.store.SetPage(1)
	return c.refetch(ctx, false)
}

// Refresh applies a pending search without waiting for the quiet period and
// reloads the stats. With no search pending the list is reloaded as well.
func (c *Controller) Refresh(ctx context.Context) {
	if c.search.Pending() {
		c.search.Flush()
		_ = c.store.FetchStats(ctx)
		return
	}
	c.refresh(ctx)
}

func (c *Controller) SetPage(ctx context.Context, n int) error {
	c.store.SetPage(n)
	return c.refetch(ctx, false)
}

// refetch issues a list fetch when the dependency set changed since the last
// one, or unconditionally when force is set. A superseded response is not an error.
func (c *Controller) refetch(ctx context.Context, force bool) error {
	page := c.store.Snapshot().Pagination.CurrentPage

	c.mu.Lock()
	d := deps{search: c.debounced, role: c.role, status: c.status, page: page}
	if !force && c.issued != nil && *c.issued == d {
		c.mu.Unlock()
		return nil
	}
	c.issued = &d
	c.mu.Unlock()

	err := c.store.FetchList(ctx, store.ListOptions{
		FilterPatch: store.FilterPatch{Search: &d.search, Role: &d.role, Status: &d.status},
		Page:        d.page,
	})
	if errors.Is(err, store.ErrSuperseded) {
		return nil
	}
	return err
}

// refresh reloads the list and the stats concurrently after a mutation.
// Failures land in the store's error state and are only logged here.
func (c *Controller) refresh(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error { return c.refetch(ctx, true) })
	g.Go(func() error {
		_ = c.store.FetchStats(ctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		c.log.Warn("list refetch after mutation failed", logging.Err(err))
	}
}

// New opens an empty form.
func (c *Controller) New() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.editing = nil
	c.formOpen = true
}

// Edit stages a copy of u and opens the form.
func (c *Controller) Edit(u users.User) {
	c.mu.Lock()
	defer c.mu.Unlock()

	staged := u
	c.editing = &staged
	c.formOpen = true
}

func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.editing = nil
	c.formOpen = false
}

// Submit creates or updates depending on whether a record is staged.
// A form that fails client-side checks returns *users.ValidationError and
// nothing is sent. On any error the form stays open with the staged record intact.
func (c *Controller) Submit(ctx context.Context, in users.UserInput) error {
	if fe := users.ValidateInput(in); len(fe) > 0 {
		return &users.ValidationError{Fields: fe}
	}

	c.mu.Lock()
	editing := c.editing
	c.mu.Unlock()

	if editing == nil {
		if _, err := c.store.Create(ctx, in); err != nil {
			return err
		}
		c.mu.Lock()
		c.formOpen = false
		c.mu.Unlock()

		c.store.SetPage(1)
		c.refresh(ctx)
		return nil
	}

	if _, err := c.store.Update(ctx, editing.ID, in); err != nil {
		return err
	}
	c.mu.Lock()
	c.editing = nil
	c.formOpen = false
	c.mu.Unlock()

	c.refresh(ctx)
	return nil
}

func (c *Controller) Delete(ctx context.Context, id int64) error {
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	c.refresh(ctx)
	return nil
}

// SetActive switches a user's status. The list and stats are reloaded because
// the record may no longer match the status filter.
func (c *Controller) SetActive(ctx context.Context, id int64, active bool) error {
	if _, err := c.store.SetActive(ctx, id, active); err != nil {
		return err
	}
	c.refresh(ctx)
	return nil
}

// ViewModel is everything needed to draw one frame.
type ViewModel struct {
	store.State
	SearchText      string
	DebouncedSearch string
	SearchPending   bool
	Role            users.Role
	Status          users.Status
	FormOpen        bool
	Editing         *users.User
	Pages           []int
}

func (c *Controller) View() ViewModel {
	st := c.store.Snapshot()
	pending := c.search.Pending()

	c.mu.Lock()
	defer c.mu.Unlock()

	vm := ViewModel{
		State:           st,
		SearchText:      c.text,
		DebouncedSearch: c.debounced,
		SearchPending:   pending,
		Role:            c.role,
		Status:          c.status,
		FormOpen:        c.formOpen,
		Pages:           PageWindow(st.Pagination.CurrentPage, st.Pagination.LastPage),
	}
	if c.editing != nil {
		staged := *c.editing
		vm.Editing = &staged
	}
	return vm
}

// PageWindow returns up to five consecutive page numbers around current,
// shifted to stay within [1, last].
func PageWindow(current, last int) []int {
	if last < 1 {
		last = 1
	}
	start := max(1, current-pageWindow/2)
	end := min(last, start+pageWindow-1)
	if end-start < pageWindow-1 {
		start = max(1, end-pageWindow+1)
	}

	pages := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		pages = append(pages, p)
	}
	return pages
}

// RoleCounts returns the per-role totals in display order.
func RoleCounts(s *users.Stats) []RoleCount {
	if s == nil {
		return nil
	}
	out := make([]RoleCount, 0, len(s.ByRole))
	for _, r := range users.Roles {
		out = append(out, RoleCount{Role: r, Count: s.ByRole[r]})
	}
	var extra []RoleCount
	for r, n := range s.ByRole {
		if !r.Valid() {
			extra = append(extra, RoleCount{Role: r, Count: n})
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].Role < extra[j].Role })
	return append(out, extra...)
}

type RoleCount struct {
	Role  users.Role
	Count int
}
