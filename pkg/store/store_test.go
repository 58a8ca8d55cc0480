package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userdash/pkg/apiclient"
	"userdash/pkg/logging"
	"userdash/pkg/users"
)

// call is one request seen by fakeAPI.
type call struct {
	method string
	path   string
	query  string
	body   any
}

// reply is a canned answer: payload is JSON-encoded into out, or err is returned.
type reply struct {
	payload any
	err     error
	// gate, when set, blocks the call until closed.
	gate    chan struct{}
}

type fakeAPI struct {
	mu      sync.Mutex
	calls   []call
	replies map[string][]reply
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{replies: map[string][]reply{}}
}

func (f *fakeAPI) on(method, path string, r reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := method + " " + path
	f.replies[key] = append(f.replies[key], r)
}

func (f *fakeAPI) next(method, path, query string, body any) reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{method: method, path: path, query: query, body: body})
	key := method + " " + path
	queue := f.replies[key]
	if len(queue) == 0 {
		return reply{err: errors.New("unexpected call " + key)}
	}
	f.replies[key] = queue[1:]
	return queue[0]
}

func (f *fakeAPI) serve(r reply, out any) error {
	if r.gate != nil {
		<-r.gate
	}
	if r.err != nil {
		return r.err
	}
	if out == nil || r.payload == nil {
		return nil
	}
	raw, err := json.Marshal(r.payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeAPI) Get(ctx context.Context, path string, query apiclient.Query, out any) error {
	return f.serve(f.next(http.MethodGet, path, query.Encode(), nil), out)
}

func (f *fakeAPI) Post(ctx context.Context, path string, body, out any) error {
	return f.serve(f.next(http.MethodPost, path, "", body), out)
}

func (f *fakeAPI) Put(ctx context.Context, path string, body, out any) error {
	return f.serve(f.next(http.MethodPut, path, "", body), out)
}

func (f *fakeAPI) Patch(ctx context.Context, path string, body, out any) error {
	return f.serve(f.next(http.MethodPatch, path, "", body), out)
}

func (f *fakeAPI) Delete(ctx context.Context, path string, out any) error {
	return f.serve(f.next(http.MethodDelete, path, "", nil), out)
}

func (f *fakeAPI) lastCall() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func listPayload(pag users.Pagination, records ...users.User) map[string]any {
	return map[string]any{"success": true, "data": records, "pagination": pag}
}

func newTestStore(api API) *Store {
	return New(api, WithLogger(logging.Discard()))
}

// seedStore loads records into s through a successful fetch.
func seedStore(t *testing.T, s *Store, api *fakeAPI, total int, records ...users.User) {
	t.Helper()
	api.on(http.MethodGet, "/users", reply{payload: listPayload(users.NewPagination(1, 10, total), records...)})
	require.NoError(t, s.FetchList(context.Background(), ListOptions{}))
}

func TestStore_InitialState(t *testing.T) {
	s := newTestStore(newFakeAPI())

	st := s.Snapshot()
	assert.Empty(t, st.Records)
	assert.False(t, st.Loading)
	assert.NoError(t, st.Err)
	assert.Equal(t, users.Pagination{CurrentPage: 1, LastPage: 1, PerPage: 10, Total: 0}, st.Pagination)
	assert.Equal(t, Filters{SortBy: "id", SortOrder: "desc"}, st.Filters)
	assert.Nil(t, st.Stats)
}

func TestStore_FetchList_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users", r.URL.Path)
		assert.Equal(t, "page=1&per_page=10&sort_by=id&sort_order=desc", r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"message":"users listed","data":[{"id":1,"name":"Alice","email":"alice@example.com","role":"Admin","is_active":true}],"pagination":{"current_page":1,"last_page":3,"per_page":10,"total":25}}`)
	}))
	defer srv.Close()

	s := newTestStore(apiclient.New(srv.URL + "/api"))
	require.NoError(t, s.FetchList(context.Background(), ListOptions{}))

	st := s.Snapshot()
	assert.False(t, st.Loading)
	assert.NoError(t, st.Err)
	require.Len(t, st.Records, 1)
	assert.Equal(t, "Alice", st.Records[0].Name)
	assert.Equal(t, 3, st.Pagination.LastPage)
	assert.Equal(t, 25, st.Pagination.Total)
}

func TestStore_FetchList_StripsEmptyFilters(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)

	search, status := "", users.StatusInactive
	api.on(http.MethodGet, "/users", reply{payload: listPayload(users.NewPagination(2, 10, 15))})
	require.NoError(t, s.FetchList(context.Background(), ListOptions{
		FilterPatch: FilterPatch{Search: &search, Status: &status},
		Page:        2,
	}))

	assert.Equal(t, "is_active=false&page=2&per_page=10&sort_by=id&sort_order=desc", api.lastCall().query)
	assert.Equal(t, users.StatusInactive, s.Snapshot().Filters.Status)
}

func TestStore_FetchList_PageOnlyDoesNotRedefineFilters(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)
	s.SetFilters(FilterPatch{Search: strPtr("ali")})

	api.on(http.MethodGet, "/users", reply{payload: listPayload(users.NewPagination(1, 10, 0))})
	require.NoError(t, s.FetchList(context.Background(), ListOptions{}))

	assert.Contains(t, api.lastCall().query, "search=ali")
	assert.Equal(t, "ali", s.Snapshot().Filters.Search)
}

func TestStore_FetchList_ReadsLatestState(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)

	s.SetPage(4)
	api.on(http.MethodGet, "/users", reply{payload: listPayload(users.NewPagination(4, 10, 40))})
	require.NoError(t, s.FetchList(context.Background(), ListOptions{}))
	assert.Contains(t, api.lastCall().query, "page=4")

	s.SetFilters(FilterPatch{Role: rolePtr(users.RoleEditor)})
	api.on(http.MethodGet, "/users", reply{payload: listPayload(users.NewPagination(1, 10, 2))})
	require.NoError(t, s.FetchList(context.Background(), ListOptions{}))
	assert.Contains(t, api.lastCall().query, "page=1")
	assert.Contains(t, api.lastCall().query, "role=Editor")
}

func TestStore_FetchList_FailureKeepsRecords(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)
	seedStore(t, s, api, 1, users.User{ID: 1, Name: "Alice"})

	boom := &apiclient.NetworkError{Op: "GET", URL: "/users", Err: errors.New("connection refused")}
	api.on(http.MethodGet, "/users", reply{err: boom})
	err := s.FetchList(context.Background(), ListOptions{Page: 2})

	require.ErrorIs(t, err, boom)
	st := s.Snapshot()
	assert.False(t, st.Loading)
	assert.ErrorIs(t, st.Err, boom)
	require.Len(t, st.Records, 1)
	assert.Equal(t, int64(1), st.Records[0].ID)
}

func TestStore_FetchList_ClearsErrorOnSuccess(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)

	api.on(http.MethodGet, "/users", reply{err: errors.New("down")})
	require.Error(t, s.FetchList(context.Background(), ListOptions{}))
	require.Error(t, s.Snapshot().Err)

	seedStore(t, s, api, 0)
	assert.NoError(t, s.Snapshot().Err)
}

func TestStore_FetchList_DiscardsSupersededResponse(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)

	slowGate := make(chan struct{})
	api.on(http.MethodGet, "/users", reply{
		payload: listPayload(users.NewPagination(1, 10, 1), users.User{ID: 1, Name: "stale"}),
		gate:    slowGate,
	})
	api.on(http.MethodGet, "/users", reply{
		payload: listPayload(users.NewPagination(1, 10, 1), users.User{ID: 2, Name: "fresh"}),
	})

	done := make(chan error, 1)
	go func() {
		done <- s.FetchList(context.Background(), ListOptions{FilterPatch: FilterPatch{Search: strPtr("a")}})
	}()
	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.calls) == 1
	}, time2s, tick)

	require.NoError(t, s.FetchList(context.Background(), ListOptions{FilterPatch: FilterPatch{Search: strPtr("ali")}}))
	close(slowGate)
	require.ErrorIs(t, <-done, ErrSuperseded)

	st := s.Snapshot()
	require.Len(t, st.Records, 1)
	assert.Equal(t, "fresh", st.Records[0].Name)
	assert.Equal(t, "ali", st.Filters.Search)
	assert.False(t, st.Loading)
}

func TestStore_FetchList_SupersededFailureIsIgnored(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)

	slowGate := make(chan struct{})
	api.on(http.MethodGet, "/users", reply{err: errors.New("timeout"), gate: slowGate})
	api.on(http.MethodGet, "/users", reply{payload: listPayload(users.NewPagination(1, 10, 0))})

	done := make(chan error, 1)
	go func() { done <- s.FetchList(context.Background(), ListOptions{}) }()
	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.calls) == 1
	}, time2s, tick)

	require.NoError(t, s.FetchList(context.Background(), ListOptions{}))
	close(slowGate)
	require.ErrorIs(t, <-done, ErrSuperseded)
	assert.NoError(t, s.Snapshot().Err)
}

func TestStore_FetchList_LoadingPublishedBeforeNewerRequestStarts(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)

	page := listPayload(users.NewPagination(1, 10, 1), users.User{ID: 2, Name: "fresh"})
	api.on(http.MethodGet, "/users", reply{payload: page})
	api.on(http.MethodGet, "/users", reply{payload: page})

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	unsubscribe := s.Subscribe(func(st State) {
		once.Do(func() {
			close(entered)
			<-release
		})
	})
	defer unsubscribe()

	older := make(chan error, 1)
	go func() { older <- s.FetchList(context.Background(), ListOptions{}) }()
	<-entered

	newer := make(chan error, 1)
	go func() { newer <- s.FetchList(context.Background(), ListOptions{}) }()
	assert.Never(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.calls) > 0
	}, 50*time.Millisecond, tick, "newer fetch waits for the older loading transition")

	close(release)
	require.NoError(t, <-newer)
	if err := <-older; err != nil {
		require.ErrorIs(t, err, ErrSuperseded)
	}

	st := s.Snapshot()
	assert.False(t, st.Loading)
	require.Len(t, st.Records, 1)
	assert.Equal(t, "fresh", st.Records[0].Name)
}

func TestStore_FetchStats(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)

	stats := users.Stats{Total: 5, Active: 4, Inactive: 1, ByRole: map[users.Role]int{users.RoleAdmin: 2}}
	api.on(http.MethodGet, "/users/stats", reply{payload: map[string]any{"data": stats}})
	require.NoError(t, s.FetchStats(context.Background()))
	require.NotNil(t, s.Snapshot().Stats)
	assert.Equal(t, stats, *s.Snapshot().Stats)

	api.on(http.MethodGet, "/users/stats", reply{err: errors.New("down")})
	require.Error(t, s.FetchStats(context.Background()))

	st := s.Snapshot()
	assert.Equal(t, stats, *st.Stats, "failed refresh keeps previous stats")
	assert.NoError(t, st.Err, "stats failures never become the page error")
}

func TestStore_Create_DoesNotInsertLocally(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)
	seedStore(t, s, api, 1, users.User{ID: 1})

	created := users.User{ID: 9, Name: "New", Email: "new@example.com", Role: users.RoleUser}
	api.on(http.MethodPost, "/users", reply{payload: map[string]any{"data": created}})

	u, err := s.Create(context.Background(), users.UserInput{Name: "New", Email: "new@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), u.ID)

	st := s.Snapshot()
	assert.Len(t, st.Records, 1)
	assert.Equal(t, 1, st.Pagination.Total)
	assert.False(t, st.Loading)
}

func TestStore_Create_FailureLeavesStateIdentical(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)
	seedStore(t, s, api, 2, users.User{ID: 1, Name: "A"}, users.User{ID: 2, Name: "B"})
	before := s.Snapshot()

	apiErr := &apiclient.APIError{Message: "The given data was invalid.", Status: 422, FieldErrors: map[string][]string{"email": {"The email has already been taken."}}}
	api.on(http.MethodPost, "/users", reply{err: apiErr})

	_, err := s.Create(context.Background(), users.UserInput{Name: "Dup", Email: "a@example.com"})

	var got *apiclient.APIError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, []string{"The email has already been taken."}, got.FieldErrors["email"])

	after := s.Snapshot()
	assert.Equal(t, before.Records, after.Records)
	assert.Equal(t, before.Pagination.Total, after.Pagination.Total)
	assert.ErrorIs(t, after.Err, apiErr)
	assert.False(t, after.Loading)
}

func TestStore_Update_ReplacesOnlyMatchingRecord(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)
	a := users.User{ID: 1, Name: "A", Email: "a@example.com", Role: users.RoleUser}
	b := users.User{ID: 2, Name: "B", Email: "b@example.com", Role: users.RoleUser}
	c := users.User{ID: 3, Name: "C", Email: "c@example.com", Role: users.RoleUser}
	seedStore(t, s, api, 3, a, b, c)

	server := b
	server.Name = "Bee"
	server.Role = users.RoleAdmin
	api.on(http.MethodPut, "/users/2", reply{payload: map[string]any{"data": server}})

	u, err := s.Update(context.Background(), 2, users.UserInput{Name: "Bee", Email: "b@example.com", Role: users.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, server, u)

	st := s.Snapshot()
	require.Len(t, st.Records, 3)
	assert.Equal(t, a, st.Records[0])
	assert.Equal(t, server, st.Records[1])
	assert.Equal(t, c, st.Records[2])
}

func TestStore_Update_Failure(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)
	seedStore(t, s, api, 1, users.User{ID: 1, Name: "A"})

	api.on(http.MethodPut, "/users/1", reply{err: &apiclient.APIError{Message: "user not found", Status: 404}})
	_, err := s.Update(context.Background(), 1, users.UserInput{Name: "X", Email: "x@example.com"})

	require.Error(t, err)
	assert.Equal(t, "A", s.Snapshot().Records[0].Name)
}

func TestStore_SetActive(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)
	a := users.User{ID: 1, Name: "A", IsActive: true}
	b := users.User{ID: 2, Name: "B", IsActive: true}
	seedStore(t, s, api, 2, a, b)

	server := b
	server.IsActive = false
	api.on(http.MethodPatch, "/users/2", reply{payload: map[string]any{"data": server}})

	u, err := s.SetActive(context.Background(), 2, false)
	require.NoError(t, err)
	assert.False(t, u.IsActive)

	body, ok := api.lastCall().body.(users.UserPatch)
	require.True(t, ok)
	assert.Equal(t, users.UserPatch{IsActive: boolPtr(false)}, body)

	st := s.Snapshot()
	assert.Equal(t, a, st.Records[0])
	assert.False(t, st.Records[1].IsActive)
	assert.False(t, st.Loading)

	api.on(http.MethodPatch, "/users/9", reply{err: &apiclient.APIError{Message: "user not found", Status: 404}})
	_, err = s.SetActive(context.Background(), 9, true)
	require.Error(t, err)
	assert.Error(t, s.Snapshot().Err)
	assert.Len(t, s.Snapshot().Records, 2)
}

func TestStore_Delete(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)
	seedStore(t, s, api, 12, users.User{ID: 1}, users.User{ID: 2}, users.User{ID: 3})

	api.on(http.MethodDelete, "/users/2", reply{payload: map[string]any{"success": true}})
	require.NoError(t, s.Delete(context.Background(), 2))

	st := s.Snapshot()
	assert.Equal(t, 11, st.Pagination.Total)
	ids := make([]int64, 0, len(st.Records))
	for _, u := range st.Records {
		ids = append(ids, u.ID)
	}
	assert.Equal(t, []int64{1, 3}, ids)
}

func TestStore_Delete_FailureKeepsRecords(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)
	seedStore(t, s, api, 2, users.User{ID: 1}, users.User{ID: 2})

	api.on(http.MethodDelete, "/users/2", reply{err: errors.New("down")})
	require.Error(t, s.Delete(context.Background(), 2))

	st := s.Snapshot()
	assert.Len(t, st.Records, 2)
	assert.Equal(t, 2, st.Pagination.Total)
	assert.Error(t, st.Err)
}

func TestStore_SetFiltersAlwaysResetsPage(t *testing.T) {
	for _, page := range []int{1, 2, 7, 99} {
		s := newTestStore(newFakeAPI())
		s.SetPage(page)

		s.SetFilters(FilterPatch{Status: statusPtr(users.StatusActive)})

		st := s.Snapshot()
		assert.Equal(t, 1, st.Pagination.CurrentPage, "from page %d", page)
		assert.Equal(t, users.StatusActive, st.Filters.Status)
		assert.Equal(t, "id", st.Filters.SortBy, "untouched fields survive the merge")
	}
}

func TestStore_SetPageDoesNotClamp(t *testing.T) {
	s := newTestStore(newFakeAPI())

	s.SetPage(50)
	assert.Equal(t, 50, s.Snapshot().Pagination.CurrentPage)
	assert.Equal(t, 1, s.Snapshot().Pagination.LastPage)
}

func TestStore_SubscribeAndSnapshotIsolation(t *testing.T) {
	api := newFakeAPI()
	s := newTestStore(api)

	var mu sync.Mutex
	var seen []State
	cancel := s.Subscribe(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, st)
	})

	seedStore(t, s, api, 1, users.User{ID: 1, Name: "A"})
	cancel()
	s.SetPage(3)

	mu.Lock()
	require.Len(t, seen, 2)
	assert.True(t, seen[0].Loading)
	assert.False(t, seen[1].Loading)
	mu.Unlock()

	snap := s.Snapshot()
	snap.Records[0].Name = "mutated"
	assert.Equal(t, "A", s.Snapshot().Records[0].Name)
}

func TestStore_WithPerPage(t *testing.T) {
	api := newFakeAPI()
	s := New(api, WithPerPage(25), WithLogger(logging.Discard()))

	api.on(http.MethodGet, "/users", reply{payload: listPayload(users.NewPagination(1, 25, 0))})
	require.NoError(t, s.FetchList(context.Background(), ListOptions{}))
	assert.Contains(t, api.lastCall().query, "per_page=25")
}
