package todo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/aanand-mishra/todo-api/internal/storage"
	"github.com/aanand-mishra/todo-api/internal/storage/memory"
	"github.com/aanand-mishra/todo-api/internal/types"
	"github.com/aanand-mishra/todo-api/internal/utils/response"
	"github.com/bytedance/sonic"
)

type todoEnvelope struct {
	Message  string      `json:"Message"`
	Status   int         `json:"Status"`
	Response *types.Todo `json:"Response"`
}

type listEnvelope struct {
	Message  string       `json:"Message"`
	Status   int          `json:"Status"`
	Response []types.Todo `json:"Response"`
}

func newMux(store storage.Storage) *http.ServeMux {
	mux := http.NewServeMux()
	Register(mux, store)
	return mux
}

// do sends a request through h and checks the envelope invariant: the body
// Status always equals the HTTP status.
func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env response.Response
	if err := sonic.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid json %q: %v", method, target, rec.Body.String(), err)
	}
	if env.Status != rec.Code {
		t.Fatalf("%s %s: envelope status %d != http status %d", method, target, env.Status, rec.Code)
	}
	return rec
}

func decodeTodo(t *testing.T, rec *httptest.ResponseRecorder) todoEnvelope {
	t.Helper()
	var env todoEnvelope
	if err := sonic.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return env
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) listEnvelope {
	t.Helper()
	var env listEnvelope
	if err := sonic.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return env
}

func TestGetListEmpty(t *testing.T) {
	mux := newMux(memory.New())

	rec := do(t, mux, http.MethodGet, "/api/Todo", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
	got := strings.TrimSpace(rec.Body.String())
	if got != `{"Message":"No todos found","Status":404}` {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestCreateThenGet(t *testing.T) {
	mux := newMux(memory.New())

	rec := do(t, mux, http.MethodPost, "/api/Todo", `{"Name":"buy milk","Completed":false}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "TodoDB" {
		t.Fatalf("expected Location TodoDB, got %q", loc)
	}
	got := strings.TrimSpace(rec.Body.String())
	want := `{"Message":"Created todo successfully","Status":201,"Response":{"Id":1,"Name":"buy milk","Completed":false}}`
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}

	rec = do(t, mux, http.MethodGet, "/api/Todo/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	env := decodeTodo(t, rec)
	if env.Message != "Got todo successfully" {
		t.Fatalf("unexpected message %q", env.Message)
	}
	if env.Response == nil || *env.Response != (types.Todo{ID: 1, Name: "buy milk"}) {
		t.Fatalf("unexpected todo %#v", env.Response)
	}

	rec = do(t, mux, http.MethodGet, "/api/Todo/2", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
	env = decodeTodo(t, rec)
	if env.Message != "No todo found at the entered Id" || env.Response != nil {
		t.Fatalf("unexpected envelope %#v", env)
	}
}

func TestCreateIgnoresBodyID(t *testing.T) {
	mux := newMux(memory.New())

	rec := do(t, mux, http.MethodPost, "/api/Todo", `{"Id":77,"Name":"x","Completed":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}
	env := decodeTodo(t, rec)
	if env.Response.ID != 1 {
		t.Fatalf("expected server-assigned id 1, got %d", env.Response.ID)
	}
}

func TestListReturnsAllAndIsStable(t *testing.T) {
	mux := newMux(memory.New())
	for _, name := range []string{"a", "b", "c"} {
		do(t, mux, http.MethodPost, "/api/Todo", `{"Name":"`+name+`"}`)
	}

	first := do(t, mux, http.MethodGet, "/api/Todo", "")
	if first.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", first.Code)
	}
	env := decodeList(t, first)
	if env.Message != "Got list of todos successfully" || len(env.Response) != 3 {
		t.Fatalf("unexpected envelope %#v", env)
	}

	second := do(t, mux, http.MethodGet, "/api/Todo", "")
	if !reflect.DeepEqual(decodeList(t, second), env) {
		t.Fatalf("expected repeated list to be identical")
	}
}

func TestUpdate(t *testing.T) {
	mux := newMux(memory.New())
	do(t, mux, http.MethodPost, "/api/Todo", `{"Name":"buy milk","Completed":false}`)

	rec := do(t, mux, http.MethodPut, "/api/Todo/1", `{"Name":"buy milk","Completed":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	env := decodeTodo(t, rec)
	if env.Message != "Updated todo successfully" || env.Response == nil || !env.Response.Completed {
		t.Fatalf("unexpected envelope %#v", env)
	}

	env = decodeTodo(t, do(t, mux, http.MethodGet, "/api/Todo/1", ""))
	if !env.Response.Completed {
		t.Fatalf("expected update to be persisted, got %#v", env.Response)
	}
}

func TestUpdatePathIDWins(t *testing.T) {
	mux := newMux(memory.New())
	do(t, mux, http.MethodPost, "/api/Todo", `{"Name":"one"}`)
	do(t, mux, http.MethodPost, "/api/Todo", `{"Name":"two"}`)

	rec := do(t, mux, http.MethodPut, "/api/Todo/2", `{"Id":1,"Name":"changed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if env := decodeTodo(t, rec); env.Response.ID != 2 {
		t.Fatalf("expected id 2, got %d", env.Response.ID)
	}

	one := decodeTodo(t, do(t, mux, http.MethodGet, "/api/Todo/1", ""))
	if one.Response.Name != "one" {
		t.Fatalf("expected todo 1 untouched, got %#v", one.Response)
	}
}

func TestUpdateMissingIsNotFound(t *testing.T) {
	mux := newMux(memory.New())

	rec := do(t, mux, http.MethodPut, "/api/Todo/99", `{"Name":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
	if env := decodeTodo(t, rec); env.Message != "No todo found at the entered Id" {
		t.Fatalf("unexpected message %q", env.Message)
	}
}

func TestDelete(t *testing.T) {
	mux := newMux(memory.New())
	do(t, mux, http.MethodPost, "/api/Todo", `{"Name":"buy milk"}`)

	rec := do(t, mux, http.MethodDelete, "/api/Todo/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	env := decodeTodo(t, rec)
	if env.Message != "Deleted todo successfully" {
		t.Fatalf("unexpected message %q", env.Message)
	}
	if env.Response == nil || *env.Response != (types.Todo{ID: 1, Name: "buy milk"}) {
		t.Fatalf("expected deleted copy, got %#v", env.Response)
	}

	rec = do(t, mux, http.MethodDelete, "/api/Todo/1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
	rec = do(t, mux, http.MethodGet, "/api/Todo/1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestBadRequests(t *testing.T) {
	tests := map[string]struct {
		method  string
		target  string
		body    string
		message string
	}{
		"non integer id get":    {http.MethodGet, "/api/Todo/abc", "", "invalid id: must be an integer"},
		"non integer id put":    {http.MethodPut, "/api/Todo/abc", `{"Name":"x"}`, "invalid id: must be an integer"},
		"non integer id delete": {http.MethodDelete, "/api/Todo/1.5", "", "invalid id: must be an integer"},
		"empty body create":     {http.MethodPost, "/api/Todo", "", "request body is empty"},
		"empty body update":     {http.MethodPut, "/api/Todo/1", "", "request body is empty"},
		"missing name":          {http.MethodPost, "/api/Todo", `{"Completed":true}`, "field Name is required"},
		"blank name create":     {http.MethodPost, "/api/Todo", `{"Name":"   "}`, "field Name must not be blank"},
		"blank name update":     {http.MethodPut, "/api/Todo/1", `{"Name":"\t\n"}`, "field Name must not be blank"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			mux := newMux(memory.New())
			rec := do(t, mux, tc.method, tc.target, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400 got %d", rec.Code)
			}
			if env := decodeTodo(t, rec); env.Message != tc.message || env.Response != nil {
				t.Fatalf("unexpected envelope %#v", env)
			}
		})
	}
}

func TestMalformedBody(t *testing.T) {
	mux := newMux(memory.New())
	rec := do(t, mux, http.MethodPost, "/api/Todo", `{"Name":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
	if env := decodeTodo(t, rec); env.Message == "" {
		t.Fatal("expected decoder message in envelope")
	}
}

// stubStore lets tests force each storage outcome.
type stubStore struct {
	*memory.Memory

	listErr   error
	findErr   error
	insertErr error
	updateErr error
	deleteErr error
	exists    bool
	existsErr error

	existsCalls int
}

func newStub() *stubStore {
	return &stubStore{Memory: memory.New()}
}

func (s *stubStore) List(ctx context.Context) ([]types.Todo, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Memory.List(ctx)
}

func (s *stubStore) Find(ctx context.Context, id int64) (*types.Todo, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.Memory.Find(ctx, id)
}

func (s *stubStore) Insert(ctx context.Context, todo *types.Todo) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.Memory.Insert(ctx, todo)
}

func (s *stubStore) Update(ctx context.Context, todo *types.Todo) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	return s.Memory.Update(ctx, todo)
}

func (s *stubStore) Delete(ctx context.Context, todo *types.Todo) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Memory.Delete(ctx, todo)
}

func (s *stubStore) Exists(context.Context, int64) (bool, error) {
	s.existsCalls++
	return s.exists, s.existsErr
}

func TestUpdateConflictDisambiguation(t *testing.T) {
	tests := map[string]struct {
		exists    bool
		existsErr error
		wantCode  int
		wantMsg   string
	}{
		"row gone": {
			exists:   false,
			wantCode: http.StatusNotFound,
			wantMsg:  "No todo found at the entered Id",
		},
		"row changed": {
			exists:   true,
			wantCode: http.StatusBadRequest,
			wantMsg:  storage.ErrConcurrencyConflict.Error(),
		},
		"exists fails": {
			existsErr: errors.New("db down"),
			wantCode:  http.StatusBadRequest,
			wantMsg:   "db down",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			store := newStub()
			store.updateErr = storage.ErrConcurrencyConflict
			store.exists = tc.exists
			store.existsErr = tc.existsErr

			rec := do(t, newMux(store), http.MethodPut, "/api/Todo/5", `{"Name":"x"}`)
			if rec.Code != tc.wantCode {
				t.Fatalf("expected status %d got %d", tc.wantCode, rec.Code)
			}
			if env := decodeTodo(t, rec); env.Message != tc.wantMsg || env.Response != nil {
				t.Fatalf("unexpected envelope %#v", env)
			}
			if store.existsCalls != 1 {
				t.Fatalf("expected one Exists call, got %d", store.existsCalls)
			}
		})
	}
}

func TestUpdateNotFoundFromStore(t *testing.T) {
	store := newStub()
	store.updateErr = storage.ErrNotFound

	rec := do(t, newMux(store), http.MethodPut, "/api/Todo/5", `{"Name":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
	if store.existsCalls != 0 {
		t.Fatalf("expected no Exists call, got %d", store.existsCalls)
	}
}

func TestStoreFailuresBecomeBadRequest(t *testing.T) {
	boom := errors.New("disk I/O error")
	tests := map[string]struct {
		setup  func(*stubStore)
		method string
		target string
		body   string
	}{
		"list":        {func(s *stubStore) { s.listErr = boom }, http.MethodGet, "/api/Todo", ""},
		"get":         {func(s *stubStore) { s.findErr = boom }, http.MethodGet, "/api/Todo/1", ""},
		"create":      {func(s *stubStore) { s.insertErr = boom }, http.MethodPost, "/api/Todo", `{"Name":"x"}`},
		"update":      {func(s *stubStore) { s.updateErr = boom }, http.MethodPut, "/api/Todo/1", `{"Name":"x"}`},
		"delete find": {func(s *stubStore) { s.findErr = boom }, http.MethodDelete, "/api/Todo/1", ""},
		"delete": {func(s *stubStore) {
			_ = s.Memory.Insert(context.Background(), &types.Todo{Name: "x"})
			s.deleteErr = boom
		}, http.MethodDelete, "/api/Todo/1", ""},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			store := newStub()
			tc.setup(store)

			rec := do(t, newMux(store), tc.method, tc.target, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400 got %d", rec.Code)
			}
			if env := decodeTodo(t, rec); env.Message != boom.Error() || env.Response != nil {
				t.Fatalf("unexpected envelope %#v", env)
			}
		})
	}
}

func TestDeleteRaceIsNotFound(t *testing.T) {
	store := newStub()
	_ = store.Memory.Insert(context.Background(), &types.Todo{Name: "x"})
	store.deleteErr = storage.ErrNotFound

	rec := do(t, newMux(store), http.MethodDelete, "/api/Todo/1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestUnmatchedRoutes(t *testing.T) {
	tests := map[string]struct {
		method    string
		target    string
		wantCode  int
		wantMsg   string
		wantAllow string
	}{
		"patch item":        {http.MethodPatch, "/api/Todo/1", http.StatusMethodNotAllowed, "Method not allowed", "GET, PUT, DELETE"},
		"post item":         {http.MethodPost, "/api/Todo/1", http.StatusMethodNotAllowed, "Method not allowed", "GET, PUT, DELETE"},
		"delete collection": {http.MethodDelete, "/api/Todo", http.StatusMethodNotAllowed, "Method not allowed", "GET, POST"},
		"put lower case":    {http.MethodPut, "/api/todo", http.StatusMethodNotAllowed, "Method not allowed", "GET, POST"},
		"unknown path":      {http.MethodGet, "/api/nope", http.StatusNotFound, "No route matches the requested path", ""},
		"root":              {http.MethodGet, "/", http.StatusNotFound, "No route matches the requested path", ""},
		"trailing slash":    {http.MethodGet, "/api/Todo/", http.StatusNotFound, "No route matches the requested path", ""},
		"nested item":       {http.MethodGet, "/api/Todo/1/extra", http.StatusNotFound, "No route matches the requested path", ""},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			rec := do(t, newMux(memory.New()), tc.method, tc.target, "")
			if rec.Code != tc.wantCode {
				t.Fatalf("expected status %d got %d", tc.wantCode, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("unexpected content type %q", ct)
			}
			if allow := rec.Header().Get("Allow"); allow != tc.wantAllow {
				t.Fatalf("expected Allow %q, got %q", tc.wantAllow, allow)
			}
			if env := decodeTodo(t, rec); env.Message != tc.wantMsg || env.Response != nil {
				t.Fatalf("unexpected envelope %#v", env)
			}
		})
	}
}

func TestRoutesIgnoreCase(t *testing.T) {
	mux := newMux(memory.New())

	rec := do(t, mux, http.MethodPost, "/api/todo", `{"Name":"buy milk"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}

	rec = do(t, mux, http.MethodGet, "/API/TODO", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if env := decodeList(t, rec); len(env.Response) != 1 {
		t.Fatalf("unexpected list %#v", env)
	}

	rec = do(t, mux, http.MethodPut, "/api/todo/1", `{"Name":"buy milk","Completed":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}

	env := decodeTodo(t, do(t, mux, http.MethodGet, "/Api/toDo/1", ""))
	if env.Response == nil || !env.Response.Completed {
		t.Fatalf("unexpected todo %#v", env.Response)
	}

	rec = do(t, mux, http.MethodDelete, "/api/TODO/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
}

func TestCanonicalPath(t *testing.T) {
	tests := map[string]string{
		"/api/Todo":    "/api/Todo",
		"/api/todo":    "/api/Todo",
		"/API/TODO/7":  "/api/Todo/7",
		"/api/todo/":   "/api/Todo/",
		"/api/todos":   "/api/todos",
		"/api/nope":    "/api/nope",
		"/":            "/",
		"/api/todo/Ab": "/api/Todo/Ab",
	}
	for in, want := range tests {
		if got := canonicalPath(in); got != want {
			t.Errorf("canonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}
