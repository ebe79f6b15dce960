package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/org-import/modules/orgimport/infrastructure/progressstore"
	"github.com/iota-uz/org-import/modules/orgimport/infrastructure/spreadsheet"
	"github.com/iota-uz/org-import/modules/orgimport/presentation/controllers"
	"github.com/iota-uz/org-import/modules/orgimport/services"
	"github.com/iota-uz/org-import/modules/orgimport/services/hierarchy"
	"github.com/iota-uz/org-import/modules/orgimport/services/progress"
	"github.com/iota-uz/org-import/pkg/composables"
)

type memoryStore struct {
	mu          sync.Mutex
	departments map[string]uuid.UUID
	positions   map[string]uuid.UUID
	block       chan struct{}
}

func newMemoryStore() *memoryStore {
	return &memoryStore{departments: map[string]uuid.UUID{}, positions: map[string]uuid.UUID{}}
}

func (s *memoryStore) ListDepartmentCodes(context.Context) (map[string]uuid.UUID, error) {
	return s.snapshot(s.departments), nil
}

func (s *memoryStore) ListPositionCodes(context.Context) (map[string]uuid.UUID, error) {
	return s.snapshot(s.positions), nil
}

func (s *memoryStore) InsertDepartment(ctx context.Context, in services.DepartmentInsert) (uuid.UUID, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return uuid.Nil, ctx.Err()
		}
	}
	return s.insert(s.departments, in.Code), nil
}

func (s *memoryStore) InsertPosition(_ context.Context, in services.PositionInsert) (uuid.UUID, error) {
	return s.insert(s.positions, in.Code), nil
}

func (s *memoryStore) snapshot(m map[string]uuid.UUID) map[string]uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uuid.UUID, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memoryStore) insert(m map[string]uuid.UUID, code string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	m[code] = id
	return id
}

type fixture struct {
	router   *mux.Router
	store    *memoryStore
	runs     *services.RunRegistry
	progress *progressstore.MemoryStore
}

func newFixture(t *testing.T, withActor bool) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	f := &fixture{
		router:   mux.NewRouter(),
		store:    newMemoryStore(),
		runs:     services.NewRunRegistry(0),
		progress: progressstore.NewMemoryStore(),
	}
	identity := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := composables.WithTenantID(r.Context(), uuid.New())
			if withActor {
				ctx = composables.WithActor(ctx, composables.Actor{ID: uuid.New(), Name: "importer"})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	controllers.NewImportController(controllers.ImportControllerOptions{
		Service:       services.NewImportService(f.store, logger, services.Options{}),
		Runs:          f.runs,
		Progress:      f.progress,
		Logger:        logger,
		MaxUploadSize: 1 << 20,
		Middleware:    []mux.MiddlewareFunc{identity},
	}).Register(f.router)
	return f
}

func exampleWorkbook(t *testing.T) []byte {
	t.Helper()
	payload, err := spreadsheet.Template(spreadsheet.TemplateOptions{IncludeExamples: true})
	require.NoError(t, err)
	return payload
}

func uploadRequest(t *testing.T, path string, payload []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "org.xlsx")
	require.NoError(t, err)
	_, err = fw.Write(payload)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImportController_Preview(t *testing.T) {
	f := newFixture(t, false)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, uploadRequest(t, "/org-import/previews", exampleWorkbook(t), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report services.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, 3, report.Summary.Departments)
	require.Equal(t, 3, report.Summary.Positions)
	require.Equal(t, 3, report.Summary.DepartmentWaves)
	require.False(t, report.Summary.Blocking)
	require.Len(t, report.Forest.Roots, 1)
	require.Len(t, report.Forest.Nodes(), 3)
	require.Empty(t, f.store.departments)
}

func TestImportController_ValidateMoves(t *testing.T) {
	f := newFixture(t, false)
	nodes := []hierarchy.Node{
		{ID: "HQ", Name: "Head Office"},
		{ID: "ENG", ParentID: "HQ", Name: "Engineering"},
		{ID: "PLT", ParentID: "ENG", Name: "Platform"},
		{ID: "OPS", ParentID: "HQ", Name: "Operations"},
	}
	post := func(body any) *httptest.ResponseRecorder {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/org-import/moves/validations", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec
	}

	rec := post(services.MovesRequest{Nodes: nodes, Moves: []hierarchy.Move{
		{NodeID: "PLT", NewParentID: "OPS"},
		{NodeID: "HQ", NewParentID: "ENG"},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res services.MovesResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.False(t, res.Valid)
	require.Len(t, res.Validations, 2)
	require.True(t, res.Validations[0].IsValid)
	require.False(t, res.Validations[1].IsValid)
	require.Equal(t, hierarchy.MoveCreatesCycle, res.Validations[1].Errors[0].Code)
	require.Equal(t, 1, res.Applied)
	for _, n := range res.Hierarchy {
		if n.ID == "PLT" {
			require.Equal(t, "OPS", n.ParentID)
			require.Equal(t, 2, n.Level)
		}
	}
	require.Len(t, res.Forest.Roots, 1)
	require.Equal(t, "HQ", res.Forest.Roots[0].ID)

	rec = post(services.MovesRequest{Nodes: nodes})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), services.CodeValidation)

	req := httptest.NewRequest(http.MethodPost, "/org-import/moves/validations", strings.NewReader(`{"nodes":[],"level":1}`))
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "ORG_IMPORT_INVALID_BODY")
}

func TestImportController_RejectsBadUploads(t *testing.T) {
	f := newFixture(t, false)

	t.Run("not a workbook", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, uploadRequest(t, "/org-import/previews", []byte("code,name\nHQ,Head"), nil))
		require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
		require.Contains(t, rec.Body.String(), services.CodeInvalidFile)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, uploadRequest(t, "/org-import/previews", exampleWorkbook(t), map[string]string{"duplicate_strategy": "newest"}))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "duplicate_strategy")
	})

	t.Run("too large", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, uploadRequest(t, "/org-import/previews", bytes.Repeat([]byte{'x'}, 2<<20), nil))
		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/org-import/previews", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestImportController_RunLifecycle(t *testing.T) {
	f := newFixture(t, true)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, uploadRequest(t, "/org-import/runs", exampleWorkbook(t), nil))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var accepted struct {
		RunID       uuid.UUID `json:"run_id"`
		ProgressURL string    `json:"progress_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	run, ok := f.runs.Get(accepted.RunID)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := run.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, result.Departments, 3)
	require.Len(t, result.Positions, 3)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, accepted.ProgressURL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var state progress.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	require.Equal(t, progress.Complete, state.Stage)
	require.Equal(t, 100, state.Progress)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/org-import/runs/"+accepted.RunID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"done":true`)
}

func TestImportController_RunRequiresActor(t *testing.T) {
	f := newFixture(t, false)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, uploadRequest(t, "/org-import/runs", exampleWorkbook(t), nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), services.CodeUnauthenticated)
}

func TestImportController_UnknownRun(t *testing.T) {
	f := newFixture(t, false)

	id := uuid.NewString()
	for _, target := range []string{
		"/org-import/runs/" + id,
		"/org-import/runs/" + id + "/progress",
		"/org-import/runs/" + id + "/ws",
	} {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusNotFound, rec.Code, target)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/org-import/runs/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportController_Template(t *testing.T) {
	f := newFixture(t, false)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/org-import/template?examples=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Disposition"), "org-import-template.xlsx")
	require.NoError(t, spreadsheet.DetectFormat(rec.Body.Bytes()))

	out, err := spreadsheet.NewExtractor(spreadsheet.Options{}).Extract(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, out.Departments, 3)
}

func TestImportController_StreamsProgressUntilTerminal(t *testing.T) {
	f := newFixture(t, true)
	f.store.block = make(chan struct{})
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, uploadRequest(t, "/org-import/runs", exampleWorkbook(t), nil))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var accepted struct {
		RunID     uuid.UUID `json:"run_id"`
		StreamURL string    `json:"stream_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+accepted.StreamURL, nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	defer func() { _ = conn.Close() }()

	var first progress.State
	require.NoError(t, conn.ReadJSON(&first))
	require.False(t, first.Stage.Terminal())
	close(f.store.block)

	var last progress.State
	for {
		var state progress.State
		if err := conn.ReadJSON(&state); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
		last = state
	}
	require.Equal(t, progress.Complete, last.Stage)
}
