package controllers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/org-import/modules/orgimport/infrastructure/progressstore"
	"github.com/iota-uz/org-import/modules/orgimport/infrastructure/spreadsheet"
	"github.com/iota-uz/org-import/modules/orgimport/services"
	"github.com/iota-uz/org-import/modules/orgimport/services/duplicates"
	"github.com/iota-uz/org-import/modules/orgimport/services/progress"
	"github.com/iota-uz/org-import/pkg/application"
	"github.com/iota-uz/org-import/pkg/composables"
)

const (
	xlsxContentType      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	defaultMaxUploadSize = 32 << 20
	wsWriteTimeout       = 10 * time.Second
)

type ImportControllerOptions struct {
	Service       *services.ImportService
	Runs          *services.RunRegistry
	Progress      progressstore.Store
	Logger        *logrus.Logger
	MaxUploadSize int64
	ProgressTick  time.Duration
	Middleware    []mux.MiddlewareFunc
	CheckOrigin   func(r *http.Request) bool
}

type ImportController struct {
	service       *services.ImportService
	runs          *services.RunRegistry
	progress      progressstore.Store
	logger        *logrus.Logger
	maxUploadSize int64
	progressTick  time.Duration
	middleware    []mux.MiddlewareFunc
	upgrader      websocket.Upgrader
	basePath      string
}

func NewImportController(opts ImportControllerOptions) application.Controller {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = defaultMaxUploadSize
	}
	if opts.Runs == nil {
		opts.Runs = services.NewRunRegistry(0)
	}
	if opts.Progress == nil {
		opts.Progress = progressstore.NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &ImportController{
		service:       opts.Service,
		runs:          opts.Runs,
		progress:      opts.Progress,
		logger:        opts.Logger,
		maxUploadSize: opts.MaxUploadSize,
		progressTick:  opts.ProgressTick,
		middleware:    opts.Middleware,
		upgrader:      websocket.Upgrader{CheckOrigin: opts.CheckOrigin},
		basePath:      "/org-import",
	}
}

func (c *ImportController) Key() string {
	return c.basePath
}

func (c *ImportController) Register(r *mux.Router) {
	api := r.PathPrefix(c.basePath).Subrouter()
	api.Use(c.middleware...)

	api.HandleFunc("/previews", c.CreatePreview).Methods(http.MethodPost)
	api.HandleFunc("/runs", c.CreateRun).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}", c.GetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/progress", c.GetProgress).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/ws", c.StreamProgress).Methods(http.MethodGet)
	api.HandleFunc("/template", c.GetTemplate).Methods(http.MethodGet)
	api.HandleFunc("/moves/validations", c.ValidateMoves).Methods(http.MethodPost)
}

func (c *ImportController) CreatePreview(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	req, ok := c.readRequest(w, r, requestID)
	if !ok {
		return
	}
	report, err := c.service.Preview(r.Context(), req, progress.NewTracker(progress.WithTickInterval(0)))
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (c *ImportController) ValidateMoves(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	r.Body = http.MaxBytesReader(w, r.Body, c.maxUploadSize)
	var req services.MovesRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORG_IMPORT_INVALID_BODY", "invalid json body")
		return
	}
	res, err := c.service.ValidateMoves(r.Context(), req)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type runAcceptedResponse struct {
	RunID       uuid.UUID `json:"run_id"`
	ProgressURL string    `json:"progress_url"`
	StreamURL   string    `json:"stream_url"`
}

func (c *ImportController) CreateRun(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	if _, err := composables.UseActor(r.Context()); err != nil {
		writeAPIError(w, http.StatusUnauthorized, requestID, services.CodeUnauthenticated, "import requires an authenticated actor")
		return
	}
	req, ok := c.readRequest(w, r, requestID)
	if !ok {
		return
	}
	req.RunID = uuid.New()

	log := composables.UseLogger(r.Context()).WithField("run_id", req.RunID)
	tracker := progress.NewTracker(progress.WithTickInterval(c.progressTick))
	stop := progressstore.Attach(context.WithoutCancel(r.Context()), c.progress, req.RunID, tracker, log)
	c.runs.Start(r.Context(), req.RunID, tracker, func(ctx context.Context) (*services.Result, error) {
		defer stop()
		return c.service.Run(ctx, req, tracker)
	})

	base := c.basePath + "/runs/" + req.RunID.String()
	writeJSON(w, http.StatusAccepted, runAcceptedResponse{
		RunID:       req.RunID,
		ProgressURL: base + "/progress",
		StreamURL:   base + "/ws",
	})
}

type runResponse struct {
	RunID  uuid.UUID        `json:"run_id"`
	State  progress.State   `json:"state"`
	Done   bool             `json:"done"`
	Result *services.Result `json:"result,omitempty"`
	Error  *runError        `json:"error,omitempty"`
}

type runError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *ImportController) GetRun(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	id, ok := runID(w, r, requestID)
	if !ok {
		return
	}
	run, found := c.runs.Get(id)
	if !found {
		writeAPIError(w, http.StatusNotFound, requestID, "ORG_IMPORT_RUN_NOT_FOUND", "run not found")
		return
	}
	resp := runResponse{RunID: id, State: run.Tracker.State()}
	select {
	case <-run.Done():
		resp.Done = true
		result, err := run.Wait(r.Context())
		resp.Result = result
		if err != nil {
			resp.Error = &runError{Code: codeInternal, Message: err.Error()}
			var svcErr *services.ServiceError
			if errors.As(err, &svcErr) {
				resp.Error = &runError{Code: svcErr.Code, Message: svcErr.Message}
			}
		}
	default:
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *ImportController) GetProgress(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	id, ok := runID(w, r, requestID)
	if !ok {
		return
	}
	state, err := c.progress.Get(r.Context(), id)
	switch {
	case errors.Is(err, progressstore.ErrRunNotFound):
		run, found := c.runs.Get(id)
		if !found {
			writeAPIError(w, http.StatusNotFound, requestID, "ORG_IMPORT_RUN_NOT_FOUND", "run not found")
			return
		}
		state = run.Tracker.State()
	case err != nil:
		writeAPIError(w, http.StatusServiceUnavailable, requestID, services.CodeStore, "progress is unavailable")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// StreamProgress pushes every state change of a live run over a websocket and
// closes the connection once the run reaches a terminal stage.
func (c *ImportController) StreamProgress(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	id, ok := runID(w, r, requestID)
	if !ok {
		return
	}
	run, found := c.runs.Get(id)
	if !found {
		writeAPIError(w, http.StatusNotFound, requestID, "ORG_IMPORT_RUN_NOT_FOUND", "run not found")
		return
	}
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}
	defer func() { _ = conn.Close() }()
	log := composables.UseLogger(r.Context()).WithField("run_id", id)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	signal := make(chan struct{}, 1)
	unsubscribe := run.Tracker.Subscribe(func(progress.State) {
		select {
		case signal <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-signal:
			state := run.Tracker.State()
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(state); err != nil {
				log.WithError(err).Debug("progress stream write failed")
				return
			}
			if state.Stage.Terminal() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(state.Stage)),
					time.Now().Add(wsWriteTimeout))
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (c *ImportController) GetTemplate(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)
	examples, _ := strconv.ParseBool(r.URL.Query().Get("examples"))
	payload, err := spreadsheet.Template(spreadsheet.TemplateOptions{IncludeExamples: examples})
	if err != nil {
		c.logger.WithError(err).Error("org import template failed")
		writeAPIError(w, http.StatusInternalServerError, requestID, codeInternal, "cannot build template")
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="org-import-template.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// readRequest reads the multipart "file" field and the optional import flags.
func (c *ImportController) readRequest(w http.ResponseWriter, r *http.Request, requestID string) (services.Request, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, c.maxUploadSize)
	if err := r.ParseMultipartForm(c.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
			writeAPIError(w, http.StatusRequestEntityTooLarge, requestID, "ORG_IMPORT_FILE_TOO_LARGE", "file exceeds the upload limit")
			return services.Request{}, false
		}
		writeAPIError(w, http.StatusBadRequest, requestID, "ORG_IMPORT_INVALID_REQUEST", "multipart form with a file field is required")
		return services.Request{}, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORG_IMPORT_INVALID_REQUEST", "file is required")
		return services.Request{}, false
	}
	defer func() { _ = file.Close() }()
	payload, err := io.ReadAll(file)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORG_IMPORT_INVALID_REQUEST", "cannot read file")
		return services.Request{}, false
	}
	if err := spreadsheet.DetectFormat(payload); err != nil {
		writeAPIError(w, http.StatusUnsupportedMediaType, requestID, services.CodeInvalidFile, err.Error())
		return services.Request{}, false
	}

	req := services.Request{FileName: header.Filename, Payload: payload}
	if v := strings.TrimSpace(r.FormValue("duplicate_strategy")); v != "" {
		strategy := duplicates.Strategy(v)
		if !strategy.Valid() {
			writeAPIError(w, http.StatusBadRequest, requestID, "ORG_IMPORT_INVALID_REQUEST", "unknown duplicate_strategy "+strconv.Quote(v))
			return services.Request{}, false
		}
		req.DuplicateStrategy = strategy
	}
	for name, dst := range map[string]*bool{"dry_run": &req.DryRun, "allow_partial": &req.AllowPartial} {
		v := strings.TrimSpace(r.FormValue(name))
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, requestID, "ORG_IMPORT_INVALID_REQUEST", name+" must be a boolean")
			return services.Request{}, false
		}
		*dst = b
	}
	return req, true
}

func runID(w http.ResponseWriter, r *http.Request, requestID string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORG_IMPORT_INVALID_REQUEST", "run id is invalid")
		return uuid.Nil, false
	}
	return id, true
}
