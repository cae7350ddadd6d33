package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/marminbh/journey-logger-svc/internal/activity"
	"github.com/marminbh/journey-logger-svc/internal/auth"
	"github.com/marminbh/journey-logger-svc/internal/metrics"
	"github.com/marminbh/journey-logger-svc/internal/models"
	"github.com/marminbh/journey-logger-svc/internal/rabbitmq"
	"github.com/marminbh/journey-logger-svc/internal/routes"
	"github.com/marminbh/journey-logger-svc/internal/service"
	"github.com/marminbh/journey-logger-svc/internal/writer"
)

type fakeWriter struct {
	mu       sync.Mutex
	records  []activity.ExecutionRecord
	err      error
	checkErr error
}

func (w *fakeWriter) Write(ctx context.Context, record activity.ExecutionRecord) (*writer.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, record)
	if w.err != nil {
		return nil, w.err
	}
	return &writer.Result{
		Label:      record.Label,
		Data:       map[string]any{"requestId": "r-1"},
		StatusCode: http.StatusAccepted,
		Summary:    `{"requestId":"r-1"}`,
	}, nil
}

func (w *fakeWriter) Check(ctx context.Context) error { return w.checkErr }

func (w *fakeWriter) Name() string { return "fake" }

func (w *fakeWriter) written() []activity.ExecutionRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]activity.ExecutionRecord(nil), w.records...)
}

type fakeAttempts struct {
	recorded []*models.ExecutionAttempt
	listed   []models.ExecutionAttempt
	hasMore  bool
	err      error

	gotContactKey string
	gotLimit      int
	gotOffset     int
}

func (s *fakeAttempts) Record(ctx context.Context, attempt *models.ExecutionAttempt) error {
	s.recorded = append(s.recorded, attempt)
	return s.err
}

func (s *fakeAttempts) List(ctx context.Context, contactKey string, limit, offset int) ([]models.ExecutionAttempt, bool, error) {
	s.gotContactKey, s.gotLimit, s.gotOffset = contactKey, limit, offset
	return s.listed, s.hasMore, s.err
}

type fakeEvents struct {
	events []rabbitmq.ExecutionEvent
	err    error
}

func (p *fakeEvents) PublishExecution(ctx context.Context, event rabbitmq.ExecutionEvent) error {
	p.events = append(p.events, event)
	return p.err
}

var fixedNow = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, w writer.Writer) *service.Service {
	t.Helper()
	m, err := metrics.New()
	require.NoError(t, err)

	svc := service.NewService(zaptest.NewLogger(t), w, m)
	svc.Now = func() time.Time { return fixedNow }

	svc.StaticDir = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(svc.StaticDir, "html"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(svc.StaticDir, "html", "index.html"), []byte("<html>journey logger</html>"), 0o644))
	return svc
}

func newTestApp(svc *service.Service) *fiber.App {
	app := fiber.New()
	routes.SetupRoutes(app, svc)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

const executeBody = `{
	"inArguments": [
		{"contactKey": "C1", "journeyDefinitionId": "D1", "journeyVersion": 2, "journeyName": "Onboarding"},
		{"label": "Signed Up"}
	],
	"activityInstanceId": "A1"
}`

func TestLifecycleEndpointsAccept(t *testing.T) {
	svc := newTestService(t, &fakeWriter{})
	app := newTestApp(svc)

	for _, event := range []string{"save", "publish", "validate", "stop"} {
		t.Run(event, func(t *testing.T) {
			resp, body := do(t, app, http.MethodPost, service.BasePath+"/"+event, `{"activityObjectID":"X"}`)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.JSONEq(t, `{}`, string(body))

			// Empty and non-JSON bodies are accepted too
			resp, _ = do(t, app, http.MethodPost, service.BasePath+"/"+event, "")
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			resp, _ = do(t, app, http.MethodPost, service.BasePath+"/"+event, "not json")
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			assert.Equal(t, 3.0, testutil.ToFloat64(svc.Metrics.LifecycleCalls.WithLabelValues(event)))
		})
	}
}

func TestExecuteWritesOneRow(t *testing.T) {
	w := &fakeWriter{}
	svc := newTestService(t, w)
	app := newTestApp(svc)

	resp, body := do(t, app, http.MethodPost, service.BasePath+"/execute", executeBody)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	_, err := uuid.Parse(resp.Header.Get("X-Execution-Id"))
	assert.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "Signed Up", result["label"])
	assert.Equal(t, map[string]any{"requestId": "r-1"}, result["data"])

	records := w.written()
	require.Len(t, records, 1)
	assert.Equal(t, "C1", records[0].ContactKey)
	assert.Equal(t, "Signed Up", records[0].Label)
	assert.Equal(t, "D1", records[0].JourneyDefinitionID)
	assert.Equal(t, "2", records[0].JourneyVersion)
	assert.Equal(t, "Onboarding", records[0].JourneyName)
	assert.Equal(t, fixedNow, records[0].EventDate)

	assert.Equal(t, 1.0, testutil.ToFloat64(svc.Metrics.Executions.WithLabelValues("fake", metrics.OutcomeSucceeded)))
}

func TestExecuteMissingContactKey(t *testing.T) {
	w := &fakeWriter{}
	svc := newTestService(t, w)
	app := newTestApp(svc)

	resp, body := do(t, app, http.MethodPost, service.BasePath+"/execute", `{"inArguments":[{"label":"Signed Up"}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var payload struct {
		Error  string   `json:"error"`
		Fields []string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, []string{activity.KeyContactKey}, payload.Fields)
	assert.Empty(t, w.written())
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.Metrics.Executions.WithLabelValues("fake", metrics.OutcomeRejected)))
}

func TestExecuteMalformedBody(t *testing.T) {
	w := &fakeWriter{}
	app := newTestApp(newTestService(t, w))

	for name, body := range map[string]string{
		"not json":         `{"inArguments":`,
		"wrong shape":      `{"inArguments":"C1"}`,
		"empty body":       ``,
		"no in-arguments":  `{}`,
		"empty in-args":    `{"inArguments":[]}`,
		"null contact key": `{"inArguments":[{"contactKey":null,"label":"x"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp, _ := do(t, app, http.MethodPost, service.BasePath+"/execute", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.Empty(t, w.written())
}

func TestExecuteWriteFailure(t *testing.T) {
	w := &fakeWriter{err: &writer.RemoteError{Strategy: "fake", StatusCode: 500, Message: "boom"}}
	svc := newTestService(t, w)
	app := newTestApp(svc)

	resp, body := do(t, app, http.MethodPost, service.BasePath+"/execute", executeBody)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"An error occurred"}`, string(body))
	assert.NotContains(t, string(body), "boom")
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.Metrics.Executions.WithLabelValues("fake", metrics.OutcomeFailed)))
}

type failingTokens struct{}

func (failingTokens) Current(ctx context.Context) (*auth.Token, error) {
	return nil, &auth.Error{StatusCode: http.StatusUnauthorized, Body: "invalid_client"}
}

func (failingTokens) Invalidate(string) {}

func TestExecuteCredentialFailureSkipsWrite(t *testing.T) {
	var hits atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer api.Close()

	w := writer.NewRESTWriter(failingTokens{}, writer.Options{
		DataExtensionKey: "Journey_Logger",
		BaseURL:          api.URL,
		HTTPClient:       api.Client(),
		MaxResponseBody:  1024,
	}, zaptest.NewLogger(t))
	app := newTestApp(newTestService(t, w))

	resp, body := do(t, app, http.MethodPost, service.BasePath+"/execute", executeBody)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"An error occurred"}`, string(body))
	assert.Zero(t, hits.Load())
}

func TestExecuteRecordsAttemptAndPublishes(t *testing.T) {
	svc := newTestService(t, &fakeWriter{})
	attempts := &fakeAttempts{}
	events := &fakeEvents{}
	svc.Attempts = attempts
	svc.Events = events
	app := newTestApp(svc)

	resp, _ := do(t, app, http.MethodPost, service.BasePath+"/execute", executeBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, attempts.recorded, 1)
	got := attempts.recorded[0]
	assert.Equal(t, resp.Header.Get("X-Execution-Id"), got.ID.String())
	assert.Equal(t, models.AttemptSucceeded, got.Status)
	assert.Equal(t, "C1", got.ContactKey)
	assert.Equal(t, "A1", got.ActivityInstanceID)
	require.NotNil(t, got.HTTPStatus)
	assert.Equal(t, http.StatusAccepted, *got.HTTPStatus)
	assert.Nil(t, got.Error)

	require.Len(t, events.events, 1)
	assert.Equal(t, models.AttemptSucceeded, events.events[0].Status)
	assert.Equal(t, "Signed Up", events.events[0].Label)
}

func TestExecuteSideChannelFailuresKeepResponse(t *testing.T) {
	svc := newTestService(t, &fakeWriter{})
	svc.Attempts = &fakeAttempts{err: errors.New("db down")}
	svc.Events = &fakeEvents{err: errors.New("broker down")}
	app := newTestApp(svc)

	resp, _ := do(t, app, http.MethodPost, service.BasePath+"/execute", executeBody)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestExecuteRejectedAttemptIsRecorded(t *testing.T) {
	svc := newTestService(t, &fakeWriter{})
	attempts := &fakeAttempts{}
	svc.Attempts = attempts
	app := newTestApp(svc)

	resp, _ := do(t, app, http.MethodPost, service.BasePath+"/execute", `{"inArguments":[{"contactKey":"C1"}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.Len(t, attempts.recorded, 1)
	assert.Equal(t, models.AttemptRejected, attempts.recorded[0].Status)
	require.NotNil(t, attempts.recorded[0].Error)
	assert.Contains(t, *attempts.recorded[0].Error, activity.KeyLabel)
}

func TestConfigDescriptor(t *testing.T) {
	app := newTestApp(newTestService(t, &fakeWriter{}))

	req := httptest.NewRequest(http.MethodGet, service.BasePath+"/config.json", nil)
	req.Host = "logger.example.com"
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cfg map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	arguments := cfg["arguments"].(map[string]any)
	execute := arguments["execute"].(map[string]any)
	assert.Equal(t, "https://logger.example.com"+service.BasePath+"/execute", execute["url"])
}

func TestIndexAndRedirect(t *testing.T) {
	app := newTestApp(newTestService(t, &fakeWriter{}))

	resp, body := do(t, app, http.MethodGet, service.BasePath+"/index.html", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "journey logger")

	resp, _ = do(t, app, http.MethodGet, service.BasePath+"/", "")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, service.BasePath+"/index.html", resp.Header.Get("Location"))
}

func TestCheckDataExtensionSetup(t *testing.T) {
	w := &fakeWriter{checkErr: errors.New("invalid_client")}
	app := newTestApp(newTestService(t, w))

	resp, body := do(t, app, http.MethodGet, service.BasePath+"/checkDataExtensionSetup", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"OK"}`, string(body))

	resp, body = do(t, app, http.MethodGet, service.BasePath+"/checkDataExtensionSetup?deep=true", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ERROR"}`, string(body))
	assert.NotContains(t, string(body), "invalid_client")

	w.checkErr = nil
	resp, body = do(t, app, http.MethodGet, service.BasePath+"/checkDataExtensionSetup?deep=true", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"OK","strategy":"fake"}`, string(body))
}

func TestHealthCheck(t *testing.T) {
	svc := newTestService(t, &fakeWriter{})
	app := newTestApp(svc)

	resp, body := do(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"healthy"`)

	svc.Health["database"] = func(ctx context.Context) error { return errors.New("refused") }
	resp, body = do(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "unhealthy: refused")
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(newTestService(t, &fakeWriter{}))

	do(t, app, http.MethodPost, service.BasePath+"/execute", executeBody)
	resp, body := do(t, app, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "journey_logger_executions_total")
}

func TestExecutionsList(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		app := newTestApp(newTestService(t, &fakeWriter{}))
		resp, _ := do(t, app, http.MethodGet, service.BasePath+"/executions", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("paginated", func(t *testing.T) {
		svc := newTestService(t, &fakeWriter{})
		status := http.StatusAccepted
		attempts := &fakeAttempts{
			listed: []models.ExecutionAttempt{{
				ID:         uuid.New(),
				ContactKey: "C1",
				Label:      "Signed Up",
				Strategy:   "soap",
				Status:     models.AttemptSucceeded,
				HTTPStatus: &status,
				EventDate:  fixedNow,
				CreatedAt:  fixedNow,
			}},
			hasMore: true,
		}
		svc.Attempts = attempts
		app := newTestApp(svc)

		resp, body := do(t, app, http.MethodGet, service.BasePath+"/executions?contact_key=C1&limit=1&offset=2", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "C1", attempts.gotContactKey)
		assert.Equal(t, 1, attempts.gotLimit)
		assert.Equal(t, 2, attempts.gotOffset)

		var payload struct {
			Executions []map[string]any `json:"executions"`
			HasMore    bool             `json:"has_more"`
		}
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.True(t, payload.HasMore)
		require.Len(t, payload.Executions, 1)
		assert.Equal(t, "2024-03-01T12:30:00Z", payload.Executions[0]["event_date"])
		assert.Equal(t, 202.0, payload.Executions[0]["http_status"])
	})

	t.Run("invalid paging", func(t *testing.T) {
		svc := newTestService(t, &fakeWriter{})
		svc.Attempts = &fakeAttempts{}
		app := newTestApp(svc)

		for _, q := range []string{"limit=0", "limit=201", "limit=x", "offset=-1"} {
			resp, _ := do(t, app, http.MethodGet, service.BasePath+"/executions?"+q, "")
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		}
	})
}
