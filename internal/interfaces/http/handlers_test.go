package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/field-service/internal/application/port"
	"github.com/garyjia/field-service/internal/application/service"
	"github.com/garyjia/field-service/internal/application/workflow"
	"github.com/garyjia/field-service/internal/domain/completion"
	"github.com/garyjia/field-service/internal/domain/entity"
	"github.com/garyjia/field-service/internal/domain/event"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type stubOrders struct {
	mu      sync.Mutex
	orders  map[int64]*entity.ServiceOrder
	created []*entity.ServiceOrder
}

func newStubOrders() *stubOrders {
	return &stubOrders{orders: map[int64]*entity.ServiceOrder{
		7: {
			ID:          7,
			Code:        "OS-0007",
			ClientName:  "Acme",
			Description: "Compressor repair",
			Status:      entity.OrderStatusInProgress,
			LineItems:   []entity.LineItem{{Description: "Labour", Quantity: 2, UnitPrice: 125}},
		},
		8: {ID: 8, Code: "OS-0008", Status: entity.OrderStatusCompleted},
	}}
}

func (s *stubOrders) Create(ctx context.Context, order *entity.ServiceOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.ID = int64(100 + len(s.created))
	s.created = append(s.created, order)
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrders) GetByID(ctx context.Context, id int64) (*entity.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id], nil
}

func (s *stubOrders) UpdateStatus(ctx context.Context, id int64, status string) error {
	return nil
}

func (s *stubOrders) MarkCompleted(ctx context.Context, id int64, fiscalDocumentID string, completedAt time.Time) error {
	return nil
}

func (s *stubOrders) List(ctx context.Context, limit, offset int) ([]*entity.ServiceOrder, error) {
	return []*entity.ServiceOrder{s.orders[7]}, nil
}

type stubUploader struct {
	uploadFn func(ctx context.Context, file entity.UploadFile, category string) (string, error)
}

func (s *stubUploader) Upload(ctx context.Context, file entity.UploadFile, category string) (string, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, file, category)
	}
	return fmt.Sprintf("https://files.example.com/%s/%s", category, file.FileName), nil
}

type stubEmitter struct {
	emitFn func(ctx context.Context, req completion.FiscalDraft) (*completion.FiscalResult, error)
}

func (s *stubEmitter) Emit(ctx context.Context, req completion.FiscalDraft) (*completion.FiscalResult, error) {
	if s.emitFn != nil {
		return s.emitFn(ctx, req)
	}
	return &completion.FiscalResult{ID: "NFSE-1", VerificationCode: "V1", Status: entity.FiscalStatusIssued}, nil
}

type stubSink struct {
	completeFn func(ctx context.Context, payload completion.Payload) error
}

func (s *stubSink) Complete(ctx context.Context, payload completion.Payload) error {
	if s.completeFn != nil {
		return s.completeFn(ctx, payload)
	}
	return nil
}

type stubNotifications struct {
	warnings []string
	payloads []completion.Payload
}

func (s *stubNotifications) NotifyCompletion(ctx context.Context, payload completion.Payload) []string {
	s.payloads = append(s.payloads, payload)
	return s.warnings
}

type stubReports struct {
	generateFn func(ctx context.Context, orderID int64) (*service.Report, error)
}

func (s *stubReports) GenerateCompletionReport(ctx context.Context, orderID int64) (*service.Report, error) {
	return s.generateFn(ctx, orderID)
}

func (s *stubReports) HandleOrderCompleted(ctx context.Context, evt *event.Event) error {
	return nil
}

type stubMetrics struct {
	mu     sync.Mutex
	routes []string
}

func (s *stubMetrics) ObserveHTTP(method, route, status string, seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, method+" "+route+" "+status)
}

func (s *stubMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
}

type testEnv struct {
	server        *Server
	orders        *stubOrders
	uploader      *stubUploader
	sink          *stubSink
	notifications *stubNotifications
	reports       *stubReports
	metrics       *stubMetrics
	auth          *Authenticator
}

func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()

	env := &testEnv{
		orders:        newStubOrders(),
		uploader:      &stubUploader{},
		sink:          &stubSink{},
		notifications: &stubNotifications{},
		reports:       &stubReports{},
		metrics:       &stubMetrics{},
		auth:          NewAuthenticator(secret, "field-service"),
	}
	manager := workflow.NewManager(env.orders, env.uploader, &stubEmitter{}, env.sink,
		workflow.WithFiscalServiceCode("14.01"),
	)
	t.Cleanup(func() { manager.Shutdown(context.Background()) })

	env.server = NewServer(DefaultServerConfig(), Dependencies{
		Sessions:      manager,
		Orders:        env.orders,
		Notifications: env.notifications,
		Reports:       env.reports,
		Auth:          env.auth,
		Metrics:       env.metrics,
	}, nopLogger{})
	return env
}

type apiResponse struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	Error    string          `json:"error"`
	Warnings []string        `json:"warnings"`
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return e.serve(t, req)
}

func (e *testEnv) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)

	var resp apiResponse
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func decodeSnapshot(t *testing.T, resp apiResponse) workflow.Snapshot {
	t.Helper()
	var snap workflow.Snapshot
	require.NoError(t, json.Unmarshal(resp.Data, &snap))
	return snap
}

func multipartRequest(t *testing.T, path, field string, files map[string][]byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, "")

	w, resp := env.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")

	w, _ := env.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# metrics")

	env.do(t, http.MethodGet, "/api/orders/7", nil, nil)
	assert.Contains(t, env.metrics.routes, "GET /api/orders/:id 200")
}

func TestOrders(t *testing.T) {
	env := newTestEnv(t, "")

	t.Run("get includes total", func(t *testing.T) {
		w, resp := env.do(t, http.MethodGet, "/api/orders/7", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var order OrderResponse
		require.NoError(t, json.Unmarshal(resp.Data, &order))
		assert.Equal(t, "OS-0007", order.Code)
		assert.Equal(t, 250.0, order.Total)
	})

	t.Run("missing order", func(t *testing.T) {
		w, resp := env.do(t, http.MethodGet, "/api/orders/99", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.False(t, resp.Success)
	})

	t.Run("invalid id", func(t *testing.T) {
		w, _ := env.do(t, http.MethodGet, "/api/orders/abc", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("create requires admin", func(t *testing.T) {
		body := CreateOrderRequest{Code: "OS-0100", ClientName: "Beta"}
		w, _ := env.do(t, http.MethodPost, "/api/orders", body, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w, resp := env.do(t, http.MethodPost, "/api/orders", body, map[string]string{"X-Operator-Role": "admin"})
		require.Equal(t, http.StatusCreated, w.Code)
		assert.True(t, resp.Success)
		require.Len(t, env.orders.created, 1)
		assert.Equal(t, entity.OrderStatusOpen, env.orders.created[0].Status)
	})

	t.Run("create validates body", func(t *testing.T) {
		w, _ := env.do(t, http.MethodPost, "/api/orders", map[string]string{"code": "OS-1"},
			map[string]string{"X-Operator-Role": "admin"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, "")
	headers := map[string]string{"X-Operator-ID": "tech-1"}

	w, resp := env.do(t, http.MethodPost, "/api/orders/7/sessions", nil, headers)
	require.Equal(t, http.StatusCreated, w.Code)
	snap := decodeSnapshot(t, resp)
	assert.Equal(t, completion.StepEvidence, snap.CurrentStep)
	assert.Equal(t, 250.0, snap.TotalAmount)
	assert.Equal(t, "tech-1", snap.Operator.ID)
	base := "/api/sessions/" + snap.SessionID

	t.Run("second open conflicts", func(t *testing.T) {
		w, _ := env.do(t, http.MethodPost, "/api/orders/7/sessions", nil, headers)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("find by order", func(t *testing.T) {
		w, resp := env.do(t, http.MethodGet, "/api/orders/7/session", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, snap.SessionID, decodeSnapshot(t, resp).SessionID)
	})

	t.Run("report and navigation", func(t *testing.T) {
		w, resp := env.do(t, http.MethodPut, base+"/report", reportRequest{Text: "Replaced relay"}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Replaced relay", decodeSnapshot(t, resp).Draft.TechnicalReport)

		w, resp = env.do(t, http.MethodPost, base+"/steps/next", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, completion.StepAttachments, decodeSnapshot(t, resp).CurrentStep)

		w, _ = env.do(t, http.MethodPut, base+"/steps/current", stepRequest{Step: completion.StepPayment}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		w, resp = env.do(t, http.MethodPost, base+"/steps/back", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, completion.StepEvidence, decodeSnapshot(t, resp).CurrentStep)
	})

	t.Run("attachments", func(t *testing.T) {
		req := multipartRequest(t, base+"/attachments", "files", map[string][]byte{"a.jpg": []byte("jpeg")})
		w, resp := env.serve(t, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, resp.Success)

		var upload UploadResponse
		require.NoError(t, json.Unmarshal(resp.Data, &upload))
		require.Len(t, upload.Outcomes, 1)
		url := upload.Outcomes[0].URL
		assert.Equal(t, "https://files.example.com/attachment/a.jpg", url)
		require.NotNil(t, upload.Session)
		assert.Equal(t, []string{url}, upload.Session.Draft.AttachmentURLs())

		w, resp = env.do(t, http.MethodDelete, base+"/attachments", urlRequest{URL: url}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeSnapshot(t, resp).Draft.Attachments)
	})

	t.Run("signatures", func(t *testing.T) {
		for _, role := range []string{"technician", "client"} {
			req := multipartRequest(t, base+"/signatures/"+role, "image", map[string][]byte{role + ".png": []byte("png")})
			w, _ := env.serve(t, req)
			require.Equal(t, http.StatusOK, w.Code, role)
		}

		req := multipartRequest(t, base+"/signatures/witness", "image", map[string][]byte{"w.png": []byte("png")})
		w, _ := env.serve(t, req)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("bypass requires admin", func(t *testing.T) {
		w, _ := env.do(t, http.MethodPost, base+"/bypass", toggleRequest{Enabled: true}, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("malformed fiscal draft", func(t *testing.T) {
		w, _ := env.do(t, http.MethodPut, base+"/fiscal/draft", completion.FiscalDraft{ServiceCode: "abc"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w, _ = env.do(t, http.MethodPut, base+"/fiscal/draft", completion.FiscalDraft{Amount: -5}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("fiscal document", func(t *testing.T) {
		w, _ := env.do(t, http.MethodPost, base+"/fiscal/request", fiscalRequest{Requested: true}, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w, _ = env.do(t, http.MethodPost, base+"/finalize", nil, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "payment is not confirmed yet")

		w, _ = env.do(t, http.MethodPost, base+"/payment", paymentRequest{Confirmed: true}, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w, resp := env.do(t, http.MethodPost, base+"/fiscal/emit", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		snap := decodeSnapshot(t, resp)
		assert.Equal(t, completion.StepFiscalResult, snap.CurrentStep)
		require.NotNil(t, snap.Draft.FiscalResult)
		assert.Equal(t, "NFSE-1", snap.Draft.FiscalResult.ID)
	})

	t.Run("finalize", func(t *testing.T) {
		env.notifications.warnings = []string{"whatsapp notification failed: no recipient"}

		w, resp := env.do(t, http.MethodPost, base+"/finalize", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, resp.Success)
		assert.Equal(t, env.notifications.warnings, resp.Warnings)

		var payload completion.Payload
		require.NoError(t, json.Unmarshal(resp.Data, &payload))
		assert.Equal(t, int64(7), payload.ServiceOrderID)
		assert.True(t, payload.PaymentConfirmed)
		require.Len(t, env.notifications.payloads, 1)

		w, _ = env.do(t, http.MethodGet, base, nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSession_ErrorMapping(t *testing.T) {
	env := newTestEnv(t, "")

	t.Run("unknown session", func(t *testing.T) {
		w, resp := env.do(t, http.MethodGet, "/api/sessions/missing", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.False(t, resp.Success)
	})

	t.Run("order not completable", func(t *testing.T) {
		w, _ := env.do(t, http.MethodPost, "/api/orders/8/sessions", nil, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("completion failure keeps session", func(t *testing.T) {
		env.sink.completeFn = func(ctx context.Context, payload completion.Payload) error {
			return errors.New("database is locked")
		}
		admin := map[string]string{"X-Operator-ID": "admin-1", "X-Operator-Role": "admin"}

		_, resp := env.do(t, http.MethodPost, "/api/orders/7/sessions", nil, admin)
		base := "/api/sessions/" + decodeSnapshot(t, resp).SessionID

		w, _ := env.do(t, http.MethodPost, base+"/bypass", toggleRequest{Enabled: true}, admin)
		require.Equal(t, http.StatusOK, w.Code)

		w, _ = env.do(t, http.MethodPost, base+"/finalize", nil, admin)
		assert.Equal(t, http.StatusBadGateway, w.Code)

		w, _ = env.do(t, http.MethodGet, base, nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w, _ = env.do(t, http.MethodDelete, base, nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("failed signature upload keeps the reason", func(t *testing.T) {
		_, resp := env.do(t, http.MethodPost, "/api/orders/7/sessions", nil, nil)
		base := "/api/sessions/" + decodeSnapshot(t, resp).SessionID

		env.uploader.uploadFn = func(ctx context.Context, file entity.UploadFile, category string) (string, error) {
			return "", errors.New("bucket unavailable")
		}
		req := multipartRequest(t, base+"/signatures/client", "image", map[string][]byte{"client.png": []byte("png")})
		w, resp := env.serve(t, req)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, resp.Error, "bucket unavailable")
		assert.Contains(t, resp.Error, "client signature")

		env.uploader.uploadFn = func(ctx context.Context, file entity.UploadFile, category string) (string, error) {
			return "", fmt.Errorf("%w: %q is 9 bytes, limit 4", port.ErrFileTooLarge, file.FileName)
		}
		req = multipartRequest(t, base+"/signatures/technician", "image", map[string][]byte{"tech.png": []byte("png")})
		w, resp = env.serve(t, req)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, resp.Error, "file too large")

		w, resp = env.do(t, http.MethodGet, base, nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeSnapshot(t, resp).Draft.ClientSignature)
	})
}

func TestDownloadReport(t *testing.T) {
	env := newTestEnv(t, "")

	env.reports.generateFn = func(ctx context.Context, orderID int64) (*service.Report, error) {
		if orderID != 7 {
			return nil, fmt.Errorf("%w: order %d", service.ErrCompletionNotFound, orderID)
		}
		return &service.Report{
			FileName:    "OS-0007-completion.xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Content:     []byte("xlsx"),
		}, nil
	}

	w, _ := env.do(t, http.MethodGet, "/api/orders/7/report", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "xlsx", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "OS-0007-completion.xlsx")

	w, _ = env.do(t, http.MethodGet, "/api/orders/9/report", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{completion.ErrSignaturesMissing, http.StatusUnprocessableEntity},
		{workflow.ErrNoNextStep, http.StatusUnprocessableEntity},
		{workflow.ErrOperationInFlight, http.StatusConflict},
		{fmt.Errorf("wrap: %w", port.ErrNotFound), http.StatusNotFound},
		{workflow.ErrSessionClosed, http.StatusGone},
		{workflow.ErrBypassNotPermitted, http.StatusForbidden},
		{fmt.Errorf("%w: %w", workflow.ErrCompletionFailed, errors.New("boom")), http.StatusBadGateway},
		{fmt.Errorf("%w: %w", workflow.ErrUploadFailed, errors.New("bucket unavailable")), http.StatusBadGateway},
		{fmt.Errorf("%w: %w", workflow.ErrUploadFailed, port.ErrFileTooLarge), http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
