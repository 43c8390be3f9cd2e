package http

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/field-service/internal/application/port"
	"github.com/garyjia/field-service/internal/application/service"
	"github.com/garyjia/field-service/internal/application/workflow"
	"github.com/garyjia/field-service/internal/domain/completion"
	"github.com/garyjia/field-service/internal/domain/entity"
	"github.com/garyjia/field-service/pkg/utils"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	sessions       *workflow.Manager
	orders         port.ServiceOrderRepository
	notifications  service.NotificationService
	reports        service.ReportService
	health         HealthFunc
	maxUploadBytes int64
	logger         Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, maxUploadBytes int64, logger Logger) *Handlers {
	return &Handlers{
		sessions:       deps.Sessions,
		orders:         deps.Orders,
		notifications:  deps.Notifications,
		reports:        deps.Reports,
		health:         deps.Health,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success  bool        `json:"success"`
	Data     interface{} `json:"data,omitempty"`
	Error    string      `json:"error,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Version    string      `json:"version"`
	Components interface{} `json:"components,omitempty"`
}

// ListOrdersRequest represents query parameters for listing orders
type ListOrdersRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// CreateOrderRequest is the body of POST /api/orders
type CreateOrderRequest struct {
	Code        string            `json:"code" binding:"required"`
	ClientName  string            `json:"client_name" binding:"required"`
	ClientPhone string            `json:"client_phone"`
	Equipment   string            `json:"equipment"`
	Address     string            `json:"address"`
	Description string            `json:"description"`
	Technician  string            `json:"technician"`
	LineItems   []LineItemRequest `json:"line_items" binding:"dive"`
}

// LineItemRequest is one line of CreateOrderRequest
type LineItemRequest struct {
	Description string  `json:"description" binding:"required"`
	Quantity    float64 `json:"quantity" binding:"gt=0"`
	UnitPrice   float64 `json:"unit_price" binding:"gte=0"`
}

// OrderResponse is a service order with its computed total
type OrderResponse struct {
	*entity.ServiceOrder
	Total float64 `json:"total"`
}

type stepRequest struct {
	Step completion.StepID `json:"step" binding:"required"`
}

type reportRequest struct {
	Text string `json:"text"`
}

type urlRequest struct {
	URL string `json:"url"`
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

type paymentRequest struct {
	Confirmed bool `json:"confirmed"`
}

type fiscalRequest struct {
	Requested bool `json:"requested"`
}

// UploadResponse carries per-file outcomes and the resulting session state
type UploadResponse struct {
	Outcomes []workflow.UploadOutcome `json:"outcomes"`
	Session  *workflow.Snapshot       `json:"session,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	status := http.StatusOK
	if h.health != nil {
		healthy, details := h.health(c.Request.Context())
		response.Components = details
		if !healthy {
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    response,
	})
}

// ListOrders handles GET /api/orders
func (h *Handlers) ListOrders(c *gin.Context) {
	var req ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}

	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 20
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	orders, err := h.orders.List(c.Request.Context(), req.Limit, req.Offset)
	if err != nil {
		h.respondError(c, err, "list orders")
		return
	}

	responses := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		responses = append(responses, OrderResponse{ServiceOrder: order, Total: order.Total()})
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: responses})
}

// CreateOrder handles POST /api/orders
func (h *Handlers) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid order", err)
		return
	}

	order := &entity.ServiceOrder{
		Code:        strings.TrimSpace(req.Code),
		ClientName:  utils.SanitizeString(req.ClientName),
		ClientPhone: req.ClientPhone,
		Equipment:   utils.SanitizeString(req.Equipment),
		Address:     utils.SanitizeString(req.Address),
		Description: utils.SanitizeString(req.Description),
		Technician:  req.Technician,
		Status:      entity.OrderStatusOpen,
	}
	for _, item := range req.LineItems {
		order.LineItems = append(order.LineItems, entity.LineItem{
			Description: utils.SanitizeString(item.Description),
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	if err := h.orders.Create(c.Request.Context(), order); err != nil {
		h.respondError(c, err, "create order")
		return
	}

	h.logger.Info("Service order created", "order_id", order.ID, "code", order.Code)
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    OrderResponse{ServiceOrder: order, Total: order.Total()},
	})
}

// GetOrder handles GET /api/orders/:id
func (h *Handlers) GetOrder(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}

	order, err := h.orders.GetByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "get order")
		return
	}
	if order == nil {
		h.respondError(c, fmt.Errorf("%w: service order %d", port.ErrNotFound, id), "get order")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    OrderResponse{ServiceOrder: order, Total: order.Total()},
	})
}

// FindSession handles GET /api/orders/:id/session
func (h *Handlers) FindSession(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}

	session, err := h.sessions.FindByOrder(id)
	if err != nil {
		h.respondError(c, err, "find session")
		return
	}
	snapshot, err := session.Snapshot()
	h.respondSnapshot(c, snapshot, err)
}

// OpenSession handles POST /api/orders/:id/sessions
func (h *Handlers) OpenSession(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}

	session, err := h.sessions.Open(c.Request.Context(), id, operatorFrom(c))
	if err != nil {
		h.respondError(c, err, "open session")
		return
	}

	snapshot, err := session.Snapshot()
	if err != nil {
		h.respondError(c, err, "open session")
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: snapshot})
}

// DownloadReport handles GET /api/orders/:id/report
func (h *Handlers) DownloadReport(c *gin.Context) {
	id, ok := h.orderID(c)
	if !ok {
		return
	}

	report, err := h.reports.GenerateCompletionReport(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "generate report")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName))
	c.Data(http.StatusOK, report.ContentType, report.Content)
}

// GetSession handles GET /api/sessions/:sid
func (h *Handlers) GetSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	snapshot, err := session.Snapshot()
	h.respondSnapshot(c, snapshot, err)
}

// CancelSession handles DELETE /api/sessions/:sid
func (h *Handlers) CancelSession(c *gin.Context) {
	if err := h.sessions.Close(c.Request.Context(), c.Param("sid")); err != nil {
		h.respondError(c, err, "cancel session")
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// NextStep handles POST /api/sessions/:sid/steps/next
func (h *Handlers) NextStep(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	snapshot, err := session.Next(c.Request.Context())
	h.respondSnapshot(c, snapshot, err)
}

// PreviousStep handles POST /api/sessions/:sid/steps/back
func (h *Handlers) PreviousStep(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	snapshot, err := session.Back(c.Request.Context())
	h.respondSnapshot(c, snapshot, err)
}

// GoToStep handles PUT /api/sessions/:sid/steps/current
func (h *Handlers) GoToStep(c *gin.Context) {
	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid step", err)
		return
	}
	session, ok := h.session(c)
	if !ok {
		return
	}
	snapshot, err := session.GoTo(c.Request.Context(), req.Step)
	h.respondSnapshot(c, snapshot, err)
}

// SetReport handles PUT /api/sessions/:sid/report
func (h *Handlers) SetReport(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid report", err)
		return
	}
	session, ok := h.session(c)
	if !ok {
		return
	}
	snapshot, err := session.SetReport(c.Request.Context(), utils.SanitizeString(req.Text))
	h.respondSnapshot(c, snapshot, err)
}

// UploadAttachments handles POST /api/sessions/:sid/attachments.
// Each file succeeds or fails on its own; failures come back as warnings.
func (h *Handlers) UploadAttachments(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		h.badRequest(c, "invalid multipart form", err)
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		h.badRequest(c, "no files provided", nil)
		return
	}

	files := make([]entity.UploadFile, 0, len(headers))
	for _, fh := range headers {
		file, err := readUpload(fh)
		if err != nil {
			h.badRequest(c, "failed to read upload", err)
			return
		}
		files = append(files, file)
	}

	result, err := session.UploadAttachments(c.Request.Context(), files)
	if err != nil {
		h.respondError(c, err, "upload attachments")
		return
	}

	var warnings []string
	for _, failed := range result.Failed() {
		warnings = append(warnings, fmt.Sprintf("%s: %s", failed.FileName, failed.Error))
	}

	response := UploadResponse{Outcomes: result.Outcomes}
	if snapshot, err := session.Snapshot(); err == nil {
		response.Session = &snapshot
	}
	c.JSON(http.StatusOK, Response{
		Success:  len(result.Succeeded()) > 0,
		Data:     response,
		Warnings: warnings,
	})
}

// RemoveAttachment handles DELETE /api/sessions/:sid/attachments
func (h *Handlers) RemoveAttachment(c *gin.Context) {
	var req urlRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "invalid attachment", err)
			return
		}
	}
	if req.URL == "" {
		req.URL = c.Query("url")
	}
	session, ok := h.session(c)
	if !ok {
		return
	}
	snapshot, err := session.RemoveAttachment(c.Request.Context(), req.URL)
	h.respondSnapshot(c, snapshot, err)
}

// AttachSignature handles POST /api/sessions/:sid/signatures/:role
func (h *Handlers) AttachSignature(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	fh, err := c.FormFile("image")
	if err != nil {
		h.badRequest(c, "signature image is required", err)
		return
	}
	image, err := readUpload(fh)
	if err != nil {
		h.badRequest(c, "failed to read signature image", err)
		return
	}

	role := completion.SignatureRole(c.Param("role"))
	snapshot, err := session.AttachSignature(c.Request.Context(), role, image)
	h.respondSnapshot(c, snapshot, err)
}

// ClearSignature handles DELETE /api/sessions/:sid/signatures/:role
func (h *Handlers) ClearSignature(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	role := completion.SignatureRole(c.Param("role"))
	snapshot, err := session.ClearSignature(c.Request.Context(), role)
	h.respondSnapshot(c, snapshot, err)
}

// SetBypass handles POST /api/sessions/:sid/bypass
func (h *Handlers) SetBypass(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid bypass request", err)
		return
	}
	session, ok := h.session(c)
	if !ok {
		return
	}
	snapshot, err := session.SetBypass(c.Request.Context(), operatorFrom(c), req.Enabled)
	h.respondSnapshot(c, snapshot, err)
}

// ConfirmPayment handles POST /api/sessions/:sid/payment
func (h *Handlers) ConfirmPayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid payment request", err)
		return
	}
	session, ok := h.session(c)
	if !ok {
		return
	}
	snapshot, err := session.ConfirmPayment(c.Request.Context(), req.Confirmed)
	h.respondSnapshot(c, snapshot, err)
}

// RequestFiscal handles POST /api/sessions/:sid/fiscal/request
func (h *Handlers) RequestFiscal(c *gin.Context) {
	var req fiscalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid fiscal request", err)
		return
	}
	session, ok := h.session(c)
	if !ok {
		return
	}
	snapshot, err := session.RequestFiscal(c.Request.Context(), req.Requested)
	h.respondSnapshot(c, snapshot, err)
}

// SetFiscalDraft handles PUT /api/sessions/:sid/fiscal/draft
func (h *Handlers) SetFiscalDraft(c *gin.Context) {
	var req completion.FiscalDraft
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid fiscal draft", err)
		return
	}
	// Empty fields are allowed while the draft is being edited
	if req.ServiceCode != "" {
		if err := utils.ValidateServiceCode(req.ServiceCode); err != nil {
			h.badRequest(c, "invalid fiscal draft", err)
			return
		}
	}
	if req.Amount != 0 {
		if err := utils.ValidateAmount(req.Amount); err != nil {
			h.badRequest(c, "invalid fiscal draft", err)
			return
		}
	}
	req.Description = utils.SanitizeString(req.Description)
	session, ok := h.session(c)
	if !ok {
		return
	}
	snapshot, err := session.SetFiscalDraft(c.Request.Context(), req)
	h.respondSnapshot(c, snapshot, err)
}

// EmitFiscal handles POST /api/sessions/:sid/fiscal/emit. An emission failure is part of
// the returned session state, not an HTTP error.
func (h *Handlers) EmitFiscal(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	snapshot, err := session.EmitFiscalDocument(c.Request.Context())
	h.respondSnapshot(c, snapshot, err)
}

// RetryFiscal handles POST /api/sessions/:sid/fiscal/retry
func (h *Handlers) RetryFiscal(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	snapshot, err := session.RetryFiscal(c.Request.Context())
	h.respondSnapshot(c, snapshot, err)
}

// SkipFiscal handles POST /api/sessions/:sid/fiscal/skip
func (h *Handlers) SkipFiscal(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	snapshot, err := session.SkipFiscal(c.Request.Context())
	h.respondSnapshot(c, snapshot, err)
}

// Finalize handles POST /api/sessions/:sid/finalize. Notification failures never undo
// a completion; they are returned as warnings.
func (h *Handlers) Finalize(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	payload, err := session.Finalize(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "finalize")
		return
	}

	var warnings []string
	if h.notifications != nil {
		warnings = h.notifications.NotifyCompletion(c.Request.Context(), payload)
	}

	c.JSON(http.StatusOK, Response{
		Success:  true,
		Data:     payload,
		Warnings: warnings,
	})
}

func (h *Handlers) session(c *gin.Context) (*workflow.Session, bool) {
	session, err := h.sessions.Get(c.Param("sid"))
	if err != nil {
		h.respondError(c, err, "get session")
		return nil, false
	}
	return session, true
}

func (h *Handlers) orderID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "invalid order ID", err)
		return 0, false
	}
	return id, true
}

func (h *Handlers) respondSnapshot(c *gin.Context, snapshot workflow.Snapshot, err error) {
	if err != nil {
		h.respondError(c, err, c.Request.Method+" "+c.FullPath())
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: snapshot})
}

func (h *Handlers) badRequest(c *gin.Context, message string, err error) {
	if err != nil {
		h.logger.Error("Bad request", "path", c.FullPath(), "error", err)
	}
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: message})
}

func readUpload(fh *multipart.FileHeader) (entity.UploadFile, error) {
	f, err := fh.Open()
	if err != nil {
		return entity.UploadFile{}, err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return entity.UploadFile{}, err
	}
	return entity.UploadFile{
		FileName: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Content:  content,
	}, nil
}
