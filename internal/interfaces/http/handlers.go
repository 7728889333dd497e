package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/vendor-portal/internal/application/workflow"
	"github.com/garyjia/vendor-portal/internal/domain/apperr"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{services: services, logger: logger}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// ListSuppliersRequest represents query parameters for listing suppliers
type ListSuppliersRequest struct {
	Name   string `form:"name"`
	City   string `form:"city"`
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

func (h *Handlers) ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

// fail renders err with the status of its category. Retryable conflicts
// carry Retry-After; stale decisions do not.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := apperr.StatusCode(err)
	msg := apperr.Message(err)
	switch {
	case status == http.StatusConflict && apperr.IsRetryable(err):
		c.Header("Retry-After", "1")
	case status >= http.StatusInternalServerError:
		h.logger.Error("Request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"error", err)
		if status == http.StatusInternalServerError {
			msg = "internal server error"
		}
	}
	c.JSON(status, Response{Success: false, Error: msg})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if h.services.Health != nil {
		healthy, report := h.services.Health.Health(c.Request.Context())
		resp.Components = report
		if !healthy {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, Response{Success: status == http.StatusOK, Data: resp})
}

// CreateSupplier handles POST /api/suppliers
func (h *Handlers) CreateSupplier(c *gin.Context) {
	var req entity.Supplier
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Validation("invalid request body"))
		return
	}

	supplier, err := h.services.Suppliers.Create(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, supplier)
}

// ListSuppliers handles GET /api/suppliers
func (h *Handlers) ListSuppliers(c *gin.Context) {
	var req ListSuppliersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.fail(c, apperr.Validation("invalid query parameters"))
		return
	}
	if req.Limit < 0 || req.Offset < 0 {
		h.fail(c, apperr.Validation("limit and offset must not be negative"))
		return
	}

	suppliers, err := h.services.Suppliers.List(c.Request.Context(), entity.SupplierFilter{
		Name:   req.Name,
		City:   req.City,
		Status: strings.ToUpper(strings.TrimSpace(req.Status)),
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, suppliers)
}

// GetSupplier handles GET /api/suppliers/:name
func (h *Handlers) GetSupplier(c *gin.Context) {
	supplier, err := h.services.Suppliers.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, supplier)
}

// ListApprovals handles GET /api/suppliers/:name/approvals
func (h *Handlers) ListApprovals(c *gin.Context) {
	views, err := h.services.Suppliers.Approvals(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, views)
}

// ListHistory handles GET /api/suppliers/:name/history
func (h *Handlers) ListHistory(c *gin.Context) {
	history, err := h.services.Suppliers.History(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, history)
}

// Escalate handles POST /api/suppliers/:name/escalate
func (h *Handlers) Escalate(c *gin.Context) {
	name := c.Param("name")
	resend, _ := strconv.ParseBool(c.DefaultQuery("resend", "false"))

	var (
		result *workflow.EscalationResult
		err    error
	)
	if resend {
		result, err = h.services.Escalator.Resend(c.Request.Context(), name)
	} else {
		result, err = h.services.Escalator.Escalate(c.Request.Context(), name)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Info("Manual escalation", "supplier_name", name, "resend", resend, "skipped", result.Skipped)
	h.ok(c, http.StatusOK, result)
}

// ExportSuppliers handles GET /api/suppliers/export
func (h *Handlers) ExportSuppliers(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.services.Export.Export(c.Request.Context(), &buf); err != nil {
		h.fail(c, err)
		return
	}

	fileName := "suppliers-" + time.Now().UTC().Format("20060102") + ".xlsx"
	c.Header("Content-Disposition", contentDisposition(fileName))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// ListApprovers handles GET /api/approvers
func (h *Handlers) ListApprovers(c *gin.Context) {
	approvers, err := h.services.Directory.List(c.Request.Context(), c.Query("country"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, approvers)
}

// AddApprover handles POST /api/approvers
func (h *Handlers) AddApprover(c *gin.Context) {
	var req entity.Approver
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Validation("invalid request body"))
		return
	}

	approver, err := h.services.Directory.Add(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, approver)
}

// ApprovalCallback handles POST /api/approvals/callback
func (h *Handlers) ApprovalCallback(c *gin.Context) {
	var req workflow.CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			h.fail(c, apperr.Validation("invalid value for field %s", typeErr.Field))
			return
		}
		h.fail(c, apperr.Validation("invalid request body"))
		return
	}

	result, err := h.services.Callbacks.Process(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.logger.Info("Approval callback processed",
		"supplier_name", result.SupplierName,
		"level", result.Level,
		"action", string(result.Action))
	h.ok(c, http.StatusOK, result)
}
