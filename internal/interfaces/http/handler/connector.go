package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	connectorapp "github.com/pulseboard/backend/internal/application/connector"
	syncapp "github.com/pulseboard/backend/internal/application/sync"
	webhookapp "github.com/pulseboard/backend/internal/application/webhook"
	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/shared"
	"github.com/pulseboard/backend/internal/interfaces/http/dto"
)

// ConnectorHandler handles connector-related API endpoints
type ConnectorHandler struct {
	BaseHandler
	connectorService *connectorapp.Service
	syncService      *syncapp.Service
	testSender       *webhookapp.TestDeliverySender
}

// NewConnectorHandler creates a new ConnectorHandler
func NewConnectorHandler(
	connectorService *connectorapp.Service,
	syncService *syncapp.Service,
	testSender *webhookapp.TestDeliverySender,
) *ConnectorHandler {
	return &ConnectorHandler{
		connectorService: connectorService,
		syncService:      syncService,
		testSender:       testSender,
	}
}

// RunSyncRequest represents a request to trigger a sync run
// @Description Request body for triggering a connector sync
type RunSyncRequest struct {
	FullSync bool `json:"full_sync" example:"false"`
}

// Create godoc
// @Summary      Create a new connector
// @Description  Register a provider connector for the tenant
// @Tags         connectors
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        request body connectorapp.CreateConnectorRequest true "Connector creation request"
// @Success      201 {object} dto.Response{data=connectorapp.ConnectorResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /connectors [post]
func (h *ConnectorHandler) Create(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	var req connectorapp.CreateConnectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.connectorService.Create(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, resp)
}

// List godoc
// @Summary      List connectors
// @Description  List the tenant's connectors with pagination
// @Tags         connectors
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Param        order_by query string false "Order by field" default(created_at)
// @Param        order_dir query string false "Order direction" Enums(asc, desc)
// @Success      200 {object} dto.Response{data=[]connectorapp.ConnectorResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /connectors [get]
func (h *ConnectorHandler) List(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return
	}

	filter, ok := h.bindListFilter(c)
	if !ok {
		return
	}

	result, err := h.connectorService.List(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// Get godoc
// @Summary      Get a connector
// @Description  Get a connector with its most recent sync run
// @Tags         connectors
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        id path string true "Connector ID"
// @Success      200 {object} dto.Response{data=connectorapp.ConnectorDetailResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /connectors/{id} [get]
func (h *ConnectorHandler) Get(c *gin.Context) {
	tenantID, connectorID, ok := h.bindTenantAndID(c)
	if !ok {
		return
	}

	resp, err := h.connectorService.Get(c.Request.Context(), tenantID, connectorID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// Update godoc
// @Summary      Update a connector
// @Description  Update connector settings or rotate credentials
// @Tags         connectors
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        id path string true "Connector ID"
// @Param        request body connectorapp.UpdateConnectorRequest true "Connector update request"
// @Success      200 {object} dto.Response{data=connectorapp.ConnectorResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /connectors/{id} [patch]
func (h *ConnectorHandler) Update(c *gin.Context) {
	tenantID, connectorID, ok := h.bindTenantAndID(c)
	if !ok {
		return
	}

	var req connectorapp.UpdateConnectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.connectorService.Update(c.Request.Context(), tenantID, connectorID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// Delete godoc
// @Summary      Delete a connector
// @Description  Soft delete a connector. Sync history and deliveries are retained.
// @Tags         connectors
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        id path string true "Connector ID"
// @Success      204 "No Content"
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /connectors/{id} [delete]
func (h *ConnectorHandler) Delete(c *gin.Context) {
	tenantID, connectorID, ok := h.bindTenantAndID(c)
	if !ok {
		return
	}

	if err := h.connectorService.Delete(c.Request.Context(), tenantID, connectorID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// Enable godoc
// @Summary      Enable a connector
// @Description  Enable a disabled connector so syncs and webhooks resume
// @Tags         connectors
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        id path string true "Connector ID"
// @Success      200 {object} dto.Response{data=connectorapp.ConnectorResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /connectors/{id}/enable [post]
func (h *ConnectorHandler) Enable(c *gin.Context) {
	tenantID, connectorID, ok := h.bindTenantAndID(c)
	if !ok {
		return
	}

	resp, err := h.connectorService.Enable(c.Request.Context(), tenantID, connectorID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// Disable godoc
// @Summary      Disable a connector
// @Description  Disable a connector. Scheduled syncs stop and inbound webhooks are rejected.
// @Tags         connectors
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        id path string true "Connector ID"
// @Success      200 {object} dto.Response{data=connectorapp.ConnectorResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /connectors/{id}/disable [post]
func (h *ConnectorHandler) Disable(c *gin.Context) {
	tenantID, connectorID, ok := h.bindTenantAndID(c)
	if !ok {
		return
	}

	resp, err := h.connectorService.Disable(c.Request.Context(), tenantID, connectorID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// RunSync godoc
// @Summary      Trigger a sync run
// @Description  Run a full or incremental sync for a connector. Only one run per connector at a time.
// @Tags         connectors
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        id path string true "Connector ID"
// @Param        request body RunSyncRequest false "Sync options"
// @Success      200 {object} dto.Response{data=syncapp.Result}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /connectors/{id}/sync [post]
func (h *ConnectorHandler) RunSync(c *gin.Context) {
	tenantID, connectorID, ok := h.bindTenantAndID(c)
	if !ok {
		return
	}

	var req RunSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, err.Error())
			return
		}
	}

	syncType := connector.SyncTypeIncremental
	if req.FullSync {
		syncType = connector.SyncTypeFull
	}

	result, err := h.syncService.RunSync(c.Request.Context(), tenantID, connectorID, syncType)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// SendTestWebhook godoc
// @Summary      Send a test webhook
// @Description  Send a signed synthetic event to the connector's outbound URL
// @Tags         connectors
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        id path string true "Connector ID"
// @Success      200 {object} dto.Response{data=connectorapp.DeliveryResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /connectors/{id}/test-webhook [post]
func (h *ConnectorHandler) SendTestWebhook(c *gin.Context) {
	tenantID, connectorID, ok := h.bindTenantAndID(c)
	if !ok {
		return
	}

	delivery, err := h.testSender.Send(c.Request.Context(), tenantID, connectorID)
	if err != nil {
		if errors.Is(err, webhookapp.ErrNoOutboundURL) {
			h.UnprocessableEntity(c, dto.ErrCodeInvalidState, err.Error())
			return
		}
		h.HandleError(c, err)
		return
	}

	h.Success(c, connectorapp.ToDeliveryResponse(delivery))
}

// ListSyncLogs godoc
// @Summary      List sync runs
// @Description  List a connector's sync run history, most recent first
// @Tags         connectors
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        id path string true "Connector ID"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} dto.Response{data=[]connectorapp.SyncLogResponse,meta=dto.Meta}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /connectors/{id}/sync-logs [get]
func (h *ConnectorHandler) ListSyncLogs(c *gin.Context) {
	tenantID, connectorID, ok := h.bindTenantAndID(c)
	if !ok {
		return
	}

	filter, ok := h.bindListFilter(c)
	if !ok {
		return
	}

	result, err := h.connectorService.ListSyncLogs(c.Request.Context(), tenantID, connectorID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// ListDeliveries godoc
// @Summary      List webhook deliveries
// @Description  List a connector's webhook delivery records, most recent first
// @Tags         connectors
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        id path string true "Connector ID"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} dto.Response{data=[]connectorapp.DeliveryResponse,meta=dto.Meta}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /connectors/{id}/deliveries [get]
func (h *ConnectorHandler) ListDeliveries(c *gin.Context) {
	tenantID, connectorID, ok := h.bindTenantAndID(c)
	if !ok {
		return
	}

	filter, ok := h.bindListFilter(c)
	if !ok {
		return
	}

	result, err := h.connectorService.ListDeliveries(c.Request.Context(), tenantID, connectorID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// bindTenantAndID resolves the tenant from context and the connector ID
// from the path, writing the error response itself on failure
func (h *ConnectorHandler) bindTenantAndID(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID")
		return uuid.Nil, uuid.Nil, false
	}

	var idReq dto.IDRequest
	if err := c.ShouldBindUri(&idReq); err != nil {
		h.BadRequest(c, "Invalid connector ID format")
		return uuid.Nil, uuid.Nil, false
	}
	connectorID, err := uuid.Parse(idReq.ID)
	if err != nil {
		h.BadRequest(c, "Invalid connector ID format")
		return uuid.Nil, uuid.Nil, false
	}

	return tenantID, connectorID, true
}

// bindListFilter binds pagination query parameters, writing the error
// response itself on failure
func (h *ConnectorHandler) bindListFilter(c *gin.Context) (shared.Filter, bool) {
	req := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return shared.Filter{}, false
	}
	filter := shared.DefaultFilter()
	if req.Page > 0 {
		filter.Page = req.Page
	}
	if req.PageSize > 0 {
		filter.PageSize = req.PageSize
	}
	if req.OrderBy != "" {
		filter.OrderBy = req.OrderBy
	}
	if req.OrderDir != "" {
		filter.OrderDir = req.OrderDir
	}
	return filter, true
}

// RegisterRoutes registers all connector routes
func (h *ConnectorHandler) RegisterRoutes(rg *gin.RouterGroup) {
	connectors := rg.Group("/connectors")
	{
		connectors.POST("", h.Create)
		connectors.GET("", h.List)
		connectors.GET("/:id", h.Get)
		connectors.PATCH("/:id", h.Update)
		connectors.DELETE("/:id", h.Delete)
		connectors.POST("/:id/enable", h.Enable)
		connectors.POST("/:id/disable", h.Disable)
		connectors.POST("/:id/sync", h.RunSync)
		connectors.POST("/:id/test-webhook", h.SendTestWebhook)
		connectors.GET("/:id/sync-logs", h.ListSyncLogs)
		connectors.GET("/:id/deliveries", h.ListDeliveries)
	}
}
