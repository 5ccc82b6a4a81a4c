package handler

import (
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	webhookapp "github.com/pulseboard/backend/internal/application/webhook"
	"github.com/pulseboard/backend/internal/domain/connector"
)

// WebhookHandler receives inbound provider webhooks. These routes skip
// the tenant middleware; the connector ID in the path resolves the
// tenant, and the provider signature is the authentication.
type WebhookHandler struct {
	BaseHandler
	gateway *webhookapp.Gateway
	logger  *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(gateway *webhookapp.Gateway, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		gateway: gateway,
		logger:  logger,
	}
}

// Receive godoc
// @Summary      Receive a provider webhook
// @Description  Verify, deduplicate and process one inbound provider event
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        provider path string true "Provider" Enums(stripe, shopify)
// @Param        connector_id path string true "Connector ID"
// @Success      200 {object} dto.Response{data=webhook.DeliveryOutcome}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /webhooks/{provider}/{connector_id} [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	provider := connector.ProviderType(strings.ToUpper(c.Param("provider")))
	if !provider.IsValid() {
		h.NotFound(c, "Unknown provider")
		return
	}

	connectorID, err := uuid.Parse(c.Param("connector_id"))
	if err != nil {
		h.BadRequest(c, "Invalid connector ID format")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}

	outcome, err := h.gateway.Receive(c.Request.Context(), provider, connectorID, body, c.Request.Header)
	if err != nil {
		// A processing failure still wrote the delivery row; answering
		// non-2xx lets the provider retry the event.
		h.logger.Warn("webhook rejected",
			zap.String("provider", provider.String()),
			zap.String("connector_id", connectorID.String()),
			zap.Error(err),
		)
		h.HandleError(c, err)
		return
	}

	h.Success(c, outcome)
}

// RegisterRoutes registers all webhook routes
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	webhooks := rg.Group("/webhooks")
	{
		webhooks.POST("/:provider/:connector_id", h.Receive)
	}
}
