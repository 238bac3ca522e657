package payment

import (
	"io"
	"net/http"

	"reviewhub/pkg/config"
	"reviewhub/pkg/errutil"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	svc             *Service
	signatureHeader string
}

func NewHandler(svc *Service, cfg *config.Config) *Handler {
	header := cfg.Payment.SignatureHeader
	if header == "" {
		header = "verif-hash"
	}
	return &Handler{svc: svc, signatureHeader: header}
}

// Webhook answers 200 for processed, duplicate and ignored deliveries so the
// gateway stops retrying them.
func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.Error(errutil.BadRequest("unreadable webhook body", err))
		return
	}

	result, err := h.svc.HandleWebhook(c.Request.Context(), c.GetHeader(h.signatureHeader), body)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) ListUnmatched(c *gin.Context) {
	var req ListUnmatchedRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid query", err))
		return
	}

	page, err := h.svc.ListUnmatched(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *Handler) RetryUnmatched(c *gin.Context) {
	row, err := h.svc.RetryUnmatched(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, row)
}
