package wallet

import (
	"net/http"

	"reviewhub/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) GetWallet(c *gin.Context) {
	w, err := h.svc.GetWallet(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, w)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	var req ListTransactionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid query", err))
		return
	}

	page, err := h.svc.ListTransactions(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// ListWithdrawals is the admin payout queue. Status defaults to pending.
func (h *Handler) ListWithdrawals(c *gin.Context) {
	var req ListTransactionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid query", err))
		return
	}
	req.Type = TypeWithdrawal
	if req.Status == "" {
		req.Status = StatusPending
	}

	page, err := h.svc.ListTransactions(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var req WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("amount is required", err))
		return
	}

	txn, err := h.svc.RequestWithdrawal(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, txn)
}

func (h *Handler) SettleWithdrawal(c *gin.Context) {
	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("outcome must be completed or failed", err))
		return
	}

	txn, err := h.svc.SettleWithdrawal(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, txn)
}
