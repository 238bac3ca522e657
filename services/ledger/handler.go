package ledger

import (
	"context"
	"errors"
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

func (h *Handler) CreateCampaign(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid campaign", err))
		return
	}

	campaign, err := h.svc.CreateCampaign(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, campaign)
}

func (h *Handler) ListCampaigns(c *gin.Context) {
	var req ListCampaignsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid query", err))
		return
	}

	page, err := h.svc.ListCampaigns(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetCampaign(c *gin.Context) {
	campaign, err := h.svc.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, campaign)
}

func (h *Handler) DeleteCampaign(c *gin.Context) {
	if err := h.svc.DeleteCampaign(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// campaignAction adapts a status transition to a handler.
func (h *Handler) campaignAction(fn func(*Service, *gin.Context) (*Campaign, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		campaign, err := fn(h.svc, c)
		if err != nil {
			c.Error(err)
			return
		}

		c.JSON(http.StatusOK, campaign)
	}
}

func (h *Handler) SubmitCampaign() gin.HandlerFunc {
	return h.campaignAction(func(s *Service, c *gin.Context) (*Campaign, error) {
		return s.SubmitCampaign(c.Request.Context(), c.Param("id"))
	})
}

func (h *Handler) CompleteCampaign() gin.HandlerFunc {
	return h.campaignAction(func(s *Service, c *gin.Context) (*Campaign, error) {
		return s.CompleteCampaign(c.Request.Context(), c.Param("id"))
	})
}

func (h *Handler) ApproveCampaign() gin.HandlerFunc {
	return h.campaignAction(func(s *Service, c *gin.Context) (*Campaign, error) {
		return s.ApproveCampaign(c.Request.Context(), c.Param("id"))
	})
}

func (h *Handler) RejectCampaign() gin.HandlerFunc {
	return h.campaignAction(func(s *Service, c *gin.Context) (*Campaign, error) {
		return s.RejectCampaign(c.Request.Context(), c.Param("id"))
	})
}

func (h *Handler) SubmitReview(c *gin.Context) {
	var req SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.ValidationFailed("rating (1-5) and content are required", err))
		return
	}

	review, err := h.svc.SubmitReview(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, review)
}

func (h *Handler) ListReviews(c *gin.Context) {
	var req ListReviewsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.Error(errutil.ValidationFailed("invalid query", err))
		return
	}
	if id := c.Param("id"); id != "" {
		req.CampaignID = id
	}

	page, err := h.svc.ListReviews(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *Handler) ApproveReview(c *gin.Context) {
	h.moderateReview(c, h.svc.ApproveReview)
}

func (h *Handler) RejectReview(c *gin.Context) {
	h.moderateReview(c, h.svc.RejectReview)
}

// moderateReview serves the {reviewId} moderation endpoints. A review that
// was already decided is reported as 400 rather than 409.
func (h *Handler) moderateReview(c *gin.Context, fn func(ctx context.Context, id string) (*Review, error)) {
	var req ReviewActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("reviewId is required", err))
		return
	}

	if _, err := fn(c.Request.Context(), req.ReviewID); err != nil {
		if errutil.Is(err, errutil.StatusConflict) {
			var be errutil.BaseError
			errors.As(err, &be)
			err = errutil.BadRequest(be.Message, err)
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
