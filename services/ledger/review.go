package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reviewhub/pkg/authz"
	"reviewhub/pkg/db/option"
	"reviewhub/pkg/db/pagination"
	"reviewhub/pkg/errutil"
	"reviewhub/pkg/logger"
	"reviewhub/services/identity"
	"reviewhub/services/wallet"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SubmitReview records the caller's review of an active campaign. A reviewer
// gets one review per campaign; the earnings are fixed to the campaign's
// current price.
func (s *Service) SubmitReview(ctx context.Context, campaignID string, req SubmitReviewRequest) (*Review, error) {
	p, err := s.authz.Require(ctx, authz.ActionReviewSubmit)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(req.Content)
	if req.Rating < 1 || req.Rating > 5 {
		return nil, errutil.ValidationFailed("rating must be between 1 and 5", nil)
	}
	if content == "" {
		return nil, errutil.ValidationFailed("content is required", nil)
	}

	var out *Review
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.campaign.WithTrx(tx).FindOne(ctx, &Campaign{ID: campaignID})
		if err != nil {
			return err
		}
		if c == nil || !visible(p, c) {
			return errutil.NotFound("campaign not found", nil)
		}
		if c.Status != CampaignStatusActive {
			return errutil.Conflict("campaign is not accepting reviews", nil)
		}
		if c.CompletedReviews >= c.TargetReviews {
			return errutil.Conflict("campaign target reached", ErrTargetReached)
		}

		exist, err := s.review.WithTrx(tx).FindOne(ctx, &Review{CampaignID: campaignID, ReviewerID: p.UserID})
		if err != nil {
			return err
		}
		if exist != nil {
			return errutil.Conflict("you have already reviewed this campaign", nil)
		}

		r := &Review{
			ID:         s.node.Generate().String(),
			CampaignID: campaignID,
			ReviewerID: p.UserID,
			Rating:     req.Rating,
			Content:    content,
			Status:     ReviewStatusPending,
			Earnings:   c.PricePerReview,
		}
		if err := s.review.WithTrx(tx).Create(ctx, r); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errutil.Conflict("you have already reviewed this campaign", err)
			}
			return err
		}

		res := tx.Model(&identity.Reviewer{}).
			Where("id = ?", p.UserID).
			Update("review_count", gorm.Expr("review_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.NotFound("reviewer profile not found", ErrReviewerMissing)
		}

		out = r
		return nil
	})
	if err != nil {
		return nil, errutil.Wrap(err, "failed to submit review")
	}

	logger.FromContext(ctx).Info("review submitted",
		zap.String("review_id", out.ID), zap.String("campaign_id", campaignID), zap.String("reviewer_id", p.UserID))
	return out, nil
}

// ApproveReview marks a pending review approved, counts it against its
// campaign and credits the reviewer, all in one transaction. Approving a
// review twice is a Conflict and never credits twice.
func (s *Service) ApproveReview(ctx context.Context, id string) (*Review, error) {
	admin, err := s.authz.Require(ctx, authz.ActionReviewModerate)
	if err != nil {
		return nil, err
	}

	zapLog := logger.FromContext(ctx).With(zap.String("review_id", id), zap.String("admin_id", admin.UserID))

	var out *Review
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.moderate(ctx, tx, id, ReviewStatusApproved)
		if err != nil {
			return err
		}

		res := tx.Model(&Campaign{}).
			Where("id = ? AND completed_reviews < target_reviews", r.CampaignID).
			Update("completed_reviews", gorm.Expr("completed_reviews + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.Conflict("campaign target reached", ErrTargetReached)
		}

		if err := tx.Model(&Campaign{}).
			Where("id = ? AND status = ? AND completed_reviews >= target_reviews", r.CampaignID, CampaignStatusActive).
			Update("status", CampaignStatusCompleted).Error; err != nil {
			return err
		}

		if _, err := s.wallet.Credit(ctx, tx, wallet.CreditParams{
			UserID:      r.ReviewerID,
			Amount:      r.Earnings,
			Type:        wallet.TypeEarning,
			Reference:   "review:" + r.ID,
			Description: "Earnings for review " + r.ID,
		}); err != nil {
			return err
		}

		res = tx.Model(&identity.Reviewer{}).
			Where("id = ?", r.ReviewerID).
			Update("total_earnings", gorm.Expr("total_earnings + ?", r.Earnings))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.Internal("failed to approve review", fmt.Errorf("reviewer %s: %w", r.ReviewerID, ErrReviewerMissing))
		}

		out = r
		return nil
	})
	if err != nil {
		zapLog.Warn("review approval rolled back", zap.Error(err))
		return nil, errutil.Wrap(err, "failed to approve review")
	}

	zapLog.Info("review approved", zap.String("reviewer_id", out.ReviewerID), zap.Stringer("earnings", out.Earnings))
	return out, nil
}

// RejectReview closes a pending review without touching counters or
// balances.
func (s *Service) RejectReview(ctx context.Context, id string) (*Review, error) {
	admin, err := s.authz.Require(ctx, authz.ActionReviewModerate)
	if err != nil {
		return nil, err
	}

	var out *Review
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.moderate(ctx, tx, id, ReviewStatusRejected)
		out = r
		return err
	})
	if err != nil {
		return nil, errutil.Wrap(err, "failed to reject review")
	}

	logger.FromContext(ctx).Info("review rejected", zap.String("review_id", id), zap.String("admin_id", admin.UserID))
	return out, nil
}

// moderate moves a review out of pending. It is the only place review status
// changes, so each review is decided exactly once.
func (s *Service) moderate(ctx context.Context, tx *gorm.DB, id string, to ReviewStatus) (*Review, error) {
	res := tx.Model(&Review{}).
		Where("id = ? AND status = ?", id, ReviewStatusPending).
		Update("status", to)
	if res.Error != nil {
		return nil, res.Error
	}

	r, err := s.review.WithTrx(tx).FindOne(ctx, &Review{ID: id})
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errutil.NotFound("review not found", nil)
	}
	if res.RowsAffected == 0 {
		return nil, errutil.Conflict("review already "+string(r.Status), ErrReviewProcessed)
	}
	return r, nil
}

// ListReviews scopes reviewers to their own reviews and businesses to reviews
// of their campaigns.
func (s *Service) ListReviews(ctx context.Context, req ListReviewsRequest) (*ReviewPage, error) {
	p, err := s.authz.Require(ctx, authz.ActionReviewList)
	if err != nil {
		return nil, err
	}

	query := &Review{CampaignID: req.CampaignID, ReviewerID: req.ReviewerID, Status: req.Status}
	opts := []option.QueryOption{option.ApplyPagination(req.Pagination)}
	switch p.Role {
	case authz.RoleAdmin:
	case authz.RoleBusiness:
		owned := s.db.WithContext(ctx).Model(&Campaign{}).Select("id").Where("business_id = ?", p.UserID)
		opts = append(opts, func(db *gorm.DB) *gorm.DB {
			return db.Where("campaign_id IN (?)", owned)
		})
	default:
		query.ReviewerID = p.UserID
	}

	rows, err := s.review.Find(ctx, query, opts...)
	if err != nil {
		return nil, errutil.Internal("failed to list reviews", err)
	}

	data, info := pagination.Page(rows, req.Size(), func(r *Review) string { return r.ID })
	return &ReviewPage{Data: data, PageInfo: info}, nil
}
