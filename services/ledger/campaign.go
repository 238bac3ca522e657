package ledger

import (
	"context"
	"fmt"
	"strings"

	"reviewhub/pkg/authz"
	"reviewhub/pkg/db/option"
	"reviewhub/pkg/db/pagination"
	"reviewhub/pkg/errutil"
	"reviewhub/pkg/logger"
	"reviewhub/services/identity"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) CreateCampaign(ctx context.Context, req CreateCampaignRequest) (*Campaign, error) {
	p, err := s.authz.Require(ctx, authz.ActionCampaignCreate)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	switch {
	case title == "":
		return nil, errutil.ValidationFailed("title is required", nil)
	case req.PricePerReview <= 0:
		return nil, errutil.ValidationFailed("price_per_review must be positive", nil)
	case req.TargetReviews < 1:
		return nil, errutil.ValidationFailed("target_reviews must be at least 1", nil)
	}

	id := s.node.Generate().String()
	c := &Campaign{
		ID:             id,
		BusinessID:     p.UserID,
		Code:           s.campaignCode(ctx, id),
		Slug:           slug.Make(title),
		Title:          title,
		Description:    req.Description,
		ProductName:    strings.TrimSpace(req.ProductName),
		PricePerReview: req.PricePerReview,
		Status:         CampaignStatusDraft,
		TargetReviews:  req.TargetReviews,
	}
	if req.Submit {
		c.Status = CampaignStatusPending
	}

	if err := s.campaign.Create(ctx, c); err != nil {
		logger.FromContext(ctx).Error("failed to create campaign", zap.Error(err))
		return nil, errutil.Internal("failed to create campaign", err)
	}

	return c, nil
}

func (s *Service) campaignCode(ctx context.Context, id string) string {
	if s.seq != nil {
		code, err := s.seq.NextCampaignCode(ctx)
		if err == nil {
			return code
		}
		logger.FromContext(ctx).Warn("sequence unavailable, falling back to id", zap.Error(err))
	}
	return "CMP-" + id
}

// SubmitCampaign sends the caller's draft to moderation.
func (s *Service) SubmitCampaign(ctx context.Context, id string) (*Campaign, error) {
	p, err := s.authz.Require(ctx, authz.ActionCampaignCreate)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, id, CampaignStatusDraft, CampaignStatusPending, p.UserID)
}

func (s *Service) ApproveCampaign(ctx context.Context, id string) (*Campaign, error) {
	if _, err := s.authz.Require(ctx, authz.ActionCampaignModerate); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, CampaignStatusPending, CampaignStatusActive, "")
}

func (s *Service) RejectCampaign(ctx context.Context, id string) (*Campaign, error) {
	if _, err := s.authz.Require(ctx, authz.ActionCampaignModerate); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, CampaignStatusPending, CampaignStatusRejected, "")
}

// CompleteCampaign closes an active campaign early. Pending reviews can still
// be moderated afterwards.
func (s *Service) CompleteCampaign(ctx context.Context, id string) (*Campaign, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}

	owner := ""
	if p.IsAdmin() {
		_, err = s.authz.Require(ctx, authz.ActionCampaignModerate)
	} else {
		_, err = s.authz.Require(ctx, authz.ActionCampaignCreate)
		owner = p.UserID
	}
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, id, CampaignStatusActive, CampaignStatusCompleted, owner)
}

// transition moves a campaign from one status to another with a guarded
// update. A non-empty owner restricts the update to that business's
// campaigns; other campaigns look like they do not exist.
func (s *Service) transition(ctx context.Context, id string, from, to CampaignStatus, owner string) (*Campaign, error) {
	var out *Campaign
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&Campaign{}).Where("id = ? AND status = ?", id, from)
		if owner != "" {
			q = q.Where("business_id = ?", owner)
		}
		res := q.Update("status", to)
		if res.Error != nil {
			return res.Error
		}

		c, err := s.campaign.WithTrx(tx).FindOne(ctx, &Campaign{ID: id})
		if err != nil {
			return err
		}
		if c == nil || (owner != "" && c.BusinessID != owner) {
			return errutil.NotFound("campaign not found", nil)
		}
		if res.RowsAffected == 0 {
			return errutil.Conflict(fmt.Sprintf("campaign is %s, expected %s", c.Status, from), nil)
		}

		out = c
		return nil
	})
	if err != nil {
		return nil, errutil.Wrap(err, "failed to update campaign")
	}

	logger.FromContext(ctx).Info("campaign status changed",
		zap.String("campaign_id", id), zap.String("from", string(from)), zap.String("to", string(to)))
	return out, nil
}

// visible reports whether p may read c. Non-owners only see campaigns that
// went live.
func visible(p authz.Principal, c *Campaign) bool {
	if p.IsAdmin() || c.BusinessID == p.UserID {
		return true
	}
	return c.Status == CampaignStatusActive || c.Status == CampaignStatusCompleted
}

func (s *Service) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}

	c, err := s.campaign.FindOne(ctx, &Campaign{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to load campaign", err)
	}
	if c == nil || !visible(p, c) {
		return nil, errutil.NotFound("campaign not found", nil)
	}
	return c, nil
}

// ListCampaigns returns every campaign to admins, their own to businesses and
// live campaigns to reviewers.
func (s *Service) ListCampaigns(ctx context.Context, req ListCampaignsRequest) (*CampaignPage, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}

	query := &Campaign{Status: req.Status, BusinessID: req.BusinessID}
	opts := []option.QueryOption{option.ApplyPagination(req.Pagination)}
	switch p.Role {
	case authz.RoleAdmin:
	case authz.RoleBusiness:
		query.BusinessID = p.UserID
	default:
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "status",
			Operator: option.IN,
			Value:    []CampaignStatus{CampaignStatusActive, CampaignStatusCompleted},
		}))
	}

	rows, err := s.campaign.Find(ctx, query, opts...)
	if err != nil {
		return nil, errutil.Internal("failed to list campaigns", err)
	}

	data, info := pagination.Page(rows, req.Size(), func(c *Campaign) string { return c.ID })
	return &CampaignPage{Data: data, PageInfo: info}, nil
}

// DeleteCampaign removes a campaign that never paid out. Campaigns with
// approved reviews are kept so earnings stay traceable. Pending and rejected
// reviews go with the campaign and their reviewers' counts are decremented.
func (s *Service) DeleteCampaign(ctx context.Context, id string) error {
	p, err := s.authz.Require(ctx, authz.ActionCampaignDelete)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.campaign.WithTrx(tx).FindOne(ctx, &Campaign{ID: id}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if c == nil || (!p.IsAdmin() && c.BusinessID != p.UserID) {
			return errutil.NotFound("campaign not found", nil)
		}

		approved, err := s.review.WithTrx(tx).Count(ctx, &Review{CampaignID: id, Status: ReviewStatusApproved})
		if err != nil {
			return err
		}
		if approved > 0 || c.CompletedReviews > 0 {
			return errutil.Conflict("campaign has approved reviews and cannot be deleted", nil)
		}

		reviews, err := s.review.WithTrx(tx).Find(ctx, &Review{CampaignID: id})
		if err != nil {
			return err
		}
		perReviewer := map[string]int64{}
		for _, r := range reviews {
			perReviewer[r.ReviewerID]++
		}
		for reviewerID, n := range perReviewer {
			if err := tx.Model(&identity.Reviewer{}).
				Where("id = ?", reviewerID).
				Update("review_count", gorm.Expr("review_count - ?", n)).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("campaign_id = ?", id).Delete(&Review{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&Campaign{}).Error
	})
	if err != nil {
		return errutil.Wrap(err, "failed to delete campaign")
	}

	logger.FromContext(ctx).Info("campaign deleted", zap.String("campaign_id", id), zap.String("by", p.UserID))
	return nil
}
