package ledger

import (
	"time"

	"reviewhub/pkg/db/pagination"
	"reviewhub/pkg/money"
)

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusPending   CampaignStatus = "pending"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusRejected  CampaignStatus = "rejected"
)

type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// Campaign asks for TargetReviews reviews at PricePerReview each.
// CompletedReviews equals the number of approved reviews and never exceeds
// TargetReviews.
type Campaign struct {
	ID               string         `gorm:"column:id;primaryKey" json:"id"`
	BusinessID       string         `gorm:"column:business_id;size:64;index" json:"business_id"`
	Code             string         `gorm:"column:code;size:32;index" json:"code"`
	Slug             string         `gorm:"column:slug;size:191;index" json:"slug"`
	Title            string         `gorm:"column:title" json:"title"`
	Description      string         `gorm:"column:description" json:"description"`
	ProductName      string         `gorm:"column:product_name" json:"product_name"`
	PricePerReview   money.Amount   `gorm:"column:price_per_review;not null" json:"price_per_review"`
	Status           CampaignStatus `gorm:"column:status;size:16;index" json:"status"`
	TargetReviews    int64          `gorm:"column:target_reviews;not null" json:"target_reviews"`
	CompletedReviews int64          `gorm:"column:completed_reviews;not null;default:0" json:"completed_reviews"`
	CreatedAt        time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

// Review is one reviewer's rating of a campaign's product. Earnings is copied
// from the campaign when the review is submitted.
type Review struct {
	ID         string       `gorm:"column:id;primaryKey" json:"id"`
	CampaignID string       `gorm:"column:campaign_id;size:64;uniqueIndex:idx_reviews_campaign_reviewer" json:"campaign_id"`
	ReviewerID string       `gorm:"column:reviewer_id;size:64;uniqueIndex:idx_reviews_campaign_reviewer;index" json:"reviewer_id"`
	Rating     int          `gorm:"column:rating;not null" json:"rating"`
	Content    string       `gorm:"column:content" json:"content"`
	Status     ReviewStatus `gorm:"column:status;size:16;index" json:"status"`
	Earnings   money.Amount `gorm:"column:earnings;not null" json:"earnings"`
	CreatedAt  time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

type CreateCampaignRequest struct {
	Title          string       `json:"title" binding:"required"`
	Description    string       `json:"description"`
	ProductName    string       `json:"product_name" binding:"required"`
	PricePerReview money.Amount `json:"price_per_review" binding:"required"`
	TargetReviews  int64        `json:"target_reviews" binding:"required,gte=1"`
	Submit         bool         `json:"submit"`
}

type ListCampaignsRequest struct {
	Status     CampaignStatus `form:"status"`
	BusinessID string         `form:"business_id"`
	pagination.Pagination
}

type CampaignPage struct {
	Data     []*Campaign          `json:"data"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

type SubmitReviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Content string `json:"content" binding:"required"`
}

type ListReviewsRequest struct {
	CampaignID string       `form:"campaign_id"`
	ReviewerID string       `form:"reviewer_id"`
	Status     ReviewStatus `form:"status"`
	pagination.Pagination
}

type ReviewPage struct {
	Data     []*Review            `json:"data"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

// ReviewActionRequest is the body of the moderation endpoints.
type ReviewActionRequest struct {
	ReviewID string `json:"reviewId" binding:"required"`
}
