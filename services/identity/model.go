package identity

import (
	"time"

	"reviewhub/pkg/authz"
	"reviewhub/pkg/money"

	"gorm.io/datatypes"
)

type User struct {
	ID           string     `gorm:"column:id;primaryKey" json:"id"`
	Email        string     `gorm:"column:email;size:255;uniqueIndex" json:"email"`
	PasswordHash string     `gorm:"column:password_hash" json:"-"`
	Role         authz.Role `gorm:"column:role;size:16;index" json:"role"`
	IsVerified   bool       `gorm:"column:is_verified" json:"is_verified"`
	CreatedAt    time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

// Business is the profile of a business account, keyed by the user id.
type Business struct {
	ID                    string                      `gorm:"column:id;primaryKey" json:"id"`
	CompanyName           string                      `gorm:"column:company_name" json:"company_name"`
	Description           string                      `gorm:"column:description" json:"description"`
	Website               string                      `gorm:"column:website" json:"website"`
	VerificationDocuments datatypes.JSONSlice[string] `gorm:"column:verification_documents" json:"verification_documents"`
	CreatedAt             time.Time                   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt             time.Time                   `gorm:"column:updated_at" json:"updated_at"`
}

// Reviewer is the profile of a reviewer account, keyed by the user id.
// ReviewCount and TotalEarnings are only ever changed with relative updates.
type Reviewer struct {
	ID            string       `gorm:"column:id;primaryKey" json:"id"`
	Bio           string       `gorm:"column:bio" json:"bio"`
	ReviewCount   int64        `gorm:"column:review_count;not null;default:0" json:"review_count"`
	TotalEarnings money.Amount `gorm:"column:total_earnings;not null;default:0" json:"total_earnings"`
	CreatedAt     time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

type Profile struct {
	User     *User     `json:"user"`
	Business *Business `json:"business,omitempty"`
	Reviewer *Reviewer `json:"reviewer,omitempty"`
}

type SignUpRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	Role        string `json:"role" binding:"required,oneof=business reviewer"`
	CompanyName string `json:"company_name"`
	Description string `json:"description"`
	Website     string `json:"website"`
	Bio         string `json:"bio"`
}

type SignInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type SignInResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

type VerifyRequest struct {
	Verified *bool `json:"verified" binding:"required"`
}
