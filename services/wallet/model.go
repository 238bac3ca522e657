package wallet

import (
	"time"

	"reviewhub/pkg/db/pagination"
	"reviewhub/pkg/money"

	"gorm.io/datatypes"
)

type TransactionType string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeEarning    TransactionType = "earning"
	TypePayment    TransactionType = "payment"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// Wallet holds the balance of one user. Balance only changes through relative
// updates guarded in SQL.
type Wallet struct {
	ID        string       `gorm:"column:id;primaryKey" json:"id"`
	UserID    string       `gorm:"column:user_id;size:64;uniqueIndex" json:"user_id"`
	Balance   money.Amount `gorm:"column:balance;not null;default:0" json:"balance"`
	CreatedAt time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

// Transaction is the audit row written with every balance change. Reference
// is unique and doubles as the idempotency key.
type Transaction struct {
	ID          string            `gorm:"column:id;primaryKey" json:"id"`
	UserID      string            `gorm:"column:user_id;size:64;index" json:"user_id"`
	Code        string            `gorm:"column:code;size:32;index" json:"code,omitempty"`
	Type        TransactionType   `gorm:"column:type;size:16;index" json:"type"`
	Status      TransactionStatus `gorm:"column:status;size:16;index" json:"status"`
	Amount      money.Amount      `gorm:"column:amount;not null" json:"amount"`
	Fee         money.Amount      `gorm:"column:fee;not null;default:0" json:"fee"`
	NetAmount   money.Amount      `gorm:"column:net_amount;not null" json:"net_amount"`
	Reference   string            `gorm:"column:reference;size:191;uniqueIndex" json:"reference"`
	Description string            `gorm:"column:description" json:"description"`
	Metadata    datatypes.JSON    `gorm:"column:metadata" json:"metadata,omitempty"`
	SettledAt   *time.Time        `gorm:"column:settled_at" json:"settled_at,omitempty"`
	CreatedAt   time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"column:updated_at" json:"updated_at"`
}

type CreditParams struct {
	UserID      string
	Amount      money.Amount
	Type        TransactionType
	Reference   string
	Description string
	Metadata    datatypes.JSON
}

type WithdrawalRequest struct {
	Amount money.Amount `json:"amount" binding:"required"`
}

type SettleRequest struct {
	Outcome TransactionStatus `json:"outcome" binding:"required,oneof=completed failed"`
	Note    string            `json:"note"`
}

type ListTransactionsRequest struct {
	UserID string            `form:"user_id"`
	Type   TransactionType   `form:"type"`
	Status TransactionStatus `form:"status"`
	pagination.Pagination
}

type TransactionPage struct {
	Data     []*Transaction       `json:"data"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}
