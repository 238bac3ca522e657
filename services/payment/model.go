package payment

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"reviewhub/pkg/db/pagination"
	"reviewhub/pkg/money"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	EventChargeCompleted = "charge.completed"
	ChargeSuccessful     = "successful"
)

type UnmatchedStatus string

const (
	UnmatchedOpen     UnmatchedStatus = "open"
	UnmatchedResolved UnmatchedStatus = "resolved"
)

// UnmatchedPayment keeps a successful charge whose payer email matched no
// account, so it can be credited once the account exists.
type UnmatchedPayment struct {
	ID             string          `gorm:"column:id;primaryKey" json:"id"`
	Reference      string          `gorm:"column:reference;size:191;uniqueIndex" json:"reference"`
	Email          string          `gorm:"column:email;size:255;index" json:"email"`
	Amount         money.Amount    `gorm:"column:amount;not null" json:"amount"`
	Currency       string          `gorm:"column:currency;size:8" json:"currency"`
	Event          string          `gorm:"column:event;size:64" json:"event"`
	Payload        datatypes.JSON  `gorm:"column:payload" json:"payload,omitempty"`
	Status         UnmatchedStatus `gorm:"column:status;size:16;index" json:"status"`
	Attempts       int             `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError      string          `gorm:"column:last_error" json:"last_error,omitempty"`
	ResolvedUserID string          `gorm:"column:resolved_user_id;size:64" json:"resolved_user_id,omitempty"`
	ResolvedAt     *time.Time      `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	CreatedAt      time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

// ExternalID accepts ids sent either as JSON numbers or strings.
type ExternalID string

func (id *ExternalID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ExternalID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ExternalID(n.String())
	return nil
}

type WebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID       ExternalID      `json:"id"`
		TxRef    string          `json:"tx_ref"`
		Status   string          `json:"status"`
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
		Customer struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

// Reference is the gateway's id for the charge, falling back to the merchant
// tx_ref and then to a fingerprint of the charge itself.
func (e WebhookEvent) Reference() string {
	if e.Data.ID != "" {
		return string(e.Data.ID)
	}
	if e.Data.TxRef != "" {
		return e.Data.TxRef
	}
	return e.Fingerprint()
}

// Fingerprint hashes the fields that identify a charge when the gateway sends
// no id, so a redelivery of the same body maps to the same reference.
func (e WebhookEvent) Fingerprint() string {
	canonical := strings.Join([]string{
		e.Event,
		e.Data.Status,
		strings.ToLower(strings.TrimSpace(e.Data.Customer.Email)),
		money.FromDecimal(e.Data.Amount).String(),
		strings.ToUpper(e.Data.Currency),
	}, "|")
	sum := sha256.Sum256([]byte(canonical))
	return "sha256:" + hex.EncodeToString(sum[:])
}

type WebhookOutcome string

const (
	OutcomeProcessed WebhookOutcome = "processed"
	OutcomeDuplicate WebhookOutcome = "duplicate"
	OutcomeIgnored   WebhookOutcome = "ignored"
)

type WebhookResult struct {
	Status        WebhookOutcome `json:"status"`
	Reference     string         `json:"reference,omitempty"`
	TransactionID string         `json:"transaction_id,omitempty"`
}

type ReconcilePayload struct {
	UnmatchedID string `json:"unmatched_id"`
}

type ListUnmatchedRequest struct {
	Status UnmatchedStatus `form:"status"`
	pagination.Pagination
}

type UnmatchedPage struct {
	Data     []*UnmatchedPayment  `json:"data"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}
