package payment

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"reviewhub/pkg/authz"
	"reviewhub/pkg/config"
	"reviewhub/pkg/db/pagination"
	"reviewhub/pkg/db/option"
	"reviewhub/pkg/errutil"
	"reviewhub/pkg/logger"
	"reviewhub/pkg/money"
	"reviewhub/pkg/repository"
	"reviewhub/pkg/task"
	"reviewhub/pkg/taskname"
	"reviewhub/services/identity"
	"reviewhub/services/wallet"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrPayerUnknown is returned by Reconcile while the payer email still matches
// no account; the task is retried.
var ErrPayerUnknown = errors.New("payer not found")

// PayerResolver maps a payer email to an account. A nil user means unknown.
type PayerResolver interface {
	FindUserByEmail(ctx context.Context, email string) (*identity.User, error)
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	authz    *authz.Authorizer
	wallet   *wallet.Service
	payers   PayerResolver
	enqueuer task.Enqueuer

	secret   []byte
	maxRetry int

	unmatched repository.Repository[UnmatchedPayment]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Authz    *authz.Authorizer
	Wallet   *wallet.Service
	Identity *identity.Service
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	if p.Config.Payment.WebhookSecret == "" {
		zap.L().Warn("PAYMENT.WEBHOOK_SECRET is empty, every webhook delivery will be rejected")
	}

	maxRetry := p.Config.Payment.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 10
	}

	return &Service{
		db:       p.DB,
		node:     p.Node,
		authz:    p.Authz,
		wallet:   p.Wallet,
		payers:   p.Identity,
		enqueuer: p.Enqueuer,

		secret:   []byte(p.Config.Payment.WebhookSecret),
		maxRetry: maxRetry,

		unmatched: repository.ProvideStore[UnmatchedPayment](p.DB),
	}
}

// VerifySignature compares the shared-secret header in constant time. An
// unset secret rejects everything.
func (s *Service) VerifySignature(signature string) error {
	if len(s.secret) == 0 || signature == "" ||
		subtle.ConstantTimeCompare([]byte(signature), s.secret) != 1 {
		return errutil.Unauthorized("invalid webhook signature", nil)
	}
	return nil
}

// HandleWebhook applies one gateway delivery. Deliveries are at-least-once;
// the charge reference makes repeats a no-op reported as duplicate.
func (s *Service) HandleWebhook(ctx context.Context, signature string, body []byte) (*WebhookResult, error) {
	zapLog := logger.FromContext(ctx)

	if err := s.VerifySignature(signature); err != nil {
		zapLog.Warn("webhook rejected: bad signature")
		return nil, err
	}

	var evt WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, errutil.BadRequest("malformed webhook payload", err)
	}

	ref := evt.Reference()
	zapLog = zapLog.With(zap.String("event", evt.Event), zap.String("reference", ref))

	if evt.Event != EventChargeCompleted || evt.Data.Status != ChargeSuccessful {
		zapLog.Info("webhook ignored", zap.String("status", evt.Data.Status))
		return &WebhookResult{Status: OutcomeIgnored, Reference: ref}, nil
	}

	email := strings.ToLower(strings.TrimSpace(evt.Data.Customer.Email))
	amount := money.FromDecimal(evt.Data.Amount)
	switch {
	case email == "":
		return nil, errutil.ValidationFailed("customer email is required", nil)
	case amount <= 0:
		return nil, errutil.ValidationFailed("amount must be positive", nil)
	}

	user, err := s.payers.FindUserByEmail(ctx, email)
	if err != nil {
		zapLog.Error("failed to resolve payer", zap.Error(err))
		return nil, errutil.Internal("failed to process payment", err)
	}
	if user == nil {
		if err := s.deadLetter(ctx, evt, ref, email, amount, body); err != nil {
			zapLog.Error("failed to hold unmatched payment", zap.Error(err))
			return nil, errutil.Internal("failed to process payment", err)
		}
		return nil, errutil.NotFound("payer not found", ErrPayerUnknown)
	}

	txn, err := s.credit(ctx, user.ID, ref, amount, evt)
	if errors.Is(err, wallet.ErrDuplicateReference) {
		zapLog.Info("webhook duplicate, already credited", zap.String("user_id", user.ID))
		return &WebhookResult{Status: OutcomeDuplicate, Reference: ref}, nil
	}
	if err != nil {
		zapLog.Error("failed to credit payment", zap.String("user_id", user.ID), zap.Error(err))
		return nil, errutil.Internal("failed to process payment", err)
	}

	zapLog.Info("payment credited", zap.String("user_id", user.ID), zap.Stringer("amount", amount))
	return &WebhookResult{Status: OutcomeProcessed, Reference: ref, TransactionID: txn.ID}, nil
}

func paymentReference(ref string) string {
	return "payment:" + ref
}

func (s *Service) credit(ctx context.Context, userID, ref string, amount money.Amount, evt WebhookEvent) (*wallet.Transaction, error) {
	meta, _ := json.Marshal(map[string]string{
		"event":    evt.Event,
		"currency": evt.Data.Currency,
		"tx_ref":   evt.Data.TxRef,
		"email":    evt.Data.Customer.Email,
	})

	var txn *wallet.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = s.wallet.Credit(ctx, tx, wallet.CreditParams{
			UserID:      userID,
			Amount:      amount,
			Type:        wallet.TypeDeposit,
			Reference:   paymentReference(ref),
			Description: "Wallet top-up " + ref,
			Metadata:    datatypes.JSON(meta),
		})
		return err
	})
	return txn, err
}

// deadLetter stores the unmatched charge (once per reference) and schedules
// a reconcile attempt. The row is the only durable record of the charge, so a
// store failure is returned; a failed enqueue is only logged since the sweep
// picks the row up later.
func (s *Service) deadLetter(ctx context.Context, evt WebhookEvent, ref, email string, amount money.Amount, body []byte) error {
	zapLog := logger.FromContext(ctx).With(zap.String("reference", ref), zap.String("email", email))

	row := &UnmatchedPayment{
		ID:        s.node.Generate().String(),
		Reference: ref,
		Email:     email,
		Amount:    amount,
		Currency:  evt.Data.Currency,
		Event:     evt.Event,
		Payload:   datatypes.JSON(body),
		Status:    UnmatchedOpen,
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "reference"}}, DoNothing: true}).
		Create(row).Error; err != nil {
		return fmt.Errorf("store unmatched payment: %w", err)
	}

	stored, err := s.unmatched.FindOne(ctx, &UnmatchedPayment{Reference: ref})
	if err != nil {
		return fmt.Errorf("load unmatched payment: %w", err)
	}
	if stored == nil {
		return fmt.Errorf("unmatched payment %s vanished after insert", ref)
	}
	zapLog.Warn("payment held for reconciliation", zap.String("unmatched_id", stored.ID))

	if stored.Status != UnmatchedOpen {
		return nil
	}
	if err := s.enqueueReconcile(ctx, stored.ID, asynq.TaskID("reconcile:"+stored.ID)); err != nil &&
		!errors.Is(err, asynq.ErrTaskIDConflict) {
		zapLog.Error("failed to enqueue reconcile task", zap.Error(err))
	}
	return nil
}

func (s *Service) enqueueReconcile(ctx context.Context, unmatchedID string, opts ...asynq.Option) error {
	if s.enqueuer == nil {
		return nil
	}

	payload, err := json.Marshal(ReconcilePayload{UnmatchedID: unmatchedID})
	if err != nil {
		return err
	}

	opts = append([]asynq.Option{
		asynq.Queue(task.QueueDefault),
		asynq.MaxRetry(s.maxRetry),
		asynq.Timeout(30 * time.Second),
	}, opts...)
	_, err = s.enqueuer.Enqueue(ctx, asynq.NewTask(taskname.PaymentReconcile, payload), opts...)
	return err
}

// Reconcile credits an open unmatched payment once its email resolves to an
// account. The credit uses the same reference as the webhook path, so a
// payment is never credited twice whichever path gets there first.
func (s *Service) Reconcile(ctx context.Context, unmatchedID string) (*UnmatchedPayment, error) {
	row, err := s.unmatched.FindOne(ctx, &UnmatchedPayment{ID: unmatchedID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errutil.NotFound("unmatched payment not found", nil)
	}
	if row.Status == UnmatchedResolved {
		return row, nil
	}

	zapLog := logger.FromContext(ctx).With(zap.String("unmatched_id", row.ID), zap.String("reference", row.Reference))

	user, err := s.payers.FindUserByEmail(ctx, row.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		if err := s.db.WithContext(ctx).Model(&UnmatchedPayment{}).
			Where("id = ? AND status = ?", row.ID, UnmatchedOpen).
			Updates(map[string]any{
				"attempts":   gorm.Expr("attempts + 1"),
				"last_error": ErrPayerUnknown.Error(),
			}).Error; err != nil {
			return nil, err
		}
		zapLog.Info("payer still unknown")
		return nil, ErrPayerUnknown
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&UnmatchedPayment{}).
			Where("id = ? AND status = ?", row.ID, UnmatchedOpen).
			Updates(map[string]any{
				"status":           UnmatchedResolved,
				"resolved_user_id": user.ID,
				"resolved_at":      now,
				"attempts":         gorm.Expr("attempts + 1"),
				"last_error":       "",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		meta, _ := json.Marshal(map[string]string{"unmatched_id": row.ID, "email": row.Email, "currency": row.Currency})
		_, err := s.wallet.Credit(ctx, tx, wallet.CreditParams{
			UserID:      user.ID,
			Amount:      row.Amount,
			Type:        wallet.TypeDeposit,
			Reference:   paymentReference(row.Reference),
			Description: "Reconciled top-up " + row.Reference,
			Metadata:    datatypes.JSON(meta),
		})
		if errors.Is(err, wallet.ErrDuplicateReference) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	zapLog.Info("unmatched payment reconciled", zap.String("user_id", user.ID), zap.Stringer("amount", row.Amount))
	return s.unmatched.FindOne(ctx, &UnmatchedPayment{ID: row.ID})
}

func (s *Service) ListUnmatched(ctx context.Context, req ListUnmatchedRequest) (*UnmatchedPage, error) {
	if _, err := s.authz.Require(ctx, authz.ActionPaymentReconcile); err != nil {
		return nil, err
	}

	rows, err := s.unmatched.Find(ctx, &UnmatchedPayment{Status: req.Status}, option.ApplyPagination(req.Pagination))
	if err != nil {
		return nil, errutil.Internal("failed to list unmatched payments", err)
	}

	data, info := pagination.Page(rows, req.Size(), func(u *UnmatchedPayment) string { return u.ID })
	return &UnmatchedPage{Data: data, PageInfo: info}, nil
}

// RetryUnmatched queues another reconcile attempt for an open payment, e.g.
// after the payer signed up or an admin corrected the email.
func (s *Service) RetryUnmatched(ctx context.Context, id string) (*UnmatchedPayment, error) {
	admin, err := s.authz.Require(ctx, authz.ActionPaymentReconcile)
	if err != nil {
		return nil, err
	}

	row, err := s.unmatched.FindOne(ctx, &UnmatchedPayment{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to load unmatched payment", err)
	}
	if row == nil {
		return nil, errutil.NotFound("unmatched payment not found", nil)
	}
	if row.Status != UnmatchedOpen {
		return nil, errutil.Conflict("payment already reconciled", nil)
	}

	if err := s.enqueueReconcile(ctx, row.ID); err != nil {
		return nil, errutil.Internal("failed to schedule reconciliation", err)
	}

	logger.FromContext(ctx).Info("reconcile retry queued", zap.String("unmatched_id", id), zap.String("admin_id", admin.UserID))
	return row, nil
}

func reconcilePayload(t *asynq.Task) (ReconcilePayload, error) {
	var p ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil || p.UnmatchedID == "" {
		return p, fmt.Errorf("invalid %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return p, nil
}
