package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reviewhub/pkg/authz"
	"reviewhub/pkg/config"
	"reviewhub/pkg/db/option"
	"reviewhub/pkg/db/pagination"
	"reviewhub/pkg/errutil"
	"reviewhub/pkg/logger"
	"reviewhub/pkg/money"
	"reviewhub/pkg/repository"
	"reviewhub/pkg/sequence"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicateReference marks a credit whose reference was already applied.
var ErrDuplicateReference = errors.New("duplicate transaction reference")

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	seq   sequence.Generator
	authz *authz.Authorizer

	minWithdrawal money.Amount
	feePercent    decimal.Decimal

	wallet      repository.Repository[Wallet]
	transaction repository.Repository[Transaction]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Authz    *authz.Authorizer
	Sequence sequence.Generator `optional:"true"`
}

func NewService(p ServiceParams) (*Service, error) {
	minWithdrawal, err := money.Parse(valueOr(p.Config.Wallet.MinWithdrawal, "30.00"))
	if err != nil {
		return nil, fmt.Errorf("WALLET.MIN_WITHDRAWAL: %w", err)
	}
	feePercent, err := decimal.NewFromString(valueOr(p.Config.Wallet.WithdrawalFeePercent, "10"))
	if err != nil {
		return nil, fmt.Errorf("WALLET.WITHDRAWAL_FEE_PERCENT: %w", err)
	}
	if feePercent.IsNegative() || feePercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("WALLET.WITHDRAWAL_FEE_PERCENT must be between 0 and 100, got %s", feePercent)
	}

	return &Service{
		db:    p.DB,
		node:  p.Node,
		seq:   p.Sequence,
		authz: p.Authz,

		minWithdrawal: minWithdrawal,
		feePercent:    feePercent,

		wallet:      repository.ProvideStore[Wallet](p.DB),
		transaction: repository.ProvideStore[Transaction](p.DB),
	}, nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// Fee returns the service fee withheld from a withdrawal of amount.
func (s *Service) Fee(amount money.Amount) money.Amount {
	return amount.Percent(s.feePercent)
}

// Credit records a completed transaction and adds its amount to the user's
// balance. It must run inside the caller's transaction so the credit commits
// or rolls back with the rest of the unit. A reference that was already
// applied yields a Conflict wrapping ErrDuplicateReference.
func (s *Service) Credit(ctx context.Context, tx *gorm.DB, p CreditParams) (*Transaction, error) {
	if p.Amount <= 0 {
		return nil, errutil.ValidationFailed("credit amount must be positive", nil)
	}
	if p.UserID == "" || p.Reference == "" {
		return nil, errutil.ValidationFailed("credit requires a user and a reference", nil)
	}

	txnRepo := s.transaction.WithTrx(tx)

	exist, err := txnRepo.FindOne(ctx, &Transaction{Reference: p.Reference})
	if err != nil {
		return nil, err
	}
	if exist != nil {
		return exist, errutil.Conflict("transaction already recorded", ErrDuplicateReference)
	}

	now := time.Now()
	txn := &Transaction{
		ID:          s.node.Generate().String(),
		UserID:      p.UserID,
		Type:        p.Type,
		Status:      StatusCompleted,
		Amount:      p.Amount,
		NetAmount:   p.Amount,
		Reference:   p.Reference,
		Description: p.Description,
		Metadata:    p.Metadata,
		SettledAt:   &now,
	}
	if err := txnRepo.Create(ctx, txn); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("transaction already recorded", ErrDuplicateReference)
		}
		return nil, err
	}

	if err := s.addToBalance(ctx, tx, p.UserID, p.Amount); err != nil {
		return nil, err
	}

	return txn, nil
}

func (s *Service) ensureWallet(ctx context.Context, tx *gorm.DB, userID string) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&Wallet{ID: s.node.Generate().String(), UserID: userID}).Error
}

func (s *Service) addToBalance(ctx context.Context, tx *gorm.DB, userID string, amount money.Amount) error {
	if err := s.ensureWallet(ctx, tx, userID); err != nil {
		return err
	}

	res := tx.WithContext(ctx).Model(&Wallet{}).
		Where("user_id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("wallet of user %s not updated", userID)
	}
	return nil
}

// RequestWithdrawal debits the gross amount immediately and records a pending
// withdrawal carrying the fee and net payout.
func (s *Service) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*Transaction, error) {
	p, err := s.authz.Require(ctx, authz.ActionWithdrawRequest)
	if err != nil {
		return nil, err
	}

	zapLog := logger.FromContext(ctx).With(zap.String("user_id", p.UserID), zap.Stringer("amount", req.Amount))

	if req.Amount < s.minWithdrawal {
		return nil, errutil.ValidationFailed(fmt.Sprintf("minimum withdrawal is %s", s.minWithdrawal), nil,
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: "below minimum"}))
	}

	fee := s.Fee(req.Amount)
	txn := &Transaction{
		ID:        s.node.Generate().String(),
		UserID:    p.UserID,
		Type:      TypeWithdrawal,
		Status:    StatusPending,
		Amount:    req.Amount,
		Fee:       fee,
		NetAmount: req.Amount - fee,
	}
	txn.Code = s.withdrawalCode(ctx, txn.ID)
	txn.Reference = "withdrawal:" + txn.ID
	txn.Description = fmt.Sprintf("Withdrawal %s", txn.Code)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Wallet{}).
			Where("user_id = ? AND balance >= ?", p.UserID, req.Amount).
			Update("balance", gorm.Expr("balance - ?", req.Amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.ValidationFailed("insufficient balance", nil,
				errutil.WithDetails(errutil.Detail{Field: "amount", Message: "exceeds balance"}))
		}

		return s.transaction.WithTrx(tx).Create(ctx, txn)
	})
	if err != nil {
		zapLog.Warn("withdrawal rejected", zap.Error(err))
		return nil, errutil.Wrap(err, "failed to request withdrawal")
	}

	zapLog.Info("withdrawal requested", zap.String("transaction_id", txn.ID), zap.Stringer("fee", fee))
	return txn, nil
}

func (s *Service) withdrawalCode(ctx context.Context, id string) string {
	if s.seq != nil {
		code, err := s.seq.NextWithdrawalCode(ctx)
		if err == nil {
			return code
		}
		logger.FromContext(ctx).Warn("sequence unavailable, falling back to id", zap.Error(err))
	}
	return "WDR-" + id
}

// SettleWithdrawal finalises a pending withdrawal. A failed payout returns the
// gross amount to the wallet in the same transaction.
func (s *Service) SettleWithdrawal(ctx context.Context, id string, req SettleRequest) (*Transaction, error) {
	admin, err := s.authz.Require(ctx, authz.ActionWithdrawSettle)
	if err != nil {
		return nil, err
	}
	if req.Outcome != StatusCompleted && req.Outcome != StatusFailed {
		return nil, errutil.ValidationFailed("outcome must be completed or failed", nil)
	}

	var out *Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		updates := map[string]any{"status": req.Outcome, "settled_at": now}
		if req.Note != "" {
			updates["description"] = req.Note
		}

		res := tx.Model(&Transaction{}).
			Where("id = ? AND type = ? AND status = ?", id, TypeWithdrawal, StatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}

		txn, err := s.transaction.WithTrx(tx).FindOne(ctx, &Transaction{ID: id, Type: TypeWithdrawal})
		if err != nil {
			return err
		}
		if txn == nil {
			return errutil.NotFound("withdrawal not found", nil)
		}
		if res.RowsAffected == 0 {
			return errutil.Conflict("withdrawal already settled", nil)
		}

		if req.Outcome == StatusFailed {
			if err := s.addToBalance(ctx, tx, txn.UserID, txn.Amount); err != nil {
				return err
			}
		}

		out = txn
		return nil
	})
	if err != nil {
		return nil, errutil.Wrap(err, "failed to settle withdrawal")
	}

	logger.FromContext(ctx).Info("withdrawal settled",
		zap.String("transaction_id", id), zap.String("outcome", string(req.Outcome)), zap.String("admin_id", admin.UserID))
	return out, nil
}

// GetWallet returns the caller's wallet. Users who were never credited get a
// zero balance rather than NotFound.
func (s *Service) GetWallet(ctx context.Context) (*Wallet, error) {
	p, err := s.authz.Require(ctx, authz.ActionWalletRead)
	if err != nil {
		return nil, err
	}
	return s.WalletOf(ctx, p.UserID)
}

func (s *Service) WalletOf(ctx context.Context, userID string) (*Wallet, error) {
	w, err := s.wallet.FindOne(ctx, &Wallet{UserID: userID})
	if err != nil {
		return nil, errutil.Internal("failed to load wallet", err)
	}
	if w == nil {
		return &Wallet{UserID: userID}, nil
	}
	return w, nil
}

func (s *Service) ListTransactions(ctx context.Context, req ListTransactionsRequest) (*TransactionPage, error) {
	p, err := s.authz.Require(ctx, authz.ActionWalletRead)
	if err != nil {
		return nil, err
	}

	query := &Transaction{UserID: p.UserID, Type: req.Type, Status: req.Status}
	if p.IsAdmin() {
		query.UserID = req.UserID
	}

	rows, err := s.transaction.Find(ctx, query, option.ApplyPagination(req.Pagination))
	if err != nil {
		return nil, errutil.Internal("failed to list transactions", err)
	}

	data, info := pagination.Page(rows, req.Size(), func(t *Transaction) string { return t.ID })
	return &TransactionPage{Data: data, PageInfo: info}, nil
}
