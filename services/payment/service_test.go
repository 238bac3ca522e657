package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"reviewhub/pkg/authz"
	"reviewhub/pkg/config"
	"reviewhub/pkg/errutil"
	"reviewhub/pkg/money"
	"reviewhub/pkg/task"
	"reviewhub/pkg/taskname"
	"reviewhub/services/identity"
	"reviewhub/services/testutil"
	"reviewhub/services/wallet"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const secret = "s3cret-hash"

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	svc    *Service
	wallet *wallet.Service
	db     *gorm.DB
	enq    *task.MockEnqueuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&identity.User{}, &wallet.Wallet{}, &wallet.Transaction{}, &UnmatchedPayment{})
	a, err := authz.New()
	require.NoError(t, err)
	node := testutil.NewNode(t)

	cfg := &config.Config{}
	cfg.Payment.WebhookSecret = secret
	cfg.Payment.SignatureHeader = "verif-hash"

	ws, err := wallet.NewService(wallet.ServiceParams{DB: db, Node: node, Config: cfg, Authz: a})
	require.NoError(t, err)
	ids := identity.NewService(identity.ServiceParams{DB: db, Node: node, Authz: a})

	enq := task.NewMockEnqueuer(gomock.NewController(t))
	svc := NewService(ServiceParams{
		DB: db, Node: node, Config: cfg, Authz: a, Wallet: ws, Identity: ids, Enqueuer: enq,
	})
	return &fixture{svc: svc, wallet: ws, db: db, enq: enq}
}

func (f *fixture) user(t *testing.T, id, email string) {
	t.Helper()
	require.NoError(t, f.db.Create(&identity.User{ID: id, Email: email, Role: authz.RoleReviewer}).Error)
}

func (f *fixture) deposit(t *testing.T, userID, amount, ref string) {
	t.Helper()
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.wallet.Credit(context.Background(), tx, wallet.CreditParams{
			UserID: userID, Amount: money.MustParse(amount), Type: wallet.TypeDeposit, Reference: ref,
		})
		return err
	}))
}

func (f *fixture) balance(t *testing.T, userID string) money.Amount {
	t.Helper()
	w, err := f.wallet.WalletOf(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance
}

func (f *fixture) countTransactions(t *testing.T, userID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&wallet.Transaction{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}

func charge(event, status string, id any, email string, amount float64) []byte {
	b, _ := json.Marshal(map[string]any{
		"event": event,
		"data": map[string]any{
			"id":       id,
			"tx_ref":   "tx-ref-1",
			"status":   status,
			"amount":   amount,
			"currency": "USD",
			"customer": map[string]any{"email": email},
		},
	})
	return b
}

func admin() context.Context {
	return authz.WithPrincipal(context.Background(), authz.Principal{UserID: "admin", Role: authz.RoleAdmin})
}

func TestWebhookCreditsExistingBalance(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1", "u@x.com")
	f.deposit(t, "u1", "50.00", "seed:1")

	res, err := f.svc.HandleWebhook(context.Background(), secret,
		charge(EventChargeCompleted, ChargeSuccessful, 4242, "U@x.com", 100))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, res.Status)
	require.Equal(t, "4242", res.Reference)
	require.Equal(t, money.MustParse("150.00"), f.balance(t, "u1"))

	var txn wallet.Transaction
	require.NoError(t, f.db.First(&txn, "reference = ?", "payment:4242").Error)
	require.Equal(t, wallet.TypeDeposit, txn.Type)
	require.Equal(t, money.MustParse("100.00"), txn.Amount)
	require.Equal(t, res.TransactionID, txn.ID)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1", "u@x.com")
	f.deposit(t, "u1", "50.00", "seed:1")
	body := charge(EventChargeCompleted, ChargeSuccessful, 1, "u@x.com", 100)

	for _, sig := range []string{"", "wrong", secret + "x"} {
		_, err := f.svc.HandleWebhook(context.Background(), sig, body)
		require.Equal(t, errutil.StatusUnauthorized, errutil.Code(err), sig)
	}
	require.Equal(t, money.MustParse("50.00"), f.balance(t, "u1"))

	f.svc.secret = nil
	_, err := f.svc.HandleWebhook(context.Background(), "", body)
	require.Equal(t, errutil.StatusUnauthorized, errutil.Code(err))
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1", "u@x.com")

	res, err := f.svc.HandleWebhook(context.Background(), secret,
		charge("transfer.completed", ChargeSuccessful, 1, "u@x.com", 100))
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, res.Status)

	res, err = f.svc.HandleWebhook(context.Background(), secret,
		charge(EventChargeCompleted, "failed", 2, "u@x.com", 100))
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, res.Status)

	require.Zero(t, f.countTransactions(t, "u1"))
}

func TestWebhookIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1", "u@x.com")
	body := charge(EventChargeCompleted, ChargeSuccessful, "flw-77", "u@x.com", 25.5)

	res, err := f.svc.HandleWebhook(context.Background(), secret, body)
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, res.Status)

	res, err = f.svc.HandleWebhook(context.Background(), secret, body)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, res.Status)

	require.Equal(t, money.MustParse("25.50"), f.balance(t, "u1"))
	require.Equal(t, int64(1), f.countTransactions(t, "u1"))
}

func TestWebhookValidation(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1", "u@x.com")

	_, err := f.svc.HandleWebhook(context.Background(), secret, []byte("{not json"))
	require.Equal(t, errutil.StatusBadRequest, errutil.Code(err))

	_, err = f.svc.HandleWebhook(context.Background(), secret, charge(EventChargeCompleted, ChargeSuccessful, 9, "u@x.com", 0))
	require.Equal(t, errutil.StatusValidationFailed, errutil.Code(err))

	_, err = f.svc.HandleWebhook(context.Background(), secret, charge(EventChargeCompleted, ChargeSuccessful, 9, "", 10))
	require.Equal(t, errutil.StatusValidationFailed, errutil.Code(err))
}

func TestWebhookFallsBackToTxRef(t *testing.T) {
	var evt WebhookEvent
	require.NoError(t, json.Unmarshal([]byte(`{"data":{"id":null,"tx_ref":"order-9"}}`), &evt))
	require.Equal(t, "order-9", evt.Reference())

	require.NoError(t, json.Unmarshal([]byte(`{"data":{"id":123456789012,"tx_ref":"order-9"}}`), &evt))
	require.Equal(t, "123456789012", evt.Reference())
}

func TestFingerprintIdentifiesCharge(t *testing.T) {
	parse := func(body string) WebhookEvent {
		var evt WebhookEvent
		require.NoError(t, json.Unmarshal([]byte(body), &evt))
		return evt
	}

	a := parse(`{"event":"charge.completed","data":{"status":"successful","amount":100,"customer":{"email":"u@x.com"}}}`)
	b := parse(`{"event":"charge.completed","data":{"status":"successful","amount":"100.00","customer":{"email":" U@x.com "}}}`)
	c := parse(`{"event":"charge.completed","data":{"status":"successful","amount":100.01,"customer":{"email":"u@x.com"}}}`)

	require.Equal(t, a.Fingerprint(), a.Reference())
	require.Equal(t, a.Reference(), b.Reference())
	require.NotEqual(t, a.Reference(), c.Reference())
	require.Contains(t, a.Reference(), "sha256:")
}

func TestWebhookWithoutGatewayIDCreditsOnce(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1", "u@x.com")
	f.deposit(t, "u1", "50.00", "seed:1")
	body := []byte(`{"event":"charge.completed","data":{"status":"successful","amount":100,"customer":{"email":"u@x.com"}}}`)

	res, err := f.svc.HandleWebhook(context.Background(), secret, body)
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, res.Status)
	require.Equal(t, money.MustParse("150.00"), f.balance(t, "u1"))

	res, err = f.svc.HandleWebhook(context.Background(), secret, body)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, res.Status)
	require.Equal(t, money.MustParse("150.00"), f.balance(t, "u1"))
	require.Equal(t, int64(2), f.countTransactions(t, "u1"))
}

func TestWebhookStoreFailures(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1", "u@x.com")
	f.deposit(t, "u1", "50.00", "seed:1")

	// No Enqueue expectation: a charge that could not be held must not be queued.
	require.NoError(t, f.db.Migrator().DropTable(&UnmatchedPayment{}))
	_, err := f.svc.HandleWebhook(context.Background(), secret, charge(EventChargeCompleted, ChargeSuccessful, 10, "ghost@x.com", 40))
	require.Equal(t, errutil.StatusInternal, errutil.Code(err))
	require.False(t, errors.Is(err, ErrPayerUnknown))

	require.NoError(t, f.db.Migrator().DropTable(&wallet.Transaction{}))
	_, err = f.svc.HandleWebhook(context.Background(), secret, charge(EventChargeCompleted, ChargeSuccessful, 11, "u@x.com", 100))
	require.Equal(t, errutil.StatusInternal, errutil.Code(err))
	require.Equal(t, money.MustParse("50.00"), f.balance(t, "u1"))
}

func TestWebhookUnknownPayerIsHeld(t *testing.T) {
	f := newFixture(t)
	body := charge(EventChargeCompleted, ChargeSuccessful, 555, "new@x.com", 40)

	var queued []*asynq.Task
	f.enq.EXPECT().Enqueue(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tk *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
			queued = append(queued, tk)
			if len(queued) > 1 {
				return nil, asynq.ErrTaskIDConflict
			}
			return &asynq.TaskInfo{ID: "t1"}, nil
		}).Times(2)

	_, err := f.svc.HandleWebhook(context.Background(), secret, body)
	require.Equal(t, errutil.StatusNotFound, errutil.Code(err))
	require.ErrorIs(t, err, ErrPayerUnknown)

	// Redelivery keeps a single dead-letter row.
	_, err = f.svc.HandleWebhook(context.Background(), secret, body)
	require.Equal(t, errutil.StatusNotFound, errutil.Code(err))

	var rows []UnmatchedPayment
	require.NoError(t, f.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, "555", rows[0].Reference)
	require.Equal(t, "new@x.com", rows[0].Email)
	require.Equal(t, money.MustParse("40.00"), rows[0].Amount)
	require.Equal(t, UnmatchedOpen, rows[0].Status)

	require.Equal(t, taskname.PaymentReconcile, queued[0].Type())
	var p ReconcilePayload
	require.NoError(t, json.Unmarshal(queued[0].Payload(), &p))
	require.Equal(t, rows[0].ID, p.UnmatchedID)
}

func (f *fixture) holdUnknown(t *testing.T, ref any, email string, amount float64) *UnmatchedPayment {
	t.Helper()
	f.enq.EXPECT().Enqueue(gomock.Any(), gomock.Any(), gomock.Any()).Return(&asynq.TaskInfo{}, nil)

	_, err := f.svc.HandleWebhook(context.Background(), secret, charge(EventChargeCompleted, ChargeSuccessful, ref, email, amount))
	require.ErrorIs(t, err, ErrPayerUnknown)

	var row UnmatchedPayment
	require.NoError(t, f.db.First(&row, "email = ?", email).Error)
	return &row
}

func TestReconcileCreditsOnceThePayerExists(t *testing.T) {
	f := newFixture(t)
	row := f.holdUnknown(t, 700, "late@x.com", 60)

	_, err := f.svc.Reconcile(context.Background(), row.ID)
	require.ErrorIs(t, err, ErrPayerUnknown)

	var stored UnmatchedPayment
	require.NoError(t, f.db.First(&stored, "id = ?", row.ID).Error)
	require.Equal(t, 1, stored.Attempts)
	require.Equal(t, UnmatchedOpen, stored.Status)

	f.user(t, "u9", "late@x.com")

	got, err := f.svc.Reconcile(context.Background(), row.ID)
	require.NoError(t, err)
	require.Equal(t, UnmatchedResolved, got.Status)
	require.Equal(t, "u9", got.ResolvedUserID)
	require.NotNil(t, got.ResolvedAt)
	require.Equal(t, money.MustParse("60.00"), f.balance(t, "u9"))

	_, err = f.svc.Reconcile(context.Background(), row.ID)
	require.NoError(t, err)
	require.Equal(t, money.MustParse("60.00"), f.balance(t, "u9"))

	// A late redelivery of the same charge is a duplicate, not a second credit.
	res, err := f.svc.HandleWebhook(context.Background(), secret, charge(EventChargeCompleted, ChargeSuccessful, 700, "late@x.com", 60))
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, res.Status)
	require.Equal(t, int64(1), f.countTransactions(t, "u9"))
}

func TestReconcileAfterWebhookAlreadyCredited(t *testing.T) {
	f := newFixture(t)
	row := f.holdUnknown(t, 701, "race@x.com", 15)
	f.user(t, "u1", "race@x.com")

	res, err := f.svc.HandleWebhook(context.Background(), secret, charge(EventChargeCompleted, ChargeSuccessful, 701, "race@x.com", 15))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessed, res.Status)

	got, err := f.svc.Reconcile(context.Background(), row.ID)
	require.NoError(t, err)
	require.Equal(t, UnmatchedResolved, got.Status)
	require.Equal(t, money.MustParse("15.00"), f.balance(t, "u1"))
	require.Equal(t, int64(1), f.countTransactions(t, "u1"))
}

func TestHandleReconcileTask(t *testing.T) {
	f := newFixture(t)

	err := f.svc.HandleReconcile(context.Background(), asynq.NewTask(taskname.PaymentReconcile, []byte("nope")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	payload, _ := json.Marshal(ReconcilePayload{UnmatchedID: "missing"})
	err = f.svc.HandleReconcile(context.Background(), asynq.NewTask(taskname.PaymentReconcile, payload))
	require.ErrorIs(t, err, asynq.SkipRetry)

	row := f.holdUnknown(t, 702, "t@x.com", 5)
	payload, _ = json.Marshal(ReconcilePayload{UnmatchedID: row.ID})

	err = f.svc.HandleReconcile(context.Background(), asynq.NewTask(taskname.PaymentReconcile, payload))
	require.ErrorIs(t, err, ErrPayerUnknown)
	require.False(t, errors.Is(err, asynq.SkipRetry))

	f.user(t, "u1", "t@x.com")
	require.NoError(t, f.svc.HandleReconcile(context.Background(), asynq.NewTask(taskname.PaymentReconcile, payload)))
	require.Equal(t, money.MustParse("5.00"), f.balance(t, "u1"))
}

func TestHandleSweep(t *testing.T) {
	f := newFixture(t)
	known := f.holdUnknown(t, 801, "a@x.com", 10)
	unknown := f.holdUnknown(t, 802, "b@x.com", 20)
	f.user(t, "ua", "a@x.com")

	require.NoError(t, f.svc.HandleSweep(context.Background(), asynq.NewTask(taskname.PaymentSweep, nil)))

	var rows []UnmatchedPayment
	require.NoError(t, f.db.Order("id").Find(&rows).Error)
	status := map[string]UnmatchedStatus{}
	for _, r := range rows {
		status[r.ID] = r.Status
	}
	require.Equal(t, UnmatchedResolved, status[known.ID])
	require.Equal(t, UnmatchedOpen, status[unknown.ID])
	require.Equal(t, money.MustParse("10.00"), f.balance(t, "ua"))
}

func TestAdminUnmatchedOperations(t *testing.T) {
	f := newFixture(t)
	row := f.holdUnknown(t, 901, "c@x.com", 10)
	reviewer := authz.WithPrincipal(context.Background(), authz.Principal{UserID: "r1", Role: authz.RoleReviewer})

	_, err := f.svc.ListUnmatched(reviewer, ListUnmatchedRequest{})
	require.Equal(t, errutil.StatusForbidden, errutil.Code(err))

	page, err := f.svc.ListUnmatched(admin(), ListUnmatchedRequest{Status: UnmatchedOpen})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)

	f.enq.EXPECT().Enqueue(gomock.Any(), gomock.Any(), gomock.Any()).Return(&asynq.TaskInfo{}, nil)
	got, err := f.svc.RetryUnmatched(admin(), row.ID)
	require.NoError(t, err)
	require.Equal(t, row.ID, got.ID)

	_, err = f.svc.RetryUnmatched(admin(), "missing")
	require.Equal(t, errutil.StatusNotFound, errutil.Code(err))

	f.user(t, "u1", "c@x.com")
	_, err = f.svc.Reconcile(context.Background(), row.ID)
	require.NoError(t, err)

	_, err = f.svc.RetryUnmatched(admin(), row.ID)
	require.Equal(t, errutil.StatusConflict, errutil.Code(err))

	other := f.holdUnknown(t, 902, "d@x.com", 10)
	f.enq.EXPECT().Enqueue(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("redis down"))
	_, err = f.svc.RetryUnmatched(admin(), other.ID)
	require.Equal(t, errutil.StatusInternal, errutil.Code(err))
}
