package referral

import (
	"context"
	"testing"
	"time"

	"vpnstore/pkg/config"
	"vpnstore/pkg/errutil"
	"vpnstore/services/account"
	"vpnstore/services/billing"
	"vpnstore/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type referralFixture struct {
	svc      *Service
	accounts *account.Service
	enqueuer *fakeEnqueuer
	db       *gorm.DB
}

func newFixture(t *testing.T) *referralFixture {
	t.Helper()
	db := testutil.NewTestDB(t, &account.User{}, &ReferralActivation{}, &ReferralBonus{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Referral.BonusPercent = 20

	accounts := account.NewService(account.ServiceParams{DB: db, Node: node})
	enq := &fakeEnqueuer{}
	svc := NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Config:   cfg,
		Accounts: accounts,
		Enqueuer: enq,
	})
	return &referralFixture{svc: svc, accounts: accounts, enqueuer: enq, db: db}
}

func (f *referralFixture) newUserWithCode(t *testing.T, telegramID int64) (*account.User, string) {
	t.Helper()
	ctx := context.Background()
	user, err := f.accounts.GetOrCreate(ctx, telegramID, telegramID)
	require.NoError(t, err)
	code, err := f.accounts.EnsurePromoCode(ctx, user.ID)
	require.NoError(t, err)
	return user, code
}

func (f *referralFixture) newUser(t *testing.T, telegramID int64) *account.User {
	t.Helper()
	user, err := f.accounts.GetOrCreate(context.Background(), telegramID, telegramID)
	require.NoError(t, err)
	return user
}

func creditedPayload(topupID, userID string, amount int64) billing.TopUpCreditedPayload {
	return billing.TopUpCreditedPayload{
		TopUpID:    topupID,
		UserID:     userID,
		Amount:     amount,
		OrderID:    "ORD-TEST-000001",
		CreditedAt: time.Now(),
	}
}

func TestActivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, code := f.newUserWithCode(t, 1)
	activator := f.newUser(t, 2)

	activation, err := f.svc.Activate(ctx, activator.ID, code)
	require.NoError(t, err)
	require.Equal(t, owner.ID, activation.CodeOwnerID)
	require.Equal(t, activator.ID, activation.ActivatorID)
}

func TestActivate_SelfReferralRejected(t *testing.T) {
	f := newFixture(t)
	owner, code := f.newUserWithCode(t, 1)

	_, err := f.svc.Activate(context.Background(), owner.ID, code)
	require.True(t, errutil.HasStatus(err, errutil.StatusUnprocessableEntity))
}

func TestActivate_OncePerActivator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, code1 := f.newUserWithCode(t, 1)
	_, code2 := f.newUserWithCode(t, 2)
	activator := f.newUser(t, 3)

	_, err := f.svc.Activate(ctx, activator.ID, code1)
	require.NoError(t, err)

	_, err = f.svc.Activate(ctx, activator.ID, code1)
	require.True(t, errutil.HasStatus(err, errutil.StatusConflict))

	// A different code is still one activation too many.
	_, err = f.svc.Activate(ctx, activator.ID, code2)
	require.True(t, errutil.HasStatus(err, errutil.StatusConflict))
}

func TestActivate_UnknownCode(t *testing.T) {
	f := newFixture(t)
	activator := f.newUser(t, 1)

	_, err := f.svc.Activate(context.Background(), activator.ID, "NOSUCH99")
	require.True(t, errutil.HasStatus(err, errutil.StatusNotFound))
}

func TestProcessTopUpCredited_TwentyPercentFlooredOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, code := f.newUserWithCode(t, 1)
	activator := f.newUser(t, 2)

	_, err := f.svc.Activate(ctx, activator.ID, code)
	require.NoError(t, err)

	// 99 * 20% = 19.8, floored to 19.
	payload := creditedPayload("topup-1", activator.ID, 99)
	require.NoError(t, f.svc.ProcessTopUpCredited(ctx, payload))

	balance, err := f.accounts.Balance(ctx, owner.ID)
	require.NoError(t, err)
	require.EqualValues(t, 19, balance)

	// Re-emitted credit event pays nothing more.
	require.NoError(t, f.svc.ProcessTopUpCredited(ctx, payload))

	balance, err = f.accounts.Balance(ctx, owner.ID)
	require.NoError(t, err)
	require.EqualValues(t, 19, balance)

	var count int64
	require.NoError(t, f.db.Model(&ReferralBonus{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestProcessTopUpCredited_NoActivationIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payer := f.newUser(t, 1)

	require.NoError(t, f.svc.ProcessTopUpCredited(ctx, creditedPayload("topup-1", payer.ID, 500)))

	var count int64
	require.NoError(t, f.db.Model(&ReferralBonus{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestProcessTopUpCredited_ZeroBonusNotRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, code := f.newUserWithCode(t, 1)
	activator := f.newUser(t, 2)

	_, err := f.svc.Activate(ctx, activator.ID, code)
	require.NoError(t, err)

	// 4 * 20% floors to zero; nothing is credited or recorded.
	require.NoError(t, f.svc.ProcessTopUpCredited(ctx, creditedPayload("topup-1", activator.ID, 4)))

	balance, err := f.accounts.Balance(ctx, owner.ID)
	require.NoError(t, err)
	require.Zero(t, balance)

	var count int64
	require.NoError(t, f.db.Model(&ReferralBonus{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestDeleteByTopUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, code := f.newUserWithCode(t, 1)
	activator := f.newUser(t, 2)

	_, err := f.svc.Activate(ctx, activator.ID, code)
	require.NoError(t, err)
	require.NoError(t, f.svc.ProcessTopUpCredited(ctx, creditedPayload("topup-1", activator.ID, 100)))

	require.NoError(t, f.svc.DeleteByTopUp(ctx, f.db, "topup-1"))

	var count int64
	require.NoError(t, f.db.Model(&ReferralBonus{}).Count(&count).Error)
	require.Zero(t, count)
}
