package promo

import (
	"context"
	"sync"
	"testing"
	"time"

	"vpnstore/pkg/errutil"
	"vpnstore/services/account"
	"vpnstore/services/provisioning"
	"vpnstore/services/subscription"
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

type fakePanel struct {
	name string
	url  string

	mu      sync.Mutex
	extends []int
}

func (p *fakePanel) Name() string     { return p.name }
func (p *fakePanel) Configured() bool { return true }

func (p *fakePanel) CreateAccount(ctx context.Context, accountName string, expiresAt time.Time) (string, error) {
	return p.url + accountName, nil
}

func (p *fakePanel) ExtendAccount(ctx context.Context, accountName string, days int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extends = append(p.extends, days)
	return nil
}

func (p *fakePanel) extendedDays() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.extends...)
}

type fakeEnqueuer struct{}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{}, nil
}

type promoFixture struct {
	svc      *Service
	accounts *account.Service
	subs     *subscription.Service
	db       *gorm.DB
	panel1   *fakePanel
	panel2   *fakePanel
}

func newFixture(t *testing.T) *promoFixture {
	t.Helper()
	db := testutil.NewTestDB(t,
		&account.User{},
		&subscription.Subscription{},
		&AdminPromo{},
		&AdminPromoActivation{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	panel1 := &fakePanel{name: "panel1", url: "https://a/sub/"}
	panel2 := &fakePanel{name: "panel2", url: "https://b/sub/"}
	accounts := account.NewService(account.ServiceParams{DB: db, Node: node})
	subs := subscription.NewService(subscription.ServiceParams{
		DB:       db,
		Node:     node,
		Accounts: accounts,
		Gateway:  provisioning.NewGateway(panel1, panel2),
		Enqueuer: &fakeEnqueuer{},
	})
	svc := NewService(ServiceParams{DB: db, Node: node, Accounts: accounts, Subscriptions: subs})
	return &promoFixture{svc: svc, accounts: accounts, subs: subs, db: db, panel1: panel1, panel2: panel2}
}

func (f *promoFixture) newUser(t *testing.T, telegramID int64) *account.User {
	t.Helper()
	user, err := f.accounts.GetOrCreate(context.Background(), telegramID, telegramID)
	require.NoError(t, err)
	return user
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreatePromoInput{Kind: KindBalance, Amount: 0})
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))

	_, err = f.svc.Create(ctx, CreatePromoInput{Kind: KindDays, Days: -1})
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))

	_, err = f.svc.Create(ctx, CreatePromoInput{Kind: "WEIRD"})
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))

	promo, err := f.svc.Create(ctx, CreatePromoInput{Kind: KindBalance, Amount: 100})
	require.NoError(t, err)
	require.Len(t, promo.Code, 8)
}

func TestCreate_DuplicateCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreatePromoInput{Code: "WELCOME", Kind: KindBalance, Amount: 50})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, CreatePromoInput{Code: "welcome", Kind: KindBalance, Amount: 50})
	require.True(t, errutil.HasStatus(err, errutil.StatusConflict))
}

func TestActivate_BalanceGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.newUser(t, 1)

	promo, err := f.svc.Create(ctx, CreatePromoInput{Kind: KindBalance, Amount: 150, Reusable: true})
	require.NoError(t, err)

	result, err := f.svc.Activate(ctx, user.ID, promo.Code)
	require.NoError(t, err)
	require.Nil(t, result.Subscription)

	balance, err := f.accounts.Balance(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 150, balance)
}

func TestActivate_OncePerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.newUser(t, 1)
	other := f.newUser(t, 2)

	promo, err := f.svc.Create(ctx, CreatePromoInput{Kind: KindBalance, Amount: 100, Reusable: true})
	require.NoError(t, err)

	_, err = f.svc.Activate(ctx, user.ID, promo.Code)
	require.NoError(t, err)

	_, err = f.svc.Activate(ctx, user.ID, promo.Code)
	require.True(t, errutil.HasStatus(err, errutil.StatusConflict))

	// The balance moved exactly once.
	balance, err := f.accounts.Balance(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 100, balance)

	// A reusable promo still works for other users.
	_, err = f.svc.Activate(ctx, other.ID, promo.Code)
	require.NoError(t, err)
}

func TestActivate_SingleUseConsumed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.newUser(t, 1)
	second := f.newUser(t, 2)

	promo, err := f.svc.Create(ctx, CreatePromoInput{Kind: KindBalance, Amount: 100, Reusable: false})
	require.NoError(t, err)

	_, err = f.svc.Activate(ctx, first.ID, promo.Code)
	require.NoError(t, err)

	_, err = f.svc.Activate(ctx, second.ID, promo.Code)
	require.True(t, errutil.HasStatus(err, errutil.StatusConflict))

	balance, err := f.accounts.Balance(ctx, second.ID)
	require.NoError(t, err)
	require.Zero(t, balance)
}

func TestActivate_DaysGrantCreatesAndProvisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.newUser(t, 1)

	promo, err := f.svc.Create(ctx, CreatePromoInput{Kind: KindDays, Days: 14, Reusable: true})
	require.NoError(t, err)

	result, err := f.svc.Activate(ctx, user.ID, promo.Code)
	require.NoError(t, err)
	require.True(t, result.Created)
	require.NotNil(t, result.Subscription)
	require.Equal(t, subscription.PromoPlan, result.Subscription.Type)
	require.WithinDuration(t, time.Now().AddDate(0, 0, 14), *result.Subscription.EndDate, time.Minute)
	require.NotNil(t, result.Subscription.SubscriptionURL)
}

func TestActivate_DaysGrantExtendsExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.newUser(t, 1)
	require.NoError(t, f.accounts.Credit(ctx, f.db, user.ID, 500))

	purchased, err := f.subs.Purchase(ctx, user.ID, "M1")
	require.NoError(t, err)
	oldEnd := *purchased.Subscription.EndDate

	promo, err := f.svc.Create(ctx, CreatePromoInput{Kind: KindDays, Days: 10, Reusable: true})
	require.NoError(t, err)

	result, err := f.svc.Activate(ctx, user.ID, promo.Code)
	require.NoError(t, err)
	require.False(t, result.Created)
	require.Equal(t, purchased.Subscription.ID, result.Subscription.ID)
	require.WithinDuration(t, oldEnd.AddDate(0, 0, 10), *result.Subscription.EndDate, time.Minute)

	// The panels must follow the ledger: both received the granted days.
	require.Equal(t, []int{10}, f.panel1.extendedDays())
	require.Equal(t, []int{10}, f.panel2.extendedDays())
}

func TestActivate_UnknownCode(t *testing.T) {
	f := newFixture(t)
	user := f.newUser(t, 1)

	_, err := f.svc.Activate(context.Background(), user.ID, "NOPE1234")
	require.True(t, errutil.HasStatus(err, errutil.StatusNotFound))
}
