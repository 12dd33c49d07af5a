package subscription

import (
	"context"
	"strconv"
	"time"

	"vpnstore/pkg/errutil"
	"vpnstore/pkg/repository"
	"vpnstore/pkg/task"
	"vpnstore/services/account"
	"vpnstore/services/notify"
	"vpnstore/services/provisioning"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PurchaseResult reports either a provisioned subscription or the exact
// shortfall so the caller can route the user straight into the top-up flow
// with the amount pre-filled.
type PurchaseResult struct {
	Subscription *Subscription
	NeedTopUp    int64
	Degraded     bool
}

// ExtendOutcome reports the new validity window and per-panel provisioning
// success for an extension.
type ExtendOutcome struct {
	Subscription *Subscription
	NeedTopUp    int64
	Panel1OK     bool
	Panel2OK     bool
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	subs     repository.Repository[Subscription]
	accounts *account.Service
	gateway  *provisioning.Gateway
	enqueuer task.Enqueuer
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Accounts *account.Service
	Gateway  *provisioning.Gateway
	Enqueuer task.Enqueuer
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		subs:     repository.ProvideStore[Subscription](p.DB),
		accounts: p.Accounts,
		gateway:  p.Gateway,
		enqueuer: p.Enqueuer,
	}
}

// Purchase atomically exchanges wallet balance for a new subscription, then
// provisions access outside the transaction. The conditional debit is the
// whole funds check: zero affected rows means insufficient funds and nothing
// else is written. A committed debit is never rolled back on provisioning
// failure; provisioning is best-effort and retryable out of band.
func (s *Service) Purchase(ctx context.Context, userID, planKey string) (*PurchaseResult, error) {
	plan, err := LookupPlan(planKey)
	if err != nil {
		return nil, err
	}

	user, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	end := now.AddDate(0, plan.DurationMonths, 0)
	sub := &Subscription{
		ID:        s.node.Generate().String(),
		UserID:    user.ID,
		Type:      plan.Key,
		StartDate: now,
		EndDate:   &end,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var shortfall int64
	err = s.db.Transaction(func(tx *gorm.DB) error {
		ok, err := s.accounts.Debit(ctx, tx, user.ID, plan.Price)
		if err != nil {
			return err
		}
		if !ok {
			var current account.User
			if err := tx.WithContext(ctx).Where("id = ?", user.ID).First(&current).Error; err != nil {
				return err
			}
			shortfall = plan.Price - current.Balance
			return errutil.UnprocessableEntity("insufficient funds")
		}
		return s.subs.WithTrx(tx).Create(ctx, sub)
	})
	if err != nil {
		if shortfall > 0 {
			return &PurchaseResult{NeedTopUp: shortfall}, nil
		}
		return nil, err
	}

	zap.L().Info("subscription purchased",
		zap.String("subscription_id", sub.ID),
		zap.String("user_id", user.ID),
		zap.String("plan", plan.Key),
		zap.Int64("price", plan.Price))

	// Provisioning happens after commit; a slow panel must never hold a
	// row lock.
	accountName := provisioning.AccountName(user.TelegramID, plan.Key, sub.ID)
	result := s.gateway.CreateOnBothPanels(ctx, accountName, end)
	sub.SubscriptionURL = result.URL1
	sub.SubscriptionURL2 = result.URL2

	if err := s.subs.Update(ctx, sub.ID, map[string]any{
		"subscription_url":  sub.SubscriptionURL,
		"subscription_url2": sub.SubscriptionURL2,
		"updated_at":        time.Now(),
	}); err != nil {
		return nil, err
	}

	degraded := result.Degraded(s.gateway.Panel1Configured(), s.gateway.Panel2Configured())
	if degraded {
		zap.L().Warn("purchase provisioned partially",
			zap.String("subscription_id", sub.ID),
			zap.Bool("url1", sub.SubscriptionURL != nil),
			zap.Bool("url2", sub.SubscriptionURL2 != nil))
		s.notifyUser(user.ChatID, notify.KindProvisioningDegraded, map[string]string{
			"subscription_id": sub.ID,
		})
	}

	return &PurchaseResult{Subscription: sub, Degraded: degraded}, nil
}

// Extend pushes the validity window forward by the plan's duration, counted
// from the later of the current end date or now, so extending an expired
// subscription starts the new period from now. The reminder flags reset so
// the new period gets its own reminders.
func (s *Service) Extend(ctx context.Context, userID, subscriptionID, planKey string) (*ExtendOutcome, error) {
	plan, err := LookupPlan(planKey)
	if err != nil {
		return nil, err
	}

	sub, err := s.getOwned(ctx, userID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.EndDate == nil {
		return nil, errutil.UnprocessableEntity("unbounded subscription cannot be extended")
	}

	user, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	from := *sub.EndDate
	if from.Before(now) {
		from = now
	}
	newEnd := from.AddDate(0, plan.DurationMonths, 0)

	var shortfall int64
	err = s.db.Transaction(func(tx *gorm.DB) error {
		ok, err := s.accounts.Debit(ctx, tx, user.ID, plan.Price)
		if err != nil {
			return err
		}
		if !ok {
			var current account.User
			if err := tx.WithContext(ctx).Where("id = ?", user.ID).First(&current).Error; err != nil {
				return err
			}
			shortfall = plan.Price - current.Balance
			return errutil.UnprocessableEntity("insufficient funds")
		}
		return tx.WithContext(ctx).Model(&Subscription{}).
			Where("id = ?", sub.ID).
			Updates(map[string]any{
				"end_date":       newEnd,
				"notified_3days": false,
				"notified_1day":  false,
				"updated_at":     now,
			}).Error
	})
	if err != nil {
		if shortfall > 0 {
			return &ExtendOutcome{NeedTopUp: shortfall}, nil
		}
		return nil, err
	}

	sub.EndDate = &newEnd
	sub.Notified3Days = false
	sub.Notified1Day = false

	// The remote account name was fixed at creation; extend targets it with
	// the purchased duration in days. Partial panel failure is logged, never
	// fatal: the debit stands and provisioning retries out of band.
	days := int(newEnd.Sub(from).Hours() / 24)
	accountName := provisioning.AccountName(user.TelegramID, sub.Type, sub.ID)
	result := s.gateway.ExtendOnBothPanels(ctx, accountName, days)

	zap.L().Info("subscription extended",
		zap.String("subscription_id", sub.ID),
		zap.String("plan", plan.Key),
		zap.Time("end_date", newEnd),
		zap.Bool("panel1_ok", result.Panel1),
		zap.Bool("panel2_ok", result.Panel2))

	return &ExtendOutcome{
		Subscription: sub,
		Panel1OK:     result.Panel1,
		Panel2OK:     result.Panel2,
	}, nil
}

// GrantFree creates the implicit free-tier subscription on first contact.
// Idempotent: a user who already holds any subscription gets nothing new.
func (s *Service) GrantFree(ctx context.Context, userID string) (*Subscription, error) {
	user, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	existing, err := s.subs.FindOne(ctx, &Subscription{UserID: user.ID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	sub := &Subscription{
		ID:        s.node.Generate().String(),
		UserID:    user.ID,
		Type:      FreePlan,
		StartDate: now,
		EndDate:   nil,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, err
	}

	accountName := provisioning.AccountName(user.TelegramID, FreePlan, sub.ID)
	result := s.gateway.CreateOnBothPanels(ctx, accountName, time.Time{})
	sub.SubscriptionURL = result.URL1
	sub.SubscriptionURL2 = result.URL2

	if err := s.subs.Update(ctx, sub.ID, map[string]any{
		"subscription_url":  sub.SubscriptionURL,
		"subscription_url2": sub.SubscriptionURL2,
		"updated_at":        time.Now(),
	}); err != nil {
		return nil, err
	}

	return sub, nil
}

// GrantDays applies a promo days-grant inside the caller's transaction:
// the newest bounded subscription is pushed forward, or a PROMO-typed one
// is created. Returns the subscription and whether it was newly created so
// the caller can provision after commit.
func (s *Service) GrantDays(ctx context.Context, tx *gorm.DB, userID string, days int) (*Subscription, bool, error) {
	repo := s.subs.WithTrx(tx)

	var existing Subscription
	err := tx.WithContext(ctx).
		Where("user_id = ? AND end_date IS NOT NULL", userID).
		Order("end_date DESC").
		First(&existing).Error
	now := time.Now()

	if err == nil {
		from := *existing.EndDate
		if from.Before(now) {
			from = now
		}
		newEnd := from.AddDate(0, 0, days)
		if err := tx.WithContext(ctx).Model(&Subscription{}).
			Where("id = ?", existing.ID).
			Updates(map[string]any{
				"end_date":       newEnd,
				"notified_3days": false,
				"notified_1day":  false,
				"updated_at":     now,
			}).Error; err != nil {
			return nil, false, err
		}
		existing.EndDate = &newEnd
		return &existing, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, err
	}

	end := now.AddDate(0, 0, days)
	sub := &Subscription{
		ID:        s.node.Generate().String(),
		UserID:    userID,
		Type:      PromoPlan,
		StartDate: now,
		EndDate:   &end,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(ctx, sub); err != nil {
		return nil, false, err
	}
	return sub, true, nil
}

// ProvisionGrant creates panel accounts for a freshly granted subscription
// and persists the returned URLs. Called after the granting transaction has
// committed.
func (s *Service) ProvisionGrant(ctx context.Context, userID string, sub *Subscription) error {
	user, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return err
	}

	var expiresAt time.Time
	if sub.EndDate != nil {
		expiresAt = *sub.EndDate
	}
	accountName := provisioning.AccountName(user.TelegramID, sub.Type, sub.ID)
	result := s.gateway.CreateOnBothPanels(ctx, accountName, expiresAt)
	sub.SubscriptionURL = result.URL1
	sub.SubscriptionURL2 = result.URL2

	if err := s.subs.Update(ctx, sub.ID, map[string]any{
		"subscription_url":  sub.SubscriptionURL,
		"subscription_url2": sub.SubscriptionURL2,
		"updated_at":        time.Now(),
	}); err != nil {
		return err
	}

	if result.Degraded(s.gateway.Panel1Configured(), s.gateway.Panel2Configured()) {
		zap.L().Warn("grant provisioned partially",
			zap.String("subscription_id", sub.ID),
			zap.Bool("url1", sub.SubscriptionURL != nil),
			zap.Bool("url2", sub.SubscriptionURL2 != nil))
	}
	return nil
}

// ProvisionExtension pushes the remote panel expiry forward for a
// subscription whose end_date already moved in the ledger. Called after the
// granting transaction has committed; partial panel failure is logged by the
// gateway, never fatal.
func (s *Service) ProvisionExtension(ctx context.Context, userID string, sub *Subscription, days int) provisioning.ExtendResult {
	user, err := s.accounts.Get(ctx, userID)
	if err != nil {
		zap.L().Error("extension owner lookup failed",
			zap.String("subscription_id", sub.ID),
			zap.Error(err))
		return provisioning.ExtendResult{}
	}

	accountName := provisioning.AccountName(user.TelegramID, sub.Type, sub.ID)
	result := s.gateway.ExtendOnBothPanels(ctx, accountName, days)
	if (s.gateway.Panel1Configured() && !result.Panel1) ||
		(s.gateway.Panel2Configured() && !result.Panel2) {
		zap.L().Warn("extension provisioned partially",
			zap.String("subscription_id", sub.ID),
			zap.Bool("panel1_ok", result.Panel1),
			zap.Bool("panel2_ok", result.Panel2))
	}
	return result
}

// Get returns the subscription only to its owner; anyone else sees NotFound
// so existence never leaks.
func (s *Service) Get(ctx context.Context, userID, subscriptionID string) (*Subscription, error) {
	return s.getOwned(ctx, userID, subscriptionID)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Subscription, error) {
	return s.subs.Find(ctx, &Subscription{UserID: userID})
}

func (s *Service) getOwned(ctx context.Context, userID, subscriptionID string) (*Subscription, error) {
	sub, err := s.subs.FindOne(ctx, &Subscription{ID: subscriptionID})
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.UserID != userID {
		return nil, errutil.NotFound("subscription not found")
	}
	return sub, nil
}

// SweepExpiring emits renewal reminders for bounded, non-free subscriptions
// at the 3-day and 1-day marks. Each reminder rides a conditional flag flip
// whose affected-row count gates the notification, so an overlapping sweep
// sends at most one reminder per period. The windows are disjoint: a
// subscription already inside the 1-day window gets only the 1-day reminder,
// even when neither flag was ever set.
func (s *Service) SweepExpiring(ctx context.Context) (int, error) {
	now := time.Now()
	sent := 0

	windows := []struct {
		days      int
		floorDays int
		column    string
	}{
		{3, 1, "notified_3days"},
		{1, 0, "notified_1day"},
	}

	for _, w := range windows {
		floor := now.Add(time.Duration(w.floorDays) * 24 * time.Hour)
		cutoff := now.Add(time.Duration(w.days) * 24 * time.Hour)

		var due []Subscription
		if err := s.db.WithContext(ctx).
			Where("end_date IS NOT NULL AND end_date > ? AND end_date <= ?", floor, cutoff).
			Where("type <> ?", FreePlan).
			Where(w.column+" = ?", false).
			Find(&due).Error; err != nil {
			return sent, err
		}

		for _, sub := range due {
			res := s.db.WithContext(ctx).Model(&Subscription{}).
				Where("id = ? AND "+w.column+" = ?", sub.ID, false).
				Updates(map[string]any{w.column: true, "updated_at": now})
			if res.Error != nil {
				zap.L().Error("reminder flag flip failed", zap.String("subscription_id", sub.ID), zap.Error(res.Error))
				continue
			}
			if res.RowsAffected == 0 {
				continue
			}

			user, err := s.accounts.Get(ctx, sub.UserID)
			if err != nil {
				zap.L().Error("reminder owner lookup failed", zap.String("subscription_id", sub.ID), zap.Error(err))
				continue
			}
			s.notifyUser(user.ChatID, notify.KindRenewalDue, map[string]string{
				"subscription_id": sub.ID,
				"days":            strconv.Itoa(w.days),
			})
			sent++
		}
	}

	return sent, nil
}

func (s *Service) notifyUser(chatID int64, kind notify.Kind, params map[string]string) {
	t, err := notify.NewUserNotificationTask(notify.UserNotificationPayload{
		ChatID: chatID,
		Kind:   kind,
		Params: params,
	})
	if err != nil {
		return
	}
	if _, err := s.enqueuer.Enqueue(t); err != nil {
		zap.L().Error("failed to enqueue notification", zap.String("kind", string(kind)), zap.Error(err))
	}
}
