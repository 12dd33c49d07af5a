package billing

import (
	"context"
	"strconv"
	"time"

	"vpnstore/pkg/config"
	"vpnstore/pkg/db/option"
	"vpnstore/pkg/errutil"
	"vpnstore/pkg/repository"
	"vpnstore/pkg/sequence"
	"vpnstore/pkg/task"
	"vpnstore/services/account"
	"vpnstore/services/notify"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ResolveOutcome distinguishes a fresh transition from an idempotent no-op
// so callers can avoid duplicate notifications.
type ResolveOutcome string

const (
	OutcomeCredited        ResolveOutcome = "CREDITED"
	OutcomeAlreadyCredited ResolveOutcome = "ALREADY_CREDITED"
	OutcomeResolved        ResolveOutcome = "RESOLVED"
	OutcomeAlreadyResolved ResolveOutcome = "ALREADY_RESOLVED"
)

// BonusCleaner removes bonus rows that hang off a top-up. The referral
// service provides the implementation; keeping the contract here lets the
// admin delete cascade live in one place.
type BonusCleaner interface {
	DeleteByTopUp(ctx context.Context, tx *gorm.DB, topupID string) error
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	topups   repository.Repository[TopUp]
	accounts *account.Service
	invoices InvoiceClient
	orders   sequence.Generator
	enqueuer task.Enqueuer
	bonuses  BonusCleaner

	fallbackLink string
	pendingTTL   time.Duration
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Accounts *account.Service
	Invoices InvoiceClient
	Orders   sequence.Generator
	Enqueuer task.Enqueuer
	Bonuses  BonusCleaner `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:           p.DB,
		node:         p.Node,
		topups:       repository.ProvideStore[TopUp](p.DB),
		accounts:     p.Accounts,
		invoices:     p.Invoices,
		orders:       p.Orders,
		enqueuer:     p.Enqueuer,
		bonuses:      p.Bonuses,
		fallbackLink: p.Config.Payment.FallbackLink,
		pendingTTL:   p.Config.Payment.PendingTTL,
	}
}

// CreateTopUp opens a PENDING deposit attempt and requests a provider
// invoice for it. Provider failure degrades to the fallback payment link;
// the PENDING row is the ledger-side truth either way.
func (s *Service) CreateTopUp(ctx context.Context, userID string, amount int64) (*TopUp, error) {
	if amount <= 0 {
		return nil, errutil.BadRequest("top-up amount must be positive")
	}

	user, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	orderID, err := s.orders.NextOrderCode(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	topup := &TopUp{
		ID:        s.node.Generate().String(),
		UserID:    user.ID,
		Amount:    amount,
		Status:    StatusPending,
		OrderID:   orderID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.topups.Create(ctx, topup); err != nil {
		return nil, err
	}

	// Network call stays outside any transaction.
	invoice, err := s.invoices.CreateInvoice(ctx, orderID, amount)
	if err != nil {
		zap.L().Warn("invoice creation degraded to fallback link",
			zap.String("topup_id", topup.ID),
			zap.String("order_id", orderID),
			zap.Error(err))
		topup.PayURL = s.fallbackLink
	} else {
		topup.BillID = &invoice.BillID
		topup.PayURL = invoice.PayURL
	}

	if err := s.topups.Update(ctx, topup.ID, map[string]any{
		"bill_id":    topup.BillID,
		"pay_url":    topup.PayURL,
		"updated_at": time.Now(),
	}); err != nil {
		return nil, err
	}

	return topup, nil
}

func (s *Service) Get(ctx context.Context, topupID string) (*TopUp, error) {
	topup, err := s.topups.FindOne(ctx, &TopUp{ID: topupID})
	if err != nil {
		return nil, err
	}
	if topup == nil {
		return nil, errutil.NotFound("top-up not found")
	}
	return topup, nil
}

func (s *Service) GetByOrderID(ctx context.Context, orderID string) (*TopUp, error) {
	topup, err := s.topups.FindOne(ctx, &TopUp{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	if topup == nil {
		return nil, errutil.NotFound("top-up not found")
	}
	return topup, nil
}

// ResolveSuccess applies the at-most-once credit. The conditional UPDATE on
// credited = false is the only gate: whichever caller wins the race performs
// the balance increment inside the same transaction, every other caller gets
// OutcomeAlreadyCredited. Safe to call any number of times.
func (s *Service) ResolveSuccess(ctx context.Context, topupID string) (ResolveOutcome, error) {
	topup, err := s.Get(ctx, topupID)
	if err != nil {
		return "", err
	}
	if topup.Credited {
		return OutcomeAlreadyCredited, nil
	}

	var credited bool
	creditedAt := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).Model(&TopUp{}).
			Where("id = ? AND credited = ?", topupID, false).
			Updates(map[string]any{
				"status":      StatusSuccess,
				"credited":    true,
				"credited_at": creditedAt,
				"updated_at":  creditedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the resolution race; the winner already credited.
			return nil
		}
		credited = true
		return s.accounts.Credit(ctx, tx, topup.UserID, topup.Amount)
	})
	if err != nil {
		zap.L().Error("failed to credit top-up", zap.String("topup_id", topupID), zap.Error(err))
		return "", err
	}
	if !credited {
		return OutcomeAlreadyCredited, nil
	}

	zap.L().Info("top-up credited",
		zap.String("topup_id", topupID),
		zap.String("user_id", topup.UserID),
		zap.Int64("amount", topup.Amount))

	s.emitCredited(ctx, topup, creditedAt)
	return OutcomeCredited, nil
}

func (s *Service) emitCredited(ctx context.Context, topup *TopUp, creditedAt time.Time) {
	user, err := s.accounts.Get(ctx, topup.UserID)
	if err != nil {
		zap.L().Error("credited event: owner lookup failed", zap.String("topup_id", topup.ID), zap.Error(err))
		return
	}

	event, err := NewTopUpCreditedTask(TopUpCreditedPayload{
		TopUpID:    topup.ID,
		UserID:     topup.UserID,
		ChatID:     user.ChatID,
		Amount:     topup.Amount,
		OrderID:    topup.OrderID,
		CreditedAt: creditedAt,
	})
	if err == nil {
		if _, err := s.enqueuer.Enqueue(event); err != nil {
			zap.L().Error("failed to enqueue credited event", zap.String("topup_id", topup.ID), zap.Error(err))
		}
	}

	s.notifyUser(user.ChatID, notify.KindTopUpCredited, map[string]string{
		"amount":   strconv.FormatInt(topup.Amount, 10),
		"order_id": topup.OrderID,
	})
}

// ResolveFailure marks a pending top-up FAILED. Repeated calls after the
// transition are no-ops and never re-notify.
func (s *Service) ResolveFailure(ctx context.Context, topupID string) (ResolveOutcome, error) {
	return s.resolveTerminal(ctx, topupID, StatusFailed, notify.KindTopUpFailed)
}

// ResolveTimeout marks a pending top-up TIMEOUT; called by the sweep.
func (s *Service) ResolveTimeout(ctx context.Context, topupID string) (ResolveOutcome, error) {
	return s.resolveTerminal(ctx, topupID, StatusTimeout, notify.KindTopUpTimeout)
}

func (s *Service) resolveTerminal(ctx context.Context, topupID string, status TopUpStatus, kind notify.Kind) (ResolveOutcome, error) {
	topup, err := s.Get(ctx, topupID)
	if err != nil {
		return "", err
	}
	if topup.Status != StatusPending {
		return OutcomeAlreadyResolved, nil
	}

	res := s.db.WithContext(ctx).Model(&TopUp{}).
		Where("id = ? AND status = ?", topupID, StatusPending).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return OutcomeAlreadyResolved, nil
	}

	zap.L().Info("top-up resolved",
		zap.String("topup_id", topupID),
		zap.String("status", string(status)))

	if user, err := s.accounts.Get(ctx, topup.UserID); err == nil {
		s.notifyUser(user.ChatID, kind, map[string]string{
			"amount":   strconv.FormatInt(topup.Amount, 10),
			"order_id": topup.OrderID,
		})
	}

	return OutcomeResolved, nil
}

// ResolveFromPostback maps a provider postback onto the idempotent resolve
// primitives. Unknown statuses are reported as validation failures so the
// handler can log and drop them without touching the ledger.
func (s *Service) ResolveFromPostback(ctx context.Context, orderID, providerStatus string) (ResolveOutcome, error) {
	topup, err := s.GetByOrderID(ctx, orderID)
	if err != nil {
		return "", err
	}

	switch providerStatus {
	case "PAID", "SUCCESS":
		return s.ResolveSuccess(ctx, topup.ID)
	case "REJECTED", "EXPIRED", "FAIL":
		return s.ResolveFailure(ctx, topup.ID)
	default:
		return "", errutil.ValidationFailed("unknown provider status: " + providerStatus)
	}
}

// DeleteTopUp is the admin cascade: dependent bonus rows go first, then the
// top-up, all in one transaction so no caller can forget the cleanup.
func (s *Service) DeleteTopUp(ctx context.Context, topupID string) error {
	topup, err := s.Get(ctx, topupID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if s.bonuses != nil {
			if err := s.bonuses.DeleteByTopUp(ctx, tx, topup.ID); err != nil {
				return err
			}
		}
		return tx.WithContext(ctx).Delete(&TopUp{}, "id = ?", topup.ID).Error
	})
}

// SweepPendingTimeouts times out PENDING top-ups older than the configured
// TTL. Each transition goes through the same idempotent primitive the
// postback path uses, so an overlapping sweep cannot double-notify.
func (s *Service) SweepPendingTimeouts(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.pendingTTL)
	stale, err := s.topups.Find(ctx, &TopUp{Status: StatusPending},
		option.ApplyOperator(option.Condition{Field: "created_at", Operator: option.LT, Value: cutoff}),
	)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, topup := range stale {
		outcome, err := s.ResolveTimeout(ctx, topup.ID)
		if err != nil {
			zap.L().Error("timeout sweep failed for top-up", zap.String("topup_id", topup.ID), zap.Error(err))
			continue
		}
		if outcome == OutcomeResolved {
			swept++
		}
	}
	return swept, nil
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
