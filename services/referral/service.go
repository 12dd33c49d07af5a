package referral

import (
	"context"
	"strconv"
	"time"

	"vpnstore/pkg/config"
	"vpnstore/pkg/errutil"
	"vpnstore/pkg/repository"
	"vpnstore/pkg/task"
	"vpnstore/services/account"
	"vpnstore/services/billing"
	"vpnstore/services/notify"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	activations repository.Repository[ReferralActivation]
	bonuses     repository.Repository[ReferralBonus]
	accounts    *account.Service
	enqueuer    task.Enqueuer

	bonusPercent int64
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Accounts *account.Service
	Enqueuer task.Enqueuer
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:           p.DB,
		node:         p.Node,
		activations:  repository.ProvideStore[ReferralActivation](p.DB),
		bonuses:      repository.ProvideStore[ReferralBonus](p.DB),
		accounts:     p.Accounts,
		enqueuer:     p.Enqueuer,
		bonusPercent: p.Config.Referral.BonusPercent,
	}
}

// Activate binds the activator to the code owner. Each user activates at
// most one referral code ever; the unique index on activator_id backs the
// pre-check under races.
func (s *Service) Activate(ctx context.Context, activatorID, code string) (*ReferralActivation, error) {
	owner, err := s.accounts.GetByPromoCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if owner.ID == activatorID {
		return nil, errutil.UnprocessableEntity("cannot activate your own referral code")
	}

	existing, err := s.activations.FindOne(ctx, &ReferralActivation{ActivatorID: activatorID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errutil.Conflict("referral code already activated")
	}

	activation := &ReferralActivation{
		ID:          s.node.Generate().String(),
		CodeOwnerID: owner.ID,
		ActivatorID: activatorID,
		Code:        code,
		CreatedAt:   time.Now(),
	}
	if err := s.activations.Create(ctx, activation); err != nil {
		// Constraint hit under a race; the activator is already bound.
		if again, ferr := s.activations.FindOne(ctx, &ReferralActivation{ActivatorID: activatorID}); ferr == nil && again != nil {
			return nil, errutil.Conflict("referral code already activated")
		}
		return nil, err
	}

	zap.L().Info("referral code activated",
		zap.String("code_owner_id", owner.ID),
		zap.String("activator_id", activatorID))
	return activation, nil
}

// ProcessTopUpCredited pays the code owner their share of a credited top-up,
// at most once per top-up. The existence pre-check plus the composite unique
// constraint make a re-emitted credit event a no-op.
func (s *Service) ProcessTopUpCredited(ctx context.Context, payload billing.TopUpCreditedPayload) error {
	activation, err := s.activations.FindOne(ctx, &ReferralActivation{ActivatorID: payload.UserID})
	if err != nil {
		return err
	}
	if activation == nil {
		return nil
	}

	bonusAmount := payload.Amount * s.bonusPercent / 100
	if bonusAmount <= 0 {
		zap.L().Info("referral bonus below one unit, not processed",
			zap.String("topup_id", payload.TopUpID),
			zap.Int64("amount", payload.Amount))
		return nil
	}

	guard := &ReferralBonus{
		TopUpID:     payload.TopUpID,
		CodeOwnerID: activation.CodeOwnerID,
		ActivatorID: activation.ActivatorID,
	}
	existing, err := s.bonuses.FindOne(ctx, guard)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	bonus := &ReferralBonus{
		ID:          s.node.Generate().String(),
		TopUpID:     payload.TopUpID,
		CodeOwnerID: activation.CodeOwnerID,
		ActivatorID: activation.ActivatorID,
		Amount:      payload.Amount,
		BonusAmount: bonusAmount,
		Credited:    true,
		CreatedAt:   time.Now(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.bonuses.WithTrx(tx).Create(ctx, bonus); err != nil {
			return err
		}
		return s.accounts.Credit(ctx, tx, activation.CodeOwnerID, bonusAmount)
	})
	if err != nil {
		// A concurrent consumer of the same event may have won the insert;
		// that is the at-most-once guard doing its job.
		if again, ferr := s.bonuses.FindOne(ctx, guard); ferr == nil && again != nil {
			return nil
		}
		return err
	}

	zap.L().Info("referral bonus credited",
		zap.String("topup_id", payload.TopUpID),
		zap.String("code_owner_id", activation.CodeOwnerID),
		zap.Int64("bonus", bonusAmount))

	if owner, err := s.accounts.Get(ctx, activation.CodeOwnerID); err == nil {
		s.notifyUser(owner.ChatID, notify.KindBonusCredited, map[string]string{
			"bonus": strconv.FormatInt(bonusAmount, 10),
		})
	}
	return nil
}

// DeleteByTopUp removes the bonus rows hanging off a top-up; it runs inside
// the billing admin cascade's transaction.
func (s *Service) DeleteByTopUp(ctx context.Context, tx *gorm.DB, topupID string) error {
	return tx.WithContext(ctx).Delete(&ReferralBonus{}, "topup_id = ?", topupID).Error
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
