package promo

import (
	"context"
	"strings"
	"time"

	"vpnstore/pkg/errutil"
	"vpnstore/pkg/repository"
	"vpnstore/pkg/util"
	"vpnstore/services/account"
	"vpnstore/services/subscription"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreatePromoInput describes an admin-created promo. A blank Code gets a
// generated one.
type CreatePromoInput struct {
	Code     string    `json:"code"`
	Kind     PromoKind `json:"kind"`
	Amount   int64     `json:"amount"`
	Days     int       `json:"days"`
	Reusable bool      `json:"reusable"`
}

// ActivationResult reports what the promo granted. Subscription is set only
// for days-grants; Created tells the caller whether a new subscription row
// was provisioned.
type ActivationResult struct {
	Promo        *AdminPromo
	Subscription *subscription.Subscription
	Created      bool
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	promos      repository.Repository[AdminPromo]
	activations repository.Repository[AdminPromoActivation]
	accounts    *account.Service
	subs        *subscription.Service
}

type ServiceParams struct {
	fx.In
	DB            *gorm.DB
	Node          *snowflake.Node
	Accounts      *account.Service
	Subscriptions *subscription.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		node:        p.Node,
		promos:      repository.ProvideStore[AdminPromo](p.DB),
		activations: repository.ProvideStore[AdminPromoActivation](p.DB),
		accounts:    p.Accounts,
		subs:        p.Subscriptions,
	}
}

func (s *Service) Create(ctx context.Context, in CreatePromoInput) (*AdminPromo, error) {
	switch in.Kind {
	case KindBalance:
		if in.Amount <= 0 {
			return nil, errutil.ValidationFailed("balance promo requires a positive amount")
		}
	case KindDays:
		if in.Days <= 0 {
			return nil, errutil.ValidationFailed("days promo requires a positive day count")
		}
	default:
		return nil, errutil.ValidationFailed("unknown promo kind")
	}

	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if code == "" {
		generated, err := util.GenerateCode(8)
		if err != nil {
			return nil, err
		}
		code = generated
	}

	now := time.Now()
	promo := &AdminPromo{
		ID:        s.node.Generate().String(),
		Code:      code,
		Kind:      in.Kind,
		Amount:    in.Amount,
		Days:      in.Days,
		Reusable:  in.Reusable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.promos.Create(ctx, promo); err != nil {
		if existing, ferr := s.promos.FindOne(ctx, &AdminPromo{Code: code}); ferr == nil && existing != nil {
			return nil, errutil.Conflict("promo code already exists")
		}
		return nil, err
	}

	zap.L().Info("promo created",
		zap.String("promo_id", promo.ID),
		zap.String("kind", string(promo.Kind)),
		zap.Bool("reusable", promo.Reusable))
	return promo, nil
}

func (s *Service) Get(ctx context.Context, code string) (*AdminPromo, error) {
	promo, err := s.promos.FindOne(ctx, &AdminPromo{Code: strings.ToUpper(strings.TrimSpace(code))})
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return nil, errutil.NotFound("promo not found")
	}
	return promo, nil
}

// Activate applies a promo to a user at most once. The grant and the
// activation record commit in one transaction; a constraint violation on
// the activation insert means a concurrent attempt already won and is
// reported as a conflict, never as a second grant.
func (s *Service) Activate(ctx context.Context, userID, code string) (*ActivationResult, error) {
	promo, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	existing, err := s.activations.FindOne(ctx, &AdminPromoActivation{PromoID: promo.ID, UserID: userID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errutil.Conflict("promo already activated")
	}
	if !promo.Reusable && promo.Used {
		return nil, errutil.Conflict("promo already used")
	}

	var (
		grantedSub *subscription.Subscription
		created    bool
	)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if !promo.Reusable {
			res := tx.WithContext(ctx).Model(&AdminPromo{}).
				Where("id = ? AND used = ?", promo.ID, false).
				Updates(map[string]any{"used": true, "updated_at": time.Now()})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errutil.Conflict("promo already used")
			}
		}

		activation := &AdminPromoActivation{
			ID:        s.node.Generate().String(),
			PromoID:   promo.ID,
			UserID:    userID,
			CreatedAt: time.Now(),
		}
		if err := s.activations.WithTrx(tx).Create(ctx, activation); err != nil {
			return err
		}

		switch promo.Kind {
		case KindBalance:
			return s.accounts.Credit(ctx, tx, userID, promo.Amount)
		case KindDays:
			sub, isNew, err := s.subs.GrantDays(ctx, tx, userID, promo.Days)
			if err != nil {
				return err
			}
			grantedSub = sub
			created = isNew
			return nil
		default:
			return errutil.UnprocessableEntity("unknown promo kind")
		}
	})
	if err != nil {
		if errutil.HasStatus(err, errutil.StatusConflict) {
			return nil, err
		}
		if again, ferr := s.activations.FindOne(ctx, &AdminPromoActivation{PromoID: promo.ID, UserID: userID}); ferr == nil && again != nil {
			return nil, errutil.Conflict("promo already activated")
		}
		return nil, err
	}

	zap.L().Info("promo activated",
		zap.String("promo_id", promo.ID),
		zap.String("user_id", userID),
		zap.String("kind", string(promo.Kind)))

	// Panel calls stay outside the transaction. A grant onto an existing
	// bounded subscription moved end_date in the ledger, so the remote
	// panel expiry must move with it.
	if grantedSub != nil {
		if created {
			if err := s.subs.ProvisionGrant(ctx, userID, grantedSub); err != nil {
				zap.L().Warn("promo subscription provisioning failed",
					zap.String("subscription_id", grantedSub.ID),
					zap.Error(err))
			}
		} else if grantedSub.EndDate != nil {
			s.subs.ProvisionExtension(ctx, userID, grantedSub, promo.Days)
		}
	}

	return &ActivationResult{Promo: promo, Subscription: grantedSub, Created: created}, nil
}
