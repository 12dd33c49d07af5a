package account

import (
	"context"
	"time"

	"vpnstore/pkg/errutil"
	"vpnstore/pkg/repository"
	"vpnstore/pkg/util"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const promoCodeLength = 8

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	users repository.Repository[User]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		users: repository.ProvideStore[User](p.DB),
	}
}

// GetOrCreate resolves the user for an external Telegram identity, creating
// the row on first contact. The unique index on telegram_id is the source of
// truth: when two first-contact requests race, the loser's insert fails and
// it falls back to fetching the winner's row, so one identity can never own
// two wallet rows.
func (s *Service) GetOrCreate(ctx context.Context, telegramID, chatID int64) (*User, error) {
	existing, err := s.users.FindOne(ctx, &User{TelegramID: telegramID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	user := &User{
		ID:         s.node.Generate().String(),
		TelegramID: telegramID,
		ChatID:     chatID,
		Balance:    0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		// Lost the first-contact race; the row exists now.
		winner, ferr := s.users.FindOne(ctx, &User{TelegramID: telegramID})
		if ferr == nil && winner != nil {
			return winner, nil
		}
		zap.L().Error("failed to create user", zap.Int64("telegram_id", telegramID), zap.Error(err))
		return nil, err
	}

	zap.L().Info("user created", zap.String("user_id", user.ID), zap.Int64("telegram_id", telegramID))
	return user, nil
}

func (s *Service) Get(ctx context.Context, userID string) (*User, error) {
	user, err := s.users.FindOne(ctx, &User{ID: userID})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errutil.NotFound("user not found")
	}
	return user, nil
}

func (s *Service) GetByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	user, err := s.users.FindOne(ctx, &User{TelegramID: telegramID})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errutil.NotFound("user not found")
	}
	return user, nil
}

func (s *Service) GetByPromoCode(ctx context.Context, code string) (*User, error) {
	if code == "" {
		return nil, errutil.NotFound("user not found")
	}
	user, err := s.users.FindOne(ctx, &User{PromoCode: &code})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errutil.NotFound("user not found")
	}
	return user, nil
}

func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.Balance, nil
}

// EnsurePromoCode lazily assigns the user's referral code. Generation is
// collision-retried against the unique index; a concurrent assignment by
// another request is treated as success.
func (s *Service) EnsurePromoCode(ctx context.Context, userID string) (string, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.PromoCode != nil {
		return *user.PromoCode, nil
	}

	for attempt := 0; attempt < 5; attempt++ {
		code, err := util.GenerateCode(promoCodeLength)
		if err != nil {
			return "", err
		}

		res := s.db.WithContext(ctx).Model(&User{}).
			Where("id = ? AND promo_code IS NULL", userID).
			Updates(map[string]any{"promo_code": code, "updated_at": time.Now()})
		if res.Error != nil {
			// Collision on the unique index; roll a new code.
			continue
		}
		if res.RowsAffected == 0 {
			// Someone else assigned a code between the read and the write.
			current, err := s.Get(ctx, userID)
			if err != nil {
				return "", err
			}
			if current.PromoCode != nil {
				return *current.PromoCode, nil
			}
			continue
		}
		return code, nil
	}

	return "", errutil.Internal("failed to assign promo code")
}

// Credit increments the wallet inside the caller's transaction. Callers own
// the idempotency guard; this helper only moves the money.
func (s *Service) Credit(ctx context.Context, tx *gorm.DB, userID string, amount int64) error {
	if amount <= 0 {
		return errutil.BadRequest("credit amount must be positive")
	}
	res := tx.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.NotFound("user not found")
	}
	return nil
}

// Debit conditionally decrements the wallet inside the caller's transaction.
// The balance predicate in the WHERE clause is what prevents double-spend
// under concurrent purchases; a false return means insufficient funds.
func (s *Service) Debit(ctx context.Context, tx *gorm.DB, userID string, amount int64) (bool, error) {
	if amount <= 0 {
		return false, errutil.BadRequest("debit amount must be positive")
	}
	res := tx.WithContext(ctx).Model(&User{}).
		Where("id = ? AND balance >= ?", userID, amount).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
