package provisioning

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ProvisionResult carries whichever subscription URLs the panels produced.
// Either pointer may be nil; partial results are stored as-is and the
// purchase proceeds with at least one working URL.
type ProvisionResult struct {
	URL1 *string
	URL2 *string
}

// Degraded reports whether a configured panel failed to produce a URL.
func (r ProvisionResult) Degraded(panel1, panel2 bool) bool {
	return (panel1 && r.URL1 == nil) || (panel2 && r.URL2 == nil)
}

// ExtendResult carries per-panel success so the caller can log, not fail,
// a partial extension.
type ExtendResult struct {
	Panel1 bool
	Panel2 bool
}

type Gateway struct {
	panel1 Panel
	panel2 Panel
}

func NewGateway(panel1, panel2 Panel) *Gateway {
	return &Gateway{panel1: panel1, panel2: panel2}
}

func (g *Gateway) Panel1Configured() bool { return g.panel1.Configured() }
func (g *Gateway) Panel2Configured() bool { return g.panel2.Configured() }

// AccountName derives the remote account identifier from stable inputs only,
// so a retried provisioning call lands on the same remote account.
func AccountName(telegramID int64, planKey, subscriptionID string) string {
	return fmt.Sprintf("%d_%s_%s", telegramID, planKey, subscriptionID)
}

// CreateOnBothPanels provisions the account on each configured panel
// independently. One panel's failure never prevents the other's attempt or
// result; an unconfigured panel is skipped, not an error.
func (g *Gateway) CreateOnBothPanels(ctx context.Context, accountName string, expiresAt time.Time) ProvisionResult {
	var result ProvisionResult

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		result.URL1 = g.createOne(gctx, g.panel1, accountName, expiresAt)
		return nil
	})
	grp.Go(func() error {
		result.URL2 = g.createOne(gctx, g.panel2, accountName, expiresAt)
		return nil
	})
	_ = grp.Wait()

	return result
}

func (g *Gateway) createOne(ctx context.Context, panel Panel, accountName string, expiresAt time.Time) *string {
	if !panel.Configured() {
		return nil
	}
	url, err := panel.CreateAccount(ctx, accountName, expiresAt)
	if err != nil {
		zap.L().Warn("panel create failed",
			zap.String("panel", panel.Name()),
			zap.String("account", accountName),
			zap.Error(err))
		return nil
	}
	return &url
}

// ExtendOnBothPanels extends the existing account on each configured panel
// with the same isolation discipline as create.
func (g *Gateway) ExtendOnBothPanels(ctx context.Context, accountName string, days int) ExtendResult {
	var result ExtendResult

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		result.Panel1 = g.extendOne(gctx, g.panel1, accountName, days)
		return nil
	})
	grp.Go(func() error {
		result.Panel2 = g.extendOne(gctx, g.panel2, accountName, days)
		return nil
	})
	_ = grp.Wait()

	return result
}

func (g *Gateway) extendOne(ctx context.Context, panel Panel, accountName string, days int) bool {
	if !panel.Configured() {
		return false
	}
	if err := panel.ExtendAccount(ctx, accountName, days); err != nil {
		zap.L().Warn("panel extend failed",
			zap.String("panel", panel.Name()),
			zap.String("account", accountName),
			zap.Error(err))
		return false
	}
	return true
}
