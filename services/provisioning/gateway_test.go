package provisioning

import (
	"context"
	"testing"
	"time"

	"vpnstore/pkg/errutil"

	"github.com/stretchr/testify/require"
)

type stubPanel struct {
	name       string
	configured bool
	url        string
	createErr  error
	extendErr  error
}

func (p *stubPanel) Name() string     { return p.name }
func (p *stubPanel) Configured() bool { return p.configured }

func (p *stubPanel) CreateAccount(ctx context.Context, accountName string, expiresAt time.Time) (string, error) {
	if p.createErr != nil {
		return "", p.createErr
	}
	return p.url, nil
}

func (p *stubPanel) ExtendAccount(ctx context.Context, accountName string, days int) error {
	return p.extendErr
}

func TestCreateOnBothPanels_IsolatesFailure(t *testing.T) {
	g := NewGateway(
		&stubPanel{name: "panel1", configured: true, url: "https://a/sub/1"},
		&stubPanel{name: "panel2", configured: true, createErr: errutil.BadGateway("down")},
	)

	result := g.CreateOnBothPanels(context.Background(), "acc", time.Now())
	require.NotNil(t, result.URL1)
	require.Equal(t, "https://a/sub/1", *result.URL1)
	require.Nil(t, result.URL2)
	require.True(t, result.Degraded(g.Panel1Configured(), g.Panel2Configured()))
}

func TestCreateOnBothPanels_UnconfiguredIsNotDegraded(t *testing.T) {
	g := NewGateway(
		&stubPanel{name: "panel1", configured: true, url: "https://a/sub/1"},
		&stubPanel{name: "panel2", configured: false},
	)

	result := g.CreateOnBothPanels(context.Background(), "acc", time.Now())
	require.NotNil(t, result.URL1)
	require.Nil(t, result.URL2)
	require.False(t, result.Degraded(g.Panel1Configured(), g.Panel2Configured()))
}

func TestExtendOnBothPanels_PartialSuccess(t *testing.T) {
	g := NewGateway(
		&stubPanel{name: "panel1", configured: true},
		&stubPanel{name: "panel2", configured: true, extendErr: errutil.BadGateway("down")},
	)

	result := g.ExtendOnBothPanels(context.Background(), "acc", 30)
	require.True(t, result.Panel1)
	require.False(t, result.Panel2)
}
