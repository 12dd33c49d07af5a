package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"vpnstore/pkg/config"
	"vpnstore/pkg/errutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Panel is one remote VPN-account service. Implementations must make
// "already exists" on create a success and "not found" on extend a hard
// NotFound, because the two engines treat those outcomes differently.
type Panel interface {
	Name() string
	Configured() bool
	CreateAccount(ctx context.Context, accountName string, expiresAt time.Time) (string, error)
	ExtendAccount(ctx context.Context, accountName string, days int) error
}

// panelClient talks the 3x-ui style management API: cookie login, clients
// embedded as a JSON string inside inbound settings.
type panelClient struct {
	name string
	cfg  config.PanelConfig

	client *http.Client

	mu       sync.Mutex
	loggedIn bool
}

func NewPanel(name string, cfg config.PanelConfig) Panel {
	jar, _ := cookiejar.New(nil)
	return &panelClient{
		name: name,
		cfg:  cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}
}

func (p *panelClient) Name() string { return p.name }

func (p *panelClient) Configured() bool { return p.cfg.BaseURL != "" }

type apiResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

type clientConfig struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Enable     bool   `json:"enable"`
	SubID      string `json:"subId"`
	ExpiryTime int64  `json:"expiryTime"` // milliseconds epoch
}

type inboundSettings struct {
	Clients []clientConfig `json:"clients"`
}

type inbound struct {
	ID       int    `json:"id"`
	Settings string `json:"settings"`
}

func (p *panelClient) login(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loggedIn {
		return nil
	}

	body, _ := json.Marshal(map[string]string{
		"username": p.cfg.Username,
		"password": p.cfg.Password,
	})
	resp, err := p.post(ctx, "/login", body)
	if err != nil {
		return err
	}
	if !resp.Success {
		return errutil.Unauthorized(fmt.Sprintf("panel %s login rejected: %s", p.name, resp.Msg))
	}

	p.loggedIn = true
	zap.L().Info("panel login ok", zap.String("panel", p.name))
	return nil
}

// authedPost runs a request against a logged-in session. A response that
// signals an expired session drops the cached login and retries once, so a
// panel restart does not strand the client until our own restart.
func (p *panelClient) authedPost(ctx context.Context, path string, body []byte) (*apiResponse, error) {
	return p.authed(ctx, func() (*apiResponse, error) { return p.post(ctx, path, body) })
}

func (p *panelClient) authedGet(ctx context.Context, path string) (*apiResponse, error) {
	return p.authed(ctx, func() (*apiResponse, error) { return p.get(ctx, path) })
}

func (p *panelClient) authed(ctx context.Context, call func() (*apiResponse, error)) (*apiResponse, error) {
	if err := p.login(ctx); err != nil {
		return nil, err
	}
	resp, err := call()
	if err != nil || resp.Success || !isSessionExpiredMsg(resp.Msg) {
		return resp, err
	}

	p.mu.Lock()
	p.loggedIn = false
	p.mu.Unlock()
	zap.L().Warn("panel session expired, re-logging in", zap.String("panel", p.name))

	if err := p.login(ctx); err != nil {
		return nil, err
	}
	return call()
}

func (p *panelClient) post(ctx context.Context, path string, body []byte) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return p.do(req)
}

func (p *panelClient) get(ctx context.Context, path string) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return p.do(req)
}

func (p *panelClient) do(req *http.Request) (*apiResponse, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errutil.BadGateway(fmt.Sprintf("panel %s unreachable", p.name), errutil.WithErr(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errutil.BadGateway(fmt.Sprintf("panel %s response unreadable", p.name), errutil.WithErr(err))
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errutil.BadGateway(fmt.Sprintf("panel %s response malformed", p.name), errutil.WithErr(err))
	}
	return &out, nil
}

// CreateAccount provisions a client under the configured inbound and returns
// the published subscription URL. A duplicate account is success: the
// account name is deterministic, so a retry must reuse the existing client
// rather than minting a second one.
func (p *panelClient) CreateAccount(ctx context.Context, accountName string, expiresAt time.Time) (string, error) {
	// Zero expiry means an unbounded account on the panel side.
	var expiryMillis int64
	if !expiresAt.IsZero() {
		expiryMillis = expiresAt.UnixMilli()
	}

	subID := uuid.NewString()
	settings, _ := json.Marshal(inboundSettings{Clients: []clientConfig{{
		ID:         uuid.NewString(),
		Email:      accountName,
		Enable:     true,
		SubID:      subID,
		ExpiryTime: expiryMillis,
	}}})

	body, _ := json.Marshal(map[string]any{
		"id":       p.cfg.InboundID,
		"settings": string(settings),
	})

	resp, err := p.authedPost(ctx, "/panel/api/inbounds/addClient", body)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		if isDuplicateMsg(resp.Msg) {
			existing, err := p.findClient(ctx, accountName)
			if err != nil {
				return "", err
			}
			return p.subscriptionURL(existing.SubID)
		}
		return "", errutil.BadGateway(fmt.Sprintf("panel %s addClient failed: %s", p.name, resp.Msg))
	}

	return p.subscriptionURL(subID)
}

// ExtendAccount pushes the client's expiry forward by the given number of
// days, from the later of now or the current expiry.
func (p *panelClient) ExtendAccount(ctx context.Context, accountName string, days int) error {
	existing, err := p.findClient(ctx, accountName)
	if err != nil {
		return err
	}

	from := time.Now()
	if current := time.UnixMilli(existing.ExpiryTime); current.After(from) {
		from = current
	}
	existing.ExpiryTime = from.AddDate(0, 0, days).UnixMilli()

	settings, _ := json.Marshal(inboundSettings{Clients: []clientConfig{*existing}})
	body, _ := json.Marshal(map[string]any{
		"id":       p.cfg.InboundID,
		"settings": string(settings),
	})

	resp, err := p.authedPost(ctx, "/panel/api/inbounds/updateClient/"+existing.ID, body)
	if err != nil {
		return err
	}
	if !resp.Success {
		return errutil.BadGateway(fmt.Sprintf("panel %s updateClient failed: %s", p.name, resp.Msg))
	}
	return nil
}

// findClient loads the inbound and scans its embedded client list. Missing
// account means NotFound, which extend treats as a hard failure.
func (p *panelClient) findClient(ctx context.Context, accountName string) (*clientConfig, error) {
	resp, err := p.authedGet(ctx, fmt.Sprintf("/panel/api/inbounds/get/%d", p.cfg.InboundID))
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errutil.BadGateway(fmt.Sprintf("panel %s inbound fetch failed: %s", p.name, resp.Msg))
	}

	var ib inbound
	if err := json.Unmarshal(resp.Obj, &ib); err != nil {
		return nil, errutil.BadGateway(fmt.Sprintf("panel %s inbound payload malformed", p.name), errutil.WithErr(err))
	}

	var settings inboundSettings
	if err := json.Unmarshal([]byte(ib.Settings), &settings); err != nil {
		return nil, errutil.BadGateway(fmt.Sprintf("panel %s inbound settings malformed", p.name), errutil.WithErr(err))
	}

	for i := range settings.Clients {
		if settings.Clients[i].Email == accountName {
			return &settings.Clients[i], nil
		}
	}
	return nil, errutil.NotFound(fmt.Sprintf("panel %s has no account %s", p.name, accountName))
}

func (p *panelClient) subscriptionURL(subID string) (string, error) {
	raw := strings.TrimRight(p.cfg.BaseURL, "/") + "/sub/" + subID
	return RewriteSubscriptionURL(raw, p.cfg.PublicBase)
}

func isDuplicateMsg(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "duplicate") || strings.Contains(lower, "already exist")
}

func isSessionExpiredMsg(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "login") || strings.Contains(lower, "session")
}
