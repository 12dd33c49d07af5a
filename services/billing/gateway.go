package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"vpnstore/pkg/config"
	"vpnstore/pkg/errutil"
)

// Invoice is the provider's answer to a create-invoice call.
type Invoice struct {
	BillID string `json:"bill_id"`
	PayURL string `json:"pay_url"`
}

// InvoiceClient is the outbound contract with the payment provider. The
// provider's wire format is opaque to the credit engine; only this adapter
// knows it.
type InvoiceClient interface {
	CreateInvoice(ctx context.Context, orderID string, amount int64) (*Invoice, error)
}

type httpInvoiceClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewInvoiceClient(cfg *config.Config) InvoiceClient {
	return &httpInvoiceClient{
		baseURL: cfg.Payment.BaseURL,
		apiKey:  cfg.Payment.APIKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type createInvoiceRequest struct {
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
}

func (c *httpInvoiceClient) CreateInvoice(ctx context.Context, orderID string, amount int64) (*Invoice, error) {
	if c.baseURL == "" {
		return nil, errutil.BadGateway("payment provider is not configured")
	}

	body, err := json.Marshal(createInvoiceRequest{OrderID: orderID, Amount: amount})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoices", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errutil.BadGateway("payment provider unreachable", errutil.WithErr(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errutil.BadGateway("payment provider response unreadable", errutil.WithErr(err))
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, errutil.BadGateway(fmt.Sprintf("payment provider returned %d", resp.StatusCode))
	}

	var invoice Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, errutil.BadGateway("payment provider response malformed", errutil.WithErr(err))
	}
	if invoice.PayURL == "" {
		return nil, errutil.BadGateway("payment provider returned no payment link")
	}

	return &invoice, nil
}
