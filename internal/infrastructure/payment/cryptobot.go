// Package payment implements the payment rails: CryptoBot invoices for crypto and
// Stripe Checkout for cards.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apppayment "github.com/orris-inc/keygate/internal/application/payment"
	"github.com/orris-inc/keygate/internal/domain/catalog"
	"github.com/orris-inc/keygate/internal/shared/config"
	"github.com/orris-inc/keygate/internal/shared/constants"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

const (
	defaultCryptoBotURL  = "https://pay.crypt.bot/api"
	cryptoBotTokenHeader = "Crypto-Pay-API-Token"
	invoiceTTLSeconds    = 3600
)

// CryptoBotVerifier creates and reads Crypto Pay invoices.
type CryptoBotVerifier struct {
	baseURL    string
	token      string
	asset      string
	httpClient *http.Client
	logger     logger.Interface
}

func NewCryptoBotVerifier(cfg config.CryptoBotConfig, log logger.Interface) *CryptoBotVerifier {
	base := cfg.BaseURL
	if base == "" {
		base = defaultCryptoBotURL
	}
	asset := cfg.Asset
	if asset == "" {
		asset = "USDT"
	}
	return &CryptoBotVerifier{
		baseURL:    strings.TrimRight(base, "/"),
		token:      cfg.APIToken,
		asset:      asset,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     log.Named("payment.cryptobot"),
	}
}

var _ apppayment.Verifier = (*CryptoBotVerifier)(nil)

type cryptoInvoice struct {
	InvoiceID  int64  `json:"invoice_id"`
	Status     string `json:"status"`
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	PayURL     string `json:"pay_url"`
	BotPayURL  string `json:"bot_invoice_url"`
	PaidAmount string `json:"paid_amount,omitempty"`
}

type cryptoResponse[T any] struct {
	OK     bool `json:"ok"`
	Result T    `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Name string `json:"name"`
	} `json:"error,omitempty"`
}

func (v *CryptoBotVerifier) CreateCharge(ctx context.Context, req apppayment.ChargeRequest) (apppayment.Charge, error) {
	if !strings.EqualFold(req.Amount.Currency, v.asset) {
		return apppayment.Charge{}, fmt.Errorf("cryptobot charges in %s, got %s", v.asset, req.Amount.Currency)
	}
	body := map[string]any{
		"asset":       v.asset,
		"amount":      req.Amount.Amount.StringFixed(2),
		"description": req.Description,
		// echoed back on the invoice, for support lookups
		"payload":         req.IdempotencyKey,
		"expires_in":      invoiceTTLSeconds,
		"allow_comments":  false,
		"allow_anonymous": false,
	}

	var inv cryptoInvoice
	if err := v.call(ctx, http.MethodPost, "createInvoice", body, &inv); err != nil {
		return apppayment.Charge{}, err
	}
	payURL := inv.BotPayURL
	if payURL == "" {
		payURL = inv.PayURL
	}

	v.logger.Infow("created crypto invoice", "invoice_id", inv.InvoiceID, "actor_id", req.ActorID, "amount", req.Amount.String())
	return apppayment.Charge{
		Reference: strconv.FormatInt(inv.InvoiceID, 10),
		PayURL:    payURL,
		Amount:    req.Amount,
	}, nil
}

func (v *CryptoBotVerifier) Status(ctx context.Context, reference string) (apppayment.Status, error) {
	inv, err := v.invoice(ctx, reference)
	if err != nil {
		return apppayment.StatusError, err
	}
	if inv == nil {
		return apppayment.StatusNotFound, nil
	}
	switch inv.Status {
	case "paid":
		return apppayment.StatusPaid, nil
	case "active":
		return apppayment.StatusPending, nil
	default:
		// expired invoices can never be paid
		return apppayment.StatusNotFound, nil
	}
}

func (v *CryptoBotVerifier) Verify(ctx context.Context, reference string, expected catalog.Money) (bool, error) {
	inv, err := v.invoice(ctx, reference)
	if err != nil {
		return false, err
	}
	if inv == nil || inv.Status != "paid" {
		return false, nil
	}
	if !strings.EqualFold(inv.Asset, expected.Currency) {
		v.logger.Warnw("invoice paid in unexpected asset", "invoice_id", reference, "asset", inv.Asset, "expected", expected.Currency)
		return false, nil
	}
	amount, err := decimal.NewFromString(inv.Amount)
	if err != nil {
		return false, fmt.Errorf("invalid invoice amount %q: %w", inv.Amount, err)
	}
	return amount.GreaterThanOrEqual(expected.Amount), nil
}

func (v *CryptoBotVerifier) invoice(ctx context.Context, reference string) (*cryptoInvoice, error) {
	if _, err := strconv.ParseInt(reference, 10, 64); err != nil {
		return nil, nil
	}
	var page struct {
		Items []cryptoInvoice `json:"items"`
	}
	if err := v.call(ctx, http.MethodGet, "getInvoices?"+url.Values{"invoice_ids": {reference}}.Encode(), nil, &page); err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, nil
	}
	return &page.Items[0], nil
}

func (v *CryptoBotVerifier) call(ctx context.Context, method, path string, body map[string]any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+"/"+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(cryptoBotTokenHeader, v.token)
	if body != nil {
		req.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cryptobot request failed: %w", err)
	}
	defer resp.Body.Close()

	var result cryptoResponse[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode cryptobot response (HTTP %d): %w", resp.StatusCode, err)
	}
	if !result.OK {
		name := "unknown"
		if result.Error != nil {
			name = result.Error.Name
		}
		return fmt.Errorf("cryptobot API error (HTTP %d): %s", resp.StatusCode, name)
	}
	if err := json.Unmarshal(result.Result, out); err != nil {
		return fmt.Errorf("failed to decode cryptobot result: %w", err)
	}
	return nil
}
