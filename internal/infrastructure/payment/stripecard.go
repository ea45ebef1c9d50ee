package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"

	apppayment "github.com/orris-inc/keygate/internal/application/payment"
	"github.com/orris-inc/keygate/internal/domain/catalog"
	"github.com/orris-inc/keygate/internal/shared/config"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

// checkoutSessions is the slice of the Stripe API the card rail uses.
type checkoutSessions interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeSessions struct{}

func (stripeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.New(params)
}

func (stripeSessions) Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.Get(id, params)
}

// StripeCardVerifier charges cards through Stripe Checkout sessions in payment mode.
type StripeCardVerifier struct {
	sessions   checkoutSessions
	successURL string
	cancelURL  string
	logger     logger.Interface
}

func NewStripeCardVerifier(cfg config.StripeConfig, log logger.Interface) *StripeCardVerifier {
	stripe.Key = cfg.SecretKey
	return &StripeCardVerifier{
		sessions:   stripeSessions{},
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		logger:     log.Named("payment.stripe"),
	}
}

var _ apppayment.Verifier = (*StripeCardVerifier)(nil)

// minorUnits converts to the smallest currency unit. All supported currencies use two decimals.
func minorUnits(m catalog.Money) int64 {
	return m.Amount.Shift(2).Round(0).IntPart()
}

func (v *StripeCardVerifier) CreateCharge(ctx context.Context, req apppayment.ChargeRequest) (apppayment.Charge, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(v.successURL),
		CancelURL:         stripe.String(v.cancelURL),
		ClientReferenceID: stripe.String(strconv.FormatInt(req.ActorID, 10)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Amount.Currency)),
				UnitAmount: stripe.Int64(minorUnits(req.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.Context = ctx
	params.AddMetadata("actor_id", strconv.FormatInt(req.ActorID, 10))
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	s, err := v.sessions.New(params)
	if err != nil {
		return apppayment.Charge{}, fmt.Errorf("failed to create checkout session: %w", err)
	}

	v.logger.Infow("created checkout session", "session_id", s.ID, "actor_id", req.ActorID, "amount", req.Amount.String())
	return apppayment.Charge{Reference: s.ID, PayURL: s.URL, Amount: req.Amount}, nil
}

func (v *StripeCardVerifier) Status(ctx context.Context, reference string) (apppayment.Status, error) {
	s, err := v.get(ctx, reference)
	if err != nil {
		return apppayment.StatusError, err
	}
	switch {
	case s == nil:
		return apppayment.StatusNotFound, nil
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return apppayment.StatusPaid, nil
	case s.Status == stripe.CheckoutSessionStatusExpired:
		return apppayment.StatusNotFound, nil
	default:
		return apppayment.StatusPending, nil
	}
}

func (v *StripeCardVerifier) Verify(ctx context.Context, reference string, expected catalog.Money) (bool, error) {
	s, err := v.get(ctx, reference)
	if err != nil {
		return false, err
	}
	if s == nil || s.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return false, nil
	}
	if !strings.EqualFold(string(s.Currency), expected.Currency) {
		v.logger.Warnw("session paid in unexpected currency", "session_id", reference, "currency", s.Currency, "expected", expected.Currency)
		return false, nil
	}
	return s.AmountTotal >= minorUnits(expected), nil
}

func (v *StripeCardVerifier) get(ctx context.Context, reference string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := v.sessions.Get(reference, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkout session: %w", err)
	}
	return s, nil
}
