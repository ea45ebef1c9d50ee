// Package payment defines the contract the flows need from a payment rail.
package payment

import (
	"context"

	"github.com/orris-inc/keygate/internal/domain/catalog"
	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
)

// Status is the provider-reported state of a charge.
type Status string

const (
	StatusPaid     Status = "paid"
	StatusPending  Status = "pending"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

type ChargeRequest struct {
	ActorID     int64
	Amount      catalog.Money
	Description string
	// IdempotencyKey makes repeated creation attempts return the same charge where the rail supports it.
	IdempotencyKey string
}

type Charge struct {
	Reference string
	PayURL    string
	Amount    catalog.Money
}

// Verifier is one payment rail. All reads are idempotent and safe to repeat.
type Verifier interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error)
	Status(ctx context.Context, reference string) (Status, error)
	// Verify re-reads the charge and checks that it was paid in full.
	Verify(ctx context.Context, reference string, expected catalog.Money) (bool, error)
}

// Router selects the verifier for a payment method.
type Router map[vo.PaymentMethod]Verifier

func (r Router) Verifier(method vo.PaymentMethod) (Verifier, bool) {
	v, ok := r[method]
	return v, ok
}

// Methods returns the configured rails in display order.
func (r Router) Methods() []vo.PaymentMethod {
	var out []vo.PaymentMethod
	for _, m := range vo.PaymentMethods() {
		if _, ok := r[m]; ok {
			out = append(out, m)
		}
	}
	return out
}
