package payment

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	apppayment "github.com/orris-inc/keygate/internal/application/payment"
	"github.com/orris-inc/keygate/internal/domain/catalog"
)

// MockVerifier accepts every charge it created. For local development only.
type MockVerifier struct {
	prefix string
	next   atomic.Int64
}

func NewMockVerifier(prefix string) *MockVerifier {
	return &MockVerifier{prefix: prefix}
}

func (v *MockVerifier) CreateCharge(_ context.Context, req apppayment.ChargeRequest) (apppayment.Charge, error) {
	ref := fmt.Sprintf("%s%d", v.prefix, v.next.Add(1))
	return apppayment.Charge{Reference: ref, PayURL: "https://example.invalid/pay/" + ref, Amount: req.Amount}, nil
}

func (v *MockVerifier) Status(_ context.Context, reference string) (apppayment.Status, error) {
	if !strings.HasPrefix(reference, v.prefix) {
		return apppayment.StatusNotFound, nil
	}
	return apppayment.StatusPaid, nil
}

func (v *MockVerifier) Verify(ctx context.Context, reference string, _ catalog.Money) (bool, error) {
	s, err := v.Status(ctx, reference)
	return s == apppayment.StatusPaid, err
}
