package valueobjects

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPendingPayment, StatusActive, true},
		{StatusPendingPayment, StatusExpired, false},
		{StatusPendingPayment, StatusCancelledByAdmin, true},
		{StatusActive, StatusActive, true},
		{StatusActive, StatusPendingPayment, false},
		{StatusActive, StatusExpired, true},
		{StatusExpired, StatusActive, true},
		{StatusExpired, StatusPendingPayment, false},
		{StatusCancelledByAdmin, StatusActive, false},
		{StatusCancelledByAdmin, StatusExpired, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatus_Validity(t *testing.T) {
	assert.True(t, StatusExpired.IsValid())
	assert.False(t, Status("trialing").IsValid())
	assert.True(t, StatusExpired.CanRenew())
	assert.False(t, StatusPendingPayment.CanRenew())
	assert.True(t, PaymentMethodCard.IsValid())
	assert.False(t, PaymentMethod("paypal").IsValid())
}
