package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orris-inc/keygate/internal/application/account"
	"github.com/orris-inc/keygate/internal/infrastructure/ratelimit"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		wantArg  string
		wantOK   bool
	}{
		{"/start", "start", "", true},
		{"/Start@keygate_bot", "start", "", true},
		{"/admin_delete  17 ", "admin_delete", "17", true},
		{"/", "", "", false},
		{"hello", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, arg, ok := parseCommand(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantName, name)
				assert.Equal(t, tt.wantArg, arg)
			}
		})
	}
}

func TestCallbackAction(t *testing.T) {
	assert.Equal(t, "plan", callbackAction("plan:abc123:1_month"))
	assert.Equal(t, "renew", callbackAction("renew_12"))
	assert.Equal(t, "admin_select", callbackAction("admin_select_3"))
	assert.Equal(t, "admin_abort", callbackAction("admin_abort"))
	assert.Equal(t, "help", callbackAction("help"))
}

func TestCallbackCategory(t *testing.T) {
	assert.Equal(t, ratelimit.CategorySubscribe, callbackCategory(account.SubscribeCallback))
	assert.Equal(t, ratelimit.CategoryCallback, callbackCategory(account.HelpCallback))
	assert.Equal(t, ratelimit.CategoryCallback, callbackCategory("renew_3"))
}

func TestIDSuffix(t *testing.T) {
	id, ok := idSuffix("cancel_expired_42", "cancel_expired_")
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)

	for _, bad := range []string{"cancel_expired_", "cancel_expired_0", "cancel_expired_x", "renew_5"} {
		_, ok := idSuffix(bad, "cancel_expired_")
		assert.False(t, ok, bad)
	}
}
