package bot_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/keygate/internal/application/account"
	"github.com/orris-inc/keygate/internal/application/admin"
	"github.com/orris-inc/keygate/internal/application/conversation"
	"github.com/orris-inc/keygate/internal/application/expiration"
	"github.com/orris-inc/keygate/internal/application/messaging"
	"github.com/orris-inc/keygate/internal/application/payment"
	"github.com/orris-inc/keygate/internal/application/provisioning"
	"github.com/orris-inc/keygate/internal/application/testutil"
	"github.com/orris-inc/keygate/internal/domain/catalog"
	"github.com/orris-inc/keygate/internal/domain/entitlement"
	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
	"github.com/orris-inc/keygate/internal/infrastructure/ratelimit"
	"github.com/orris-inc/keygate/internal/infrastructure/telegram"
	"github.com/orris-inc/keygate/internal/interfaces/bot"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

const (
	alice   int64 = 501
	adminID int64 = 1
)

var now0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type sent struct {
	chatID int64
	reply  messaging.Reply
}

type fakeOutbound struct {
	mu      sync.Mutex
	sent    []sent
	answers map[string]string
	sendErr error
}

func (o *fakeOutbound) Send(_ context.Context, chatID int64, reply messaging.Reply) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sendErr != nil {
		return o.sendErr
	}
	o.sent = append(o.sent, sent{chatID: chatID, reply: reply})
	return nil
}

func (o *fakeOutbound) AnswerCallbackQuery(_ context.Context, id, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.answers == nil {
		o.answers = make(map[string]string)
	}
	o.answers[id] = text
	return nil
}

func (o *fakeOutbound) last(t *testing.T) messaging.Reply {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent)
	return o.sent[len(o.sent)-1].reply
}

func (o *fakeOutbound) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

type fakeEncoder struct{}

func (fakeEncoder) Encode(uri string) ([]byte, error) { return []byte("png:" + uri), nil }

type harness struct {
	dispatcher   *bot.Dispatcher
	out          *fakeOutbound
	clock        *testutil.FakeClock
	users        *testutil.MockUserRepository
	entitlements *testutil.MockEntitlementRepository
	resources    *testutil.MockResourceRepository
	crypto       *testutil.FakeVerifier
	states       *conversation.MemoryStateStore
	nextUpdate   int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		out:          &fakeOutbound{},
		clock:        testutil.NewFakeClock(now0),
		users:        testutil.NewMockUserRepository(),
		entitlements: testutil.NewMockEntitlementRepository(),
		resources:    testutil.NewMockResourceRepository(),
		crypto:       testutil.NewFakeVerifier("inv-"),
		states:       conversation.NewMemoryStateStore(time.Hour),
	}
	log := logger.NewNop()
	cat := catalog.Default()
	prov := provisioning.NewEngine(
		h.resources,
		h.users,
		provisioning.StaticRegistry{
			"germany":   testutil.NewFakeProvisioner("germany"),
			"amsterdam": testutil.NewFakeProvisioner("amsterdam"),
		},
		h.clock,
		log,
		2,
	)
	svc := bot.Services{
		Account: account.NewService(h.users, h.entitlements, h.resources, cat, h.clock, log),
		Flows: conversation.NewEngine(
			h.states,
			h.entitlements,
			prov,
			payment.Router{vo.PaymentMethodCrypto: h.crypto, vo.PaymentMethodCard: testutil.NewFakeVerifier("cs_")},
			cat,
			fakeEncoder{},
			h.clock,
			log,
		),
		Expiration: expiration.NewScheduler(
			h.entitlements,
			prov,
			&testutil.RecordingNotifier{},
			testutil.NewFakeDeferredRunner(),
			testutil.NewReminderSet(),
			cat,
			h.clock,
			log,
			expiration.Config{GracePeriod: time.Hour, ReminderDays: 3},
		),
		Admin: admin.NewDeletionFlow(h.entitlements, h.users, prov, cat, adminID, h.clock, log),
	}
	limiter := ratelimit.NewMemoryRateLimiter(ratelimit.DefaultPolicy(), h.clock)
	h.dispatcher = bot.NewDispatcher(svc, limiter, h.out, log)
	return h
}

func (h *harness) from(id int64) *telegram.User {
	return &telegram.User{ID: id, FirstName: "Alice", Username: "alice"}
}

func (h *harness) text(t *testing.T, actor int64, text string) error {
	t.Helper()
	h.nextUpdate++
	return h.dispatcher.HandleUpdate(context.Background(), &telegram.Update{
		UpdateID: h.nextUpdate,
		Message: &telegram.Message{
			MessageID: h.nextUpdate,
			From:      h.from(actor),
			Chat:      &telegram.Chat{ID: actor, Type: "private"},
			Text:      text,
		},
	})
}

// press simulates a button tap and returns the callback query id.
func (h *harness) press(t *testing.T, actor int64, data string) string {
	t.Helper()
	h.nextUpdate++
	id := fmt.Sprintf("cq-%d", h.nextUpdate)
	err := h.dispatcher.HandleUpdate(context.Background(), &telegram.Update{
		UpdateID: h.nextUpdate,
		CallbackQuery: &telegram.CallbackQuery{
			ID:      id,
			From:    h.from(actor),
			Message: &telegram.Message{Chat: &telegram.Chat{ID: actor}},
			Data:    data,
		},
	})
	require.NoError(t, err)
	return id
}

// wait moves past every cooldown.
func (h *harness) wait() {
	h.clock.Advance(15 * time.Second)
}

func buttonData(r messaging.Reply) []string {
	var out []string
	for _, row := range r.Buttons {
		for _, b := range row {
			if b.Data != "" {
				out = append(out, b.Data)
			}
		}
	}
	return out
}

func findButton(t *testing.T, r messaging.Reply, prefix string) string {
	t.Helper()
	for _, data := range buttonData(r) {
		if strings.HasPrefix(data, prefix) {
			return data
		}
	}
	t.Fatalf("no button with prefix %q in %v", prefix, buttonData(r))
	return ""
}

func TestStart_RegistersUserAndShowsMenu(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.text(t, alice, "/start"))

	reply := h.out.last(t)
	assert.Contains(t, reply.Text, "Welcome, @alice!")
	assert.ElementsMatch(t,
		[]string{account.SubscribeCallback, account.MySubscriptionsCallback, account.HelpCallback},
		buttonData(reply))

	u, err := h.users.GetByID(context.Background(), alice)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "@alice", u.DisplayName())
}

func TestUnrecognizedInput(t *testing.T) {
	tests := []struct {
		name string
		run  func(h *harness, t *testing.T)
	}{
		{"unknown command", func(h *harness, t *testing.T) { require.NoError(t, h.text(t, alice, "/teleport now")) }},
		{"plain text", func(h *harness, t *testing.T) { require.NoError(t, h.text(t, alice, "hello?")) }},
		{"unknown callback", func(h *harness, t *testing.T) { h.press(t, alice, "launch_rockets") }},
		{"malformed renew", func(h *harness, t *testing.T) { h.press(t, alice, "renew_abc") }},
		{"malformed admin", func(h *harness, t *testing.T) { h.press(t, alice, "admin_select_x") }},
		{"flow action without flow", func(h *harness, t *testing.T) { h.press(t, alice, "plan:") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.run(h, t)
			assert.Contains(t, h.out.last(t).Text, "did not understand")
		})
	}
}

func TestPurchaseThroughButtons(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.text(t, alice, "/subscribe"))
	flow := strings.Split(findButton(t, h.out.last(t), conversation.ActionPlan+":"), ":")[1]
	assert.Contains(t, buttonData(h.out.last(t)), "plan:"+flow+":1_month")

	h.wait()
	h.press(t, alice, "plan:"+flow+":1_month")
	assert.Contains(t, buttonData(h.out.last(t)), "pay:"+flow+":crypto")

	h.wait()
	h.press(t, alice, "pay:"+flow+":crypto")
	assert.Contains(t, buttonData(h.out.last(t)), "paid:"+flow)

	h.wait()
	h.press(t, alice, "paid:"+flow)
	assert.Contains(t, h.out.last(t).Text, "not confirmed")

	h.crypto.MarkPaid("inv-1", true)
	h.wait()
	h.press(t, alice, "paid:"+flow)
	assert.Contains(t, buttonData(h.out.last(t)), "pkg:"+flow+":standard")

	h.wait()
	h.press(t, alice, "pkg:"+flow+":standard")
	done := h.out.last(t)
	assert.Len(t, done.Attachments, 2)

	list, err := h.entitlements.ListByOwner(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, vo.StatusActive, list[0].Status())

	h.wait()
	require.NoError(t, h.text(t, alice, "/my_subscriptions"))
	assert.Contains(t, h.out.last(t).Text, "active until")
}

func TestCancelAndBackButtons(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.text(t, alice, "/subscribe"))
	flow := strings.Split(findButton(t, h.out.last(t), "plan:"), ":")[1]

	h.wait()
	h.press(t, alice, "plan:"+flow+":3_months")
	h.wait()
	h.press(t, alice, "back:"+flow)
	assert.Contains(t, buttonData(h.out.last(t)), "plan:"+flow+":3_months")

	h.wait()
	h.press(t, alice, "cancel:"+flow)
	assert.Contains(t, h.out.last(t).Text, "Cancelled")
	st, err := h.states.Get(context.Background(), alice)
	require.NoError(t, err)
	assert.Nil(t, st)

	h.wait()
	require.NoError(t, h.text(t, alice, "/cancel"))
	assert.Contains(t, h.out.last(t).Text, "nothing to cancel")
}

func TestRateLimit_DropsRepeatedActions(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.text(t, alice, "/subscribe"))
	require.NoError(t, h.text(t, alice, "/subscribe"))
	assert.Equal(t, 1, h.out.count(), "second /subscribe inside the cooldown is dropped")

	// other categories have their own cooldown
	require.NoError(t, h.text(t, alice, "/help"))
	assert.Equal(t, 2, h.out.count())

	first := h.press(t, alice, account.HelpCallback)
	second := h.press(t, alice, account.HelpCallback)
	assert.Equal(t, "", h.out.answers[first])
	assert.Contains(t, h.out.answers[second], "wait")
	assert.Equal(t, 3, h.out.count())

	h.wait()
	require.NoError(t, h.text(t, alice, "/subscribe"))
	assert.Equal(t, 4, h.out.count())
}

func TestRateLimit_SubscribeButtonSharesCommandCooldown(t *testing.T) {
	h := newHarness(t)

	first := h.press(t, alice, account.SubscribeCallback)
	assert.Equal(t, "", h.out.answers[first])
	assert.Equal(t, 1, h.out.count())

	// past the button cooldown, still inside the purchase one
	h.clock.Advance(3 * time.Second)
	second := h.press(t, alice, account.SubscribeCallback)
	assert.Contains(t, h.out.answers[second], "wait")
	require.NoError(t, h.text(t, alice, "/subscribe"))
	assert.Equal(t, 1, h.out.count(), "no second purchase flow inside the cooldown")

	h.press(t, alice, account.HelpCallback)
	assert.Equal(t, 2, h.out.count())
}

func TestAdminDelete_RefusedForOrdinaryUsers(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.text(t, alice, "/admin_delete"))
	assert.Contains(t, h.out.last(t).Text, "not allowed")

	h.wait()
	h.press(t, alice, "admin_confirm_1")
	assert.Contains(t, h.out.last(t).Text, "not allowed")
}

func TestAdminDelete_OpensListForAdmin(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.text(t, adminID, "/admin_delete@keygate_bot"))
	reply := h.out.last(t)
	assert.NotContains(t, reply.Text, "not allowed")

	h.wait()
	require.NoError(t, h.text(t, adminID, "/admin_delete #42"))
	assert.NotContains(t, h.out.last(t).Text, "not allowed")
}

func TestRenewAndCancelExpired_RequireOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ent, err := entitlement.NewEntitlement(alice+1, "1_month", vo.PaymentMethodCrypto, "inv-9", now0.Add(-40*24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, h.entitlements.Create(ctx, ent))
	_, err = h.entitlements.Mutate(ctx, ent.ID(), func(e *entitlement.Entitlement) error {
		return e.Activate("standard", 30*24*time.Hour, now0.Add(-40*24*time.Hour))
	})
	require.NoError(t, err)

	h.press(t, alice, expiration.RenewPayload(ent.ID()))
	assert.Contains(t, h.out.last(t).Text, "not found")

	h.wait()
	h.press(t, alice, expiration.CancelExpiredPayload(ent.ID()))
	assert.Contains(t, h.out.last(t).Text, "not found")

	got, err := h.entitlements.GetByID(ctx, ent.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusActive, got.Status(), "foreign actions change nothing")
}

func TestHandleUpdate_IgnoresBotsAndEmptyUpdates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.dispatcher.HandleUpdate(ctx, &telegram.Update{UpdateID: 1}))
	require.NoError(t, h.dispatcher.HandleUpdate(ctx, &telegram.Update{
		UpdateID: 2,
		Message:  &telegram.Message{From: &telegram.User{ID: 9, IsBot: true}, Chat: &telegram.Chat{ID: 9}, Text: "/start"},
	}))
	assert.Zero(t, h.out.count())
}

func TestHandleUpdate_ReturnsDeliveryErrors(t *testing.T) {
	h := newHarness(t)
	h.out.sendErr = errors.New("telegram down")

	err := h.text(t, alice, "/help")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram down")
}

func TestCommands_MenuOmitsAdmin(t *testing.T) {
	for _, c := range bot.Commands() {
		assert.NotEqual(t, "admin_delete", c.Command)
		assert.NotEmpty(t, c.Description)
	}
}
