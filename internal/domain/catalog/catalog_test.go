package catalog

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
)

func TestDefault(t *testing.T) {
	c := Default()

	p, ok := c.Plan("3_months")
	require.True(t, ok)
	assert.Equal(t, 90*24*time.Hour, p.Duration)

	price, ok := p.Price(vo.PaymentMethodCrypto)
	require.True(t, ok)
	assert.Equal(t, "6.00 USDT", price.String())

	card, _ := p.Price(vo.PaymentMethodCard)
	assert.Equal(t, "450.00 RUB", card.String())

	pkg, ok := c.Package("standard")
	require.True(t, ok)
	assert.Equal(t, []string{"germany", "amsterdam"}, pkg.Regions)

	_, ok = c.Plan("6_months")
	assert.False(t, ok)
	assert.Equal(t, "6_months", c.PlanName("6_months"))
	assert.Len(t, c.Plans(), 3)
}

func TestRegionName(t *testing.T) {
	assert.Equal(t, "Germany", RegionName("germany"))
	assert.Equal(t, "New York", RegionName("new_york"))
}

func TestLoad(t *testing.T) {
	doc := `
plans:
  - id: trial
    name: Week
    days: 7
    prices:
      - {method: crypto, amount: "0.50", currency: USDT}
packages:
  - id: eu
    name: Europe
    regions: [germany, finland]
`
	c, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	p, ok := c.Plan("trial")
	require.True(t, ok)
	assert.Equal(t, 7*24*time.Hour, p.Duration)
	price, _ := p.Price(vo.PaymentMethodCrypto)
	assert.Equal(t, "0.50 USDT", price.String())
	_, ok = p.Price(vo.PaymentMethodCard)
	assert.False(t, ok)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown field", "plans: []\nextra: 1\n"},
		{"no plans", "plans: []\npackages: [{id: a, name: A, regions: [x]}]\n"},
		{"bad amount", "plans: [{id: a, name: A, days: 1, prices: [{method: crypto, amount: abc, currency: USDT}]}]\npackages: [{id: a, name: A, regions: [x]}]\n"},
		{"unknown method", "plans: [{id: a, name: A, days: 1, prices: [{method: paypal, amount: '1', currency: USD}]}]\npackages: [{id: a, name: A, regions: [x]}]\n"},
		{"zero days", "plans: [{id: a, name: A, days: 0, prices: [{method: crypto, amount: '1', currency: USDT}]}]\npackages: [{id: a, name: A, regions: [x]}]\n"},
		{"empty package", "plans: [{id: a, name: A, days: 1, prices: [{method: crypto, amount: '1', currency: USDT}]}]\npackages: [{id: a, name: A, regions: []}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_EmptyPathIsDefault(t *testing.T) {
	c, err := LoadFile("")
	require.NoError(t, err)
	assert.Len(t, c.Packages(), 2)
}
