// Package catalog holds the purchasable plans and the region packages.
package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
)

// Money is an amount in a rail-specific currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}

// Plan is a (duration, price) tier.
type Plan struct {
	ID       string
	Name     string
	Duration time.Duration
	Prices   map[vo.PaymentMethod]Money
}

// Price returns the plan price on the given rail.
func (p Plan) Price(method vo.PaymentMethod) (Money, bool) {
	m, ok := p.Prices[method]
	return m, ok
}

// Package is a named set of regions provisioned together.
type Package struct {
	ID      string
	Name    string
	Regions []string
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	plans    []Plan
	packages []Package
}

func New(plans []Plan, packages []Package) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("catalog needs at least one plan")
	}
	if len(packages) == 0 {
		return nil, fmt.Errorf("catalog needs at least one package")
	}

	seen := make(map[string]bool)
	for _, p := range plans {
		if p.ID == "" || seen[p.ID] {
			return nil, fmt.Errorf("plan ID %q is empty or duplicated", p.ID)
		}
		seen[p.ID] = true
		if p.Duration <= 0 {
			return nil, fmt.Errorf("plan %s has non-positive duration", p.ID)
		}
		if len(p.Prices) == 0 {
			return nil, fmt.Errorf("plan %s has no prices", p.ID)
		}
		for method, price := range p.Prices {
			if !method.IsValid() {
				return nil, fmt.Errorf("plan %s has price for unknown method %s", p.ID, method)
			}
			if !price.Amount.IsPositive() {
				return nil, fmt.Errorf("plan %s has non-positive %s price", p.ID, method)
			}
		}
	}

	seen = make(map[string]bool)
	for _, pkg := range packages {
		if pkg.ID == "" || seen[pkg.ID] {
			return nil, fmt.Errorf("package ID %q is empty or duplicated", pkg.ID)
		}
		seen[pkg.ID] = true
		if len(pkg.Regions) == 0 {
			return nil, fmt.Errorf("package %s has no regions", pkg.ID)
		}
	}

	return &Catalog{plans: plans, packages: packages}, nil
}

func (c *Catalog) Plans() []Plan {
	return append([]Plan(nil), c.plans...)
}

func (c *Catalog) Packages() []Package {
	return append([]Package(nil), c.packages...)
}

func (c *Catalog) Plan(id string) (Plan, bool) {
	for _, p := range c.plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

func (c *Catalog) Package(id string) (Package, bool) {
	for _, p := range c.packages {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}

// PlanName falls back to the ID for plans removed from the catalog.
func (c *Catalog) PlanName(id string) string {
	if p, ok := c.Plan(id); ok {
		return p.Name
	}
	return id
}

// RegionName turns a region code such as "new_york" into "New York".
func RegionName(code string) string {
	// a Caser is stateful, so one per call
	return cases.Title(language.English).String(strings.ReplaceAll(code, "_", " "))
}

const day = 24 * time.Hour

func usdt(s string) Money { return Money{Amount: decimal.RequireFromString(s), Currency: "USDT"} }
func rub(s string) Money  { return Money{Amount: decimal.RequireFromString(s), Currency: "RUB"} }

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(
		[]Plan{
			{ID: "1_month", Name: "1 Month", Duration: 30 * day, Prices: map[vo.PaymentMethod]Money{
				vo.PaymentMethodCrypto: usdt("2.00"), vo.PaymentMethodCard: rub("159"),
			}},
			{ID: "3_months", Name: "3 Months", Duration: 90 * day, Prices: map[vo.PaymentMethod]Money{
				vo.PaymentMethodCrypto: usdt("6.00"), vo.PaymentMethodCard: rub("450"),
			}},
			{ID: "12_months", Name: "12 Months", Duration: 365 * day, Prices: map[vo.PaymentMethod]Money{
				vo.PaymentMethodCrypto: usdt("23.00"), vo.PaymentMethodCard: rub("1850"),
			}},
		},
		[]Package{
			{ID: "standard", Name: "Standard", Regions: []string{"germany", "amsterdam"}},
			{ID: "extended", Name: "Extended", Regions: []string{"germany", "amsterdam"}},
		},
	)
	if err != nil {
		panic(fmt.Sprintf("catalog: invalid built-in catalog: %v", err))
	}
	return c
}
