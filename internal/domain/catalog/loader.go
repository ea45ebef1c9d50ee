package catalog

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
)

type fileCatalog struct {
	Plans []struct {
		ID     string `yaml:"id"`
		Name   string `yaml:"name"`
		Days   int    `yaml:"days"`
		Prices []struct {
			Method   string `yaml:"method"`
			Amount   string `yaml:"amount"`
			Currency string `yaml:"currency"`
		} `yaml:"prices"`
	} `yaml:"plans"`
	Packages []struct {
		ID      string   `yaml:"id"`
		Name    string   `yaml:"name"`
		Regions []string `yaml:"regions"`
	} `yaml:"packages"`
}

// Load parses a YAML catalog. Amounts are decimal strings, durations are whole days.
func Load(r io.Reader) (*Catalog, error) {
	var fc fileCatalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	plans := make([]Plan, 0, len(fc.Plans))
	for _, p := range fc.Plans {
		prices := make(map[vo.PaymentMethod]Money, len(p.Prices))
		for _, price := range p.Prices {
			amount, err := decimal.NewFromString(price.Amount)
			if err != nil {
				return nil, fmt.Errorf("plan %s: invalid %s amount %q: %w", p.ID, price.Method, price.Amount, err)
			}
			prices[vo.PaymentMethod(price.Method)] = Money{Amount: amount, Currency: price.Currency}
		}
		plans = append(plans, Plan{
			ID:       p.ID,
			Name:     p.Name,
			Duration: time.Duration(p.Days) * day,
			Prices:   prices,
		})
	}

	packages := make([]Package, 0, len(fc.Packages))
	for _, p := range fc.Packages {
		packages = append(packages, Package{ID: p.ID, Name: p.Name, Regions: p.Regions})
	}

	return New(plans, packages)
}

// LoadFile loads the catalog at path, or returns the built-in catalog when path is empty.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}
