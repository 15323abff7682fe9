package calc

import (
	_ "embed"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed pricing.yaml
var pricingYAML []byte

type pricingTable struct {
	DefaultPrice float64             `yaml:"default_price"`
	Prices       map[string]float64  `yaml:"prices"`
	UnitFactors  map[string]float64  `yaml:"unit_factors"`
	Categories   map[string][]string `yaml:"categories"`
}

var (
	pricingOnce sync.Once
	pricing     pricingTable
	// price keys sorted longest-first so "chicken breast" wins over "chicken"
	// during substring matching
	priceKeys    []string
	categoryKeys []string
)

func loadPricing() {
	pricingOnce.Do(func() {
		if err := yaml.Unmarshal(pricingYAML, &pricing); err != nil {
			// The table is embedded; a parse failure is a build defect.
			panic("calc: invalid embedded pricing.yaml: " + err.Error())
		}
		for k := range pricing.Prices {
			priceKeys = append(priceKeys, k)
		}
		sort.Slice(priceKeys, func(i, j int) bool {
			if len(priceKeys[i]) != len(priceKeys[j]) {
				return len(priceKeys[i]) > len(priceKeys[j])
			}
			return priceKeys[i] < priceKeys[j]
		})
		for k := range pricing.Categories {
			categoryKeys = append(categoryKeys, k)
		}
		sort.Strings(categoryKeys)
	})
}

// EstimateCost prices one consolidated quantity: exact name match, then
// substring match against known keys, then a flat default. Unit mismatches
// apply a fixed conversion factor, defaulting to 1 for unknown units.
func EstimateCost(name string, quantity float64, unit string) float64 {
	loadPricing()
	if quantity < 0 {
		quantity = 0
	}
	needle := strings.ToLower(strings.TrimSpace(name))

	price, ok := pricing.Prices[needle]
	if !ok {
		for _, key := range priceKeys {
			if strings.Contains(needle, key) || strings.Contains(key, needle) {
				price = pricing.Prices[key]
				ok = true
				break
			}
		}
	}
	if !ok {
		price = pricing.DefaultPrice
	}

	factor := 1.0
	if f, found := pricing.UnitFactors[strings.ToLower(strings.TrimSpace(unit))]; found {
		factor = f
	}
	return Round2(price * quantity * factor)
}

// Categorize buckets an item name into a store section by keyword match,
// defaulting to "other".
func Categorize(name string) string {
	loadPricing()
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return "other"
	}
	for _, section := range categoryKeys {
		for _, kw := range pricing.Categories[section] {
			if strings.Contains(needle, kw) {
				return section
			}
		}
	}
	return "other"
}
