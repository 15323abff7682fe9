// Package calc holds the deterministic arithmetic behind the meal-planning
// workflow: ingredient scaling, cross-recipe consolidation, cost estimation
// and store-section routing. Everything here is a pure function of its
// inputs so the orchestrator's reasoning stages stay the only source of
// non-determinism.
package calc

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Ingredient is one quantity of one thing, as it appears in a recipe.
type Ingredient struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
	Aisle  string  `json:"aisle,omitempty"`
}

// Round2 rounds to 2 decimal places; all persisted quantities and costs go
// through it.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Scale converts a recipe's ingredient quantities from its original serving
// count to the target. A missing or zero original serving count cannot be
// scaled and is a validation failure.
func Scale(ingredients []Ingredient, originalServings, targetServings int) ([]Ingredient, error) {
	if originalServings <= 0 {
		return nil, fmt.Errorf("cannot scale recipe with original serving count %d", originalServings)
	}
	if targetServings <= 0 {
		return nil, fmt.Errorf("cannot scale recipe to target serving count %d", targetServings)
	}
	factor := float64(targetServings) / float64(originalServings)
	out := make([]Ingredient, len(ingredients))
	for i, ing := range ingredients {
		out[i] = ing
		out[i].Amount = Round2(ing.Amount * factor)
	}
	return out, nil
}

// Source is one recipe's contribution to consolidation.
type Source struct {
	Name        string
	Ingredients []Ingredient
}

// Consolidated is one merged purchasable quantity. Store-section routing
// happens downstream via Categorize, not here.
type Consolidated struct {
	Name     string   `json:"name"`
	Quantity float64  `json:"quantity"`
	Unit     string   `json:"unit"`
	Sources  []string `json:"sources"`
}

// Consolidate merges quantities across sources by case-insensitive
// (name, unit) key, sums them, and returns entries sorted alphabetically by
// name. It is a pure function of the current source set: running it twice
// over unchanged inputs yields identical output.
func Consolidate(sources []Source) []Consolidated {
	type bucket struct {
		entry   Consolidated
		sources map[string]bool
	}
	buckets := map[string]*bucket{}
	for _, src := range sources {
		for _, ing := range src.Ingredients {
			name := strings.TrimSpace(ing.Name)
			if name == "" {
				continue
			}
			key := strings.ToLower(name) + "|" + strings.ToLower(strings.TrimSpace(ing.Unit))
			b, ok := buckets[key]
			if !ok {
				b = &bucket{
					entry: Consolidated{
						Name: strings.ToLower(name),
						Unit: strings.TrimSpace(ing.Unit),
					},
					sources: map[string]bool{},
				}
				buckets[key] = b
			}
			b.entry.Quantity += ing.Amount
			if src.Name != "" && !b.sources[src.Name] {
				b.sources[src.Name] = true
				b.entry.Sources = append(b.entry.Sources, src.Name)
			}
		}
	}

	out := make([]Consolidated, 0, len(buckets))
	for _, b := range buckets {
		b.entry.Quantity = Round2(b.entry.Quantity)
		out = append(out, b.entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Unit < out[j].Unit
	})
	return out
}
