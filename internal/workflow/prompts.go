package workflow

import (
	"fmt"
	"strings"

	"github.com/feastline/feastline-backend/internal/clients/spoonacular"
	"github.com/feastline/feastline-backend/internal/types"
)

const dietarySystemPrompt = `You are a dietary analysis specialist for group meal planning.
You study the combined dietary restrictions, intolerances, and preferences of a group
and produce a structured assessment of how hard the group is to cook for.
Be precise: only report cross-contamination risks that follow from the stated
restrictions, and keep your confidence honest.`

const refinementSystemPrompt = `You are a senior dietary specialist reviewing a colleague's
group dietary analysis that was flagged as highly complex or low confidence.
Refine the analysis: resolve conflicts between overlapping restrictions, rank every
constraint by severity (critical, important, preferred), and tighten the reasoning.
Critical means a safety issue such as an allergy; preferred means a taste preference.`

const selectionSystemPrompt = `You are a meal planning specialist choosing one recipe for a
single meal slot of a group plan. You are given the group's dietary analysis and a short
list of candidate recipes that already passed restriction filters. Pick exactly one
candidate by its id. Never invent a recipe that is not in the candidate list.`

const budgetSystemPrompt = `You are a grocery budget specialist. You are given a consolidated
shopping list with estimated costs and the group's budget if they set one. Assess whether
the plan fits the budget, surface the best savings opportunities, and rank the most
important items to buy first (priority 1 is most important, 5 least).`

func dietaryUserPrompt(plan *types.MealPlan, attendees []types.Attendee) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Meal plan %q for %d attendees, %s through %s.\n\n",
		plan.Name, plan.AttendeeCount,
		plan.StartDate.Format("2006-01-02"), plan.EndDate.Format("2006-01-02"))
	b.WriteString("Attendees:\n")
	for _, a := range attendees {
		fmt.Fprintf(&b, "- %s (severity: %s)\n", a.Name, a.Severity)
		if len(a.DietaryRestrictions) > 0 {
			fmt.Fprintf(&b, "  restrictions: %s\n", string(a.DietaryRestrictions))
		}
		if len(a.Preferences) > 0 {
			fmt.Fprintf(&b, "  preferences: %s\n", string(a.Preferences))
		}
	}
	b.WriteString("\nAnalyze the combined dietary picture for this group.")
	return b.String()
}

func refinementUserPrompt(first *DietaryResult) string {
	var b strings.Builder
	b.WriteString("Initial analysis to refine:\n")
	fmt.Fprintf(&b, "- overall complexity: %s (confidence %.2f)\n", first.OverallComplexity, first.ConfidenceScore)
	if len(first.PrimaryConstraints) > 0 {
		fmt.Fprintf(&b, "- primary constraints: %s\n", strings.Join(first.PrimaryConstraints, ", "))
	}
	if len(first.CrossContaminationRisks) > 0 {
		fmt.Fprintf(&b, "- cross-contamination risks: %s\n", strings.Join(first.CrossContaminationRisks, ", "))
	}
	if len(first.SpecialAccommodations) > 0 {
		fmt.Fprintf(&b, "- special accommodations: %s\n", strings.Join(first.SpecialAccommodations, ", "))
	}
	fmt.Fprintf(&b, "- reasoning: %s\n", first.Reasoning)
	b.WriteString("\nRefine this analysis and prioritize every constraint.")
	return b.String()
}

func selectionUserPrompt(slot Slot, plan *types.MealPlan, analysis *DietaryResult, candidates []spoonacular.Recipe) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Choose a %s recipe for day %d of a %d-person plan.\n\n",
		slot.MealType, slot.DayIndex, plan.AttendeeCount)
	fmt.Fprintf(&b, "Group dietary complexity: %s.\n", analysis.OverallComplexity)
	if len(analysis.PrimaryConstraints) > 0 {
		fmt.Fprintf(&b, "Constraints: %s.\n", strings.Join(analysis.PrimaryConstraints, ", "))
	}
	b.WriteString("\nCandidates:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id %d: %q, ready in %d min, serves %d\n",
			c.ID, c.Title, c.ReadyInMinutes, c.Servings)
	}
	b.WriteString("\nSelect exactly one candidate by id and explain the choice.")
	return b.String()
}

func budgetUserPrompt(plan *types.MealPlan, items []types.ShoppingItem, estimatedTotal float64) string {
	var b strings.Builder
	if plan.Budget != nil {
		fmt.Fprintf(&b, "The group set a budget of $%.2f.\n", *plan.Budget)
	} else {
		b.WriteString("The group did not set a budget.\n")
	}
	fmt.Fprintf(&b, "Estimated total from local pricing: $%.2f.\n\nShopping list:\n", estimatedTotal)
	for _, it := range items {
		fmt.Fprintf(&b, "- %s: %.2f %s (est. $%.2f, %s)\n",
			it.Name, it.Quantity, it.Unit, it.EstimatedCost, it.Category)
	}
	b.WriteString("\nAssess the budget fit and prioritize the list.")
	return b.String()
}
