package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/datatypes"

	"github.com/feastline/feastline-backend/internal/clients/openai"
	"github.com/feastline/feastline-backend/internal/clients/spoonacular"
	"github.com/feastline/feastline-backend/internal/platform/dbctx"
	"github.com/feastline/feastline-backend/internal/platform/logger"
	"github.com/feastline/feastline-backend/internal/types"
)

// ---------------- fakes ----------------

type fakeGateway struct {
	mu      sync.Mutex
	calls   []string
	handler func(schemaName, user string) (map[string]any, error)
}

func (g *fakeGateway) GenerateText(ctx context.Context, system, user string) (*openai.Result, error) {
	return &openai.Result{Text: "ok"}, nil
}

func (g *fakeGateway) GenerateStructured(ctx context.Context, system, user, schemaName string, schema map[string]any) (*openai.Result, error) {
	g.mu.Lock()
	g.calls = append(g.calls, schemaName)
	g.mu.Unlock()
	m, err := g.handler(schemaName, user)
	if err != nil {
		return nil, err
	}
	return &openai.Result{Structured: m}, nil
}

func (g *fakeGateway) callCount(schemaName string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == schemaName {
			n++
		}
	}
	return n
}

type fakeCatalog struct {
	search    func(filters spoonacular.SearchFilters) (*spoonacular.SearchResult, error)
	getRecipe func(id int64) (*spoonacular.Recipe, error)
}

func (c *fakeCatalog) Search(ctx context.Context, filters spoonacular.SearchFilters) (*spoonacular.SearchResult, error) {
	return c.search(filters)
}

func (c *fakeCatalog) GetRecipe(ctx context.Context, id int64) (*spoonacular.Recipe, error) {
	if c.getRecipe != nil {
		return c.getRecipe(id)
	}
	return nil, errors.New("no detail available")
}

func (c *fakeCatalog) GetRecipes(ctx context.Context, ids []int64) ([]*spoonacular.Recipe, error) {
	out := make([]*spoonacular.Recipe, 0, len(ids))
	for _, id := range ids {
		r, err := c.GetRecipe(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// memStore backs in-memory implementations of every repo interface.
type memStore struct {
	mu         sync.Mutex
	plans      map[uuid.UUID]*types.MealPlan
	attendees  map[uuid.UUID][]*types.Attendee
	decisions  map[uuid.UUID][]*types.AgentDecision
	selections map[uuid.UUID][]*types.SelectedRecipe
	shopping   map[uuid.UUID][]*types.ShoppingItem
	budgets    map[uuid.UUID][]*types.BudgetAnalysis
}

func newMemStore() *memStore {
	return &memStore{
		plans:      make(map[uuid.UUID]*types.MealPlan),
		attendees:  make(map[uuid.UUID][]*types.Attendee),
		decisions:  make(map[uuid.UUID][]*types.AgentDecision),
		selections: make(map[uuid.UUID][]*types.SelectedRecipe),
		shopping:   make(map[uuid.UUID][]*types.ShoppingItem),
		budgets:    make(map[uuid.UUID][]*types.BudgetAnalysis),
	}
}

type memPlanRepo struct{ s *memStore }

func (r memPlanRepo) Create(dbc dbctx.Context, plan *types.MealPlan) (*types.MealPlan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	if plan.Status == "" {
		plan.Status = types.PlanStatusPlanning
	}
	cp := *plan
	r.s.plans[plan.ID] = &cp
	return plan, nil
}

func (r memPlanRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.MealPlan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.plans[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r memPlanRepo) GetWithChildren(dbc dbctx.Context, id uuid.UUID) (*types.MealPlan, error) {
	return r.GetByID(dbc, id)
}

func (r memPlanRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) (*types.MealPlan, error) {
	r.s.mu.Lock()
	p, ok := r.s.plans[id]
	if ok {
		p.Status = status
	}
	r.s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(dbc, id)
}

func (r memPlanRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.plans, id)
	return nil
}

type memAttendeeRepo struct{ s *memStore }

func (r memAttendeeRepo) CreateBatch(dbc dbctx.Context, attendees []*types.Attendee) ([]*types.Attendee, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range attendees {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		r.s.attendees[a.PlanID] = append(r.s.attendees[a.PlanID], a)
	}
	return attendees, nil
}

func (r memAttendeeRepo) GetByPlanID(dbc dbctx.Context, planID uuid.UUID) ([]*types.Attendee, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]*types.Attendee(nil), r.s.attendees[planID]...), nil
}

type memDecisionRepo struct{ s *memStore }

func (r memDecisionRepo) Create(dbc dbctx.Context, d *types.AgentDecision) (*types.AgentDecision, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now()
	r.s.decisions[d.PlanID] = append(r.s.decisions[d.PlanID], d)
	return d, nil
}

func (r memDecisionRepo) GetByPlanID(dbc dbctx.Context, planID uuid.UUID) ([]*types.AgentDecision, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]*types.AgentDecision(nil), r.s.decisions[planID]...), nil
}

type memSelectionRepo struct{ s *memStore }

func (r memSelectionRepo) Create(dbc dbctx.Context, sel *types.SelectedRecipe) (*types.SelectedRecipe, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sel.ID == uuid.Nil {
		sel.ID = uuid.New()
	}
	r.s.selections[sel.PlanID] = append(r.s.selections[sel.PlanID], sel)
	return sel, nil
}

func (r memSelectionRepo) GetByPlanID(dbc dbctx.Context, planID uuid.UUID) ([]*types.SelectedRecipe, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]*types.SelectedRecipe(nil), r.s.selections[planID]...), nil
}

func (r memSelectionRepo) DeleteByPlanID(dbc dbctx.Context, planID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.selections, planID)
	return nil
}

type memShoppingRepo struct{ s *memStore }

func (r memShoppingRepo) ReplaceForPlan(dbc dbctx.Context, planID uuid.UUID, items []*types.ShoppingItem) ([]*types.ShoppingItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, it := range items {
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		it.PlanID = planID
		if it.Priority == 0 {
			it.Priority = 3
		}
	}
	r.s.shopping[planID] = items
	return items, nil
}

func (r memShoppingRepo) GetByPlanID(dbc dbctx.Context, planID uuid.UUID) ([]*types.ShoppingItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]*types.ShoppingItem(nil), r.s.shopping[planID]...), nil
}

type memBudgetRepo struct{ s *memStore }

func (r memBudgetRepo) Create(dbc dbctx.Context, a *types.BudgetAnalysis) (*types.BudgetAnalysis, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	r.s.budgets[a.PlanID] = append(r.s.budgets[a.PlanID], a)
	return a, nil
}

func (r memBudgetRepo) GetLatestByPlanID(dbc dbctx.Context, planID uuid.UUID) (*types.BudgetAnalysis, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list := r.s.budgets[planID]
	if len(list) == 0 {
		return nil, nil
	}
	return list[len(list)-1], nil
}

// ---------------- scaffolding ----------------

func structured(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func jsonList(t *testing.T, items ...string) datatypes.JSON {
	t.Helper()
	raw, err := json.Marshal(items)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return datatypes.JSON(raw)
}

func testRecipes(n int) []*spoonacular.Recipe {
	out := make([]*spoonacular.Recipe, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, &spoonacular.Recipe{
			ID:             int64(100 + i),
			Title:          fmt.Sprintf("Test Dish %d", i),
			ReadyInMinutes: 25,
			Servings:       4,
			Ingredients: []spoonacular.Ingredient{
				{Name: fmt.Sprintf("ingredient %d", i), Amount: 2, Unit: "cup", Aisle: "Produce"},
			},
		})
	}
	return out
}

type testEnv struct {
	store   *memStore
	gateway *fakeGateway
	catalog *fakeCatalog
	engine  *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMemStore()
	gateway := &fakeGateway{}
	catalog := &fakeCatalog{
		search: func(filters spoonacular.SearchFilters) (*spoonacular.SearchResult, error) {
			recipes := testRecipes(6)
			return &spoonacular.SearchResult{Recipes: recipes, TotalResults: len(recipes)}, nil
		},
	}
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	engine := NewEngine(EngineDeps{
		Log:        log,
		Gateway:    gateway,
		Catalog:    catalog,
		Plans:      memPlanRepo{store},
		Attendees:  memAttendeeRepo{store},
		Decisions:  memDecisionRepo{store},
		Selections: memSelectionRepo{store},
		Shopping:   memShoppingRepo{store},
		Budgets:    memBudgetRepo{store},
		Pacer:      NopPacer{},
	})
	return &testEnv{store: store, gateway: gateway, catalog: catalog, engine: engine}
}

func (env *testEnv) seedPlan(t *testing.T, days int, budget *float64) *types.MealPlan {
	t.Helper()
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	plan := &types.MealPlan{
		Name:          "Cabin Weekend",
		AttendeeCount: 6,
		Budget:        budget,
		StartDate:     start,
		EndDate:       start.AddDate(0, 0, days-1),
		Status:        types.PlanStatusPlanning,
	}
	if _, err := (memPlanRepo{env.store}).Create(dbctx.New(context.Background()), plan); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return plan
}

func (env *testEnv) seedAttendee(t *testing.T, planID uuid.UUID, restrictions ...string) {
	t.Helper()
	a := &types.Attendee{
		PlanID:              planID,
		Name:                "Sam",
		DietaryRestrictions: jsonList(t, restrictions...),
		Severity:            types.SeverityModerate,
	}
	if _, err := (memAttendeeRepo{env.store}).CreateBatch(dbctx.New(context.Background()), []*types.Attendee{a}); err != nil {
		t.Fatalf("seed attendee: %v", err)
	}
}

// happyHandler answers every stage with a plausible result. The selection
// answer picks the first candidate id mentioned in the prompt.
func happyHandler(t *testing.T) func(schemaName, user string) (map[string]any, error) {
	return func(schemaName, user string) (map[string]any, error) {
		switch schemaName {
		case "dietary_analysis":
			return structured(t, DietaryResult{
				OverallComplexity:  ComplexityModerate,
				PrimaryConstraints: []string{"vegetarian", "dairy"},
				Reasoning:          "one vegetarian, one dairy intolerance",
				ConfidenceScore:    0.9,
			}), nil
		case "recipe_selection":
			id, name := firstCandidate(user)
			return structured(t, RecipeSelection{
				SelectedRecipeID:   id,
				RecipeName:         name,
				SelectionReasoning: "fits every constraint",
				EstimatedServings:  6,
				ConfidenceScore:    0.85,
			}), nil
		case "budget_optimization":
			return structured(t, BudgetRecommendation{
				TotalEstimatedCost:      42.50,
				BudgetStatus:            BudgetWithinBudget,
				CostSavingOpportunities: []string{"buy produce in bulk"},
				OptimizationReasoning:   "well within budget",
				ConfidenceScore:         0.8,
			}), nil
		default:
			return nil, fmt.Errorf("unexpected schema %q", schemaName)
		}
	}
}

// firstCandidate pulls the first "id N: \"...\"" pair out of a selection prompt.
func firstCandidate(user string) (int64, string) {
	for _, line := range strings.Split(user, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- id ") {
			continue
		}
		var id int64
		var name string
		if _, err := fmt.Sscanf(line, "- id %d: %q", &id, &name); err == nil {
			return id, name
		}
	}
	return 0, ""
}

func decisionTypes(t *testing.T, env *testEnv, planID uuid.UUID) []string {
	t.Helper()
	decisions, err := (memDecisionRepo{env.store}).GetByPlanID(dbctx.New(context.Background()), planID)
	if err != nil {
		t.Fatalf("decisions: %v", err)
	}
	out := make([]string, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, d.DecisionType)
	}
	return out
}

func hasDecision(list []string, want string) bool {
	for _, d := range list {
		if d == want {
			return true
		}
	}
	return false
}

// ---------------- tests ----------------

func TestEnumerateSlots(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	slots, err := EnumerateSlots(start, start.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("EnumerateSlots: %v", err)
	}
	if len(slots) != 9 {
		t.Fatalf("expected 9 slots for a 3-day range, got %d", len(slots))
	}
	want := []Slot{
		{types.MealTypeBreakfast, 1}, {types.MealTypeLunch, 1}, {types.MealTypeDinner, 1},
		{types.MealTypeBreakfast, 2}, {types.MealTypeLunch, 2}, {types.MealTypeDinner, 2},
		{types.MealTypeBreakfast, 3}, {types.MealTypeLunch, 3}, {types.MealTypeDinner, 3},
	}
	for i, s := range slots {
		if s != want[i] {
			t.Errorf("slot %d: got %v, want %v", i, s, want[i])
		}
	}

	if _, err := EnumerateSlots(start, start.Add(-time.Hour)); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for inverted range, got %v", err)
	}

	single, err := EnumerateSlots(start, start)
	if err != nil {
		t.Fatalf("EnumerateSlots single day: %v", err)
	}
	if len(single) != 3 {
		t.Errorf("expected 3 slots for a single day, got %d", len(single))
	}
}

func TestConstraintsFrom(t *testing.T) {
	analysis := &DietaryResult{
		PrimaryConstraints: []string{"Vegetarian", "dairy-free", "gluten", "low-sodium", "vegan"},
	}
	sc := ConstraintsFrom(analysis)
	if sc.Diet != "vegan,vegetarian" {
		t.Errorf("diet: got %q, want %q", sc.Diet, "vegan,vegetarian")
	}
	if len(sc.Intolerances) != 2 || sc.Intolerances[0] != "dairy" || sc.Intolerances[1] != "gluten" {
		t.Errorf("intolerances: got %v, want [dairy gluten]", sc.Intolerances)
	}
}

func TestQualityOf(t *testing.T) {
	sel := func(name string, conf float64) *types.SelectedRecipe {
		return &types.SelectedRecipe{RecipeName: name, Confidence: conf}
	}

	q := QualityOf([]*types.SelectedRecipe{
		sel("Pancakes", 0.9), sel("pancakes", 0.8), sel("Soup", 0.7),
	})
	if q.DistinctMeals != 2 {
		t.Errorf("distinct: got %d, want 2 (names compare case-insensitively)", q.DistinctMeals)
	}
	if q.VarietyScore != 0.67 {
		t.Errorf("variety: got %v, want 0.67", q.VarietyScore)
	}
	if q.AvgConfidence != 0.8 {
		t.Errorf("avg confidence: got %v, want 0.8", q.AvgConfidence)
	}

	empty := QualityOf(nil)
	if empty.VarietyScore != 0 || empty.AvgConfidence != 0 {
		t.Errorf("empty set should score zero, got %+v", empty)
	}
}

func TestOverrunRatio(t *testing.T) {
	budget := 100.0
	if got := OverrunRatio(120, &budget); got != 0.2 {
		t.Errorf("got %v, want 0.2", got)
	}
	if got := OverrunRatio(110, &budget); got != 0.1 {
		t.Errorf("got %v, want 0.1", got)
	}
	if got := OverrunRatio(120, nil); got != 0 {
		t.Errorf("nil budget: got %v, want 0", got)
	}
}

func TestRunCompletesSingleDayPlan(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.handler = happyHandler(t)
	plan := env.seedPlan(t, 1, nil)
	env.seedAttendee(t, plan.ID, "vegetarian")

	result, err := env.engine.Run(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != types.PlanStatusCompleted {
		t.Fatalf("status: got %s, want completed", result.Status)
	}

	dbc := dbctx.New(context.Background())
	stored, _ := (memPlanRepo{env.store}).GetByID(dbc, plan.ID)
	if stored.Status != types.PlanStatusCompleted {
		t.Errorf("persisted status: got %s, want completed", stored.Status)
	}

	selections, _ := (memSelectionRepo{env.store}).GetByPlanID(dbc, plan.ID)
	if len(selections) != 3 {
		t.Fatalf("selections: got %d, want 3", len(selections))
	}
	for _, s := range selections {
		if s.Servings != plan.AttendeeCount {
			t.Errorf("selection servings: got %d, want %d", s.Servings, plan.AttendeeCount)
		}
		var ingredients []map[string]any
		if err := json.Unmarshal(s.Ingredients, &ingredients); err != nil || len(ingredients) == 0 {
			t.Errorf("selection %s should carry scaled ingredients", s.MealType)
		}
	}

	items, _ := (memShoppingRepo{env.store}).GetByPlanID(dbc, plan.ID)
	if len(items) == 0 {
		t.Error("expected a consolidated shopping list")
	}
	analysis, _ := (memBudgetRepo{env.store}).GetLatestByPlanID(dbc, plan.ID)
	if analysis == nil || analysis.TotalCost != 42.50 {
		t.Errorf("budget analysis: got %+v, want total 42.50", analysis)
	}

	kinds := decisionTypes(t, env, plan.ID)
	for _, want := range []string{
		types.DecisionDietaryAnalysis,
		types.DecisionRecipeSelection,
		types.DecisionBudgetOptimization,
		types.DecisionWorkflowCompleted,
	} {
		if !hasDecision(kinds, want) {
			t.Errorf("missing decision %s in %v", want, kinds)
		}
	}
	if hasDecision(kinds, types.DecisionWorkflowFailed) {
		t.Errorf("unexpected failure decision in %v", kinds)
	}
}

func TestRefinementGate(t *testing.T) {
	cases := []struct {
		name       string
		complexity string
		confidence float64
		wantRefine bool
	}{
		{"very complex triggers", ComplexityVeryComplex, 0.95, true},
		{"low confidence triggers", ComplexityModerate, 0.5, true},
		{"confident moderate skips", ComplexityModerate, 0.9, false},
		{"boundary confidence skips", ComplexitySimple, 0.7, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			base := happyHandler(t)
			env.gateway.handler = func(schemaName, user string) (map[string]any, error) {
				switch schemaName {
				case "dietary_analysis":
					return structured(t, DietaryResult{
						OverallComplexity:  tc.complexity,
						PrimaryConstraints: []string{"vegan"},
						Reasoning:          "test",
						ConfidenceScore:    tc.confidence,
					}), nil
				case "dietary_refinement":
					return structured(t, RefinedDietaryResult{
						DietaryResult: DietaryResult{
							OverallComplexity:  ComplexityComplex,
							PrimaryConstraints: []string{"vegan"},
							Reasoning:          "refined",
							ConfidenceScore:    0.9,
						},
						ConstraintPriorities: []ConstraintPriority{
							{Constraint: "vegan", Severity: ConstraintCritical, Reasoning: "ethical requirement"},
						},
					}), nil
				default:
					return base(schemaName, user)
				}
			}
			plan := env.seedPlan(t, 1, nil)
			env.seedAttendee(t, plan.ID, "vegan")

			if _, err := env.engine.RunDietaryStage(context.Background(), plan.ID); err != nil {
				t.Fatalf("RunDietaryStage: %v", err)
			}
			got := env.gateway.callCount("dietary_refinement") > 0
			if got != tc.wantRefine {
				t.Errorf("refinement called = %v, want %v", got, tc.wantRefine)
			}
		})
	}
}

func TestRefinementFailureFallsBack(t *testing.T) {
	env := newTestEnv(t)
	base := happyHandler(t)
	env.gateway.handler = func(schemaName, user string) (map[string]any, error) {
		switch schemaName {
		case "dietary_analysis":
			return structured(t, DietaryResult{
				OverallComplexity:  ComplexityVeryComplex,
				PrimaryConstraints: []string{"vegan", "gluten"},
				Reasoning:          "many overlapping constraints",
				ConfidenceScore:    0.6,
			}), nil
		case "dietary_refinement":
			return nil, errors.New("gateway unavailable")
		default:
			return base(schemaName, user)
		}
	}
	plan := env.seedPlan(t, 1, nil)
	env.seedAttendee(t, plan.ID, "vegan")

	result, err := env.engine.RunDietaryStage(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("refinement failure must not fail the stage: %v", err)
	}
	if result.OverallComplexity != ComplexityVeryComplex {
		t.Errorf("expected fallback to the initial analysis, got %+v", result)
	}

	kinds := decisionTypes(t, env, plan.ID)
	if !hasDecision(kinds, types.DecisionDietaryAnalysis) {
		t.Errorf("initial analysis decision missing from %v", kinds)
	}
	if hasDecision(kinds, types.DecisionDietaryRefinement) {
		t.Errorf("failed refinement must not be recorded, got %v", kinds)
	}
}

func TestEmptyRosterFailsBeforeGateway(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.handler = happyHandler(t)
	plan := env.seedPlan(t, 1, nil)

	if _, err := env.engine.RunDietaryStage(context.Background(), plan.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for a plan with no attendees, got %v", err)
	}
	if n := env.gateway.callCount("dietary_analysis"); n != 0 {
		t.Errorf("gateway called %d times before the roster check, want 0", n)
	}
	if hasDecision(decisionTypes(t, env, plan.ID), types.DecisionDietaryAnalysis) {
		t.Error("no analysis decision may be recorded for an empty roster")
	}
}

func TestUnrestrictedGroupStillCallsGateway(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.handler = func(schemaName, user string) (map[string]any, error) {
		if schemaName != "dietary_analysis" {
			return nil, fmt.Errorf("unexpected schema %q", schemaName)
		}
		return structured(t, DietaryResult{
			OverallComplexity: ComplexitySimple,
			Reasoning:         "no restrictions declared by any attendee",
			ConfidenceScore:   0.95,
		}), nil
	}
	plan := env.seedPlan(t, 1, nil)
	env.seedAttendee(t, plan.ID)
	env.seedAttendee(t, plan.ID)

	result, err := env.engine.RunDietaryStage(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("RunDietaryStage: %v", err)
	}
	if result.OverallComplexity != ComplexitySimple {
		t.Errorf("unexpected analysis: %+v", result)
	}
	if n := env.gateway.callCount("dietary_analysis"); n != 1 {
		t.Errorf("gateway calls for an unrestricted roster: got %d, want 1", n)
	}
	if !hasDecision(decisionTypes(t, env, plan.ID), types.DecisionDietaryAnalysis) {
		t.Error("analysis decision missing")
	}
}

func TestSelectionRejectsForeignRecipe(t *testing.T) {
	env := newTestEnv(t)
	base := happyHandler(t)
	env.gateway.handler = func(schemaName, user string) (map[string]any, error) {
		if schemaName == "recipe_selection" {
			return structured(t, RecipeSelection{
				SelectedRecipeID:   9999,
				RecipeName:         "Invented Dish",
				SelectionReasoning: "hallucinated",
				ConfidenceScore:    0.9,
			}), nil
		}
		return base(schemaName, user)
	}
	plan := env.seedPlan(t, 1, nil)
	env.seedAttendee(t, plan.ID, "vegetarian")

	result, err := env.engine.Run(context.Background(), plan.ID)
	if !errors.Is(err, ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
	if result.Status != types.PlanStatusFailed {
		t.Errorf("run status: got %s, want failed", result.Status)
	}

	dbc := dbctx.New(context.Background())
	stored, _ := (memPlanRepo{env.store}).GetByID(dbc, plan.ID)
	if stored.Status != types.PlanStatusFailed {
		t.Errorf("persisted status: got %s, want failed", stored.Status)
	}
	kinds := decisionTypes(t, env, plan.ID)
	if !hasDecision(kinds, types.DecisionWorkflowFailed) {
		t.Errorf("failure decision missing from %v", kinds)
	}
	// The ledger up to the failure survives: the dietary decision stays.
	if !hasDecision(kinds, types.DecisionDietaryAnalysis) {
		t.Errorf("pre-failure decisions must be preserved, got %v", kinds)
	}
}

func TestFallbackSearchWhenFilteredComesBackEmpty(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.handler = happyHandler(t)
	var fallbackSeen bool
	env.catalog.search = func(filters spoonacular.SearchFilters) (*spoonacular.SearchResult, error) {
		if filters.Diet != "" || len(filters.Intolerances) > 0 {
			return &spoonacular.SearchResult{}, nil
		}
		fallbackSeen = true
		if filters.Number != fallbackSearchCap {
			t.Errorf("fallback cap: got %d, want %d", filters.Number, fallbackSearchCap)
		}
		if filters.MaxReadyTime != 0 {
			t.Errorf("fallback search must drop the ready-time ceiling, got %d", filters.MaxReadyTime)
		}
		recipes := testRecipes(3)
		return &spoonacular.SearchResult{Recipes: recipes, TotalResults: len(recipes)}, nil
	}
	plan := env.seedPlan(t, 1, nil)
	env.seedAttendee(t, plan.ID, "vegan")

	if _, err := env.engine.Run(context.Background(), plan.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !fallbackSeen {
		t.Error("expected the meal-type-only fallback search to run")
	}
}

func TestSelectionQualityShortfallRecorded(t *testing.T) {
	env := newTestEnv(t)
	base := happyHandler(t)
	// Every slot picks the same dish: variety 1/3 for a single day.
	env.gateway.handler = func(schemaName, user string) (map[string]any, error) {
		if schemaName == "recipe_selection" {
			return structured(t, RecipeSelection{
				SelectedRecipeID:   101,
				RecipeName:         "Test Dish 1",
				SelectionReasoning: "same again",
				ConfidenceScore:    0.95,
			}), nil
		}
		return base(schemaName, user)
	}
	plan := env.seedPlan(t, 1, nil)
	env.seedAttendee(t, plan.ID, "vegetarian")

	result, err := env.engine.Run(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("a quality shortfall must not fail the run: %v", err)
	}
	if result.Status != types.PlanStatusCompleted {
		t.Errorf("status: got %s, want completed", result.Status)
	}
	if !hasDecision(decisionTypes(t, env, plan.ID), types.DecisionSelectionQuality) {
		t.Error("expected a selection quality shortfall decision")
	}
}

func TestBudgetOverrunGate(t *testing.T) {
	run := func(t *testing.T, budget, actual float64) []string {
		env := newTestEnv(t)
		base := happyHandler(t)
		env.gateway.handler = func(schemaName, user string) (map[string]any, error) {
			if schemaName == "budget_optimization" {
				return structured(t, BudgetRecommendation{
					TotalEstimatedCost:    actual,
					BudgetStatus:          BudgetOverBudget,
					OptimizationReasoning: "costs ran high",
					ConfidenceScore:       0.8,
				}), nil
			}
			return base(schemaName, user)
		}
		plan := env.seedPlan(t, 1, &budget)
		env.seedAttendee(t, plan.ID, "vegetarian")
		if _, err := env.engine.Run(context.Background(), plan.ID); err != nil {
			t.Fatalf("Run: %v", err)
		}
		return decisionTypes(t, env, plan.ID)
	}

	if kinds := run(t, 100, 120); !hasDecision(kinds, types.DecisionBudgetOverrun) {
		t.Errorf("20%% overrun must be recorded, got %v", kinds)
	}
	if kinds := run(t, 100, 110); hasDecision(kinds, types.DecisionBudgetOverrun) {
		t.Errorf("10%% overrun is under the threshold, got %v", kinds)
	}
}

func TestSelectionStageRequiresAnalysis(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.handler = happyHandler(t)
	plan := env.seedPlan(t, 1, nil)

	if _, err := env.engine.RunSelectionStage(context.Background(), plan.ID); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error without a stored analysis, got %v", err)
	}
}

func TestRunRejectsUnknownAndProcessingPlans(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.handler = happyHandler(t)

	if _, err := env.engine.Run(context.Background(), uuid.New()); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown plan: expected validation error, got %v", err)
	}

	plan := env.seedPlan(t, 1, nil)
	dbc := dbctx.New(context.Background())
	if _, err := (memPlanRepo{env.store}).UpdateStatus(dbc, plan.ID, types.PlanStatusProcessing); err != nil {
		t.Fatalf("seed status: %v", err)
	}
	if _, err := env.engine.Run(context.Background(), plan.ID); !errors.Is(err, ErrValidation) {
		t.Errorf("processing plan: expected validation error, got %v", err)
	}
}

func TestShoppingItemsRoutedToStoreSections(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.handler = happyHandler(t)
	env.catalog.search = func(filters spoonacular.SearchFilters) (*spoonacular.SearchResult, error) {
		recipes := []*spoonacular.Recipe{{
			ID:             201,
			Title:          "Market Bowl",
			ReadyInMinutes: 20,
			Servings:       4,
			Ingredients: []spoonacular.Ingredient{
				{Name: "roma tomato", Amount: 2, Unit: "piece"},
				{Name: "chicken breast", Amount: 1, Unit: "pound"},
				{Name: "mystery powder", Amount: 1, Unit: "tsp"},
			},
		}}
		return &spoonacular.SearchResult{Recipes: recipes, TotalResults: 1}, nil
	}
	plan := env.seedPlan(t, 1, nil)
	env.seedAttendee(t, plan.ID, "vegetarian")

	if _, err := env.engine.Run(context.Background(), plan.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	items, _ := (memShoppingRepo{env.store}).GetByPlanID(dbctx.New(context.Background()), plan.ID)
	want := map[string]string{
		"roma tomato":    "produce",
		"chicken breast": "meat",
		"mystery powder": "other",
	}
	if len(items) != len(want) {
		t.Fatalf("items: got %d, want %d: %+v", len(items), len(want), items)
	}
	for _, it := range items {
		if it.Category != want[it.Name] {
			t.Errorf("item %q category: got %q, want %q", it.Name, it.Category, want[it.Name])
		}
	}
}

func TestRefinementReferencesOriginalAnalysis(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.handler = func(schemaName, user string) (map[string]any, error) {
		switch schemaName {
		case "dietary_analysis":
			return structured(t, DietaryResult{
				OverallComplexity:  ComplexityVeryComplex,
				PrimaryConstraints: []string{"vegan"},
				Reasoning:          "overlapping restrictions",
				ConfidenceScore:    0.9,
			}), nil
		case "dietary_refinement":
			return structured(t, RefinedDietaryResult{
				DietaryResult: DietaryResult{
					OverallComplexity:  ComplexityComplex,
					PrimaryConstraints: []string{"vegan"},
					Reasoning:          "refined",
					ConfidenceScore:    0.9,
				},
				ConstraintPriorities: []ConstraintPriority{
					{Constraint: "vegan", Severity: ConstraintCritical, Reasoning: "ethical requirement"},
				},
			}), nil
		default:
			return nil, fmt.Errorf("unexpected schema %q", schemaName)
		}
	}
	plan := env.seedPlan(t, 1, nil)
	env.seedAttendee(t, plan.ID, "vegan")

	if _, err := env.engine.RunDietaryStage(context.Background(), plan.ID); err != nil {
		t.Fatalf("RunDietaryStage: %v", err)
	}

	decisions, err := (memDecisionRepo{env.store}).GetByPlanID(dbctx.New(context.Background()), plan.ID)
	if err != nil {
		t.Fatalf("decisions: %v", err)
	}
	var analysisID string
	var refinement *types.AgentDecision
	for _, d := range decisions {
		switch d.DecisionType {
		case types.DecisionDietaryAnalysis:
			analysisID = d.ID.String()
		case types.DecisionDietaryRefinement:
			refinement = d
		}
	}
	if analysisID == "" || refinement == nil {
		t.Fatalf("expected analysis and refinement decisions, got %v", decisionTypes(t, env, plan.ID))
	}
	var payload struct {
		RefinesDecisionID string `json:"refines_decision_id"`
	}
	if err := json.Unmarshal(refinement.Payload, &payload); err != nil {
		t.Fatalf("refinement payload: %v", err)
	}
	if payload.RefinesDecisionID != analysisID {
		t.Errorf("refinement references %q, want the analysis decision %q", payload.RefinesDecisionID, analysisID)
	}
}

func TestRunEmitsStageSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	env := newTestEnv(t)
	env.gateway.handler = happyHandler(t)
	plan := env.seedPlan(t, 1, nil)
	env.seedAttendee(t, plan.ID, "vegetarian")

	if _, err := env.engine.Run(context.Background(), plan.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	seen := map[string]int{}
	for _, span := range recorder.Ended() {
		seen[span.Name()]++
	}
	for _, stage := range []string{StageDietary, StageSelection, StageConsolidation, StageBudget} {
		if seen[stage] != 1 {
			t.Errorf("stage %s: got %d ended spans, want 1", stage, seen[stage])
		}
	}
}
