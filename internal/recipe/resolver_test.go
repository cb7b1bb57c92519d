package recipe

import (
	"context"
	"errors"
	"testing"

	"pasteleria/backend/internal/domain"
	"pasteleria/backend/internal/store"
)

type fakeCatalog struct {
	ingredients map[string]domain.Ingredient
	products    map[string]domain.Product
}

func (c *fakeCatalog) GetIngredient(_ context.Context, id string) (*domain.Ingredient, error) {
	ing, ok := c.ingredients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &ing, nil
}

func (c *fakeCatalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func newCatalog() *fakeCatalog {
	return &fakeCatalog{
		ingredients: map[string]domain.Ingredient{
			"flour":  {ID: "flour", Name: "Harina", StockBase: 32000, DisplayUnit: domain.UnitKilogram, CostPerDisplayUnit: 700},
			"sugar":  {ID: "sugar", Name: "Azucar", StockBase: 18000, DisplayUnit: domain.UnitKilogram, CostPerDisplayUnit: 860},
			"eggs":   {ID: "eggs", Name: "Huevos", StockBase: 59, DisplayUnit: domain.UnitCount, CostPerDisplayUnit: 216},
			"cream":  {ID: "cream", Name: "Crema", StockBase: 6000, DisplayUnit: domain.UnitLiter, CostPerDisplayUnit: 3690},
			"butter": {ID: "butter", Name: "Mantequilla", StockBase: 23000, DisplayUnit: domain.UnitKilogram, CostPerDisplayUnit: 7600},
		},
		products: map[string]domain.Product{},
	}
}

func TestResolveFlatRecipe(t *testing.T) {
	cat := newCatalog()
	cat.products["cake"] = domain.Product{
		ID: "cake", Name: "Torta", Price: 35000,
		Recipe: []domain.RecipeItem{
			{ComponentID: "flour", ComponentType: domain.ComponentIngredient, Quantity: 0.5, Unit: domain.UnitKilogram},
			{ComponentID: "eggs", ComponentType: domain.ComponentIngredient, Quantity: 4, Unit: domain.UnitCount},
		},
	}

	usage, err := ResolveUsage(context.Background(), cat, "cake", 3)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if usage["flour"] != 1500 {
		t.Fatalf("flour usage = %v g, want 1500", usage["flour"])
	}
	if usage["eggs"] != 12 {
		t.Fatalf("egg usage = %v, want 12", usage["eggs"])
	}
}

func TestResolveNestedSubProduct(t *testing.T) {
	cat := newCatalog()
	cat.products["base"] = domain.Product{
		ID: "base", Name: "Bizcocho base", IsIntermediate: true,
		Recipe: []domain.RecipeItem{
			{ComponentID: "flour", ComponentType: domain.ComponentIngredient, Quantity: 100, Unit: domain.UnitGram},
		},
	}
	cat.products["cake"] = domain.Product{
		ID: "cake", Name: "Torta", Price: 35000,
		Recipe: []domain.RecipeItem{
			{ComponentID: "base", ComponentType: domain.ComponentProduct, Quantity: 1, Unit: domain.UnitCount},
			{ComponentID: "sugar", ComponentType: domain.ComponentIngredient, Quantity: 50, Unit: domain.UnitGram},
		},
	}

	usage, err := ResolveUsage(context.Background(), cat, "cake", 3)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if usage["flour"] != 300 {
		t.Fatalf("flour via sub-product = %v g, want 300", usage["flour"])
	}
	if usage["sugar"] != 150 {
		t.Fatalf("direct sugar = %v g, want 150", usage["sugar"])
	}
}

func TestResolveHalfBatchSubProduct(t *testing.T) {
	cat := newCatalog()
	cat.products["filling"] = domain.Product{
		ID: "filling", IsIntermediate: true,
		Recipe: []domain.RecipeItem{
			{ComponentID: "cream", ComponentType: domain.ComponentIngredient, Quantity: 1, Unit: domain.UnitLiter},
		},
	}
	cat.products["cake"] = domain.Product{
		ID: "cake",
		Recipe: []domain.RecipeItem{
			{ComponentID: "filling", ComponentType: domain.ComponentProduct, Quantity: 0.5},
		},
	}

	usage, err := ResolveUsage(context.Background(), cat, "cake", 1)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if usage["cream"] != 500 {
		t.Fatalf("half batch cream = %v ml, want 500", usage["cream"])
	}
}

func TestResolveDirectCycle(t *testing.T) {
	cat := newCatalog()
	cat.products["a"] = domain.Product{
		ID: "a",
		Recipe: []domain.RecipeItem{
			{ComponentID: "a", ComponentType: domain.ComponentProduct, Quantity: 1},
		},
	}

	if _, err := ResolveUsage(context.Background(), cat, "a", 1); !errors.Is(err, ErrCyclicRecipe) {
		t.Fatalf("expected ErrCyclicRecipe, got %v", err)
	}
}

func TestResolveIndirectCycle(t *testing.T) {
	cat := newCatalog()
	cat.products["a"] = domain.Product{
		ID:     "a",
		Recipe: []domain.RecipeItem{{ComponentID: "b", ComponentType: domain.ComponentProduct, Quantity: 1}},
	}
	cat.products["b"] = domain.Product{
		ID:     "b",
		Recipe: []domain.RecipeItem{{ComponentID: "a", ComponentType: domain.ComponentProduct, Quantity: 1}},
	}

	if _, err := ResolveUsage(context.Background(), cat, "a", 1); !errors.Is(err, ErrCyclicRecipe) {
		t.Fatalf("expected ErrCyclicRecipe, got %v", err)
	}
	if _, err := UnitCost(context.Background(), cat, "a"); !errors.Is(err, ErrCyclicRecipe) {
		t.Fatalf("expected ErrCyclicRecipe from UnitCost, got %v", err)
	}
}

func TestResolveMissingComponent(t *testing.T) {
	cat := newCatalog()
	cat.products["cake"] = domain.Product{
		ID: "cake",
		Recipe: []domain.RecipeItem{
			{ComponentID: "flour", ComponentType: domain.ComponentIngredient, Quantity: 500, Unit: domain.UnitGram},
			{ComponentID: "ghost", ComponentType: domain.ComponentIngredient, Quantity: 1, Unit: domain.UnitCount},
		},
	}

	usage, err := ResolveUsage(context.Background(), cat, "cake", 1)
	if !errors.Is(err, ErrMissingComponent) {
		t.Fatalf("expected ErrMissingComponent, got %v", err)
	}
	if usage != nil {
		t.Fatalf("expected no partial usage map on error, got %v", usage)
	}
}

func TestResolveRejectsWeightedSubProduct(t *testing.T) {
	cat := newCatalog()
	cat.products["base"] = domain.Product{ID: "base", IsIntermediate: true}
	cat.products["cake"] = domain.Product{
		ID: "cake",
		Recipe: []domain.RecipeItem{
			{ComponentID: "base", ComponentType: domain.ComponentProduct, Quantity: 300, Unit: domain.UnitGram},
		},
	}

	if _, err := ResolveUsage(context.Background(), cat, "cake", 1); !errors.Is(err, ErrSubProductUnit) {
		t.Fatalf("expected ErrSubProductUnit, got %v", err)
	}
}

func TestResolveOrderUsageMergesLineItems(t *testing.T) {
	cat := newCatalog()
	cat.products["cake"] = domain.Product{
		ID:     "cake",
		Recipe: []domain.RecipeItem{{ComponentID: "flour", ComponentType: domain.ComponentIngredient, Quantity: 500, Unit: domain.UnitGram}},
	}
	cat.products["croissants"] = domain.Product{
		ID:     "croissants",
		Recipe: []domain.RecipeItem{{ComponentID: "flour", ComponentType: domain.ComponentIngredient, Quantity: 600, Unit: domain.UnitGram}},
	}

	usage, err := ResolveOrderUsage(context.Background(), cat, []domain.OrderItem{
		{ProductID: "cake", Quantity: 1},
		{ProductID: "croissants", Quantity: 2},
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if usage["flour"] != 1700 {
		t.Fatalf("merged flour usage = %v g, want 1700", usage["flour"])
	}
}

func TestUnitCostFlat(t *testing.T) {
	cat := newCatalog()
	cat.products["cake"] = domain.Product{
		ID: "cake", Price: 35000,
		Recipe: []domain.RecipeItem{
			{ComponentID: "flour", ComponentType: domain.ComponentIngredient, Quantity: 500, Unit: domain.UnitGram},
			{ComponentID: "eggs", ComponentType: domain.ComponentIngredient, Quantity: 4, Unit: domain.UnitCount},
		},
	}

	// 0.5 kg * 700 + 4 u * 216 = 350 + 864 = 1214
	cost, err := UnitCost(context.Background(), cat, "cake")
	if err != nil {
		t.Fatalf("unit cost failed: %v", err)
	}
	if cost != 1214 {
		t.Fatalf("unit cost = %d, want 1214", cost)
	}
}

func TestUnitCostRecursive(t *testing.T) {
	cat := newCatalog()
	cat.products["base"] = domain.Product{
		ID: "base", IsIntermediate: true,
		Recipe: []domain.RecipeItem{
			{ComponentID: "butter", ComponentType: domain.ComponentIngredient, Quantity: 250, Unit: domain.UnitGram},
		},
	}
	cat.products["cake"] = domain.Product{
		ID: "cake",
		Recipe: []domain.RecipeItem{
			{ComponentID: "base", ComponentType: domain.ComponentProduct, Quantity: 2, Unit: domain.UnitCount},
		},
	}

	// base = 0.25 kg * 7600 = 1900; cake = 2 * 1900 = 3800
	cost, err := UnitCost(context.Background(), cat, "cake")
	if err != nil {
		t.Fatalf("unit cost failed: %v", err)
	}
	if cost != 3800 {
		t.Fatalf("unit cost = %d, want 3800", cost)
	}
}

func TestUnitCostCrossFamilyFails(t *testing.T) {
	cat := newCatalog()
	// Cream is priced per liter; a recipe line in grams cannot be priced.
	cat.products["cake"] = domain.Product{
		ID: "cake",
		Recipe: []domain.RecipeItem{
			{ComponentID: "cream", ComponentType: domain.ComponentIngredient, Quantity: 200, Unit: domain.UnitGram},
		},
	}

	if _, err := UnitCost(context.Background(), cat, "cake"); err == nil {
		t.Fatalf("expected cross-family unit cost to fail")
	}
}

func TestWeightedAverageCost(t *testing.T) {
	// 10 kg at 100 plus 5 kg at 160 -> 120.
	if got := WeightedAverageCost(10, 100, 5, 160); got != 120 {
		t.Fatalf("weighted average = %d, want 120", got)
	}
	// Zero resulting stock keeps the old cost.
	if got := WeightedAverageCost(0, 250, 0, 999); got != 250 {
		t.Fatalf("zero-stock average = %d, want 250", got)
	}
	// Rounding happens after the formula.
	if got := WeightedAverageCost(3, 100, 1, 101); got != 100 {
		t.Fatalf("rounded average = %d, want 100", got)
	}
}
