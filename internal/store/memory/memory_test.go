package memory

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"pasteleria/backend/internal/domain"
	"pasteleria/backend/internal/store"
)

func seedFlour(t *testing.T, s *Store, stockBase float64) {
	t.Helper()
	_, err := s.CreateIngredient(context.Background(), domain.Ingredient{
		ID: "flour", Name: "Flour", StockBase: stockBase,
		DisplayUnit: domain.UnitKilogram, CostPerDisplayUnit: 700,
	})
	if err != nil {
		t.Fatalf("seed flour: %v", err)
	}
}

func TestApplyUsageClampsAtZero(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedFlour(t, s, 100)

	if err := s.ApplyUsage(ctx, store.Usage{"flour": 250}); err != nil {
		t.Fatalf("apply usage: %v", err)
	}
	ing, err := s.GetIngredient(ctx, "flour")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ing.StockBase != 0 {
		t.Fatalf("expected clamp at zero, got %.2f", ing.StockBase)
	}
}

func TestApplyUsageUnknownIngredientLeavesLedgerUntouched(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedFlour(t, s, 1000)

	err := s.ApplyUsage(ctx, store.Usage{"flour": 100, "ghost": 5})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	ing, _ := s.GetIngredient(ctx, "flour")
	if ing.StockBase != 1000 {
		t.Fatalf("partial apply leaked: %.2f", ing.StockBase)
	}
}

func TestUpdateOrderRollsBackOnBadNewUsage(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedFlour(t, s, 1000)

	order := domain.Order{
		ID: "ord-1", CustomerName: "Juan", DeliveryDate: "2026-09-20",
		Status: domain.StatusPending,
		Items:  []domain.OrderItem{{ProductID: "p1", Quantity: 1, UnitPriceSnapshot: 100}},
	}
	if _, err := s.CreateOrder(ctx, order, store.Usage{"flour": 400}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	_, err := s.UpdateOrder(ctx, order, store.Usage{"flour": 400}, store.Usage{"ghost": 1})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	ing, _ := s.GetIngredient(ctx, "flour")
	if ing.StockBase != 600 {
		t.Fatalf("expected failed swap to leave 600, got %.2f", ing.StockBase)
	}
}

func TestAdjustIngredientStockComputesWeightedAverage(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedFlour(t, s, 10000) // 10kg at 700

	price := int64(950)
	ing, err := s.AdjustIngredientStock(ctx, "flour", 20000, &price)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	// (10*700 + 10*950) / 20 = 825.
	if ing.CostPerDisplayUnit != 825 {
		t.Fatalf("expected 825, got %d", ing.CostPerDisplayUnit)
	}
}

func TestAdjustIngredientStockDecreaseKeepsCost(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedFlour(t, s, 10000)

	price := int64(950)
	ing, err := s.AdjustIngredientStock(ctx, "flour", 5000, &price)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if ing.CostPerDisplayUnit != 700 {
		t.Fatalf("decrease must not reprice, got %d", ing.CostPerDisplayUnit)
	}
	if math.Abs(ing.StockBase-5000) > 1e-9 {
		t.Fatalf("expected 5000, got %.2f", ing.StockBase)
	}
}

func TestCloseAccountingOnlySweepsPaidThroughCutoff(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedFlour(t, s, 1000)

	orders := []domain.Order{
		{ID: "o-paid-early", DeliveryDate: "2026-08-10", Status: domain.StatusPaid},
		{ID: "o-paid-late", DeliveryDate: "2026-09-10", Status: domain.StatusPaid},
		{ID: "o-open", DeliveryDate: "2026-08-10", Status: domain.StatusDelivered},
	}
	for _, o := range orders {
		o.Items = []domain.OrderItem{{ProductID: "p", Quantity: 1}}
		o.CreatedAt = time.Now().UTC()
		if _, err := s.CreateOrder(ctx, o, nil); err != nil {
			t.Fatalf("create %s: %v", o.ID, err)
		}
	}

	closed, err := s.CloseAccounting(ctx, "2026-08-31")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed != 1 {
		t.Fatalf("expected 1 closed, got %d", closed)
	}

	got, _ := s.GetOrder(ctx, "o-paid-early")
	if !got.AccountingClosed {
		t.Fatalf("expected o-paid-early closed")
	}
	got, _ = s.GetOrder(ctx, "o-paid-late")
	if got.AccountingClosed {
		t.Fatalf("o-paid-late is past the cutoff")
	}
	got, _ = s.GetOrder(ctx, "o-open")
	if got.AccountingClosed {
		t.Fatalf("o-open is not paid")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	doc, err := s.ExportSnapshot(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	fresh := New()
	if err := fresh.ImportSnapshot(ctx, *doc); err != nil {
		t.Fatalf("import: %v", err)
	}

	ingredients, err := fresh.ListIngredients(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ingredients) != len(doc.Ingredients) {
		t.Fatalf("expected %d ingredients, got %d", len(doc.Ingredients), len(ingredients))
	}

	p, err := fresh.GetProduct(ctx, "prod-milhojas")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if len(p.Recipe) != 3 {
		t.Fatalf("expected 3 recipe lines, got %d", len(p.Recipe))
	}
}
