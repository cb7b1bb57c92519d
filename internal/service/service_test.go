package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"pasteleria/backend/internal/cache"
	"pasteleria/backend/internal/domain"
	"pasteleria/backend/internal/store"
	"pasteleria/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), cache.NoopPlanCache{}, 5*time.Second)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func stockOf(t *testing.T, svc *Service, id string) float64 {
	t.Helper()
	ing, err := svc.GetIngredient(context.Background(), id)
	if err != nil {
		t.Fatalf("get ingredient %s: %v", id, err)
	}
	return ing.StockBase
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCreateOrderDebitsStockAtomically(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	flourBefore := stockOf(t, svc, "ing-harina")
	eggsBefore := stockOf(t, svc, "ing-huevos")

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Pedido mostrador",
		DeliveryDate: "2026-09-05",
		Items:        []domain.OrderItemRequest{{ProductID: "prod-torta-chocolate", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Status != domain.StatusPending {
		t.Fatalf("new order should be pending, got %s", order.Status)
	}
	if order.TotalPrice != 70000 {
		t.Fatalf("expected total 70000, got %d", order.TotalPrice)
	}

	// Torta recipe uses 500g flour and 4 eggs per unit.
	if got := stockOf(t, svc, "ing-harina"); !almostEqual(got, flourBefore-1000) {
		t.Fatalf("flour: expected %.1f, got %.1f", flourBefore-1000, got)
	}
	if got := stockOf(t, svc, "ing-huevos"); !almostEqual(got, eggsBefore-8) {
		t.Fatalf("eggs: expected %.1f, got %.1f", eggsBefore-8, got)
	}
}

func TestDeleteOrderRestoresStockExactly(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	before := map[string]float64{}
	for _, id := range []string{"ing-harina", "ing-azucar", "ing-huevos", "ing-manjar"} {
		before[id] = stockOf(t, svc, id)
	}

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Juan",
		DeliveryDate: "2026-09-05",
		Items:        []domain.OrderItemRequest{{ProductID: "prod-torta-chocolate", Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := svc.DeleteOrder(ctx, order.ID); err != nil {
		t.Fatalf("delete order: %v", err)
	}

	for id, want := range before {
		if got := stockOf(t, svc, id); !almostEqual(got, want) {
			t.Fatalf("%s: expected %.2f after create+delete, got %.2f", id, want, got)
		}
	}
	if _, err := svc.GetOrder(ctx, order.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted order to be gone, got %v", err)
	}
}

func TestUpdateOrderToSameItemsLeavesStockUnchanged(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Maria",
		DeliveryDate: "2026-09-06",
		Items:        []domain.OrderItemRequest{{ProductID: "prod-medialunas", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	flour := stockOf(t, svc, "ing-harina")
	butter := stockOf(t, svc, "ing-mantequilla")

	if _, err := svc.UpdateOrder(ctx, order.ID, domain.OrderUpdateRequest{
		Items: []domain.OrderItemRequest{{ProductID: "prod-medialunas", Quantity: 2}},
	}); err != nil {
		t.Fatalf("update order: %v", err)
	}

	if got := stockOf(t, svc, "ing-harina"); !almostEqual(got, flour) {
		t.Fatalf("flour moved on a no-change edit: %.2f vs %.2f", got, flour)
	}
	if got := stockOf(t, svc, "ing-mantequilla"); !almostEqual(got, butter) {
		t.Fatalf("butter moved on a no-change edit: %.2f vs %.2f", got, butter)
	}
}

func TestUpdateOrderSwapsStockFootprint(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Maria",
		DeliveryDate: "2026-09-06",
		Items:        []domain.OrderItemRequest{{ProductID: "prod-torta-chocolate", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	manjar := stockOf(t, svc, "ing-manjar")

	if _, err := svc.UpdateOrder(ctx, order.ID, domain.OrderUpdateRequest{
		Items: []domain.OrderItemRequest{{ProductID: "prod-medialunas", Quantity: 1}},
	}); err != nil {
		t.Fatalf("update order: %v", err)
	}

	// Manjar only appears in the torta recipe, so the swap credits it back.
	if got := stockOf(t, svc, "ing-manjar"); !almostEqual(got, manjar+200) {
		t.Fatalf("manjar: expected %.2f after swap, got %.2f", manjar+200, got)
	}

	updated, err := svc.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if updated.TotalPrice != 12000 {
		t.Fatalf("expected re-frozen total 12000, got %d", updated.TotalPrice)
	}
}

func TestStatusChangesNeverTouchStock(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Juan",
		DeliveryDate: "2026-09-07",
		Items:        []domain.OrderItemRequest{{ProductID: "prod-medialunas", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	flour := stockOf(t, svc, "ing-harina")

	// Walk the whole pipeline forward and one step back.
	for i := 0; i < len(domain.StatusPipeline); i++ {
		if _, err := svc.AdvanceOrderStatus(ctx, order.ID); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	if _, err := svc.RevertOrderStatus(ctx, order.ID); err != nil {
		t.Fatalf("revert: %v", err)
	}

	if got := stockOf(t, svc, "ing-harina"); !almostEqual(got, flour) {
		t.Fatalf("status changes moved stock: %.2f vs %.2f", got, flour)
	}
}

func TestAdvancePastPaidIsNoop(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Juan",
		DeliveryDate: "2026-09-07",
		Items:        []domain.OrderItemRequest{{ProductID: "prod-medialunas", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	var last domain.Order
	for i := 0; i < len(domain.StatusPipeline)+2; i++ {
		last, err = svc.AdvanceOrderStatus(ctx, order.ID)
		if err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	if last.Status != domain.StatusPaid {
		t.Fatalf("expected order to stay paid, got %s", last.Status)
	}
}

func TestRevertFromPendingIsNoop(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Juan",
		DeliveryDate: "2026-09-07",
		Items:        []domain.OrderItemRequest{{ProductID: "prod-medialunas", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	reverted, err := svc.RevertOrderStatus(ctx, order.ID)
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if reverted.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", reverted.Status)
	}
}

func TestStockDebitClampsAtZero(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	// Leave just one egg; the torta needs four per unit.
	if _, err := svc.AdjustStock(ctx, "ing-huevos", domain.StockAdjustRequest{NewQuantity: 1, Unit: domain.UnitCount}); err != nil {
		t.Fatalf("adjust stock: %v", err)
	}

	if _, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Juan",
		DeliveryDate: "2026-09-08",
		Items:        []domain.OrderItemRequest{{ProductID: "prod-torta-chocolate", Quantity: 1}},
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	if got := stockOf(t, svc, "ing-huevos"); got != 0 {
		t.Fatalf("expected eggs clamped at zero, got %.2f", got)
	}
}

func TestAdjustStockWithPurchaseUpdatesWeightedCost(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	// Seeded flour: 32kg at 700 per kg. Buy 8kg at 950 per kg:
	// (32*700 + 8*950) / 40 = 750.
	price := int64(950)
	ing, err := svc.AdjustStock(ctx, "ing-harina", domain.StockAdjustRequest{
		NewQuantity:   40,
		Unit:          domain.UnitKilogram,
		PurchasePrice: &price,
	})
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if ing.CostPerDisplayUnit != 750 {
		t.Fatalf("expected weighted cost 750, got %d", ing.CostPerDisplayUnit)
	}
	if !almostEqual(ing.StockBase, 40000) {
		t.Fatalf("expected 40000g, got %.2f", ing.StockBase)
	}
}

func TestAdjustStockWithoutPriceKeepsCost(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	ing, err := svc.AdjustStock(ctx, "ing-harina", domain.StockAdjustRequest{NewQuantity: 12, Unit: domain.UnitKilogram})
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if ing.CostPerDisplayUnit != 700 {
		t.Fatalf("correction should not move cost, got %d", ing.CostPerDisplayUnit)
	}
}

func TestAdjustStockRejectsWrongUnitFamily(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.AdjustStock(ctx, "ing-harina", domain.StockAdjustRequest{NewQuantity: 3, Unit: domain.UnitLiter})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIntermediateProductsAreNotOrderable(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Juan",
		DeliveryDate: "2026-09-08",
		Items:        []domain.OrderItemRequest{{ProductID: "prod-crema-pastelera", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNestedRecipeOrderExpandsSubProduct(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	creamBefore := stockOf(t, svc, "ing-crema")

	// Milhojas embeds one batch of crema pastelera (0.5L cream per batch).
	if _, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Juan",
		DeliveryDate: "2026-09-09",
		Items:        []domain.OrderItemRequest{{ProductID: "prod-milhojas", Quantity: 2}},
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	if got := stockOf(t, svc, "ing-crema"); !almostEqual(got, creamBefore-1000) {
		t.Fatalf("cream: expected %.2f, got %.2f", creamBefore-1000, got)
	}
}

func TestProductSaveRejectsRecipeCycle(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	// Make crema pastelera depend on milhojas, which already contains it.
	cycle := []domain.RecipeItem{
		{ComponentID: "prod-milhojas", ComponentType: domain.ComponentProduct, Quantity: 1},
	}
	_, err := svc.UpdateProduct(ctx, "prod-crema-pastelera", domain.ProductUpdateRequest{Recipe: &cycle})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for cycle, got %v", err)
	}
}

func TestProductSaveRejectsWeightedSubProductLine(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	recipe := []domain.RecipeItem{
		{ComponentID: "prod-crema-pastelera", ComponentType: domain.ComponentProduct, Quantity: 300, Unit: domain.UnitGram},
	}
	_, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:   "Torta rellena",
		Price:  20000,
		Recipe: recipe,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUnitCostReportsMargin(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	// Torta: 0.5kg flour (700) + 0.4kg sugar (860) + 4 eggs (216) + 0.2kg manjar (2050)
	// = 350 + 344 + 864 + 410 = 1968.
	resp, err := svc.UnitCost(ctx, "prod-torta-chocolate")
	if err != nil {
		t.Fatalf("unit cost: %v", err)
	}
	if resp.UnitCost != 1968 {
		t.Fatalf("expected unit cost 1968, got %d", resp.UnitCost)
	}
	if resp.Margin != 35000-1968 {
		t.Fatalf("expected margin %d, got %d", 35000-1968, resp.Margin)
	}
}

func TestProductionPlanAggregatesOpenOrders(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	date := "2026-09-10"
	for i := 0; i < 2; i++ {
		if _, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
			CustomerName: "Juan",
			DeliveryDate: date,
			Items:        []domain.OrderItemRequest{{ProductID: "prod-torta-chocolate", Quantity: 1}},
		}); err != nil {
			t.Fatalf("create order %d: %v", i, err)
		}
	}
	// A paid order on the same date must not appear in the plan.
	paid, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Maria",
		DeliveryDate: date,
		Items:        []domain.OrderItemRequest{{ProductID: "prod-torta-chocolate", Quantity: 5}},
	})
	if err != nil {
		t.Fatalf("create paid order: %v", err)
	}
	for i := 0; i < len(domain.StatusPipeline); i++ {
		if _, err := svc.AdvanceOrderStatus(ctx, paid.ID); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}

	plan, err := svc.ProductionPlan(ctx, date)
	if err != nil {
		t.Fatalf("production plan: %v", err)
	}

	var flour *domain.ProductionRequirement
	for i := range plan.Requirements {
		if plan.Requirements[i].IngredientID == "ing-harina" {
			flour = &plan.Requirements[i]
		}
	}
	if flour == nil {
		t.Fatalf("expected flour in plan, got %+v", plan.Requirements)
	}
	if !almostEqual(flour.TotalNeeded, 1000) {
		t.Fatalf("expected 1000g flour needed, got %.2f", flour.TotalNeeded)
	}
	if !almostEqual(flour.Shortfall, 0) {
		t.Fatalf("expected no shortfall, got %.2f", flour.Shortfall)
	}
}

func TestProductionPlanReportsShortfall(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	if _, err := svc.AdjustStock(ctx, "ing-manjar", domain.StockAdjustRequest{NewQuantity: 0.1, Unit: domain.UnitKilogram}); err != nil {
		t.Fatalf("adjust stock: %v", err)
	}

	date := "2026-09-11"
	if _, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Juan",
		DeliveryDate: date,
		Items:        []domain.OrderItemRequest{{ProductID: "prod-torta-chocolate", Quantity: 2}},
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	plan, err := svc.ProductionPlan(ctx, date)
	if err != nil {
		t.Fatalf("production plan: %v", err)
	}
	for _, req := range plan.Requirements {
		if req.IngredientID != "ing-manjar" {
			continue
		}
		// Needs 400g, the debit emptied the jar (100g clamped to 0 after order).
		if !almostEqual(req.TotalNeeded, 400) {
			t.Fatalf("expected 400g needed, got %.2f", req.TotalNeeded)
		}
		if req.Shortfall <= 0 {
			t.Fatalf("expected a shortfall, got %.2f", req.Shortfall)
		}
		return
	}
	t.Fatalf("manjar missing from plan: %+v", plan.Requirements)
}

func TestReceivablesGroupsDeliveredOrders(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerID:   "cust-juan",
		DeliveryDate: "2026-09-12",
		Items:        []domain.OrderItemRequest{{ProductID: "prod-medialunas", Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	// Pending -> InProgress -> Ready -> Delivered.
	for i := 0; i < 3; i++ {
		if _, err := svc.AdvanceOrderStatus(ctx, order.ID); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}

	resp, err := svc.Receivables(ctx)
	if err != nil {
		t.Fatalf("receivables: %v", err)
	}
	if len(resp.Debtors) != 1 {
		t.Fatalf("expected one debtor, got %d", len(resp.Debtors))
	}
	if resp.Debtors[0].Customer.ID != "cust-juan" {
		t.Fatalf("expected cust-juan, got %s", resp.Debtors[0].Customer.ID)
	}
	if resp.TotalOwed != 36000 {
		t.Fatalf("expected 36000 owed, got %d", resp.TotalOwed)
	}

	if _, err := svc.MarkOrderPaid(ctx, order.ID); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	resp, err = svc.Receivables(ctx)
	if err != nil {
		t.Fatalf("receivables: %v", err)
	}
	if resp.TotalOwed != 0 {
		t.Fatalf("expected no receivables after settling, got %d", resp.TotalOwed)
	}
}

func TestCloseAccountingLocksOrders(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Juan",
		DeliveryDate: "2026-09-01",
		Items:        []domain.OrderItemRequest{{ProductID: "prod-medialunas", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	for i := 0; i < len(domain.StatusPipeline); i++ {
		if _, err := svc.AdvanceOrderStatus(ctx, order.ID); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}

	resp, err := svc.CloseAccounting(ctx, domain.AccountingCloseRequest{Cutoff: "2026-09-30"})
	if err != nil {
		t.Fatalf("close accounting: %v", err)
	}
	if resp.ClosedOrders != 1 {
		t.Fatalf("expected one closed order, got %d", resp.ClosedOrders)
	}

	if _, err := svc.RevertOrderStatus(ctx, order.ID); !errors.Is(err, store.ErrAccountingLocked) {
		t.Fatalf("expected accounting lock on revert, got %v", err)
	}
	if _, err := svc.UpdateOrder(ctx, order.ID, domain.OrderUpdateRequest{
		Items: []domain.OrderItemRequest{{ProductID: "prod-medialunas", Quantity: 2}},
	}); !errors.Is(err, store.ErrAccountingLocked) {
		t.Fatalf("expected accounting lock on edit, got %v", err)
	}
	if err := svc.DeleteOrder(ctx, order.ID); !errors.Is(err, store.ErrAccountingLocked) {
		t.Fatalf("expected accounting lock on delete, got %v", err)
	}
}

func TestCloseAccountingRequiresAdmin(t *testing.T) {
	svc := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{Username: "staff", Role: "staff"})

	if _, err := svc.CloseAccounting(ctx, domain.AccountingCloseRequest{Cutoff: "2026-09-30"}); err == nil {
		t.Fatalf("expected staff to be rejected")
	}
}

func TestLowStockReport(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	// Seeded flour floor is 5kg; drop it to 2kg.
	if _, err := svc.AdjustStock(ctx, "ing-harina", domain.StockAdjustRequest{NewQuantity: 2, Unit: domain.UnitKilogram}); err != nil {
		t.Fatalf("adjust stock: %v", err)
	}

	entries, err := svc.LowStockReport(ctx)
	if err != nil {
		t.Fatalf("low stock report: %v", err)
	}
	if len(entries) != 1 || entries[0].IngredientID != "ing-harina" {
		t.Fatalf("expected only flour below floor, got %+v", entries)
	}
	if !almostEqual(entries[0].DisplayStock, 2) {
		t.Fatalf("expected 2kg display stock, got %.2f", entries[0].DisplayStock)
	}
}

func TestDeleteIngredientInUseIsRejected(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	if err := svc.DeleteIngredient(ctx, "ing-harina"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBackupRoundTrip(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	if _, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Juan",
		DeliveryDate: "2026-09-14",
		Items:        []domain.OrderItemRequest{{ProductID: "prod-medialunas", Quantity: 1}},
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	doc, err := svc.ExportBackup(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	fresh := New(memory.New(), cache.NoopPlanCache{}, time.Second)
	resp, err := fresh.RestoreBackup(ctx, doc)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if resp.Orders != 1 || resp.Ingredients != 7 || resp.Products != 4 {
		t.Fatalf("unexpected restore counts: %+v", resp)
	}

	flour, err := fresh.GetIngredient(ctx, "ing-harina")
	if err != nil {
		t.Fatalf("get restored flour: %v", err)
	}
	if flour.DisplayUnit != domain.UnitKilogram {
		t.Fatalf("expected kg display unit, got %s", flour.DisplayUnit)
	}
}

func TestReceivablesOrdersDebtorsByTotalDescending(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	deliver := func(orderID string) {
		t.Helper()
		for i := 0; i < 3; i++ {
			if _, err := svc.AdvanceOrderStatus(ctx, orderID); err != nil {
				t.Fatalf("advance %s: %v", orderID, err)
			}
		}
	}

	small, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Ana",
		DeliveryDate: "2026-09-14",
		Items:        []domain.OrderItemRequest{{ProductID: "prod-medialunas", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create small order: %v", err)
	}
	big, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Zoe",
		DeliveryDate: "2026-09-14",
		Items:        []domain.OrderItemRequest{{ProductID: "prod-torta-chocolate", Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("create big order: %v", err)
	}
	deliver(small.ID)
	deliver(big.ID)

	resp, err := svc.Receivables(ctx)
	if err != nil {
		t.Fatalf("receivables: %v", err)
	}
	if len(resp.Debtors) != 2 {
		t.Fatalf("expected two debtors, got %d", len(resp.Debtors))
	}
	if resp.Debtors[0].Customer.Name != "Zoe" || resp.Debtors[0].Total != 105000 {
		t.Fatalf("expected Zoe (105000) first, got %s (%d)", resp.Debtors[0].Customer.Name, resp.Debtors[0].Total)
	}
	if resp.Debtors[1].Customer.Name != "Ana" || resp.Debtors[1].Total != 12000 {
		t.Fatalf("expected Ana (12000) second, got %s (%d)", resp.Debtors[1].Customer.Name, resp.Debtors[1].Total)
	}
}

func TestListOrdersForDateFiltersAllStatuses(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	first, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Juan",
		DeliveryDate: "2026-09-20",
		Items:        []domain.OrderItemRequest{{ProductID: "prod-medialunas", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create first order: %v", err)
	}
	if _, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Juan",
		DeliveryDate: "2026-09-21",
		Items:        []domain.OrderItemRequest{{ProductID: "prod-medialunas", Quantity: 1}},
	}); err != nil {
		t.Fatalf("create second order: %v", err)
	}

	orders, err := svc.ListOrdersForDate(ctx, "2026-09-20")
	if err != nil {
		t.Fatalf("list by date: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != first.ID {
		t.Fatalf("expected only the 2026-09-20 order, got %d orders", len(orders))
	}

	if _, err := svc.ListOrdersForDate(ctx, "20/09/2026"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for malformed date, got %v", err)
	}
}

// mapPlanCache is an observable in-process PlanCache without TTL expiry,
// so anything still cached stays cached until explicitly invalidated.
type mapPlanCache struct {
	plans map[string]*domain.ProductionPlan
}

func newMapPlanCache() *mapPlanCache {
	return &mapPlanCache{plans: map[string]*domain.ProductionPlan{}}
}

func (c *mapPlanCache) Get(_ context.Context, key string) (*domain.ProductionPlan, bool, error) {
	plan, ok := c.plans[key]
	return plan, ok, nil
}

func (c *mapPlanCache) Set(_ context.Context, key string, value *domain.ProductionPlan, _ time.Duration) error {
	c.plans[key] = value
	return nil
}

func (c *mapPlanCache) Invalidate(_ context.Context, key string) error {
	delete(c.plans, key)
	return nil
}

func (c *mapPlanCache) InvalidateAll(_ context.Context) error {
	c.plans = map[string]*domain.ProductionPlan{}
	return nil
}

func TestStockAdjustmentRefreshesCachedPlan(t *testing.T) {
	svc := New(memory.NewSeeded(), newMapPlanCache(), time.Minute)
	ctx := adminCtx()

	if _, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		CustomerName: "Juan",
		DeliveryDate: "2026-09-15",
		Items:        []domain.OrderItemRequest{{ProductID: "prod-torta-chocolate", Quantity: 2}},
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	flourOf := func(plan domain.ProductionPlan) domain.ProductionRequirement {
		t.Helper()
		for _, req := range plan.Requirements {
			if req.IngredientID == "ing-harina" {
				return req
			}
		}
		t.Fatalf("plan has no flour requirement")
		return domain.ProductionRequirement{}
	}

	plan, err := svc.ProductionPlan(ctx, "2026-09-15")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if got := flourOf(plan).CurrentStock; !almostEqual(got, 31000) {
		t.Fatalf("expected 31000 g flour before adjustment, got %f", got)
	}

	if _, err := svc.AdjustStock(ctx, "ing-harina", domain.StockAdjustRequest{
		NewQuantity: 200,
		Unit:        domain.UnitGram,
	}); err != nil {
		t.Fatalf("adjust stock: %v", err)
	}

	plan, err = svc.ProductionPlan(ctx, "2026-09-15")
	if err != nil {
		t.Fatalf("plan after adjustment: %v", err)
	}
	flour := flourOf(plan)
	if !almostEqual(flour.CurrentStock, 200) {
		t.Fatalf("expected adjusted stock 200 g in plan, got %f", flour.CurrentStock)
	}
	if !almostEqual(flour.Shortfall, 800) {
		t.Fatalf("expected shortfall 800 g, got %f", flour.Shortfall)
	}
}
