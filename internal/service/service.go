package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"pasteleria/backend/internal/cache"
	"pasteleria/backend/internal/domain"
	"pasteleria/backend/internal/recipe"
	"pasteleria/backend/internal/store"
	"pasteleria/backend/internal/units"
	"pasteleria/backend/internal/xid"
)

const dateLayout = "2006-01-02"

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo      store.Repository
	planCache cache.PlanCache
	planTTL   time.Duration
}

func New(repo store.Repository, planCache cache.PlanCache, planTTL time.Duration) *Service {
	if planCache == nil {
		planCache = cache.NoopPlanCache{}
	}
	if planTTL <= 0 {
		planTTL = 5 * time.Minute
	}

	return &Service{
		repo:      repo,
		planCache: planCache,
		planTTL:   planTTL,
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	return nil
}

/* --- ingredients --- */

func (s *Service) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	return s.repo.ListIngredients(ctx)
}

func (s *Service) GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error) {
	return s.repo.GetIngredient(ctx, id)
}

func (s *Service) CreateIngredient(ctx context.Context, req domain.IngredientCreateRequest) (domain.Ingredient, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Ingredient{}, fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	if req.InitialStock < 0 || req.CostPerDisplayUnit < 0 || req.MinStock < 0 {
		return domain.Ingredient{}, fmt.Errorf("%w: quantities must not be negative", store.ErrValidation)
	}

	stockBase, err := units.ToBase(req.InitialStock, req.Unit)
	if err != nil {
		return domain.Ingredient{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	minBase, err := units.ToBase(req.MinStock, req.Unit)
	if err != nil {
		return domain.Ingredient{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	ing := domain.Ingredient{
		ID:                 xid.New("ing"),
		Name:               req.Name,
		StockBase:          stockBase,
		DisplayUnit:        req.Unit,
		CostPerDisplayUnit: req.CostPerDisplayUnit,
		MinStockBase:       minBase,
	}
	created, err := s.repo.CreateIngredient(ctx, ing)
	if err != nil {
		return domain.Ingredient{}, err
	}
	return *created, nil
}

func (s *Service) UpdateIngredient(ctx context.Context, id string, req domain.IngredientUpdateRequest) (domain.Ingredient, error) {
	ing, err := s.repo.GetIngredient(ctx, id)
	if err != nil {
		return domain.Ingredient{}, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Ingredient{}, fmt.Errorf("%w: name is required", store.ErrValidation)
		}
		ing.Name = name
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return domain.Ingredient{}, fmt.Errorf("%w: minStock must not be negative", store.ErrValidation)
		}
		minBase, err := units.ToBase(*req.MinStock, ing.DisplayUnit)
		if err != nil {
			return domain.Ingredient{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
		}
		ing.MinStockBase = minBase
	}

	updated, err := s.repo.UpdateIngredient(ctx, *ing)
	if err != nil {
		return domain.Ingredient{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteIngredient(ctx context.Context, id string) error {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return err
	}
	for _, p := range products {
		for _, item := range p.Recipe {
			if item.ComponentType == domain.ComponentIngredient && item.ComponentID == id {
				return fmt.Errorf("%w: ingredient is used by product %s", store.ErrValidation, p.Name)
			}
		}
	}
	return s.repo.DeleteIngredient(ctx, id)
}

// AdjustStock sets an absolute stock level in the ingredient's display unit
// family. A purchase price on an increase updates the weighted-average cost.
func (s *Service) AdjustStock(ctx context.Context, id string, req domain.StockAdjustRequest) (domain.Ingredient, error) {
	if req.NewQuantity < 0 {
		return domain.Ingredient{}, fmt.Errorf("%w: stock must not be negative", store.ErrValidation)
	}

	ing, err := s.repo.GetIngredient(ctx, id)
	if err != nil {
		return domain.Ingredient{}, err
	}

	unit := req.Unit
	if unit == "" {
		unit = ing.DisplayUnit
	}
	if !units.Compatible(unit, ing.DisplayUnit) {
		return domain.Ingredient{}, fmt.Errorf("%w: unit %s does not measure %s", store.ErrValidation, unit, ing.Name)
	}
	newBase, err := units.ToBase(req.NewQuantity, unit)
	if err != nil {
		return domain.Ingredient{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if req.PurchasePrice != nil && *req.PurchasePrice < 0 {
		return domain.Ingredient{}, fmt.Errorf("%w: purchase price must not be negative", store.ErrValidation)
	}

	adjusted, err := s.repo.AdjustIngredientStock(ctx, id, newBase, req.PurchasePrice)
	if err != nil {
		return domain.Ingredient{}, err
	}

	// Every cached plan embeds this ingredient's current stock.
	if err := s.planCache.InvalidateAll(ctx); err != nil {
		log.Printf("[service] WARN: plan cache flush: %v", err)
	}
	return *adjusted, nil
}

/* --- products --- */

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	if req.Price < 0 {
		return domain.Product{}, fmt.Errorf("%w: price must not be negative", store.ErrValidation)
	}

	product := domain.Product{
		ID:             xid.New("prod"),
		Name:           req.Name,
		Price:          req.Price,
		Description:    strings.TrimSpace(req.Description),
		IsIntermediate: req.IsIntermediate,
		Recipe:         domain.NormalizeRecipe(req.Recipe),
	}
	if err := s.validateRecipe(ctx, product); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: name is required", store.ErrValidation)
		}
		product.Name = name
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return domain.Product{}, fmt.Errorf("%w: price must not be negative", store.ErrValidation)
		}
		product.Price = *req.Price
	}
	if req.Description != nil {
		product.Description = strings.TrimSpace(*req.Description)
	}
	if req.IsIntermediate != nil {
		product.IsIntermediate = *req.IsIntermediate
	}
	if req.Recipe != nil {
		product.Recipe = domain.NormalizeRecipe(*req.Recipe)
	}

	if err := s.validateRecipe(ctx, *product); err != nil {
		return domain.Product{}, err
	}

	updated, err := s.repo.UpdateProduct(ctx, *product)
	if err != nil {
		return domain.Product{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return err
	}
	for _, p := range products {
		if p.ID == id {
			continue
		}
		for _, item := range p.Recipe {
			if item.ComponentType == domain.ComponentProduct && item.ComponentID == id {
				return fmt.Errorf("%w: product is used as a component of %s", store.ErrValidation, p.Name)
			}
		}
	}
	return s.repo.DeleteProduct(ctx, id)
}

// validateRecipe checks each line against the catalog and probes the full
// resolution with the candidate product in place, so cycles and broken
// references are rejected at save time rather than at the first order.
func (s *Service) validateRecipe(ctx context.Context, product domain.Product) error {
	for _, item := range product.Recipe {
		if item.ComponentID == "" {
			return fmt.Errorf("%w: recipe line without component", store.ErrValidation)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: recipe quantities must be positive", store.ErrValidation)
		}

		switch item.ComponentType {
		case domain.ComponentIngredient:
			ing, err := s.repo.GetIngredient(ctx, item.ComponentID)
			if err != nil {
				return fmt.Errorf("%w: %v", store.ErrValidation, err)
			}
			if !units.Compatible(item.Unit, ing.DisplayUnit) {
				return fmt.Errorf("%w: unit %s does not measure %s", store.ErrValidation, item.Unit, ing.Name)
			}
		case domain.ComponentProduct:
			if item.ComponentID == product.ID {
				return fmt.Errorf("%w: product cannot contain itself", store.ErrValidation)
			}
			if _, err := s.repo.GetProduct(ctx, item.ComponentID); err != nil {
				return fmt.Errorf("%w: %v", store.ErrValidation, err)
			}
			if item.Unit != "" && item.Unit != domain.UnitCount {
				return fmt.Errorf("%w: sub-product lines are counted in batches", store.ErrValidation)
			}
		default:
			return fmt.Errorf("%w: unknown component type %s", store.ErrValidation, item.ComponentType)
		}
	}

	cat := overlayCatalog{repo: s.repo, candidate: product}
	if _, err := recipe.ResolveUsage(ctx, cat, product.ID, 1); err != nil {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	return nil
}

// overlayCatalog lets the resolver see an unsaved product revision.
type overlayCatalog struct {
	repo      store.Repository
	candidate domain.Product
}

func (c overlayCatalog) GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error) {
	return c.repo.GetIngredient(ctx, id)
}

func (c overlayCatalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if id == c.candidate.ID {
		p := c.candidate
		return &p, nil
	}
	return c.repo.GetProduct(ctx, id)
}

func (s *Service) UnitCost(ctx context.Context, productID string) (domain.UnitCostResponse, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.UnitCostResponse{}, err
	}
	cost, err := recipe.UnitCost(ctx, s.repo, productID)
	if err != nil {
		return domain.UnitCostResponse{}, err
	}
	return domain.UnitCostResponse{
		ProductID: productID,
		UnitCost:  cost,
		Price:     product.Price,
		Margin:    product.Price - cost,
	}, nil
}

/* --- orders --- */

func (s *Service) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx)
}

// ListOrdersForDate returns every order, regardless of status, with the
// given delivery date.
func (s *Service) ListOrdersForDate(ctx context.Context, date string) ([]domain.Order, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
	}
	return s.repo.ListOrdersByDate(ctx, date, nil)
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// CreateOrder resolves the full ingredient usage for the requested items and
// commits the order record and the stock debit as one unit. Prices are
// snapshotted per line so later price edits never move a recorded total.
func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	if len(req.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order needs at least one item", store.ErrValidation)
	}
	if _, err := time.Parse(dateLayout, req.DeliveryDate); err != nil {
		return domain.Order{}, fmt.Errorf("%w: deliveryDate must be YYYY-MM-DD", store.ErrValidation)
	}

	customerName := strings.TrimSpace(req.CustomerName)
	if req.CustomerID != "" {
		customer, err := s.repo.GetCustomer(ctx, req.CustomerID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
		}
		customerName = customer.Name
	}
	if customerName == "" {
		return domain.Order{}, fmt.Errorf("%w: customer is required", store.ErrValidation)
	}

	items, total, err := s.buildOrderItems(ctx, req.Items)
	if err != nil {
		return domain.Order{}, err
	}
	usage, err := recipe.ResolveOrderUsage(ctx, s.repo, items)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:           xid.New("ord"),
		CustomerID:   req.CustomerID,
		CustomerName: customerName,
		DeliveryDate: req.DeliveryDate,
		Status:       domain.StatusPending,
		Items:        items,
		TotalPrice:   total,
		CreatedAt:    time.Now().UTC(),
	}
	created, err := s.repo.CreateOrder(ctx, order, usage)
	if err != nil {
		return domain.Order{}, err
	}

	s.invalidatePlan(ctx, created.DeliveryDate)
	return *created, nil
}

// UpdateOrder swaps the order's stock footprint: the old item set is credited
// back and the new one debited in the same atomic step.
func (s *Service) UpdateOrder(ctx context.Context, id string, req domain.OrderUpdateRequest) (domain.Order, error) {
	existing, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if existing.AccountingClosed {
		return domain.Order{}, store.ErrAccountingLocked
	}
	if len(req.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order needs at least one item", store.ErrValidation)
	}

	order := *existing
	if req.DeliveryDate != nil {
		if _, err := time.Parse(dateLayout, *req.DeliveryDate); err != nil {
			return domain.Order{}, fmt.Errorf("%w: deliveryDate must be YYYY-MM-DD", store.ErrValidation)
		}
		order.DeliveryDate = *req.DeliveryDate
	}

	items, total, err := s.buildOrderItems(ctx, req.Items)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	order.TotalPrice = total

	oldUsage, err := recipe.ResolveOrderUsage(ctx, s.repo, existing.Items)
	if err != nil {
		return domain.Order{}, err
	}
	newUsage, err := recipe.ResolveOrderUsage(ctx, s.repo, order.Items)
	if err != nil {
		return domain.Order{}, err
	}

	updated, err := s.repo.UpdateOrder(ctx, order, oldUsage, newUsage)
	if err != nil {
		return domain.Order{}, err
	}

	s.invalidatePlan(ctx, existing.DeliveryDate)
	if updated.DeliveryDate != existing.DeliveryDate {
		s.invalidatePlan(ctx, updated.DeliveryDate)
	}
	return *updated, nil
}

func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	existing, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if existing.AccountingClosed {
		return store.ErrAccountingLocked
	}

	usage, err := recipe.ResolveOrderUsage(ctx, s.repo, existing.Items)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteOrder(ctx, id, usage); err != nil {
		return err
	}

	s.invalidatePlan(ctx, existing.DeliveryDate)
	return nil
}

func (s *Service) buildOrderItems(ctx context.Context, reqItems []domain.OrderItemRequest) ([]domain.OrderItem, int64, error) {
	items := make([]domain.OrderItem, 0, len(reqItems))
	var total int64
	for _, item := range reqItems {
		if item.Quantity < 1 {
			return nil, 0, fmt.Errorf("%w: item quantities must be at least 1", store.ErrValidation)
		}
		product, err := s.repo.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", store.ErrValidation, err)
		}
		if product.IsIntermediate {
			return nil, 0, fmt.Errorf("%w: %s is an intermediate preparation, not a sellable product", store.ErrValidation, product.Name)
		}
		items = append(items, domain.OrderItem{
			ProductID:         product.ID,
			Quantity:          item.Quantity,
			UnitPriceSnapshot: product.Price,
		})
		total += product.Price * int64(item.Quantity)
	}
	return items, total, nil
}

// AdvanceOrderStatus moves an order one step forward along the pipeline.
// Advancing past the final status is a no-op, not an error.
func (s *Service) AdvanceOrderStatus(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}

	idx := statusIndex(order.Status)
	if idx < 0 {
		return domain.Order{}, fmt.Errorf("%w: order has unknown status %s", store.ErrValidation, order.Status)
	}
	if idx == len(domain.StatusPipeline)-1 {
		return *order, nil
	}

	updated, err := s.repo.SetOrderStatus(ctx, id, domain.StatusPipeline[idx+1])
	if err != nil {
		return domain.Order{}, err
	}
	return *updated, nil
}

// RevertOrderStatus moves an order one step back. Reverting from the first
// status is a no-op; orders swept into a closed accounting period stay put.
func (s *Service) RevertOrderStatus(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if order.AccountingClosed {
		return domain.Order{}, store.ErrAccountingLocked
	}

	idx := statusIndex(order.Status)
	if idx < 0 {
		return domain.Order{}, fmt.Errorf("%w: order has unknown status %s", store.ErrValidation, order.Status)
	}
	if idx == 0 {
		return *order, nil
	}

	updated, err := s.repo.SetOrderStatus(ctx, id, domain.StatusPipeline[idx-1])
	if err != nil {
		return domain.Order{}, err
	}
	return *updated, nil
}

// MarkOrderPaid settles a delivered order from the receivables view.
func (s *Service) MarkOrderPaid(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	switch order.Status {
	case domain.StatusPaid:
		return *order, nil
	case domain.StatusDelivered:
		updated, err := s.repo.SetOrderStatus(ctx, id, domain.StatusPaid)
		if err != nil {
			return domain.Order{}, err
		}
		return *updated, nil
	default:
		return domain.Order{}, fmt.Errorf("%w: only delivered orders can be settled", store.ErrValidation)
	}
}

func statusIndex(status domain.OrderStatus) int {
	for i, st := range domain.StatusPipeline {
		if st == status {
			return i
		}
	}
	return -1
}

/* --- production planning --- */

// ProductionPlan aggregates ingredient needs for every open order on a
// delivery date and compares them against current stock. Plans are cached
// per date; order mutations invalidate the affected date.
func (s *Service) ProductionPlan(ctx context.Context, date string) (domain.ProductionPlan, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return domain.ProductionPlan{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
	}

	key := cache.PlanKey(date)
	if cached, ok, err := s.planCache.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: plan cache get date=%s: %v", date, err)
	} else if ok {
		return *cached, nil
	}

	orders, err := s.repo.ListOrdersByDate(ctx, date, []domain.OrderStatus{domain.StatusPending, domain.StatusInProgress})
	if err != nil {
		return domain.ProductionPlan{}, err
	}

	needed := store.Usage{}
	for _, order := range orders {
		usage, err := recipe.ResolveOrderUsage(ctx, s.repo, order.Items)
		if err != nil {
			return domain.ProductionPlan{}, err
		}
		recipe.MergeUsage(needed, usage)
	}

	requirements := make([]domain.ProductionRequirement, 0, len(needed))
	for id, qty := range needed {
		ing, err := s.repo.GetIngredient(ctx, id)
		if err != nil {
			return domain.ProductionPlan{}, err
		}
		shortfall := qty - ing.StockBase
		if shortfall < 0 {
			shortfall = 0
		}
		requirements = append(requirements, domain.ProductionRequirement{
			IngredientID:   ing.ID,
			IngredientName: ing.Name,
			TotalNeeded:    qty,
			CurrentStock:   ing.StockBase,
			Shortfall:      shortfall,
			DisplayUnit:    ing.DisplayUnit,
		})
	}
	sort.Slice(requirements, func(i, j int) bool {
		return requirements[i].IngredientName < requirements[j].IngredientName
	})

	plan := domain.ProductionPlan{
		Date:         date,
		Requirements: requirements,
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.planCache.Set(ctx, key, &plan, s.planTTL); err != nil {
		log.Printf("[service] WARN: plan cache set date=%s: %v", date, err)
	}
	return plan, nil
}

func (s *Service) invalidatePlan(ctx context.Context, date string) {
	if err := s.planCache.Invalidate(ctx, cache.PlanKey(date)); err != nil {
		log.Printf("[service] WARN: plan cache invalidate date=%s: %v", date, err)
	}
}

/* --- reports --- */

// Receivables groups delivered-but-unpaid orders by customer, largest
// outstanding total first.
func (s *Service) Receivables(ctx context.Context) (domain.ReceivablesResponse, error) {
	orders, err := s.repo.ListOrders(ctx)
	if err != nil {
		return domain.ReceivablesResponse{}, err
	}

	byCustomer := map[string]*domain.Debtor{}
	keys := []string{}
	for _, order := range orders {
		if order.Status != domain.StatusDelivered {
			continue
		}
		key := order.CustomerID
		if key == "" {
			key = "name:" + order.CustomerName
		}
		debtor, ok := byCustomer[key]
		if !ok {
			customer := domain.Customer{Name: order.CustomerName}
			if order.CustomerID != "" {
				if c, err := s.repo.GetCustomer(ctx, order.CustomerID); err == nil {
					customer = *c
				} else if !errors.Is(err, store.ErrNotFound) {
					return domain.ReceivablesResponse{}, err
				}
			}
			debtor = &domain.Debtor{Customer: customer}
			byCustomer[key] = debtor
			keys = append(keys, key)
		}
		debtor.Orders = append(debtor.Orders, order)
		debtor.Total += order.TotalPrice
	}

	resp := domain.ReceivablesResponse{Debtors: make([]domain.Debtor, 0, len(keys))}
	for _, key := range keys {
		resp.Debtors = append(resp.Debtors, *byCustomer[key])
		resp.TotalOwed += byCustomer[key].Total
	}
	sort.SliceStable(resp.Debtors, func(i, j int) bool {
		return resp.Debtors[i].Total > resp.Debtors[j].Total
	})
	return resp, nil
}

// LowStockReport lists ingredients at or below their restock floor.
func (s *Service) LowStockReport(ctx context.Context) ([]domain.LowStockEntry, error) {
	ingredients, err := s.repo.ListIngredients(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.LowStockEntry, 0, 8)
	for _, ing := range ingredients {
		if ing.MinStockBase <= 0 || ing.StockBase > ing.MinStockBase {
			continue
		}
		displayStock, err := units.FromBase(ing.StockBase, ing.DisplayUnit)
		if err != nil {
			return nil, err
		}
		entries = append(entries, domain.LowStockEntry{
			IngredientID: ing.ID,
			Name:         ing.Name,
			StockBase:    ing.StockBase,
			MinStockBase: ing.MinStockBase,
			DisplayUnit:  ing.DisplayUnit,
			DisplayStock: displayStock,
		})
	}
	return entries, nil
}

/* --- accounting --- */

// CloseAccounting marks every paid order delivered on or before the cutoff
// as closed. Closed orders reject edits, deletes and status reverts.
func (s *Service) CloseAccounting(ctx context.Context, req domain.AccountingCloseRequest) (domain.AccountingCloseResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.AccountingCloseResponse{}, err
	}
	if _, err := time.Parse(dateLayout, req.Cutoff); err != nil {
		return domain.AccountingCloseResponse{}, fmt.Errorf("%w: cutoff must be YYYY-MM-DD", store.ErrValidation)
	}

	closed, err := s.repo.CloseAccounting(ctx, req.Cutoff)
	if err != nil {
		return domain.AccountingCloseResponse{}, err
	}

	if actor, ok := ActorFromContext(ctx); ok {
		log.Printf("[service] accounting closed through %s by %s (%d orders)", req.Cutoff, actor.Username, closed)
	}
	return domain.AccountingCloseResponse{
		ClosedOrders: closed,
		Cutoff:       req.Cutoff,
		ClosedAt:     time.Now().UTC().Format(time.RFC3339),
	}, nil
}

/* --- customers --- */

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, fmt.Errorf("%w: name is required", store.ErrValidation)
	}

	customer := domain.Customer{
		ID:      xid.New("cust"),
		Name:    req.Name,
		Phone:   strings.TrimSpace(req.Phone),
		Email:   strings.TrimSpace(req.Email),
		Address: strings.TrimSpace(req.Address),
		Notes:   strings.TrimSpace(req.Notes),
	}
	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerCreateRequest) (domain.Customer, error) {
	existing, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	existing.Name = req.Name
	existing.Phone = strings.TrimSpace(req.Phone)
	existing.Email = strings.TrimSpace(req.Email)
	existing.Address = strings.TrimSpace(req.Address)
	existing.Notes = strings.TrimSpace(req.Notes)

	updated, err := s.repo.UpdateCustomer(ctx, *existing)
	if err != nil {
		return domain.Customer{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	return s.repo.DeleteCustomer(ctx, id)
}

/* --- backup --- */

func (s *Service) ExportBackup(ctx context.Context) (domain.BackupDocument, error) {
	doc, err := s.repo.ExportSnapshot(ctx)
	if err != nil {
		return domain.BackupDocument{}, err
	}
	return *doc, nil
}

// RestoreBackup replaces the whole data set with the supplied snapshot.
func (s *Service) RestoreBackup(ctx context.Context, doc domain.BackupDocument) (domain.RestoreResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.RestoreResponse{}, err
	}

	if err := s.repo.ImportSnapshot(ctx, doc); err != nil {
		return domain.RestoreResponse{}, err
	}

	if actor, ok := ActorFromContext(ctx); ok {
		log.Printf("[service] backup from %s restored by %s", doc.BackupDate, actor.Username)
	}
	return domain.RestoreResponse{
		Ingredients: len(doc.Ingredients),
		Products:    len(doc.Products),
		Orders:      len(doc.Orders),
		Customers:   len(doc.Customers),
	}, nil
}
