package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pasteleria/backend/internal/domain"
	"pasteleria/backend/internal/recipe"
	"pasteleria/backend/internal/store"
	"pasteleria/backend/internal/units"
)

// Store is the in-memory repository used for dev mode and tests. A single
// mutex makes every multi-ingredient mutation one critical section, which is
// all the atomicity the ledger contract asks for.
type Store struct {
	mu              sync.RWMutex
	ingredients     map[string]domain.Ingredient
	products        map[string]domain.Product
	orders          map[string]domain.Order
	customers       map[string]domain.Customer
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		ingredients:     make(map[string]domain.Ingredient),
		products:        make(map[string]domain.Product),
		orders:          make(map[string]domain.Order),
		customers:       make(map[string]domain.Customer),
		usersByUsername: seedUsers(),
	}
}

// NewSeeded loads the starter data set the shop has been working from.
func NewSeeded() *Store {
	s := New()

	ingredients := []domain.Ingredient{
		{ID: "ing-margarina", Name: "Margarina", StockBase: 10000, DisplayUnit: domain.UnitKilogram, CostPerDisplayUnit: 2490, MinStockBase: 2000},
		{ID: "ing-harina", Name: "Harina", StockBase: 32000, DisplayUnit: domain.UnitKilogram, CostPerDisplayUnit: 700, MinStockBase: 5000},
		{ID: "ing-mantequilla", Name: "Mantequilla", StockBase: 23000, DisplayUnit: domain.UnitKilogram, CostPerDisplayUnit: 7600, MinStockBase: 2000},
		{ID: "ing-azucar", Name: "Azúcar blanca", StockBase: 18000, DisplayUnit: domain.UnitKilogram, CostPerDisplayUnit: 860, MinStockBase: 3000},
		{ID: "ing-huevos", Name: "Huevos", StockBase: 59, DisplayUnit: domain.UnitCount, CostPerDisplayUnit: 216, MinStockBase: 12},
		{ID: "ing-manjar", Name: "Manjar", StockBase: 20000, DisplayUnit: domain.UnitKilogram, CostPerDisplayUnit: 2050, MinStockBase: 3000},
		{ID: "ing-crema", Name: "Crema chantilly", StockBase: 6000, DisplayUnit: domain.UnitLiter, CostPerDisplayUnit: 3690, MinStockBase: 1000},
	}
	for _, ing := range ingredients {
		s.ingredients[ing.ID] = ing
	}

	products := []domain.Product{
		{
			ID: "prod-torta-chocolate", Name: "Torta de Chocolate", Price: 35000,
			Description: "Bizcocho húmedo con ganache.",
			Recipe: []domain.RecipeItem{
				{ComponentID: "ing-harina", ComponentType: domain.ComponentIngredient, Quantity: 500, Unit: domain.UnitGram},
				{ComponentID: "ing-azucar", ComponentType: domain.ComponentIngredient, Quantity: 400, Unit: domain.UnitGram},
				{ComponentID: "ing-huevos", ComponentType: domain.ComponentIngredient, Quantity: 4, Unit: domain.UnitCount},
				{ComponentID: "ing-manjar", ComponentType: domain.ComponentIngredient, Quantity: 200, Unit: domain.UnitGram},
			},
		},
		{
			ID: "prod-medialunas", Name: "Docena de Medialunas", Price: 12000,
			Description: "Clásicas de manteca.",
			Recipe: []domain.RecipeItem{
				{ComponentID: "ing-harina", ComponentType: domain.ComponentIngredient, Quantity: 600, Unit: domain.UnitGram},
				{ComponentID: "ing-azucar", ComponentType: domain.ComponentIngredient, Quantity: 200, Unit: domain.UnitGram},
				{ComponentID: "ing-huevos", ComponentType: domain.ComponentIngredient, Quantity: 2, Unit: domain.UnitCount},
				{ComponentID: "ing-mantequilla", ComponentType: domain.ComponentIngredient, Quantity: 250, Unit: domain.UnitGram},
			},
		},
		{
			ID: "prod-crema-pastelera", Name: "Crema pastelera", IsIntermediate: true,
			Recipe: []domain.RecipeItem{
				{ComponentID: "ing-crema", ComponentType: domain.ComponentIngredient, Quantity: 0.5, Unit: domain.UnitLiter},
				{ComponentID: "ing-azucar", ComponentType: domain.ComponentIngredient, Quantity: 100, Unit: domain.UnitGram},
				{ComponentID: "ing-huevos", ComponentType: domain.ComponentIngredient, Quantity: 3, Unit: domain.UnitCount},
			},
		},
		{
			ID: "prod-milhojas", Name: "Torta Milhojas", Price: 28000,
			Recipe: []domain.RecipeItem{
				{ComponentID: "prod-crema-pastelera", ComponentType: domain.ComponentProduct, Quantity: 1, Unit: domain.UnitCount},
				{ComponentID: "ing-harina", ComponentType: domain.ComponentIngredient, Quantity: 400, Unit: domain.UnitGram},
				{ComponentID: "ing-mantequilla", ComponentType: domain.ComponentIngredient, Quantity: 300, Unit: domain.UnitGram},
			},
		},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}

	customers := []domain.Customer{
		{ID: "cust-juan", Name: "Juan Pérez", Phone: "555-0101", Email: "juan@example.com", Address: "Calle Falsa 123"},
		{ID: "cust-maria", Name: "Maria Gomez", Phone: "555-0202", Address: "Av. Libertador 400"},
	}
	for _, c := range customers {
		s.customers[c.ID] = c
	}

	return s
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; unset
// variables fall back to dev defaults with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

/* --- ingredients --- */

func (s *Store) ListIngredients(_ context.Context) ([]domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ingredients := make([]domain.Ingredient, 0, len(s.ingredients))
	for _, ing := range s.ingredients {
		ingredients = append(ingredients, ing)
	}
	slices.SortFunc(ingredients, func(a, b domain.Ingredient) int {
		return strings.Compare(a.Name, b.Name)
	})
	return ingredients, nil
}

func (s *Store) GetIngredient(_ context.Context, id string) (*domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ing, ok := s.ingredients[id]
	if !ok {
		return nil, fmt.Errorf("%w: ingredient %s", store.ErrNotFound, id)
	}
	return &ing, nil
}

func (s *Store) CreateIngredient(_ context.Context, ing domain.Ingredient) (*domain.Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ing.ID == "" || ing.Name == "" || ing.StockBase < 0 {
		return nil, store.ErrValidation
	}
	if _, exists := s.ingredients[ing.ID]; exists {
		return nil, fmt.Errorf("%w: ingredient %s already exists", store.ErrValidation, ing.ID)
	}

	s.ingredients[ing.ID] = ing
	created := ing
	return &created, nil
}

func (s *Store) UpdateIngredient(_ context.Context, ing domain.Ingredient) (*domain.Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.ingredients[ing.ID]
	if !ok {
		return nil, fmt.Errorf("%w: ingredient %s", store.ErrNotFound, ing.ID)
	}
	// Stock and cost belong to the ledger; keep them regardless of what the
	// caller sent.
	ing.StockBase = existing.StockBase
	ing.CostPerDisplayUnit = existing.CostPerDisplayUnit
	s.ingredients[ing.ID] = ing
	updated := ing
	return &updated, nil
}

func (s *Store) DeleteIngredient(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ingredients[id]; !ok {
		return fmt.Errorf("%w: ingredient %s", store.ErrNotFound, id)
	}
	delete(s.ingredients, id)
	return nil
}

func (s *Store) AdjustIngredientStock(_ context.Context, id string, newStockBase float64, purchasePrice *int64) (*domain.Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if newStockBase < 0 {
		return nil, fmt.Errorf("%w: stock must not be negative", store.ErrValidation)
	}
	ing, ok := s.ingredients[id]
	if !ok {
		return nil, fmt.Errorf("%w: ingredient %s", store.ErrNotFound, id)
	}

	if newStockBase > ing.StockBase && purchasePrice != nil && *purchasePrice > 0 {
		currentDisplay, err := units.FromBase(ing.StockBase, ing.DisplayUnit)
		if err != nil {
			return nil, err
		}
		addedDisplay, err := units.FromBase(newStockBase-ing.StockBase, ing.DisplayUnit)
		if err != nil {
			return nil, err
		}
		ing.CostPerDisplayUnit = recipe.WeightedAverageCost(currentDisplay, ing.CostPerDisplayUnit, addedDisplay, *purchasePrice)
	}

	ing.StockBase = newStockBase
	s.ingredients[id] = ing
	adjusted := ing
	return &adjusted, nil
}

func (s *Store) ApplyUsage(_ context.Context, usage store.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyUsageLocked(usage, -1)
}

func (s *Store) ReverseUsage(_ context.Context, usage store.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyUsageLocked(usage, +1)
}

// applyUsageLocked validates every entry before touching any balance so a
// bad map leaves the ledger untouched. Debits clamp at zero.
func (s *Store) applyUsageLocked(usage store.Usage, sign float64) error {
	for id := range usage {
		if _, ok := s.ingredients[id]; !ok {
			return fmt.Errorf("%w: ingredient %s", store.ErrNotFound, id)
		}
	}

	for id, qty := range usage {
		ing := s.ingredients[id]
		next := ing.StockBase + sign*qty
		if next < 0 {
			next = 0
		}
		ing.StockBase = next
		s.ingredients[id] = ing
	}
	return nil
}

/* --- products --- */

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	cloned := cloneProduct(p)
	return &cloned, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" {
		return nil, store.ErrValidation
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, fmt.Errorf("%w: product %s already exists", store.ErrValidation, product.ID)
	}

	product.Recipe = domain.NormalizeRecipe(product.Recipe)
	s.products[product.ID] = cloneProduct(product)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.ID]; !ok {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, product.ID)
	}
	product.Recipe = domain.NormalizeRecipe(product.Recipe)
	s.products[product.ID] = cloneProduct(product)
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	delete(s.products, id)
	return nil
}

/* --- orders --- */

func (s *Store) ListOrders(_ context.Context) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, cloneOrder(o))
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		if a.DeliveryDate == b.DeliveryDate {
			return strings.Compare(a.ID, b.ID)
		}
		return strings.Compare(a.DeliveryDate, b.DeliveryDate)
	})
	return orders, nil
}

func (s *Store) ListOrdersByDate(_ context.Context, deliveryDate string, statuses []domain.OrderStatus) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var orders []domain.Order
	for _, o := range s.orders {
		if o.DeliveryDate != deliveryDate {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, o.Status) {
			continue
		}
		orders = append(orders, cloneOrder(o))
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		return strings.Compare(a.ID, b.ID)
	})
	return orders, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, id)
	}
	cloned := cloneOrder(o)
	return &cloned, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order, usage store.Usage) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" || len(order.Items) == 0 {
		return nil, store.ErrValidation
	}
	if _, exists := s.orders[order.ID]; exists {
		return nil, fmt.Errorf("%w: order %s already exists", store.ErrValidation, order.ID)
	}

	// Record and stock commit inside the same critical section.
	if err := s.applyUsageLocked(usage, -1); err != nil {
		return nil, err
	}
	s.orders[order.ID] = cloneOrder(order)
	created := cloneOrder(order)
	return &created, nil
}

func (s *Store) UpdateOrder(_ context.Context, order domain.Order, oldUsage store.Usage, newUsage store.Usage) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.ID]; !ok {
		return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, order.ID)
	}

	if err := s.applyUsageLocked(oldUsage, +1); err != nil {
		return nil, err
	}
	if err := s.applyUsageLocked(newUsage, -1); err != nil {
		// Roll the credit back so a failed swap leaves stock untouched.
		_ = s.applyUsageLocked(oldUsage, -1)
		return nil, err
	}
	s.orders[order.ID] = cloneOrder(order)
	updated := cloneOrder(order)
	return &updated, nil
}

func (s *Store) DeleteOrder(_ context.Context, id string, usage store.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return fmt.Errorf("%w: order %s", store.ErrNotFound, id)
	}
	if err := s.applyUsageLocked(usage, +1); err != nil {
		return err
	}
	delete(s.orders, id)
	return nil
}

func (s *Store) SetOrderStatus(_ context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, id)
	}
	o.Status = status
	s.orders[id] = o
	updated := cloneOrder(o)
	return &updated, nil
}

func (s *Store) CloseAccounting(_ context.Context, cutoffDate string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	closed := 0
	for id, o := range s.orders {
		if o.Status != domain.StatusPaid || o.AccountingClosed {
			continue
		}
		if o.DeliveryDate > cutoffDate {
			continue
		}
		o.AccountingClosed = true
		s.orders[id] = o
		closed++
	}
	return closed, nil
}

/* --- customers --- */

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, id)
	}
	return &c, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" || customer.Name == "" {
		return nil, store.ErrValidation
	}
	if _, exists := s.customers[customer.ID]; exists {
		return nil, fmt.Errorf("%w: customer %s already exists", store.ErrValidation, customer.ID)
	}
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[customer.ID]; !ok {
		return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, customer.ID)
	}
	s.customers[customer.ID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[id]; !ok {
		return fmt.Errorf("%w: customer %s", store.ErrNotFound, id)
	}
	delete(s.customers, id)
	return nil
}

/* --- backup --- */

func (s *Store) ExportSnapshot(ctx context.Context) (*domain.BackupDocument, error) {
	ingredients, err := s.ListIngredients(ctx)
	if err != nil {
		return nil, err
	}
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := s.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	customers, err := s.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}

	return &domain.BackupDocument{
		BackupDate:  time.Now().UTC().Format(time.RFC3339),
		Ingredients: ingredients,
		Products:    products,
		Orders:      orders,
		Customers:   customers,
	}, nil
}

func (s *Store) ImportSnapshot(_ context.Context, doc domain.BackupDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ingredients = make(map[string]domain.Ingredient, len(doc.Ingredients))
	for _, ing := range doc.Ingredients {
		if ing.ID == "" {
			return fmt.Errorf("%w: ingredient without id in backup", store.ErrValidation)
		}
		s.ingredients[ing.ID] = ing
	}

	s.products = make(map[string]domain.Product, len(doc.Products))
	for _, p := range doc.Products {
		if p.ID == "" {
			return fmt.Errorf("%w: product without id in backup", store.ErrValidation)
		}
		p.Recipe = domain.NormalizeRecipe(p.Recipe)
		s.products[p.ID] = cloneProduct(p)
	}

	s.orders = make(map[string]domain.Order, len(doc.Orders))
	for _, o := range doc.Orders {
		if o.ID == "" {
			return fmt.Errorf("%w: order without id in backup", store.ErrValidation)
		}
		s.orders[o.ID] = cloneOrder(o)
	}

	s.customers = make(map[string]domain.Customer, len(doc.Customers))
	for _, c := range doc.Customers {
		if c.ID == "" {
			return fmt.Errorf("%w: customer without id in backup", store.ErrValidation)
		}
		s.customers[c.ID] = c
	}

	return nil
}

/* --- users --- */

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("%w: user %s already exists", store.ErrValidation, user.Username)
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return fmt.Errorf("%w: user %s", store.ErrNotFound, username)
	}
	u.Password = password
	s.usersByUsername[username] = u
	return nil
}

/* --- clone helpers --- */

func cloneProduct(p domain.Product) domain.Product {
	cloned := p
	cloned.Recipe = slices.Clone(p.Recipe)
	return cloned
}

func cloneOrder(o domain.Order) domain.Order {
	cloned := o
	cloned.Items = slices.Clone(o.Items)
	return cloned
}
