package store

import (
	"context"
	"errors"

	"pasteleria/backend/internal/domain"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("concurrent update conflict")
	ErrAccountingLocked = errors.New("order locked by accounting closure")
)

// Usage maps ingredient id to a base-unit quantity. It is the unit of work
// for every order-driven stock mutation.
type Usage map[string]float64

// Repository is the storage boundary. Implementations must make every
// multi-ingredient mutation (ApplyUsage, ReverseUsage, the order
// operations carrying a usage map, and the combined stock+cost
// adjustment) atomic: either all affected balances change or none do.
// Debits clamp stock at zero rather than failing; running short is a
// planning problem, not a ledger error.
type Repository interface {
	ListIngredients(ctx context.Context) ([]domain.Ingredient, error)
	GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error)
	CreateIngredient(ctx context.Context, ing domain.Ingredient) (*domain.Ingredient, error)
	UpdateIngredient(ctx context.Context, ing domain.Ingredient) (*domain.Ingredient, error)
	DeleteIngredient(ctx context.Context, id string) error

	// AdjustIngredientStock sets an absolute base-unit stock level. When the
	// level increases and a purchase price is supplied, the weighted-average
	// cost update is applied in the same atomic step; decreases and
	// price-less corrections leave the cost untouched.
	AdjustIngredientStock(ctx context.Context, id string, newStockBase float64, purchasePrice *int64) (*domain.Ingredient, error)

	ApplyUsage(ctx context.Context, usage Usage) error
	ReverseUsage(ctx context.Context, usage Usage) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListOrders(ctx context.Context) ([]domain.Order, error)
	ListOrdersByDate(ctx context.Context, deliveryDate string, statuses []domain.OrderStatus) ([]domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// CreateOrder records the order and debits its usage map in one step.
	CreateOrder(ctx context.Context, order domain.Order, usage Usage) (*domain.Order, error)
	// UpdateOrder credits the old item set's usage, debits the new one and
	// rewrites the record, all in one step.
	UpdateOrder(ctx context.Context, order domain.Order, oldUsage Usage, newUsage Usage) (*domain.Order, error)
	// DeleteOrder credits the order's usage and removes the record.
	DeleteOrder(ctx context.Context, id string, usage Usage) error
	SetOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)
	CloseAccounting(ctx context.Context, cutoffDate string) (int, error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error

	ExportSnapshot(ctx context.Context) (*domain.BackupDocument, error)
	ImportSnapshot(ctx context.Context, doc domain.BackupDocument) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
