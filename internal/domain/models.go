package domain

import "time"

// Unit identifiers match what the storage layer and backup files carry.
type Unit string

const (
	UnitGram       Unit = "g"
	UnitKilogram   Unit = "kg"
	UnitMilliliter Unit = "ml"
	UnitLiter      Unit = "L"
	UnitCount      Unit = "u"
)

type ComponentType string

const (
	ComponentIngredient ComponentType = "INGREDIENT"
	ComponentProduct    ComponentType = "PRODUCT"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "Pending"
	StatusInProgress OrderStatus = "InProgress"
	StatusReady      OrderStatus = "Ready"
	StatusDelivered  OrderStatus = "Delivered"
	StatusPaid       OrderStatus = "Paid"
)

// StatusPipeline is the fixed, strictly linear order lifecycle.
var StatusPipeline = []OrderStatus{
	StatusPending,
	StatusInProgress,
	StatusReady,
	StatusDelivered,
	StatusPaid,
}

// Ingredient stock is always held in base units (g, ml or u); the display
// unit is only how the business reasons and prices. CostPerDisplayUnit is a
// weighted average in the smallest monetary unit, per display unit.
type Ingredient struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	StockBase          float64 `json:"stockBase"`
	DisplayUnit        Unit    `json:"displayUnit"`
	CostPerDisplayUnit int64   `json:"costPerDisplayUnit"`
	MinStockBase       float64 `json:"minStock"`
}

// RecipeItem references either an ingredient or another product. Legacy
// records may lack ComponentType; NormalizeRecipe defaults it to INGREDIENT
// so the engine never branches on a missing field.
type RecipeItem struct {
	ComponentID   string        `json:"componentId"`
	ComponentType ComponentType `json:"componentType,omitempty"`
	Quantity      float64       `json:"quantity"`
	Unit          Unit          `json:"unit"`
}

type Product struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Price          int64        `json:"price"`
	Description    string       `json:"description,omitempty"`
	IsIntermediate bool         `json:"isIntermediate"`
	Recipe         []RecipeItem `json:"recipe"`
}

// NormalizeRecipe applies the legacy-record default at the storage boundary.
func NormalizeRecipe(recipe []RecipeItem) []RecipeItem {
	for i := range recipe {
		if recipe[i].ComponentType == "" {
			recipe[i].ComponentType = ComponentIngredient
		}
	}
	return recipe
}

type OrderItem struct {
	ProductID         string `json:"productId"`
	Quantity          int    `json:"quantity"`
	UnitPriceSnapshot int64  `json:"unitPriceSnapshot"`
}

// Order freezes its total at create/edit time from the per-item price
// snapshots; it is never recomputed from current product prices.
type Order struct {
	ID               string      `json:"id"`
	CustomerID       string      `json:"customerId"`
	CustomerName     string      `json:"customerName"`
	DeliveryDate     string      `json:"deliveryDate"`
	Status           OrderStatus `json:"status"`
	Items            []OrderItem `json:"items"`
	TotalPrice       int64       `json:"totalPrice"`
	AccountingClosed bool        `json:"accountingClosed"`
	CreatedAt        time.Time   `json:"createdAt"`
}

type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type IngredientCreateRequest struct {
	Name               string  `json:"name"`
	InitialStock       float64 `json:"initialStock"`
	Unit               Unit    `json:"unit"`
	CostPerDisplayUnit int64   `json:"costPerDisplayUnit"`
	MinStock           float64 `json:"minStock"`
}

type IngredientUpdateRequest struct {
	Name     *string  `json:"name,omitempty"`
	MinStock *float64 `json:"minStock,omitempty"`
}

// StockAdjustRequest sets an absolute stock level in the ingredient's display
// unit. PurchasePrice is supplied only when new stock was bought and triggers
// the weighted-average cost update.
type StockAdjustRequest struct {
	NewQuantity   float64 `json:"newQuantity"`
	Unit          Unit    `json:"unit,omitempty"`
	PurchasePrice *int64  `json:"purchasePrice,omitempty"`
}

type ProductCreateRequest struct {
	Name           string       `json:"name"`
	Price          int64        `json:"price"`
	Description    string       `json:"description,omitempty"`
	IsIntermediate bool         `json:"isIntermediate"`
	Recipe         []RecipeItem `json:"recipe"`
}

type ProductUpdateRequest struct {
	Name           *string       `json:"name,omitempty"`
	Price          *int64        `json:"price,omitempty"`
	Description    *string       `json:"description,omitempty"`
	IsIntermediate *bool         `json:"isIntermediate,omitempty"`
	Recipe         *[]RecipeItem `json:"recipe,omitempty"`
}

type UnitCostResponse struct {
	ProductID string `json:"productId"`
	UnitCost  int64  `json:"unitCost"`
	Price     int64  `json:"price"`
	Margin    int64  `json:"margin"`
}

type OrderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type OrderCreateRequest struct {
	CustomerID   string             `json:"customerId"`
	CustomerName string             `json:"customerName"`
	DeliveryDate string             `json:"deliveryDate"`
	Items        []OrderItemRequest `json:"items"`
}

type OrderUpdateRequest struct {
	DeliveryDate *string            `json:"deliveryDate,omitempty"`
	Items        []OrderItemRequest `json:"items"`
}

type CustomerCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// ProductionRequirement compares one ingredient's aggregate need for a day's
// open orders against what is physically on hand. Quantities are base units.
type ProductionRequirement struct {
	IngredientID   string  `json:"ingredientId"`
	IngredientName string  `json:"ingredientName"`
	TotalNeeded    float64 `json:"totalNeeded"`
	CurrentStock   float64 `json:"currentStock"`
	Shortfall      float64 `json:"shortfall"`
	DisplayUnit    Unit    `json:"displayUnit"`
}

type ProductionPlan struct {
	Date         string                  `json:"date"`
	Requirements []ProductionRequirement `json:"requirements"`
	GeneratedAt  string                  `json:"generatedAt"`
}

type LowStockEntry struct {
	IngredientID string  `json:"ingredientId"`
	Name         string  `json:"name"`
	StockBase    float64 `json:"stockBase"`
	MinStockBase float64 `json:"minStock"`
	DisplayUnit  Unit    `json:"displayUnit"`
	DisplayStock float64 `json:"displayStock"`
}

// Debtor groups a customer's delivered-but-unpaid orders.
type Debtor struct {
	Customer Customer `json:"customer"`
	Orders   []Order  `json:"orders"`
	Total    int64    `json:"total"`
}

type ReceivablesResponse struct {
	Debtors   []Debtor `json:"debtors"`
	TotalOwed int64    `json:"totalOwed"`
}

type AccountingCloseRequest struct {
	Cutoff string `json:"cutoff"`
}

type AccountingCloseResponse struct {
	ClosedOrders int    `json:"closedOrders"`
	Cutoff       string `json:"cutoff"`
	ClosedAt     string `json:"closedAt"`
}

// BackupDocument is the flat per-entity snapshot the backup subsystem
// serializes verbatim.
type BackupDocument struct {
	BackupDate  string       `json:"backupDate"`
	Ingredients []Ingredient `json:"ingredients"`
	Products    []Product    `json:"products"`
	Orders      []Order      `json:"orders"`
	Customers   []Customer   `json:"customers"`
}

type RestoreResponse struct {
	Ingredients int `json:"ingredients"`
	Products    int `json:"products"`
	Orders      int `json:"orders"`
	Customers   int `json:"customers"`
}
