package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pasteleria/backend/internal/domain"
	"pasteleria/backend/internal/recipe"
	"pasteleria/backend/internal/store"
	"pasteleria/backend/internal/units"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS ingredients (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			stock_base DOUBLE PRECISION NOT NULL DEFAULT 0,
			display_unit TEXT NOT NULL,
			cost_per_display_unit BIGINT NOT NULL DEFAULT 0,
			min_stock_base DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			price BIGINT NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			is_intermediate BOOLEAN NOT NULL DEFAULT false,
			recipe JSONB NOT NULL DEFAULT '[]'
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL DEFAULT '',
			customer_name TEXT NOT NULL DEFAULT '',
			delivery_date TEXT NOT NULL,
			status TEXT NOT NULL,
			items JSONB NOT NULL DEFAULT '[]',
			total_price BIGINT NOT NULL DEFAULT 0,
			accounting_closed BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS orders_delivery_date_idx ON orders (delivery_date)`,
		`CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

/* --- ingredients --- */

func (s *Store) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, stock_base, display_unit, cost_per_display_unit, min_stock_base
		FROM ingredients
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ingredients := make([]domain.Ingredient, 0, 64)
	for rows.Next() {
		var ing domain.Ingredient
		if err := rows.Scan(&ing.ID, &ing.Name, &ing.StockBase, &ing.DisplayUnit, &ing.CostPerDisplayUnit, &ing.MinStockBase); err != nil {
			return nil, err
		}
		ingredients = append(ingredients, ing)
	}
	return ingredients, rows.Err()
}

func (s *Store) GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error) {
	var ing domain.Ingredient
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, stock_base, display_unit, cost_per_display_unit, min_stock_base
		FROM ingredients
		WHERE id = $1
	`, id).Scan(&ing.ID, &ing.Name, &ing.StockBase, &ing.DisplayUnit, &ing.CostPerDisplayUnit, &ing.MinStockBase)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: ingredient %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	return &ing, nil
}

func (s *Store) CreateIngredient(ctx context.Context, ing domain.Ingredient) (*domain.Ingredient, error) {
	if ing.ID == "" || ing.Name == "" || ing.StockBase < 0 {
		return nil, store.ErrValidation
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingredients (id, name, stock_base, display_unit, cost_per_display_unit, min_stock_base)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, ing.ID, ing.Name, ing.StockBase, ing.DisplayUnit, ing.CostPerDisplayUnit, ing.MinStockBase)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: ingredient %s already exists", store.ErrValidation, ing.ID)
		}
		return nil, err
	}

	created := ing
	return &created, nil
}

func (s *Store) UpdateIngredient(ctx context.Context, ing domain.Ingredient) (*domain.Ingredient, error) {
	// Stock and cost are ledger-owned; this update never touches them.
	res, err := s.db.ExecContext(ctx, `
		UPDATE ingredients
		SET name = $2, display_unit = $3, min_stock_base = $4
		WHERE id = $1
	`, ing.ID, ing.Name, ing.DisplayUnit, ing.MinStockBase)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, fmt.Errorf("%w: ingredient %s", store.ErrNotFound, ing.ID)
	}
	return s.GetIngredient(ctx, ing.ID)
}

func (s *Store) DeleteIngredient(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ingredients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: ingredient %s", store.ErrNotFound, id)
	}
	return nil
}

func (s *Store) AdjustIngredientStock(ctx context.Context, id string, newStockBase float64, purchasePrice *int64) (*domain.Ingredient, error) {
	if newStockBase < 0 {
		return nil, fmt.Errorf("%w: stock must not be negative", store.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var ing domain.Ingredient
	err = tx.QueryRowContext(ctx, `
		SELECT id, name, stock_base, display_unit, cost_per_display_unit, min_stock_base
		FROM ingredients
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&ing.ID, &ing.Name, &ing.StockBase, &ing.DisplayUnit, &ing.CostPerDisplayUnit, &ing.MinStockBase)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: ingredient %s", store.ErrNotFound, id)
		}
		return nil, err
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

	_, err = tx.ExecContext(ctx, `
		UPDATE ingredients
		SET stock_base = $2, cost_per_display_unit = $3
		WHERE id = $1
	`, ing.ID, ing.StockBase, ing.CostPerDisplayUnit)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapTxErr(err)
	}
	return &ing, nil
}

func (s *Store) ApplyUsage(ctx context.Context, usage store.Usage) error {
	return s.withUsageTx(ctx, func(tx *sql.Tx) error {
		return applyUsageTx(ctx, tx, usage, -1)
	})
}

func (s *Store) ReverseUsage(ctx context.Context, usage store.Usage) error {
	return s.withUsageTx(ctx, func(tx *sql.Tx) error {
		return applyUsageTx(ctx, tx, usage, +1)
	})
}

func (s *Store) withUsageTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapTxErr(err)
	}
	return nil
}

// applyUsageTx locks and mutates the affected rows in sorted id order so
// concurrent mutations cannot deadlock. Debits clamp at zero.
func applyUsageTx(ctx context.Context, tx *sql.Tx, usage store.Usage, sign float64) error {
	ids := make([]string, 0, len(usage))
	for id := range usage {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		var current float64
		err := tx.QueryRowContext(ctx, `
			SELECT stock_base FROM ingredients WHERE id = $1 FOR UPDATE
		`, id).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: ingredient %s", store.ErrNotFound, id)
			}
			return err
		}

		next := current + sign*usage[id]
		if next < 0 {
			next = 0
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE ingredients SET stock_base = $2 WHERE id = $1
		`, id, next); err != nil {
			return err
		}
	}
	return nil
}

/* --- products --- */

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, description, is_intermediate, recipe
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, description, is_intermediate, recipe
		FROM products
		WHERE id = $1
	`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" {
		return nil, store.ErrValidation
	}
	product.Recipe = domain.NormalizeRecipe(product.Recipe)
	recipeJSON, err := json.Marshal(product.Recipe)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, description, is_intermediate, recipe)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, product.ID, product.Name, product.Price, product.Description, product.IsIntermediate, recipeJSON)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product %s already exists", store.ErrValidation, product.ID)
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Recipe = domain.NormalizeRecipe(product.Recipe)
	recipeJSON, err := json.Marshal(product.Recipe)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, description = $4, is_intermediate = $5, recipe = $6
		WHERE id = $1
	`, product.ID, product.Name, product.Price, product.Description, product.IsIntermediate, recipeJSON)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, product.ID)
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	return nil
}

/* --- orders --- */

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, customer_name, delivery_date, status, items, total_price, accounting_closed, created_at
		FROM orders
		ORDER BY delivery_date, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (s *Store) ListOrdersByDate(ctx context.Context, deliveryDate string, statuses []domain.OrderStatus) ([]domain.Order, error) {
	query := `
		SELECT id, customer_id, customer_name, delivery_date, status, items, total_price, accounting_closed, created_at
		FROM orders
		WHERE delivery_date = $1
	`
	args := []any{deliveryDate}
	if len(statuses) > 0 {
		names := make([]string, 0, len(statuses))
		for _, st := range statuses {
			names = append(names, string(st))
		}
		query += ` AND status = ANY($2)`
		args = append(args, names)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, customer_name, delivery_date, status, items, total_price, accounting_closed, created_at
		FROM orders
		WHERE id = $1
	`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	return o, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order, usage store.Usage) (*domain.Order, error) {
	if order.ID == "" || len(order.Items) == 0 {
		return nil, store.ErrValidation
	}
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Record and stock debit commit together or not at all.
	if err := applyUsageTx(ctx, tx, usage, -1); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, customer_name, delivery_date, status, items, total_price, accounting_closed, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, order.ID, order.CustomerID, order.CustomerName, order.DeliveryDate, order.Status, itemsJSON, order.TotalPrice, order.AccountingClosed, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: order %s already exists", store.ErrValidation, order.ID)
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapTxErr(err)
	}
	created := order
	return &created, nil
}

func (s *Store) UpdateOrder(ctx context.Context, order domain.Order, oldUsage store.Usage, newUsage store.Usage) (*domain.Order, error) {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := applyUsageTx(ctx, tx, oldUsage, +1); err != nil {
		return nil, err
	}
	if err := applyUsageTx(ctx, tx, newUsage, -1); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET customer_id = $2, customer_name = $3, delivery_date = $4, status = $5, items = $6, total_price = $7
		WHERE id = $1
	`, order.ID, order.CustomerID, order.CustomerName, order.DeliveryDate, order.Status, itemsJSON, order.TotalPrice)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, order.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapTxErr(err)
	}
	updated := order
	return &updated, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string, usage store.Usage) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := applyUsageTx(ctx, tx, usage, +1); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: order %s", store.ErrNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return wrapTxErr(err)
	}
	return nil
}

func (s *Store) SetOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, fmt.Errorf("%w: order %s", store.ErrNotFound, id)
	}
	return s.GetOrder(ctx, id)
}

func (s *Store) CloseAccounting(ctx context.Context, cutoffDate string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET accounting_closed = true
		WHERE status = $1 AND accounting_closed = false AND delivery_date <= $2
	`, domain.StatusPaid, cutoffDate)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

/* --- customers --- */

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, email, address, notes
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.Notes); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, address, notes
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.Notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || customer.Name == "" {
		return nil, store.ErrValidation
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, address, notes)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, customer.ID, customer.Name, customer.Phone, customer.Email, customer.Address, customer.Notes)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: customer %s already exists", store.ErrValidation, customer.ID)
		}
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, email = $4, address = $5, notes = $6
		WHERE id = $1
	`, customer.ID, customer.Name, customer.Phone, customer.Email, customer.Address, customer.Notes)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, customer.ID)
	}

	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: customer %s", store.ErrNotFound, id)
	}
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

func (s *Store) ImportSnapshot(ctx context.Context, doc domain.BackupDocument) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"orders", "products", "ingredients", "customers"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return err
		}
	}

	for _, ing := range doc.Ingredients {
		if ing.ID == "" {
			return fmt.Errorf("%w: ingredient without id in backup", store.ErrValidation)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ingredients (id, name, stock_base, display_unit, cost_per_display_unit, min_stock_base)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, ing.ID, ing.Name, ing.StockBase, ing.DisplayUnit, ing.CostPerDisplayUnit, ing.MinStockBase); err != nil {
			return err
		}
	}
	for _, p := range doc.Products {
		if p.ID == "" {
			return fmt.Errorf("%w: product without id in backup", store.ErrValidation)
		}
		recipeJSON, err := json.Marshal(domain.NormalizeRecipe(p.Recipe))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, name, price, description, is_intermediate, recipe)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, p.ID, p.Name, p.Price, p.Description, p.IsIntermediate, recipeJSON); err != nil {
			return err
		}
	}
	for _, o := range doc.Orders {
		if o.ID == "" {
			return fmt.Errorf("%w: order without id in backup", store.ErrValidation)
		}
		itemsJSON, err := json.Marshal(o.Items)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, customer_id, customer_name, delivery_date, status, items, total_price, accounting_closed, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, o.ID, o.CustomerID, o.CustomerName, o.DeliveryDate, o.Status, itemsJSON, o.TotalPrice, o.AccountingClosed, o.CreatedAt); err != nil {
			return err
		}
	}
	for _, c := range doc.Customers {
		if c.ID == "" {
			return fmt.Errorf("%w: customer without id in backup", store.ErrValidation)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO customers (id, name, phone, email, address, notes)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, c.ID, c.Name, c.Phone, c.Email, c.Address, c.Notes); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapTxErr(err)
	}
	return nil
}

/* --- users --- */

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (username) DO NOTHING
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: user %s", store.ErrNotFound, username)
	}
	return nil
}

/* --- helpers --- */

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var recipeJSON []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Description, &p.IsIntermediate, &recipeJSON); err != nil {
		return nil, err
	}
	if len(recipeJSON) > 0 {
		if err := json.Unmarshal(recipeJSON, &p.Recipe); err != nil {
			return nil, err
		}
	}
	p.Recipe = domain.NormalizeRecipe(p.Recipe)
	return &p, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var itemsJSON []byte
	if err := row.Scan(&o.ID, &o.CustomerID, &o.CustomerName, &o.DeliveryDate, &o.Status, &itemsJSON, &o.TotalPrice, &o.AccountingClosed, &o.CreatedAt); err != nil {
		return nil, err
	}
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
			return nil, err
		}
	}
	return &o, nil
}

func collectOrders(rows *sql.Rows) ([]domain.Order, error) {
	orders := make([]domain.Order, 0, 64)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// wrapTxErr maps serialization failures onto the conflict sentinel so the
// service layer can retry.
func wrapTxErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "40001" {
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
	}
	return err
}
