// Package postgres serves the catalog and accepts orders from PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dukerupert/larek/internal/domain"
)

// DB is the subset of *pgxpool.Pool used by Catalog.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Catalog implements domain.CatalogSource and domain.OrderSink using PostgreSQL.
type Catalog struct {
	db DB
}

// Compile-time checks.
var (
	_ domain.CatalogSource = (*Catalog)(nil)
	_ domain.OrderSink     = (*Catalog)(nil)
)

// NewCatalog creates a PostgreSQL-backed catalog.
func NewCatalog(db DB) *Catalog {
	return &Catalog{db: db}
}

const productColumns = `id, title, description, image, category, price`

// =============================================================================
// CATALOG
// =============================================================================

// ListProducts returns every product in display order.
func (c *Catalog) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := c.db.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY sort_order, id`)
	if err != nil {
		return nil, domain.Transport(err, "product.list", "failed to list products")
	}

	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Product, error) {
		return scanProduct(row)
	})
	if err != nil {
		return nil, domain.Transport(err, "product.list", "failed to read products")
	}
	return products, nil
}

// GetProduct returns one product by id.
func (c *Catalog) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	row := c.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, domain.NotFound("product.get", "product", id)
		}
		return domain.Product{}, domain.Transport(err, "product.get", "failed to get product")
	}
	return p, nil
}

// UpsertProducts inserts or replaces products, keeping their slice order as
// the display order.
func (c *Catalog) UpsertProducts(ctx context.Context, products []domain.Product) error {
	batch := &pgx.Batch{}
	for i, p := range products {
		batch.Queue(`
			INSERT INTO products (id, title, description, image, category, price, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				description = EXCLUDED.description,
				image = EXCLUDED.image,
				category = EXCLUDED.category,
				price = EXCLUDED.price,
				sort_order = EXCLUDED.sort_order,
				updated_at = NOW()`,
			p.ID, p.Title, p.Description, p.Image, string(p.Category), p.Price, i,
		)
	}

	tx, err := c.db.Begin(ctx)
	if err != nil {
		return domain.Transport(err, "product.upsert", "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return domain.Transport(err, "product.upsert", "failed to upsert products")
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Transport(err, "product.upsert", "failed to commit products")
	}
	return nil
}

// =============================================================================
// ORDERS
// =============================================================================

// SubmitOrder validates the order against the catalog and stores it. Items
// must exist and be for sale, and the total must equal the sum of their
// prices.
func (c *Catalog) SubmitOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error) {
	const op = "order.submit"

	if err := checkOrder(order); err != nil {
		return domain.OrderResult{}, err
	}

	tx, err := c.db.Begin(ctx)
	if err != nil {
		return domain.OrderResult{}, domain.Transport(err, op, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	prices, err := itemPrices(ctx, tx, order.Items)
	if err != nil {
		return domain.OrderResult{}, domain.Transport(err, op, "failed to look up items")
	}
	if err := checkItems(order, prices); err != nil {
		return domain.OrderResult{}, err
	}

	id := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, payment, email, phone, address, total)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, string(order.Payment), order.Email, order.Phone, order.Address, order.Total,
	)
	if err != nil {
		return domain.OrderResult{}, domain.Transport(err, op, "failed to insert order")
	}

	itemRows := make([][]any, len(order.Items))
	for i, productID := range order.Items {
		itemRows[i] = []any{id, i, productID, prices[productID]}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"order_items"},
		[]string{"order_id", "position", "product_id", "price"},
		pgx.CopyFromRows(itemRows),
	)
	if err != nil {
		return domain.OrderResult{}, domain.Transport(err, op, "failed to insert order items")
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.OrderResult{}, domain.Transport(err, op, "failed to commit order")
	}

	return domain.OrderResult{ID: id.String(), Total: order.Total}, nil
}

// itemPrices returns the price of every purchasable product among ids.
// Unknown and priceless products are absent from the map.
func itemPrices(ctx context.Context, tx pgx.Tx, ids []string) (map[string]int64, error) {
	rows, err := tx.Query(ctx, `SELECT id, price FROM products WHERE id = ANY($1) AND price IS NOT NULL`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prices := make(map[string]int64, len(ids))
	for rows.Next() {
		var id string
		var price int64
		if err := rows.Scan(&id, &price); err != nil {
			return nil, err
		}
		prices[id] = price
	}
	return prices, rows.Err()
}

// checkOrder validates the fields that do not need the database.
func checkOrder(order domain.Order) error {
	const op = "order.submit"

	var err error
	if !order.Payment.Valid() {
		err = domain.AddFieldError(err, string(domain.FieldPayment), "payment required")
	}
	if order.Email == "" {
		err = domain.AddFieldError(err, string(domain.FieldEmail), "email required")
	}
	if order.Phone == "" {
		err = domain.AddFieldError(err, string(domain.FieldPhone), "phone required")
	}
	if order.Address == "" {
		err = domain.AddFieldError(err, string(domain.FieldAddress), "address required")
	}
	if len(order.Items) == 0 {
		err = domain.AddFieldError(err, string(domain.FieldItems), "order has no items")
	}
	if err != nil {
		err.(*domain.ValidationError).Op = op
	}
	return err
}

// checkItems verifies every item is purchasable and the total matches.
func checkItems(order domain.Order, prices map[string]int64) error {
	const op = "order.submit"

	var sum int64
	for _, id := range order.Items {
		price, ok := prices[id]
		if !ok {
			return domain.NewValidationError(op, string(domain.FieldItems), fmt.Sprintf("product %s is not for sale", id))
		}
		sum += price
	}
	if sum != order.Total {
		return domain.NewValidationError(op, string(domain.FieldTotal), fmt.Sprintf("total %d does not match items (%d)", order.Total, sum))
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (domain.Product, error) {
	var p domain.Product
	var category string
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Image, &category, &p.Price)
	p.Category = domain.Category(category)
	return p, err
}
