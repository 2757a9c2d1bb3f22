package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/agenda-sync/pkg/database"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// ProductRepository provides data access for the product catalog.
type ProductRepository interface {
	List(ctx context.Context, filter models.ProductFilter) ([]*models.Product, error)
	Get(ctx context.Context, code string) (*models.Product, error)
	// Upsert inserts a product or overwrites the one with the same code.
	Upsert(ctx context.Context, product *models.Product) error
}

type productRepository struct {
	db *database.DB
}

var _ ProductRepository = (*productRepository)(nil)

// NewProductRepository creates a product repository on db.
func NewProductRepository(db *database.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `product_code, name, category, description, base_price, billing_type, level, is_active`

func (r *productRepository) List(ctx context.Context, filter models.ProductFilter) ([]*models.Product, error) {
	var w whereBuilder
	if filter.OnlyActive {
		w.addRaw("is_active")
	}
	if filter.Category != "" {
		w.add("category ILIKE $%d", likePattern(filter.Category))
	}
	if filter.MinPrice != nil {
		w.add("base_price >= $%d", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		w.add("base_price <= $%d", *filter.MaxPrice)
	}

	query := `SELECT ` + productColumns + ` FROM products` + w.String() + ` ORDER BY category, product_code`
	rows, err := r.db.Conn(ctx).Query(ctx, query, w.args...)
	if err != nil {
		return nil, storeErr("list products", err)
	}
	defer rows.Close()

	products := make([]*models.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, storeErr("list products", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list products", err)
	}
	return products, nil
}

func (r *productRepository) Get(ctx context.Context, code string) (*models.Product, error) {
	row := r.db.Conn(ctx).QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE product_code = $1`, code)
	p, err := scanProduct(row)
	if err != nil {
		return nil, storeErr("get product", err)
	}
	return p, nil
}

func (r *productRepository) Upsert(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (product_code, name, category, description, base_price, billing_type, level, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (product_code) DO UPDATE
		SET name = EXCLUDED.name,
		    category = EXCLUDED.category,
		    description = EXCLUDED.description,
		    base_price = EXCLUDED.base_price,
		    billing_type = EXCLUDED.billing_type,
		    level = EXCLUDED.level,
		    is_active = EXCLUDED.is_active`

	_, err := r.db.Conn(ctx).Exec(ctx, query,
		product.Code,
		product.Name,
		product.Category,
		product.Description,
		product.BasePrice,
		product.BillingType,
		product.Level,
		product.IsActive,
	)
	if err != nil {
		return storeErr("upsert product", err)
	}
	return nil
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	err := row.Scan(
		&p.Code,
		&p.Name,
		&p.Category,
		&p.Description,
		&p.BasePrice,
		&p.BillingType,
		&p.Level,
		&p.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
