package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/agenda-sync/pkg/database"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// ClientProductRepository provides data access for purchase records.
type ClientProductRepository interface {
	List(ctx context.Context, filter models.ClientProductFilter) ([]*models.ClientProduct, error)
	Get(ctx context.Context, id int64) (*models.ClientProduct, error)
	Create(ctx context.Context, purchase *models.ClientProduct) error
	// Update applies the non-nil fields of patch and returns the stored row.
	Update(ctx context.Context, id int64, patch models.ClientProductPatch) (*models.ClientProduct, error)
	// Relink moves a purchase to another client, refreshing the denormalized names.
	Relink(ctx context.Context, id int64, client *models.Client) error
	Delete(ctx context.Context, id int64) error
	// SalesSummary aggregates revenue by group over purchases in [from, to].
	SalesSummary(ctx context.Context, group models.SalesGroup, from, to *time.Time) ([]*models.SalesSummaryRow, error)
}

type clientProductRepository struct {
	db *database.DB
}

var _ ClientProductRepository = (*clientProductRepository)(nil)

// NewClientProductRepository creates a purchase repository on db.
func NewClientProductRepository(db *database.DB) ClientProductRepository {
	return &clientProductRepository{db: db}
}

const clientProductColumns = `id, client_id, product_code, company_name, person_name, purchase_date,
	units, unit_price, discount_pct, notes, created_at`

func (r *clientProductRepository) List(ctx context.Context, filter models.ClientProductFilter) ([]*models.ClientProduct, error) {
	var w whereBuilder
	if filter.ClientID != nil {
		w.add("client_id = $%d", *filter.ClientID)
	}
	if filter.CompanyContains != "" {
		w.add("company_name ILIKE $%d", likePattern(filter.CompanyContains))
	}
	if filter.PersonContains != "" {
		w.add("person_name ILIKE $%d", likePattern(filter.PersonContains))
	}
	if filter.ProductCode != "" {
		w.add("product_code = $%d", filter.ProductCode)
	}
	if filter.DateMin != nil {
		w.add("purchase_date >= $%d", *filter.DateMin)
	}
	if filter.DateMax != nil {
		w.add("purchase_date <= $%d", *filter.DateMax)
	}

	query := `SELECT ` + clientProductColumns + ` FROM client_products` + w.String() +
		` ORDER BY purchase_date DESC, id DESC`
	rows, err := r.db.Conn(ctx).Query(ctx, query, w.args...)
	if err != nil {
		return nil, storeErr("list purchases", err)
	}
	defer rows.Close()

	purchases := make([]*models.ClientProduct, 0)
	for rows.Next() {
		p, err := scanClientProduct(rows)
		if err != nil {
			return nil, storeErr("list purchases", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list purchases", err)
	}
	return purchases, nil
}

func (r *clientProductRepository) Get(ctx context.Context, id int64) (*models.ClientProduct, error) {
	row := r.db.Conn(ctx).QueryRow(ctx,
		`SELECT `+clientProductColumns+` FROM client_products WHERE id = $1`, id)
	p, err := scanClientProduct(row)
	if err != nil {
		return nil, storeErr("get purchase", err)
	}
	return p, nil
}

func (r *clientProductRepository) Create(ctx context.Context, purchase *models.ClientProduct) error {
	purchase.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO client_products (client_id, product_code, company_name, person_name, purchase_date,
		    units, unit_price, discount_pct, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	err := r.db.Conn(ctx).QueryRow(ctx, query,
		purchase.ClientID,
		purchase.ProductCode,
		purchase.CompanyName,
		purchase.PersonName,
		purchase.PurchaseDate,
		purchase.Units,
		purchase.UnitPrice,
		purchase.AdjustmentPct,
		purchase.Notes,
		purchase.CreatedAt,
	).Scan(&purchase.ID)
	if err != nil {
		return storeErr("create purchase", err)
	}
	return nil
}

func (r *clientProductRepository) Update(ctx context.Context, id int64, patch models.ClientProductPatch) (*models.ClientProduct, error) {
	var sets []string
	var args []any
	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Units != nil {
		set("units", *patch.Units)
	}
	if patch.UnitPrice != nil {
		set("unit_price", *patch.UnitPrice)
	}
	if patch.AdjustmentPct != nil {
		set("discount_pct", *patch.AdjustmentPct)
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	if patch.PurchaseDate != nil {
		set("purchase_date", *patch.PurchaseDate)
	}
	if len(sets) == 0 {
		return r.Get(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE client_products SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), clientProductColumns)

	p, err := scanClientProduct(r.db.Conn(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, storeErr("update purchase", err)
	}
	return p, nil
}

func (r *clientProductRepository) Relink(ctx context.Context, id int64, client *models.Client) error {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE client_products SET client_id = $1, company_name = $2, person_name = $3 WHERE id = $4`,
		client.ID, client.CompanyName, client.PersonName, id)
	if err != nil {
		return storeErr("relink purchase", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("relink purchase", fmt.Sprintf("purchase %d", id))
	}
	return nil
}

func (r *clientProductRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM client_products WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete purchase", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("delete purchase", fmt.Sprintf("purchase %d", id))
	}
	return nil
}

var salesGroupKeys = map[models.SalesGroup]string{
	models.SalesByClient:   "cp.company_name",
	models.SalesByProduct:  "cp.product_code",
	models.SalesByCategory: "p.category",
	models.SalesByMonth:    "to_char(cp.purchase_date, 'YYYY-MM')",
}

func (r *clientProductRepository) SalesSummary(ctx context.Context, group models.SalesGroup, from, to *time.Time) ([]*models.SalesSummaryRow, error) {
	key, ok := salesGroupKeys[group]
	if !ok {
		return nil, fmt.Errorf("unknown sales group %q", group)
	}

	var w whereBuilder
	if from != nil {
		w.add("cp.purchase_date >= $%d", *from)
	}
	if to != nil {
		w.add("cp.purchase_date <= $%d", *to)
	}

	// discount_pct is signed: negative values raise the line total.
	query := fmt.Sprintf(`
		SELECT %[1]s AS key,
		       COUNT(*) AS purchases,
		       COALESCE(SUM(cp.units), 0) AS units,
		       COALESCE(SUM(cp.units * cp.unit_price * (1 - cp.discount_pct / 100)), 0) AS revenue
		FROM client_products cp
		JOIN products p ON p.product_code = cp.product_code%[2]s
		GROUP BY %[1]s
		ORDER BY revenue DESC, key`, key, w.String())

	rows, err := r.db.Conn(ctx).Query(ctx, query, w.args...)
	if err != nil {
		return nil, storeErr("sales summary", err)
	}
	defer rows.Close()

	summary := make([]*models.SalesSummaryRow, 0)
	for rows.Next() {
		var row models.SalesSummaryRow
		if err := rows.Scan(&row.Key, &row.Purchases, &row.Units, &row.Revenue); err != nil {
			return nil, storeErr("sales summary", err)
		}
		row.Revenue = row.Revenue.Round(2)
		if row.Purchases > 0 {
			row.AverageTicket = row.Revenue.Div(decimal.NewFromInt(int64(row.Purchases))).Round(2)
		}
		summary = append(summary, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("sales summary", err)
	}
	return summary, nil
}

func scanClientProduct(row pgx.Row) (*models.ClientProduct, error) {
	var p models.ClientProduct
	err := row.Scan(
		&p.ID,
		&p.ClientID,
		&p.ProductCode,
		&p.CompanyName,
		&p.PersonName,
		&p.PurchaseDate,
		&p.Units,
		&p.UnitPrice,
		&p.AdjustmentPct,
		&p.Notes,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
