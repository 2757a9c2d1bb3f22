package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Billing types for catalog products.
const (
	BillingOneTime   = "one_time"
	BillingRecurring = "recurring"
)

// Product is a catalog entry keyed by an immutable product code.
// Created by catalog seeding; read-only from the pipeline's perspective.
type Product struct {
	Code        string          `json:"product_code"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	BasePrice   decimal.Decimal `json:"base_price"`
	BillingType string          `json:"billing_type"`
	Level       string          `json:"level,omitempty"`
	IsActive    bool            `json:"is_active"`
}

// ProductFilter narrows catalog listings.
type ProductFilter struct {
	Category   string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	OnlyActive bool
}

// ClientProduct is a purchase record linking a Client to a Product.
//
// AdjustmentPct is a signed percentage applied to the unit price. Source data
// carries negative values (a price increase), so it is never assumed to be a
// reduction. It is persisted in the discount_pct column.
type ClientProduct struct {
	ID            int64           `json:"id"`
	ClientID      int64           `json:"client_id"`
	ProductCode   string          `json:"product_code"`
	CompanyName   string          `json:"company_name,omitempty"`
	PersonName    string          `json:"person_name,omitempty"`
	PurchaseDate  time.Time       `json:"purchase_date"`
	Units         int             `json:"units"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	AdjustmentPct decimal.Decimal `json:"discount_pct"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Total returns units * unit price, adjusted by the signed percentage.
func (p *ClientProduct) Total() decimal.Decimal {
	gross := p.UnitPrice.Mul(decimal.NewFromInt(int64(p.Units)))
	factor := decimal.NewFromInt(1).Sub(p.AdjustmentPct.Div(decimal.NewFromInt(100)))
	return gross.Mul(factor).Round(2)
}

// ClientProductFilter narrows purchase listings.
type ClientProductFilter struct {
	ClientID        *int64
	CompanyContains string
	PersonContains  string
	ProductCode     string
	DateMin         *time.Time
	DateMax         *time.Time
}

// ClientProductPatch carries the optional fields of a purchase update.
type ClientProductPatch struct {
	Units         *int
	UnitPrice     *decimal.Decimal
	AdjustmentPct *decimal.Decimal
	Notes         *string
	PurchaseDate  *time.Time
}

// SalesGroup selects the aggregation axis of a sales summary.
type SalesGroup string

const (
	SalesByClient   SalesGroup = "client"
	SalesByProduct  SalesGroup = "product"
	SalesByCategory SalesGroup = "category"
	SalesByMonth    SalesGroup = "month"
)

// SalesSummaryRow is one aggregate bucket of a sales summary.
type SalesSummaryRow struct {
	Key           string          `json:"key"`
	Purchases     int             `json:"purchases"`
	Units         int             `json:"units"`
	Revenue       decimal.Decimal `json:"revenue"`
	AverageTicket decimal.Decimal `json:"average_ticket"`
}
