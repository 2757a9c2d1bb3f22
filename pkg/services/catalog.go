package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/apperrors"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
	"github.com/ekaya-inc/agenda-sync/pkg/repositories"
)

// PurchaseInput describes a purchase to record. The client is resolved from
// ClientID when set, otherwise from the company and person names.
type PurchaseInput struct {
	ClientID      *int64
	CompanyName   string
	PersonName    string
	ProductCode   string
	Units         int
	UnitPrice     *decimal.Decimal // defaults to the product's base price
	AdjustmentPct decimal.Decimal
	PurchaseDate  *time.Time // defaults to today
	Notes         string
}

// PurchaseUpdate carries the optional fields of a purchase update. A new
// company name moves the purchase to the matching client.
type PurchaseUpdate struct {
	models.ClientProductPatch
	CompanyName *string
	PersonName  *string
}

// CatalogService manages the product catalog, purchase records and sales
// aggregates.
type CatalogService interface {
	ListProducts(ctx context.Context, filter models.ProductFilter) ([]*models.Product, error)
	ListPurchases(ctx context.Context, filter models.ClientProductFilter) ([]*models.ClientProduct, error)
	AddPurchase(ctx context.Context, in PurchaseInput) (*models.ClientProduct, error)
	UpdatePurchase(ctx context.Context, id int64, in PurchaseUpdate) (*models.ClientProduct, error)
	DeletePurchase(ctx context.Context, id int64) error
	SalesSummary(ctx context.Context, group models.SalesGroup, from, to *time.Time) ([]*models.SalesSummaryRow, error)
}

type catalogService struct {
	products   repositories.ProductRepository
	purchases  repositories.ClientProductRepository
	clients    repositories.ClientRepository
	reconciler Reconciler
	now        func() time.Time
	logger     *zap.Logger
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService creates a CatalogService.
func NewCatalogService(
	products repositories.ProductRepository,
	purchases repositories.ClientProductRepository,
	clients repositories.ClientRepository,
	reconciler Reconciler,
	logger *zap.Logger,
) CatalogService {
	return &catalogService{
		products:   products,
		purchases:  purchases,
		clients:    clients,
		reconciler: reconciler,
		now:        time.Now,
		logger:     logger.Named("catalog"),
	}
}

func (s *catalogService) ListProducts(ctx context.Context, filter models.ProductFilter) ([]*models.Product, error) {
	if filter.MinPrice != nil && filter.MaxPrice != nil && filter.MaxPrice.LessThan(*filter.MinPrice) {
		return nil, fmt.Errorf("max_price is below min_price: %w", apperrors.ErrInvalidInput)
	}
	return s.products.List(ctx, filter)
}

func (s *catalogService) ListPurchases(ctx context.Context, filter models.ClientProductFilter) ([]*models.ClientProduct, error) {
	return s.purchases.List(ctx, filter)
}

func (s *catalogService) AddPurchase(ctx context.Context, in PurchaseInput) (*models.ClientProduct, error) {
	code := strings.TrimSpace(in.ProductCode)
	if code == "" {
		return nil, fmt.Errorf("product_code is required: %w", apperrors.ErrInvalidInput)
	}
	if in.Units == 0 {
		in.Units = 1
	}
	if in.Units < 1 {
		return nil, fmt.Errorf("units must be at least 1, got %d: %w", in.Units, apperrors.ErrInvalidInput)
	}
	if in.UnitPrice != nil && in.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("unit_price must not be negative: %w", apperrors.ErrInvalidInput)
	}

	product, err := s.products.Get(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to load product %s: %w", code, err)
	}

	client, err := s.resolveClient(ctx, in.ClientID, in.CompanyName, in.PersonName)
	if err != nil {
		return nil, err
	}

	price := product.BasePrice
	if in.UnitPrice != nil {
		price = *in.UnitPrice
	}
	date := s.now()
	if in.PurchaseDate != nil {
		date = *in.PurchaseDate
	}

	purchase := &models.ClientProduct{
		ClientID:      client.ID,
		ProductCode:   product.Code,
		CompanyName:   client.CompanyName,
		PersonName:    client.PersonName,
		PurchaseDate:  truncateDay(date),
		Units:         in.Units,
		UnitPrice:     price,
		AdjustmentPct: in.AdjustmentPct,
		Notes:         strings.TrimSpace(in.Notes),
	}
	if err := s.purchases.Create(ctx, purchase); err != nil {
		return nil, fmt.Errorf("failed to record purchase: %w", err)
	}

	s.logger.Info("Recorded purchase",
		zap.Int64("purchase_id", purchase.ID),
		zap.Int64("client_id", purchase.ClientID),
		zap.String("product_code", purchase.ProductCode),
		zap.String("total", purchase.Total().String()))
	return purchase, nil
}

func (s *catalogService) UpdatePurchase(ctx context.Context, id int64, in PurchaseUpdate) (*models.ClientProduct, error) {
	if in.Units != nil && *in.Units < 1 {
		return nil, fmt.Errorf("units must be at least 1, got %d: %w", *in.Units, apperrors.ErrInvalidInput)
	}
	if in.UnitPrice != nil && in.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("unit_price must not be negative: %w", apperrors.ErrInvalidInput)
	}
	if in.PurchaseDate != nil {
		d := truncateDay(*in.PurchaseDate)
		in.PurchaseDate = &d
	}

	current, err := s.purchases.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase %d: %w", id, err)
	}

	if in.CompanyName != nil || in.PersonName != nil {
		company, person := current.CompanyName, current.PersonName
		if in.CompanyName != nil {
			company = *in.CompanyName
			// A different company drops the old contact unless a new one is given.
			if !models.SameCompany(company, current.CompanyName) {
				person = ""
			}
		}
		if in.PersonName != nil {
			person = *in.PersonName
		}
		client, err := s.resolveClient(ctx, nil, company, person)
		if err != nil {
			return nil, err
		}
		if client.ID != current.ClientID || client.CompanyName != current.CompanyName || client.PersonName != current.PersonName {
			if err := s.purchases.Relink(ctx, id, client); err != nil {
				return nil, fmt.Errorf("failed to relink purchase %d: %w", id, err)
			}
		}
	}

	updated, err := s.purchases.Update(ctx, id, in.ClientProductPatch)
	if err != nil {
		return nil, fmt.Errorf("failed to update purchase %d: %w", id, err)
	}
	return updated, nil
}

func (s *catalogService) DeletePurchase(ctx context.Context, id int64) error {
	if err := s.purchases.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete purchase %d: %w", id, err)
	}
	return nil
}

func (s *catalogService) SalesSummary(ctx context.Context, group models.SalesGroup, from, to *time.Time) ([]*models.SalesSummaryRow, error) {
	switch group {
	case "":
		group = models.SalesByClient
	case models.SalesByClient, models.SalesByProduct, models.SalesByCategory, models.SalesByMonth:
	default:
		return nil, fmt.Errorf("unknown sales grouping %q: %w", group, apperrors.ErrInvalidInput)
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, fmt.Errorf("end date is before start date: %w", apperrors.ErrInvalidInput)
	}
	return s.purchases.SalesSummary(ctx, group, from, to)
}

// resolveClient finds the purchase's client by id, or reconciles one from
// the names so that purchases never create duplicate clients.
func (s *catalogService) resolveClient(ctx context.Context, id *int64, company, person string) (*models.Client, error) {
	if id != nil {
		c, err := s.clients.GetByID(ctx, *id)
		if err != nil {
			return nil, fmt.Errorf("failed to load client %d: %w", *id, err)
		}
		return c, nil
	}

	company = strings.TrimSpace(company)
	if company == "" {
		return nil, fmt.Errorf("client_id or company_name is required: %w", apperrors.ErrInvalidInput)
	}
	res, err := s.reconciler.ReconcileClient(ctx, &models.ValidatedClient{
		CompanyName: company,
		PersonName:  strings.TrimSpace(person),
	})
	if err != nil {
		return nil, err
	}
	c, err := s.clients.GetByID(ctx, *res.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load client %d: %w", *res.ClientID, err)
	}
	return c, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
