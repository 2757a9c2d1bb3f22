package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/models"
	"github.com/ekaya-inc/agenda-sync/pkg/services"
)

// RegisterCatalogTools registers the product, purchase and sales tools.
func RegisterCatalogTools(s *server.MCPServer, deps *ToolDeps) {
	registerListProductsTool(s, deps)
	registerListClientPurchasesTool(s, deps)
	registerAddClientPurchaseTool(s, deps)
	registerUpdateClientPurchaseTool(s, deps)
	registerDeleteClientPurchaseTool(s, deps)
	registerSalesSummaryTool(s, deps)
}

// purchaseView adds the computed total to a purchase record.
type purchaseView struct {
	*models.ClientProduct
	Total string `json:"total"`
}

func viewPurchase(p *models.ClientProduct) purchaseView {
	return purchaseView{ClientProduct: p, Total: p.Total().StringFixed(2)}
}

func registerListProductsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"list_products",
		mcp.WithDescription("List catalog products with their base price and billing type."),
		mcp.WithString("category", mcp.Description("Exact category, e.g. Consultoría")),
		mcp.WithNumber("min_price", mcp.Description("Minimum base price")),
		mcp.WithNumber("max_price", mcp.Description("Maximum base price")),
		mcp.WithBoolean("only_active", mcp.Description("Hide discontinued products (default: true)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filter := models.ProductFilter{Category: getOptionalString(req, "category"), OnlyActive: true}
		var err error
		if filter.MinPrice, err = getOptionalDecimal(req, "min_price"); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if filter.MaxPrice, err = getOptionalDecimal(req, "max_price"); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if onlyActive, ok := getOptionalBool(req, "only_active"); ok {
			filter.OnlyActive = onlyActive
		}

		products, err := deps.Catalog.ListProducts(ctx, filter)
		if err != nil {
			return serviceErrorResult(err)
		}
		if products == nil {
			products = []*models.Product{}
		}
		return jsonResult(struct {
			Products []*models.Product `json:"products"`
			Count    int               `json:"count"`
		}{products, len(products)})
	})
}

func registerListClientPurchasesTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"list_client_purchases",
		mcp.WithDescription("List purchase records, newest first. All filters are optional."),
		mcp.WithNumber("client_id", mcp.Description("Only purchases of this client")),
		mcp.WithString("company_contains", mcp.Description("Case-insensitive company filter")),
		mcp.WithString("person_contains", mcp.Description("Case-insensitive contact filter")),
		mcp.WithString("product_code", mcp.Description("Only purchases of this product")),
		mcp.WithString("date_min", mcp.Description("Earliest purchase date (YYYY-MM-DD)")),
		mcp.WithString("date_max", mcp.Description("Latest purchase date (YYYY-MM-DD)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filter := models.ClientProductFilter{
			CompanyContains: getOptionalString(req, "company_contains"),
			PersonContains:  getOptionalString(req, "person_contains"),
			ProductCode:     getOptionalString(req, "product_code"),
		}
		clientID, hasClient, err := getOptionalInt(req, "client_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if hasClient {
			filter.ClientID = &clientID
		}
		if filter.DateMin, err = getOptionalTime(req, "date_min", time.UTC); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if filter.DateMax, err = getOptionalTime(req, "date_max", time.UTC); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		purchases, err := deps.Catalog.ListPurchases(ctx, filter)
		if err != nil {
			return serviceErrorResult(err)
		}
		views := make([]purchaseView, 0, len(purchases))
		for _, p := range purchases {
			views = append(views, viewPurchase(p))
		}
		return jsonResult(struct {
			Purchases []purchaseView `json:"purchases"`
			Count     int            `json:"count"`
		}{views, len(views)})
	})
}

func registerAddClientPurchaseTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"add_client_purchase",
		mcp.WithDescription(
			"Record a purchase of a catalog product. The client is given by client_id or by "+
				"company_name/person_name; an unknown company is created as a new client. "+
				"unit_price defaults to the product's base price. discount_pct is a signed percentage: "+
				"10 lowers the price by 10%, -10 raises it by 10%.",
		),
		mcp.WithString("product_code", mcp.Required(), mcp.Description("Catalog product code, e.g. DIAG-001")),
		mcp.WithNumber("client_id", mcp.Description("Existing client id")),
		mcp.WithString("company_name", mcp.Description("Client company, when client_id is not given")),
		mcp.WithString("person_name", mcp.Description("Client contact person")),
		mcp.WithNumber("units", mcp.Description("Number of units (default: 1)")),
		mcp.WithNumber("unit_price", mcp.Description("Price per unit")),
		mcp.WithNumber("discount_pct", mcp.Description("Signed price adjustment in percent (default: 0)")),
		mcp.WithString("purchase_date", mcp.Description("Purchase date, YYYY-MM-DD (default: today)")),
		mcp.WithString("notes", mcp.Description("Free-form notes")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := req.RequireString("product_code")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		in := services.PurchaseInput{
			CompanyName: getOptionalString(req, "company_name"),
			PersonName:  getOptionalString(req, "person_name"),
			ProductCode: trimString(code),
			Notes:       getOptionalString(req, "notes"),
		}
		clientID, hasClient, err := getOptionalInt(req, "client_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if hasClient {
			in.ClientID = &clientID
		}
		units, _, err := getOptionalInt(req, "units")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		in.Units = int(units)
		if in.UnitPrice, err = getOptionalDecimal(req, "unit_price"); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		adjustment, err := getOptionalDecimal(req, "discount_pct")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if adjustment != nil {
			in.AdjustmentPct = *adjustment
		}
		if in.PurchaseDate, err = getOptionalTime(req, "purchase_date", time.UTC); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		purchase, err := deps.Catalog.AddPurchase(ctx, in)
		if err != nil {
			deps.Logger.Info("add_client_purchase failed", zap.String("product_code", in.ProductCode), zap.Error(err))
			return serviceErrorResult(err)
		}
		return jsonResult(viewPurchase(purchase))
	})
}

func registerUpdateClientPurchaseTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"update_client_purchase",
		mcp.WithDescription(
			"Update a purchase record. Only the given fields change. A new company_name moves "+
				"the purchase to that client.",
		),
		mcp.WithNumber("purchase_id", mcp.Required(), mcp.Description("Purchase record id")),
		mcp.WithString("company_name", mcp.Description("New client company")),
		mcp.WithString("person_name", mcp.Description("New client contact person")),
		mcp.WithNumber("units", mcp.Description("New number of units")),
		mcp.WithNumber("unit_price", mcp.Description("New price per unit")),
		mcp.WithNumber("discount_pct", mcp.Description("New signed price adjustment in percent")),
		mcp.WithString("purchase_date", mcp.Description("New purchase date, YYYY-MM-DD")),
		mcp.WithString("notes", mcp.Description("New notes")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok, err := getOptionalInt(req, "purchase_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if !ok {
			return NewErrorResult("invalid_parameters", "purchase_id is required"), nil
		}

		in := services.PurchaseUpdate{
			CompanyName: getOptionalStringPtr(req, "company_name"),
			PersonName:  getOptionalStringPtr(req, "person_name"),
		}
		in.Notes = getOptionalStringPtr(req, "notes")
		units, hasUnits, err := getOptionalInt(req, "units")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if hasUnits {
			u := int(units)
			in.Units = &u
		}
		if in.UnitPrice, err = getOptionalDecimal(req, "unit_price"); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if in.AdjustmentPct, err = getOptionalDecimal(req, "discount_pct"); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if in.PurchaseDate, err = getOptionalTime(req, "purchase_date", time.UTC); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		purchase, err := deps.Catalog.UpdatePurchase(ctx, id, in)
		if err != nil {
			return serviceErrorResult(err)
		}
		return jsonResult(viewPurchase(purchase))
	})
}

func registerDeleteClientPurchaseTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"delete_client_purchase",
		mcp.WithDescription("Delete a purchase record."),
		mcp.WithNumber("purchase_id", mcp.Required(), mcp.Description("Purchase record id")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok, err := getOptionalInt(req, "purchase_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if !ok {
			return NewErrorResult("invalid_parameters", "purchase_id is required"), nil
		}

		if err := deps.Catalog.DeletePurchase(ctx, id); err != nil {
			return serviceErrorResult(err)
		}
		return jsonResult(struct {
			Deleted bool  `json:"deleted"`
			ID      int64 `json:"id"`
		}{true, id})
	})
}

func registerSalesSummaryTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"sales_summary",
		mcp.WithDescription(
			"Aggregate purchases into revenue, units and average ticket, grouped by client, product, "+
				"category or month, highest revenue first.",
		),
		mcp.WithString("group_by",
			mcp.Description("Aggregation axis (default: client)"),
			mcp.Enum(string(models.SalesByClient), string(models.SalesByProduct),
				string(models.SalesByCategory), string(models.SalesByMonth)),
		),
		mcp.WithString("date_from", mcp.Description("Earliest purchase date (YYYY-MM-DD)")),
		mcp.WithString("date_to", mcp.Description("Latest purchase date (YYYY-MM-DD)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		group := models.SalesGroup(getOptionalString(req, "group_by"))
		from, err := getOptionalTime(req, "date_from", time.UTC)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		to, err := getOptionalTime(req, "date_to", time.UTC)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		rows, err := deps.Catalog.SalesSummary(ctx, group, from, to)
		if err != nil {
			return serviceErrorResult(err)
		}
		if rows == nil {
			rows = []*models.SalesSummaryRow{}
		}
		if group == "" {
			group = models.SalesByClient
		}
		return jsonResult(struct {
			GroupBy models.SalesGroup         `json:"group_by"`
			Rows    []*models.SalesSummaryRow `json:"rows"`
		}{group, rows})
	})
}
