package testhelpers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/agenda-sync/pkg/apperrors"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

const relational = apperrors.StoreRelational

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// FakeClients is an in-memory client repository enforcing match-key uniqueness.
type FakeClients struct {
	Faults

	mu     sync.Mutex
	rows   map[int64]models.Client
	nextID int64
}

func NewFakeClients() *FakeClients {
	return &FakeClients{rows: make(map[int64]models.Client)}
}

func (f *FakeClients) FindByMatchKey(ctx context.Context, key string) (*models.Client, error) {
	if err := f.hit("find"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.rows {
		if c.MatchKey == key {
			return &c, nil
		}
	}
	return nil, notFoundError(relational, "find client", "client "+key)
}

func (f *FakeClients) GetByID(ctx context.Context, id int64) (*models.Client, error) {
	if err := f.hit("get"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return nil, notFoundError(relational, "get client", fmt.Sprintf("client %d", id))
	}
	return &c, nil
}

func (f *FakeClients) Create(ctx context.Context, client *models.Client) error {
	if err := f.hit("create"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if client.MatchKey == "" {
		client.MatchKey = models.ClientMatchKey(client.CompanyName, client.PersonName)
	}
	for _, c := range f.rows {
		if c.MatchKey == client.MatchKey {
			return conflictError(relational, "create client", "clients_match_key_key")
		}
	}
	f.nextID++
	client.ID = f.nextID
	client.CreatedAt = time.Now().UTC()
	client.UpdatedAt = client.CreatedAt
	f.rows[client.ID] = *client
	return nil
}

func (f *FakeClients) Update(ctx context.Context, client *models.Client) error {
	if err := f.hit("update"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.rows[client.ID]
	if !ok {
		return notFoundError(relational, "update client", fmt.Sprintf("client %d", client.ID))
	}
	client.MatchKey = models.ClientMatchKey(client.CompanyName, client.PersonName)
	for id, c := range f.rows {
		if id != client.ID && c.MatchKey == client.MatchKey {
			return conflictError(relational, "update client", "clients_match_key_key")
		}
	}
	client.CreatedAt = old.CreatedAt
	client.UpdatedAt = time.Now().UTC()
	f.rows[client.ID] = *client
	return nil
}

func (f *FakeClients) List(ctx context.Context, filter models.ClientFilter) ([]*models.Client, error) {
	if err := f.hit("list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Client, 0)
	for _, c := range f.rows {
		if !filter.IncludeInactive && !c.Active {
			continue
		}
		if filter.CompanyContains != "" && !containsFold(c.CompanyName, filter.CompanyContains) {
			continue
		}
		if filter.PersonContains != "" && !containsFold(c.PersonName, filter.PersonContains) {
			continue
		}
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *FakeClients) Deactivate(ctx context.Context, id int64) error {
	if err := f.hit("deactivate"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return notFoundError(relational, "deactivate client", fmt.Sprintf("client %d", id))
	}
	c.Active = false
	f.rows[id] = c
	return nil
}

// All returns every stored client ordered by ID.
func (f *FakeClients) All() []models.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Client, 0, len(f.rows))
	for _, c := range f.rows {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FakeEvents is an in-memory event repository enforcing event_id uniqueness.
type FakeEvents struct {
	Faults

	// BeforeCreate runs before each insert, outside the lock. Tests use it to
	// interleave a competing writer.
	BeforeCreate func(event *models.CalendarEvent)

	mu     sync.Mutex
	rows   map[string]models.CalendarEvent
	nextID int64
}

func NewFakeEvents() *FakeEvents {
	return &FakeEvents{rows: make(map[string]models.CalendarEvent)}
}

func (f *FakeEvents) FindByEventID(ctx context.Context, eventID string) (*models.CalendarEvent, error) {
	if err := f.hit("find"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.rows[eventID]
	if !ok {
		return nil, notFoundError(relational, "find event", "event "+eventID)
	}
	return &ev, nil
}

func (f *FakeEvents) Create(ctx context.Context, event *models.CalendarEvent) error {
	if err := f.hit("create"); err != nil {
		return err
	}
	if f.BeforeCreate != nil {
		f.BeforeCreate(event)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.rows[event.EventID]; exists {
		return conflictError(relational, "create event", "calendar_events_event_id_key")
	}
	if !event.End.After(event.Start) {
		return PermanentError(relational, "create event")
	}
	f.nextID++
	event.ID = f.nextID
	event.CreatedAt = time.Now().UTC()
	event.UpdatedAt = event.CreatedAt
	f.rows[event.EventID] = *event
	return nil
}

func (f *FakeEvents) Update(ctx context.Context, event *models.CalendarEvent) error {
	if err := f.hit("update"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.rows[event.EventID]
	if !ok {
		return notFoundError(relational, "update event", "event "+event.EventID)
	}
	if event.ClientID == nil {
		event.ClientID = old.ClientID
	}
	event.ID = old.ID
	event.CreatedAt = old.CreatedAt
	event.UpdatedAt = time.Now().UTC()
	f.rows[event.EventID] = *event
	return nil
}

func (f *FakeEvents) Delete(ctx context.Context, eventID string) error {
	if err := f.hit("delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[eventID]; !ok {
		return notFoundError(relational, "delete event", "event "+eventID)
	}
	delete(f.rows, eventID)
	return nil
}

func (f *FakeEvents) List(ctx context.Context, filter models.EventFilter) ([]*models.CalendarEvent, error) {
	if err := f.hit("list"); err != nil {
		return nil, err
	}
	return f.filter(func(ev *models.CalendarEvent) bool {
		switch {
		case filter.EventID != "" && ev.EventID != filter.EventID:
			return false
		case filter.TimeMin != nil && ev.Start.Before(*filter.TimeMin):
			return false
		case filter.TimeMax != nil && ev.Start.After(*filter.TimeMax):
			return false
		case filter.SummaryContains != "" && !containsFold(ev.Summary, filter.SummaryContains):
			return false
		case filter.CompanyContains != "" && !containsFold(ev.CompanyName, filter.CompanyContains):
			return false
		case filter.ClientID != nil && (ev.ClientID == nil || *ev.ClientID != *filter.ClientID):
			return false
		}
		return true
	}, filter.Limit), nil
}

func (f *FakeEvents) ListLocal(ctx context.Context) ([]*models.CalendarEvent, error) {
	if err := f.hit("list_local"); err != nil {
		return nil, err
	}
	return f.filter((*models.CalendarEvent).IsLocal, 0), nil
}

func (f *FakeEvents) RewriteEventID(ctx context.Context, oldID, newID, calendarID string) error {
	if err := f.hit("rewrite"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.rows[oldID]
	if !ok {
		return notFoundError(relational, "rewrite event id", "event "+oldID)
	}
	if _, taken := f.rows[newID]; taken {
		return conflictError(relational, "rewrite event id", "calendar_events_event_id_key")
	}
	delete(f.rows, oldID)
	ev.EventID = newID
	ev.CalendarID = calendarID
	ev.Source = models.EventSourceSynced
	ev.UpdatedAt = time.Now().UTC()
	f.rows[newID] = ev
	return nil
}

// Put stores event directly, bypassing constraints and fault injection.
func (f *FakeEvents) Put(event models.CalendarEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	event.ID = f.nextID
	f.rows[event.EventID] = event
}

// All returns every stored row ordered by start.
func (f *FakeEvents) All() []models.CalendarEvent {
	rows := f.filter(func(*models.CalendarEvent) bool { return true }, 0)
	out := make([]models.CalendarEvent, len(rows))
	for i, r := range rows {
		out[i] = *r
	}
	return out
}

func (f *FakeEvents) filter(keep func(*models.CalendarEvent) bool, limit int) []*models.CalendarEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.CalendarEvent, 0)
	for _, ev := range f.rows {
		ev := ev
		if keep(&ev) {
			out = append(out, &ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FakeProducts is an in-memory catalog.
type FakeProducts struct {
	Faults

	mu   sync.Mutex
	rows map[string]models.Product
}

// NewFakeProducts creates a catalog holding products.
func NewFakeProducts(products ...models.Product) *FakeProducts {
	f := &FakeProducts{rows: make(map[string]models.Product)}
	for _, p := range products {
		f.rows[p.Code] = p
	}
	return f
}

func (f *FakeProducts) List(ctx context.Context, filter models.ProductFilter) ([]*models.Product, error) {
	if err := f.hit("list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Product, 0)
	for _, p := range f.rows {
		switch {
		case filter.OnlyActive && !p.IsActive:
			continue
		case filter.Category != "" && !containsFold(p.Category, filter.Category):
			continue
		case filter.MinPrice != nil && p.BasePrice.LessThan(*filter.MinPrice):
			continue
		case filter.MaxPrice != nil && p.BasePrice.GreaterThan(*filter.MaxPrice):
			continue
		}
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (f *FakeProducts) Get(ctx context.Context, code string) (*models.Product, error) {
	if err := f.hit("get"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[code]
	if !ok {
		return nil, notFoundError(relational, "get product", "product "+code)
	}
	return &p, nil
}

func (f *FakeProducts) Upsert(ctx context.Context, product *models.Product) error {
	if err := f.hit("upsert"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[product.Code] = *product
	return nil
}

// FakeClientProducts is an in-memory purchase repository. Products, when
// set, is consulted to reject unknown product codes like a foreign key would.
type FakeClientProducts struct {
	Faults

	Products *FakeProducts

	mu     sync.Mutex
	rows   map[int64]models.ClientProduct
	nextID int64
}

func NewFakeClientProducts(products *FakeProducts) *FakeClientProducts {
	return &FakeClientProducts{Products: products, rows: make(map[int64]models.ClientProduct)}
}

func (f *FakeClientProducts) List(ctx context.Context, filter models.ClientProductFilter) ([]*models.ClientProduct, error) {
	if err := f.hit("list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.ClientProduct, 0)
	for _, p := range f.rows {
		switch {
		case filter.ClientID != nil && p.ClientID != *filter.ClientID:
			continue
		case filter.CompanyContains != "" && !containsFold(p.CompanyName, filter.CompanyContains):
			continue
		case filter.PersonContains != "" && !containsFold(p.PersonName, filter.PersonContains):
			continue
		case filter.ProductCode != "" && p.ProductCode != filter.ProductCode:
			continue
		case filter.DateMin != nil && p.PurchaseDate.Before(*filter.DateMin):
			continue
		case filter.DateMax != nil && p.PurchaseDate.After(*filter.DateMax):
			continue
		}
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PurchaseDate.Equal(out[j].PurchaseDate) {
			return out[i].ID > out[j].ID
		}
		return out[i].PurchaseDate.After(out[j].PurchaseDate)
	})
	return out, nil
}

func (f *FakeClientProducts) Get(ctx context.Context, id int64) (*models.ClientProduct, error) {
	if err := f.hit("get"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return nil, notFoundError(relational, "get purchase", fmt.Sprintf("purchase %d", id))
	}
	return &p, nil
}

func (f *FakeClientProducts) Create(ctx context.Context, purchase *models.ClientProduct) error {
	if err := f.hit("create"); err != nil {
		return err
	}
	if f.Products != nil {
		if _, err := f.Products.Get(ctx, purchase.ProductCode); err != nil {
			return PermanentError(relational, "create purchase")
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	purchase.ID = f.nextID
	purchase.CreatedAt = time.Now().UTC()
	f.rows[purchase.ID] = *purchase
	return nil
}

func (f *FakeClientProducts) Update(ctx context.Context, id int64, patch models.ClientProductPatch) (*models.ClientProduct, error) {
	if err := f.hit("update"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return nil, notFoundError(relational, "update purchase", fmt.Sprintf("purchase %d", id))
	}
	if patch.Units != nil {
		p.Units = *patch.Units
	}
	if patch.UnitPrice != nil {
		p.UnitPrice = *patch.UnitPrice
	}
	if patch.AdjustmentPct != nil {
		p.AdjustmentPct = *patch.AdjustmentPct
	}
	if patch.Notes != nil {
		p.Notes = *patch.Notes
	}
	if patch.PurchaseDate != nil {
		p.PurchaseDate = *patch.PurchaseDate
	}
	f.rows[id] = p
	return &p, nil
}

func (f *FakeClientProducts) Relink(ctx context.Context, id int64, client *models.Client) error {
	if err := f.hit("relink"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return notFoundError(relational, "relink purchase", fmt.Sprintf("purchase %d", id))
	}
	p.ClientID = client.ID
	p.CompanyName = client.CompanyName
	p.PersonName = client.PersonName
	f.rows[id] = p
	return nil
}

func (f *FakeClientProducts) Delete(ctx context.Context, id int64) error {
	if err := f.hit("delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return notFoundError(relational, "delete purchase", fmt.Sprintf("purchase %d", id))
	}
	delete(f.rows, id)
	return nil
}

// SalesSummary aggregates like the SQL implementation, grouping by client
// company, product code, category or purchase month.
func (f *FakeClientProducts) SalesSummary(ctx context.Context, group models.SalesGroup, from, to *time.Time) ([]*models.SalesSummaryRow, error) {
	if err := f.hit("sales_summary"); err != nil {
		return nil, err
	}
	rows, err := f.List(ctx, models.ClientProductFilter{DateMin: from, DateMax: to})
	if err != nil {
		return nil, err
	}

	buckets := make(map[string]*models.SalesSummaryRow)
	for _, p := range rows {
		var key string
		switch group {
		case models.SalesByClient:
			key = p.CompanyName
		case models.SalesByProduct:
			key = p.ProductCode
		case models.SalesByCategory:
			if f.Products == nil {
				return nil, fmt.Errorf("category summary needs a catalog")
			}
			prod, err := f.Products.Get(ctx, p.ProductCode)
			if err != nil {
				return nil, err
			}
			key = prod.Category
		case models.SalesByMonth:
			key = p.PurchaseDate.Format("2006-01")
		default:
			return nil, fmt.Errorf("unknown sales group %q", group)
		}
		b, ok := buckets[key]
		if !ok {
			b = &models.SalesSummaryRow{Key: key}
			buckets[key] = b
		}
		b.Purchases++
		b.Units += p.Units
		b.Revenue = b.Revenue.Add(p.Total())
	}

	out := make([]*models.SalesSummaryRow, 0, len(buckets))
	for _, b := range buckets {
		b.AverageTicket = b.Revenue.Div(decimal.NewFromInt(int64(b.Purchases))).Round(2)
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Revenue.Equal(out[j].Revenue) {
			return out[i].Revenue.GreaterThan(out[j].Revenue)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}
