package testhelpers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ekaya-inc/agenda-sync/pkg/apperrors"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// FakeCalendar is an in-memory calendar store. Create honours a requested
// ID and rejects a taken one with apperrors.ErrConflict, like the real service.
type FakeCalendar struct {
	Faults

	mu      sync.Mutex
	id      string
	entries map[string]models.CalendarEntry
	nextID  int
}

// NewFakeCalendar creates an empty calendar named calendarID.
func NewFakeCalendar(calendarID string) *FakeCalendar {
	return &FakeCalendar{id: calendarID, entries: make(map[string]models.CalendarEntry)}
}

func (c *FakeCalendar) CalendarID() string {
	return c.id
}

// Find hides cancelled entries, matching the hosted calendar.
func (c *FakeCalendar) Find(ctx context.Context, eventID string) (*models.CalendarEntry, error) {
	if err := c.hit("find"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[eventID]
	if !ok || e.Status == models.EventStatusCancelled {
		return nil, notFoundError(apperrors.StoreCalendar, "find", "event "+eventID)
	}
	return &e, nil
}

func (c *FakeCalendar) Get(ctx context.Context, eventID string) (*models.CalendarEntry, error) {
	if err := c.hit("get"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[eventID]
	if !ok {
		return nil, notFoundError(apperrors.StoreCalendar, "get", "event "+eventID)
	}
	return &e, nil
}

func (c *FakeCalendar) Create(ctx context.Context, entry *models.CalendarEntry) (*models.CalendarEntry, error) {
	if err := c.hit("create"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := *entry
	if e.ID == "" {
		c.nextID++
		e.ID = fmt.Sprintf("gen%05d", c.nextID)
	}
	if _, exists := c.entries[e.ID]; exists {
		return nil, conflictError(apperrors.StoreCalendar, "create", "event "+e.ID)
	}
	e.CalendarID = c.id
	if e.Status == "" {
		e.Status = models.EventStatusConfirmed
	}
	c.entries[e.ID] = e
	return &e, nil
}

func (c *FakeCalendar) Update(ctx context.Context, entry *models.CalendarEntry) (*models.CalendarEntry, error) {
	if err := c.hit("update"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[entry.ID]; !ok {
		return nil, notFoundError(apperrors.StoreCalendar, "update", "event "+entry.ID)
	}
	e := *entry
	e.CalendarID = c.id
	c.entries[e.ID] = e
	return &e, nil
}

func (c *FakeCalendar) Delete(ctx context.Context, eventID string) error {
	if err := c.hit("delete"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[eventID]; !ok {
		return notFoundError(apperrors.StoreCalendar, "delete", "event "+eventID)
	}
	delete(c.entries, eventID)
	return nil
}

func (c *FakeCalendar) List(ctx context.Context, timeMin, timeMax time.Time) ([]models.CalendarEntry, error) {
	if err := c.hit("list"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.CalendarEntry
	for _, e := range c.entries {
		if e.Overlaps(timeMin, timeMax) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// Put stores entry directly, bypassing fault injection.
func (c *FakeCalendar) Put(entry models.CalendarEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry.CalendarID = c.id
	c.entries[entry.ID] = entry
}

// Entries returns a snapshot of all stored entries ordered by start.
func (c *FakeCalendar) Entries() []models.CalendarEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.CalendarEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}
