package models

import "time"

// Client identifies a counterparty (company, optionally a contact person).
// Stored in the clients table. Rows are never hard-deleted, only deactivated.
type Client struct {
	ID          int64     `json:"id"`
	CompanyName string    `json:"company_name"`
	PersonName  string    `json:"person_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Active      bool      `json:"active"`
	MatchKey    string    `json:"-"` // normalized (company, person) pair, UNIQUE in the store
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ClientFilter narrows client listings. Zero values disable a predicate.
type ClientFilter struct {
	CompanyContains string
	PersonContains  string
	IncludeInactive bool
	Limit           int
}
