package models

import "time"

// CandidateKind tags the variant carried by a Candidate.
type CandidateKind string

const (
	CandidateEvent  CandidateKind = "event"
	CandidateClient CandidateKind = "client"
)

// Confidence grades how strongly the source text supports a candidate.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Rank orders confidence levels: low < medium < high.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 0
}

// Timezone sources for event candidates.
const (
	TimezoneExplicit = "explicit"
	TimezoneDefault  = "default"
)

// Span identifies the utterance fragment that justified a candidate.
type Span struct {
	UtteranceIndex int    `json:"utterance_index"`
	Speaker        string `json:"speaker,omitempty"`
	Text           string `json:"text"`
	Match          string `json:"match,omitempty"`
}

// Candidate is an extracted, not yet validated record. Exactly one of
// Event or Client is set, according to Kind.
type Candidate struct {
	Kind       CandidateKind    `json:"kind"`
	Confidence Confidence       `json:"confidence"`
	Span       Span             `json:"span"`
	Event      *EventCandidate  `json:"event,omitempty"`
	Client     *ClientCandidate `json:"client,omitempty"`
}

// EventCandidate holds the calendar-relevant fields found in the text or
// supplied by a tool call. Start/End are nil when they could not be resolved.
type EventCandidate struct {
	EventID        string     `json:"event_id,omitempty"`
	Summary        string     `json:"summary"`
	Start          *time.Time `json:"start,omitempty"`
	End            *time.Time `json:"end,omitempty"`
	Timezone       string     `json:"timezone,omitempty"`
	TimezoneSource string     `json:"timezone_source,omitempty"`
	Description    string     `json:"description,omitempty"`
	CompanyName    string     `json:"company_name,omitempty"`
	PersonName     string     `json:"person_name,omitempty"`
	Status         string     `json:"status,omitempty"`
	ClientID       *int64     `json:"client_id,omitempty"`
	Source         string     `json:"source,omitempty"`
}

// ClientCandidate holds a counterparty mention.
type ClientCandidate struct {
	CompanyName string `json:"company_name"`
	PersonName  string `json:"person_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// ValidatedEvent is an event that passed the validator: summary present,
// Start < End, and Location resolved from Timezone.
type ValidatedEvent struct {
	EventID     string         `json:"event_id,omitempty"`
	Summary     string         `json:"summary"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
	Timezone    string         `json:"timezone"`
	Location    *time.Location `json:"-"`
	Description string         `json:"description,omitempty"`
	CompanyName string         `json:"company_name,omitempty"`
	PersonName  string         `json:"person_name,omitempty"`
	Status      string         `json:"status"`
	ClientID    *int64         `json:"client_id,omitempty"`
	Source      string         `json:"source,omitempty"`
}

// ValidatedClient is a client candidate that passed the validator.
type ValidatedClient struct {
	CompanyName string `json:"company_name"`
	PersonName  string `json:"person_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// ValidatedRecord is the tagged output of the validator.
type ValidatedRecord struct {
	Kind   CandidateKind    `json:"kind"`
	Event  *ValidatedEvent  `json:"event,omitempty"`
	Client *ValidatedClient `json:"client,omitempty"`
}
