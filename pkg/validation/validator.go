// Package validation enforces the structural rules a candidate must meet
// before it may be reconciled. It performs no I/O; existing clients are
// supplied as a snapshot.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// Reason is the reason code of a rejection.
type Reason string

const (
	ReasonMissingRequiredField     Reason = "missing_required_field"
	ReasonInvalidTimeRange         Reason = "invalid_time_range"
	ReasonUnresolvedTimezone       Reason = "unresolved_timezone"
	ReasonAmbiguousClientReference Reason = "ambiguous_client_reference"
)

// Rejection explains why a candidate was not accepted.
type Rejection struct {
	Code    Reason `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (r *Rejection) Error() string {
	if r.Field != "" {
		return fmt.Sprintf("%s (%s): %s", r.Code, r.Field, r.Message)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// AsRejection returns the Rejection in err's chain, if any.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	ok := errors.As(err, &r)
	return r, ok
}

func reject(code Reason, field, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

var validStatuses = map[string]bool{
	models.EventStatusConfirmed: true,
	models.EventStatusTentative: true,
	models.EventStatusCancelled: true,
}

// Validator checks candidates against a snapshot of known clients.
type Validator struct {
	defaultTimezone string
	matchKeys       map[string]struct{}
	byCompany       map[string][]models.Client
	byPerson        map[string][]models.Client
}

// New returns a Validator. defaultTimezone applies to events that carry
// none; inactive clients do not count towards ambiguity.
func New(defaultTimezone string, known []models.Client) *Validator {
	v := &Validator{
		defaultTimezone: defaultTimezone,
		matchKeys:       make(map[string]struct{}, len(known)),
		byCompany:       make(map[string][]models.Client),
		byPerson:        make(map[string][]models.Client),
	}
	for _, c := range known {
		if !c.Active {
			continue
		}
		v.matchKeys[models.ClientMatchKey(c.CompanyName, c.PersonName)] = struct{}{}
		if company := models.NormalizeName(c.CompanyName); company != "" {
			v.byCompany[company] = append(v.byCompany[company], c)
		}
		if person := models.NormalizeName(models.StripHonorifics(c.PersonName)); person != "" {
			v.byPerson[person] = append(v.byPerson[person], c)
		}
	}
	return v
}

// Validate checks a tagged candidate and returns the validated record or a
// *Rejection.
func (v *Validator) Validate(c models.Candidate) (models.ValidatedRecord, error) {
	switch c.Kind {
	case models.CandidateEvent:
		if c.Event == nil {
			return models.ValidatedRecord{}, reject(ReasonMissingRequiredField, "event", "event candidate without event fields")
		}
		ev, err := v.ValidateEvent(c.Event)
		if err != nil {
			return models.ValidatedRecord{}, err
		}
		return models.ValidatedRecord{Kind: models.CandidateEvent, Event: ev}, nil
	case models.CandidateClient:
		if c.Client == nil {
			return models.ValidatedRecord{}, reject(ReasonMissingRequiredField, "client", "client candidate without client fields")
		}
		cl, err := v.ValidateClient(c.Client)
		if err != nil {
			return models.ValidatedRecord{}, err
		}
		return models.ValidatedRecord{Kind: models.CandidateClient, Client: cl}, nil
	default:
		return models.ValidatedRecord{}, reject(ReasonMissingRequiredField, "kind", "unknown candidate kind %q", c.Kind)
	}
}

// ValidateEvent checks an event candidate. Start and End are returned in
// the event's timezone.
func (v *Validator) ValidateEvent(ev *models.EventCandidate) (*models.ValidatedEvent, error) {
	summary := strings.TrimSpace(ev.Summary)
	if summary == "" {
		return nil, reject(ReasonMissingRequiredField, "summary", "summary is required")
	}
	if ev.Start == nil || ev.Start.IsZero() {
		return nil, reject(ReasonMissingRequiredField, "start", "start time is required")
	}
	if ev.End == nil || ev.End.IsZero() {
		return nil, reject(ReasonMissingRequiredField, "end", "end time is required")
	}

	tz := strings.TrimSpace(ev.Timezone)
	if tz == "" {
		tz = v.defaultTimezone
	}
	loc, err := models.LoadTimezone(tz)
	if err != nil {
		return nil, reject(ReasonUnresolvedTimezone, "timezone", "%v", err)
	}

	if !ev.End.After(*ev.Start) {
		return nil, reject(ReasonInvalidTimeRange, "end", "end %s is not after start %s",
			ev.End.Format("2006-01-02T15:04:05Z07:00"), ev.Start.Format("2006-01-02T15:04:05Z07:00"))
	}

	status := strings.ToLower(strings.TrimSpace(ev.Status))
	if status == "" {
		status = models.EventStatusConfirmed
	}
	if !validStatuses[status] {
		return nil, reject(ReasonMissingRequiredField, "status", "status %q is not one of confirmed, tentative or cancelled", ev.Status)
	}

	company := strings.TrimSpace(ev.CompanyName)
	person := strings.TrimSpace(ev.PersonName)
	if ev.ClientID == nil && company == "" && person != "" {
		if matches := v.byPerson[models.NormalizeName(models.StripHonorifics(person))]; len(matches) > 1 {
			return nil, reject(ReasonAmbiguousClientReference, "person_name",
				"%q matches %d clients; a company name is needed", person, len(matches))
		}
	}

	return &models.ValidatedEvent{
		EventID:     strings.TrimSpace(ev.EventID),
		Summary:     summary,
		Start:       ev.Start.In(loc),
		End:         ev.End.In(loc),
		Timezone:    tz,
		Location:    loc,
		Description: strings.TrimSpace(ev.Description),
		CompanyName: company,
		PersonName:  person,
		Status:      status,
		ClientID:    ev.ClientID,
		Source:      ev.Source,
	}, nil
}

// ValidateClient checks a client candidate. A company-only mention is
// ambiguous when several known contacts share the company and none of them
// is the company itself.
func (v *Validator) ValidateClient(c *models.ClientCandidate) (*models.ValidatedClient, error) {
	company := strings.TrimSpace(c.CompanyName)
	if company == "" {
		return nil, reject(ReasonMissingRequiredField, "company_name", "company name is required")
	}
	person := strings.TrimSpace(c.PersonName)

	if person == "" {
		if _, exact := v.matchKeys[models.ClientMatchKey(company, "")]; !exact {
			if matches := v.byCompany[models.NormalizeName(company)]; len(matches) > 1 {
				return nil, reject(ReasonAmbiguousClientReference, "person_name",
					"%q has %d known contacts; a person name is needed", company, len(matches))
			}
		}
	}

	return &models.ValidatedClient{
		CompanyName: company,
		PersonName:  person,
		Email:       strings.TrimSpace(c.Email),
		Phone:       strings.TrimSpace(c.Phone),
	}, nil
}
