package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/agenda-sync/pkg/apperrors"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// maxClientWriteAttempts bounds the create/update fallback loop when
// concurrent writers keep taking the same match key.
const maxClientWriteAttempts = 3

func (r *reconciler) ReconcileClient(ctx context.Context, c *models.ValidatedClient) (*models.ReconcileResult, error) {
	res, err := r.reconcileClient(ctx, c)
	if err != nil {
		r.logger.Error("Client reconciliation failed",
			zap.String("company", c.CompanyName),
			zap.Error(err))
		return nil, err
	}
	r.logger.Info("Reconciled client",
		zap.Int64("client_id", *res.ClientID),
		zap.String("action", string(res.Action)))
	return res, nil
}

func (r *reconciler) reconcileClient(ctx context.Context, c *models.ValidatedClient) (*models.ReconcileResult, error) {
	key := models.ClientMatchKey(c.CompanyName, c.PersonName)

	var lastErr error
	for attempt := 0; attempt < maxClientWriteAttempts; attempt++ {
		existing, err := r.findClient(ctx, key)
		if err != nil {
			return nil, failure(apperrors.StoreRelational, err, false, "")
		}
		if existing == nil {
			if existing, err = r.reusableClient(ctx, c); err != nil {
				return nil, failure(apperrors.StoreRelational, err, false, "")
			}
		}

		if existing == nil {
			created := &models.Client{
				CompanyName: c.CompanyName,
				PersonName:  c.PersonName,
				Email:       c.Email,
				Phone:       c.Phone,
				Active:      true,
				MatchKey:    key,
			}
			err := r.do(ctx, func() error { return r.clients.Create(ctx, created) })
			if err == nil {
				return clientResult(created.ID, models.ActionCreated), nil
			}
			if !apperrors.IsConflict(err) {
				return nil, failure(apperrors.StoreRelational, err, false, "")
			}
			// Lost the race for this match key; the winner's row is updated
			// on the next pass.
			lastErr = err
			continue
		}

		merged := mergeClient(existing, c)
		if clientEqual(existing, merged) {
			return clientResult(existing.ID, models.ActionNoop), nil
		}
		err = r.do(ctx, func() error { return r.clients.Update(ctx, merged) })
		if err == nil {
			return clientResult(existing.ID, models.ActionUpdated), nil
		}
		if !apperrors.IsConflict(err) {
			return nil, failure(apperrors.StoreRelational, err, false, "")
		}
		lastErr = err
	}
	return nil, failure(apperrors.StoreRelational, lastErr, false, "")
}

// reusableClient finds an existing row that a candidate without an exact
// match key should update rather than duplicate: the company's only row
// when no person is given, or the company's only row when it has no person
// yet.
func (r *reconciler) reusableClient(ctx context.Context, c *models.ValidatedClient) (*models.Client, error) {
	same, err := r.clientsOfCompany(ctx, c.CompanyName)
	if err != nil || len(same) != 1 {
		return nil, err
	}
	if c.PersonName == "" || same[0].PersonName == "" {
		return same[0], nil
	}
	return nil, nil
}

// inferClient links an event to a known client. The company name must match
// exactly after normalization; the person then selects among the company's
// rows. Without a single clear match the event stays unlinked.
func (r *reconciler) inferClient(ctx context.Context, company, person string) (*int64, error) {
	if models.NormalizeName(company) == "" {
		return nil, nil
	}

	exact, err := r.findClient(ctx, models.ClientMatchKey(company, person))
	if err != nil {
		return nil, failure(apperrors.StoreRelational, err, false, "")
	}
	if exact != nil && exact.Active {
		return &exact.ID, nil
	}

	same, err := r.clientsOfCompany(ctx, company)
	if err != nil {
		return nil, failure(apperrors.StoreRelational, err, false, "")
	}
	if picked := pickClient(same); picked != nil {
		return &picked.ID, nil
	}
	return nil, nil
}

// pickClient chooses the company-level row, or the only row.
func pickClient(same []*models.Client) *models.Client {
	for _, c := range same {
		if c.PersonName == "" {
			return c
		}
	}
	if len(same) == 1 {
		return same[0]
	}
	return nil
}

func (r *reconciler) findClient(ctx context.Context, key string) (*models.Client, error) {
	c, err := withRetry(ctx, r, func() (*models.Client, error) {
		return r.clients.FindByMatchKey(ctx, key)
	})
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	return c, err
}

// clientsOfCompany returns active clients whose company equals company
// after normalization.
func (r *reconciler) clientsOfCompany(ctx context.Context, company string) ([]*models.Client, error) {
	all, err := withRetry(ctx, r, func() ([]*models.Client, error) {
		return r.clients.List(ctx, models.ClientFilter{})
	})
	if err != nil {
		return nil, err
	}
	var same []*models.Client
	for _, c := range all {
		if models.SameCompany(c.CompanyName, company) {
			same = append(same, c)
		}
	}
	return same, nil
}

// mergeClient fills contact details and the person of a company-level row
// from the candidate and reactivates the client. Stored names are otherwise
// kept as first written.
func mergeClient(existing *models.Client, c *models.ValidatedClient) *models.Client {
	merged := *existing
	merged.Active = true
	if merged.PersonName == "" && c.PersonName != "" {
		merged.PersonName = c.PersonName
	}
	if c.Email != "" {
		merged.Email = c.Email
	}
	if c.Phone != "" {
		merged.Phone = c.Phone
	}
	merged.MatchKey = models.ClientMatchKey(merged.CompanyName, merged.PersonName)
	return &merged
}

func clientEqual(a, b *models.Client) bool {
	return a.CompanyName == b.CompanyName &&
		a.PersonName == b.PersonName &&
		a.Email == b.Email &&
		a.Phone == b.Phone &&
		a.Active == b.Active
}

func clientResult(id int64, action models.ReconcileAction) *models.ReconcileResult {
	return &models.ReconcileResult{
		Kind:              models.CandidateClient,
		Action:            action,
		ClientID:          &id,
		RelationalWritten: action != models.ActionNoop,
	}
}
