package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/agenda-sync/pkg/database"
	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// ClientRepository provides data access for counterparties.
type ClientRepository interface {
	// FindByMatchKey returns the client holding key, active or not.
	FindByMatchKey(ctx context.Context, key string) (*models.Client, error)
	GetByID(ctx context.Context, id int64) (*models.Client, error)
	// Create inserts a client. A taken match key yields apperrors.ErrConflict.
	Create(ctx context.Context, client *models.Client) error
	Update(ctx context.Context, client *models.Client) error
	List(ctx context.Context, filter models.ClientFilter) ([]*models.Client, error)
	Deactivate(ctx context.Context, id int64) error
}

type clientRepository struct {
	db *database.DB
}

var _ ClientRepository = (*clientRepository)(nil)

// NewClientRepository creates a client repository on db.
func NewClientRepository(db *database.DB) ClientRepository {
	return &clientRepository{db: db}
}

const clientColumns = `id, company_name, person_name, email, phone, active, match_key, created_at, updated_at`

func (r *clientRepository) FindByMatchKey(ctx context.Context, key string) (*models.Client, error) {
	row := r.db.Conn(ctx).QueryRow(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE match_key = $1`, key)
	c, err := scanClient(row)
	if err != nil {
		return nil, storeErr("find client", err)
	}
	return c, nil
}

func (r *clientRepository) GetByID(ctx context.Context, id int64) (*models.Client, error) {
	row := r.db.Conn(ctx).QueryRow(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	c, err := scanClient(row)
	if err != nil {
		return nil, storeErr("get client", err)
	}
	return c, nil
}

func (r *clientRepository) Create(ctx context.Context, client *models.Client) error {
	now := time.Now().UTC()
	client.CreatedAt = now
	client.UpdatedAt = now
	if client.MatchKey == "" {
		client.MatchKey = models.ClientMatchKey(client.CompanyName, client.PersonName)
	}

	query := `
		INSERT INTO clients (company_name, person_name, email, phone, active, match_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := r.db.Conn(ctx).QueryRow(ctx, query,
		client.CompanyName,
		client.PersonName,
		client.Email,
		client.Phone,
		client.Active,
		client.MatchKey,
		client.CreatedAt,
		client.UpdatedAt,
	).Scan(&client.ID)
	if err != nil {
		return storeErr("create client", err)
	}
	return nil
}

func (r *clientRepository) Update(ctx context.Context, client *models.Client) error {
	client.UpdatedAt = time.Now().UTC()
	client.MatchKey = models.ClientMatchKey(client.CompanyName, client.PersonName)

	query := `
		UPDATE clients
		SET company_name = $1, person_name = $2, email = $3, phone = $4,
		    active = $5, match_key = $6, updated_at = $7
		WHERE id = $8`

	tag, err := r.db.Conn(ctx).Exec(ctx, query,
		client.CompanyName,
		client.PersonName,
		client.Email,
		client.Phone,
		client.Active,
		client.MatchKey,
		client.UpdatedAt,
		client.ID,
	)
	if err != nil {
		return storeErr("update client", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("update client", fmt.Sprintf("client %d", client.ID))
	}
	return nil
}

func (r *clientRepository) List(ctx context.Context, filter models.ClientFilter) ([]*models.Client, error) {
	var w whereBuilder
	if !filter.IncludeInactive {
		w.addRaw("active")
	}
	if filter.CompanyContains != "" {
		w.add("company_name ILIKE $%d", likePattern(filter.CompanyContains))
	}
	if filter.PersonContains != "" {
		w.add("person_name ILIKE $%d", likePattern(filter.PersonContains))
	}

	query := `SELECT ` + clientColumns + ` FROM clients` + w.String() + ` ORDER BY company_name, person_name, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := r.db.Conn(ctx).Query(ctx, query, w.args...)
	if err != nil {
		return nil, storeErr("list clients", err)
	}
	defer rows.Close()

	clients := make([]*models.Client, 0)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, storeErr("list clients", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list clients", err)
	}
	return clients, nil
}

func (r *clientRepository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE clients SET active = FALSE, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id)
	if err != nil {
		return storeErr("deactivate client", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("deactivate client", fmt.Sprintf("client %d", id))
	}
	return nil
}

func scanClient(row pgx.Row) (*models.Client, error) {
	var c models.Client
	err := row.Scan(
		&c.ID,
		&c.CompanyName,
		&c.PersonName,
		&c.Email,
		&c.Phone,
		&c.Active,
		&c.MatchKey,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
