// Package tickets is the Item Store: plain ticket CRUD with soft deletion.
// Soft-deleted rows keep their data but disappear from every read path.
package tickets

import (
	"context"
	"time"

	"github.com/armandavtyann/ticket/internal/apperr"
	"github.com/armandavtyann/ticket/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ticketColumns = `id, title, description, status, created_at, updated_at, deleted_at`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type Page struct {
	Tickets    []domain.Ticket `json:"tickets"`
	Pagination Pagination      `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func (s *Store) List(ctx context.Context, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE deleted_at IS NULL`).Scan(&total)
	if err != nil {
		return nil, errors.Wrap(err, "count tickets")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list tickets")
	}
	defer rows.Close()

	out := make([]domain.Ticket, 0, limit)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan ticket")
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	totalPages := (total + limit - 1) / limit
	return &Page{
		Tickets: out,
		Pagination: Pagination{
			Page: page, Limit: limit, Total: total, TotalPages: totalPages,
		},
	}, nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1 AND deleted_at IS NULL`, id)
	t, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("ticket %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get ticket")
	}
	return t, nil
}

func (s *Store) Create(ctx context.Context, title string, description *string, status domain.TicketStatus) (*domain.Ticket, error) {
	if status == "" {
		status = domain.TicketOpen
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO tickets (title, description, status)
		VALUES ($1, $2, $3)
		RETURNING `+ticketColumns, title, description, status)
	t, err := scanTicket(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert ticket")
	}
	return t, nil
}

type Update struct {
	Title       *string              `json:"title"`
	Description *string              `json:"description"`
	Status      *domain.TicketStatus `json:"status"`
}

func (s *Store) Update(ctx context.Context, id uuid.UUID, u Update) (*domain.Ticket, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE tickets SET
			title       = COALESCE($2, title),
			description = COALESCE($3, description),
			status      = COALESCE($4, status),
			updated_at  = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+ticketColumns, id, u.Title, u.Description, u.Status)
	t, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("ticket %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "update ticket")
	}
	return t, nil
}

// SoftDelete marks a ticket deleted. The three outcomes the worker cares
// about are distinct: nil (deleted now), ErrAlreadyDeleted (deleted before;
// a repeated delete is not a new failure), ErrNotFound (no such ticket).
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tickets SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return errors.Wrap(err, "soft delete ticket")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var deletedAt *time.Time
	err = s.pool.QueryRow(ctx,
		`SELECT deleted_at FROM tickets WHERE id = $1`, id).Scan(&deletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFoundf("ticket %s not found", id)
	}
	if err != nil {
		return errors.Wrap(err, "check ticket state")
	}
	return errors.Mark(
		errors.Newf("ticket %s already deleted", id),
		apperr.ErrAlreadyDeleted)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var t domain.Ticket
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Status,
		&t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
