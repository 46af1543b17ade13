// Package donors reads the donor, pledge and payment rows the call core needs.
// The wider donor CRM owns these tables; this repository only reads them and
// bumps the dial-queue attempt counter.
package donors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no donor matches the lookup.
var ErrNotFound = errors.New("donors: not found")

// Querier is the subset of pgxpool.Pool the repository needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Donor is one donor row as the call core sees it.
type Donor struct {
	ID      int64
	Name    string
	Phone   string
	Balance decimal.Decimal
}

// Pledge is a donor's pledge row.
type Pledge struct {
	ID      int64
	DonorID int64
	Amount  decimal.Decimal
	Status  string
}

// BalanceSummary aggregates what a donor pledged, paid, and still owes.
type BalanceSummary struct {
	Pledged decimal.Decimal
	Paid    decimal.Decimal
	Balance decimal.Decimal
}

// Repository looks donors up in Postgres.
type Repository struct {
	pool Querier
}

// NewRepository wraps the given pool.
func NewRepository(pool Querier) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a donor by primary key.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Donor, error) {
	query := `
		SELECT id, name, COALESCE(phone, ''), balance::text
		FROM donors
		WHERE id = $1
	`
	return r.scanDonor(r.pool.QueryRow(ctx, query, id))
}

// GetByPhone fetches a donor by exact phone match.
func (r *Repository) GetByPhone(ctx context.Context, phone string) (*Donor, error) {
	query := `
		SELECT id, name, COALESCE(phone, ''), balance::text
		FROM donors
		WHERE phone = $1
		LIMIT 1
	`
	return r.scanDonor(r.pool.QueryRow(ctx, query, phone))
}

func (r *Repository) scanDonor(row pgx.Row) (*Donor, error) {
	var d Donor
	var balance string
	if err := row.Scan(&d.ID, &d.Name, &d.Phone, &balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("donors: scan donor: %w", err)
	}
	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("donors: parse balance: %w", err)
	}
	d.Balance = parsed
	return &d, nil
}

// LatestApprovedPledge returns the donor's most recent approved pledge, or nil
// when they have none.
func (r *Repository) LatestApprovedPledge(ctx context.Context, donorID int64) (*Pledge, error) {
	query := `
		SELECT id, donor_id, amount::text, status
		FROM pledges
		WHERE donor_id = $1 AND status = 'approved'
		ORDER BY created_at DESC
		LIMIT 1
	`
	var p Pledge
	var amount string
	err := r.pool.QueryRow(ctx, query, donorID).Scan(&p.ID, &p.DonorID, &amount, &p.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("donors: latest approved pledge: %w", err)
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("donors: parse pledge amount: %w", err)
	}
	p.Amount = parsed
	return &p, nil
}

// BalanceSummary returns pledged/paid totals plus the stored balance.
func (r *Repository) BalanceSummary(ctx context.Context, donorID int64) (*BalanceSummary, error) {
	query := `
		SELECT
			COALESCE((SELECT SUM(amount) FROM pledges WHERE donor_id = d.id AND status = 'approved'), 0)::text,
			COALESCE((SELECT SUM(amount) FROM payments WHERE donor_id = d.id AND status = 'approved'), 0)::text,
			d.balance::text
		FROM donors d
		WHERE d.id = $1
	`
	var pledged, paid, balance string
	if err := r.pool.QueryRow(ctx, query, donorID).Scan(&pledged, &paid, &balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("donors: balance summary: %w", err)
	}
	summary := &BalanceSummary{}
	var err error
	if summary.Pledged, err = decimal.NewFromString(pledged); err != nil {
		return nil, fmt.Errorf("donors: parse pledged: %w", err)
	}
	if summary.Paid, err = decimal.NewFromString(paid); err != nil {
		return nil, fmt.Errorf("donors: parse paid: %w", err)
	}
	if summary.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("donors: parse balance: %w", err)
	}
	return summary, nil
}

// BumpDialAttempts increments the dial-queue counter for the donor. Callers
// treat failures as non-fatal.
func (r *Repository) BumpDialAttempts(ctx context.Context, donorID int64) error {
	query := `
		UPDATE dial_queue
		SET attempts = attempts + 1, updated_at = now()
		WHERE donor_id = $1
	`
	if _, err := r.pool.Exec(ctx, query, donorID); err != nil {
		return fmt.Errorf("donors: bump dial attempts: %w", err)
	}
	return nil
}
