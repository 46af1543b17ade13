// Package payments records payment intents captured over the phone. A
// registered intent is a promise, not money; reconciliation against bank
// statements happens in the back office.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/donorlink/callops/internal/donors"
	"github.com/donorlink/callops/pkg/logging"
)

var (
	// ErrInvalidAmount rejects zero, negative, or unparseable amounts.
	ErrInvalidAmount = errors.New("payments: amount must be greater than zero")
	// ErrInvalidDonor rejects intents for a donor id that does not exist.
	ErrInvalidDonor = errors.New("payments: donor not found")
)

// Payment methods captured by the phone menu.
const (
	MethodBankTransfer = "bank_transfer"
	MethodCash         = "cash"
)

// Querier is the subset of pgxpool.Pool the registrar needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type donorReader interface {
	GetByID(ctx context.Context, id int64) (*donors.Donor, error)
	LatestApprovedPledge(ctx context.Context, donorID int64) (*donors.Pledge, error)
}

// Intent is a registered payment intent.
type Intent struct {
	ID        int64
	DonorID   int64
	PledgeID  *int64
	Amount    decimal.Decimal
	Method    string
	Reference string
}

// Registrar writes payment intents to Postgres.
type Registrar struct {
	pool   Querier
	donors donorReader
	logger *logging.Logger
	now    func() time.Time
}

// NewRegistrar wires a registrar.
func NewRegistrar(pool Querier, donorRepo donorReader, logger *logging.Logger) *Registrar {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registrar{pool: pool, donors: donorRepo, logger: logger, now: time.Now}
}

// Register records a pending payment intent for the donor. The intent links
// the donor's latest approved pledge when one exists and carries a reference
// the donor can quote when the money arrives.
func (r *Registrar) Register(ctx context.Context, donorID int64, amount decimal.Decimal, method, notes string) (*Intent, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if method == "" {
		method = MethodBankTransfer
	}

	donor, err := r.donors.GetByID(ctx, donorID)
	if err != nil {
		if errors.Is(err, donors.ErrNotFound) {
			return nil, ErrInvalidDonor
		}
		return nil, fmt.Errorf("payments: load donor: %w", err)
	}

	var pledgeID *int64
	pledge, err := r.donors.LatestApprovedPledge(ctx, donorID)
	if err != nil {
		return nil, fmt.Errorf("payments: load pledge: %w", err)
	}
	if pledge != nil {
		pledgeID = &pledge.ID
	}

	reference := r.buildReference(donorID)

	query := `
		INSERT INTO payments (donor_id, pledge_id, amount, method, status, reference, notes)
		VALUES ($1, $2, $3, $4, 'pending', $5, NULLIF($6, ''))
		RETURNING id
	`
	var id int64
	if err := r.pool.QueryRow(ctx, query, donorID, pledgeID, amount.StringFixed(2), method, reference, notes).Scan(&id); err != nil {
		return nil, fmt.Errorf("payments: insert intent: %w", err)
	}

	r.logger.Info("payment intent registered",
		"payment_id", id, "donor_id", donorID, "donor_name", donor.Name,
		"amount", amount.StringFixed(2), "method", method, "reference", reference)

	return &Intent{
		ID:        id,
		DonorID:   donorID,
		PledgeID:  pledgeID,
		Amount:    amount,
		Method:    method,
		Reference: reference,
	}, nil
}

// buildReference derives a human-quotable reference from the registration
// date and the donor id, e.g. IVR-260829-0042.
func (r *Registrar) buildReference(donorID int64) string {
	return fmt.Sprintf("IVR-%s-%04d", r.now().UTC().Format("060102"), donorID)
}
