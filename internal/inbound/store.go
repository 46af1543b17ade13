package inbound

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// ErrRecordNotFound is returned when no inbound call row matches.
var ErrRecordNotFound = errors.New("inbound: call record not found")

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Record is one inbound call, keyed by the carrier-assigned call SID.
type Record struct {
	CallSID           string
	CallerPhone       string
	DonorID           *int64
	SummarySent       bool
	WhatsAppMessageID string
	MenuOption        string
	ContactSMSSent    bool
	PaymentAmount     *decimal.Decimal
	PaymentStatus     string
}

// RecordStore persists inbound call records.
type RecordStore struct {
	pool Querier
}

// NewRecordStore wraps the given pool.
func NewRecordStore(pool Querier) *RecordStore {
	return &RecordStore{pool: pool}
}

// Upsert provisions the record on first contact. Retried entry webhooks for
// the same SID keep the existing row; a donor id only ever fills a gap.
func (s *RecordStore) Upsert(ctx context.Context, callSID, callerPhone string, donorID *int64) error {
	query := `
		INSERT INTO inbound_calls (call_sid, caller_phone, donor_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (call_sid) DO UPDATE SET
			donor_id   = COALESCE(inbound_calls.donor_id, EXCLUDED.donor_id),
			updated_at = now()
	`
	if _, err := s.pool.Exec(ctx, query, callSID, callerPhone, donorID); err != nil {
		return fmt.Errorf("inbound: upsert call record: %w", err)
	}
	return nil
}

// MarkSummarySent flags that the balance summary message was dispatched.
func (s *RecordStore) MarkSummarySent(ctx context.Context, callSID string) error {
	return s.setFlag(ctx, callSID, "whatsapp_sent")
}

// MarkContactSMSSent flags that the contact-number SMS was dispatched.
func (s *RecordStore) MarkContactSMSSent(ctx context.Context, callSID string) error {
	return s.setFlag(ctx, callSID, "contact_sms_sent")
}

func (s *RecordStore) setFlag(ctx context.Context, callSID, column string) error {
	query := fmt.Sprintf(`UPDATE inbound_calls SET %s = TRUE, updated_at = now() WHERE call_sid = $1`, column)
	if _, err := s.pool.Exec(ctx, query, callSID); err != nil {
		return fmt.Errorf("inbound: mark %s: %w", column, err)
	}
	return nil
}

// SetWhatsAppMessageID stores the gateway's message id once the WhatsApp
// summary is actually delivered, so the record shows both that it was sent
// and which provider message carried it.
func (s *RecordStore) SetWhatsAppMessageID(ctx context.Context, callSID, messageID string) error {
	query := `UPDATE inbound_calls SET whatsapp_message_id = $2, updated_at = now() WHERE call_sid = $1`
	if _, err := s.pool.Exec(ctx, query, callSID, messageID); err != nil {
		return fmt.Errorf("inbound: set whatsapp message id: %w", err)
	}
	return nil
}

// SetMenuOption records the latest root-menu choice for the call.
func (s *RecordStore) SetMenuOption(ctx context.Context, callSID, option string) error {
	query := `UPDATE inbound_calls SET menu_option = $2, updated_at = now() WHERE call_sid = $1`
	if _, err := s.pool.Exec(ctx, query, callSID, option); err != nil {
		return fmt.Errorf("inbound: set menu option: %w", err)
	}
	return nil
}

// MarkPaymentPending records the confirmed amount against the call.
func (s *RecordStore) MarkPaymentPending(ctx context.Context, callSID string, amount decimal.Decimal) error {
	query := `
		UPDATE inbound_calls
		SET payment_amount = $2, payment_status = 'pending', updated_at = now()
		WHERE call_sid = $1
	`
	if _, err := s.pool.Exec(ctx, query, callSID, amount.StringFixed(2)); err != nil {
		return fmt.Errorf("inbound: mark payment pending: %w", err)
	}
	return nil
}

// Get fetches one record by call SID. The call-handling paths only ever
// write these rows; Get serves the staff reporting queries that live outside
// this service.
func (s *RecordStore) Get(ctx context.Context, callSID string) (*Record, error) {
	query := `
		SELECT call_sid, caller_phone, donor_id, whatsapp_sent,
		       COALESCE(whatsapp_message_id, ''),
		       COALESCE(menu_option, ''), contact_sms_sent,
		       payment_amount::text, COALESCE(payment_status, '')
		FROM inbound_calls
		WHERE call_sid = $1
	`
	var rec Record
	var amount *string
	err := s.pool.QueryRow(ctx, query, callSID).Scan(
		&rec.CallSID, &rec.CallerPhone, &rec.DonorID, &rec.SummarySent,
		&rec.WhatsAppMessageID,
		&rec.MenuOption, &rec.ContactSMSSent, &amount, &rec.PaymentStatus,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("inbound: get call record: %w", err)
	}
	if amount != nil {
		parsed, err := decimal.NewFromString(*amount)
		if err != nil {
			return nil, fmt.Errorf("inbound: parse payment amount: %w", err)
		}
		rec.PaymentAmount = &parsed
	}
	return &rec, nil
}
