package inbound

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*RecordStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRecordStore(mock), mock
}

func TestUpsertProvisionsRecord(t *testing.T) {
	store, mock := newMockStore(t)
	donorID := int64(42)

	mock.ExpectExec("INSERT INTO inbound_calls").
		WithArgs("CA100", "+447911000111", &donorID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Upsert(context.Background(), "CA100", "+447911000111", &donorID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertUnknownCallerKeepsNullDonor(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO inbound_calls").
		WithArgs("CA101", "+447700900000", (*int64)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Upsert(context.Background(), "CA101", "+447700900000", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFlagsAndMenuOption(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE inbound_calls SET whatsapp_sent").
		WithArgs("CA100").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE inbound_calls SET contact_sms_sent").
		WithArgs("CA100").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE inbound_calls SET menu_option").
		WithArgs("CA100", "2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkSummarySent(context.Background(), "CA100"))
	require.NoError(t, store.MarkContactSMSSent(context.Background(), "CA100"))
	require.NoError(t, store.SetMenuOption(context.Background(), "CA100", "2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetWhatsAppMessageID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE inbound_calls SET whatsapp_message_id").
		WithArgs("CA100", "wamid.99").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.SetWhatsAppMessageID(context.Background(), "CA100", "wamid.99"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPaymentPending(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE inbound_calls").
		WithArgs("CA100", "50.00").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkPaymentPending(context.Background(), "CA100", decimal.RequireFromString("50")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecord(t *testing.T) {
	store, mock := newMockStore(t)
	donorID := int64(42)
	amount := "50.00"

	mock.ExpectQuery("SELECT call_sid, caller_phone").
		WithArgs("CA100").
		WillReturnRows(pgxmock.NewRows([]string{
			"call_sid", "caller_phone", "donor_id", "whatsapp_sent", "whatsapp_message_id",
			"menu_option", "contact_sms_sent", "payment_amount", "payment_status",
		}).AddRow("CA100", "+447911000111", &donorID, true, "wamid.99", "2", false, &amount, "pending"))

	rec, err := store.Get(context.Background(), "CA100")
	require.NoError(t, err)
	assert.Equal(t, "CA100", rec.CallSID)
	assert.Equal(t, "wamid.99", rec.WhatsAppMessageID)
	require.NotNil(t, rec.DonorID)
	assert.Equal(t, int64(42), *rec.DonorID)
	require.NotNil(t, rec.PaymentAmount)
	assert.True(t, rec.PaymentAmount.Equal(decimal.RequireFromString("50.00")))
	assert.Equal(t, "pending", rec.PaymentStatus)
}

func TestGetRecordNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT call_sid, caller_phone").
		WithArgs("CA999").
		WillReturnRows(pgxmock.NewRows([]string{
			"call_sid", "caller_phone", "donor_id", "whatsapp_sent", "whatsapp_message_id",
			"menu_option", "contact_sms_sent", "payment_amount", "payment_status",
		}))

	_, err := store.Get(context.Background(), "CA999")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
