package callsession

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donorlink/callops/internal/carrier"
	"github.com/donorlink/callops/internal/donors"
)

type fakeDonorReader struct {
	donor    *donors.Donor
	err      error
	bumped   []int64
	bumpFail bool
}

func (f *fakeDonorReader) GetByID(ctx context.Context, id int64) (*donors.Donor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.donor, nil
}

func (f *fakeDonorReader) BumpDialAttempts(ctx context.Context, donorID int64) error {
	f.bumped = append(f.bumped, donorID)
	if f.bumpFail {
		return errors.New("dial_queue gone")
	}
	return nil
}

type fakeCallCreator struct {
	gotReq carrier.CallRequest
	sid    string
	err    error
}

func (f *fakeCallCreator) CreateCall(ctx context.Context, req carrier.CallRequest) (string, error) {
	f.gotReq = req
	return f.sid, f.err
}

func TestLaunchSuccess(t *testing.T) {
	mock, store := newMockStore(t)
	donorReader := &fakeDonorReader{donor: &donors.Donor{
		ID: 42, Name: "Grace Adeyemi", Phone: "07911000111", Balance: decimal.NewFromInt(200),
	}}
	creator := &fakeCallCreator{sid: "CA777"}
	urls := NewURLBuilder("https://callops.example")
	launcher := NewLauncher(store, donorReader, creator, urls, "+447000000000", true, nil)

	mock.ExpectExec("INSERT INTO call_sessions").
		WithArgs(pgxmock.AnyArg(), int64(42), int64(7), "+447000000001", "+447911000111", StatusInitiating, StagePending, "agent_dialer").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE call_sessions").
		WithArgs(pgxmock.AnyArg(), "CA777", StatusInProgress).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	result, err := launcher.Launch(context.Background(), LaunchRequest{
		AgentID: 7, DonorID: 42, AgentPhone: "07000 000 001",
	})
	require.NoError(t, err)
	assert.Equal(t, "CA777", result.CallSID)
	assert.NotEmpty(t, result.SessionID)
	assert.Contains(t, result.PollURL, "/api/calls/"+result.SessionID)

	// Agent leg rings first; the bridge URL carries the donor context.
	assert.Equal(t, "+447000000001", creator.gotReq.To)
	assert.Equal(t, "+447000000000", creator.gotReq.From)
	assert.Contains(t, creator.gotReq.VoiceURL, PathBridge)
	assert.Contains(t, creator.gotReq.VoiceURL, "session="+result.SessionID)
	assert.Contains(t, creator.gotReq.VoiceURL, "donor_phone=%2B447911000111")
	assert.Contains(t, creator.gotReq.StatusCallback, PathStatus)
	assert.True(t, creator.gotReq.Record)

	assert.Equal(t, []int64{42}, donorReader.bumped)
}

func TestLaunchUnknownDonor(t *testing.T) {
	_, store := newMockStore(t)
	donorReader := &fakeDonorReader{err: donors.ErrNotFound}
	launcher := NewLauncher(store, donorReader, &fakeCallCreator{}, NewURLBuilder("https://x"), "+44", false, nil)

	_, err := launcher.Launch(context.Background(), LaunchRequest{AgentID: 1, DonorID: 9, AgentPhone: "07000000001"})
	assert.ErrorIs(t, err, ErrInvalidDonor)
}

func TestLaunchDonorWithoutPhone(t *testing.T) {
	_, store := newMockStore(t)
	donorReader := &fakeDonorReader{donor: &donors.Donor{ID: 9, Name: "No Phone"}}
	launcher := NewLauncher(store, donorReader, &fakeCallCreator{}, NewURLBuilder("https://x"), "+44", false, nil)

	_, err := launcher.Launch(context.Background(), LaunchRequest{AgentID: 1, DonorID: 9, AgentPhone: "07000000001"})
	assert.ErrorIs(t, err, ErrInvalidDonor)
}

func TestLaunchCarrierRejection(t *testing.T) {
	mock, store := newMockStore(t)
	donorReader := &fakeDonorReader{donor: &donors.Donor{ID: 42, Name: "Grace", Phone: "07911000111"}}
	creator := &fakeCallCreator{err: &carrier.Error{StatusCode: 400, Code: 21211, Message: "Invalid 'To' Phone Number"}}
	launcher := NewLauncher(store, donorReader, creator, NewURLBuilder("https://x"), "+44", false, nil)

	mock.ExpectExec("INSERT INTO call_sessions").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE call_sessions").
		WithArgs(pgxmock.AnyArg(), StatusFailed, OutcomeCarrierError, StageAttemptFailed, "Invalid 'To' Phone Number").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	_, err := launcher.Launch(context.Background(), LaunchRequest{AgentID: 1, DonorID: 42, AgentPhone: "07000000001"})
	require.Error(t, err)
	var apiErr *carrier.Error
	assert.ErrorAs(t, err, &apiErr)
	assert.Empty(t, donorReader.bumped, "no dial attempt recorded on rejection")
}

func TestLaunchBumpFailureIsNonFatal(t *testing.T) {
	mock, store := newMockStore(t)
	donorReader := &fakeDonorReader{
		donor:    &donors.Donor{ID: 42, Name: "Grace", Phone: "07911000111"},
		bumpFail: true,
	}
	launcher := NewLauncher(store, donorReader, &fakeCallCreator{sid: "CA1"}, NewURLBuilder("https://x"), "+44", false, nil)

	mock.ExpectExec("INSERT INTO call_sessions").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE call_sessions").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	result, err := launcher.Launch(context.Background(), LaunchRequest{AgentID: 1, DonorID: 42, AgentPhone: "07000000001"})
	require.NoError(t, err)
	assert.Equal(t, "CA1", result.CallSID)
}
