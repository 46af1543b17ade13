package callsession

import "time"

// Callback is one parsed lifecycle callback. Dial* fields describe the donor
// leg of a bridged call; when HasDialLeg is false the callback describes the
// parent (agent) call only.
type Callback struct {
	CallSID          string
	CallStatus       string
	CallDuration     *int
	HasDialLeg       bool
	DialCallSID      string
	DialCallStatus   string
	DialCallDuration *int
	ErrorCode        string
	ErrorMessage     string
	ReceivedAt       time.Time
}

// Classification is the normalized result of one callback. Empty fields mean
// "leave the stored value untouched".
type Classification struct {
	Status          string
	Stage           string
	Outcome         string
	LegStatus       string
	DurationSeconds *int
	ErrorCode       string
	ErrorMessage    string
	DonorAnswered   bool
	Terminal        bool
}

// donor-leg status to outcome. Anything unmapped records no_answer.
var outcomeByLegStatus = map[string]string{
	"busy":      OutcomeBusySignal,
	"no-answer": OutcomeNoAnswer,
	"canceled":  OutcomeDroppedBeforeTalk,
	"failed":    OutcomeCallFailedTechnical,
}

// Classify turns a raw callback into field-level session updates. Donor-leg
// fields are authoritative when present; otherwise the callback only moves the
// agent/parent side of the call.
func Classify(cb Callback) Classification {
	if cb.HasDialLeg {
		return classifyDonorLeg(cb)
	}
	return classifyParent(cb)
}

func classifyDonorLeg(cb Callback) Classification {
	duration := 0
	if cb.DialCallDuration != nil {
		duration = *cb.DialCallDuration
	}

	c := Classification{
		LegStatus: cb.DialCallStatus,
		Terminal:  true,
	}

	if cb.DialCallStatus == "completed" && duration > 0 {
		c.Status = StatusCompleted
		c.Stage = StageContactMade
		c.DurationSeconds = cb.DialCallDuration
		c.DonorAnswered = true
		return c
	}

	c.Status = StatusFailed
	c.Stage = StageAttemptFailed
	switch cb.DialCallStatus {
	case "busy":
		c.ErrorCode = "486"
		c.ErrorMessage = "line busy or rejected"
	case "no-answer":
		c.ErrorCode = "480"
		c.ErrorMessage = "did not answer"
	case "failed":
		c.ErrorCode = "31005"
		c.ErrorMessage = "call to donor failed"
	case "canceled":
		c.ErrorCode = "487"
		c.ErrorMessage = "canceled before donor answered"
	case "completed":
		// Connected but zero duration: donor declined or hung up immediately.
		c.ErrorCode = "603"
		c.ErrorMessage = "declined or did not engage"
	default:
		c.ErrorCode = "603"
		c.ErrorMessage = "donor leg ended without answer"
	}

	if outcome, ok := outcomeByLegStatus[cb.DialCallStatus]; ok {
		c.Outcome = outcome
	} else {
		c.Outcome = OutcomeNoAnswer
	}

	// Callback-supplied error details win over the derived taxonomy.
	if cb.ErrorCode != "" {
		c.ErrorCode = cb.ErrorCode
	}
	if cb.ErrorMessage != "" {
		c.ErrorMessage = cb.ErrorMessage
	}
	return c
}

func classifyParent(cb Callback) Classification {
	c := Classification{LegStatus: cb.CallStatus}

	switch cb.CallStatus {
	case "in-progress", "answered":
		// Agent connected, donor not yet dialed.
		c.Status = StatusInProgress
		c.Stage = StagePending
	case "completed":
		c.Status = StatusCompleted
		c.DurationSeconds = cb.CallDuration
		c.Terminal = true
	case "failed", "busy", "no-answer", "canceled":
		// Parent failure before the donor leg existed: record error fields but
		// no donor-outcome mapping.
		c.Status = StatusFailed
		c.Stage = StageAttemptFailed
		c.ErrorCode = cb.ErrorCode
		c.ErrorMessage = cb.ErrorMessage
		if c.ErrorMessage == "" {
			c.ErrorMessage = "call " + cb.CallStatus + " before donor leg was dialed"
		}
		c.Terminal = true
	}
	return c
}
