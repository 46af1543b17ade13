package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/donorlink/callops/internal/donors"
	"github.com/donorlink/callops/internal/messaging"
	"github.com/donorlink/callops/internal/observability/metrics"
	"github.com/donorlink/callops/internal/phone"
	"github.com/donorlink/callops/internal/twiml"
	"github.com/donorlink/callops/internal/webhooklog"
	"github.com/donorlink/callops/pkg/logging"
)

// Org holds the organisation details spoken and messaged to donors.
type Org struct {
	Name              string
	BankAccountName   string
	BankSortCode      string
	BankAccountNumber string
	ContactPhone      string
	AdminContactPhone string
}

type donorDirectory interface {
	GetByID(ctx context.Context, id int64) (*donors.Donor, error)
	GetByPhone(ctx context.Context, phone string) (*donors.Donor, error)
	BalanceSummary(ctx context.Context, donorID int64) (*donors.BalanceSummary, error)
}

type recordWriter interface {
	Upsert(ctx context.Context, callSID, callerPhone string, donorID *int64) error
	MarkSummarySent(ctx context.Context, callSID string) error
	MarkContactSMSSent(ctx context.Context, callSID string) error
	SetMenuOption(ctx context.Context, callSID, option string) error
	MarkPaymentPending(ctx context.Context, callSID string, amount decimal.Decimal) error
}

type dispatcher interface {
	EnqueueDirect(ctx context.Context, callSID, phone, message, channel string) error
	EnqueueTemplate(ctx context.Context, callSID, templateKey string, donorID int64, variables map[string]string, channel string) error
}

type eventLedger interface {
	MarkEventOnce(ctx context.Context, provider, eventKey string) (bool, error)
}

type auditLog interface {
	Append(ctx context.Context, category, callSID, payload string) (uuid.UUID, error)
}

// Engine answers the inbound entry webhook: it identifies the caller,
// provisions the call record, kicks off the balance-summary message, and
// renders the root menu.
type Engine struct {
	donors   donorDirectory
	records  recordWriter
	dispatch dispatcher
	events   eventLedger
	audit    auditLog
	urls     *URLBuilder
	org      Org
	metrics  *metrics.VoiceMetrics
	logger   *logging.Logger
}

// NewEngine wires the inbound entry handler. dispatch and audit may be nil.
func NewEngine(directory donorDirectory, records recordWriter, dispatch dispatcher, events eventLedger, audit auditLog, urls *URLBuilder, org Org, m *metrics.VoiceMetrics, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		donors:   directory,
		records:  records,
		dispatch: dispatch,
		events:   events,
		audit:    audit,
		urls:     urls,
		org:      org,
		metrics:  m,
		logger:   logger,
	}
}

// HandleEntry serves the root inbound webhook. It always answers with menu
// markup; lookup and side-channel failures degrade, they never drop the call.
func (e *Engine) HandleEntry(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		e.logger.Error("inbound entry: bad form", "error", err)
		e.metrics.ObserveCallback(webhooklog.CategoryInbound, "bad_form")
		twiml.VoiceError().Write(w)
		return
	}
	ctx := r.Context()
	callSID := r.PostForm.Get("CallSid")
	caller := phone.NormalizeUK(r.PostForm.Get("From"))

	e.appendAudit(ctx, callSID, r.PostForm)

	donor := e.lookupDonor(ctx, caller)
	mc := Context{Caller: caller}
	var donorID *int64
	if donor != nil {
		donorID = &donor.ID
		mc.DonorID = &donor.ID
	}

	if err := e.records.Upsert(ctx, callSID, caller, donorID); err != nil {
		e.logger.Error("inbound entry: record upsert failed", "error", err, "call_sid", callSID)
	}

	var summary *donors.BalanceSummary
	if donor != nil {
		var err error
		summary, err = e.donors.BalanceSummary(ctx, donor.ID)
		if err != nil {
			e.logger.Warn("inbound entry: balance summary unavailable", "error", err, "donor_id", donor.ID)
		}
	}
	if summary != nil {
		balance := effectiveBalance(summary)
		mc.Balance = &balance
	}

	if donor != nil {
		e.sendBalanceSummary(ctx, callSID, caller, donor, summary)
	}

	e.metrics.ObserveCallback(webhooklog.CategoryInbound, "ok")
	e.renderRootMenu(w, mc, donor)
}

func (e *Engine) renderRootMenu(w http.ResponseWriter, mc Context, donor *donors.Donor) {
	resp := twiml.New()
	gather := twiml.Gather{
		Action:    e.urls.Menu(mc),
		Method:    http.MethodPost,
		NumDigits: 1,
		Timeout:   10,
	}
	if donor != nil {
		resp.Say(fmt.Sprintf("Hello %s, welcome to the %s donation line.", phone.FirstName(donor.Name), e.org.Name))
		gather.Say = []twiml.Say{
			{Text: "Press 1 to hear your pledge balance."},
			{Text: "Press 2 for payment options."},
			{Text: "Press 3 to receive our contact number by text message."},
			{Text: "Press 4 to hear these options again."},
		}
	} else {
		resp.Say(fmt.Sprintf("Welcome to the %s donation line.", e.org.Name))
		gather.Say = []twiml.Say{
			{Text: "Press 1 to hear our bank details."},
			{Text: "Press 2 to receive our contact number by text message."},
			{Text: "Press 3 to hear these options again."},
		}
	}
	resp.Gather(gather)
	resp.Say("We did not receive a response. Goodbye.").Hangup()
	resp.Write(w)
}

func (e *Engine) lookupDonor(ctx context.Context, caller string) *donors.Donor {
	if caller == "" {
		return nil
	}
	donor, err := e.donors.GetByPhone(ctx, caller)
	if err != nil {
		if !errors.Is(err, donors.ErrNotFound) {
			e.logger.Error("inbound entry: donor lookup failed", "error", err, "caller", caller)
		}
		return nil
	}
	return donor
}

// sendBalanceSummary dispatches the WhatsApp balance summary once per call.
// Everything here is best effort; the menu renders regardless.
func (e *Engine) sendBalanceSummary(ctx context.Context, callSID, caller string, donor *donors.Donor, summary *donors.BalanceSummary) {
	if e.dispatch == nil || summary == nil {
		return
	}
	first, err := e.events.MarkEventOnce(ctx, "ivr", "balance-summary:"+callSID)
	if err != nil {
		e.logger.Warn("inbound entry: dedup check failed", "error", err, "call_sid", callSID)
		return
	}
	if !first {
		return
	}

	message, err := messaging.RenderMessage("balance_summary", map[string]string{
		"Name":          phone.FirstName(donor.Name),
		"Org":           e.org.Name,
		"Pledged":       "£" + summary.Pledged.StringFixed(2),
		"Paid":          "£" + summary.Paid.StringFixed(2),
		"Balance":       "£" + effectiveBalance(summary).StringFixed(2),
		"AccountName":   e.org.BankAccountName,
		"SortCode":      e.org.BankSortCode,
		"AccountNumber": e.org.BankAccountNumber,
	})
	if err != nil {
		e.logger.Error("inbound entry: render balance summary failed", "error", err)
		return
	}
	if err := e.dispatch.EnqueueDirect(ctx, callSID, caller, message, messaging.ChannelWhatsApp); err != nil {
		e.logger.Warn("inbound entry: enqueue balance summary failed", "error", err, "call_sid", callSID)
		return
	}
	if err := e.records.MarkSummarySent(ctx, callSID); err != nil {
		e.logger.Warn("inbound entry: mark summary sent failed", "error", err, "call_sid", callSID)
	}
}

func (e *Engine) appendAudit(ctx context.Context, callSID string, form map[string][]string) {
	if e.audit == nil {
		return
	}
	payload, err := json.Marshal(form)
	if err != nil {
		return
	}
	if _, err := e.audit.Append(ctx, webhooklog.CategoryInbound, callSID, string(payload)); err != nil {
		e.logger.Warn("inbound entry: audit append failed", "error", err, "call_sid", callSID)
	}
}

// effectiveBalance prefers the stored balance but falls back to
// pledged minus paid when the stored value is non-positive yet a pledge
// exists, which happens when the balance column lags behind new pledges.
func effectiveBalance(summary *donors.BalanceSummary) decimal.Decimal {
	if !summary.Balance.IsPositive() && summary.Pledged.IsPositive() {
		return summary.Pledged.Sub(summary.Paid)
	}
	return summary.Balance
}
