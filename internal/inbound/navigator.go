package inbound

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/donorlink/callops/internal/messaging"
	"github.com/donorlink/callops/internal/observability/metrics"
	"github.com/donorlink/callops/internal/payments"
	"github.com/donorlink/callops/internal/phone"
	"github.com/donorlink/callops/internal/twiml"
	"github.com/donorlink/callops/pkg/logging"
)

type paymentRegistrar interface {
	Register(ctx context.Context, donorID int64, amount decimal.Decimal, method, notes string) (*payments.Intent, error)
}

// Navigator drives the keypad state machine over the menu tree. Each handler
// is a fresh request: the pressed digit arrives in the form body and all
// other state in the query string.
type Navigator struct {
	donors    donorDirectory
	records   recordWriter
	dispatch  dispatcher
	events    eventLedger
	registrar paymentRegistrar
	urls      *URLBuilder
	org       Org
	metrics   *metrics.VoiceMetrics
	logger    *logging.Logger
}

// NewNavigator wires the menu-step handlers. dispatch may be nil.
func NewNavigator(directory donorDirectory, records recordWriter, dispatch dispatcher, events eventLedger, registrar paymentRegistrar, urls *URLBuilder, org Org, m *metrics.VoiceMetrics, logger *logging.Logger) *Navigator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Navigator{
		donors:    directory,
		records:   records,
		dispatch:  dispatch,
		events:    events,
		registrar: registrar,
		urls:      urls,
		org:       org,
		metrics:   m,
		logger:    logger,
	}
}

// HandleMenu serves the root-menu digit. Donor-known and general-public
// variants branch here; anything outside the defined set speaks one invalid
// message and redirects to the root handler, never a dead end.
func (n *Navigator) HandleMenu(w http.ResponseWriter, r *http.Request) {
	mc, digit, callSID, ok := n.parseStep(w, r, "menu")
	if !ok {
		return
	}
	if digit == "" {
		n.goodbye(w)
		return
	}
	if err := n.records.SetMenuOption(r.Context(), callSID, digit); err != nil {
		n.logger.Warn("menu: record option failed", "error", err, "call_sid", callSID)
	}

	if mc.DonorID != nil {
		n.handleDonorMenu(w, r, mc, digit, callSID)
		return
	}
	n.handleGeneralMenu(w, r, mc, digit, callSID)
}

func (n *Navigator) handleDonorMenu(w http.ResponseWriter, r *http.Request, mc Context, digit, callSID string) {
	switch digit {
	case "1":
		n.speakBalance(r.Context(), w, mc)
	case "2":
		n.renderPaymentMethodMenu(w, mc)
	case "3":
		n.sendContactSMS(r.Context(), w, mc, callSID)
	case "4":
		n.redirectRoot(w)
	default:
		n.invalidOption(w)
	}
}

func (n *Navigator) handleGeneralMenu(w http.ResponseWriter, r *http.Request, mc Context, digit, callSID string) {
	switch digit {
	case "1":
		// The sort code and account number are deliberately repeated so a
		// caller writing them down hears them twice.
		line := n.bankDetailsLine()
		twiml.New().
			Say(fmt.Sprintf("You can support %s by bank transfer.", n.org.Name)).
			Say(line).
			Say("Once again. " + line).
			Say("Please use your name as the payment reference.").
			Redirect(n.urls.Entry()).
			Write(w)
	case "2":
		n.sendContactSMS(r.Context(), w, mc, callSID)
	case "3":
		n.redirectRoot(w)
	default:
		n.invalidOption(w)
	}
}

// HandlePaymentMethod serves the payment-method sub-menu digit.
func (n *Navigator) HandlePaymentMethod(w http.ResponseWriter, r *http.Request) {
	mc, digit, callSID, ok := n.parseStep(w, r, "payment_method")
	if !ok {
		return
	}
	switch digit {
	case "":
		n.goodbye(w)
	case "1":
		mc.Method = payments.MethodBankTransfer
		resp := twiml.New().Say(n.bankDetailsLine())
		if mc.DonorID != nil {
			n.sendBankDetails(r.Context(), mc, callSID)
		}
		n.gatherAmount(resp, mc)
		resp.Write(w)
	case "2":
		mc.Method = payments.MethodCash
		resp := twiml.New()
		n.gatherAmount(resp, mc)
		resp.Write(w)
	case "3":
		n.redirectRoot(w)
	default:
		n.invalidOption(w)
	}
}

// HandleAmount validates the entered amount and asks for confirmation. An
// amount above the known balance takes a detour through an explicit override
// question before the same confirmation gather.
func (n *Navigator) HandleAmount(w http.ResponseWriter, r *http.Request) {
	mc, digits, _, ok := n.parseStep(w, r, "amount")
	if !ok {
		return
	}
	if digits == "" {
		n.goodbye(w)
		return
	}

	amount, valid := parseAmount(digits)
	if !valid {
		twiml.New().
			Say("That is not a valid amount.").
			Redirect(n.urls.Entry()).
			Write(w)
		return
	}
	mc.Amount = &amount

	if mc.Balance != nil && amount.GreaterThan(*mc.Balance) {
		resp := twiml.New()
		resp.Gather(twiml.Gather{
			Action:    n.urls.AmountConfirm(mc, true),
			Method:    http.MethodPost,
			NumDigits: 1,
			Timeout:   10,
			Say: []twiml.Say{
				{Text: fmt.Sprintf("That amount is more than your remaining balance of %s.", phone.SpeakMoney(*mc.Balance))},
				{Text: "Press 1 to continue anyway, or press 2 to enter a different amount."},
			},
		})
		resp.Say("We did not receive a response. Goodbye.").Hangup()
		resp.Write(w)
		return
	}

	n.renderConfirmGather(w, mc)
}

// HandleAmountConfirm serves both the over-balance override question and the
// final confirmation, distinguished by the override query parameter.
func (n *Navigator) HandleAmountConfirm(w http.ResponseWriter, r *http.Request) {
	mc, digit, callSID, ok := n.parseStep(w, r, "amount_confirm")
	if !ok {
		return
	}
	if digit == "" {
		n.goodbye(w)
		return
	}
	if mc.Amount == nil || mc.DonorID == nil {
		n.invalidOption(w)
		return
	}

	if r.URL.Query().Get("override") == "1" {
		switch digit {
		case "1":
			n.renderConfirmGather(w, mc)
		case "2":
			resp := twiml.New()
			n.gatherAmount(resp, mc)
			resp.Write(w)
		default:
			n.invalidOption(w)
		}
		return
	}

	switch digit {
	case "1":
		n.finalizePayment(r.Context(), w, mc, callSID)
	case "2":
		resp := twiml.New()
		n.gatherAmount(resp, mc)
		resp.Write(w)
	default:
		n.invalidOption(w)
	}
}

// finalizePayment registers the intent and speaks the closing instructions.
// The confirmation message is gated by the processed-event ledger so a
// replayed webhook never sends it twice.
func (n *Navigator) finalizePayment(ctx context.Context, w http.ResponseWriter, mc Context, callSID string) {
	amount := *mc.Amount
	method := mc.Method
	if method == "" {
		method = payments.MethodBankTransfer
	}

	intent, err := n.registrar.Register(ctx, *mc.DonorID, amount, method,
		fmt.Sprintf("registered via phone menu from %s", mc.Caller))
	if err != nil {
		n.logger.Error("amount confirm: register intent failed", "error", err, "donor_id", *mc.DonorID)
		twiml.New().
			Say("We could not register your payment. Please contact the office.").
			Redirect(n.urls.Entry()).
			Write(w)
		return
	}

	if err := n.records.MarkPaymentPending(ctx, callSID, amount); err != nil {
		n.logger.Warn("amount confirm: mark payment pending failed", "error", err, "call_sid", callSID)
	}

	n.sendConfirmation(ctx, mc, callSID, intent)

	resp := twiml.New()
	if method == payments.MethodCash {
		resp.Say(fmt.Sprintf("Thank you. We have recorded your cash payment of %s. Someone from %s will be in touch to arrange collection.",
			phone.SpeakMoney(amount), n.org.Name))
	} else {
		resp.Say(fmt.Sprintf("Thank you. Please pay %s by bank transfer.", phone.SpeakMoney(amount))).
			Say(n.bankDetailsLine()).
			Say(fmt.Sprintf("Your payment reference is %s. We have sent these details to your phone.", intent.Reference))
	}
	resp.Say("Goodbye.").Hangup()
	resp.Write(w)
}

func (n *Navigator) sendConfirmation(ctx context.Context, mc Context, callSID string, intent *payments.Intent) {
	if n.dispatch == nil {
		return
	}
	first, err := n.events.MarkEventOnce(ctx, "ivr", "payment-confirmation:"+callSID)
	if err != nil {
		n.logger.Warn("amount confirm: dedup check failed", "error", err, "call_sid", callSID)
		return
	}
	if !first {
		return
	}

	if intent.Method == payments.MethodCash {
		message, err := messaging.RenderMessage("cash_notice", map[string]string{
			"DonorName": n.donorName(ctx, intent.DonorID),
			"DonorID":   fmt.Sprintf("%d", intent.DonorID),
			"Amount":    "£" + intent.Amount.StringFixed(2),
			"Caller":    mc.Caller,
		})
		if err != nil {
			n.logger.Error("amount confirm: render cash notice failed", "error", err)
			return
		}
		if err := n.dispatch.EnqueueDirect(ctx, callSID, n.org.AdminContactPhone, message, messaging.ChannelSMS); err != nil {
			n.logger.Warn("amount confirm: enqueue cash notice failed", "error", err)
		}
		return
	}

	remaining := decimal.Zero
	if mc.Balance != nil {
		remaining = mc.Balance.Sub(intent.Amount)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
	}
	err = n.dispatch.EnqueueTemplate(ctx, callSID, messaging.TemplatePaymentConfirmation, intent.DonorID, map[string]string{
		"amount":            "£" + intent.Amount.StringFixed(2),
		"reference":         intent.Reference,
		"remaining_balance": "£" + remaining.StringFixed(2),
		"account_name":      n.org.BankAccountName,
		"sort_code":         n.org.BankSortCode,
		"account_number":    n.org.BankAccountNumber,
	}, messaging.ChannelWhatsApp)
	if err != nil {
		n.logger.Warn("amount confirm: enqueue confirmation failed", "error", err)
	}
}

func (n *Navigator) speakBalance(ctx context.Context, w http.ResponseWriter, mc Context) {
	summary, err := n.donors.BalanceSummary(ctx, *mc.DonorID)
	if err != nil {
		n.logger.Error("menu: balance summary failed", "error", err, "donor_id", *mc.DonorID)
		twiml.New().
			Say("We could not retrieve your balance right now. Please try again later.").
			Redirect(n.urls.Entry()).
			Write(w)
		return
	}
	balance := effectiveBalance(summary)
	twiml.New().
		Say(fmt.Sprintf("Your pledge is %s.", phone.SpeakMoney(summary.Pledged))).
		Say(fmt.Sprintf("You have paid %s.", phone.SpeakMoney(summary.Paid))).
		Say(fmt.Sprintf("Your remaining balance is %s.", phone.SpeakMoney(balance))).
		Redirect(n.urls.Entry()).
		Write(w)
}

func (n *Navigator) sendContactSMS(ctx context.Context, w http.ResponseWriter, mc Context, callSID string) {
	delivered := false
	if n.dispatch != nil && mc.Caller != "" {
		message, err := messaging.RenderMessage("contact_sms", map[string]string{
			"Org":          n.org.Name,
			"ContactPhone": phone.LocalUK(n.org.ContactPhone),
		})
		if err == nil {
			if err := n.dispatch.EnqueueDirect(ctx, callSID, mc.Caller, message, messaging.ChannelSMS); err != nil {
				n.logger.Warn("menu: enqueue contact sms failed", "error", err, "call_sid", callSID)
			} else {
				delivered = true
				if err := n.records.MarkContactSMSSent(ctx, callSID); err != nil {
					n.logger.Warn("menu: mark contact sms failed", "error", err, "call_sid", callSID)
				}
			}
		}
	}

	resp := twiml.New()
	if delivered {
		resp.Say("We have sent our contact number to your phone by text message.")
	}
	resp.Say(fmt.Sprintf("You can reach us on %s.", phone.SpeakDigits(phone.LocalUK(n.org.ContactPhone)))).
		Redirect(n.urls.Entry()).
		Write(w)
}

func (n *Navigator) renderPaymentMethodMenu(w http.ResponseWriter, mc Context) {
	resp := twiml.New()
	resp.Gather(twiml.Gather{
		Action:    n.urls.PaymentMethod(mc),
		Method:    http.MethodPost,
		NumDigits: 1,
		Timeout:   10,
		Say: []twiml.Say{
			{Text: "Press 1 to pay by bank transfer."},
			{Text: "Press 2 to arrange a cash payment."},
			{Text: "Press 3 to return to the main menu."},
		},
	})
	resp.Say("We did not receive a response. Goodbye.").Hangup()
	resp.Write(w)
}

func (n *Navigator) gatherAmount(resp *twiml.Response, mc Context) {
	gatherCtx := mc
	gatherCtx.Amount = nil
	resp.Gather(twiml.Gather{
		Action:      n.urls.Amount(gatherCtx),
		Method:      http.MethodPost,
		FinishOnKey: "#",
		Timeout:     15,
		Say: []twiml.Say{
			{Text: "Please enter the amount you wish to pay in whole pounds, then press the hash key."},
		},
	})
	resp.Say("We did not receive a response. Goodbye.").Hangup()
}

func (n *Navigator) renderConfirmGather(w http.ResponseWriter, mc Context) {
	resp := twiml.New()
	resp.Gather(twiml.Gather{
		Action:    n.urls.AmountConfirm(mc, false),
		Method:    http.MethodPost,
		NumDigits: 1,
		Timeout:   10,
		Say: []twiml.Say{
			{Text: fmt.Sprintf("You entered %s.", phone.SpeakMoney(*mc.Amount))},
			{Text: "Press 1 to confirm, or press 2 to enter a different amount."},
		},
	})
	resp.Say("We did not receive a response. Goodbye.").Hangup()
	resp.Write(w)
}

func (n *Navigator) bankDetailsLine() string {
	return fmt.Sprintf("The account name is %s. The sort code is %s. The account number is %s.",
		n.org.BankAccountName,
		phone.SpeakDigits(n.org.BankSortCode),
		phone.SpeakDigits(n.org.BankAccountNumber))
}

func (n *Navigator) sendBankDetails(ctx context.Context, mc Context, callSID string) {
	if n.dispatch == nil {
		return
	}
	message, err := messaging.RenderMessage("bank_details", map[string]string{
		"Org":           n.org.Name,
		"AccountName":   n.org.BankAccountName,
		"SortCode":      n.org.BankSortCode,
		"AccountNumber": n.org.BankAccountNumber,
	})
	if err != nil {
		n.logger.Error("payment method: render bank details failed", "error", err)
		return
	}
	if err := n.dispatch.EnqueueDirect(ctx, callSID, mc.Caller, message, messaging.ChannelWhatsApp); err != nil {
		n.logger.Warn("payment method: enqueue bank details failed", "error", err)
	}
}

func (n *Navigator) parseStep(w http.ResponseWriter, r *http.Request, node string) (Context, string, string, bool) {
	if err := r.ParseForm(); err != nil {
		n.logger.Error("menu step: bad form", "error", err, "node", node)
		twiml.VoiceError().Write(w)
		return Context{}, "", "", false
	}
	mc := ContextFromQuery(r.URL.Query())
	digit := r.PostForm.Get("Digits")
	callSID := r.PostForm.Get("CallSid")
	n.metrics.ObserveMenuStep(node, digit)
	return mc, digit, callSID, true
}

func (n *Navigator) redirectRoot(w http.ResponseWriter) {
	twiml.New().Redirect(n.urls.Entry()).Write(w)
}

func (n *Navigator) invalidOption(w http.ResponseWriter) {
	twiml.New().
		Say("That is not a valid option.").
		Redirect(n.urls.Entry()).
		Write(w)
}

func (n *Navigator) goodbye(w http.ResponseWriter) {
	twiml.New().Say("We did not receive a response. Goodbye.").Hangup().Write(w)
}

func (n *Navigator) donorName(ctx context.Context, donorID int64) string {
	donor, err := n.donors.GetByID(ctx, donorID)
	if err != nil {
		return fmt.Sprintf("donor %d", donorID)
	}
	return donor.Name
}

// parseAmount interprets the gathered digits as a whole-pound amount. Only
// plain digit strings are accepted; star presses or empty input are invalid.
func parseAmount(digits string) (decimal.Decimal, bool) {
	if digits == "" || phone.SanitizeDigits(digits) != digits {
		return decimal.Decimal{}, false
	}
	amount, err := decimal.NewFromString(digits)
	if err != nil || !amount.IsPositive() {
		return decimal.Decimal{}, false
	}
	return amount, true
}
