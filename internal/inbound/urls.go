// Package inbound answers unsolicited calls from donors with a keypad-driven
// menu. There is no server-side session for the menu tree: every hop is a
// stateless request that reconstructs its context from URL parameters, so the
// engine scales horizontally with zero shared state.
package inbound

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Webhook paths for the inbound menu tree. The router must mount handlers at
// the same paths.
const (
	PathEntry         = "/webhooks/voice/inbound"
	PathMenu          = "/webhooks/voice/inbound/menu"
	PathPaymentMethod = "/webhooks/voice/inbound/payment-method"
	PathAmount        = "/webhooks/voice/inbound/amount"
	PathAmountConfirm = "/webhooks/voice/inbound/amount/confirm"
)

// Context is the accumulated menu state carried in every generated URL.
// Amounts and ids must be passed forward explicitly because the next hop
// arrives as a fresh request.
type Context struct {
	Caller  string
	DonorID *int64
	Balance *decimal.Decimal
	Method  string
	Amount  *decimal.Decimal
}

func (c Context) values() url.Values {
	params := url.Values{}
	if c.Caller != "" {
		params.Set("caller", c.Caller)
	}
	if c.DonorID != nil {
		params.Set("donor", strconv.FormatInt(*c.DonorID, 10))
	}
	if c.Balance != nil {
		params.Set("balance", c.Balance.StringFixed(2))
	}
	if c.Method != "" {
		params.Set("method", c.Method)
	}
	if c.Amount != nil {
		params.Set("amount", c.Amount.StringFixed(2))
	}
	return params
}

// ContextFromQuery rebuilds the menu context from a request's query string.
// Unparseable values are dropped rather than failing the hop.
func ContextFromQuery(q url.Values) Context {
	c := Context{
		Caller: q.Get("caller"),
		Method: q.Get("method"),
	}
	if raw := q.Get("donor"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			c.DonorID = &id
		}
	}
	if raw := q.Get("balance"); raw != "" {
		if v, err := decimal.NewFromString(raw); err == nil {
			c.Balance = &v
		}
	}
	if raw := q.Get("amount"); raw != "" {
		if v, err := decimal.NewFromString(raw); err == nil {
			c.Amount = &v
		}
	}
	return c
}

// URLBuilder produces the absolute action URLs embedded in menu markup.
type URLBuilder struct {
	base string
}

// NewURLBuilder trims the public base URL for joining.
func NewURLBuilder(publicBaseURL string) *URLBuilder {
	return &URLBuilder{base: strings.TrimRight(publicBaseURL, "/")}
}

// Entry returns the root inbound handler. The carrier re-posts the standard
// call parameters on redirect, so no context needs to travel here.
func (b *URLBuilder) Entry() string {
	return b.base + PathEntry
}

// Menu returns the root-menu digit handler.
func (b *URLBuilder) Menu(c Context) string {
	return b.base + PathMenu + "?" + c.values().Encode()
}

// PaymentMethod returns the payment-method sub-menu digit handler.
func (b *URLBuilder) PaymentMethod(c Context) string {
	return b.base + PathPaymentMethod + "?" + c.values().Encode()
}

// Amount returns the amount-entry digit handler.
func (b *URLBuilder) Amount(c Context) string {
	return b.base + PathAmount + "?" + c.values().Encode()
}

// AmountConfirm returns the confirmation digit handler. With override set the
// digit answers the over-balance question instead of the final confirmation.
func (b *URLBuilder) AmountConfirm(c Context, override bool) string {
	params := c.values()
	if override {
		params.Set("override", "1")
	}
	return b.base + PathAmountConfirm + "?" + params.Encode()
}
