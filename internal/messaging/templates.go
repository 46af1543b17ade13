package messaging

import (
	"bytes"
	"fmt"
	"text/template"
)

// Template keys known to the gateway's template-driven variant.
const (
	TemplatePaymentConfirmation = "payment_confirmation"
)

// Message texts the core composes locally before a direct Send. Keys the
// gateway renders itself (see Template* constants) are not listed here.
var messageTexts = map[string]string{
	"balance_summary": "Hello {{.Name}}, thank you for calling {{.Org}}. " +
		"Your pledge stands at {{.Pledged}}, you have given {{.Paid}}, and your remaining balance is {{.Balance}}. " +
		"To give by bank transfer: {{.AccountName}}, sort code {{.SortCode}}, account number {{.AccountNumber}}. " +
		"Please use your name as the payment reference.",
	"bank_details": "{{.Org}} bank details: {{.AccountName}}, sort code {{.SortCode}}, account number {{.AccountNumber}}. " +
		"Please use your name as the payment reference.",
	"contact_sms": "Thank you for calling {{.Org}}. You can reach the office on {{.ContactPhone}}.",
	"cash_notice": "Cash payment registered over the phone: donor {{.DonorName}} (id {{.DonorID}}), amount {{.Amount}}, caller {{.Caller}}. " +
		"Please arrange collection.",
}

// RenderMessage renders a locally composed message with strict missing-key
// semantics, so a template drift fails loudly in tests rather than sending a
// donor a message with holes in it.
func RenderMessage(key string, data any) (string, error) {
	text, ok := messageTexts[key]
	if !ok {
		return "", fmt.Errorf("messaging: unknown message template %q", key)
	}
	t, err := template.New(key).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("messaging: parse template %q: %w", key, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("messaging: execute template %q: %w", key, err)
	}
	return buf.String(), nil
}
