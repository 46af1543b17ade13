package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/donorlink/callops/pkg/logging"
)

// Job is one queued outbound send. Voice handlers enqueue and move on; the
// carrier's markup response must never wait on the gateway. The call SID ties
// the delivered message back to its inbound call record.
type Job struct {
	Kind        string            `json:"kind"` // "direct" or "template"
	CallSID     string            `json:"call_sid,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	Message     string            `json:"message,omitempty"`
	Channel     string            `json:"channel,omitempty"`
	TemplateKey string            `json:"template_key,omitempty"`
	DonorID     int64             `json:"donor_id,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	EnqueuedAt  time.Time         `json:"enqueued_at"`
}

type failureAlerter interface {
	SendFailureAlert(ctx context.Context, subject, detail string)
}

type messageRecorder interface {
	SetWhatsAppMessageID(ctx context.Context, callSID, messageID string) error
}

// Dispatcher drains the queue and submits jobs to the gateway. Send failures
// are logged, optionally alerted, and never retried here; retry policy belongs
// to the gateway. Delivered WhatsApp message ids are written back to the
// originating call record.
type Dispatcher struct {
	queue   Queue
	gateway Gateway
	alerts  failureAlerter
	records messageRecorder
	logger  *logging.Logger
}

// NewDispatcher wires a dispatcher; alerts and records may be nil.
func NewDispatcher(queue Queue, gateway Gateway, alerts failureAlerter, records messageRecorder, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{queue: queue, gateway: gateway, alerts: alerts, records: records, logger: logger}
}

// EnqueueDirect queues a locally composed message. A nil dispatcher drops the
// job, so callers need no special case when messaging is not configured.
func (d *Dispatcher) EnqueueDirect(ctx context.Context, callSID, phone, message, channel string) error {
	if d == nil {
		return nil
	}
	return d.enqueue(ctx, Job{
		Kind:    "direct",
		CallSID: callSID,
		Phone:   phone,
		Message: message,
		Channel: channel,
	})
}

// EnqueueTemplate queues a gateway-rendered template send.
func (d *Dispatcher) EnqueueTemplate(ctx context.Context, callSID, templateKey string, donorID int64, variables map[string]string, channel string) error {
	if d == nil {
		return nil
	}
	return d.enqueue(ctx, Job{
		Kind:        "template",
		CallSID:     callSID,
		TemplateKey: templateKey,
		DonorID:     donorID,
		Variables:   variables,
		Channel:     channel,
	})
}

func (d *Dispatcher) enqueue(ctx context.Context, job Job) error {
	job.EnqueuedAt = time.Now().UTC()
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("messaging: encode job: %w", err)
	}
	if err := d.queue.Push(ctx, payload); err != nil {
		return fmt.Errorf("messaging: enqueue job: %w", err)
	}
	return nil
}

// Run drains the queue until ctx is canceled. Start one goroutine per worker.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		payload, err := d.queue.Pop(ctx, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("dispatch queue pop failed", "error", err)
			continue
		}
		if payload == nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		d.process(ctx, payload)
	}
}

func (d *Dispatcher) process(ctx context.Context, payload []byte) {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		d.logger.Error("dropping undecodable dispatch job", "error", err)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var result SendResult
	var err error
	switch job.Kind {
	case "template":
		result, err = d.gateway.SendFromTemplate(sendCtx, job.TemplateKey, job.DonorID, job.Variables, job.Channel)
	default:
		result, err = d.gateway.Send(sendCtx, job.Phone, job.Message, job.Channel)
	}

	if err != nil || !result.Success {
		detail := result.Error
		if err != nil {
			detail = err.Error()
		}
		d.logger.Warn("gateway send failed",
			"kind", job.Kind, "phone", job.Phone, "template", job.TemplateKey, "error", detail)
		if d.alerts != nil {
			d.alerts.SendFailureAlert(ctx, "messaging gateway send failed", detail)
		}
		return
	}
	d.logger.Info("gateway send delivered",
		"kind", job.Kind, "message_id", result.MessageID, "channel", job.Channel)

	if d.records != nil && job.CallSID != "" && job.Channel == ChannelWhatsApp && result.MessageID != "" {
		if err := d.records.SetWhatsAppMessageID(ctx, job.CallSID, result.MessageID); err != nil {
			d.logger.Warn("record message id failed",
				"error", err, "call_sid", job.CallSID, "message_id", result.MessageID)
		}
	}
}
