package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/candle-checkout/internal/common"
	"github.com/noah-isme/candle-checkout/internal/obs"
)

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<html lang="{{.B.Language}}"><body>
<p>{{.Greeting}}</p>
<p>{{.B.Intro}}</p>
<p>{{.B.OrderLabel}}: <strong>{{.P.OrderID}}</strong><br>
{{.B.TotalLabel}}: <strong>{{.P.Total}}</strong></p>
{{if .P.ReceiptURL}}<p><a href="{{.P.ReceiptURL}}">{{.B.ReceiptLabel}}</a></p>{{end}}
<p>{{.B.SignOff}}</p>
</body></html>`))

// RenderConfirmation returns the subject and HTML body for p in bundle b.
func RenderConfirmation(b Bundle, p ConfirmationPayload) (string, string, error) {
	name := p.Name
	if name == "" {
		name = p.Email
	}
	var buf bytes.Buffer
	err := confirmationTemplate.Execute(&buf, struct {
		B        Bundle
		P        ConfirmationPayload
		Greeting string
	}{B: b, P: p, Greeting: fmt.Sprintf(b.Greeting, name)})
	if err != nil {
		return "", "", fmt.Errorf("notify: render confirmation: %w", err)
	}
	return fmt.Sprintf("%s (%s)", b.Subject, p.OrderID), buf.String(), nil
}

// ConfirmationHandler sends the confirmation email for a TypeOrderConfirmation task.
type ConfirmationHandler struct {
	Mail    common.EmailSender
	Content ContentProvider
	Logger  zerolog.Logger
}

// ProcessTask implements asynq.Handler. Malformed payloads are not retried.
func (h ConfirmationHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if h.Mail == nil {
		return errors.New("notify: mail sender not configured")
	}
	p, err := ParseConfirmationTask(t)
	if err != nil {
		obs.CountNotification("order_confirmation", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	content := h.Content
	if content == nil {
		content = DefaultContent()
	}
	bundle, err := content.Bundle(p.Language)
	if err != nil {
		return fmt.Errorf("notify: load content: %w", err)
	}
	subject, body, err := RenderConfirmation(bundle, p)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	err = h.Mail.Send(p.Email, subject, body)
	obs.CountNotification("order_confirmation", err)
	if err != nil {
		h.Logger.Warn().Err(err).Str("order_id", p.OrderID).Msg("confirmation_email_failed")
		return fmt.Errorf("notify: send confirmation: %w", err)
	}
	h.Logger.Info().Str("order_id", p.OrderID).Str("language", bundle.Language).Msg("confirmation_email_sent")
	return nil
}

// Register mounts the task handlers on mux.
func (h ConfirmationHandler) Register(mux *asynq.ServeMux) {
	mux.Handle(TypeOrderConfirmation, h)
}
