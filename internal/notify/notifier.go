package notify

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Message describes one notification to a single recipient. The template key
// selects the rendered layout; Model carries the values it interpolates.
type Message struct {
	To          string
	Subject     string
	Template    string
	Model       map[string]string
	RelatedKind string
	RelatedID   uuid.UUID
}

// Notifier delivers asynchronously. Implementations must never surface
// delivery failures to the caller: the state transition that triggered the
// notification has already happened.
type Notifier interface {
	Send(ctx context.Context, msg Message)
}

// LogNotifier writes notifications to the process log. Used in dev and as a
// fallback when no outbox is configured.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, msg Message) {
	log.Printf("notify to=%s subject=%q template=%s related=%s/%s",
		msg.To, msg.Subject, msg.Template, msg.RelatedKind, msg.RelatedID)
}

// renderBody produces a plain-text rendition of the model. Real templating is
// a delivery concern that lives behind the Mailer.
func renderBody(msg Message) string {
	keys := make([]string, 0, len(msg.Model))
	for k := range msg.Model {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(msg.Subject)
	b.WriteString("\n\n")
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(msg.Model[k])
		b.WriteString("\n")
	}
	return b.String()
}
