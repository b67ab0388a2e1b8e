package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	statusPending = "PENDING"
	statusSent    = "SENT"
	statusFailed  = "FAILED"
)

// Mailer performs the actual delivery.
type Mailer interface {
	Send(to, subject, body string) error
}

// LogMailer logs instead of delivering. Default when SMTP is not configured.
type LogMailer struct{}

func (LogMailer) Send(to, subject, _ string) error {
	log.Printf("mail (log only) to=%s subject=%q", to, subject)
	return nil
}

// SMTPMailer delivers over plain SMTP.
type SMTPMailer struct {
	Addr string // host:port
	From string
}

func (m SMTPMailer) Send(to, subject, body string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(body)

	return smtp.SendMail(m.Addr, nil, m.From, []string{to}, []byte(b.String()))
}

// OutboxNotifier records every notification in the email_notifications table
// and hands delivery to the mailer in the background. The outbox row is the
// durable record; the triggering transaction never waits on delivery.
type OutboxNotifier struct {
	pool   *pgxpool.Pool
	mailer Mailer
}

func NewOutboxNotifier(pool *pgxpool.Pool, mailer Mailer) *OutboxNotifier {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &OutboxNotifier{pool: pool, mailer: mailer}
}

func (n *OutboxNotifier) Send(ctx context.Context, msg Message) {
	id := uuid.New()
	body := renderBody(msg)

	_, err := n.pool.Exec(ctx, `
		INSERT INTO email_notifications (id, recipient_email, subject, body, status, related_entity_type, related_entity_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, msg.To, msg.Subject, body, statusPending, msg.RelatedKind, nullableUUID(msg.RelatedID))
	if err != nil {
		log.Printf("notification outbox insert failed to=%s subject=%q: %v", msg.To, msg.Subject, err)
		return
	}

	go n.deliver(id, msg.To, msg.Subject, body)
}

func (n *OutboxNotifier) deliver(id uuid.UUID, to, subject, body string) {
	status := statusSent
	if err := n.mailer.Send(to, subject, body); err != nil {
		status = statusFailed
		log.Printf("notification delivery failed to=%s subject=%q: %v", to, subject, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := n.pool.Exec(ctx, `
		UPDATE email_notifications SET status = $2, sent_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		log.Printf("notification status update failed id=%s: %v", id, err)
	}
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
