// Package notify delivers finalized signal batches. Delivery failure is
// non-fatal everywhere: signals are persisted before notification and are
// never rolled back on a send error.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sawpanic/equityrun/internal/domain"
)

// Notifier receives the signals a pass emitted.
type Notifier interface {
	NotifySignals(ctx context.Context, tradingDay string, signals []domain.SignalRecord) error
}

// EmailConfig is SMTP delivery config. Disabled or empty recipients means
// the Nop notifier is used instead.
type EmailConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password" json:"-"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// EmailNotifier sends one plain-text mail per signal batch over SMTP.
type EmailNotifier struct {
	cfg  EmailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	log  zerolog.Logger
}

func NewEmailNotifier(cfg EmailConfig, log zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:  cfg,
		send: smtp.SendMail,
		log:  log.With().Str("component", "email_notifier").Logger(),
	}
}

func (n *EmailNotifier) NotifySignals(ctx context.Context, tradingDay string, signals []domain.SignalRecord) error {
	if len(signals) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := fmt.Sprintf("Trading signals %s: %d new", tradingDay, len(signals))
	msg := buildMessage(n.cfg.From, n.cfg.To, subject, FormatSignalBody(tradingDay, signals))

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	if err := n.send(addr, auth, n.cfg.From, n.cfg.To, msg); err != nil {
		return fmt.Errorf("send signal mail: %w", err)
	}
	n.log.Info().Str("trading_day", tradingDay).Int("signals", len(signals)).
		Int("recipients", len(n.cfg.To)).Msg("signal mail sent")
	return nil
}

// FormatSignalBody renders the batch as a readable plain-text table.
func FormatSignalBody(tradingDay string, signals []domain.SignalRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Signals for trading day %s\n\n", tradingDay)
	for _, s := range signals {
		fmt.Fprintf(&b, "%-5s %-10s score=%.1f price=%.2f reason=%s\n",
			strings.ToUpper(string(s.Type)), s.Symbol, s.Score, s.Price, s.Reason)
	}
	b.WriteString("\nAutomated recommendation, not investment advice.\n")
	return b.String()
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// Nop is the disabled notifier.
type Nop struct{}

func (Nop) NotifySignals(context.Context, string, []domain.SignalRecord) error { return nil }

// ForConfig picks the concrete notifier for the config.
func ForConfig(cfg EmailConfig, log zerolog.Logger) Notifier {
	if !cfg.Enabled || len(cfg.To) == 0 {
		return Nop{}
	}
	return NewEmailNotifier(cfg, log)
}
