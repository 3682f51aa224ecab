package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/domain"
)

func sampleSignals() []domain.SignalRecord {
	return []domain.SignalRecord{
		{Symbol: "sh600519", Type: domain.SignalBuy, TradingDay: "2025-08-25",
			TriggeredAt: time.Now(), Score: 86.2, Price: 1700, Reason: "rsi_14"},
		{Symbol: "sz000001", Type: domain.SignalSell, TradingDay: "2025-08-25",
			TriggeredAt: time.Now(), Score: 14.8, Price: 10.66, Reason: "macd_hist_slope"},
	}
}

func TestNotifySignalsSendsOneMail(t *testing.T) {
	cfg := EmailConfig{
		Enabled: true, Host: "smtp.example.com", Port: 587,
		Username: "bot", Password: "secret",
		From: "bot@example.com", To: []string{"ops@example.com"},
	}
	n := NewEmailNotifier(cfg, zerolog.Nop())

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	require.NoError(t, n.NotifySignals(context.Background(), "2025-08-25", sampleSignals()))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "bot@example.com", gotFrom)
	assert.Equal(t, []string{"ops@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "BUY")
	assert.Contains(t, string(gotMsg), "sh600519")
	assert.Contains(t, string(gotMsg), "Trading signals 2025-08-25: 2 new")
}

func TestNotifySignalsEmptyBatchSkipsSend(t *testing.T) {
	n := NewEmailNotifier(EmailConfig{Enabled: true, To: []string{"x@example.com"}}, zerolog.Nop())
	n.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called for an empty batch")
		return nil
	}
	require.NoError(t, n.NotifySignals(context.Background(), "2025-08-25", nil))
}

func TestNotifySignalsWrapsSendError(t *testing.T) {
	n := NewEmailNotifier(EmailConfig{Enabled: true, To: []string{"x@example.com"}}, zerolog.Nop())
	n.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}
	err := n.NotifySignals(context.Background(), "2025-08-25", sampleSignals())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestForConfigDisabledReturnsNop(t *testing.T) {
	n := ForConfig(EmailConfig{Enabled: false}, zerolog.Nop())
	_, isNop := n.(Nop)
	assert.True(t, isNop)

	n = ForConfig(EmailConfig{Enabled: true}, zerolog.Nop()) // no recipients
	_, isNop = n.(Nop)
	assert.True(t, isNop)

	n = ForConfig(EmailConfig{Enabled: true, To: []string{"x@example.com"}}, zerolog.Nop())
	_, isEmail := n.(*EmailNotifier)
	assert.True(t, isEmail)
}

func TestFormatSignalBody(t *testing.T) {
	body := FormatSignalBody("2025-08-25", sampleSignals())
	assert.Contains(t, body, "SELL")
	assert.Contains(t, body, "sz000001")
	assert.Contains(t, body, "not investment advice")
}
