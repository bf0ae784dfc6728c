package service

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"solarmarket/verify-api/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// silentSMTP accepts connections and never sends the greeting
func silentSMTP(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}

			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()

	t.Cleanup(func() {
		ln.Close()

		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})

	return ln.Addr().(*net.TCPAddr).Port
}

func TestSMTPMailerGivesUpOnHungServer(t *testing.T) {
	port := silentSMTP(t)

	m := NewMailer(config.MailConfig{
		Host:    "127.0.0.1",
		Port:    port,
		Sender:  "noreply@example.com",
		Timeout: 50 * time.Millisecond,
	}, time.Hour, zaptest.NewLogger(t))
	require.IsType(t, &SMTPMailer{}, m)

	start := time.Now()
	err := m.SendQuestionnaireVerification(context.Background(), "jane@example.com", "Jane", "https://api.example.com/verify-questionnaire?token=x")

	assert.ErrorIs(t, err, ErrDownstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSMTPMailerHonoursCallerContext(t *testing.T) {
	port := silentSMTP(t)

	m := NewMailer(config.MailConfig{Host: "127.0.0.1", Port: port, Sender: "noreply@example.com"}, time.Hour, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.SendRegistrationVerification(ctx, "jane@example.com", "Jane", "https://api.example.com/verify-registration")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewMailerWithoutHostOnlyLogs(t *testing.T) {
	m := NewMailer(config.MailConfig{}, time.Hour, zaptest.NewLogger(t))

	assert.IsType(t, &LogMailer{}, m)
	assert.NoError(t, m.SendQuestionnaireVerification(context.Background(), "jane@example.com", "", "link"))
}
