package notification

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autophish/config"
)

type recorded struct {
	email *email.Email
	addr  string
	auth  smtp.Auth
	tls   *tls.Config
}

func newRecordingSender(err error) (*Sender, *[]recorded) {
	var sent []recorded
	s := NewSender(587, nil)
	s.send = func(ctx context.Context, e *email.Email, addr string, auth smtp.Auth, tlsConfig *tls.Config) error {
		sent = append(sent, recorded{email: e, addr: addr, auth: auth, tls: tlsConfig})
		return err
	}
	return s, &sent
}

var profile = config.SMTPProfile{
	Name:             "primary",
	Host:             "smtp.example.com:25",
	FromAddress:      "IT <it@example.com>",
	Username:         "it@example.com",
	Secret:           "s3cret",
	IgnoreCertErrors: true,
}

func TestNotify(t *testing.T) {
	s, sent := newRecordingSender(nil)

	err := s.Notify(context.Background(), profile, "ops@example.com", "Campaign launched", "Campaign with template Test is running.")
	require.NoError(t, err)
	require.Len(t, *sent, 1)

	got := (*sent)[0]
	assert.Equal(t, "smtp.example.com:587", got.addr, "submission port replaces the profile port")
	assert.Equal(t, "smtp.example.com", got.tls.ServerName)
	assert.True(t, got.tls.InsecureSkipVerify)
	assert.NotNil(t, got.auth)

	assert.Equal(t, "IT <it@example.com>", got.email.From)
	assert.Equal(t, []string{"ops@example.com"}, got.email.To)
	assert.Equal(t, "Campaign launched", got.email.Subject)
	assert.Empty(t, got.email.HTML)

	raw, err := got.email.Bytes()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "Campaign with template Test is running."))
}

func TestNotifyWithoutCredentials(t *testing.T) {
	s, sent := newRecordingSender(nil)
	p := profile
	p.Username = ""
	p.Host = "relay.example.com"

	require.NoError(t, s.Notify(context.Background(), p, "ops@example.com", "s", "b"))
	got := (*sent)[0]
	assert.Nil(t, got.auth)
	assert.Equal(t, "relay.example.com:587", got.addr)
}

func TestNotifyTransportFailure(t *testing.T) {
	s, _ := newRecordingSender(errors.New("535 authentication failed"))

	err := s.Notify(context.Background(), profile, "ops@example.com", "s", "b")
	assert.ErrorIs(t, err, ErrSend)
	assert.ErrorContains(t, err, "535")
}

func TestNotifyCanceledContext(t *testing.T) {
	s, sent := newRecordingSender(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Notify(ctx, profile, "ops@example.com", "s", "b")
	assert.ErrorIs(t, err, ErrSend)
	assert.Empty(t, *sent)
}

// stalledServer accepts connections and never sends the SMTP greeting.
func stalledServer(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan struct{})
	t.Cleanup(func() {
		ln.Close()
		<-done
	})
	go func() {
		defer close(done)
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				c.Close()
			}
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, conn)
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestNotifyStalledServer(t *testing.T) {
	t.Run("deadline", func(t *testing.T) {
		host, port := stalledServer(t)
		s := NewSender(port, nil)
		p := profile
		p.Host = host

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		start := time.Now()
		err := s.Notify(ctx, p, "ops@example.com", "s", "b")
		assert.ErrorIs(t, err, ErrSend)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("cancel", func(t *testing.T) {
		host, port := stalledServer(t)
		s := NewSender(port, nil)
		p := profile
		p.Host = host

		ctx, cancel := context.WithCancel(context.Background())
		timer := time.AfterFunc(200*time.Millisecond, cancel)
		defer timer.Stop()
		start := time.Now()
		err := s.Notify(ctx, p, "ops@example.com", "s", "b")
		assert.ErrorIs(t, err, ErrSend)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("sender timeout", func(t *testing.T) {
		host, port := stalledServer(t)
		s := NewSender(port, nil)
		s.timeout = 200 * time.Millisecond
		p := profile
		p.Host = host

		start := time.Now()
		err := s.Notify(context.Background(), p, "ops@example.com", "s", "b")
		assert.ErrorIs(t, err, ErrSend)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}
