package notification

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"github.com/jordan-wright/email"
	"go.uber.org/zap"

	"autophish/config"
	"autophish/utils"
)

// ErrSend wraps every failure to deliver a notification.
var ErrSend = errors.New("failed to send notification")

// DefaultTimeout bounds one SMTP session when the caller sets no deadline.
const DefaultTimeout = 30 * time.Second

type transport func(ctx context.Context, e *email.Email, addr string, auth smtp.Auth, tlsConfig *tls.Config) error

// sendWithStartTLS runs the same exchange as email.SendWithStartTLS, but the
// dial and every read and write on the connection stop when ctx is done.
func sendWithStartTLS(ctx context.Context, e *email.Email, addr string, auth smtp.Auth, tlsConfig *tls.Config) error {
	from, err := mail.ParseAddress(e.From)
	if err != nil {
		return fmt.Errorf("invalid from address %q: %w", e.From, err)
	}
	var rcpts []string
	for _, list := range [][]string{e.To, e.Cc, e.Bcc} {
		for _, r := range list {
			a, err := mail.ParseAddress(r)
			if err != nil {
				return fmt.Errorf("invalid recipient %q: %w", r, err)
			}
			rcpts = append(rcpts, a.Address)
		}
	}
	msg, err := e.Bytes()
	if err != nil {
		return err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	c, err := smtp.NewClient(conn, tlsConfig.ServerName)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Hello("localhost"); err != nil {
		return err
	}
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(tlsConfig); err != nil {
			return err
		}
	}
	if auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(auth); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(from.Address); err != nil {
		return err
	}
	for _, rcpt := range rcpts {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// Sender mails plain-text confirmations through a sending profile's own SMTP
// server, on the submission port with STARTTLS.
type Sender struct {
	port    int
	timeout time.Duration
	logger  *zap.Logger
	send    transport
}

func NewSender(port int, logger *zap.Logger) *Sender {
	if port == 0 {
		port = config.DefaultNotifyPort
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		port:    port,
		timeout: DefaultTimeout,
		logger:  logger,
		send:    sendWithStartTLS,
	}
}

func (s *Sender) Notify(ctx context.Context, profile config.SMTPProfile, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	host := hostOnly(profile.Host)
	addr := net.JoinHostPort(host, strconv.Itoa(s.port))

	e := email.NewEmail()
	e.From = profile.FromAddress
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)

	var auth smtp.Auth
	if profile.Username != "" {
		auth = smtp.PlainAuth("", profile.Username, profile.Credential(), host)
	}
	tlsConfig := &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: profile.IgnoreCertErrors,
	}

	if err := s.send(ctx, e, addr, auth, tlsConfig); err != nil {
		return fmt.Errorf("%w via %s: %v", ErrSend, addr, err)
	}

	s.logger.Info("Notification sent",
		zap.String("profile", profile.Name),
		zap.String("addr", addr),
		zap.String("to", utils.MaskEmail(to)),
		zap.String("username", utils.MaskEmail(profile.Username)))
	return nil
}

// hostOnly drops any port from a "host:port" sending-profile host.
func hostOnly(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	return host
}
