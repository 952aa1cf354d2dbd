// Package mail delivers tickets over SMTP.
package mail

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/domodwyer/mailyak/v3"
	"github.com/tunbebong-creator/music-space/internal/config"
	"github.com/tunbebong-creator/music-space/internal/ports"
)

const (
	fromName    = "Music Space"
	implicitTLS = 465
)

var ErrMissingCredentials = errors.New("smtp credentials are not configured")

type SMTPTransport struct {
	cfg config.SMTPConfig
}

func NewSMTPTransport(cfg config.SMTPConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg}
}

var _ ports.TicketTransport = (*SMTPTransport)(nil)

// Deliver sends the ticket. Port 465 uses implicit TLS; anything else
// upgrades with STARTTLS when the server offers it. The connection deadline
// follows ctx, so a stalled server cannot outlive the caller.
func (t *SMTPTransport) Deliver(ctx context.Context, ticket ports.Ticket) error {
	msg, err := t.Compose(ticket)
	if err != nil {
		return err
	}
	body, err := msg.MimeBuf()
	if err != nil {
		return errors.Wrap(err, "build mime")
	}

	conn, err := t.dial(ctx)
	if err != nil {
		return errors.Wrap(err, "smtp dial")
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	err = t.exchange(conn, ticket.To, body.Bytes())
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return errors.Wrap(err, "smtp send")
}

// Compose builds the message without sending it.
func (t *SMTPTransport) Compose(ticket ports.Ticket) (*mailyak.MailYak, error) {
	if t.cfg.User == "" || t.cfg.Pass == "" {
		return nil, ErrMissingCredentials
	}
	if ticket.To == "" {
		return nil, errors.New("ticket has no recipient")
	}

	mail := mailyak.New(t.addr(), t.auth())
	mail.From(t.from())
	mail.FromName(fromName)
	mail.To(ticket.To)
	mail.Subject(ticket.Subject)
	mail.HTML().Set(ticket.HTML)
	mail.Plain().Set(ticket.Text)
	return mail, nil
}

func (t *SMTPTransport) addr() string {
	return net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
}

func (t *SMTPTransport) auth() smtp.Auth {
	return smtp.PlainAuth("", t.cfg.User, t.cfg.Pass, t.cfg.Host)
}

func (t *SMTPTransport) from() string {
	if t.cfg.From != "" {
		return t.cfg.From
	}
	return t.cfg.User
}

func (t *SMTPTransport) dial(ctx context.Context) (net.Conn, error) {
	if t.cfg.Port == implicitTLS {
		d := &tls.Dialer{Config: &tls.Config{ServerName: t.cfg.Host}}
		return d.DialContext(ctx, "tcp", t.addr())
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", t.addr())
}

func (t *SMTPTransport) exchange(conn net.Conn, to string, body []byte) error {
	c, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		return err
	}
	defer c.Close()

	if t.cfg.Port != implicitTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: t.cfg.Host}); err != nil {
				return err
			}
		}
	}
	if ok, _ := c.Extension("AUTH"); ok {
		if err := c.Auth(t.auth()); err != nil {
			return err
		}
	}
	if err := c.Mail(t.from()); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	buf := bufio.NewWriter(w)
	if _, err := buf.Write(body); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
