// Package email sends transactional mail over SMTP.
package email

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Sender is an SMTP relay without authentication, as run next to the notifier.
type Sender struct {
	addr   string
	host   string
	from   string
	logger *zap.Logger
}

func NewSender(host string, port int, from string, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		addr:   net.JoinHostPort(host, strconv.Itoa(port)),
		host:   host,
		from:   from,
		logger: logger.Named("email"),
	}
}

// SendOrderConfirmation mails the confirmation for one placed order.
func (s *Sender) SendOrderConfirmation(ctx context.Context, to string, c OrderConfirmation) error {
	body, err := RenderOrderConfirmation(c)
	if err != nil {
		return err
	}
	if err := s.send(ctx, to, orderSubject(c.OrderID), body); err != nil {
		return fmt.Errorf("send order confirmation to %s: %w", to, err)
	}
	s.logger.Info("order confirmation sent", zap.String("order_id", c.OrderID), zap.String("to", to))
	return nil
}

func orderSubject(orderID string) string {
	short := orderID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("Order confirmation #%s", short)
}

// buildMessage renders the RFC 5322 message with an HTML body.
func buildMessage(from, to, subject, htmlBody string, date time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(htmlBody)
	return b.Bytes()
}

// send honours ctx for the dial and bounds the whole exchange by its deadline.
func (s *Sender) send(ctx context.Context, to, subject, body string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(nil); err != nil {
			return err
		}
	}
	if err := c.Mail(s.from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(buildMessage(s.from, to, subject, body, time.Now())); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
