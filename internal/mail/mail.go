// Package mail implements the Mailer Adapter (spec.md §4.8): it turns one
// rendered report chunk into an RFC 822 message and hands it either to a
// local "sendmail -t" pipe or to an SMTP+TLS relay, or (in dry-run mode)
// writes it to an io.Writer instead of sending anything.
package mail

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/net/idna"

	"github.com/tailnmail/tailnmail/internal/mailcfg"
)

// Options configures one run's worth of mail delivery.
type Options struct {
	From    string
	To      []string
	Subject string

	// MailAuth, when non-empty, is "host:port:user" and selects SMTP+TLS
	// delivery; an empty MailAuth selects the local sendmail pipe
	// (spec.md §6).
	MailAuth string
	Password *mailcfg.Secret

	// Gzip compresses a part's body into a base64 attachment instead of
	// inline text when the body is at least GzipThreshold bytes. Zero
	// disables compression.
	GzipThreshold int

	// DryRun, when set, writes the composed message to DryRunOut instead
	// of sending it (spec.md §7 "no mail is sent in dry-run mode").
	DryRun    bool
	DryRunOut io.Writer

	// Sendmail is the sendmail-compatible binary invoked for pipe
	// delivery; defaults to "sendmail" on an empty string.
	Sendmail string
}

// Send delivers every part as its own message, numbering subjects "Subject
// (N/M)" when there is more than one part.
func Send(opts Options, parts []string) error {
	for i, body := range parts {
		subject := opts.Subject
		if len(parts) > 1 {
			subject = fmt.Sprintf("%s (%d/%d)", opts.Subject, i+1, len(parts))
		}
		if err := sendOne(opts, subject, body); err != nil {
			return fmt.Errorf("sending part %d/%d: %w", i+1, len(parts), err)
		}
	}
	return nil
}

func sendOne(opts Options, subject, body string) error {
	msg, err := compose(opts, subject, body)
	if err != nil {
		return err
	}

	if opts.DryRun {
		_, err := opts.DryRunOut.Write(msg)
		return err
	}
	if opts.MailAuth != "" {
		return sendSMTP(opts, msg)
	}
	return sendSendmail(opts, msg)
}

// compose builds a minimal RFC 822 message. Bodies at or above
// GzipThreshold are gzip-compressed and base64-encoded so a
// bandwidth-constrained relay (or mailbox quota) isn't handed a multi-
// megabyte plain-text part (spec.md SPEC_FULL supplement, DOMAIN STACK:
// klauspost/compress).
func compose(opts Options, subject, body string) ([]byte, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", opts.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(opts.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))

	if opts.GzipThreshold > 0 && len(body) >= opts.GzipThreshold {
		var gz bytes.Buffer
		w := gzip.NewWriter(&gz)
		if _, err := w.Write([]byte(body)); err != nil {
			return nil, fmt.Errorf("gzip-compressing report body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("closing gzip writer: %w", err)
		}
		b.WriteString("Content-Type: application/gzip\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		b.WriteString("Content-Disposition: attachment; filename=\"report.txt.gz\"\r\n\r\n")
		enc := base64.StdEncoding.EncodeToString(gz.Bytes())
		for len(enc) > 76 {
			b.WriteString(enc[:76])
			b.WriteString("\r\n")
			enc = enc[76:]
		}
		b.WriteString(enc)
		b.WriteString("\r\n")
		return b.Bytes(), nil
	}

	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	return b.Bytes(), nil
}

// sendSendmail pipes the composed message to a local MTA binary, the
// default delivery path when MailAuth is unset (spec.md §6).
func sendSendmail(opts Options, msg []byte) error {
	bin := opts.Sendmail
	if bin == "" {
		bin = "sendmail"
	}
	cmd := exec.Command(bin, "-t", "-i")
	cmd.Stdin = bytes.NewReader(msg)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %s: %w: %s", bin, err, stderr.String())
	}
	return nil
}

// sendSMTP delivers over SMTP with STARTTLS (or implicit TLS on port 465),
// authenticating with PLAIN auth when MailAuth names a user.
func sendSMTP(opts Options, msg []byte) error {
	host, port, user, err := splitMailAuth(opts.MailAuth)
	if err != nil {
		return err
	}
	// Relay hosts given as an internationalized domain name (a mail
	// admin's own DNS suffix, say) need ASCII/punycode form before
	// dialing (DOMAIN STACK: golang.org/x/net/idna).
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	addr := net.JoinHostPort(host, port)

	var password string
	if opts.Password != nil {
		password, err = opts.Password.Get()
		if err != nil {
			return err
		}
	}

	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, password, host)
	}

	if port == "465" {
		return sendImplicitTLS(addr, host, auth, opts, msg)
	}

	c, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("STARTTLS to %s: %w", addr, err)
		}
	}
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("authenticating to %s: %w", addr, err)
		}
	}
	return deliver(c, opts, msg)
}

func sendImplicitTLS(addr, host string, auth smtp.Auth, opts Options, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("dialing %s over TLS: %w", addr, err)
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("establishing SMTP session with %s: %w", addr, err)
	}
	defer c.Close()
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("authenticating to %s: %w", addr, err)
		}
	}
	return deliver(c, opts, msg)
}

func deliver(c *smtp.Client, opts Options, msg []byte) error {
	if err := c.Mail(opts.From); err != nil {
		return err
	}
	for _, to := range opts.To {
		if err := c.Rcpt(to); err != nil {
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

// splitMailAuth parses the "host:port:user" MailAuth form (spec.md §6).
func splitMailAuth(s string) (host, port, user string, err error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return "", "", "", fmt.Errorf("mailauth %q: want host:port[:user]", s)
	}
	host = parts[0]
	port = parts[1]
	if _, err := strconv.Atoi(port); err != nil {
		return "", "", "", fmt.Errorf("mailauth %q: bad port: %w", s, err)
	}
	if len(parts) == 3 {
		user = parts[2]
	}
	return host, port, user, nil
}
