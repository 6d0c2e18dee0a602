package mailer

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is one outgoing HTML email.
type Message struct {
	From     mail.Address
	To       []string
	ReplyTo  string
	Subject  string
	HTMLBody string
}

var headerCleaner = strings.NewReplacer("\r", "", "\n", "")

// Build renders msg as an RFC 5322 message with a quoted-printable HTML
// body.
func (m Message) Build(now time.Time) ([]byte, error) {
	if len(m.To) == 0 {
		return nil, fmt.Errorf("no recipients")
	}

	domain := "localhost"
	if at := strings.LastIndex(m.From.Address, "@"); at >= 0 {
		domain = m.From.Address[at+1:]
	}

	var buf bytes.Buffer
	writeHeader := func(name, value string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", name, headerCleaner.Replace(value))
	}

	writeHeader("From", m.From.String())
	writeHeader("To", strings.Join(m.To, ", "))
	if m.ReplyTo != "" {
		writeHeader("Reply-To", m.ReplyTo)
	}
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	writeHeader("Date", now.Format(time.RFC1123Z))
	writeHeader("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domain))
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", `text/html; charset="UTF-8"`)
	writeHeader("Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(m.HTMLBody)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	buf.WriteString("\r\n")
	return buf.Bytes(), nil
}
