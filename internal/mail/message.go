package mail

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"folio/internal/contact/models"
)

// SubjectPrefix marks portfolio mail in the owner's inbox.
const SubjectPrefix = "[Portfolio] "

var htmlPolicy = bluemonday.StrictPolicy()

// Message is one outgoing notification mail built from a submission.
type Message struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
	Date    time.Time
	ID      string
}

// NewMessage renders sub into a mail sent from the SMTP account to the owner,
// replying to the submitter.
func NewMessage(sub *models.Submission, from, to string, now time.Time) *Message {
	return &Message{
		From:    from,
		To:      to,
		ReplyTo: sub.Email,
		Subject: SubjectPrefix + sub.Subject,
		Text:    textBody(sub),
		HTML:    htmlBody(sub),
		Date:    now,
		ID:      fmt.Sprintf("<%s@folio>", uuid.NewString()),
	}
}

func textBody(sub *models.Submission) string {
	return fmt.Sprintf("From: %s <%s>\nSubject: %s\n\n%s", sub.Name, sub.Email, sub.Subject, sub.Message)
}

func htmlBody(sub *models.Submission) string {
	esc := htmlPolicy.Sanitize
	return fmt.Sprintf(
		`<div><p><strong>From:</strong> %s &lt;%s&gt;</p><p><strong>Subject:</strong> %s</p><hr /><pre style="white-space:pre-wrap">%s</pre></div>`,
		esc(sub.Name), esc(sub.Email), esc(sub.Subject), esc(sub.Message),
	)
}

// Bytes renders the message as a multipart/alternative RFC 5322 document.
func (m *Message) Bytes() ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := writePart(mw, "text/plain; charset=utf-8", m.Text); err != nil {
		return nil, err
	}
	if err := writePart(mw, "text/html; charset=utf-8", m.HTML); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	var out bytes.Buffer
	header := []struct{ key, value string }{
		{"From", m.From},
		{"To", m.To},
		{"Reply-To", m.ReplyTo},
		{"Subject", mime.QEncoding.Encode("utf-8", m.Subject)},
		{"Date", m.Date.Format(time.RFC1123Z)},
		{"Message-ID", m.ID},
		{"MIME-Version", "1.0"},
		{"Content-Type", "multipart/alternative; boundary=" + mw.Boundary()},
	}
	for _, h := range header {
		if h.value == "" {
			continue
		}
		fmt.Fprintf(&out, "%s: %s\r\n", h.key, h.value)
	}
	out.WriteString("\r\n")
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

func writePart(mw *multipart.Writer, contentType, content string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	pw, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create part: %w", err)
	}
	qp := quotedprintable.NewWriter(pw)
	if _, err := qp.Write([]byte(content)); err != nil {
		return fmt.Errorf("write part: %w", err)
	}
	return qp.Close()
}
