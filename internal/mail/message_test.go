package mail

import (
	"mime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/contact/models"
)

func testSubmission() *models.Submission {
	return &models.Submission{
		Name:    "Ada Lovelace",
		Email:   "ada@example.com",
		Subject: "Engines & you",
		Message: "Hello there",
	}
}

func TestNewMessage(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := NewMessage(testSubmission(), "me@gmail.com", "owner@example.com", now)

	assert.Equal(t, "me@gmail.com", msg.From)
	assert.Equal(t, "owner@example.com", msg.To)
	assert.Equal(t, "ada@example.com", msg.ReplyTo)
	assert.Equal(t, "[Portfolio] Engines & you", msg.Subject)
	assert.Equal(t, "From: Ada Lovelace <ada@example.com>\nSubject: Engines & you\n\nHello there", msg.Text)
	assert.Contains(t, msg.HTML, "<strong>From:</strong> Ada Lovelace &lt;ada@example.com&gt;")
	assert.Contains(t, msg.HTML, "Engines &amp; you")
	assert.Contains(t, msg.HTML, `<pre style="white-space:pre-wrap">Hello there</pre>`)
}

func TestMessageBytes(t *testing.T) {
	sub := testSubmission()
	sub.Subject = "Grüße"
	msg := NewMessage(sub, "me@gmail.com", "owner@example.com", time.Now())

	raw, err := msg.Bytes()
	require.NoError(t, err)
	out := string(raw)

	head, _, ok := strings.Cut(out, "\r\n\r\n")
	require.True(t, ok)
	assert.Contains(t, head, "Reply-To: ada@example.com")
	assert.Contains(t, head, "MIME-Version: 1.0")
	assert.Contains(t, head, "Content-Type: multipart/alternative; boundary=")

	for _, line := range strings.Split(head, "\r\n") {
		if subject, ok := strings.CutPrefix(line, "Subject: "); ok {
			decoded, err := new(mime.WordDecoder).DecodeHeader(subject)
			require.NoError(t, err)
			assert.Equal(t, "[Portfolio] Grüße", decoded)
		}
	}
	assert.Contains(t, out, "Content-Type: text/plain; charset=utf-8")
	assert.Contains(t, out, "Content-Type: text/html; charset=utf-8")
}
