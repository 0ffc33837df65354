package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/illegalcall/inquiry-relay/internal/models"
)

const (
	defaultAttachmentContentType = "application/octet-stream"
	base64LineLength             = 76

	// maxHeaderLineLength is the RFC 5322 limit on a single line, excluding CRLF.
	maxHeaderLineLength = 998
	// asciiWordChunk keeps a forced encoded-word within the 75 octet limit.
	asciiWordChunk = 45
)

// buildMessage renders the complete RFC 5322 message. Emails without
// attachments are a single text/plain part; otherwise multipart/mixed with the
// body first and one base64 part per attachment, in order.
func buildMessage(email models.OutboundEmail, now time.Time) ([]byte, error) {
	var msg bytes.Buffer

	writeHeader(&msg, "From", sanitizeHeader(email.From))
	writeHeader(&msg, "To", sanitizeHeader(email.To))
	writeHeader(&msg, "Subject", encodeSubject(email.Subject))
	writeHeader(&msg, "Date", now.Format(time.RFC1123Z))
	writeHeader(&msg, "Message-ID", messageID(email.From))
	writeHeader(&msg, "MIME-Version", "1.0")

	if len(email.Attachments) == 0 {
		writeHeader(&msg, "Content-Type", "text/plain; charset=utf-8")
		writeHeader(&msg, "Content-Transfer-Encoding", "base64")
		msg.WriteString("\r\n")
		if err := writeBase64(&msg, []byte(email.Body)); err != nil {
			return nil, err
		}
		return msg.Bytes(), nil
	}

	mw := multipart.NewWriter(&msg)
	writeHeader(&msg, "Content-Type", "multipart/mixed; boundary="+mw.Boundary())
	msg.WriteString("\r\n")

	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Content-Transfer-Encoding", "base64")
	pw, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create email body part: %w", err)
	}
	if err := writeBase64(pw, []byte(email.Body)); err != nil {
		return nil, fmt.Errorf("failed to write email body: %w", err)
	}

	for _, attachment := range email.Attachments {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Type", attachmentContentType(attachment.Filename))
		h.Set("Content-Disposition", attachmentDisposition(attachment.Filename))
		h.Set("Content-Transfer-Encoding", "base64")

		ap, err := mw.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment part: %w", err)
		}
		if err := writeBase64(ap, attachment.Content); err != nil {
			return nil, fmt.Errorf("failed to write attachment %q: %w", attachment.Filename, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return msg.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	fmt.Fprintf(buf, "%s: %s\r\n", key, value)
}

// sanitizeHeader drops CR and LF so a value can never start a new header.
func sanitizeHeader(value string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(value)
}

// encodeSubject RFC 2047-encodes the subject and folds it between encoded
// words so a long subject never produces an overlong header line.
func encodeSubject(subject string) string {
	encoded := mime.BEncoding.Encode("utf-8", subject)
	if encoded == subject {
		if len("Subject: ")+len(subject) <= maxHeaderLineLength {
			return subject
		}
		encoded = encodeASCIIWords(subject)
	}
	return strings.ReplaceAll(encoded, "?= =?", "?=\r\n =?")
}

// encodeASCIIWords splits plain ASCII text into B encoded-words. The mime
// encoder leaves such text untouched, which cannot be folded safely.
func encodeASCIIWords(s string) string {
	var words []string
	for len(s) > 0 {
		n := min(asciiWordChunk, len(s))
		words = append(words, "=?utf-8?b?"+base64.StdEncoding.EncodeToString([]byte(s[:n]))+"?=")
		s = s[n:]
	}
	return strings.Join(words, " ")
}

func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := min(base64LineLength, len(encoded))
		if _, err := io.WriteString(w, encoded[:n]+"\r\n"); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}

func attachmentContentType(filename string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return defaultAttachmentContentType
}

// attachmentDisposition encodes the filename per RFC 2231 when it is not
// plain ASCII, which also keeps control characters out of the header.
func attachmentDisposition(filename string) string {
	if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); disposition != "" {
		return disposition
	}
	return "attachment"
}

func messageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = sanitizeHeader(from[at+1:])
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
