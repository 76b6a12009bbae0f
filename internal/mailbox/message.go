// Package mailbox pulls unread mail from an IMAP folder and feeds it into
// the email triage workflow.
package mailbox

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/soyeahso/triage/internal/triage"
)

// maxBodyBytes caps how much of a message body is read.
const maxBodyBytes = 200_000

// Message is one fetched email.
type Message struct {
	UID       uint32
	MessageID string
	From      string
	To        string
	Subject   string
	Body      string
}

// Input converts m into the triage intake shape.
func (m Message) Input() triage.EmailInput {
	return triage.EmailInput{
		MessageID: m.MessageID,
		From:      m.From,
		To:        m.To,
		Subject:   m.Subject,
		Body:      m.Body,
	}
}

var wordDecoder = new(mime.WordDecoder)

// ParseMessage reads a raw RFC 5322 message. fallbackID is used when the
// message carries no usable Message-ID header.
func ParseMessage(uid uint32, raw io.Reader, fallbackID string) (Message, error) {
	msg, err := mail.ReadMessage(raw)
	if err != nil {
		return Message{}, fmt.Errorf("reading message %d: %w", uid, err)
	}

	m := Message{
		UID:       uid,
		MessageID: strings.TrimSpace(msg.Header.Get("Message-Id")),
		From:      firstAddress(msg.Header.Get("From")),
		To:        firstAddress(msg.Header.Get("To")),
		Subject:   decodeHeader(msg.Header.Get("Subject")),
	}
	if n := utf8.RuneCountInString(m.MessageID); n < triage.MinMessageIDLen || n > triage.MaxMessageIDLen {
		m.MessageID = fallbackID
	}

	body, err := extractBody(msg.Header, msg.Body)
	if err != nil {
		return m, fmt.Errorf("reading body of message %d: %w", uid, err)
	}
	m.Body = strings.TrimSpace(body)
	return m, nil
}

func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(decoded)
}

// firstAddress returns the bare address of the first mailbox in a header.
func firstAddress(v string) string {
	if v == "" {
		return ""
	}
	list, err := mail.ParseAddressList(v)
	if err != nil || len(list) == 0 {
		return strings.TrimSpace(v)
	}
	return list[0].Address
}

// extractBody returns the first text part of a message, decoding its
// transfer encoding. text/plain is preferred over other text types.
func extractBody(h mail.Header, body io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return readPart(body, h.Get("Content-Transfer-Encoding"))
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		if !strings.HasPrefix(mediaType, "text/") {
			return "", nil
		}
		return readPart(body, h.Get("Content-Transfer-Encoding"))
	}

	mr := multipart.NewReader(body, params["boundary"])
	var fallback string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fallback, err
		}

		partType, _, _ := mime.ParseMediaType(p.Header.Get("Content-Type"))
		switch {
		case strings.HasPrefix(partType, "multipart/"):
			text, err := extractBody(mail.Header(p.Header), p)
			if err == nil && text != "" {
				return text, nil
			}
		case partType == "text/plain" || partType == "":
			return readPart(p, p.Header.Get("Content-Transfer-Encoding"))
		case strings.HasPrefix(partType, "text/") && fallback == "":
			text, err := readPart(p, p.Header.Get("Content-Transfer-Encoding"))
			if err == nil {
				fallback = text
			}
		}
	}
	return fallback, nil
}

func readPart(r io.Reader, encoding string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	}
	b, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
