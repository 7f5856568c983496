package gmail

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"io"
	"net/textproto"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	gmail "google.golang.org/api/gmail/v1"
)

// NoSubject replaces a missing Subject header.
const NoSubject = "(no subject)"

// DecodeError reports malformed base64 body data. The accompanying text is
// still usable: it holds everything decodable plus a replacement character.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed body data: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode normalizes an API message. Headers are taken from the top-level
// payload; a repeated header name keeps its last value. The body is the
// payload's own data when present, else the first text/plain part with data
// in depth-first order, else the first text/html part with data.
//
// The returned Message is always populated. The error, when non-nil, is a
// *DecodeError describing body data that had to be replaced.
func Decode(msg *gmail.Message) (*Message, error) {
	if msg == nil {
		msg = &gmail.Message{}
	}

	m := &Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  html.UnescapeString(msg.Snippet),
		LabelIDs: msg.LabelIds,
	}
	if m.LabelIDs == nil {
		m.LabelIDs = []string{}
	}

	h := headerMap(msg.Payload)
	m.From = h["From"]
	m.To = h["To"]
	m.Cc = h["Cc"]
	m.Bcc = h["Bcc"]
	m.Date = h["Date"]
	m.MessageIDHeader = h["Message-Id"]

	subject, ok := h["Subject"]
	if !ok {
		subject = NoSubject
	}
	m.Subject = subject

	body, err := extractBody(msg.Payload)
	m.Body = body
	return m, err
}

// headerMap builds a canonical-key header map; last write wins.
func headerMap(p *gmail.MessagePart) map[string]string {
	h := make(map[string]string)
	if p == nil {
		return h
	}
	for _, hdr := range p.Headers {
		if hdr == nil {
			continue
		}
		h[textproto.CanonicalMIMEHeaderKey(hdr.Name)] = hdr.Value
	}
	return h
}

func extractBody(p *gmail.MessagePart) (string, error) {
	if p == nil {
		return "", nil
	}
	if p.Body != nil && p.Body.Data != "" {
		return DecodeBody(p.Body.Data)
	}

	var plain, htmlPart *gmail.MessagePart
	walkParts(p, func(part *gmail.MessagePart) bool {
		if part.Body == nil || part.Body.Data == "" {
			return true
		}
		switch mediaType(part.MimeType) {
		case "text/plain":
			plain = part
			return false
		case "text/html":
			if htmlPart == nil {
				htmlPart = part
			}
		}
		return true
	})

	switch {
	case plain != nil:
		return DecodeBody(plain.Body.Data)
	case htmlPart != nil:
		return DecodeBody(htmlPart.Body.Data)
	}
	return "", nil
}

// walkParts visits part and its descendants depth-first in order until fn
// returns false. It reports whether the walk ran to completion.
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart) bool) bool {
	if part == nil {
		return true
	}
	if !fn(part) {
		return false
	}
	for _, sub := range part.Parts {
		if !walkParts(sub, fn) {
			return false
		}
	}
	return true
}

func mediaType(mimeType string) string {
	mt, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// DecodeBody decodes URL-safe base64 body data into text. Padding is
// optional and the standard alphabet is accepted as a fallback. Input that
// cannot be decoded keeps its decodable prefix followed by U+FFFD, and every
// byte that is not valid UTF-8 becomes U+FFFD. The error is a *DecodeError
// in the first case and nil otherwise.
func DecodeBody(data string) (string, error) {
	raw, err := decodeBase64(data)
	text := toValidUTF8(raw)
	if err != nil {
		return text + string(utf8.RuneError), &DecodeError{Err: err}
	}
	return text, nil
}

// decodeBase64 returns the bytes decoded before the first corrupt quantum
// along with the error.
func decodeBase64(data string) ([]byte, error) {
	s := strings.TrimRight(data, "=")
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err == nil {
		return b, nil
	}
	if std, stdErr := base64.RawStdEncoding.DecodeString(s); stdErr == nil {
		return std, nil
	}
	return b, err
}

func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b) + 8)
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
		} else {
			sb.Write(b[:size])
		}
		b = b[size:]
	}
	return sb.String()
}

// Encode renders out as a single text/plain UTF-8 entity and returns it as
// an API message: Raw carries the URL-safe base64 envelope and ThreadId
// travels beside it.
func Encode(out *OutgoingMessage) (*gmail.Message, error) {
	if out == nil || strings.TrimSpace(out.To) == "" {
		return nil, errors.New("encoding message: recipient is required")
	}

	var h mail.Header
	h.Set("MIME-Version", "1.0")
	for _, f := range []struct{ key, value string }{
		{"To", out.To},
		{"Cc", out.Cc},
		{"Bcc", out.Bcc},
	} {
		if strings.TrimSpace(f.value) == "" {
			continue
		}
		list, err := formatAddressList(f.value)
		if err != nil {
			return nil, fmt.Errorf("encoding message: invalid %s address list %q: %w", f.key, f.value, err)
		}
		h.Set(f.key, list)
	}
	h.SetSubject(out.Subject)
	if out.InReplyTo != "" {
		h.Set("In-Reply-To", out.InReplyTo)
	}
	if out.References != "" {
		h.Set("References", out.References)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "UTF-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	if _, err := io.WriteString(w, out.Body); err != nil {
		return nil, fmt.Errorf("encoding message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}

	return &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(buf.Bytes()),
		ThreadId: out.ThreadID,
	}, nil
}

// formatAddressList parses a comma separated address list and renders it
// for an address header. Display names with non-ASCII characters become
// RFC 2047 encoded-words; bare addresses stay bare.
func formatAddressList(value string) (string, error) {
	addrs, err := mail.ParseAddressList(value)
	if err != nil {
		return "", err
	}
	formatted := make([]string, len(addrs))
	for i, a := range addrs {
		if a.Name == "" {
			formatted[i] = a.Address
			continue
		}
		formatted[i] = a.String()
	}
	return strings.Join(formatted, ", "), nil
}

// ParseRaw turns a URL-safe base64 RFC 5322 envelope, as produced by Encode
// or returned for FormatRaw, into the payload tree Decode understands.
// Transfer encodings and charsets are decoded; leaf bodies are re-encoded
// as URL-safe base64 the way the API returns them.
func ParseRaw(raw string) (*gmail.Message, error) {
	data, err := decodeBase64(raw)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	e, err := message.Read(bytes.NewReader(data))
	if err != nil && !recoverable(err) {
		return nil, fmt.Errorf("parsing message: %w", err)
	}

	payload, err := entityPart(e, "")
	if err != nil {
		return nil, err
	}
	return &gmail.Message{
		Payload:      payload,
		SizeEstimate: int64(len(data)),
	}, nil
}

// recoverable reports parse errors after which the entity is still readable,
// with its body left undecoded.
func recoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

func entityPart(e *message.Entity, partID string) (*gmail.MessagePart, error) {
	mt, _, err := e.Header.ContentType()
	if err != nil || mt == "" {
		mt = "text/plain"
	}

	p := &gmail.MessagePart{
		PartId:   partID,
		MimeType: mt,
		Headers:  partHeaders(e.Header),
	}
	if _, params, err := e.Header.ContentDisposition(); err == nil {
		p.Filename = params["filename"]
	}

	if mr := e.MultipartReader(); mr != nil {
		p.Body = &gmail.MessagePartBody{}
		for i := 0; ; i++ {
			child, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil && (child == nil || !recoverable(err)) {
				return nil, fmt.Errorf("reading part %d: %w", i, err)
			}

			childID := strconv.Itoa(i)
			if partID != "" {
				childID = partID + "." + childID
			}
			sub, err := entityPart(child, childID)
			if err != nil {
				return nil, err
			}
			p.Parts = append(p.Parts, sub)
		}
		return p, nil
	}

	body, err := io.ReadAll(e.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	p.Body = &gmail.MessagePartBody{
		Data: base64.URLEncoding.EncodeToString(body),
		Size: int64(len(body)),
	}
	return p, nil
}

func partHeaders(h message.Header) []*gmail.MessagePartHeader {
	var out []*gmail.MessagePartHeader
	fields := h.Fields()
	for fields.Next() {
		v, err := fields.Text()
		if err != nil {
			v = fields.Value()
		}
		out = append(out, &gmail.MessagePartHeader{Name: fields.Key(), Value: v})
	}
	return out
}
