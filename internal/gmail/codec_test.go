package gmail

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func textPart(mimeType, body string) *gmail.MessagePart {
	return &gmail.MessagePart{
		MimeType: mimeType,
		Body:     &gmail.MessagePartBody{Data: b64(body), Size: int64(len(body))},
	}
}

func headers(pairs ...string) []*gmail.MessagePartHeader {
	var out []*gmail.MessagePartHeader
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, &gmail.MessagePartHeader{Name: pairs[i], Value: pairs[i+1]})
	}
	return out
}

func TestDecode_Headers(t *testing.T) {
	msg := &gmail.Message{
		Id:       "m1",
		ThreadId: "t1",
		Snippet:  "It&#39;s here",
		LabelIds: []string{"INBOX", "UNREAD"},
		Payload: &gmail.MessagePart{
			Headers: headers(
				"From", "Jane Doe <jane@x.com>",
				"To", "me@example.com",
				"Subject", "First",
				"Subject", "Second",
				"Date", "Mon, 2 Jan 2006 15:04:05 -0700",
				"Message-ID", "<abc@mail.example.com>",
			),
		},
	}

	got, err := Decode(msg)
	require.NoError(t, err)

	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, "t1", got.ThreadID)
	assert.Equal(t, "Jane Doe <jane@x.com>", got.From)
	assert.Equal(t, "me@example.com", got.To)
	assert.Equal(t, "Second", got.Subject, "repeated header keeps the last value")
	assert.Equal(t, "<abc@mail.example.com>", got.MessageIDHeader)
	assert.Equal(t, "It's here", got.Snippet)
	assert.Equal(t, "", got.Cc)
	assert.True(t, got.Unread())
}

func TestDecode_MissingSubject(t *testing.T) {
	got, err := Decode(&gmail.Message{Payload: &gmail.MessagePart{Headers: headers("From", "a@b.c")}})
	require.NoError(t, err)
	assert.Equal(t, NoSubject, got.Subject)
	assert.Equal(t, "(no subject)", got.Subject)
	assert.Equal(t, "", got.Date)
	assert.NotNil(t, got.LabelIDs)
	assert.False(t, got.Unread())
}

func TestDecode_NilMessage(t *testing.T) {
	got, err := Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, NoSubject, got.Subject)
	assert.Empty(t, got.Body)
}

func TestDecode_BodySelection(t *testing.T) {
	tests := []struct {
		name    string
		payload *gmail.MessagePart
		want    string
	}{
		{
			name:    "direct body",
			payload: textPart("text/plain", "direct"),
			want:    "direct",
		},
		{
			name: "plain before html",
			payload: &gmail.MessagePart{MimeType: "multipart/alternative", Parts: []*gmail.MessagePart{
				textPart("text/plain", "plain"),
				textPart("text/html", "<b>html</b>"),
			}},
			want: "plain",
		},
		{
			name: "html before plain",
			payload: &gmail.MessagePart{MimeType: "multipart/alternative", Parts: []*gmail.MessagePart{
				textPart("text/html", "<b>html</b>"),
				textPart("text/plain", "plain"),
			}},
			want: "plain",
		},
		{
			name: "nested alternative",
			payload: &gmail.MessagePart{MimeType: "multipart/mixed", Parts: []*gmail.MessagePart{
				{MimeType: "multipart/alternative", Parts: []*gmail.MessagePart{
					textPart("text/html", "<p>nested</p>"),
					textPart("text/plain", "nested"),
				}},
				textPart("application/pdf", "%PDF"),
			}},
			want: "nested",
		},
		{
			name: "first html wins without plain",
			payload: &gmail.MessagePart{MimeType: "multipart/alternative", Parts: []*gmail.MessagePart{
				textPart("text/html", "<p>one</p>"),
				textPart("text/html", "<p>two</p>"),
			}},
			want: "<p>one</p>",
		},
		{
			name: "empty plain part is skipped",
			payload: &gmail.MessagePart{MimeType: "multipart/alternative", Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{}},
				textPart("text/html", "<p>only</p>"),
			}},
			want: "<p>only</p>",
		},
		{
			name: "media type parameters and case",
			payload: &gmail.MessagePart{MimeType: "multipart/alternative", Parts: []*gmail.MessagePart{
				textPart("TEXT/PLAIN; charset=utf-8", "params"),
			}},
			want: "params",
		},
		{
			name:    "no body at all",
			payload: &gmail.MessagePart{MimeType: "multipart/mixed"},
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(&gmail.Message{Payload: tt.payload})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Body)
		})
	}
}

func TestDecodeBody(t *testing.T) {
	t.Run("padded", func(t *testing.T) {
		got, err := DecodeBody(base64.URLEncoding.EncodeToString([]byte("hi?>")))
		require.NoError(t, err)
		assert.Equal(t, "hi?>", got)
	})

	t.Run("unpadded", func(t *testing.T) {
		got, err := DecodeBody(base64.RawURLEncoding.EncodeToString([]byte("hi?>")))
		require.NoError(t, err)
		assert.Equal(t, "hi?>", got)
	})

	t.Run("standard alphabet", func(t *testing.T) {
		data := base64.StdEncoding.EncodeToString([]byte("a>>b??"))
		require.True(t, strings.ContainsAny(data, "+/"))
		got, err := DecodeBody(data)
		require.NoError(t, err)
		assert.Equal(t, "a>>b??", got)
	})

	t.Run("corrupt tail keeps prefix", func(t *testing.T) {
		data := base64.RawURLEncoding.EncodeToString([]byte("Hello world!")) + "*"
		got, err := DecodeBody(data)

		var decErr *DecodeError
		require.ErrorAs(t, err, &decErr)
		assert.True(t, strings.HasPrefix(got, "Hello"), "got %q", got)
		assert.True(t, strings.HasSuffix(got, "�"), "got %q", got)
	})

	t.Run("invalid utf-8 replaced per byte", func(t *testing.T) {
		data := base64.RawURLEncoding.EncodeToString([]byte{'a', 0xff, 0xfe, 'b'})
		got, err := DecodeBody(data)
		require.NoError(t, err)
		assert.Equal(t, "a��b", got)
	})

	t.Run("empty", func(t *testing.T) {
		got, err := DecodeBody("")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestDecode_MalformedBodyDegrades(t *testing.T) {
	msg := &gmail.Message{Payload: &gmail.MessagePart{
		MimeType: "text/plain",
		Body:     &gmail.MessagePartBody{Data: "!!!!"},
	}}

	got, err := Decode(msg)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "�", got.Body)
	assert.Equal(t, NoSubject, got.Subject)
}

func TestEncode_RoundTrip(t *testing.T) {
	out := &OutgoingMessage{
		To:      "jane@x.com",
		Subject: "Quarterly numbers",
		Body:    "Revenue = 42, margin looks fine.",
	}

	encoded, err := Encode(out)
	require.NoError(t, err)
	assert.Empty(t, encoded.ThreadId)

	parsed, err := ParseRaw(encoded.Raw)
	require.NoError(t, err)

	got, err := Decode(parsed)
	require.NoError(t, err)
	assert.Equal(t, out.To, got.To)
	assert.Equal(t, out.Subject, got.Subject)
	assert.Equal(t, out.Body, got.Body)
	assert.Empty(t, got.Cc)
	assert.Empty(t, got.Bcc)
}

func TestEncode_Envelope(t *testing.T) {
	out := &OutgoingMessage{
		To:         "jane@x.com",
		Cc:         "bob@x.com, carol@x.com",
		Bcc:        "audit@x.com",
		Subject:    "Re: Grüße aus Köln",
		Body:       "Danke!",
		InReplyTo:  "<orig@mail.x.com>",
		References: "<orig@mail.x.com>",
		ThreadID:   "thread-7",
	}

	encoded, err := Encode(out)
	require.NoError(t, err)
	assert.Equal(t, "thread-7", encoded.ThreadId)

	raw, err := base64.URLEncoding.DecodeString(encoded.Raw)
	require.NoError(t, err)
	envelope := string(raw)
	assert.NotContains(t, envelope, "thread-7", "thread id travels beside the envelope")
	assert.Contains(t, envelope, "In-Reply-To: <orig@mail.x.com>")
	assert.Contains(t, envelope, "References: <orig@mail.x.com>")
	assert.Contains(t, envelope, "text/plain")
	assert.Contains(t, envelope, "quoted-printable")

	parsed, err := ParseRaw(encoded.Raw)
	require.NoError(t, err)
	got, err := Decode(parsed)
	require.NoError(t, err)
	assert.Equal(t, out.Subject, got.Subject)
	assert.Equal(t, out.Cc, got.Cc)
	assert.Equal(t, out.Bcc, got.Bcc)
	assert.Equal(t, out.Body, got.Body)
}

func TestEncode_AddressHeaders(t *testing.T) {
	out := &OutgoingMessage{
		To:      "Zoë Smith <zoe@x.com>, bob@y.com",
		Cc:      "Jürgen <j@x.com>",
		Subject: "Hallo",
		Body:    "Hi",
	}

	encoded, err := Encode(out)
	require.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(encoded.Raw)
	require.NoError(t, err)
	envelope := string(raw)
	assert.Contains(t, envelope, "=?utf-8?q?Zo=C3=AB_Smith?= <zoe@x.com>, bob@y.com",
		"only the display name is encoded, addresses stay readable")

	parsed, err := ParseRaw(encoded.Raw)
	require.NoError(t, err)
	got, err := Decode(parsed)
	require.NoError(t, err)
	assert.Equal(t, out.To, got.To)
	assert.Equal(t, out.Cc, got.Cc)
}

func TestEncode_InvalidAddress(t *testing.T) {
	_, err := Encode(&OutgoingMessage{To: "not an address", Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid To address list")

	_, err = Encode(&OutgoingMessage{To: "a@x.com", Cc: "broken <", Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid Cc address list")
}

func TestEncode_RequiresRecipient(t *testing.T) {
	_, err := Encode(&OutgoingMessage{Subject: "x", Body: "y"})
	require.Error(t, err)

	_, err = Encode(nil)
	require.Error(t, err)
}

func TestParseRaw_Multipart(t *testing.T) {
	raw := strings.Join([]string{
		"MIME-Version: 1.0",
		"From: Jane Doe <jane@x.com>",
		"Subject: Multi",
		"Message-ID: <multi@x.com>",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/html; charset=UTF-8",
		"",
		"<p>Hi</p>",
		"--b1",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		"Hi",
		"--b1--",
		"",
	}, "\r\n")

	parsed, err := ParseRaw(base64.RawURLEncoding.EncodeToString([]byte(raw)))
	require.NoError(t, err)

	require.NotNil(t, parsed.Payload)
	assert.Equal(t, "multipart/alternative", parsed.Payload.MimeType)
	require.Len(t, parsed.Payload.Parts, 2)
	assert.Equal(t, "0", parsed.Payload.Parts[0].PartId)
	assert.Equal(t, "text/html", parsed.Payload.Parts[0].MimeType)
	assert.Equal(t, "1", parsed.Payload.Parts[1].PartId)

	got, err := Decode(parsed)
	require.NoError(t, err)
	assert.Equal(t, "Hi", got.Body)
	assert.Equal(t, "Multi", got.Subject)
	assert.Equal(t, "<multi@x.com>", got.MessageIDHeader)
}

func TestParseRaw_InvalidBase64(t *testing.T) {
	_, err := ParseRaw("***")
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
}
