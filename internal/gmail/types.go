package gmail

// Format selects how much of a message the API returns.
type Format string

const (
	// FormatMetadata returns headers listed in MetadataHeaders plus snippet and labels.
	FormatMetadata Format = "metadata"
	// FormatFull returns the parsed payload tree with body data.
	FormatFull Format = "full"
	// FormatRaw returns the RFC 5322 envelope as URL-safe base64 in Raw.
	FormatRaw Format = "raw"
)

// MetadataHeaders are requested for listings and reply resolution.
var MetadataHeaders = []string{"From", "To", "Cc", "Subject", "Date", "Message-ID"}

// LabelUnread marks unread messages.
const LabelUnread = "UNREAD"

// Message is a decoded Gmail message. Body holds the plain-text body when the
// message has one, otherwise the first HTML body, never both.
type Message struct {
	ID              string   `json:"id"`
	ThreadID        string   `json:"thread_id,omitempty"`
	MessageIDHeader string   `json:"message_id,omitempty"`
	From            string   `json:"from"`
	To              string   `json:"to"`
	Cc              string   `json:"cc,omitempty"`
	Bcc             string   `json:"bcc,omitempty"`
	Subject         string   `json:"subject"`
	Date            string   `json:"date"`
	Snippet         string   `json:"snippet,omitempty"`
	Body            string   `json:"body,omitempty"`
	LabelIDs        []string `json:"labels"`
}

// Unread reports whether the message carries the UNREAD label.
func (m *Message) Unread() bool {
	for _, l := range m.LabelIDs {
		if l == LabelUnread {
			return true
		}
	}
	return false
}

// OutgoingMessage is composed for a single send and never persisted.
// Address fields are comma separated lists as typed by the user.
type OutgoingMessage struct {
	To         string
	Cc         string
	Bcc        string
	Subject    string
	Body       string
	InReplyTo  string
	References string
	// ThreadID travels next to the encoded envelope, not inside it.
	ThreadID string
}

// Label is a Gmail label.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// SendResult describes the outcome of Mailbox.Send. A dry run carries no ID.
type SendResult struct {
	ID       string   `json:"id,omitempty"`
	ThreadID string   `json:"thread_id,omitempty"`
	Mode     string   `json:"mode"`
	DryRun   bool     `json:"dry_run"`
	Preview  *Message `json:"preview,omitempty"`
}
