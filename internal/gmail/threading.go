package gmail

import "strings"

const replyPrefix = "Re: "

// Reply holds the header fields of a reply to an existing message.
type Reply struct {
	To         string
	Subject    string
	InReplyTo  string
	References string
	ThreadID   string
}

// ResolveReply derives the reply fields for original.
//
// To is userRecipient, or the address between angle brackets in the original
// From, or the raw From value. Subject is userSubject or the original subject
// with a single "Re: " prefix; a subject that already starts with "re:" in any
// case is kept. InReplyTo and References are the original Message-ID, or both
// empty when it has none. ThreadID is always the original thread.
func ResolveReply(original *Message, userSubject, userRecipient string) Reply {
	r := Reply{
		To:       userRecipient,
		Subject:  userSubject,
		ThreadID: original.ThreadID,
	}
	if r.To == "" {
		r.To = replyAddress(original.From)
	}
	if r.Subject == "" {
		r.Subject = original.Subject
	}
	if !strings.HasPrefix(strings.ToLower(r.Subject), "re:") {
		r.Subject = replyPrefix + r.Subject
	}
	if original.MessageIDHeader != "" {
		r.InReplyTo = original.MessageIDHeader
		r.References = original.MessageIDHeader
	}
	return r
}

// Apply copies the reply fields onto out.
func (r Reply) Apply(out *OutgoingMessage) {
	out.To = r.To
	out.Subject = r.Subject
	out.InReplyTo = r.InReplyTo
	out.References = r.References
	out.ThreadID = r.ThreadID
}

// replyAddress extracts "jane@x.com" from "Jane Doe <jane@x.com>".
func replyAddress(from string) string {
	_, rest, ok := strings.Cut(from, "<")
	if !ok {
		return from
	}
	addr, _, ok := strings.Cut(rest, ">")
	if !ok {
		return from
	}
	return addr
}
