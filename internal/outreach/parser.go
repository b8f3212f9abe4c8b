package outreach

import (
	"strings"
	"unicode"
)

// ReplyKind classifies a member's DM reply.
type ReplyKind int

const (
	ReplyUnparseable ReplyKind = iota
	ReplyParsed
	ReplyOptOut
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyParsed:
		return "parsed"
	case ReplyOptOut:
		return "opt_out"
	default:
		return "unparseable"
	}
}

// Reply is the result of parsing a member's free-text answer.
// FullName and Handle are set only when Kind is ReplyParsed.
type Reply struct {
	Kind     ReplyKind
	FullName string
	Handle   string
}

// optOutPhrases are matched case-insensitively against the whole trimmed reply.
var optOutPhrases = map[string]struct{}{
	"opt out":     {},
	"opt-out":     {},
	"optout":      {},
	"no":          {},
	"no thanks":   {},
	"no, thanks":  {},
	"stop":        {},
	"unsubscribe": {},
}

// IsOptOut reports whether text is one of the recognised opt-out phrases.
func IsOptOut(text string) bool {
	_, ok := optOutPhrases[strings.ToLower(strings.Join(strings.Fields(text), " "))]
	return ok
}

// Parse interprets a reply of the form "First Last, @handle" (or "Name handle" without a
// comma). In strict mode the full name must contain at least two words and the handle
// must be a single token.
func Parse(text string, strict bool) Reply {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{Kind: ReplyUnparseable}
	}
	if IsOptOut(text) {
		return Reply{Kind: ReplyOptOut}
	}

	var name, handle string
	if left, right, found := strings.Cut(text, ","); found {
		name = strings.TrimSpace(left)
		handle = strings.TrimSpace(right)
		if name == "" || handle == "" {
			return Reply{Kind: ReplyUnparseable}
		}
	} else {
		tokens := strings.Fields(text)
		if len(tokens) < 2 {
			return Reply{Kind: ReplyUnparseable}
		}
		name, handle = tokens[0], tokens[1]
	}

	handle = NormalizeHandle(handle)
	if handle == "" {
		return Reply{Kind: ReplyUnparseable}
	}
	if strict && (len(strings.Fields(name)) < 2 || strings.ContainsFunc(handle, unicode.IsSpace)) {
		return Reply{Kind: ReplyUnparseable}
	}
	return Reply{Kind: ReplyParsed, FullName: name, Handle: handle}
}

// NormalizeHandle strips a single leading '@'.
func NormalizeHandle(handle string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}
