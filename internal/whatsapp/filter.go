package whatsapp

import (
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// fold normalizes case for matching.
func fold(s string) string {
	return folder.String(s)
}

// KeywordFilter matches message bodies by case-insensitive substring.
type KeywordFilter struct {
	keywords []string
}

// NewKeywordFilter builds a filter; blank keywords are ignored.
func NewKeywordFilter(keywords []string) *KeywordFilter {
	f := &KeywordFilter{}
	for _, kw := range keywords {
		kw = fold(strings.TrimSpace(kw))
		if kw != "" {
			f.keywords = append(f.keywords, kw)
		}
	}
	return f
}

// Match reports whether body contains any keyword.
func (f *KeywordFilter) Match(body string) bool {
	folded := fold(body)
	for _, kw := range f.keywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

// Keywords returns the normalized keyword set.
func (f *KeywordFilter) Keywords() []string {
	return append([]string(nil), f.keywords...)
}

// SenderLabel picks the contact name, then the push name, then the number.
func SenderLabel(msg RawMessage) string {
	for _, candidate := range []string{msg.ContactName, msg.PushName, msg.Number} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return "unknown"
}

// findConversation returns the first chat whose name contains fragment,
// ignoring case.
func findConversation(chats []Conversation, fragment string) (Conversation, bool) {
	needle := fold(fragment)
	for _, chat := range chats {
		if strings.Contains(fold(chat.Name), needle) {
			return chat, true
		}
	}
	return Conversation{}, false
}
