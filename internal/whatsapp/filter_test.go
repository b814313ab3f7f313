package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fte-hq/fte-connectors/internal/config"
)

func TestKeywordFilter(t *testing.T) {
	filter := NewKeywordFilter(config.DefaultKeywords)

	tests := []struct {
		body string
		want bool
	}{
		{"Have you seen Claude 4?", true},
		{"we need an AI Agent for this", true},
		{"Automation pipeline is down", true},
		{"GPT-5 rumours", true},
		{"artificial intelligence conference", true},
		{"lunch at noon?", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, filter.Match(tt.body), tt.body)
	}
}

func TestKeywordFilterNormalizes(t *testing.T) {
	filter := NewKeywordFilter([]string{"  Invoice ", "", "   "})
	assert.Equal(t, []string{"invoice"}, filter.Keywords())
	assert.True(t, filter.Match("INVOICE attached"))
	assert.False(t, filter.Match("anything"))
}

func TestSenderLabel(t *testing.T) {
	assert.Equal(t, "Alice", SenderLabel(RawMessage{ContactName: "Alice", PushName: "Ali", Number: "49"}))
	assert.Equal(t, "Ali", SenderLabel(RawMessage{PushName: "Ali", Number: "49"}))
	assert.Equal(t, "49", SenderLabel(RawMessage{ContactName: " ", Number: "49"}))
	assert.Equal(t, "unknown", SenderLabel(RawMessage{}))
}

func TestFindConversation(t *testing.T) {
	chat, ok := findConversation(testChats, "ALICE")
	assert.True(t, ok)
	assert.Equal(t, "Alice Smith", chat.Name)

	_, ok = findConversation(testChats, "carol")
	assert.False(t, ok)
}

func TestFindConversationFoldsUnicode(t *testing.T) {
	chats := []Conversation{{ID: "École du Nord", Name: "École du Nord"}}

	chat, ok := findConversation(chats, "éCOLE")
	assert.True(t, ok)
	assert.Equal(t, "École du Nord", chat.Name)
}
