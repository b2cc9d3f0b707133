package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatURL(t *testing.T) {
	url := ChatURL("https://chat.example.com/", "pub123", "tokABC")
	assert.Equal(t, "https://chat.example.com/c/pub123?t=tokABC", url)
}

func TestParseChatURL_RoundTrip(t *testing.T) {
	url := ChatURL("https://chat.example.com", "pub123", "tok_-ABC")

	publicID, token, ok := ParseChatURL(url)
	require.True(t, ok)
	assert.Equal(t, "pub123", publicID)
	assert.Equal(t, "tok_-ABC", token)
}

func TestParseChatURL_Rejects(t *testing.T) {
	cases := []string{
		"https://chat.example.com/other/pub123?t=tok",
		"https://chat.example.com/c/?t=tok",
		"https://chat.example.com/c/pub123",
		"://bad",
	}
	for _, raw := range cases {
		_, _, ok := ParseChatURL(raw)
		assert.False(t, ok, "expected rejection of %q", raw)
	}
}
