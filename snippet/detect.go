package snippet

import (
	"strings"

	"github.com/slack-lackey/maid-server/core"
)

const (
	Fence           = "```"
	GetGistsKeyword = "get gists"
)

// ExtractCodeBlock returns the text strictly between the first and last
// fence. ok is false when there is no non-empty fenced region.
func ExtractCodeBlock(text string) (content string, ok bool) {
	first := strings.Index(text, Fence)
	last := strings.LastIndex(text, Fence)
	if first < 0 || last < first+len(Fence) {
		return "", false
	}
	content = text[first+len(Fence) : last]
	if strings.TrimSpace(content) == "" {
		return "", false
	}
	return content, true
}

// IsUserMessage matches plain messages written by people.
func IsUserMessage(env core.InboundEnvelope) bool {
	evt := env.Event
	return env.EventType == core.EventTypeMessage &&
		strings.TrimSpace(evt.Subtype) == "" &&
		strings.TrimSpace(evt.BotID) == "" &&
		strings.TrimSpace(evt.User) != ""
}

func IsCodeBlockMessage(env core.InboundEnvelope) bool {
	return IsUserMessage(env) && strings.Contains(env.Event.Text, Fence)
}

func IsGetGistsMessage(env core.InboundEnvelope) bool {
	return IsUserMessage(env) && strings.Contains(env.Event.Text, GetGistsKeyword)
}

func IsFileEvent(env core.InboundEnvelope) bool {
	switch env.EventType {
	case core.EventTypeFileCreated, core.EventTypeFileShared:
		return strings.TrimSpace(env.Event.FileID) != ""
	default:
		return false
	}
}
