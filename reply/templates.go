package reply

import (
	"fmt"

	"github.com/slack-lackey/maid-server/core"
)

const (
	ActionSaveGist    = "save_gist"
	ActionDiscardGist = "discard_gist"
)

const (
	TextSaved         = "I saved it as a gist for you. You can find it here:\n"
	TextExportFailed  = "Sorry, there's been an error. Try again later."
	TextDeclined      = "No problem, I won't save it."
	TextNoLongerValid = "This request is no longer valid."
	TextGistsListed   = "Your gists are here:\n"
)

// SavePrompt asks the author whether a detected snippet should be saved.
// Both buttons carry only the correlation token.
func SavePrompt(kind core.SnippetKind, userID string, token string) core.Reply {
	noun := "pasted a code block"
	if kind == core.SnippetKindFile {
		noun = "made a code snippet"
	}
	return core.Reply{
		Text:       fmt.Sprintf("Hey, <@%s>, looks like you %s. Want me to save it for you as a Gist? :floppy_disk:", userID, noun),
		Visibility: core.VisibilityEphemeral,
		Actions: []core.ReplyAction{
			{ID: ActionSaveGist, Label: "Yeah", Value: token, Style: core.ActionStylePrimary},
			{ID: ActionDiscardGist, Label: "Nah", Value: token, Style: core.ActionStyleDanger},
		},
	}
}

func Saved(url string) core.Reply {
	return core.Reply{Text: TextSaved + url, Visibility: core.VisibilityEphemeral}
}

func ExportFailed() core.Reply {
	return core.Reply{Text: TextExportFailed, ReplaceOriginal: true, Visibility: core.VisibilityEphemeral}
}

func Declined() core.Reply {
	return core.Reply{Text: TextDeclined, Visibility: core.VisibilityEphemeral}
}

func NoLongerValid() core.Reply {
	return core.Reply{Text: TextNoLongerValid, Visibility: core.VisibilityEphemeral}
}

func GistsListed(url string) core.Reply {
	return core.Reply{Text: TextGistsListed + url, Visibility: core.VisibilityChannel}
}
