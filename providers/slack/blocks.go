package slack

import (
	"strings"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-lackey/maid-server/core"
)

const (
	ActionsBlockID = "maid_actions"
	ImageBlockID   = "maid_image"
)

// Blocks renders a reply as a markdown section, an optional image and an
// optional row of buttons.
func Blocks(reply core.Reply) []slackapi.Block {
	blocks := make([]slackapi.Block, 0, 3)
	if text := strings.TrimSpace(reply.Text); text != "" {
		blocks = append(blocks, slackapi.NewSectionBlock(
			slackapi.NewTextBlockObject(slackapi.MarkdownType, reply.Text, false, false),
			nil, nil,
		))
	}
	if url := strings.TrimSpace(reply.ImageURL); url != "" {
		alt := strings.TrimSpace(reply.ImageAlt)
		if alt == "" {
			alt = "image"
		}
		blocks = append(blocks, slackapi.NewImageBlock(url, alt, ImageBlockID, nil))
	}
	if len(reply.Actions) > 0 {
		elements := make([]slackapi.BlockElement, 0, len(reply.Actions))
		for _, action := range reply.Actions {
			button := slackapi.NewButtonBlockElement(
				action.ID,
				action.Value,
				slackapi.NewTextBlockObject(slackapi.PlainTextType, action.Label, true, false),
			)
			if style := buttonStyle(action.Style); style != slackapi.StyleDefault {
				button = button.WithStyle(style)
			}
			elements = append(elements, button)
		}
		blocks = append(blocks, slackapi.NewActionBlock(ActionsBlockID, elements...))
	}
	return blocks
}

// MessageOptions renders a reply for chat.postMessage and chat.postEphemeral.
// The plain text is kept as the notification fallback.
func MessageOptions(reply core.Reply) []slackapi.MsgOption {
	options := []slackapi.MsgOption{slackapi.MsgOptionText(reply.Text, false)}
	if blocks := Blocks(reply); len(blocks) > 0 {
		options = append(options, slackapi.MsgOptionBlocks(blocks...))
	}
	return options
}

// WebhookMessage renders a reply for an interaction response URL.
func WebhookMessage(reply core.Reply) *slackapi.WebhookMessage {
	msg := &slackapi.WebhookMessage{
		Text:            reply.Text,
		ReplaceOriginal: reply.ReplaceOriginal,
		ResponseType:    slackapi.ResponseTypeEphemeral,
	}
	if reply.Visibility == core.VisibilityChannel {
		msg.ResponseType = slackapi.ResponseTypeInChannel
	}
	if blocks := Blocks(reply); len(blocks) > 0 {
		msg.Blocks = &slackapi.Blocks{BlockSet: blocks}
	}
	return msg
}

func buttonStyle(style core.ActionStyle) slackapi.Style {
	switch style {
	case core.ActionStylePrimary:
		return slackapi.StylePrimary
	case core.ActionStyleDanger:
		return slackapi.StyleDanger
	default:
		return slackapi.StyleDefault
	}
}
