package slack

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-lackey/maid-server/core"
	"github.com/slack-lackey/maid-server/inbound"
)

// Decoder turns Events API bodies and interactivity form posts into the
// inbound envelope and action payloads.
type Decoder struct{}

func NewDecoder() Decoder {
	return Decoder{}
}

type innerEventHeader struct {
	Type string `json:"type"`
}

func (Decoder) DecodeEvent(body []byte) (inbound.DecodedEvent, error) {
	var outer struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &outer); err != nil {
		return inbound.DecodedEvent{}, fmt.Errorf("slack: decode event envelope: %w", err)
	}

	switch outer.Type {
	case slackevents.URLVerification:
		var verification slackevents.EventsAPIURLVerificationEvent
		if err := json.Unmarshal(body, &verification); err != nil {
			return inbound.DecodedEvent{}, fmt.Errorf("slack: decode url verification: %w", err)
		}
		return inbound.DecodedEvent{Kind: inbound.EnvelopeURLVerification, Challenge: verification.Challenge}, nil
	case slackevents.CallbackEvent:
		return decodeCallback(body)
	case "":
		return inbound.DecodedEvent{}, fmt.Errorf("slack: event envelope has no type")
	default:
		return inbound.DecodedEvent{Kind: outer.Type}, nil
	}
}

func decodeCallback(body []byte) (inbound.DecodedEvent, error) {
	var callback slackevents.EventsAPICallbackEvent
	if err := json.Unmarshal(body, &callback); err != nil {
		return inbound.DecodedEvent{}, fmt.Errorf("slack: decode event callback: %w", err)
	}
	if strings.TrimSpace(callback.TeamID) == "" {
		return inbound.DecodedEvent{}, fmt.Errorf("slack: event callback has no team_id")
	}
	if callback.InnerEvent == nil {
		return inbound.DecodedEvent{}, fmt.Errorf("slack: event callback has no event")
	}
	raw := []byte(*callback.InnerEvent)
	var header innerEventHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return inbound.DecodedEvent{}, fmt.Errorf("slack: decode inner event: %w", err)
	}

	inner, err := decodeInner(header.Type, raw)
	if err != nil {
		return inbound.DecodedEvent{}, err
	}
	return inbound.DecodedEvent{
		Kind: inbound.EnvelopeEventCallback,
		Envelope: core.InboundEnvelope{
			TenantID:  callback.TeamID,
			EventID:   callback.EventID,
			EventType: header.Type,
			Event:     inner,
		},
	}, nil
}

func decodeInner(eventType string, raw []byte) (core.InnerEvent, error) {
	switch eventType {
	case core.EventTypeMessage:
		var evt slackevents.MessageEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return core.InnerEvent{}, fmt.Errorf("slack: decode message event: %w", err)
		}
		return core.InnerEvent{
			Type:    eventType,
			Subtype: evt.SubType,
			User:    evt.User,
			Channel: evt.Channel,
			Text:    evt.Text,
			TS:      evt.TimeStamp,
			BotID:   evt.BotID,
		}, nil
	case core.EventTypeAppMention:
		var evt slackevents.AppMentionEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return core.InnerEvent{}, fmt.Errorf("slack: decode app_mention event: %w", err)
		}
		return core.InnerEvent{
			Type:    eventType,
			User:    evt.User,
			Channel: evt.Channel,
			Text:    evt.Text,
			TS:      evt.TimeStamp,
			BotID:   evt.BotID,
		}, nil
	case core.EventTypeFileCreated:
		var evt slackevents.FileCreatedEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return core.InnerEvent{}, fmt.Errorf("slack: decode file_created event: %w", err)
		}
		return core.InnerEvent{Type: eventType, FileID: firstNonEmpty(evt.FileID, evt.File.ID)}, nil
	case core.EventTypeFileShared:
		var evt slackevents.FileSharedEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return core.InnerEvent{}, fmt.Errorf("slack: decode file_shared event: %w", err)
		}
		return core.InnerEvent{
			Type:    eventType,
			User:    evt.UserID,
			Channel: evt.ChannelID,
			FileID:  firstNonEmpty(evt.FileID, evt.File.ID),
		}, nil
	default:
		return core.InnerEvent{Type: eventType}, nil
	}
}

// DecodeAction reads the form-encoded interactivity post. Only block action
// interactions carrying at least one button action are reported as ok.
func (Decoder) DecodeAction(body []byte) (core.ActionPayload, bool, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return core.ActionPayload{}, false, fmt.Errorf("slack: decode interaction form: %w", err)
	}
	payload := values.Get("payload")
	if strings.TrimSpace(payload) == "" {
		return core.ActionPayload{}, false, fmt.Errorf("slack: interaction form has no payload")
	}

	var callback slackapi.InteractionCallback
	if err := json.Unmarshal([]byte(payload), &callback); err != nil {
		return core.ActionPayload{}, false, fmt.Errorf("slack: decode interaction payload: %w", err)
	}
	if callback.Type != slackapi.InteractionTypeBlockActions || len(callback.ActionCallback.BlockActions) == 0 {
		return core.ActionPayload{}, false, nil
	}
	action := callback.ActionCallback.BlockActions[0]
	if action == nil || strings.TrimSpace(action.ActionID) == "" {
		return core.ActionPayload{}, false, nil
	}
	return core.ActionPayload{
		ActionID:    action.ActionID,
		Value:       action.Value,
		UserID:      callback.User.ID,
		TenantID:    firstNonEmpty(callback.Team.ID, callback.User.TeamID),
		ChannelID:   firstNonEmpty(callback.Channel.ID, callback.Container.ChannelID),
		ResponseURL: callback.ResponseURL,
		TriggerID:   callback.TriggerID,
	}, true, nil
}

var _ inbound.PayloadDecoder = Decoder{}
