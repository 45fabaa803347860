package websocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"counsel-chat-be/internal/dto"
	"counsel-chat-be/internal/pkg/serverutils"
)

var (
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrUnknownEventType = errors.New("unknown event type")
)

// Event is one of JoinEvent, SendMessageEvent or TypingEvent.
type Event interface {
	eventType() string
}

type JoinEvent struct {
	dto.JoinPayload
}

type SendMessageEvent struct {
	dto.SendMessagePayload
}

type TypingEvent struct {
	dto.TypingPayload
}

func (JoinEvent) eventType() string        { return dto.WsEventJoin }
func (SendMessageEvent) eventType() string { return dto.WsEventSendMessage }
func (TypingEvent) eventType() string      { return dto.WsEventTyping }

// DecodeEvent parses and validates an inbound frame. The frame type is returned even
// when the payload is invalid so callers can answer on the right channel.
func DecodeEvent(raw []byte) (string, Event, error) {
	var frame dto.WsInboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var (
		event   Event
		payload interface{}
	)
	switch frame.Type {
	case dto.WsEventJoin:
		join, err := decodeJoin(frame.Data)
		if err != nil {
			return frame.Type, nil, err
		}
		event, payload = join, &join.JoinPayload
	case dto.WsEventSendMessage:
		var send SendMessageEvent
		if err := json.Unmarshal(frame.Data, &send.SendMessagePayload); err != nil {
			return frame.Type, nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		event, payload = send, &send.SendMessagePayload
	case dto.WsEventTyping:
		var typing TypingEvent
		if err := json.Unmarshal(frame.Data, &typing.TypingPayload); err != nil {
			return frame.Type, nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		event, payload = typing, &typing.TypingPayload
	default:
		return frame.Type, nil, fmt.Errorf("%w: %q", ErrUnknownEventType, frame.Type)
	}

	if err := serverutils.ValidateRequest(payload); err != nil {
		return frame.Type, nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return frame.Type, event, nil
}

// decodeJoin accepts the bare id string clients send as well as {"userId": "..."}.
func decodeJoin(data json.RawMessage) (JoinEvent, error) {
	var join JoinEvent
	var userId string
	if err := json.Unmarshal(data, &userId); err == nil {
		join.UserId = userId
		return join, nil
	}
	if err := json.Unmarshal(data, &join.JoinPayload); err != nil {
		return join, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return join, nil
}
