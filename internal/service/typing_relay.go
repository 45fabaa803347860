package service

import (
	"counsel-chat-be/internal/dto"
	"counsel-chat-be/internal/pkg/logger"
)

// TypingRelay forwards typing state to an online recipient and drops it otherwise.
// Nothing is queued or stored.
type TypingRelay struct {
	presence PresenceLookup
	logger   logger.ILogger
}

func NewTypingRelay(presence PresenceLookup, log logger.ILogger) *TypingRelay {
	return &TypingRelay{presence: presence, logger: log}
}

// SetTyping reports whether the signal was handed to the recipient's connection.
func (r *TypingRelay) SetTyping(fromUserId, toUserId string, isTyping bool) bool {
	conn, ok := r.presence.Lookup(toUserId)
	if !ok {
		return false
	}

	err := conn.Push(dto.WsEnvelope{
		Type: dto.WsEventUserTyping,
		Data: dto.UserTypingPayload{From: fromUserId, IsTyping: isTyping},
	})
	if err != nil {
		r.logger.Debug("TYPING", "Dropped typing signal", map[string]interface{}{
			"from":  fromUserId,
			"to":    toUserId,
			"error": err.Error(),
		})
		return false
	}
	return true
}
