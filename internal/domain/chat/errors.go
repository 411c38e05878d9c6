package chat

import "errors"

var (
	ErrNotFound            = errors.New("chat: conversation not found")
	ErrInvalidContent      = errors.New("chat: message content is required")
	ErrContentTooLong      = errors.New("chat: message content too long")
	ErrInvalidParticipants = errors.New("chat: two distinct participants are required")
	ErrConflict            = errors.New("chat: conversation already exists")
	ErrForbidden           = errors.New("chat: not a conversation participant")
	ErrChannelUnavailable  = errors.New("chat: no live connection for recipient")
)
