package realtime

import domainchat "socialnet/internal/domain/chat"

// ErrorFrame is sent to a single connection when one of its frames is rejected.
func ErrorFrame(message string) domainchat.Event {
	return domainchat.Event{Type: domainchat.EventError, Message: message}
}

// JoinedFrame acknowledges a join.
func JoinedFrame(userID string) domainchat.Event {
	return domainchat.Event{Type: domainchat.EventJoined, UserID: userID}
}
