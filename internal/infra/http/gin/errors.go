package ginserver

import (
	"errors"
	"net/http"

	domainchat "socialnet/internal/domain/chat"
	domainuser "socialnet/internal/domain/user"
)

// chatErrorStatus maps chat failures to an HTTP status and a client-safe message.
func chatErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domainchat.ErrNotFound):
		return http.StatusNotFound, "conversation not found"
	case errors.Is(err, domainuser.ErrNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, domainchat.ErrInvalidContent):
		return http.StatusBadRequest, "content is required"
	case errors.Is(err, domainchat.ErrContentTooLong):
		return http.StatusBadRequest, "content is too long"
	case errors.Is(err, domainchat.ErrInvalidParticipants):
		return http.StatusBadRequest, "two distinct participants are required"
	case errors.Is(err, domainchat.ErrForbidden):
		return http.StatusForbidden, "not a chat participant"
	case errors.Is(err, domainchat.ErrConflict):
		return http.StatusConflict, "conversation is being created, retry"
	default:
		return http.StatusInternalServerError, "server error"
	}
}
