package ginserver

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	domainchat "socialnet/internal/domain/chat"
	domainuser "socialnet/internal/domain/user"
)

func TestChatErrorStatus(t *testing.T) {
	cases := []struct {
		err     error
		code    int
		message string
	}{
		{domainchat.ErrNotFound, http.StatusNotFound, "conversation not found"},
		{domainuser.ErrNotFound, http.StatusNotFound, "user not found"},
		{domainchat.ErrInvalidContent, http.StatusBadRequest, "content is required"},
		{domainchat.ErrContentTooLong, http.StatusBadRequest, "content is too long"},
		{domainchat.ErrInvalidParticipants, http.StatusBadRequest, "two distinct participants are required"},
		{domainchat.ErrForbidden, http.StatusForbidden, "not a chat participant"},
		{domainchat.ErrConflict, http.StatusConflict, "conversation is being created, retry"},
		{fmt.Errorf("append: %w", domainchat.ErrInvalidParticipants), http.StatusBadRequest, "two distinct participants are required"},
		{errors.New("boom"), http.StatusInternalServerError, "server error"},
	}
	for _, tc := range cases {
		code, message := chatErrorStatus(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
		assert.Equal(t, tc.message, message, tc.err.Error())
	}
}
