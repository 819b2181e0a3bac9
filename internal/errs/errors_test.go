package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	cause := errors.New("dial tcp: refused")

	assert.Equal(t, "[connection_failed] connect: dial tcp: refused",
		Wrap(ErrKindConnectionFailed, "connect", cause).Error())
	assert.Equal(t, "[not_found] profile missing",
		New(ErrKindNotFound, "profile missing").Error())
}

func TestPredicates_TraverseWrapping(t *testing.T) {
	base := New(ErrKindStoreBusy, "database is locked")
	wrapped := fmt.Errorf("save profile: %w", base)

	assert.True(t, IsStoreBusy(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   Code
		status int
	}{
		{"explicit code wins", Wrap(ErrKindIntrospectionFailed, "idx", nil).WithCode(CodeFailFindIndexes), CodeFailFindIndexes, http.StatusInternalServerError},
		{"kind fallback", New(ErrKindNotFound, "x"), CodeNoSearchData, http.StatusNotFound},
		{"busy is retryable", New(ErrKindStoreBusy, "locked"), CodeStoreBusy, http.StatusServiceUnavailable},
		{"unsupported type", New(ErrKindUnsupportedDatabaseType, "db2"), CodeInvalidDBDriver, http.StatusUnprocessableEntity},
		{"foreign error", errors.New("boom"), CodeFail, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, CodeOf(tt.err))
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestPublicMessage_HidesUnexpected(t *testing.T) {
	assert.Equal(t, "internal failure", PublicMessage(errors.New("pq: secret detail")))
	assert.Equal(t, "profile not found", PublicMessage(New(ErrKindNotFound, "profile not found")))
}
