package errors

import (
	"fmt"
	"net/http"
	"testing"

	"neuropeaks/domain/core"

	"github.com/stretchr/testify/assert"
)

func TestWrapMapsDomainErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"parse", core.ErrHeaderNotFound, CodeParseError, http.StatusUnprocessableEntity},
		{"schema", core.NewSchemaError("p1.csv", "no signal columns"), CodeSchemaError, http.StatusUnprocessableEntity},
		{"alignment", core.ErrEmptySecondary, CodeAlignmentError, http.StatusUnprocessableEntity},
		{"capture", core.NewCaptureError("https://a.b", 5, fmt.Errorf("timeout")), CodeCaptureError, http.StatusBadGateway},
		{"plain", fmt.Errorf("disk full"), CodeInternalError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := Wrap(tt.err, "run failed")
			assert.Equal(t, tt.code, GetCode(wrapped))
			assert.Equal(t, tt.status, HTTPStatus(wrapped))
			assert.ErrorIs(t, wrapped, tt.err)
		})
	}
}

func TestWrapKeepsAppErrorCode(t *testing.T) {
	inner := InvalidInput("bin width missing")
	outer := Wrapf(inner, "profile %s", "emotion")
	assert.Equal(t, CodeInvalidInput, GetCode(outer))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(outer))
	assert.Contains(t, outer.Error(), "profile emotion")
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "nothing"))
	assert.Equal(t, "", GetCode(nil))
}
