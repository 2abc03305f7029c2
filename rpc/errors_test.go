package rpc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodeIsFatalClassification(t *testing.T) {
	nonFatal := []ErrorCode{
		ErrorApplicationError,
		ErrorNoSuchMethod,
		ErrorNoSuchService,
		ErrorServerTooBusy,
		ErrorInvalidRequest,
	}
	for _, c := range nonFatal {
		assert.Falsef(t, c.IsFatal(), "%s should not be fatal", c)
	}

	fatal := []ErrorCode{
		ErrorFatalUnknown,
		ErrorFatalServerShuttingDown,
		ErrorFatalInvalidRpcHeader,
		ErrorFatalDeserializingRequest,
		ErrorFatalVersionMismatch,
		ErrorFatalUnauthorized,
	}
	for _, c := range fatal {
		assert.Truef(t, c.IsFatal(), "%s should be fatal", c)
	}
}

func TestErrorCodeValuesDoNotCollide(t *testing.T) {
	seen := map[ErrorCode]bool{}
	all := []ErrorCode{
		ErrorApplicationError, ErrorNoSuchMethod, ErrorNoSuchService,
		ErrorServerTooBusy, ErrorInvalidRequest,
		ErrorFatalUnknown, ErrorFatalServerShuttingDown, ErrorFatalInvalidRpcHeader,
		ErrorFatalDeserializingRequest, ErrorFatalVersionMismatch, ErrorFatalUnauthorized,
	}
	for _, c := range all {
		assert.Falsef(t, seen[c], "duplicate ErrorCode value %d", c)
		seen[c] = true
	}
}

func TestRpcErrorCloneIsIndependent(t *testing.T) {
	original := &RpcError{
		Code:                    ErrorFatalUnauthorized,
		Message:                 "no",
		UnsupportedFeatureFlags: []uint32{1, 2, 3},
	}
	clone := original.Clone()
	clone.UnsupportedFeatureFlags[0] = 99
	clone.Message = "changed"

	assert.Equal(t, uint32(1), original.UnsupportedFeatureFlags[0])
	assert.Equal(t, "no", original.Message)
	assert.Equal(t, original.Code, clone.Code)
}

func TestInvalidHeaderfWrapsSentinel(t *testing.T) {
	err := invalidHeaderf("frame length %d exceeds max %d", 100, 10)
	assert.True(t, errors.Is(err, ErrInvalidRpcHeader))
	assert.Contains(t, err.Error(), "frame length 100 exceeds max 10")
}
