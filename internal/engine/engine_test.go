package engine

import (
	"testing"

	"github.com/proxyforge/proxyforge/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCancelToken(t *testing.T) {
	token := NewCancelToken()
	assert.False(t, token.Cancelled())
	assert.Empty(t, token.Reason())

	token.Cancel("operator request")
	assert.True(t, token.Cancelled())
	assert.Equal(t, "operator request", token.Reason())

	select {
	case <-token.Done():
	default:
		t.Fatal("done channel should be closed")
	}

	// Second cancel keeps the original reason.
	token.Cancel("too late")
	assert.Equal(t, "operator request", token.Reason())
}

func TestFailed(t *testing.T) {
	result := Failed(models.TagEngineFailure, "exit status 1")
	assert.Equal(t, ResultFailed, result.Kind)
	assert.Equal(t, "execution.engine_failure: exit status 1", result.FailureReason)
}
