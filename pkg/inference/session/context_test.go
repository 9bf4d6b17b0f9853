package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithSessionIDRoundTrip(t *testing.T) {
	ctx := WithSessionID(context.Background(), "s-1")
	assert.Equal(t, "s-1", SessionIDFromContext(ctx))
}

func TestWithSessionIDHandlesTodoContext(t *testing.T) {
	ctx := WithSessionID(context.TODO(), "s-2")
	assert.Equal(t, "s-2", SessionIDFromContext(ctx))
}

func TestSessionIDMissing(t *testing.T) {
	assert.Equal(t, "", SessionIDFromContext(context.Background()))
	assert.Equal(t, "", SessionIDFromContext(WithSessionID(context.Background(), "")))
}
