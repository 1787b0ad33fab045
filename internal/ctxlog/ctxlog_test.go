package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext_DefaultsToGlobalLogger(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestWith_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithLogger(context.Background(), logger)

	ctx = With(ctx, "resolver_id", "r1")
	FromContext(ctx).Info("hello")

	assert.Contains(t, buf.String(), "resolver_id=r1")
	assert.Contains(t, buf.String(), "msg=hello")
}
