package logging

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"DEBUG", zerolog.DebugLevel},
		{" warning ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), tt.in)
	}
}

func TestWithRequestID(t *testing.T) {
	t.Run("keeps given id", func(t *testing.T) {
		ctx, id := WithRequestID(context.Background(), "req-1")
		assert.Equal(t, "req-1", id)
		assert.Equal(t, "req-1", RequestID(ctx))
	})

	t.Run("generates id when empty", func(t *testing.T) {
		ctx, id := WithRequestID(context.Background(), "  ")
		assert.NotEmpty(t, id)
		assert.Equal(t, id, RequestID(ctx))
	})

	t.Run("missing id", func(t *testing.T) {
		assert.Empty(t, RequestID(context.Background()))
	})
}
