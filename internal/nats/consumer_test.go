package nats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRedeliveryDelay(t *testing.T) {
	tests := []struct {
		delivered uint64
		want      time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 5 * time.Second},
		{4, 30 * time.Second},
		{50, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RedeliveryDelay(tt.delivered), "delivered=%d", tt.delivered)
	}
}
