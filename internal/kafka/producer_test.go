package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProducerWithoutBrokersIsNoop(t *testing.T) {
	for _, p := range []*Producer{NewProducer(nil, "events"), NewProducer([]string{"localhost:9092"}, "")} {
		assert.False(t, p.Enabled())
		assert.NotPanics(t, func() {
			p.Publish(context.Background(), EventMessageIngested, map[string]interface{}{"ticket_id": "1"})
		})
		assert.NoError(t, p.Close())
	}
}

func TestProducerWithBrokersIsEnabled(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "events")
	assert.True(t, p.Enabled())
	assert.NoError(t, p.Close())
}
