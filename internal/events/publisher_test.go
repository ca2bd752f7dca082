package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPublisher_NilClient(t *testing.T) {
	p := NewPublisher(nil, "stream", nil)
	assert.Nil(t, p)
}

func TestNilPublisher_IsNoOp(t *testing.T) {
	var p *Publisher

	err := p.Publish(context.Background(), Event{EventType: SourceRefreshed, SourceID: "x"})
	assert.NoError(t, err)

	// Must not panic.
	p.PublishAsync(Event{EventType: SourceFailed, SourceID: "x"})
}
