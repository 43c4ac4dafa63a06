package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageQueueFIFO(t *testing.T) {
	q := NewMessageQueue()

	assert.Nil(t, q.Pop())
	assert.Nil(t, q.Peek())
	assert.Zero(t, q.Len())

	first := &Message{Type: TypeSay, Fields: []string{"one"}}
	second := &Message{Type: TypeSay, Fields: []string{"two"}}
	q.Push(first)
	q.Push(second)

	assert.Equal(t, 2, q.Len())
	assert.Same(t, first, q.Peek())
	assert.Equal(t, 2, q.Len(), "peek must not remove")

	require.Same(t, first, q.Pop())
	require.Same(t, second, q.Pop())
	assert.Nil(t, q.Pop())
}
