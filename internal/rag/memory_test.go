package rag

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_KeepsOrder(t *testing.T) {
	m := NewMemory(0)
	m.Append("q1", "a1")
	m.Append("q2", "a2")

	history := m.History()
	require.Len(t, history, 2)
	assert.Equal(t, "q1", history[0].Question)
	assert.Equal(t, "a1", history[0].Answer)
	assert.Equal(t, "q2", history[1].Question)
	assert.False(t, history[1].At.Before(history[0].At))
}

func TestMemory_SlidingWindow(t *testing.T) {
	m := NewMemory(3)
	for i := 0; i < 5; i++ {
		m.Append(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	history := m.History()
	require.Len(t, history, 3)
	assert.Equal(t, "q2", history[0].Question)
	assert.Equal(t, "q4", history[2].Question)
}

func TestMemory_HistoryIsACopy(t *testing.T) {
	m := NewMemory(0)
	m.Append("q", "a")

	h := m.History()
	h[0].Answer = "tampered"
	assert.Equal(t, "a", m.History()[0].Answer)
}

func TestMemory_ConcurrentAppend(t *testing.T) {
	m := NewMemory(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Append(fmt.Sprintf("q%d", i), "a")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, m.Len())
}
