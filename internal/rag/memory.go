package rag

import (
	"sync"
	"time"
)

// Turn is one answered question.
type Turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// Memory is the ordered conversation history of a session. With maxTurns > 0
// only the most recent maxTurns turns are kept.
type Memory struct {
	mu       sync.RWMutex
	turns    []Turn
	maxTurns int
}

func NewMemory(maxTurns int) *Memory {
	if maxTurns < 0 {
		maxTurns = 0
	}
	return &Memory{maxTurns: maxTurns}
}

func (m *Memory) Append(question, answer string) Turn {
	turn := Turn{Question: question, Answer: answer, At: time.Now()}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn)
	if m.maxTurns > 0 && len(m.turns) > m.maxTurns {
		dropped := len(m.turns) - m.maxTurns
		kept := make([]Turn, m.maxTurns)
		copy(kept, m.turns[dropped:])
		m.turns = kept
	}
	return turn
}

// History returns a copy of the turns, oldest first.
func (m *Memory) History() []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}
