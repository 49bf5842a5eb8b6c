package timestamps

import (
	"context"
	"fmt"
	"sync"

	"github.com/igolaizola/lyricvid/pkg/lyrics"
)

// Memory is an in-process Store, used when nothing has to outlive the
// process.
type Memory struct {
	lck   sync.Mutex
	words map[string][]lyrics.TimedWord
}

func NewMemory() *Memory {
	return &Memory{words: map[string][]lyrics.TimedWord{}}
}

func (m *Memory) GetTimestamps(_ context.Context, id string) ([]lyrics.TimedWord, error) {
	m.lck.Lock()
	defer m.lck.Unlock()
	words, ok := m.words[id]
	if !ok {
		return nil, fmt.Errorf("timestamps: %s: %w", id, ErrNotFound)
	}
	return append([]lyrics.TimedWord(nil), words...), nil
}

func (m *Memory) SetTimestamps(_ context.Context, id string, words []lyrics.TimedWord) error {
	m.lck.Lock()
	defer m.lck.Unlock()
	m.words[id] = append([]lyrics.TimedWord(nil), words...)
	return nil
}

func (m *Memory) DeleteTimestamps(_ context.Context, id string) error {
	m.lck.Lock()
	defer m.lck.Unlock()
	delete(m.words, id)
	return nil
}
