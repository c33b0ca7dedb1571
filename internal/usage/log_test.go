package usage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogRetainsNewestFirst(t *testing.T) {
	log := NewLog(10)
	for i := 0; i < 3; i++ {
		log.Add(Record{Model: fmt.Sprintf("model-%d", i), OutputTokens: i})
	}

	recent := log.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "model-2", recent[0].Model)
	assert.Equal(t, "model-0", recent[2].Model)
}

func TestLogEvictsOldestAtCapacity(t *testing.T) {
	log := NewLog(4)
	for i := 0; i < 10; i++ {
		log.Add(Record{OutputTokens: i})
	}

	assert.Equal(t, 4, log.Len())
	recent := log.Recent(0)
	require.Len(t, recent, 4)
	assert.Equal(t, 9, recent[0].OutputTokens)
	assert.Equal(t, 6, recent[3].OutputTokens)
}

func TestLogSummarize(t *testing.T) {
	log := NewLog(8)
	log.Add(Record{PromptTokens: 100, OutputTokens: 20})
	log.Add(Record{PromptTokens: 50, OutputTokens: 10})

	totals := log.Summarize()
	assert.Equal(t, 2, totals.Calls)
	assert.Equal(t, 150, totals.PromptTokens)
	assert.Equal(t, 30, totals.OutputTokens)
}

func TestLogConcurrentAdds(t *testing.T) {
	log := NewLog(64)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Add(Record{OutputTokens: 1})
		}()
	}
	wg.Wait()

	assert.Equal(t, 64, log.Len())
	assert.Equal(t, 64, log.Summarize().Calls)
}

func TestLogRecentLimit(t *testing.T) {
	log := NewLog(16)
	for i := 0; i < 8; i++ {
		log.Add(Record{OutputTokens: i})
	}
	assert.Len(t, log.Recent(3), 3)
	assert.Len(t, log.Recent(100), 8)
}
