package api

import (
	"fmt"
	"log"
	"sync"

	"github.com/satindergrewal/abxtest/internal/abx"
)

const maxMessages = 50

// Feed is the presenter behind the web page: it keeps what the listener
// should see and mirrors every message to the log.
type Feed struct {
	mu       sync.RWMutex
	source   string
	score    abx.Score
	pValue   float64
	messages []string
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{pValue: 1}
}

func (f *Feed) SourceLoaded(name string) {
	f.mu.Lock()
	f.source = name
	f.mu.Unlock()
	f.Message("Loaded " + name)
}

func (f *Feed) ScoreUpdated(score abx.Score, pValue float64) {
	f.mu.Lock()
	f.score = score
	f.pValue = pValue
	f.mu.Unlock()
	log.Printf("Score %s p=%.3f", score, pValue)
}

func (f *Feed) Message(msg string) {
	log.Println(msg)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	if len(f.messages) > maxMessages {
		f.messages = f.messages[len(f.messages)-maxMessages:]
	}
}

// FeedSnapshot is what the page renders.
type FeedSnapshot struct {
	Source   string   `json:"source"`
	Score    string   `json:"score"`
	PValue   string   `json:"p_value"`
	Messages []string `json:"messages"`
}

// Snapshot returns the current display values. The p-value is rounded
// to three places as the listener sees it.
func (f *Feed) Snapshot() FeedSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	msgs := make([]string, len(f.messages))
	copy(msgs, f.messages)
	return FeedSnapshot{
		Source:   f.source,
		Score:    f.score.String(),
		PValue:   fmt.Sprintf("p=%.3f", f.pValue),
		Messages: msgs,
	}
}
