package telegram

import (
	"sync"

	"jlpt-snap/api/internal/pipeline"
)

const (
	maxPixels       = 18_000_000
	maxMessageRunes = 3900
)

// chatSessions maps chat id -> *pipeline.Session.
type chatSessions struct {
	m sync.Map
}

func (c *chatSessions) get(chatID int64) *pipeline.Session {
	if v, ok := c.m.Load(chatID); ok {
		return v.(*pipeline.Session)
	}
	v, _ := c.m.LoadOrStore(chatID, pipeline.NewSession())
	return v.(*pipeline.Session)
}
