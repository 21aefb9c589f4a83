// Package gallery keeps the frames captured during one session.
package gallery

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ysrdora/nextframe/internal/domain/entity"
)

// Item is a captured frame as the gallery knows it.
type Item struct {
	ID         uuid.UUID            `json:"id"`
	Frame      entity.CapturedFrame `json:"frame"`
	CapturedAt time.Time            `json:"capturedAt"`
}

// Gallery is safe for concurrent use. Items are ordered newest first.
type Gallery struct {
	mu    sync.RWMutex
	items []Item
	now   func() time.Time
}

func New() *Gallery {
	return &Gallery{now: time.Now}
}

// Append stores f and returns the item it became.
func (g *Gallery) Append(f entity.CapturedFrame) Item {
	item := Item{ID: uuid.New(), Frame: f, CapturedAt: g.now().UTC()}

	g.mu.Lock()
	g.items = append([]Item{item}, g.items...)
	g.mu.Unlock()
	return item
}

// AppendItem stores an item that already has an identity, e.g. one
// restored from storage.
func (g *Gallery) AppendItem(item Item) {
	g.mu.Lock()
	g.items = append([]Item{item}, g.items...)
	g.mu.Unlock()
}

// AppendAll stores frames in order, so the last one ends up first.
func (g *Gallery) AppendAll(frames []entity.CapturedFrame) []Item {
	out := make([]Item, 0, len(frames))
	for _, f := range frames {
		out = append(out, g.Append(f))
	}
	return out
}

// Items returns a copy of the gallery contents.
func (g *Gallery) Items() []Item {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Item(nil), g.items...)
}

// Frames returns the frames alone, newest first.
func (g *Gallery) Frames() []entity.CapturedFrame {
	g.mu.RLock()
	defer g.mu.RUnlock()
	frames := make([]entity.CapturedFrame, len(g.items))
	for i, it := range g.items {
		frames[i] = it.Frame
	}
	return frames
}

// Remove drops the item with id and reports whether it existed.
func (g *Gallery) Remove(id uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, it := range g.items {
		if it.ID == id {
			g.items = append(g.items[:i], g.items[i+1:]...)
			return true
		}
	}
	return false
}

func (g *Gallery) Clear() {
	g.mu.Lock()
	g.items = nil
	g.mu.Unlock()
}

func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.items)
}
