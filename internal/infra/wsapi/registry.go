package wsapi

import (
	"os"
	"sync"
	"time"

	"github.com/ysrdora/nextframe/internal/usecase"
)

// entry is a live session with the upload backing it and the websocket
// peers watching it.
type entry struct {
	session   *usecase.Session
	videoPath string

	mu    sync.Mutex
	peers map[*peer]struct{}
}

// join reports false once the session has been released.
func (e *entry) join(p *peer) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.peers == nil {
		return false
	}
	e.peers[p] = struct{}{}
	return true
}

func (e *entry) leave(p *peer) {
	e.mu.Lock()
	delete(e.peers, p)
	e.mu.Unlock()
}

// broadcast sends v to every peer; peers that fail are closed and their
// read loop takes care of leaving.
func (e *entry) broadcast(v any) {
	e.mu.Lock()
	peers := make([]*peer, 0, len(e.peers))
	for p := range e.peers {
		peers = append(peers, p)
	}
	e.mu.Unlock()

	for _, p := range peers {
		if err := p.send(v); err != nil {
			p.conn.Close()
		}
	}
}

func (e *entry) release() {
	e.mu.Lock()
	for p := range e.peers {
		p.conn.Close()
	}
	e.peers = nil
	e.mu.Unlock()

	e.session.Close()
	if e.videoPath != "" {
		_ = os.Remove(e.videoPath)
	}
}

type registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*entry)}
}

func (r *registry) add(s *usecase.Session, videoPath string) *entry {
	e := &entry{session: s, videoPath: videoPath, peers: make(map[*peer]struct{})}
	s.OnFlash(func(active bool) {
		e.broadcast(flashMessage{Type: "flash", Active: active})
	})
	r.mu.Lock()
	r.sessions[s.ID()] = e
	r.mu.Unlock()
	return e
}

func (r *registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	return e, ok
}

func (r *registry) remove(id string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		e.release()
	}
	return ok
}

// expire releases every session created before cutoff.
func (r *registry) expire(cutoff time.Time) int {
	r.mu.Lock()
	var stale []*entry
	for id, e := range r.sessions {
		if e.session.CreatedAt().Before(cutoff) {
			stale = append(stale, e)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, e := range stale {
		e.release()
	}
	return len(stale)
}

func (r *registry) closeAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range all {
		e.release()
	}
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
