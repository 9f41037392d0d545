package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/fathima-sithara/roomrent-chat/internal/domain"
	"github.com/fathima-sithara/roomrent-chat/internal/repository"
)

var errConnGone = fmt.Errorf("%w: connection gone", domain.ErrSessionClosed)

type emitted struct {
	handle string
	ev     domain.Outbound
}

// recordingEmitter captures pushes; handles listed in dead fail.
type recordingEmitter struct {
	mu   sync.Mutex
	out  []emitted
	dead map[string]bool
}

func newRecordingEmitter(dead ...string) *recordingEmitter {
	e := &recordingEmitter{dead: map[string]bool{}}
	for _, h := range dead {
		e.dead[h] = true
	}
	return e
}

func (e *recordingEmitter) Emit(handle string, ev domain.Outbound) error {
	if e.dead[handle] {
		return errConnGone
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.out = append(e.out, emitted{handle: handle, ev: ev})
	return nil
}

func (e *recordingEmitter) to(handle string) []domain.ReceiveMessagePayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []domain.ReceiveMessagePayload
	for _, x := range e.out {
		if x.handle != handle || x.ev.Event != domain.EventReceiveMessage {
			continue
		}
		out = append(out, x.ev.Data.(domain.ReceiveMessagePayload))
	}
	return out
}

type failingStore struct {
	*repository.MemoryStore
	err error
}

func (s *failingStore) Create(context.Context, *domain.Message) error { return s.err }

// joiningPresence reports the user offline on the first lookup and online
// on every later one, as if they connected mid-send.
type joiningPresence struct {
	mu     sync.Mutex
	calls  int
	handle string
}

func (p *joiningPresence) Handle(string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls == 1 {
		return "", false
	}
	return p.handle, true
}
