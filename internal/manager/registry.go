package manager

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Alia5/joybridge/internal/dsu"
	"github.com/Alia5/joybridge/internal/joycon"
	"github.com/Alia5/joybridge/internal/sink"
)

// controller is one attached session and its virtual output.
type controller struct {
	session *joycon.Session
	path    string
	pad     sink.Pad

	// connecting is set while a connect loop for pad is running.
	connecting atomic.Bool
}

// Registry is the set of live controllers, keyed by session ID.
type Registry struct {
	mu     sync.RWMutex
	byID   map[int]*controller
	byPath map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[int]*controller),
		byPath: make(map[string]int),
	}
}

func (r *Registry) add(c *controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[c.session.ID] = c
	r.byPath[c.path] = c.session.ID
}

func (r *Registry) remove(id int) (*controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	if r.byPath[c.path] == id {
		delete(r.byPath, c.path)
	}
	return c, true
}

func (r *Registry) get(id int) (*controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

func (r *Registry) byDevicePath(path string) (*controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPath[path]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

func (r *Registry) all() []*controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*controller, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *controller) int { return a.session.ID - b.session.ID })
	return out
}

// Sessions returns the live sessions ordered by ID.
func (r *Registry) Sessions() []*joycon.Session {
	cs := r.all()
	out := make([]*joycon.Session, len(cs))
	for i, c := range cs {
		out[i] = c.session
	}
	return out
}

// Len is the number of live controllers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// SlotInfo implements dsu.PadSource.
func (r *Registry) SlotInfo(slot uint8) (dsu.SlotInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byID {
		if c.session.Slot() == int(slot) {
			return slotInfo(c.session, c.session.Snapshot()), true
		}
	}
	return dsu.SlotInfo{}, false
}

func slotInfo(s *joycon.Session, snap *joycon.Snapshot) dsu.SlotInfo {
	info := dsu.SlotInfo{
		Slot:       uint8(max(s.Slot(), 0)),
		State:      dsu.StateReserved,
		Model:      dsu.ModelDS4,
		Connection: dsu.ConnBT,
		MAC:        s.MAC(),
		Battery:    dsu.BatteryNone,
	}
	if s.IsUSB() {
		info.Connection = dsu.ConnUSB
	}
	if s.State().Operational() {
		info.State = dsu.StateConnected
	}
	if snap != nil {
		info.Battery = dsu.BatteryStatus(snap.Battery, snap.Charging)
	}
	return info
}
