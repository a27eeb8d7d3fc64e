// Package pairing owns the links between Joy-Con halves and the player slot
// of every controller. All mutations run on one goroutine; callers talk to
// it through blocking requests.
package pairing

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/Alia5/joybridge/internal/joycon"
)

// MaxSlots is the number of player slots with their own LED pattern.
const MaxSlots = 8

var ErrClosed = errors.New("pairing coordinator closed")

// Kind tags a PairState.
type Kind int

const (
	Unpaired Kind = iota
	SoloVertical
	Paired
)

func (k Kind) String() string {
	switch k {
	case Unpaired:
		return "unpaired"
	case SoloVertical:
		return "solo-vertical"
	case Paired:
		return "paired"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// PairState is Unpaired, SoloVertical, or Paired with Peer.
type PairState struct {
	Kind Kind
	Peer int
}

// Member is what the coordinator needs to know about a controller.
type Member interface {
	Type() joycon.ControllerType
	State() joycon.State
}

// Hooks are called on the caller's goroutine after a change is committed.
type Hooks struct {
	// Joined reports a new pair; primary is the left half.
	Joined func(primary, secondary int)
	// Split reports a dissolved pair.
	Split func(a, b int)
	// Solo reports a single Joy-Con entering or leaving vertical mode.
	Solo func(id int, vertical bool)
}

type entry struct {
	m    Member
	pair PairState
	slot int
}

// Coordinator is the single writer of pair links and slots.
type Coordinator struct {
	logger *slog.Logger
	hooks  Hooks
	cmds   chan func()
	quit   chan struct{}
	once   sync.Once

	// owned by the run goroutine
	entries map[int]*entry
}

func New(logger *slog.Logger, hooks Hooks) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		logger:  logger,
		hooks:   hooks,
		cmds:    make(chan func()),
		quit:    make(chan struct{}),
		entries: map[int]*entry{},
	}
	go c.run()
	return c
}

func (c *Coordinator) run() {
	for {
		select {
		case fn := <-c.cmds:
			fn()
		case <-c.quit:
			return
		}
	}
}

// Close stops the coordinator goroutine.
func (c *Coordinator) Close() {
	c.once.Do(func() { close(c.quit) })
}

// do runs fn on the coordinator goroutine and waits for it.
func (c *Coordinator) do(fn func()) error {
	done := make(chan struct{})
	select {
	case c.cmds <- func() {
		defer close(done)
		fn()
	}:
	case <-c.quit:
		return ErrClosed
	}
	<-done
	return nil
}

// Add registers a controller and assigns it a slot.
func (c *Coordinator) Add(id int, m Member) int {
	slot := -1
	_ = c.do(func() {
		if e, ok := c.entries[id]; ok {
			slot = e.slot
			return
		}
		slot = c.allocate(m.Type())
		c.entries[id] = &entry{m: m, slot: slot}
	})
	c.logger.Debug("slot assigned", "id", id, "slot", slot)
	return slot
}

// Remove releases the slot of id and splits its pair.
func (c *Coordinator) Remove(id int) {
	peer := -1
	_ = c.do(func() {
		e, ok := c.entries[id]
		if !ok {
			return
		}
		if e.pair.Kind == Paired {
			peer = e.pair.Peer
			if p, ok := c.entries[peer]; ok {
				p.pair = PairState{}
			}
		}
		delete(c.entries, id)
	})
	if peer >= 0 && c.hooks.Split != nil {
		c.hooks.Split(id, peer)
	}
}

// Join links a and b. Join(a, a) marks a as a vertically held single
// Joy-Con. Invalid requests return false and change nothing.
func (c *Coordinator) Join(a, b int) bool {
	var ok, solo bool
	var primary, secondary int
	_ = c.do(func() {
		ea, aok := c.entries[a]
		if !aok || !ea.m.Type().IsJoycon() {
			return
		}
		if a == b {
			if ea.pair.Kind == Paired {
				return
			}
			solo = ea.pair.Kind == Unpaired
			ea.pair = PairState{Kind: SoloVertical}
			ok = true
			return
		}
		eb, bok := c.entries[b]
		if !bok || !eb.m.Type().IsJoycon() {
			return
		}
		if ea.m.Type() == eb.m.Type() {
			return
		}
		if eb.pair.Kind != Unpaired || eb.m.State() < joycon.StateAttached {
			return
		}
		if ea.pair.Kind == Paired {
			return
		}
		ea.pair = PairState{Kind: Paired, Peer: b}
		eb.pair = PairState{Kind: Paired, Peer: a}
		primary, secondary = a, b
		if eb.m.Type().IsLeft() {
			primary, secondary = b, a
		}
		ok = true
	})
	switch {
	case solo:
		if c.hooks.Solo != nil {
			c.hooks.Solo(a, true)
		}
	case ok && a != b:
		c.logger.Info("joy-cons joined", "primary", primary, "secondary", secondary)
		if c.hooks.Joined != nil {
			c.hooks.Joined(primary, secondary)
		}
	}
	return ok
}

// Split dissolves the pair or solo mode of a. It reports whether anything
// changed.
func (c *Coordinator) Split(a int) bool {
	var changed bool
	peer := -1
	_ = c.do(func() {
		e, ok := c.entries[a]
		if !ok || e.pair.Kind == Unpaired {
			return
		}
		if e.pair.Kind == Paired {
			peer = e.pair.Peer
			if p, ok := c.entries[peer]; ok {
				p.pair = PairState{}
			}
		}
		e.pair = PairState{}
		changed = true
	})
	switch {
	case peer >= 0:
		c.logger.Info("joy-cons split", "a", a, "b", peer)
		if c.hooks.Split != nil {
			c.hooks.Split(a, peer)
		}
	case changed && c.hooks.Solo != nil:
		c.hooks.Solo(a, false)
	}
	return changed
}

// State returns the pair state of id.
func (c *Coordinator) State(id int) PairState {
	var st PairState
	_ = c.do(func() {
		if e, ok := c.entries[id]; ok {
			st = e.pair
		}
	})
	return st
}

// IsJoined reports whether id is one half of a pair. Solo vertical
// Joy-Cons are not joined.
func (c *Coordinator) IsJoined(id int) bool {
	return c.State(id).Kind == Paired
}

// Peer returns the other half of a pair.
func (c *Coordinator) Peer(id int) (int, bool) {
	st := c.State(id)
	return st.Peer, st.Kind == Paired
}

// Primary reports whether id emits output for its pad: every controller
// except the right half of a pair.
func (c *Coordinator) Primary(id int) bool {
	primary := true
	_ = c.do(func() {
		e, ok := c.entries[id]
		if ok && e.pair.Kind == Paired {
			primary = e.m.Type().IsLeft()
		}
	})
	return primary
}

// Slot returns the slot of id, or -1.
func (c *Coordinator) Slot(id int) int {
	slot := -1
	_ = c.do(func() {
		if e, ok := c.entries[id]; ok {
			slot = e.slot
		}
	})
	return slot
}

// FindPartner returns an attached, unpaired Joy-Con of the opposite hand.
func (c *Coordinator) FindPartner(id int) (int, bool) {
	found, ok := -1, false
	_ = c.do(func() {
		e, eok := c.entries[id]
		if !eok || !e.m.Type().IsJoycon() {
			return
		}
		best := -1
		for oid, o := range c.entries {
			if oid == id || o.pair.Kind != Unpaired || !o.m.Type().IsJoycon() ||
				o.m.Type() == e.m.Type() || o.m.State() < joycon.StateAttached {
				continue
			}
			if best < 0 || o.slot < c.entries[best].slot {
				best = oid
			}
		}
		if best >= 0 {
			found, ok = best, true
		}
	})
	return found, ok
}

func (c *Coordinator) slotOwner() map[int]*entry {
	used := make(map[int]*entry, len(c.entries))
	for _, e := range c.entries {
		used[e.slot] = e
	}
	return used
}

// allocate picks a slot so that Joy-Con halves sit next to each other
// (left first). It must run on the coordinator goroutine.
func (c *Coordinator) allocate(t joycon.ControllerType) int {
	used := c.slotOwner()
	free := func(i int) bool {
		_, taken := used[i]
		return !taken
	}

	if t.IsJoycon() {
		for _, slot := range slices.Sorted(maps.Keys(used)) {
			e := used[slot]
			if e.pair.Kind == Paired {
				continue
			}
			switch {
			case t.IsLeft() && e.m.Type().IsRight() && slot-1 >= 0 && free(slot-1):
				return slot - 1
			case t.IsRight() && e.m.Type().IsLeft() && slot+1 < MaxSlots && free(slot+1):
				return slot + 1
			}
		}
	}

	for i := range MaxSlots {
		if !free(i) {
			continue
		}
		if !t.IsJoycon() {
			return i
		}
		neighbour := i + 1
		if t.IsRight() {
			neighbour = i - 1
		}
		if neighbour < 0 || neighbour >= MaxSlots || free(neighbour) {
			return i
		}
	}

	for i := 0; ; i++ {
		if free(i) {
			return i
		}
	}
}
