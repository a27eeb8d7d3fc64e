package pairing

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/joybridge/internal/joycon"
)

type fakeMember struct {
	t  joycon.ControllerType
	st joycon.State
}

func (f fakeMember) Type() joycon.ControllerType { return f.t }
func (f fakeMember) State() joycon.State { return f.st }

var (
	left  = fakeMember{joycon.TypeJoyconLeft, joycon.StateAttached}
	right = fakeMember{joycon.TypeJoyconRight, joycon.StateIMUDataOk}
	pro   = fakeMember{joycon.TypePro, joycon.StateAttached}
)

func newCoordinator(t *testing.T, hooks Hooks) *Coordinator {
	t.Helper()
	c := New(slog.New(slog.DiscardHandler), hooks)
	t.Cleanup(c.Close)
	return c
}

func TestJoinSymmetricAndSplit(t *testing.T) {
	var joined, split [][2]int
	c := newCoordinator(t, Hooks{
		Joined: func(p, s int) { joined = append(joined, [2]int{p, s}) },
		Split:  func(a, b int) { split = append(split, [2]int{a, b}) },
	})
	c.Add(1, right)
	c.Add(2, left)

	require.True(t, c.Join(1, 2))
	assert.Equal(t, PairState{Kind: Paired, Peer: 2}, c.State(1))
	assert.Equal(t, PairState{Kind: Paired, Peer: 1}, c.State(2))
	assert.True(t, c.IsJoined(1))
	assert.True(t, c.IsJoined(2))
	assert.True(t, c.Primary(2))
	assert.False(t, c.Primary(1))
	assert.Equal(t, [][2]int{{2, 1}}, joined)

	assert.False(t, c.Join(2, 1), "already paired")

	require.True(t, c.Split(1))
	assert.Equal(t, PairState{}, c.State(1))
	assert.Equal(t, PairState{}, c.State(2))
	assert.Equal(t, [][2]int{{1, 2}}, split)
	assert.False(t, c.Split(1))
}

func TestSelfJoinIsSoloVertical(t *testing.T) {
	c := newCoordinator(t, Hooks{})
	c.Add(1, left)

	assert.True(t, c.Join(1, 1))
	assert.Equal(t, SoloVertical, c.State(1).Kind)
	assert.False(t, c.IsJoined(1))
	assert.True(t, c.Primary(1))

	// A solo Joy-Con may still be joined to a partner.
	c.Add(2, right)
	assert.True(t, c.Join(1, 2))
	assert.True(t, c.IsJoined(1))
}

func TestSoloModeHook(t *testing.T) {
	type change struct {
		id       int
		vertical bool
	}
	var got []change
	c := newCoordinator(t, Hooks{Solo: func(id int, vertical bool) { got = append(got, change{id, vertical}) }})
	c.Add(1, left)

	require.True(t, c.Join(1, 1))
	require.True(t, c.Join(1, 1), "already vertical")
	require.True(t, c.Split(1))
	assert.False(t, c.Split(1), "nothing left to split")
	assert.Equal(t, []change{{1, true}, {1, false}}, got)
}

func TestJoinRejections(t *testing.T) {
	c := newCoordinator(t, Hooks{})
	c.Add(1, left)
	c.Add(2, fakeMember{joycon.TypeJoyconLeft, joycon.StateAttached})
	c.Add(3, pro)
	c.Add(4, fakeMember{joycon.TypeJoyconRight, joycon.StateErrored})
	c.Add(5, right)

	tests := []struct {
		name string
		a, b int
	}{
		{"same handedness", 1, 2},
		{"not a joy-con", 1, 3},
		{"pro self join", 3, 3},
		{"partner not attached", 1, 4},
		{"unknown id", 1, 99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, c.Join(tt.a, tt.b))
			assert.Equal(t, PairState{}, c.State(tt.a))
			assert.Equal(t, PairState{}, c.State(tt.b))
		})
	}

	require.True(t, c.Join(5, 1))
	c.Add(6, fakeMember{joycon.TypeJoyconLeft, joycon.StateAttached})
	assert.False(t, c.Join(6, 5), "partner already paired")
	assert.True(t, c.Join(6, 6))
	assert.False(t, c.IsJoined(6))
}

func TestRemoveSplitsPeer(t *testing.T) {
	var split [][2]int
	c := newCoordinator(t, Hooks{Split: func(a, b int) { split = append(split, [2]int{a, b}) }})
	c.Add(1, left)
	c.Add(2, right)
	require.True(t, c.Join(1, 2))

	c.Remove(2)
	assert.Equal(t, PairState{}, c.State(1))
	assert.Equal(t, -1, c.Slot(2))
	assert.Equal(t, [][2]int{{2, 1}}, split)
}

func TestSlotAllocationAdjacent(t *testing.T) {
	c := newCoordinator(t, Hooks{})

	assert.Equal(t, 0, c.Add(1, left))
	assert.Equal(t, 1, c.Add(2, right), "right takes the slot after an unjoined left")
	assert.Equal(t, 2, c.Add(3, pro))
	assert.Equal(t, 4, c.Add(4, right), "right needs a free slot before it")
	assert.Equal(t, 3, c.Add(5, left), "left takes the slot before an unjoined right")
	assert.Equal(t, 5, c.Add(6, left))

	c.Remove(1)
	assert.Equal(t, 0, c.Add(7, pro))
}

func TestSlotAllocationOverflow(t *testing.T) {
	c := newCoordinator(t, Hooks{})
	for i := range MaxSlots {
		assert.Equal(t, i, c.Add(i, pro))
	}
	assert.Equal(t, MaxSlots, c.Add(100, left))
	assert.Equal(t, MaxSlots+1, c.Add(101, pro))
}

func TestFindPartner(t *testing.T) {
	c := newCoordinator(t, Hooks{})
	c.Add(1, left)
	_, ok := c.FindPartner(1)
	assert.False(t, ok)

	c.Add(2, right)
	id, ok := c.FindPartner(1)
	require.True(t, ok)
	assert.Equal(t, 2, id)

	_, ok = c.FindPartner(99)
	assert.False(t, ok)
}

func TestClosed(t *testing.T) {
	c := New(nil, Hooks{})
	c.Close()
	assert.False(t, c.Join(1, 1))
	assert.Equal(t, -1, c.Slot(1))
}
