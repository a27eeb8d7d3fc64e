package joycon

import (
	"math"
	"runtime"
	"sync/atomic"
)

// RumbleStop is sent for amplitude 0 and as the neutral rumble block of
// subcommand packets.
var RumbleStop = [8]byte{0x00, 0x01, 0x40, 0x40, 0x00, 0x01, 0x40, 0x40}

// Hardware frequency limits in Hz.
const (
	RumbleLowFreqMin  = 40.875885
	RumbleLowFreqMax  = 626.286133
	RumbleHighFreqMin = 81.75177
	RumbleHighFreqMax = 1252.572266
)

// RumbleCommand is one vibration request.
type RumbleCommand struct {
	LowFreq   float64
	HighFreq  float64
	Amplitude float64
}

// Encode returns the 8-byte rumble block for both actuators.
func (c RumbleCommand) Encode() [8]byte {
	return EncodeRumble(c.LowFreq, c.HighFreq, c.Amplitude)
}

// EncodeRumble encodes a frequency pair and amplitude. The amplitude curve
// is reverse engineered; the float32 stages and conversions reproduce the
// reference encoder bit for bit.
func EncodeRumble(lowFreq, highFreq, amp float64) [8]byte {
	if amp == 0 {
		return RumbleStop
	}
	lf32 := clampF32(float32(lowFreq), RumbleLowFreqMin, RumbleLowFreqMax)
	hf32 := clampF32(float32(highFreq), RumbleHighFreqMin, RumbleHighFreqMax)
	a := clampF32(float32(amp), 0, 1)

	hf := uint16((math.RoundToEven(32*math.Log2(float64(hf32*0.1))) - 0x60) * 4)
	lf := byte(math.RoundToEven(32*math.Log2(float64(lf32*0.1))) - 0x40)

	var hfAmp byte
	switch {
	case a == 0:
		hfAmp = 0
	case float64(a) < 0.117:
		hfAmp = truncByte(((math.Log2(float64(a*1000)) * 32) - 0x60) / (5 - math.Pow(float64(a), 2)) - 1)
	case float64(a) < 0.23:
		hfAmp = truncByte(((math.Log2(float64(a*1000)) * 32) - 0x60) - 0x5c)
	default:
		hfAmp = truncByte((((math.Log2(float64(a*1000)) * 32) - 0x60) * 2) - 0xf6)
	}

	lfAmp := uint16(math.RoundToEven(float64(hfAmp)) * .5)
	parity := lfAmp % 2
	if parity > 0 {
		lfAmp--
	}
	lfAmp >>= 1
	lfAmp += 0x40
	if parity > 0 {
		lfAmp |= 0x8000
	}

	var out [8]byte
	out[0] = byte(hf & 0xff)
	out[1] = byte(hf>>8) + hfAmp
	out[2] = byte(lfAmp>>8) + lf
	out[3] = byte(lfAmp & 0xff)
	copy(out[4:], out[:4])
	return out
}

func clampF32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// truncByte converts toward zero and wraps like an unchecked cast.
func truncByte(v float64) byte {
	return byte(int64(v))
}

// RumbleQueueSize is the capacity of a RumbleQueue.
const RumbleQueueSize = 15

// RumbleQueue is a bounded FIFO that drops the oldest command when full.
// Producers run on the sink feedback path and the consumer is the session
// send loop; a spin lock keeps both off the scheduler's blocking path.
type RumbleQueue struct {
	lock atomic.Bool
	buf  [RumbleQueueSize]RumbleCommand
	head int
	n    int
}

func (q *RumbleQueue) acquire() {
	for !q.lock.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (q *RumbleQueue) release() { q.lock.Store(false) }

// Enqueue appends c, discarding the oldest entry on overflow.
func (q *RumbleQueue) Enqueue(c RumbleCommand) {
	q.acquire()
	defer q.release()
	if q.n == len(q.buf) {
		q.head = (q.head + 1) % len(q.buf)
		q.n--
	}
	q.buf[(q.head+q.n)%len(q.buf)] = c
	q.n++
}

// TryDequeue pops the oldest command.
func (q *RumbleQueue) TryDequeue() (RumbleCommand, bool) {
	q.acquire()
	defer q.release()
	if q.n == 0 {
		return RumbleCommand{}, false
	}
	c := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return c, true
}

func (q *RumbleQueue) Len() int {
	q.acquire()
	defer q.release()
	return q.n
}

func (q *RumbleQueue) Clear() {
	q.acquire()
	defer q.release()
	q.head, q.n = 0, 0
}
