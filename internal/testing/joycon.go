package testing

import (
	"encoding/binary"
	"sync"
)

// Controller emulates the subcommand side of a Switch controller.
type Controller struct {
	mu sync.Mutex
	// DeviceType is the type byte of the device info reply (1 L, 2 R, 3 Pro).
	DeviceType byte
	MAC        [6]byte
	SPI        map[uint32][]byte
	// Silent subcommands get no reply.
	Silent map[byte]bool
	subs   []byte
}

// Subcommands returns the opcodes received so far.
func (c *Controller) Subcommands() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.subs...)
}

// Respond implements Responder.
func (c *Controller) Respond(out []byte) [][]byte {
	if len(out) == 0 {
		return nil
	}
	switch out[0] {
	case 0x80:
		if len(out) < 2 || out[1] == 0x04 {
			return nil
		}
		reply := make([]byte, 64)
		reply[0], reply[1] = 0x81, out[1]
		if out[1] == 0x01 {
			for i := range 6 {
				reply[4+i] = c.MAC[5-i]
			}
		}
		return [][]byte{reply}
	case 0x01:
	default:
		return nil
	}
	if len(out) < 11 {
		return nil
	}
	sub := out[10]
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	silent := c.Silent[sub]
	c.mu.Unlock()
	if silent {
		return nil
	}

	reply := make([]byte, 49)
	reply[0] = 0x21
	reply[13] = 0x80
	reply[14] = sub
	switch sub {
	case 0x02:
		reply[13] = 0x82
		reply[15], reply[16] = 4, 33
		reply[17] = c.DeviceType
		reply[18] = 0x02
		copy(reply[19:25], c.MAC[:])
	case 0x10:
		reply[13] = 0x90
		addr := binary.LittleEndian.Uint32(out[11:15])
		n := out[15]
		copy(reply[15:20], out[11:16])
		data := c.SPI[addr]
		for i := range int(n) {
			v := byte(0xFF)
			if i < len(data) {
				v = data[i]
			}
			if 20+i < len(reply) {
				reply[20+i] = v
			}
		}
	}
	return [][]byte{reply}
}

// FullReport builds a 0x30 report. buttons is (right, shared, left); stick
// values are 12 bit.
func FullReport(timer byte, buttons [3]byte, lx, ly, rx, ry uint16, imu [3][6]int16) []byte {
	b := make([]byte, 49)
	b[0] = 0x30
	b[1] = timer
	b[2] = 0x8E
	b[3], b[4], b[5] = buttons[0], buttons[1], buttons[2]
	packStick(b[6:9], lx, ly)
	packStick(b[9:12], rx, ry)
	for i, s := range imu {
		for j, v := range s {
			binary.LittleEndian.PutUint16(b[13+i*12+j*2:], uint16(v))
		}
	}
	return b
}

func packStick(b []byte, x, y uint16) {
	b[0] = byte(x)
	b[1] = byte(x>>8)&0x0F | byte(y<<4)
	b[2] = byte(y >> 4)
}
