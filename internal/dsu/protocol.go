// Package dsu serves controller motion over the cemuhook DSU UDP protocol.
//
// Every datagram starts with a 16 byte header followed by a 4 byte message
// type:
//
//	0  magic "DSUC" (client) or "DSUS" (server)
//	4  uint16 protocol version
//	6  uint16 length of everything after the header
//	8  uint32 CRC32 (IEEE) of the datagram with this field zeroed
//	12 uint32 sender id
//	16 uint32 message type
package dsu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"net"
)

const (
	ProtocolVersion = 1001
	DefaultAddr     = "127.0.0.1:26760"
	// MaxPorts is the number of pad slots a client may ask about at once.
	MaxPorts = 4

	headerLen  = 16
	messageLen = headerLen + 4

	MsgVersion  uint32 = 0x100000
	MsgPortInfo uint32 = 0x100001
	MsgPadData  uint32 = 0x100002

	magicClient = "DSUC"
	magicServer = "DSUS"

	slotInfoLen = 11
	padDataLen  = 80
)

var (
	ErrShort    = errors.New("datagram too short")
	ErrMagic    = errors.New("bad magic")
	ErrVersion  = errors.New("unsupported protocol version")
	ErrLength   = errors.New("bad length")
	ErrChecksum = errors.New("checksum mismatch")
)

// Slot states.
const (
	StateDisconnected uint8 = 0
	StateReserved     uint8 = 1
	StateConnected    uint8 = 2
)

// Connection types.
const (
	ConnNone uint8 = 0
	ConnUSB  uint8 = 1
	ConnBT   uint8 = 2
)

const ModelDS4 uint8 = 2

// Battery values.
const (
	BatteryNone     uint8 = 0x00
	BatteryDying    uint8 = 0x01
	BatteryFull     uint8 = 0x05
	BatteryCharging uint8 = 0xEE
	BatteryCharged  uint8 = 0xEF
)

var le = binary.LittleEndian

// BatteryStatus converts a 0..4 level and charging flag.
func BatteryStatus(level uint8, charging bool) uint8 {
	switch {
	case charging && level >= 4:
		return BatteryCharged
	case charging:
		return BatteryCharging
	}
	return BatteryDying + min(level, 4)
}

// SlotInfo describes one port.
type SlotInfo struct {
	Slot       uint8
	State      uint8
	Model      uint8
	Connection uint8
	MAC        net.HardwareAddr
	Battery    uint8
}

func (s SlotInfo) put(b []byte) {
	b[0], b[1], b[2], b[3] = s.Slot, s.State, s.Model, s.Connection
	copy(b[4:10], s.MAC)
	b[10] = s.Battery
}

// Motion is one IMU sample in client units.
type Motion struct {
	// Timestamp in microseconds.
	Timestamp uint64
	Accel     [3]float32 // g
	Gyro      [3]float32 // deg/s pitch, yaw, roll
}

// Buttons of the first PadData mask byte.
const (
	Btn1Share   uint8 = 1 << 0
	Btn1L3      uint8 = 1 << 1
	Btn1R3      uint8 = 1 << 2
	Btn1Options uint8 = 1 << 3
	Btn1Up      uint8 = 1 << 4
	Btn1Right   uint8 = 1 << 5
	Btn1Down    uint8 = 1 << 6
	Btn1Left    uint8 = 1 << 7
)

// Buttons of the second PadData mask byte.
const (
	Btn2L2       uint8 = 1 << 0
	Btn2R2       uint8 = 1 << 1
	Btn2L1       uint8 = 1 << 2
	Btn2R1       uint8 = 1 << 3
	Btn2Triangle uint8 = 1 << 4
	Btn2Circle   uint8 = 1 << 5
	Btn2Cross    uint8 = 1 << 6
	Btn2Square   uint8 = 1 << 7
)

// Frame is the pad state published for one input report.
type Frame struct {
	Info           SlotInfo
	Buttons1       uint8
	Buttons2       uint8
	PS, Touch      bool
	LX, LY, RX, RY uint8
	L2, R2         uint8
	Motion         []Motion
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func pressure(mask, bit uint8) uint8 {
	if mask&bit != 0 {
		return 0xFF
	}
	return 0
}

// padData encodes the PadData body for one motion sample.
func padData(f *Frame, counter uint32, m Motion) []byte {
	b := make([]byte, padDataLen)
	f.Info.put(b)
	b[11] = boolByte(f.Info.State == StateConnected)
	le.PutUint32(b[12:], counter)
	b[16] = f.Buttons1
	b[17] = f.Buttons2
	b[18] = boolByte(f.PS)
	b[19] = boolByte(f.Touch)
	b[20], b[21], b[22], b[23] = f.LX, f.LY, f.RX, f.RY

	b[24] = pressure(f.Buttons1, Btn1Left)
	b[25] = pressure(f.Buttons1, Btn1Down)
	b[26] = pressure(f.Buttons1, Btn1Right)
	b[27] = pressure(f.Buttons1, Btn1Up)
	b[28] = pressure(f.Buttons2, Btn2Square)
	b[29] = pressure(f.Buttons2, Btn2Cross)
	b[30] = pressure(f.Buttons2, Btn2Circle)
	b[31] = pressure(f.Buttons2, Btn2Triangle)
	b[32] = pressure(f.Buttons2, Btn2R1)
	b[33] = pressure(f.Buttons2, Btn2L1)
	b[34] = f.R2
	b[35] = f.L2
	// 36..47 touch points stay zero

	le.PutUint64(b[48:], m.Timestamp)
	for i := range 3 {
		le.PutUint32(b[56+i*4:], math.Float32bits(m.Accel[i]))
		le.PutUint32(b[68+i*4:], math.Float32bits(m.Gyro[i]))
	}
	return b
}

func portInfo(s SlotInfo) []byte {
	b := make([]byte, slotInfoLen+1)
	s.put(b)
	return b
}

func versionReply() []byte {
	b := make([]byte, 2)
	le.PutUint16(b, ProtocolVersion)
	return b
}

// encode frames payload as a server datagram.
func encode(id, msgType uint32, payload []byte) []byte {
	b := make([]byte, messageLen+len(payload))
	copy(b, magicServer)
	le.PutUint16(b[4:], ProtocolVersion)
	le.PutUint16(b[6:], uint16(len(payload)+4))
	le.PutUint32(b[12:], id)
	le.PutUint32(b[16:], msgType)
	copy(b[messageLen:], payload)
	le.PutUint32(b[8:], crc32.ChecksumIEEE(b))
	return b
}

// checksum computes the CRC with the checksum field treated as zero.
func checksum(b []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write(b[:8])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(b[12:])
	return h.Sum32()
}

// decode validates a client datagram and returns its type and payload.
func decode(b []byte) (msgType uint32, payload []byte, err error) {
	if len(b) < messageLen {
		return 0, nil, ErrShort
	}
	if string(b[:4]) != magicClient {
		return 0, nil, ErrMagic
	}
	if v := le.Uint16(b[4:]); v > ProtocolVersion {
		return 0, nil, fmt.Errorf("%w: %d", ErrVersion, v)
	}
	length := int(le.Uint16(b[6:]))
	if length < 4 || length > len(b)-headerLen {
		return 0, nil, fmt.Errorf("%w: %d", ErrLength, length)
	}
	b = b[:headerLen+length]
	if got, want := le.Uint32(b[8:]), checksum(b); got != want {
		return 0, nil, ErrChecksum
	}
	return le.Uint32(b[16:]), b[messageLen:], nil
}
