package log

import (
	"encoding/hex"
	"io"
	"strconv"
	"sync"
	"time"
)

// RawLogger traces HID reports. in is true for reports read from the
// controller.
type RawLogger interface {
	Log(in bool, data []byte)
}

type rawLogger struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
	buf []byte
}

// NewRaw returns a RawLogger writing one line per report to w. A nil
// writer discards everything.
func NewRaw(w io.Writer) RawLogger {
	return &rawLogger{w: w, now: time.Now}
}

var reportNames = map[byte]string{
	0x01: "rumble+subcmd",
	0x10: "rumble",
	0x21: "subcmd-reply",
	0x30: "full",
	0x3F: "simple",
	0x80: "usb-cmd",
	0x81: "usb-reply",
}

func reportName(id byte) string {
	if n, ok := reportNames[id]; ok {
		return n
	}
	return "0x" + hex.EncodeToString([]byte{id})
}

func (r *rawLogger) Log(in bool, data []byte) {
	if r.w == nil || len(data) == 0 {
		return
	}
	dir := "out"
	if in {
		dir = "in "
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.now().AppendFormat(r.buf[:0], "15:04:05.000")
	b = append(b, ' ')
	b = append(b, dir...)
	b = append(b, ' ')
	b = append(b, reportName(data[0])...)
	b = append(b, " ["...)
	b = strconv.AppendInt(b, int64(len(data)), 10)
	b = append(b, "] "...)
	for i, c := range data {
		if i > 0 {
			b = append(b, ' ')
		}
		b = hex.AppendEncode(b, []byte{c})
	}
	b = append(b, '\n')
	_, _ = r.w.Write(b)
	r.buf = b
}
