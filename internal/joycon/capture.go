package joycon

import "sync"

// Capture collects raw stick samples while the user leaves the sticks
// untouched, then reduces them to per-channel medians.
type Capture struct {
	mu      sync.Mutex
	active  bool
	samples [4][]float64 // left x, left y, right x, right y
}

// CaptureResult holds the median of every stick channel.
type CaptureResult struct {
	Left, Right StickRaw
	Samples     int
}

func (c *Capture) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.samples {
		c.samples[i] = c.samples[i][:0]
	}
	c.active = true
}

func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Add records one sample if a capture is running.
func (c *Capture) Add(left, right StickRaw) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.samples[0] = append(c.samples[0], float64(left.X))
	c.samples[1] = append(c.samples[1], float64(left.Y))
	c.samples[2] = append(c.samples[2], float64(right.X))
	c.samples[3] = append(c.samples[3], float64(right.Y))
}

// Stop ends the capture. ok is false if no capture was running or no
// samples were taken.
func (c *Capture) Stop() (res CaptureResult, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return res, false
	}
	c.active = false
	n := len(c.samples[0])
	if n == 0 {
		return res, false
	}
	var med [4]uint16
	for i := range c.samples {
		med[i] = uint16(Median(c.samples[i]) + 0.5)
	}
	return CaptureResult{
		Left:    StickRaw{X: med[0], Y: med[1]},
		Right:   StickRaw{X: med[2], Y: med[3]},
		Samples: n,
	}, true
}

// Median returns the median of xs without sorting it fully. For an even
// count it is the mean of the two central order statistics. xs is not
// modified.
func Median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	buf := append([]float64(nil), xs...)
	mid := n / 2
	hi := selectK(buf, mid)
	if n%2 == 1 {
		return hi
	}
	// After selection every element left of mid is <= buf[mid].
	lo := buf[0]
	for _, v := range buf[1:mid] {
		if v > lo {
			lo = v
		}
	}
	return (lo + hi) / 2
}

// selectK partially orders a so a[k] holds the k-th smallest value
// (Hoare's quickselect, median-of-three pivot).
func selectK(a []float64, k int) float64 {
	lo, hi := 0, len(a)-1
	for lo < hi {
		mid := lo + (hi-lo)/2
		if a[mid] < a[lo] {
			a[mid], a[lo] = a[lo], a[mid]
		}
		if a[hi] < a[lo] {
			a[hi], a[lo] = a[lo], a[hi]
		}
		if a[hi] < a[mid] {
			a[hi], a[mid] = a[mid], a[hi]
		}
		pivot := a[mid]
		i, j := lo, hi
		for i <= j {
			for a[i] < pivot {
				i++
			}
			for a[j] > pivot {
				j--
			}
			if i <= j {
				a[i], a[j] = a[j], a[i]
				i++
				j--
			}
		}
		switch {
		case k <= j:
			hi = j
		case k >= i:
			lo = i
		default:
			return a[k]
		}
	}
	return a[k]
}
