package signal

// FilterState is the ring buffer behind the simple moving average.
// The zero value is ready to use.
type FilterState struct {
	buf   [MaxSMAWindow]float32
	index int
	count int
	sum   float32
}

// Push adds sample and returns the mean of the samples currently held.
// window is clamped to [1, MaxSMAWindow] and must stay the same for the
// life of the state; the IO manager allocates a fresh state per point on
// every configure.
func (f *FilterState) Push(sample float32, window int) float32 {
	if window > MaxSMAWindow {
		window = MaxSMAWindow
	}
	if window < 1 {
		window = 1
	}

	if f.count >= window {
		f.sum -= f.buf[f.index]
	}

	f.buf[f.index] = sample
	f.sum += sample

	if f.count < window {
		f.count++
	}
	f.index = (f.index + 1) % window

	return f.sum / float32(f.count)
}

// Len returns the number of samples in the window.
func (f *FilterState) Len() int {
	return f.count
}
