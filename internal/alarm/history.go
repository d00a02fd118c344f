package alarm

// HistorySize is the number of conditioned samples kept per point.
const HistorySize = 20

type history struct {
	buf   [HistorySize]float32
	index int
	count int
}

func (h *history) push(v float32) {
	h.buf[h.index] = v
	h.index = (h.index + 1) % HistorySize
	if h.count < HistorySize {
		h.count++
	}
}

// back returns the sample n positions before the newest; back(0) is the
// newest. Caller checks n < count.
func (h *history) back(n int) float32 {
	i := (h.index - 1 - n + 2*HistorySize) % HistorySize
	return h.buf[i]
}

// values returns the samples oldest first.
func (h *history) values() []float32 {
	out := make([]float32, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.back(h.count - 1 - i)
	}
	return out
}
