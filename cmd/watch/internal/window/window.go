package window

// HistoryLen is the fixed number of recent samples retained per symbol.
const HistoryLen = 30

type Direction int

const (
	Flat Direction = iota
	Up
	Down
)

// Window is a bounded rolling buffer of recent prices. Once capacity is
// exceeded the oldest sample is evicted first.
type Window struct {
	capacity int
	values   []float64
}

func New(capacity int) *Window {
	if capacity <= 0 {
		capacity = HistoryLen
	}
	return &Window{capacity: capacity}
}

func (w *Window) Push(price float64) {
	w.values = append(w.values, price)
	if len(w.values) > w.capacity {
		w.values = w.values[1:]
	}
}

func (w *Window) Len() int { return len(w.values) }

// Values returns a copy of the retained samples, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.values))
	copy(out, w.values)
	return out
}

func (w *Window) Latest() (float64, bool) {
	if len(w.values) == 0 {
		return 0, false
	}
	return w.values[len(w.values)-1], true
}

// Trend compares the newest retained sample to the oldest. A
// non-negative delta is Up, a negative one Down. Fewer than two samples
// is Flat.
func (w *Window) Trend() Direction {
	if len(w.values) < 2 {
		return Flat
	}
	if w.values[len(w.values)-1] >= w.values[0] {
		return Up
	}
	return Down
}

// Levels scales the retained window onto n discrete levels, 0 being the
// lowest, using min/max normalization. An empty window returns nil; an
// all-equal window maps to the middle level rather than dividing by
// zero.
func (w *Window) Levels(n int) []int {
	if n <= 0 || len(w.values) == 0 {
		return nil
	}

	min, max := w.values[0], w.values[0]
	for _, v := range w.values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	levels := make([]int, len(w.values))
	if max == min {
		for i := range levels {
			levels[i] = (n - 1) / 2
		}
		return levels
	}

	span := max - min
	for i, v := range w.values {
		level := int((v - min) / span * float64(n-1))
		if level > n-1 {
			level = n - 1
		}
		levels[i] = level
	}
	return levels
}
