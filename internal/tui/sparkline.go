package tui

// sparkBlocks holds the eight block heights used by Sparkline, lowest first.
const sparkBlocks = "▁▂▃▄▅▆▇█"

// brailleBase is the empty braille cell. Each cell is 2 dots wide and 4
// dots tall; brailleBit[col][row] is the bit lighting that dot.
const brailleBase rune = 0x2800

var brailleBit = [2][4]rune{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

// History keeps the most recent utilization samples of one metric, oldest
// first. It never grows past its capacity.
type History struct {
	samples []float64
	limit   int
}

// NewHistory returns an empty History holding at most limit samples.
func NewHistory(limit int) *History {
	return &History{limit: max(limit, 1)}
}

// Add appends a sample and drops the oldest one when full.
func (h *History) Add(v float64) {
	if len(h.samples) == h.limit {
		copy(h.samples, h.samples[1:])
		h.samples = h.samples[:h.limit-1]
	}
	h.samples = append(h.samples, v)
}

func (h *History) Len() int      { return len(h.samples) }
func (h *History) Capacity() int { return h.limit }

// Latest returns the newest sample, 0 when empty.
func (h *History) Latest() float64 {
	if len(h.samples) == 0 {
		return 0
	}
	return h.samples[len(h.samples)-1]
}

// Values returns a copy of the samples, nil when empty.
func (h *History) Values() []float64 {
	if len(h.samples) == 0 {
		return nil
	}
	return append([]float64(nil), h.samples...)
}

// Tail returns at most n of the newest samples.
func (h *History) Tail(n int) []float64 {
	v := h.Values()
	if n >= 0 && len(v) > n {
		return v[len(v)-n:]
	}
	return v
}

// SetCapacity changes the limit, keeping the newest samples that still fit.
func (h *History) SetCapacity(limit int) {
	h.limit = max(limit, 1)
	if over := len(h.samples) - h.limit; over > 0 {
		h.samples = append(h.samples[:0], h.samples[over:]...)
	}
}

// Peak returns the highest sample, 0 when empty.
func (h *History) Peak() float64 {
	if len(h.samples) == 0 {
		return 0
	}
	p := h.samples[0]
	for _, v := range h.samples[1:] {
		p = max(p, v)
	}
	return p
}

// Average returns the arithmetic mean, 0 when empty.
func (h *History) Average() float64 {
	if len(h.samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range h.samples {
		sum += v
	}
	return sum / float64(len(h.samples))
}

// clampPercent bounds v to [0, 100].
func clampPercent(v float64) float64 {
	return min(max(v, 0), 100)
}

// Sparkline renders one block per percentage, taller for higher values.
func Sparkline(values []float64) string {
	blocks := []rune(sparkBlocks)
	top := len(blocks) - 1
	out := make([]rune, 0, len(values))
	for _, v := range values {
		out = append(out, blocks[int(clampPercent(v)/100*float64(top))])
	}
	return string(out)
}

// BrailleChart plots percentages on rows x width braille cells. Each cell
// takes two samples, so the chart shows the newest 2*width values,
// right-aligned.
func BrailleChart(values []float64, width, rows int) []string {
	if width <= 0 || rows <= 0 || len(values) == 0 {
		return nil
	}
	dotsHigh, dotsWide := rows*4, width*2
	if len(values) > dotsWide {
		values = values[len(values)-dotsWide:]
	}

	cells := make([][]rune, rows)
	for r := range cells {
		cells[r] = make([]rune, width)
		for c := range cells[r] {
			cells[r][c] = brailleBase
		}
	}

	offset := dotsWide - len(values)
	for i, v := range values {
		x := offset + i
		y := dotsHigh - 1 - int(clampPercent(v)/100*float64(dotsHigh-1))
		cells[y/4][x/2] |= brailleBit[x%2][y%4]
	}

	lines := make([]string, rows)
	for r, row := range cells {
		lines[r] = string(row)
	}
	return lines
}
