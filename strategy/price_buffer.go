package strategy

// priceBuffer keeps the most recent prices. The session uses it for the
// status snapshot and the trend filter uses it as a fallback when the
// indicators have not warmed up.
type priceBuffer struct {
	max int
	buf []float64
}

func newPriceBuffer(max int) *priceBuffer {
	if max <= 0 {
		max = 16
	}
	return &priceBuffer{max: max}
}

func (p *priceBuffer) Add(v float64) {
	p.buf = append(p.buf, v)
	if len(p.buf) > p.max {
		p.buf = p.buf[len(p.buf)-p.max:]
	}
}

func (p *priceBuffer) Values() []float64 {
	out := make([]float64, len(p.buf))
	copy(out, p.buf)
	return out
}

func (p *priceBuffer) Len() int { return len(p.buf) }

func (p *priceBuffer) Last() float64 {
	if len(p.buf) == 0 {
		return 0
	}
	return p.buf[len(p.buf)-1]
}

func (p *priceBuffer) Reset() { p.buf = p.buf[:0] }

// tail returns the last n moves' worth of prices, or nil with fewer than
// two prices.
func (p *priceBuffer) tail(n int) []float64 {
	if len(p.buf) < 2 {
		return nil
	}
	if n >= len(p.buf) {
		n = len(p.buf) - 1
	}
	return p.buf[len(p.buf)-n-1:]
}

// Trend is +1 when most of the last six moves were up, -1 when most were
// down, 0 otherwise.
func (p *priceBuffer) Trend() int {
	w := p.tail(6)
	if w == nil {
		return 0
	}
	net := 0
	for i := 1; i < len(w); i++ {
		if d := w[i] - w[i-1]; d > 0 {
			net++
		} else if d < 0 {
			net--
		}
	}
	need := max((len(w)-1)/3, 2)
	if net >= need {
		return 1
	}
	if net <= -need {
		return -1
	}
	return 0
}

// Slope is the least-squares slope over the last nine prices, per tick.
func (p *priceBuffer) Slope() float64 {
	w := p.tail(8)
	if w == nil {
		return 0
	}
	n := float64(len(w))
	meanX := (n - 1) / 2
	var meanY float64
	for _, y := range w {
		meanY += y
	}
	meanY /= n
	var cov, varX float64
	for i, y := range w {
		dx := float64(i) - meanX
		cov += dx * (y - meanY)
		varX += dx * dx
	}
	return cov / varX
}
