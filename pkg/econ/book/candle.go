package book

// Candle is one day's OHLCV record for an item.
type Candle struct {
	Day    uint64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// update folds one trade into the candle.
func (c *Candle) update(price, qty float64) {
	if c.Volume == 0 {
		c.Open = price
		c.High = price
		c.Low = price
	}
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
	c.Volume += qty
}

// candleHistory keeps the open candle plus a bounded closed history.
type candleHistory struct {
	current Candle
	closed  []Candle
	cap     int
}

func newCandleHistory(cap int) *candleHistory {
	if cap <= 0 {
		cap = 1
	}
	return &candleHistory{cap: cap}
}

func (h *candleHistory) record(day uint64, price, qty float64) {
	if day != h.current.Day {
		h.rollTo(day)
	}
	h.current.update(price, qty)
}

// rollTo closes the current candle (if it traded) and opens day.
func (h *candleHistory) rollTo(day uint64) {
	if h.current.Volume > 0 {
		h.closed = append(h.closed, h.current)
		if len(h.closed) > h.cap {
			h.closed = h.closed[len(h.closed)-h.cap:]
		}
	}
	h.current = Candle{Day: day}
}

// History returns closed candles, oldest first.
func (h *candleHistory) History() []Candle { return h.closed }

// Current returns the open candle.
func (h *candleHistory) Current() Candle { return h.current }
