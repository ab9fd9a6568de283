package indicators

// RSINeutral is reported until the oscillator has period price changes.
const RSINeutral = 50.0

// RSI is Wilder's relative strength index, maintained incrementally.
type RSI struct {
	period  int
	count   int
	prev    float64
	sumGain float64
	sumLoss float64
	avgGain float64
	avgLoss float64
}

func NewRSI(period int) *RSI {
	if period < 1 {
		period = 14
	}
	return &RSI{period: period}
}

// Update folds a sealed close into the oscillator.
func (r *RSI) Update(close float64) {
	if r.count == 0 {
		r.prev = close
		r.count = 1
		return
	}
	change := close - r.prev
	r.prev = close
	r.count++

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	p := float64(r.period)
	changes := r.count - 1
	if changes <= r.period {
		r.sumGain += gain
		r.sumLoss += loss
		if changes == r.period {
			r.avgGain = r.sumGain / p
			r.avgLoss = r.sumLoss / p
		}
		return
	}
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
}

// Peek previews the value with a forming close.
func (r *RSI) Peek(close float64) float64 {
	cp := *r
	cp.Update(close)
	return cp.Value()
}

func (r *RSI) Ready() bool { return r.count-1 >= r.period }

func (r *RSI) Value() float64 {
	if !r.Ready() {
		return RSINeutral
	}
	if r.avgLoss == 0 {
		// flat closes carry no momentum
		if r.avgGain == 0 {
			return RSINeutral
		}
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}
