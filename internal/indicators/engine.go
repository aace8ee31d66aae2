package indicators

import "sync"

// Values are the indicators computed for one symbol after an update.
type Values struct {
	SMAShort float64
	SMALong  float64
	RSI      float64
	ATR      float64
	Samples  int
}

// Ready reports whether every indicator had enough history.
func (v Values) Ready() bool {
	return v.SMALong > 0 && v.ATR > 0
}

// Engine maintains per-symbol price windows and calculates a few core indicators.
type Engine struct {
	mu      sync.Mutex
	prices  map[string][]float64
	window  int
	shortMA int
	longMA  int
	rsi     int
	atr     int
}

// NewEngine builds an indicator engine; window grows to fit the longest period.
func NewEngine(shortMA, longMA, rsiPeriod, atrPeriod, window int) *Engine {
	for _, p := range []int{longMA, rsiPeriod + 1, atrPeriod + 1} {
		if window < p {
			window = p
		}
	}
	return &Engine{
		prices:  make(map[string][]float64),
		window:  window,
		shortMA: shortMA,
		longMA:  longMA,
		rsi:     rsiPeriod,
		atr:     atrPeriod,
	}
}

// Update ingests a new price and returns the latest computed values.
func (e *Engine) Update(symbol string, price float64) Values {
	e.mu.Lock()
	defer e.mu.Unlock()

	arr := append(e.prices[symbol], price)
	if len(arr) > e.window {
		arr = arr[len(arr)-e.window:]
	}
	e.prices[symbol] = arr

	return Values{
		SMAShort: SMA(arr, e.shortMA),
		SMALong:  SMA(arr, e.longMA),
		RSI:      RSI(arr, e.rsi),
		ATR:      ATR(arr, e.atr),
		Samples:  len(arr),
	}
}
