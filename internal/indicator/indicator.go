// Package indicator computes technical indicators over full close-price
// sequences. All functions return one output value per fully-formed window
// and an empty slice when the input is too short, so callers can always
// read the latest value from the end of the result.
package indicator

// SMA computes the simple moving average. The result has
// len(prices)-period+1 values, one per complete window.
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}

	result := make([]float64, 0, len(prices)-period+1)

	var sum float64
	for i, p := range prices {
		sum += p
		if i >= period {
			sum -= prices[i-period]
		}
		if i >= period-1 {
			result = append(result, sum/float64(period))
		}
	}

	return result
}

// EMA computes the exponential moving average with multiplier 2/(period+1).
// The first value is the SMA of the first period prices; each subsequent
// price folds into the running average. The result has
// len(prices)-period+1 values.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}

	multiplier := 2.0 / (float64(period) + 1.0)
	result := make([]float64, 0, len(prices)-period+1)

	var sum float64
	for _, p := range prices[:period] {
		sum += p
	}
	result = append(result, sum/float64(period))

	for i := period; i < len(prices); i++ {
		prev := result[len(result)-1]
		result = append(result, (prices[i]-prev)*multiplier+prev)
	}

	return result
}

// rsiEpsilon guards the RS division when a window has no losses.
const rsiEpsilon = 0.00001

// RSI computes the relative strength index with Wilder smoothing. The first
// value averages the first period price changes; subsequent values blend
// each new change with weight 1/period. The result has len(prices)-period
// values. A loss-free window saturates near 100 rather than dividing by zero.
func RSI(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) <= period {
		return nil
	}

	gains := make([]float64, 0, len(prices)-1)
	losses := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}

	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	result := make([]float64, 0, len(prices)-period)
	result = append(result, rsiValue(avgGain, avgLoss))

	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*(float64(period)-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*(float64(period)-1) + losses[i]) / float64(period)
		result = append(result, rsiValue(avgGain, avgLoss))
	}

	return result
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss < rsiEpsilon {
		avgLoss = rsiEpsilon
	}
	return 100.0 - (100.0 / (1.0 + avgGain/avgLoss))
}

// MACDResult holds the three MACD output series. Line starts where the slow
// EMA becomes defined. Signal and Histogram start signalPeriod-1 entries
// later; Histogram[i] pairs with Signal[i], not Line[i].
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes the MACD line (fast EMA minus slow EMA, aligned to the slow
// EMA), the signal line (EMA of the MACD line) and the histogram (MACD line
// minus signal line, aligned to the signal line). Returns zero-value result
// when prices are too short for the slow period.
func MACD(prices []float64, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	fastEMA := EMA(prices, fastPeriod)
	slowEMA := EMA(prices, slowPeriod)

	if len(fastEMA) == 0 || len(slowEMA) == 0 {
		return MACDResult{}
	}

	// The fast EMA series is longer; drop its head to align with the slow EMA
	adjustedFast := fastEMA[len(fastEMA)-len(slowEMA):]

	line := make([]float64, len(slowEMA))
	for i := range slowEMA {
		line[i] = adjustedFast[i] - slowEMA[i]
	}

	signal := EMA(line, signalPeriod)

	adjustedLine := line[len(line)-len(signal):]
	histogram := make([]float64, len(signal))
	for i := range signal {
		histogram[i] = adjustedLine[i] - signal[i]
	}

	return MACDResult{
		Line:      line,
		Signal:    signal,
		Histogram: histogram,
	}
}
