package indicator

import "math"

// SMA calculates Simple Moving Average
// Returns slice of length: len(prices) - period + 1
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)

	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	result = append(result, sum/float64(period))

	// Rolling calculation
	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		result = append(result, sum/float64(period))
	}

	return result
}

// EMA calculates Exponential Moving Average, seeded with the SMA of the
// first period values.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)
	multiplier := 2.0 / float64(period+1)

	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)
	result = append(result, ema)

	for i := period; i < len(prices); i++ {
		ema = (prices[i]-ema)*multiplier + ema
		result = append(result, ema)
	}

	return result
}

// RollingStd calculates the rolling sample standard deviation.
// Returns slice of length: len(prices) - period + 1
func RollingStd(prices []float64, period int) []float64 {
	if period <= 1 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)
	for i := period - 1; i < len(prices); i++ {
		window := prices[i-period+1 : i+1]

		var sum float64
		for _, p := range window {
			sum += p
		}
		mean := sum / float64(period)

		var variance float64
		for _, p := range window {
			variance += (p - mean) * (p - mean)
		}
		result = append(result, math.Sqrt(variance/float64(period-1)))
	}

	return result
}

// RSI calculates the Relative Strength Index using simple rolling averages
// of gains and losses. Returns slice of length: len(prices) - period
func RSI(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) <= period {
		return []float64{}
	}

	gains := make([]float64, len(prices)-1)
	losses := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			gains[i-1] = delta
		} else {
			losses[i-1] = -delta
		}
	}

	avgGain := SMA(gains, period)
	avgLoss := SMA(losses, period)

	result := make([]float64, 0, len(avgGain))
	for i := range avgGain {
		if avgLoss[i] == 0 {
			// No losses in the window means maximum strength
			result = append(result, 100)
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		result = append(result, 100-100/(1+rs))
	}

	return result
}

// MACD calculates the MACD line and its signal line. Both returned slices
// have length len(prices) - slow - signal + 2; the last elements are aligned
// to the last price.
func MACD(prices []float64, fast, slow, signal int) (macd, signalLine []float64) {
	if fast <= 0 || slow <= fast || signal <= 0 || len(prices) < slow+signal-1 {
		return nil, nil
	}

	fastEMA := EMA(prices, fast)
	slowEMA := EMA(prices, slow)

	// Align: slowEMA starts later by slow-fast samples
	offset := len(fastEMA) - len(slowEMA)
	diff := make([]float64, len(slowEMA))
	for i := range slowEMA {
		diff[i] = fastEMA[i+offset] - slowEMA[i]
	}

	signalLine = EMA(diff, signal)
	macd = diff[len(diff)-len(signalLine):]
	return macd, signalLine
}
