// Package batch exposes one-shot functions over whole arrays. Each one
// constructs the matching streaming calculator and runs Init over the
// input, so batch and streaming results are identical by construction.
// Undefined slots are NaN.
package batch

import (
	"ta-core/internal/indicator"
	"ta-core/internal/model"
)

func SMA(data []float64, period int) ([]float64, error) {
	s, err := indicator.NewSMA(period)
	if err != nil {
		return nil, err
	}
	return s.Init(data), nil
}

func EMA(data []float64, period int) ([]float64, error) {
	s, err := indicator.NewEMA(period)
	if err != nil {
		return nil, err
	}
	return s.Init(data), nil
}

// EMAWithMultiplier uses a custom smoothing factor in (0, 1].
func EMAWithMultiplier(data []float64, period int, multiplier float64) ([]float64, error) {
	s, err := indicator.NewEMAWithMultiplier(period, multiplier)
	if err != nil {
		return nil, err
	}
	return s.Init(data), nil
}

func WMA(data []float64, period int) ([]float64, error) {
	s, err := indicator.NewWMA(period)
	if err != nil {
		return nil, err
	}
	return s.Init(data), nil
}

func HMA(data []float64, period int) ([]float64, error) {
	s, err := indicator.NewHMA(period)
	if err != nil {
		return nil, err
	}
	return s.Init(data), nil
}

// Wilder is Wilder's smoothed moving average (SMMA).
func Wilder(data []float64, period int) ([]float64, error) {
	s, err := indicator.NewWilder(period)
	if err != nil {
		return nil, err
	}
	return s.Init(data), nil
}

func RSI(data []float64, period int) ([]float64, error) {
	s, err := indicator.NewRSI(period)
	if err != nil {
		return nil, err
	}
	return s.Init(data), nil
}

func BBands(data []float64, period int, k float64) ([]indicator.BBandsOutput, error) {
	s, err := indicator.NewBBands(period, k)
	if err != nil {
		return nil, err
	}
	return s.Init(data), nil
}

func MACD(data []float64, fast, slow, signal int) ([]indicator.MACDOutput, error) {
	return MACDWithSignal(data, fast, slow, signal, indicator.SignalEMA)
}

func MACDWithSignal(data []float64, fast, slow, signal int, kind indicator.SignalKind) ([]indicator.MACDOutput, error) {
	s, err := indicator.NewMACDWithSignal(fast, slow, signal, kind)
	if err != nil {
		return nil, err
	}
	return s.Init(data), nil
}

func StochRSI(data []float64, rsiPeriod, stochPeriod, kSmooth, dPeriod int) ([]indicator.StochRSIOutput, error) {
	s, err := indicator.NewStochRSI(rsiPeriod, stochPeriod, kSmooth, dPeriod)
	if err != nil {
		return nil, err
	}
	return s.Init(data), nil
}

func LinReg(data []float64, period int, numStdDev float64) ([]indicator.LinRegOutput, error) {
	s, err := indicator.NewLinReg(period, numStdDev)
	if err != nil {
		return nil, err
	}
	return s.Init(data), nil
}

// CVD is the running sum of deltas; NaN deltas are skipped.
func CVD(deltas []float64) []float64 {
	return indicator.NewCVD().Init(deltas)
}

// Multi-array functions check lengths before building anything.

func ATR(high, low, close []float64, period int) ([]float64, error) {
	bars, err := model.BarsFromHLC(high, low, close)
	if err != nil {
		return nil, err
	}
	s, err := indicator.NewATR(period)
	if err != nil {
		return nil, err
	}
	return s.Init(bars), nil
}

func ADX(high, low, close []float64, period int) ([]indicator.ADXOutput, error) {
	bars, err := model.BarsFromHLC(high, low, close)
	if err != nil {
		return nil, err
	}
	s, err := indicator.NewADX(period)
	if err != nil {
		return nil, err
	}
	return s.Init(bars), nil
}

func MFI(high, low, close, volume []float64, period int) ([]float64, error) {
	bars, err := model.BarsFromHLCV(high, low, close, volume)
	if err != nil {
		return nil, err
	}
	s, err := indicator.NewMFI(period)
	if err != nil {
		return nil, err
	}
	return s.Init(bars), nil
}

func StochasticFast(high, low, close []float64, kPeriod, dPeriod int) ([]indicator.StochOutput, error) {
	bars, err := model.BarsFromHLC(high, low, close)
	if err != nil {
		return nil, err
	}
	s, err := indicator.NewStochasticFast(kPeriod, dPeriod)
	if err != nil {
		return nil, err
	}
	return s.Init(bars), nil
}

func StochasticSlow(high, low, close []float64, kPeriod, dPeriod, slowing int) ([]indicator.StochOutput, error) {
	bars, err := model.BarsFromHLC(high, low, close)
	if err != nil {
		return nil, err
	}
	s, err := indicator.NewStochasticSlow(kPeriod, dPeriod, slowing)
	if err != nil {
		return nil, err
	}
	return s.Init(bars), nil
}

// Ichimoku returns the raw, undisplaced lines.
func Ichimoku(high, low, close []float64, tenkan, kijun, senkouB int) ([]indicator.IchimokuOutput, error) {
	bars, err := model.BarsFromHLC(high, low, close)
	if err != nil {
		return nil, err
	}
	s, err := indicator.NewIchimoku(tenkan, kijun, senkouB)
	if err != nil {
		return nil, err
	}
	return s.Init(bars), nil
}

// SessionVWAP restarts on every UTC day change of ts (unix ms). A nil ts
// puts every bar in one session.
func SessionVWAP(ts []int64, high, low, close, volume []float64) ([]float64, error) {
	bars, err := model.BarsFromArrays(ts, nil, high, low, close, volume)
	if err != nil {
		return nil, err
	}
	return indicator.NewSessionVWAP().Init(bars), nil
}

func RollingVWAP(high, low, close, volume []float64, period int) ([]float64, error) {
	bars, err := model.BarsFromHLCV(high, low, close, volume)
	if err != nil {
		return nil, err
	}
	s, err := indicator.NewRollingVWAP(period)
	if err != nil {
		return nil, err
	}
	return s.Init(bars), nil
}

// AnchoredVWAP accumulates from the first bar with ts >= anchorTS.
func AnchoredVWAP(ts []int64, high, low, close, volume []float64, anchorTS int64) ([]float64, error) {
	bars, err := model.BarsFromArrays(ts, nil, high, low, close, volume)
	if err != nil {
		return nil, err
	}
	return indicator.NewAnchoredVWAPAt(anchorTS).Init(bars), nil
}

func CVDFromOHLCV(high, low, close, volume []float64) ([]float64, error) {
	bars, err := model.BarsFromHLCV(high, low, close, volume)
	if err != nil {
		return nil, err
	}
	return indicator.NewCVDOHLCV().Init(bars), nil
}

// PivotPointsBatch applies PivotPoints to each H/L/C triple.
func PivotPointsBatch(v indicator.PivotVariant, high, low, close []float64) ([]indicator.PivotLevels, error) {
	bars, err := model.BarsFromHLC(high, low, close)
	if err != nil {
		return nil, err
	}
	return indicator.NewPivotStream(v).Init(bars), nil
}

// FRVP profiles the whole input once.
func FRVP(high, low, close, volume []float64, bins int, valueArea float64) (indicator.FRVPOutput, error) {
	bars, err := model.BarsFromHLCV(high, low, close, volume)
	if err != nil {
		return indicator.FRVPOutput{}, err
	}
	return indicator.VolumeProfile(bars, bins, valueArea)
}
