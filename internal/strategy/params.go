package strategy

import (
	"fmt"

	"papertrade/internal/domain"
)

// Per-type parameter defaults applied when a key is absent.
const (
	DefaultFastMAPeriod = 9
	DefaultSlowMAPeriod = 21

	DefaultRSIPeriod           = 14
	DefaultOversoldThreshold   = 30.0
	DefaultOverboughtThreshold = 70.0

	DefaultMACDFastPeriod   = 12
	DefaultMACDSlowPeriod   = 26
	DefaultMACDSignalPeriod = 9
)

// MAParams configures a moving-average crossover strategy.
type MAParams struct {
	FastPeriod int
	SlowPeriod int
}

// RSIParams configures an RSI recovery strategy.
type RSIParams struct {
	Period     int
	Oversold   float64
	Overbought float64
}

// MACDParams configures a MACD crossover strategy.
type MACDParams struct {
	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
}

// Params holds the eagerly-parsed parameters for one strategy. Exactly one
// of the per-type fields is populated, matching Type.
type Params struct {
	Type domain.StrategyType
	MA   MAParams
	RSI  RSIParams
	MACD MACDParams
}

// ParseParams reads the strategy's free-form parameter map into a typed
// struct, filling defaults for absent keys. The wire shape keeps its
// camelCase keys; the core never touches the raw map after this point.
// Out-of-range values fail validation up front rather than deep inside the
// evaluation path.
func ParseParams(strategyType domain.StrategyType, raw map[string]float64) (Params, error) {
	p := Params{Type: strategyType}

	switch strategyType {
	case domain.StrategyTypeMACrossover:
		p.MA = MAParams{
			FastPeriod: intParam(raw, "fastMAPeriod", DefaultFastMAPeriod),
			SlowPeriod: intParam(raw, "slowMAPeriod", DefaultSlowMAPeriod),
		}
		if p.MA.FastPeriod <= 0 || p.MA.SlowPeriod <= 0 {
			return Params{}, fmt.Errorf("%w: ma periods must be positive", domain.ErrValidation)
		}
		if p.MA.FastPeriod >= p.MA.SlowPeriod {
			return Params{}, fmt.Errorf("%w: fast period %d must be below slow period %d",
				domain.ErrValidation, p.MA.FastPeriod, p.MA.SlowPeriod)
		}

	case domain.StrategyTypeRSI:
		p.RSI = RSIParams{
			Period:     intParam(raw, "rsiPeriod", DefaultRSIPeriod),
			Oversold:   floatParam(raw, "oversoldThreshold", DefaultOversoldThreshold),
			Overbought: floatParam(raw, "overboughtThreshold", DefaultOverboughtThreshold),
		}
		if p.RSI.Period <= 0 {
			return Params{}, fmt.Errorf("%w: rsi period must be positive", domain.ErrValidation)
		}
		if p.RSI.Oversold < 0 || p.RSI.Overbought > 100 || p.RSI.Oversold >= p.RSI.Overbought {
			return Params{}, fmt.Errorf("%w: rsi thresholds must satisfy 0 <= oversold < overbought <= 100",
				domain.ErrValidation)
		}

	case domain.StrategyTypeMACD:
		p.MACD = MACDParams{
			FastPeriod:   intParam(raw, "fastPeriod", DefaultMACDFastPeriod),
			SlowPeriod:   intParam(raw, "slowPeriod", DefaultMACDSlowPeriod),
			SignalPeriod: intParam(raw, "signalPeriod", DefaultMACDSignalPeriod),
		}
		if p.MACD.FastPeriod <= 0 || p.MACD.SlowPeriod <= 0 || p.MACD.SignalPeriod <= 0 {
			return Params{}, fmt.Errorf("%w: macd periods must be positive", domain.ErrValidation)
		}
		if p.MACD.FastPeriod >= p.MACD.SlowPeriod {
			return Params{}, fmt.Errorf("%w: fast period %d must be below slow period %d",
				domain.ErrValidation, p.MACD.FastPeriod, p.MACD.SlowPeriod)
		}

	default:
		return Params{}, fmt.Errorf("%w: unknown strategy type %q", domain.ErrValidation, strategyType)
	}

	return p, nil
}

func intParam(raw map[string]float64, key string, def int) int {
	if v, ok := raw[key]; ok {
		return int(v)
	}
	return def
}

func floatParam(raw map[string]float64, key string, def float64) float64 {
	if v, ok := raw[key]; ok {
		return v
	}
	return def
}
