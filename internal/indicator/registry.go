package indicator

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"ta-core/internal/core"
	"ta-core/internal/model"
	"ta-core/internal/session"
)

// IndicatorConfig specifies a single indicator to compute. The string form
// is TYPE[:ARG...], e.g. "SMA:20", "MACD:12:26:9", "PIVOT:woodie:weekly".
// Numeric arguments land in Params, the rest in Options, each in order.
type IndicatorConfig struct {
	Type    string    `json:"type" yaml:"type"`
	Params  []float64 `json:"params,omitempty" yaml:"params,omitempty"`
	Options []string  `json:"options,omitempty" yaml:"options,omitempty"`
}

// ParseSpec parses one TYPE[:ARG...] spec. The type is upper-cased.
func ParseSpec(spec string) (IndicatorConfig, error) {
	parts := strings.Split(strings.TrimSpace(spec), ":")
	if parts[0] == "" {
		return IndicatorConfig{}, core.Invalidf("empty indicator spec")
	}
	cfg := IndicatorConfig{Type: strings.ToUpper(parts[0])}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p == "" {
			return IndicatorConfig{}, core.Invalidf("empty argument in %q", spec)
		}
		if v, err := strconv.ParseFloat(p, 64); err == nil {
			cfg.Params = append(cfg.Params, v)
			continue
		}
		cfg.Options = append(cfg.Options, strings.ToLower(p))
	}
	return cfg, nil
}

// ParseSpecs parses a comma-separated list of specs.
func ParseSpecs(list string) ([]IndicatorConfig, error) {
	var out []IndicatorConfig
	for _, s := range strings.Split(list, ",") {
		if strings.TrimSpace(s) == "" {
			continue
		}
		cfg, err := ParseSpec(s)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// Key returns the result name, TYPE_ARG_ARG..., e.g. "MACD_12_26_9".
func (c IndicatorConfig) Key() string {
	var b strings.Builder
	b.WriteString(c.Type)
	for _, p := range c.Params {
		b.WriteByte('_')
		b.WriteString(strconv.FormatFloat(p, 'f', -1, 64))
	}
	for _, o := range c.Options {
		b.WriteByte('_')
		b.WriteString(o)
	}
	return b.String()
}

// String returns the spec form of the config.
func (c IndicatorConfig) String() string {
	return strings.ReplaceAll(c.Key(), "_", ":")
}

func (c IndicatorConfig) param(i int, def float64) float64 {
	if i < len(c.Params) {
		return c.Params[i]
	}
	return def
}

// intParam returns Params[i] as an int, or def when absent.
func (c IndicatorConfig) intParam(i, def int) (int, error) {
	v := c.param(i, float64(def))
	if v != math.Trunc(v) || v > math.MaxInt32 || v < math.MinInt32 {
		return 0, core.Invalidf("%s argument %d must be an integer, got %v", c.Type, i+1, v)
	}
	return int(v), nil
}

func (c IndicatorConfig) hasOption(name string) bool {
	for _, o := range c.Options {
		if o == name {
			return true
		}
	}
	return false
}

func (c IndicatorConfig) option(i int, def string) string {
	if i < len(c.Options) {
		return c.Options[i]
	}
	return def
}

// Calculator is the type-erased view of a calculator the engine drives
// with whole bars. Price calculators read the bar close unless their spec
// names another price source.
type Calculator interface {
	Name() string
	// Update feeds one bar. value is the primary output (NaN if undefined)
	// and fields holds every output by name.
	Update(b model.Bar) (value float64, fields map[string]float64, ok bool)
	Ready() bool
	Warmup() int
	Reset()
}

type warmer interface{ Warmup() int }

// adapter wraps a typed Stream as a Calculator.
type adapter[In, Out any] struct {
	name    string
	stream  Stream[In, Out]
	warmup  func() int
	input   func(model.Bar) In
	flatten func(Out) (float64, map[string]float64)
}

func (a *adapter[In, Out]) Name() string { return a.name }
func (a *adapter[In, Out]) Ready() bool  { return a.stream.Ready() }
func (a *adapter[In, Out]) Warmup() int  { return a.warmup() }
func (a *adapter[In, Out]) Reset()       { a.stream.Reset() }

func (a *adapter[In, Out]) Update(b model.Bar) (float64, map[string]float64, bool) {
	out, ok := a.stream.Next(a.input(b))
	if !ok {
		return nan, nil, false
	}
	v, fields := a.flatten(out)
	return v, fields, true
}

// Batcher is implemented by every calculator New returns. Run resets the
// calculator and computes one output per bar through the typed stream's
// Init; undefined slots have a NaN value.
type Batcher interface {
	Run(bars []model.Bar) (values []float64, fields []map[string]float64)
}

func (a *adapter[In, Out]) Run(bars []model.Bar) ([]float64, []map[string]float64) {
	in := make([]In, len(bars))
	for i, b := range bars {
		in[i] = a.input(b)
	}
	outs := a.stream.Init(in)
	values := make([]float64, len(outs))
	fields := make([]map[string]float64, len(outs))
	for i, o := range outs {
		values[i], fields[i] = a.flatten(o)
	}
	return values, fields
}

type warmStream[In, Out any] interface {
	Stream[In, Out]
	warmer
}

func wrap[In, Out any](name string, s warmStream[In, Out], input func(model.Bar) In, flatten func(Out) (float64, map[string]float64)) Calculator {
	return &adapter[In, Out]{name: name, stream: s, warmup: s.Warmup, input: input, flatten: flatten}
}

func closeOf(b model.Bar) float64 { return b.Close }
func barOf(b model.Bar) model.Bar { return b }

func scalarOut(v float64) (float64, map[string]float64) { return v, nil }

// barScalar wraps a bar calculator with a scalar output.
func barScalar(name string, s warmStream[model.Bar, float64]) Calculator {
	return wrap[model.Bar, float64](name, s, barOf, scalarOut)
}

// factory builds a Calculator from a parsed config.
type factory func(cfg IndicatorConfig) (Calculator, error)

var registry = map[string]factory{
	"SMA":      periodOnly(func(p int) (warmStream[float64, float64], error) { return NewSMA(p) }),
	"EMA":      periodOnly(func(p int) (warmStream[float64, float64], error) { return NewEMA(p) }),
	"WMA":      periodOnly(func(p int) (warmStream[float64, float64], error) { return NewWMA(p) }),
	"HMA":      periodOnly(func(p int) (warmStream[float64, float64], error) { return NewHMA(p) }),
	"SMMA":     periodOnly(func(p int) (warmStream[float64, float64], error) { return NewWilder(p) }),
	"RSI":      periodOnly(func(p int) (warmStream[float64, float64], error) { return NewRSI(p) }),
	"ATR":      newATRCalc,
	"ADX":      newADXCalc,
	"MFI":      newMFICalc,
	"BBANDS":   newBBandsCalc,
	"STOCH":    newStochCalc,
	"STOCHRSI": newStochRSICalc,
	"MACD":     newMACDCalc,
	"LINREG":   newLinRegCalc,
	"ICHIMOKU": newIchimokuCalc,
	"VWAP":     newVWAPCalc,
	"CVD":      newCVDCalc,
	"PIVOT":    newPivotCalc,
	"FRVP":     newFRVPCalc,
}

// Types returns the registered indicator types, sorted.
func Types() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New builds the calculator described by cfg.
func New(cfg IndicatorConfig) (Calculator, error) {
	f, ok := registry[strings.ToUpper(cfg.Type)]
	if !ok {
		return nil, core.WrapError(core.ErrUnknownIndicator, fmt.Errorf("%q", cfg.Type))
	}
	cfg.Type = strings.ToUpper(cfg.Type)
	return f(cfg)
}

// NewFromSpec parses spec and builds its calculator.
func NewFromSpec(spec string) (Calculator, error) {
	cfg, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

func periodOnly(build func(int) (warmStream[float64, float64], error)) factory {
	return func(cfg IndicatorConfig) (Calculator, error) {
		p, err := cfg.intParam(0, 14)
		if err != nil {
			return nil, err
		}
		src, err := priceSource(cfg)
		if err != nil {
			return nil, err
		}
		s, err := build(p)
		if err != nil {
			return nil, err
		}
		return wrap[float64, float64](cfg.Key(), s, src, scalarOut), nil
	}
}

// priceSource picks the bar price a single-period calculator reads: the
// close by default, hl2 for the median price, hlc3 for the typical price.
func priceSource(cfg IndicatorConfig) (func(model.Bar) float64, error) {
	switch src := cfg.option(0, "close"); src {
	case "close":
		return closeOf, nil
	case "hl2":
		return model.Bar.MedianPrice, nil
	case "hlc3":
		return model.Bar.TypicalPrice, nil
	default:
		return nil, core.Invalidf("%s: unknown price source %q", cfg.Type, src)
	}
}

func newATRCalc(cfg IndicatorConfig) (Calculator, error) {
	p, err := cfg.intParam(0, 14)
	if err != nil {
		return nil, err
	}
	s, err := NewATR(p)
	if err != nil {
		return nil, err
	}
	return barScalar(cfg.Key(), s), nil
}

func newMFICalc(cfg IndicatorConfig) (Calculator, error) {
	p, err := cfg.intParam(0, 14)
	if err != nil {
		return nil, err
	}
	s, err := NewMFI(p)
	if err != nil {
		return nil, err
	}
	return barScalar(cfg.Key(), s), nil
}

func newADXCalc(cfg IndicatorConfig) (Calculator, error) {
	p, err := cfg.intParam(0, 14)
	if err != nil {
		return nil, err
	}
	s, err := NewADX(p)
	if err != nil {
		return nil, err
	}
	return wrap[model.Bar, ADXOutput](cfg.Key(), s, barOf, func(o ADXOutput) (float64, map[string]float64) {
		return o.ADX, map[string]float64{"adx": o.ADX, "plus_di": o.PlusDI, "minus_di": o.MinusDI}
	}), nil
}

func newBBandsCalc(cfg IndicatorConfig) (Calculator, error) {
	p, err := cfg.intParam(0, 20)
	if err != nil {
		return nil, err
	}
	s, err := NewBBands(p, cfg.param(1, 2))
	if err != nil {
		return nil, err
	}
	return wrap[float64, BBandsOutput](cfg.Key(), s, closeOf, func(o BBandsOutput) (float64, map[string]float64) {
		return o.Middle, map[string]float64{
			"upper": o.Upper, "middle": o.Middle, "lower": o.Lower,
			"percent_b": o.PercentB, "bandwidth": o.Bandwidth,
		}
	}), nil
}

// newStochCalc handles STOCH:k:d (fast) and STOCH:k:d:slowing:slow.
func newStochCalc(cfg IndicatorConfig) (Calculator, error) {
	k, err := cfg.intParam(0, 14)
	if err != nil {
		return nil, err
	}
	d, err := cfg.intParam(1, 3)
	if err != nil {
		return nil, err
	}
	var s *Stochastic
	if cfg.hasOption("slow") || len(cfg.Params) > 2 {
		slowing, err := cfg.intParam(2, DefaultSlowing)
		if err != nil {
			return nil, err
		}
		s, err = NewStochasticSlow(k, d, slowing)
		if err != nil {
			return nil, err
		}
	} else if s, err = NewStochasticFast(k, d); err != nil {
		return nil, err
	}
	return wrap[model.Bar, StochOutput](cfg.Key(), s, barOf, func(o StochOutput) (float64, map[string]float64) {
		return o.K, map[string]float64{"k": o.K, "d": o.D}
	}), nil
}

func newStochRSICalc(cfg IndicatorConfig) (Calculator, error) {
	var p [4]int
	for i, def := range []int{14, 14, 3, 3} {
		v, err := cfg.intParam(i, def)
		if err != nil {
			return nil, err
		}
		p[i] = v
	}
	s, err := NewStochRSI(p[0], p[1], p[2], p[3])
	if err != nil {
		return nil, err
	}
	return wrap[float64, StochRSIOutput](cfg.Key(), s, closeOf, func(o StochRSIOutput) (float64, map[string]float64) {
		return o.K, map[string]float64{"k": o.K, "d": o.D}
	}), nil
}

// newMACDCalc handles MACD:fast:slow:signal with an optional "sma" signal.
func newMACDCalc(cfg IndicatorConfig) (Calculator, error) {
	var p [3]int
	for i, def := range []int{12, 26, 9} {
		v, err := cfg.intParam(i, def)
		if err != nil {
			return nil, err
		}
		p[i] = v
	}
	kind := SignalEMA
	if cfg.hasOption("sma") {
		kind = SignalSMA
	}
	s, err := NewMACDWithSignal(p[0], p[1], p[2], kind)
	if err != nil {
		return nil, err
	}
	return wrap[float64, MACDOutput](cfg.Key(), s, closeOf, func(o MACDOutput) (float64, map[string]float64) {
		return o.MACD, map[string]float64{"macd": o.MACD, "signal": o.Signal, "histogram": o.Histogram}
	}), nil
}

func newLinRegCalc(cfg IndicatorConfig) (Calculator, error) {
	p, err := cfg.intParam(0, 20)
	if err != nil {
		return nil, err
	}
	s, err := NewLinReg(p, cfg.param(1, 2))
	if err != nil {
		return nil, err
	}
	return wrap[float64, LinRegOutput](cfg.Key(), s, closeOf, func(o LinRegOutput) (float64, map[string]float64) {
		return o.Value, map[string]float64{
			"value": o.Value, "upper": o.Upper, "lower": o.Lower,
			"slope": o.Slope, "intercept": o.Intercept, "r": o.R, "r_squared": o.RSquared,
			"std_dev": o.StdDev,
		}
	}), nil
}

func ichimokuFields(o IchimokuOutput) (float64, map[string]float64) {
	return o.Kijun, map[string]float64{
		"tenkan": o.Tenkan, "kijun": o.Kijun,
		"senkou_a": o.SenkouA, "senkou_b": o.SenkouB, "chikou": o.Chikou,
	}
}

// newIchimokuCalc handles ICHIMOKU:t:k:b, with "displaced" shifting the
// spans and chikou by the kijun period.
func newIchimokuCalc(cfg IndicatorConfig) (Calculator, error) {
	var p [3]int
	for i, def := range []int{DefaultTenkan, DefaultKijun, DefaultSenkouB} {
		v, err := cfg.intParam(i, def)
		if err != nil {
			return nil, err
		}
		p[i] = v
	}
	if cfg.hasOption("displaced") {
		s, err := NewIchimokuDisplaced(p[0], p[1], p[2], p[1])
		if err != nil {
			return nil, err
		}
		return wrap[model.Bar, IchimokuOutput](cfg.Key(), s, barOf, ichimokuFields), nil
	}
	s, err := NewIchimoku(p[0], p[1], p[2])
	if err != nil {
		return nil, err
	}
	return wrap[model.Bar, IchimokuOutput](cfg.Key(), s, barOf, ichimokuFields), nil
}

// newVWAPCalc handles VWAP (session), VWAP:session, VWAP:period (rolling)
// and VWAP:anchored:tsMillis.
func newVWAPCalc(cfg IndicatorConfig) (Calculator, error) {
	switch cfg.option(0, "") {
	case "", "session":
		if len(cfg.Params) == 0 {
			return barScalar(cfg.Key(), NewSessionVWAP()), nil
		}
		if cfg.hasOption("session") {
			return nil, core.Invalidf("VWAP:session takes no period")
		}
		p, err := cfg.intParam(0, 0)
		if err != nil {
			return nil, err
		}
		s, err := NewRollingVWAP(p)
		if err != nil {
			return nil, err
		}
		return barScalar(cfg.Key(), s), nil
	case "rolling":
		p, err := cfg.intParam(0, 20)
		if err != nil {
			return nil, err
		}
		s, err := NewRollingVWAP(p)
		if err != nil {
			return nil, err
		}
		return barScalar(cfg.Key(), s), nil
	case "anchored":
		if len(cfg.Params) == 0 {
			return nil, core.Invalidf("VWAP:anchored needs an anchor timestamp in ms")
		}
		return barScalar(cfg.Key(), NewAnchoredVWAPAt(int64(cfg.Params[0]))), nil
	default:
		return nil, core.Invalidf("unknown VWAP mode %q", cfg.Options[0])
	}
}

func newCVDCalc(cfg IndicatorConfig) (Calculator, error) {
	return barScalar(cfg.Key(), NewCVDOHLCV()), nil
}

func pivotFields(o PivotLevels) (float64, map[string]float64) {
	return o.P, map[string]float64{
		"pivot": o.P, "r1": o.R1, "r2": o.R2, "r3": o.R3,
		"s1": o.S1, "s2": o.S2, "s3": o.S3,
	}
}

// newPivotCalc handles PIVOT:variant[:session]. Without a session the
// levels come from each bar's own H/L/C; with one (daily, weekly, monthly
// or a duration) they come from the previous completed session.
func newPivotCalc(cfg IndicatorConfig) (Calculator, error) {
	v, err := ParsePivotVariant(cfg.option(0, "standard"))
	if err != nil {
		return nil, err
	}
	if len(cfg.Options) < 2 {
		return wrap[model.Bar, PivotLevels](cfg.Key(), NewPivotStream(v), barOf, pivotFields), nil
	}
	period, err := session.ParsePeriod(cfg.Options[1])
	if err != nil {
		return nil, err
	}
	s, err := NewSessionPivots(v, period)
	if err != nil {
		return nil, err
	}
	return wrap[model.Bar, PivotLevels](cfg.Key(), s, barOf, pivotFields), nil
}

// defaultProfileWindow bounds engine-driven profiles.
const defaultProfileWindow = 500

// newFRVPCalc handles FRVP:bins:valueArea:window. The engine always uses
// the capped profile.
func newFRVPCalc(cfg IndicatorConfig) (Calculator, error) {
	bins, err := cfg.intParam(0, DefaultProfileBins)
	if err != nil {
		return nil, err
	}
	capacity, err := cfg.intParam(2, defaultProfileWindow)
	if err != nil {
		return nil, err
	}
	s, err := NewFRVPCapped(capacity, bins, cfg.param(1, DefaultValueArea))
	if err != nil {
		return nil, err
	}
	return wrap[model.Bar, FRVPOutput](cfg.Key(), s, barOf, func(o FRVPOutput) (float64, map[string]float64) {
		return o.POC, map[string]float64{"poc": o.POC, "vah": o.VAH, "val": o.VAL, "total_volume": o.TotalVolume}
	}), nil
}
