package indicator

import (
	"math"

	"ta-core/internal/model"
	"ta-core/internal/window"
)

// IchimokuOutput holds the five Ichimoku lines. Each field warms on its own
// schedule and is NaN until then.
type IchimokuOutput struct {
	Tenkan  float64 `json:"tenkan"`
	Kijun   float64 `json:"kijun"`
	SenkouA float64 `json:"senkou_a"`
	SenkouB float64 `json:"senkou_b"`
	Chikou  float64 `json:"chikou"`
}

func nanIchimoku() IchimokuOutput {
	return IchimokuOutput{Tenkan: nan, Kijun: nan, SenkouA: nan, SenkouB: nan, Chikou: nan}
}

// Default Ichimoku periods.
const (
	DefaultTenkan  = 9
	DefaultKijun   = 26
	DefaultSenkouB = 52
)

// Ichimoku emits the raw, undisplaced cloud: each line is computed at the
// current bar and Chikou is the current close. Use IchimokuDisplaced for
// chart-aligned output.
type Ichimoku struct {
	tenkanPeriod, kijunPeriod, senkouPeriod int

	tenkan *window.MinMax
	kijun  *window.MinMax
	senkou *window.MinMax

	out     IchimokuOutput
	defined bool
}

// NewIchimoku creates an Ichimoku calculator (typically 9, 26, 52).
func NewIchimoku(tenkan, kijun, senkouB int) (*Ichimoku, error) {
	if err := checkPeriod("tenkan period", tenkan, 1); err != nil {
		return nil, err
	}
	if err := checkPeriod("kijun period", kijun, 1); err != nil {
		return nil, err
	}
	if err := checkPeriod("senkou b period", senkouB, 1); err != nil {
		return nil, err
	}
	return &Ichimoku{
		tenkanPeriod: tenkan,
		kijunPeriod:  kijun,
		senkouPeriod: senkouB,
		tenkan:       window.NewMinMax(tenkan),
		kijun:        window.NewMinMax(kijun),
		senkou:       window.NewMinMax(senkouB),
		out:          nanIchimoku(),
	}, nil
}

func (ic *Ichimoku) Periods() (tenkan, kijun, senkouB int) {
	return ic.tenkanPeriod, ic.kijunPeriod, ic.senkouPeriod
}

// Warmup returns the samples needed for every line to be defined.
func (ic *Ichimoku) Warmup() int {
	return max(ic.tenkanPeriod, ic.kijunPeriod, ic.senkouPeriod)
}

func (ic *Ichimoku) Ready() bool {
	return ic.tenkan.Full() && ic.kijun.Full() && ic.senkou.Full()
}

func (ic *Ichimoku) Current() (IchimokuOutput, bool) {
	if !ic.defined {
		return nanIchimoku(), false
	}
	return ic.out, true
}

func (ic *Ichimoku) Next(b model.Bar) (IchimokuOutput, bool) {
	ic.tenkan.Push(b.High, b.Low)
	ic.kijun.Push(b.High, b.Low)
	ic.senkou.Push(b.High, b.Low)

	out := nanIchimoku()
	out.Chikou = b.Close
	if ic.tenkan.Full() {
		out.Tenkan = ic.tenkan.Mid()
	}
	if ic.kijun.Full() {
		out.Kijun = ic.kijun.Mid()
	}
	if ic.tenkan.Full() && ic.kijun.Full() {
		out.SenkouA = (out.Tenkan + out.Kijun) / 2
	}
	if ic.senkou.Full() {
		out.SenkouB = ic.senkou.Mid()
	}
	ic.out = out
	ic.defined = true
	return out, true
}

func (ic *Ichimoku) Init(history []model.Bar) []IchimokuOutput {
	return feed[model.Bar, IchimokuOutput](ic, history, nanIchimoku())
}

func (ic *Ichimoku) Reset() {
	ic.tenkan.Reset()
	ic.kijun.Reset()
	ic.senkou.Reset()
	ic.out = nanIchimoku()
	ic.defined = false
}

// IchimokuDisplaced aligns the cloud the way charts draw it. At each bar,
// SenkouA and SenkouB are the spans computed displacement bars earlier and
// Chikou is the close from displacement bars earlier. Tenkan and Kijun are
// current. Memory is bounded by the displacement.
type IchimokuDisplaced struct {
	raw          *Ichimoku
	displacement int

	spanA  *window.Ring
	spanB  *window.Ring
	closes *window.Ring

	count   int
	out     IchimokuOutput
	defined bool
}

// NewIchimokuDisplaced wraps an Ichimoku with delay buffers. The classic
// displacement equals the kijun period.
func NewIchimokuDisplaced(tenkan, kijun, senkouB, displacement int) (*IchimokuDisplaced, error) {
	raw, err := NewIchimoku(tenkan, kijun, senkouB)
	if err != nil {
		return nil, err
	}
	if err := checkPeriod("displacement", displacement, 1); err != nil {
		return nil, err
	}
	// Each ring holds displacement+1 values so the oldest is exactly
	// displacement bars behind the newest.
	return &IchimokuDisplaced{
		raw:          raw,
		displacement: displacement,
		spanA:        window.NewRing(displacement + 1),
		spanB:        window.NewRing(displacement + 1),
		closes:       window.NewRing(displacement + 1),
		out:          nanIchimoku(),
	}, nil
}

func (d *IchimokuDisplaced) Displacement() int { return d.displacement }

func (d *IchimokuDisplaced) Warmup() int { return d.raw.Warmup() + d.displacement }

func (d *IchimokuDisplaced) Ready() bool { return d.count >= d.Warmup() }

func (d *IchimokuDisplaced) Current() (IchimokuOutput, bool) {
	if !d.defined {
		return nanIchimoku(), false
	}
	return d.out, true
}

func (d *IchimokuDisplaced) Next(b model.Bar) (IchimokuOutput, bool) {
	d.count++
	r, _ := d.raw.Next(b)
	d.spanA.Push(r.SenkouA)
	d.spanB.Push(r.SenkouB)
	d.closes.Push(r.Chikou)

	out := IchimokuOutput{Tenkan: r.Tenkan, Kijun: r.Kijun, SenkouA: nan, SenkouB: nan, Chikou: nan}
	if d.closes.Full() {
		out.SenkouA = d.spanA.Oldest()
		out.SenkouB = d.spanB.Oldest()
		out.Chikou = d.closes.Oldest()
	}
	if math.IsNaN(out.Tenkan) && math.IsNaN(out.Kijun) && math.IsNaN(out.Chikou) {
		return nanIchimoku(), false
	}
	d.out = out
	d.defined = true
	return out, true
}

func (d *IchimokuDisplaced) Init(history []model.Bar) []IchimokuOutput {
	return feed[model.Bar, IchimokuOutput](d, history, nanIchimoku())
}

func (d *IchimokuDisplaced) Reset() {
	d.raw.Reset()
	d.spanA.Reset()
	d.spanB.Reset()
	d.closes.Reset()
	d.count = 0
	d.out = nanIchimoku()
	d.defined = false
}
