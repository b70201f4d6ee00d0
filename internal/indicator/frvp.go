package indicator

import (
	"math"

	"github.com/gammazero/deque"

	"ta-core/internal/core"
	"ta-core/internal/model"
)

// Volume profile defaults.
const (
	DefaultProfileBins = 100
	DefaultValueArea   = 0.70
)

// ProfileRow is one price bin of a volume profile.
type ProfileRow struct {
	Price  float64 `json:"price"` // bin midpoint
	Volume float64 `json:"volume"`
	Low    float64 `json:"low"`
	High   float64 `json:"high"`
}

// FRVPOutput is a fixed-range volume profile: the point of control, the
// value area bounds and the full histogram.
type FRVPOutput struct {
	POC             float64      `json:"poc"`
	VAH             float64      `json:"vah"`
	VAL             float64      `json:"val"`
	Histogram       []ProfileRow `json:"histogram"`
	TotalVolume     float64      `json:"total_volume"`
	POCVolume       float64      `json:"poc_volume"`
	ValueAreaVolume float64      `json:"value_area_volume"`
	RangeHigh       float64      `json:"range_high"`
	RangeLow        float64      `json:"range_low"`
}

func nanFRVP() FRVPOutput {
	return FRVPOutput{
		POC: nan, VAH: nan, VAL: nan,
		TotalVolume: nan, POCVolume: nan, ValueAreaVolume: nan,
		RangeHigh: nan, RangeLow: nan,
	}
}

func checkProfileParams(bins int, valueArea float64) error {
	if err := checkPeriod("bins", bins, 1); err != nil {
		return err
	}
	if !(valueArea >= 0 && valueArea <= 1) {
		return core.Invalidf("value area must be in [0, 1], got %v", valueArea)
	}
	return nil
}

// barSource is random access over the profiled bars.
type barSource interface {
	Len() int
	At(i int) model.Bar
}

type barSlice []model.Bar

func (s barSlice) Len() int           { return len(s) }
func (s barSlice) At(i int) model.Bar { return s[i] }

// VolumeProfile builds the profile of bars over [min low, max high] split
// into bins. Each bar's volume is spread over the bins its range overlaps,
// in proportion to the overlap. Bars with a non-finite high or low are
// skipped; an input with no finite bar gives the NaN profile.
func VolumeProfile(bars []model.Bar, bins int, valueArea float64) (FRVPOutput, error) {
	if err := checkProfileParams(bins, valueArea); err != nil {
		return nanFRVP(), err
	}
	if len(bars) == 0 {
		return nanFRVP(), nil
	}
	return profile(barSlice(bars), bins, valueArea), nil
}

func profile(src barSource, numBins int, valueArea float64) FRVPOutput {
	n := src.Len()
	hi, lo := math.Inf(-1), math.Inf(1)
	for i := 0; i < n; i++ {
		b := src.At(i)
		if !profiled(b) {
			continue
		}
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}
	if hi < lo {
		return nanFRVP()
	}

	if math.Abs(hi-lo) < epsilon {
		total := 0.0
		for i := 0; i < n; i++ {
			if b := src.At(i); profiled(b) {
				total += barVolume(b)
			}
		}
		return FRVPOutput{
			POC: hi, VAH: hi, VAL: lo,
			Histogram:   []ProfileRow{{Price: hi, Volume: total, Low: lo, High: hi}},
			TotalVolume: total, POCVolume: total, ValueAreaVolume: total,
			RangeHigh: hi, RangeLow: lo,
		}
	}

	size := (hi - lo) / float64(numBins)
	bins := make([]float64, numBins)
	for i := 0; i < n; i++ {
		b := src.At(i)
		vol := barVolume(b)
		if vol == 0 || !profiled(b) {
			continue
		}
		first := binIndex((b.Low-lo)/size, numBins)
		last := binIndex((b.High-lo)/size, numBins)
		span := b.High - b.Low
		if span < epsilon {
			bins[first] += vol
			continue
		}
		for j := first; j <= last; j++ {
			binLo := lo + float64(j)*size
			overlap := math.Max(math.Min(b.High, binLo+size)-math.Max(b.Low, binLo), 0)
			bins[j] += vol * overlap / span
		}
	}

	total, poc, pocVol := 0.0, 0, 0.0
	for j, v := range bins {
		total += v
		if v > pocVol {
			poc, pocVol = j, v
		}
	}
	val, vah := valueAreaBounds(bins, poc, total*valueArea)

	out := FRVPOutput{
		POC:         lo + (float64(poc)+0.5)*size,
		VAL:         lo + float64(val)*size,
		VAH:         lo + float64(vah+1)*size,
		Histogram:   make([]ProfileRow, numBins),
		TotalVolume: total,
		POCVolume:   pocVol,
		RangeHigh:   hi,
		RangeLow:    lo,
	}
	for j, v := range bins {
		l := lo + float64(j)*size
		out.Histogram[j] = ProfileRow{Price: l + size/2, Volume: v, Low: l, High: l + size}
		if j >= val && j <= vah {
			out.ValueAreaVolume += v
		}
	}
	return out
}

// epsilon is the width under which a range counts as a single price.
const epsilon = 2.220446049250313e-16

// profiled reports whether b has a finite range. Other bars are left out of
// the profile.
func profiled(b model.Bar) bool {
	return !math.IsNaN(b.High) && !math.IsInf(b.High, 0) && !math.IsNaN(b.Low) && !math.IsInf(b.Low, 0)
}

// barVolume is b's volume, or 0 when it is not a positive finite number.
func barVolume(b model.Bar) float64 {
	if !(b.Volume > 0) || math.IsInf(b.Volume, 0) {
		return 0
	}
	return b.Volume
}

// binIndex floors x into [0, numBins-1].
func binIndex(x float64, numBins int) int {
	switch {
	case !(x > 0):
		return 0
	case x >= float64(numBins):
		return numBins - 1
	}
	return int(x)
}

// valueAreaBounds widens [val, vah] from the POC bin towards the heavier
// neighbour until it holds target volume. Ties widen downwards.
func valueAreaBounds(bins []float64, poc int, target float64) (val, vah int) {
	val, vah = poc, poc
	acc := bins[poc]
	for acc < target {
		canDown, canUp := val > 0, vah < len(bins)-1
		if !canDown && !canUp {
			break
		}
		down, up := 0.0, 0.0
		if canDown {
			down = bins[val-1]
		}
		if canUp {
			up = bins[vah+1]
		}
		if canDown && (down >= up || !canUp) {
			val--
			acc += down
		} else {
			vah++
			acc += up
		}
	}
	return val, vah
}

// FRVPStream profiles every bar it has seen. Memory grows with the input
// and each Next rebuilds the histogram in O(bars + bins); use FRVPCapped
// for a bounded window.
type FRVPStream struct {
	bins      int
	valueArea float64
	bars      []model.Bar
	out       FRVPOutput
	defined   bool
}

func NewFRVP(bins int, valueArea float64) (*FRVPStream, error) {
	if err := checkProfileParams(bins, valueArea); err != nil {
		return nil, err
	}
	return &FRVPStream{bins: bins, valueArea: valueArea, out: nanFRVP()}, nil
}

func (f *FRVPStream) Bins() int          { return f.bins }
func (f *FRVPStream) ValueArea() float64 { return f.valueArea }
func (f *FRVPStream) Len() int           { return len(f.bars) }
func (f *FRVPStream) Warmup() int        { return 1 }
func (f *FRVPStream) Ready() bool        { return f.defined }

func (f *FRVPStream) Current() (FRVPOutput, bool) {
	if !f.defined {
		return nanFRVP(), false
	}
	return f.out, true
}

func (f *FRVPStream) Next(b model.Bar) (FRVPOutput, bool) {
	f.bars = append(f.bars, b)
	f.out = profile(barSlice(f.bars), f.bins, f.valueArea)
	f.defined = !math.IsNaN(f.out.POC)
	return f.Current()
}

// Init returns one profile per prefix of history; the last element is the
// profile of the whole range.
func (f *FRVPStream) Init(history []model.Bar) []FRVPOutput {
	return feed[model.Bar, FRVPOutput](f, history, nanFRVP())
}

func (f *FRVPStream) Reset() {
	f.bars = nil
	f.out = nanFRVP()
	f.defined = false
}

// FRVPCapped profiles the most recent capacity bars. Next costs
// O(capacity + bins).
type FRVPCapped struct {
	capacity  int
	bins      int
	valueArea float64
	bars      *deque.Deque[model.Bar]
	out       FRVPOutput
	defined   bool
}

func NewFRVPCapped(capacity, bins int, valueArea float64) (*FRVPCapped, error) {
	if err := checkPeriod("capacity", capacity, 1); err != nil {
		return nil, err
	}
	if err := checkProfileParams(bins, valueArea); err != nil {
		return nil, err
	}
	return &FRVPCapped{
		capacity:  capacity,
		bins:      bins,
		valueArea: valueArea,
		bars:      deque.New[model.Bar](capacity),
		out:       nanFRVP(),
	}, nil
}

func (f *FRVPCapped) Capacity() int { return f.capacity }
func (f *FRVPCapped) Len() int      { return f.bars.Len() }
func (f *FRVPCapped) Warmup() int   { return 1 }
func (f *FRVPCapped) Ready() bool   { return f.defined }

func (f *FRVPCapped) Current() (FRVPOutput, bool) {
	if !f.defined {
		return nanFRVP(), false
	}
	return f.out, true
}

func (f *FRVPCapped) Next(b model.Bar) (FRVPOutput, bool) {
	if f.bars.Len() == f.capacity {
		f.bars.PopFront()
	}
	f.bars.PushBack(b)
	f.out = profile(f.bars, f.bins, f.valueArea)
	f.defined = !math.IsNaN(f.out.POC)
	return f.Current()
}

func (f *FRVPCapped) Init(history []model.Bar) []FRVPOutput {
	return feed[model.Bar, FRVPOutput](f, history, nanFRVP())
}

func (f *FRVPCapped) Reset() {
	f.bars.Clear()
	f.out = nanFRVP()
	f.defined = false
}
