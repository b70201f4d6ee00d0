package indicator

import (
	"context"
	"math"

	"go.uber.org/zap"

	"ta-core/internal/model"
)

// TFIndicatorConfig groups indicator configs for a specific timeframe.
type TFIndicatorConfig struct {
	TF         int               `json:"tf" yaml:"tf"` // timeframe in seconds
	Indicators []IndicatorConfig `json:"indicators" yaml:"indicators"`
}

// symbolCalcs holds live calculators for one instrument within a TF.
type symbolCalcs struct {
	calcs   []Calculator
	configs []IndicatorConfig
}

// Engine computes multiple indicators across multiple TFs for multiple
// instruments. It is owned by a single goroutine; no locks.
type Engine struct {
	configs []TFIndicatorConfig
	tfIndex map[int]int

	// state[tfIdx][instrumentKey]
	state []map[string]*symbolCalcs

	log *zap.Logger
}

// NewEngine creates an engine for configs. Configs should be checked with
// ValidateConfigs first; indicators that fail to build are skipped.
func NewEngine(configs []TFIndicatorConfig, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{log: log}
	e.setConfigs(configs, make([]map[string]*symbolCalcs, len(configs)))
	for i := range e.state {
		e.state[i] = make(map[string]*symbolCalcs, 64)
	}
	return e
}

func (e *Engine) setConfigs(configs []TFIndicatorConfig, state []map[string]*symbolCalcs) {
	e.configs = configs
	e.state = state
	e.tfIndex = make(map[int]int, len(configs))
	for i, cfg := range configs {
		e.tfIndex[cfg.TF] = i
	}
}

// Configs returns the active configuration.
func (e *Engine) Configs() []TFIndicatorConfig { return e.configs }

// TFs returns the configured timeframes in config order.
func (e *Engine) TFs() []int {
	out := make([]int, len(e.configs))
	for i, c := range e.configs {
		out[i] = c.TF
	}
	return out
}

// Symbols returns the number of instruments with live state on tf.
func (e *Engine) Symbols(tf int) int {
	i, ok := e.tfIndex[tf]
	if !ok {
		return 0
	}
	return len(e.state[i])
}

// MaxWarmup returns the largest warm-up, in bars, among tf's indicators.
func (e *Engine) MaxWarmup(tf int) int {
	i, ok := e.tfIndex[tf]
	if !ok {
		return 0
	}
	w := 0
	for _, ic := range e.configs[i].Indicators {
		c, err := New(ic)
		if err != nil {
			continue
		}
		w = max(w, c.Warmup())
	}
	return w
}

// Process feeds a finalized TF bar to every indicator of its TF and
// instrument. Results include indicators that are not ready yet.
func (e *Engine) Process(tfb model.TFBar) []model.IndicatorResult {
	tfIdx, ok := e.tfIndex[tfb.TF]
	if !ok {
		return nil // TF not configured for indicators
	}

	key := tfb.Key()
	sc, exists := e.state[tfIdx][key]
	if !exists {
		sc = e.newSymbolCalcs(e.configs[tfIdx].Indicators)
		e.state[tfIdx][key] = sc
	}

	ts := tfb.Time()
	results := make([]model.IndicatorResult, 0, len(sc.calcs))
	for _, c := range sc.calcs {
		v, fields, ok := c.Update(tfb.Bar)
		r := model.IndicatorResult{
			Name:     c.Name(),
			Symbol:   tfb.Symbol,
			Exchange: tfb.Exchange,
			TF:       tfb.TF,
			TS:       ts,
		}
		if ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			r.Value = v
			r.Ready = true
		}
		if ok {
			r.SetFields(fields)
		}
		results = append(results, r)
	}
	return results
}

// Run consumes TF bars and emits indicator results until ctx is done or
// in is closed. Forming bars are skipped; a full out channel drops results.
func (e *Engine) Run(ctx context.Context, in <-chan model.TFBar, out chan<- model.IndicatorResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case tfb, ok := <-in:
			if !ok {
				return
			}
			if tfb.Forming {
				continue
			}
			for _, r := range e.Process(tfb) {
				select {
				case out <- r:
				default:
					e.log.Debug("result channel full, dropping", zap.String("name", r.Name))
				}
			}
		}
	}
}

// newSymbolCalcs builds fresh calculators for an indicator list.
func (e *Engine) newSymbolCalcs(configs []IndicatorConfig) *symbolCalcs {
	sc := &symbolCalcs{
		calcs:   make([]Calculator, 0, len(configs)),
		configs: make([]IndicatorConfig, 0, len(configs)),
	}
	for _, ic := range configs {
		c, err := New(ic)
		if err != nil {
			e.log.Warn("skipping indicator", zap.String("spec", ic.String()), zap.Error(err))
			continue
		}
		sc.calcs = append(sc.calcs, c)
		sc.configs = append(sc.configs, ic)
	}
	return sc
}
