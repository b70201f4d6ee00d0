package indicator

import (
	"fmt"

	"go.uber.org/zap"

	"ta-core/internal/core"
)

// ReloadConfigs swaps in newConfigs. Calculators whose config key is
// unchanged keep their accumulated state; only genuinely new indicators
// start cold. Returns the number of preserved and new instrument states.
func (e *Engine) ReloadConfigs(newConfigs []TFIndicatorConfig) (preserved, created int) {
	oldCfgByTF := make(map[int]TFIndicatorConfig, len(e.configs))
	oldStateByTF := make(map[int]map[string]*symbolCalcs, len(e.configs))
	for i, cfg := range e.configs {
		oldCfgByTF[cfg.TF] = cfg
		oldStateByTF[cfg.TF] = e.state[i]
	}

	newState := make([]map[string]*symbolCalcs, len(newConfigs))
	for i, newCfg := range newConfigs {
		oldCfg, tfExists := oldCfgByTF[newCfg.TF]
		oldTFState := oldStateByTF[newCfg.TF]

		if !tfExists || oldTFState == nil {
			newState[i] = make(map[string]*symbolCalcs, 64)
			created++
			e.log.Info("reload: new timeframe, cold-starting", zap.Int("tf", newCfg.TF))
			continue
		}

		if indicatorSetsEqual(oldCfg.Indicators, newCfg.Indicators) {
			newState[i] = oldTFState
			preserved += len(oldTFState)
			e.log.Info("reload: timeframe unchanged",
				zap.Int("tf", newCfg.TF), zap.Int("preserved", len(oldTFState)))
			continue
		}

		migrated := make(map[string]*symbolCalcs, len(oldTFState))
		for key, old := range oldTFState {
			migrated[key] = e.migrate(old, newCfg.Indicators)
			preserved++
		}
		newState[i] = migrated
		created++
		e.log.Info("reload: migrated instrument states",
			zap.Int("tf", newCfg.TF), zap.Int("instruments", len(migrated)))
	}

	e.setConfigs(newConfigs, newState)
	e.log.Info("reload: config applied",
		zap.Int("timeframes", len(newConfigs)), zap.Int("preserved", preserved), zap.Int("created", created))
	return preserved, created
}

// migrate builds calculators for configs, reusing old ones with the same key.
func (e *Engine) migrate(old *symbolCalcs, configs []IndicatorConfig) *symbolCalcs {
	byKey := make(map[string]Calculator, len(old.calcs))
	for i, cfg := range old.configs {
		byKey[cfg.Key()] = old.calcs[i]
	}

	fresh := e.newSymbolCalcs(configs)
	for i, cfg := range fresh.configs {
		if existing, ok := byKey[cfg.Key()]; ok {
			fresh.calcs[i] = existing
		}
	}
	return fresh
}

// indicatorSetsEqual checks if two indicator config slices have the exact same
// set of indicators (order-independent).
func indicatorSetsEqual(a, b []IndicatorConfig) bool {
	if len(a) != len(b) {
		return false
	}
	setA := make(map[string]bool, len(a))
	for _, ic := range a {
		setA[ic.Key()] = true
	}
	for _, ic := range b {
		if !setA[ic.Key()] {
			return false
		}
	}
	return true
}

// ValidateConfigs checks a set of TFIndicatorConfigs for errors: positive
// unique TFs, known types and constructible parameters.
func ValidateConfigs(configs []TFIndicatorConfig) error {
	seen := make(map[int]bool)
	for _, cfg := range configs {
		if cfg.TF <= 0 {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("invalid TF=%d: must be positive", cfg.TF))
		}
		if seen[cfg.TF] {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("duplicate TF=%d", cfg.TF))
		}
		seen[cfg.TF] = true

		names := make(map[string]bool, len(cfg.Indicators))
		for _, ind := range cfg.Indicators {
			if _, err := New(ind); err != nil {
				return fmt.Errorf("TF=%d %s: %w", cfg.TF, ind.String(), err)
			}
			if names[ind.Key()] {
				return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("duplicate indicator %s on TF=%d", ind.Key(), cfg.TF))
			}
			names[ind.Key()] = true
		}
	}
	return nil
}
