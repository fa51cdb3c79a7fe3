package config

import (
	"github.com/systemis/funding-machine-backend/pkg/entity"
	"github.com/systemis/funding-machine-backend/pkg/utils"
)

// ChainPolicy decides which chains the EVM sync is allowed to touch.
type ChainPolicy struct {
	NonEVM  entity.ChainSet
	Stopped entity.ChainSet
}

// DefaultChainPolicy uses the built-in catalogue. STOPPED_CHAINS, a comma separated list,
// replaces the stopped set when present.
func DefaultChainPolicy() ChainPolicy {
	stopped := entity.StoppedChains
	if raw := utils.EnvList("STOPPED_CHAINS"); len(raw) > 0 {
		stopped = make([]entity.ChainID, 0, len(raw))
		for _, c := range raw {
			stopped = append(stopped, entity.ChainID(c))
		}
	}
	return ChainPolicy{
		NonEVM:  entity.NewChainSet(entity.NonEVMChains),
		Stopped: entity.NewChainSet(stopped),
	}
}

// Syncable reports whether the EVM sync should run for the chain.
func (p ChainPolicy) Syncable(c entity.ChainID) bool {
	return !p.NonEVM.Has(c) && !p.Stopped.Has(c)
}

// Excluded returns every chain the sync must skip.
func (p ChainPolicy) Excluded() []string {
	all := entity.ChainSet{}
	for c := range p.NonEVM {
		all[c] = struct{}{}
	}
	for c := range p.Stopped {
		all[c] = struct{}{}
	}
	return all.Slice()
}
