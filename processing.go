package tagconf

import "sort"

// Orders holds the relative execution position of a processing at each
// of the five pipeline timings. Lower values run first; ties are broken
// by insertion order in the process list.
type Orders struct {
	Premerge  float64
	Postmerge float64
	EndBuild  float64
	Presave   float64
	Postload  float64
}

// Processing is the extension point of the merge pipeline. Each hook
// receives the flat working config and may read, add, remove or rewrite
// entries of its dict, and may append to its process list. A hook must
// not assume any other processing has or has not run except through the
// documented ordering.
//
// Processings accumulate private state across invocations within one
// build session; that state is part of their identity. Equal must
// compare the concrete type and its declared fields, and is used to
// filter duplicate processings when process lists from two sources are
// merged.
type Processing interface {
	Orders() Orders
	Premerge(cfg *Config) error
	Postmerge(cfg *Config) error
	EndBuild(cfg *Config) error
	Presave(cfg *Config) error
	Postload(cfg *Config) error
	Equal(other Processing) bool
}

// NopProcessing provides identity implementations of the five hooks.
// Concrete processings embed it and override the hooks they need, plus
// Orders and Equal.
type NopProcessing struct{}

func (NopProcessing) Premerge(*Config) error  { return nil }
func (NopProcessing) Postmerge(*Config) error { return nil }
func (NopProcessing) EndBuild(*Config) error  { return nil }
func (NopProcessing) Presave(*Config) error   { return nil }
func (NopProcessing) Postload(*Config) error  { return nil }

type timing int

const (
	timingPremerge timing = iota
	timingPostmerge
	timingEndBuild
	timingPresave
	timingPostload
)

func orderAt(p Processing, t timing) float64 {
	orders := p.Orders()
	switch t {
	case timingPremerge:
		return orders.Premerge
	case timingPostmerge:
		return orders.Postmerge
	case timingEndBuild:
		return orders.EndBuild
	case timingPresave:
		return orders.Presave
	default:
		return orders.Postload
	}
}

// sortedByOrder returns a copy of the process list sorted by the order
// of the given timing. The sort is stable so equal orders keep their
// list insertion order.
func sortedByOrder(list []Processing, t timing) []Processing {
	ordered := make([]Processing, len(list))
	copy(ordered, list)
	sort.SliceStable(ordered, func(i, j int) bool {
		return orderAt(ordered[i], t) < orderAt(ordered[j], t)
	})
	return ordered
}

func containsProcessing(list []Processing, p Processing) bool {
	for _, candidate := range list {
		if candidate.Equal(p) {
			return true
		}
	}
	return false
}
