// Package cost turns token usage into currency using per-million price rows.
package cost

import (
	"math"
	"slices"

	"github.com/charmbracelet/catwalk/pkg/catwalk"

	"github.com/devpilot-ai/devpilot/internal/proto"
)

// Table looks up prices by provider and model. CostPer1MInCached is the
// cache-write price and CostPer1MOutCached the cache-read price.
type Table struct {
	providers map[catwalk.InferenceProvider]catwalk.Provider
}

// NewTable builds a table from the built-in rows with overrides merged over
// them. An override row replaces the built-in row with the same model id.
func NewTable(overrides ...catwalk.Provider) *Table {
	t := &Table{providers: make(map[catwalk.InferenceProvider]catwalk.Provider)}
	for _, p := range builtin() {
		t.providers[p.ID] = p
	}
	for _, o := range overrides {
		t.merge(o)
	}
	return t
}

func (t *Table) merge(o catwalk.Provider) {
	p, ok := t.providers[o.ID]
	if !ok {
		t.providers[o.ID] = o
		return
	}
	if o.DefaultLargeModelID != "" {
		p.DefaultLargeModelID = o.DefaultLargeModelID
	}
	models := slices.Clone(p.Models)
	for _, m := range o.Models {
		idx := slices.IndexFunc(models, func(e catwalk.Model) bool { return e.ID == m.ID })
		if idx >= 0 {
			models[idx] = m
		} else {
			models = append(models, m)
		}
	}
	p.Models = models
	t.providers[o.ID] = p
}

// Lookup returns the exact model row, then the provider default row, then
// zero pricing.
func (t *Table) Lookup(provider, model string) catwalk.Model {
	p, ok := t.providers[catwalk.InferenceProvider(provider)]
	if !ok {
		return catwalk.Model{ID: model}
	}
	if m, ok := findModel(p.Models, model); ok {
		return m
	}
	if m, ok := findModel(p.Models, p.DefaultLargeModelID); ok {
		return m
	}
	return catwalk.Model{ID: model}
}

func findModel(models []catwalk.Model, id string) (catwalk.Model, bool) {
	if id == "" {
		return catwalk.Model{}, false
	}
	for _, m := range models {
		if m.ID == id {
			return m, true
		}
	}
	return catwalk.Model{}, false
}

// Compute prices usage with the row for provider and model.
func (t *Table) Compute(usage proto.Usage, provider, model string) proto.Cost {
	return Compute(usage, t.Lookup(provider, model))
}

// Compute prices usage with row. Components are rounded to 6 decimals and the
// total is the rounded sum of the unrounded components.
func Compute(usage proto.Usage, row catwalk.Model) proto.Cost {
	in := perMillion(usage.InputTokens, row.CostPer1MIn)
	out := perMillion(usage.OutputTokens, row.CostPer1MOut)
	write := perMillion(usage.CacheWriteTokens, row.CostPer1MInCached)
	read := perMillion(usage.CacheReadTokens, row.CostPer1MOutCached)

	return proto.Cost{
		Input:       round6(in),
		Output:      round6(out),
		CacheWrite:  round6(write),
		CacheRead:   round6(read),
		Total:       round6(in + out + write + read),
		TotalTokens: clamp(usage.InputTokens) + clamp(usage.OutputTokens) + clamp(usage.CacheWriteTokens) + clamp(usage.CacheReadTokens),
	}
}

func perMillion(tokens int64, price float64) float64 {
	return float64(clamp(tokens)) / 1_000_000 * price
}

func clamp(n int64) int64 {
	return max(n, 0)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
