// Package conflicts detects disagreements between sources reporting the same
// catalog item's price and resolves them.
package conflicts

import (
	"math"
	"sort"

	"github.com/basarometer/sourcectl/internal/model"
)

// Disagreement is a pair of current observations for one item whose prices
// differ by more than the threshold. A.SourceID sorts before B.SourceID.
type Disagreement struct {
	CatalogItemID string
	A             model.PriceObservation
	B             model.PriceObservation
	RelativeDiff  float64
}

// RelativeDiff returns |p1-p2| / min(p1, p2). Non-positive prices give 0.
// 40 and 55 -> 0.375.
func RelativeDiff(p1, p2 float64) float64 {
	lo := math.Min(p1, p2)
	if lo <= 0 {
		return 0
	}
	return math.Abs(p1-p2) / lo
}

// FindDisagreements keeps the latest active observation per item and source
// and compares every pair of sources for each item. Pairs whose relative
// difference exceeds threshold are returned, ordered by item and source ids.
func FindDisagreements(obs []model.PriceObservation, threshold float64) []Disagreement {
	type key struct{ item, source string }
	latest := make(map[key]model.PriceObservation)
	for _, o := range obs {
		if !o.Active || o.Price <= 0 || o.CatalogItemID == "" || o.SourceID == "" {
			continue
		}
		k := key{o.CatalogItemID, o.SourceID}
		cur, ok := latest[k]
		if !ok || o.ObservedAt.After(cur.ObservedAt) ||
			(o.ObservedAt.Equal(cur.ObservedAt) && o.ID > cur.ID) {
			latest[k] = o
		}
	}

	byItem := make(map[string][]model.PriceObservation)
	for k, o := range latest {
		byItem[k.item] = append(byItem[k.item], o)
	}

	items := make([]string, 0, len(byItem))
	for item := range byItem {
		items = append(items, item)
	}
	sort.Strings(items)

	var out []Disagreement
	for _, item := range items {
		group := byItem[item]
		sort.Slice(group, func(i, j int) bool { return group[i].SourceID < group[j].SourceID })
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				diff := RelativeDiff(group[i].Price, group[j].Price)
				if diff > threshold {
					out = append(out, Disagreement{
						CatalogItemID: item,
						A:             group[i],
						B:             group[j],
						RelativeDiff:  diff,
					})
				}
			}
		}
	}
	return out
}
