package biz

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/rtree"
)

// AdminIndex 行政边界的只读空间索引。
// S1 发布后不再变更，PIP 查询可以并发进行且无锁。
type AdminIndex struct {
	tree  rtree.RTreeG[*AdminArea]
	areas []*AdminArea
	langs []string
}

// NewAdminIndex 以边界外包框建 R 树。
func NewAdminIndex(areas []*AdminArea, langs []string) *AdminIndex {
	idx := &AdminIndex{areas: areas, langs: langs}
	for _, a := range areas {
		b := a.Bound
		idx.tree.Insert(
			[2]float64{b.Min.Lon(), b.Min.Lat()},
			[2]float64{b.Max.Lon(), b.Max.Lat()},
			a,
		)
	}
	return idx
}

// Len 索引中的边界数量。
func (idx *AdminIndex) Len() int { return len(idx.areas) }

// Areas 全部边界（层级升序，同层按 OSM ID 升序）。
func (idx *AdminIndex) Areas() []*AdminArea {
	out := append([]*AdminArea(nil), idx.areas...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].OsmID < out[j].OsmID
	})
	return out
}

// Containing 返回包含该点的全部边界：外包框候选 + 精确含孔判定。
func (idx *AdminIndex) Containing(pt orb.Point) []*AdminArea {
	var hits []*AdminArea
	q := [2]float64{pt.Lon(), pt.Lat()}
	idx.tree.Search(q, q, func(_, _ [2]float64, a *AdminArea) bool {
		if planar.MultiPolygonContains(a.Polygon, pt) {
			hits = append(hits, a)
		}
		return true
	})
	return hits
}

// Lookup PIP 查询：每个层级至多保留一个条目。
// 同层多个边界都包含该点时取外包框面积最小者（最紧贴合）。
// maxLevel 非负时只保留严格高于该层级的父级（边界自身入索引时用）。
func (idx *AdminIndex) Lookup(pt orb.Point, maxLevel AdminLevel) AdminHierarchy {
	hits := idx.Containing(pt)
	if len(hits) == 0 {
		return nil
	}

	best := make(map[AdminLevel]*AdminArea, numAdminLevels)
	for _, a := range hits {
		if maxLevel >= 0 && a.Level >= maxLevel {
			continue
		}
		cur, ok := best[a.Level]
		if !ok || boundArea(a.Bound) < boundArea(cur.Bound) ||
			(boundArea(a.Bound) == boundArea(cur.Bound) && a.OsmID < cur.OsmID) {
			best[a.Level] = a
		}
	}
	if len(best) == 0 {
		return nil
	}

	hierarchy := make(AdminHierarchy, len(best))
	for level, a := range best {
		hierarchy[level] = EntryFromArea(a, idx.langs)
	}
	return hierarchy
}

// NoLevelLimit Lookup 的 maxLevel 取值：不限制层级。
const NoLevelLimit AdminLevel = -1

func boundArea(b orb.Bound) float64 {
	return (b.Max.Lon() - b.Min.Lon()) * (b.Max.Lat() - b.Min.Lat())
}
