package biz

import (
	"context"

	"github.com/paulmach/orb"
)

// WayResolver 候选 way 的几何求解器：节点序列 + 紧凑坐标表。
// 发现遍确定需要的 way/node 子集，坐标表按需预分配。
type WayResolver struct {
	wayNodes map[int64][]int64
	nodes    map[int64]orb.Point
}

// BuildWayResolver 两遍扫描构建求解器。keep 决定留存哪些 way，
// 同一遍顺带回调给调用方（S2 借此收集可合并道路）。
func BuildWayResolver(ctx context.Context, source EntitySource, keep func(*Way) bool) (*WayResolver, error) {
	r := &WayResolver{wayNodes: make(map[int64][]int64)}
	neededNodes := make(map[int64]struct{})

	err := source.Scan(ctx, EntityHandler{
		Way: func(w *Way) error {
			if !keep(w) {
				return nil
			}
			ids := make([]int64, len(w.NodeIDs))
			copy(ids, w.NodeIDs)
			r.wayNodes[w.ID] = ids
			for _, n := range ids {
				neededNodes[n] = struct{}{}
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	r.nodes = make(map[int64]orb.Point, len(neededNodes))
	err = source.Scan(ctx, EntityHandler{
		Node: func(n *Node) error {
			if _, ok := neededNodes[n.ID]; ok {
				r.nodes[n.ID] = orb.Point{n.Lon, n.Lat}
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// NodePoint 单个节点坐标。
func (r *WayResolver) NodePoint(id int64) (orb.Point, bool) {
	pt, ok := r.nodes[id]
	return pt, ok
}

// Line way 的坐标折线。引用缺失的节点被跳过；不足两点视为失败。
func (r *WayResolver) Line(wayID int64) (orb.LineString, bool) {
	ids, ok := r.wayNodes[wayID]
	if !ok {
		return nil, false
	}
	line := make(orb.LineString, 0, len(ids))
	for _, id := range ids {
		if pt, ok := r.nodes[id]; ok {
			line = append(line, pt)
		}
	}
	if len(line) < 2 {
		return nil, false
	}
	return line, true
}

// Bound way 的外包框。
func (r *WayResolver) Bound(wayID int64) (orb.Bound, bool) {
	line, ok := r.Line(wayID)
	if !ok {
		return orb.Bound{}, false
	}
	return line.Bound(), true
}

// Center way 外包框的中心（S3 将其用作 way 的位置）。
func (r *WayResolver) Center(wayID int64) (orb.Point, bool) {
	b, ok := r.Bound(wayID)
	if !ok {
		return orb.Point{}, false
	}
	return b.Center(), true
}
