package biz

import (
	"context"
	"sort"
	"strconv"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// adminRelation 发现遍记录的行政关系：标签元数据 + 成员 way 引用。
type adminRelation struct {
	osmID      int64
	level      AdminLevel
	name       NameBundle
	abbr       string
	wikidataID string
	outerWays  []int64
	innerWays  []int64
}

// Assembler S1：从提取文件装配行政边界多边形。
// 两遍扫描：先发现关系及其成员引用，再物化坐标并缝合环。
type Assembler struct {
	source EntitySource
	langs  []string
	log    *log.Helper
}

// NewAssembler 构造装配器。
func NewAssembler(source EntitySource, langs []string, logger log.Logger) *Assembler {
	return &Assembler{source: source, langs: langs, log: log.NewHelper(logger)}
}

// Build 运行两遍扫描并返回不可变的空间索引。
func (a *Assembler) Build(ctx context.Context) (*AdminIndex, error) {
	relations, neededWays, err := a.discover(ctx)
	if err != nil {
		return nil, err
	}
	a.log.Infof("admin discovery: %d relations, %d member ways", len(relations), len(neededWays))

	wayNodes, nodes, err := a.materialize(ctx, neededWays)
	if err != nil {
		return nil, err
	}
	a.log.Infof("admin materialization: %d ways, %d node positions", len(wayNodes), len(nodes))

	areas := make([]*AdminArea, 0, len(relations))
	dropped := 0
	for _, rel := range relations {
		area, ok := a.assemble(rel, wayNodes, nodes)
		if !ok {
			dropped++
			continue
		}
		areas = append(areas, area)
	}
	if dropped > 0 {
		a.log.Warnf("dropped %d admin relations that could not be stitched", dropped)
	}
	a.log.Infof("assembled %d admin boundaries", len(areas))

	return NewAdminIndex(areas, a.langs), nil
}

// discover 第一遍：行政关系、其 outer/inner 成员 way 集合。
// 封闭的 boundary=administrative way 也作为单环边界收录。
func (a *Assembler) discover(ctx context.Context) ([]*adminRelation, map[int64]struct{}, error) {
	var relations []*adminRelation
	neededWays := make(map[int64]struct{})

	err := a.source.Scan(ctx, EntityHandler{
		Way: func(w *Way) error {
			rel, ok := adminMeta(w.ID, w.Tags)
			if !ok {
				return nil
			}
			// 老数据里偶见以单个闭合 way 表达的边界
			if len(w.NodeIDs) < 4 || w.NodeIDs[0] != w.NodeIDs[len(w.NodeIDs)-1] {
				return nil
			}
			rel.outerWays = []int64{w.ID}
			relations = append(relations, rel)
			neededWays[w.ID] = struct{}{}
			return nil
		},
		Relation: func(r *Relation) error {
			rel, ok := adminMeta(r.ID, r.Tags)
			if !ok {
				return nil
			}
			for _, m := range r.Members {
				if m.Type != MemberWay {
					continue
				}
				switch m.Role {
				case "outer", "":
					rel.outerWays = append(rel.outerWays, m.ID)
				case "inner":
					rel.innerWays = append(rel.innerWays, m.ID)
				default:
					continue
				}
				neededWays[m.ID] = struct{}{}
			}
			if len(rel.outerWays) == 0 {
				return nil
			}
			relations = append(relations, rel)
			return nil
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return relations, neededWays, nil
}

// materialize 第二遍：留存所需 way 的节点序列与所需节点的坐标。
func (a *Assembler) materialize(ctx context.Context, neededWays map[int64]struct{}) (map[int64][]int64, map[int64]orb.Point, error) {
	wayNodes := make(map[int64][]int64, len(neededWays))
	neededNodes := make(map[int64]struct{})

	err := a.source.Scan(ctx, EntityHandler{
		Way: func(w *Way) error {
			if _, ok := neededWays[w.ID]; !ok {
				return nil
			}
			ids := make([]int64, len(w.NodeIDs))
			copy(ids, w.NodeIDs)
			wayNodes[w.ID] = ids
			for _, n := range ids {
				neededNodes[n] = struct{}{}
			}
			return nil
		},
	})
	if err != nil {
		return nil, nil, err
	}

	nodes := make(map[int64]orb.Point, len(neededNodes))
	err = a.source.Scan(ctx, EntityHandler{
		Node: func(n *Node) error {
			if _, ok := neededNodes[n.ID]; ok {
				nodes[n.ID] = orb.Point{n.Lon, n.Lat}
			}
			return nil
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return wayNodes, nodes, nil
}

// assemble 缝合单个关系的外环与孔洞。外环一个都合不拢则整体丢弃。
func (a *Assembler) assemble(rel *adminRelation, wayNodes map[int64][]int64, nodes map[int64]orb.Point) (*AdminArea, bool) {
	outers := stitchRings(rel.outerWays, wayNodes)
	if len(outers) == 0 {
		a.log.Warnf("admin relation %d: outer ring did not close, skipping", rel.osmID)
		return nil, false
	}
	inners := stitchRings(rel.innerWays, wayNodes)

	polygons := make(orb.MultiPolygon, 0, len(outers))
	for _, ring := range outers {
		coords, ok := ringCoords(ring, nodes)
		if !ok {
			a.log.Warnf("admin relation %d: outer ring references missing nodes, skipping ring", rel.osmID)
			continue
		}
		polygons = append(polygons, orb.Polygon{coords})
	}
	if len(polygons) == 0 {
		return nil, false
	}

	for _, ring := range inners {
		coords, ok := ringCoords(ring, nodes)
		if !ok {
			continue
		}
		// 孔洞归属：首点落在哪个外环内
		for i := range polygons {
			if planar.RingContains(polygons[i][0], coords[0]) {
				polygons[i] = append(polygons[i], coords)
				break
			}
		}
	}

	centroid, _ := planar.CentroidArea(polygons)
	return &AdminArea{
		OsmID:      rel.osmID,
		Level:      rel.level,
		Name:       rel.name,
		Abbr:       rel.abbr,
		WikidataID: rel.wikidataID,
		Polygon:    polygons,
		Bound:      polygons.Bound(),
		Centroid:   centroid,
	}, true
}

// adminMeta 解析行政边界标签；非行政边界或无名称返回 false。
func adminMeta(osmID int64, tags Tags) (*adminRelation, bool) {
	if !tags.Is("boundary", "administrative") {
		return nil, false
	}
	levelNum, err := strconv.Atoi(tags["admin_level"])
	if err != nil {
		return nil, false
	}
	level, ok := AdminLevelFromOSM(levelNum)
	if !ok {
		return nil, false
	}
	name := ExtractNames(tags)
	if name.Empty() {
		return nil, false
	}

	abbr := tags["ISO3166-1:alpha2"]
	if abbr == "" {
		abbr = tags["ISO3166-1:alpha3"]
	}
	if abbr == "" {
		abbr = tags["short_name"]
	}

	return &adminRelation{
		osmID:      osmID,
		level:      level,
		name:       name,
		abbr:       abbr,
		wikidataID: tags["wikidata"],
	}, true
}

// stitchRings 端点匹配缝环。成员 way 顺序与方向都不可靠：
// 反复取编号最小的未用 way 作链头，在链的任一端接续共享端点的
// way（必要时反向），直到闭合或无可接续。未闭合的链丢弃。
// 选择有歧义时按 way 编号升序决定，保证结果确定。
func stitchRings(wayIDs []int64, wayNodes map[int64][]int64) [][]int64 {
	ids := make([]int64, 0, len(wayIDs))
	seen := make(map[int64]bool, len(wayIDs))
	for _, id := range wayIDs {
		if _, ok := wayNodes[id]; !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	used := make(map[int64]bool, len(ids))
	var rings [][]int64

	for _, start := range ids {
		if used[start] {
			continue
		}
		used[start] = true
		chain := append([]int64(nil), wayNodes[start]...)
		if len(chain) < 2 {
			continue
		}

		for chain[0] != chain[len(chain)-1] {
			extended := false
			for _, id := range ids {
				if used[id] {
					continue
				}
				segment := wayNodes[id]
				if len(segment) < 2 {
					used[id] = true
					continue
				}
				switch {
				case segment[0] == chain[len(chain)-1]:
					chain = append(chain, segment[1:]...)
				case segment[len(segment)-1] == chain[len(chain)-1]:
					chain = append(chain, reversedIDs(segment)[1:]...)
				case segment[len(segment)-1] == chain[0]:
					chain = append(append([]int64(nil), segment[:len(segment)-1]...), chain...)
				case segment[0] == chain[0]:
					chain = append(reversedIDs(segment)[:len(segment)-1], chain...)
				default:
					continue
				}
				used[id] = true
				extended = true
				break
			}
			if !extended {
				break
			}
		}

		if len(chain) >= 4 && chain[0] == chain[len(chain)-1] {
			rings = append(rings, chain)
		}
	}
	return rings
}

// ringCoords 将节点编号环转换为坐标环；任何节点缺坐标则失败。
func ringCoords(ring []int64, nodes map[int64]orb.Point) (orb.Ring, bool) {
	coords := make(orb.Ring, 0, len(ring))
	for _, id := range ring {
		pt, ok := nodes[id]
		if !ok {
			return nil, false
		}
		coords = append(coords, pt)
	}
	return coords, true
}

func reversedIDs(ids []int64) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}
