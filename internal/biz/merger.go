package biz

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/paulmach/orb"
)

// roadWay 参与合并的单条道路 way。
type roadWay struct {
	id    int64
	nodes []int64
	tags  Tags
}

// MergedRoad 合并结果：一条连续折线及其来源 way。
type MergedRoad struct {
	ID     string         // "road/{hash}"，跨运行稳定
	Name   NameBundle     // 分桶名对应的 bundle（取首条 way）
	Tags   Tags           // 首条 way 的标签（桶内应当一致）
	Line   orb.LineString // 连续折线
	WayIDs []int64        // 链上的 way，沿链顺序
}

// MergedWaysCategory 合并道路的 categories 标记。
func (m *MergedRoad) MergedWaysCategory() string {
	return "merged_ways:" + strconv.Itoa(len(m.WayIDs))
}

// RoadMerger S2：把共享端点、同名同级的道路 way 归并为折线。
type RoadMerger struct {
	buckets  map[string][]*roadWay
	consumed map[int64]bool
	langs    []string
	log      *log.Helper
}

// NewRoadMerger 构造道路合并器。
func NewRoadMerger(langs []string, logger log.Logger) *RoadMerger {
	return &RoadMerger{
		buckets:  make(map[string][]*roadWay),
		consumed: make(map[int64]bool),
		langs:    langs,
		log:      log.NewHelper(logger),
	}
}

// Add 收集一条可合并道路。不合格的 way 原样忽略（由 S3 处理）。
func (m *RoadMerger) Add(w *Way) bool {
	if !MergeableRoad(w.Tags) {
		return false
	}
	name := ExtractNames(w.Tags).Default(m.langs)
	key := name + "|" + w.Tags["highway"]
	nodes := make([]int64, len(w.NodeIDs))
	copy(nodes, w.NodeIDs)
	m.buckets[key] = append(m.buckets[key], &roadWay{id: w.ID, nodes: nodes, tags: w.Tags})
	m.consumed[w.ID] = true
	return true
}

// Consumed 判断 way 是否已被合并器接管（S3 据此跳过）。
func (m *RoadMerger) Consumed(wayID int64) bool { return m.consumed[wayID] }

// Merge 对每个 (名称, 等级) 桶求连通链并产出合并道路。
// 带分叉的连通分量拆成多条最大链，保证折线始终连续。
func (m *RoadMerger) Merge(resolver *WayResolver) []*MergedRoad {
	keys := make([]string, 0, len(m.buckets))
	for k := range m.buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []*MergedRoad
	totalWays := 0
	for _, key := range keys {
		ways := m.buckets[key]
		totalWays += len(ways)
		highway := ways[0].tags["highway"]
		name, _, _ := strings.Cut(key, "|")

		for _, chain := range buildChains(ways) {
			road, ok := m.buildRoad(name, highway, chain, resolver)
			if !ok {
				continue
			}
			out = append(out, road)
		}
	}
	m.log.Infof("merged %d road ways into %d polylines", totalWays, len(out))
	return out
}

// buildRoad 把一条链转成折线并定稿 ID。
func (m *RoadMerger) buildRoad(name, highway string, chain []*roadWay, resolver *WayResolver) (*MergedRoad, bool) {
	var line orb.LineString
	wayIDs := make([]int64, 0, len(chain))

	for i, w := range chain {
		segment, ok := resolver.Line(w.id)
		if !ok {
			m.log.Warnf("road way %d has no resolvable geometry, dropping from chain", w.id)
			continue
		}
		if len(line) > 0 {
			// 链保证相邻 way 共享端点；按需要反向保持连续
			if w.nodes[len(w.nodes)-1] == chainJoinNode(chain, i) {
				segment.Reverse()
			}
			segment = segment[1:]
		} else if len(chain) > 1 && w.nodes[0] == joinNodeBetween(w, chain[1]) {
			// 首段的接点应落在段尾
			segment.Reverse()
		}
		line = append(line, segment...)
		wayIDs = append(wayIDs, w.id)
	}
	if len(line) < 2 {
		return nil, false
	}

	first := chain[0]
	return &MergedRoad{
		ID:     RoadID(name, highway, wayIDs),
		Name:   ExtractNames(first.tags),
		Tags:   first.tags,
		Line:   line,
		WayIDs: wayIDs,
	}, true
}

// RoadID 合并道路的稳定 ID：对 name|highway|升序 way 编号做 xxhash。
// 与 map 迭代顺序无关，相同输入跨运行产出相同 ID。
func RoadID(name, highway string, wayIDs []int64) string {
	sorted := append([]int64(nil), wayIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	h := xxhash.New()
	_, _ = h.WriteString(name)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(highway)
	for _, id := range sorted {
		_, _ = h.WriteString("|")
		_, _ = h.WriteString(strconv.FormatInt(id, 10))
	}
	return fmt.Sprintf("road/%016x", h.Sum64())
}

// buildChains 在桶内求最大链。端点多重表连通，编号升序走链：
// 从编号最小的未用 way 起步，先向尾端、再向头端延伸，直到两端都无可接续；
// 简单路径因此得到端点到端点的整条链，纯环从编号最小的 way 起步。
func buildChains(ways []*roadWay) [][]*roadWay {
	sorted := append([]*roadWay(nil), ways...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })

	// 端点 → 尚未用掉的 way
	byEndpoint := make(map[int64][]*roadWay)
	for _, w := range sorted {
		if len(w.nodes) < 2 {
			continue
		}
		byEndpoint[w.nodes[0]] = append(byEndpoint[w.nodes[0]], w)
		if w.nodes[len(w.nodes)-1] != w.nodes[0] {
			byEndpoint[w.nodes[len(w.nodes)-1]] = append(byEndpoint[w.nodes[len(w.nodes)-1]], w)
		}
	}

	used := make(map[int64]bool, len(sorted))
	takeNext := func(node int64) *roadWay {
		for _, w := range byEndpoint[node] {
			if !used[w.id] {
				return w
			}
		}
		return nil
	}

	for _, w := range sorted {
		if len(w.nodes) < 2 {
			used[w.id] = true
		}
	}

	var chains [][]*roadWay
	for _, start := range sorted {
		if used[start.id] {
			continue
		}
		used[start.id] = true
		chain := []*roadWay{start}

		// 先向尾端延伸，再向头端延伸
		tail := start.nodes[len(start.nodes)-1]
		for {
			next := takeNext(tail)
			if next == nil {
				break
			}
			used[next.id] = true
			chain = append(chain, next)
			if next.nodes[0] == tail {
				tail = next.nodes[len(next.nodes)-1]
			} else {
				tail = next.nodes[0]
			}
		}
		head := start.nodes[0]
		for {
			next := takeNext(head)
			if next == nil {
				break
			}
			used[next.id] = true
			chain = append([]*roadWay{next}, chain...)
			if next.nodes[0] == head {
				head = next.nodes[len(next.nodes)-1]
			} else {
				head = next.nodes[0]
			}
		}
		chains = append(chains, chain)
	}
	return chains
}

// chainJoinNode 链中第 i 段与前一段的共享节点。
func chainJoinNode(chain []*roadWay, i int) int64 {
	return joinNodeBetween(chain[i], chain[i-1])
}

// joinNodeBetween 两段共享的端点；取 a 的端点中出现在 b 端点集合里的那个。
func joinNodeBetween(a, b *roadWay) int64 {
	aStart, aEnd := a.nodes[0], a.nodes[len(a.nodes)-1]
	bStart, bEnd := b.nodes[0], b.nodes[len(b.nodes)-1]
	if aStart == bStart || aStart == bEnd {
		return aStart
	}
	if aEnd == bStart || aEnd == bEnd {
		return aEnd
	}
	return aStart
}
