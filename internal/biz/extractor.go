package biz

import (
	"context"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/paulmach/orb"
	"github.com/schollz/progressbar/v3"
)

// Extractor S3：把 OSM 实体流转换为地点文档流。
// 依赖 S1 发布的只读空间索引与 S2 的合并结果，自身无可变共享状态，
// 可以放心用 worker 池并发调用。
type Extractor struct {
	index      *AdminIndex
	resolver   *WayResolver
	skipWay    func(int64) bool
	importance ImportanceTable
	langs      []string
	sourceFile string
	version    int64
	log        *log.Helper
}

// NewExtractor 构造提取器。skipWay 用于跳过已被 S2 接管的道路 way。
func NewExtractor(
	index *AdminIndex,
	resolver *WayResolver,
	skipWay func(int64) bool,
	importance ImportanceTable,
	langs []string,
	sourceFile string,
	version int64,
	logger log.Logger,
) *Extractor {
	if skipWay == nil {
		skipWay = func(int64) bool { return false }
	}
	return &Extractor{
		index:      index,
		resolver:   resolver,
		skipWay:    skipWay,
		importance: importance,
		langs:      langs,
		sourceFile: sourceFile,
		version:    version,
		log:        log.NewHelper(logger),
	}
}

// Run 流式遍历实体并把地点写入 out，返回读到的实体数。
// 解码顺序读、分类并行做。out 由调用方关闭；本方法返回时不再写入。
func (e *Extractor) Run(ctx context.Context, source EntitySource, workers int, out chan<- *Place) (int64, error) {
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan any, workers*64)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entity := range jobs {
				var place *Place
				switch v := entity.(type) {
				case *Node:
					place = e.PlaceFromNode(v)
				case *Way:
					place = e.PlaceFromWay(v)
				}
				if place == nil {
					continue
				}
				select {
				case out <- place:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	bar := progressbar.Default(-1, "extracting places")
	var read int64
	submit := func(entity any) error {
		read++
		_ = bar.Add(1)
		select {
		case jobs <- entity:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	err := source.Scan(ctx, EntityHandler{
		Node: func(n *Node) error { return submit(n) },
		Way:  func(w *Way) error { return submit(w) },
	})
	close(jobs)
	wg.Wait()
	_ = bar.Finish()
	return read, err
}

// PlaceFromNode 节点到地点。非候选返回 nil。
func (e *Extractor) PlaceFromNode(n *Node) *Place {
	layer, ok := Classify(n.Tags)
	if !ok {
		return nil
	}
	place := NewPointPlace(TypeNode, n.ID, layer, orb.Point{n.Lon, n.Lat})
	e.finish(place, n.Tags)
	if !place.Indexable() {
		return nil
	}
	return place
}

// PlaceFromWay way 到地点：位置取外包框中心。已被 S2 接管的 way 跳过。
func (e *Extractor) PlaceFromWay(w *Way) *Place {
	if e.skipWay(w.ID) {
		return nil
	}
	layer, ok := Classify(w.Tags)
	if !ok {
		return nil
	}
	bound, ok := e.resolver.Bound(w.ID)
	if !ok {
		return nil
	}
	place := NewPointPlace(TypeWay, w.ID, layer, bound.Center())
	place.SetBound(bound)
	e.finish(place, w.Tags)
	if !place.Indexable() {
		return nil
	}
	return place
}

// PlaceFromAdmin 行政边界自身入索引；父级只取严格更高层级。
func (e *Extractor) PlaceFromAdmin(a *AdminArea) *Place {
	place := NewPointPlace(TypeRelation, a.OsmID, a.Level.Layer(), a.Centroid)
	place.Name = a.Name
	place.WikidataID = a.WikidataID
	place.SetBound(a.Bound)
	place.SourceFile = e.sourceFile
	place.Version = e.version
	place.Parent = e.index.Lookup(a.Centroid, a.Level)
	e.applyImportance(place, Tags{"place": placeTagForLevel(a.Level)})
	return place
}

// PlaceFromRoad 合并道路入索引：折线几何 + merged_ways:N。
func (e *Extractor) PlaceFromRoad(r *MergedRoad) *Place {
	place := &Place{
		ID:    r.ID,
		Layer: LayerStreet,
		Name:  r.Name,
	}
	place.SetLineGeometry(r.Line)
	e.finish(place, r.Tags)
	place.Categories = append(place.Categories, r.MergedWaysCategory())
	if !place.Indexable() {
		return nil
	}
	return place
}

// finish 公共收尾：名称、地址、分类、wikidata、重要性、PIP 父级。
func (e *Extractor) finish(place *Place, tags Tags) {
	if place.Name.Empty() {
		place.Name = ExtractNames(tags)
	}
	place.Name.Fill(e.langs)
	place.SourceFile = e.sourceFile
	place.Version = e.version
	place.Categories = Categories(tags)

	if addr := extractAddress(tags); !addr.Empty() {
		place.Address = addr
	}
	if qid := tags["wikidata"]; qid != "" {
		place.WikidataID = qid
	} else if qid := tags["brand:wikidata"]; qid != "" {
		place.WikidataID = qid
	}
	e.applyImportance(place, tags)

	pt := orb.Point{place.CenterPoint.Lon, place.CenterPoint.Lat}
	place.Parent = e.index.Lookup(pt, NoLevelLimit)
}

func (e *Extractor) applyImportance(place *Place, tags Tags) {
	if place.WikidataID != "" {
		if score, ok := e.importance[place.WikidataID]; ok {
			place.SetImportance(score)
			return
		}
	}
	place.SetImportance(DefaultImportance(tags))
}

func extractAddress(tags Tags) *Address {
	return &Address{
		HouseNumber: tags["addr:housenumber"],
		Street:      tags["addr:street"],
		Postcode:    tags["addr:postcode"],
		City:        tags["addr:city"],
	}
}

// placeTagForLevel 边界层级到 place=* 值的近似映射，仅用于缺省重要性。
func placeTagForLevel(l AdminLevel) string {
	switch l {
	case LevelCountry:
		return "country"
	case LevelMacroRegion, LevelRegion:
		return "state"
	case LevelMacroCounty, LevelCounty:
		return "county"
	case LevelLocalAdmin, LevelLocality:
		return "city"
	}
	return "suburb"
}
