package biz

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeoPoint 文档的 center_point 字段。
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Address 地址组件（addr:* 标签）。
type Address struct {
	HouseNumber string `json:"housenumber,omitempty"`
	Street      string `json:"street,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
	City        string `json:"city,omitempty"`
}

// Empty 判断地址块是否为空。
func (a *Address) Empty() bool {
	return a == nil || (a.HouseNumber == "" && a.Street == "" && a.Postcode == "" && a.City == "")
}

// Place 写入搜索后端的反范式化地点文档。
type Place struct {
	ID          string            `json:"id"`          // "{type}/{osm_id}"，重导入间稳定
	Layer       Layer             `json:"layer"`       // 粗分类
	SourceFile  string            `json:"source_file"` // 来源提取文件的规范词干
	Version     int64             `json:"version"`     // 本次运行的版本号
	CenterPoint GeoPoint          `json:"center_point"`
	Geometry    *geojson.Geometry `json:"geometry"`
	BoundingBox []float64         `json:"bounding_box,omitempty"` // [minLon, minLat, maxLon, maxLat]
	Name        NameBundle        `json:"name"`
	Parent      AdminHierarchy    `json:"parent,omitempty"`
	Categories  []string          `json:"categories,omitempty"`
	Importance  *float64          `json:"importance,omitempty"`
	WikidataID  string            `json:"wikidata_id,omitempty"`
	Address     *Address          `json:"address,omitempty"`
}

// PlaceID 规范化文档 ID。
func PlaceID(t OsmType, osmID int64) string {
	return fmt.Sprintf("%s/%d", t, osmID)
}

// NewPointPlace 构造点几何地点。
func NewPointPlace(t OsmType, osmID int64, layer Layer, pt orb.Point) *Place {
	return &Place{
		ID:          PlaceID(t, osmID),
		Layer:       layer,
		CenterPoint: GeoPoint{Lat: pt.Lat(), Lon: pt.Lon()},
		Geometry:    geojson.NewGeometry(pt),
		Name:        NameBundle{},
	}
}

// SetLineGeometry 折线几何（合并道路），bbox 取折线外包框。
func (p *Place) SetLineGeometry(line orb.LineString) {
	p.Geometry = geojson.NewGeometry(line)
	p.SetBound(line.Bound())
	center := line.Bound().Center()
	p.CenterPoint = GeoPoint{Lat: center.Lat(), Lon: center.Lon()}
}

// SetBound 设置 bounding_box 字段。
func (p *Place) SetBound(b orb.Bound) {
	p.BoundingBox = []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
}

// Indexable 判断文档是否满足入索引的最低要求：
// 名称非空，或为带门牌号的地址记录。
func (p *Place) Indexable() bool {
	if !p.Name.Empty() {
		return true
	}
	return p.Layer == LayerAddress && p.Address != nil && p.Address.HouseNumber != ""
}

// SetImportance 设置重要性评分（截断到 [0,1]）。
func (p *Place) SetImportance(score float64) {
	score = min(max(score, 0), 1)
	p.Importance = &score
}
