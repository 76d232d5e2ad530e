package biz

import (
	"encoding/json"

	"github.com/paulmach/orb"
)

// AdminLevel 行政层级（OSM admin_level 数值映射后的语义名）。
type AdminLevel int

const (
	LevelCountry AdminLevel = iota
	LevelMacroRegion
	LevelRegion
	LevelMacroCounty
	LevelCounty
	LevelLocalAdmin
	LevelLocality
	LevelBorough
	LevelNeighbourhood
	numAdminLevels
)

// AdminLevelFromOSM OSM admin_level 数值到语义层级的固定表。
func AdminLevelFromOSM(level int) (AdminLevel, bool) {
	switch level {
	case 2:
		return LevelCountry, true
	case 3:
		return LevelMacroRegion, true
	case 4:
		return LevelRegion, true
	case 5:
		return LevelMacroCounty, true
	case 6:
		return LevelCounty, true
	case 7:
		return LevelLocalAdmin, true
	case 8:
		return LevelLocality, true
	case 9:
		return LevelBorough, true
	case 10, 11:
		return LevelNeighbourhood, true
	}
	return 0, false
}

// AllAdminLevels 自上而下（国家在前）的全部层级。
func AllAdminLevels() []AdminLevel {
	levels := make([]AdminLevel, 0, numAdminLevels)
	for l := LevelCountry; l < numAdminLevels; l++ {
		levels = append(levels, l)
	}
	return levels
}

// FieldName parent 对象中该层级的字段名。
func (l AdminLevel) FieldName() string {
	switch l {
	case LevelCountry:
		return "country"
	case LevelMacroRegion:
		return "macro_region"
	case LevelRegion:
		return "region"
	case LevelMacroCounty:
		return "macro_county"
	case LevelCounty:
		return "county"
	case LevelLocalAdmin:
		return "localadmin"
	case LevelLocality:
		return "locality"
	case LevelBorough:
		return "borough"
	case LevelNeighbourhood:
		return "neighbourhood"
	}
	return "unknown"
}

// Layer 该层级边界自身入索引时使用的 layer。
func (l AdminLevel) Layer() Layer {
	switch l {
	case LevelCountry:
		return LayerCountry
	case LevelMacroRegion, LevelRegion:
		return LayerRegion
	case LevelMacroCounty, LevelCounty:
		return LayerCounty
	case LevelLocalAdmin:
		return LayerLocalAdmin
	case LevelLocality:
		return LayerLocality
	}
	return LayerNeighbourhood
}

// AdminArea 一条装配完成的行政边界。
type AdminArea struct {
	OsmID      int64            // 来源 relation/way 的 OSM ID
	Level      AdminLevel       // 行政层级
	Name       NameBundle       // 多语言名称
	Abbr       string           // 缩写（short_name / ISO3166）
	WikidataID string           // wikidata Q-ID（可为空）
	Polygon    orb.MultiPolygon // 外环 + 孔洞
	Bound      orb.Bound        // 多边形外包框
	Centroid   orb.Point        // 面积加权质心
}

// AdminEntry 地点文档 parent 中某一层级的反范式化条目。
type AdminEntry struct {
	ID    int64
	Name  string
	Abbr  string
	Names NameBundle
}

// MarshalJSON 输出 {id, name, abbr?, name_<lang>...}，与 parent.*.name_* 动态映射对应。
func (e AdminEntry) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Names)+3)
	m["id"] = e.ID
	m["name"] = e.Name
	if e.Abbr != "" {
		m["abbr"] = e.Abbr
	}
	for lang, v := range e.Names {
		if lang == DefaultName {
			continue
		}
		m["name_"+lang] = v
	}
	return json.Marshal(m)
}

// EntryFromArea 由行政区构造 parent 条目。
func EntryFromArea(a *AdminArea, preference []string) AdminEntry {
	return AdminEntry{
		ID:    a.OsmID,
		Name:  a.Name.Default(preference),
		Abbr:  a.Abbr,
		Names: a.Name,
	}
}

// AdminHierarchy 按层级反范式化到文档上的父级集合。
type AdminHierarchy map[AdminLevel]AdminEntry

// Empty 判断层级集合是否为空。
func (h AdminHierarchy) Empty() bool { return len(h) == 0 }

// MarshalJSON 以字段名输出各层级。
func (h AdminHierarchy) MarshalJSON() ([]byte, error) {
	m := make(map[string]AdminEntry, len(h))
	for level, entry := range h {
		m[level.FieldName()] = entry
	}
	return json.Marshal(m)
}
