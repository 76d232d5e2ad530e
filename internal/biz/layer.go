package biz

// Layer 地点的粗分类（文档的 layer 字段）。
type Layer string

const (
	LayerVenue         Layer = "venue"
	LayerAddress       Layer = "address"
	LayerStreet        Layer = "street"
	LayerLocality      Layer = "locality"
	LayerLocalAdmin    Layer = "localadmin"
	LayerCounty        Layer = "county"
	LayerRegion        Layer = "region"
	LayerCountry       Layer = "country"
	LayerNeighbourhood Layer = "neighbourhood"
)

// placeLayers place=* 值到 layer 的固定表。
var placeLayers = map[string]Layer{
	"country":       LayerCountry,
	"state":         LayerRegion,
	"province":      LayerRegion,
	"region":        LayerRegion,
	"county":        LayerCounty,
	"district":      LayerCounty,
	"municipality":  LayerLocalAdmin,
	"city":          LayerLocality,
	"town":          LayerLocality,
	"village":       LayerLocality,
	"hamlet":        LayerLocality,
	"borough":       LayerNeighbourhood,
	"suburb":        LayerNeighbourhood,
	"quarter":       LayerNeighbourhood,
	"neighbourhood": LayerNeighbourhood,
}

// venueKeys 任一存在即视为 POI。
var venueKeys = []string{"amenity", "shop", "tourism", "leisure", "historic", "office"}

// categoryKeys 进入 categories 的标签键。
var categoryKeys = []string{"amenity", "shop", "tourism", "leisure", "cuisine", "building", "historic", "office"}

// Classify 按固定表将标签映射到 layer。不匹配返回 false。
// 行政边界关系不在此分类，由 S1 单独处理。
func Classify(tags Tags) (Layer, bool) {
	if v, ok := tags["place"]; ok {
		if layer, ok := placeLayers[v]; ok {
			return layer, true
		}
	}
	if tags.Has("addr:housenumber") {
		return LayerAddress, true
	}
	if tags.Has("highway") {
		return LayerStreet, true
	}
	for _, key := range venueKeys {
		if tags.Has(key) {
			return LayerVenue, true
		}
	}
	return "", false
}

// Categories 收集 POI 分类标签，形如 "amenity:restaurant"。
func Categories(tags Tags) []string {
	var out []string
	for _, key := range categoryKeys {
		if v := tags[key]; v != "" {
			out = append(out, key+":"+v)
		}
	}
	return out
}

// mergeableHighways 参与合并的道路等级。motorway/trunk 及 *_link 始终排除。
var mergeableHighways = map[string]bool{
	"residential":   true,
	"primary":       true,
	"secondary":     true,
	"tertiary":      true,
	"unclassified":  true,
	"service":       true,
	"living_street": true,
	"pedestrian":    true,
	"track":         true,
	"road":          true,
	"footway":       true,
	"cycleway":      true,
	"path":          true,
}

// MergeableRoad 判断 way 是否进入道路合并：需有名称且等级在表内。
func MergeableRoad(tags Tags) bool {
	if ExtractNames(tags).Empty() {
		return false
	}
	return mergeableHighways[tags["highway"]]
}
