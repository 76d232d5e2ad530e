package biz

import "context"

// OsmType OSM 对象类型。
type OsmType string

const (
	TypeNode     OsmType = "node"
	TypeWay      OsmType = "way"
	TypeRelation OsmType = "relation"
	TypeRoad     OsmType = "road" // 合并道路的合成类型
)

// Tags OSM 标签表。
type Tags map[string]string

// Has 判断 key 存在且非空。
func (t Tags) Has(key string) bool { return t[key] != "" }

// Is 判断 key 等于 value。
func (t Tags) Is(key, value string) bool { return t[key] == value }

// Node 带坐标的 OSM 节点。
type Node struct {
	ID   int64
	Lat  float64
	Lon  float64
	Tags Tags
}

// Way 有序节点引用列表。
type Way struct {
	ID      int64
	NodeIDs []int64
	Tags    Tags
}

// MemberType 关系成员类型。
type MemberType int

const (
	MemberNode MemberType = iota
	MemberWay
	MemberRelation
)

// Member 关系成员引用（含角色）。
type Member struct {
	ID   int64
	Type MemberType
	Role string
}

// Relation OSM 关系。
type Relation struct {
	ID      int64
	Members []Member
	Tags    Tags
}

// EntityHandler 按类型接收一遍扫描产出的实体。不需要的回调可以为 nil。
type EntityHandler struct {
	Node     func(*Node) error
	Way      func(*Way) error
	Relation func(*Relation) error
}

// EntitySource 对一份 OSM 提取文件的可重复顺序扫描。
// 每次 Scan 从文件头开始；回调返回错误则中止本遍。
type EntitySource interface {
	Scan(ctx context.Context, h EntityHandler) error
}
