package biz

import (
	"context"
	"io"

	"github.com/go-kratos/kratos/v2/log"
)

// fakeSource 测试用内存实体源，按 PBF 的 node→way→relation 顺序回放。
type fakeSource struct {
	nodes     []*Node
	ways      []*Way
	relations []*Relation
}

func (s *fakeSource) Scan(ctx context.Context, h EntityHandler) error {
	if h.Node != nil {
		for _, n := range s.nodes {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := h.Node(n); err != nil {
				return err
			}
		}
	}
	if h.Way != nil {
		for _, w := range s.ways {
			if err := h.Way(w); err != nil {
				return err
			}
		}
	}
	if h.Relation != nil {
		for _, r := range s.relations {
			if err := h.Relation(r); err != nil {
				return err
			}
		}
	}
	return nil
}

func testLogger() log.Logger {
	return log.NewStdLogger(io.Discard)
}

var testLangs = []string{"en", "de"}

// squareRelationSource 单位正方形的行政关系（admin_level 由参数给出），
// 外环拆成两条方向随意的 way。
func squareRelationSource(level string, name map[string]string) *fakeSource {
	tags := Tags{"boundary": "administrative", "admin_level": level}
	for k, v := range name {
		tags[k] = v
	}
	return &fakeSource{
		nodes: []*Node{
			{ID: 1, Lon: 0, Lat: 0},
			{ID: 2, Lon: 1, Lat: 0},
			{ID: 3, Lon: 1, Lat: 1},
			{ID: 4, Lon: 0, Lat: 1},
		},
		ways: []*Way{
			{ID: 10, NodeIDs: []int64{1, 2, 3}},
			{ID: 11, NodeIDs: []int64{1, 4, 3}}, // 反向段，缝合时需要翻转
		},
		relations: []*Relation{
			{
				ID:   100,
				Tags: tags,
				Members: []Member{
					{ID: 10, Type: MemberWay, Role: "outer"},
					{ID: 11, Type: MemberWay, Role: "outer"},
				},
			},
		},
	}
}
