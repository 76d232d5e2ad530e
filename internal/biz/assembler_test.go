package biz

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemblerStitchesSplitRing(t *testing.T) {
	source := squareRelationSource("8", map[string]string{"name": "Town", "name:de": "Stadt"})

	index, err := NewAssembler(source, testLangs, testLogger()).Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, index.Len())

	area := index.Areas()[0]
	assert.Equal(t, int64(100), area.OsmID)
	assert.Equal(t, LevelLocality, area.Level)
	assert.Equal(t, "Town", area.Name[DefaultName])
	assert.Equal(t, "Stadt", area.Name["de"])

	// 环必须闭合
	ring := area.Polygon[0][0]
	require.GreaterOrEqual(t, len(ring), 4)
	assert.Equal(t, ring[0], ring[len(ring)-1])

	hits := index.Containing(orb.Point{0.5, 0.5})
	assert.Len(t, hits, 1)
}

func TestAssemblerDropsNonClosingRelation(t *testing.T) {
	source := squareRelationSource("8", map[string]string{"name": "Broken"})
	// 缺一段，链合不拢
	source.ways = source.ways[:1]
	source.relations[0].Members = source.relations[0].Members[:1]

	index, err := NewAssembler(source, testLangs, testLogger()).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, index.Len())
}

func TestAssemblerSkipsUnnamedAndNonAdmin(t *testing.T) {
	source := squareRelationSource("8", map[string]string{})
	index, err := NewAssembler(source, testLangs, testLogger()).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, index.Len(), "unnamed boundary must be skipped")

	source = squareRelationSource("8", map[string]string{"name": "Park"})
	source.relations[0].Tags["boundary"] = "national_park"
	index, err = NewAssembler(source, testLangs, testLogger()).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, index.Len())

	source = squareRelationSource("13", map[string]string{"name": "Deep"})
	index, err = NewAssembler(source, testLangs, testLogger()).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, index.Len(), "admin_level outside the table must be skipped")
}

func TestAssemblerAssignsHoles(t *testing.T) {
	// 外环 0..4 的正方形，内环 1..3 的孔
	source := &fakeSource{
		nodes: []*Node{
			{ID: 1, Lon: 0, Lat: 0}, {ID: 2, Lon: 4, Lat: 0},
			{ID: 3, Lon: 4, Lat: 4}, {ID: 4, Lon: 0, Lat: 4},
			{ID: 5, Lon: 1, Lat: 1}, {ID: 6, Lon: 3, Lat: 1},
			{ID: 7, Lon: 3, Lat: 3}, {ID: 8, Lon: 1, Lat: 3},
		},
		ways: []*Way{
			{ID: 10, NodeIDs: []int64{1, 2, 3, 4, 1}},
			{ID: 11, NodeIDs: []int64{5, 6, 7, 8, 5}},
		},
		relations: []*Relation{{
			ID:   200,
			Tags: Tags{"boundary": "administrative", "admin_level": "6", "name": "Ring"},
			Members: []Member{
				{ID: 10, Type: MemberWay, Role: "outer"},
				{ID: 11, Type: MemberWay, Role: "inner"},
			},
		}},
	}

	index, err := NewAssembler(source, testLangs, testLogger()).Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, index.Len())
	require.Len(t, index.Areas()[0].Polygon[0], 2, "hole must attach to its outer ring")

	// 孔内的点不算包含
	assert.Empty(t, index.Containing(orb.Point{2, 2}))
	assert.Len(t, index.Containing(orb.Point{0.5, 0.5}), 1)
}

func TestAssemblerAcceptsClosedWayBoundary(t *testing.T) {
	source := &fakeSource{
		nodes: []*Node{
			{ID: 1, Lon: 0, Lat: 0}, {ID: 2, Lon: 1, Lat: 0},
			{ID: 3, Lon: 1, Lat: 1}, {ID: 4, Lon: 0, Lat: 1},
		},
		ways: []*Way{{
			ID:      50,
			NodeIDs: []int64{1, 2, 3, 4, 1},
			Tags:    Tags{"boundary": "administrative", "admin_level": "8", "name": "Old Town"},
		}},
	}

	index, err := NewAssembler(source, testLangs, testLogger()).Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, index.Len())
	assert.Equal(t, int64(50), index.Areas()[0].OsmID)
}

func TestStitchRingsDisorderedSegments(t *testing.T) {
	wayNodes := map[int64][]int64{
		1: {10, 11, 12},
		2: {14, 13, 12}, // 反向
		3: {14, 15, 10},
	}
	rings := stitchRings([]int64{3, 1, 2}, wayNodes)
	require.Len(t, rings, 1)
	ring := rings[0]
	assert.Equal(t, ring[0], ring[len(ring)-1])
	assert.Len(t, ring, 7)
}

func TestStitchRingsGapProducesNothing(t *testing.T) {
	wayNodes := map[int64][]int64{
		1: {10, 11},
		2: {20, 21},
	}
	assert.Empty(t, stitchRings([]int64{1, 2}, wayNodes))
}
