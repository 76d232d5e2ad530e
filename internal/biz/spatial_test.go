package biz

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func squareArea(id int64, level AdminLevel, name string, minX, minY, maxX, maxY float64) *AdminArea {
	ring := orb.Ring{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}
	poly := orb.MultiPolygon{orb.Polygon{ring}}
	return &AdminArea{
		OsmID:    id,
		Level:    level,
		Name:     NameBundle{DefaultName: name},
		Polygon:  poly,
		Bound:    poly.Bound(),
		Centroid: orb.Point{(minX + maxX) / 2, (minY + maxY) / 2},
	}
}

func TestLookupBuildsHierarchy(t *testing.T) {
	index := NewAdminIndex([]*AdminArea{
		squareArea(1, LevelCountry, "Freedonia", 0, 0, 10, 10),
		squareArea(2, LevelRegion, "West", 0, 0, 5, 10),
		squareArea(3, LevelLocality, "Town", 1, 1, 2, 2),
	}, testLangs)

	h := index.Lookup(orb.Point{1.5, 1.5}, NoLevelLimit)
	require.NotNil(t, h)
	assert.Equal(t, "Freedonia", h[LevelCountry].Name)
	assert.Equal(t, "West", h[LevelRegion].Name)
	assert.Equal(t, "Town", h[LevelLocality].Name)
}

func TestLookupMissOutsideAllPolygons(t *testing.T) {
	index := NewAdminIndex([]*AdminArea{
		squareArea(1, LevelLocality, "Town", 0, 0, 1, 1),
	}, testLangs)

	assert.Nil(t, index.Lookup(orb.Point{2, 2}, NoLevelLimit))
	assert.True(t, index.Lookup(orb.Point{2, 2}, NoLevelLimit).Empty())
}

func TestLookupSmallestBBoxWinsAtSameLevel(t *testing.T) {
	index := NewAdminIndex([]*AdminArea{
		squareArea(1, LevelLocality, "Big", 0, 0, 10, 10),
		squareArea(2, LevelLocality, "Tight", 4, 4, 6, 6),
	}, testLangs)

	h := index.Lookup(orb.Point{5, 5}, NoLevelLimit)
	require.NotNil(t, h)
	assert.Equal(t, "Tight", h[LevelLocality].Name)

	// 面积相同时按 OSM ID 决定，保证确定性
	index = NewAdminIndex([]*AdminArea{
		squareArea(9, LevelLocality, "Nine", 0, 0, 2, 2),
		squareArea(4, LevelLocality, "Four", 0, 0, 2, 2),
	}, testLangs)
	h = index.Lookup(orb.Point{1, 1}, NoLevelLimit)
	assert.Equal(t, "Four", h[LevelLocality].Name)
}

func TestLookupLevelLimitForAdminPlaces(t *testing.T) {
	index := NewAdminIndex([]*AdminArea{
		squareArea(1, LevelCountry, "Freedonia", 0, 0, 10, 10),
		squareArea(2, LevelLocality, "Town", 0, 0, 10, 10),
	}, testLangs)

	// 边界自身入索引时只取严格更高层级的父级
	h := index.Lookup(orb.Point{5, 5}, LevelLocality)
	require.NotNil(t, h)
	assert.Contains(t, h, LevelCountry)
	assert.NotContains(t, h, LevelLocality)
}

func TestLookupEdgePointIsStable(t *testing.T) {
	index := NewAdminIndex([]*AdminArea{
		squareArea(1, LevelLocality, "Town", 0, 0, 1, 1),
	}, testLangs)

	// 正好落在边上的点：结果取决于射线规则，但必须每次一致
	edge := orb.Point{0, 0.5}
	first := index.Lookup(edge, NoLevelLimit)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, index.Lookup(edge, NoLevelLimit))
	}
}

func TestAreasSortedByLevelThenID(t *testing.T) {
	index := NewAdminIndex([]*AdminArea{
		squareArea(5, LevelLocality, "b", 0, 0, 1, 1),
		squareArea(3, LevelCountry, "a", 0, 0, 9, 9),
		squareArea(2, LevelLocality, "c", 0, 0, 1, 1),
	}, testLangs)

	areas := index.Areas()
	require.Len(t, areas, 3)
	assert.Equal(t, int64(3), areas[0].OsmID)
	assert.Equal(t, int64(2), areas[1].OsmID)
	assert.Equal(t, int64(5), areas[2].OsmID)
}
