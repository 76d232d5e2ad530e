package biz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		tags  Tags
		want  Layer
		found bool
	}{
		{"city is locality", Tags{"place": "city", "name": "Bern"}, LayerLocality, true},
		{"country", Tags{"place": "country"}, LayerCountry, true},
		{"state is region", Tags{"place": "state"}, LayerRegion, true},
		{"suburb is neighbourhood", Tags{"place": "suburb"}, LayerNeighbourhood, true},
		{"housenumber is address", Tags{"addr:housenumber": "12", "addr:street": "Main St"}, LayerAddress, true},
		{"highway is street", Tags{"highway": "residential", "name": "Main St"}, LayerStreet, true},
		{"amenity is venue", Tags{"amenity": "restaurant", "name": "Pizzeria"}, LayerVenue, true},
		{"shop is venue", Tags{"shop": "bakery"}, LayerVenue, true},
		{"unknown place value ignored", Tags{"place": "islet"}, "", false},
		{"bare node", Tags{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layer, ok := Classify(tt.tags)
			assert.Equal(t, tt.found, ok)
			if ok {
				assert.Equal(t, tt.want, layer)
			}
		})
	}
}

func TestCategories(t *testing.T) {
	got := Categories(Tags{"amenity": "restaurant", "cuisine": "italian", "name": "x"})
	assert.ElementsMatch(t, []string{"amenity:restaurant", "cuisine:italian"}, got)
}

func TestMergeableRoad(t *testing.T) {
	assert.True(t, MergeableRoad(Tags{"highway": "residential", "name": "Main St"}))
	assert.True(t, MergeableRoad(Tags{"highway": "footway", "name:en": "Path"}))

	// motorway、link 类、无名道路都不参与合并
	assert.False(t, MergeableRoad(Tags{"highway": "motorway", "name": "A1"}))
	assert.False(t, MergeableRoad(Tags{"highway": "trunk", "name": "A2"}))
	assert.False(t, MergeableRoad(Tags{"highway": "primary_link", "name": "Ramp"}))
	assert.False(t, MergeableRoad(Tags{"highway": "residential"}))
}
