package biz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceStem(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"switzerland-latest.osm.pbf", "switzerland-latest"},
		{"/tmp/extracts/switzerland-latest.osm.pbf", "switzerland-latest"},
		{"switzerland-latest-filtered.osm.pbf", "switzerland-latest"},
		{"switzerland-latest-admins.osm.pbf", "switzerland-latest"},
		{"monaco.pbf", "monaco"},
		{"monaco.osm.pbf.gz", "monaco"},
		{"plain-name", "plain-name"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SourceStem(tt.path), tt.path)
	}
}
