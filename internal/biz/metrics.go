package biz

import "github.com/prometheus/client_golang/prometheus"

// Metrics 运行计数器。未设置时编排器静默跳过。
type Metrics struct {
	EntitiesRead  prometheus.Counter
	PlacesIndexed prometheus.Counter
	IndexErrors   prometheus.Counter
	StaleDeleted  prometheus.Counter
}

// NewMetrics 构造未注册的计数器集合；注册交给调用方。
func NewMetrics() *Metrics {
	return &Metrics{
		EntitiesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cypress_entities_read_total",
			Help: "OSM entities read during place extraction.",
		}),
		PlacesIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cypress_places_indexed_total",
			Help: "Place documents accepted by the search backend.",
		}),
		IndexErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cypress_index_errors_total",
			Help: "Place documents dropped after exhausting bulk retries.",
		}),
		StaleDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cypress_stale_deleted_total",
			Help: "Stale documents purged by refresh runs.",
		}),
	}
}

// Collectors 用于注册到 prometheus registry。
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.EntitiesRead, m.PlacesIndexed, m.IndexErrors, m.StaleDeleted}
}
