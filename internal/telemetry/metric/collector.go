package metric

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes a snapshot function as a set of gauges. The snapshot
// is taken on every scrape, so values are never stale.
type Collector struct {
	descs    map[string]*prometheus.Desc
	names    []string
	snapshot func() map[string]float64
}

// NewCollector creates a collector for the given gauge names. Each name is
// published as exsim_<subsystem>_<name> with the constant labels.
// Values missing from a snapshot are skipped for that scrape.
func NewCollector(subsystem string, help map[string]string, labels prometheus.Labels, snapshot func() map[string]float64) *Collector {
	c := &Collector{
		descs:    make(map[string]*prometheus.Desc, len(help)),
		snapshot: snapshot,
	}
	for name, h := range help {
		c.names = append(c.names, name)
		c.descs[name] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, name), h, nil, labels)
	}
	sort.Strings(c.names)
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, name := range c.names {
		ch <- c.descs[name]
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	values := c.snapshot()
	for _, name := range c.names {
		v, ok := values[name]
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.descs[name], prometheus.GaugeValue, v)
	}
}
