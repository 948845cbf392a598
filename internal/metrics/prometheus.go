package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ricesearch/rice-chunk/internal/pkg/errors"
)

// PrometheusFormat exports all metrics in Prometheus text exposition format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func (m *Metrics) PrometheusFormat() string {
	var sb strings.Builder

	writeCounterVec(&sb, m.Files)
	writeCounter(&sb, m.Chunks)
	writeCounter(&sb, m.ForcedSplits)
	writeCounter(&sb, m.Oversized)
	writeHistogram(&sb, m.ChunkTokens)
	writeHistogram(&sb, m.FileLatency)
	writeCounterVec(&sb, m.Diagnostics)
	writeCounter(&sb, m.PublishErrors)
	writeGauge(&sb, m.CacheHits)
	writeGauge(&sb, m.CacheMisses)

	return sb.String()
}

// WriteTextfile writes the metrics to path for a node_exporter textfile
// collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".rice-chunk-metrics-*")
	if err != nil {
		return errors.IOError("create metrics file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(m.PrometheusFormat()); err != nil {
		tmp.Close()
		return errors.IOError("write metrics file", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.IOError("close metrics file", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.IOError("rename metrics file", err)
	}
	return nil
}

func writeHeader(sb *strings.Builder, name, help, kind string) {
	fmt.Fprintf(sb, "# HELP %s %s\n", name, help)
	fmt.Fprintf(sb, "# TYPE %s %s\n", name, kind)
}

func writeCounter(sb *strings.Builder, c *Counter) {
	writeHeader(sb, c.name, c.help, "counter")
	writeSample(sb, c.name, c.labels, strconv.FormatInt(c.Value(), 10))
}

func writeGauge(sb *strings.Builder, g *Gauge) {
	writeHeader(sb, g.name, g.help, "gauge")
	writeSample(sb, g.name, nil, strconv.FormatInt(g.Value(), 10))
}

func writeCounterVec(sb *strings.Builder, cv *CounterVec) {
	counters := cv.All()
	if len(counters) == 0 {
		return
	}

	writeHeader(sb, cv.name, cv.help, "counter")
	for _, c := range counters {
		writeSample(sb, c.name, c.labels, strconv.FormatInt(c.Value(), 10))
	}
}

func writeHistogram(sb *strings.Builder, h *Histogram) {
	writeHeader(sb, h.name, h.help, "histogram")

	cumulative := h.Cumulative()
	for i, bound := range h.buckets {
		le := strconv.FormatFloat(bound, 'g', -1, 64)
		writeSample(sb, h.name+"_bucket", map[string]string{"le": le}, strconv.FormatInt(cumulative[i], 10))
	}
	writeSample(sb, h.name+"_bucket", map[string]string{"le": "+Inf"}, strconv.FormatInt(cumulative[len(cumulative)-1], 10))
	writeSample(sb, h.name+"_sum", nil, strconv.FormatFloat(h.Sum(), 'f', -1, 64))
	writeSample(sb, h.name+"_count", nil, strconv.FormatInt(h.Count(), 10))
}

func writeSample(sb *strings.Builder, name string, labels map[string]string, value string) {
	sb.WriteString(name)
	writeLabels(sb, labels)
	sb.WriteByte(' ')
	sb.WriteString(value)
	sb.WriteByte('\n')
}

// writeLabels writes labels as {key="value",key2="value2"}, sorted by key.
func writeLabels(sb *strings.Builder, labels map[string]string) {
	if len(labels) == 0 {
		return
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(labelEscaper.Replace(labels[k]))
		sb.WriteByte('"')
	}
	sb.WriteByte('}')
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
