package honeycomb

import (
	"fmt"
	"time"

	"github.com/circleci/netmonitor/o11y"
)

// metricKey carries a span's recorded metrics to the presend hook, which removes it.
const metricKey = "__MAGIC_METRIC_KEY__"

// metricsHook turns the metrics recorded on a span into calls on mp as the span is sent. Every
// errored or warned span also counts towards the error or warning metric.
func metricsHook(mp o11y.MetricsProvider) func(map[string]interface{}) {
	return func(fields map[string]interface{}) {
		recorded, _ := fields[metricKey].([]o11y.Metric)
		delete(fields, metricKey)
		if mp == nil {
			return
		}

		typeTag := []string{"type:o11y"}
		for _, outcome := range []string{"error", "warning"} {
			if _, ok := fields[outcome]; ok {
				_ = mp.Count(outcome, 1, typeTag, 1)
			}
		}

		for _, m := range recorded {
			emit(mp, m, fields)
		}
	}
}

func emit(mp o11y.MetricsProvider, m o11y.Metric, fields map[string]interface{}) {
	tags := tagsFrom(m.TagFields, fields)
	val, hasVal := lookup(m.Field, fields)

	switch m.Type {
	case o11y.MetricTimer:
		if ms, ok := milliseconds(val); hasVal && ok {
			_ = mp.TimeInMilliseconds(m.Name, ms, tags, 1)
		}
	case o11y.MetricCount:
		n := int64(1)
		if m.Field != "" {
			var ok bool
			if n, ok = asInt(val); !hasVal || !ok {
				return
			}
		}
		_ = mp.Count(m.Name, n, tags, 1)
	case o11y.MetricGauge:
		if f, ok := asFloat(val); hasVal && ok {
			_ = mp.Gauge(m.Name, f, tags, 1)
		}
	}
}

func tagsFrom(names []string, fields map[string]interface{}) []string {
	tags := make([]string, 0, len(names))
	for _, name := range names {
		if v, ok := lookup(name, fields); ok {
			tags = append(tags, fmt.Sprintf("%s:%v", name, v))
		}
	}
	return tags
}

// lookup finds a raw field, or the same field added with AddField.
func lookup(name string, fields map[string]interface{}) (interface{}, bool) {
	if v, ok := fields[name]; ok {
		return v, true
	}
	v, ok := fields["app."+name]
	return v, ok
}

func asInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	if f, ok := v.(float64); ok {
		return f, true
	}
	n, ok := asInt(v)
	return float64(n), ok
}

func milliseconds(v interface{}) (float64, bool) {
	if d, ok := v.(time.Duration); ok {
		return float64(d.Milliseconds()), true
	}
	return asFloat(v)
}
