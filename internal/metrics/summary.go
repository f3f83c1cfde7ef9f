package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// OperationStats summarizes backend calls of one operation.
type OperationStats struct {
	Operation string  `json:"operation"`
	Calls     uint64  `json:"calls"`
	Errors    uint64  `json:"errors"`
	AvgMS     float64 `json:"avg_ms"`
}

// BackendSummary reads the backend call collectors out of g, slowest first.
func BackendSummary(g prometheus.Gatherer) ([]OperationStats, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}

	byOp := map[string]*OperationStats{}
	get := func(op string) *OperationStats {
		if st, ok := byOp[op]; ok {
			return st
		}
		st := &OperationStats{Operation: op}
		byOp[op] = st
		return st
	}

	for _, mf := range families {
		switch mf.GetName() {
		case namespace + "_backend_call_duration_seconds":
			for _, m := range mf.GetMetric() {
				h := m.GetHistogram()
				st := get(labelValue(m, "operation"))
				st.Calls = h.GetSampleCount()
				if st.Calls > 0 {
					st.AvgMS = h.GetSampleSum() / float64(st.Calls) * 1000
				}
			}
		case namespace + "_backend_calls_total":
			for _, m := range mf.GetMetric() {
				if labelValue(m, "result") == "error" {
					get(labelValue(m, "operation")).Errors = uint64(m.GetCounter().GetValue())
				}
			}
		}
	}

	out := make([]OperationStats, 0, len(byOp))
	for _, st := range byOp {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgMS == out[j].AvgMS {
			return out[i].Operation < out[j].Operation
		}
		return out[i].AvgMS > out[j].AvgMS
	})
	return out, nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
