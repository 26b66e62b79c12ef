package metrics

import (
	"fmt"
	"io"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// ContentType is the Content-Type header value for the text exposition
// format produced by WriteText.
var ContentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

// WriteText serializes the collection into the Prometheus text exposition
// format: a HELP and TYPE line per family followed by one line per series,
// in insertion order. Escaping and float formatting are delegated to the
// expfmt encoder.
func (c *Collection) WriteText(w io.Writer) error {
	for _, fam := range c.Families() {
		mf, err := familyToProto(fam)
		if err != nil {
			return err
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encoding %s: %w", fam.Name, err)
		}
	}
	return nil
}

func familyToProto(fam *Family) (*dto.MetricFamily, error) {
	mf := &dto.MetricFamily{
		Name: proto.String(fam.Name),
	}
	if fam.Help != "" {
		mf.Help = proto.String(fam.Help)
	}

	switch fam.Type {
	case Counter:
		mf.Type = dto.MetricType_COUNTER.Enum()
	case Gauge, "":
		mf.Type = dto.MetricType_GAUGE.Enum()
	default:
		return nil, fmt.Errorf("unknown metric type %q for %s", fam.Type, fam.Name)
	}

	for _, s := range fam.Series {
		m := &dto.Metric{Label: labelPairs(s.Labels)}
		if fam.Type == Counter {
			m.Counter = &dto.Counter{Value: proto.Float64(s.Value)}
		} else {
			m.Gauge = &dto.Gauge{Value: proto.Float64(s.Value)}
		}
		mf.Metric = append(mf.Metric, m)
	}
	return mf, nil
}

// labelPairs converts a label map to sorted dto pairs. Label sets are
// unordered for equality, so sorting here only pins down the output.
func labelPairs(labels map[string]string) []*dto.LabelPair {
	if len(labels) == 0 {
		return nil
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]*dto.LabelPair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, &dto.LabelPair{
			Name:  proto.String(k),
			Value: proto.String(labels[k]),
		})
	}
	return pairs
}
