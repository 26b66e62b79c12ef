// Package metrics provides the vendor-neutral metric model the exporter
// builds from device responses: named, typed, labeled series grouped into
// collections, plus merge and exposition support.
package metrics

// ValueType tags a metric family as gauge or counter.
type ValueType string

const (
	// Gauge is a value that can go up and down.
	Gauge ValueType = "gauge"
	// Counter is a monotonically increasing value.
	Counter ValueType = "counter"
)

// Series is one concrete (label set, value) sample of a metric family.
type Series struct {
	Labels map[string]string
	Value  float64
}

// Family groups all series sharing a metric name, together with the help
// text and type recorded on the first Add of that name.
type Family struct {
	Name   string
	Help   string
	Type   ValueType
	Series []Series
}

// Collection is an ordered-by-insertion set of metric families. A collection
// may carry a name prefix and a base label set applied to every series added
// to it; per-call labels win on key collision.
type Collection struct {
	prefix   string
	labels   map[string]string
	order    []string
	families map[string]*Family
}

// NewCollection creates a collection whose metric names get prefixed with
// prefix (joined by an underscore, when non-empty) and whose base labels are
// merged into every added series. The label map is copied.
func NewCollection(prefix string, labels map[string]string) *Collection {
	base := make(map[string]string, len(labels))
	for k, v := range labels {
		base[k] = v
	}
	return &Collection{
		prefix:   prefix,
		labels:   base,
		families: make(map[string]*Family),
	}
}

// Add appends one sample under name. The first Add of a name records its
// help text and type; subsequent Adds with the same name reuse the recorded
// values and only append the sample. The supplied labels override base
// labels of the same key.
func (c *Collection) Add(name string, value float64, labels map[string]string, help string, typ ValueType) {
	full := name
	if c.prefix != "" {
		full = c.prefix + "_" + name
	}

	merged := make(map[string]string, len(c.labels)+len(labels))
	for k, v := range c.labels {
		merged[k] = v
	}
	for k, v := range labels {
		merged[k] = v
	}

	fam, ok := c.families[full]
	if !ok {
		if typ == "" {
			typ = Gauge
		}
		fam = &Family{Name: full, Help: help, Type: typ}
		c.families[full] = fam
		c.order = append(c.order, full)
	}
	fam.Series = append(fam.Series, Series{Labels: merged, Value: value})
}

// AddGauge appends a gauge sample; shorthand for Add with type Gauge.
func (c *Collection) AddGauge(name string, value float64, labels map[string]string, help string) {
	c.Add(name, value, labels, help, Gauge)
}

// AddCounter appends a counter sample; shorthand for Add with type Counter.
func (c *Collection) AddCounter(name string, value float64, labels map[string]string, help string) {
	c.Add(name, value, labels, help, Counter)
}

// AddBool appends a gauge sample encoding a boolean as 1 or 0.
func (c *Collection) AddBool(name string, value bool, labels map[string]string, help string) {
	c.AddGauge(name, BoolValue(value), labels, help)
}

// BoolValue encodes a boolean the way the text exposition format expects.
func BoolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Families returns the collection's families in insertion order. The
// returned slice shares the collection's backing data and must not be
// mutated.
func (c *Collection) Families() []*Family {
	out := make([]*Family, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.families[name])
	}
	return out
}

// Family returns the family for the full (prefixed) metric name, or nil.
func (c *Collection) Family(name string) *Family {
	return c.families[name]
}

// Len returns the number of metric families in the collection.
func (c *Collection) Len() int {
	return len(c.order)
}

// Merge concatenates the sample lists of same-named families across all
// input collections, in input order. Help and type for each name are taken
// from the first collection defining it. Samples keep their original labels;
// no validation or deduplication is performed, so conflicting samples from
// different inputs survive side by side.
func Merge(collections ...*Collection) *Collection {
	merged := NewCollection("", nil)
	for _, col := range collections {
		if col == nil {
			continue
		}
		for _, fam := range col.Families() {
			for _, s := range fam.Series {
				merged.Add(fam.Name, s.Value, s.Labels, fam.Help, fam.Type)
			}
		}
	}
	return merged
}
