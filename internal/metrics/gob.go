package metrics

import (
	"bytes"
	"encoding/gob"
)

// collectionSnapshot is the gob wire form of a Collection. Base labels and
// prefix are not carried: by the time a collection is persisted they have
// already been folded into every series.
type collectionSnapshot struct {
	Families []Family
}

// GobEncode implements gob.GobEncoder so collections can be persisted by the
// probe store.
func (c *Collection) GobEncode() ([]byte, error) {
	snap := collectionSnapshot{Families: make([]Family, 0, len(c.order))}
	for _, fam := range c.Families() {
		snap.Families = append(snap.Families, *fam)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (c *Collection) GobDecode(data []byte) error {
	var snap collectionSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}
	c.prefix = ""
	c.labels = map[string]string{}
	c.order = nil
	c.families = make(map[string]*Family, len(snap.Families))
	for i := range snap.Families {
		fam := snap.Families[i]
		c.families[fam.Name] = &fam
		c.order = append(c.order, fam.Name)
	}
	return nil
}
