package floorplan

import (
	"sort"

	"github.com/paulmach/orb/geojson"
)

// Index maps feature names to features, per layer.
//
// Each layer is rebuilt wholesale when its source finishes loading; entries
// are never merged across loads, so a refresh can't leave stale features
// behind.
type Index struct {
	transform Transformer
	features  map[LayerID][]*Feature
	byName    map[LayerID]map[string]*Feature
	names     []string
}

// NewIndex creates an empty index. A nil transform means FlipY.
func NewIndex(transform Transformer) *Index {
	if transform == nil {
		transform = FlipY
	}
	return &Index{
		transform: transform,
		features:  make(map[LayerID][]*Feature),
		byName:    make(map[LayerID]map[string]*Feature),
	}
}

// Rebuild replaces every entry of layer with the ingested raw features.
// Other layers are left untouched.
func (ix *Index) Rebuild(layer LayerID, raw []*geojson.Feature) {
	features := Ingest(layer, raw, ix.transform)

	named := make(map[string]*Feature, len(features))
	for _, f := range features {
		if !f.Named() {
			continue
		}
		// First in source order wins.
		if _, dup := named[f.Name]; !dup {
			named[f.Name] = f
		}
	}

	ix.features[layer] = features
	ix.byName[layer] = named

	if layer.Interactive() {
		ix.names = ix.collectNames()
	}
}

// Lookup returns the first feature named exactly name, scanning layers in
// LookupPriority order.
func (ix *Index) Lookup(name string) (*Feature, bool) {
	if name == "" {
		return nil, false
	}
	for _, layer := range LookupPriority {
		if f, ok := ix.byName[layer][name]; ok {
			return f, true
		}
	}
	return nil, false
}

// AllNames returns the names of all interactive features, sorted ascending
// and case-sensitive. The returned slice is a copy.
func (ix *Index) AllNames() []string {
	out := make([]string, len(ix.names))
	copy(out, ix.names)
	return out
}

// Features returns the features of one layer in source order, named or not.
func (ix *Index) Features(layer LayerID) []*Feature {
	return ix.features[layer]
}

// Len returns the number of features held for layer.
func (ix *Index) Len(layer LayerID) int {
	return len(ix.features[layer])
}

func (ix *Index) collectNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, layer := range LookupPriority {
		for name := range ix.byName[layer] {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
