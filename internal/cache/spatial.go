package cache

import (
	"fmt"
	"path"

	h3 "github.com/uber/h3-go/v4"
)

// DefaultResolution is the H3 resolution for spatial keys. Resolution 9 is
// ~200 m cells, 12 is ~10 m: fine enough that one cell rarely spans
// distinct assets, coarse enough that co-located requests share an entry.
const DefaultResolution = 12

// SpatialCache is a content-addressed cache keyed by hierarchical
// hexagonal cell ids. One entry serves many requests: the remote provider
// returns all hazard sub-types for a cell together, so multiple hazard
// types and indicators map to the same cell and scenario. Entries are
// created on miss, read on hit and never invalidated here; staleness is an
// external concern.
type SpatialCache struct {
	store      Store
	resolution int
}

// NewSpatialCache creates a cache over the given backing store at
// DefaultResolution.
func NewSpatialCache(store Store) *SpatialCache {
	return &SpatialCache{store: store, resolution: DefaultResolution}
}

// Resolution returns the H3 resolution in use.
func (c *SpatialCache) Resolution() int { return c.resolution }

// SpatialKey returns the cell id for a location at the cache resolution.
func (c *SpatialCache) SpatialKey(lat, lon float64) (string, error) {
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, c.resolution)
	if err != nil {
		return "", fmt.Errorf("spatial key for (%f, %f): %w", lat, lon, err)
	}
	return cell.String(), nil
}

// Key joins a provider id, scenario tag and cell id into a store key.
func (c *SpatialCache) Key(providerID, scenarioTag, spatialKey string) string {
	return path.Join(providerID, scenarioTag, spatialKey)
}

// GetItems reads the values for keys in order, nil for missing keys.
func (c *SpatialCache) GetItems(keys []string) ([][]byte, error) {
	return c.store.GetItems(keys)
}

// SetItems writes all items.
func (c *SpatialCache) SetItems(items map[string][]byte) error {
	return c.store.SetItems(items)
}

// GetAll reads every entry under prefix; support depends on the backend.
func (c *SpatialCache) GetAll(prefix string) (map[string][]byte, error) {
	return c.store.GetAll(prefix)
}
