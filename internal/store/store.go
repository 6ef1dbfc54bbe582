package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrArrayNotFound is returned when no array metadata exists at a path.
var ErrArrayNotFound = errors.New("array not found")

// ErrOutOfRange is returned when an integer coordinate falls outside the
// array shape.
var ErrOutOfRange = errors.New("coordinate out of range")

// KV is the minimal key/value contract the store consumes. Backends are
// pluggable (in-memory map, badger on disk).
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
}

// Meta holds the attributes attached to a stored array. TransformMat3x3 is
// the row-major 3x3 affine map from pixel to CRS coordinates
// [a, b, c, d, e, f, 0, 0, 1]. IndexValues are the ordered severities
// (return periods), or [0] for a single-layer array.
type Meta struct {
	Shape           [3]int     `json:"shape"`
	Chunks          [3]int     `json:"chunks"`
	TransformMat3x3 [9]float64 `json:"transform_mat3x3"`
	IndexValues     []float64  `json:"index_values"`
	CRS             string     `json:"crs,omitempty"`
	Units           string     `json:"units,omitempty"`
}

// Store reads chunked 3-D raster arrays [severity, row, col] from a KV
// backend. Chunks are float32, zstd-compressed; a chunk absent from the
// backend reads as zeros.
type Store struct {
	kv    KV
	codec *Codec
}

// New creates a Store over the given backend with the default compression
// level.
func New(kv KV) (*Store, error) {
	return NewWithLevel(kv, 2)
}

// NewWithLevel creates a Store with a specific zstd level (1-4).
func NewWithLevel(kv KV, level int) (*Store, error) {
	codec, err := NewCodec(level)
	if err != nil {
		return nil, err
	}
	return &Store{kv: kv, codec: codec}, nil
}

func metaKey(path string) string { return path + "/.zmeta" }

func chunkKey(path string, cz, cy, cx int) string {
	return fmt.Sprintf("%s/%d.%d.%d", path, cz, cy, cx)
}

// Open reads the array at path. The returned Array caches chunks it has
// touched for its own lifetime; transform and severity count are immutable
// for the lifetime of the array.
func (s *Store) Open(path string) (*Array, error) {
	raw, ok, err := s.kv.Get(metaKey(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, ErrArrayNotFound)
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("open %s: parse metadata: %w", path, err)
	}
	applyDefaults(&meta)
	if err := checkMeta(meta); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Array{store: s, path: path, meta: meta, chunks: make(map[string][]float32)}, nil
}

// Create writes array metadata at path. Existing chunks under the path are
// not touched; onboarding pipelines own chunk lifecycle.
func (s *Store) Create(path string, meta Meta) error {
	applyDefaults(&meta)
	if err := checkMeta(meta); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return s.kv.Set(metaKey(path), raw)
}

func applyDefaults(meta *Meta) {
	if meta.CRS == "" {
		meta.CRS = "epsg:4326"
	}
	if meta.Units == "" {
		meta.Units = "default"
	}
	if len(meta.IndexValues) == 0 {
		meta.IndexValues = []float64{0}
	}
	if meta.Chunks == [3]int{} {
		meta.Chunks = [3]int{meta.Shape[0], 1000, 1000}
	}
	for i := range meta.Chunks {
		if meta.Chunks[i] > meta.Shape[i] {
			meta.Chunks[i] = meta.Shape[i]
		}
	}
}

func checkMeta(meta Meta) error {
	for i := 0; i < 3; i++ {
		if meta.Shape[i] <= 0 {
			return fmt.Errorf("invalid shape %v", meta.Shape)
		}
		if meta.Chunks[i] <= 0 {
			return fmt.Errorf("invalid chunks %v", meta.Chunks)
		}
	}
	if len(meta.IndexValues) != meta.Shape[0] {
		return fmt.Errorf("%d index values for %d layers", len(meta.IndexValues), meta.Shape[0])
	}
	return nil
}

// Array is a read view over one stored raster array.
type Array struct {
	store *Store
	path  string
	meta  Meta

	mu     sync.Mutex
	chunks map[string][]float32
}

// Path returns the resource path the array was opened from.
func (a *Array) Path() string { return a.path }

// Shape returns [severity count, rows, cols].
func (a *Array) Shape() [3]int { return a.meta.Shape }

// Transform returns the row-major pixel-to-CRS affine matrix.
func (a *Array) Transform() [9]float64 { return a.meta.TransformMat3x3 }

// IndexValues returns the ordered severity axis values.
func (a *Array) IndexValues() []float64 { return a.meta.IndexValues }

// CRS returns the coordinate reference system identifier.
func (a *Array) CRS() string { return a.meta.CRS }

// Units returns the units of stored intensities.
func (a *Array) Units() string { return a.meta.Units }

// Sel gathers elements by integer coordinate tuples. The three index slices
// must have equal length; element i of the result is the value at
// [sev[i], row[i], col[i]]. Out-of-range coordinates are an error, not
// wrapped; longitude wrapping is the caller's concern.
func (a *Array) Sel(sev, row, col []int) ([]float64, error) {
	if len(sev) != len(row) || len(row) != len(col) {
		return nil, fmt.Errorf("index lengths differ: %d, %d, %d", len(sev), len(row), len(col))
	}
	out := make([]float64, len(sev))
	for i := range sev {
		if sev[i] < 0 || sev[i] >= a.meta.Shape[0] ||
			row[i] < 0 || row[i] >= a.meta.Shape[1] ||
			col[i] < 0 || col[i] >= a.meta.Shape[2] {
			return nil, fmt.Errorf("%w: [%d, %d, %d] in shape %v",
				ErrOutOfRange, sev[i], row[i], col[i], a.meta.Shape)
		}
		chunk, err := a.chunk(sev[i]/a.meta.Chunks[0], row[i]/a.meta.Chunks[1], col[i]/a.meta.Chunks[2])
		if err != nil {
			return nil, err
		}
		cz, cy, cx := sev[i]%a.meta.Chunks[0], row[i]%a.meta.Chunks[1], col[i]%a.meta.Chunks[2]
		out[i] = float64(chunk[(cz*a.meta.Chunks[1]+cy)*a.meta.Chunks[2]+cx])
	}
	return out, nil
}

// chunk loads a chunk by chunk-grid coordinates, caching it on the array.
// Absent chunks read as zeros, matching the store's fill-value convention.
func (a *Array) chunk(cz, cy, cx int) ([]float32, error) {
	key := chunkKey(a.path, cz, cy, cx)
	a.mu.Lock()
	cached, ok := a.chunks[key]
	a.mu.Unlock()
	if ok {
		return cached, nil
	}

	n := a.meta.Chunks[0] * a.meta.Chunks[1] * a.meta.Chunks[2]
	raw, found, err := a.store.kv.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read chunk %s: %w", key, err)
	}
	var values []float32
	if found {
		values, err = a.store.codec.Decode(raw, n)
		if err != nil {
			return nil, fmt.Errorf("read chunk %s: %w", key, err)
		}
	} else {
		values = make([]float32, n)
	}

	a.mu.Lock()
	a.chunks[key] = values
	a.mu.Unlock()
	return values, nil
}

// WriteCurve writes the severity curve at one pixel, read-modify-writing the
// affected chunks. Intended for onboarding pipelines and test fixtures; the
// retrieval path never mutates arrays.
func (a *Array) WriteCurve(row, col int, values []float64) error {
	if len(values) != a.meta.Shape[0] {
		return fmt.Errorf("curve has %d values, array has %d layers", len(values), a.meta.Shape[0])
	}
	if row < 0 || row >= a.meta.Shape[1] || col < 0 || col >= a.meta.Shape[2] {
		return fmt.Errorf("%w: [%d, %d] in shape %v", ErrOutOfRange, row, col, a.meta.Shape)
	}
	for sev, v := range values {
		chunk, err := a.chunk(sev/a.meta.Chunks[0], row/a.meta.Chunks[1], col/a.meta.Chunks[2])
		if err != nil {
			return err
		}
		cz, cy, cx := sev%a.meta.Chunks[0], row%a.meta.Chunks[1], col%a.meta.Chunks[2]
		chunk[(cz*a.meta.Chunks[1]+cy)*a.meta.Chunks[2]+cx] = float32(v)
		key := chunkKey(a.path, sev/a.meta.Chunks[0], row/a.meta.Chunks[1], col/a.meta.Chunks[2])
		if err := a.store.kv.Set(key, a.store.codec.Encode(chunk)); err != nil {
			return fmt.Errorf("write chunk %s: %w", key, err)
		}
	}
	return nil
}
