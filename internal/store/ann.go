package store

import (
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// annIndex wraps coder/hnsw's pure-Go graph. It holds no persistence of its
// own — Store rebuilds it from the vectors bucket on build_index, since the
// durable copy of every vector already lives in bbolt.
type annIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	cfg   VectorStoreConfig
}

func newANNIndex(cfg VectorStoreConfig) *annIndex {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &annIndex{graph: graph, cfg: cfg}
}

// add inserts id/vector pairs. Vectors are normalized in place for cosine
// metric, matching the distance function the graph was built with.
func (a *annIndex) add(ids []uint64, vectors [][]float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, id := range ids {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if a.cfg.Metric == "cos" {
			normalizeInPlace(vec)
		}
		a.graph.Add(hnsw.MakeNode(id, vec))
	}
}

// search returns up to k candidates ordered by ascending distance. score is
// 1.0 - distance per the component's scoring rule.
func (a *annIndex) search(query []float32, k int) []*VectorResult {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.graph.Len() == 0 {
		return nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if a.cfg.Metric == "cos" {
		normalizeInPlace(q)
	}

	nodes := a.graph.Search(q, k)
	out := make([]*VectorResult, 0, len(nodes))
	for _, n := range nodes {
		dist := a.graph.Distance(q, n.Value)
		out = append(out, &VectorResult{ID: n.Key, Distance: dist, Score: 1.0 - dist})
	}
	return out
}

func (a *annIndex) len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.graph.Len()
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
