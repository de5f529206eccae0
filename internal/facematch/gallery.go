package facematch

import (
	"sync"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/customer-recognition/internal/constants"
	"github.com/kozaktomas/customer-recognition/internal/database"
)

// Gallery is an appendable, concurrency-safe set of known embeddings.
//
// Small galleries are scanned linearly. Once the gallery holds more than
// indexThreshold vectors an HNSW graph picks candidates which are then
// re-scored exactly. When no candidate is under the threshold the whole
// gallery is scanned, so an index miss never turns a known face into a stranger.
type Gallery struct {
	mu             sync.RWMutex
	ids            []string
	vectors        [][]float32
	threshold      float64
	indexThreshold int
	graph          *hnsw.Graph[int] // keys are positions in vectors
	dim            int
}

// NewGallery creates an empty gallery. indexThreshold <= 0 disables the HNSW index.
func NewGallery(threshold float64, indexThreshold int) *Gallery {
	return &Gallery{
		threshold:      threshold,
		indexThreshold: indexThreshold,
	}
}

// Load appends known embeddings in order.
func (g *Gallery) Load(known []database.KnownEmbedding) {
	for _, k := range known {
		g.Add(k.CustomerID, k.Embedding)
	}
}

// Add appends an embedding for customerID. Empty embeddings are ignored.
func (g *Gallery) Add(customerID string, embedding []float32) {
	if len(embedding) == 0 {
		return
	}
	vec := append([]float32(nil), embedding...)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dim == 0 {
		g.dim = len(vec)
	}
	g.ids = append(g.ids, customerID)
	g.vectors = append(g.vectors, vec)
	pos := len(g.vectors) - 1

	switch {
	case g.graph != nil:
		if len(vec) == g.dim {
			g.graph.Add(hnsw.MakeNode(pos, vec))
		}
	case g.indexThreshold > 0 && len(g.vectors) > g.indexThreshold:
		g.buildGraph()
	}
}

// buildGraph indexes every vector of the gallery dimension. Caller holds the write lock.
func (g *Gallery) buildGraph() {
	graph := hnsw.NewGraph[int]()
	graph.M = database.HNSWMaxNeighbors
	graph.Ml = 1.0 / float64(database.HNSWMaxNeighbors)
	graph.EfSearch = database.HNSWEfSearch
	graph.Distance = hnsw.EuclideanDistance

	for pos, vec := range g.vectors {
		if len(vec) == g.dim {
			graph.Add(hnsw.MakeNode(pos, vec))
		}
	}
	g.graph = graph
}

// Len returns the number of embeddings in the gallery.
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.vectors)
}

// Indexed reports whether the HNSW graph is in use.
func (g *Gallery) Indexed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.graph != nil
}

// Match finds the closest known customer to query under the gallery threshold.
func (g *Gallery) Match(query []float32) MatchResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.graph == nil || len(query) != g.dim {
		return Match(query, g.vectors, g.ids, g.threshold)
	}

	k := constants.GalleryCandidates * database.HNSWSearchMultiplier
	neighbors := g.graph.Search(query, k)

	best := noMatch()
	bestPos := -1
	for _, n := range neighbors {
		d := database.EuclideanDistance(query, g.vectors[n.Key])
		if d < best.Distance || (d == best.Distance && n.Key < bestPos) {
			best.Distance = d
			bestPos = n.Key
		}
	}

	if bestPos < 0 || best.Distance >= g.threshold {
		return Match(query, g.vectors, g.ids, g.threshold)
	}
	best.CustomerID = g.ids[bestPos]
	best.Matched = true
	return best
}
