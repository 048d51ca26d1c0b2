// Package vector provides the in-memory approximate nearest-neighbor index
// and the document store backing similarity queries. The index follows a
// batch discipline: vectors are appended cheaply at any time, and a Build
// constructs the searchable random-projection forest which is then swapped
// in atomically, so queries never observe a partially built structure.
package vector

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/becomeliminal/arcana-go/core"
)

// DefaultTrees is the forest size used when Build is given a non-positive
// tree count. More trees improve recall at the cost of build time.
const DefaultTrees = 10

// leafSize is the split cutoff; subsets at or below it become leaves.
const leafSize = 16

// Neighbor is one query hit: the insertion id of the vector and its angular
// distance from the query.
type Neighbor struct {
	ID       int
	Distance float64
}

// Index is an approximate nearest-neighbor index over fixed-dimension
// vectors using angular distance. Add may run concurrently with Query;
// queries search the forest from the most recent Build.
type Index struct {
	dims int

	mu    sync.Mutex
	items []core.Embedding
	seed  int64

	forest atomic.Pointer[forest]
}

// forest is one immutable built snapshot covering items[:size].
type forest struct {
	trees []*treeNode
	items []core.Embedding
	size  int
}

type treeNode struct {
	// Internal nodes split on dot(v, plane) > threshold.
	plane     core.Embedding
	threshold float64
	left      *treeNode
	right     *treeNode

	// Leaf nodes hold insertion ids.
	ids []int
}

// NewIndex creates an index for dims-length vectors.
func NewIndex(dims int) *Index {
	return &Index{dims: dims, seed: 1}
}

// Dimensions returns the configured vector dimension.
func (x *Index) Dimensions() int { return x.dims }

// Len returns the number of vectors added so far, built or not.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.items)
}

// Add appends a vector and returns its insertion id. The vector is not
// discoverable by Query until the next Build.
func (x *Index) Add(vec core.Embedding) (int, error) {
	if len(vec) != x.dims {
		return 0, core.ErrDimensionMismatch
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.items = append(x.items, vec)
	return len(x.items) - 1, nil
}

// Build constructs a forest of trees random-projection trees over every
// vector added so far and swaps it in atomically. Non-positive trees uses
// DefaultTrees. Queries running concurrently keep the previous snapshot.
func (x *Index) Build(trees int) {
	if trees <= 0 {
		trees = DefaultTrees
	}

	x.mu.Lock()
	size := len(x.items)
	snapshot := x.items[:size:size]
	seed := x.seed
	x.seed++
	x.mu.Unlock()

	f := &forest{items: snapshot, size: size}
	if size > 0 {
		all := make([]int, size)
		for i := range all {
			all[i] = i
		}
		rng := rand.New(rand.NewSource(seed))
		f.trees = make([]*treeNode, trees)
		for t := range f.trees {
			f.trees[t] = buildTree(snapshot, append([]int(nil), all...), rng)
		}
	}

	x.forest.Store(f)
}

// Query returns up to k nearest neighbors by angular distance, ascending,
// with equal distances ordered by insertion id. Before the first Build, or
// on an empty index, it returns an empty slice and no error.
func (x *Index) Query(vec core.Embedding, k int) ([]Neighbor, error) {
	if len(vec) != x.dims {
		return nil, core.ErrDimensionMismatch
	}
	f := x.forest.Load()
	if f == nil || f.size == 0 || k <= 0 {
		return []Neighbor{}, nil
	}

	candidates := make(map[int]struct{})
	for _, tree := range f.trees {
		collect(tree, vec, candidates)
	}

	// A shallow forest can miss close items; when the candidate pool is
	// thin relative to k, fall back to scanning the snapshot.
	if len(candidates) < k*4 && len(candidates) < f.size {
		for id := 0; id < f.size; id++ {
			candidates[id] = struct{}{}
		}
	}

	hits := make([]Neighbor, 0, len(candidates))
	for id := range candidates {
		hits = append(hits, Neighbor{ID: id, Distance: angularDistance(vec, f.items[id])})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// buildTree recursively splits ids by hyperplanes through pairs of randomly
// chosen member vectors, the classic random-projection construction.
func buildTree(items []core.Embedding, ids []int, rng *rand.Rand) *treeNode {
	if len(ids) <= leafSize {
		return &treeNode{ids: ids}
	}

	a := items[ids[rng.Intn(len(ids))]]
	b := items[ids[rng.Intn(len(ids))]]

	plane := make(core.Embedding, len(a))
	var norm float64
	for i := range plane {
		plane[i] = a[i] - b[i]
		norm += float64(plane[i]) * float64(plane[i])
	}
	if norm == 0 {
		// Degenerate pick (identical points); give up splitting this subset.
		return &treeNode{ids: ids}
	}

	var threshold float64
	for i := range plane {
		threshold += float64(plane[i]) * (float64(a[i]) + float64(b[i])) / 2
	}

	var left, right []int
	for _, id := range ids {
		if dot(items[id], plane) > threshold {
			right = append(right, id)
		} else {
			left = append(left, id)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &treeNode{ids: ids}
	}

	return &treeNode{
		plane:     plane,
		threshold: threshold,
		left:      buildTree(items, left, rng),
		right:     buildTree(items, right, rng),
	}
}

// collect walks one tree to the query's leaf, accumulating candidate ids.
func collect(n *treeNode, vec core.Embedding, out map[int]struct{}) {
	for n != nil {
		if n.ids != nil {
			for _, id := range n.ids {
				out[id] = struct{}{}
			}
			return
		}
		if dot(vec, n.plane) > n.threshold {
			n = n.right
		} else {
			n = n.left
		}
	}
}

func dot(a, b core.Embedding) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// angularDistance is sqrt(2*(1-cos(a,b))), the metric Annoy-style indexes
// use: 0 for identical directions, 2 for opposite ones.
func angularDistance(a, b core.Embedding) float64 {
	var dotAB, normA, normB float64
	for i := range a {
		dotAB += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	cos := dotAB / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Sqrt(2 * (1 - cos))
}

// CosineFromDistance recovers the cosine similarity underlying an angular
// distance, for callers ranking by similarity instead of distance.
func CosineFromDistance(d float64) float64 {
	return 1 - d*d/2
}
