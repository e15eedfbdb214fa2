package store

import (
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// annIndex is an HNSW graph over one collection. Replaced and deleted ids are
// orphaned rather than removed from the graph, since coder/hnsw breaks when the
// last node is deleted; searches over-fetch by the orphan count to compensate.
// Collections no larger than efSearch are scanned exactly over the live vectors.
type annIndex struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[uint64]
	metric   Metric
	efSearch int
	idMap    map[string]uint64
	keyMap   map[uint64]string
	live     map[string][]float32
	nextKey  uint64
	orphans  int
}

type annHit struct {
	id       string
	distance float32
}

func newANNIndex(metric Metric, m, efSearch int) *annIndex {
	if m <= 0 {
		m = 16
	}
	if efSearch <= 0 {
		efSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = metric.Distance
	graph.M = m
	graph.EfSearch = efSearch
	graph.Ml = 0.25

	return &annIndex{
		graph:    graph,
		metric:   metric,
		efSearch: efSearch,
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
		live:     make(map[string][]float32),
	}
}

func (a *annIndex) add(id string, vec []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if old, ok := a.idMap[id]; ok {
		delete(a.keyMap, old)
		a.orphans++
	}

	key := a.nextKey
	a.nextKey++

	v := make([]float32, len(vec))
	copy(v, vec)
	a.graph.Add(hnsw.MakeNode(key, v))

	a.idMap[id] = key
	a.keyMap[key] = id
	a.live[id] = v
}

func (a *annIndex) remove(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if key, ok := a.idMap[id]; ok {
		delete(a.keyMap, key)
		delete(a.idMap, id)
		delete(a.live, id)
		a.orphans++
	}
}

func (a *annIndex) len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.idMap)
}

// search returns up to k live ids nearest to q, with exact distances, sorted
// by (distance, id).
func (a *annIndex) search(q []float32, k int) []annHit {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(a.idMap) == 0 || k <= 0 {
		return nil
	}

	var hits []annHit
	if len(a.live) <= a.efSearch {
		hits = make([]annHit, 0, len(a.live))
		for id, vec := range a.live {
			hits = append(hits, annHit{id: id, distance: a.metric.Distance(q, vec)})
		}
	} else {
		// The greedy descent can stop short of true neighbours, so the graph is
		// asked for at least efSearch candidates and re-ranked exactly.
		fetch := min(max(k+a.orphans, a.efSearch), a.graph.Len())
		nodes := a.graph.Search(q, fetch)

		hits = make([]annHit, 0, len(nodes))
		for _, node := range nodes {
			id, ok := a.keyMap[node.Key]
			if !ok {
				continue
			}
			hits = append(hits, annHit{id: id, distance: a.metric.Distance(q, node.Value)})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].distance != hits[j].distance {
			return hits[i].distance < hits[j].distance
		}
		return hits[i].id < hits[j].id
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
