package cluster

import (
	"math/rand"
	"sort"
)

// louvain is modularity-maximizing community detection: repeated local moving
// followed by graph aggregation until modularity stops improving. The
// resolution parameter trades community size against count; runs are
// deterministic for a fixed random_state.
//
// Parameters: resolution (default 1.0), min_weight (default 0.0),
// random_state (default 0).
type louvain struct{}

func init() { register(louvain{}) }

func (louvain) Name() string { return "louvain" }

// louvainGraph is the working representation: adjacency with self-loops
// accumulated during aggregation.
type louvainGraph struct {
	nodes []int64
	adj   map[int64]map[int64]float64
	// totalWeight is m: the sum of edge weights (self-loops counted once).
	totalWeight float64
}

func buildLouvainGraph(g *Graph, minWeight float64) *louvainGraph {
	lg := &louvainGraph{
		nodes: append([]int64(nil), g.Nodes...),
		adj:   make(map[int64]map[int64]float64, len(g.Nodes)),
	}
	for _, node := range lg.nodes {
		lg.adj[node] = make(map[int64]float64)
	}
	for _, edge := range g.Edges {
		if edge.Weight < minWeight || edge.Src == edge.Dst {
			continue
		}
		if _, ok := lg.adj[edge.Src]; !ok {
			continue
		}
		if _, ok := lg.adj[edge.Dst]; !ok {
			continue
		}
		lg.adj[edge.Src][edge.Dst] += edge.Weight
		lg.adj[edge.Dst][edge.Src] += edge.Weight
		lg.totalWeight += edge.Weight
	}
	return lg
}

// degree is the weighted degree of node (self-loops counted twice).
func (lg *louvainGraph) degree(node int64) float64 {
	var sum float64
	for other, w := range lg.adj[node] {
		if other == node {
			sum += 2 * w
		} else {
			sum += w
		}
	}
	return sum
}

func (louvain) Run(g *Graph, params Params) (*Result, error) {
	resolution := params.Float("resolution", 1.0)
	minWeight := params.Float("min_weight", 0.0)
	seed := int64(params.Int("random_state", 0))

	rng := rand.New(rand.NewSource(seed))

	lg := buildLouvainGraph(g, minWeight)

	// Each original node's community, refined level by level.
	community := make(map[int64]int64, len(lg.nodes))
	for _, node := range lg.nodes {
		community[node] = node
	}

	working := lg
	// nodeContents maps each working-graph node to the original nodes it
	// aggregates.
	nodeContents := make(map[int64][]int64, len(lg.nodes))
	for _, node := range lg.nodes {
		nodeContents[node] = []int64{node}
	}

	for level := 0; level < 64; level++ {
		assignment, improved := localMoving(working, resolution, rng)
		if !improved && level > 0 {
			break
		}

		// Fold the assignment into the original-node communities.
		for workingNode, comm := range assignment {
			for _, original := range nodeContents[workingNode] {
				community[original] = comm
			}
		}

		if !improved {
			break
		}

		working, nodeContents = aggregate(working, assignment, nodeContents)
		if len(working.nodes) == len(assignment) {
			// No communities merged; a further level cannot improve.
			break
		}
	}

	groupsByComm := make(map[int64][]int64)
	for _, node := range lg.nodes {
		comm := community[node]
		groupsByComm[comm] = append(groupsByComm[comm], node)
	}
	groups := make([][]int64, 0, len(groupsByComm))
	for _, members := range groupsByComm {
		groups = append(groups, members)
	}

	clusters := finalizeClusters(groups, g.Paths)

	// Modularity is undefined on an empty graph; report 0.
	modularity := 0.0
	if lg.totalWeight > 0 {
		modularity = computeModularity(lg, community, resolution)
	}

	return &Result{
		Algorithm: "louvain",
		Parameters: map[string]interface{}{
			"resolution":   resolution,
			"min_weight":   minWeight,
			"random_state": seed,
		},
		ClusterCount: len(clusters),
		Clusters:     clusters,
		Metrics:      map[string]interface{}{"modularity": modularity},
	}, nil
}

// localMoving runs the first Louvain phase on the working graph: visit nodes
// in seeded order, moving each into the neighboring community with the
// largest modularity gain, until a full sweep makes no move.
func localMoving(lg *louvainGraph, resolution float64, rng *rand.Rand) (map[int64]int64, bool) {
	assignment := make(map[int64]int64, len(lg.nodes))
	communityTotal := make(map[int64]float64, len(lg.nodes))
	nodeDegree := make(map[int64]float64, len(lg.nodes))

	for _, node := range lg.nodes {
		assignment[node] = node
		deg := lg.degree(node)
		nodeDegree[node] = deg
		communityTotal[node] += deg
	}

	m2 := 2 * lg.totalWeight
	if m2 == 0 {
		return assignment, false
	}

	order := append([]int64(nil), lg.nodes...)
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	improvedEver := false
	for sweep := 0; sweep < 128; sweep++ {
		moved := false
		for _, node := range order {
			current := assignment[node]
			deg := nodeDegree[node]

			// Weight from node to each neighboring community.
			commLinks := make(map[int64]float64)
			for neighbor, w := range lg.adj[node] {
				if neighbor == node {
					continue
				}
				commLinks[assignment[neighbor]] += w
			}

			// Remove the node from its community for the gain comparison.
			communityTotal[current] -= deg

			bestComm := current
			bestGain := commLinks[current] - resolution*communityTotal[current]*deg/m2

			// Deterministic candidate order.
			candidates := make([]int64, 0, len(commLinks))
			for comm := range commLinks {
				candidates = append(candidates, comm)
			}
			sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

			for _, comm := range candidates {
				if comm == current {
					continue
				}
				gain := commLinks[comm] - resolution*communityTotal[comm]*deg/m2
				if gain > bestGain {
					bestGain = gain
					bestComm = comm
				}
			}

			communityTotal[bestComm] += deg
			if bestComm != current {
				assignment[node] = bestComm
				moved = true
				improvedEver = true
			}
		}
		if !moved {
			break
		}
	}

	return assignment, improvedEver
}

// aggregate builds the next-level graph: one node per community, with
// intra-community weight folded into self-loops.
func aggregate(lg *louvainGraph, assignment map[int64]int64, contents map[int64][]int64) (*louvainGraph, map[int64][]int64) {
	next := &louvainGraph{adj: make(map[int64]map[int64]float64)}
	nextContents := make(map[int64][]int64)

	seen := make(map[int64]bool)
	for _, node := range lg.nodes {
		comm := assignment[node]
		if !seen[comm] {
			seen[comm] = true
			next.nodes = append(next.nodes, comm)
			next.adj[comm] = make(map[int64]float64)
		}
		nextContents[comm] = append(nextContents[comm], contents[node]...)
	}
	sort.Slice(next.nodes, func(i, j int) bool { return next.nodes[i] < next.nodes[j] })

	for _, node := range lg.nodes {
		srcComm := assignment[node]
		for neighbor, w := range lg.adj[node] {
			dstComm := assignment[neighbor]
			if node == neighbor {
				next.adj[srcComm][srcComm] += w
				next.totalWeight += w
				continue
			}
			if srcComm == dstComm {
				// Intra-community edges fold into a self-loop. The adjacency
				// lists each undirected edge from both endpoints, so halve.
				next.adj[srcComm][srcComm] += w / 2
				next.totalWeight += w / 2
				continue
			}
			// Cross-community edges stay symmetric: each direction writes
			// its own adjacency entry at full weight.
			next.adj[srcComm][dstComm] += w
		}
	}

	// Total weight counts each distinct cross-community pair once.
	counted := make(map[[2]int64]bool)
	for src, neighbors := range next.adj {
		for dst, w := range neighbors {
			if src == dst {
				continue
			}
			key := [2]int64{src, dst}
			if src > dst {
				key = [2]int64{dst, src}
			}
			if !counted[key] {
				counted[key] = true
				next.totalWeight += w
			}
		}
	}

	return next, nextContents
}

// computeModularity evaluates Q over the original graph for the final
// partition.
func computeModularity(lg *louvainGraph, community map[int64]int64, resolution float64) float64 {
	m2 := 2 * lg.totalWeight

	intra := make(map[int64]float64)
	total := make(map[int64]float64)

	for _, node := range lg.nodes {
		comm := community[node]
		total[comm] += lg.degree(node)
		for neighbor, w := range lg.adj[node] {
			if community[neighbor] == comm {
				if node == neighbor {
					intra[comm] += 2 * w
				} else {
					intra[comm] += w
				}
			}
		}
	}

	var q float64
	for comm, in := range intra {
		q += in/m2 - resolution*(total[comm]/m2)*(total[comm]/m2)
	}
	// Communities with no internal edges still contribute their degree term.
	for comm, tot := range total {
		if _, ok := intra[comm]; !ok {
			q -= resolution * (tot / m2) * (tot / m2)
		}
	}
	return q
}
