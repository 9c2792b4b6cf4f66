package analytics

import (
	"math"
	"sort"
)

const kmeansIterations = 20

// clusterAgents groups agents by similarity over their metric vectors with
// k-means, k = min(3, agents). Fully deterministic: agents are visited in id
// order, centroids seed at evenly spaced agents, and ties go to the lowest
// cluster index. Fewer than two agents collapse into a single group.
func clusterAgents(ids []string, features [][]float64) [][]string {
	n := len(ids)
	if n == 0 {
		return nil
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return ids[order[a]] < ids[order[b]] })

	k := 3
	if n < k {
		k = n
	}
	if k < 2 {
		group := make([]string, 0, n)
		for _, idx := range order {
			group = append(group, ids[idx])
		}
		return [][]string{group}
	}

	scaled := zScore(features)

	dims := len(scaled[0])
	centroids := make([][]float64, k)
	for c := 0; c < k; c++ {
		seed := order[c*n/k]
		centroids[c] = append([]float64(nil), scaled[seed]...)
	}

	assign := make([]int, n)
	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for _, i := range order {
			best, bestDist := 0, math.Inf(1)
			for c := 0; c < k; c++ {
				d := sqDist(scaled[i], centroids[c])
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		for c := 0; c < k; c++ {
			sum := make([]float64, dims)
			count := 0
			for i := 0; i < n; i++ {
				if assign[i] != c {
					continue
				}
				for d := 0; d < dims; d++ {
					sum[d] += scaled[i][d]
				}
				count++
			}
			if count == 0 {
				continue
			}
			for d := 0; d < dims; d++ {
				centroids[c][d] = sum[d] / float64(count)
			}
		}
	}

	groups := make(map[int][]string)
	for _, i := range order {
		groups[assign[i]] = append(groups[assign[i]], ids[i])
	}

	out := make([][]string, 0, len(groups))
	for _, members := range groups {
		out = append(out, members)
	}
	// Stable numbering: clusters ordered by their lexically first member.
	sort.Slice(out, func(a, b int) bool { return out[a][0] < out[b][0] })
	return out
}

func zScore(features [][]float64) [][]float64 {
	n := len(features)
	if n == 0 {
		return nil
	}
	dims := len(features[0])

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, dims)
	}
	for d := 0; d < dims; d++ {
		col := make([]float64, n)
		for i := 0; i < n; i++ {
			col[i] = features[i][d]
		}
		m, sd := mean(col), stdDev(col)
		for i := 0; i < n; i++ {
			if sd == 0 {
				out[i][d] = 0
				continue
			}
			out[i][d] = (col[i] - m) / sd
		}
	}
	return out
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
