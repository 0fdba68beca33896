package badger

import (
	"math"

	"github.com/poiesic/docbrief/core"
)

// candidate is an in-memory row considered during query ranking.
type candidate struct {
	chunk  core.Chunk
	vector []float32
	score  float32
}

func dotProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float32) float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	return float32(math.Sqrt(float64(sum)))
}

// cosineSimilarity returns 0 for mismatched or zero-length vectors rather
// than erroring; such rows simply never rank.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	denom := norm(a) * norm(b)
	if denom == 0 {
		return 0
	}
	return dotProduct(a, b) / denom
}

// selectMMR re-ranks candidates by maximal marginal relevance: each pick
// maximizes lambda*similarity(query) - (1-lambda)*max similarity to the
// chunks already selected. Candidates must arrive sorted by query
// similarity descending. lambda=1 degenerates to pure similarity order.
func selectMMR(candidates []candidate, k int, lambda float32) []core.ScoredChunk {
	if len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	selected := make([]core.ScoredChunk, 0, k)
	selectedVectors := make([][]float32, 0, k)
	remaining := make([]candidate, len(candidates))
	copy(remaining, candidates)

	for len(selected) < k {
		bestIdx := -1
		var bestMarginal float32
		for i, cand := range remaining {
			var redundancy float32
			for _, vec := range selectedVectors {
				if sim := cosineSimilarity(cand.vector, vec); sim > redundancy {
					redundancy = sim
				}
			}
			marginal := lambda*cand.score - (1-lambda)*redundancy
			if bestIdx == -1 || marginal > bestMarginal {
				bestIdx = i
				bestMarginal = marginal
			}
		}

		picked := remaining[bestIdx]
		selected = append(selected, core.ScoredChunk{
			Chunk: picked.chunk,
			Score: picked.score,
		})
		selectedVectors = append(selectedVectors, picked.vector)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}
