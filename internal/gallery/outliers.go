package gallery

import (
	"sort"

	"github.com/coder/hnsw"
)

// HNSW parameters for the reference-embedding neighbor graph.
const (
	hnswMaxNeighbors = 16
)

// Outlier flags one reference embedding that looks mislabeled: most of its
// nearest neighbors belong to other identities, or it sits far from its own
// identity's centroid.
type Outlier struct {
	Key              string  `json:"key"`
	Name             string  `json:"name"`
	Source           string  `json:"source"`
	ForeignNeighbors int     `json:"foreign_neighbors"`
	Neighbors        int     `json:"neighbors"`
	DistFromCentroid float64 `json:"dist_from_centroid"`
}

// FindOutliers inspects every reference embedding against its k nearest
// neighbors in the gallery. Results are advisory (gallery hygiene), so the
// approximate index is fine here; the matching path stays exact.
func FindOutliers(g *Gallery, k int) []Outlier {
	if k <= 0 {
		k = 5
	}

	type ref struct {
		identity  int
		embedding []float32
		source    string
	}
	var refs []ref
	identities := g.Identities()
	for i := range identities {
		for j, emb := range identities[i].Embeddings {
			source := ""
			if j < len(identities[i].Sources) {
				source = identities[i].Sources[j]
			}
			refs = append(refs, ref{identity: i, embedding: emb, source: source})
		}
	}
	if len(refs) < 2 {
		return nil
	}

	graph := hnsw.NewGraph[int]()
	graph.M = hnswMaxNeighbors
	graph.Ml = 1.0 / float64(hnswMaxNeighbors)
	graph.Distance = hnsw.EuclideanDistance
	for i := range refs {
		graph.Add(hnsw.MakeNode(i, refs[i].embedding))
	}

	centroids := make([][]float32, len(identities))
	for i := range identities {
		centroids[i] = centroid(identities[i].Embeddings)
	}

	var outliers []Outlier
	for i := range refs {
		// k+1 because the query point finds itself.
		neighbors := graph.Search(refs[i].embedding, k+1)
		foreign, total := 0, 0
		for _, n := range neighbors {
			if n.Key == i {
				continue
			}
			total++
			if refs[n.Key].identity != refs[i].identity {
				foreign++
			}
		}
		if total == 0 || foreign*2 <= total {
			continue
		}

		id := identities[refs[i].identity]
		outliers = append(outliers, Outlier{
			Key:              id.Key,
			Name:             id.Name,
			Source:           refs[i].source,
			ForeignNeighbors: foreign,
			Neighbors:        total,
			DistFromCentroid: float64(hnsw.EuclideanDistance(centroids[refs[i].identity], refs[i].embedding)),
		})
	}

	sort.Slice(outliers, func(i, j int) bool {
		return outliers[i].DistFromCentroid > outliers[j].DistFromCentroid
	})
	return outliers
}

// centroid computes the element-wise mean of embeddings.
func centroid(embeddings [][]float32) []float32 {
	if len(embeddings) == 0 {
		return nil
	}
	c := make([]float32, len(embeddings[0]))
	for _, e := range embeddings {
		for i := range c {
			if i < len(e) {
				c[i] += e[i]
			}
		}
	}
	for i := range c {
		c[i] /= float32(len(embeddings))
	}
	return c
}
