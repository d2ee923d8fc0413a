package nlquery

// Config holds runtime knobs for query resolution.
type Config struct {
	Model       string
	Temperature float32
	// SimilarityThreshold is the cosine-distance cutoff below which the
	// closest template is preferred over free-form generation.
	SimilarityThreshold float64
	// CandidateLimit caps how many templates are offered for tool selection.
	CandidateLimit int
	// VectorDim is the expected embedding dimensionality.
	VectorDim int
	// TopTrending caps the trending endpoint result size.
	TopTrending int
}
