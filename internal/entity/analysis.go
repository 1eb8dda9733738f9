package entity

// CategoryUnclassified is the category carried by fallback analyses.
const CategoryUnclassified = "unclassified"

// Analysis is the structured output of the vision classifier.
// Fallback analyses share the same shape so callers never branch on it.
type Analysis struct {
	Category    string   `json:"category"`
	Colors      []string `json:"colors"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Confidence  float64  `json:"confidence"`
	Fallback    bool     `json:"fallback"`
	Error       string   `json:"error,omitempty"`
}

// FallbackAnalysis builds the best-effort analysis used when classification fails.
func FallbackAnalysis(err error) *Analysis {
	a := &Analysis{
		Category: CategoryUnclassified,
		Colors:   []string{},
		Tags:     []string{},
		Fallback: true,
	}
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

// AnalyzedImage pairs an extracted image with its (optional) analysis.
type AnalyzedImage struct {
	ImageResult
	Analysis *Analysis `json:"analysis,omitempty"`
}
