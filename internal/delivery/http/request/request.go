package request

// ExtractRequest is the body of POST /api/extract.
type ExtractRequest struct {
	URL string `json:"url"`
	// MaxImages is optional; nil selects the configured default.
	MaxImages    *int   `json:"max_images"`
	Analyze      bool   `json:"analyze"`
	Instructions string `json:"instructions"`
	ForceRefresh bool   `json:"force_refresh"`
}
