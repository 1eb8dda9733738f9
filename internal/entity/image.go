package entity

// ImageType is the coarse display bucket of an extracted image.
type ImageType string

const (
	ImageTypeMain      ImageType = "main"
	ImageTypeDetail    ImageType = "detail"
	ImageTypeThumbnail ImageType = "thumbnail"
	ImageTypeOther     ImageType = "other"
)

// SizeUnknown is the size hint recorded when a URL carries no WxH pattern.
const SizeUnknown = "unknown"

// ImageResult is one enhanced image of an extraction.
type ImageResult struct {
	URL         string    `json:"url"`
	OriginalURL string    `json:"original_url"`
	Index       int       `json:"index"`
	Type        ImageType `json:"type"`
	SizeHint    string    `json:"size_hint"`
}

// Extraction is the result of one successful pipeline run.
type Extraction struct {
	Title                string        `json:"title"`
	SourceURL            string        `json:"source_url"`
	Images               []ImageResult `json:"images"`
	TotalCandidatesFound int           `json:"total_candidates_found"`
	ValidCandidates      int           `json:"valid_candidates"`
	ExtractedCount       int           `json:"extracted_count"`
}
