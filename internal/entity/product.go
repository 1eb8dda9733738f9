package entity

// ProductPage is the transient view of one fetched product page.
// RawHTML is dropped as soon as extraction has run.
type ProductPage struct {
	SourceURL string
	Title     string
	RawHTML   string
}

// CandidateSource names the extraction strategy that produced a candidate.
type CandidateSource string

const (
	SourceAttribute CandidateSource = "attribute"
	SourceScript    CandidateSource = "script"
	SourceStyle     CandidateSource = "style"
)

// ImageCandidate is a raw image reference as found in the document.
type ImageCandidate struct {
	RawURL string
	Source CandidateSource
}
