package pipeline

import (
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/user/offer-image-service/pkg/utils"
)

// RejectReason tells why a candidate was dropped. The empty reason means accepted.
type RejectReason string

const (
	Accepted         RejectReason = ""
	RejectEmpty      RejectReason = "empty"
	RejectScheme     RejectReason = "scheme"
	RejectMalformed  RejectReason = "malformed"
	RejectHost       RejectReason = "host"
	RejectExtension  RejectReason = "extension"
	RejectKeyword    RejectReason = "keyword"
	RejectDimensions RejectReason = "dimensions"
	RejectDuplicate  RejectReason = "duplicate"
)

// Validator filters raw candidates and normalizes the accepted ones.
type Validator struct {
	rules *compiledRules
}

func newValidator(rules *compiledRules) *Validator {
	return &Validator{rules: rules}
}

// Clean returns the cleaned absolute URL for raw, or the reason it was rejected.
func (v *Validator) Clean(raw string) (string, RejectReason) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), `\`, "")
	if s == "" {
		return "", RejectEmpty
	}

	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "//"):
		s = "https:" + s
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
	default:
		return "", RejectScheme
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", RejectMalformed
	}

	if !utils.HostMatches(u.Hostname(), v.rules.AssetHosts) {
		return "", RejectHost
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if !v.rules.extensions[ext] {
		return "", RejectExtension
	}

	lower = strings.ToLower(s)
	for _, kw := range v.rules.excludeLower {
		if kw != "" && strings.Contains(lower, kw) {
			return "", RejectKeyword
		}
	}

	if w, h, ok := explicitDimensions(u); ok && v.rules.MinDimension > 0 &&
		w < v.rules.MinDimension && h < v.rules.MinDimension {
		return "", RejectDimensions
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = v.filterQuery(u.RawQuery)
	u.ForceQuery = false
	return u.String(), Accepted
}

// CleanAll cleans every raw candidate and de-duplicates on the cleaned URL,
// keeping the first occurrence. It also reports how many candidates each rule rejected.
func (v *Validator) CleanAll(raws []string) ([]string, map[RejectReason]int) {
	seen := make(map[string]bool, len(raws))
	rejected := make(map[RejectReason]int)
	cleaned := make([]string, 0, len(raws))
	for _, raw := range raws {
		c, reason := v.Clean(raw)
		if reason != Accepted {
			rejected[reason]++
			continue
		}
		if seen[c] {
			rejected[RejectDuplicate]++
			continue
		}
		seen[c] = true
		cleaned = append(cleaned, c)
	}
	return cleaned, rejected
}

// filterQuery keeps only allow-listed parameters, preserving their order.
func (v *Validator) filterQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	var kept []string
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v.rules.keepParams[strings.ToLower(key)] {
			kept = append(kept, pair)
		}
	}
	return strings.Join(kept, "&")
}

// explicitDimensions reads a WxH pair from the path, falling back to width/height query parameters.
func explicitDimensions(u *url.URL) (int, int, bool) {
	if m := dimensionRe.FindStringSubmatch(u.Path); m != nil {
		w, _ := strconv.Atoi(m[1])
		h, _ := strconv.Atoi(m[2])
		return w, h, true
	}

	q := u.Query()
	w, errW := strconv.Atoi(firstNonEmpty(q.Get("w"), q.Get("width")))
	h, errH := strconv.Atoi(firstNonEmpty(q.Get("h"), q.Get("height")))
	if errW != nil || errH != nil {
		return 0, 0, false
	}
	return w, h, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
