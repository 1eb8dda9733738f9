package pipeline

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/user/offer-image-service/internal/entity"
	"github.com/user/offer-image-service/pkg/utils"
)

// Enhancer upgrades cleaned URLs to high resolution and labels them.
type Enhancer struct {
	rules *compiledRules
}

func newEnhancer(rules *compiledRules) *Enhancer {
	return &Enhancer{rules: rules}
}

// Build turns the ordered, de-duplicated URLs into at most maxImages results.
// Processing stops as soon as the limit is reached. collapsed counts the inspected
// URLs dropped because they enhanced to an already returned URL.
func (e *Enhancer) Build(cleaned []string, maxImages int) (results []entity.ImageResult, collapsed int) {
	if maxImages <= 0 {
		return []entity.ImageResult{}, 0
	}

	results = make([]entity.ImageResult, 0, min(len(cleaned), maxImages))
	seen := make(map[string]bool, cap(results))
	for _, original := range cleaned {
		if len(results) == maxImages {
			break
		}
		enhanced := e.Enhance(original)
		// Two thumbnails of the same picture can upgrade to the same URL.
		if seen[enhanced] {
			collapsed++
			continue
		}
		seen[enhanced] = true
		results = append(results, entity.ImageResult{
			URL:         enhanced,
			OriginalURL: original,
			Index:       len(results) + 1,
			Type:        e.Classify(original, len(results)),
			SizeHint:    SizeHint(enhanced),
		})
	}
	return results, collapsed
}

// Enhance applies the rewrite rule families to the URL path and, for asset-host
// URLs without any size token, inserts the high-resolution suffix before the extension.
// Enhance is idempotent.
func (e *Enhancer) Enhance(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	// Work on the escaped form so characters such as "!!" in alicdn IDs survive.
	escaped := u.EscapedPath()
	p := escaped
	for _, family := range e.rules.enhance {
		for _, rule := range family {
			if out, ok := e.apply(rule, p); ok {
				p = out
				break
			}
		}
	}

	if !dimensionRe.MatchString(p) && utils.HostMatches(u.Hostname(), e.rules.AssetHosts) {
		if loc := finalExtRe.FindStringIndex(p); loc != nil {
			p = p[:loc[0]] + "_" + e.rules.HighResSize + p[loc[0]:]
		}
	}

	if p == escaped {
		return rawURL
	}
	unescaped, err := url.PathUnescape(p)
	if err != nil {
		return rawURL
	}
	u.Path = unescaped
	u.RawPath = p
	return u.String()
}

// apply rewrites the first match of rule in s.
func (e *Enhancer) apply(rule compiledEnhance, s string) (string, bool) {
	m := rule.re.FindStringSubmatchIndex(s)
	if m == nil {
		return s, false
	}
	if rule.BelowThreshold {
		w := groupInt(rule, s, m, "w")
		h := groupInt(rule, s, m, "h")
		if w >= e.rules.UpgradeBelow || h >= e.rules.UpgradeBelow {
			return s, false
		}
	}
	var dst []byte
	dst = rule.re.ExpandString(dst, rule.replacement, s, m)
	return s[:m[0]] + string(dst) + s[m[1]:], true
}

func groupInt(rule compiledEnhance, s string, m []int, name string) int {
	i := rule.re.SubexpIndex(name)
	if i < 0 || m[2*i] < 0 {
		return 0
	}
	n, _ := strconv.Atoi(s[m[2*i]:m[2*i+1]])
	return n
}

// SizeHint returns the first WxH size token of the URL path or entity.SizeUnknown.
func SizeHint(rawURL string) string {
	target := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		target = u.Path
	}
	if m := dimensionRe.FindStringSubmatch(target); m != nil {
		return m[1] + "x" + m[2]
	}
	return entity.SizeUnknown
}

// Classify labels a URL by keyword first, then by its 0-based position.
func (e *Enhancer) Classify(rawURL string, position int) entity.ImageType {
	target := strings.ToLower(rawURL)
	if u, err := url.Parse(rawURL); err == nil {
		target = strings.ToLower(u.Path + "?" + u.RawQuery)
	}
	for _, tk := range e.rules.TypeKeywords {
		for _, kw := range tk.Keywords {
			if kw != "" && strings.Contains(target, strings.ToLower(kw)) {
				return tk.Type
			}
		}
	}

	switch {
	case position < e.rules.MainPositions:
		return entity.ImageTypeMain
	case position < e.rules.MainPositions+e.rules.DetailPositions:
		return entity.ImageTypeDetail
	default:
		return entity.ImageTypeOther
	}
}
