package pipeline

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/offer-image-service/internal/entity"
	"github.com/user/offer-image-service/pkg/utils"
)

// Extractor discovers raw image candidates and the page title.
type Extractor struct {
	rules *compiledRules
}

func newExtractor(rules *compiledRules) *Extractor {
	return &Extractor{rules: rules}
}

// Extract runs the attribute, script and style strategies over the page and
// returns the title plus the union of their candidates in first-seen order.
func (e *Extractor) Extract(page *entity.ProductPage) (string, []entity.ImageCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.RawHTML))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	seen := make(map[string]bool)
	var candidates []entity.ImageCandidate
	add := func(raw string, source entity.CandidateSource) {
		raw = strings.TrimSpace(raw)
		if raw == "" || seen[raw] {
			return
		}
		seen[raw] = true
		candidates = append(candidates, entity.ImageCandidate{RawURL: raw, Source: source})
	}

	for _, raw := range e.scanAttributes(doc) {
		add(raw, entity.SourceAttribute)
	}
	for _, raw := range e.scanScripts(doc) {
		add(raw, entity.SourceScript)
	}
	for _, raw := range e.scanStyles(doc) {
		add(raw, entity.SourceStyle)
	}

	return e.title(doc), candidates, nil
}

// scanAttributes takes, for every matched tag, the first non-empty attribute in priority order.
func (e *Extractor) scanAttributes(doc *goquery.Document) []string {
	var out []string
	for _, rule := range e.rules.AttributeRules {
		doc.Find(rule.Selector).Each(func(i int, s *goquery.Selection) {
			for _, attr := range rule.Attributes {
				val, ok := s.Attr(attr)
				if !ok {
					continue
				}
				if strings.HasSuffix(attr, "srcset") {
					val = firstSrcsetURL(val)
				}
				val = strings.TrimSpace(val)
				// Inline data URIs are lazy-load placeholders, not references.
				if val == "" || strings.HasPrefix(strings.ToLower(val), "data:") {
					continue
				}
				out = append(out, val)
				return
			}
		})
	}
	return out
}

func (e *Extractor) scanScripts(doc *goquery.Document) []string {
	var out []string
	doc.Find("script").Each(func(i int, s *goquery.Selection) {
		text := s.Text()
		if text == "" {
			return
		}
		for _, sp := range e.rules.scripts {
			for _, m := range sp.re.FindAllStringSubmatch(text, -1) {
				out = append(out, unescapeJS(m[1]))
			}
		}
	})
	return out
}

func (e *Extractor) scanStyles(doc *goquery.Document) []string {
	if e.rules.style == nil {
		return nil
	}
	var out []string
	doc.Find(`[style*="background-image"]`).Each(func(i int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		for _, m := range e.rules.style.FindAllStringSubmatch(style, -1) {
			if e.onAssetHost(m[1]) {
				out = append(out, m[1])
			}
		}
	})
	return out
}

func (e *Extractor) onAssetHost(raw string) bool {
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return utils.HostMatches(u.Hostname(), e.rules.AssetHosts)
}

func (e *Extractor) title(doc *goquery.Document) string {
	for _, rule := range e.rules.TitleRules {
		sel := doc.Find(rule.Selector).First()
		if sel.Length() == 0 {
			continue
		}
		var text string
		if rule.Attribute != "" {
			text, _ = sel.Attr(rule.Attribute)
		} else {
			text = sel.Text()
		}
		if text = strings.Join(strings.Fields(text), " "); text != "" {
			return text
		}
	}
	return e.rules.TitlePlaceholder
}

func firstSrcsetURL(srcset string) string {
	first, _, _ := strings.Cut(srcset, ",")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

var jsEscapes = strings.NewReplacer(`\/`, "/", `\u002F`, "/", `\u002f`, "/", `\x2F`, "/", `\x2f`, "/")

func unescapeJS(s string) string {
	return jsEscapes.Replace(s)
}
