package pipeline

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/user/offer-image-service/internal/entity"
)

// AttributeRule lists, in priority order, the attributes read from every tag matched by Selector.
type AttributeRule struct {
	Selector   string   `yaml:"selector"`
	Attributes []string `yaml:"attributes"`
}

// ScriptPattern is a regular expression applied to inline script text.
// Group 1 holds the candidate URL. {{hosts}} and {{exts}} expand to the
// asset-host and extension alternations.
type ScriptPattern struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

// TitleRule reads the title from Selector, using Attribute when set and the element text otherwise.
type TitleRule struct {
	Selector  string `yaml:"selector"`
	Attribute string `yaml:"attribute"`
}

// EnhanceRule rewrites a low-resolution URL path into a high-resolution one.
// Within a Family only the first matching rule is applied per pass.
type EnhanceRule struct {
	Name        string `yaml:"name"`
	Family      string `yaml:"family"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	// BelowThreshold restricts the rule to matches whose named groups w and h
	// are both below Rules.UpgradeBelow.
	BelowThreshold bool `yaml:"below_threshold"`
}

// TypeKeywords maps URL keywords to an image type.
type TypeKeywords struct {
	Type     entity.ImageType `yaml:"type"`
	Keywords []string         `yaml:"keywords"`
}

// Rules is the data that drives every pipeline stage.
type Rules struct {
	AssetHosts        []string `yaml:"asset_hosts"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	ExcludeKeywords   []string `yaml:"exclude_keywords"`
	KeepQueryParams   []string `yaml:"keep_query_params"`
	MinDimension      int      `yaml:"min_dimension"`

	AttributeRules   []AttributeRule `yaml:"attribute_rules"`
	ScriptPatterns   []ScriptPattern `yaml:"script_patterns"`
	StylePattern     string          `yaml:"style_pattern"`
	TitleRules       []TitleRule     `yaml:"title_rules"`
	TitlePlaceholder string          `yaml:"title_placeholder"`

	HighResSize  string        `yaml:"high_res_size"`
	UpgradeBelow int           `yaml:"upgrade_below"`
	EnhanceRules []EnhanceRule `yaml:"enhance_rules"`

	TypeKeywords    []TypeKeywords `yaml:"type_keywords"`
	MainPositions   int            `yaml:"main_positions"`
	DetailPositions int            `yaml:"detail_positions"`
}

// DefaultRules returns the rule table for 1688.com offer pages served from alicdn.
func DefaultRules() *Rules {
	return &Rules{
		AssetHosts:        []string{"alicdn.com", "1688.com"},
		AllowedExtensions: []string{"jpg", "jpeg", "png", "webp", "gif"},
		ExcludeKeywords: []string{
			"favicon", "logo", "sprite", "avatar", "watermark",
			"tracking", "pixel", "spacer", "placeholder", "loading",
		},
		KeepQueryParams: []string{"w", "h", "width", "height", "q", "quality", "format", "fmt"},
		MinDimension:    50,

		AttributeRules: []AttributeRule{
			{Selector: "img", Attributes: []string{"src", "data-src", "data-lazy-src", "data-original", "data-ks-lazyload", "data-lazyload-src"}},
			{Selector: "source", Attributes: []string{"srcset", "data-srcset"}},
		},
		ScriptPatterns: []ScriptPattern{
			{
				Name:    "asset-literal",
				Pattern: `(?i)["']((?:https?:)?(?:\\?/){2}[a-z0-9.\-]*(?:{{hosts}})(?:\\?/[^"'\s<>]*?)?\.(?:{{exts}})(?:[?_][^"'\s<>]*)?)["']`,
			},
			{
				Name:    "image-key",
				Pattern: `(?i)["']?\b(?:imgUrl|imageUrl|imageURI|originalImageURI|fullPathImageURI|src)["']?\s*[:=]\s*["']([^"'\s]+)["']`,
			},
			{
				Name:    "asset-url-key",
				Pattern: `(?i)["']?\burl["']?\s*[:=]\s*["']([^"'\s]*(?:{{hosts}})[^"'\s]*)["']`,
			},
		},
		StylePattern: `(?i)background-image\s*:\s*url\(\s*['"]?([^'")\s]+)['"]?\s*\)`,
		TitleRules: []TitleRule{
			{Selector: "h1.d-title"},
			{Selector: ".title-text"},
			{Selector: ".offer-title"},
			{Selector: `meta[property="og:title"]`, Attribute: "content"},
			{Selector: "h1"},
			{Selector: "title"},
		},
		TitlePlaceholder: "Untitled product",

		HighResSize:  "400x400",
		UpgradeBelow: 400,
		EnhanceRules: []EnhanceRule{
			{
				Name:        "thumbnail-token",
				Family:      "resize",
				Pattern:     `\.(?:summ|search)\.(?P<ext>jpe?g|png|webp)`,
				Replacement: ".{{size}}.${ext}",
			},
			{
				Name:           "dotted-size",
				Family:         "resize",
				Pattern:        `\.(?P<w>\d{2,4})x(?P<h>\d{2,4})\.(?P<ext>jpe?g|png|webp)`,
				Replacement:    ".{{size}}.${ext}",
				BelowThreshold: true,
			},
			{
				Name:           "underscore-size",
				Family:         "resize",
				Pattern:        `_(?P<w>\d{2,4})x(?P<h>\d{2,4})(?:q\d{1,3})?\.(?P<ext>jpe?g|png|webp)`,
				Replacement:    "_{{size}}.${ext}",
				BelowThreshold: true,
			},
			{
				Name:        "webp-suffix",
				Family:      "strip",
				Pattern:     `(?P<base>\.(?:jpe?g|png))_\.webp$`,
				Replacement: "${base}",
			},
		},

		TypeKeywords: []TypeKeywords{
			{Type: entity.ImageTypeMain, Keywords: []string{"main", "primary", "hero"}},
			{Type: entity.ImageTypeDetail, Keywords: []string{"detail", "zoom", "large"}},
			{Type: entity.ImageTypeThumbnail, Keywords: []string{"thumb", "small", "mini"}},
		},
		MainPositions:   3,
		DetailPositions: 5,
	}
}

// LoadRules reads a YAML rule file. Keys absent from the file keep their default value.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	rules := DefaultRules()
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	return rules, nil
}

type compiledScript struct {
	name string
	re   *regexp.Regexp
}

type compiledEnhance struct {
	EnhanceRule
	re          *regexp.Regexp
	replacement string
}

// compiledRules is the validated, ready-to-run form of Rules.
type compiledRules struct {
	*Rules
	scripts      []compiledScript
	style        *regexp.Regexp
	enhance      [][]compiledEnhance // grouped by family, in first-seen family order
	extensions   map[string]bool
	keepParams   map[string]bool
	excludeLower []string
}

var (
	// A size token sits between '.' or '_' separators, e.g. "_60x60q90." or ".220x220.".
	dimensionRe = regexp.MustCompile(`[._](\d{2,4})x(\d{2,4})(?:q\d{1,3})?(?:[._]|$)`)
	finalExtRe  = regexp.MustCompile(`(?i)\.(jpe?g|png|webp|gif)$`)
	sizeRe      = regexp.MustCompile(`^\d{2,4}x\d{2,4}$`)
)

// Compile validates the rule table and compiles every pattern.
func (r *Rules) Compile() (*compiledRules, error) {
	if len(r.AssetHosts) == 0 {
		return nil, fmt.Errorf("rules: asset_hosts must not be empty")
	}
	if len(r.AllowedExtensions) == 0 {
		return nil, fmt.Errorf("rules: allowed_extensions must not be empty")
	}
	if !sizeRe.MatchString(r.HighResSize) {
		return nil, fmt.Errorf("rules: high_res_size %q is not of the form WxH", r.HighResSize)
	}

	hostAlt := make([]string, 0, len(r.AssetHosts))
	for _, h := range r.AssetHosts {
		hostAlt = append(hostAlt, regexp.QuoteMeta(strings.ToLower(h)))
	}
	extAlt := make([]string, 0, len(r.AllowedExtensions))
	extensions := make(map[string]bool, len(r.AllowedExtensions))
	for _, e := range r.AllowedExtensions {
		e = strings.ToLower(strings.TrimPrefix(e, "."))
		extAlt = append(extAlt, regexp.QuoteMeta(e))
		extensions[e] = true
	}
	expand := strings.NewReplacer(
		"{{hosts}}", strings.Join(hostAlt, "|"),
		"{{exts}}", strings.Join(extAlt, "|"),
	)

	c := &compiledRules{
		Rules:      r,
		extensions: extensions,
		keepParams: make(map[string]bool, len(r.KeepQueryParams)),
	}
	for _, p := range r.KeepQueryParams {
		c.keepParams[strings.ToLower(p)] = true
	}
	for _, k := range r.ExcludeKeywords {
		c.excludeLower = append(c.excludeLower, strings.ToLower(k))
	}

	for _, sp := range r.ScriptPatterns {
		re, err := regexp.Compile(expand.Replace(sp.Pattern))
		if err != nil {
			return nil, fmt.Errorf("rules: script pattern %q: %w", sp.Name, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("rules: script pattern %q has no capture group", sp.Name)
		}
		c.scripts = append(c.scripts, compiledScript{name: sp.Name, re: re})
	}

	if r.StylePattern != "" {
		re, err := regexp.Compile(r.StylePattern)
		if err != nil {
			return nil, fmt.Errorf("rules: style pattern: %w", err)
		}
		c.style = re
	}

	familyIdx := map[string]int{}
	for _, er := range r.EnhanceRules {
		re, err := regexp.Compile(er.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rules: enhance rule %q: %w", er.Name, err)
		}
		if er.BelowThreshold && (re.SubexpIndex("w") < 0 || re.SubexpIndex("h") < 0) {
			return nil, fmt.Errorf("rules: enhance rule %q needs named groups w and h", er.Name)
		}
		ce := compiledEnhance{
			EnhanceRule: er,
			re:          re,
			replacement: strings.ReplaceAll(er.Replacement, "{{size}}", r.HighResSize),
		}
		i, ok := familyIdx[er.Family]
		if !ok {
			i = len(c.enhance)
			familyIdx[er.Family] = i
			c.enhance = append(c.enhance, nil)
		}
		c.enhance[i] = append(c.enhance[i], ce)
	}

	return c, nil
}
