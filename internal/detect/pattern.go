package detect

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/franz/media-janitor/internal/asset"
)

// thumbnailPattern matches generated size variants such as photo-150x150.jpg
var thumbnailPattern = regexp.MustCompile(`^(.+)-(\d+)x(\d+)(\.[^.]+)$`)

// derivativeRule strips one known derivative suffix from a filename
type derivativeRule struct {
	name string
	re   *regexp.Regexp
}

// Applied in order; the first match wins.
var derivativeRules = []derivativeRule{
	{name: "copy", re: regexp.MustCompile(`^(.+)-\d+(\.[^.]+)$`)},
	{name: "editor", re: regexp.MustCompile(`^(.+)-e\d+(\.[^.]+)$`)},
	{name: "scaled", re: regexp.MustCompile(`^(.+)-scaled(\.[^.]+)$`)},
	{name: "rotated", re: regexp.MustCompile(`^(.+)-rotated(\.[^.]+)$`)},
}

// normalizeFilename applies NFC and lowercases the extension
func normalizeFilename(filename string) string {
	filename = norm.NFC.String(filepath.Base(filename))
	ext := filepath.Ext(filename)
	return strings.TrimSuffix(filename, ext) + strings.ToLower(ext)
}

// IsThumbnailName reports whether filename carries a -WxH size suffix
func IsThumbnailName(filename string) bool {
	return thumbnailPattern.MatchString(normalizeFilename(filename))
}

// ThumbnailSource returns the filename a -WxH thumbnail was generated from
func ThumbnailSource(filename string) (string, bool) {
	m := thumbnailPattern.FindStringSubmatch(normalizeFilename(filename))
	if m == nil {
		return "", false
	}
	return m[1] + m[4], true
}

// Canonicalize derives the base name a derivative filename was made from.
// Thumbnail size variants and names without a known suffix return ok=false.
func Canonicalize(filename string) (base string, ok bool) {
	name := normalizeFilename(filename)
	if thumbnailPattern.MatchString(name) {
		return "", false
	}

	for _, rule := range derivativeRules {
		if m := rule.re.FindStringSubmatch(name); m != nil {
			return m[1] + m[2], true
		}
	}
	return "", false
}

// PatternStrategy groups assets whose filenames canonicalize to the same base
type PatternStrategy struct {
	ix index
}

// NewPatternStrategy creates an empty pattern strategy
func NewPatternStrategy() *PatternStrategy {
	return &PatternStrategy{ix: make(index)}
}

// Observe records one filename
func (p *PatternStrategy) Observe(id asset.ID, filename string) {
	if base, ok := Canonicalize(filename); ok {
		p.ix.add(base, id)
	}
}

// Groups returns base names shared by at least two assets
func (p *PatternStrategy) Groups() Groups {
	return p.ix.groups()
}

// GroupByFilenamePattern groups a complete id -> filename mapping
func GroupByFilenamePattern(filenamesByID map[asset.ID]string) Groups {
	p := NewPatternStrategy()
	for id, name := range filenamesByID {
		p.Observe(id, name)
	}
	return p.Groups()
}
