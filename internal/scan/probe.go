package scan

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/franz/media-janitor/internal/asset"
	"github.com/franz/media-janitor/internal/detect"
	"github.com/franz/media-janitor/internal/store"
	"github.com/franz/media-janitor/internal/util"
)

// genericMimes are what content sniffing reports when it recognizes nothing
var genericMimes = map[string]bool{
	"application/octet-stream": true,
	"text/plain":               true,
}

// Probe builds the catalog record for one file. The file's modification time
// stands in for its creation time.
func Probe(path string) (*store.AssetRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", util.ErrUnreadableAsset, path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", util.ErrUnreadableAsset, path)
	}

	rec := &store.AssetRecord{Asset: asset.Asset{
		Path:      path,
		SizeBytes: info.Size(),
		CreatedAt: info.ModTime().UTC(),
	}}

	rec.MimeType, err = detectMime(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", util.ErrUnreadableAsset, path, err)
	}

	switch {
	case asset.IsImageMime(rec.MimeType):
		if d, err := imageDimensions(path); err == nil {
			rec.Dimensions = d
		} else {
			util.DebugLog("No dimensions for %s: %v", path, err)
		}
	case strings.HasPrefix(rec.MimeType, "audio/"):
		rec.Title = audioTitle(path)
	}

	name := filepath.Base(path)
	if rec.Title == "" {
		rec.Title = strings.TrimSuffix(name, filepath.Ext(name))
	}
	if src, ok := detect.ThumbnailSource(name); ok {
		rec.DerivedFrom = filepath.Join(filepath.Dir(path), src)
	}

	return rec, nil
}

// detectMime sniffs the content and falls back to the extension
func detectMime(path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	sniffed, _, _ := strings.Cut(mt.String(), ";")
	if !genericMimes[sniffed] {
		return sniffed, nil
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
		base, _, _ := strings.Cut(byExt, ";")
		return base, nil
	}
	return sniffed, nil
}

func imageDimensions(path string) (*asset.Dimensions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, err
	}
	d := &asset.Dimensions{Width: cfg.Width, Height: cfg.Height}
	if !d.Valid() {
		return nil, fmt.Errorf("invalid dimensions %s", d.Key())
	}
	return d, nil
}

// audioTitle reads the title tag, or "" if the file has none
func audioTitle(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		util.DebugLog("No tags in %s: %v", path, err)
		return ""
	}
	return strings.TrimSpace(m.Title())
}
