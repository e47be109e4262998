package detect

import (
	"github.com/franz/media-janitor/internal/asset"
)

// DimensionStrategy groups images sharing an exact width x height. It is the
// weakest signal and only runs when enabled.
type DimensionStrategy struct {
	ix index
}

// NewDimensionStrategy creates an empty dimension strategy
func NewDimensionStrategy() *DimensionStrategy {
	return &DimensionStrategy{ix: make(index)}
}

// Observe records an asset; non-images and unknown sizes are ignored
func (d *DimensionStrategy) Observe(a *asset.Asset) {
	if a.Dimensions == nil || !a.Dimensions.Valid() || !a.IsImage() {
		return
	}
	d.ix.add(a.Dimensions.Key(), a.ID)
}

// Groups returns "WxH" keys shared by at least two images
func (d *DimensionStrategy) Groups() Groups {
	return d.ix.groups()
}

// GroupByDimensions groups ids by dimensions, keeping image MIME types only
func GroupByDimensions(dimensionsByID map[asset.ID]asset.Dimensions, mimeByID map[asset.ID]string) Groups {
	d := NewDimensionStrategy()
	for id, dims := range dimensionsByID {
		d.Observe(&asset.Asset{ID: id, MimeType: mimeByID[id], Dimensions: &dims})
	}
	return d.Groups()
}
