package entity

import "time"

// InfoImage describes one embedded sub-image (page or resolution variant).
type InfoImage struct {
	Width       int `json:"width"`
	Height      int `json:"height"`
	TileWidth   int `json:"tile_width,omitempty"`
	TileHeight  int `json:"tile_height,omitempty"`
	Orientation int `json:"orientation,omitempty"` // degrees: 0, 90, 180, 270
}

func (im InfoImage) Size() Size {
	return Size{Width: im.Width, Height: im.Height}
}

// TileSize returns the native tile size, or the full size when untiled.
func (im InfoImage) TileSize() Size {
	if im.TileWidth > 0 && im.TileHeight > 0 {
		return Size{Width: im.TileWidth, Height: im.TileHeight}
	}
	return im.Size()
}

// Tiled reports whether the sub-image carries a native tile grid.
func (im InfoImage) Tiled() bool {
	return im.TileWidth > 0 && im.TileHeight > 0 &&
		(im.TileWidth < im.Width || im.TileHeight < im.Height)
}

// Info is the structural description of a source image. Produced once per
// source image, cached, and reused across requests.
type Info struct {
	MediaType  string      `json:"media_type,omitempty"`
	Images     []InfoImage `json:"images"`
	EXIF       []byte      `json:"exif,omitempty"`
	XMP        string      `json:"xmp,omitempty"`
	Serialized time.Time   `json:"serialized"`
}

// NewInfo builds a single-image Info for the given pixel size.
func NewInfo(width, height int) *Info {
	return &Info{
		Images:     []InfoImage{{Width: width, Height: height}},
		Serialized: time.Now(),
	}
}

// Image returns the 1-based page, falling back to the first page when the
// requested one does not exist.
func (i *Info) Image(page int) (InfoImage, bool) {
	if len(i.Images) == 0 {
		return InfoImage{}, false
	}
	if page < 1 || page > len(i.Images) {
		return i.Images[0], page < 1
	}
	return i.Images[page-1], true
}

// Size returns the pixel size of the given 1-based page.
func (i *Info) Size(page int) Size {
	im, _ := i.Image(page)
	return im.Size()
}

// Valid performs the structural validation used by evict-invalid sweeps.
func (i *Info) Valid() bool {
	if len(i.Images) == 0 {
		return false
	}
	for _, im := range i.Images {
		if im.Width < 1 || im.Height < 1 {
			return false
		}
	}
	return true
}
