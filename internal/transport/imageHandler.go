package transport

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scaleserve/scaleserve/internal/entity"
	"github.com/scaleserve/scaleserve/internal/pkg/geometry"
	"github.com/scaleserve/scaleserve/internal/service"
)

// ImageHandler serves the IIIF Image API 3.0 endpoints.
type ImageHandler struct {
	images       *service.ImageRequestService
	infos        *service.InformationRequestService
	auth         service.Authorizer
	minTileSize  int
	minDimension int
	maxPixels    int64
}

func NewImageHandler(images *service.ImageRequestService, infos *service.InformationRequestService, auth service.Authorizer, minTileSize, minDimension int, maxPixels int64) *ImageHandler {
	return &ImageHandler{
		images:       images,
		infos:        infos,
		auth:         auth,
		minTileSize:  minTileSize,
		minDimension: minDimension,
		maxPixels:    maxPixels,
	}
}

// GetImage handles
// GET /iiif/3/:identifier/:region/:size/:rotation/:quality.:format
func (h *ImageHandler) GetImage(c *gin.Context) {
	params, err := parseImageParams(
		c.Param("identifier"),
		c.Param("region"),
		c.Param("size"),
		c.Param("rotation"),
		c.Param("file"),
	)
	if err != nil {
		writeError(c, err)
		return
	}

	ops := entity.NewOperationList(params.meta)
	cb := &iiifImageCallback{c: c, params: params, ops: ops, maxPixels: h.maxPixels}
	if err := h.images.Handle(c.Request.Context(), ops, h.auth, cb, c.Writer); err != nil {
		if !cb.streaming {
			writeError(c, err)
		}
		return
	}
}

// iiifImageCallback finishes building the operation list once real image
// dimensions are known, and sets response headers as the handler progresses.
type iiifImageCallback struct {
	c         *gin.Context
	params    *imageParams
	ops       *entity.OperationList
	maxPixels int64
	streaming bool
}

func (cb *iiifImageCallback) SourceAccessed(stat *entity.StatResult) {
	if stat != nil && stat.LastModified != nil {
		cb.c.Header("Last-Modified", stat.LastModified.UTC().Format(http.TimeFormat))
	}
}

func (cb *iiifImageCallback) InfoAvailable(info *entity.Info) error {
	meta := cb.params.meta
	full := info.Size(meta.EffectivePage())
	if meta.Scale != nil {
		// Constrained requests run against a virtual down-scaled source;
		// the leading scale puts all later coordinates in that space.
		cb.ops.Add(entity.Scale{Percent: meta.Scale.Fraction()})
		full = scaledSize(full, meta.Scale.Fraction())
	}
	return cb.params.buildOperations(cb.ops, full, cb.maxPixels)
}

func (cb *iiifImageCallback) WillStreamImageFromVariantCache(stat *entity.StatResult) {
	cb.beginStream()
	if stat != nil && stat.Size != nil {
		cb.c.Header("Content-Length", fmt.Sprintf("%d", *stat.Size))
	}
}

func (cb *iiifImageCallback) WillProcessImage(info *entity.Info) {
	cb.beginStream()
}

func (cb *iiifImageCallback) beginStream() {
	cb.streaming = true
	cb.c.Header("Content-Type", formatMediaType(cb.params.format))
	cb.c.Status(http.StatusOK)
}

// iiifInfoResponse is the IIIF Image API 3.0 information document.
type iiifInfoResponse struct {
	Context  string         `json:"@context"`
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Protocol string         `json:"protocol"`
	Profile  string         `json:"profile"`
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	Sizes    []iiifSizeDesc `json:"sizes,omitempty"`
	Tiles    []iiifTileDesc `json:"tiles,omitempty"`
}

type iiifSizeDesc struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type iiifTileDesc struct {
	Width        int   `json:"width"`
	Height       int   `json:"height"`
	ScaleFactors []int `json:"scaleFactors"`
}

// GetInformation handles GET /iiif/3/:identifier/info.json
func (h *ImageHandler) GetInformation(c *gin.Context) {
	meta, err := entity.ParseMetaIdentifier(c.Param("identifier"))
	if err != nil {
		writeError(c, err)
		return
	}

	cb := &iiifInfoCallback{c: c}
	info, err := h.infos.Handle(c.Request.Context(), meta, h.auth, cb)
	if err != nil {
		// A denial that arrives after the description was resolved still
		// gets a well-formed description body, just with the denied status.
		var denied *entity.AccessDeniedError
		if info != nil && errors.As(err, &denied) && denied.Location == "" {
			if denied.Challenge != "" {
				c.Header("WWW-Authenticate", denied.Challenge)
			}
			h.writeInformation(c, denied.Status, meta, info)
			return
		}
		writeError(c, err)
		return
	}
	h.writeInformation(c, http.StatusOK, meta, info)
}

func (h *ImageHandler) writeInformation(c *gin.Context, status int, meta entity.MetaIdentifier, info *entity.Info) {
	image, _ := info.Image(meta.EffectivePage())
	full := image.Size()
	if meta.Scale != nil {
		full = scaledSize(full, meta.Scale.Fraction())
	}

	tile := geometry.EffectiveTileSize(image, h.minTileSize)
	factors := make([]int, 0, 8)
	for k := 0; k <= geometry.MaxReductionFactor(full, h.minDimension); k++ {
		factors = append(factors, 1<<k)
	}
	sizes := make([]iiifSizeDesc, 0, 8)
	for _, s := range geometry.Pyramid(full) {
		sizes = append(sizes, iiifSizeDesc{Width: s.Width, Height: s.Height})
	}

	c.Header("Content-Type", "application/ld+json")
	c.JSON(status, iiifInfoResponse{
		Context:  "http://iiif.io/api/image/3/context.json",
		ID:       requestImageID(c, meta),
		Type:     "ImageService3",
		Protocol: "http://iiif.io/api/image",
		Profile:  "level2",
		Width:    full.Width,
		Height:   full.Height,
		Sizes:    sizes,
		Tiles:    []iiifTileDesc{{Width: tile.Width, Height: tile.Height, ScaleFactors: factors}},
	})
}

type iiifInfoCallback struct {
	c *gin.Context
}

func (cb *iiifInfoCallback) SourceAccessed(stat *entity.StatResult) {
	if stat != nil && stat.LastModified != nil {
		cb.c.Header("Last-Modified", stat.LastModified.UTC().Format(http.TimeFormat))
	}
}

func (cb *iiifInfoCallback) CacheAccessed(stat *entity.StatResult) {
	cb.c.Header("X-Cache", "HIT")
	if stat != nil && stat.LastModified != nil {
		cb.c.Header("X-Cache-Date", stat.LastModified.UTC().Format(http.TimeFormat))
	}
}

func requestImageID(c *gin.Context, meta entity.MetaIdentifier) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/iiif/3/%s", scheme, c.Request.Host, meta.PathComponent())
}

func scaledSize(full entity.Size, fraction float64) entity.Size {
	w := int(float64(full.Width)*fraction + 0.5)
	h := int(float64(full.Height)*fraction + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return entity.Size{Width: w, Height: h}
}

func formatMediaType(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
