package transport

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/scaleserve/scaleserve/internal/entity"
	"github.com/scaleserve/scaleserve/internal/pkg/geometry"
	"github.com/scaleserve/scaleserve/internal/service"
)

// DZIHandler serves Deep Zoom descriptors and tiles.
type DZIHandler struct {
	images      *service.ImageRequestService
	infos       *service.InformationRequestService
	auth        service.Authorizer
	minTileSize int
}

func NewDZIHandler(images *service.ImageRequestService, infos *service.InformationRequestService, auth service.Authorizer, minTileSize int) *DZIHandler {
	return &DZIHandler{images: images, infos: infos, auth: auth, minTileSize: minTileSize}
}

// dziDescriptor is the Deep Zoom XML descriptor.
type dziDescriptor struct {
	XMLName  xml.Name `xml:"Image"`
	Xmlns    string   `xml:"xmlns,attr"`
	TileSize int      `xml:"TileSize,attr"`
	Overlap  int      `xml:"Overlap,attr"`
	Format   string   `xml:"Format,attr"`
	Size     dziSize  `xml:"Size"`
}

type dziSize struct {
	Width  int `xml:"Width,attr"`
	Height int `xml:"Height,attr"`
}

// GetDescriptor handles GET /dzi/:name where name is "<identifier>.dzi".
func (h *DZIHandler) GetDescriptor(c *gin.Context) {
	name := c.Param("name")
	if !strings.HasSuffix(name, ".dzi") {
		writeError(c, fmt.Errorf("descriptor %q: %w", name, entity.ErrNotFound))
		return
	}
	meta, err := entity.ParseMetaIdentifier(strings.TrimSuffix(name, ".dzi"))
	if err != nil {
		writeError(c, err)
		return
	}

	cb := &iiifInfoCallback{c: c}
	info, err := h.infos.Handle(c.Request.Context(), meta, h.auth, cb)
	if err != nil {
		writeError(c, err)
		return
	}
	image, _ := info.Image(meta.EffectivePage())
	full := image.Size()
	tile := geometry.EffectiveTileSize(image, h.minTileSize)

	out, err := xml.MarshalIndent(dziDescriptor{
		Xmlns:    "http://schemas.microsoft.com/deepzoom/2008",
		TileSize: tile.Width,
		Overlap:  0,
		Format:   "jpg",
		Size:     dziSize{Width: full.Width, Height: full.Height},
	}, "", "  ")
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/xml", append([]byte(xml.Header), out...))
}

// GetTile handles GET /dzi/:name/:level/:tile where name is
// "<identifier>_files" and tile is "<col>_<row>.<format>".
func (h *DZIHandler) GetTile(c *gin.Context) {
	name := c.Param("name")
	if !strings.HasSuffix(name, "_files") {
		writeError(c, fmt.Errorf("tile path %q: %w", name, entity.ErrNotFound))
		return
	}
	meta, err := entity.ParseMetaIdentifier(strings.TrimSuffix(name, "_files"))
	if err != nil {
		writeError(c, err)
		return
	}
	level, err := strconv.Atoi(c.Param("level"))
	if err != nil || level < 0 {
		writeError(c, fmt.Errorf("level %q: %w", c.Param("level"), entity.ErrNotFound))
		return
	}
	col, row, format, err := parseTileName(c.Param("tile"))
	if err != nil {
		writeError(c, err)
		return
	}

	ops := entity.NewOperationList(meta)
	cb := &dziTileCallback{
		c:           c,
		ops:         ops,
		meta:        meta,
		level:       level,
		col:         col,
		row:         row,
		format:      format,
		minTileSize: h.minTileSize,
	}
	if err := h.images.Handle(c.Request.Context(), ops, h.auth, cb, c.Writer); err != nil {
		if !cb.streaming {
			writeError(c, err)
		}
		return
	}
}

func parseTileName(s string) (col, row int, format string, err error) {
	dot := strings.LastIndex(s, ".")
	if dot < 1 || dot == len(s)-1 {
		return 0, 0, "", fmt.Errorf("tile %q: %w", s, entity.ErrNotFound)
	}
	format = s[dot+1:]
	switch format {
	case "jpg", "png", "gif":
	default:
		return 0, 0, "", fmt.Errorf("tile format %q: %w", format, entity.ErrNotFound)
	}
	parts := strings.Split(s[:dot], "_")
	if len(parts) != 2 {
		return 0, 0, "", fmt.Errorf("tile %q: %w", s, entity.ErrNotFound)
	}
	if col, err = strconv.Atoi(parts[0]); err != nil || col < 0 {
		return 0, 0, "", fmt.Errorf("tile column %q: %w", parts[0], entity.ErrNotFound)
	}
	if row, err = strconv.Atoi(parts[1]); err != nil || row < 0 {
		return 0, 0, "", fmt.Errorf("tile row %q: %w", parts[1], entity.ErrNotFound)
	}
	return col, row, format, nil
}

// dziTileCallback maps tile coordinates onto source operations once the
// image dimensions are known.
type dziTileCallback struct {
	c           *gin.Context
	ops         *entity.OperationList
	meta        entity.MetaIdentifier
	level       int
	col, row    int
	format      string
	minTileSize int
	streaming   bool
}

func (cb *dziTileCallback) SourceAccessed(stat *entity.StatResult) {
	if stat != nil && stat.LastModified != nil {
		cb.c.Header("Last-Modified", stat.LastModified.UTC().Format(http.TimeFormat))
	}
}

func (cb *dziTileCallback) InfoAvailable(info *entity.Info) error {
	image, _ := info.Image(cb.meta.EffectivePage())
	full := image.Size()
	tile := geometry.EffectiveTileSize(image, cb.minTileSize)

	region, entire, err := geometry.TileRegion(full, cb.level, cb.col, cb.row, tile)
	if err != nil {
		return fmt.Errorf("tile (%d,%d) at level %d: %w", cb.col, cb.row, cb.level, entity.ErrNotFound)
	}

	// Region is in level coordinates; the crop runs against the full image.
	factor := 1 << (geometry.LevelCount(full) - 1 - cb.level)
	if !entire || factor > 1 {
		crop := entity.Region{
			X:      region.X * factor,
			Y:      region.Y * factor,
			Width:  region.Width * factor,
			Height: region.Height * factor,
		}
		if crop.X+crop.Width > full.Width {
			crop.Width = full.Width - crop.X
		}
		if crop.Y+crop.Height > full.Height {
			crop.Height = full.Height - crop.Y
		}
		if crop.X != 0 || crop.Y != 0 || crop.Width != full.Width || crop.Height != full.Height {
			cb.ops.Add(entity.Crop{Region: crop})
		}
		if factor > 1 {
			cb.ops.Add(entity.Scale{Width: region.Width, Height: region.Height})
		}
	}
	cb.ops.Add(entity.Encode{Format: cb.format})
	return nil
}

func (cb *dziTileCallback) WillStreamImageFromVariantCache(stat *entity.StatResult) {
	cb.beginStream()
	if stat != nil && stat.Size != nil {
		cb.c.Header("Content-Length", fmt.Sprintf("%d", *stat.Size))
	}
}

func (cb *dziTileCallback) WillProcessImage(info *entity.Info) {
	cb.beginStream()
}

func (cb *dziTileCallback) beginStream() {
	cb.streaming = true
	cb.c.Header("Content-Type", formatMediaType(cb.format))
	cb.c.Status(http.StatusOK)
}
