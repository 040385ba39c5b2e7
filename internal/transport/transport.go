package transport

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/scaleserve/scaleserve/internal/transport/middleware"
)

func InitRoutes(imageHandler *ImageHandler, dziHandler *DZIHandler, adminHandler *AdminHandler) *gin.Engine {

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())

	// IIIF Image API 3.0. The info.json and image routes share a prefix, so
	// one wildcard route dispatches on the remainder of the path.
	iiif := router.Group("/iiif/3")
	{
		iiif.GET("/:identifier", func(c *gin.Context) {
			c.Redirect(http.StatusSeeOther, c.Request.URL.Path+"/info.json")
		})
		iiif.GET("/:identifier/*rest", dispatchIIIF(imageHandler))
	}

	// Deep Zoom
	dzi := router.Group("/dzi")
	{
		dzi.GET("/:name", dziHandler.GetDescriptor)
		dzi.GET("/:name/:level/:tile", dziHandler.GetTile)
	}

	// Admin API
	admin := router.Group("/admin")
	{
		admin.DELETE("/cache/:identifier", adminHandler.EvictIdentifier)
		admin.POST("/tasks", adminHandler.SubmitTask)
		admin.GET("/tasks", adminHandler.GetTasks)
		admin.GET("/tasks/:id", adminHandler.GetTask)
		admin.GET("/health", adminHandler.GetHealth)
	}

	// Liveness probe, no dependency checks
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return router
}

// dispatchIIIF splits the path remainder after the identifier into either
// "info.json" or "{region}/{size}/{rotation}/{quality}.{format}".
func dispatchIIIF(h *ImageHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		rest := strings.TrimPrefix(c.Param("rest"), "/")
		if rest == "info.json" {
			h.GetInformation(c)
			return
		}
		parts := strings.Split(rest, "/")
		if len(parts) != 4 {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown IIIF path"})
			return
		}
		c.Params = append(c.Params,
			gin.Param{Key: "region", Value: parts[0]},
			gin.Param{Key: "size", Value: parts[1]},
			gin.Param{Key: "rotation", Value: parts[2]},
			gin.Param{Key: "file", Value: parts[3]},
		)
		h.GetImage(c)
	}
}
