package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleserve/scaleserve/internal/cache"
	"github.com/scaleserve/scaleserve/internal/entity"
	"github.com/scaleserve/scaleserve/internal/service"
	"github.com/scaleserve/scaleserve/internal/source"
)

type fixedSource struct {
	data string
}

func (s *fixedSource) Name() string { return "FixedSource" }

func (s *fixedSource) Stat(ctx context.Context) (*entity.StatResult, error) {
	return entity.NewStatResult(time.Unix(1700000000, 0), int64(len(s.data))), nil
}

func (s *fixedSource) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.data)), nil
}

type fixedResolver struct {
	src source.Source
}

func (r *fixedResolver) Resolve(ctx context.Context, id entity.Identifier) (source.Source, error) {
	return r.src, nil
}

// denyAfterAuthorizer allows access to the source but denies the request
// once the description is resolved.
type denyAfterAuthorizer struct{}

func (denyAfterAuthorizer) AuthorizeBeforeAccess(ctx context.Context, meta entity.MetaIdentifier) (*service.AuthResult, error) {
	return nil, nil
}

func (denyAfterAuthorizer) Authorize(ctx context.Context, meta entity.MetaIdentifier, info *entity.Info) (*service.AuthResult, error) {
	return &service.AuthResult{Status: http.StatusForbidden, Challenge: `Bearer realm="images"`}, nil
}

func newInformationRouter(t *testing.T, auth service.Authorizer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	facade := cache.NewFacade(nil, cache.NewMemoryInfoCache())
	require.NoError(t, facade.InfoTier().Put(context.Background(), "doc.tif", entity.NewInfo(800, 600)))

	infos := service.NewInformationRequestService(
		&fixedResolver{src: &fixedSource{data: "raw"}},
		source.NewUsage(), facade,
	)
	h := NewImageHandler(nil, infos, auth, 512, 64, 0)

	r := gin.New()
	r.GET("/iiif/3/:identifier/info.json", h.GetInformation)
	return r
}

func getInformation(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestGetInformationOK(t *testing.T) {
	r := newInformationRouter(t, service.AllowAllAuthorizer{})
	w := getInformation(r, "/iiif/3/doc.tif/info.json")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.NotEmpty(t, w.Header().Get("X-Cache-Date"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "http://iiif.io/api/image/3/context.json", doc["@context"])
	assert.Equal(t, "ImageService3", doc["type"])
	assert.Equal(t, float64(800), doc["width"])
	assert.Equal(t, float64(600), doc["height"])
}

func TestGetInformationDeniedStillReturnsDescription(t *testing.T) {
	r := newInformationRouter(t, denyAfterAuthorizer{})
	w := getInformation(r, "/iiif/3/doc.tif/info.json")

	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, `Bearer realm="images"`, w.Header().Get("WWW-Authenticate"))

	// The denial still carries a well-formed description document.
	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "http://iiif.io/api/image/3/context.json", doc["@context"])
	assert.Equal(t, float64(800), doc["width"])
	assert.Equal(t, float64(600), doc["height"])
	assert.NotContains(t, doc, "error")
}
