package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reelshare/internal/filestore"
	"reelshare/internal/ingest"
	"reelshare/internal/logging"
	"reelshare/internal/models"
	"reelshare/internal/source"
	"reelshare/internal/storage"
	"reelshare/internal/worker"
)

// defaultMaxUploadBytes is the Gemini Files API size limit.
const defaultMaxUploadBytes = 2 << 30

// Ingester turns a source into a usable remote file reference.
type Ingester interface {
	Ingest(ctx context.Context, src ingest.Source) (*models.FileData, error)
}

// CacheCreator creates cached content on the model backend.
type CacheCreator interface {
	CreateCache(ctx context.Context, req *filestore.CacheRequest) (string, error)
}

// CacheFunc resolves the CacheCreator for a request.
type CacheFunc func(ctx context.Context) (CacheCreator, error)

// Submitter bounds how many ingestions run at once.
type Submitter interface {
	Submit(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// IngestionLister lists recorded ingestions.
type IngestionLister interface {
	Recent(ctx context.Context, limit int) ([]*models.Ingestion, error)
}

type Options struct {
	Pipeline       Ingester
	Caches         CacheFunc
	Dispatcher     Submitter
	Ledger         IngestionLister
	URLs           *source.URLDownloader
	YouTube        *source.YouTube
	Metrics        http.Handler
	MaxUploadBytes int64
}

// Handler wires HTTP routes to the ingestion pipeline and the cache API.
type Handler struct {
	pipeline       Ingester
	caches         CacheFunc
	dispatcher     Submitter
	ledger         IngestionLister
	urls           *source.URLDownloader
	youtube        *source.YouTube
	metrics        http.Handler
	maxUploadBytes int64
}

// NewHandler constructs a Handler instance.
func NewHandler(opts Options) *Handler {
	h := &Handler{
		pipeline:       opts.Pipeline,
		caches:         opts.Caches,
		dispatcher:     opts.Dispatcher,
		ledger:         opts.Ledger,
		urls:           opts.URLs,
		youtube:        opts.YouTube,
		metrics:        opts.Metrics,
		maxUploadBytes: opts.MaxUploadBytes,
	}
	if h.urls == nil {
		h.urls = source.NewURLDownloader(nil)
	}
	if h.youtube == nil {
		h.youtube = source.NewYouTube(nil)
	}
	if h.metrics == nil {
		h.metrics = promhttp.Handler()
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = defaultMaxUploadBytes
	}
	return h
}

// NewRouter returns a gin engine with CORS and every route registered.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.Default()
	router.Use(cors.Default())
	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.sample)
	router.POST("/createCache", h.createCache)
	router.POST("/uploadLocalVideoToGemini", h.uploadLocal("video"))
	router.POST("/uploadLocalImageToGemini", h.uploadLocal("image"))
	router.POST("/uploadLocalFileToGemini", h.uploadLocal("file"))
	router.POST("/uploadWebURIFileToGemini", h.uploadWebURI)
	router.POST("/uploadYouTubeVideoToGemini", h.uploadYouTube)
	router.GET("/files", h.listFiles)
	router.GET("/metrics", gin.WrapH(h.metrics))
}

// inputError is a client mistake reported as 400.
type inputError struct {
	msg string
}

func (e *inputError) Error() string { return e.msg }

func missingInput(msg string) error { return &inputError{msg: msg} }

// fail writes the error envelope: 400 for bad input, 429 when saturated, 500 otherwise.
func fail(c *gin.Context, err error) {
	var inErr *inputError
	switch {
	case errors.As(err, &inErr), errors.Is(err, source.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, worker.ErrDispatcherBusy):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
	default:
		logging.Error("request failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) sample(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "This is dummy message",
		"data": []gin.H{
			{"id": 1, "name": "Item 1"},
			{"id": 2, "name": "Item 2"},
		},
	})
}

func (h *Handler) createCache(c *gin.Context) {
	var req filestore.CacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, missingInput("invalid request body"))
		return
	}
	if h.caches == nil {
		fail(c, errors.New("cache backend not configured"))
		return
	}
	creator, err := h.caches(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	name, err := creator.CreateCache(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	logging.Info("cache created", "name", name)
	c.JSON(http.StatusOK, gin.H{"cacheName": name})
}

func (h *Handler) uploadLocal(field string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
		header, err := c.FormFile(field)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
				return
			}
			fail(c, missingInput(fmt.Sprintf("No %s file provided", field)))
			return
		}
		src, err := source.NewLocal(header)
		if err != nil {
			fail(c, err)
			return
		}
		h.ingest(c, src)
	}
}

type webURIRequest struct {
	FileURL string `json:"fileUrl"`
}

func (h *Handler) uploadWebURI(c *gin.Context) {
	var req webURIRequest
	_ = c.ShouldBindJSON(&req)
	if strings.TrimSpace(req.FileURL) == "" {
		fail(c, missingInput("No file URL provided"))
		return
	}
	src, err := h.urls.Source(strings.TrimSpace(req.FileURL))
	if err != nil {
		fail(c, err)
		return
	}
	h.ingest(c, src)
}

type youtubeRequest struct {
	YouTubeURL string `json:"youtubeUrl"`
}

func (h *Handler) uploadYouTube(c *gin.Context) {
	var req youtubeRequest
	_ = c.ShouldBindJSON(&req)
	if strings.TrimSpace(req.YouTubeURL) == "" {
		fail(c, missingInput("No YouTube URL provided"))
		return
	}
	src, err := h.youtube.Source(req.YouTubeURL)
	if err != nil {
		fail(c, err)
		return
	}
	h.ingest(c, src)
}

// ingest runs the pipeline through the dispatcher, keyed by client address.
func (h *Handler) ingest(c *gin.Context, src ingest.Source) {
	logging.Info("ingestion started", "source", src.Kind(), "ref", src.Ref())
	var data *models.FileData
	run := func(ctx context.Context) error {
		var err error
		data, err = h.pipeline.Ingest(ctx, src)
		return err
	}

	var err error
	if h.dispatcher != nil {
		err = h.dispatcher.Submit(c.Request.Context(), c.ClientIP(), run)
	} else {
		err = run(c.Request.Context())
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fileData": data})
}

func (h *Handler) listFiles(c *gin.Context) {
	if h.ledger == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ingestion ledger disabled"})
		return
	}
	limit := storage.DefaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			fail(c, missingInput("invalid limit"))
			return
		}
		limit = n
	}
	files, err := h.ledger.Recent(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	if files == nil {
		files = []*models.Ingestion{}
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}
