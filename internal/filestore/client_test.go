package filestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"reelshare/internal/credentials"
	"reelshare/internal/models"
)

type countingBundles struct {
	bundle *models.ConfigBundle
	err    error
	calls  int
}

func (c *countingBundles) Obtain(context.Context) (*models.ConfigBundle, error) {
	c.calls++
	return c.bundle, c.err
}

func TestProviderMemoizesClient(t *testing.T) {
	bundles := &countingBundles{bundle: &models.ConfigBundle{APIKey: "k", ModelName: "gemini-1.5-flash"}}
	p := NewProvider(bundles, "", nil)

	first, err := p.Client(context.Background())
	require.NoError(t, err)
	second, err := p.Client(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, bundles.calls)
}

func TestProviderEmptyKeyIsConfigError(t *testing.T) {
	bundles := &countingBundles{bundle: &models.ConfigBundle{ModelName: "m"}}
	p := NewProvider(bundles, "", nil)

	_, err := p.Client(context.Background())
	require.ErrorIs(t, err, credentials.ErrConfig)

	bundles.bundle = &models.ConfigBundle{APIKey: "k"}
	_, err = p.Client(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, bundles.calls)
}

func TestProviderPropagatesBootstrapError(t *testing.T) {
	boom := errors.New("sheet down")
	p := NewProvider(&countingBundles{err: boom}, "", nil)
	_, err := p.Client(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestToRemoteFile(t *testing.T) {
	size := int64(42)
	rf := toRemoteFile(&genai.File{
		Name:      "files/abc",
		URI:       "https://generativelanguage.googleapis.com/v1beta/files/abc",
		MIMEType:  "video/mp4",
		SizeBytes: &size,
		State:     genai.FileStateProcessing,
	})
	assert.Equal(t, &models.RemoteFile{
		Name:      "files/abc",
		URI:       "https://generativelanguage.googleapis.com/v1beta/files/abc",
		MimeType:  "video/mp4",
		SizeBytes: 42,
		State:     models.FileStateProcessing,
	}, rf)

	assert.Equal(t, models.FileStateUnspecified, toRemoteFile(&genai.File{Name: "files/x"}).State)
	assert.Nil(t, toRemoteFile(nil))
}

func TestCacheConfig(t *testing.T) {
	c := &Client{model: "gemini-1.5-flash-001"}

	model, cfg, err := c.cacheConfig(&CacheRequest{
		DisplayName: "transcript",
		Contents:    []*genai.Content{genai.NewContentFromText("hello", genai.RoleUser)},
		TTL:         "300s",
	})
	require.NoError(t, err)
	assert.Equal(t, "gemini-1.5-flash-001", model)
	assert.Equal(t, "transcript", cfg.DisplayName)
	assert.Equal(t, 5*time.Minute, cfg.TTL)
	assert.Len(t, cfg.Contents, 1)

	model, cfg, err = c.cacheConfig(&CacheRequest{Model: "other", TTLSeconds: 60})
	require.NoError(t, err)
	assert.Equal(t, "other", model)
	assert.Equal(t, time.Minute, cfg.TTL)

	_, _, err = c.cacheConfig(&CacheRequest{TTL: "soon"})
	assert.Error(t, err)

	_, _, err = (&Client{}).cacheConfig(&CacheRequest{})
	assert.Error(t, err)
}
