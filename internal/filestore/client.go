package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"reelshare/internal/models"
)

// UploadOptions describes the bytes handed to Upload.
type UploadOptions struct {
	MIMEType    string
	DisplayName string
}

// CacheRequest is the body accepted by POST /createCache.
type CacheRequest struct {
	Model             string           `json:"model,omitempty"`
	DisplayName       string           `json:"displayName,omitempty"`
	SystemInstruction *genai.Content   `json:"systemInstruction,omitempty"`
	Contents          []*genai.Content `json:"contents"`
	TTL               string           `json:"ttl,omitempty"`
	TTLSeconds        int64            `json:"ttlSeconds,omitempty"`
}

// ClientOptions tunes how the genai client reaches the API.
type ClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Client talks to the Gemini Files and Caches APIs. It does not retry.
type Client struct {
	genai *genai.Client
	model string
}

func NewClient(ctx context.Context, bundle *models.ConfigBundle, opts ClientOptions) (*Client, error) {
	if bundle == nil || strings.TrimSpace(bundle.APIKey) == "" {
		return nil, errors.New("gemini api key missing")
	}
	cfg := &genai.ClientConfig{
		APIKey:     bundle.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{genai: client, model: bundle.ModelName}, nil
}

// Upload sends r to the Files API and returns the initial handle.
func (c *Client) Upload(ctx context.Context, r io.Reader, opts UploadOptions) (*models.RemoteFile, error) {
	file, err := c.genai.Files.Upload(ctx, r, &genai.UploadFileConfig{
		MIMEType:    opts.MIMEType,
		DisplayName: opts.DisplayName,
	})
	if err != nil {
		return nil, err
	}
	return toRemoteFile(file), nil
}

// Status reads the current state of a previously uploaded file.
func (c *Client) Status(ctx context.Context, name string) (*models.RemoteFile, error) {
	file, err := c.genai.Files.Get(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	return toRemoteFile(file), nil
}

// CreateCache creates cached content and returns its resource name.
func (c *Client) CreateCache(ctx context.Context, req *CacheRequest) (string, error) {
	model, cfg, err := c.cacheConfig(req)
	if err != nil {
		return "", err
	}
	cached, err := c.genai.Caches.Create(ctx, model, cfg)
	if err != nil {
		return "", err
	}
	return cached.Name, nil
}

func (c *Client) cacheConfig(req *CacheRequest) (string, *genai.CreateCachedContentConfig, error) {
	if req == nil {
		return "", nil, errors.New("cache request required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	if model == "" {
		return "", nil, errors.New("no model for cache")
	}
	cfg := &genai.CreateCachedContentConfig{
		DisplayName:       req.DisplayName,
		SystemInstruction: req.SystemInstruction,
		Contents:          req.Contents,
	}
	switch {
	case req.TTL != "":
		ttl, err := time.ParseDuration(req.TTL)
		if err != nil {
			return "", nil, fmt.Errorf("invalid ttl %q: %w", req.TTL, err)
		}
		cfg.TTL = ttl
	case req.TTLSeconds > 0:
		cfg.TTL = time.Duration(req.TTLSeconds) * time.Second
	}
	return model, cfg, nil
}

func toRemoteFile(file *genai.File) *models.RemoteFile {
	if file == nil {
		return nil
	}
	rf := &models.RemoteFile{
		Name:     file.Name,
		URI:      file.URI,
		MimeType: file.MIMEType,
		State:    models.FileState(file.State),
	}
	if file.SizeBytes != nil {
		rf.SizeBytes = *file.SizeBytes
	}
	if rf.State == "" {
		rf.State = models.FileStateUnspecified
	}
	return rf
}
