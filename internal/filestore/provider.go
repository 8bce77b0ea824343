package filestore

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"reelshare/internal/credentials"
	"reelshare/internal/logging"
	"reelshare/internal/models"
)

// BundleSource yields the ConfigBundle holding the api key.
type BundleSource interface {
	Obtain(ctx context.Context) (*models.ConfigBundle, error)
}

// Provider builds the Client on first use and keeps it.
type Provider struct {
	bundles BundleSource
	opts    ClientOptions

	mu     sync.Mutex
	client *Client
}

func NewProvider(bundles BundleSource, baseURL string, httpClient *http.Client) *Provider {
	return &Provider{
		bundles: bundles,
		opts:    ClientOptions{BaseURL: baseURL, HTTPClient: httpClient},
	}
}

// Client returns the memoized client. A failed build is retried on the next call.
func (p *Provider) Client(ctx context.Context) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	bundle, err := p.bundles.Obtain(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(bundle.APIKey) == "" {
		return nil, fmt.Errorf("%w: gemini api key is empty", credentials.ErrConfig)
	}
	client, err := NewClient(ctx, bundle, p.opts)
	if err != nil {
		return nil, err
	}
	logging.Info("gemini client ready", "model", bundle.ModelName)
	p.client = client
	return client, nil
}
