package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"reelshare/internal/logging"
	"reelshare/internal/models"
)

const fetchTimeout = time.Minute

var (
	// ErrAuth reports a failed assertion/token exchange.
	ErrAuth = errors.New("token exchange failed")
	// ErrConfig reports that the config sheet returned nothing usable.
	ErrConfig = errors.New("no configuration data found")
)

// BundleCache persists a fetched bundle outside the process.
type BundleCache interface {
	LoadBundle(ctx context.Context) (*models.ConfigBundle, error)
	StoreBundle(ctx context.Context, bundle *models.ConfigBundle) error
}

type tokenSource interface {
	Exchange(ctx context.Context) (*Token, error)
}

type valuesReader interface {
	Values(ctx context.Context, token *Token) ([][]interface{}, error)
}

// Bootstrap fetches the ConfigBundle once and serves it for the process
// lifetime. Concurrent first callers share a single fetch; a failed fetch is
// not remembered.
type Bootstrap struct {
	exchanger tokenSource
	reader    valuesReader
	cache     BundleCache
	now       func() time.Time

	group singleflight.Group

	mu     sync.RWMutex
	bundle *models.ConfigBundle
	token  *Token
}

// Options configures a Bootstrap. Cache is optional.
type Options struct {
	Exchanger *Exchanger
	Reader    *SheetReader
	Cache     BundleCache
}

func NewBootstrap(opts Options) (*Bootstrap, error) {
	if opts.Exchanger == nil {
		return nil, errors.New("exchanger required")
	}
	if opts.Reader == nil {
		return nil, errors.New("sheet reader required")
	}
	return newBootstrap(opts.Exchanger, opts.Reader, opts.Cache), nil
}

func newBootstrap(ex tokenSource, reader valuesReader, cache BundleCache) *Bootstrap {
	return &Bootstrap{
		exchanger: ex,
		reader:    reader,
		cache:     cache,
		now:       time.Now,
	}
}

// Obtain returns the ConfigBundle, fetching it on first use.
func (b *Bootstrap) Obtain(ctx context.Context) (*models.ConfigBundle, error) {
	if bundle := b.cached(); bundle != nil {
		return bundle, nil
	}
	ch := b.group.DoChan("bundle", func() (interface{}, error) {
		if bundle := b.cached(); bundle != nil {
			return bundle, nil
		}
		// the fetch is shared, so one caller going away must not cancel it
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		bundle, err := b.fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.bundle = bundle
		b.mu.Unlock()
		return bundle, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		logging.Debug("config bundle fetch shared with concurrent caller")
	}
	return res.Val.(*models.ConfigBundle), nil
}

// Ready reports whether the bundle has been populated.
func (b *Bootstrap) Ready() bool {
	return b.cached() != nil
}

func (b *Bootstrap) cached() *models.ConfigBundle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bundle
}

func (b *Bootstrap) fetch(ctx context.Context) (*models.ConfigBundle, error) {
	if b.cache != nil {
		bundle, err := b.cache.LoadBundle(ctx)
		if err == nil && bundle != nil {
			logging.Info("config bundle loaded from cache")
			return bundle, nil
		}
		if err != nil {
			logging.Debug("config bundle cache miss", "err", err)
		}
	}

	token, err := b.Token(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := b.reader.Values(ctx, token)
	if err != nil {
		return nil, err
	}
	bundle := bundleFromRows(rows)
	logging.Info("config bundle fetched", "model", bundle.ModelName, "server", bundle.ServerAddress)

	if b.cache != nil {
		if err := b.cache.StoreBundle(ctx, bundle); err != nil {
			logging.Warn("store config bundle in cache failed", "err", err)
		}
	}
	return bundle, nil
}

// Token returns a usable access token, exchanging a new assertion when the
// current one is missing or about to expire.
func (b *Bootstrap) Token(ctx context.Context) (*Token, error) {
	b.mu.RLock()
	tok := b.token
	b.mu.RUnlock()
	if tok.Valid(b.now()) {
		return tok, nil
	}

	v, err, _ := b.group.Do("token", func() (interface{}, error) {
		tok, err := b.exchanger.Exchange(ctx)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.token = tok
		b.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Token), nil
}

func bundleFromRows(rows [][]interface{}) *models.ConfigBundle {
	return &models.ConfigBundle{
		APIKey:        cell(rows, 0),
		ModelName:     cell(rows, 1),
		ServerAddress: cell(rows, 2),
	}
}

func cell(rows [][]interface{}, idx int) string {
	if idx >= len(rows) || len(rows[idx]) == 0 || rows[idx][0] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(rows[idx][0]))
}
