package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"reelshare/internal/filestore"
	"reelshare/internal/logging"
	"reelshare/internal/models"
)

const (
	defaultMimeType     = "application/octet-stream"
	defaultPollInterval = 2 * time.Second
	defaultPollTimeout  = 10 * time.Minute
	tempPrefix          = "reelshare-"
)

// Source produces the bytes of one ingestion.
type Source interface {
	Kind() models.SourceKind
	// Ref identifies the origin for logs and the ledger.
	Ref() string
	// FileName is the name the scratch copy is stored under.
	FileName() string
	// Fetch writes the content to w and returns its mime type when known.
	Fetch(ctx context.Context, w io.Writer) (string, error)
}

// Store is the remote file store.
type Store interface {
	Upload(ctx context.Context, r io.Reader, opts filestore.UploadOptions) (*models.RemoteFile, error)
	Status(ctx context.Context, name string) (*models.RemoteFile, error)
}

// StoreFunc resolves the Store for a request.
type StoreFunc func(ctx context.Context) (Store, error)

// Recorder keeps a record of finished ingestions.
type Recorder interface {
	Record(ctx context.Context, ing *models.Ingestion) error
}

type Options struct {
	Fs              afero.Fs
	TempRoot        string
	PollInterval    time.Duration
	PollTimeout     time.Duration
	MaxPolls        int
	DownloadTimeout time.Duration
	Recorder        Recorder
	Observer        Observer
}

// Pipeline moves a Source into the remote store and waits until the file is usable.
type Pipeline struct {
	stores          StoreFunc
	fs              afero.Fs
	tempRoot        string
	pollInterval    time.Duration
	pollTimeout     time.Duration
	maxPolls        int
	downloadTimeout time.Duration
	recorder        Recorder
	observer        Observer
}

func NewPipeline(stores StoreFunc, opts Options) *Pipeline {
	p := &Pipeline{
		stores:          stores,
		fs:              opts.Fs,
		tempRoot:        opts.TempRoot,
		pollInterval:    opts.PollInterval,
		pollTimeout:     opts.PollTimeout,
		maxPolls:        opts.MaxPolls,
		downloadTimeout: opts.DownloadTimeout,
		recorder:        opts.Recorder,
		observer:        opts.Observer,
	}
	if p.fs == nil {
		p.fs = afero.NewOsFs()
	}
	if p.tempRoot == "" {
		p.tempRoot = os.TempDir()
	}
	if p.pollInterval <= 0 {
		p.pollInterval = defaultPollInterval
	}
	if p.pollTimeout <= 0 {
		p.pollTimeout = defaultPollTimeout
	}
	if p.maxPolls <= 0 {
		p.maxPolls = int(p.pollTimeout / p.pollInterval)
		if p.maxPolls < 1 {
			p.maxPolls = 1
		}
	}
	if p.observer == nil {
		p.observer = nopObserver{}
	}
	return p
}

// Ingest stores src remotely and returns the reference once the remote copy
// has left PROCESSING. The scratch copy is removed on every path.
func (p *Pipeline) Ingest(ctx context.Context, src Source) (data *models.FileData, err error) {
	started := time.Now()
	var size int64
	defer func() {
		p.observer.RecordIngest(src.Kind(), time.Since(started), size, err)
	}()

	store, err := p.stores(ctx)
	if err != nil {
		return nil, err
	}

	tmp, release, err := p.createTemp(src.FileName())
	if err != nil {
		return nil, err
	}
	defer release()

	if err := p.fetch(ctx, src, tmp); err != nil {
		return nil, err
	}
	size = tmp.Size

	uploaded, err := p.upload(ctx, store, tmp)
	if err != nil {
		return nil, err
	}
	logging.Info("uploaded to file store", "source", src.Ref(), "name", uploaded.Name, "size", humanize.Bytes(uint64(size)))

	final, err := p.waitUntilProcessed(ctx, store, src.Kind(), uploaded.Name)
	if err != nil {
		return nil, err
	}
	if final.Name == "" {
		final.Name = uploaded.Name
	}
	if final.State == models.FileStateFailed {
		return nil, fmt.Errorf("%w: %s", ErrProcessingFailed, uploaded.Name)
	}

	data = fileData(final, uploaded, tmp.MimeType)
	p.record(ctx, src, final, data, size)
	return data, nil
}

// createTemp makes a private directory for one request. The returned release
// removes it and may be called any number of times.
func (p *Pipeline) createTemp(fileName string) (*models.TempFile, func(), error) {
	if err := p.fs.MkdirAll(p.tempRoot, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create temp root: %w", err)
	}
	dir, err := afero.TempDir(p.fs, p.tempRoot, tempPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("create temp dir: %w", err)
	}
	name := filepath.Base(strings.TrimSpace(fileName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "upload"
	}
	tmp := &models.TempFile{Dir: dir, Path: filepath.Join(dir, name), FileName: name}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := p.fs.RemoveAll(dir); err != nil {
				logging.Warn("failed to remove temp dir", "dir", dir, "err", err)
				return
			}
			logging.Debug("temp dir removed", "dir", dir)
		})
	}
	return tmp, release, nil
}

func (p *Pipeline) fetch(ctx context.Context, src Source, tmp *models.TempFile) error {
	out, err := p.fs.Create(tmp.Path)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrDownload, err)
	}

	fetchCtx := ctx
	if p.downloadTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.downloadTimeout)
		defer cancel()
	}

	counter := &progressCounter{Ref: src.Ref()}
	mimeType, fetchErr := src.Fetch(fetchCtx, io.MultiWriter(out, counter))
	closeErr := out.Close()
	if fetchErr != nil {
		return fmt.Errorf("%w: %w", ErrDownload, fetchErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: %w", ErrDownload, closeErr)
	}
	tmp.Size = int64(counter.Total)
	logging.Debug("download complete", "source", src.Ref(), "size", humanize.Bytes(counter.Total))

	tmp.MimeType, err = p.resolveMimeType(mimeType, tmp.Path)
	return err
}

func (p *Pipeline) resolveMimeType(declared, path string) (string, error) {
	if mt := baseMediaType(declared); mt != "" {
		return mt, nil
	}
	f, err := p.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: reopen temp file: %w", ErrDownload, err)
	}
	defer f.Close()
	detected, err := mimetype.DetectReader(f)
	if err != nil || detected == nil {
		return defaultMimeType, nil
	}
	if mt := baseMediaType(detected.String()); mt != "" {
		return mt, nil
	}
	return defaultMimeType, nil
}

func baseMediaType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return ""
	}
	return mt
}

func (p *Pipeline) upload(ctx context.Context, store Store, tmp *models.TempFile) (*models.RemoteFile, error) {
	f, err := p.fs.Open(tmp.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: open temp file: %w", ErrUpload, err)
	}
	defer f.Close()

	uploaded, err := store.Upload(ctx, f, filestore.UploadOptions{
		MIMEType:    tmp.MimeType,
		DisplayName: tmp.FileName,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	if uploaded == nil || uploaded.Name == "" {
		return nil, fmt.Errorf("%w: store returned no file name", ErrUpload)
	}
	return uploaded, nil
}

// waitUntilProcessed checks the file every pollInterval while it is PROCESSING,
// giving up after maxPolls checks or pollTimeout, whichever comes first.
func (p *Pipeline) waitUntilProcessed(ctx context.Context, store Store, kind models.SourceKind, name string) (*models.RemoteFile, error) {
	var (
		polls int
		last  *models.RemoteFile
	)
	check := func() (*models.RemoteFile, error) {
		polls++
		rf, err := store.Status(ctx, name)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		last = rf
		if !rf.State.Terminal() {
			return rf, errStillProcessing
		}
		return rf, nil
	}

	rf, err := backoff.Retry(ctx, check,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.pollInterval)),
		backoff.WithMaxTries(uint(p.maxPolls)),
		backoff.WithMaxElapsedTime(p.pollTimeout),
		backoff.WithNotify(func(_ error, next time.Duration) {
			logging.Debug("file still processing", "name", name, "polls", polls, "next", next)
		}),
	)
	p.observer.RecordPolls(kind, polls)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		if errors.Is(err, errStillProcessing) {
			return nil, fmt.Errorf("%w: %s still processing after %d checks", ErrTimeout, name, polls)
		}
		return nil, err
	}
	if rf == nil {
		rf = last
	}
	logging.Debug("file processed", "name", name, "state", rf.State, "polls", polls)
	return rf, nil
}

func fileData(final, uploaded *models.RemoteFile, fallbackMime string) *models.FileData {
	data := &models.FileData{FileURI: final.URI, MimeType: final.MimeType}
	if data.FileURI == "" {
		data.FileURI = uploaded.URI
	}
	if data.MimeType == "" {
		data.MimeType = uploaded.MimeType
	}
	if data.MimeType == "" {
		data.MimeType = fallbackMime
	}
	return data
}

func (p *Pipeline) record(ctx context.Context, src Source, final *models.RemoteFile, data *models.FileData, size int64) {
	if p.recorder == nil {
		return
	}
	if final.SizeBytes > 0 {
		size = final.SizeBytes
	}
	ing := &models.Ingestion{
		ID:         uuid.NewString(),
		Source:     src.Kind(),
		SourceRef:  src.Ref(),
		RemoteName: final.Name,
		FileURI:    data.FileURI,
		MimeType:   data.MimeType,
		SizeBytes:  size,
		CreatedAt:  time.Now().UTC(),
	}
	if err := p.recorder.Record(context.WithoutCancel(ctx), ing); err != nil {
		logging.Warn("failed to record ingestion", "name", final.Name, "err", err)
	}
}
