package source

import (
	"context"
	"errors"
	"io"
	"mime/multipart"

	"reelshare/internal/models"
)

// Local is a file received as a multipart form part.
type Local struct {
	header *multipart.FileHeader
}

func NewLocal(header *multipart.FileHeader) (*Local, error) {
	if header == nil {
		return nil, errors.New("multipart file header required")
	}
	return &Local{header: header}, nil
}

func (l *Local) Kind() models.SourceKind { return models.SourceLocal }

func (l *Local) Ref() string { return l.header.Filename }

func (l *Local) FileName() string {
	name := SanitizeFileName(l.header.Filename)
	if name == "" {
		return "upload"
	}
	return name
}

// Fetch copies the part and reports the Content-Type the client declared.
func (l *Local) Fetch(ctx context.Context, w io.Writer) (string, error) {
	f, err := l.header.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(w, readerWithContext(ctx, f)); err != nil {
		return "", err
	}
	return l.header.Header.Get("Content-Type"), nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
