package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kkdai/youtube/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelshare/internal/models"
)

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "watch_v=abc", SanitizeFileName("watch?v=abc"))
	assert.Equal(t, "a_b_c_d", SanitizeFileName(`a<>b:"c|?*d`))
	assert.Equal(t, "my_holiday_video.mp4", SanitizeFileName("my holiday\tvideo.mp4"))
	assert.Equal(t, "dir_file", SanitizeFileName(`dir\/file`))

	long := SanitizeFileName(strings.Repeat("é", 300))
	assert.Equal(t, strings.Repeat("é", 127), long)

	cjk := SanitizeFileName(strings.Repeat("視", 100) + ".png")
	assert.Equal(t, strings.Repeat("視", 85), cjk)
	assert.Len(t, cjk, MaxFileNameLength)

	accented := SanitizeFileName(strings.Repeat("é", 100) + ".png")
	assert.Equal(t, strings.Repeat("é", 100)+".png", accented)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "ab", truncate("ab", 5))
	assert.Equal(t, "a", truncate("aé", 2))
	assert.Equal(t, "aé", truncate("aé", 3))
	assert.Equal(t, "", truncate("視", 2))
}

func TestURLSourceStreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	src, err := NewURLDownloader(srv.Client()).Source(srv.URL + "/docs/report%20final.pdf?sig=1")
	require.NoError(t, err)
	assert.Equal(t, models.SourceURL, src.Kind())
	assert.Equal(t, "report_final.pdf", src.FileName())

	var buf bytes.Buffer
	mimeType, err := src.Fetch(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", mimeType)
	assert.Equal(t, "%PDF-1.4", buf.String())
}

func TestURLSourceNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	src, err := NewURLDownloader(srv.Client()).Source(srv.URL + "/missing.bin")
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = src.Fetch(context.Background(), &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Zero(t, buf.Len())
}

func TestURLSourceValidation(t *testing.T) {
	d := NewURLDownloader(nil)
	for _, raw := range []string{"ftp://example.com/a", "not a url", "http://", "://x"} {
		_, err := d.Source(raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}

	src, err := d.Source("https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, "download", src.FileName())
}

type fakeStreamer struct {
	body  string
	size  int64
	err   error
	calls int
}

func (f *fakeStreamer) Stream(_ context.Context, _ string) (io.ReadCloser, int64, error) {
	f.calls++
	if f.err != nil {
		return nil, 0, f.err
	}
	return io.NopCloser(strings.NewReader(f.body)), f.size, nil
}

func TestYouTubeSourceNaming(t *testing.T) {
	yt := NewYouTube(&fakeStreamer{})
	first, err := yt.Source("https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	require.NoError(t, err)
	second, err := yt.Source("https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^watch_v=dQw4w9WgXcQ_[0-9a-f]{16}\.mp4$`)
	assert.Regexp(t, pattern, first.FileName())
	assert.Regexp(t, pattern, second.FileName())
	assert.NotEqual(t, first.FileName(), second.FileName())

	long, err := yt.Source("https://youtu.be/" + strings.Repeat("x", 400))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(long.FileName()), MaxFileNameLength)
	assert.True(t, strings.HasSuffix(long.FileName(), ".mp4"))

	wide, err := yt.Source("https://youtu.be/" + strings.Repeat("視", 200))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(wide.FileName()), MaxFileNameLength)
	assert.True(t, utf8.ValidString(wide.FileName()))
	assert.Regexp(t, `^視+_[0-9a-f]{16}\.mp4$`, wide.FileName())

	_, err = yt.Source("  ")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestYouTubeFetch(t *testing.T) {
	streamer := &fakeStreamer{body: "mp4-bytes", size: 9}
	src, err := NewYouTube(streamer).Source("https://youtu.be/abc")
	require.NoError(t, err)
	assert.Equal(t, models.SourceYouTube, src.Kind())

	var buf bytes.Buffer
	mimeType, err := src.Fetch(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", mimeType)
	assert.Equal(t, "mp4-bytes", buf.String())

	streamer.size = 100
	buf.Reset()
	_, err = src.Fetch(context.Background(), &buf)
	assert.Error(t, err)

	streamer.err = errors.New("video unavailable")
	_, err = src.Fetch(context.Background(), &buf)
	assert.EqualError(t, err, "video unavailable")
}

func TestPickMuxedFormat(t *testing.T) {
	formats := youtube.FormatList{
		{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, AudioChannels: 2},
		{ItagNo: 137, MimeType: `video/mp4; codecs="avc1.640028"`, Width: 1920},
		{ItagNo: 43, MimeType: `video/webm; codecs="vp8.0, vorbis"`, AudioChannels: 2, Width: 640},
		{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, AudioChannels: 2, Width: 640},
	}
	f, err := pickMuxedFormat(formats)
	require.NoError(t, err)
	assert.Equal(t, 18, f.ItagNo)

	f, err = pickMuxedFormat(formats[:3])
	require.NoError(t, err)
	assert.Equal(t, 43, f.ItagNo)

	_, err = pickMuxedFormat(formats[:2])
	assert.ErrorIs(t, err, errNoMuxedFormat)
}

func multipartHeader(t *testing.T, field, filename, contentType string, body []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	form, err := multipart.NewReader(&buf, mw.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	require.Len(t, form.File[field], 1)
	return form.File[field][0]
}

func TestLocalSource(t *testing.T) {
	header := multipartHeader(t, "video", "my clip.mov", "video/quicktime", []byte("moov"))
	src, err := NewLocal(header)
	require.NoError(t, err)
	assert.Equal(t, models.SourceLocal, src.Kind())
	assert.Equal(t, "my_clip.mov", src.FileName())

	var buf bytes.Buffer
	mimeType, err := src.Fetch(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, "video/quicktime", mimeType)
	assert.Equal(t, "moov", buf.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Fetch(ctx, io.Discard)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewLocal(nil)
	assert.Error(t, err)
}
