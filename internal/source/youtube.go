package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/kkdai/youtube/v2"

	"reelshare/internal/models"
)

const (
	youtubeMimeType = "video/mp4"
	youtubeExt      = ".mp4"
	// leaves room for "_" + 16 hex + ".mp4"
	youtubeBaseMax = MaxFileNameLength - 1 - 16 - len(youtubeExt)
)

var errNoMuxedFormat = errors.New("no format with both audio and video")

// VideoStreamer opens the byte stream of a video.
type VideoStreamer interface {
	Stream(ctx context.Context, videoURL string) (io.ReadCloser, int64, error)
}

// YouTube builds sources for YouTube links.
type YouTube struct {
	streamer VideoStreamer
}

func NewYouTube(streamer VideoStreamer) *YouTube {
	if streamer == nil {
		streamer = NewYouTubeStreamer(nil)
	}
	return &YouTube{streamer: streamer}
}

// Source names the scratch file after the link and a random suffix so that
// repeated requests for the same video never share a file.
func (y *YouTube) Source(videoURL string) (*YouTubeVideo, error) {
	videoURL = strings.TrimSpace(videoURL)
	if videoURL == "" {
		return nil, fmt.Errorf("%w: empty youtube url", ErrInvalidURL)
	}
	suffix, err := randomSuffix()
	if err != nil {
		return nil, fmt.Errorf("random suffix: %w", err)
	}
	base := truncate(SanitizeFileName(path.Base(videoURL)), youtubeBaseMax)
	return &YouTubeVideo{
		streamer: y.streamer,
		url:      videoURL,
		name:     base + "_" + suffix + youtubeExt,
	}, nil
}

// YouTubeVideo streams one muxed audio+video format.
type YouTubeVideo struct {
	streamer VideoStreamer
	url      string
	name     string
}

func (v *YouTubeVideo) Kind() models.SourceKind { return models.SourceYouTube }

func (v *YouTubeVideo) Ref() string { return v.url }

func (v *YouTubeVideo) FileName() string { return v.name }

func (v *YouTubeVideo) Fetch(ctx context.Context, w io.Writer) (string, error) {
	stream, size, err := v.streamer.Stream(ctx, v.url)
	if err != nil {
		return "", err
	}
	defer stream.Close()
	n, err := io.Copy(w, readerWithContext(ctx, stream))
	if err != nil {
		return "", err
	}
	if size > 0 && n < size {
		return "", fmt.Errorf("stream ended after %d of %d bytes", n, size)
	}
	return youtubeMimeType, nil
}

// YouTubeStreamer resolves links with github.com/kkdai/youtube.
type YouTubeStreamer struct {
	client *youtube.Client
}

func NewYouTubeStreamer(httpClient *http.Client) *YouTubeStreamer {
	return &YouTubeStreamer{client: &youtube.Client{HTTPClient: httpClient}}
}

func (s *YouTubeStreamer) Stream(ctx context.Context, videoURL string) (io.ReadCloser, int64, error) {
	video, err := s.client.GetVideoContext(ctx, videoURL)
	if err != nil {
		return nil, 0, err
	}
	format, err := pickMuxedFormat(video.Formats)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", video.ID, err)
	}
	return s.client.GetStreamContext(ctx, video, format)
}

// pickMuxedFormat prefers the highest quality mp4 carrying both audio and video.
func pickMuxedFormat(formats youtube.FormatList) (*youtube.Format, error) {
	muxed := formats.WithAudioChannels().Select(func(f youtube.Format) bool {
		return strings.HasPrefix(f.MimeType, "video/")
	})
	if len(muxed) == 0 {
		return nil, errNoMuxedFormat
	}
	if mp4 := muxed.Type(youtubeMimeType); len(mp4) > 0 {
		muxed = mp4
	}
	muxed.Sort()
	return &muxed[0], nil
}
