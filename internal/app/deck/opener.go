package deck

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
	zlog "github.com/rs/zerolog/log"
)

// Opener fetches and decodes the audio behind a stream URL.
type Opener interface {
	Open(ctx context.Context, streamURL string) (beep.StreamSeekCloser, beep.Format, error)
}

// StreamOpener downloads tracks over HTTP or reads them from file URLs and
// decodes them in memory so the decoder can seek.
type StreamOpener struct {
	client   *http.Client
	maxBytes int64
}

// NewStreamOpener creates a new StreamOpener.
func NewStreamOpener(timeout time.Duration, maxBytes int64) *StreamOpener {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	return &StreamOpener{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Open implements Opener.
func (o *StreamOpener) Open(ctx context.Context, streamURL string) (beep.StreamSeekCloser, beep.Format, error) {
	u, err := url.Parse(streamURL)
	if err != nil {
		return nil, beep.Format{}, errors.Wrap(err, "invalid stream URL")
	}

	var (
		data        []byte
		contentType string
	)
	switch u.Scheme {
	case "http", "https":
		data, contentType, err = o.fetch(ctx, streamURL)
	case "file":
		data, err = o.readFile(u.Path)
	default:
		err = errors.Newf("unsupported stream URL scheme: %q", u.Scheme)
	}
	if err != nil {
		return nil, beep.Format{}, err
	}

	zlog.Debug().Msgf("deck: fetched track: url=%s bytes=%d content_type=%s", streamURL, len(data), contentType)
	return decode(data, contentType, path.Ext(u.Path))
}

func (o *StreamOpener) fetch(ctx context.Context, streamURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to create request")
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to fetch track")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, "", errors.Wrapf(ErrStaleReference, "catalog returned %d for %s", resp.StatusCode, streamURL)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, "", errors.Newf("catalog stream error %d", resp.StatusCode)
	}

	data, err := o.readAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (o *StreamOpener) readFile(p string) ([]byte, error) {
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(ErrStaleReference, "audio file %s is missing", p)
		}
		return nil, errors.Wrap(err, "failed to open audio file")
	}
	defer f.Close()
	return o.readAll(f)
}

func (o *StreamOpener) readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, o.maxBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read track")
	}
	if int64(len(data)) > o.maxBytes {
		return nil, errors.Newf("track exceeds %d bytes", o.maxBytes)
	}
	return data, nil
}

// memFile lets decoders seek within a downloaded track.
type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

func decode(data []byte, contentType, ext string) (beep.StreamSeekCloser, beep.Format, error) {
	f := memFile{bytes.NewReader(data)}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch detectFormat(data, contentType, ext) {
	case "wav":
		s, format, err = wav.Decode(f)
	default:
		s, format, err = mp3.Decode(f)
	}
	if err != nil {
		return nil, beep.Format{}, errors.Wrap(err, "failed to decode track")
	}
	return s, format, nil
}

func detectFormat(data []byte, contentType, ext string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
			return "wav"
		case "audio/mpeg", "audio/mp3":
			return "mp3"
		}
	}
	switch strings.ToLower(ext) {
	case ".wav", ".wave":
		return "wav"
	case ".mp3":
		return "mp3"
	}
	if bytes.HasPrefix(data, []byte("RIFF")) {
		return "wav"
	}
	return "mp3"
}
