package stream

import (
	"encoding/binary"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const (
	channels      = 2
	bitsPerSample = 16
	// Size fields of a live stream are unknown; players accept the maximum.
	streamingSize = 0xFFFFFFFF
)

// writeWAVHeader writes a 44-byte RIFF/WAVE header for 16-bit stereo PCM of
// unknown length.
func writeWAVHeader(w io.Writer, sampleRate int) error {
	blockAlign := channels * bitsPerSample / 8
	header := struct {
		RIFF          [4]byte
		ChunkSize     uint32
		WAVE          [4]byte
		Fmt           [4]byte
		FmtSize       uint32
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Data          [4]byte
		DataSize      uint32
	}{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     streamingSize,
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: bitsPerSample,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      streamingSize,
	}
	return errors.Wrap(binary.Write(w, binary.LittleEndian, &header), "failed to write wav header")
}

// samplesToBytes converts int16 samples to little-endian bytes.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	return buf
}

// WAVHandler serves the live mix as an endless 16-bit stereo WAV stream.
type WAVHandler struct {
	broadcaster *Broadcaster
	sampleRate  int
}

// NewWAVHandler creates a WAV stream handler.
func NewWAVHandler(b *Broadcaster, sampleRate int) *WAVHandler {
	return &WAVHandler{broadcaster: b, sampleRate: sampleRate}
}

func (h *WAVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodHead {
		return
	}

	if err := writeWAVHeader(w, h.sampleRate); err != nil {
		zlog.Warn().Msgf("stream: %v", err)
		return
	}
	flusher.Flush()

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)
	zlog.Info().Msgf("stream: listener connected: remote=%s listeners=%d", r.RemoteAddr, h.broadcaster.ListenerCount())
	defer zlog.Info().Msgf("stream: listener disconnected: remote=%s", r.RemoteAddr)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-listener.Done():
			return
		case frame := <-listener.C:
			if _, err := w.Write(samplesToBytes(frame)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
