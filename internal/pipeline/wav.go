package pipeline

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

// ErrNotWAV is returned when a voice upload is not a RIFF/WAVE stream.
var ErrNotWAV = errors.New("speech-to-text only accepts .wav audio")

// ensureWAV validates that the upload is WAV before it reaches the STT
// service, checking the RIFF header rather than trusting the extension
// alone. The reader is rewound afterwards.
func ensureWAV(r io.ReadSeeker, filename string) error {
	if filename != "" && !strings.HasSuffix(strings.ToLower(filename), ".wav") {
		return ErrNotWAV
	}

	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return ErrNotWAV
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}

	if !bytes.Equal(header[0:4], []byte("RIFF")) || !bytes.Equal(header[8:12], []byte("WAVE")) {
		return ErrNotWAV
	}
	return nil
}
