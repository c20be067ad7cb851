package media

import (
	"bytes"
	"fmt"
)

// MaxAudioBytes is the upload cap for follow-up voice questions.
const MaxAudioBytes = 10 * 1024 * 1024

// supportedAudio maps accepted audio content types to a canonical MIME
// type understood by the transcription provider.
var supportedAudio = map[string]string{
	"audio/wav":    "audio/wav",
	"audio/wave":   "audio/wav",
	"audio/x-wav":  "audio/wav",
	"audio/mpeg":   "audio/mpeg",
	"audio/mp3":    "audio/mpeg",
	"audio/ogg":    "audio/ogg",
	"audio/flac":   "audio/flac",
	"audio/x-flac": "audio/flac",
}

// CanonicalAudioMIME returns the canonical MIME type for an accepted
// audio content type; ok is false for unsupported types.
func CanonicalAudioMIME(contentType string) (string, bool) {
	mime, ok := supportedAudio[contentType]
	return mime, ok
}

// ValidateAudio checks the uploaded audio: supported content type,
// non-empty, size within MaxAudioBytes, and a file signature matching
// the declared type.
func ValidateAudio(data []byte, contentType string) error {
	canonical, ok := supportedAudio[contentType]
	if !ok {
		return fmt.Errorf("invalid audio format %q, supported: wav, mp3, ogg, flac", contentType)
	}

	if len(data) == 0 {
		return fmt.Errorf("audio file is empty")
	}
	if len(data) > MaxAudioBytes {
		return fmt.Errorf("audio too large: %d bytes, maximum %d", len(data), MaxAudioBytes)
	}
	if len(data) < 12 {
		return fmt.Errorf("audio file is corrupted or incomplete")
	}

	switch canonical {
	case "audio/wav":
		if !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
			return fmt.Errorf("invalid WAV file")
		}
	case "audio/mpeg":
		if !bytes.HasPrefix(data, []byte("ID3")) && !(data[0] == 0xFF && data[1]&0xE0 == 0xE0) {
			return fmt.Errorf("invalid MP3 file")
		}
	case "audio/ogg":
		if !bytes.HasPrefix(data, []byte("OggS")) {
			return fmt.Errorf("invalid OGG file")
		}
	case "audio/flac":
		if !bytes.HasPrefix(data, []byte("fLaC")) {
			return fmt.Errorf("invalid FLAC file")
		}
	}
	return nil
}
