// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// Format names a container format.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
	FormatOGG  Format = "ogg"
)

// Formats lists every supported format.
var Formats = []Format{FormatWAV, FormatMP3, FormatFLAC, FormatOGG}

// ParseFormat converts a user-supplied name or extension to a Format. An
// empty name yields an empty Format, meaning detect from content.
func ParseFormat(name string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(name), ".") {
	case "":
		return "", nil
	case "wav", "wave":
		return FormatWAV, nil
	case "mp3":
		return FormatMP3, nil
	case "flac":
		return FormatFLAC, nil
	case "ogg", "oga", "vorbis":
		return FormatOGG, nil
	default:
		return "", fmt.Errorf("%w: '%s'", ErrUnsupportedFormat, name)
	}
}

// FormatFromPath returns the format implied by the file extension, or an
// empty Format when the extension is unknown.
func FormatFromPath(path string) Format {
	f, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return ""
	}
	return f
}

// DetectFormat identifies a container from its leading bytes.
func DetectFormat(head []byte) (Format, bool) {
	switch {
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return FormatWAV, true
	case bytes.HasPrefix(head, []byte("fLaC")):
		return FormatFLAC, true
	case bytes.HasPrefix(head, []byte("OggS")):
		return FormatOGG, true
	case bytes.HasPrefix(head, []byte("ID3")):
		return FormatMP3, true
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		// MPEG audio frame sync.
		return FormatMP3, true
	}
	return "", false
}
