package config

import (
	"fmt"
	"runtime"
)

// ExportSettings describe one export session. Zero Width/Height mean "use the
// composition canvas size".
type ExportSettings struct {
	Codec            string // avc | hevc | vp8 | vp9 | av1
	Quality          string // low | medium | high
	Container        string // mp4 | webm | mov | mkv
	Width            int
	Height           int
	VideoBitrate     int // бит/с, 0 = выбор по качеству
	AudioBitrate     int // бит/с, 0 = по умолчанию контейнера
	Workers          int
	UseHardwareAccel bool
	BridgeURL        string // адрес сервера экспорта; пусто = локальный ffmpeg
	OutputPath       string
}

// Default returns the settings used when the caller specifies nothing.
func Default() ExportSettings {
	return ExportSettings{
		Codec:            "avc",
		Quality:          "high",
		Container:        "mp4",
		Workers:          runtime.NumCPU(),
		UseHardwareAccel: true,
	}
}

var validCodecs = map[string]bool{"avc": true, "hevc": true, "vp8": true, "vp9": true, "av1": true}
var validQualities = map[string]bool{"low": true, "medium": true, "high": true}
var validContainers = map[string]bool{"mp4": true, "webm": true, "mov": true, "mkv": true}

// Validate rejects settings the encoder layer cannot express.
func (s *ExportSettings) Validate() error {
	if !validCodecs[s.Codec] {
		return fmt.Errorf("config: unknown codec %q", s.Codec)
	}
	if !validQualities[s.Quality] {
		return fmt.Errorf("config: unknown quality %q", s.Quality)
	}
	if !validContainers[s.Container] {
		return fmt.Errorf("config: unknown container %q", s.Container)
	}
	if s.Width < 0 || s.Height < 0 {
		return fmt.Errorf("config: negative dimensions %dx%d", s.Width, s.Height)
	}
	if s.Workers <= 0 {
		s.Workers = runtime.NumCPU()
	}
	return nil
}

// Ext returns the file extension for the target container.
func (s *ExportSettings) Ext() string {
	switch s.Container {
	case "webm":
		return ".webm"
	case "mov":
		return ".mov"
	case "mkv":
		return ".mkv"
	default:
		return ".mp4"
	}
}

// MimeType returns the media type of the finished artifact.
func (s *ExportSettings) MimeType() string {
	switch s.Container {
	case "webm":
		return "video/webm"
	case "mov":
		return "video/quicktime"
	case "mkv":
		return "video/x-matroska"
	default:
		return "video/mp4"
	}
}
