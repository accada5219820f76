// Package video инкапсулирует работу с ffmpeg: потоковое кодирование сырых
// кадров, ремакс пакетов без перекодирования, probe и аудио-микс.
package video

import (
	"fmt"
	"strings"

	"github.com/peopleinfo/freecut/internal/system"
)

// crfMap maps quality presets to per-encoder rate factors.
var crfMap = map[string]map[string]string{
	"low":    {"libx264": "28", "libx265": "32", "libvpx": "40", "hw": "28"},
	"medium": {"libx264": "23", "libx265": "28", "libvpx": "33", "hw": "23"},
	"high":   {"libx264": "18", "libx265": "22", "libvpx": "24", "hw": "19"},
}

// softwareEncoders maps client codec names to ffmpeg software encoders.
var softwareEncoders = map[string]string{
	"avc":  "libx264",
	"hevc": "libx265",
	"vp8":  "libvpx",
	"vp9":  "libvpx-vp9",
	"av1":  "libaom-av1",
}

// EncoderArgs builds the encoder half of an ffmpeg command line for the given
// codec/quality/container combination. A hardware encoder is used when hw is
// available, otherwise the software encoder for the codec.
func EncoderArgs(codec, quality, container string, videoBitrate int, hw system.HWAccel) []string {
	encoder := softwareEncoders[codec]
	if encoder == "" {
		encoder = "libx264"
	}
	if hw.Available {
		encoder = hw.Encoder
	}

	crf := crfMap[quality]
	if crf == nil {
		crf = crfMap["medium"]
	}

	args := []string{"-c:v", encoder}
	if videoBitrate > 0 {
		args = append(args, "-b:v", fmt.Sprintf("%d", videoBitrate))
	}

	switch {
	case encoder == "libx264":
		args = append(args, "-crf", crf["libx264"], "-preset", "fast", "-pix_fmt", "yuv420p")
	case encoder == "libx265":
		args = append(args, "-crf", crf["libx265"], "-preset", "fast", "-pix_fmt", "yuv420p")
	case strings.Contains(encoder, "nvenc"):
		if videoBitrate > 0 {
			args = append(args, "-preset", "p4", "-tune", "hq", "-pix_fmt", "yuv420p")
		} else {
			args = append(args, "-cq", crf["hw"], "-preset", "p4", "-tune", "hq", "-pix_fmt", "yuv420p")
		}
	case strings.Contains(encoder, "videotoolbox"):
		args = append(args, "-q:v", crf["hw"], "-pix_fmt", "yuv420p")
	case strings.Contains(encoder, "amf"):
		args = append(args, "-quality", "balanced", "-pix_fmt", "yuv420p")
	case strings.Contains(encoder, "qsv"):
		args = append(args, "-global_quality", crf["hw"], "-preset", "faster", "-pix_fmt", "yuv420p")
	case strings.Contains(encoder, "libvpx"):
		args = append(args, "-crf", crf["libvpx"])
		// -b:v 0 включает режим constant quality, но только когда клиент
		// не задал собственный битрейт.
		if videoBitrate <= 0 {
			args = append(args, "-b:v", "0")
		}
		args = append(args, "-pix_fmt", "yuv420p")
	default:
		args = append(args, "-pix_fmt", "yuv420p")
	}

	if container == "mp4" {
		args = append(args, "-movflags", "+faststart")
	}
	return args
}

// AudioCodecArgs returns the audio encoder for the container.
func AudioCodecArgs(container string, audioBitrate int) []string {
	if container == "webm" {
		if audioBitrate <= 0 {
			audioBitrate = 128000
		}
		return []string{"-c:a", "libopus", "-b:a", fmt.Sprintf("%d", audioBitrate)}
	}
	if audioBitrate <= 0 {
		audioBitrate = 192000
	}
	return []string{"-c:a", "aac", "-b:a", fmt.Sprintf("%d", audioBitrate)}
}
