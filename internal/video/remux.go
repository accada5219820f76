package video

import (
	"context"
	"fmt"
	"log"
	"os/exec"
)

// containerCodecs lists the video codecs each container accepts without
// re-encoding.
var containerCodecs = map[string]map[string]bool{
	"mp4":  {"h264": true, "hevc": true, "av1": true},
	"mov":  {"h264": true, "hevc": true},
	"webm": {"vp8": true, "vp9": true, "av1": true},
	"mkv":  {"h264": true, "hevc": true, "vp8": true, "vp9": true, "av1": true},
}

// containerAudio lists the audio codecs each container accepts.
var containerAudio = map[string]map[string]bool{
	"mp4":  {"aac": true, "mp3": true},
	"mov":  {"aac": true, "mp3": true, "pcm_s16le": true},
	"webm": {"opus": true, "vorbis": true},
	"mkv":  {"aac": true, "mp3": true, "opus": true, "vorbis": true, "flac": true},
}

// RemuxCompatible reports whether a probed source can be copied into the
// target container at the target resolution without re-encoding.
func RemuxCompatible(probe *ProbeResult, container string, dstW, dstH int) bool {
	codecs := containerCodecs[container]
	if codecs == nil || !codecs[probe.VideoCodec] {
		return false
	}
	if probe.HasAudio && !containerAudio[container][probe.AudioCodec] {
		return false
	}
	if dstW != 0 && dstW != probe.Width {
		return false
	}
	if dstH != 0 && dstH != probe.Height {
		return false
	}
	return true
}

// RemuxSpec describes a stream-copy trim of a single source file.
type RemuxSpec struct {
	Input           string
	Output          string
	StartSeconds    float64
	DurationSeconds float64
	Container       string
}

// Remux copies the source streams into the output container without
// re-encoding, trimmed to the requested range.
func Remux(ctx context.Context, spec RemuxSpec, ffmpegPath string) error {
	args := []string{"-y"}
	if spec.StartSeconds > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", spec.StartSeconds))
	}
	args = append(args, "-i", spec.Input)
	if spec.DurationSeconds > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", spec.DurationSeconds))
	}
	args = append(args, "-c", "copy")
	if spec.Container == "mp4" {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, spec.Output)

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("video: ремакс %s: %w (%s)", spec.Input, err, tailOf(out))
	}
	log.Printf("[+++] Ремакс без перекодирования: %s -> %s", spec.Input, spec.Output)
	return nil
}

// MuxAudio merges an encoded video file with a WAV track, copying the video
// stream and encoding audio for the container. On failure the video file is
// left untouched so the caller can fall back to a silent export.
func MuxAudio(ctx context.Context, videoPath, audioPath, outputPath, container string, audioBitrate int, ffmpegPath string) error {
	args := []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
	}
	args = append(args, AudioCodecArgs(container, audioBitrate)...)
	args = append(args, "-shortest")
	if container == "mp4" {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, outputPath)

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("video: микс аудио: %w (%s)", err, tailOf(out))
	}
	return nil
}

func tailOf(out []byte) string {
	s := string(out)
	if len(s) > 400 {
		s = s[len(s)-400:]
	}
	return s
}
