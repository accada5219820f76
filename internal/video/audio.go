package video

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
)

// AudioClip is one timeline clip contributing to the mixed track.
type AudioClip struct {
	Path               string
	StartSeconds       float64 // позиция в таймлайне
	SourceStartSeconds float64 // смещение внутри исходника
	DurationSeconds    float64 // длительность на таймлайне
	Speed              float64
	Volume             float64 // 0..N, 1 = без изменений
	FadeInSeconds      float64
	FadeOutSeconds     float64
}

// MixAudio renders all clips into a single WAV file using one ffmpeg filter
// graph: per-clip trim, tempo, volume and fades, then adelay for timeline
// placement and amix across clips.
func MixAudio(ctx context.Context, clips []AudioClip, totalSeconds float64, outputPath, ffmpegPath string) error {
	if len(clips) == 0 {
		return fmt.Errorf("video: нет аудио-клипов для микса")
	}

	args := []string{"-y"}
	var filters []string
	var mixInputs []string

	for i, c := range clips {
		speed := c.Speed
		if speed <= 0 {
			speed = 1
		}
		srcDuration := c.DurationSeconds * speed

		if c.SourceStartSeconds > 0 {
			args = append(args, "-ss", fmt.Sprintf("%.3f", c.SourceStartSeconds))
		}
		args = append(args, "-t", fmt.Sprintf("%.3f", srcDuration), "-i", c.Path)

		var chain []string
		for _, t := range atempoChain(speed) {
			chain = append(chain, fmt.Sprintf("atempo=%.4f", t))
		}
		if c.Volume != 1 {
			chain = append(chain, fmt.Sprintf("volume=%.4f", c.Volume))
		}
		if c.FadeInSeconds > 0 {
			chain = append(chain, fmt.Sprintf("afade=t=in:st=0:d=%.3f", c.FadeInSeconds))
		}
		if c.FadeOutSeconds > 0 {
			chain = append(chain, fmt.Sprintf("afade=t=out:st=%.3f:d=%.3f", c.DurationSeconds-c.FadeOutSeconds, c.FadeOutSeconds))
		}
		delay := int(c.StartSeconds * 1000)
		chain = append(chain, fmt.Sprintf("adelay=%d|%d", delay, delay))

		label := fmt.Sprintf("a%d", i)
		filters = append(filters, fmt.Sprintf("[%d:a]%s[%s]", i, strings.Join(chain, ","), label))
		mixInputs = append(mixInputs, "["+label+"]")
	}

	filters = append(filters, fmt.Sprintf("%samix=inputs=%d:dropout_transition=0:normalize=0[mix]",
		strings.Join(mixInputs, ""), len(clips)))

	args = append(args,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", "[mix]",
		"-t", fmt.Sprintf("%.3f", totalSeconds),
		"-c:a", "pcm_s16le",
		"-ar", "48000",
		outputPath,
	)

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("video: микс аудио (%d клипов): %w (%s)", len(clips), err, tailOf(out))
	}
	log.Printf("[+++] Аудио смикшировано: %d клипов -> %s", len(clips), outputPath)
	return nil
}

// atempoChain splits an arbitrary speed factor into the 0.5..2.0 steps the
// atempo filter accepts.
func atempoChain(speed float64) []float64 {
	var steps []float64
	for speed > 2.0 {
		steps = append(steps, 2.0)
		speed /= 2.0
	}
	for speed < 0.5 {
		steps = append(steps, 0.5)
		speed /= 0.5
	}
	if speed != 1 || len(steps) == 0 {
		steps = append(steps, speed)
	}
	return steps
}
