package export

import (
	"context"
	"fmt"

	"github.com/peopleinfo/freecut/internal/system"
	"github.com/peopleinfo/freecut/internal/timeline"
	"github.com/peopleinfo/freecut/internal/video"
)

// collectAudioClips gathers every audible clip of the composition: audio
// items plus the embedded sound of video items. Muted tracks and zero-volume
// clips contribute nothing.
func collectAudioClips(comp *timeline.Composition) []video.AudioClip {
	fps := float64(comp.FPS)
	var clips []video.AudioClip

	for ti := range comp.Tracks {
		tr := &comp.Tracks[ti]
		if !tr.Visible || tr.Muted {
			continue
		}
		for ii := range tr.Items {
			it := &tr.Items[ii]
			if it.Kind != timeline.KindAudio && it.Kind != timeline.KindVideo {
				continue
			}
			if it.Src == "" {
				continue
			}
			volume := it.Volume
			if it.Kind == timeline.KindAudio && volume == 0 {
				// аудио-клип без явной громкости играет как есть
				volume = 1
			}
			if volume <= 0 {
				continue
			}
			speed := it.Speed
			if speed <= 0 {
				speed = 1
			}
			clips = append(clips, video.AudioClip{
				Path:               it.Src,
				StartSeconds:       float64(it.From) / fps,
				SourceStartSeconds: float64(it.SourceStart) / fps,
				DurationSeconds:    float64(it.DurationInFrames) / fps,
				Speed:              speed,
				Volume:             volume,
				FadeInSeconds:      it.FadeIn,
				FadeOutSeconds:     it.FadeOut,
			})
		}
	}
	return clips
}

// ExportAudio mixes the composition's audio into a standalone WAV file.
func ExportAudio(ctx context.Context, comp *timeline.Composition, outputPath string) error {
	if err := comp.Validate(); err != nil {
		return err
	}
	clips := collectAudioClips(comp)
	if len(clips) == 0 {
		return fmt.Errorf("export: в композиции нет звука")
	}
	duration := float64(comp.DurationInFrames) / float64(comp.FPS)
	return classifyEnv(video.MixAudio(ctx, clips, duration, outputPath, system.FFmpegPath()))
}
