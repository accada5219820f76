// Package export оркестрирует полный проход экспорта: быстрый путь ремакса,
// двухстадийный конвейер рендер-кодирование, аудио-микс и прогресс.
package export

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/peopleinfo/freecut/internal/compositor"
	"github.com/peopleinfo/freecut/internal/config"
	"github.com/peopleinfo/freecut/internal/raster"
	"github.com/peopleinfo/freecut/internal/system"
	"github.com/peopleinfo/freecut/internal/timeline"
	"github.com/peopleinfo/freecut/internal/video"
)

// ErrCancelled reports that the export was aborted by the caller. Partial
// output is removed before it is returned.
var ErrCancelled = errors.New("export: cancelled")

// ErrRequiresRicherEnvironment reports that the host lacks a capability the
// export needs (ffmpeg/ffprobe not installed or not on PATH). It is not a
// project defect: the same project exports fine on a provisioned machine.
var ErrRequiresRicherEnvironment = errors.New("export: requires richer environment")

// classifyEnv tags process-launch failures as environment problems so callers
// can tell a missing ffmpeg apart from a broken project or encode error.
func classifyEnv(err error) error {
	if err == nil {
		return nil
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) || errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrRequiresRicherEnvironment, err)
	}
	return err
}

// Phase names the stage reported through progress callbacks.
type Phase string

const (
	PhasePreparing  Phase = "preparing"
	PhaseRendering  Phase = "rendering"
	PhaseEncoding   Phase = "encoding"
	PhaseFinalizing Phase = "finalizing"
	PhaseComplete   Phase = "complete"
	PhaseError      Phase = "error"
)

// Progress is one progress update. Progress runs 0..100 across the whole
// export, not per phase.
type Progress struct {
	Phase        Phase
	Progress     float64
	CurrentFrame int
	TotalFrames  int
	Message      string
}

// frameSink abstracts the streaming encoder so the pipeline is testable
// without spawning ffmpeg.
type frameSink interface {
	Start(ctx context.Context) error
	WriteFrame(pix []byte) error
	Finish() error
	Cancel()
}

// Session drives one export of one composition.
type Session struct {
	comp     *timeline.Composition
	settings config.ExportSettings

	onProgress func(Progress)
	cancelled  atomic.Bool

	// точки подмены для тестов
	newSink   func(spec video.EncodeSpec) frameSink
	probeFile func(ctx context.Context, path string) (*video.ProbeResult, error)
	remux     func(ctx context.Context, spec video.RemuxSpec, ffmpegPath string) error
	probeHook func(itemID string, frame int)
}

// NewSession validates the settings and prepares a session.
func NewSession(comp *timeline.Composition, settings config.ExportSettings) (*Session, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if settings.OutputPath == "" {
		return nil, fmt.Errorf("export: output path is required")
	}
	return &Session{
		comp:     comp,
		settings: settings,
		newSink: func(spec video.EncodeSpec) frameSink {
			if settings.BridgeURL != "" {
				return newBridgeSink(settings.BridgeURL, spec, comp.DurationInFrames, settings.AudioBitrate)
			}
			return video.NewStreamEncoder(spec)
		},
		probeFile: video.Probe,
		remux:     video.Remux,
	}, nil
}

// OnProgress installs the progress callback. Must be set before Export.
func (s *Session) OnProgress(fn func(Progress)) {
	s.onProgress = fn
}

// Cancel requests an abort. The pipeline notices it at the next frame
// boundary, drains the in-flight encode and returns ErrCancelled.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
}

func (s *Session) report(p Progress) {
	if s.onProgress != nil {
		s.onProgress(p)
	}
}

// Export runs the full pipeline and writes the artifact to
// settings.OutputPath.
func (s *Session) Export(ctx context.Context) error {
	total := s.comp.DurationInFrames
	s.report(Progress{Phase: PhasePreparing, TotalFrames: total, Message: "подготовка"})

	if item, ok := s.remuxCandidate(); ok {
		done, err := s.tryRemux(ctx, item)
		if err != nil {
			s.report(Progress{Phase: PhaseError, Message: err.Error()})
			return err
		}
		if done {
			s.report(Progress{Phase: PhaseComplete, Progress: 100, TotalFrames: total})
			return nil
		}
		// Сбой ремакса не фатален: молча уходим на полный рендер.
	}

	err := s.renderAndEncode(ctx)
	if err != nil {
		if !errors.Is(err, ErrCancelled) {
			s.report(Progress{Phase: PhaseError, Message: err.Error()})
		}
		return err
	}
	s.report(Progress{Phase: PhaseComplete, Progress: 100, CurrentFrame: total, TotalFrames: total})
	return nil
}

// remuxCandidate finds the single clip that might allow a stream-copy export:
// one video item covering the whole composition untouched by the compositor.
func (s *Session) remuxCandidate() (*timeline.Item, bool) {
	if len(s.comp.Transitions) > 0 {
		return nil, false
	}

	var candidate *timeline.Item
	for ti := range s.comp.Tracks {
		tr := &s.comp.Tracks[ti]
		if !tr.Visible {
			continue
		}
		for ii := range tr.Items {
			it := &tr.Items[ii]
			if it.Kind == timeline.KindAudio || it.Kind == timeline.KindAdjustment {
				return nil, false
			}
			if it.Kind != timeline.KindVideo || candidate != nil {
				return nil, false
			}
			candidate = it
		}
	}
	if candidate == nil {
		return nil, false
	}

	it := candidate
	identity := it.From == 0 && it.DurationInFrames == s.comp.DurationInFrames &&
		it.SourceStart == 0 && it.Speed == 1 &&
		it.X == 0 && it.Y == 0 && it.Rotation == 0 && it.CornerRadius == 0 &&
		it.Opacity == 1 && len(it.Effects) == 0 &&
		it.FadeIn == 0 && it.FadeOut == 0 &&
		!s.comp.HasKeyframes(it.ID)
	if !identity {
		return nil, false
	}
	// Явная геометрия допустима только если она совпадает с холстом.
	if (it.Width != 0 && it.Width != float64(s.comp.Width)) ||
		(it.Height != 0 && it.Height != float64(s.comp.Height)) {
		return nil, false
	}
	return it, true
}

// tryRemux probes the source and stream-copies it when the codec, container
// and resolution line up. Returns done=false to fall back to the full render.
func (s *Session) tryRemux(ctx context.Context, it *timeline.Item) (bool, error) {
	probe, err := s.probeFile(ctx, it.Src)
	if err != nil {
		log.Printf("[!] Ремакс: probe не удался, полный рендер: %v", err)
		return false, nil
	}

	dstW, dstH := s.targetSize()
	if !video.RemuxCompatible(probe, s.settings.Container, dstW, dstH) {
		return false, nil
	}

	duration := float64(s.comp.DurationInFrames) / float64(s.comp.FPS)
	err = s.remux(ctx, video.RemuxSpec{
		Input:           it.Src,
		Output:          s.settings.OutputPath,
		DurationSeconds: duration,
		Container:       s.settings.Container,
	}, system.FFmpegPath())
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// Источник прошёл проверку, но ffmpeg отказался копировать поток.
		log.Printf("[!] Ремакс не удался, полный рендер: %v", err)
		return false, nil
	}
	return true, nil
}

// targetSize resolves the output dimensions: explicit settings win, then the
// canvas.
func (s *Session) targetSize() (int, int) {
	w, h := s.settings.Width, s.settings.Height
	if w == 0 {
		w = s.comp.Width
	}
	if h == 0 {
		h = s.comp.Height
	}
	return w, h
}

type encodeJob struct {
	frame int
	pix   []byte
}

// renderAndEncode runs the two-stage pipeline: the renderer produces frame
// i+1 while the encoder consumes frame i. At most one encode is in flight;
// frames reach the sink in strictly increasing order.
func (s *Session) renderAndEncode(ctx context.Context) error {
	rc, err := compositor.NewContext(s.comp)
	if err != nil {
		return err
	}
	defer rc.Dispose()

	if err := rc.Preload(ctx, 0, s.settings.Workers); err != nil {
		return err
	}

	outW, outH := s.targetSize()
	total := s.comp.DurationInFrames

	var hw system.HWAccel
	if s.settings.UseHardwareAccel {
		hw = system.DetectHardwareEncoder()
	}
	videoOnly := s.settings.OutputPath
	audioClips := collectAudioClips(s.comp)
	if len(audioClips) > 0 {
		videoOnly = tempArtifact(s.settings.OutputPath, "video") + s.settings.Ext()
	}

	sink := s.newSink(video.EncodeSpec{
		Width:        outW,
		Height:       outH,
		FPS:          s.comp.FPS,
		Codec:        s.settings.Codec,
		Quality:      s.settings.Quality,
		Container:    s.settings.Container,
		VideoBitrate: s.settings.VideoBitrate,
		OutputPath:   videoOnly,
		HW:           hw,
	})
	if err := sink.Start(ctx); err != nil {
		return classifyEnv(err)
	}

	renderer := compositor.NewRenderer(rc)
	if s.probeHook != nil {
		renderer.SetProbe(s.probeHook)
	}

	// Канал на один кадр: рендер следующего идёт, пока кодируется текущий.
	jobs := make(chan encodeJob, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		next := 0
		for job := range jobs {
			if job.frame != next {
				return fmt.Errorf("export: кадр %d пришёл вместо %d", job.frame, next)
			}
			if err := sink.WriteFrame(job.pix); err != nil {
				return err
			}
			next++
			s.report(Progress{
				Phase:        PhaseEncoding,
				Progress:     frameProgress(job.frame, total),
				CurrentFrame: job.frame,
				TotalFrames:  total,
			})
		}
		return nil
	})

	renderErr := func() error {
		needsScale := outW != s.comp.Width || outH != s.comp.Height
		for frame := 0; frame < total; frame++ {
			// ErrCancelled — только для отмены, запрошенной вызывающим;
			// отмена контекста группы (сбой энкодера) — это не отмена.
			if s.cancelled.Load() {
				return ErrCancelled
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			surf, err := renderer.RenderFrame(gctx, frame)
			if err != nil {
				return err
			}

			var pix []byte
			if needsScale {
				scaled := rc.Surfaces.Get(outW, outH)
				raster.Scale(scaled, scaled.Rect, surf)
				pix = raster.Snapshot(scaled)
				rc.Surfaces.Put(scaled)
			} else {
				pix = raster.Snapshot(surf)
			}
			rc.Surfaces.Put(surf)

			// Отмену проверяем и перед постановкой кадра в очередь.
			if s.cancelled.Load() {
				return ErrCancelled
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			select {
			case jobs <- encodeJob{frame: frame, pix: pix}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	}()

	close(jobs)
	encodeErr := g.Wait() // дожидаемся кадра в полёте даже при отмене

	if renderErr != nil || encodeErr != nil {
		sink.Cancel()
		// Сбой энкодера отменяет контекст группы: ошибка кодирования важнее
		// вызванной ею отмены рендера.
		if encodeErr != nil && (renderErr == nil || errors.Is(renderErr, context.Canceled)) {
			return encodeErr
		}
		if errors.Is(renderErr, context.Canceled) {
			return ErrCancelled
		}
		return renderErr
	}

	s.report(Progress{Phase: PhaseFinalizing, Progress: 95, CurrentFrame: total, TotalFrames: total})
	if err := sink.Finish(); err != nil {
		return err
	}

	if len(audioClips) > 0 {
		if err := s.muxAudio(ctx, audioClips, videoOnly); err != nil {
			return err
		}
	}
	return nil
}

// muxAudio mixes the timeline audio and merges it with the encoded video.
// A failed mix degrades to a silent export instead of failing the session.
func (s *Session) muxAudio(ctx context.Context, clips []video.AudioClip, videoOnly string) error {
	wav := tempArtifact(s.settings.OutputPath, "audio") + ".wav"
	defer os.Remove(wav)
	defer os.Remove(videoOnly)

	duration := float64(s.comp.DurationInFrames) / float64(s.comp.FPS)
	if err := video.MixAudio(ctx, clips, duration, wav, system.FFmpegPath()); err != nil {
		log.Printf("[!] Аудио-микс не удался, экспорт без звука: %v", err)
		return os.Rename(videoOnly, s.settings.OutputPath)
	}
	err := video.MuxAudio(ctx, videoOnly, wav, s.settings.OutputPath, s.settings.Container, s.settings.AudioBitrate, system.FFmpegPath())
	if err != nil {
		log.Printf("[!] Мультиплексирование аудио не удалось, экспорт без звука: %v", err)
		return os.Rename(videoOnly, s.settings.OutputPath)
	}
	return nil
}

func frameProgress(frame, total int) float64 {
	if total <= 0 {
		return 0
	}
	// рендер+кодирование занимают первые 95%, финализация — остаток
	return math.Min(95, float64(frame+1)/float64(total)*95)
}

func tempArtifact(outputPath, suffix string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	return filepath.Join(dir, fmt.Sprintf(".%s.%s", base, suffix))
}
