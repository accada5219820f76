package frames

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"

	"github.com/peopleinfo/freecut/internal/system"
)

// ErrNoSample reports that the source has no decodable sample at the
// requested timestamp (seek past EOF, gap in the stream). It is a transient
// condition: callers substitute a fallback frame and do not count it against
// the source.
var ErrNoSample = errors.New("frames: no sample at requested time")

// Extractor decodes one frame of a media source at an absolute timestamp.
type Extractor interface {
	ExtractFrame(ctx context.Context, seconds float64, w, h int) (*image.RGBA, error)
}

// FFmpegExtractor pulls single frames out of a file with one ffmpeg
// invocation per request. In fast mode the seek happens before demuxing
// (keyframe-accurate and quick); native mode seeks after the input is opened,
// which decodes from the start but survives broken stream indexes.
type FFmpegExtractor struct {
	Path       string
	NativeSeek bool
}

// ExtractFrame decodes the frame at the given timestamp scaled to w×h RGBA.
func (e *FFmpegExtractor) ExtractFrame(ctx context.Context, seconds float64, w, h int) (*image.RGBA, error) {
	ss := fmt.Sprintf("%.4f", seconds)
	var args []string
	if e.NativeSeek {
		args = []string{"-i", e.Path, "-ss", ss}
	} else {
		args = []string{"-ss", ss, "-i", e.Path}
	}
	args = append(args,
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", w, h),
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, system.FFmpegPath(), args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("frames: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("frames: запуск ffmpeg: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	n, readErr := io.ReadFull(stdout, img.Pix)
	io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	if readErr != nil || n < len(img.Pix) {
		// ffmpeg завершился без кадра: запрошенное время за пределами потока.
		if n == 0 && waitErr == nil {
			return nil, fmt.Errorf("%w: %s @ %.3fs", ErrNoSample, e.Path, seconds)
		}
		return nil, fmt.Errorf("frames: неполный кадр из %s (%d/%d байт): %v", e.Path, n, len(img.Pix), readErr)
	}
	if waitErr != nil {
		return nil, fmt.Errorf("frames: ffmpeg %s: %w", e.Path, waitErr)
	}
	return img, nil
}
