package video

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"

	"github.com/peopleinfo/freecut/internal/system"
)

// EncodeSpec describes one streaming encode session.
type EncodeSpec struct {
	Width        int
	Height       int
	FPS          int
	Codec        string
	Quality      string
	Container    string
	VideoBitrate int
	OutputPath   string
	HW           system.HWAccel
}

// StreamEncoder feeds raw RGBA frames to a single long-lived ffmpeg process
// over stdin. Frames must be submitted in strictly increasing order; the
// encoder itself enforces only the byte size, ordering is the caller's
// contract.
type StreamEncoder struct {
	spec  EncodeSpec
	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu        sync.Mutex
	started   bool
	finished  bool
	frameSize int
	written   int
	stderr    bytes.Buffer
}

// NewStreamEncoder prepares an encoder for the given session. Start must be
// called before the first WriteFrame.
func NewStreamEncoder(spec EncodeSpec) *StreamEncoder {
	return &StreamEncoder{
		spec:      spec,
		frameSize: spec.Width * spec.Height * 4,
	}
}

// Start launches the ffmpeg process.
func (e *StreamEncoder) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("video: encoder already started")
	}

	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", e.spec.Width, e.spec.Height),
		"-framerate", fmt.Sprintf("%d", e.spec.FPS),
		"-i", "pipe:0",
	}
	args = append(args, EncoderArgs(e.spec.Codec, e.spec.Quality, e.spec.Container, e.spec.VideoBitrate, e.spec.HW)...)
	args = append(args, "-an", e.spec.OutputPath)

	cmd := exec.CommandContext(ctx, system.FFmpegPath(), args...)
	cmd.Stderr = &e.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("video: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("video: запуск ffmpeg: %w", err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.started = true
	log.Printf("[*] Энкодер запущен: %dx%d@%d -> %s (%s)", e.spec.Width, e.spec.Height, e.spec.FPS, e.spec.OutputPath, e.spec.Codec)
	return nil
}

// WriteFrame submits one raw RGBA frame.
func (e *StreamEncoder) WriteFrame(pix []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.finished {
		return fmt.Errorf("video: encoder not running")
	}
	if len(pix) != e.frameSize {
		return fmt.Errorf("video: frame size %d, expected %d", len(pix), e.frameSize)
	}
	if _, err := e.stdin.Write(pix); err != nil {
		return fmt.Errorf("video: запись кадра %d: %w (%s)", e.written, err, e.tail())
	}
	e.written++
	return nil
}

// FramesWritten returns the number of frames accepted so far.
func (e *StreamEncoder) FramesWritten() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.written
}

// Finish closes the input stream and waits for ffmpeg to flush the container.
func (e *StreamEncoder) Finish() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.finished {
		return fmt.Errorf("video: encoder not running")
	}
	e.finished = true
	e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("video: ffmpeg завершился с ошибкой: %w (%s)", err, e.tail())
	}
	log.Printf("[+++] Кодирование завершено: %d кадров, %s", e.written, e.spec.OutputPath)
	return nil
}

// Cancel kills the process and removes the partial output file.
func (e *StreamEncoder) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.finished {
		return
	}
	e.finished = true
	e.stdin.Close()
	if e.cmd.Process != nil {
		e.cmd.Process.Kill()
	}
	e.cmd.Wait()
	os.Remove(e.spec.OutputPath)
	log.Printf("[-] Кодирование отменено, частичный файл удалён: %s", e.spec.OutputPath)
}

// tail returns the last stderr lines for error context.
func (e *StreamEncoder) tail() string {
	s := e.stderr.String()
	if len(s) > 400 {
		s = s[len(s)-400:]
	}
	return s
}
