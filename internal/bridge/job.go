// Package bridge поднимает HTTP-протокол экспорта для внешних редакторов:
// задание на кодирование, покадровая отправка, аудио, финализация и прогресс.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Job states reported through the progress endpoint.
const (
	StateReceiving  = "receiving"
	StateFinalizing = "finalizing"
	StateComplete   = "complete"
	StateError      = "error"
	StateCancelled  = "cancelled"
)

// frameSink is the encoder behind a job. Satisfied by video.StreamEncoder.
type frameSink interface {
	Start(ctx context.Context) error
	WriteFrame(pix []byte) error
	Finish() error
	Cancel()
}

// Job is one remote encode session. Frames may arrive out of order and are
// written to the encoder strictly sequentially; resubmitting a frame index is
// a no-op.
type Job struct {
	ID           string
	TotalFrames  int
	Container    string
	OutputPath   string
	AudioBitrate int

	sink frameSink

	mu           sync.Mutex
	state        string
	errMsg       string
	buffer       map[int][]byte
	received     map[int]bool
	next         int
	audioPath    string
	lastActivity time.Time
}

func newJob(id string, totalFrames int, container, outputPath string, sink frameSink) *Job {
	return &Job{
		ID:           id,
		TotalFrames:  totalFrames,
		Container:    container,
		OutputPath:   outputPath,
		sink:         sink,
		state:        StateReceiving,
		buffer:       map[int][]byte{},
		received:     map[int]bool{},
		lastActivity: time.Now(),
	}
}

// SubmitFrame accepts one frame. Out-of-order frames are buffered until the
// gap closes; duplicates are acknowledged without re-encoding.
func (j *Job) SubmitFrame(index int, pix []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastActivity = time.Now()

	if j.state != StateReceiving {
		return fmt.Errorf("bridge: задание %s в состоянии %s", j.ID, j.state)
	}
	if index < 0 || index >= j.TotalFrames {
		return fmt.Errorf("bridge: кадр %d вне диапазона [0, %d)", index, j.TotalFrames)
	}
	if j.received[index] {
		return nil
	}
	j.received[index] = true
	j.buffer[index] = pix

	// Сбрасываем в энкодер всё, что стало последовательным.
	for {
		data, ok := j.buffer[j.next]
		if !ok {
			return nil
		}
		if err := j.sink.WriteFrame(data); err != nil {
			j.fail(err)
			return err
		}
		delete(j.buffer, j.next)
		j.next++
	}
}

// AttachAudio registers the uploaded WAV path for the finalize step.
func (j *Job) AttachAudio(path string) {
	j.mu.Lock()
	j.audioPath = path
	j.lastActivity = time.Now()
	j.mu.Unlock()
}

// Finalize closes the encoder once every frame has been written.
func (j *Job) Finalize() (audioPath string, err error) {
	j.mu.Lock()
	if j.state != StateReceiving {
		state := j.state
		j.mu.Unlock()
		return "", fmt.Errorf("bridge: задание %s в состоянии %s", j.ID, state)
	}
	if j.next != j.TotalFrames {
		missing := j.next
		j.mu.Unlock()
		return "", fmt.Errorf("bridge: получено %d из %d кадров, нет кадра %d", missing, j.TotalFrames, missing)
	}
	j.state = StateFinalizing
	audioPath = j.audioPath
	j.mu.Unlock()

	if err := j.sink.Finish(); err != nil {
		j.mu.Lock()
		j.fail(err)
		j.mu.Unlock()
		return "", err
	}
	return audioPath, nil
}

// Complete marks the artifact ready for download.
func (j *Job) Complete() {
	j.mu.Lock()
	j.state = StateComplete
	j.mu.Unlock()
}

// Cancel aborts the job and discards the partial artifact.
func (j *Job) Cancel() {
	j.mu.Lock()
	if j.state == StateComplete || j.state == StateCancelled {
		j.mu.Unlock()
		return
	}
	j.state = StateCancelled
	j.mu.Unlock()
	j.sink.Cancel()
}

// fail must be called with the mutex held.
func (j *Job) fail(err error) {
	j.state = StateError
	j.errMsg = err.Error()
}

// Status is the progress snapshot of a job.
type Status struct {
	JobID         string  `json:"jobId"`
	State         string  `json:"state"`
	FramesWritten int     `json:"framesWritten"`
	TotalFrames   int     `json:"totalFrames"`
	Progress      float64 `json:"progress"`
	Error         string  `json:"error,omitempty"`
}

// Snapshot returns the current status of the job.
func (j *Job) Snapshot() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := Status{
		JobID:         j.ID,
		State:         j.state,
		FramesWritten: j.next,
		TotalFrames:   j.TotalFrames,
		Error:         j.errMsg,
	}
	if j.TotalFrames > 0 {
		st.Progress = float64(j.next) / float64(j.TotalFrames) * 100
	}
	return st
}

// IdleSince reports the time of the last client activity.
func (j *Job) IdleSince() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastActivity
}
