package export

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/peopleinfo/freecut/internal/bridge"
	"github.com/peopleinfo/freecut/internal/video"
)

// bridgeSink streams frames to a remote encode server instead of a local
// ffmpeg process. Finish downloads the finished artifact into
// spec.OutputPath, after which the rest of the pipeline (audio mux, rename)
// works exactly as with a local encoder.
type bridgeSink struct {
	client       *bridge.Client
	spec         video.EncodeSpec
	totalFrames  int
	audioBitrate int

	ctx   context.Context
	jobID string
	next  int
}

func newBridgeSink(baseURL string, spec video.EncodeSpec, totalFrames, audioBitrate int) *bridgeSink {
	return &bridgeSink{
		client:       bridge.NewClient(baseURL),
		spec:         spec,
		totalFrames:  totalFrames,
		audioBitrate: audioBitrate,
	}
}

func (b *bridgeSink) Start(ctx context.Context) error {
	jobID, err := b.client.StartJob(ctx, bridge.StartRequest{
		Width:        b.spec.Width,
		Height:       b.spec.Height,
		FPS:          b.spec.FPS,
		TotalFrames:  b.totalFrames,
		Codec:        b.spec.Codec,
		Quality:      b.spec.Quality,
		Container:    b.spec.Container,
		VideoBitrate: b.spec.VideoBitrate,
		AudioBitrate: b.audioBitrate,
	})
	if err != nil {
		return fmt.Errorf("export: удалённый энкодер: %w", err)
	}
	b.ctx = ctx
	b.jobID = jobID
	log.Printf("[*] Удалённое кодирование: задание %s", jobID)
	return nil
}

func (b *bridgeSink) WriteFrame(pix []byte) error {
	if err := b.client.SubmitFrame(b.ctx, b.jobID, b.next, pix); err != nil {
		return err
	}
	b.next++
	return nil
}

func (b *bridgeSink) Finish() error {
	st, err := b.client.Finalize(b.ctx, b.jobID)
	if err != nil {
		return err
	}
	if st.Error != "" {
		return fmt.Errorf("export: удалённый энкодер: %s", st.Error)
	}

	f, err := os.Create(b.spec.OutputPath)
	if err != nil {
		return err
	}
	if err := b.client.Download(b.ctx, b.jobID, f); err != nil {
		f.Close()
		os.Remove(b.spec.OutputPath)
		return fmt.Errorf("export: скачивание результата: %w", err)
	}
	return f.Close()
}

func (b *bridgeSink) Cancel() {
	if b.jobID == "" {
		return
	}
	// Контекст рендера к этому моменту обычно уже отменён.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.client.Cancel(ctx, b.jobID); err != nil {
		log.Printf("[!] Задание %s не отменено на сервере: %v", b.jobID, err)
	}
}
