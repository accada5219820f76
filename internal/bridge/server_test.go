package bridge

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/peopleinfo/freecut/internal/video"
)

type recordingSink struct {
	mu        sync.Mutex
	started   bool
	finished  bool
	cancelled bool
	frames    [][]byte
	out       string
}

func (r *recordingSink) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
	return nil
}

func (r *recordingSink) WriteFrame(pix []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, pix)
	return nil
}

func (r *recordingSink) Finish() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = true
	// имитируем готовый артефакт, чтобы download было что отдавать
	return os.WriteFile(r.out, []byte("video"), 0o644)
}

func (r *recordingSink) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = true
}

func newTestServer(t *testing.T) (*Server, *httptest.Server, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	srv := NewServer(t.TempDir())
	srv.hw.Available = false
	srv.newSink = func(spec video.EncodeSpec) frameSink {
		sink.out = spec.OutputPath
		return sink
	}
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return srv, ts, sink
}

func frame(b byte) []byte {
	return bytes.Repeat([]byte{b}, 4*4*4)
}

func TestJobLifecycleWithOutOfOrderFrames(t *testing.T) {
	_, ts, sink := newTestServer(t)
	client := NewClient(ts.URL)
	ctx := context.Background()

	jobID, err := client.StartJob(ctx, StartRequest{
		Width: 4, Height: 4, FPS: 30, TotalFrames: 3,
		Codec: "avc", Quality: "high", Container: "mp4",
	})
	if err != nil {
		t.Fatal(err)
	}
	if jobID == "" {
		t.Fatal("пустой jobId")
	}

	// кадры приходят не по порядку: 2, 0, 1
	for _, idx := range []int{2, 0, 1} {
		if err := client.SubmitFrame(ctx, jobID, idx, frame(byte(idx))); err != nil {
			t.Fatalf("кадр %d: %v", idx, err)
		}
	}

	st, err := client.Finalize(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != StateComplete {
		t.Errorf("состояние %s, хотели complete", st.State)
	}
	if !sink.finished {
		t.Error("энкодер должен быть финализирован")
	}
	for i, f := range sink.frames {
		if f[0] != byte(i) {
			t.Errorf("кадр %d записан с содержимым кадра %d: буфер обязан восстанавливать порядок", i, f[0])
		}
	}

	var buf bytes.Buffer
	if err := client.Download(ctx, jobID, &buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "video" {
		t.Errorf("скачан не тот артефакт: %q", buf.String())
	}
}

func TestDuplicateFrameIsIdempotent(t *testing.T) {
	_, ts, sink := newTestServer(t)
	client := NewClient(ts.URL)
	ctx := context.Background()

	jobID, err := client.StartJob(ctx, StartRequest{Width: 4, Height: 4, FPS: 30, TotalFrames: 2})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := client.SubmitFrame(ctx, jobID, 0, frame(7)); err != nil {
			t.Fatalf("повторная отправка должна быть no-op: %v", err)
		}
	}
	if len(sink.frames) != 1 {
		t.Errorf("кадр закодирован %d раз, хотели 1", len(sink.frames))
	}
}

func TestStartRequestCarriesAudioBitrate(t *testing.T) {
	srv, ts, _ := newTestServer(t)
	client := NewClient(ts.URL)

	jobID, err := client.StartJob(context.Background(), StartRequest{
		Width: 4, Height: 4, FPS: 30, TotalFrames: 1, AudioBitrate: 96000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := srv.job(jobID).AudioBitrate; got != 96000 {
		t.Errorf("битрейт аудио потерялся между запросом и заданием: %d", got)
	}
}

func TestFinalizeRejectsMissingFrames(t *testing.T) {
	_, ts, _ := newTestServer(t)
	client := NewClient(ts.URL)
	ctx := context.Background()

	jobID, err := client.StartJob(ctx, StartRequest{Width: 4, Height: 4, FPS: 30, TotalFrames: 3})
	if err != nil {
		t.Fatal(err)
	}
	client.SubmitFrame(ctx, jobID, 0, frame(0))
	client.SubmitFrame(ctx, jobID, 2, frame(2)) // кадр 1 так и не пришёл

	if _, err := client.Finalize(ctx, jobID); err == nil {
		t.Error("финализация с дырой в кадрах должна отклоняться")
	}
}

func TestCancelStopsJob(t *testing.T) {
	_, ts, sink := newTestServer(t)
	client := NewClient(ts.URL)
	ctx := context.Background()

	jobID, err := client.StartJob(ctx, StartRequest{Width: 4, Height: 4, FPS: 30, TotalFrames: 10})
	if err != nil {
		t.Fatal(err)
	}
	client.SubmitFrame(ctx, jobID, 0, frame(0))
	if err := client.Cancel(ctx, jobID); err != nil {
		t.Fatal(err)
	}
	if !sink.cancelled {
		t.Error("отмена должна остановить энкодер")
	}
	if err := client.SubmitFrame(ctx, jobID, 1, frame(1)); err == nil {
		t.Error("кадры после отмены должны отклоняться")
	}

	st, err := client.Progress(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != StateCancelled {
		t.Errorf("состояние %s, хотели cancelled", st.State)
	}
}

func TestStaleJobCleanup(t *testing.T) {
	srv, ts, _ := newTestServer(t)
	client := NewClient(ts.URL)
	ctx := context.Background()

	jobID, err := client.StartJob(ctx, StartRequest{Width: 4, Height: 4, FPS: 30, TotalFrames: 10})
	if err != nil {
		t.Fatal(err)
	}

	job := srv.job(jobID)
	job.mu.Lock()
	job.lastActivity = job.lastActivity.Add(-2 * staleJobTTL)
	job.mu.Unlock()

	srv.CleanStaleJobs()
	if srv.job(jobID) != nil {
		t.Error("протухшее задание должно быть удалено")
	}
}
