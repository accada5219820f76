package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peopleinfo/freecut/internal/system"
	"github.com/peopleinfo/freecut/internal/video"
)

// staleJobTTL is how long an idle job survives before the cleaner drops it.
const staleJobTTL = 10 * time.Minute

// StartRequest describes a new encode job.
type StartRequest struct {
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FPS          int    `json:"fps"`
	TotalFrames  int    `json:"totalFrames"`
	Codec        string `json:"codec"`
	Quality      string `json:"quality"`
	Container    string `json:"container"`
	VideoBitrate int    `json:"videoBitrate,omitempty"`
	AudioBitrate int    `json:"audioBitrate,omitempty"`
}

// Server exposes the encode job protocol over HTTP.
type Server struct {
	dir string
	hw  system.HWAccel

	mu   sync.Mutex
	jobs map[string]*Job

	// подменяется в тестах
	newSink func(spec video.EncodeSpec) frameSink
}

// NewServer creates a server writing artifacts under dir.
func NewServer(dir string) *Server {
	return &Server{
		dir:  dir,
		hw:   system.DetectHardwareEncoder(),
		jobs: map[string]*Job{},
		newSink: func(spec video.EncodeSpec) frameSink {
			return video.NewStreamEncoder(spec)
		},
	}
}

// Routes returns the HTTP handler with all endpoints registered.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /export/start", s.handleStart)
	mux.HandleFunc("POST /export/frame/{jobID}", s.handleFrame)
	mux.HandleFunc("POST /export/audio/{jobID}", s.handleAudio)
	mux.HandleFunc("POST /export/finalize/{jobID}", s.handleFinalize)
	mux.HandleFunc("POST /export/cancel/{jobID}", s.handleCancel)
	mux.HandleFunc("GET /export/progress/{jobID}", s.handleProgress)
	mux.HandleFunc("GET /export/download/{jobID}", s.handleDownload)
	mux.HandleFunc("GET /system/info", s.handleSystemInfo)
	return mux
}

// CleanStaleJobs drops jobs idle beyond the TTL. Run it periodically.
func (s *Server) CleanStaleJobs() {
	cutoff := time.Now().Add(-staleJobTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if job.IdleSince().Before(cutoff) {
			job.Cancel()
			os.Remove(job.OutputPath)
			delete(s.jobs, id)
			log.Printf("[-] Задание %s удалено по бездействию", id)
		}
	}
}

// RunCleaner runs the stale job sweep until the context ends.
func (s *Server) RunCleaner(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.CleanStaleJobs()
		}
	}
}

func (s *Server) job(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "некорректный JSON: %v", err)
		return
	}
	if req.Width <= 0 || req.Height <= 0 || req.FPS <= 0 || req.TotalFrames <= 0 {
		httpError(w, http.StatusBadRequest, "width/height/fps/totalFrames должны быть положительными")
		return
	}
	if req.Container == "" {
		req.Container = "mp4"
	}
	if req.Codec == "" {
		req.Codec = "avc"
	}
	if req.Quality == "" {
		req.Quality = "high"
	}

	id := uuid.NewString()
	out := filepath.Join(s.dir, id+containerExt(req.Container))
	sink := s.newSink(video.EncodeSpec{
		Width:        req.Width,
		Height:       req.Height,
		FPS:          req.FPS,
		Codec:        req.Codec,
		Quality:      req.Quality,
		Container:    req.Container,
		VideoBitrate: req.VideoBitrate,
		OutputPath:   out,
		HW:           s.hw,
	})
	// Энкодер живёт дольше запроса, поэтому не привязываем его к r.Context().
	if err := sink.Start(context.Background()); err != nil {
		httpError(w, http.StatusInternalServerError, "запуск энкодера: %v", err)
		return
	}

	job := newJob(id, req.TotalFrames, req.Container, out, sink)
	job.AudioBitrate = req.AudioBitrate
	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()

	log.Printf("[*] Задание %s: %dx%d@%d, %d кадров", id, req.Width, req.Height, req.FPS, req.TotalFrames)
	writeJSON(w, http.StatusOK, map[string]string{"jobId": id})
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	job := s.job(r.PathValue("jobID"))
	if job == nil {
		httpError(w, http.StatusNotFound, "задание не найдено")
		return
	}
	index, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "параметр index обязателен")
		return
	}
	pix, err := io.ReadAll(r.Body)
	if err != nil {
		httpError(w, http.StatusBadRequest, "чтение кадра: %v", err)
		return
	}
	if err := job.SubmitFrame(index, pix); err != nil {
		httpError(w, http.StatusConflict, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	job := s.job(r.PathValue("jobID"))
	if job == nil {
		httpError(w, http.StatusNotFound, "задание не найдено")
		return
	}
	path := filepath.Join(s.dir, job.ID+".wav")
	f, err := os.Create(path)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "создание файла: %v", err)
		return
	}
	_, err = io.Copy(f, r.Body)
	f.Close()
	if err != nil {
		os.Remove(path)
		httpError(w, http.StatusBadRequest, "чтение аудио: %v", err)
		return
	}
	job.AttachAudio(path)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	job := s.job(r.PathValue("jobID"))
	if job == nil {
		httpError(w, http.StatusNotFound, "задание не найдено")
		return
	}

	audioPath, err := job.Finalize()
	if err != nil {
		httpError(w, http.StatusConflict, "%v", err)
		return
	}

	if audioPath != "" {
		muxed := strings.TrimSuffix(job.OutputPath, containerExt(job.Container)) + ".muxed" + containerExt(job.Container)
		err := video.MuxAudio(r.Context(), job.OutputPath, audioPath, muxed, job.Container, job.AudioBitrate, system.FFmpegPath())
		if err != nil {
			// Остаёмся с видео без звука, как и при локальном экспорте.
			log.Printf("[!] Задание %s: аудио не примиксовано: %v", job.ID, err)
		} else {
			os.Remove(job.OutputPath)
			os.Rename(muxed, job.OutputPath)
		}
		os.Remove(audioPath)
	}

	job.Complete()
	log.Printf("[+++] Задание %s завершено: %s", job.ID, job.OutputPath)
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	job := s.job(r.PathValue("jobID"))
	if job == nil {
		httpError(w, http.StatusNotFound, "задание не найдено")
		return
	}
	job.Cancel()
	os.Remove(job.OutputPath)
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	job := s.job(r.PathValue("jobID"))
	if job == nil {
		httpError(w, http.StatusNotFound, "задание не найдено")
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	job := s.job(r.PathValue("jobID"))
	if job == nil {
		httpError(w, http.StatusNotFound, "задание не найдено")
		return
	}
	if job.Snapshot().State != StateComplete {
		httpError(w, http.StatusConflict, "задание ещё не завершено")
		return
	}
	w.Header().Set("Content-Type", containerMime(job.Container))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "export"+containerExt(job.Container)))
	http.ServeFile(w, r, job.OutputPath)
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	ok, version := system.CheckFFmpeg()
	writeJSON(w, http.StatusOK, map[string]any{
		"host":            system.CollectHostInfo(),
		"ffmpegAvailable": ok,
		"ffmpegVersion":   version,
		"hwEncoder":       s.hw.Encoder,
		"hwAvailable":     s.hw.Available,
	})
}

func containerExt(container string) string {
	switch container {
	case "webm":
		return ".webm"
	case "mov":
		return ".mov"
	case "mkv":
		return ".mkv"
	default:
		return ".mp4"
	}
}

func containerMime(container string) string {
	switch container {
	case "webm":
		return "video/webm"
	case "mov":
		return "video/quicktime"
	case "mkv":
		return "video/x-matroska"
	default:
		return "video/mp4"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
