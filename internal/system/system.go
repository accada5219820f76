// Package system отвечает за окружение хоста: поиск бинарей ffmpeg/ffprobe,
// определение аппаратного энкодера, системные лимиты и сводку о машине.
package system

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// FFmpegPath resolves the ffmpeg binary: env override, local bin directory,
// then PATH.
func FFmpegPath() string {
	return resolveBinary("FREECUT_FFMPEG", "ffmpeg")
}

// FFprobePath resolves the ffprobe binary the same way.
func FFprobePath() string {
	return resolveBinary("FREECUT_FFPROBE", "ffprobe")
}

func resolveBinary(envKey, name string) string {
	if p := os.Getenv(envKey); p != "" {
		return p
	}
	local := filepath.Join("bin", fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH), name)
	if _, err := os.Stat(local); err == nil {
		return local
	}
	return name
}

// FindLatestProject returns the most recently modified project file
// (.yaml, .yml or .json) in the directory.
func FindLatestProject(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("чтение папки %s: %w", dir, err)
	}

	var latest string
	var latestTime time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestTime) {
			latest = filepath.Join(dir, e.Name())
			latestTime = info.ModTime()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("в папке %s не найдено файлов проекта", dir)
	}
	return latest, nil
}

// HWAccel describes the detected hardware encode capability.
type HWAccel struct {
	Encoder   string // имя видеоэнкодера ffmpeg
	Accel     string // значение -hwaccel, пустое для software
	Available bool
}

// DetectHardwareEncoder probes the platform-specific encoder candidates and
// returns the first one ffmpeg advertises. Falls back to libx264. Callers
// cache the result per session; no global state is kept here.
func DetectHardwareEncoder() HWAccel {
	type candidate struct {
		encoder string
		accel   string
	}

	var candidates []candidate
	switch runtime.GOOS {
	case "windows":
		candidates = []candidate{
			{"h264_nvenc", "cuda"},
			{"h264_amf", "d3d11va"},
			{"h264_qsv", "qsv"},
		}
	case "darwin":
		candidates = []candidate{
			{"h264_videotoolbox", "videotoolbox"},
		}
	default:
		candidates = []candidate{
			{"h264_nvenc", "cuda"},
			{"h264_vaapi", "vaapi"},
		}
	}

	out, err := exec.Command(FFmpegPath(), "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return HWAccel{Encoder: "libx264"}
	}
	listing := string(out)
	for _, c := range candidates {
		if strings.Contains(listing, c.encoder) {
			return HWAccel{Encoder: c.encoder, Accel: c.accel, Available: true}
		}
	}
	return HWAccel{Encoder: "libx264"}
}

// CheckFFmpeg reports whether ffmpeg can be executed and its version line.
func CheckFFmpeg() (bool, string) {
	out, err := exec.Command(FFmpegPath(), "-version").CombinedOutput()
	if err != nil {
		return false, ""
	}
	line := strings.SplitN(string(out), "\n", 2)[0]
	return true, strings.TrimSpace(line)
}

// InitResourceLimits raises the open-file limit. Decode lanes and segment
// encoders hold many descriptors at once.
func InitResourceLimits() {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Printf("[!] Не удалось получить лимит файлов: %v", err)
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Printf("[!] Не удалось установить лимит файлов: %v", err)
	}
}

// HostInfo is the machine summary exposed by the bridge server and the CLI
// banner.
type HostInfo struct {
	Platform    string `json:"platform"`
	OS          string `json:"os"`
	Arch        string `json:"architecture"`
	CPUCount    int    `json:"cpuCount"`
	MemoryTotal uint64 `json:"memoryTotal"`
}

// CollectHostInfo gathers platform data. Partial failures degrade to zero
// values instead of failing the caller.
func CollectHostInfo() HostInfo {
	info := HostInfo{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
	if h, err := host.Info(); err == nil {
		info.Platform = h.Platform
	}
	if n, err := cpu.Counts(true); err == nil {
		info.CPUCount = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryTotal = vm.Total
	}
	return info
}
