package system

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestFFmpegPathEnvOverride(t *testing.T) {
	t.Setenv("FREECUT_FFMPEG", "/opt/custom/ffmpeg")
	if got := FFmpegPath(); got != "/opt/custom/ffmpeg" {
		t.Errorf("переменная окружения должна побеждать: %s", got)
	}

	t.Setenv("FREECUT_FFPROBE", "/opt/custom/ffprobe")
	if got := FFprobePath(); got != "/opt/custom/ffprobe" {
		t.Errorf("переменная окружения должна побеждать: %s", got)
	}
}

func TestFindLatestProject(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, when time.Time) {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("fps: 30"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, when, when); err != nil {
			t.Fatal(err)
		}
	}
	now := time.Now()
	write("old.yaml", now.Add(-2*time.Hour))
	write("fresh.json", now.Add(-time.Minute))
	write("notes.txt", now) // не проект

	got, err := FindLatestProject(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "fresh.json" {
		t.Errorf("должен выбираться самый свежий файл проекта, выбран %s", got)
	}

	if _, err := FindLatestProject(t.TempDir()); err == nil {
		t.Error("папка без проектов должна давать ошибку")
	}
}

func TestCollectHostInfo(t *testing.T) {
	info := CollectHostInfo()
	if info.OS != runtime.GOOS || info.Arch != runtime.GOARCH {
		t.Errorf("OS/Arch должны браться из runtime: %+v", info)
	}
	if info.CPUCount < 0 {
		t.Errorf("отрицательное число CPU: %d", info.CPUCount)
	}
}
