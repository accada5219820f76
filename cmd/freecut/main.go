package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/peopleinfo/freecut/internal/bridge"
	"github.com/peopleinfo/freecut/internal/config"
	"github.com/peopleinfo/freecut/internal/export"
	"github.com/peopleinfo/freecut/internal/system"
	"github.com/peopleinfo/freecut/internal/timeline"
)

func main() {
	// Увеличиваем лимиты системы (для macOS/Linux)
	system.InitResourceLimits()

	// Создаем нужные директории, если их нет
	for _, d := range []string{"input", "output"} {
		os.MkdirAll(d, 0755)
	}

	projectPtr := flag.String("project", "", "Путь к файлу композиции (.yaml или .json)")
	outputPtr := flag.String("output", "", "Путь к результату (если пусто, генерируется автоматически в output/)")
	modePtr := flag.String("mode", "export", "Режим: export, audio, thumbnail, serve")
	framePtr := flag.Int("frame", 0, "Номер кадра для -mode thumbnail")
	codecPtr := flag.String("codec", "avc", "Видеокодек: avc, hevc, vp8, vp9, av1")
	qualityPtr := flag.String("quality", "high", "Качество: low, medium, high")
	containerPtr := flag.String("container", "mp4", "Контейнер: mp4, webm, mov, mkv")
	widthPtr := flag.Int("width", 0, "Ширина результата (0 - как у холста)")
	heightPtr := flag.Int("height", 0, "Высота результата (0 - как у холста)")
	workersPtr := flag.Int("workers", runtime.NumCPU(), "Потоки прогрева медиа")
	hwPtr := flag.Bool("hw", true, "Использовать аппаратный энкодер, если доступен")
	bridgePtr := flag.String("bridge", "", "URL сервера экспорта (если пусто, кодируем локально)")
	addrPtr := flag.String("addr", ":8090", "Адрес HTTP-сервера для -mode serve")
	flag.Parse()

	if ok, version := system.CheckFFmpeg(); ok {
		fmt.Printf("[*] %s\n", version)
	} else {
		log.Printf("[!] ffmpeg не найден: экспорт и превью работать не будут")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *modePtr == "serve" {
		runServer(ctx, *addrPtr)
		return
	}

	project := *projectPtr
	if project == "" {
		// Без явного -project берём самый свежий проект из input/.
		latest, err := system.FindLatestProject("input")
		if err != nil {
			log.Fatalf("[-] Ошибка: %v (укажите композицию через -project)", err)
		}
		project = latest
		fmt.Printf("[*] Выбран проект: %s\n", project)
	}
	comp, err := timeline.Load(project)
	if err != nil {
		log.Fatalf("[-] Ошибка загрузки композиции: %v", err)
	}
	fmt.Printf("[*] Композиция: %dx%d@%d, %d кадров, %d дорожек\n",
		comp.Width, comp.Height, comp.FPS, comp.DurationInFrames, len(comp.Tracks))

	switch *modePtr {
	case "export":
		settings := config.Default()
		settings.Codec = *codecPtr
		settings.Quality = *qualityPtr
		settings.Container = *containerPtr
		settings.Width = *widthPtr
		settings.Height = *heightPtr
		settings.Workers = *workersPtr
		settings.UseHardwareAccel = *hwPtr
		settings.BridgeURL = *bridgePtr
		settings.OutputPath = *outputPtr
		if settings.OutputPath == "" {
			settings.OutputPath = defaultOutput(project, settings.Ext())
		}
		runExport(ctx, comp, settings)

	case "audio":
		out := *outputPtr
		if out == "" {
			out = defaultOutput(project, ".wav")
		}
		if err := export.ExportAudio(ctx, comp, out); err != nil {
			log.Fatalf("[-] Ошибка экспорта аудио: %v", err)
		}
		fmt.Printf("[+++] Успех! Результат: %s\n", out)

	case "thumbnail":
		out := *outputPtr
		if out == "" {
			out = defaultOutput(project, fmt.Sprintf("_frame%d.png", *framePtr))
		}
		if err := export.SaveThumbnail(ctx, comp, *framePtr, out); err != nil {
			log.Fatalf("[-] Ошибка рендера кадра: %v", err)
		}
		fmt.Printf("[+++] Успех! Результат: %s\n", out)

	default:
		log.Fatalf("[-] Неизвестный режим: %s", *modePtr)
	}
}

func runExport(ctx context.Context, comp *timeline.Composition, settings config.ExportSettings) {
	session, err := export.NewSession(comp, settings)
	if err != nil {
		log.Fatalf("[-] Ошибка: %v", err)
	}

	start := time.Now()
	lastPercent := -5.0
	session.OnProgress(func(p export.Progress) {
		switch p.Phase {
		case export.PhaseEncoding:
			if p.Progress-lastPercent >= 5 {
				lastPercent = p.Progress
				fmt.Printf("[*] Кадр %d/%d (%.0f%%)\n", p.CurrentFrame+1, p.TotalFrames, p.Progress)
			}
		case export.PhaseFinalizing:
			fmt.Printf("[*] Финализация контейнера...\n")
		}
	})

	if err := session.Export(ctx); err != nil {
		if errors.Is(err, export.ErrRequiresRicherEnvironment) {
			log.Fatalf("[-] Окружение не готово: %v. Установите ffmpeg или укажите FREECUT_FFMPEG", err)
		}
		log.Fatalf("[-] Ошибка экспорта: %v", err)
	}
	fmt.Printf("[+++] Успех! Результат: %s (за %.1fs)\n", settings.OutputPath, time.Since(start).Seconds())
}

func runServer(ctx context.Context, addr string) {
	srv := bridge.NewServer("output")
	go srv.RunCleaner(ctx, time.Minute)

	httpSrv := &http.Server{Addr: addr, Handler: srv.Routes()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("[*] Сервер экспорта слушает %s\n", addr)
	fmt.Printf("[*] Система: %+v\n", system.CollectHostInfo())
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[-] Сервер: %v", err)
	}
	fmt.Printf("[*] Сервер остановлен\n")
}

func defaultOutput(projectPath, ext string) string {
	base := filepath.Base(projectPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.ReplaceAll(name, " ", "_")
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join("output", fmt.Sprintf("%s_%s%s", name, timestamp, ext))
}
