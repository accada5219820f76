package timeline

import (
	"os"
	"path/filepath"
	"testing"
)

const yamlProject = `
fps: 30
durationInFrames: 90
width: 1280
height: 720
tracks:
  - id: t0
    order: 0
    items:
      - id: clip
        type: video
        from: 0
        durationInFrames: 90
        src: movie.mp4
      - id: dimmed
        type: shape
        from: 0
        durationInFrames: 90
        shape: rect
        fill: "#112233"
        opacity: 0.5
`

const jsonProject = `{
  "fps": 30,
  "durationInFrames": 60,
  "width": 640,
  "height": 480,
  "tracks": [
    {"id": "t0", "order": 0, "visible": false, "items": [
      {"id": "a", "type": "image", "from": 0, "durationInFrames": 60, "src": "a.png", "speed": 2}
    ]}
  ]
}`

func writeProject(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	comp, err := Load(writeProject(t, "p.yaml", yamlProject))
	if err != nil {
		t.Fatal(err)
	}

	tr := comp.Tracks[0]
	if !tr.Visible {
		t.Error("видимость дорожки по умолчанию — true")
	}
	clip := tr.Items[0]
	if clip.Opacity != 1 || clip.Speed != 1 {
		t.Errorf("непрозрачность и скорость по умолчанию равны 1: %+v", clip)
	}
	if got := tr.Items[1].Opacity; got != 0.5 {
		t.Errorf("явная непрозрачность должна сохраняться: %v", got)
	}
}

func TestLoadJSONHonorsExplicitValues(t *testing.T) {
	comp, err := Load(writeProject(t, "p.json", jsonProject))
	if err != nil {
		t.Fatal(err)
	}
	if comp.Tracks[0].Visible {
		t.Error("явное visible: false не должно перетираться дефолтом")
	}
	if got := comp.Tracks[0].Items[0].Speed; got != 2 {
		t.Errorf("явная скорость должна сохраняться: %v", got)
	}
}

func TestLoadRejectsInvalidComposition(t *testing.T) {
	bad := `{"fps": 0, "durationInFrames": 10, "width": 10, "height": 10, "tracks": []}`
	if _, err := Load(writeProject(t, "bad.json", bad)); err == nil {
		t.Error("композиция с нулевым fps должна отклоняться")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	comp, err := Load(writeProject(t, "p.yaml", yamlProject))
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "saved.yaml")
	if err := Save(comp, out); err != nil {
		t.Fatal(err)
	}
	again, err := Load(out)
	if err != nil {
		t.Fatal(err)
	}
	if again.DurationInFrames != comp.DurationInFrames || len(again.Tracks) != len(comp.Tracks) {
		t.Error("сохранение и загрузка должны быть обратимы")
	}
	if again.Tracks[0].Items[1].Opacity != 0.5 {
		t.Error("непрозрачность потерялась при сохранении")
	}
}
