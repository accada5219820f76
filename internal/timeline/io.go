package timeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults that cannot be expressed as Go zero values. Both decoders funnel
// through these so YAML projects and JSON compositions behave identically.

func (t *Track) UnmarshalYAML(value *yaml.Node) error {
	type rawTrack Track
	raw := rawTrack{Visible: true}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*t = Track(raw)
	return nil
}

func (t *Track) UnmarshalJSON(data []byte) error {
	type rawTrack Track
	raw := rawTrack{Visible: true}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Track(raw)
	return nil
}

func (it *Item) UnmarshalYAML(value *yaml.Node) error {
	type rawItem Item
	raw := rawItem{Opacity: 1, Speed: 1}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*it = Item(raw)
	return nil
}

func (it *Item) UnmarshalJSON(data []byte) error {
	type rawItem Item
	raw := rawItem{Opacity: 1, Speed: 1}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*it = Item(raw)
	return nil
}

// Load reads a composition from a YAML or JSON project file and validates it.
func Load(path string) (*Composition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var comp Composition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &comp)
	default:
		err = yaml.Unmarshal(data, &comp)
	}
	if err != nil {
		return nil, fmt.Errorf("разбор проекта %s: %w", path, err)
	}

	if err := comp.Validate(); err != nil {
		return nil, err
	}
	return &comp, nil
}

// Save writes a composition to a YAML project file.
func Save(comp *Composition, path string) error {
	data, err := yaml.Marshal(comp)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
