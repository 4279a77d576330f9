package pagedbuffer

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/SimonWaldherr/pagedbuffer/internal/vpm"
)

// FileConfig is the on-disk YAML shape for configuring a Buffer, matching
// the teacher's own pattern of loading typed config from .yml fixtures.
type FileConfig struct {
	VPM struct {
		PageSize       int64 `yaml:"page_size"`
		MaxLoadedPages int   `yaml:"max_loaded_pages"`
	} `yaml:"vpm"`
	ChangeStrategy struct {
		NoEdits     string `yaml:"no_edits"`
		WithEdits   string `yaml:"with_edits"`
		SizeChanged string `yaml:"size_changed"`
	} `yaml:"change_strategy"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("pagedbuffer: read config %s: %w", path, err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("pagedbuffer: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// VPMConfig converts the file's VPM section into vpm.Config.
func (c FileConfig) VPMConfig() vpm.Config {
	return vpm.Config{PageSize: c.VPM.PageSize, MaxLoadedPages: c.VPM.MaxLoadedPages}
}

// ChangeStrategyConfig converts the file's change-strategy section into a
// ChangeStrategy, defaulting unrecognized or empty entries to Warn.
func (c FileConfig) ChangeStrategyConfig() ChangeStrategy {
	return ChangeStrategy{
		NoEdits:     parseDecision(c.ChangeStrategy.NoEdits),
		WithEdits:   parseDecision(c.ChangeStrategy.WithEdits),
		SizeChanged: parseDecision(c.ChangeStrategy.SizeChanged),
	}
}

func parseDecision(s string) ChangeDecision {
	switch s {
	case "ignore":
		return Ignore
	case "warn":
		return Warn
	case "rebase":
		return Rebase
	case "detach":
		return Detach
	default:
		return Warn
	}
}

// MarksJSON exports the mark registry as JSON bytes, the spec's required
// "JSON or equivalent" persistence format.
func (b *Buffer) MarksJSON() ([]byte, error) {
	return json.Marshal(b.MarksForPersistence())
}

// LoadMarksJSON replaces the mark registry from JSON bytes in the format
// produced by MarksJSON.
func (b *Buffer) LoadMarksJSON(data []byte) error {
	var snap map[string]int64
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("pagedbuffer: parse marks JSON: %w", err)
	}
	b.SetMarksFromPersistence(snap)
	return nil
}

// MarksYAML exports the mark registry as YAML bytes, an alternate
// persistence encoding alongside the spec's required JSON form.
func (b *Buffer) MarksYAML() ([]byte, error) {
	return yaml.Marshal(b.MarksForPersistence())
}

// LoadMarksYAML replaces the mark registry from YAML bytes in the format
// produced by MarksYAML.
func (b *Buffer) LoadMarksYAML(data []byte) error {
	var snap map[string]int64
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("pagedbuffer: parse marks YAML: %w", err)
	}
	b.SetMarksFromPersistence(snap)
	return nil
}
