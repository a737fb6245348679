package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/dwgbatch/dwgbatch/internal/script"
	"gopkg.in/yaml.v3"
)

// Manifest declares a whole batch in one YAML file: which drawings to
// process, which scripts to run against each, and per-batch overrides of
// the persisted settings. Pointer fields distinguish 'not set' from an
// explicit false.
type Manifest struct {
	Drawings []string         `yaml:"drawings"`
	Scripts  []ManifestScript `yaml:"scripts"`

	OutputDir    string `yaml:"output_dir"`
	MaxParallel  int    `yaml:"max_parallel"`
	QSaveAtEnd   *bool  `yaml:"qsave_at_end"`
	QuitAtEnd    *bool  `yaml:"quit_at_end"`
	CopyToOutput *bool  `yaml:"copy_to_output"`
}

// ManifestScript is one script entry of a manifest. Type is inferred from
// the file extension when omitted.
type ManifestScript struct {
	Path   string `yaml:"path"`
	Type   string `yaml:"type"`
	Invoke string `yaml:"invoke"`
	Note   string `yaml:"note"`
}

// LoadManifest reads and parses a batch manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest

	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if len(manifest.Drawings) == 0 {
		return nil, errors.New("manifest lists no drawings")
	}

	return &manifest, nil
}

// Items converts the manifest's script entries into workflow items,
// inferring missing types from file extensions.
func (m *Manifest) Items() ([]script.Item, error) {
	items := make([]script.Item, 0, len(m.Scripts))

	for _, s := range m.Scripts {
		if s.Path == "" {
			return nil, errors.New("manifest script entry has no path")
		}

		var (
			typ script.Type
			err error
		)

		if s.Type != "" {
			typ, err = script.ParseType(s.Type)
		} else {
			typ, err = script.TypeForPath(s.Path)
		}

		if err != nil {
			return nil, err
		}

		items = append(items, script.Item{
			Path:   s.Path,
			Type:   typ,
			Invoke: s.Invoke,
			Note:   s.Note,
		})
	}

	return items, nil
}

// Apply overlays the manifest's overrides onto settings and returns the
// result.
func (m *Manifest) Apply(settings Settings) Settings {
	if m.OutputDir != "" {
		settings.OutputDir = m.OutputDir
	}

	if m.MaxParallel != 0 {
		settings.MaxParallel = m.MaxParallel
	}

	if m.QSaveAtEnd != nil {
		settings.QSaveAtEnd = *m.QSaveAtEnd
	}

	if m.QuitAtEnd != nil {
		settings.QuitAtEnd = *m.QuitAtEnd
	}

	if m.CopyToOutput != nil {
		settings.CopyToOutput = *m.CopyToOutput
	}

	return settings
}
