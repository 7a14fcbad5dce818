package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format identifies a plan file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatFromPath infers the encoding from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported plan file extension %q (want .yaml, .yml, .json or .toml)", filepath.Ext(path))
	}
}

// fileTask mirrors Task for decoding. Parallelizable is a pointer so an omitted
// field can default to true.
type fileTask struct {
	ID               string   `json:"id" yaml:"id" toml:"id"`
	Label            string   `json:"label" yaml:"label" toml:"label"`
	Prompt           string   `json:"prompt" yaml:"prompt" toml:"prompt"`
	Agent            string   `json:"agent" yaml:"agent" toml:"agent"`
	DependsOn        []string `json:"depends_on" yaml:"depends_on" toml:"depends_on"`
	EstimatedMinutes int      `json:"estimated_minutes" yaml:"estimated_minutes" toml:"estimated_minutes"`
	Parallelizable   *bool    `json:"parallelizable" yaml:"parallelizable" toml:"parallelizable"`
	Status           string   `json:"status" yaml:"status" toml:"status"`
}

type filePhase struct {
	ID     string     `json:"id" yaml:"id" toml:"id"`
	Name   string     `json:"name" yaml:"name" toml:"name"`
	Tasks  []fileTask `json:"tasks" yaml:"tasks" toml:"tasks"`
	Status string     `json:"status" yaml:"status" toml:"status"`
}

// filePlan accepts either phases or a flat task list, which becomes a single
// phase named "main".
type filePlan struct {
	ID     string      `json:"id" yaml:"id" toml:"id"`
	Name   string      `json:"name" yaml:"name" toml:"name"`
	Phases []filePhase `json:"phases" yaml:"phases" toml:"phases"`
	Tasks  []fileTask  `json:"tasks" yaml:"tasks" toml:"tasks"`
}

// Load reads and decodes a plan file. A plan without an id takes the file's
// base name, so checkpoints for the same file share a key across runs.
func Load(path string) (*Plan, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	p, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", path, err)
	}
	if p.ID == "" {
		p.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, nil
}

// Decode parses plan bytes in the given format and applies defaults.
func Decode(data []byte, format Format) (*Plan, error) {
	var fp filePlan
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &fp); err != nil {
			return nil, err
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&fp); err != nil {
			return nil, err
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &fp); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported plan format %q", format)
	}
	return fp.toPlan(), nil
}

func (fp filePlan) toPlan() *Plan {
	p := &Plan{ID: fp.ID, Name: fp.Name}
	phases := fp.Phases
	if len(fp.Tasks) > 0 {
		phases = append(phases, filePhase{ID: "main", Name: "main", Tasks: fp.Tasks})
	}
	for i, fph := range phases {
		ph := Phase{
			ID:     fph.ID,
			Name:   fph.Name,
			Status: PhaseStatus(fph.Status),
		}
		if ph.ID == "" {
			ph.ID = fmt.Sprintf("phase-%d", i+1)
		}
		if ph.Name == "" {
			ph.Name = ph.ID
		}
		for _, ft := range fph.Tasks {
			ph.Tasks = append(ph.Tasks, ft.toTask())
		}
		p.Phases = append(p.Phases, ph)
	}
	p.Normalize()
	return p
}

func (ft fileTask) toTask() Task {
	t := Task{
		ID:               ft.ID,
		Label:            ft.Label,
		Prompt:           ft.Prompt,
		Agent:            ft.Agent,
		DependsOn:        ft.DependsOn,
		EstimatedMinutes: ft.EstimatedMinutes,
		Parallelizable:   true,
		Status:           TaskStatus(ft.Status),
	}
	if ft.Parallelizable != nil {
		t.Parallelizable = *ft.Parallelizable
	}
	if t.Label == "" {
		t.Label = t.ID
	}
	return t
}
