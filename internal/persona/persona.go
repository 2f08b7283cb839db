// Package persona loads the fixed set of characters the bot can play.
//
// Personas come from a YAML file that is checked against an embedded JSON
// schema before anything else reads it. The Registry is immutable once built.
package persona

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const (
	DefaultVoice        = "alloy"
	DefaultSpeed        = 1.0
	DefaultVisionPrompt = "請用一兩句話描述這張圖片的內容。"
)

// DefaultVoiceTriggers switch a user to voice replies when found anywhere in
// their message.
var DefaultVoiceTriggers = []string{"用語音", "用语音", "語音回覆", "语音回复"}

//go:embed schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("personas.schema.json", schemaJSON)

// Persona is a named system prompt plus presentation metadata.
type Persona struct {
	ID           string  `yaml:"id"`
	Name         string  `yaml:"name"`
	Description  string  `yaml:"description"`
	Prompt       string  `yaml:"prompt"`
	Voice        string  `yaml:"voice"`
	Speed        float64 `yaml:"speed"`
	VisionPrompt string  `yaml:"vision_prompt"`
	CustomName   bool    `yaml:"custom_name"`
}

type file struct {
	VoiceTriggers []string  `yaml:"voice_triggers"`
	Personas      []Persona `yaml:"personas"`
}

type Registry struct {
	order    []string
	byID     map[string]Persona
	triggers []string
}

// Load reads and validates the persona file at path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personas: %w", err)
	}
	return Parse(data)
}

// Parse validates a persona document against the schema, decodes it and
// fills in defaults.
func Parse(data []byte) (*Registry, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("personas parse: %w", err)
	}
	return build(f)
}

// New builds a registry from already-decoded personas. It applies the same
// defaults and uniqueness checks as Parse.
func New(personas []Persona, voiceTriggers []string) (*Registry, error) {
	return build(file{Personas: personas, VoiceTriggers: voiceTriggers})
}

func validateSchema(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("personas parse: %w", err)
	}
	// Round-trip through JSON so the validator sees json.Number values.
	js, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("personas parse: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("personas parse: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("personas invalid: %w", err)
	}
	return nil
}

func build(f file) (*Registry, error) {
	if len(f.Personas) == 0 {
		return nil, fmt.Errorf("personas: at least one persona is required")
	}
	r := &Registry{
		order:    make([]string, 0, len(f.Personas)),
		byID:     make(map[string]Persona, len(f.Personas)),
		triggers: DefaultVoiceTriggers,
	}
	if len(f.VoiceTriggers) > 0 {
		r.triggers = append([]string(nil), f.VoiceTriggers...)
	}
	for i, p := range f.Personas {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("personas[%d]: id must not be empty", i)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("personas[%d]: duplicate id %q", i, p.ID)
		}
		if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Prompt) == "" {
			return nil, fmt.Errorf("personas[%d] (%q): name and prompt are required", i, p.ID)
		}
		if p.Voice == "" {
			p.Voice = DefaultVoice
		}
		if p.Speed == 0 {
			p.Speed = DefaultSpeed
		}
		if p.Speed < 0.25 || p.Speed > 4.0 {
			return nil, fmt.Errorf("personas[%d] (%q): speed %.2f out of range", i, p.ID, p.Speed)
		}
		if p.VisionPrompt == "" {
			p.VisionPrompt = DefaultVisionPrompt
		}
		r.order = append(r.order, p.ID)
		r.byID[p.ID] = p
	}
	return r, nil
}

// Get returns the persona with the given id. A false result means the id is
// unknown, which callers report to the user rather than treat as a fault.
func (r *Registry) Get(id string) (Persona, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// All returns every persona in file order.
func (r *Registry) All() []Persona {
	out := make([]Persona, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) VoiceTriggers() []string {
	return append([]string(nil), r.triggers...)
}

func (r *Registry) Len() int { return len(r.order) }
