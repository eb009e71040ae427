package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompt names looked up by the classification adapter.
const (
	PromptAssistantInstructions = "assistant_instructions_json"
	PromptParseEntry            = "parse_entry_prompt"
)

// DefaultAssistantInstructions is used when the prompts file has no instructions entry.
const DefaultAssistantInstructions = "Classify content into categories based on their content."

// Prompt is one named template in the prompts file.
type Prompt struct {
	Template    string `yaml:"template"`
	Description string `yaml:"description,omitempty"`
	Active      *bool  `yaml:"active,omitempty"`
}

// Prompts maps prompt names to templates.
type Prompts map[string]Prompt

type promptsFile struct {
	Prompts Prompts `yaml:"prompts"`
}

// Template returns the active template called name.
func (p Prompts) Template(name string) (string, bool) {
	pr, ok := p[name]
	if !ok || pr.Template == "" {
		return "", false
	}
	if pr.Active != nil && !*pr.Active {
		return "", false
	}
	return pr.Template, true
}

// DefaultPrompts returns the prompts written by `config init`.
func DefaultPrompts() Prompts {
	return Prompts{
		PromptAssistantInstructions: {
			Template: "You label personal voice notes. Reply with JSON only, shaped as " +
				`{"classifications":[{"text":"<excerpt>","category":"<label>"}]}` +
				", where label is one of diary, calendar, meeting, note, todo, other.",
			Description: "System instructions for the classification assistant",
		},
		PromptParseEntry: {
			Template:    "Classify the following entry:\n\n{{.EntryContent}}",
			Description: "User message wrapping one transcript",
		},
	}
}

// ReadPrompts loads the YAML prompts file at path.
// A missing file yields DefaultPrompts.
func ReadPrompts(path string) (Prompts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultPrompts(), nil
		}
		return nil, fmt.Errorf("reading prompts file: %w", err)
	}

	var f promptsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding prompts file %s: %w", path, err)
	}
	if f.Prompts == nil {
		f.Prompts = Prompts{}
	}
	return f.Prompts, nil
}

// WritePrompts writes prompts to path as YAML, refusing to overwrite an existing file.
func WritePrompts(path string, prompts Prompts) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("prompts file already exists at %s", path)
	}
	data, err := yaml.Marshal(promptsFile{Prompts: prompts})
	if err != nil {
		return fmt.Errorf("encoding prompts: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing prompts file: %w", err)
	}
	return nil
}
