// Package templates loads deck template definitions from YAML files. A
// template seeds the first user message of a new session so common deck
// shapes don't have to be described from scratch every time.
package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template describes one reusable deck shape
type Template struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	SlideCount  int    `yaml:"slide_count"`
	Theme       string `yaml:"theme,omitempty"`
	Prompt      string `yaml:"prompt"`
}

// Validate checks required template fields
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template name is required")
	}
	if strings.TrimSpace(t.Prompt) == "" {
		return fmt.Errorf("template %s: prompt is required", t.Name)
	}
	if t.SlideCount < 0 {
		return fmt.Errorf("template %s: slide_count cannot be negative", t.Name)
	}
	return nil
}

// Seed renders the template's opening user message
func (t Template) Seed(topic string) string {
	prompt := strings.ReplaceAll(t.Prompt, "{topic}", topic)
	if t.SlideCount > 0 && !strings.Contains(prompt, "slide") {
		prompt = fmt.Sprintf("%s Target around %d slides.", prompt, t.SlideCount)
	}
	return prompt
}

// LoadFile parses one template YAML file
func LoadFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading template file %s: %w", path, err)
	}

	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("error parsing template %s: %w", path, err)
	}
	if t.Name == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadDir loads every *.yaml / *.yml template in a directory, sorted by
// name. A missing directory yields an empty list, not an error.
func LoadDir(dir string) ([]Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading template directory %s: %w", dir, err)
	}

	var templates []Template
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		t, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}

	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })
	return templates, nil
}

// Find returns the template with the given name, case-insensitively
func Find(templates []Template, name string) (*Template, bool) {
	for i := range templates {
		if strings.EqualFold(templates[i].Name, name) {
			return &templates[i], true
		}
	}
	return nil, false
}
