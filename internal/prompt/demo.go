package prompt

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/user/ohime/pkg/llm"
)

//go:embed demo.yaml
var defaultDemo []byte

// Demo holds the fixed few-shot turns framing the operator prompts.
type Demo struct {
	Basic      []llm.Message `yaml:"basic"`
	Aggressive []llm.Message `yaml:"aggressive"`
}

// LoadDemo reads demo turns from a YAML file. An empty path returns the
// built-in set.
func LoadDemo(path string) (*Demo, error) {
	data := defaultDemo
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read demo file: %w", err)
		}
	}
	return ParseDemo(data)
}

// ParseDemo decodes demo turns from YAML.
func ParseDemo(data []byte) (*Demo, error) {
	var d Demo
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse demo: %w", err)
	}
	for i, m := range append(append([]llm.Message{}, d.Basic...), d.Aggressive...) {
		switch m.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		default:
			return nil, fmt.Errorf("demo turn %d: unknown role %q", i, m.Role)
		}
	}
	return &d, nil
}
