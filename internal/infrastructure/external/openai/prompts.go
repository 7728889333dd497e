package openai

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// ChatPrompt is one system/user prompt pair plus sampling settings.
type ChatPrompt struct {
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	System       string  `yaml:"system"`
	UserTemplate string  `yaml:"user_template"`

	tmpl *template.Template
}

// PromptConfig is the prompts.yaml document.
type PromptConfig struct {
	GSTExtraction ChatPrompt `yaml:"gst_extraction"`
}

const builtinPrompts = `
gst_extraction:
  temperature: 0
  max_tokens: 300
  system: >-
    You read Indian tax registration documents and invoices. Extract the
    supplier's GST identification number (GSTIN), its registered legal name
    and the two-digit state code. Respond only with a JSON object with the
    keys "gstin", "legal_name" and "state_code". Use empty strings for
    values that are not in the document.
  user_template: |-
    Document text:
    {{.Text}}
`

// DefaultPrompts returns the prompts compiled into the binary.
func DefaultPrompts() *PromptConfig {
	p, err := parsePrompts(nil)
	if err != nil {
		panic(fmt.Sprintf("built-in prompts: %v", err))
	}
	return p
}

// LoadPrompts overlays the YAML file at path on the built-in prompts and
// compiles the user templates, so a broken template fails at startup.
func LoadPrompts(path string) (*PromptConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	return parsePrompts(data)
}

func parsePrompts(overlay []byte) (*PromptConfig, error) {
	var p PromptConfig
	if err := yaml.Unmarshal([]byte(builtinPrompts), &p); err != nil {
		return nil, err
	}
	if len(overlay) > 0 {
		if err := yaml.Unmarshal(overlay, &p); err != nil {
			return nil, fmt.Errorf("parse prompts: %w", err)
		}
	}
	if err := p.GSTExtraction.compile("gst_extraction"); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *ChatPrompt) compile(name string) error {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(c.UserTemplate)
	if err != nil {
		return fmt.Errorf("prompt %s: %w", name, err)
	}
	c.tmpl = tmpl
	return nil
}

// User renders the user message for data.
func (c *ChatPrompt) User(data interface{}) (string, error) {
	tmpl := c.tmpl
	if tmpl == nil {
		var err error
		if tmpl, err = template.New("prompt").Option("missingkey=error").Parse(c.UserTemplate); err != nil {
			return "", fmt.Errorf("prompt: %w", err)
		}
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return sb.String(), nil
}
