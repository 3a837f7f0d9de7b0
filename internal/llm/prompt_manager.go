// Package llm renders review prompts and calls the configured language model.
package llm

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed prompts/*.prompt
var promptFiles embed.FS

// ModelProvider selects a provider-specific variant of a prompt.
type ModelProvider string

// PromptKey names a prompt.
type PromptKey string

const (
	DefaultProvider  ModelProvider = "default"
	CodeReviewPrompt PromptKey     = "code_review"
)

// PromptManager holds the embedded prompt templates. Files are named
// key_provider.prompt; the "default" provider is the fallback.
type PromptManager struct {
	prompts map[PromptKey]map[ModelProvider]*template.Template
}

// NewPromptManager parses every embedded prompt.
func NewPromptManager() (*PromptManager, error) {
	pm := &PromptManager{prompts: make(map[PromptKey]map[ModelProvider]*template.Template)}

	entries, err := promptFiles.ReadDir("prompts")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded prompts: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		key, provider, err := splitPromptName(name)
		if err != nil {
			return nil, err
		}
		content, err := promptFiles.ReadFile("prompts/" + name)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt %s: %w", name, err)
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse prompt %s: %w", name, err)
		}
		if pm.prompts[key] == nil {
			pm.prompts[key] = make(map[ModelProvider]*template.Template)
		}
		pm.prompts[key][provider] = tmpl
	}

	return pm, nil
}

// splitPromptName splits "code_review_default.prompt" at the last underscore.
func splitPromptName(fileName string) (PromptKey, ModelProvider, error) {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	i := strings.LastIndex(base, "_")
	if i <= 0 || i == len(base)-1 {
		return "", "", fmt.Errorf("invalid prompt file name %q, want key_provider.prompt", fileName)
	}
	return PromptKey(base[:i]), ModelProvider(base[i+1:]), nil
}

// Render executes the prompt for provider, or the default variant.
func (pm *PromptManager) Render(key PromptKey, provider ModelProvider, data any) (string, error) {
	variants, ok := pm.prompts[key]
	if !ok {
		return "", fmt.Errorf("no prompt registered for %q", key)
	}
	tmpl, ok := variants[provider]
	if !ok {
		if tmpl, ok = variants[DefaultProvider]; !ok {
			return "", fmt.Errorf("no %q prompt for provider %q and no default", key, provider)
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %q: %w", key, err)
	}
	return buf.String(), nil
}
