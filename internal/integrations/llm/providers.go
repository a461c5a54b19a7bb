/**
 * @description
 * LLM provider registry.
 * Maps a provider name to its OpenAI-compatible API endpoints. Each user
 * brings their own API key and model selection (stored in provider_configs);
 * there is no shared or fallback credential.
 *
 * @dependencies
 * - none (pure data)
 */

package llm

import (
	"fmt"
	"sort"
)

// Provider describes one supported LLM backend
type Provider struct {
	Name      string
	ChatURL   string // OpenAI-compatible chat completions endpoint
	ModelsURL string // OpenAI-compatible model listing endpoint
}

// Credentials is the per-call credential bundle resolved from one user's ProviderConfig
type Credentials struct {
	Provider string
	APIKey   string
	Model    string
}

var providers = map[string]Provider{
	"gemini": {
		Name:      "gemini",
		ChatURL:   "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions",
		ModelsURL: "https://generativelanguage.googleapis.com/v1beta/openai/models",
	},
	"groq": {
		Name:      "groq",
		ChatURL:   "https://api.groq.com/openai/v1/chat/completions",
		ModelsURL: "https://api.groq.com/openai/v1/models",
	},
}

// LookupProvider returns the provider definition for name
func LookupProvider(name string) (Provider, error) {
	p, ok := providers[name]
	if !ok {
		return Provider{}, fmt.Errorf("provider '%s' not supported", name)
	}
	return p, nil
}

// AvailableProviders returns the supported provider names, sorted
func AvailableProviders() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
