package cost

import "github.com/charmbracelet/catwalk/pkg/catwalk"

func builtin() []catwalk.Provider {
	return []catwalk.Provider{
		{
			Name:                "Anthropic",
			ID:                  catwalk.InferenceProviderAnthropic,
			DefaultLargeModelID: "claude-sonnet-4-5",
			Models: []catwalk.Model{
				{ID: "claude-sonnet-4-5", Name: "Claude Sonnet 4.5", CostPer1MIn: 3, CostPer1MOut: 15, CostPer1MInCached: 3.75, CostPer1MOutCached: 0.3},
				{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", CostPer1MIn: 3, CostPer1MOut: 15, CostPer1MInCached: 3.75, CostPer1MOutCached: 0.3},
				{ID: "claude-opus-4-1-20250805", Name: "Claude Opus 4.1", CostPer1MIn: 15, CostPer1MOut: 75, CostPer1MInCached: 18.75, CostPer1MOutCached: 1.5},
				{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", CostPer1MIn: 15, CostPer1MOut: 75, CostPer1MInCached: 18.75, CostPer1MOutCached: 1.5},
				{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", CostPer1MIn: 0.8, CostPer1MOut: 4, CostPer1MInCached: 1, CostPer1MOutCached: 0.08},
				{ID: "claude-haiku-4-5", Name: "Claude Haiku 4.5", CostPer1MIn: 1, CostPer1MOut: 5, CostPer1MInCached: 1.25, CostPer1MOutCached: 0.1},
			},
		},
		{
			Name:                "OpenAI",
			ID:                  catwalk.InferenceProviderOpenAI,
			DefaultLargeModelID: "gpt-5",
			Models: []catwalk.Model{
				{ID: "gpt-5", Name: "GPT-5", CostPer1MIn: 1.25, CostPer1MOut: 10, CostPer1MOutCached: 0.125},
				{ID: "gpt-5-codex", Name: "GPT-5 Codex", CostPer1MIn: 1.25, CostPer1MOut: 10, CostPer1MOutCached: 0.125},
				{ID: "gpt-5-mini", Name: "GPT-5 Mini", CostPer1MIn: 0.25, CostPer1MOut: 2, CostPer1MOutCached: 0.025},
				{ID: "gpt-4.1", Name: "GPT-4.1", CostPer1MIn: 2, CostPer1MOut: 8, CostPer1MOutCached: 0.5},
				{ID: "gpt-4.1-mini", Name: "GPT-4.1 Mini", CostPer1MIn: 0.4, CostPer1MOut: 1.6, CostPer1MOutCached: 0.1},
				{ID: "gpt-4o", Name: "GPT-4o", CostPer1MIn: 2.5, CostPer1MOut: 10, CostPer1MOutCached: 1.25},
				{ID: "o3", Name: "o3", CostPer1MIn: 2, CostPer1MOut: 8, CostPer1MOutCached: 0.5},
			},
		},
		{
			Name:                "Gemini",
			ID:                  catwalk.InferenceProviderGemini,
			DefaultLargeModelID: "gemini-2.5-pro",
			Models: []catwalk.Model{
				{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", CostPer1MIn: 1.25, CostPer1MOut: 10, CostPer1MOutCached: 0.31},
				{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", CostPer1MIn: 0.3, CostPer1MOut: 2.5, CostPer1MOutCached: 0.075},
			},
		},
		{
			Name:                "Z.AI",
			ID:                  catwalk.InferenceProvider("zai"),
			DefaultLargeModelID: "glm-4.6",
			Models: []catwalk.Model{
				{ID: "glm-4.6", Name: "GLM-4.6", CostPer1MIn: 0.6, CostPer1MOut: 2.2, CostPer1MOutCached: 0.11},
				{ID: "glm-4.5", Name: "GLM-4.5", CostPer1MIn: 0.6, CostPer1MOut: 2.2, CostPer1MOutCached: 0.11},
				{ID: "glm-4.5-air", Name: "GLM-4.5-Air", CostPer1MIn: 0.2, CostPer1MOut: 1.1, CostPer1MOutCached: 0.03},
			},
		},
	}
}
