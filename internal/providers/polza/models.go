package polza

import (
	"sort"

	"genbot/internal/domain"
)

// Model maps a user-facing model key to the provider's model id and the
// sizing parameters the provider expects for it.
type Model struct {
	Key    string
	ID     string
	Kind   domain.JobKind
	Title  string
	Params map[string]any
}

var registry = map[string]Model{
	"nanabanana": {
		Key:    "nanabanana",
		ID:     "nano-banana",
		Kind:   domain.JobKindImage,
		Title:  "nano banana",
		Params: map[string]any{"size": "1:1", "output_format": "png"},
	},
	"nanabanana_pro": {
		Key:    "nanabanana_pro",
		ID:     "gemini-3-pro-image-preview",
		Kind:   domain.JobKindImage,
		Title:  "nano banana pro",
		Params: map[string]any{"aspect_ratio": "1:1", "resolution": "1K"},
	},
	"seadream": {
		Key:    "seadream",
		ID:     "seedream-v4",
		Kind:   domain.JobKindImage,
		Title:  "seedream",
		Params: map[string]any{"size": "1:1", "imageResolution": "1K"},
	},
	"kling_5": {
		Key:    "kling_5",
		ID:     "kling2.5-image-to-video",
		Kind:   domain.JobKindVideo,
		Title:  "kling 5s",
		Params: map[string]any{"duration": "5", "aspect_ratio": "16:9"},
	},
	"kling_10": {
		Key:    "kling_10",
		ID:     "kling2.5-image-to-video",
		Kind:   domain.JobKindVideo,
		Title:  "kling 10s",
		Params: map[string]any{"duration": "10", "aspect_ratio": "16:9"},
	},
}

// LookupModel resolves a model key.
func LookupModel(key string) (Model, bool) {
	m, ok := registry[key]
	return m, ok
}

// Models returns the registered models of kind, ordered by key.
func Models(kind domain.JobKind) []Model {
	var out []Model
	for _, m := range registry {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func buildPayload(model Model, prompt, sourceURL string, strength float64) map[string]any {
	payload := map[string]any{
		"model":  model.ID,
		"prompt": prompt,
	}
	if sourceURL != "" {
		payload["filesUrl"] = []string{sourceURL}
		payload["strength"] = strength
		if model.Kind == domain.JobKindImage {
			payload["prompt"] = EditInstruction(prompt)
		}
	}
	for k, v := range model.Params {
		payload[k] = v
	}
	return payload
}
