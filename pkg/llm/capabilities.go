package llm

import "strings"

// Capabilities describes which attachment kinds a model accepts inline.
type Capabilities struct {
	Vision bool
	PDF    bool
}

var visionModelMarkers = []string{
	"gpt-4o", "gpt-4.1", "gpt-5", "o3", "o4",
	"claude", "gemini", "pixtral", "llava", "vl", "vision",
}

var pdfModelMarkers = []string{"claude", "gemini"}

// ModelCapabilities guesses multimodal support from the model name. There
// is no capability endpoint on OpenAI-compatible APIs, so a name heuristic
// is the best available signal; unknown models degrade to text markers.
func ModelCapabilities(model string) Capabilities {
	name := strings.ToLower(model)
	// Strip a provider prefix like "openrouter/..." down to the model id.
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}

	caps := Capabilities{}
	for _, marker := range visionModelMarkers {
		if strings.Contains(name, marker) {
			caps.Vision = true
			break
		}
	}
	for _, marker := range pdfModelMarkers {
		if strings.Contains(name, marker) {
			caps.PDF = true
			break
		}
	}
	return caps
}
