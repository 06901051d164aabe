package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/liliang-cn/gptsh/pkg/log"
)

// maxInstructionBytes caps the total instruction text appended to the
// system prompt.
const maxInstructionBytes = 1 << 20

// LoadInstructions reads the agent's instruction files and returns their
// concatenated content. Missing files are skipped with a debug log; the
// total is capped at 1 MiB with a truncation marker.
func LoadInstructions(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		expanded := expandHome(ExpandEnv(p))
		data, err := os.ReadFile(expanded)
		if err != nil {
			log.Debug("skipping instruction file", "path", expanded, "error", err)
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		remaining := maxInstructionBytes - b.Len()
		if len(data) > remaining {
			b.Write(data[:remaining])
			b.WriteString("\n[instructions truncated]")
			break
		}
		b.Write(data)
	}
	return b.String()
}

// SystemPrompt combines the agent's system prompt with its instruction
// files, either part optional.
func SystemPrompt(agent *AgentConfig) string {
	system := ""
	if agent != nil {
		system = agent.Prompt.System
	}
	instructions := ""
	if agent != nil && len(agent.Instructions) > 0 {
		instructions = LoadInstructions(agent.Instructions)
	}
	switch {
	case system != "" && instructions != "":
		return system + "\n\n" + instructions
	case instructions != "":
		return instructions
	default:
		return system
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
