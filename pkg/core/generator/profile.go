package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// DefaultPersonality is used when no personality file can be loaded.
const DefaultPersonality = "You are a helpful AI assistant."

// Profile is the persona text placed at the top of every prompt.
type Profile struct {
	Personality string
	Background  string
}

// LoadProfile reads a JSON document and returns it re-indented.
func LoadProfile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, bytes.TrimSpace(raw), "", "  "); err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}
	return out.String(), nil
}

// LoadProfiles loads the personality and background files. A file that is
// unset or unreadable is logged and replaced by its default.
func LoadProfiles(personalityPath, backgroundPath string, logger *slog.Logger) Profile {
	if logger == nil {
		logger = slog.Default()
	}
	p := Profile{Personality: DefaultPersonality}
	if personalityPath != "" {
		if s, err := LoadProfile(personalityPath); err != nil {
			logger.Error("failed to load personality", "path", personalityPath, "error", err)
		} else {
			p.Personality = s
		}
	}
	if backgroundPath != "" {
		if s, err := LoadProfile(backgroundPath); err != nil {
			logger.Error("failed to load background", "path", backgroundPath, "error", err)
		} else {
			p.Background = s
		}
	}
	return p
}
