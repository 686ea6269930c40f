package game

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// GenID returns a short server-generated identifier (connection trace ids and
// the like). Player keys are client-supplied and never minted here.
func GenID() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic("Failed to generate UUID: " + err.Error())
	}

	s := id.String()

	return s[len(s)-8:]
}

// cleanName trims whitespace and caps a display name at 20 runes.
func cleanName(name string) string {
	name = strings.TrimSpace(name)

	runes := []rune(name)
	if len(runes) > 20 {
		name = string(runes[:20])
	}

	return name
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("Failed to marshal: " + err.Error())
	}

	return data
}
