package models_test

import (
	"encoding/json"
	"testing"

	"github.com/mpataki/padeploy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleID_Unmarshal(t *testing.T) {
	var consoles []models.Console
	require.NoError(t, json.Unmarshal([]byte(`[{"id": 31415, "executable": "bash"}, {"id": "abc", "executable": "python3.10"}]`), &consoles))

	assert.Equal(t, models.ConsoleID("31415"), consoles[0].ID)
	assert.Equal(t, models.ConsoleID("abc"), consoles[1].ID)

	var c models.Console
	assert.Error(t, json.Unmarshal([]byte(`{"id": true}`), &c))
}

func TestConsole_IsShell(t *testing.T) {
	cases := map[string]bool{
		"bash":       true,
		"sh":         true,
		"python3.10": false,
		"":           false,
		"zsh":        false,
	}
	for executable, want := range cases {
		assert.Equal(t, want, models.Console{Executable: executable}.IsShell(), executable)
	}
}
