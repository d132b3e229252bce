package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ConsoleID identifies a console session. The API returns numeric ids but
// nothing here depends on that.
type ConsoleID string

func (id *ConsoleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ConsoleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("console id must be a number or string: %w", err)
	}
	*id = ConsoleID(n.String())
	return nil
}

func (id ConsoleID) String() string {
	return string(id)
}

type Console struct {
	ID         ConsoleID `json:"id"`
	Executable string    `json:"executable"`
	Name       string    `json:"name,omitempty"`
}

// IsShell reports whether commands sent to the console are run by a POSIX shell.
func (c Console) IsShell() bool {
	return c.Executable == "bash" || c.Executable == "sh"
}

type WebApp struct {
	DomainName      string `json:"domain_name"`
	SourceDirectory string `json:"source_directory"`
	VirtualenvPath  string `json:"virtualenv_path"`
}
