package models

// Recipe is a framework declared in YAML: an ordered list of console steps.
type Recipe struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Steps       []*Step `yaml:"steps"`
}

type Step struct {
	Run   string `yaml:"run"`
	Label string `yaml:"label,omitempty"`
	// Check fetches the console output after the command is sent.
	Check bool `yaml:"check,omitempty"`
	// FailOn fails the step when the fetched output contains the marker.
	// Implies Check.
	FailOn string `yaml:"fail_on,omitempty"`
}
