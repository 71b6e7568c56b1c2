package runtime

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/p-blackswan/welcome-agent/internal/event"
)

// RoutingConfig is the optional routing file.
type RoutingConfig struct {
	Runtime RuntimeSettings `yaml:"runtime"`
	Routing []Rule          `yaml:"routing"`
}

// RuntimeSettings maps to the runtime.Config fields in YAML.
type RuntimeSettings struct {
	EventBufferSize int `yaml:"event_buffer_size"`
}

// DefaultRules sends every notice to the welcome handler, which picks out
// joins itself, and messages to the command handler. Other post types are
// broadcast.
func DefaultRules(noticeHandler, commandHandler string) []Rule {
	return []Rule{
		{Type: event.TypeNotice, Handlers: []string{noticeHandler}},
		{Type: event.TypeMessage, Handlers: []string{commandHandler}},
	}
}

// LoadConfig reads and parses a YAML routing file, expanding env vars.
func LoadConfig(path string) (*RoutingConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("routing: read %s: %w", path, err)
	}
	cfg, err := LoadConfigBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("routing: %s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigBytes parses a YAML routing config from bytes.
func LoadConfigBytes(data []byte) (*RoutingConfig, error) {
	expanded := expandEnvVars(string(data))
	var cfg RoutingConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return &cfg, nil
}

// Apply overrides base with the values set in the file.
func (rc *RoutingConfig) Apply(base Config) Config {
	if rc.Runtime.EventBufferSize > 0 {
		base.EventBufferSize = rc.Runtime.EventBufferSize
	}
	return base
}

// envVarPattern matches ${VAR_NAME} and $VAR_NAME.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces ${VAR} and $VAR with the corresponding environment
// variable value. Missing vars are replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "${")
		name = strings.TrimSuffix(name, "}")
		name = strings.TrimPrefix(name, "$")
		return os.Getenv(name)
	})
}
