package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// EnvVarRegex matches ${VAR_NAME}
var EnvVarRegex = regexp.MustCompile(`\$\{([A-Z0-9_]+)\}`)

// LoadConfig loads, defaults and resolves the configuration at path. A
// missing file is not an error: the built-in defaults describe a stock
// checkout, so the runner works with no config at all.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyDefaults(&cfg)
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	resolvedData, err := ResolveEnvVars(data)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve env vars: %w", err)
	}

	if err := yaml.Unmarshal(resolvedData, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// ResolveEnvVars replaces ${VAR} with environment variable values
func ResolveEnvVars(data []byte) ([]byte, error) {
	content := string(data)
	var missingVars []string

	matches := EnvVarRegex.FindAllStringSubmatch(content, -1)
	for _, match := range matches {
		varName := match[1]
		if _, ok := os.LookupEnv(varName); !ok {
			found := false
			for _, v := range missingVars {
				if v == varName {
					found = true
					break
				}
			}
			if !found {
				missingVars = append(missingVars, varName)
			}
		}
	}

	if len(missingVars) > 0 {
		return nil, fmt.Errorf("missing environment variables: %v", missingVars)
	}

	resolved := EnvVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]
		val, _ := os.LookupEnv(varName)
		return val
	})

	return []byte(resolved), nil
}

// Hash returns a short stable digest of the effective configuration,
// suitable for audit fields.
func Hash(cfg *Config) string {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "unknown"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:8]
}
