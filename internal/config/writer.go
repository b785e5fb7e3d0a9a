package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const defaultConfigTemplate = `# devserve configuration.
# Every value shown here is the built-in default; delete anything you do
# not need to override. ${VAR} references are resolved from the
# environment at load time.

python: python
manage_path: manage.py

settings:
  default: devstack
  optimized: devstack_optimized
  optimized_assets: test_static_optimized
  worker: dev_with_worker

systems:
  lms:
    port: 8000
  studio:
    port: 8001

runner:
  state_dir: .devserve
  shutdown_grace_ms: 5000
  health:
    enabled: true
    interval_ms: 2000
    timeout_ms: 1000
    fail_after: 3
    recover_after: 2

observability:
  logging:
    console:
      enabled: true
      level: info
    gelf:
      enabled: false
      host: ""
      port: 12201
      protocol: udp
      facility: devserve
  metrics:
    prometheus:
      enabled: false
      port: 9390
      path: /metrics
      bind: 127.0.0.1
    influxdb:
      enabled: false
      url: ""
      token: ""
      org: ""
      bucket: ""
      push_interval_seconds: 15
`

// WriteDefault writes a commented starter config to path. Refuses to
// clobber an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat config path: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
