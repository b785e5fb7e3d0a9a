package tasks

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/stackbound/devserve/internal/config"
)

type CheckResult struct {
	Name    string
	Passed  bool
	Message string
}

// PortProber is overridable for tests; the default tries to bind the port
// on localhost.
type PortProber func(port int) error

type Doctor struct {
	cfg       *config.Config
	lookPath  func(string) (string, error)
	probePort PortProber
}

func NewDoctor(cfg *config.Config) *Doctor {
	return &Doctor{
		cfg:      cfg,
		lookPath: exec.LookPath,
		probePort: func(port int) error {
			l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
			if err != nil {
				return err
			}
			return l.Close()
		},
	}
}

// RunChecks verifies the local environment before anything is launched:
// the interpreter resolves, the manage script exists, the configured ports
// are free, and the state directory is writable.
func (d *Doctor) RunChecks() []CheckResult {
	var results []CheckResult

	// Check Interpreter
	path, err := d.lookPath(d.cfg.Python)
	if err != nil {
		results = append(results, CheckResult{"Interpreter", false,
			fmt.Sprintf("%s not found on PATH: %v", d.cfg.Python, err)})
	} else {
		results = append(results, CheckResult{"Interpreter", true,
			fmt.Sprintf("%s resolves to %s", d.cfg.Python, path)})
	}

	// Check Manage Script
	if info, err := os.Stat(d.cfg.ManagePath); err != nil {
		results = append(results, CheckResult{"Manage Script", false,
			fmt.Sprintf("%s: %v", d.cfg.ManagePath, err)})
	} else if info.IsDir() {
		results = append(results, CheckResult{"Manage Script", false,
			fmt.Sprintf("%s is a directory", d.cfg.ManagePath)})
	} else {
		results = append(results, CheckResult{"Manage Script", true,
			fmt.Sprintf("%s exists", d.cfg.ManagePath)})
	}

	// Check Ports
	for _, system := range []string{config.SystemLMS, config.SystemStudio} {
		port := d.cfg.Port(system)
		name := fmt.Sprintf("Port %d (%s)", port, system)
		if err := d.probePort(port); err != nil {
			results = append(results, CheckResult{name, false,
				fmt.Sprintf("port %d is in use: %v", port, err)})
		} else {
			results = append(results, CheckResult{name, true, "Free"})
		}
	}

	// Check State Dir
	stateDir := d.cfg.Runner.StateDir
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		results = append(results, CheckResult{"State Dir", false,
			fmt.Sprintf("cannot create %s: %v", stateDir, err)})
	} else {
		probe := filepath.Join(stateDir, ".doctor-probe")
		if err := os.WriteFile(probe, []byte("ok\n"), 0o644); err != nil {
			results = append(results, CheckResult{"State Dir", false,
				fmt.Sprintf("%s is not writable: %v", stateDir, err)})
		} else {
			os.Remove(probe)
			results = append(results, CheckResult{"State Dir", true,
				fmt.Sprintf("%s is writable", stateDir)})
		}
	}

	return results
}
