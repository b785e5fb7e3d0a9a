// Package command builds argument vectors for the web framework's
// management CLI. It is pure construction: nothing here launches a process
// or inspects its result.
package command

import (
	"fmt"
	"strings"
)

// System identifies which application the management command targets.
type System string

const (
	LMS    System = "lms"
	Studio System = "studio"
)

// DBAlias returns the app label used for database-facing management
// commands. Studio's apps are registered under "cms".
func (s System) DBAlias() string {
	if s == Studio {
		return "cms"
	}
	return string(s)
}

// Command is one process-launch request: a program, its argv tail, and
// optional text to feed on stdin.
type Command struct {
	Program string
	Args    []string
	Stdin   string
}

// String renders the command the way a shell user would type it.
func (c Command) String() string {
	return c.Program + " " + strings.Join(c.Args, " ")
}

// Builder constructs management commands for a given interpreter and
// manage-script path.
type Builder struct {
	Python     string
	ManagePath string
}

// Manage builds the common `<python> <manage> <system> --settings=<s>`
// prefix and appends extra arguments.
func (b Builder) Manage(system System, settings string, extra ...string) Command {
	args := []string{b.ManagePath, string(system), fmt.Sprintf("--settings=%s", settings)}
	args = append(args, extra...)
	return Command{Program: b.Python, Args: args}
}

// Runserver builds the development-server command for a system. The
// contracts flag is on unless explicitly disabled.
func (b Builder) Runserver(system System, settings string, port int, contracts bool) Command {
	extra := []string{
		"runserver",
		"--traceback",
		"--pythonpath=.",
		fmt.Sprintf("0.0.0.0:%d", port),
	}
	if contracts {
		extra = append(extra, "--contracts")
	}
	return b.Manage(system, settings, extra...)
}

// Worker builds the background-worker command. Workers always run against
// the LMS application.
func (b Builder) Worker(settings string) Command {
	return b.Manage(LMS, settings,
		"celery", "worker", "--beat", "--loglevel=INFO", "--pythonpath=.")
}

// SyncDB builds the schema-sync-plus-migrate command for one system.
func (b Builder) SyncDB(system System, settings string) Command {
	cmd := b.Manage(system, settings,
		"syncdb", "--migrate", "--traceback", "--pythonpath=.")
	// Address the system by its app label; "studio" is not a label the
	// framework knows for database commands.
	cmd.Args[1] = system.DBAlias()
	return cmd
}

// CollectStatic builds the static-asset collection command for one system.
func (b Builder) CollectStatic(system System, settings string) Command {
	return b.Manage(system, settings,
		"collectstatic", "--noinput", "--traceback", "--pythonpath=.")
}

// UpdateAssets builds the one-shot asset build for the given systems.
// Collection into the static root is skipped when skipCollect is set.
func (b Builder) UpdateAssets(systems []System, settings string, skipCollect bool) Command {
	extra := []string{"update_assets"}
	for _, s := range systems {
		extra = append(extra, string(s))
	}
	if skipCollect {
		extra = append(extra, "--skip-collect")
	}
	extra = append(extra, "--pythonpath=.")
	return b.Manage(LMS, settings, extra...)
}

// WatchAssets builds the background asset-watcher command covering the
// given systems.
func (b Builder) WatchAssets(systems []System, settings string) Command {
	extra := []string{"watch_assets"}
	for _, s := range systems {
		extra = append(extra, string(s))
	}
	extra = append(extra, "--pythonpath=.")
	return b.Manage(LMS, settings, extra...)
}

// CheckSettings builds a framework shell invocation that tries to import
// the settings module; a failing import exits non-zero.
func (b Builder) CheckSettings(system System, settings string) Command {
	cmd := b.Manage(system, settings, "shell", "--plain", "--pythonpath=.")
	cmd.Stdin = fmt.Sprintf("import %s.envs.%s\n", system.DBAlias(), settings)
	return cmd
}
