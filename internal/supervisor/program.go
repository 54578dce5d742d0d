package supervisor

import (
	"fmt"
	"strings"
)

// Program is a process definition under construction. Only Directory and
// Command are required, everything else has a default.
type Program struct {
	name string

	Directory      string
	Command        string
	Environment    Environment
	Processes      int
	Priority       int
	User           string
	LogFolder      string
	LogFileMaxMB   int
	LogFileBackups int
	Autostart      bool
	Autorestart    bool
	StartRetries   int
	StopSignal     string
}

func newProgram(name, owner string) *Program {
	return &Program{
		name:           name,
		Processes:      1,
		Priority:       100,
		User:           owner,
		LogFolder:      "/var/log",
		LogFileMaxMB:   1,
		LogFileBackups: 10,
		Autostart:      true,
		Autorestart:    true,
		StartRetries:   3,
		StopSignal:     "TERM",
	}
}

func (p *Program) Name() string { return p.name }

func (p *Program) record() (ProgramRecord, error) {
	var missing []string
	if p.Directory == "" {
		missing = append(missing, "directory")
	}
	if p.Command == "" {
		missing = append(missing, "command")
	}
	if len(missing) > 0 {
		return ProgramRecord{}, &ErrIncompleteProgram{Name: p.name, Missing: missing}
	}

	return ProgramRecord{
		Name:           p.name,
		Directory:      p.Directory,
		Command:        p.Command,
		Environment:    p.Environment.String(),
		Processes:      p.Processes,
		Priority:       p.Priority,
		User:           p.User,
		LogFolder:      p.LogFolder,
		LogFileMaxMB:   p.LogFileMaxMB,
		LogFileBackups: p.LogFileBackups,
		Autostart:      p.Autostart,
		Autorestart:    p.Autorestart,
		StartRetries:   p.StartRetries,
		StopSignal:     p.StopSignal,
	}, nil
}

// ProgramRecord is a committed program as the config template sees it.
type ProgramRecord struct {
	Name           string
	Directory      string
	Command        string
	Environment    string // KEY="VALUE" pairs joined by commas
	Processes      int
	Priority       int
	User           string
	LogFolder      string
	LogFileMaxMB   int
	LogFileBackups int
	Autostart      bool
	Autorestart    bool
	StartRetries   int
	StopSignal     string
}

// Environment is a mapping of environment variables that remembers the order
// keys were first set in. The zero value is ready to use.
type Environment struct {
	keys   []string
	values map[string]string
}

func (e *Environment) Set(key, value string) {
	if e.values == nil {
		e.values = map[string]string{}
	}
	if _, ok := e.values[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.values[key] = value
}

func (e *Environment) Get(key string) (string, bool) {
	v, ok := e.values[key]
	return v, ok
}

func (e *Environment) Len() int { return len(e.keys) }

// String serializes the environment the way supervisord expects it:
// FOO1="BAR1",FOO2="BAR2".
func (e *Environment) String() string {
	pairs := make([]string, len(e.keys))
	for i, key := range e.keys {
		pairs[i] = fmt.Sprintf("%s=%q", key, e.values[key])
	}
	return strings.Join(pairs, ",")
}

type ErrIncompleteProgram struct {
	Name    string
	Missing []string
}

func (e *ErrIncompleteProgram) Error() string {
	return fmt.Sprintf("program %q is missing required fields: %s", e.Name, strings.Join(e.Missing, ", "))
}
