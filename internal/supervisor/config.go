package supervisor

import "path"

const (
	ConfigFileName = "supervisord.conf"
	InitScriptPath = "/etc/init.d/supervisord"
	LogFile        = "/var/log/supervisord.log"
	PidFile        = "/var/run/supervisord.pid"
	ProcessName    = "supervisord"

	configTemplate = "supervisord.conf.tmpl"
	initTemplate   = "supervisord.init.tmpl"
)

// Config holds the [supervisord] section of the rendered config file.
type Config struct {
	ConfigFileDirectory string
	LogFile             string
	LogFileBackups      int
	LogFileMaxMB        int
	LogLevel            string
	PidFile             string
	User                string
}

func (c *Config) ConfigFile() string { return path.Join(c.ConfigFileDirectory, ConfigFileName) }

// State is everything the supervisor role accumulates over one run. It is
// owned by the caller driving the run and handed to the role by pointer.
type State struct {
	MustUpdateConfig bool
	MustRestart      bool
	Config           *Config
	Programs         []ProgramRecord
}

// ConfigOptions is the data the config template is executed with.
type ConfigOptions struct {
	Config
	Programs []ProgramRecord
}

type initOptions struct {
	ConfigFile string
}
