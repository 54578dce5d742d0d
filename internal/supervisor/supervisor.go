// Package supervisor provisions supervisord: it collects the daemon's settings
// and program definitions over a run, renders the config file and init script
// when they changed, and restarts the daemon only if something was written.
package supervisor

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jveski/provision/internal/log"
	"github.com/jveski/provision/internal/role"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

// Templates holds the config file and init script templates.
var Templates, _ = fs.Sub(templateFiles, "templates")

// Host is the set of target host capabilities the role needs.
type Host interface {
	role.Executor
	role.Renderer
	role.ProcessChecker
	role.TemplateLoader
}

type Role struct {
	run       *role.Run
	state     *State
	host      Host
	installer role.PackageInstaller
}

// New builds the role and makes its templates available to the host.
func New(run *role.Run, state *State, host Host, installer role.PackageInstaller) *Role {
	host.RegisterTemplates(Templates)
	return &Role{run: run, state: state, host: host, installer: installer}
}

func (r *Role) State() *State { return r.state }

// Provision installs supervisord.
func (r *Role) Provision(ctx context.Context) error {
	if err := r.installer.EnsurePackageInstalled(ctx, "supervisor"); err != nil {
		return fmt.Errorf("installing supervisor: %w", err)
	}
	return nil
}

// Configure replaces the daemon settings. Empty arguments fall back to the
// run owner's home directory and account.
func (r *Role) Configure(directory, user string) {
	if directory == "" {
		directory = r.run.HomeDir()
	}
	if user == "" {
		user = r.run.Owner
	}

	r.state.Config = &Config{
		ConfigFileDirectory: directory,
		LogFile:             LogFile,
		LogFileBackups:      10,
		LogFileMaxMB:        50,
		LogLevel:            "info",
		PidFile:             PidFile,
		User:                user,
	}
	r.EnsureConfigUpdate()
}

// WithProgram declares a program. fn fills in its fields; once fn returns the
// program is validated and appended to the run's program list. Nothing is
// committed if fn fails or panics.
func (r *Role) WithProgram(name string, fn func(p *Program) error) (p *Program, err error) {
	p = newProgram(name, r.run.Owner)

	completed := false
	defer func() {
		if !completed || err != nil {
			return
		}

		rec, verr := p.record()
		if verr != nil {
			err = verr
			return
		}
		r.state.Programs = append(r.state.Programs, rec)
		r.EnsureConfigUpdate()
	}()

	err = fn(p)
	completed = true
	return p, err
}

func (r *Role) EnsureConfigUpdate() { r.state.MustUpdateConfig = true }

func (r *Role) EnsureRestart() { r.state.MustRestart = true }

// UpdateConfigFile renders supervisord.conf and requests a restart if it
// changed.
func (r *Role) UpdateConfigFile(ctx context.Context) error {
	if r.state.Config == nil {
		if len(r.state.Programs) == 0 {
			return nil // nothing to render yet
		}
		r.Configure("", "")
	}

	opts := &ConfigOptions{Config: *r.state.Config}
	if len(r.state.Programs) > 0 {
		opts.Programs = append([]ProgramRecord(nil), r.state.Programs...)
	}

	changed, err := r.host.RenderFile(ctx, role.File{
		Template: configTemplate,
		Path:     r.state.Config.ConfigFile(),
		Options:  opts,
		Owner:    r.run.Owner,
		Sudo:     true,
	})
	if err != nil {
		return fmt.Errorf("rendering config file: %w", err)
	}
	if !changed {
		return nil
	}

	log.FromContext(ctx).Info().Str("path", r.state.Config.ConfigFile()).Int("programs", len(opts.Programs)).Msg("updated supervisord config")
	r.EnsureRestart()
	return nil
}

// UpdateInitScript renders the init script pointing at the config file in
// directory, registering the service and requesting a restart if it changed.
func (r *Role) UpdateInitScript(ctx context.Context, directory string) error {
	changed, err := r.host.RenderFile(ctx, role.File{
		Template: initTemplate,
		Path:     InitScriptPath,
		Options:  &initOptions{ConfigFile: (&Config{ConfigFileDirectory: directory}).ConfigFile()},
		Owner:    r.run.Owner,
		Sudo:     true,
	})
	if err != nil {
		return fmt.Errorf("rendering init script: %w", err)
	}
	if !changed {
		return nil
	}

	for _, line := range []string{
		"chmod +x " + InitScriptPath,
		"update-rc.d " + ProcessName + " defaults",
	} {
		if _, err := r.host.Execute(ctx, role.Command{Line: line, Sudo: true, Quiet: true}); err != nil {
			return fmt.Errorf("installing init script: %w", err)
		}
	}

	log.FromContext(ctx).Info().Str("path", InitScriptPath).Msg("updated supervisord init script")
	r.EnsureRestart()
	return nil
}

// Cleanup flushes whatever the run asked for: pending file updates first, then
// a restart if one was requested along the way.
func (r *Role) Cleanup(ctx context.Context) error {
	if r.state.MustUpdateConfig {
		directory := r.run.HomeDir()
		if r.state.Config != nil {
			directory = r.state.Config.ConfigFileDirectory
		}

		if err := r.UpdateInitScript(ctx, directory); err != nil {
			return err
		}
		if err := r.UpdateConfigFile(ctx); err != nil {
			return err
		}
		r.state.MustUpdateConfig = false
	}

	if r.state.MustRestart {
		if err := r.Restart(ctx); err != nil {
			return err
		}
		r.state.MustRestart = false
	}

	return nil
}

// Restart starts supervisord, or restarts it if it's already running.
func (r *Role) Restart(ctx context.Context) error {
	running, err := r.host.IsProcessRunning(ctx, ProcessName)
	if err != nil {
		return fmt.Errorf("checking whether %s is running: %w", ProcessName, err)
	}

	action := "start"
	if running {
		action = "restart"
	}

	log.FromContext(ctx).Info().Str("action", action).Msg("cycling supervisord")
	if _, err := r.host.Execute(ctx, role.Command{Line: InitScriptPath + " " + action, Sudo: true}); err != nil {
		return fmt.Errorf("%s %s: %w", action, ProcessName, err)
	}
	return nil
}
