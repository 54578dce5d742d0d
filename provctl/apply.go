package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/jveski/provision/internal/host"
	"github.com/jveski/provision/internal/log"
	"github.com/jveski/provision/internal/manifest"
	"github.com/jveski/provision/internal/role"
	"github.com/jveski/provision/internal/supervisor"
)

func applyCmd(c *cli.Context) error {
	m, err := loadManifest(c)
	if err != nil {
		return err
	}

	local := host.NewLocal()
	return apply(c.Context, m, local, &host.PipInstaller{Exec: local, Sudo: true})
}

func apply(ctx context.Context, m *manifest.Manifest, h supervisor.Host, installer role.PackageInstaller) error {
	run := role.NewRun(m.Owner)
	ctx = log.WithRun(ctx, run.ID)
	logger := log.FromContext(ctx)
	logger.Info().Str("owner", run.Owner).Str("manifest", m.Hash).Msg("starting run")

	if m.Supervisor != nil {
		if err := applySupervisor(log.WithRole(ctx, "supervisor"), run, m.Supervisor, h, installer); err != nil {
			return err
		}
	}

	logger.Info().Msg("run complete")
	return nil
}

func applySupervisor(ctx context.Context, run *role.Run, spec *manifest.Supervisor, h supervisor.Host, installer role.PackageInstaller) error {
	r := supervisor.New(run, &supervisor.State{}, h, installer)

	if spec.Install {
		if err := r.Provision(ctx); err != nil {
			return err
		}
	}

	r.Configure(spec.ConfigDir, spec.User)
	for _, p := range spec.Programs {
		if _, err := r.WithProgram(p.Name, programBuilder(p)); err != nil {
			return err
		}
	}

	if err := r.Cleanup(ctx); err != nil {
		return fmt.Errorf("syncing supervisord: %w", err)
	}
	return nil
}

func programBuilder(spec *manifest.Program) func(*supervisor.Program) error {
	return func(p *supervisor.Program) error {
		p.Directory = spec.Directory
		p.Command = spec.Command
		for _, kv := range spec.EnvPairs() {
			p.Environment.Set(kv[0], kv[1])
		}

		if spec.Processes > 0 {
			p.Processes = spec.Processes
		}
		if spec.Priority > 0 {
			p.Priority = spec.Priority
		}
		if spec.User != "" {
			p.User = spec.User
		}
		if spec.LogFolder != "" {
			p.LogFolder = spec.LogFolder
		}
		if spec.Autostart != nil {
			p.Autostart = *spec.Autostart
		}
		if spec.Autorestart != nil {
			p.Autorestart = *spec.Autorestart
		}
		if spec.StartRetries > 0 {
			p.StartRetries = spec.StartRetries
		}
		if spec.StopSignal != "" {
			p.StopSignal = spec.StopSignal
		}
		return nil
	}
}
