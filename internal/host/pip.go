package host

import (
	"context"
	"fmt"

	"github.com/jveski/provision/internal/log"
	"github.com/jveski/provision/internal/role"
)

// PipInstaller installs python packages through pip.
type PipInstaller struct {
	Exec role.Executor
	Sudo bool
}

func (p *PipInstaller) EnsurePackageInstalled(ctx context.Context, name string) error {
	if _, err := p.Exec.Execute(ctx, role.Command{Line: "pip show " + name, Quiet: true}); err == nil {
		return nil // already installed
	}

	log.FromContext(ctx).Info().Str("package", name).Msg("installing python package")
	if _, err := p.Exec.Execute(ctx, role.Command{Line: "pip install " + name, Sudo: p.Sudo, Quiet: true}); err != nil {
		return fmt.Errorf("pip install %s: %w", name, err)
	}
	return nil
}
