package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"

	"github.com/urfave/cli/v2"

	"github.com/jveski/provision/internal/manifest"
	"github.com/jveski/provision/internal/render"
	"github.com/jveski/provision/internal/role"
	"github.com/jveski/provision/internal/supervisor"
)

func renderCmd(c *cli.Context) error {
	m, err := loadManifest(c)
	if err != nil {
		return err
	}
	return renderConfig(c.Context, m, c.App.Writer)
}

// renderConfig runs the supervisor role against a host that only renders, and
// prints the config file instead of writing it.
func renderConfig(ctx context.Context, m *manifest.Manifest, w io.Writer) error {
	if m.Supervisor == nil {
		return fmt.Errorf("the manifest has no [supervisor] section")
	}

	h := &printingHost{engine: render.NewEngine(), w: w}
	r := supervisor.New(role.NewRun(m.Owner), &supervisor.State{}, h, nil)

	r.Configure(m.Supervisor.ConfigDir, m.Supervisor.User)
	for _, p := range m.Supervisor.Programs {
		if _, err := r.WithProgram(p.Name, programBuilder(p)); err != nil {
			return err
		}
	}
	return r.UpdateConfigFile(ctx)
}

// printingHost writes rendered files to w and refuses to run anything.
type printingHost struct {
	engine *render.Engine
	w      io.Writer
}

func (p *printingHost) RegisterTemplates(fsys fs.FS) { p.engine.Register(fsys) }

func (p *printingHost) RenderFile(ctx context.Context, f role.File) (bool, error) {
	out, err := p.engine.Render(f.Template, f.Options)
	if err != nil {
		return false, err
	}
	fmt.Fprintf(p.w, "# %s\n%s", f.Path, out)
	return false, nil // nothing was written
}

func (p *printingHost) Execute(ctx context.Context, cmd role.Command) (string, error) {
	return "", fmt.Errorf("refusing to run %q while rendering", cmd.Line)
}

func (p *printingHost) IsProcessRunning(ctx context.Context, name string) (bool, error) {
	return false, nil
}
