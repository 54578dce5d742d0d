package supervisor

import (
	"context"
	"io/fs"

	"github.com/jveski/provision/internal/role"
)

// fakeHost records every capability call a role makes.
type fakeHost struct {
	RenderResult bool
	RenderErr    error
	Running      bool

	Renders    []role.File
	Commands   []role.Command
	Checked    []string
	Registered []fs.FS
	Installed  []string
}

func (f *fakeHost) Execute(ctx context.Context, cmd role.Command) (string, error) {
	f.Commands = append(f.Commands, cmd)
	return "", nil
}

func (f *fakeHost) RenderFile(ctx context.Context, file role.File) (bool, error) {
	f.Renders = append(f.Renders, file)
	return f.RenderResult, f.RenderErr
}

func (f *fakeHost) IsProcessRunning(ctx context.Context, name string) (bool, error) {
	f.Checked = append(f.Checked, name)
	return f.Running, nil
}

func (f *fakeHost) RegisterTemplates(fsys fs.FS) { f.Registered = append(f.Registered, fsys) }

func (f *fakeHost) EnsurePackageInstalled(ctx context.Context, name string) error {
	f.Installed = append(f.Installed, name)
	return nil
}

func (f *fakeHost) lines() []string {
	lines := make([]string, len(f.Commands))
	for i, cmd := range f.Commands {
		lines[i] = cmd.Line
	}
	return lines
}

func newTestRole() (*Role, *fakeHost) {
	host := &fakeHost{}
	return New(&role.Run{ID: "test-run", Owner: "some-owner"}, &State{}, host, host), host
}
