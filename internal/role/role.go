// Package role holds the per-run values and the narrow host capabilities that
// provisioning roles are composed from.
package role

import (
	"context"
	"io/fs"
	"path"

	"github.com/google/uuid"
)

// Run is the state shared by every role taking part in one provisioning run
// against one host.
type Run struct {
	ID    string
	Owner string // account the provisioned files belong to
}

func NewRun(owner string) *Run {
	return &Run{ID: uuid.Must(uuid.NewRandom()).String(), Owner: owner}
}

// HomeDir returns the owner's home directory on the target host.
func (r *Run) HomeDir() string { return path.Join("/home", r.Owner) }

type Command struct {
	Line  string
	Sudo  bool
	Quiet bool // don't echo the command's output
}

// Executor runs a shell command on the target host. A non-zero exit status is
// returned as an error.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (string, error)
}

// File describes a file rendered from a template on the target host.
type File struct {
	Template string
	Path     string
	Options  any
	Owner    string
	Sudo     bool
}

// Renderer writes a rendered template to the target host. It reports whether
// the file's content changed: rendering identical options over an identical
// file is a no-op.
type Renderer interface {
	RenderFile(ctx context.Context, f File) (bool, error)
}

type ProcessChecker interface {
	IsProcessRunning(ctx context.Context, name string) (bool, error)
}

// TemplateLoader makes a role's templates available to the Renderer.
type TemplateLoader interface {
	RegisterTemplates(fsys fs.FS)
}

type PackageInstaller interface {
	EnsurePackageInstalled(ctx context.Context, name string) error
}
