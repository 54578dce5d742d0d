// Package host implements the role capabilities against the machine provctl
// runs on.
package host

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/jveski/provision/internal/log"
	"github.com/jveski/provision/internal/render"
	"github.com/jveski/provision/internal/role"
)

type Local struct {
	Engine *render.Engine

	// Root reports whether commands already run as the superuser, in which
	// case sudo is never prepended.
	Root bool

	// Command builds every process Local starts. Defaults to exec.CommandContext.
	Command func(ctx context.Context, name string, arg ...string) *exec.Cmd

	readFile func(name string) ([]byte, error)
}

func NewLocal() *Local {
	return &Local{Engine: render.NewEngine(), Root: os.Geteuid() == 0}
}

func (l *Local) RegisterTemplates(fsys fs.FS) { l.Engine.Register(fsys) }

// command builds argv, prefixed with sudo when asked for and not already root.
// Arguments are passed as-is, never through a shell.
func (l *Local) command(ctx context.Context, sudo bool, argv ...string) *exec.Cmd {
	if sudo && !l.Root {
		argv = append([]string{"sudo", "-n"}, argv...)
	}

	mk := l.Command
	if mk == nil {
		mk = exec.CommandContext
	}
	return mk(ctx, argv[0], argv[1:]...)
}

func (l *Local) Execute(ctx context.Context, cmd role.Command) (string, error) {
	logger := log.FromContext(ctx)
	logger.Debug().Str("command", cmd.Line).Bool("sudo", cmd.Sudo).Msg("executing")

	out, err := l.command(ctx, cmd.Sudo, "sh", "-c", cmd.Line).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("command %q failed: %w: %s", cmd.Line, err, bytes.TrimSpace(out))
	}

	output := strings.TrimSpace(string(out))
	if !cmd.Quiet && output != "" {
		logger.Info().Str("command", cmd.Line).Msg(output)
	}
	return output, nil
}

func (l *Local) IsProcessRunning(ctx context.Context, name string) (bool, error) {
	out, err := l.Execute(ctx, role.Command{Line: "ps -A", Quiet: true})
	if err != nil {
		return false, err
	}
	return processListed(out, name), nil
}

// processListed reports whether any row of `ps -A` output runs the named
// command. The command is the last column.
func processListed(psOutput, name string) bool {
	scan := bufio.NewScanner(strings.NewReader(psOutput))
	for scan.Scan() {
		fields := strings.Fields(scan.Text())
		if len(fields) > 0 && fields[len(fields)-1] == name {
			return true
		}
	}
	return false
}

func (l *Local) RenderFile(ctx context.Context, f role.File) (bool, error) {
	content, err := l.Engine.Render(f.Template, f.Options)
	if err != nil {
		return false, err
	}

	existing, exists, err := l.readExisting(ctx, f)
	if err != nil {
		return false, err
	}
	if exists && bytes.Equal(existing, content) {
		return false, nil // already up to date
	}

	if f.Sudo && !l.Root {
		err = l.installWithSudo(ctx, f, content)
	} else {
		err = writeFile(f, content)
	}
	if err != nil {
		return false, err
	}

	log.FromContext(ctx).Debug().Str("path", f.Path).Str("template", f.Template).Msg("wrote file")
	return true, nil
}

// readExisting returns the current content of the file. Files we aren't
// allowed to read are read through sudo when the file may be written with it.
func (l *Local) readExisting(ctx context.Context, f role.File) ([]byte, bool, error) {
	read := l.readFile
	if read == nil {
		read = os.ReadFile
	}

	existing, err := read(f.Path)
	switch {
	case err == nil:
		return existing, true, nil
	case errors.Is(err, fs.ErrNotExist):
		return nil, false, nil
	case errors.Is(err, fs.ErrPermission) && f.Sudo && !l.Root:
		return l.readWithSudo(ctx, f.Path)
	default:
		return nil, false, fmt.Errorf("reading %s: %w", f.Path, err)
	}
}

func (l *Local) readWithSudo(ctx context.Context, path string) ([]byte, bool, error) {
	if err := l.command(ctx, true, "test", "-e", path).Run(); err != nil {
		ee := &exec.ExitError{}
		if errors.As(err, &ee) && ee.ExitCode() == 1 {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("checking %s: %w", path, err)
	}

	out, err := l.command(ctx, true, "cat", "--", path).Output()
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}
	return out, true, nil
}

func writeFile(f role.File, content []byte) error {
	pending, err := renameio.NewPendingFile(f.Path, renameio.WithPermissions(0644), renameio.WithExistingPermissions())
	if err != nil {
		return fmt.Errorf("creating pending file for %s: %w", f.Path, err)
	}
	defer pending.Cleanup()

	if _, err := pending.Write(content); err != nil {
		return fmt.Errorf("writing %s: %w", f.Path, err)
	}

	if f.Owner != "" {
		uid, gid, err := lookupOwner(f.Owner)
		if err != nil {
			return err
		}
		if err := pending.Chown(uid, gid); err != nil {
			return fmt.Errorf("changing owner of %s: %w", f.Path, err)
		}
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replacing %s: %w", f.Path, err)
	}
	return nil
}

// installWithSudo stages the content in a temp file we own and lets install(1)
// move it into place as the superuser.
func (l *Local) installWithSudo(ctx context.Context, f role.File, content []byte) error {
	tmp, err := os.CreateTemp("", "provctl-"+filepath.Base(f.Path)+"-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	argv := []string{"install", "-m", "0644"}
	if f.Owner != "" {
		argv = append(argv, "-o", f.Owner)
	}
	argv = append(argv, tmp.Name(), f.Path)

	if out, err := l.command(ctx, true, argv...).CombinedOutput(); err != nil {
		return fmt.Errorf("installing %s: %w: %s", f.Path, err, bytes.TrimSpace(out))
	}
	return nil
}

func lookupOwner(name string) (int, int, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, 0, fmt.Errorf("looking up owner %q: %w", name, err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing uid of %q: %w", name, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing gid of %q: %w", name, err)
	}
	return uid, gid, nil
}
