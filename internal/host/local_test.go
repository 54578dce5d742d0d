package host

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jveski/provision/internal/render"
	"github.com/jveski/provision/internal/role"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func newTestLocal() *Local {
	l := &Local{Engine: render.NewEngine()}
	l.RegisterTemplates(fstest.MapFS{
		"test.tmpl": {Data: []byte("value={{ .Value }}\n")},
	})
	return l
}

func TestRenderFile(t *testing.T) {
	l := newTestLocal()
	fp := filepath.Join(t.TempDir(), "test.conf")
	file := role.File{Template: "test.tmpl", Path: fp, Options: map[string]string{"Value": "foo"}}

	t.Run("initial creation", func(t *testing.T) {
		changed, err := l.RenderFile(ctx, file)
		require.NoError(t, err)
		assert.True(t, changed)

		actual, err := os.ReadFile(fp)
		require.NoError(t, err)
		assert.Equal(t, "value=foo\n", string(actual))
	})

	t.Run("idempotence", func(t *testing.T) {
		stat, err := os.Stat(fp)
		require.NoError(t, err)
		prevModTime := stat.ModTime()
		time.Sleep(time.Millisecond) // make sure mod time has time to increment

		changed, err := l.RenderFile(ctx, file)
		require.NoError(t, err)
		assert.False(t, changed)

		stat, err = os.Stat(fp)
		require.NoError(t, err)
		assert.Equal(t, prevModTime, stat.ModTime())
	})

	t.Run("update", func(t *testing.T) {
		file.Options = map[string]string{"Value": "bar"}
		changed, err := l.RenderFile(ctx, file)
		require.NoError(t, err)
		assert.True(t, changed)

		actual, err := os.ReadFile(fp)
		require.NoError(t, err)
		assert.Equal(t, "value=bar\n", string(actual))
	})

	t.Run("missing template", func(t *testing.T) {
		_, err := l.RenderFile(ctx, role.File{Template: "nope.tmpl", Path: fp})
		assert.ErrorIs(t, err, render.ErrTemplateNotFound)
	})
}

func TestExecute(t *testing.T) {
	l := &Local{Root: true}

	t.Run("output", func(t *testing.T) {
		out, err := l.Execute(ctx, role.Command{Line: "echo hello", Sudo: true})
		require.NoError(t, err)
		assert.Equal(t, "hello", out)
	})

	t.Run("failure", func(t *testing.T) {
		_, err := l.Execute(ctx, role.Command{Line: "echo oops >&2; exit 3", Quiet: true})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "oops")
	})
}

func TestProcessListed(t *testing.T) {
	ps := `    PID TTY          TIME CMD
      1 ?        00:00:01 init
    412 ?        00:00:00 supervisord
    413 pts/0    00:00:00 bash`

	assert.True(t, processListed(ps, "supervisord"))
	assert.True(t, processListed(ps, "bash"))
	assert.False(t, processListed(ps, "superviso"))
	assert.False(t, processListed(ps, "nginx"))
	assert.False(t, processListed("", "supervisord"))
}

// sudoRecorder stands in for sudo: it records every argv and runs the command
// unprivileged, except install(1) which only gets recorded.
type sudoRecorder struct {
	Argv [][]string
}

func (s *sudoRecorder) Command(ctx context.Context, name string, arg ...string) *exec.Cmd {
	argv := append([]string{name}, arg...)
	s.Argv = append(s.Argv, argv)

	if len(argv) > 2 && argv[0] == "sudo" && argv[1] == "-n" {
		argv = argv[2:]
	}
	if argv[0] == "install" {
		return exec.CommandContext(ctx, "true")
	}
	return exec.CommandContext(ctx, argv[0], argv[1:]...)
}

func (s *sudoRecorder) Programs() []string {
	names := []string{}
	for _, argv := range s.Argv {
		names = append(names, argv[2])
	}
	return names
}

func permissionDenied(name string) ([]byte, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
}

func TestRenderFileUnreadable(t *testing.T) {
	dir := t.TempDir()

	t.Run("identical content read with sudo", func(t *testing.T) {
		fp := filepath.Join(dir, "unreadable $HOME `x`.conf")
		require.NoError(t, os.WriteFile(fp, []byte("value=foo\n"), 0644))

		rec := &sudoRecorder{}
		l := newTestLocal()
		l.Command = rec.Command
		l.readFile = permissionDenied

		file := role.File{Template: "test.tmpl", Path: fp, Options: map[string]string{"Value": "foo"}, Sudo: true}
		for i := 0; i < 2; i++ {
			changed, err := l.RenderFile(ctx, file)
			require.NoError(t, err)
			assert.False(t, changed)
		}

		assert.Equal(t, []string{"sudo", "-n", "cat", "--", fp}, rec.Argv[1])
		assert.NotContains(t, rec.Programs(), "install")
	})

	t.Run("changed content installed with sudo", func(t *testing.T) {
		fp := filepath.Join(dir, "changed.conf")
		require.NoError(t, os.WriteFile(fp, []byte("value=old\n"), 0644))

		rec := &sudoRecorder{}
		l := newTestLocal()
		l.Command = rec.Command
		l.readFile = permissionDenied

		changed, err := l.RenderFile(ctx, role.File{Template: "test.tmpl", Path: fp, Options: map[string]string{"Value": "foo"}, Owner: "deploy", Sudo: true})
		require.NoError(t, err)
		assert.True(t, changed)

		assert.Equal(t, []string{"test", "cat", "install"}, rec.Programs())
		install := rec.Argv[2]
		assert.Equal(t, []string{"sudo", "-n", "install", "-m", "0644", "-o", "deploy"}, install[:7])
		assert.Equal(t, fp, install[len(install)-1])
	})

	t.Run("missing file installed with sudo", func(t *testing.T) {
		fp := filepath.Join(dir, "missing.conf")

		rec := &sudoRecorder{}
		l := newTestLocal()
		l.Command = rec.Command
		l.readFile = permissionDenied

		changed, err := l.RenderFile(ctx, role.File{Template: "test.tmpl", Path: fp, Options: map[string]string{"Value": "foo"}, Sudo: true})
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, []string{"test", "install"}, rec.Programs())
		assert.NotContains(t, rec.Argv[1], "-o")
	})

	t.Run("no sudo", func(t *testing.T) {
		fp := filepath.Join(dir, "nosudo.conf")

		rec := &sudoRecorder{}
		l := newTestLocal()
		l.Command = rec.Command
		l.readFile = permissionDenied

		_, err := l.RenderFile(ctx, role.File{Template: "test.tmpl", Path: fp, Options: map[string]string{"Value": "foo"}})
		assert.ErrorIs(t, err, fs.ErrPermission)
		assert.Empty(t, rec.Argv)
		assert.NoFileExists(t, fp)
	})
}

func TestExecuteSudo(t *testing.T) {
	rec := &sudoRecorder{}

	l := &Local{Command: rec.Command}
	out, err := l.Execute(ctx, role.Command{Line: "echo hello", Sudo: true})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	l.Root = true
	_, err = l.Execute(ctx, role.Command{Line: "true", Sudo: true})
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"sudo", "-n", "sh", "-c", "echo hello"},
		{"sh", "-c", "true"},
	}, rec.Argv)
}
