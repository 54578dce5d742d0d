// Package manifest reads the TOML file describing what a provisioning run
// should put on a host.
package manifest

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

type Manifest struct {
	Owner      string      `toml:"owner"`
	Supervisor *Supervisor `toml:"supervisor"`

	Hash      string   `toml:"-"` // generated when reading
	Undecoded []string `toml:"-"` // keys present in the file that nothing consumed
}

type Supervisor struct {
	ConfigDir string     `toml:"config_dir"`
	User      string     `toml:"user"`
	Install   bool       `toml:"install"`
	Programs  []*Program `toml:"program"`
}

type Program struct {
	Name         string   `toml:"name"`
	Directory    string   `toml:"directory"`
	Command      string   `toml:"command"`
	Processes    int      `toml:"processes"`
	Priority     int      `toml:"priority"`
	User         string   `toml:"user"`
	LogFolder    string   `toml:"log_folder"`
	Autostart    *bool    `toml:"autostart"`
	Autorestart  *bool    `toml:"autorestart"`
	StartRetries int      `toml:"start_retries"`
	StopSignal   string   `toml:"stop_signal"`
	Environment  []string `toml:"environment"` // KEY=VALUE
}

// EnvPairs splits the environment entries into ordered key/value pairs.
func (p *Program) EnvPairs() [][2]string {
	pairs := make([][2]string, 0, len(p.Environment))
	for _, entry := range p.Environment {
		key, value, _ := strings.Cut(entry, "=")
		pairs = append(pairs, [2]string{key, value})
	}
	return pairs
}

type ErrInvalid struct {
	File    string
	Reasons []string
}

func (e *ErrInvalid) Error() string {
	return fmt.Sprintf("invalid manifest %s: %s", e.File, strings.Join(e.Reasons, "; "))
}

func Load(file string) (*Manifest, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()

	m, err := Decode(f)
	if err != nil {
		e := &ErrInvalid{}
		if errors.As(err, &e) {
			e.File = file
		}
		return nil, err
	}
	return m, nil
}

func Decode(r io.Reader) (*Manifest, error) {
	hash := md5.New()
	r = io.TeeReader(r, hash)

	m := &Manifest{}
	md, err := toml.NewDecoder(r).Decode(m)
	if err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}

	m.Hash = hex.EncodeToString(hash.Sum(nil))
	for _, key := range md.Undecoded() {
		m.Undecoded = append(m.Undecoded, key.String())
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) validate() error {
	var reasons []string
	if m.Supervisor == nil {
		return nil
	}

	seen := map[string]struct{}{}
	for i, p := range m.Supervisor.Programs {
		if p.Name == "" {
			reasons = append(reasons, fmt.Sprintf("program #%d has no name", i+1))
			continue
		}
		if _, ok := seen[p.Name]; ok {
			reasons = append(reasons, fmt.Sprintf("program %q is declared more than once", p.Name))
		}
		seen[p.Name] = struct{}{}

		for _, entry := range p.Environment {
			if key, _, ok := strings.Cut(entry, "="); !ok || key == "" {
				reasons = append(reasons, fmt.Sprintf("program %q has malformed environment entry %q (want KEY=VALUE)", p.Name, entry))
			}
		}
	}

	if len(reasons) > 0 {
		return &ErrInvalid{Reasons: reasons}
	}
	return nil
}
