// Package render loads templates from registered sources and executes them
// with the sprig function library.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

var ErrTemplateNotFound = errors.New("template not found")

type Engine struct {
	lock    sync.Mutex
	sources []fs.FS
	parsed  map[string]*template.Template
}

func NewEngine() *Engine {
	return &Engine{parsed: map[string]*template.Template{}}
}

// Register adds a template source. Sources registered first win when two of
// them provide the same name.
func (e *Engine) Register(fsys fs.FS) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.sources = append(e.sources, fsys)
}

func (e *Engine) Render(name string, data any) ([]byte, error) {
	tmpl, err := e.lookup(name)
	if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	if err := tmpl.Execute(buf, data); err != nil {
		return nil, fmt.Errorf("executing template %q: %w", name, err)
	}
	return buf.Bytes(), nil
}

func (e *Engine) lookup(name string) (*template.Template, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if tmpl, ok := e.parsed[name]; ok {
		return tmpl, nil
	}

	for _, src := range e.sources {
		if _, err := fs.Stat(src, name); err != nil {
			continue
		}

		tmpl, err := template.New(path.Base(name)).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").ParseFS(src, name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %q: %w", name, err)
		}
		e.parsed[name] = tmpl
		return tmpl, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
}
