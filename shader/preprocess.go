// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package shader

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// ErrPreprocess means that a source has malformed
// directives.
var ErrPreprocess = errors.New("shader: preprocessing failed")

// Maximum #include nesting.
const maxInclude = 16

// Preprocess expands the directives of the file at name.
// Directive lines and lines inside disabled conditional
// blocks become empty lines. Source without directives
// is returned unchanged.
// Included paths are relative to the including file.
// It also returns the paths of every file read, the
// top-level one first.
func Preprocess(fsys fs.FS, name string, defines []string) (string, []string, error) {
	p := &preproc{fsys: fsys, defs: make(map[string]bool, len(defines))}
	for _, d := range defines {
		p.defs[d] = true
	}
	var b strings.Builder
	if err := p.file(&b, name, 0); err != nil {
		return "", p.files, err
	}
	return b.String(), p.files, nil
}

type preproc struct {
	fsys  fs.FS
	defs  map[string]bool
	files []string
}

// cond is the state of a conditional block.
type cond struct {
	active bool
	// Whether the enclosing block is active.
	outer  bool
	inElse bool
}

func (p *preproc) file(b *strings.Builder, name string, depth int) error {
	if depth > maxInclude {
		return fmt.Errorf("%w: %s: #include nested too deeply", ErrPreprocess, name)
	}
	data, err := fs.ReadFile(p.fsys, name)
	if err != nil {
		return fmt.Errorf("shader: %w", err)
	}
	p.files = append(p.files, name)
	var stk []cond
	active := true
	for i, line := range strings.Split(string(data), "\n") {
		if i > 0 {
			b.WriteByte('\n')
		}
		ln := i + 1
		t := strings.TrimSpace(line)
		if !strings.HasPrefix(t, "#") {
			if active {
				b.WriteString(line)
			}
			continue
		}
		dir, arg, _ := strings.Cut(t[1:], " ")
		arg = strings.TrimSpace(arg)
		switch dir {
		case "ifdef", "ifndef":
			if arg == "" {
				return fmt.Errorf("%w: %s:%d: #%s without name", ErrPreprocess, name, ln, dir)
			}
			stk = append(stk, cond{active: active && p.defs[arg] == (dir == "ifdef"), outer: active})
			active = stk[len(stk)-1].active
		case "else":
			if len(stk) == 0 || stk[len(stk)-1].inElse {
				return fmt.Errorf("%w: %s:%d: unexpected #else", ErrPreprocess, name, ln)
			}
			c := &stk[len(stk)-1]
			c.inElse = true
			c.active = c.outer && !c.active
			active = c.active
		case "endif":
			if len(stk) == 0 {
				return fmt.Errorf("%w: %s:%d: unexpected #endif", ErrPreprocess, name, ln)
			}
			active = stk[len(stk)-1].outer
			stk = stk[:len(stk)-1]
		case "define":
			if active {
				if arg == "" {
					return fmt.Errorf("%w: %s:%d: #define without name", ErrPreprocess, name, ln)
				}
				p.defs[arg] = true
			}
		case "include":
			if active {
				inc := strings.Trim(arg, `"`)
				if inc == "" {
					return fmt.Errorf("%w: %s:%d: #include without path", ErrPreprocess, name, ln)
				}
				if err := p.file(b, path.Join(path.Dir(name), inc), depth+1); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("%w: %s:%d: unknown directive #%s", ErrPreprocess, name, ln, dir)
		}
	}
	if len(stk) != 0 {
		return fmt.Errorf("%w: %s: missing #endif", ErrPreprocess, name)
	}
	return nil
}
