// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gviegas/rend3/driver"
	"gviegas/rend3/engine/internal/layout"
	"gviegas/rend3/rhi"
)

// PassDesc describes one pass of the frame.
// Inputs and Outputs name render targets; the driver
// loop transitions inputs to driver.LShaderRead and
// outputs to driver.LColorTarget or driver.LDSTarget
// before the pass executes.
type PassDesc struct {
	Name string
	// Inputs must have been produced earlier in the
	// frame, unless they are persistent.
	Inputs []string
	// Optional inputs are used only if produced.
	Optional []string
	Outputs  []string
	// Flag, if not zero, must be set in the
	// renderer's flags for the pass to run.
	Flag Flags
	// Swap, if set, exchanges two target names once
	// the pass completes (ping-pong).
	Swap [2]string

	// cond, if not nil, decides whether the pass has
	// work to do. Passes without work are not
	// reported as skipped.
	cond func(r *Renderer, f *frame) bool
	// exec records the pass. It must not leave a
	// render pass open when it returns an error.
	exec func(r *Renderer, f *frame, p *PassDesc) error
}

// errPending means that a pipeline used by a pass is
// still compiling.
var errPending = errors.New("pipeline pending")

// frame is the state of the frame being recorded.
type frame struct {
	n     uint64
	time  time.Duration
	cb    driver.CmdBuffer
	tab   *layout.Table
	flags Flags
	view  view
	rend  *renderables
	sky   Skybox
	// names maps logical target names to physical
	// ones.
	names    map[string]string
	produced map[string]bool
	// Final target.
	out    driver.ImageView
	outFmt driver.PixelFmt
	outW   int
	outH   int
	// Line vertex buffer of the frame slot.
	lineBuf *rhi.VertexBuffer
	// Executed and skipped passes.
	ran     []string
	skipped []string
	// Number of constant blocks requested.
	need int
}

// reset prepares f for frame number n.
func (f *frame) reset(n uint64, cb driver.CmdBuffer, tab *layout.Table, flags Flags) {
	f.n = n
	f.cb = cb
	f.tab = tab
	f.flags = flags
	if f.names == nil {
		f.names = make(map[string]string)
		f.produced = make(map[string]bool)
	}
	clear(f.names)
	clear(f.produced)
	f.ran = f.ran[:0]
	f.skipped = f.skipped[:0]
	f.need = 0
	cur, hist := tTAAA, tTAAB
	scur, shist := tSSRA, tSSRB
	if n%2 == 1 {
		cur, hist = hist, cur
		scur, shist = shist, scur
	}
	f.names[tTAACurrent] = cur
	f.names[tTAAHistory] = hist
	f.names[tSSRCurrent] = scur
	f.names[tSSRHistory] = shist
}

// alloc allocates a constant block.
// When the table is full it returns the table's overflow
// block and false. Requests are counted either way, so
// that the table grows to fit the whole frame before the
// slot is reused.
func (f *frame) alloc() (int, bool) {
	f.need++
	return f.tab.Alloc()
}

// resolve returns the physical name of a target.
func (f *frame) resolve(name string) string {
	if s, ok := f.names[name]; ok {
		return s
	}
	return name
}

// swap exchanges the physical names of a and b.
func (f *frame) swap(a, b string) {
	pa, pb := f.resolve(a), f.resolve(b)
	f.names[a], f.names[b] = pb, pa
}

// target returns the texture for a logical name.
func (r *Renderer) target(f *frame, name string) *rhi.Texture {
	return r.targets.get(f.resolve(name))
}

// isProduced returns whether the named target holds
// valid data for the current frame.
func (r *Renderer) isProduced(f *frame, name string) bool {
	phys := f.resolve(name)
	if f.produced[phys] {
		return true
	}
	d := r.targets.descOf(phys)
	return d != nil && d.persistent
}

// checkPass returns an error if p cannot run.
func (r *Renderer) checkPass(f *frame, p *PassDesc) error {
	for _, in := range p.Inputs {
		phys := f.resolve(in)
		if err := r.targets.check(phys); err != nil {
			return err
		}
		if !r.isProduced(f, in) {
			return fmt.Errorf("input %s was not produced", phys)
		}
	}
	for _, out := range p.Outputs {
		if err := r.targets.check(f.resolve(out)); err != nil {
			return err
		}
	}
	return nil
}

// transition moves the pass's targets to the layouts
// that the pass expects.
func (r *Renderer) transition(f *frame, p *PassDesc) {
	for _, in := range p.Inputs {
		r.target(f, in).Transition(f.cb, driver.LShaderRead)
	}
	for _, in := range p.Optional {
		if t := r.producedOptional(f, in); t != nil {
			t.Transition(f.cb, driver.LShaderRead)
		}
	}
	for _, out := range p.Outputs {
		t := r.target(f, out)
		if t.Format().IsDS() {
			t.Transition(f.cb, driver.LDSTarget)
		} else {
			t.Transition(f.cb, driver.LColorTarget)
		}
	}
}

// producedOptional returns the named target if it was
// produced in the current frame, or nil.
func (r *Renderer) producedOptional(f *frame, name string) *rhi.Texture {
	phys := f.resolve(name)
	if t := r.targets.get(phys); t != nil && t.IsValid() && f.produced[phys] {
		return t
	}
	return nil
}

// optional returns the view of an optional input if it
// was produced, or the view of placeholder otherwise.
func (r *Renderer) optional(f *frame, name string, placeholder *rhi.Texture) driver.ImageView {
	if t := r.producedOptional(f, name); t != nil {
		return t.View()
	}
	return placeholder.View()
}

// runPasses executes every pass in order.
func (r *Renderer) runPasses(f *frame) {
	for i := range r.passes {
		p := &r.passes[i]
		if p.Flag != 0 && !f.flags.IsSet(p.Flag) {
			continue
		}
		if p.cond != nil && !p.cond(r, f) {
			continue
		}
		if err := r.checkPass(f, p); err != nil {
			r.skip(f, p, err)
			continue
		}
		r.transition(f, p)
		if err := p.exec(r, f, p); err != nil {
			r.skip(f, p, err)
			continue
		}
		for _, out := range p.Outputs {
			f.produced[f.resolve(out)] = true
		}
		if p.Swap[0] != "" {
			f.swap(p.Swap[0], p.Swap[1])
		}
		f.ran = append(f.ran, p.Name)
	}
}

// skip records that p was skipped.
func (r *Renderer) skip(f *frame, p *PassDesc, err error) {
	f.skipped = append(f.skipped, p.Name)
	r.stats.Skipped++
	level := slog.LevelWarn
	if errors.Is(err, errPending) {
		level = slog.LevelDebug
	}
	r.log.Log(context.Background(), level, "engine: pass skipped", "pass", p.Name, "frame", f.n, "err", err)
}
