// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package driver

import "fmt"

// QueueFlag describes the capabilities of a queue family.
type QueueFlag int

// Queue flags.
const (
	QueueGraphics QueueFlag = 1 << iota
	QueueCompute
	QueueTransfer
)

// QueueFamilyInfo describes a queue family exposed by an
// adapter.
type QueueFamilyInfo struct {
	Flags QueueFlag
	Count int
	// Present indicates whether the family can present
	// to the surface under consideration.
	Present bool
}

// AdapterInfo describes a physical adapter as enumerated
// by a backend.
type AdapterInfo struct {
	Name       string
	Families   []QueueFamilyInfo
	Extensions []string
}

// Requirements describes what an adapter must provide.
type Requirements struct {
	// Present requires a family that can present.
	Present bool
	// Extensions that must be supported.
	Extensions []string
}

// QueueFamilies contains the queue family indices chosen
// for an adapter.
// Present is -1 if presentation was not required.
type QueueFamilies struct {
	Graphics int
	Present  int
	Transfer int
}

// SelectAdapter selects the first adapter, in enumeration
// order, that satisfies req.
// There is no scoring of any kind: given the same list,
// the same adapter is always selected.
// Graphics queues support transfer operations implicitly.
// The present family prefers the graphics family when it
// can present.
// It returns an error wrapping ErrNoDevice if no adapter
// qualifies.
func SelectAdapter(adapters []AdapterInfo, req *Requirements) (int, QueueFamilies, error) {
	if req == nil {
		req = &Requirements{}
	}
	for i := range adapters {
		if !hasExtensions(adapters[i].Extensions, req.Extensions) {
			continue
		}
		if fam, ok := selectFamilies(adapters[i].Families, req.Present); ok {
			return i, fam, nil
		}
	}
	return -1, QueueFamilies{}, fmt.Errorf("%w (%d adapter(s) considered)", ErrNoDevice, len(adapters))
}

func selectFamilies(fams []QueueFamilyInfo, present bool) (QueueFamilies, bool) {
	qf := QueueFamilies{-1, -1, -1}
	for i, f := range fams {
		if f.Count <= 0 {
			continue
		}
		if qf.Graphics < 0 && f.Flags&QueueGraphics != 0 {
			qf.Graphics = i
		}
	}
	if qf.Graphics < 0 {
		return qf, false
	}
	qf.Transfer = qf.Graphics
	if present {
		if fams[qf.Graphics].Present {
			qf.Present = qf.Graphics
		} else {
			for i, f := range fams {
				if f.Count > 0 && f.Present {
					qf.Present = i
					break
				}
			}
		}
		if qf.Present < 0 {
			return qf, false
		}
	}
	return qf, true
}

func hasExtensions(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
