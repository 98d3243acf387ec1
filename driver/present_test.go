// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package driver

import "testing"

func TestChoosePresentMode(t *testing.T) {
	all := []PresentMode{PFIFO, PImmediate, PMailbox}
	for _, x := range [...]struct {
		supported []PresentMode
		vsync     bool
		want      PresentMode
	}{
		{all, true, PFIFO},
		{all, false, PMailbox},
		{[]PresentMode{PFIFO, PImmediate}, false, PImmediate},
		{[]PresentMode{PFIFO}, false, PFIFO},
		{nil, false, PFIFO},
	} {
		if m := ChoosePresentMode(x.supported, x.vsync); m != x.want {
			t.Errorf("ChoosePresentMode(%v, %t):\nhave %v\nwant %v", x.supported, x.vsync, m, x.want)
		}
	}
}
