// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package layout

import (
	"encoding/binary"
	"math"
	"testing"

	"gviegas/rend3/driver"
	"gviegas/rend3/driver/drivertest"
	"gviegas/rend3/rhi"
)

func init() { driver.Register(drivertest.NewDriver("layouttest")) }

func openDevice(t *testing.T) *rhi.Device {
	dev, err := rhi.Open(&rhi.Config{Backend: "layouttest"})
	if err != nil {
		t.Fatalf("rhi.Open:\nhave %v\nwant nil", err)
	}
	t.Cleanup(dev.Destroy)
	return dev
}

func TestTable(t *testing.T) {
	dev := openDevice(t)
	tab := NewTable(dev, 3)
	defer tab.Destroy()
	if !tab.IsValid() {
		t.Fatal("NewTable: invalid")
	}
	if x := tab.buf.Size(); x != 6*BlockSize {
		t.Fatalf("Table.buf.Size:\nhave %d\nwant %d", x, 6*BlockSize)
	}

	if !tab.Begin() {
		t.Fatal("Table.Begin:\nhave false\nwant true")
	}
	tab.Global().SetBloom(0.5)
	var blks []int
	var over int
	for {
		blk, ok := tab.Alloc()
		if !ok {
			over = blk
			break
		}
		blks = append(blks, blk)
	}
	if len(blks) != 3 || blks[0] != 2 || blks[2] != 4 {
		t.Fatalf("Table.Alloc:\nhave %v\nwant [2 3 4]", blks)
	}
	if over != 5 {
		t.Fatalf("Table.Alloc (full):\nhave %d\nwant 5", over)
	}
	// Every overflowing allocation shares the last block.
	if blk, ok := tab.Alloc(); blk != over || ok {
		t.Fatalf("Table.Alloc (full):\nhave %d, %t\nwant %d, false", blk, ok, over)
	}
	tab.Pass(over).SetParams(1, 2, 3, 4)
	if x := tab.Len(); x != 3 {
		t.Fatalf("Table.Len:\nhave %d\nwant 3", x)
	}
	tab.Draw(blks[1]).SetMaterial(0.25, 0, 0)
	tab.Light(blks[2]).SetIntensity(8)
	tab.End()

	data := tab.buf.Buffer().(*drivertest.Buffer).Bytes()
	for _, x := range [...]struct {
		off  int
		want float32
	}{
		{90 * 4, 0.5},
		{3*BlockSize + 36*4, 0.25},
		{4*BlockSize + 3*4, 8},
	} {
		if v := math.Float32frombits(binary.LittleEndian.Uint32(data[x.off:])); v != x.want {
			t.Fatalf("buffer at %d:\nhave %f\nwant %f", x.off, v, x.want)
		}
	}

	// Begin discards previous allocations.
	tab.Begin()
	if x := tab.Len(); x != 0 {
		t.Fatalf("Table.Len after Begin:\nhave %d\nwant 0", x)
	}
	tab.End()
}

func TestTableBind(t *testing.T) {
	dev := openDevice(t)
	tab := NewTable(dev, 1)
	defer tab.Destroy()

	pool, err := dev.NewCmdPool(driver.QGraphics, driver.CPrimary)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Destroy()
	cb, err := pool.NewCmdBuffer()
	if err != nil {
		t.Fatal(err)
	}
	cb.Begin()
	tab.BindGlobal(cb)
	tab.Bind(cb, 2)
	cmds := cb.(*drivertest.CmdBuffer).Commands()
	want := []string{"SetConstBuf 0", "SetConstBuf 1"}
	if len(cmds) != len(want) || cmds[0] != want[0] || cmds[1] != want[1] {
		t.Fatalf("CmdBuffer.Commands:\nhave %v\nwant %v", cmds, want)
	}
}

func TestTableGrow(t *testing.T) {
	dev := openDevice(t)
	tab := NewTable(dev, 1)
	defer tab.Destroy()

	if !tab.Grow(dev, 8) {
		t.Fatal("Table.Grow:\nhave false\nwant true")
	}
	if x := tab.Cap(); x != 8 {
		t.Fatalf("Table.Cap:\nhave %d\nwant 8", x)
	}
	if x := len(dev.Live()); x != 1 {
		t.Fatalf("len(Device.Live):\nhave %d\nwant 1", x)
	}
	tab.Grow(dev, 4)
	if x := tab.Cap(); x != 8 {
		t.Fatalf("Table.Cap after shrinking:\nhave %d\nwant 8", x)
	}
}

func TestTablePanics(t *testing.T) {
	dev := openDevice(t)
	tab := NewTable(dev, 1)
	defer tab.Destroy()

	for _, f := range [...]func(){
		func() { tab.Global() },
		func() { tab.Begin(); defer tab.End(); tab.Draw(4) },
		func() { tab.Begin(); defer tab.End(); tab.Draw(1) },
		func() { tab.Begin(); tab.Grow(dev, 2) },
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatal("expected a panic")
				}
			}()
			f()
		}()
	}
}
