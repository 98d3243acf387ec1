// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"gviegas/rend3/driver"
	"gviegas/rend3/driver/drivertest"
)

var ndrv atomic.Int32

// openTest opens a Device on a new drivertest driver.
// Driver names are unique, so tests do not share GPUs.
func openTest(t *testing.T, cfg *Config) (*Device, *drivertest.Driver) {
	t.Helper()
	name := fmt.Sprintf("rhitest%03d", ndrv.Add(1))
	drv := drivertest.NewDriver(name)
	driver.Register(drv)
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Backend = name
	dev, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(dev.Destroy)
	return dev, drv
}
