// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package main

// Drivers register themselves when imported.
// rhi.Open tries them in the order given by
// driver.Drivers.
import (
	_ "gviegas/rend3/driver/vk"
	_ "gviegas/rend3/driver/wgpu"
)
