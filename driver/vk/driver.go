// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package vk implements driver interfaces using the Vulkan API.
//
// It targets Vulkan 1.0 plus VK_KHR_surface/VK_KHR_swapchain
// and calls into the loader through the vulkan-go bindings.
package vk

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"gviegas/rend3/driver"
)

const driverName = "vulkan"

// Names used during initialization.
const (
	validationLayer = "VK_LAYER_KHRONOS_validation"
	extSurface      = "VK_KHR_surface"
	extSwapchain    = "VK_KHR_swapchain"
	extDebugReport  = "VK_EXT_debug_report"
)

// Driver implements driver.Driver.
type Driver struct {
	mu  sync.Mutex
	gpu *GPU
}

func init() {
	driver.Register(&Driver{})
}

var (
	loadOnce sync.Once
	loadErr  error
)

// load loads the Vulkan library and the global procs.
// It only does any work on the first call.
func load() error {
	loadOnce.Do(func() {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			loadErr = driver.NewError(driver.ErrNotInstalled, "vkGetInstanceProcAddr", "", err.Error())
			return
		}
		if err := vk.Init(); err != nil {
			loadErr = driver.NewError(driver.ErrNotInstalled, "vk.Init", "", err.Error())
		}
	})
	return loadErr
}

// Open initializes the driver.
func (d *Driver) Open(cfg *driver.Config) (driver.GPU, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu != nil {
		return d.gpu.self(), nil
	}
	if cfg == nil {
		cfg = &driver.Config{}
	}
	if err := load(); err != nil {
		return nil, err
	}
	g := &GPU{
		drv:     d,
		win:     cfg.Window,
		layouts: make(map[driver.BindLayout]*descLayout),
		passes:  make(map[passKey]vk.RenderPass),
	}
	if err := g.open(cfg); err != nil {
		g.destroy()
		return nil, err
	}
	d.gpu = g
	return g.self(), nil
}

// Name returns the driver name.
func (*Driver) Name() string { return driverName }

// Close deinitializes the driver.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu == nil {
		return
	}
	d.gpu.destroy()
	d.gpu = nil
}

// GPU implements driver.GPU.
type GPU struct {
	drv  *Driver
	inst vk.Instance
	dbg  vk.DebugReportCallback
	surf vk.Surface
	pdev vk.PhysicalDevice
	dev  vk.Device
	win  driver.Window

	// que is used for graphics and transfer;
	// pque, for presentation only.
	que  vk.Queue
	pque vk.Queue
	// Queue submission requires external
	// synchronization.
	qmu sync.Mutex

	mprop vk.PhysicalDeviceMemoryProperties
	// Used device memory, indexed by heap.
	mmu   sync.Mutex
	mused []int64

	caps driver.Caps
	lim  driver.Limits

	// Guards layouts, passes and sc.
	mu      sync.Mutex
	layouts map[driver.BindLayout]*descLayout
	passes  map[passKey]vk.RenderPass
	sc      *swapchain
}

// presentGPU adds driver.Presenter to GPU.
type presentGPU struct{ *GPU }

func (g *GPU) self() driver.GPU {
	if g.surf != vk.NullSurface {
		return presentGPU{g}
	}
	return g
}

func (g *GPU) open(cfg *driver.Config) error {
	validation := cfg.Validation
	if validation && !slices.Contains(instanceLayers(), validationLayer) {
		driver.Logger().Warn("vk: validation layer not found", "layer", validationLayer, "err", driver.ErrNoValidation)
		validation = false
	}
	if err := g.initInstance(cfg, validation); err != nil {
		return err
	}
	if g.win != nil {
		if err := g.initSurface(); err != nil {
			return err
		}
	}
	return g.initDevice(cfg)
}

// initInstance creates the Vulkan instance and, if
// validation is set, the debug report callback.
func (g *GPU) initInstance(cfg *driver.Config, validation bool) error {
	var exts []string
	if g.win != nil {
		vs, ok := g.win.(driver.VulkanSurfacer)
		if !ok {
			return fmt.Errorf("%w (window cannot create Vulkan surfaces)", driver.ErrSurface)
		}
		exts = append(exts, extSurface)
		for _, e := range vs.GetRequiredInstanceExtensions() {
			if !slices.Contains(exts, e) {
				exts = append(exts, e)
			}
		}
	}
	report := validation && slices.Contains(instanceExts(), extDebugReport)
	if report {
		exts = append(exts, extDebugReport)
	}
	info := vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:            vk.StructureTypeApplicationInfo,
			PApplicationName: cstr("rend3"),
			PEngineName:      cstr("rend3"),
			ApiVersion:       vk.MakeVersion(1, 0, 0),
		},
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: cstrs(exts),
	}
	if validation {
		info.EnabledLayerCount = 1
		info.PpEnabledLayerNames = cstrs([]string{validationLayer})
	}
	res := vk.CreateInstance(&info, nil, &g.inst)
	if res == vk.ErrorLayerNotPresent && validation {
		driver.Logger().Warn("vk: retrying without validation", "err", driver.ErrNoValidation)
		validation, report = false, false
		info.EnabledLayerCount = 0
		info.PpEnabledLayerNames = nil
		exts = slices.DeleteFunc(exts, func(e string) bool { return e == extDebugReport })
		info.EnabledExtensionCount = uint32(len(exts))
		info.PpEnabledExtensionNames = cstrs(exts)
		res = vk.CreateInstance(&info, nil, &g.inst)
	}
	if err := checkResult(res, "vkCreateInstance", ""); err != nil {
		g.inst = nil
		return err
	}
	if err := vk.InitInstance(g.inst); err != nil {
		return driver.NewError(driver.ErrNotInstalled, "vk.InitInstance", "", err.Error())
	}
	g.caps.Validation = validation
	if report {
		cb := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: debugReport,
		}
		if res := vk.CreateDebugReportCallback(g.inst, &cb, nil, &g.dbg); res != vk.Success {
			driver.Logger().Warn("vk: debug report unavailable", "code", resultString(res))
			g.dbg = vk.NullDebugReportCallback
		}
	}
	return nil
}

// debugReport forwards validation messages to the driver
// logger.
func debugReport(flags vk.DebugReportFlags, _ vk.DebugReportObjectType, _ uint64, _ uint, code int32, prefix, msg string, _ unsafe.Pointer) vk.Bool32 {
	l := driver.Logger()
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		l.Error("vk: validation", "layer", prefix, "code", code, "msg", msg)
	default:
		l.Warn("vk: validation", "layer", prefix, "code", code, "msg", msg)
	}
	return vk.False
}

// initSurface creates the presentation surface.
func (g *GPU) initSurface() error {
	vs := g.win.(driver.VulkanSurfacer)
	p, err := vs.CreateWindowSurface(g.inst, nil)
	if err != nil {
		return driver.NewError(driver.ErrSurface, "CreateWindowSurface", "", err.Error())
	}
	if p == 0 {
		return driver.NewError(driver.ErrSurface, "CreateWindowSurface", "", "null surface")
	}
	g.surf = vk.SurfaceFromPointer(p)
	return nil
}

// adapterInfo describes pdev for driver.SelectAdapter.
func (g *GPU) adapterInfo(pdev vk.PhysicalDevice) driver.AdapterInfo {
	var prop vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pdev, &prop)
	prop.Deref()
	info := driver.AdapterInfo{Name: vk.ToString(prop.DeviceName[:])}

	var n uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pdev, &n, nil)
	qprops := make([]vk.QueueFamilyProperties, n)
	vk.GetPhysicalDeviceQueueFamilyProperties(pdev, &n, qprops)
	for i := range qprops[:n] {
		qprops[i].Deref()
		var f driver.QueueFlag
		if qprops[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			f |= driver.QueueGraphics
		}
		if qprops[i].QueueFlags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			f |= driver.QueueCompute
		}
		if qprops[i].QueueFlags&vk.QueueFlags(vk.QueueTransferBit) != 0 {
			f |= driver.QueueTransfer
		}
		qf := driver.QueueFamilyInfo{Flags: f, Count: int(qprops[i].QueueCount)}
		if g.surf != vk.NullSurface {
			var sup vk.Bool32
			vk.GetPhysicalDeviceSurfaceSupport(pdev, uint32(i), g.surf, &sup)
			qf.Present = sup == vk.True
		}
		info.Families = append(info.Families, qf)
	}
	info.Extensions = deviceExts(pdev)
	return info
}

// initDevice selects an adapter and creates the device.
func (g *GPU) initDevice(cfg *driver.Config) error {
	var n uint32
	if err := checkResult(vk.EnumeratePhysicalDevices(g.inst, &n, nil), "vkEnumeratePhysicalDevices", ""); err != nil {
		return err
	}
	pdevs := make([]vk.PhysicalDevice, n)
	if n > 0 {
		if err := checkResult(vk.EnumeratePhysicalDevices(g.inst, &n, pdevs), "vkEnumeratePhysicalDevices", ""); err != nil {
			return err
		}
	}
	infos := make([]driver.AdapterInfo, len(pdevs[:n]))
	for i, pd := range pdevs[:n] {
		infos[i] = g.adapterInfo(pd)
	}
	req := driver.Requirements{Present: g.surf != vk.NullSurface}
	req.Extensions = append(req.Extensions, cfg.Extensions...)
	if req.Present && !slices.Contains(req.Extensions, extSwapchain) {
		req.Extensions = append(req.Extensions, extSwapchain)
	}
	idx, fam, err := driver.SelectAdapter(infos, &req)
	if err != nil {
		return err
	}
	g.pdev = pdevs[idx]

	var feat vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(g.pdev, &feat)
	feat.Deref()
	enabled := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: feat.SamplerAnisotropy,
		FillModeNonSolid:  feat.FillModeNonSolid,
		DepthClamp:        feat.DepthClamp,
		DepthBiasClamp:    feat.DepthBiasClamp,
	}

	prio := []float32{1}
	qinfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(fam.Graphics),
		QueueCount:       1,
		PQueuePriorities: prio,
	}}
	if fam.Present >= 0 && fam.Present != fam.Graphics {
		qinfos = append(qinfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: uint32(fam.Present),
			QueueCount:       1,
			PQueuePriorities: prio,
		})
	}
	info := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(qinfos)),
		PQueueCreateInfos:       qinfos,
		EnabledExtensionCount:   uint32(len(req.Extensions)),
		PpEnabledExtensionNames: cstrs(req.Extensions),
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{enabled},
	}
	if err := checkResult(vk.CreateDevice(g.pdev, &info, nil, &g.dev), "vkCreateDevice", infos[idx].Name); err != nil {
		g.dev = nil
		return err
	}
	vk.GetDeviceQueue(g.dev, uint32(fam.Graphics), 0, &g.que)
	g.pque = g.que
	if fam.Present >= 0 && fam.Present != fam.Graphics {
		vk.GetDeviceQueue(g.dev, uint32(fam.Present), 0, &g.pque)
	}

	vk.GetPhysicalDeviceMemoryProperties(g.pdev, &g.mprop)
	g.mprop.Deref()
	g.mused = make([]int64, g.mprop.MemoryHeapCount)

	var prop vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(g.pdev, &prop)
	prop.Deref()
	prop.Limits.Deref()
	g.setLimits(&prop.Limits)

	aniso := 1
	if enabled.SamplerAnisotropy == vk.True {
		aniso = max(1, int(prop.Limits.MaxSamplerAnisotropy))
	}
	g.caps.Backend = driverName
	g.caps.Adapter = infos[idx].Name
	g.caps.MaxAnisotropy = aniso
	g.caps.ReverseDepth = g.formatSupported(vk.FormatD32Sfloat, vk.FormatFeatureDepthStencilAttachmentBit)
	g.caps.NonSolidFill = enabled.FillModeNonSolid == vk.True
	g.caps.ShaderFormat = driver.SPIRV
	g.caps.Families = fam
	driver.Logger().Info("vk: device opened", "adapter", g.caps.Adapter, "validation", g.caps.Validation)
	return nil
}

// setLimits sets g.lim.
func (g *GPU) setLimits(lim *vk.PhysicalDeviceLimits) {
	g.lim = driver.Limits{
		MaxImage2D:      int(lim.MaxImageDimension2D),
		MaxColorTargets: int(lim.MaxColorAttachments),
		MaxConstRange:   int64(lim.MaxUniformBufferRange),
		MaxVertexIn:     int(lim.MaxVertexInputAttributes),
	}
}

// formatSupported checks whether optimal tiling of f
// supports feat.
func (g *GPU) formatSupported(f vk.Format, feat vk.FormatFeatureFlagBits) bool {
	var prop vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(g.pdev, f, &prop)
	prop.Deref()
	return prop.OptimalTilingFeatures&vk.FormatFeatureFlags(feat) != 0
}

func (g *GPU) destroy() {
	if g.dev != nil {
		vk.DeviceWaitIdle(g.dev)
		if g.sc != nil {
			g.sc.Destroy()
		}
		g.mu.Lock()
		for _, l := range g.layouts {
			l.destroy(g.dev)
		}
		for _, rp := range g.passes {
			vk.DestroyRenderPass(g.dev, rp, nil)
		}
		g.layouts, g.passes = nil, nil
		g.mu.Unlock()
		vk.DestroyDevice(g.dev, nil)
		g.dev = nil
	}
	if g.inst != nil {
		if g.surf != vk.NullSurface {
			vk.DestroySurface(g.inst, g.surf, nil)
			g.surf = vk.NullSurface
		}
		if g.dbg != vk.NullDebugReportCallback {
			vk.DestroyDebugReportCallback(g.inst, g.dbg, nil)
			g.dbg = vk.NullDebugReportCallback
		}
		vk.DestroyInstance(g.inst, nil)
		g.inst = nil
	}
}

// Driver returns the driver.Driver that owns g.
func (g *GPU) Driver() driver.Driver { return g.drv }

// Caps returns the capabilities of g.
func (g *GPU) Caps() driver.Caps { return g.caps }

// Limits returns the implementation limits.
func (g *GPU) Limits() driver.Limits { return g.lim }

// WaitIdle blocks until g is idle.
func (g *GPU) WaitIdle() error {
	g.qmu.Lock()
	defer g.qmu.Unlock()
	return checkResult(vk.DeviceWaitIdle(g.dev), "vkDeviceWaitIdle", "")
}

// memory represents a device memory allocation.
type memory struct {
	g    *GPU
	size int64
	vis  bool
	mem  vk.DeviceMemory
	heap int
}

// selectMemory selects a suitable memory type.
// It returns -1 if none suffices.
func (g *GPU) selectMemory(typeBits uint32, prop vk.MemoryPropertyFlags) int {
	for i := range int(g.mprop.MemoryTypeCount) {
		if typeBits&(1<<i) == 0 {
			continue
		}
		g.mprop.MemoryTypes[i].Deref()
		if g.mprop.MemoryTypes[i].PropertyFlags&prop == prop {
			return i
		}
	}
	return -1
}

// newMemory allocates memory that satisfies req.
// Visible memory is host coherent, so mapped writes need
// no explicit flush.
func (g *GPU) newMemory(req vk.MemoryRequirements, visible bool, obj string) (*memory, error) {
	prop := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if visible {
		prop |= vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	typ := g.selectMemory(req.MemoryTypeBits, prop)
	if typ == -1 {
		// Device-local memory is desired but not required.
		prop &^= vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
		typ = g.selectMemory(req.MemoryTypeBits, prop)
	}
	if typ == -1 {
		return nil, driver.NewError(driver.ErrNoDeviceMemory, "vkAllocateMemory", obj, "no suitable memory type")
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: uint32(typ),
	}
	var mem vk.DeviceMemory
	if err := checkResult(vk.AllocateMemory(g.dev, &info, nil, &mem), "vkAllocateMemory", obj); err != nil {
		return nil, err
	}
	heap := int(g.mprop.MemoryTypes[typ].HeapIndex)
	g.mmu.Lock()
	g.mused[heap] += int64(req.Size)
	g.mmu.Unlock()
	return &memory{g: g, size: int64(req.Size), vis: visible, mem: mem, heap: heap}, nil
}

// free deallocates the memory.
func (m *memory) free() {
	if m == nil || m.g == nil {
		return
	}
	vk.FreeMemory(m.g.dev, m.mem, nil)
	m.g.mmu.Lock()
	m.g.mused[m.heap] -= m.size
	m.g.mmu.Unlock()
	*m = memory{}
}

// instanceLayers returns the names of the available
// instance layers.
func instanceLayers() []string {
	var n uint32
	if vk.EnumerateInstanceLayerProperties(&n, nil) != vk.Success || n == 0 {
		return nil
	}
	props := make([]vk.LayerProperties, n)
	if vk.EnumerateInstanceLayerProperties(&n, props) != vk.Success {
		return nil
	}
	names := make([]string, 0, n)
	for i := range props[:n] {
		props[i].Deref()
		names = append(names, vk.ToString(props[i].LayerName[:]))
	}
	return names
}

// instanceExts returns the names of the available
// instance extensions.
func instanceExts() []string {
	var n uint32
	if vk.EnumerateInstanceExtensionProperties("", &n, nil) != vk.Success || n == 0 {
		return nil
	}
	props := make([]vk.ExtensionProperties, n)
	if vk.EnumerateInstanceExtensionProperties("", &n, props) != vk.Success {
		return nil
	}
	names := make([]string, 0, n)
	for i := range props[:n] {
		props[i].Deref()
		names = append(names, vk.ToString(props[i].ExtensionName[:]))
	}
	return names
}

// deviceExts returns the names of the extensions that
// pdev supports.
func deviceExts(pdev vk.PhysicalDevice) []string {
	var n uint32
	if vk.EnumerateDeviceExtensionProperties(pdev, "", &n, nil) != vk.Success || n == 0 {
		return nil
	}
	props := make([]vk.ExtensionProperties, n)
	if vk.EnumerateDeviceExtensionProperties(pdev, "", &n, props) != vk.Success {
		return nil
	}
	names := make([]string, 0, n)
	for i := range props[:n] {
		props[i].Deref()
		names = append(names, vk.ToString(props[i].ExtensionName[:]))
	}
	return names
}

// cstr null-terminates s.
func cstr(s string) string {
	if strings.HasSuffix(s, "\x00") {
		return s
	}
	return s + "\x00"
}

// cstrs null-terminates every string in s.
func cstrs(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	c := make([]string, len(s))
	for i := range s {
		c[i] = cstr(s[i])
	}
	return c
}

// resultString returns the name of a VkResult.
func resultString(res vk.Result) string {
	switch res {
	case vk.Success:
		return "VK_SUCCESS"
	case vk.NotReady:
		return "VK_NOT_READY"
	case vk.Timeout:
		return "VK_TIMEOUT"
	case vk.Incomplete:
		return "VK_INCOMPLETE"
	case vk.Suboptimal:
		return "VK_SUBOPTIMAL_KHR"
	case vk.ErrorOutOfHostMemory:
		return "VK_ERROR_OUT_OF_HOST_MEMORY"
	case vk.ErrorOutOfDeviceMemory:
		return "VK_ERROR_OUT_OF_DEVICE_MEMORY"
	case vk.ErrorInitializationFailed:
		return "VK_ERROR_INITIALIZATION_FAILED"
	case vk.ErrorDeviceLost:
		return "VK_ERROR_DEVICE_LOST"
	case vk.ErrorMemoryMapFailed:
		return "VK_ERROR_MEMORY_MAP_FAILED"
	case vk.ErrorLayerNotPresent:
		return "VK_ERROR_LAYER_NOT_PRESENT"
	case vk.ErrorExtensionNotPresent:
		return "VK_ERROR_EXTENSION_NOT_PRESENT"
	case vk.ErrorFeatureNotPresent:
		return "VK_ERROR_FEATURE_NOT_PRESENT"
	case vk.ErrorIncompatibleDriver:
		return "VK_ERROR_INCOMPATIBLE_DRIVER"
	case vk.ErrorTooManyObjects:
		return "VK_ERROR_TOO_MANY_OBJECTS"
	case vk.ErrorFormatNotSupported:
		return "VK_ERROR_FORMAT_NOT_SUPPORTED"
	case vk.ErrorFragmentedPool:
		return "VK_ERROR_FRAGMENTED_POOL"
	case vk.ErrorSurfaceLost:
		return "VK_ERROR_SURFACE_LOST_KHR"
	case vk.ErrorNativeWindowInUse:
		return "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR"
	case vk.ErrorOutOfDate:
		return "VK_ERROR_OUT_OF_DATE_KHR"
	}
	return fmt.Sprintf("VkResult(%d)", int32(res))
}

// resultErr maps an error VkResult to a driver sentinel.
func resultErr(res vk.Result) error {
	switch res {
	case vk.ErrorOutOfHostMemory:
		return driver.ErrNoHostMemory
	case vk.ErrorOutOfDeviceMemory:
		return driver.ErrNoDeviceMemory
	case vk.ErrorDeviceLost:
		return driver.ErrDeviceLost
	case vk.ErrorSurfaceLost, vk.ErrorOutOfDate:
		return driver.ErrSwapchain
	case vk.ErrorNativeWindowInUse:
		return driver.ErrSurface
	case vk.ErrorLayerNotPresent, vk.ErrorExtensionNotPresent, vk.ErrorIncompatibleDriver:
		return driver.ErrNotInstalled
	case vk.ErrorInitializationFailed, vk.ErrorFeatureNotPresent:
		return driver.ErrNoDevice
	}
	return driver.ErrResource
}

// checkResult returns a *driver.Error derived from res,
// or nil if res does not indicate an error.
// Error codes are all negative.
func checkResult(res vk.Result, op, obj string) error {
	if res >= 0 {
		return nil
	}
	return driver.NewError(resultErr(res), op, obj, resultString(res))
}

var errNotRecording = errors.New("vk: command buffer not recording")
