package vulkan

import (
	"fmt"
	"runtime"
	"slices"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
)

// NewDevice creates the Vulkan instance, the surface of win and a
// logical device able to render and present to it. A nil win
// creates a headless device.
func NewDevice(appName string, win driver.Window, opts Options) (*VulkanDevice, error) {
	context, err := newVulkanContext(appName, win, opts)
	if err != nil {
		return nil, err
	}
	device, err := DeviceCreate(context)
	if err != nil {
		context.destroy()
		return nil, err
	}
	core.LogInfo("Vulkan renderer initialized successfully.")
	return device, nil
}

func newVulkanContext(appName string, win driver.Window, opts Options) (*VulkanContext, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil: %w", core.ErrNoDevice)
		core.LogError(err.Error())
		return nil, err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		err = fmt.Errorf("failed to initialize vk: %w", err)
		core.LogError(err.Error())
		return nil, err
	}

	// TODO: custom allocator.
	context := &VulkanContext{
		Allocator:  nil,
		validation: opts.Validation,
	}

	// Setup Vulkan instance.
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Anima GPU"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	var requiredExtensions []string
	if win != nil {
		requiredExtensions = append(requiredExtensions, "VK_KHR_surface") // Generic surface extension
		for _, name := range win.RequiredInstanceExtensions() {
			if !slices.Contains(requiredExtensions, name) {
				requiredExtensions = append(requiredExtensions, name)
			}
		}
	}

	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1 // VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
	}

	// Validation layers.
	var requiredValidationLayerNames []string

	// If validation should be done, get a list of the required validation layer names
	// and make sure they exist.
	if opts.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		core.LogInfo("Validation layers enabled. Enumerating...")

		requiredValidationLayerNames = []string{"VK_LAYER_KHRONOS_validation"}
		if err := checkValidationLayers(requiredValidationLayerNames); err != nil {
			return nil, err
		}
		core.LogInfo("All required validation layers are present.")
	}

	core.LogDebug("Required extensions: %v", requiredExtensions)
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(requiredValidationLayerNames))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredValidationLayerNames)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, context.Allocator, &instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`: %w", VulkanResultString(res, true), core.ErrNoDevice)
		core.LogError(err.Error())
		return nil, err
	}
	context.Instance = instance
	if err := vk.InitInstance(context.Instance); err != nil {
		core.LogError(err.Error())
		context.destroy()
		return nil, err
	}
	core.LogInfo("Vulkan Instance created.")

	// Debugger
	if opts.Validation {
		core.LogDebug("Creating Vulkan debugger...")
		flags := vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit
		if opts.Debug {
			flags |= vk.DebugReportInformationBit
		}
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(flags),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(context.Instance, &debugCreateInfo, context.Allocator, &dbg)); err != nil {
			// Validation still runs, its reports go to stdout.
			core.LogWarn("vk.CreateDebugReportCallback failed with %s", err)
		} else {
			context.debugMessenger = dbg
			core.LogDebug("Vulkan debugger created.")
		}
	}

	// Surface
	if win != nil {
		core.LogDebug("Creating Vulkan surface...")
		surface, err := win.CreateSurface(context.Instance)
		if err != nil || surface == 0 {
			err = fmt.Errorf("failed to create platform surface (%v): %w", err, core.ErrNoSurface)
			core.LogError(err.Error())
			context.destroy()
			return nil, err
		}
		context.Surface = vk.SurfaceFromPointer(surface)
		core.LogDebug("Vulkan surface created.")
	}
	return context, nil
}

func checkValidationLayers(required []string) error {
	// Obtain a list of available validation layers
	var availableLayerCount uint32
	if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil); res != vk.Success {
		return vulkanError("vkEnumerateInstanceLayerProperties", res)
	}
	availableLayers := make([]vk.LayerProperties, availableLayerCount)
	if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers); res != vk.Success {
		return vulkanError("vkEnumerateInstanceLayerProperties", res)
	}

	// Verify all required layers are available.
	for _, name := range required {
		core.LogInfo("Searching for layer: %s...", name)
		found := false
		for j := range availableLayers {
			availableLayers[j].Deref()
			if name == cString(availableLayers[j].LayerName[:]) {
				found = true
				core.LogInfo("Found.")
				break
			}
		}
		if !found {
			err := fmt.Errorf("required validation layer is missing: %s", name)
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
