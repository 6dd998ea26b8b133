/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anima-gpu/engine"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/testbed"
)

func main() {
	configPath := flag.String("config", "config.toml", "path of the TOML configuration")
	headless := flag.Bool("headless", false, "render offscreen without a window")
	frames := flag.Uint64("frames", 0, "stop after this many frames (0 runs until closed)")
	validation := flag.Bool("validation", false, "enable the Vulkan validation layer")
	flag.Parse()

	cfg, err := engine.NewApplicationConfig(*configPath)
	if err != nil {
		os.Exit(1)
	}
	cfg.Headless = *headless
	cfg.MaxFrames = *frames
	cfg.Rendering.Validation = cfg.Rendering.Validation || *validation

	tb := testbed.NewTestGame(cfg)

	engine, err := engine.New(tb.Game)
	if err != nil {
		os.Exit(1)
	}

	if err := engine.Initialize(); err != nil {
		core.LogError("initialization failed: %s", err)
		_ = engine.Shutdown()
		os.Exit(1)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// stop the main loop, the engine shuts down on the main thread
	go func() {
		<-sigCh
		engine.Stop()
	}()

	// run engine
	runErr := engine.Run()
	if err := engine.Shutdown(); err != nil {
		core.LogError(err.Error())
	}
	if runErr != nil {
		core.LogError(runErr.Error())
		os.Exit(1)
	}
}
