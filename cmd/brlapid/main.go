// Command brlapid is the server daemon: it wires the registry,
// arbitrator, parameter engine and a device driver together behind the
// listener set and runs until signaled.
//
// Grounded on the teacher's cmd/server/main.go: os.Getenv-with-default
// configuration, a log.Printf startup line, and a blocking call that
// log.Fatals on failure — generalized from one http.ListenAndServe call
// to starting the listener set plus the sweep loop and waiting on an OS
// signal for a graceful stop.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/brlapi/brlapi-core/internal/arbitrator"
	"github.com/brlapi/brlapi-core/internal/auth"
	"github.com/brlapi/brlapi-core/internal/config"
	"github.com/brlapi/brlapi-core/internal/device"
	"github.com/brlapi/brlapi-core/internal/devicesim"
	"github.com/brlapi/brlapi-core/internal/params"
	"github.com/brlapi/brlapi-core/internal/registry"
	"github.com/brlapi/brlapi-core/internal/server"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stderr, "brlapid: ", log.LstdFlags)

	authr, err := auth.LoadKeyFile(cfg.Auth)
	if err != nil {
		logger.Fatalf("loading auth key: %v", err)
	}

	drv, err := devicesim.New(40, 1)
	if err != nil {
		logger.Fatalf("starting simulated device: %v", err)
	}
	defer drv.Close()

	tasks := device.NewCoreTaskRunner()
	defer tasks.Stop()

	reg := registry.New()
	arb := arbitrator.New(tasks)
	paramEngine := params.NewEngine()

	srv := server.New(reg, arb, paramEngine, drv, identityTable{}, noCursorOverlay{}, authr, logger)
	srv.RegisterParams()

	logger.Printf("starting on %s (socket dir %s)", cfg.Host, cfg.SocketDir)
	if err := srv.Listen(cfg.Host, cfg.SocketDir); err != nil {
		logger.Fatalf("listen: %v", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.RunSweep(ctx)
	go srv.RunCommandPump(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Printf("shutting down")
}

// identityTable is a placeholder window.TextTable mapping each rune to
// its own low byte, standing in for the real text-table compiler that
// spec §1 places out of scope.
type identityTable struct{}

func (identityTable) ConvertToDots(r rune) byte { return byte(r) }

// noCursorOverlay disables the screen-cursor dot overlay.
type noCursorOverlay struct{}

func (noCursorOverlay) Overlay() byte { return 0 }
