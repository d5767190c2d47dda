// Command fcp-server is the privileged per-card daemon described by spec
// §1: it mediates between the kernel audio-control transport and both the
// audio-control surface and firmware-management clients. One instance
// manages exactly one hardware card.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/fcp-project/fcpd/internal/daemon"
	"github.com/fcp-project/fcpd/internal/devmap"
	"github.com/fcp-project/fcpd/internal/socket"
	"github.com/fcp-project/fcpd/internal/surface"
	"github.com/fcp-project/fcpd/internal/synth"
	"github.com/fcp-project/fcpd/internal/transport"
)

func main() {
	var (
		cardNum    = pflag.IntP("card", "c", 0, "card number this instance manages")
		devicePath = pflag.String("device", "", "path to the kernel audio-control character device")
		vid        = pflag.Uint16("vid", 0, "USB vendor id, used to validate firmware uploads")
		pid        = pflag.Uint16("pid", 0, "USB product id, used to locate the device-map/product-map files")
		configPath = pflag.String("config", "/etc/fcp/fcpd.yaml", "optional YAML config path")
	)
	pflag.Parse()

	daemon.SetupLogging()

	if err := run(*cardNum, *devicePath, *vid, *pid, *configPath); err != nil {
		log.Error("fcp-server: fatal", "err", err)
		os.Exit(1)
	}
}

func run(cardNum int, devicePath string, vid, pid uint16, configPath string) error {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if devicePath == "" {
		return fmt.Errorf("fcp-server: --device is required")
	}
	fd, err := syscall.Open(devicePath, syscall.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("fcp-server: open %s: %w", devicePath, err)
	}

	tr, err := transport.New(transport.NewLinuxKernelDevice(fd))
	if err != nil {
		if err == transport.ErrWrongDriver {
			log.Info("fcp-server: card not ours, exiting silently", "card", cardNum)
			return nil
		}
		return fmt.Errorf("fcp-server: transport handshake: %w", err)
	}

	loader := devmap.NewLoader()
	doc, err := loader.LoadDeviceMap(tr, pid)
	if err != nil {
		return fmt.Errorf("fcp-server: load device map: %w", err)
	}
	rawPM, err := loader.LoadProductMap(pid)
	if err != nil {
		return fmt.Errorf("fcp-server: load product map: %w", err)
	}
	pm, err := synth.ParseProductMap(rawPM)
	if err != nil {
		return err
	}

	res, err := synth.New(doc, pm, tr).Synthesize()
	if err != nil {
		return fmt.Errorf("fcp-server: synthesize controls: %w", err)
	}
	log.Info("fcp-server: synthesized controls", "count", res.Set.Len())

	path := daemon.SocketPath(cardNum)
	sock, err := socket.New(path, tr)
	if err != nil {
		return err
	}
	defer sock.Close()

	surf := surface.New()
	blob := surf.SocketTLV(path)
	if err := surf.PublishSocketTLV(blob); err != nil {
		return fmt.Errorf("fcp-server: publish socket TLV: %w", err)
	}

	d := daemon.New(tr, doc, res, surf, sock, vid, pid)
	if cfg.DebugEnabled() {
		log.Warn("fcp-server: FCP_DEBUG set, raw DATA command surface would be unlocked here")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	daemon.AnnounceMDNS(ctx, cardNum, path)

	log.Info("fcp-server: running", "card", cardNum, "socket", path)
	if err := d.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
