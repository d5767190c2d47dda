// Command fcpctl is the companion firmware-management client (spec §6
// "CLI (client)"). Argument parsing and help text are explicitly in scope
// here even though spec §1 calls out the *original* client's argument
// parsing as an external collaborator detail — this rebuild's own CLI
// surface is what spec §6 enumerates, so it lives in this package.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/fcp-project/fcpd/internal/cardenum"
	"github.com/fcp-project/fcpd/internal/daemon"
	"github.com/fcp-project/fcpd/internal/fcpclient"
	"github.com/fcp-project/fcpd/internal/firmware"
	"github.com/fcp-project/fcpd/internal/socket"
)

const aboutText = "fcpctl - firmware control client for FCP-managed audio interfaces"

func main() {
	var (
		card     = pflag.IntP("card", "c", 0, "card number")
		firmwarePath = pflag.StringP("firmware", "f", "", "path to a firmware container file")
	)
	pflag.BoolP("list", "l", false, "alias for the list command")
	pflag.BoolP("upload-app", "u", false, "alias for the upload-app command")
	pflag.BoolP("help", "h", false, "alias for the help command")
	pflag.Parse()

	args := pflag.Args()
	cmd := "help"
	if len(args) > 0 {
		cmd = args[0]
	}
	switch {
	case pflagBool("list"):
		cmd = "list"
	case pflagBool("upload-app"):
		cmd = "upload-app"
	case pflagBool("help"):
		cmd = "help"
	}

	if err := dispatch(cmd, *card, *firmwarePath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func pflagBool(name string) bool {
	f := pflag.Lookup(name)
	return f != nil && f.Value.String() == "true"
}

func dispatch(cmd string, card int, firmwarePath string) error {
	switch cmd {
	case "help":
		printHelp()
		return nil
	case "about":
		fmt.Println(aboutText)
		return nil
	case "list":
		return listCards(false)
	case "list-all":
		return listCards(true)
	case "reboot":
		return rebootAndWait(card)
	case "erase-config":
		return withClient(card, func(c *fcpclient.Client) error {
			return runWithProgress(c, socket.ReqConfigErase, nil)
		})
	case "erase-app":
		return withClient(card, func(c *fcpclient.Client) error {
			return runWithProgress(c, socket.ReqAppFirmwareErase, nil)
		})
	case "upload-app", "update":
		return uploadFirmware(card, firmwarePath, socket.ReqAppFirmwareUpdate)
	case "upload-esp":
		return uploadFirmware(card, firmwarePath, socket.ReqESPFirmwareUpdate)
	case "upload-leapfrog":
		return uploadFirmware(card, firmwarePath, socket.ReqAppFirmwareUpdate)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printHelp() {
	fmt.Println(aboutText)
	fmt.Println("Commands: list, list-all, help, about, reboot, erase-config, erase-app,")
	fmt.Println("          upload-leapfrog, upload-esp, upload-app, update")
	fmt.Println("Flags:    -c, --card N        card number")
	fmt.Println("          -f, --firmware PATH firmware container file")
}

func listCards(all bool) error {
	cards, err := cardenum.New().List()
	if err != nil {
		return err
	}
	for _, c := range cards {
		managed := "daemon: absent"
		if isManaged(c.Number) {
			managed = "daemon: present"
		} else if !all {
			continue
		}
		fmt.Printf("card %d  serial %s  %s\n", c.Number, c.Serial, managed)
	}
	return nil
}

// isManaged reports whether card's daemon socket exists, a cheap proxy for
// the TLV-plus-lock discovery check described in spec §4.9. A full check
// additionally decodes the TLV from the "Firmware Version" control, which
// requires the out-of-scope audio-control surface binding.
func isManaged(card int) bool {
	_, err := os.Stat(daemon.SocketPath(card))
	return err == nil
}

func withClient(card int, fn func(*fcpclient.Client) error) error {
	c, err := fcpclient.Dial(daemon.SocketPath(card))
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func runWithProgress(c *fcpclient.Client, reqType socket.RequestType, payload []byte) error {
	return c.Run(reqType, payload, printProgress)
}

// printProgress renders spec §7's "\n[####......] 42%" in-place progress
// bar on stderr.
func printProgress(pct uint8) {
	filled := int(pct) / 10
	bar := ""
	for i := 0; i < 10; i++ {
		if i < filled {
			bar += "#"
		} else {
			bar += "."
		}
	}
	fmt.Fprintf(os.Stderr, "\r[%s] %d%%", bar, pct)
	if pct == 100 {
		fmt.Fprintln(os.Stderr)
	}
}

func uploadFirmware(card int, path string, reqType socket.RequestType) error {
	if path == "" {
		return fmt.Errorf("firmware path required (-f/--firmware)")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	container, err := firmware.Read(f)
	if err != nil {
		return fmt.Errorf("parse firmware file: %w", err)
	}
	if len(container.Sections) == 0 {
		return fmt.Errorf("firmware file has no sections")
	}
	section := container.Sections[0]

	payload := socket.FirmwarePayload{
		VID:    section.Header.VID,
		PID:    section.Header.PID,
		SHA256: section.Header.SHA256,
		Data:   section.Payload,
	}
	if section.Kind == firmware.SectionAux {
		payload.MD5 = section.MD5
	}

	return withClient(card, func(c *fcpclient.Client) error {
		return runWithProgress(c, reqType, payload.Encode())
	})
}

// rebootAndWait issues REBOOT, then polls for the same card's USB serial to
// reappear (spec §8 scenario 6: "awaits socket EOF... then polls for a card
// whose serial equals the previously-observed one for <=20s at 1Hz").
func rebootAndWait(card int) error {
	enum := cardenum.New()
	serial, err := enum.Serial(card)
	if err != nil {
		return fmt.Errorf("resolve card serial: %w", err)
	}
	if err := withClient(card, func(c *fcpclient.Client) error {
		return c.Reboot()
	}); err != nil {
		return err
	}
	if _, err := enum.WaitForSerial(serial, 20*time.Second); err != nil {
		return err
	}
	return nil
}
