package daemon

import (
	"context"
	"strconv"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

// mdnsServiceType mirrors the teacher's src/dns_sd.go KISS-over-TCP
// announcement, repurposed as a purely operational courtesy: it never
// substitutes for the TLV-on-control discovery path (spec §4.9, §6), which
// remains the sole normative way a client finds a daemon's socket. A client
// that only sees this record, without the locked "Firmware Version" TLV,
// must still treat the card as not daemon-managed.
const mdnsServiceType = "_fcp._tcp"

// AnnounceMDNS registers a local-only mDNS record advertising socketPath as
// TXT metadata for card cardNum. Failures are logged and otherwise ignored:
// this is strictly a convenience, never required for correct operation.
func AnnounceMDNS(ctx context.Context, cardNum int, socketPath string) {
	cfg := dnssd.Config{
		Name: serviceName(cardNum),
		Type: mdnsServiceType,
		Port: 0,
		Text: map[string]string{"socket": socketPath},
	}
	svc, err := dnssd.NewService(cfg)
	if err != nil {
		log.Warn("daemon: dnssd: create service", "err", err)
		return
	}
	responder, err := dnssd.NewResponder()
	if err != nil {
		log.Warn("daemon: dnssd: create responder", "err", err)
		return
	}
	if _, err := responder.Add(svc); err != nil {
		log.Warn("daemon: dnssd: add service", "err", err)
		return
	}
	go func() {
		if err := responder.Respond(ctx); err != nil && ctx.Err() == nil {
			log.Warn("daemon: dnssd: responder", "err", err)
		}
	}()
}

func serviceName(cardNum int) string {
	return "fcp-" + strconv.Itoa(cardNum)
}
