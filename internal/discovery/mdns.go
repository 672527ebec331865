package discovery

import (
	"context"
	"fmt"
	"net"

	"github.com/enbility/zeroconf/v3"
	"github.com/sirupsen/logrus"
)

// Defaults for the OSC service browser.
const (
	DefaultServiceType = "_osc._udp"
	DefaultDomain      = "local"
)

// Service is a resolved OSC endpoint.
type Service struct {
	Name string // DNS-SD instance name
	Host string
	IP   string
	Port int
}

// Target returns "ip:port".
func (s Service) Target() string {
	return net.JoinHostPort(s.IP, fmt.Sprint(s.Port))
}

// EventKind says whether a service appeared or went away.
type EventKind int

const (
	ServiceAdded EventKind = iota
	ServiceRemoved
)

// Event is delivered to the Browse callback.
type Event struct {
	Kind    EventKind
	Service Service
}

// ServiceEntry is the part of an mDNS answer the browser looks at. It
// decouples the handling logic from the zeroconf types.
type ServiceEntry struct {
	Instance string
	Host     string
	Port     int
	AddrIPv4 []net.IP
	AddrIPv6 []net.IP
}

func entryFromZeroconf(e *zeroconf.ServiceEntry) ServiceEntry {
	return ServiceEntry{
		Instance: e.Instance,
		Host:     e.HostName,
		Port:     e.Port,
		AddrIPv4: e.AddrIPv4,
		AddrIPv6: e.AddrIPv6,
	}
}

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	ServiceType string
	Domain      string
	// Interface restricts browsing to one network interface when set.
	Interface string
}

// Browser discovers OSC services over mDNS/DNS-SD. Services are
// deduplicated by resolved IP; the first instance seen for an address is
// kept. A removal announcement drops the service by instance name.
type Browser struct {
	config   BrowserConfig
	logger   logrus.FieldLogger
	services *Registry[string, Service]
}

// NewBrowser creates a browser. Empty config fields take the package
// defaults; a nil logger falls back to logrus defaults.
func NewBrowser(config BrowserConfig, logger logrus.FieldLogger) *Browser {
	if config.ServiceType == "" {
		config.ServiceType = DefaultServiceType
	}
	if config.Domain == "" {
		config.Domain = DefaultDomain
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Browser{
		config:   config,
		logger:   logger.WithField("service", config.ServiceType),
		services: NewRegistry[string, Service](func(s Service) string { return s.Name }),
	}
}

// Services returns the services found so far, in discovery order.
func (b *Browser) Services() []Service {
	return b.services.List()
}

// Browse forgets previous results and browses until ctx is done. fn, if
// non-nil, is called from the browsing goroutine for every change.
func (b *Browser) Browse(ctx context.Context, fn func(Event)) error {
	b.services.Reset()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	opts, err := b.clientOptions()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- zeroconf.Browse(ctx, b.config.ServiceType, b.config.Domain, entries, removed, opts...)
	}()

	b.logger.Debug("Browsing for OSC services")
	return b.consume(ctx, entries, removed, errCh, fn)
}

// consume applies zeroconf events until the browse goroutine reports on
// errCh. Once ctx is done, events are still read off the unbuffered channels
// but dropped, so zeroconf never blocks on a send while shutting down.
func (b *Browser) consume(ctx context.Context, entries, removed <-chan *zeroconf.ServiceEntry, errCh <-chan error, fn func(Event)) error {
	done := ctx.Done()
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			if ev, changed := b.handleEntry(entryFromZeroconf(e)); changed && fn != nil {
				fn(ev)
			}
		case e, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			for _, ev := range b.handleRemoved(entryFromZeroconf(e)) {
				if fn != nil {
					fn(ev)
				}
			}
		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("discovery: browse %s: %w", b.config.ServiceType, err)
			}
			return nil
		case <-done:
			b.logger.Debug("Browse cancelled, draining until zeroconf returns")
			done = nil
		}
	}
}

func (b *Browser) clientOptions() ([]zeroconf.ClientOption, error) {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err != nil {
			return nil, fmt.Errorf("discovery: interface %q: %w", b.config.Interface, err)
		}
		opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
	}
	return opts, nil
}

// handleEntry records a resolved entry. Entries without any address are
// skipped; IPv4 is preferred when both families are present.
func (b *Browser) handleEntry(e ServiceEntry) (Event, bool) {
	ip := preferredIP(e)
	if ip == "" {
		b.logger.WithField("instance", e.Instance).Debug("Skipping service without address")
		return Event{}, false
	}

	svc := Service{Name: e.Instance, Host: e.Host, IP: ip, Port: e.Port}
	if !b.services.Add(ip, svc) {
		return Event{}, false
	}
	b.logger.WithFields(logrus.Fields{
		"instance": svc.Name,
		"ip":       svc.IP,
		"port":     svc.Port,
	}).Info("OSC service found")
	return Event{Kind: ServiceAdded, Service: svc}, true
}

func (b *Browser) handleRemoved(e ServiceEntry) []Event {
	var events []Event
	for _, svc := range b.services.List() {
		if svc.Name == e.Instance {
			events = append(events, Event{Kind: ServiceRemoved, Service: svc})
		}
	}
	if n := b.services.RemoveByName(e.Instance); n > 0 {
		b.logger.WithField("instance", e.Instance).Info("OSC service lost")
	}
	return events
}

func preferredIP(e ServiceEntry) string {
	for _, ip := range e.AddrIPv4 {
		if ip != nil {
			return ip.String()
		}
	}
	for _, ip := range e.AddrIPv6 {
		if ip != nil {
			return ip.String()
		}
	}
	return ""
}
