package discovery

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBrowser() *Browser {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewBrowser(BrowserConfig{}, l)
}

func TestNewBrowserDefaults(t *testing.T) {
	b := NewBrowser(BrowserConfig{}, nil)
	assert.Equal(t, DefaultServiceType, b.config.ServiceType)
	assert.Equal(t, DefaultDomain, b.config.Domain)
}

func TestBrowserDedupByIP(t *testing.T) {
	b := testBrowser()

	ev, ok := b.handleEntry(ServiceEntry{
		Instance: "arpeggiator",
		Host:     "pi.local.",
		Port:     8000,
		AddrIPv4: []net.IP{net.ParseIP("192.168.1.20")},
	})
	require.True(t, ok)
	assert.Equal(t, ServiceAdded, ev.Kind)
	assert.Equal(t, Service{Name: "arpeggiator", Host: "pi.local.", IP: "192.168.1.20", Port: 8000}, ev.Service)

	// Same host announced again under another name, e.g. from a second interface.
	_, ok = b.handleEntry(ServiceEntry{
		Instance: "arpeggiator (2)",
		Port:     9000,
		AddrIPv4: []net.IP{net.ParseIP("192.168.1.20")},
	})
	assert.False(t, ok)

	require.Len(t, b.Services(), 1)
	assert.Equal(t, 8000, b.Services()[0].Port)
}

func TestBrowserSkipsEntryWithoutAddress(t *testing.T) {
	b := testBrowser()
	_, ok := b.handleEntry(ServiceEntry{Instance: "ghost", Port: 8000})
	assert.False(t, ok)
	assert.Empty(t, b.Services())
}

func TestBrowserPrefersIPv4(t *testing.T) {
	b := testBrowser()
	ev, ok := b.handleEntry(ServiceEntry{
		Instance: "synth",
		Port:     8000,
		AddrIPv4: []net.IP{net.ParseIP("10.0.0.5")},
		AddrIPv6: []net.IP{net.ParseIP("fe80::5")},
	})
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5", ev.Service.IP)
	assert.Equal(t, "10.0.0.5:8000", ev.Service.Target())

	ev, ok = b.handleEntry(ServiceEntry{
		Instance: "v6only",
		Port:     8001,
		AddrIPv6: []net.IP{net.ParseIP("fe80::6")},
	})
	require.True(t, ok)
	assert.Equal(t, "[fe80::6]:8001", ev.Service.Target())
}

func TestBrowserRemovesByInstanceName(t *testing.T) {
	b := testBrowser()
	b.handleEntry(ServiceEntry{Instance: "a", Port: 1, AddrIPv4: []net.IP{net.ParseIP("10.0.0.1")}})
	b.handleEntry(ServiceEntry{Instance: "b", Port: 2, AddrIPv4: []net.IP{net.ParseIP("10.0.0.2")}})

	events := b.handleRemoved(ServiceEntry{Instance: "a"})
	require.Len(t, events, 1)
	assert.Equal(t, ServiceRemoved, events[0].Kind)
	assert.Equal(t, "10.0.0.1", events[0].Service.IP)

	assert.Empty(t, b.handleRemoved(ServiceEntry{Instance: "unknown"}))
	require.Len(t, b.Services(), 1)
	assert.Equal(t, "b", b.Services()[0].Name)
}

func TestEntryFromZeroconf(t *testing.T) {
	ze := &zeroconf.ServiceEntry{}
	ze.Instance = "arp"
	ze.HostName = "pi.local."
	ze.Port = 8000
	ze.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.9")}

	got := entryFromZeroconf(ze)
	assert.Equal(t, "arp", got.Instance)
	assert.Equal(t, "pi.local.", got.Host)
	assert.Equal(t, 8000, got.Port)
	assert.Equal(t, ze.AddrIPv4, got.AddrIPv4)
}

func zeroconfEntry(instance, ip string) *zeroconf.ServiceEntry {
	ze := &zeroconf.ServiceEntry{}
	ze.Instance = instance
	ze.HostName = instance + ".local."
	ze.Port = 8000
	ze.AddrIPv4 = []net.IP{net.ParseIP(ip)}
	return ze
}

func TestConsumeAppliesEvents(t *testing.T) {
	b := testBrowser()
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	errCh := make(chan error, 1)

	var got []EventKind
	result := make(chan error, 1)
	go func() {
		result <- b.consume(context.Background(), entries, removed, errCh, func(ev Event) {
			got = append(got, ev.Kind)
		})
	}()

	entries <- zeroconfEntry("arp", "192.168.1.9")
	removed <- zeroconfEntry("arp", "192.168.1.9")
	errCh <- nil

	require.NoError(t, <-result)
	assert.Equal(t, []EventKind{ServiceAdded, ServiceRemoved}, got)
}

func TestConsumeReportsBrowseError(t *testing.T) {
	b := testBrowser()
	errCh := make(chan error, 1)
	errCh <- errors.New("no multicast")

	err := b.consume(context.Background(), nil, nil, errCh, nil)
	assert.ErrorContains(t, err, "no multicast")
}

func TestConsumeDrainsUntilBrowseReturnsAfterCancel(t *testing.T) {
	b := testBrowser()
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	errCh := make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	result := make(chan error, 1)
	go func() {
		result <- b.consume(ctx, entries, removed, errCh, func(Event) { calls++ })
	}()

	// zeroconf may still be mid-send after cancellation; neither send may block.
	sent := make(chan struct{})
	go func() {
		entries <- zeroconfEntry("late", "192.168.1.30")
		removed <- zeroconfEntry("late", "192.168.1.30")
		close(sent)
	}()
	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("send after cancellation blocked")
	}

	select {
	case <-result:
		t.Fatal("consume returned before the browse goroutine finished")
	case <-time.After(50 * time.Millisecond):
	}

	errCh <- context.Canceled
	require.NoError(t, <-result)
	assert.Zero(t, calls, "events after cancellation are dropped")
	assert.Empty(t, b.Services())
}
