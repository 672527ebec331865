package ble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/matheoxz/parangolapp/internal/ble/protocol"
	"github.com/matheoxz/parangolapp/internal/discovery"
)

// SessionOptions configures a Session. Zero fields take the tag defaults.
type SessionOptions struct {
	ServiceUUID         string        `default:"eab05e32-bbf8-444c-b2a7-4311ed21d61d"`
	CredentialsCharUUID string        `default:"0663eb35-8ef2-4412-8981-326b53272d63"`
	StatusCharUUID      string        `default:"12345678-1234-1234-1234-1234567890ad"`
	ScanDuration        time.Duration `default:"5s"`  // scans stop on their own after this
	ConnectTimeout      time.Duration `default:"10s"` // link open to subscription
	NotifyTimeout       time.Duration `default:"10s"` // credentials write to network status
}

// DefaultSessionOptions returns the options used for PARANGOLE boards.
func DefaultSessionOptions() SessionOptions {
	var opts SessionOptions
	defaults.SetDefaults(&opts)
	return opts
}

// Session drives one provisioning link at a time.
//
// A single goroutine owns all session state. Commands from callers and
// callbacks from the platform are queued to it as events, and blocking
// platform calls run on helper goroutines that report back the same way.
// Every connection attempt, scan and credentials exchange carries a
// generation number so that results arriving after a timeout or a
// disconnect are recognized and dropped.
type Session struct {
	adapter Adapter
	opts    SessionOptions
	logger  logrus.FieldLogger
	devices *discovery.Registry[string, Device]

	events    chan event
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the run goroutine.
	state    State
	dirty    bool
	replies  []func()
	seq      uint64
	scan     *scanRun
	attempt  *connectAttempt
	link     *link
	exchange *exchange

	mu       sync.Mutex // guards the fields below
	snapshot State
	watchers map[int]chan State
	nextID   int
	closed   bool
}

type scanRun struct {
	gen    uint64
	filter string
	cancel context.CancelFunc
	timer  *time.Timer
}

type connectAttempt struct {
	gen       uint64
	device    Device
	reply     chan error
	cancel    context.CancelFunc
	stopWatch func() bool
	timer     *time.Timer
}

type link struct {
	gen    uint64
	conn   Connection
	creds  Characteristic
	status Characteristic
}

type exchange struct {
	gen   uint64
	reply chan sendReply
	timer *time.Timer
}

type sendReply struct {
	result Result
	err    error
}

type event any

// Commands.

type startScanCmd struct {
	filter string
	reply  chan error
}

type stopScanCmd struct {
	reply chan struct{}
}

type connectCmd struct {
	ctx    context.Context
	device Device
	reply  chan error
}

type sendCmd struct {
	ssid     string
	password *string
	reply    chan sendReply
}

type disconnectCmd struct {
	reply chan struct{}
}

type closeCmd struct{}

// Platform results and timers. gen identifies the scan, attempt, link or
// exchange the event belongs to.

type scanFound struct {
	gen    uint64
	device Device
}

type scanEnded struct {
	gen uint64
	err error
}

type scanExpired struct {
	gen uint64
}

type linkOpened struct {
	gen  uint64
	conn Connection
	err  error
}

type charsFound struct {
	gen    uint64
	creds  Characteristic
	status Characteristic
	err    error
}

type subscribed struct {
	gen uint64
	err error
}

type connectExpired struct {
	gen uint64
}

type connectCanceled struct {
	gen uint64
	err error
}

type writeDone struct {
	gen uint64
	err error
}

type notifyExpired struct {
	gen uint64
}

type notified struct {
	gen  uint64
	data []byte
}

type linkLost struct {
	gen uint64
}

// NewSession starts a session on adapter. A nil logger falls back to
// logrus defaults.
func NewSession(adapter Adapter, opts SessionOptions, logger logrus.FieldLogger) *Session {
	defaults.SetDefaults(&opts)
	if logger == nil {
		logger = logrus.New()
	}
	s := &Session{
		adapter:  adapter,
		opts:     opts,
		logger:   logger,
		devices:  discovery.NewRegistry[string, Device](func(d Device) string { return d.Name }),
		events:   make(chan event, 64),
		done:     make(chan struct{}),
		watchers: make(map[int]chan State),
	}
	go s.run()
	return s
}

// StartScan clears the discovered devices and scans for peripherals whose
// name contains filter, ignoring case. An empty filter keeps every
// device. The scan stops by itself after ScanDuration. Calling StartScan
// while a scan runs does nothing; calling it while a connection is live or
// in flight returns ErrBusy.
func (s *Session) StartScan(filter string) error {
	reply := make(chan error, 1)
	if err := s.send(startScanCmd{filter: filter, reply: reply}); err != nil {
		return err
	}
	err, ok := await(s.done, reply)
	if !ok {
		return ErrClosed
	}
	return err
}

// StopScan stops a running scan. It is safe to call at any time.
func (s *Session) StopScan() {
	reply := make(chan struct{}, 1)
	if s.send(stopScanCmd{reply: reply}) == nil {
		await(s.done, reply)
	}
}

// Devices returns the devices found by the last scan, in discovery order.
// A device is reported once per scan, under its first advertised name.
func (s *Session) Devices() []Device {
	return s.devices.List()
}

// Connect opens a link to device, finds the provisioning characteristics
// and subscribes to status notifications. It blocks until the session is
// connected or the attempt fails. A running scan is stopped first.
//
// Only one attempt may be in flight, and a session that is already
// connected must be disconnected first; otherwise Connect returns ErrBusy.
// Cancelling ctx aborts the attempt.
func (s *Session) Connect(ctx context.Context, device Device) error {
	reply := make(chan error, 1)
	if err := s.send(connectCmd{ctx: ctx, device: device, reply: reply}); err != nil {
		return err
	}
	err, ok := await(s.done, reply)
	if !ok {
		return ErrClosed
	}
	return err
}

// SendCredentials writes the network credentials and waits for the device
// to report the outcome. A nil password is sent for open networks.
//
// The session must be connected. It returns to PhaseConnected once the
// device answers or NotifyTimeout passes, so credentials can be retried.
// A failed write tears the link down and leaves the session in PhaseFailed.
// ctx bounds only the caller's wait; the exchange itself keeps running
// and its outcome shows up in State.
func (s *Session) SendCredentials(ctx context.Context, ssid string, password *string) (Result, error) {
	reply := make(chan sendReply, 1)
	if err := s.send(sendCmd{ssid: ssid, password: password, reply: reply}); err != nil {
		return Result{}, err
	}
	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-s.done:
		select {
		case r := <-reply:
			return r.result, r.err
		default:
			return Result{}, ErrClosed
		}
	}
}

// Disconnect tears down the link and cancels every pending operation.
// Callers blocked in Connect or SendCredentials get ErrDisconnected. It is
// safe to call from any phase, any number of times.
func (s *Session) Disconnect() {
	reply := make(chan struct{}, 1)
	if s.send(disconnectCmd{reply: reply}) == nil {
		await(s.done, reply)
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Watch returns a channel that receives the current state and then every
// change. A slow reader only misses intermediate states, never the latest.
// Call the returned function to stop watching; the channel is closed then
// or when the session is closed.
func (s *Session) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	ch <- s.snapshot
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.watchers[id]; ok {
				delete(s.watchers, id)
				close(c)
			}
		})
	}
}

// Close disconnects and stops the session. Further operations return
// ErrClosed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.post(closeCmd{})
	})
	<-s.done
	return nil
}

func (s *Session) send(ev event) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// post queues an internal event. It gives up once the session is closed.
func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func await[T any](done <-chan struct{}, reply <-chan T) (T, bool) {
	select {
	case v := <-reply:
		return v, true
	case <-done:
		select {
		case v := <-reply:
			return v, true
		default:
			var zero T
			return zero, false
		}
	}
}

func (s *Session) run() {
	defer close(s.done)
	for ev := range s.events {
		if _, ok := ev.(closeCmd); ok {
			s.shutdown()
			return
		}
		s.handle(ev)
		s.flush()
	}
}

// respond queues a reply to a caller. Replies go out after the state change
// that caused them is published, so a caller returning from a command
// always observes its effect in State.
func respond[T any](s *Session, ch chan T, v T) {
	s.replies = append(s.replies, func() { ch <- v })
}

func (s *Session) flush() {
	if s.dirty {
		s.dirty = false
		s.publish()
	}
	for _, r := range s.replies {
		r()
	}
	s.replies = s.replies[:0]
}

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case startScanCmd:
		respond(s, ev.reply, s.startScan(ev.filter))
	case stopScanCmd:
		s.stopScan()
		respond(s, ev.reply, struct{}{})
	case connectCmd:
		s.connect(ev)
	case sendCmd:
		s.sendCredentials(ev)
	case disconnectCmd:
		s.disconnect()
		respond(s, ev.reply, struct{}{})

	case scanFound:
		s.scanFound(ev)
	case scanEnded:
		s.scanEnded(ev)
	case scanExpired:
		if s.scan != nil && s.scan.gen == ev.gen {
			s.logger.WithField("devices", s.devices.Len()).Debug("Scan finished")
			s.stopScan()
		}
	case linkOpened:
		s.linkOpened(ev)
	case charsFound:
		s.charsFound(ev)
	case subscribed:
		s.subscribed(ev)
	case connectExpired:
		if s.attemptIs(ev.gen) {
			s.failConnect(fmt.Errorf("%w after %s", ErrConnectTimeout, s.opts.ConnectTimeout))
		}
	case connectCanceled:
		if s.attemptIs(ev.gen) {
			s.failConnect(fmt.Errorf("ble: connect to %s: %w", s.attempt.device.Address, ev.err))
		}
	case writeDone:
		s.writeDone(ev)
	case notifyExpired:
		if x := s.exchange; x != nil && x.gen == ev.gen {
			err := fmt.Errorf("%w after %s", ErrNotificationTimeout, s.opts.NotifyTimeout)
			s.finishExchange(s.state.Result, err, PhaseConnected)
		}
	case notified:
		s.notified(ev)
	case linkLost:
		s.linkLost(ev)
	}
}

// Scanning

func (s *Session) startScan(filter string) error {
	if s.scan != nil {
		return nil
	}
	if s.attempt != nil || s.link != nil {
		return ErrBusy
	}

	s.devices.Reset()
	s.setErr(nil)
	if err := s.adapter.Enable(); err != nil {
		err = fmt.Errorf("%w: enable adapter: %w", ErrScanStart, err)
		s.setErr(err)
		return err
	}

	s.seq++
	gen := s.seq
	ctx, cancel := context.WithCancel(context.Background())
	s.scan = &scanRun{
		gen:    gen,
		filter: filter,
		cancel: cancel,
		timer:  time.AfterFunc(s.opts.ScanDuration, func() { s.post(scanExpired{gen: gen}) }),
	}
	go func() {
		err := s.adapter.Scan(ctx, func(d Device) {
			s.post(scanFound{gen: gen, device: d})
		})
		s.post(scanEnded{gen: gen, err: err})
	}()

	s.logger.WithFields(logrus.Fields{
		"filter":   filter,
		"duration": s.opts.ScanDuration,
	}).Info("Scanning for devices")
	s.setPhase(PhaseScanning)
	return nil
}

func (s *Session) stopScan() {
	if s.scan == nil {
		return
	}
	s.scan.timer.Stop()
	s.scan.cancel()
	s.scan = nil
	if s.state.Phase == PhaseScanning {
		s.setPhase(PhaseIdle)
	}
}

func (s *Session) scanFound(ev scanFound) {
	if s.scan == nil || s.scan.gen != ev.gen {
		return
	}
	if !nameMatches(ev.device.Name, s.scan.filter) {
		return
	}
	if s.devices.Add(ev.device.Address, ev.device) {
		s.logger.WithFields(logrus.Fields{
			"address": ev.device.Address,
			"name":    ev.device.Name,
			"rssi":    ev.device.RSSI,
		}).Info("Device found")
	}
}

func (s *Session) scanEnded(ev scanEnded) {
	if s.scan == nil || s.scan.gen != ev.gen {
		return
	}
	if ev.err != nil {
		err := fmt.Errorf("%w: %w", ErrScanStart, ev.err)
		s.logger.WithError(err).Warn("Scan stopped")
		s.setErr(err)
	}
	s.stopScan()
}

func nameMatches(name, filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(filter))
}

// Connecting

func (s *Session) connect(ev connectCmd) {
	if s.attempt != nil || s.link != nil || s.exchange != nil {
		respond(s, ev.reply, ErrBusy)
		return
	}
	s.stopScan()

	s.seq++
	gen := s.seq
	ctx, cancel := context.WithCancel(ev.ctx)
	s.attempt = &connectAttempt{
		gen:       gen,
		device:    ev.device,
		reply:     ev.reply,
		cancel:    cancel,
		stopWatch: context.AfterFunc(ev.ctx, func() { s.post(connectCanceled{gen: gen, err: ev.ctx.Err()}) }),
		timer:     time.AfterFunc(s.opts.ConnectTimeout, func() { s.post(connectExpired{gen: gen}) }),
	}

	s.setDevice(ev.device)
	s.setResult(Result{})
	s.setAck(false)
	s.setErr(nil)
	s.setPhase(PhaseConnecting)
	s.logger.WithFields(logrus.Fields{
		"address": ev.device.Address,
		"attempt": gen,
	}).Info("Connecting")

	address := ev.device.Address
	go func() {
		conn, err := s.adapter.Connect(ctx, address)
		s.post(linkOpened{gen: gen, conn: conn, err: err})
	}()
}

func (s *Session) attemptIs(gen uint64) bool {
	return s.attempt != nil && s.attempt.gen == gen
}

func (s *Session) linkOpened(ev linkOpened) {
	if !s.attemptIs(ev.gen) {
		if ev.conn != nil {
			s.logger.WithField("attempt", ev.gen).Debug("Dropping link from abandoned attempt")
			s.closeConn(ev.conn)
		}
		return
	}
	if ev.err != nil {
		s.failConnect(fmt.Errorf("%w: %w", ErrConnectFailed, ev.err))
		return
	}

	gen := ev.gen
	conn := ev.conn
	s.link = &link{gen: gen, conn: conn}
	conn.OnDisconnect(func() { s.post(linkLost{gen: gen}) })
	s.setPhase(PhaseServiceDiscovery)

	svc, credsUUID, statusUUID := s.opts.ServiceUUID, s.opts.CredentialsCharUUID, s.opts.StatusCharUUID
	go func() {
		creds, err := conn.DiscoverCharacteristic(svc, credsUUID)
		if err != nil {
			s.post(charsFound{gen: gen, err: err})
			return
		}
		status, err := conn.DiscoverCharacteristic(svc, statusUUID)
		s.post(charsFound{gen: gen, creds: creds, status: status, err: err})
	}()
}

func (s *Session) charsFound(ev charsFound) {
	if !s.attemptIs(ev.gen) {
		return
	}
	if ev.err != nil {
		if errors.Is(ev.err, ErrCharacteristicMissing) {
			s.failConnect(ev.err)
		} else {
			s.failConnect(fmt.Errorf("%w: service discovery: %w", ErrConnectFailed, ev.err))
		}
		return
	}

	s.link.creds = ev.creds
	s.link.status = ev.status
	s.setPhase(PhaseAwaitingDeviceAck)

	gen := ev.gen
	status := ev.status
	go func() {
		err := status.Subscribe(func(data []byte) {
			s.post(notified{gen: gen, data: bytes.Clone(data)})
		})
		s.post(subscribed{gen: gen, err: err})
	}()
}

func (s *Session) subscribed(ev subscribed) {
	if !s.attemptIs(ev.gen) {
		return
	}
	if ev.err != nil {
		s.failConnect(fmt.Errorf("%w: subscribe to status: %w", ErrConnectFailed, ev.err))
		return
	}

	a := s.endAttempt()
	s.setPhase(PhaseConnected)
	s.logger.WithField("address", a.device.Address).Info("Connected")
	respond(s, a.reply, nil)
}

// endAttempt clears the in-flight attempt and its timers.
func (s *Session) endAttempt() *connectAttempt {
	a := s.attempt
	s.attempt = nil
	a.timer.Stop()
	a.stopWatch()
	a.cancel()
	return a
}

func (s *Session) failConnect(err error) {
	a := s.endAttempt()
	s.dropLink()
	s.setErr(err)
	s.setPhase(PhaseIdle)
	s.logger.WithFields(logrus.Fields{
		"address": a.device.Address,
		"attempt": a.gen,
	}).WithError(err).Warn("Connect failed")
	respond(s, a.reply, err)
}

// dropLink disconnects the current link, if any.
func (s *Session) dropLink() {
	if s.link == nil {
		return
	}
	conn := s.link.conn
	s.link = nil
	s.closeConn(conn)
}

func (s *Session) closeConn(conn Connection) {
	if err := conn.Disconnect(); err != nil {
		s.logger.WithError(err).Debug("Disconnect failed")
	}
}

// Provisioning

func (s *Session) sendCredentials(ev sendCmd) {
	if s.exchange != nil {
		respond(s, ev.reply, sendReply{err: ErrBusy})
		return
	}
	if s.link == nil || s.state.Phase != PhaseConnected {
		respond(s, ev.reply, sendReply{err: ErrNotConnected})
		return
	}

	s.seq++
	gen := s.seq
	s.exchange = &exchange{gen: gen, reply: ev.reply}
	s.setResult(Result{})
	s.setErr(nil)
	s.setPhase(PhaseProvisioning)
	s.logger.WithField("ssid", ev.ssid).Info("Sending credentials")

	payload := protocol.CredentialsPayload(ev.ssid, ev.password)
	creds := s.link.creds
	go func() {
		s.post(writeDone{gen: gen, err: creds.Write(payload)})
	}()
}

func (s *Session) writeDone(ev writeDone) {
	x := s.exchange
	if x == nil || x.gen != ev.gen {
		return
	}
	if ev.err != nil {
		err := fmt.Errorf("%w: %w", ErrWriteFailed, ev.err)
		s.dropLink()
		s.finishExchange(Result{Outcome: OutcomeTransportError}, err, PhaseFailed)
		return
	}

	gen := x.gen
	x.timer = time.AfterFunc(s.opts.NotifyTimeout, func() { s.post(notifyExpired{gen: gen}) })
	s.setPhase(PhaseAwaitingNetworkResult)
}

func (s *Session) finishExchange(res Result, err error, phase Phase) {
	x := s.exchange
	s.exchange = nil
	if x.timer != nil {
		x.timer.Stop()
	}
	s.setResult(res)
	s.setErr(err)
	s.setPhase(phase)

	entry := s.logger.WithField("outcome", res.Outcome)
	if res.IP != "" {
		entry = entry.WithField("ip", res.IP)
	}
	if err != nil {
		entry.WithError(err).Warn("Provisioning did not complete")
	} else {
		entry.Info("Provisioning complete")
	}
	respond(s, x.reply, sendReply{result: res, err: err})
}

func (s *Session) notified(ev notified) {
	if s.link == nil || s.link.gen != ev.gen {
		return
	}

	st := protocol.ParseStatus(ev.data)
	switch st.Kind {
	case protocol.StatusDeviceAck:
		s.logger.Debug("Device acknowledged")
		s.setAck(true)
	case protocol.StatusNetworkJoined:
		res := Result{Outcome: OutcomeNetworkJoined, IP: st.IP}
		if s.exchange != nil {
			s.finishExchange(res, nil, PhaseConnected)
		} else {
			s.setResult(res)
		}
	case protocol.StatusNetworkFailed:
		res := Result{Outcome: OutcomeNetworkFailed}
		if s.exchange != nil {
			s.finishExchange(res, ErrNetworkJoinFailed, PhaseConnected)
		} else {
			s.setResult(res)
		}
	default:
		s.logger.WithField("payload", string(ev.data)).Debug("Ignoring status notification")
	}
}

// Teardown

func (s *Session) linkLost(ev linkLost) {
	if s.link == nil || s.link.gen != ev.gen {
		return
	}
	s.link = nil

	if s.attempt != nil {
		s.failConnect(fmt.Errorf("%w: link lost", ErrConnectFailed))
		return
	}
	s.logger.Warn("Link lost")
	if s.exchange != nil {
		err := fmt.Errorf("%w: link lost", ErrDisconnected)
		s.finishExchange(Result{Outcome: OutcomeTransportError}, err, PhaseDisconnected)
		return
	}
	s.setPhase(PhaseDisconnected)
}

func (s *Session) disconnect() {
	active := s.attempt != nil || s.link != nil
	s.stopScan()

	if s.attempt != nil {
		a := s.endAttempt()
		respond(s, a.reply, ErrDisconnected)
	}
	if x := s.exchange; x != nil {
		s.exchange = nil
		if x.timer != nil {
			x.timer.Stop()
		}
		respond(s, x.reply, sendReply{err: ErrDisconnected})
	}
	s.dropLink()

	switch {
	case active:
		s.logger.Info("Disconnected")
		s.setPhase(PhaseDisconnected)
	case s.state.Phase != PhaseDisconnected:
		s.setPhase(PhaseIdle)
	}
}

func (s *Session) shutdown() {
	s.disconnect()
	s.flush()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
}

// State updates

func (s *Session) setPhase(p Phase) {
	if s.state.Phase == p {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"from":  s.state.Phase,
		"phase": p,
	}).Debug("Phase changed")
	s.state.Phase = p
	s.dirty = true
}

func (s *Session) setDevice(d Device) {
	s.state.Device = d
	s.dirty = true
}

func (s *Session) setResult(r Result) {
	s.state.Result = r
	s.dirty = true
}

func (s *Session) setAck(ack bool) {
	if s.state.Acknowledged != ack {
		s.state.Acknowledged = ack
		s.dirty = true
	}
}

func (s *Session) setErr(err error) {
	if s.state.Err != nil || err != nil {
		s.state.Err = err
		s.dirty = true
	}
}

func (s *Session) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = s.state
	for _, ch := range s.watchers {
		deliver(ch, s.state)
	}
}

// deliver replaces whatever ch holds with st. Only the run goroutine sends,
// under s.mu, so the second send cannot block.
func deliver(ch chan State, st State) {
	select {
	case ch <- st:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- st
}
