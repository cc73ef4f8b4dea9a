package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/huddlechat/huddle-server/internal/callengine"
	"github.com/huddlechat/huddle-server/internal/store"
)

type callState int

const (
	callStateCalling callState = iota
	callStateRinging
	callStateInCall
)

// callLeg is one side of a live call. A leg exists only while its side is
// not idle; terminal transitions remove both legs of the pair.
type callLeg struct {
	self        string // normalized identity
	selfDisplay string
	peer        string
	peerDisplay string
	state       callState
	direction   string // store.CallDirectionOutgoing or Incoming

	seq       uint64 // invalidates stale ring-timer fires
	ringTimer *time.Timer

	connected bool
	seconds   int
	tickStop  chan struct{}

	session callengine.Session
}

// CallConfig tunes coordinator timing. Zero values take the defaults
// (30s ring timeout, 1s duration tick).
type CallConfig struct {
	RingTimeout  time.Duration
	TickInterval time.Duration
}

// Coordinator owns call-session state for all identities. The leg table
// is the single authoritative state container: timer callbacks and event
// handlers read current state through it under the mutex rather than
// capturing snapshots.
type Coordinator struct {
	mu      sync.Mutex
	legs    map[string]*callLeg
	nextSeq uint64

	cfg     CallConfig
	engine  callengine.Engine
	callLog store.CallLogStore // may be nil

	resolve func(ctx context.Context, identity string) (string, error)
	deliver func(connID string, ev *Event) bool
	log     *zerolog.Logger
}

// NewCoordinator builds a coordinator. resolve maps identities to
// connection ids through the presence directory; deliver pushes an event
// to a local connection.
func NewCoordinator(
	engine callengine.Engine,
	callLog store.CallLogStore,
	resolve func(ctx context.Context, identity string) (string, error),
	deliver func(connID string, ev *Event) bool,
	cfg CallConfig,
	logger *zerolog.Logger,
) *Coordinator {
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = 30 * time.Second
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &Coordinator{
		legs:    make(map[string]*callLeg),
		cfg:     cfg,
		engine:  engine,
		callLog: callLog,
		resolve: resolve,
		deliver: deliver,
		log:     logger,
	}
}

// notify resolves identity and delivers the event if the connection is
// present. Absent targets are silently dropped.
func (co *Coordinator) notify(ctx context.Context, identity string, ev *Event) bool {
	connID, err := co.resolve(ctx, identity)
	if err != nil || connID == "" {
		return false
	}
	return co.deliver(connID, ev)
}

// Request handles call:request from the caller. The callee must be
// present and idle; otherwise the caller observes unavailability.
func (co *Coordinator) Request(ctx context.Context, fromIdentity, fromDisplay, to string) {
	toDisplay := strings.TrimSpace(to)
	toIdentity := NormalizeIdentity(to)
	if fromIdentity == "" || toIdentity == "" || toIdentity == fromIdentity {
		return
	}

	peerConn, err := co.resolve(ctx, toIdentity)
	if err != nil {
		peerConn = ""
	}

	co.mu.Lock()
	if co.legs[fromIdentity] != nil {
		// Caller is not idle; a request here is a client logic error.
		co.mu.Unlock()
		return
	}
	if peerConn == "" || co.legs[toIdentity] != nil {
		co.mu.Unlock()
		co.notify(ctx, fromIdentity, &Event{
			Kind: EventCallUnavailable,
			Call: &CallNotice{To: toDisplay},
		})
		co.log.Info().Str("from", fromDisplay).Str("to", toDisplay).Msg("call target unavailable")
		return
	}

	caller := &callLeg{
		self:        fromIdentity,
		selfDisplay: fromDisplay,
		peer:        toIdentity,
		peerDisplay: toDisplay,
		state:       callStateCalling,
		direction:   store.CallDirectionOutgoing,
	}
	callee := &callLeg{
		self:        toIdentity,
		selfDisplay: toDisplay,
		peer:        fromIdentity,
		peerDisplay: fromDisplay,
		state:       callStateRinging,
		direction:   store.CallDirectionIncoming,
	}
	co.legs[fromIdentity] = caller
	co.legs[toIdentity] = callee
	co.armRingTimerLocked(caller)
	co.armRingTimerLocked(callee)
	co.mu.Unlock()

	co.deliver(peerConn, &Event{
		Kind: EventCallIncoming,
		Call: &CallNotice{From: fromDisplay},
	})
	co.log.Info().Str("from", fromDisplay).Str("to", toDisplay).Msg("call requested")
}

func (co *Coordinator) armRingTimerLocked(leg *callLeg) {
	co.nextSeq++
	leg.seq = co.nextSeq
	identity, seq := leg.self, leg.seq
	leg.ringTimer = time.AfterFunc(co.cfg.RingTimeout, func() {
		co.onRingTimeout(identity, seq)
	})
}

// onRingTimeout fires when neither accept nor reject arrived in time.
// Both sides return to idle; each side gets one missed log entry.
func (co *Coordinator) onRingTimeout(identity string, seq uint64) {
	co.mu.Lock()
	leg := co.legs[identity]
	if leg == nil || leg.seq != seq || leg.state == callStateInCall {
		co.mu.Unlock()
		return
	}
	pair := co.takePairLocked(leg)
	co.mu.Unlock()

	ctx := context.Background()
	for _, l := range pair {
		co.recordCall(ctx, l, store.CallOutcomeMissed, 0)
		co.notify(ctx, l.self, &Event{
			Kind: EventCallTimeout,
			Call: &CallNotice{From: l.peerDisplay},
		})
		co.log.Info().
			Str("identity", l.selfDisplay).
			Str("peer", l.peerDisplay).
			Str("direction", l.direction).
			Str("outcome", store.CallOutcomeMissed).
			Msg("call missed")
	}
}

// Accept handles call:accept from the callee.
func (co *Coordinator) Accept(ctx context.Context, fromIdentity, fromDisplay, to string) {
	toIdentity := NormalizeIdentity(to)

	co.mu.Lock()
	leg := co.legs[fromIdentity]
	if leg == nil || leg.state != callStateRinging || leg.peer != toIdentity {
		co.mu.Unlock()
		return
	}
	peerLeg := co.legs[toIdentity]
	if peerLeg == nil || peerLeg.state != callStateCalling {
		co.mu.Unlock()
		return
	}

	co.cancelRingLocked(leg)
	co.cancelRingLocked(peerLeg)
	leg.state = callStateInCall
	peerLeg.state = callStateInCall
	caller, callee := peerLeg.self, leg.self
	callerDisplay := peerLeg.selfDisplay
	co.mu.Unlock()

	sess, err := co.engine.Open(ctx, uuid.NewString(), callerDisplay, fromDisplay,
		func(state callengine.TransportState) {
			switch state {
			case callengine.TransportConnected:
				co.markConnected(caller, callee)
			case callengine.TransportDisconnected, callengine.TransportFailed:
				co.fail(caller, callee)
			}
		})
	if err != nil {
		co.log.Error().Err(err).Str("caller", caller).Str("callee", callee).Msg("open media session")
		co.fail(caller, callee)
		return
	}

	co.mu.Lock()
	leg = co.legs[callee]
	peerLeg = co.legs[caller]
	if leg == nil || peerLeg == nil || leg.state != callStateInCall {
		// Torn down while the session was opening.
		co.mu.Unlock()
		sess.Close()
		return
	}
	leg.session = sess
	peerLeg.session = sess
	co.mu.Unlock()

	co.notify(ctx, caller, &Event{
		Kind: EventCallAccepted,
		Call: &CallNotice{From: fromDisplay},
	})
	co.log.Info().Str("caller", callerDisplay).Str("callee", fromDisplay).Msg("call accepted")
}

// Reject handles call:reject from the callee.
func (co *Coordinator) Reject(ctx context.Context, fromIdentity, fromDisplay, to string) {
	toIdentity := NormalizeIdentity(to)

	co.mu.Lock()
	leg := co.legs[fromIdentity]
	if leg == nil || leg.state != callStateRinging || leg.peer != toIdentity {
		co.mu.Unlock()
		return
	}
	pair := co.takePairLocked(leg)
	co.mu.Unlock()

	for _, l := range pair {
		co.recordCall(ctx, l, store.CallOutcomeRejected, 0)
	}
	co.notify(ctx, toIdentity, &Event{
		Kind: EventCallRejected,
		Call: &CallNotice{From: fromDisplay},
	})
	co.log.Info().
		Str("callee", fromDisplay).
		Str("caller", leg.peerDisplay).
		Str("outcome", store.CallOutcomeRejected).
		Msg("call rejected")
}

// End handles call:end from either side. fallbackSeconds is the
// client-reported duration, used only when the server never observed a
// connected transport.
func (co *Coordinator) End(ctx context.Context, fromIdentity, fromDisplay, to string, fallbackSeconds int) {
	toIdentity := NormalizeIdentity(to)

	co.mu.Lock()
	leg := co.legs[fromIdentity]
	if leg == nil || leg.state != callStateInCall || leg.peer != toIdentity {
		co.mu.Unlock()
		return
	}
	duration := leg.seconds
	if duration == 0 && !leg.connected && fallbackSeconds > 0 {
		duration = fallbackSeconds
	}
	pair := co.takePairLocked(leg)
	co.mu.Unlock()

	for _, l := range pair {
		co.recordCall(ctx, l, store.CallOutcomeEnded, duration)
	}
	co.notify(ctx, toIdentity, &Event{
		Kind: EventCallEnded,
		Call: &CallNotice{From: fromDisplay, Duration: duration},
	})

	logEv := co.log.Info().
		Str("identity", fromDisplay).
		Str("peer", leg.peerDisplay).
		Str("outcome", store.CallOutcomeEnded)
	if duration > 0 {
		logEv = logEv.Int("duration_seconds", duration)
	}
	logEv.Msg("call ended")
}

// NotifyAnswer is invoked by the relay when an answer payload between the
// two identities has been forwarded: the negotiation round-trip is done
// and the transport is treated as connected.
func (co *Coordinator) NotifyAnswer(a, b string) {
	co.markConnected(a, b)
}

// markConnected starts duration accounting for an in-call pair. Idempotent.
func (co *Coordinator) markConnected(a, b string) {
	co.mu.Lock()
	defer co.mu.Unlock()

	la, lb := co.legs[a], co.legs[b]
	if la == nil || lb == nil || la.peer != b ||
		la.state != callStateInCall || lb.state != callStateInCall || la.connected {
		return
	}
	la.connected = true
	lb.connected = true

	stop := make(chan struct{})
	la.tickStop = stop
	lb.tickStop = stop
	go co.tickPair(a, b, stop)
}

func (co *Coordinator) tickPair(a, b string, stop <-chan struct{}) {
	ticker := time.NewTicker(co.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			co.mu.Lock()
			la, lb := co.legs[a], co.legs[b]
			if la == nil || lb == nil {
				co.mu.Unlock()
				return
			}
			la.seconds++
			lb.seconds++
			co.mu.Unlock()
		case <-stop:
			return
		}
	}
}

// fail forces an in-call pair back to idle with end-style cleanup, used
// for transport failure and peer loss.
func (co *Coordinator) fail(a, b string) {
	co.mu.Lock()
	leg := co.legs[a]
	if leg == nil || leg.peer != b {
		co.mu.Unlock()
		return
	}
	duration := leg.seconds
	pair := co.takePairLocked(leg)
	co.mu.Unlock()

	ctx := context.Background()
	for _, l := range pair {
		co.recordCall(ctx, l, store.CallOutcomeFailed, duration)
		co.notify(ctx, l.self, &Event{
			Kind: EventCallEnded,
			Call: &CallNotice{From: l.peerDisplay, Duration: duration},
		})
	}
	co.log.Warn().Str("a", a).Str("b", b).Str("outcome", store.CallOutcomeFailed).Msg("call failed")
}

// HandleDisconnect cleans up any live call the identity participates in.
// The surviving peer is notified and both legs are fully torn down.
func (co *Coordinator) HandleDisconnect(ctx context.Context, identity string) {
	co.mu.Lock()
	leg := co.legs[identity]
	if leg == nil {
		co.mu.Unlock()
		return
	}
	duration := leg.seconds
	outcome := store.CallOutcomeFailed
	if leg.state != callStateInCall {
		outcome = store.CallOutcomeMissed
	}
	peer := leg.peer
	peerDisplay := leg.selfDisplay
	pair := co.takePairLocked(leg)
	co.mu.Unlock()

	for _, l := range pair {
		co.recordCall(ctx, l, outcome, duration)
	}
	co.notify(ctx, peer, &Event{
		Kind: EventCallEnded,
		Call: &CallNotice{From: peerDisplay, Duration: duration},
	})
	co.log.Info().Str("identity", identity).Str("outcome", outcome).Msg("call peer disconnected")
}

// cancelRingLocked stops the ring timer and invalidates pending fires.
func (co *Coordinator) cancelRingLocked(leg *callLeg) {
	if leg.ringTimer != nil {
		leg.ringTimer.Stop()
		leg.ringTimer = nil
	}
	co.nextSeq++
	leg.seq = co.nextSeq
}

// takePairLocked removes both legs of leg's call and releases every
// resource: ring timers, the duration tick, and the media session. This
// runs on every terminal transition regardless of which branch triggered it.
func (co *Coordinator) takePairLocked(leg *callLeg) []*callLeg {
	pair := []*callLeg{leg}
	if peer := co.legs[leg.peer]; peer != nil && peer.peer == leg.self {
		pair = append(pair, peer)
	}

	var session callengine.Session
	for _, l := range pair {
		co.cancelRingLocked(l)
		if l.tickStop != nil {
			close(l.tickStop)
			l.tickStop = nil
			// Both legs share one stop channel.
			if peer := co.legs[l.peer]; peer != nil {
				peer.tickStop = nil
			}
		}
		if l.session != nil {
			session = l.session
			l.session = nil
		}
		delete(co.legs, l.self)
	}
	if session != nil {
		session.Close()
	}
	return pair
}

func (co *Coordinator) recordCall(ctx context.Context, leg *callLeg, outcome string, duration int) {
	if co.callLog == nil {
		return
	}
	rec := store.CallRecord{
		Identity:        leg.self,
		Peer:            leg.peerDisplay,
		Direction:       leg.direction,
		Outcome:         outcome,
		DurationSeconds: duration,
	}
	if err := co.callLog.RecordCall(ctx, rec); err != nil {
		co.log.Warn().Err(err).Str("identity", leg.selfDisplay).Msg("failed to record call")
	}
}

// Shutdown tears down all live calls without notifications.
func (co *Coordinator) Shutdown() {
	co.mu.Lock()
	defer co.mu.Unlock()
	for _, leg := range co.legs {
		co.cancelRingLocked(leg)
		if leg.tickStop != nil {
			stop := leg.tickStop
			leg.tickStop = nil
			if peer := co.legs[leg.peer]; peer != nil && peer.tickStop != nil {
				peer.tickStop = nil
			}
			close(stop)
		}
		if leg.session != nil {
			leg.session.Close()
			leg.session = nil
		}
	}
	co.legs = make(map[string]*callLeg)
}
