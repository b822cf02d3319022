package netcode

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

type telemetryCounters struct {
	envelopesSent     atomic.Uint64
	bytesSent         atomic.Uint64
	envelopesReceived atomic.Uint64
	lastBroadcastSize atomic.Uint64
	tickDurationMs    atomic.Int64

	fullStatesSent  atomic.Uint64
	deltaStatesSent atomic.Uint64
	statesApplied   atomic.Uint64
	inputsApplied   atomic.Uint64

	staleInputs    atomic.Uint64
	decodeFailures atomic.Uint64
	unknownKinds   atomic.Uint64
	inboxDropped   atomic.Uint64
	sendFailures   atomic.Uint64
	pingEvictions  atomic.Uint64

	debug bool
}

// TelemetrySnapshot is the HUD-facing view of the broadcast counters.
type TelemetrySnapshot struct {
	EnvelopesSent     uint64 `json:"envelopesSent"`
	BytesSent         uint64 `json:"bytesSent"`
	EnvelopesReceived uint64 `json:"envelopesReceived"`
	LastBroadcastSize uint64 `json:"lastBroadcastSize"`
	TickDurationMs    int64  `json:"tickDurationMs"`
	FullStatesSent    uint64 `json:"fullStatesSent"`
	DeltaStatesSent   uint64 `json:"deltaStatesSent"`
	StatesApplied     uint64 `json:"statesApplied"`
	InputsApplied     uint64 `json:"inputsApplied"`
	StaleInputs       uint64 `json:"staleInputs"`
	DecodeFailures    uint64 `json:"decodeFailures"`
	UnknownKinds      uint64 `json:"unknownKinds"`
	InboxDropped      uint64 `json:"inboxDropped"`
	SendFailures      uint64 `json:"sendFailures"`
	PingEvictions     uint64 `json:"pingEvictions"`
}

func newTelemetryCounters() *telemetryCounters {
	t := &telemetryCounters{}
	if os.Getenv("DEBUG_TELEMETRY") == "1" {
		t.debug = true
	}
	return t
}

// RecordBroadcast accounts one outbound envelope fanned out to recipients.
func (t *telemetryCounters) RecordBroadcast(bytes, recipients int) {
	if bytes < 0 {
		bytes = 0
	}
	if recipients < 0 {
		recipients = 0
	}
	t.envelopesSent.Add(uint64(recipients))
	t.bytesSent.Add(uint64(bytes * recipients))
	t.lastBroadcastSize.Store(uint64(bytes))
}

func (t *telemetryCounters) RecordReceive() {
	t.envelopesReceived.Add(1)
}

func (t *telemetryCounters) RecordTickDuration(duration time.Duration) {
	millis := duration.Milliseconds()
	if millis < 0 {
		millis = 0
	}
	t.tickDurationMs.Store(millis)
	if t.debug {
		fmt.Printf(
			"[telemetry] tick=%dms sent=%d received=%d lastBroadcast=%dB\n",
			millis,
			t.envelopesSent.Load(),
			t.envelopesReceived.Load(),
			t.lastBroadcastSize.Load(),
		)
	}
}

func (t *telemetryCounters) IncrementFullStates()    { t.fullStatesSent.Add(1) }
func (t *telemetryCounters) IncrementDeltaStates()   { t.deltaStatesSent.Add(1) }
func (t *telemetryCounters) IncrementStatesApplied() { t.statesApplied.Add(1) }
func (t *telemetryCounters) IncrementInputsApplied() { t.inputsApplied.Add(1) }
func (t *telemetryCounters) IncrementStaleInputs()   { t.staleInputs.Add(1) }
func (t *telemetryCounters) IncrementDecodeFailed()  { t.decodeFailures.Add(1) }
func (t *telemetryCounters) IncrementUnknownKind()   { t.unknownKinds.Add(1) }
func (t *telemetryCounters) IncrementInboxDropped()  { t.inboxDropped.Add(1) }
func (t *telemetryCounters) IncrementSendFailed()    { t.sendFailures.Add(1) }
func (t *telemetryCounters) IncrementPingEvicted()   { t.pingEvictions.Add(1) }

func (t *telemetryCounters) DebugEnabled() bool {
	return t.debug
}

func (t *telemetryCounters) Snapshot() TelemetrySnapshot {
	return TelemetrySnapshot{
		EnvelopesSent:     t.envelopesSent.Load(),
		BytesSent:         t.bytesSent.Load(),
		EnvelopesReceived: t.envelopesReceived.Load(),
		LastBroadcastSize: t.lastBroadcastSize.Load(),
		TickDurationMs:    t.tickDurationMs.Load(),
		FullStatesSent:    t.fullStatesSent.Load(),
		DeltaStatesSent:   t.deltaStatesSent.Load(),
		StatesApplied:     t.statesApplied.Load(),
		InputsApplied:     t.inputsApplied.Load(),
		StaleInputs:       t.staleInputs.Load(),
		DecodeFailures:    t.decodeFailures.Load(),
		UnknownKinds:      t.unknownKinds.Load(),
		InboxDropped:      t.inboxDropped.Load(),
		SendFailures:      t.sendFailures.Load(),
		PingEvictions:     t.pingEvictions.Load(),
	}
}
