// Package metrics provides functions to record connection and frame
// metrics. It is a very thin layer over local CSV files, intended for
// simple setups that don't run a full metrics backend.
package metrics

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultMetricsFileSessions = "wsecho_metrics_sessions.csv"
	DefaultMetricsFileFrames   = "wsecho_metrics_frames.csv"
)

// Recorder observes session lifecycle and frame-level events. nil
// timestamps are never passed; callers stamp events with time.Now()
// before handing them to a Recorder.
type Recorder interface {
	HandshakeCompleted(t time.Time, connID, role, remote string)
	FrameReceived(t time.Time, connID string, opcode byte, size int)
	FrameSent(t time.Time, connID string, opcode byte, size int)
	SessionClosed(t time.Time, connID string, code uint16, err error)
}

// NopRecorder discards every event. It is the default Recorder for
// callers that don't care about metrics.
type NopRecorder struct{}

func (NopRecorder) HandshakeCompleted(time.Time, string, string, string) {}
func (NopRecorder) FrameReceived(time.Time, string, byte, int)           {}
func (NopRecorder) FrameSent(time.Time, string, byte, int)               {}
func (NopRecorder) SessionClosed(time.Time, string, uint16, error)        {}

// csvRecorder appends one line per event to two local CSV files: one
// for session lifecycle events, one for individual frames.
type csvRecorder struct {
	logger        zerolog.Logger
	sessionsPath  string
	framesPath    string
	muSessions    sync.Mutex
	muFrames      sync.Mutex
}

// NewCSVRecorder returns a Recorder that writes session events to
// sessionsPath and frame events to framesPath, creating either file on
// first use. A zero zerolog.Logger is fine; failures to write are
// logged at error level and otherwise swallowed, since a metrics
// failure must never take down a connection.
func NewCSVRecorder(logger zerolog.Logger, sessionsPath, framesPath string) Recorder {
	return &csvRecorder{logger: logger, sessionsPath: sessionsPath, framesPath: framesPath}
}

func (r *csvRecorder) HandshakeCompleted(t time.Time, connID, role, remote string) {
	r.muSessions.Lock()
	defer r.muSessions.Unlock()
	r.writeLine(r.sessionsPath, []string{t.Format(time.RFC3339), "handshake", connID, role, remote})
}

func (r *csvRecorder) FrameReceived(t time.Time, connID string, opcode byte, size int) {
	r.muFrames.Lock()
	defer r.muFrames.Unlock()
	r.writeLine(r.framesPath, []string{t.Format(time.RFC3339), "recv", connID, strconv.Itoa(int(opcode)), strconv.Itoa(size)})
}

func (r *csvRecorder) FrameSent(t time.Time, connID string, opcode byte, size int) {
	r.muFrames.Lock()
	defer r.muFrames.Unlock()
	r.writeLine(r.framesPath, []string{t.Format(time.RFC3339), "send", connID, strconv.Itoa(int(opcode)), strconv.Itoa(size)})
}

func (r *csvRecorder) SessionClosed(t time.Time, connID string, code uint16, err error) {
	r.muSessions.Lock()
	defer r.muSessions.Unlock()

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	r.writeLine(r.sessionsPath, []string{t.Format(time.RFC3339), "closed", connID, strconv.Itoa(int(code)), errMsg})
}

func (r *csvRecorder) writeLine(filename string, record []string) {
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		r.logger.Error().Err(err).Str("file", filename).Msg("failed to open metrics file")
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(record); err != nil {
		r.logger.Error().Err(err).Str("file", filename).Msg("failed to write metrics file")
	}
	w.Flush()
}
