// FilePath: internal/ota/ota.go
package ota

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/itsatony/emhub/internal/models"
	"github.com/itsatony/emhub/internal/registry"
	"github.com/itsatony/emhub/internal/repository"
	nuts "github.com/vaudience/go-nuts"
)

// DefaultChunkDelay paces chunks to the device's flash-write speed.
const DefaultChunkDelay = 40 * time.Millisecond

// DefaultSendTimeout bounds how long one chunk may wait for room in the
// device's outbound queue.
const DefaultSendTimeout = 10 * time.Second

// Session lifecycle events, emitted with the *Session.
const (
	EventStarted   = "ota.started"
	EventCompleted = "ota.completed"
	EventCancelled = "ota.cancelled"
	EventFailed    = "ota.failed"
)

var (
	// ErrSessionActive is returned by Start while another session streams.
	ErrSessionActive = errors.New("an OTA session is already in progress")
	// ErrNotText is returned for images that are not line-oriented text.
	ErrNotText = errors.New("firmware image is not text")
)

// Streamer delivers firmware images line by line to the device.
type Streamer struct {
	firmware repository.FirmwareRepository
	registry *registry.Registry
	delay    time.Duration
	timeout  time.Duration
	events   *nuts.EventEmitter

	mu     sync.Mutex
	active *Session
}

// New creates a Streamer. A negative delay is treated as zero.
func New(firmware repository.FirmwareRepository, reg *registry.Registry, delay time.Duration) *Streamer {
	if delay < 0 {
		delay = 0
	}
	return &Streamer{
		firmware: firmware,
		registry: reg,
		delay:    delay,
		timeout:  DefaultSendTimeout,
		events:   nuts.NewEventEmitter(),
	}
}

// SetSendTimeout changes how long a chunk may wait for the device's queue.
// Values <= 0 restore DefaultSendTimeout.
func (s *Streamer) SetSendTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultSendTimeout
	}
	s.mu.Lock()
	s.timeout = d
	s.mu.Unlock()
}

// Session is the handle of one streaming run.
type Session struct {
	ID        string
	Version   string
	Total     int
	StartedAt time.Time

	sent      atomic.Int64
	cancelled atomic.Bool
	err       error
	cancel    context.CancelFunc
	done      chan struct{}
}

// Sent returns how many chunks went out so far.
func (s *Session) Sent() int { return int(s.sent.Load()) }

// Percent returns the progress of the last sent chunk.
func (s *Session) Percent() float64 {
	n := s.Sent()
	if n == 0 {
		return 0
	}
	return Percent(n-1, s.Total)
}

// Cancel stops the session before its next chunk. No sentinel is sent.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
}

// Cancelled reports whether the session was stopped early.
func (s *Session) Cancelled() bool { return s.cancelled.Load() }

// Done is closed when the streaming goroutine exits.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the device stopped receiving chunks. It is only
// meaningful once Done is closed.
func (s *Session) Err() error { return s.err }

// Percent is round2((index+1)/total*100).
func Percent(index, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(index+1)/float64(total)*100*100) / 100
}

// SplitLines decodes the stored payload and returns its trimmed non-blank
// lines. Payloads that are not hex are split as they are.
func SplitLines(payload string) []string {
	text := payload
	if decoded, err := hex.DecodeString(strings.TrimSpace(payload)); err == nil {
		text = string(decoded)
	}
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Start loads version and streams it in the background. The returned
// session runs detached from ctx, which only bounds the store read.
func (s *Streamer) Start(ctx context.Context, version string) (*Session, error) {
	if active := s.Active(); active != nil {
		return nil, fmt.Errorf("%w: %s (%s)", ErrSessionActive, active.Version, active.ID)
	}

	fw, err := s.firmware.Get(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("load firmware %s: %w", version, err)
	}

	lines := SplitLines(fw.DataHex)
	for i, line := range lines {
		if !utf8.ValidString(line) {
			nuts.L.Errorf("[OTA] Firmware %s line %d is not valid text, refusing to stream", version, i)
			return nil, fmt.Errorf("firmware %s: %w", version, ErrNotText)
		}
	}

	s.mu.Lock()
	if s.active != nil {
		active := s.active
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s (%s)", ErrSessionActive, active.Version, active.ID)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	session := &Session{
		ID:        uuid.New().String(),
		Version:   version,
		Total:     len(lines),
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.active = session
	timeout := s.timeout
	s.mu.Unlock()

	nuts.L.Infof("[OTA] Session %s started for %s (%d chunks)", session.ID, version, session.Total)
	s.emit(EventStarted, session)

	go s.run(runCtx, session, lines, timeout)
	return session, nil
}

// run sends every chunk to the device before it is mirrored to dashboards.
// Device sends wait for queue room; a chunk the device cannot take within
// timeout ends the session without the done sentinel.
func (s *Streamer) run(ctx context.Context, session *Session, lines []string, timeout time.Duration) {
	defer close(session.done)
	defer s.finish(session)
	defer session.cancel()

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for i, line := range lines {
		if ctx.Err() != nil {
			return
		}
		msg := models.OTAChunkMessage{
			Kind:    models.KindOTAChunk,
			Index:   i,
			Percent: Percent(i, session.Total),
			Payload: line,
		}
		if err := s.deliver(ctx, msg, timeout); err != nil {
			if ctx.Err() == nil {
				session.err = fmt.Errorf("chunk %d: %w", i, err)
			}
			return
		}
		if _, err := s.registry.Broadcast(msg, registry.RoleDashboard); err != nil {
			nuts.L.Errorf("[OTA] Session %s chunk %d: %v", session.ID, i, err)
		}
		session.sent.Store(int64(i + 1))

		if s.delay > 0 {
			timer.Reset(s.delay)
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := s.deliver(ctx, models.OTADoneMessage{Kind: models.KindOTADone}, timeout); err != nil && ctx.Err() == nil {
		session.err = fmt.Errorf("done sentinel: %w", err)
	}
}

func (s *Streamer) deliver(ctx context.Context, msg any, timeout time.Duration) error {
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := s.registry.Deliver(sendCtx, msg, registry.RoleDevice)
	return err
}

func (s *Streamer) emit(event string, session *Session) {
	if err := s.events.Emit(event, session); err != nil {
		nuts.L.Warnf("[OTA] %s listener failed: %v", event, err)
	}
}

func (s *Streamer) finish(session *Session) {
	s.mu.Lock()
	if s.active == session {
		s.active = nil
	}
	s.mu.Unlock()

	switch {
	case session.Cancelled():
		nuts.L.Warnf("[OTA] Session %s cancelled after %d/%d chunks", session.ID, session.Sent(), session.Total)
		s.emit(EventCancelled, session)
	case session.err != nil:
		nuts.L.Errorf("[OTA] Session %s failed after %d/%d chunks: %v", session.ID, session.Sent(), session.Total, session.err)
		s.emit(EventFailed, session)
	default:
		nuts.L.Infof("[OTA] Session %s completed (%d chunks in %v)", session.ID, session.Total, time.Since(session.StartedAt))
		s.emit(EventCompleted, session)
	}
}

// Active returns the running session, if any.
func (s *Streamer) Active() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// CancelActive stops the running session. It reports whether one was running.
func (s *Streamer) CancelActive() bool {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil {
		return false
	}
	active.Cancel()
	return true
}

// On registers a callback for a session event.
func (s *Streamer) On(event, handlerID string, handler func(*Session)) {
	s.events.On(event, handlerID, func(args ...interface{}) {
		if len(args) > 0 {
			if session, ok := args[0].(*Session); ok {
				handler(session)
			}
		}
	})
}
