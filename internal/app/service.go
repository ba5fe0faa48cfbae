// Package service provides the game service behind the HTTP API: it tracks
// gestures per session, scores finished paths, and keeps each session's
// score history.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/circle/internal/adapters/session"
	"github.com/okian/circle/internal/domain/dedupe"
	"github.com/okian/circle/internal/domain/gesture"
	"github.com/okian/circle/internal/domain/ledger"
	"github.com/okian/circle/internal/domain/model"
	"github.com/okian/circle/internal/domain/scoring"
	"github.com/okian/circle/pkg/logger"
	"github.com/okian/circle/pkg/metrics"
)

// Session store keys.
const (
	keyScores  = "scores"
	keySurface = "surface"
)

// Outcome is the result of finishing or submitting a gesture.
type Outcome struct {
	Score     int
	History   ledger.History
	Duplicate bool
}

// sessionState is the in-flight gesture of one session. mu serializes every
// event of the session.
type sessionState struct {
	mu      sync.Mutex
	tracker gesture.Tracker
	// active mirrors tracker.State() == Dragging for readers that must not
	// take mu.
	active atomic.Bool
}

// Service implements the API dependencies for the circle game.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   *session.InMemoryStore
	deduper dedupe.Deduper

	// Configuration
	sessionTTL     time.Duration
	sweepInterval  time.Duration
	dedupeSize     int
	maxPathPoints  int
	defaultSurface model.Surface
	now            func() time.Time

	// State
	started bool

	sessionsMu sync.Mutex
	sessions   map[string]*sessionState
	live       atomic.Int64

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithSessionTTL sets how long an idle session keeps its history.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithSweepInterval sets how often expired sessions are collected.
func WithSweepInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// WithDedupeSize sets the size of the gesture id cache. Zero means unbounded.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxPathPoints caps the samples accepted for one gesture.
func WithMaxPathPoints(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPathPoints = n
		}
	}
}

// WithDefaultSurface sets the surface used before a client reports its own.
func WithDefaultSurface(surface model.Surface) Option {
	return func(s *Service) {
		if surface.Valid() {
			s.defaultSurface = surface
		}
	}
}

// WithClock replaces time.Now for session expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		sessionTTL:     30 * time.Minute,
		sweepInterval:  time.Minute,
		dedupeSize:     50_000,
		maxPathPoints:  20_000,
		defaultSurface: model.Surface{Width: 1280, Height: 720},
		now:            time.Now,
		sessions:       make(map[string]*sessionState),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes the session store and its sweeper. The sweeper stops
// when ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting circle service...")

	s.store = session.NewInMemoryStore(
		session.WithTTL(s.sessionTTL),
		session.WithSweepInterval(s.sweepInterval),
		session.WithClock(s.now),
		session.WithOnExpire(s.forget),
	)
	s.store.Start(ctx)
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)

	s.started = true
	s.logger.Info(ctx, "circle service started",
		logger.Duration("sessionTTL", s.sessionTTL),
		logger.Duration("sweepInterval", s.sweepInterval),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("maxPathPoints", s.maxPathPoints),
	)

	return nil
}

// Stop shuts down the session store. Histories are not kept across restarts.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping circle service...")

	if s.store != nil {
		_ = s.store.Close()
	}

	s.sessionsMu.Lock()
	s.sessions = make(map[string]*sessionState)
	s.sessionsMu.Unlock()
	s.live.Store(0)
	metrics.UpdateLiveGestures(0)

	s.started = false
	s.logger.Info(context.Background(), "circle service stopped")
}

// NewSession returns a fresh session id.
func (s *Service) NewSession(ctx context.Context) string {
	sid := uuid.NewString()
	if l := s.log(); l != nil {
		l.Debug(ctx, "new session", logger.String("session", sid))
	}
	return sid
}

// History returns the session's scores, most recent first. Absent or
// corrupt state reads as an empty history.
func (s *Service) History(ctx context.Context, sid string) ledger.History {
	store, _, err := s.components()
	if err != nil {
		return ledger.History{}
	}
	return s.history(ctx, store, sid)
}

// Resize records the session's drawing surface and returns its center.
func (s *Service) Resize(ctx context.Context, sid string, surface model.Surface) (model.Point, error) {
	if !surface.Valid() {
		return model.Point{}, fmt.Errorf("%w: %gx%g", ErrInvalidSurface, surface.Width, surface.Height)
	}
	store, _, err := s.components()
	if err != nil {
		return model.Point{}, err
	}

	st := s.state(sid)
	st.mu.Lock()
	defer st.mu.Unlock()

	b, err := json.Marshal(surface)
	if err != nil {
		return model.Point{}, fmt.Errorf("encode surface: %w", err)
	}
	if err := store.Put(ctx, sid, keySurface, b); err != nil {
		metrics.RecordErrorByComponent("session", "put")
		return model.Point{}, fmt.Errorf("save surface: %w", err)
	}
	return surface.Center(), nil
}

// Center returns the center of the session's surface, or of the default
// surface when the session has not reported one.
func (s *Service) Center(ctx context.Context, sid string) model.Point {
	store, _, err := s.components()
	if err != nil {
		return s.defaultSurface.Center()
	}
	return s.center(ctx, store, sid)
}

// BeginGesture starts a gesture at p. A gesture already in progress is
// abandoned.
func (s *Service) BeginGesture(ctx context.Context, sid string, p model.Point) error {
	store, _, err := s.components()
	if err != nil {
		return err
	}
	// The session must exist in the store so that its expiry reaps the
	// tracker. Touch before taking the state: an expiry seen here drops it.
	if err := store.Touch(ctx, sid); err != nil {
		metrics.RecordErrorByComponent("session", "touch")
		return fmt.Errorf("touch session: %w", err)
	}

	st := s.state(sid)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.tracker.State() == gesture.Dragging {
		metrics.RecordGestureAbandoned()
		s.log().Debug(ctx, "gesture restarted", logger.String("session", sid),
			logger.Int("samples", st.tracker.Len()))
	}
	st.tracker.Start(p)
	if st.active.CompareAndSwap(false, true) {
		metrics.UpdateLiveGestures(int(s.live.Add(1)))
	}
	return nil
}

// SampleGesture adds p to the active gesture. It reports false when no gesture
// is active or the gesture already holds the maximum number of points.
func (s *Service) SampleGesture(ctx context.Context, sid string, p model.Point) bool {
	store, _, err := s.components()
	if err != nil {
		return false
	}
	if !s.dragging(sid) {
		return false
	}
	// Keeps a long drag alive.
	_ = store.Touch(ctx, sid)

	st := s.state(sid)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.tracker.Len() >= s.maxPathPoints {
		return false
	}
	return st.tracker.Sample(p)
}

// EndGesture finishes the active gesture, scores it, and records the score.
// It reports false, recording nothing, when no gesture was active.
func (s *Service) EndGesture(ctx context.Context, sid string) (Outcome, bool, error) {
	store, _, err := s.components()
	if err != nil {
		return Outcome{}, false, err
	}
	if !s.dragging(sid) {
		return Outcome{}, false, nil
	}

	st := s.state(sid)
	st.mu.Lock()
	defer st.mu.Unlock()

	path, ok := st.tracker.End()
	if !ok {
		return Outcome{}, false, nil
	}
	if st.active.CompareAndSwap(true, false) {
		metrics.UpdateLiveGestures(int(s.live.Add(-1)))
	}

	out, err := s.record(ctx, store, sid, path)
	if err != nil {
		return Outcome{}, true, err
	}
	return out, true, nil
}

// AbandonGesture drops the active gesture without scoring it. It reports
// false when no gesture was active.
func (s *Service) AbandonGesture(ctx context.Context, sid string) bool {
	if _, _, err := s.components(); err != nil {
		return false
	}
	if !s.dragging(sid) {
		return false
	}

	st := s.state(sid)
	st.mu.Lock()
	defer st.mu.Unlock()

	path, ok := st.tracker.End()
	if !ok {
		return false
	}
	if st.active.CompareAndSwap(true, false) {
		metrics.UpdateLiveGestures(int(s.live.Add(-1)))
	}
	metrics.RecordGestureAbandoned()
	s.log().Debug(ctx, "gesture abandoned", logger.String("session", sid),
		logger.Int("samples", len(path)))
	return true
}

// Submit scores a whole path at once. A non-empty gestureID makes the call
// idempotent: a repeat returns the current history flagged as Duplicate.
func (s *Service) Submit(ctx context.Context, sid, gestureID string, path model.Path) (Outcome, error) {
	if len(path) > s.maxPathPoints {
		return Outcome{}, fmt.Errorf("%w: %d points, max %d", ErrPathTooLong, len(path), s.maxPathPoints)
	}
	store, deduper, err := s.components()
	if err != nil {
		return Outcome{}, err
	}

	st := s.state(sid)
	st.mu.Lock()
	defer st.mu.Unlock()

	var dedupeKey string
	if gestureID != "" {
		dedupeKey = sid + ":" + gestureID
		if deduper.SeenAndRecord(ctx, dedupeKey) {
			metrics.RecordDuplicateSubmission()
			s.log().Debug(ctx, "duplicate gesture submission",
				logger.String("session", sid),
				logger.String("gesture", gestureID),
			)
			return Outcome{History: s.history(ctx, store, sid), Duplicate: true}, nil
		}
	}

	out, err := s.record(ctx, store, sid, path)
	if err != nil {
		if dedupeKey != "" {
			// Let the client retry.
			deduper.Unrecord(ctx, dedupeKey)
		}
		return Outcome{}, err
	}
	return out, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":       s.started,
		"sessionTTL":    s.sessionTTL.String(),
		"dedupeSize":    s.dedupeSize,
		"maxPathPoints": s.maxPathPoints,
	}

	if s.started {
		active := s.store.Count(context.Background())
		stats["activeSessions"] = active
		stats["liveGestures"] = s.live.Load()
		stats["dedupeEntries"] = s.deduper.Size()

		metrics.UpdateActiveSessions(active)
	}

	return stats
}

// record scores path, prepends the score to the stored history, and saves it.
// Must be called with the session's lock held.
func (s *Service) record(ctx context.Context, store session.Store, sid string, path model.Path) (Outcome, error) {
	res := scoring.Evaluate(path, s.center(ctx, store, sid))
	if res.Degenerate {
		metrics.RecordDegeneratePath()
	}
	metrics.RecordGestureScored(res.Score, res.Samples)

	h := ledger.Record(s.history(ctx, store, sid), res.Score)
	b, err := ledger.Encode(h)
	if err != nil {
		return Outcome{}, fmt.Errorf("encode history: %w", err)
	}
	if err := store.Put(ctx, sid, keyScores, b); err != nil {
		metrics.RecordErrorByComponent("session", "put")
		return Outcome{}, fmt.Errorf("save history: %w", err)
	}

	s.log().Debug(ctx, "gesture scored",
		logger.String("session", sid),
		logger.Int("score", res.Score),
		logger.Int("samples", res.Samples),
		logger.Float64("meanRadius", res.MeanRadius),
		logger.Float64("deviation", res.Deviation),
	)
	return Outcome{Score: res.Score, History: h}, nil
}

func (s *Service) history(ctx context.Context, store session.Store, sid string) ledger.History {
	b, _ := store.Get(ctx, sid, keyScores)
	return ledger.Decode(b)
}

func (s *Service) center(ctx context.Context, store session.Store, sid string) model.Point {
	b, ok := store.Get(ctx, sid, keySurface)
	if !ok {
		return s.defaultSurface.Center()
	}
	var surface model.Surface
	if err := json.Unmarshal(b, &surface); err != nil || !surface.Valid() {
		return s.defaultSurface.Center()
	}
	return surface.Center()
}

// components returns the running store and deduper.
func (s *Service) components() (*session.InMemoryStore, dedupe.Deduper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.store, s.deduper, nil
}

// state returns the gesture state of sid, creating it on first use.
func (s *Service) state(sid string) *sessionState {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	st, ok := s.sessions[sid]
	if !ok {
		st = &sessionState{}
		s.sessions[sid] = st
	}
	return st
}

// dragging reports whether sid has a gesture in progress without creating
// state for it.
func (s *Service) dragging(sid string) bool {
	s.sessionsMu.Lock()
	st, ok := s.sessions[sid]
	s.sessionsMu.Unlock()
	return ok && st.active.Load()
}

// forget drops the gesture state of an expired session. It runs from the
// store's expiry hook, possibly while the session's own lock is held by the
// caller that triggered the expiry, so it must not take st.mu.
func (s *Service) forget(sid string) {
	s.sessionsMu.Lock()
	st, ok := s.sessions[sid]
	delete(s.sessions, sid)
	s.sessionsMu.Unlock()

	if ok && st.active.CompareAndSwap(true, false) {
		metrics.RecordGestureAbandoned()
		metrics.UpdateLiveGestures(int(s.live.Add(-1)))
	}
	if l := s.log(); l != nil {
		l.Debug(context.Background(), "session expired", logger.String("session", sid))
	}
}

func (s *Service) log() logger.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}
