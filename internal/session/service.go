package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/apresai/pitchroom/internal/gateway"
	"github.com/apresai/pitchroom/internal/persona"
	"github.com/apresai/pitchroom/internal/report"
)

// SnapshotLister is the optional listing surface a snapshot store may offer.
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, owner string) ([]Snapshot, error)
}

// SnapshotDeleter is the optional deletion surface a snapshot store may offer.
type SnapshotDeleter interface {
	Delete(ctx context.Context, id string) error
}

// Archiver receives finished sessions for long-term storage. Archival is best
// effort and never fails the operation that triggered it.
type Archiver interface {
	ArchiveSession(ctx context.Context, snap Snapshot) (string, error)
}

// Completer is re-exported here so service constructors can accept fakes.
type Completer = report.Completer

// Service ties the session machinery together for the HTTP API, the MCP
// server, and the CLI: it mints sessions, routes turns, persists snapshots
// and closes sessions out with a report.
type Service struct {
	dialer   Dialer
	reporter *report.Generator
	store    SnapshotStore
	archiver Archiver
	registry *Registry
	log      *slog.Logger
	avail    func() map[string]bool
}

// NewService wires a production service around a gateway.
func NewService(gw *gateway.Gateway, store SnapshotStore, archiver Archiver, log *slog.Logger) *Service {
	s := NewCustomService(NewDialer(gw), gw, store, log)
	s.avail = gw.Available
	s.archiver = archiver
	return s
}

// NewCustomService builds a service from its interface parts. Tests use this
// with scripted dialers and completers.
func NewCustomService(dialer Dialer, completer Completer, store SnapshotStore, log *slog.Logger) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Service{
		dialer:   dialer,
		reporter: report.NewGenerator(completer, log),
		store:    store,
		registry: NewRegistry(),
		log:      log,
		avail:    func() map[string]bool { return nil },
	}
}

// StartRequest describes a new pitch session.
type StartRequest struct {
	Owner     string
	Provider  string
	PersonaID string
	Startup   persona.Startup
	Locale    string
}

// StartResult is what a freshly opened session looks like to callers.
type StartResult struct {
	SessionID string          `json:"session_id"`
	Opening   string          `json:"opening"`
	Score     int             `json:"score"`
	Persona   persona.Persona `json:"persona"`
}

// Providers maps each known provider ID to whether it is usable right now.
func (s *Service) Providers() map[string]bool { return s.avail() }

// StartPitch creates a session, opens the provider conversation and returns
// the counterpart's opening line.
func (s *Service) StartPitch(ctx context.Context, req StartRequest) (StartResult, error) {
	p, ok := persona.Lookup(req.PersonaID)
	if !ok {
		return StartResult{}, validationf("unknown persona %q", req.PersonaID)
	}
	if req.Startup.Name == "" {
		return StartResult{}, validationf("startup name is required")
	}
	if req.Provider == "" {
		return StartResult{}, validationf("provider is required")
	}

	m := NewMachine(NewSessionID(), s.dialer, req.Provider, p, req.Startup, req.Locale, req.Owner)

	opening, err := m.Start(ctx)
	if err != nil {
		return StartResult{}, fmt.Errorf("start session: %w", err)
	}

	s.registry.Put(m)
	s.persist(ctx, m)

	snap := m.Snapshot()
	if s.log != nil {
		s.log.InfoContext(ctx, "Pitch session started",
			"session_id", m.ID(), "provider", req.Provider, "persona", p.ID, "startup", req.Startup.Name)
	}
	return StartResult{SessionID: m.ID(), Opening: opening, Score: snap.Score, Persona: p}, nil
}

// SubmitTurn routes one founder answer to its session.
func (s *Service) SubmitTurn(ctx context.Context, owner, sessionID, text string) (TurnOutcome, error) {
	m, err := s.machine(ctx, owner, sessionID)
	if err != nil {
		return TurnOutcome{}, err
	}

	outcome, err := m.SubmitTurn(ctx, text)
	if err != nil {
		return TurnOutcome{}, err
	}
	s.persist(ctx, m)

	if outcome.Terminated && s.log != nil {
		s.log.InfoContext(ctx, "Pitch session terminated",
			"session_id", sessionID, "reason", outcome.Reason, "score", outcome.Score)
	}
	return outcome, nil
}

// EndPitch terminates a session at the founder's request.
func (s *Service) EndPitch(ctx context.Context, owner, sessionID string) error {
	m, err := s.machine(ctx, owner, sessionID)
	if err != nil {
		return err
	}
	if err := m.EndEarly(); err != nil {
		return err
	}
	s.persist(ctx, m)
	return nil
}

// GenerateReport closes a terminated session out with a verdict. Idempotent:
// a session already reported returns its stored report.
func (s *Service) GenerateReport(ctx context.Context, owner, sessionID string) (*report.Report, error) {
	m, err := s.machine(ctx, owner, sessionID)
	if err != nil {
		return nil, err
	}

	if m.Status() == StatusReported {
		if r := m.Report(); r != nil {
			return r, nil
		}
	}

	snap := m.Snapshot()
	if snap.Status != StatusTerminated {
		return nil, validationf("session %s is not finished (status %s)", sessionID, snap.Status)
	}

	lines := make([]report.Line, 0, len(snap.Transcript))
	for _, t := range snap.Transcript {
		speaker := snap.Persona.Name
		if t.Role == RoleFounder {
			speaker = "Founder"
		}
		lines = append(lines, report.Line{Speaker: speaker, Text: t.Text})
	}

	r := s.reporter.Generate(ctx, snap.Provider, lines, snap.Score)
	if err := m.AttachReport(r); err != nil {
		// Lost a race with another report call; the winner's report stands.
		if stored := m.Report(); stored != nil {
			return stored, nil
		}
		return nil, err
	}
	s.persist(ctx, m)
	s.archive(ctx, m.Snapshot())
	return r, nil
}

// GetSession returns a session snapshot, loading from the store when the
// machine is not live in this process. A session owned by someone else is
// indistinguishable from a missing one.
func (s *Service) GetSession(ctx context.Context, owner, sessionID string) (Snapshot, error) {
	var snap Snapshot
	if m, err := s.registry.Get(sessionID); err == nil {
		snap = m.Snapshot()
	} else {
		snap, err = s.store.LoadSnapshot(ctx, sessionID)
		if err != nil {
			return Snapshot{}, err
		}
	}
	if !ownedBy(owner, snap.Owner) {
		return Snapshot{}, ErrSessionNotFound
	}
	return snap, nil
}

// ListSessions returns all sessions for an owner, pinned first, newest first
// within each group.
func (s *Service) ListSessions(ctx context.Context, owner string) ([]Snapshot, error) {
	var snaps []Snapshot
	if lister, ok := s.store.(SnapshotLister); ok {
		var err error
		snaps, err = lister.ListSnapshots(ctx, owner)
		if err != nil {
			return nil, err
		}
	} else {
		for _, id := range s.registry.IDs() {
			if m, err := s.registry.Get(id); err == nil {
				snap := m.Snapshot()
				if owner == "" || snap.Owner == owner {
					snaps = append(snaps, snap)
				}
			}
		}
	}
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].Pinned != snaps[j].Pinned {
			return snaps[i].Pinned
		}
		return snaps[i].UpdatedAt.After(snaps[j].UpdatedAt)
	})
	return snaps, nil
}

// RenameSession sets a session's display title.
func (s *Service) RenameSession(ctx context.Context, owner, sessionID, title string) error {
	if title == "" {
		return validationf("title is required")
	}
	m, err := s.machine(ctx, owner, sessionID)
	if err != nil {
		return err
	}
	m.SetTitle(title)
	s.persist(ctx, m)
	return nil
}

// PinSession marks or unmarks a session as pinned.
func (s *Service) PinSession(ctx context.Context, owner, sessionID string, pinned bool) error {
	m, err := s.machine(ctx, owner, sessionID)
	if err != nil {
		return err
	}
	m.SetPinned(pinned)
	s.persist(ctx, m)
	return nil
}

// DeleteSession removes a session from the registry and, when the store
// supports it, from durable storage.
func (s *Service) DeleteSession(ctx context.Context, owner, sessionID string) error {
	snap, err := s.GetSession(ctx, owner, sessionID)
	if err != nil {
		return err
	}
	s.registry.Remove(snap.ID)
	if deleter, ok := s.store.(SnapshotDeleter); ok {
		if err := deleter.Delete(ctx, snap.ID); err != nil {
			return fmt.Errorf("delete session %s: %w", snap.ID, err)
		}
	}
	if s.log != nil {
		s.log.InfoContext(ctx, "Session deleted", "session_id", snap.ID)
	}
	return nil
}

// machine returns the live machine for a session, resuming it from the
// snapshot store when this process has never seen it. A session owned by
// someone else is indistinguishable from a missing one.
func (s *Service) machine(ctx context.Context, owner, sessionID string) (*Machine, error) {
	if m, err := s.registry.Get(sessionID); err == nil {
		if !ownedBy(owner, m.Owner()) {
			return nil, ErrSessionNotFound
		}
		return m, nil
	}

	snap, err := s.store.LoadSnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ownedBy(owner, snap.Owner) {
		return nil, ErrSessionNotFound
	}
	m, err := Resume(ctx, s.dialer, snap)
	if err != nil {
		return nil, fmt.Errorf("resume session %s: %w", sessionID, err)
	}
	s.registry.Put(m)
	if s.log != nil {
		s.log.InfoContext(ctx, "Session resumed from snapshot", "session_id", sessionID, "status", snap.Status)
	}
	return m, nil
}

// ownedBy reports whether a caller may touch a session. An empty caller owner
// is unscoped: the CLI and auth-disabled servers see every session.
func ownedBy(owner, sessionOwner string) bool {
	return owner == "" || owner == sessionOwner
}

func (s *Service) persist(ctx context.Context, m *Machine) {
	snap := m.Snapshot()
	if err := s.store.SaveSnapshot(ctx, snap); err != nil && s.log != nil {
		s.log.WarnContext(ctx, "Snapshot save failed", "session_id", snap.ID, "error", err)
	}
}

func (s *Service) archive(ctx context.Context, snap Snapshot) {
	if s.archiver == nil {
		return
	}
	key, err := s.archiver.ArchiveSession(ctx, snap)
	if err != nil {
		if s.log != nil {
			s.log.WarnContext(ctx, "Session archive failed", "session_id", snap.ID, "error", err)
		}
		return
	}
	if s.log != nil {
		s.log.InfoContext(ctx, "Session archived", "session_id", snap.ID, "key", key)
	}
}
