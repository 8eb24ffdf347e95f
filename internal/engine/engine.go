package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qiuqing005/maoxian/internal/config"
	"github.com/qiuqing005/maoxian/internal/models"
	"github.com/qiuqing005/maoxian/internal/prompts"
	"github.com/qiuqing005/maoxian/internal/provider"
	"github.com/qiuqing005/maoxian/internal/storage"
)

// EventType classifies a lifecycle event published to subscribers.
type EventType string

const (
	EventStarted   EventType = "started"
	EventTurn      EventType = "turn"
	EventPaused    EventType = "paused"
	EventResumed   EventType = "resumed"
	EventCompleted EventType = "completed"
	EventDeleted   EventType = "deleted"
)

// Event describes one observable lifecycle change.
type Event struct {
	Type        EventType               `json:"type"`
	OwnerID     string                  `json:"owner_id"`
	AdventureID string                  `json:"adventure_id"`
	Theme       string                  `json:"theme,omitempty"`
	Narrative   string                  `json:"narrative,omitempty"`
	TurnCount   int                     `json:"turn_count,omitempty"`
	State       models.LifecycleState   `json:"lifecycle_state,omitempty"`
	Reason      models.CompletionReason `json:"completion_reason,omitempty"`
	At          time.Time               `json:"at"`
}

// Publisher receives lifecycle events. Publish must not block.
type Publisher interface {
	Publish(Event)
}

// TurnResult is the outcome of an accepted action.
type TurnResult struct {
	NoOp      bool
	Narrative string
	Completed bool
	Reason    models.CompletionReason
	Record    *models.AdventureRecord
}

// StatusSnapshot is a read-only view of an owner's session state.
type StatusSnapshot struct {
	OwnerID            string
	CurrentAdventureID string
	AdventureCount     int
	Active             *models.AdventureSummary
	IdleFor            time.Duration
}

// SummaryPage is one page of an owner's adventure listing, most recently
// touched first.
type SummaryPage struct {
	Items    []models.AdventureSummary
	Page     int
	PageSize int
	Total    int
}

// DeletedSummary reports what a delete removed.
type DeletedSummary struct {
	AdventureID string
	Theme       string
	TurnCount   int
	State       models.LifecycleState
}

// PurgeSummary reports what a purge removed.
type PurgeSummary struct {
	Owners     int
	Adventures int
}

// ownerState is one owner's slot. Its mutex serializes every operation that
// touches the owner's active record or index; different owners never contend.
type ownerState struct {
	mu        sync.Mutex
	index     *models.UserIndex
	active    *models.AdventureRecord
	lastTouch time.Time
}

// Manager is the session lifecycle core. It exclusively owns all in-memory
// adventure state; the store is a durable mirror kept in sync by synchronous
// write-through on every state change.
type Manager struct {
	cfg      *config.Config
	store    storage.Store
	cache    *storage.SummaryCache
	provider provider.Provider
	events   Publisher
	log      *zap.Logger

	mu     sync.Mutex
	owners map[string]*ownerState
}

// Option configures optional manager collaborators.
type Option func(*Manager)

// WithSummaryCache attaches a Redis cache for index documents.
func WithSummaryCache(cache *storage.SummaryCache) Option {
	return func(m *Manager) { m.cache = cache }
}

// WithPublisher attaches a lifecycle event sink.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.events = p }
}

func NewManager(cfg *config.Config, store storage.Store, prov provider.Provider, log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		store:    store,
		provider: prov,
		log:      log,
		owners:   make(map[string]*ownerState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init reconciles persisted state after a restart: adventures left ACTIVE by
// a crash are demoted to PAUSED, and adventures past the cache retention age
// are expired. Corrupt documents are skipped with a warning.
func (m *Manager) Init(ctx context.Context) error {
	owners, err := m.store.ListOwners(ctx)
	if err != nil {
		return fmt.Errorf("list owners: %w", err)
	}

	for _, ownerID := range owners {
		st := m.ownerFor(ownerID)
		st.mu.Lock()
		m.loadIndexLocked(ctx, st, ownerID)
		st.mu.Unlock()
	}

	m.log.Info("lifecycle manager initialized", zap.Int("owners", len(owners)))
	return nil
}

// Start creates a new adventure. An existing active adventure is paused
// first. The seed transcript is sent to the provider synchronously; nothing
// is persisted when that first call fails.
func (m *Manager) Start(ctx context.Context, ownerID, theme string) (*models.AdventureRecord, error) {
	if m.provider == nil {
		return nil, ErrProviderUnavailable
	}

	st := m.ownerFor(ownerID)
	st.mu.Lock()
	defer st.mu.Unlock()

	m.loadIndexLocked(ctx, st, ownerID)

	now := time.Now()
	if st.active != nil {
		if err := m.pauseLocked(ctx, st, now); err != nil {
			return nil, err
		}
	}

	theme = strings.TrimSpace(theme)
	if theme == "" {
		theme = m.cfg.Game.DefaultTheme
	}

	systemPrompt, err := prompts.RenderSystemPrompt(m.cfg.Game.SystemPromptTemplate, theme)
	if err != nil {
		m.log.Warn("system prompt template failed, using minimal prompt",
			zap.String("owner_id", ownerID), zap.Error(err))
		systemPrompt = prompts.MinimalSystemPrompt(theme)
	}

	rec := &models.AdventureRecord{
		SchemaVersion: models.SchemaVersion,
		AdventureID:   newAdventureID(),
		OwnerID:       ownerID,
		Theme:         theme,
		Transcript: []models.Message{
			{Role: models.RoleSystem, Content: systemPrompt},
			{Role: models.RoleUser, Content: prompts.Opener},
		},
		State:            models.StateActive,
		CompletionReason: models.ReasonNone,
		CreatedAt:        now,
		LastActionAt:     now,
	}

	opening, err := m.provider.Generate(ctx, rec.Transcript)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	rec.Transcript = append(rec.Transcript, models.Message{Role: models.RoleAssistant, Content: opening})
	rec.TurnCount = 1
	rec.TotalActionCount = 1

	st.active = rec
	st.index.Put(rec.Summary())
	st.index.CurrentAdventureID = rec.AdventureID
	if err := m.persistLocked(ctx, st, rec); err != nil {
		return nil, err
	}

	m.publish(Event{
		Type: EventStarted, OwnerID: ownerID, AdventureID: rec.AdventureID,
		Theme: theme, Narrative: opening, TurnCount: rec.TurnCount,
		State: rec.State, At: now,
	})
	m.log.Info("adventure started",
		zap.String("owner_id", ownerID),
		zap.String("adventure_id", rec.AdventureID),
		zap.String("theme", theme))

	return rec.Clone(), nil
}

// SubmitAction advances the active adventure by one turn. Empty input is a
// no-op. An idle session is paused and reported as timed out. A provider
// failure pauses the session with the user's action already persisted, so a
// later resume replays nothing and loses nothing.
func (m *Manager) SubmitAction(ctx context.Context, ownerID, actionText string) (*TurnResult, error) {
	st := m.ownerFor(ownerID)
	st.mu.Lock()
	defer st.mu.Unlock()

	m.loadIndexLocked(ctx, st, ownerID)

	rec := st.active
	if rec == nil {
		return nil, ErrNoActiveSession
	}

	actionText = strings.TrimSpace(actionText)
	if actionText == "" {
		return &TurnResult{NoOp: true, Record: rec.Clone()}, nil
	}

	now := time.Now()
	if idle := now.Sub(rec.LastActionAt); idle > m.cfg.Game.SessionTimeout() {
		if err := m.pauseLocked(ctx, st, now); err != nil {
			return nil, err
		}
		m.log.Info("session timed out",
			zap.String("owner_id", ownerID),
			zap.String("adventure_id", rec.AdventureID),
			zap.Duration("idle", idle))
		return nil, ErrSessionTimedOut
	}

	if m.provider == nil {
		if err := m.pauseLocked(ctx, st, now); err != nil {
			return nil, err
		}
		return nil, ErrProviderUnavailable
	}

	rec.Transcript = append(rec.Transcript, models.Message{Role: models.RoleUser, Content: actionText})
	rec.TotalActionCount++
	rec.LastActionAt = now

	response, err := m.provider.Generate(ctx, rec.Transcript)
	if err != nil {
		m.log.Warn("provider call failed, pausing adventure",
			zap.String("owner_id", ownerID),
			zap.String("adventure_id", rec.AdventureID),
			zap.Error(err))
		if perr := m.pauseLocked(ctx, st, time.Now()); perr != nil {
			return nil, perr
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	rec.Transcript = append(rec.Transcript, models.Message{Role: models.RoleAssistant, Content: response})
	rec.TurnCount++

	reason := Classify(response)
	completed := reason != models.ReasonNone
	if completed {
		completedAt := time.Now()
		rec.State = models.StateCompleted
		rec.CompletionReason = reason
		rec.CompletedAt = &completedAt
		st.active = nil
	}

	st.index.Put(rec.Summary())
	if err := m.persistLocked(ctx, st, rec); err != nil {
		return nil, err
	}

	eventType := EventTurn
	if completed {
		eventType = EventCompleted
	}
	m.publish(Event{
		Type: eventType, OwnerID: ownerID, AdventureID: rec.AdventureID,
		Narrative: response, TurnCount: rec.TurnCount,
		State: rec.State, Reason: rec.CompletionReason, At: now,
	})

	return &TurnResult{
		Narrative: response,
		Completed: completed,
		Reason:    rec.CompletionReason,
		Record:    rec.Clone(),
	}, nil
}

// Pause suspends the active adventure.
func (m *Manager) Pause(ctx context.Context, ownerID string) (*models.AdventureRecord, error) {
	st := m.ownerFor(ownerID)
	st.mu.Lock()
	defer st.mu.Unlock()

	m.loadIndexLocked(ctx, st, ownerID)

	if st.active == nil {
		return nil, ErrNoActiveSession
	}
	rec := st.active
	if err := m.pauseLocked(ctx, st, time.Now()); err != nil {
		return nil, err
	}

	return rec.Clone(), nil
}

// Resume reactivates an adventure. Target resolution: the explicit id, then
// the owner's current adventure when it is not completed, then the most
// recently touched non-completed adventure. Any other active adventure is
// paused first.
func (m *Manager) Resume(ctx context.Context, ownerID, adventureID string) (*models.AdventureRecord, error) {
	st := m.ownerFor(ownerID)
	st.mu.Lock()
	defer st.mu.Unlock()

	m.loadIndexLocked(ctx, st, ownerID)

	target := adventureID
	if target == "" {
		if cur := st.index.CurrentAdventureID; cur != "" {
			if s, ok := st.index.Summaries[cur]; ok && s.State != models.StateCompleted {
				target = cur
			}
		}
	}
	if target == "" {
		recent, ok := st.index.MostRecentResumable()
		if !ok {
			return nil, ErrNoResumableAdventure
		}
		target = recent
	}

	summary, ok := st.index.Summaries[target]
	if !ok {
		if adventureID != "" {
			return nil, ErrAdventureNotFound
		}
		return nil, ErrNoResumableAdventure
	}
	if summary.State == models.StateCompleted {
		return nil, ErrNoResumableAdventure
	}

	now := time.Now()
	if st.active != nil {
		if st.active.AdventureID == target {
			return st.active.Clone(), nil
		}
		if err := m.pauseLocked(ctx, st, now); err != nil {
			return nil, err
		}
	}

	rec, err := m.store.GetRecord(ctx, ownerID, target)
	if err != nil {
		if errors.Is(err, storage.ErrCorrupt) || errors.Is(err, storage.ErrNotFound) {
			m.log.Warn("resumable adventure is missing or corrupt, dropping from index",
				zap.String("owner_id", ownerID),
				zap.String("adventure_id", target),
				zap.Error(err))
			st.index.Remove(target)
			if st.index.CurrentAdventureID == target {
				st.index.CurrentAdventureID, _ = st.index.MostRecentResumable()
			}
			m.persistIndexLocked(ctx, st)
			return nil, ErrNoResumableAdventure
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	rec.State = models.StateActive
	rec.ResumedAt = &now
	rec.LastActionAt = now

	st.active = rec
	st.index.Put(rec.Summary())
	st.index.CurrentAdventureID = rec.AdventureID
	if err := m.persistLocked(ctx, st, rec); err != nil {
		return nil, err
	}

	m.publish(Event{
		Type: EventResumed, OwnerID: ownerID, AdventureID: rec.AdventureID,
		TurnCount: rec.TurnCount, State: rec.State, At: now,
	})
	m.log.Info("adventure resumed",
		zap.String("owner_id", ownerID),
		zap.String("adventure_id", rec.AdventureID))

	return rec.Clone(), nil
}

// Delete removes an adventure. The target defaults to the active adventure,
// then the owner's current one. When the deleted adventure was current, the
// pointer moves to the most recently touched non-completed adventure.
func (m *Manager) Delete(ctx context.Context, ownerID, adventureID string) (*DeletedSummary, error) {
	st := m.ownerFor(ownerID)
	st.mu.Lock()
	defer st.mu.Unlock()

	m.loadIndexLocked(ctx, st, ownerID)

	target := adventureID
	if target == "" {
		if st.active != nil {
			target = st.active.AdventureID
		} else {
			target = st.index.CurrentAdventureID
		}
	}
	summary, ok := st.index.Summaries[target]
	if target == "" || !ok {
		return nil, ErrAdventureNotFound
	}

	// Store first: a failed delete must leave the in-memory session and
	// index untouched so the owner keeps a consistent view.
	if err := m.store.DeleteRecord(ctx, ownerID, target); err != nil {
		m.log.Error("failed to delete adventure record",
			zap.String("owner_id", ownerID),
			zap.String("adventure_id", target),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	if st.active != nil && st.active.AdventureID == target {
		st.active = nil
	}
	st.index.Remove(target)
	if st.index.CurrentAdventureID == target {
		st.index.CurrentAdventureID, _ = st.index.MostRecentResumable()
	}
	m.persistIndexLocked(ctx, st)

	m.publish(Event{Type: EventDeleted, OwnerID: ownerID, AdventureID: target, At: time.Now()})
	m.log.Info("adventure deleted",
		zap.String("owner_id", ownerID),
		zap.String("adventure_id", target))

	return &DeletedSummary{
		AdventureID: target,
		Theme:       summary.Theme,
		TurnCount:   summary.TurnCount,
		State:       summary.State,
	}, nil
}

// Status returns a read-only view of the owner's session state.
func (m *Manager) Status(ctx context.Context, ownerID string) (*StatusSnapshot, error) {
	st := m.ownerFor(ownerID)
	st.mu.Lock()
	defer st.mu.Unlock()

	m.loadIndexLocked(ctx, st, ownerID)

	snap := &StatusSnapshot{
		OwnerID:            ownerID,
		CurrentAdventureID: st.index.CurrentAdventureID,
		AdventureCount:     len(st.index.Summaries),
	}
	if st.active != nil {
		summary := st.active.Summary()
		snap.Active = &summary
		snap.IdleFor = time.Since(st.active.LastActionAt)
	}
	return snap, nil
}

// List returns one page of the owner's adventures, most recently touched
// first. Page numbers start at 1.
func (m *Manager) List(ctx context.Context, ownerID string, page, pageSize int) (*SummaryPage, error) {
	st := m.ownerFor(ownerID)
	st.mu.Lock()
	defer st.mu.Unlock()

	m.loadIndexLocked(ctx, st, ownerID)

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	all := make([]models.AdventureSummary, 0, len(st.index.Summaries))
	for _, s := range st.index.Summaries {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].LastActionAt.After(all[j].LastActionAt)
	})

	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}

	return &SummaryPage{
		Items:    all[start:end],
		Page:     page,
		PageSize: pageSize,
		Total:    len(all),
	}, nil
}

// Detail returns the full record for an adventure, defaulting to the active
// one and then the owner's current one.
func (m *Manager) Detail(ctx context.Context, ownerID, adventureID string) (*models.AdventureRecord, error) {
	st := m.ownerFor(ownerID)
	st.mu.Lock()
	defer st.mu.Unlock()

	m.loadIndexLocked(ctx, st, ownerID)

	target := adventureID
	if target == "" {
		if st.active != nil {
			target = st.active.AdventureID
		} else {
			target = st.index.CurrentAdventureID
		}
	}
	if target == "" {
		return nil, ErrAdventureNotFound
	}

	if st.active != nil && st.active.AdventureID == target {
		return st.active.Clone(), nil
	}

	rec, err := m.store.GetRecord(ctx, ownerID, target)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrCorrupt) {
			return nil, ErrAdventureNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return rec, nil
}

// Purge erases an owner's adventures, or every owner's when ownerID is
// empty. Purging an owner with nothing stored is a successful no-op.
func (m *Manager) Purge(ctx context.Context, ownerID string) (*PurgeSummary, error) {
	if ownerID != "" {
		return m.purgeOwner(ctx, ownerID)
	}

	owners, err := m.store.ListOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	total := &PurgeSummary{}
	for _, owner := range owners {
		sub, err := m.purgeOwner(ctx, owner)
		if err != nil {
			return nil, err
		}
		total.Owners += sub.Owners
		total.Adventures += sub.Adventures
	}

	// Catch anything not reachable through an index document.
	if err := m.store.DeleteAll(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	m.log.Info("all adventure data purged",
		zap.Int("owners", total.Owners),
		zap.Int("adventures", total.Adventures))
	return total, nil
}

func (m *Manager) purgeOwner(ctx context.Context, ownerID string) (*PurgeSummary, error) {
	st := m.ownerFor(ownerID)
	st.mu.Lock()
	defer st.mu.Unlock()

	m.loadIndexLocked(ctx, st, ownerID)

	adventures := len(st.index.Summaries)
	owners := 0
	if adventures > 0 || st.index.CurrentAdventureID != "" {
		owners = 1
	}

	st.active = nil
	st.index = models.NewUserIndex(ownerID)

	if err := m.store.DeleteOwner(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if m.cache != nil {
		if err := m.cache.Invalidate(ctx, ownerID); err != nil {
			m.log.Warn("failed to invalidate index cache", zap.String("owner_id", ownerID), zap.Error(err))
		}
	}

	return &PurgeSummary{Owners: owners, Adventures: adventures}, nil
}

// FlushActive writes every memory-resident active adventure through to the
// store. Failures are logged per record and do not abort the flush.
func (m *Manager) FlushActive(ctx context.Context) (flushed, failed int) {
	m.mu.Lock()
	slots := make(map[string]*ownerState, len(m.owners))
	for ownerID, st := range m.owners {
		slots[ownerID] = st
	}
	m.mu.Unlock()

	for ownerID, st := range slots {
		st.mu.Lock()
		if st.active == nil {
			st.mu.Unlock()
			continue
		}
		st.index.Put(st.active.Summary())
		err := m.persistLocked(ctx, st, st.active)
		st.mu.Unlock()

		if err != nil {
			failed++
			m.log.Warn("autosave flush failed", zap.String("owner_id", ownerID), zap.Error(err))
			continue
		}
		flushed++
	}
	return flushed, failed
}

// Close pauses and flushes every active adventure, then erases persisted
// state when the configuration asks for removal on uninstall.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	slots := make([]*ownerState, 0, len(m.owners))
	for _, st := range m.owners {
		slots = append(slots, st)
	}
	m.mu.Unlock()

	for _, st := range slots {
		st.mu.Lock()
		if st.active != nil {
			if err := m.pauseLocked(ctx, st, time.Now()); err != nil {
				m.log.Warn("failed to pause adventure on shutdown", zap.Error(err))
			}
		}
		st.mu.Unlock()
	}

	if m.cfg.Game.EraseOnShutdown {
		m.log.Info("erasing persisted adventure data on shutdown")
		if err := m.store.DeleteAll(ctx); err != nil {
			return fmt.Errorf("erase persisted state: %w", err)
		}
	}
	return nil
}

// ownerFor returns the owner's slot, creating it if needed, and evicts the
// least recently touched idle owners when the map outgrows its bound.
func (m *Manager) ownerFor(ownerID string) *ownerState {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.owners[ownerID]
	if !ok {
		st = &ownerState{}
		m.owners[ownerID] = st
	}
	st.lastTouch = time.Now()
	if !ok {
		m.evictLocked(ownerID)
	}
	return st
}

// evictLocked trims the least recently touched idle slots. The slot being
// handed to the caller is never a victim, so every in-flight operation keeps
// the one mutex that serializes its owner.
func (m *Manager) evictLocked(keep string) {
	limit := m.cfg.Game.MaxCachedOwners
	if limit <= 0 || len(m.owners) <= limit {
		return
	}
	for len(m.owners) > limit {
		var oldestID string
		var oldest time.Time
		for id, st := range m.owners {
			if id == keep || st.active != nil {
				continue
			}
			if oldestID == "" || st.lastTouch.Before(oldest) {
				oldestID = id
				oldest = st.lastTouch
			}
		}
		if oldestID == "" {
			return
		}
		delete(m.owners, oldestID)
	}
}

// loadIndexLocked makes the owner's index memory-resident and reconciles it:
// summaries left ACTIVE by a crash are demoted to PAUSED and summaries past
// the retention age are expired. Caller holds st.mu.
func (m *Manager) loadIndexLocked(ctx context.Context, st *ownerState, ownerID string) {
	if st.index != nil {
		return
	}

	if m.cache != nil {
		if idx, err := m.cache.GetIndex(ctx, ownerID); err == nil {
			st.index = idx
			m.reconcileLocked(ctx, st, ownerID)
			return
		}
	}

	idx, err := m.store.GetIndex(ctx, ownerID)
	switch {
	case err == nil:
		st.index = idx
	case errors.Is(err, storage.ErrNotFound):
		st.index = models.NewUserIndex(ownerID)
	case errors.Is(err, storage.ErrCorrupt):
		m.log.Warn("user index is corrupt, starting fresh",
			zap.String("owner_id", ownerID), zap.Error(err))
		st.index = models.NewUserIndex(ownerID)
	default:
		m.log.Error("failed to load user index",
			zap.String("owner_id", ownerID), zap.Error(err))
		st.index = models.NewUserIndex(ownerID)
	}

	m.reconcileLocked(ctx, st, ownerID)
}

func (m *Manager) reconcileLocked(ctx context.Context, st *ownerState, ownerID string) {
	retention := m.cfg.Game.CacheRetention()
	now := time.Now()
	changed := false

	for id, summary := range st.index.Summaries {
		if retention > 0 && now.Sub(summary.LastActionAt) > retention {
			m.log.Info("expiring adventure past retention",
				zap.String("owner_id", ownerID),
				zap.String("adventure_id", id),
				zap.Time("last_action_at", summary.LastActionAt))
			if err := m.store.DeleteRecord(ctx, ownerID, id); err != nil {
				m.log.Warn("failed to delete expired adventure",
					zap.String("adventure_id", id), zap.Error(err))
				continue
			}
			st.index.Remove(id)
			if st.index.CurrentAdventureID == id {
				st.index.CurrentAdventureID, _ = st.index.MostRecentResumable()
			}
			changed = true
			continue
		}

		if summary.State != models.StateActive {
			continue
		}
		// An active summary with no in-memory session means the process died
		// mid-adventure. Demote it so the owner can resume cleanly.
		rec, err := m.store.GetRecord(ctx, ownerID, id)
		if err != nil {
			m.log.Warn("dropping unloadable active adventure",
				zap.String("owner_id", ownerID),
				zap.String("adventure_id", id),
				zap.Error(err))
			st.index.Remove(id)
			if st.index.CurrentAdventureID == id {
				st.index.CurrentAdventureID, _ = st.index.MostRecentResumable()
			}
			changed = true
			continue
		}
		pausedAt := now
		rec.State = models.StatePaused
		rec.PausedAt = &pausedAt
		if err := m.store.PutRecord(ctx, rec); err != nil {
			m.log.Warn("failed to demote crashed adventure",
				zap.String("adventure_id", id), zap.Error(err))
			continue
		}
		st.index.Put(rec.Summary())
		changed = true
	}

	if changed {
		m.persistIndexLocked(ctx, st)
	}
}

// pauseLocked demotes the active record to PAUSED and writes it through.
// Caller holds st.mu.
func (m *Manager) pauseLocked(ctx context.Context, st *ownerState, now time.Time) error {
	rec := st.active
	if rec == nil {
		return nil
	}
	rec.State = models.StatePaused
	pausedAt := now
	rec.PausedAt = &pausedAt
	st.active = nil

	st.index.Put(rec.Summary())
	if err := m.persistLocked(ctx, st, rec); err != nil {
		return err
	}

	m.publish(Event{
		Type: EventPaused, OwnerID: rec.OwnerID, AdventureID: rec.AdventureID,
		TurnCount: rec.TurnCount, State: rec.State, At: now,
	})
	return nil
}

// persistLocked writes the record and the owner's index through to the
// store. Caller holds st.mu and has already refreshed the index summary.
func (m *Manager) persistLocked(ctx context.Context, st *ownerState, rec *models.AdventureRecord) error {
	if err := m.store.PutRecord(ctx, rec); err != nil {
		m.log.Error("failed to persist adventure record",
			zap.String("owner_id", rec.OwnerID),
			zap.String("adventure_id", rec.AdventureID),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	m.persistIndexLocked(ctx, st)
	return nil
}

// persistIndexLocked writes the index through to the store and refreshes the
// cache. Index write failures are logged, not surfaced: the authoritative
// record write already succeeded and the index is rebuilt on reconcile.
func (m *Manager) persistIndexLocked(ctx context.Context, st *ownerState) {
	if err := m.store.PutIndex(ctx, st.index); err != nil {
		m.log.Error("failed to persist user index",
			zap.String("owner_id", st.index.OwnerID), zap.Error(err))
		return
	}
	if m.cache != nil {
		if err := m.cache.SetIndex(ctx, st.index); err != nil {
			m.log.Warn("failed to refresh index cache",
				zap.String("owner_id", st.index.OwnerID), zap.Error(err))
		}
	}
}

func (m *Manager) publish(ev Event) {
	if m.events != nil {
		m.events.Publish(ev)
	}
}

// newAdventureID builds a sortable-by-creation identifier: a timestamp
// prefix plus a random suffix to break same-second collisions.
func newAdventureID() string {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("adv%s%s", time.Now().Format("20060102150405"), hex.EncodeToString(suffix))
}
