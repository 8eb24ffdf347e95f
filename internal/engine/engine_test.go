package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qiuqing005/maoxian/internal/config"
	"github.com/qiuqing005/maoxian/internal/models"
	"github.com/qiuqing005/maoxian/internal/storage"
)

type providerFunc func(ctx context.Context, transcript []models.Message) (string, error)

func (f providerFunc) Generate(ctx context.Context, transcript []models.Message) (string, error) {
	return f(ctx, transcript)
}

func staticProvider(text string) providerFunc {
	return func(ctx context.Context, transcript []models.Message) (string, error) {
		return text, nil
	}
}

func failingProvider(err error) providerFunc {
	return func(ctx context.Context, transcript []models.Message) (string, error) {
		return "", err
	}
}

func newTestManager(t *testing.T, prov providerFunc) (*Manager, storage.Store) {
	t.Helper()
	store, err := storage.OpenBolt(filepath.Join(t.TempDir(), "adventures.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default()
	if prov == nil {
		return NewManager(cfg, store, nil, zap.NewNop()), store
	}
	return NewManager(cfg, store, prov, zap.NewNop()), store
}

func TestStartCreatesActiveAdventure(t *testing.T) {
	m, store := newTestManager(t, staticProvider("你站在一座古老城门前。"))
	ctx := context.Background()

	rec, err := m.Start(ctx, "user1", "cyberpunk")
	require.NoError(t, err)

	assert.Equal(t, models.StateActive, rec.State)
	assert.Equal(t, 1, rec.TurnCount)
	assert.Equal(t, "cyberpunk", rec.Theme)
	require.Len(t, rec.Transcript, 3)
	assert.Equal(t, models.RoleSystem, rec.Transcript[0].Role)
	assert.Equal(t, models.RoleUser, rec.Transcript[1].Role)
	assert.Equal(t, models.RoleAssistant, rec.Transcript[2].Role)

	// Write-through: both documents are observable in the store.
	persisted, err := store.GetRecord(ctx, "user1", rec.AdventureID)
	require.NoError(t, err)
	assert.Equal(t, models.StateActive, persisted.State)

	idx, err := store.GetIndex(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, rec.AdventureID, idx.CurrentAdventureID)
}

func TestStartUsesDefaultTheme(t *testing.T) {
	m, _ := newTestManager(t, staticProvider("开场。"))

	rec, err := m.Start(context.Background(), "user1", "  ")
	require.NoError(t, err)
	assert.Equal(t, "奇幻世界", rec.Theme)
}

func TestStartPausesExistingActive(t *testing.T) {
	m, store := newTestManager(t, staticProvider("开场。"))
	ctx := context.Background()

	first, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)
	second, err := m.Start(ctx, "user1", "scifi")
	require.NoError(t, err)

	persisted, err := store.GetRecord(ctx, "user1", first.AdventureID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePaused, persisted.State)
	require.NotNil(t, persisted.PausedAt)

	// At most one active adventure per owner.
	idx, err := store.GetIndex(ctx, "user1")
	require.NoError(t, err)
	activeCount := 0
	for _, s := range idx.Summaries {
		if s.State == models.StateActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
	assert.Equal(t, second.AdventureID, idx.CurrentAdventureID)
}

func TestStartWithoutProvider(t *testing.T) {
	m, store := newTestManager(t, nil)

	_, err := m.Start(context.Background(), "user1", "fantasy")
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	owners, err := store.ListOwners(context.Background())
	require.NoError(t, err)
	assert.Empty(t, owners)
}

func TestStartProviderFailurePersistsNothing(t *testing.T) {
	m, store := newTestManager(t, failingProvider(errors.New("upstream down")))
	ctx := context.Background()

	_, err := m.Start(ctx, "user1", "fantasy")
	assert.ErrorIs(t, err, ErrProviderFailure)

	_, err = store.GetIndex(ctx, "user1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSubmitActionAdvancesTurn(t *testing.T) {
	m, _ := newTestManager(t, staticProvider("You proceed north."))
	ctx := context.Background()

	_, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)

	res, err := m.SubmitAction(ctx, "user1", "go north")
	require.NoError(t, err)

	assert.False(t, res.Completed)
	assert.Equal(t, models.ReasonNone, res.Reason)
	assert.Equal(t, "You proceed north.", res.Narrative)
	assert.Equal(t, 2, res.Record.TurnCount)
	assert.Equal(t, 2, res.Record.TotalActionCount)
	assert.Equal(t, models.StateActive, res.Record.State)
	require.Len(t, res.Record.Transcript, 5)
	assert.Equal(t, "go north", res.Record.Transcript[3].Content)
}

func TestSubmitActionEmptyInputIsNoOp(t *testing.T) {
	m, _ := newTestManager(t, staticProvider("开场。"))
	ctx := context.Background()

	started, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)

	res, err := m.SubmitAction(ctx, "user1", "   ")
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Equal(t, started.TurnCount, res.Record.TurnCount)
	assert.Equal(t, len(started.Transcript), len(res.Record.Transcript))
}

func TestSubmitActionWithoutActiveSession(t *testing.T) {
	m, _ := newTestManager(t, staticProvider("开场。"))

	_, err := m.SubmitAction(context.Background(), "user1", "go north")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestSubmitActionDeathCompletes(t *testing.T) {
	responses := []string{"开场。", "巨龙喷出烈焰。你死了。"}
	call := 0
	prov := providerFunc(func(ctx context.Context, transcript []models.Message) (string, error) {
		out := responses[call]
		call++
		return out, nil
	})
	m, store := newTestManager(t, prov)
	ctx := context.Background()

	started, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)

	res, err := m.SubmitAction(ctx, "user1", "fight")
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, models.ReasonDeath, res.Reason)
	assert.Equal(t, models.StateCompleted, res.Record.State)
	require.NotNil(t, res.Record.CompletedAt)

	// Removed from the active set.
	snap, err := m.Status(ctx, "user1")
	require.NoError(t, err)
	assert.Nil(t, snap.Active)
	_, err = m.SubmitAction(ctx, "user1", "again")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	// Completed state is durable.
	persisted, err := store.GetRecord(ctx, "user1", started.AdventureID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, persisted.State)
	assert.Equal(t, models.ReasonDeath, persisted.CompletionReason)
}

func TestSubmitActionTimeoutPauses(t *testing.T) {
	m, store := newTestManager(t, staticProvider("开场。"))
	ctx := context.Background()

	started, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)

	st := m.ownerFor("user1")
	st.mu.Lock()
	st.active.LastActionAt = time.Now().Add(-m.cfg.Game.SessionTimeout() - time.Minute)
	st.mu.Unlock()

	_, err = m.SubmitAction(ctx, "user1", "go north")
	assert.ErrorIs(t, err, ErrSessionTimedOut)

	persisted, err := store.GetRecord(ctx, "user1", started.AdventureID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePaused, persisted.State)
	// The transcript is preserved exactly, so resume is lossless.
	assert.Equal(t, started.Transcript, persisted.Transcript)
}

func TestSubmitActionProviderFailureAutoPauses(t *testing.T) {
	call := 0
	prov := providerFunc(func(ctx context.Context, transcript []models.Message) (string, error) {
		call++
		if call == 1 {
			return "开场。", nil
		}
		return "", errors.New("upstream down")
	})
	m, store := newTestManager(t, prov)
	ctx := context.Background()

	started, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)

	_, err = m.SubmitAction(ctx, "user1", "go north")
	assert.ErrorIs(t, err, ErrProviderFailure)

	persisted, err := store.GetRecord(ctx, "user1", started.AdventureID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePaused, persisted.State)
	// The user's action survives the failure; turn count does not advance.
	require.Len(t, persisted.Transcript, 4)
	assert.Equal(t, "go north", persisted.Transcript[3].Content)
	assert.Equal(t, 1, persisted.TurnCount)
	assert.Equal(t, 2, persisted.TotalActionCount)
}

func TestPauseThenResumeRestoresState(t *testing.T) {
	m, _ := newTestManager(t, staticProvider("开场。"))
	ctx := context.Background()

	started, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)

	paused, err := m.Pause(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, models.StatePaused, paused.State)
	require.NotNil(t, paused.PausedAt)

	resumed, err := m.Resume(ctx, "user1", "")
	require.NoError(t, err)
	assert.Equal(t, models.StateActive, resumed.State)
	assert.Equal(t, started.TurnCount, resumed.TurnCount)
	assert.Equal(t, started.Transcript, resumed.Transcript)
	require.NotNil(t, resumed.ResumedAt)
}

func TestPauseWithoutActiveSession(t *testing.T) {
	m, _ := newTestManager(t, staticProvider("开场。"))

	_, err := m.Pause(context.Background(), "user1")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestResumeExplicitTarget(t *testing.T) {
	m, store := newTestManager(t, staticProvider("开场。"))
	ctx := context.Background()

	first, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)
	second, err := m.Start(ctx, "user1", "scifi")
	require.NoError(t, err)

	// Resuming the first pauses the second.
	resumed, err := m.Resume(ctx, "user1", first.AdventureID)
	require.NoError(t, err)
	assert.Equal(t, first.AdventureID, resumed.AdventureID)

	persisted, err := store.GetRecord(ctx, "user1", second.AdventureID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePaused, persisted.State)

	idx, err := store.GetIndex(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, first.AdventureID, idx.CurrentAdventureID)
}

func TestResumeUnknownExplicitTarget(t *testing.T) {
	m, _ := newTestManager(t, staticProvider("开场。"))
	ctx := context.Background()

	_, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)
	_, err = m.Pause(ctx, "user1")
	require.NoError(t, err)

	_, err = m.Resume(ctx, "user1", "no-such-adventure")
	assert.ErrorIs(t, err, ErrAdventureNotFound)
}

func TestResumeSkipsCompleted(t *testing.T) {
	responses := []string{"开场。", "全剧终。"}
	call := 0
	prov := providerFunc(func(ctx context.Context, transcript []models.Message) (string, error) {
		out := responses[call%len(responses)]
		call++
		return out, nil
	})
	m, _ := newTestManager(t, prov)
	ctx := context.Background()

	completedRec, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)
	res, err := m.SubmitAction(ctx, "user1", "finish it")
	require.NoError(t, err)
	require.True(t, res.Completed)

	// The current pointer still references the completed adventure; resume
	// must refuse both the pointer and the explicit id.
	_, err = m.Resume(ctx, "user1", "")
	assert.ErrorIs(t, err, ErrNoResumableAdventure)
	_, err = m.Resume(ctx, "user1", completedRec.AdventureID)
	assert.ErrorIs(t, err, ErrNoResumableAdventure)
}

func TestDeleteActiveReassignsCurrent(t *testing.T) {
	m, store := newTestManager(t, staticProvider("开场。"))
	ctx := context.Background()

	first, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)
	second, err := m.Start(ctx, "user1", "scifi")
	require.NoError(t, err)

	deleted, err := m.Delete(ctx, "user1", second.AdventureID)
	require.NoError(t, err)
	assert.Equal(t, second.AdventureID, deleted.AdventureID)

	idx, err := store.GetIndex(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, first.AdventureID, idx.CurrentAdventureID)
	_, err = store.GetRecord(ctx, "user1", second.AdventureID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The deleted adventure was the active one.
	snap, err := m.Status(ctx, "user1")
	require.NoError(t, err)
	assert.Nil(t, snap.Active)
}

func TestDeleteLastAdventureClearsCurrent(t *testing.T) {
	m, store := newTestManager(t, staticProvider("开场。"))
	ctx := context.Background()

	rec, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)

	_, err = m.Delete(ctx, "user1", rec.AdventureID)
	require.NoError(t, err)

	idx, err := store.GetIndex(ctx, "user1")
	require.NoError(t, err)
	assert.Empty(t, idx.CurrentAdventureID)
	assert.Empty(t, idx.Summaries)
}

func TestDeleteNotFound(t *testing.T) {
	m, _ := newTestManager(t, staticProvider("开场。"))

	_, err := m.Delete(context.Background(), "user1", "")
	assert.ErrorIs(t, err, ErrAdventureNotFound)
}

func TestPurgeOwnerIsIdempotent(t *testing.T) {
	m, store := newTestManager(t, staticProvider("开场。"))
	ctx := context.Background()

	_, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)

	first, err := m.Purge(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Owners)
	assert.Equal(t, 1, first.Adventures)

	second, err := m.Purge(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Adventures)

	owners, err := store.ListOwners(ctx)
	require.NoError(t, err)
	assert.Empty(t, owners)
}

func TestPurgeAll(t *testing.T) {
	m, store := newTestManager(t, staticProvider("开场。"))
	ctx := context.Background()

	_, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)
	_, err = m.Start(ctx, "user2", "scifi")
	require.NoError(t, err)

	summary, err := m.Purge(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Owners)
	assert.Equal(t, 2, summary.Adventures)

	owners, err := store.ListOwners(ctx)
	require.NoError(t, err)
	assert.Empty(t, owners)
}

func TestTranscriptIsAppendOnly(t *testing.T) {
	m, store := newTestManager(t, staticProvider("继续前进。"))
	ctx := context.Background()

	rec, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)
	prefix := append([]models.Message(nil), rec.Transcript...)

	for _, action := range []string{"look around", "open the door", "take the lamp"} {
		res, err := m.SubmitAction(ctx, "user1", action)
		require.NoError(t, err)
		// The earlier transcript is a strict prefix of the new one.
		require.Greater(t, len(res.Record.Transcript), len(prefix))
		assert.Equal(t, prefix, res.Record.Transcript[:len(prefix)])
		prefix = append([]models.Message(nil), res.Record.Transcript...)
	}

	persisted, err := store.GetRecord(ctx, "user1", rec.AdventureID)
	require.NoError(t, err)
	assert.Equal(t, prefix, persisted.Transcript)
}

func TestListPaginatesMostRecentFirst(t *testing.T) {
	m, _ := newTestManager(t, staticProvider("开场。"))
	ctx := context.Background()

	st := m.ownerFor("user1")
	st.mu.Lock()
	st.index = models.NewUserIndex("user1")
	base := time.Now()
	for i := 0; i < 5; i++ {
		st.index.Put(models.AdventureSummary{
			AdventureID:  string(rune('a' + i)),
			State:        models.StatePaused,
			LastActionAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	st.mu.Unlock()

	page, err := m.List(ctx, "user1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "e", page.Items[0].AdventureID)
	assert.Equal(t, "d", page.Items[1].AdventureID)

	last, err := m.List(ctx, "user1", 3, 2)
	require.NoError(t, err)
	require.Len(t, last.Items, 1)
	assert.Equal(t, "a", last.Items[0].AdventureID)
}

func TestDetailLoadsFromStore(t *testing.T) {
	m, _ := newTestManager(t, staticProvider("开场。"))
	ctx := context.Background()

	rec, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)
	_, err = m.Pause(ctx, "user1")
	require.NoError(t, err)

	detail, err := m.Detail(ctx, "user1", rec.AdventureID)
	require.NoError(t, err)
	assert.Equal(t, rec.AdventureID, detail.AdventureID)
	assert.Equal(t, rec.Transcript, detail.Transcript)
}

func TestCrashedActiveAdventureIsDemotedOnLoad(t *testing.T) {
	m, store := newTestManager(t, staticProvider("开场。"))
	ctx := context.Background()

	rec, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)

	// Simulate a restart: a fresh manager over the same store sees the
	// persisted ACTIVE record without a live session.
	fresh := NewManager(m.cfg, store, staticProvider("开场。"), zap.NewNop())
	require.NoError(t, fresh.Init(ctx))

	persisted, err := store.GetRecord(ctx, "user1", rec.AdventureID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePaused, persisted.State)
	require.NotNil(t, persisted.PausedAt)

	// The owner can resume cleanly after the demotion.
	resumed, err := fresh.Resume(ctx, "user1", "")
	require.NoError(t, err)
	assert.Equal(t, rec.AdventureID, resumed.AdventureID)
}

func TestExpiredAdventuresAreDroppedOnLoad(t *testing.T) {
	m, store := newTestManager(t, staticProvider("开场。"))
	ctx := context.Background()

	old := time.Now().Add(-m.cfg.Game.CacheRetention() - 24*time.Hour)
	rec := &models.AdventureRecord{
		SchemaVersion: models.SchemaVersion,
		AdventureID:   "adv-old",
		OwnerID:       "user1",
		Theme:         "fantasy",
		Transcript: []models.Message{
			{Role: models.RoleSystem, Content: "gm"},
			{Role: models.RoleUser, Content: "start"},
		},
		State:            models.StatePaused,
		CompletionReason: models.ReasonNone,
		CreatedAt:        old,
		LastActionAt:     old,
	}
	require.NoError(t, store.PutRecord(ctx, rec))
	idx := models.NewUserIndex("user1")
	idx.Put(rec.Summary())
	idx.CurrentAdventureID = rec.AdventureID
	require.NoError(t, store.PutIndex(ctx, idx))

	snap, err := m.Status(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.AdventureCount)
	assert.Empty(t, snap.CurrentAdventureID)

	_, err = store.GetRecord(ctx, "user1", "adv-old")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCloseFlushesAndPausesActives(t *testing.T) {
	m, store := newTestManager(t, staticProvider("开场。"))
	ctx := context.Background()

	rec, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)

	require.NoError(t, m.Close(ctx))

	persisted, err := store.GetRecord(ctx, "user1", rec.AdventureID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePaused, persisted.State)
}

func TestCloseErasesWhenConfigured(t *testing.T) {
	m, store := newTestManager(t, staticProvider("开场。"))
	m.cfg.Game.EraseOnShutdown = true
	ctx := context.Background()

	_, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)

	require.NoError(t, m.Close(ctx))

	owners, err := store.ListOwners(ctx)
	require.NoError(t, err)
	assert.Empty(t, owners)
}

func TestOwnerSlotSurvivesEvictionPressure(t *testing.T) {
	m, _ := newTestManager(t, staticProvider("开场。"))
	m.cfg.Game.MaxCachedOwners = 1
	ctx := context.Background()

	_, err := m.Start(ctx, "owner-a", "fantasy")
	require.NoError(t, err)
	_, err = m.Start(ctx, "owner-b", "scifi")
	require.NoError(t, err)

	// The same owner must always be handed the same slot, otherwise two
	// concurrent calls would serialize on different mutexes.
	first := m.ownerFor("owner-b")
	second := m.ownerFor("owner-b")
	assert.Same(t, first, second)

	// The freshly started session is still live and usable.
	res, err := m.SubmitAction(ctx, "owner-b", "go north")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Record.TurnCount)
	assert.Equal(t, models.StateActive, res.Record.State)
}

type failingDeleteStore struct {
	storage.Store
	fail bool
}

func (s *failingDeleteStore) DeleteRecord(ctx context.Context, ownerID, adventureID string) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.Store.DeleteRecord(ctx, ownerID, adventureID)
}

func TestDeleteStorageFailureKeepsMemoryConsistent(t *testing.T) {
	bolt, err := storage.OpenBolt(filepath.Join(t.TempDir(), "adventures.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })

	store := &failingDeleteStore{Store: bolt}
	m := NewManager(config.Default(), store, staticProvider("开场。"), zap.NewNop())
	ctx := context.Background()

	rec, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)

	store.fail = true
	_, err = m.Delete(ctx, "user1", rec.AdventureID)
	assert.ErrorIs(t, err, ErrStorageFailure)

	// The session and its index entry are untouched by the failed delete.
	snap, err := m.Status(ctx, "user1")
	require.NoError(t, err)
	require.NotNil(t, snap.Active)
	assert.Equal(t, rec.AdventureID, snap.Active.AdventureID)
	assert.Equal(t, rec.AdventureID, snap.CurrentAdventureID)

	res, err := m.SubmitAction(ctx, "user1", "go north")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Record.TurnCount)

	// Once the store recovers the delete goes through.
	store.fail = false
	deleted, err := m.Delete(ctx, "user1", rec.AdventureID)
	require.NoError(t, err)
	assert.Equal(t, rec.AdventureID, deleted.AdventureID)
}

type recordingPublisher struct {
	events []Event
}

func (p *recordingPublisher) Publish(ev Event) { p.events = append(p.events, ev) }

func TestLifecycleEventsArePublished(t *testing.T) {
	store, err := storage.OpenBolt(filepath.Join(t.TempDir(), "adventures.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pub := &recordingPublisher{}
	m := NewManager(config.Default(), store, staticProvider("开场。"), zap.NewNop(), WithPublisher(pub))
	ctx := context.Background()

	rec, err := m.Start(ctx, "user1", "fantasy")
	require.NoError(t, err)
	_, err = m.SubmitAction(ctx, "user1", "go north")
	require.NoError(t, err)
	_, err = m.Pause(ctx, "user1")
	require.NoError(t, err)

	require.Len(t, pub.events, 3)
	assert.Equal(t, EventStarted, pub.events[0].Type)
	assert.Equal(t, EventTurn, pub.events[1].Type)
	assert.Equal(t, EventPaused, pub.events[2].Type)
	assert.Equal(t, rec.AdventureID, pub.events[0].AdventureID)
}
