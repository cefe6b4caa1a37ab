package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classworks/playsync/pkg/game/types"
	"github.com/classworks/playsync/pkg/validators"
)

func newTestRegistry(t *testing.T, idleWindow time.Duration) *Registry {
	t.Helper()
	return NewRegistry(NewRegistryOptions{
		Validators: validators.NewDefaultRegistry(),
		IdleWindow: idleWindow,
	})
}

func TestRegistry_Join(t *testing.T) {
	r := newTestRegistry(t, time.Minute)

	session, err := r.Join("user:u1", types.SessionModeLocal, "u1", validators.GameTypeQuizRace, "c1", nil)
	require.NoError(t, err)
	assert.Equal(t, "user:u1", session.Key)
	assert.Equal(t, types.SessionModeLocal, session.Mode)
	assert.Equal(t, types.PhaseSetup, session.Phase)
	assert.Equal(t, 1, r.SubscriberCount("user:u1"))

	// a second join subscribes without re-creating the session
	again, err := r.Join("user:u1", types.SessionModeLocal, "u1", validators.GameTypeQuizRace, "c2", nil)
	require.NoError(t, err)
	assert.Equal(t, session.CreatedAt, again.CreatedAt)
	assert.Equal(t, 2, r.SubscriberCount("user:u1"))

	t.Run("unknown game type", func(t *testing.T) {
		_, err := r.Join("user:u2", types.SessionModeLocal, "u2", "bogus", "c3", nil)
		assert.Error(t, err)
	})

	t.Run("game type mismatch", func(t *testing.T) {
		_, err := r.Join("user:u1", types.SessionModeLocal, "u1", validators.GameTypeCardMatch, "c3", nil)
		assert.Error(t, err)
	})
}

func TestRegistry_LeaveDestroysAtZero(t *testing.T) {
	r := newTestRegistry(t, time.Minute)

	_, err := r.Join("room:r1", types.SessionModeRoom, "r1", validators.GameTypeQuizRace, "c1", nil)
	require.NoError(t, err)
	_, err = r.Join("room:r1", types.SessionModeRoom, "r1", validators.GameTypeQuizRace, "c2", nil)
	require.NoError(t, err)

	r.Leave("room:r1", "c1")
	_, err = r.Lookup("room:r1")
	require.NoError(t, err)

	// the explicit leave of the last subscriber destroys immediately
	r.Leave("room:r1", "c2")
	_, err = r.Lookup("room:r1")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestRegistry_DisconnectSurvivesIdleWindow(t *testing.T) {
	r := newTestRegistry(t, time.Minute)

	_, err := r.Join("user:u1", types.SessionModeLocal, "u1", validators.GameTypeQuizRace, "c1", nil)
	require.NoError(t, err)

	r.Disconnect("user:u1", "c1")

	// still alive before the window elapses
	assert.Empty(t, r.ReapIdle(time.Now().UTC().Add(30*time.Second)))
	_, err = r.Lookup("user:u1")
	require.NoError(t, err)

	// a reconnect clears the empty-since mark
	_, err = r.Join("user:u1", types.SessionModeLocal, "u1", validators.GameTypeQuizRace, "c2", nil)
	require.NoError(t, err)
	assert.Empty(t, r.ReapIdle(time.Now().UTC().Add(2*time.Minute)))

	r.Disconnect("user:u1", "c2")
	reaped := r.ReapIdle(time.Now().UTC().Add(2 * time.Minute))
	assert.Equal(t, []string{"user:u1"}, reaped)
	_, err = r.Lookup("user:u1")
	assert.True(t, IsNotFound(err))
}

func TestRegistry_Apply(t *testing.T) {
	r := newTestRegistry(t, time.Minute)

	created, err := r.Join("user:u1", types.SessionModeLocal, "u1", validators.GameTypeQuizRace, "c1", nil)
	require.NoError(t, err)

	t.Run("mutation is stored and snapshotted", func(t *testing.T) {
		session, moveErr := r.Apply("user:u1", func(session *types.Session) *types.MoveError {
			session.State = []byte(`{"phase":"playing","config":{},"activePlayers":["p1"],"playerMeta":{}}`)
			if err := session.SyncEnvelope(); err != nil {
				return types.NewFieldViolation("%v", err)
			}
			return nil
		})
		require.Nil(t, moveErr)
		assert.Equal(t, types.PhasePlaying, session.Phase)
		assert.Equal(t, []string{"p1"}, session.ActivePlayers)
		assert.True(t, session.LastActivityAt.After(created.LastActivityAt) || session.LastActivityAt.Equal(created.LastActivityAt))
	})

	t.Run("an error leaves the state untouched", func(t *testing.T) {
		before, err := r.Lookup("user:u1")
		require.NoError(t, err)

		_, moveErr := r.Apply("user:u1", func(session *types.Session) *types.MoveError {
			return types.NewPhaseViolation("nope")
		})
		require.NotNil(t, moveErr)
		assert.Equal(t, types.ErrorKindPhaseViolation, moveErr.Kind)

		after, err := r.Lookup("user:u1")
		require.NoError(t, err)
		assert.Equal(t, before.State, after.State)
		assert.Equal(t, before.LastActivityAt, after.LastActivityAt)
	})

	t.Run("unknown key is not-found", func(t *testing.T) {
		_, moveErr := r.Apply("user:missing", func(session *types.Session) *types.MoveError { return nil })
		require.NotNil(t, moveErr)
		assert.Equal(t, types.ErrorKindNotFound, moveErr.Kind)
	})
}

func TestRegistry_ConcurrentJoinAndApply(t *testing.T) {
	r := newTestRegistry(t, time.Minute)

	_, err := r.Join("room:r1", types.SessionModeRoom, "r1", validators.GameTypeQuizRace, "c0", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			state := fmt.Sprintf(`{"phase":"playing","config":{"n":%d},"activePlayers":["p1"],"playerMeta":{}}`, i)
			_, moveErr := r.Apply("room:r1", func(session *types.Session) *types.MoveError {
				session.State = []byte(state)
				if err := session.SyncEnvelope(); err != nil {
					return types.NewFieldViolation("%v", err)
				}
				return nil
			})
			if moveErr != nil {
				t.Errorf("apply failed: %s", moveErr.Message)
				return
			}
		}
	}()

	// every late joiner must receive a coherent full-state snapshot even
	// while moves are being applied
	for i := 0; i < 500; i++ {
		connectorID := fmt.Sprintf("c%d", i+1)
		session, err := r.Join("room:r1", types.SessionModeRoom, "r1", validators.GameTypeQuizRace, connectorID, nil)
		if err != nil {
			t.Fatalf("join failed: %v", err)
		}
		if _, err := types.DecodeCore(session.State); err != nil {
			t.Fatalf("torn state snapshot: %v", err)
		}
		r.Leave("room:r1", connectorID)
	}
	wg.Wait()
}

func TestSnapshotIsolation(t *testing.T) {
	r := newTestRegistry(t, time.Minute)

	session, err := r.Join("user:u1", types.SessionModeLocal, "u1", validators.GameTypeQuizRace, "c1", nil)
	require.NoError(t, err)

	// mutating the snapshot must not leak into the registry
	session.State[0] = 'X'
	session.ActivePlayers = append(session.ActivePlayers, "p9")

	fresh, err := r.Lookup("user:u1")
	require.NoError(t, err)
	assert.NotEqual(t, byte('X'), fresh.State[0])
	assert.NotContains(t, fresh.ActivePlayers, "p9")
}
