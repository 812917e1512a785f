package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"example.com/studysync/internal/domain"
	"example.com/studysync/internal/localstore"
	"example.com/studysync/internal/reconcile"
	"example.com/studysync/internal/remotestore/memory"
)

func quickBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 2)
}

func newLoginHandler(remote *memory.Store) *ReconcileHandler {
	local := localstore.NewMemory()
	local.Put("u1", domain.LocalRecords{
		Profile:  &domain.UserProfile{UserID: "u1", Email: "a@x.com"},
		Progress: []domain.ProgressEntry{{Date: "2024-01-01", Minutes: 30}},
	})
	return NewReconcileHandler(reconcile.New(local, remote), quickBackOff, zerolog.Nop())
}

func TestReconcileHandlerRunsPassOnLogin(t *testing.T) {
	remote := memory.NewStore()
	handler := newLoginHandler(remote)

	msg := Message{Topic: "user_sessions", EventType: EventUserLoggedIn, Payload: []byte(`{"user_id":"u1"}`)}
	require.NoError(t, handler.Handle(context.Background(), msg))
	require.NoError(t, handler.Handle(context.Background(), msg))

	require.Equal(t, 1, remote.Count(domain.KindProfile))
	require.Equal(t, 1, remote.Count(domain.KindProgress))
}

func TestReconcileHandlerIgnoresOtherEvents(t *testing.T) {
	remote := memory.NewStore()
	handler := newLoginHandler(remote)

	msg := Message{EventType: "user.logged_out", Payload: []byte(`{"user_id":"u1"}`)}
	require.NoError(t, handler.Handle(context.Background(), msg))
	require.Empty(t, remote.Calls())
}

func TestReconcileHandlerRejectsMalformedLogin(t *testing.T) {
	handler := newLoginHandler(memory.NewStore())

	for _, payload := range []string{`{"user_id":"  "}`, `[1,2]`} {
		err := handler.Handle(context.Background(), Message{EventType: EventUserLoggedIn, Payload: []byte(payload)})
		require.ErrorIs(t, err, ErrUndecodable, payload)
	}
}

func TestReconcileHandlerRetriesUnreachableRemote(t *testing.T) {
	remote := memory.NewStore()
	remote.SetUnavailable(true)
	handler := newLoginHandler(remote)

	err := handler.Handle(context.Background(), Message{EventType: EventUserLoggedIn, Payload: []byte(`{"user_id":"u1"}`)})
	require.ErrorIs(t, err, domain.ErrRemoteUnavailable)

	pings := 0
	for _, call := range remote.Calls() {
		if call.Op == memory.OpPing {
			pings++
		}
	}
	require.Equal(t, 3, pings)
}
