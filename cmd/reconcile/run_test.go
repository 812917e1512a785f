package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"example.com/studysync/internal/domain"
	"example.com/studysync/internal/localstore"
	"example.com/studysync/internal/reconcile"
	"example.com/studysync/internal/remotestore/memory"
)

func fixture() (*localstore.Memory, *memory.Store) {
	local := localstore.NewMemory()
	local.Put("u1", domain.LocalRecords{
		Profile:  &domain.UserProfile{UserID: "u1", Email: "a@x.com"},
		Progress: []domain.ProgressEntry{{Date: "2024-01-01", Minutes: 30}},
	})
	local.Put("u2", domain.LocalRecords{
		Activities: []domain.ActivityRecord{{Type: domain.ActivityQA, Title: "missing date"}},
	})
	return local, memory.NewStore()
}

func TestRunPassesPrintsSummaries(t *testing.T) {
	local, remote := fixture()
	var out bytes.Buffer

	err := runPasses(context.Background(), reconcile.New(local, remote), []string{"u1", "ghost"}, nil, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "u1\tok\tprofile=1/0/0\tprogress=1/0/0\tactivity=0/0/0\tgoal=0/0/0", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "ghost\tnoop"), lines[1])
}

func TestRunPassesFailsOnUnsuccessfulPass(t *testing.T) {
	local, remote := fixture()
	var out bytes.Buffer

	err := runPasses(context.Background(), reconcile.New(local, remote), []string{"u1", "u2"}, nil, &out)
	require.ErrorIs(t, err, errUnsuccessful)
	require.Contains(t, out.String(), "u2\tpartial")
}

func TestRunPassesReportsUnreachableRemote(t *testing.T) {
	local, remote := fixture()
	remote.SetUnavailable(true)
	var out bytes.Buffer

	quick := func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 1)
	}
	err := runPasses(context.Background(), reconcile.New(local, remote), []string{"u1"}, quick, &out)
	require.ErrorIs(t, err, errUnsuccessful)
	require.Contains(t, out.String(), "u1\terror\tRemoteUnavailable")
}

func TestRunPassesJSON(t *testing.T) {
	local, remote := fixture()
	var out bytes.Buffer

	jsonOutput = true
	t.Cleanup(func() { jsonOutput = false })

	require.NoError(t, runPasses(context.Background(), reconcile.New(local, remote), []string{"u1"}, nil, &out))

	var report reconcile.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	require.True(t, report.Success)
	require.Equal(t, 1, report.PerEntity[domain.KindProgress].Inserted)
}
