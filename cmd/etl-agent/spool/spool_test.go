package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSpool(t *testing.T) *Spool {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "spool.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnqueueAndDrain_PreservesOrder(t *testing.T) {
	s := newTestSpool(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Enqueue("subj", []byte(fmt.Sprintf("msg-%d", i))))
	}
	require.Equal(t, 5, s.Len())

	var got []string
	err := s.Drain(func(subject string, payload []byte) error {
		require.Equal(t, "subj", subject)
		got = append(got, string(payload))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"msg-0", "msg-1", "msg-2", "msg-3", "msg-4"}, got)
	require.Equal(t, 0, s.Len())
}

func TestDrain_StopsAtFirstFailureAndRetainsRemainder(t *testing.T) {
	s := newTestSpool(t)
	require.NoError(t, s.Enqueue("a", []byte("1")))
	require.NoError(t, s.Enqueue("b", []byte("2")))

	callCount := 0
	err := s.Drain(func(subject string, payload []byte) error {
		callCount++
		return fmt.Errorf("publish unavailable")
	})

	require.Error(t, err)
	require.Equal(t, 1, callCount, "drain must stop at the first failure")
	require.Equal(t, 2, s.Len(), "failed entry and everything after it must remain queued")
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spool.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue("subj", []byte("persisted")))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	require.Equal(t, 1, s2.Len())

	var got string
	require.NoError(t, s2.Drain(func(subject string, payload []byte) error {
		got = string(payload)
		return nil
	}))
	require.Equal(t, "persisted", got)
}

func TestOpen_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)
}
