package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBridgeNativeRedirectIsOneShot(t *testing.T) {
	b := newOAuthBridge(time.Minute, time.Minute)

	b.RememberNativeRedirect("state-1", "edgecoder://done")

	uri, ok := b.TakeNativeRedirect("state-1")
	require.True(t, ok)
	require.Equal(t, "edgecoder://done", uri)

	_, ok = b.TakeNativeRedirect("state-1")
	require.False(t, ok)

	_, ok = b.TakeNativeRedirect("never-stored")
	require.False(t, ok)
}

func TestBridgeHandoffIsOneShot(t *testing.T) {
	b := newOAuthBridge(time.Minute, time.Minute)

	token, err := b.IssueHandoff("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, ok := b.RedeemHandoff(token)
	require.True(t, ok)
	require.Equal(t, "user-1", userID)

	_, ok = b.RedeemHandoff(token)
	require.False(t, ok)
}

func TestBridgeExpiredEntriesDoNotRedeem(t *testing.T) {
	b := newOAuthBridge(time.Nanosecond, time.Nanosecond)

	b.RememberNativeRedirect("state-2", "edgecoder://done")
	token, err := b.IssueHandoff("user-2")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, ok := b.TakeNativeRedirect("state-2")
	require.False(t, ok)

	_, ok = b.RedeemHandoff(token)
	require.False(t, ok)
}
