package notifier

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	nsec, err := nip19.EncodePrivateKey(sk)
	require.NoError(t, err)

	n, err := New(nsec, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultRelays, n.relayURLs)

	pubkey, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	assert.Equal(t, pubkey, n.pubkey)

	_, err = New("nsec1garbage", nil)
	assert.Error(t, err)

	npub, err := nip19.EncodePublicKey(pubkey)
	require.NoError(t, err)
	_, err = New(npub, nil)
	assert.Error(t, err)
}

func TestNewEvent(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	nsec, err := nip19.EncodePrivateKey(sk)
	require.NoError(t, err)

	n, err := New(nsec, []string{"wss://relay.test"})
	require.NoError(t, err)

	event := n.newEvent("hello", nostr.Tags{nostr.Tag{"t", receiptTag}, nostr.Tag{"d", "P1"}})

	assert.Equal(t, nostr.KindTextNote, event.Kind)
	assert.Equal(t, "hello", event.Content)
	assert.Equal(t, n.pubkey, event.PubKey)
	assert.Equal(t, nostr.Tag{"d", "P1"}, *event.Tags.GetFirst(nostr.Tag{"d"}))

	ok, err := event.CheckSignature()
	assert.NoError(t, err)
	assert.True(t, ok)
}
