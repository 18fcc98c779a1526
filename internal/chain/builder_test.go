package chain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veritaschain/vcp/internal/event"
	"github.com/veritaschain/vcp/internal/hash"
	"github.com/veritaschain/vcp/internal/sign"
)

type recordingStore struct {
	chain    string
	sequence uint64
	prevHash string
	calls    int
}

func (s *recordingStore) SaveHead(chain string, sequence uint64, prevHash string) error {
	s.chain = chain
	s.sequence = sequence
	s.prevHash = prevHash
	s.calls++
	return nil
}

func appendN(t *testing.T, b *Builder, n int) []event.Event {
	t.Helper()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	out := make([]event.Event, 0, n)
	for i := 0; i < n; i++ {
		ev, err := b.Append(Record{
			TraceID:   "trace-1",
			EventType: "ORD",
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Payload:   event.Payload{"n": float64(i)},
		})
		require.NoError(t, err)
		out = append(out, *ev)
	}
	return out
}

func TestAppendLinksChain(t *testing.T) {
	b := NewBuilder(Options{ChainName: "test", Producer: "producer-1"})
	events := appendN(t, b, 5)

	require.Equal(t, event.Genesis, events[0].Security.PrevHash)
	for i, ev := range events {
		require.Equal(t, uint64(i+1), ev.Header.SequenceNumber)
		require.NotEmpty(t, ev.Header.EventID)
		require.Equal(t, "producer-1", ev.Header.Producer)
		require.Equal(t, event.DefaultTier, ev.Header.Tier)
		require.Len(t, ev.Security.EventHash, hash.DigestSize*2)

		if i > 0 {
			require.Equal(t, events[i-1].Security.EventHash, ev.Security.PrevHash)
		}

		expected, err := hash.ComputeEventHash(ev.Header, ev.Payload, ev.Security.PrevHash)
		require.NoError(t, err)
		require.Equal(t, expected, ev.Security.EventHash)
	}

	seq, head := b.Head()
	require.Equal(t, uint64(5), seq)
	require.Equal(t, events[4].Security.EventHash, head)
}

func TestAppendExplicitSequence(t *testing.T) {
	b := NewBuilder(Options{ChainName: "test"})

	_, err := b.Append(Record{EventType: "SIG", SequenceNumber: 1})
	require.NoError(t, err)

	_, err = b.Append(Record{EventType: "SIG", SequenceNumber: 5})
	require.Error(t, err)

	var ooe *OutOfOrderError
	require.True(t, errors.As(err, &ooe))
	require.Equal(t, uint64(2), ooe.Expected)
	require.Equal(t, uint64(5), ooe.Got)
}

func TestAppendSigns(t *testing.T) {
	signer, err := sign.NewEd25519Signer("unit-key")
	require.NoError(t, err)

	b := NewBuilder(Options{ChainName: "test", Signer: signer})
	events := appendN(t, b, 3)

	for _, ev := range events {
		require.NotEmpty(t, ev.Security.Signature)
		require.Equal(t, "ED25519", ev.Security.SignatureAlgorithm)
		require.Equal(t, "unit-key", ev.Security.KeyID)

		digest, err := hash.DecodeDigest(ev.Security.EventHash)
		require.NoError(t, err)
		ok, err := sign.Verify(signer.PublicKey(), ev.Security.Signature, digest)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestAppendUnsignedByDefault(t *testing.T) {
	b := NewBuilder(Options{ChainName: "test"})
	events := appendN(t, b, 1)

	require.Empty(t, events[0].Security.Signature)
	require.Empty(t, events[0].Security.KeyID)
}

func TestAppendPersistsHead(t *testing.T) {
	store := &recordingStore{}
	b := NewBuilder(Options{ChainName: "persisted", Store: store})
	events := appendN(t, b, 3)

	require.Equal(t, 3, store.calls)
	require.Equal(t, "persisted", store.chain)
	require.Equal(t, uint64(3), store.sequence)
	require.Equal(t, events[2].Security.EventHash, store.prevHash)
}

func TestBuilderResumes(t *testing.T) {
	b1 := NewBuilder(Options{ChainName: "resumed"})
	first := appendN(t, b1, 2)

	seq, head := b1.Head()
	b2 := NewBuilder(Options{ChainName: "resumed", StartSequence: seq, StartPrevHash: head})

	ev, err := b2.Append(Record{EventType: "ORD", Timestamp: time.Now()})
	require.NoError(t, err)
	require.Equal(t, uint64(3), ev.Header.SequenceNumber)
	require.Equal(t, first[1].Security.EventHash, ev.Security.PrevHash)
}

func TestRechainSortsAndRelinks(t *testing.T) {
	b := NewBuilder(Options{ChainName: "test"})
	events := appendN(t, b, 6)

	// Shuffle into arrival order != timestamp order and stamp stale
	// anchor fields.
	shuffled := []event.Event{events[3], events[0], events[5], events[1], events[4], events[2]}
	idx := 0
	for i := range shuffled {
		shuffled[i].Security.MerkleRoot = "stale"
		shuffled[i].Security.MerkleIndex = &idx
		shuffled[i].Security.AnchorReference = "stale-anchor"
	}

	rb := NewBuilder(Options{ChainName: "test"})
	out, err := rb.Rechain(shuffled)
	require.NoError(t, err)
	require.Len(t, out, 6)

	prev := event.Genesis
	var lastTS int64
	for i, ev := range out {
		require.Equal(t, uint64(i+1), ev.Header.SequenceNumber)
		require.Equal(t, prev, ev.Security.PrevHash)
		require.GreaterOrEqual(t, ev.Header.Timestamp, lastTS)
		require.Empty(t, ev.Security.MerkleRoot)
		require.Nil(t, ev.Security.MerkleIndex)
		require.Empty(t, ev.Security.AnchorReference)

		expected, err := hash.ComputeEventHash(ev.Header, ev.Payload, prev)
		require.NoError(t, err)
		require.Equal(t, expected, ev.Security.EventHash)

		prev = ev.Security.EventHash
		lastTS = ev.Header.Timestamp
	}

	seq, head := rb.Head()
	require.Equal(t, uint64(6), seq)
	require.Equal(t, out[5].Security.EventHash, head)
}

func TestRechainDoesNotMutateInput(t *testing.T) {
	b := NewBuilder(Options{ChainName: "test"})
	events := appendN(t, b, 3)
	originalHash := events[0].Security.EventHash

	rb := NewBuilder(Options{ChainName: "test"})
	_, err := rb.Rechain([]event.Event{events[2], events[1], events[0]})
	require.NoError(t, err)

	require.Equal(t, originalHash, events[0].Security.EventHash)
}

func TestRechainResigns(t *testing.T) {
	unsigned := NewBuilder(Options{ChainName: "test"})
	events := appendN(t, unsigned, 3)

	signer, err := sign.NewEd25519Signer("rechain-key")
	require.NoError(t, err)

	rb := NewBuilder(Options{ChainName: "test", Signer: signer})
	out, err := rb.Rechain(events)
	require.NoError(t, err)

	for _, ev := range out {
		require.NotEmpty(t, ev.Security.Signature)
		digest, err := hash.DecodeDigest(ev.Security.EventHash)
		require.NoError(t, err)
		ok, err := sign.Verify(signer.PublicKey(), ev.Security.Signature, digest)
		require.NoError(t, err)
		require.True(t, ok)
	}
}
