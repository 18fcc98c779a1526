// Package chain assembles events into an ordered, hash-linked
// sequence. One Builder owns one chain: all append state (sequence
// counter, running predecessor digest) lives on the Builder instance,
// never in package globals.
package chain

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/veritaschain/vcp/internal/event"
	"github.com/veritaschain/vcp/internal/hash"
	"github.com/veritaschain/vcp/internal/sign"
)

// OutOfOrderError reports an append whose explicit sequence number
// conflicts with the chain head, e.g. a producer resuming from stale
// state.
type OutOfOrderError struct {
	Expected uint64
	Got      uint64
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("out-of-order append: expected sequence %d, got %d", e.Expected, e.Got)
}

// HeadStore persists the chain head after each append so a producer
// can resume. Implemented by the bbolt store.
type HeadStore interface {
	SaveHead(chain string, sequence uint64, prevHash string) error
}

// Record is the raw producer input for one event: everything except
// the computed fields.
type Record struct {
	TraceID       string
	EventType     string
	EventTypeCode int
	Timestamp     time.Time
	Payload       event.Payload

	// SequenceNumber is optional. Zero means "assign the next one";
	// a non-zero value must match the next sequence exactly.
	SequenceNumber uint64
}

// Options configures a Builder.
type Options struct {
	ChainName string
	Producer  string
	Tier      string
	Signer    sign.Signer
	Store     HeadStore

	// StartSequence and StartPrevHash resume an existing chain. Zero
	// values start a fresh chain at sequence 1 from Genesis.
	StartSequence uint64
	StartPrevHash string
}

// Builder maintains producer-side chain state. Appends are serialized
// by a single mutex: each event hash depends on the previous one, so
// the dependency chain is inherently sequential.
type Builder struct {
	mu       sync.Mutex
	name     string
	producer string
	tier     string
	signer   sign.Signer
	store    HeadStore

	sequence uint64 // last assigned sequence, 0 when empty
	prevHash string
}

func NewBuilder(opts Options) *Builder {
	b := &Builder{
		name:     opts.ChainName,
		producer: opts.Producer,
		tier:     opts.Tier,
		signer:   opts.Signer,
		store:    opts.Store,
		sequence: opts.StartSequence,
		prevHash: opts.StartPrevHash,
	}
	if b.tier == "" {
		b.tier = event.DefaultTier
	}
	if b.signer == nil {
		b.signer = sign.NoopSigner{}
	}
	if b.prevHash == "" {
		b.prevHash = event.Genesis
	}
	return b
}

// Append assigns the next sequence number, links the event to the
// chain head, computes its hash, optionally signs it and advances the
// head. Returns the complete immutable event.
func (b *Builder) Append(rec Record) (*event.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.sequence + 1
	if rec.SequenceNumber != 0 && rec.SequenceNumber != next {
		return nil, &OutOfOrderError{Expected: next, Got: rec.SequenceNumber}
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	header := event.Header{
		EventID:            uuid.NewString(),
		TraceID:            rec.TraceID,
		SequenceNumber:     next,
		EventType:          rec.EventType,
		EventTypeCode:      rec.EventTypeCode,
		Timestamp:          ts.UnixMilli(),
		TimestampPrecision: "MILLISECOND",
		Producer:           b.producer,
		VCPVersion:         event.Version,
		Tier:               b.tier,
	}

	ev, err := b.seal(header, rec.Payload, b.prevHash)
	if err != nil {
		return nil, err
	}

	b.sequence = next
	b.prevHash = ev.Security.EventHash

	if b.store != nil {
		if err := b.store.SaveHead(b.name, b.sequence, b.prevHash); err != nil {
			return nil, fmt.Errorf("failed to persist chain head: %w", err)
		}
	}

	return ev, nil
}

// seal computes the security block for a header+payload at a given
// chain position.
func (b *Builder) seal(header event.Header, payload event.Payload, prevHash string) (*event.Event, error) {
	eventHash, err := hash.ComputeEventHash(header, payload, prevHash)
	if err != nil {
		return nil, err
	}

	sec := event.Security{
		PrevHash:      prevHash,
		EventHash:     eventHash,
		HashAlgorithm: event.HashAlgorithm,
	}

	if b.signer.Enabled() {
		digest, err := hash.DecodeDigest(eventHash)
		if err != nil {
			return nil, err
		}
		sig, err := b.signer.Sign(digest)
		if err != nil {
			return nil, fmt.Errorf("failed to sign event: %w", err)
		}
		sec.Signature = sig
		sec.SignatureAlgorithm = b.signer.Algorithm()
		sec.KeyID = b.signer.KeyID()
	}

	return &event.Event{Header: header, Payload: payload, Security: sec}, nil
}

// Head returns the current chain position.
func (b *Builder) Head() (sequence uint64, prevHash string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sequence, b.prevHash
}

// Rechain re-links a buffered batch in final persisted order: events
// are sorted by timestamp, then sequence numbers, predecessor digests,
// hashes and signatures are recomputed from Genesis. Chain integrity
// reflects stored order, not arrival order, so a reorder always means
// a full recompute.
func (b *Builder) Rechain(events []event.Event) ([]event.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]event.Event, len(events))
	for i, ev := range events {
		out[i] = ev.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Header.Timestamp < out[j].Header.Timestamp
	})

	prev := event.Genesis
	for i := range out {
		out[i].Header.SequenceNumber = uint64(i) + 1

		sealed, err := b.seal(out[i].Header, out[i].Payload, prev)
		if err != nil {
			return nil, fmt.Errorf("rechain at index %d: %w", i, err)
		}
		// Anchor references become stale after a re-chain.
		sealed.Security.MerkleRoot = ""
		sealed.Security.MerkleIndex = nil
		sealed.Security.AnchorReference = ""

		out[i] = *sealed
		prev = sealed.Security.EventHash
	}

	b.sequence = uint64(len(out))
	b.prevHash = prev

	if b.store != nil && len(out) > 0 {
		if err := b.store.SaveHead(b.name, b.sequence, b.prevHash); err != nil {
			return nil, fmt.Errorf("failed to persist chain head: %w", err)
		}
	}

	return out, nil
}
