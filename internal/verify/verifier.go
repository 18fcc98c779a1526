// Package verify reconstructs and checks every integrity layer of a
// persisted event chain: per-event hashes and linkage (layer 1), the
// Merkle aggregate (layer 2) and external verifiability, meaning
// signatures, anchor references and policy identification (layer 3).
package verify

import (
	"fmt"

	"github.com/veritaschain/vcp/internal/event"
	"github.com/veritaschain/vcp/internal/hash"
	"github.com/veritaschain/vcp/internal/logfile"
	"github.com/veritaschain/vcp/internal/sign"
)

// Policy is the protocol profile the producer and verifier must share.
// None of these have silent defaults that differ between sides; they
// travel in configuration.
type Policy struct {
	// PrevHashRequired makes chain-linkage failures fatal. When false
	// (compatibility carve-out for producers that omit PrevHash),
	// linkage mismatches are reported but do not fail the verdict, and
	// events without a PrevHash are not linkage-checked.
	PrevHashRequired bool

	// OddNodePolicy must match the producer's Merkle construction.
	OddNodePolicy hash.OddNodePolicy

	// MerkleOverStoredHashes computes the layer-2 root over the stored
	// event hashes instead of the recomputed ones. The default
	// (recomputed) makes any payload mutation disturb the root even
	// when the attacker kept the stored hash.
	MerkleOverStoredHashes bool

	// RequireSignatures makes signature failures fatal. Without it,
	// signatures are verified when a public key is supplied and
	// reported, but do not fail the verdict.
	RequireSignatures bool

	// RequireAnchorReference checks that every event carries an
	// AnchorReference.
	RequireAnchorReference bool

	// RequirePolicyID checks that every payload identifies its policy.
	RequirePolicyID bool

	// SequenceOrigin is the expected sequence number of the first
	// event.
	SequenceOrigin uint64

	// MaxFindings bounds the finding list; excess findings are counted,
	// not enumerated.
	MaxFindings int
}

// DefaultPolicy is the strict profile: prevHash mandatory, promote-odd
// Merkle, sequences starting at 1.
func DefaultPolicy() Policy {
	return Policy{
		PrevHashRequired: true,
		OddNodePolicy:    hash.PromoteOdd,
		SequenceOrigin:   1,
		MaxFindings:      20,
	}
}

// Verifier re-checks a chain it does not own. Read-only: never mutates
// the events it is given.
type Verifier struct {
	policy    Policy
	publicKey string // hex; empty means signature checks are skipped
}

func NewVerifier(policy Policy, publicKeyHex string) *Verifier {
	if policy.MaxFindings <= 0 {
		policy.MaxFindings = DefaultPolicy().MaxFindings
	}
	if policy.OddNodePolicy == "" {
		policy.OddNodePolicy = hash.PromoteOdd
	}
	if policy.SequenceOrigin == 0 {
		policy.SequenceOrigin = 1
	}
	return &Verifier{policy: policy, publicKey: publicKeyHex}
}

// VerifyFile loads a JSONL log and verifies it. Only a malformed file
// is an error; a tampered chain is a normal report.
func (v *Verifier) VerifyFile(path string) (*Report, error) {
	events, err := logfile.ReadEvents(path)
	if err != nil {
		return nil, err
	}
	report := v.Verify(events)
	report.File = path
	return report, nil
}

// Verify runs all three layers over the events in log order and
// renders the verdict.
func (v *Verifier) Verify(events []event.Event) *Report {
	report := &Report{
		TotalEvents: len(events),
		EventTypes:  make(map[string]int),
	}

	if len(events) == 0 {
		report.MerkleRoot = event.Genesis
		report.setResult(CheckEventHashes, Skipped, "no events")
		report.setResult(CheckMerkleRoot, Pass, "empty chain root is genesis")
		report.Valid = false
		return report
	}

	traces := make(map[string]struct{})
	for _, ev := range events {
		report.EventTypes[ev.Header.EventType]++
		traces[ev.Header.TraceID] = struct{}{}
	}
	report.UniqueTraces = len(traces)

	computed := v.layer1(events, report)
	v.layer2(events, computed, report)
	v.layer3(events, report)

	report.Valid = v.verdict(report)
	return report
}

// layer1 recomputes the whole chain sequentially: each event hash is
// derived from the previous *computed* digest, never the stored one,
// so a single mutation surfaces at its own index and at every link
// after it. Returns the recomputed digests.
func (v *Verifier) layer1(events []event.Event, report *Report) []string {
	hashOK := true
	linkageOK := true
	seqOK := true
	tsOK := true
	anyPrevHash := false

	// Genesis: the first event's stored predecessor must be the fixed
	// all-zero value.
	firstPrev := events[0].Security.PrevHash
	switch {
	case firstPrev == event.Genesis:
		report.setResult(CheckGenesis, Pass, "")
	case firstPrev == "" && !v.policy.PrevHashRequired:
		report.setResult(CheckGenesis, Skipped, "first event carries no PrevHash")
	default:
		report.setResult(CheckGenesis, Fail, "")
		v.addFinding(report, CheckGenesis, 0,
			fmt.Sprintf("genesis PrevHash invalid: expected %d zeros, got %q", hash.DigestSize*2, short(firstPrev)))
	}

	computed := make([]string, len(events))
	prev := event.Genesis
	lastSeq := v.policy.SequenceOrigin - 1
	var lastTS int64

	for i, ev := range events {
		expected, err := hash.ComputeEventHash(ev.Header, ev.Payload, prev)
		if err != nil {
			// prev is always well-formed here, so only encoding
			// failures land in this branch.
			hashOK = false
			v.addFinding(report, CheckEventHashes, i, fmt.Sprintf("hash recomputation failed: %v", err))
			expected = prev // keep the walk going
		}
		computed[i] = expected

		if ev.Security.EventHash != expected {
			hashOK = false
			v.addFinding(report, CheckEventHashes, i,
				fmt.Sprintf("EventHash mismatch: stored %s, computed %s", short(ev.Security.EventHash), short(expected)))
		}

		// Linkage is checked against the running computed predecessor,
		// independently of the hash check above.
		storedPrev := ev.Security.PrevHash
		if storedPrev != "" {
			anyPrevHash = true
		}
		switch {
		case storedPrev == "" && !v.policy.PrevHashRequired:
			// optional and absent: not linkage-checked
		case storedPrev != prev:
			linkageOK = false
			v.addFinding(report, CheckChainLinkage, i,
				fmt.Sprintf("PrevHash mismatch: stored %s, expected %s", short(storedPrev), short(prev)))
		}

		// Sequence numbers increase by exactly 1 from the origin.
		if ev.Header.SequenceNumber != lastSeq+1 {
			seqOK = false
			v.addFinding(report, CheckSequence, i,
				fmt.Sprintf("sequence gap: expected %d, got %d", lastSeq+1, ev.Header.SequenceNumber))
		}
		lastSeq = ev.Header.SequenceNumber

		// Timestamps never decrease across chain order.
		if i > 0 && ev.Header.Timestamp < lastTS {
			tsOK = false
			v.addFinding(report, CheckTimestamps, i,
				fmt.Sprintf("timestamp went backwards: %d after %d", ev.Header.Timestamp, lastTS))
		}
		lastTS = ev.Header.Timestamp

		prev = expected
	}

	report.setResult(CheckEventHashes, boolStatus(hashOK), "")
	if !anyPrevHash && !v.policy.PrevHashRequired {
		report.setResult(CheckChainLinkage, Skipped, "no PrevHash fields present")
	} else {
		detail := ""
		if !v.policy.PrevHashRequired {
			detail = "optional under current policy"
		}
		report.setResult(CheckChainLinkage, boolStatus(linkageOK), detail)
	}
	report.setResult(CheckSequence, boolStatus(seqOK), "")
	report.setResult(CheckTimestamps, boolStatus(tsOK), "")

	return computed
}

// layer2 aggregates the event digests into a single Merkle root and
// compares it against any root the producer embedded.
func (v *Verifier) layer2(events []event.Event, computed []string, report *Report) {
	digests := computed
	if v.policy.MerkleOverStoredHashes {
		digests = make([]string, len(events))
		for i, ev := range events {
			digests[i] = ev.Security.EventHash
		}
	}

	root, err := hash.MerkleRoot(digests, v.policy.OddNodePolicy)
	if err != nil {
		report.setResult(CheckMerkleRoot, Fail, "")
		v.addFinding(report, CheckMerkleRoot, -1, fmt.Sprintf("merkle computation failed: %v", err))
		return
	}
	report.MerkleRoot = root

	merkleOK := true
	for i, ev := range events {
		if ev.Security.MerkleRoot != "" && ev.Security.MerkleRoot != root {
			merkleOK = false
			v.addFinding(report, CheckMerkleRoot, i,
				fmt.Sprintf("MerkleRoot mismatch: stored %s, computed %s", short(ev.Security.MerkleRoot), short(root)))
		}
	}
	report.setResult(CheckMerkleRoot, boolStatus(merkleOK), "")
}

// layer3 covers external verifiability: signatures against the
// supplied public key, anchor-reference presence and policy
// identification. Absence of a public key degrades signature checks to
// skipped, never failed.
func (v *Verifier) layer3(events []event.Event, report *Report) {
	if v.publicKey == "" {
		report.setResult(CheckSignatures, Skipped, "no public key supplied")
	} else {
		valid := 0
		sigOK := true
		for i, ev := range events {
			ok, reason := v.verifySignature(ev)
			if ok {
				valid++
				continue
			}
			sigOK = false
			v.addFinding(report, CheckSignatures, i, reason)
		}
		report.setResult(CheckSignatures, boolStatus(sigOK), fmt.Sprintf("%d/%d valid", valid, len(events)))
	}

	if v.policy.RequireAnchorReference {
		anchorOK := true
		for i, ev := range events {
			if ev.Security.AnchorReference == "" {
				anchorOK = false
				v.addFinding(report, CheckAnchorReference, i, "AnchorReference missing")
			}
		}
		report.setResult(CheckAnchorReference, boolStatus(anchorOK), "")
	} else {
		report.setResult(CheckAnchorReference, Skipped, "not required by policy")
	}

	if v.policy.RequirePolicyID {
		policyOK := true
		for i, ev := range events {
			if !hasPolicyID(ev.Payload) {
				policyOK = false
				v.addFinding(report, CheckPolicyID, i, "PolicyIdentification missing")
			}
		}
		report.setResult(CheckPolicyID, boolStatus(policyOK), "")
	} else {
		report.setResult(CheckPolicyID, Skipped, "not required by policy")
	}
}

func (v *Verifier) verifySignature(ev event.Event) (bool, string) {
	if ev.Security.Signature == "" {
		return false, "event is unsigned"
	}
	digest, err := hash.DecodeDigest(ev.Security.EventHash)
	if err != nil {
		return false, fmt.Sprintf("stored EventHash not verifiable: %v", err)
	}
	ok, err := sign.Verify(v.publicKey, ev.Security.Signature, digest)
	if err != nil {
		return false, fmt.Sprintf("signature malformed: %v", err)
	}
	if !ok {
		return false, "signature does not verify under supplied key"
	}
	return true, ""
}

// verdict: overall PASS requires the layer-1 hash integrity checks,
// layer 2, and every check the policy marks mandatory. Linkage and
// genesis downgrade to non-fatal when PrevHash is optional.
func (v *Verifier) verdict(report *Report) bool {
	mandatory := []Check{CheckEventHashes, CheckSequence, CheckTimestamps, CheckMerkleRoot}
	if v.policy.PrevHashRequired {
		mandatory = append(mandatory, CheckGenesis, CheckChainLinkage)
	}
	if v.policy.RequireSignatures {
		mandatory = append(mandatory, CheckSignatures)
	}
	if v.policy.RequireAnchorReference {
		mandatory = append(mandatory, CheckAnchorReference)
	}
	if v.policy.RequirePolicyID {
		mandatory = append(mandatory, CheckPolicyID)
	}

	for _, check := range mandatory {
		if report.Status(check) == Fail {
			return false
		}
	}
	return true
}

func (v *Verifier) addFinding(report *Report, check Check, index int, message string) {
	if len(report.Findings) >= v.policy.MaxFindings {
		report.DroppedFindings++
		return
	}
	report.Findings = append(report.Findings, Finding{Check: check, Index: index, Message: message})
}

func boolStatus(ok bool) Status {
	if ok {
		return Pass
	}
	return Fail
}

func short(digest string) string {
	if len(digest) > 16 {
		return digest[:16] + "..."
	}
	if digest == "" {
		return "<empty>"
	}
	return digest
}

func hasPolicyID(payload event.Payload) bool {
	raw, ok := payload["PolicyIdentification"]
	if !ok {
		return false
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return false
	}
	id, ok := obj["PolicyID"].(string)
	return ok && id != ""
}
