package verify

import "fmt"

// Status of one named check.
type Status string

const (
	Pass    Status = "PASS"
	Fail    Status = "FAIL"
	Skipped Status = "SKIPPED"
)

// Check names every verification the verifier performs. Chain-hash
// integrity and chain linkage are independent checks: an attacker may
// forge one without the other.
type Check string

const (
	CheckGenesis         Check = "genesis"
	CheckEventHashes     Check = "event_hashes"
	CheckChainLinkage    Check = "chain_linkage"
	CheckSequence        Check = "sequence_numbers"
	CheckTimestamps      Check = "timestamp_monotonicity"
	CheckMerkleRoot      Check = "merkle_root"
	CheckSignatures      Check = "signatures"
	CheckAnchorReference Check = "anchor_reference"
	CheckPolicyID        Check = "policy_identification"
)

// Finding is one offending index with a message. Index is -1 for
// chain-level findings.
type Finding struct {
	Check   Check  `json:"check"`
	Index   int    `json:"index"`
	Message string `json:"message"`
}

func (f Finding) String() string {
	if f.Index < 0 {
		return fmt.Sprintf("[%s] %s", f.Check, f.Message)
	}
	return fmt.Sprintf("[%s] event %d: %s", f.Check, f.Index+1, f.Message)
}

// Result is the outcome of one named check.
type Result struct {
	Check  Check  `json:"check"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Report is the structured verification outcome. An invalid chain is
// a normal, fully populated report, never an error.
type Report struct {
	File         string         `json:"file,omitempty"`
	TotalEvents  int            `json:"total_events"`
	UniqueTraces int            `json:"unique_traces"`
	EventTypes   map[string]int `json:"event_types"`
	MerkleRoot   string         `json:"merkle_root"`
	Results      []Result       `json:"results"`
	Findings     []Finding      `json:"findings,omitempty"`

	// DroppedFindings counts findings beyond the policy bound. The
	// report never silently truncates to zero detail and never
	// enumerates unboundedly.
	DroppedFindings int `json:"dropped_findings,omitempty"`

	Valid bool `json:"valid"`
}

// Status returns the recorded status for a check, or Skipped if the
// check never ran.
func (r *Report) Status(check Check) Status {
	for _, res := range r.Results {
		if res.Check == check {
			return res.Status
		}
	}
	return Skipped
}

func (r *Report) setResult(check Check, status Status, detail string) {
	for i := range r.Results {
		if r.Results[i].Check == check {
			r.Results[i].Status = status
			r.Results[i].Detail = detail
			return
		}
	}
	r.Results = append(r.Results, Result{Check: check, Status: status, Detail: detail})
}
