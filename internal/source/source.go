// Package source turns external records into raw producer input for
// the chain builder. Sources are collaborators: they produce
// header+payload pairs and know nothing about hashing or linkage.
package source

import (
	"fmt"
	"time"

	"github.com/veritaschain/vcp/internal/chain"
	"github.com/veritaschain/vcp/internal/event"
)

// EventTypeCodes maps the well-known event types of the trading
// profile to their numeric codes.
var EventTypeCodes = map[string]int{
	"SIG": 1,
	"ORD": 2,
	"ACK": 3,
	"EXE": 4,
	"REJ": 6,
	"CLS": 9,
}

// Raw is one not-yet-chained event.
type Raw struct {
	TraceID   string
	EventType string
	Timestamp time.Time
	Payload   event.Payload
}

// AppendAll feeds raw events through a builder in slice order.
func AppendAll(b *chain.Builder, raws []Raw) ([]event.Event, error) {
	out := make([]event.Event, 0, len(raws))
	for i, raw := range raws {
		ev, err := b.Append(chain.Record{
			TraceID:       raw.TraceID,
			EventType:     raw.EventType,
			EventTypeCode: EventTypeCodes[raw.EventType],
			Timestamp:     raw.Timestamp,
			Payload:       raw.Payload,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to append raw event %d: %w", i, err)
		}
		out = append(out, *ev)
	}
	return out, nil
}
