package source

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/veritaschain/vcp/internal/event"
)

// DemoTrades synthesizes count trade lifecycles (SIG, ORD, ACK, EXE,
// CLS) with deterministic prices seeded per ticket, starting at start.
// Useful for generating evidence packs without a live producer.
// The result is ordered by timestamp, so trades overlap: a trade closes
// after later trades have already opened.
func DemoTrades(count int, start time.Time) []Raw {
	raws := make([]Raw, 0, count*5)

	for n := 0; n < count; n++ {
		ticket := 1000 + n
		traceID := fmt.Sprintf("demo-signal-%04d", n+1)
		entry := start.Add(time.Duration(n) * time.Minute)

		rng := rand.New(rand.NewSource(int64(ticket)))
		price := 155.5 + rng.Float64()*1.5
		quantity := 0.01
		side := "BUY"
		if n%2 == 1 {
			side = "SELL"
		}

		raws = append(raws, Raw{
			TraceID:   traceID,
			EventType: "SIG",
			Timestamp: entry,
			Payload: event.Payload{
				"VCP_GOV": map[string]interface{}{
					"DecisionType":       "AI_CONSENSUS",
					"ConsensusDirection": side,
					"ConsensusScore":     0.5 + rng.Float64()*0.5,
				},
			},
		})

		raws = append(raws, Raw{
			TraceID:   traceID,
			EventType: "ORD",
			Timestamp: entry.Add(10 * time.Millisecond),
			Payload: event.Payload{
				"VCP_TRADE": map[string]interface{}{
					"OrderID":     fmt.Sprintf("%d", ticket),
					"Side":        side,
					"OrderType":   "MARKET",
					"Price":       fmt.Sprintf("%.3f", price),
					"Quantity":    fmt.Sprintf("%.2f", quantity),
					"TimeInForce": "IOC",
				},
			},
		})

		raws = append(raws, Raw{
			TraceID:   traceID,
			EventType: "ACK",
			Timestamp: entry.Add(50 * time.Millisecond),
			Payload: event.Payload{
				"VCP_TRADE": map[string]interface{}{
					"OrderID":   fmt.Sprintf("%d", ticket),
					"AckStatus": "ACCEPTED",
				},
			},
		})

		raws = append(raws, Raw{
			TraceID:   traceID,
			EventType: "EXE",
			Timestamp: entry.Add(100 * time.Millisecond),
			Payload: event.Payload{
				"VCP_TRADE": map[string]interface{}{
					"OrderID":          fmt.Sprintf("%d", ticket),
					"ExecutionID":      fmt.Sprintf("EXE-%d", ticket),
					"Side":             side,
					"ExecutedPrice":    fmt.Sprintf("%.3f", price),
					"ExecutedQuantity": fmt.Sprintf("%.2f", quantity),
				},
			},
		})

		closePrice := price + (rng.Float64()-0.5)*0.5
		profit := (closePrice - price) * 1000
		if side == "SELL" {
			profit = (price - closePrice) * 1000
		}
		exitReason := "TTL_EXPIRE"
		if profit > 0 {
			exitReason = "TP_HIT"
		} else if profit < 0 {
			exitReason = "SL_HIT"
		}

		raws = append(raws, Raw{
			TraceID:   traceID,
			EventType: "CLS",
			Timestamp: entry.Add(30 * time.Minute),
			Payload: event.Payload{
				"VCP_TRADE": map[string]interface{}{
					"OrderID":     fmt.Sprintf("%d", ticket),
					"ClosePrice":  fmt.Sprintf("%.3f", closePrice),
					"RealizedPnL": fmt.Sprintf("%.0f", profit),
				},
				"VCP_GOV": map[string]interface{}{
					"ExitReason": exitReason,
				},
			},
		})
	}

	// Trades overlap (CLS lands after the next trades' entries), so the
	// per-trade bursts must interleave for the stream to be appendable.
	sort.SliceStable(raws, func(i, j int) bool {
		return raws[i].Timestamp.Before(raws[j].Timestamp)
	})

	return raws
}
