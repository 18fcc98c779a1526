package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/veritaschain/vcp/internal/event"
)

// csvTimeLayouts are tried in order when parsing row timestamps.
var csvTimeLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

// ReadCSV converts a decision-log CSV into raw events, one per row.
// Expected columns: a timestamp ("datetime" or "time"), a trace
// identifier ("signal_id" or "trace_id"), an optional "event_type"
// (default SIG) and the type-specific value columns.
func ReadCSV(path string) ([]Raw, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	// Tolerate a UTF-8 BOM on the first header cell.
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\uFEFF")
	}

	var raws []Raw
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(record) {
				row[h] = strings.TrimSpace(record[i])
			}
		}

		raw, ok, err := rowToRaw(row)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if ok {
			raws = append(raws, raw)
		}
	}

	return raws, nil
}

// rowToRaw maps one CSV row to a raw event. Rows without a timestamp
// are skipped, not errors, matching how partial exports behave.
func rowToRaw(row map[string]string) (Raw, bool, error) {
	dtStr := row["datetime"]
	if dtStr == "" {
		dtStr = row["time"]
	}
	if dtStr == "" {
		return Raw{}, false, nil
	}

	ts, err := parseCSVTime(dtStr)
	if err != nil {
		return Raw{}, false, err
	}

	traceID := row["signal_id"]
	if traceID == "" {
		traceID = row["trace_id"]
	}

	eventType := row["event_type"]
	if eventType == "" {
		eventType = "SIG"
	}

	payload := event.Payload{}
	if eventType == "SIG" {
		score, _ := strconv.ParseFloat(orDefault(row["confidence"], "0"), 64)
		payload["VCP_GOV"] = map[string]interface{}{
			"DecisionType":       "AI_CONSENSUS",
			"ConsensusDirection": orDefault(row["direction"], "NONE"),
			"ConsensusScore":     score,
		}
	} else {
		orderID := row["ticket"]
		if orderID == "" {
			orderID = row["order_id"]
		}
		payload["VCP_TRADE"] = map[string]interface{}{
			"OrderID":  orderID,
			"Side":     strings.ToUpper(orDefault(row["direction"], row["side"])),
			"Price":    orDefault(row["price"], "0"),
			"Quantity": orDefault(row["quantity"], orDefault(row["volume"], "0.01")),
		}
	}

	return Raw{
		TraceID:   traceID,
		EventType: eventType,
		Timestamp: ts,
		Payload:   payload,
	}, true, nil
}

func parseCSVTime(s string) (time.Time, error) {
	s = strings.Replace(s, "T", " ", 1)
	for _, layout := range csvTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	// RFC3339 layouts need the T back.
	s = strings.Replace(s, " ", "T", 1)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func orDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
