package store

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nwnotary/notary-server/pkg/observation"
)

// WriteTuple writes one observation in the newline-separated tuple-file
// format named in the specification's external-interfaces section:
// "service key start end", key in "aa:bb:…" hex, unadorned apart from that.
func WriteTuple(w io.Writer, serviceID string, o observation.Observation) error {
	_, err := fmt.Fprintf(w, "%s %s %d %d\n", serviceID, o.Key, o.Start, o.End)
	return err
}

// TupleRow is one parsed line of a tuple file.
type TupleRow struct {
	ServiceID string
	Key       observation.Key
	Start     int64
	End       int64
}

// ReadTuples parses a tuple-file stream, skipping blank lines and lines
// beginning with "#" (the export format's comment marker).
func ReadTuples(r io.Reader) ([]TupleRow, error) {
	var rows []TupleRow
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("store: tuple file line %d: expected 4 fields, got %d", lineNo, len(fields))
		}
		start, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("store: tuple file line %d: bad start: %w", lineNo, err)
		}
		end, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("store: tuple file line %d: bad end: %w", lineNo, err)
		}
		rows = append(rows, TupleRow{
			ServiceID: fields[0],
			Key:       observation.Key(fields[1]),
			Start:     start,
			End:       end,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("store: reading tuple file: %w", err)
	}
	return rows, nil
}
