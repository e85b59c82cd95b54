package sts

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ReportEntry is one row of finalAnalysisReport.txt: the uniformity p-value
// of the per-stream p-values, the pass proportion, and the test name.
type ReportEntry struct {
	Test       string  `json:"test"`
	PValue     float64 `json:"p_value"`
	Passed     int     `json:"passed"`
	Streams    int     `json:"streams"`
	Uniformity bool    `json:"uniformity"` // false when the report flagged the p-value with '*'
}

// ParseReport extracts test rows from the suite's final analysis report.
// Rows carry ten histogram columns, a p-value (or dashes when undefined), a
// passed/total proportion, and the test name; everything else in the file is
// prose and separators.
func ParseReport(data []byte) ([]ReportEntry, error) {
	var entries []ReportEntry

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 13 {
			continue
		}

		// columns 0-9 are the p-value histogram; require them numeric so
		// header and separator lines are skipped
		histogram := true
		for _, f := range fields[:10] {
			if _, err := strconv.Atoi(f); err != nil {
				histogram = false
				break
			}
		}
		if !histogram {
			continue
		}

		entry := ReportEntry{Uniformity: true}

		pField := fields[10]
		if strings.HasSuffix(pField, "*") {
			entry.Uniformity = false
			pField = strings.TrimSuffix(pField, "*")
		}
		if pField != "----" {
			p, err := strconv.ParseFloat(pField, 64)
			if err != nil {
				continue
			}
			entry.PValue = p
		}

		propField := strings.TrimSuffix(fields[11], "*")
		passed, streams, ok := parseProportion(propField)
		if !ok {
			continue
		}
		entry.Passed = passed
		entry.Streams = streams
		entry.Test = strings.Join(fields[12:], " ")

		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("no test rows found in report")
	}
	return entries, nil
}

func parseProportion(s string) (passed, streams int, ok bool) {
	var err error
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, 0, false
	}
	if passed, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, false
	}
	if streams, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, false
	}
	return passed, streams, true
}

// Summary renders a one-line-per-test text summary of a parsed report.
func Summary(entries []ReportEntry) string {
	var b strings.Builder
	for _, e := range entries {
		flag := ""
		if !e.Uniformity || e.Passed < e.Streams {
			flag = "  <-"
		}
		fmt.Fprintf(&b, "%-24s p=%.6f  %d/%d%s\n", e.Test, e.PValue, e.Passed, e.Streams, flag)
	}
	return b.String()
}
