// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package record

import (
	"encoding/csv"
	"fmt"
	"os"
)

// ReadRecords reads a thermode TSV that may be actively extended by the
// control loop. It returns every complete row up to the first malformed or
// partial one; a truncated trailing line is expected during a run and is
// not an error. The reader never writes to or locks the file.
func ReadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record file: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1

	var out []Record
	for {
		fields, err := cr.Read()
		if err != nil {
			// EOF or a torn line mid-write; everything before it is valid.
			return out, nil
		}
		rec, err := ParseRow(fields)
		if err != nil {
			return out, nil
		}
		out = append(out, rec)
	}
}
