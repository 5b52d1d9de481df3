//
// Copyright 2020 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ReadCSV reads a report from CSV rows of the form "group,value". The first
// row is a header and is skipped.
func ReadCSV(in io.Reader) (Report, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = 2
	r.TrimLeadingSpace = true

	report := make(Report)
	skipLine := false
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("couldn't read the report, err = %v", err)
		}

		// Skip the first line which contains the header.
		if !skipLine {
			skipLine = true
			continue
		}

		group := record[0]
		if group == "" {
			return nil, fmt.Errorf("the report has a row with an empty group name")
		}
		if _, ok := report[group]; ok {
			return nil, fmt.Errorf("the report has duplicate group %q", group)
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("couldn't read value = %s of group %q as float64, err = %v", record[1], group, err)
		}
		report[group] = value
	}
	return report, nil
}

// ReadCSVFile reads a report from the CSV file inputFile. See ReadCSV.
func ReadCSVFile(inputFile string) (Report, error) {
	csvFile, err := os.Open(inputFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't open the csv file = %q, err = %v", inputFile, err)
	}
	defer csvFile.Close()

	report, err := ReadCSV(csvFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't read the csv file = %q: %w", inputFile, err)
	}
	return report, nil
}

// WriteCSV writes r as a header followed by one "group,value" row per group,
// in ascending order of group.
func WriteCSV(out io.Writer, r Report) error {
	writer := csv.NewWriter(out)
	if err := writer.Write([]string{"group", "value"}); err != nil {
		return fmt.Errorf("couldn't write the report header, err = %v", err)
	}
	for _, group := range Groups(r) {
		if err := writer.Write([]string{group, strconv.FormatFloat(r[group], 'f', -1, 64)}); err != nil {
			return fmt.Errorf("couldn't write group %q, err = %v", group, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("couldn't write the report, err = %v", err)
	}
	return nil
}
