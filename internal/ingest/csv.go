// Package ingest reads normalized transaction exports into engine input.
package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/example/recon-engine/internal/recon"
)

// CSV columns: id, date, amount, description, reference. Dates are YYYY-MM-DD,
// amounts are decimal currency units. An optional header row is skipped. A
// malformed row aborts the whole import; runs never start on partial input.
func ReadTransactions(r io.Reader, source recon.Source) ([]recon.Transaction, error) {
	csvr := csv.NewReader(bufio.NewReader(r))
	csvr.TrimLeadingSpace = true
	csvr.FieldsPerRecord = -1

	var txs []recon.Transaction
	line := 0
	for {
		line++
		rec, err := csvr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		if len(rec) < 4 {
			return nil, fmt.Errorf("line %d: expected at least 4 columns (id, date, amount, description)", line)
		}

		date, err := recon.ParseDate(rec[1])
		if err != nil {
			return nil, fmt.Errorf("line %d date: %w", line, err)
		}
		amount, err := recon.ParseAmount(rec[2])
		if err != nil {
			return nil, fmt.Errorf("line %d amount: %w", line, err)
		}
		reference := ""
		if len(rec) > 4 {
			reference = strings.TrimSpace(rec[4])
		}

		txs = append(txs, recon.Transaction{
			Source:      source,
			ID:          strings.TrimSpace(rec[0]),
			Date:        date,
			Amount:      amount,
			Description: strings.TrimSpace(rec[3]),
			Reference:   reference,
		})
	}
	return txs, nil
}

// ReadFile reads one ledger export from disk.
func ReadFile(path string, source recon.Source) ([]recon.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	txs, err := ReadTransactions(f, source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return txs, nil
}

func isHeader(rec []string) bool {
	return len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "id")
}
