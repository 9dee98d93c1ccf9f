// Package importer loads registered runners from the spreadsheet exported by
// the registration form.
package importer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/intermernet/relayrace/internal/database"
)

// Column positions in the registration sheet.
const (
	colFirstName      = 2 // C
	colLastName       = 3 // D
	colIdentification = 4 // E
	colTestTime       = 6 // G
)

// RunnerRow is one data row of the sheet. Row is the 1-based spreadsheet row.
type RunnerRow struct {
	Row            int
	FirstName      string
	LastName       string
	Identification string
	TestTime       string
}

// Result summarises an import.
type Result struct {
	TotalRows  int      `json:"totalRows"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors"`
}

// ParseRunners reads the first sheet of an xlsx workbook. The header row is
// skipped. Rows missing a name or identification are reported in rowErrors
// and left out.
func ParseRunners(r io.Reader) (rows []RunnerRow, rowErrors []string, err error) {
	f, err := excelize.OpenReader(r, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, fmt.Errorf("not a valid xlsx file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("workbook has no sheets")
	}
	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("could not read sheet %q: %w", sheets[0], err)
	}

	rowErrors = []string{}
	for i, cols := range cells {
		if i == 0 {
			continue
		}
		row := RunnerRow{
			Row:            i + 1,
			FirstName:      cell(cols, colFirstName),
			LastName:       cell(cols, colLastName),
			Identification: cell(cols, colIdentification),
			TestTime:       TestTime(cell(cols, colTestTime)),
		}
		if row.FirstName == "" && row.LastName == "" && row.Identification == "" {
			continue
		}
		if row.FirstName == "" || row.LastName == "" || row.Identification == "" {
			rowErrors = append(rowErrors, fmt.Sprintf("Row %d: missing first name, last name or identification", row.Row))
			continue
		}
		rows = append(rows, row)
	}
	return rows, rowErrors, nil
}

func cell(cols []string, i int) string {
	if i >= len(cols) {
		return ""
	}
	return strings.TrimSpace(cols[i])
}

// TestTime renders the qualifying time cell as M:SS. The registration form
// stores a time of 1:18 as the number 78/1440, so values below 1 are scaled
// by 1440 to get seconds. Anything else is kept as typed.
func TestTime(raw string) string {
	if raw == "" {
		return ""
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 || v >= 1 {
		return raw
	}
	total := int(math.Round(v * 1440))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// Importer stores parsed runners.
type Importer struct {
	store *database.Service
}

// New returns an Importer writing to store.
func New(store *database.Service) *Importer {
	return &Importer{store: store}
}

// Import creates a runner for every valid row. A row whose identification is
// already registered is reported and skipped; other rows still go in.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Result, error) {
	rows, rowErrors, err := ParseRunners(r)
	if err != nil {
		return nil, err
	}

	res := &Result{
		TotalRows: len(rows) + len(rowErrors),
		Failed:    len(rowErrors),
		Errors:    rowErrors,
	}
	for _, row := range rows {
		err := im.store.Write(ctx, func(tx *sql.Tx) error {
			if _, err := im.store.GetRunnerByIdentification(ctx, tx, row.Identification); err == nil {
				return fmt.Errorf("runner with identification %s already exists", row.Identification)
			} else if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			_, err := im.store.CreateRunner(ctx, tx, &database.Runner{
				Identification: row.Identification,
				FirstName:      row.FirstName,
				LastName:       row.LastName,
				TestTime:       row.TestTime,
			})
			return err
		})
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("Row %d: %v", row.Row, err))
			continue
		}
		res.Successful++
	}

	log.Info().Int("rows", res.TotalRows).Int("imported", res.Successful).Int("failed", res.Failed).Msg("runner sheet imported")
	return res, nil
}
