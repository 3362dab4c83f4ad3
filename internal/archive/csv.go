package archive

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/codemasher/dril-archive/internal/model"
)

// csvColumns is the fixed column count of the spreadsheet export:
// name, text, date, time, retweets, likes, link, type, image, video, ad,
// description, location, language, source.
const csvColumns = 15

const (
	csvColText = 1
	csvColLink = 6
)

// CSVRow is the distilled form of one spreadsheet row. The export carries
// only coarse counters, so the ID and the retweet flag are all the
// reconciler needs; bodies come from the API.
type CSVRow struct {
	ID        int64
	IsRetweet bool
}

// ReadCSV parses the spreadsheet export. The first row is a header and is
// discarded. A malformed file is fatal; rows with an unparseable status
// link yield ID zero and are skipped downstream.
func ReadCSV(path string) ([]CSVRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = csvColumns

	var rows []CSVRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed csv: %w", err)
		}
		rows = append(rows, CSVRow{
			ID:        statusLinkID(record[csvColLink]),
			IsRetweet: strings.HasPrefix(strings.TrimSpace(record[csvColText]), model.RetweetMarker),
		})
	}

	if len(rows) > 0 {
		rows = rows[1:]
	}

	return rows, nil
}

// statusLinkID extracts the numeric status ID from a permalink such as
// https://twitter.com/dril/status/42.
func statusLinkID(link string) int64 {
	link = strings.TrimSpace(link)
	idx := strings.LastIndex(link, "/status/")
	if idx < 0 {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimRight(link[idx+len("/status/"):], "/"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
