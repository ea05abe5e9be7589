package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCSV_HeaderAndRows(t *testing.T) {
	input := "ref,title\nA-1,Signage\nA-2,Exhibition booth\n"
	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, []string{"ref", "title"}, <-headerCh)
	assert.Equal(t, [][]string{{"A-1", "Signage"}, {"A-2", "Exhibition booth"}}, rows)
}

func TestStreamCSV_Delimiter(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("a|b\nc|d"), CSVOptions{Delimiter: '|'})
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, rows)
}

func TestStreamCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a,b\n"), CSVOptions{})
	for range rowCh {
	}
	require.Error(t, <-errCh)
}

func TestReadCSVRecords(t *testing.T) {
	input := "\xEF\xBB\xBFTender Ref , Title ,Closing Date\n" +
		"ARCHSD/T/1, Fitting-out works ,24/03/2026\n" +
		",,\n" +
		"ARCHSD/T/2,Signage\n"

	header, recs, err := ReadCSVRecords(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"Tender Ref", "Title", "Closing Date"}, header)
	require.Len(t, recs, 2)
	assert.Equal(t, "ARCHSD/T/1", recs[0]["Tender Ref"])
	assert.Equal(t, "Fitting-out works", recs[0]["Title"])
	assert.Equal(t, "", recs[1]["Closing Date"])
}

func TestReadCSVRecords_Empty(t *testing.T) {
	_, _, err := ReadCSVRecords(context.Background(), strings.NewReader(""))
	require.Error(t, err)
}

func TestRecords(t *testing.T) {
	recs := Records([]string{"a", "", "c"}, [][]string{{"1", "2", "3", "4"}, {" ", ""}})
	require.Len(t, recs, 1)
	assert.Equal(t, map[string]string{"a": "1", "c": "3"}, recs[0])
}
