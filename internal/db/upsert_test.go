package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "raw_captures",
		Columns:      []string{"id", "name"},
		ConflictKeys: []string{"id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "raw_captures",
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "raw_captures",
		Columns: []string{"id", "name"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestUpsertSQL(t *testing.T) {
	tests := []struct {
		name string
		cfg  UpsertConfig
		want string
	}{
		{
			name: "do nothing",
			cfg: UpsertConfig{
				Table:        "raw_captures",
				Columns:      []string{"source_id", "item_guid", "payload"},
				ConflictKeys: []string{"source_id", "item_guid"},
				DoNothing:    true,
			},
			want: `INSERT INTO "raw_captures" ("source_id", "item_guid", "payload") SELECT "source_id", "item_guid", "payload" FROM "_tmp" ON CONFLICT ("source_id", "item_guid") DO NOTHING`,
		},
		{
			name: "update remaining columns",
			cfg: UpsertConfig{
				Table:        "tenders",
				Columns:      []string{"tender_id", "title"},
				ConflictKeys: []string{"tender_id"},
			},
			want: `INSERT INTO "tenders" ("tender_id", "title") SELECT "tender_id", "title" FROM "_tmp" ON CONFLICT ("tender_id") DO UPDATE SET "title" = EXCLUDED."title"`,
		},
		{
			name: "explicit update columns",
			cfg: UpsertConfig{
				Table:        "tenders",
				Columns:      []string{"tender_id", "title", "agency"},
				ConflictKeys: []string{"tender_id"},
				UpdateCols:   []string{"agency"},
			},
			want: `INSERT INTO "tenders" ("tender_id", "title", "agency") SELECT "tender_id", "title", "agency" FROM "_tmp" ON CONFLICT ("tender_id") DO UPDATE SET "agency" = EXCLUDED."agency"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, upsertSQL(tt.cfg, "_tmp"))
		})
	}
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"intel.tenders", `"intel"."tenders"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"id", "name", "value"})
	assert.Equal(t, `"id", "name", "value"`, result)
}
