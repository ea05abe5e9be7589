package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceTypeFamily(t *testing.T) {
	t.Parallel()

	tests := []struct {
		st   SourceType
		want Family
	}{
		{SourceRSS, FamilyFeed},
		{SourceAPIXML, FamilyFeed},
		{SourceHTML, FamilyListing},
		{SourceCSV, FamilyTabular},
		{SourceXLSX, FamilyTabular},
		{SourceAPIJSON, FamilyTabular},
		{SourceHub, FamilyNone},
		{SourceType("pdf"), FamilyNone},
	}
	for _, tt := range tests {
		t.Run(string(tt.st), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.st.Family())
		})
	}
}

func TestSourceTypeValid(t *testing.T) {
	t.Parallel()
	assert.True(t, SourceHub.Valid())
	assert.True(t, SourceCSV.Valid())
	assert.False(t, SourceType("").Valid())
	assert.False(t, SourceType("email").Valid())
	assert.True(t, SourceFormatChanged.Valid())
	assert.False(t, SourceStatus("retired").Valid())
}

func TestSourceIngestable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		st     SourceType
		status SourceStatus
		want   bool
	}{
		{"active feed", SourceRSS, SourceActive, true},
		{"pending listing", SourceHTML, SourcePendingValidation, true},
		{"broken feed", SourceRSS, SourceBroken, false},
		{"format changed", SourceCSV, SourceFormatChanged, false},
		{"deprecated", SourceAPIJSON, SourceDeprecated, false},
		{"active hub", SourceHub, SourceActive, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := &Source{SourceType: tt.st, Status: tt.status}
			assert.Equal(t, tt.want, s.Ingestable())
		})
	}
}

func TestRawCaptureField(t *testing.T) {
	t.Parallel()

	var empty RawCapture
	assert.Equal(t, "", empty.Field(FieldTitle))

	c := RawCapture{Fields: map[string]string{FieldTitle: "Event management services"}}
	assert.Equal(t, "Event management services", c.Field(FieldTitle))
	assert.Equal(t, "", c.Field(FieldAgency))
}
