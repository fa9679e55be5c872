package domain_test

import (
	"testing"

	"github.com/ACMILabs/acmi-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    domain.Resource
		wantErr bool
	}{
		{name: "works", input: "works", want: domain.Works},
		{name: "audio", input: "audio", want: domain.Audio},
		{name: "constellations", input: "constellations", want: domain.Constellations},
		{name: "creators", input: "creators", want: domain.Creators},
		{name: "unknown", input: "suggestions", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := domain.ParseResource(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordID(t *testing.T) {
	t.Parallel()

	id, ok := domain.Record{"id": float64(42)}.ID()
	require.True(t, ok)
	assert.Equal(t, 42, id)

	_, ok = domain.Record{"title": "no id"}.ID()
	assert.False(t, ok)

	_, ok = domain.Record{"id": "not-a-number"}.ID()
	assert.False(t, ok)
}

func TestDocumentEach(t *testing.T) {
	t.Parallel()

	t.Run("single visits the one record", func(t *testing.T) {
		t.Parallel()

		doc := domain.SingleDocument(domain.Record{"id": float64(1)})
		var visited []domain.Record
		doc.Each(func(r domain.Record) { visited = append(visited, r) })

		require.Len(t, visited, 1)
		assert.False(t, doc.IsListing())
	})

	t.Run("listing visits every result in order", func(t *testing.T) {
		t.Parallel()

		page := &domain.Page{Results: []domain.Record{
			{"id": float64(1)},
			{"id": float64(2)},
			{"id": float64(3)},
		}}
		doc := domain.ListingDocument(page)

		var ids []int
		doc.Each(func(r domain.Record) {
			id, ok := r.ID()
			require.True(t, ok)
			ids = append(ids, id)
		})

		assert.Equal(t, []int{1, 2, 3}, ids)
		assert.True(t, doc.IsListing())
	})
}
