package ocr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterPagesFlat(t *testing.T) {
	raw := []byte(`{
		"status": "done",
		"pages": [
			{"page_number": 2, "text": "second page"},
			{"page_number": 1, "text": "first page"}
		]
	}`)

	pages, err := FilterPages(raw)
	require.NoError(t, err)
	require.Len(t, pages.Pages, 2)
	assert.Equal(t, 1, pages.Pages[0].PageNumber)
	assert.Equal(t, "first page", pages.Pages[0].Text)
	assert.Equal(t, 2, pages.Pages[1].PageNumber)
	assert.Equal(t, "second page", pages.Pages[1].Text)
}

func TestFilterPagesNested(t *testing.T) {
	raw := []byte(`{
		"result": {
			"document": {
				"chunks": [
					{"page": 1, "markdown": "## header"},
					{"meta": {"irrelevant": true}},
					{"page": 3, "content": "third"}
				]
			}
		}
	}`)

	pages, err := FilterPages(raw)
	require.NoError(t, err)
	require.Len(t, pages.Pages, 2)
	assert.Equal(t, 1, pages.Pages[0].PageNumber)
	assert.Equal(t, "## header", pages.Pages[0].Text)
	assert.Equal(t, 3, pages.Pages[1].PageNumber)
	assert.Equal(t, "third", pages.Pages[1].Text)
}

func TestFilterPagesDropsBlank(t *testing.T) {
	raw := []byte(`{
		"pages": [
			{"page_number": 1, "text": "   \n\t  "},
			{"page_number": 2, "text": "real text"},
			{"page_number": 3, "text": ""}
		]
	}`)

	pages, err := FilterPages(raw)
	require.NoError(t, err)
	require.Len(t, pages.Pages, 1)
	assert.Equal(t, 2, pages.Pages[0].PageNumber)
}

func TestFilterPagesMergesDuplicates(t *testing.T) {
	raw := []byte(`{
		"pages": [
			{"page_number": 1, "text": "top half"},
			{"page_number": 1, "text": "bottom half"}
		]
	}`)

	pages, err := FilterPages(raw)
	require.NoError(t, err)
	require.Len(t, pages.Pages, 1)
	assert.Equal(t, "top half\nbottom half", pages.Pages[0].Text)
}

func TestFilterPagesSortedUniqueNonEmpty(t *testing.T) {
	raw := []byte(`{
		"a": [{"page": 5, "text": "five"}],
		"b": [{"page": 2, "text": "two"}, {"page": 2, "text": "two again"}],
		"c": {"deep": [{"page_num": 9, "text": "nine"}, {"number": 1, "text": "one"}]}
	}`)

	pages, err := FilterPages(raw)
	require.NoError(t, err)

	seen := map[int]bool{}
	last := 0
	for _, p := range pages.Pages {
		assert.Greater(t, p.PageNumber, last, "pages must be in ascending order")
		assert.False(t, seen[p.PageNumber], "page numbers must be unique")
		assert.NotEmpty(t, p.Text)
		seen[p.PageNumber] = true
		last = p.PageNumber
	}
	assert.Len(t, pages.Pages, 4)
}

func TestFilterPagesInvalidJSON(t *testing.T) {
	_, err := FilterPages([]byte(`{"pages":`))
	require.Error(t, err)
}

func TestFilterPagesNoPages(t *testing.T) {
	pages, err := FilterPages([]byte(`{"status": "done", "meta": {"engine": "v2"}}`))
	require.NoError(t, err)
	assert.Empty(t, pages.Pages)
}

func TestPagesJSON(t *testing.T) {
	pages := Pages{Pages: []Page{{PageNumber: 1, Text: "hello"}}}

	b := pages.JSON()

	var back Pages
	require.NoError(t, json.Unmarshal([]byte(b), &back))
	assert.Equal(t, pages, back)
}
