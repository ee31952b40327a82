package docx_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-document/pkg/docstore/docx"
	"github.com/tendant/simple-document/pkg/docstore/docx/docxtest"
)

func TestOutline(t *testing.T) {
	doc := docx.New()
	_, err := doc.AddHeading("Quarterly report", 1)
	require.NoError(t, err)
	doc.AddParagraph("", "")
	doc.AddParagraph(strings.Repeat("é", 120), "")
	_, err = doc.AddTable(2, 3)
	require.NoError(t, err)

	outline := doc.Outline()
	require.Len(t, outline, 3)

	assert.Equal(t, docx.OutlineItem{Type: "paragraph", Index: 0, Text: "Quarterly report", Style: "Heading1"}, outline[0])
	assert.Equal(t, 2, outline[1].Index)
	assert.Equal(t, strings.Repeat("é", 100)+"...", outline[1].Text)
	assert.Equal(t, docx.OutlineItem{Type: "table", Index: 0, Rows: 2, Columns: 3}, outline[2])
}

func TestStatsAndText(t *testing.T) {
	doc := decode(t, docxtest.Package{
		Body: docxtest.P("Hello ", "world") + docxtest.P("two words") + docxtest.Table([]string{"a b", "c"}),
	})

	st, err := doc.Stats()
	require.NoError(t, err)
	assert.Equal(t, docx.Stats{Paragraphs: 2, Tables: 1, Sections: 1, Words: 7}, st)

	assert.Equal(t, "Hello world\ntwo words\na b\nc\n", doc.Text())
}
