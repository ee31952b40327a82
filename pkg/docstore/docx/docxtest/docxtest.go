// Package docxtest builds small WordprocessingML packages for tests.
package docxtest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	header = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`
	nsW    = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`
	nsR    = `xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"`
)

// Package describes the XML content of a test document. Body, Header and
// Footer hold inner XML (paragraphs and tables) without the enclosing
// element. An empty Header or Footer omits the part.
type Package struct {
	Body   string
	Header string
	Footer string
	Title  string
}

// P returns a paragraph made of one run per text
func P(runs ...string) string {
	var buf bytes.Buffer
	buf.WriteString("<w:p>")
	for _, r := range runs {
		fmt.Fprintf(&buf, `<w:r><w:t xml:space="preserve">%s</w:t></w:r>`, r)
	}
	buf.WriteString("</w:p>")
	return buf.String()
}

// BoldP returns a paragraph whose single run is bold
func BoldP(text string) string {
	return fmt.Sprintf(`<w:p><w:r><w:rPr><w:b/></w:rPr><w:t>%s</w:t></w:r></w:p>`, text)
}

// Table returns a table with one row per entry; each row lists its cell texts
func Table(rows ...[]string) string {
	var buf bytes.Buffer
	buf.WriteString(`<w:tbl><w:tblPr><w:tblStyle w:val="TableGrid"/></w:tblPr>`)
	for _, row := range rows {
		buf.WriteString("<w:tr>")
		for _, cell := range row {
			fmt.Fprintf(&buf, "<w:tc>%s</w:tc>", P(cell))
		}
		buf.WriteString("</w:tr>")
	}
	buf.WriteString("</w:tbl>")
	return buf.String()
}

// Build zips pkg into .docx bytes
func Build(t testing.TB, pkg Package) []byte {
	t.Helper()

	var sect, rels, overrides bytes.Buffer
	if pkg.Header != "" {
		sect.WriteString(`<w:headerReference w:type="default" r:id="rIdHeader1"/>`)
		rels.WriteString(`<Relationship Id="rIdHeader1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/header" Target="header1.xml"/>`)
		overrides.WriteString(`<Override PartName="/word/header1.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.header+xml"/>`)
	}
	if pkg.Footer != "" {
		sect.WriteString(`<w:footerReference w:type="default" r:id="rIdFooter1"/>`)
		rels.WriteString(`<Relationship Id="rIdFooter1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/footer" Target="footer1.xml"/>`)
		overrides.WriteString(`<Override PartName="/word/footer1.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.footer+xml"/>`)
	}

	parts := []struct{ name, content string }{
		{"[Content_Types].xml", header +
			`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
			`<Default Extension="xml" ContentType="application/xml"/>` +
			`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
			`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>` +
			overrides.String() + `</Types>`},
		{"_rels/.rels", header +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
			`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>` +
			`</Relationships>`},
		{"word/document.xml", header +
			`<w:document ` + nsW + ` ` + nsR + `><w:body>` + pkg.Body +
			`<w:sectPr>` + sect.String() + `</w:sectPr></w:body></w:document>`},
		{"word/_rels/document.xml.rels", header +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` + rels.String() + `</Relationships>`},
		{"docProps/core.xml", header +
			`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">` +
			`<dc:title>` + pkg.Title + `</dc:title></cp:coreProperties>`},
	}
	if pkg.Header != "" {
		parts = append(parts, struct{ name, content string }{"word/header1.xml", header + `<w:hdr ` + nsW + `>` + pkg.Header + `</w:hdr>`})
	}
	if pkg.Footer != "" {
		parts = append(parts, struct{ name, content string }{"word/footer1.xml", header + `<w:ftr ` + nsW + `>` + pkg.Footer + `</w:ftr>`})
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range parts {
		w, err := zw.Create(p.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(p.content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
