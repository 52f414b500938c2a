package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"collab-dashboard/internal/document"

	"github.com/jung-kurt/gofpdf"
)

// Source yields the document to export.
type Source func(ctx context.Context) (document.Document, error)

type ExportHandler struct {
	source Source
	logger *slog.Logger
	now    func() time.Time
}

func NewExportHandler(source Source, logger *slog.Logger) *ExportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportHandler{
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

func (h *ExportHandler) ExportDocument(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "txt"
	}

	doc, err := h.source(r.Context())
	if err != nil {
		h.logger.Error("export: load document failed", "err", err)
		http.Error(w, "Failed to load document", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("document-%s", h.now().Format("20060102-150405"))

	var (
		body        []byte
		contentType string
	)
	switch format {
	case "txt":
		body, contentType = []byte(doc.Content), "text/plain; charset=utf-8"
	case "pdf":
		body, err = RenderPDF(doc)
		contentType = "application/pdf"
	case "docx":
		body, err = RenderDOCX(doc)
		contentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		http.Error(w, "Invalid format. Supported formats: txt, pdf, docx", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("export: render failed", "format", format, "err", err)
		http.Error(w, "Failed to generate "+strings.ToUpper(format), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.%s\"", filename, format))
	w.Write(body)
}

func title(doc document.Document) string {
	if strings.TrimSpace(doc.Title) == "" {
		return "Collaborative Document"
	}
	return doc.Title
}

func RenderPDF(doc document.Document) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, title(doc))
	pdf.Ln(12)

	if doc.LastEditedBy != "" {
		pdf.SetFont("Arial", "I", 9)
		pdf.Cell(0, 5, fmt.Sprintf("Last edited by %s at %s", doc.LastEditedBy, doc.LastUpdated))
		pdf.Ln(10)
	}

	pdf.SetFont("Arial", "", 12)
	for _, line := range strings.Split(doc.Content, "\n") {
		if line == "" {
			pdf.Ln(5)
			continue
		}
		pdf.MultiCell(0, 5, line, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

const (
	contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
    <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
    <Default Extension="xml" ContentType="application/xml"/>
    <Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`
	relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
    <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`
	documentRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
</Relationships>`
)

// RenderDOCX builds a minimal WordprocessingML package, one paragraph per line.
func RenderDOCX(doc document.Document) ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/_rels/document.xml.rels", documentRelsXML},
		{"word/document.xml", documentXML(doc)},
	}
	for _, part := range parts {
		w, err := zw.Create(part.name)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", part.name, err)
		}
		if _, err := w.Write([]byte(part.body)); err != nil {
			return nil, fmt.Errorf("write %s: %w", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize docx: %w", err)
	}
	return buf.Bytes(), nil
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func documentXML(doc document.Document) string {
	var paragraphs strings.Builder
	for _, para := range strings.Split(doc.Content, "\n") {
		fmt.Fprintf(&paragraphs, `<w:p><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`, escape(para))
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
    <w:body>
        <w:p>
            <w:pPr>
                <w:pStyle w:val="Title"/>
            </w:pPr>
            <w:r>
                <w:t>%s</w:t>
            </w:r>
        </w:p>
        %s
    </w:body>
</w:document>`, escape(title(doc)), paragraphs.String())
}
