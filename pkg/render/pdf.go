package render

import (
	"fmt"
	"os"

	"kptnexport/pkg/recipe"

	"github.com/go-pdf/fpdf"
)

const (
	marginMM       = 20.0
	maxImageWidth  = 100.0
	bulletIndentMM = 7.0
	labelWidthMM   = 38.0
	fontFamily     = "Helvetica"
)

type rgb struct{ r, g, b int }

var (
	colorTitle   = rgb{0, 0, 139}
	colorSection = rgb{0, 100, 0}
	colorStep    = rgb{139, 0, 0}
	colorText    = rgb{0, 0, 0}
)

// PDFRenderer lays out recipes as A4 (or Letter) PDF documents
type PDFRenderer struct {
	opts  Options
	paths pathAllocator
}

// NewPDFRenderer creates a PDF renderer
func NewPDFRenderer(opts Options) *PDFRenderer {
	opts.applyDefaults()
	return &PDFRenderer{opts: opts}
}

func (p *PDFRenderer) Extension() string { return ".pdf" }

func (p *PDFRenderer) Reserve(paths []string) { p.paths.reserve(paths) }

func (p *PDFRenderer) Render(r *recipe.Recipe, images map[int]string) (string, error) {
	doc, err := prepare(r, images, p.opts)
	if err != nil {
		return "", err
	}
	path, err := p.paths.allocate(p.opts, r.Title, p.Extension())
	if err != nil {
		return "", err
	}

	pdf := fpdf.New("P", "mm", p.opts.PageSize, "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(marginMM, marginMM, marginMM)
	pdf.SetAutoPageBreak(true, marginMM)
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator("kptnexport", true)
	pdf.AddPage()

	w := &pdfWriter{pdf: pdf, tr: tr, renderer: p}
	w.header(doc)
	w.ingredients(doc)
	w.steps(doc)

	if pdf.Err() {
		return "", fmt.Errorf("failed to lay out %q: %w", r.Title, pdf.Error())
	}

	tmp := path + ".tmp"
	if err := pdf.OutputFileAndClose(tmp); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write PDF: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to move PDF into place: %w", err)
	}
	return path, nil
}

// pdfWriter holds the per-document state while laying out one recipe
type pdfWriter struct {
	pdf      *fpdf.Fpdf
	tr       func(string) string
	renderer *PDFRenderer
}

func (w *pdfWriter) color(c rgb) {
	w.pdf.SetTextColor(c.r, c.g, c.b)
}

func (w *pdfWriter) header(doc *document) {
	w.pdf.SetFont(fontFamily, "B", 24)
	w.color(colorTitle)
	w.pdf.MultiCell(0, 11, w.tr(doc.Title), "", "C", false)
	w.color(colorText)
	w.pdf.Ln(5)

	for _, row := range doc.Info {
		w.pdf.SetFont(fontFamily, "B", 10)
		w.pdf.CellFormat(labelWidthMM, 6, w.tr(row.Label), "", 0, "L", false, 0, "")
		w.pdf.SetFont(fontFamily, "", 10)
		w.pdf.MultiCell(0, 6, w.tr(row.Value), "", "L", false)
	}
	if len(doc.Info) > 0 {
		w.pdf.Ln(5)
	}
}

func (w *pdfWriter) section(title string) {
	w.pdf.Ln(2)
	w.pdf.SetFont(fontFamily, "B", 16)
	w.color(colorSection)
	w.pdf.CellFormat(0, 9, w.tr(title), "", 1, "L", false, 0, "")
	w.color(colorText)
	w.pdf.Ln(1)
}

func (w *pdfWriter) bullets(lines []string) {
	w.pdf.SetFont(fontFamily, "", 10)
	left, _, _, _ := w.pdf.GetMargins()
	for _, line := range lines {
		w.pdf.SetX(left + bulletIndentMM)
		w.pdf.MultiCell(0, 5, w.tr("• "+line), "", "L", false)
	}
}

func (w *pdfWriter) ingredients(doc *document) {
	if len(doc.Ingredients) == 0 {
		return
	}
	w.section(doc.IngredientsHeading)
	w.bullets(doc.Ingredients)
	w.pdf.Ln(6)
}

func (w *pdfWriter) steps(doc *document) {
	if len(doc.Steps) == 0 {
		return
	}
	w.section(headingSteps)

	for _, step := range doc.Steps {
		w.pdf.Ln(3)
		w.pdf.SetFont(fontFamily, "B", 14)
		w.color(colorStep)
		w.pdf.MultiCell(0, 7, w.tr(step.Heading), "", "L", false)
		w.color(colorText)
		w.pdf.Ln(1)

		if step.ImagePath != "" {
			w.image(step.ImagePath)
		}

		if len(step.Ingredients) > 0 {
			w.pdf.SetFont(fontFamily, "B", 10)
			w.pdf.MultiCell(0, 6, w.tr(headingStepIngredients), "", "L", false)
			w.bullets(step.Ingredients)
			w.pdf.Ln(2)
		}
		w.pdf.Ln(4)
	}
}

// image places a step image scaled to at most maxImageWidth, keeping its
// aspect ratio. Unreadable or unsupported images are skipped with a warning.
func (w *pdfWriter) image(path string) {
	log := w.renderer.opts.Logger
	if _, err := os.Stat(path); err != nil {
		log.WarnWithFields("step image missing", map[string]interface{}{
			"path": path,
		})
		return
	}

	opts := fpdf.ImageOptions{ReadDpi: true}
	info := w.pdf.RegisterImageOptions(path, opts)
	if w.pdf.Err() || info == nil {
		log.WarnWithFields("could not add image", map[string]interface{}{
			"path":  path,
			"error": fmt.Sprint(w.pdf.Error()),
		})
		w.pdf.ClearError()
		return
	}

	width, height := info.Width(), info.Height()
	if width <= 0 || height <= 0 {
		return
	}
	if width > maxImageWidth {
		height = height * maxImageWidth / width
		width = maxImageWidth
	}

	_, pageHeight := w.pdf.GetPageSize()
	_, top, _, bottom := w.pdf.GetMargins()
	usable := pageHeight - top - bottom
	if height > usable {
		width = width * usable / height
		height = usable
	}
	if w.pdf.GetY()+height > pageHeight-bottom {
		w.pdf.AddPage()
	}

	left, _, _, _ := w.pdf.GetMargins()
	y := w.pdf.GetY()
	w.pdf.ImageOptions(path, left, y, width, height, false, opts, 0, "")
	w.pdf.SetY(y + height + 3)
}
