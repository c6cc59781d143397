package render

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"kptnexport/pkg/recipe"
)

const markdownTemplate = `# {{.Doc.Title}}
{{if .Doc.Info}}
{{range .Doc.Info}}- **{{.Label}}** {{.Value}}
{{end}}{{end}}
{{- if .Doc.Ingredients}}
## {{.Doc.IngredientsHeading}}

{{range .Doc.Ingredients}}- {{.}}
{{end}}{{end}}
{{- if .Doc.Steps}}
## {{.StepsHeading}}
{{range .Steps}}
### {{.Heading}}
{{if .Image}}
![{{.Heading}}]({{.Image}})
{{end}}{{if .Ingredients}}
**{{$.StepIngredientsHeading}}**

{{range .Ingredients}}- {{.}}
{{end}}{{end}}{{end}}{{end}}`

var mdTemplate = template.Must(template.New("recipe").Parse(markdownTemplate))

type markdownStep struct {
	Heading     string
	Image       string
	Ingredients []string
}

type markdownData struct {
	Doc                    *document
	Steps                  []markdownStep
	StepsHeading           string
	StepIngredientsHeading string
}

// MarkdownRenderer writes recipes as Markdown with relative image links
type MarkdownRenderer struct {
	opts  Options
	paths pathAllocator
}

// NewMarkdownRenderer creates a Markdown renderer
func NewMarkdownRenderer(opts Options) *MarkdownRenderer {
	opts.applyDefaults()
	return &MarkdownRenderer{opts: opts}
}

func (m *MarkdownRenderer) Extension() string { return ".md" }

func (m *MarkdownRenderer) Reserve(paths []string) { m.paths.reserve(paths) }

func (m *MarkdownRenderer) Render(r *recipe.Recipe, images map[int]string) (string, error) {
	doc, err := prepare(r, images, m.opts)
	if err != nil {
		return "", err
	}
	path, err := m.paths.allocate(m.opts, r.Title, m.Extension())
	if err != nil {
		return "", err
	}

	data := markdownData{
		Doc:                    doc,
		StepsHeading:           headingSteps,
		StepIngredientsHeading: headingStepIngredients,
	}
	for _, s := range doc.Steps {
		step := markdownStep{Heading: s.Heading, Ingredients: s.Ingredients}
		if s.ImagePath != "" {
			step.Image = m.link(s.ImagePath)
		}
		data.Steps = append(data.Steps, step)
	}

	var buf bytes.Buffer
	if err := mdTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write markdown: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to move markdown into place: %w", err)
	}
	return path, nil
}

// link makes an image path relative to the output directory when possible
func (m *MarkdownRenderer) link(imagePath string) string {
	outAbs, err1 := filepath.Abs(m.opts.OutputDir)
	imgAbs, err2 := filepath.Abs(imagePath)
	if err1 == nil && err2 == nil {
		if rel, err := filepath.Rel(outAbs, imgAbs); err == nil {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(imagePath)
}
