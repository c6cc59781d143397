package render

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"kptnexport/pkg/config"
	"kptnexport/pkg/logger"
	"kptnexport/pkg/quantity"
	"kptnexport/pkg/recipe"
)

var (
	// ErrUnknownFormat is returned by New for an unsupported output format
	ErrUnknownFormat = errors.New("unknown output format")

	// ErrFileExists is returned when the target exists and overwriting is off
	ErrFileExists = errors.New("output file already exists")
)

// DefaultMaxFilenameLength caps the title part of generated file names
const DefaultMaxFilenameLength = 50

// Renderer writes one document per recipe
type Renderer interface {
	// Render writes r and returns the path of the created file. images maps
	// step numbers to image filenames inside Options.ImageDir.
	Render(r *recipe.Recipe, images map[int]string) (string, error)
	// Extension is the file extension including the dot
	Extension() string
}

// Options are shared by all renderers
type Options struct {
	OutputDir         string
	ImageDir          string
	Formatter         quantity.Formatter
	TargetServings    int
	OverwriteExisting bool
	MaxFilenameLength int
	PageSize          string
	Logger            logger.Logger
}

// OptionsFromConfig builds renderer options from the app config
func OptionsFromConfig(cfg *config.Config, f quantity.Formatter, log logger.Logger) Options {
	return Options{
		OutputDir:         cfg.Output.BaseDirectory,
		ImageDir:          cfg.ImagePath(),
		Formatter:         f,
		TargetServings:    cfg.Servings.Target,
		OverwriteExisting: cfg.Output.OverwriteExisting,
		MaxFilenameLength: cfg.Output.MaxFilenameLength,
		PageSize:          cfg.Output.PageSize,
		Logger:            log,
	}
}

// New returns the renderer for format ("pdf" or "markdown")
func New(format string, opts Options) (Renderer, error) {
	switch strings.ToLower(format) {
	case config.FormatPDF:
		return NewPDFRenderer(opts), nil
	case config.FormatMarkdown, "md":
		return NewMarkdownRenderer(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func (o *Options) applyDefaults() {
	if o.OutputDir == "" {
		o.OutputDir = "."
	}
	if o.TargetServings == 0 {
		o.TargetServings = 2
	}
	if o.MaxFilenameLength <= 0 {
		o.MaxFilenameLength = DefaultMaxFilenameLength
	}
	if o.PageSize == "" {
		o.PageSize = "A4"
	}
	if len(o.Formatter.Denominators()) == 0 {
		o.Formatter = quantity.DefaultFormatter()
	}
	if o.Logger == nil {
		o.Logger = logger.GetLogger()
	}
}

// Filename turns a recipe title into a file name: letters, digits, spaces,
// '-' and '_' are kept, trailing space is trimmed, spaces become '_' and
// the result is cut to max runes. An empty result becomes "recipe".
func Filename(title, ext string, max int) string {
	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	safe := strings.TrimRight(b.String(), " ")
	safe = strings.ReplaceAll(safe, " ", "_")

	if max <= 0 {
		max = DefaultMaxFilenameLength
	}
	if runes := []rune(safe); len(runes) > max {
		safe = string(runes[:max])
	}
	if safe == "" {
		safe = "recipe"
	}
	return safe + ext
}

// Reserver is implemented by renderers that hand out file names per run.
// Reserve starts a new run in which the given paths are already taken, so
// documents of earlier runs are never overwritten by a recipe with the
// same title.
type Reserver interface {
	Reserve(paths []string)
}

// pathAllocator hands out output paths, keeping names unique within a run
type pathAllocator struct {
	mu   sync.Mutex
	used map[string]bool
}

func (a *pathAllocator) reserve(paths []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used = make(map[string]bool, len(paths))
	for _, p := range paths {
		if p != "" {
			a.used[filepath.Base(p)] = true
		}
	}
}

func (a *pathAllocator) allocate(opts Options, title, ext string) (string, error) {
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	base := Filename(title, "", opts.MaxFilenameLength)

	a.mu.Lock()
	if a.used == nil {
		a.used = make(map[string]bool)
	}
	name := base + ext
	for n := 2; a.used[name]; n++ {
		name = fmt.Sprintf("%s_%d%s", base, n, ext)
	}
	a.used[name] = true
	a.mu.Unlock()

	path := filepath.Join(opts.OutputDir, name)

	if !opts.OverwriteExisting {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("%w: %s", ErrFileExists, path)
		}
	}
	return path, nil
}

// infoRow is one label/value line of the recipe header
type infoRow struct {
	Label string
	Value string
}

type stepView struct {
	Heading     string
	ImagePath   string
	Ingredients []string
}

// document is a recipe prepared for rendering, with all quantities scaled
// and formatted.
type document struct {
	Title              string
	Info               []infoRow
	IngredientsHeading string
	Ingredients        []string
	Steps              []stepView
}

const (
	labelType        = "Typ:"
	labelPrepTime    = "Vorbereitungszeit:"
	labelCookTime    = "Kochzeit:"
	labelTotalTime   = "Gesamtzeit:"
	labelDescription = "Beschreibung:"
	labelRecipeID    = "Rezept-ID:"

	headingSteps           = "Anweisungen"
	headingStepIngredients = "Zutaten für diesen Schritt:"
)

func minutes(n int) string {
	return fmt.Sprintf("%d Minuten", n)
}

func ingredientsHeading(servings int) string {
	if servings == 1 {
		return "Zutaten (für 1 Person)"
	}
	return fmt.Sprintf("Zutaten (für %d Personen)", servings)
}

// prepare builds the document for r. Info rows with no value are left out.
func prepare(r *recipe.Recipe, images map[int]string, opts Options) (*document, error) {
	if r == nil {
		return nil, errors.New("nil recipe")
	}

	doc := &document{
		Title:              r.Title,
		IngredientsHeading: ingredientsHeading(opts.TargetServings),
	}

	if r.Type != "" {
		doc.Info = append(doc.Info, infoRow{labelType, r.Type})
	}
	if r.PreparationTime > 0 {
		doc.Info = append(doc.Info, infoRow{labelPrepTime, minutes(r.PreparationTime)})
	}
	if r.CookingTime > 0 {
		doc.Info = append(doc.Info, infoRow{labelCookTime, minutes(r.CookingTime)})
	}
	if total := r.TotalTime(); total > 0 {
		doc.Info = append(doc.Info, infoRow{labelTotalTime, minutes(total)})
	}
	if r.AuthorComment != "" {
		doc.Info = append(doc.Info, infoRow{labelDescription, r.AuthorComment})
	}
	if r.ID != "" {
		doc.Info = append(doc.Info, infoRow{labelRecipeID, r.ID})
	}

	lines := func(ings []recipe.Ingredient) ([]string, error) {
		out := make([]string, 0, len(ings))
		for _, ing := range ings {
			line, err := recipe.IngredientLine(ing, opts.Formatter, r.ReferenceServings, opts.TargetServings)
			if err != nil {
				return nil, err
			}
			out = append(out, line)
		}
		return out, nil
	}

	var err error
	if doc.Ingredients, err = lines(r.Ingredients); err != nil {
		return nil, err
	}

	for _, s := range r.Steps {
		view := stepView{Heading: fmt.Sprintf("Schritt %d: %s", s.Number, s.Title)}
		if name, ok := images[s.Number]; ok && name != "" {
			view.ImagePath = filepath.Join(opts.ImageDir, name)
		}
		if view.Ingredients, err = lines(s.Ingredients); err != nil {
			return nil, err
		}
		doc.Steps = append(doc.Steps, view)
	}

	return doc, nil
}
