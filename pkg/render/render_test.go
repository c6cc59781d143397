package render

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kptnexport/pkg/logger"
	"kptnexport/pkg/recipe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecipe() *recipe.Recipe {
	return &recipe.Recipe{
		ID:                "5e5390e2740000cdf1381c64",
		Title:             "Ofen-Gnocchi mit Feta",
		Type:              "veggie",
		AuthorComment:     "Schnell und einfach.",
		PreparationTime:   10,
		CookingTime:       25,
		ReferenceServings: 1,
		Ingredients: []recipe.Ingredient{
			{Title: "Gnocchi", Quantity: recipe.Quantity(250), Measure: "g"},
			{Title: "Zwiebel", Quantity: recipe.Quantity(0.25)},
			{Title: "Salz und Pfeffer"},
		},
		Steps: []recipe.Step{
			{
				Number:   1,
				Title:    "Ofen auf 200 °C vorheizen.",
				ImageURL: "https://img.example.com/1.jpg",
				Ingredients: []recipe.Ingredient{
					{Title: "Zwiebel", Quantity: recipe.Quantity(0.25)},
				},
			},
			{Number: 2, Title: "Alles backen."},
		},
	}
}

func testOptions(t *testing.T) Options {
	dir := t.TempDir()
	return Options{
		OutputDir:         dir,
		ImageDir:          filepath.Join(dir, "images"),
		TargetServings:    2,
		OverwriteExisting: true,
		Logger:            logger.NewNopLogger(),
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name  string
		title string
		max   int
		want  string
	}{
		{"spaces become underscores", "Ofen Gnocchi mit Feta", 50, "Ofen_Gnocchi_mit_Feta.pdf"},
		{"punctuation dropped", "Chili sin Carne!? (vegan)", 50, "Chili_sin_Carne_vegan.pdf"},
		{"umlauts kept", "Käsespätzle", 50, "Käsespätzle.pdf"},
		{"trailing space trimmed", "Salat  ", 50, "Salat.pdf"},
		{"truncated", "abcdefghij", 4, "abcd.pdf"},
		{"empty falls back", "!!!", 50, "recipe.pdf"},
		{"zero max uses default", strings.Repeat("a", 80), 0, strings.Repeat("a", DefaultMaxFilenameLength) + ".pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Filename(tt.title, ".pdf", tt.max))
		})
	}
}

func TestNew(t *testing.T) {
	opts := testOptions(t)

	r, err := New("pdf", opts)
	require.NoError(t, err)
	assert.Equal(t, ".pdf", r.Extension())

	r, err = New("Markdown", opts)
	require.NoError(t, err)
	assert.Equal(t, ".md", r.Extension())

	r, err = New("md", opts)
	require.NoError(t, err)
	assert.Equal(t, ".md", r.Extension())

	_, err = New("docx", opts)
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestPrepareScalesQuantities(t *testing.T) {
	opts := testOptions(t)
	opts.applyDefaults()

	doc, err := prepare(sampleRecipe(), map[int]string{1: "step1.jpg"}, opts)
	require.NoError(t, err)

	assert.Equal(t, "Zutaten (für 2 Personen)", doc.IngredientsHeading)
	assert.Equal(t, []string{"500 g Gnocchi", "1/2 Zwiebel", "Salz und Pfeffer"}, doc.Ingredients)

	require.Len(t, doc.Steps, 2)
	assert.Equal(t, "Schritt 1: Ofen auf 200 °C vorheizen.", doc.Steps[0].Heading)
	assert.Equal(t, filepath.Join(opts.ImageDir, "step1.jpg"), doc.Steps[0].ImagePath)
	assert.Equal(t, []string{"1/2 Zwiebel"}, doc.Steps[0].Ingredients)
	assert.Empty(t, doc.Steps[1].ImagePath)

	labels := make([]string, 0, len(doc.Info))
	for _, row := range doc.Info {
		labels = append(labels, row.Label)
	}
	assert.Equal(t, []string{labelType, labelPrepTime, labelCookTime, labelTotalTime, labelDescription, labelRecipeID}, labels)
	assert.Equal(t, "35 Minuten", doc.Info[3].Value)
}

func TestPrepareSingleServing(t *testing.T) {
	opts := testOptions(t)
	opts.TargetServings = 1
	opts.applyDefaults()

	doc, err := prepare(sampleRecipe(), nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "Zutaten (für 1 Person)", doc.IngredientsHeading)
	assert.Equal(t, "1/4 Zwiebel", doc.Ingredients[1])
}

func TestPrepareRejectsInvalidServings(t *testing.T) {
	opts := testOptions(t)
	opts.TargetServings = -1
	opts.applyDefaults()

	_, err := prepare(sampleRecipe(), nil, opts)
	assert.Error(t, err)

	r := sampleRecipe()
	r.ReferenceServings = 0
	opts.TargetServings = 2
	_, err = prepare(r, nil, opts)
	assert.Error(t, err)
}

func TestMarkdownRenderer(t *testing.T) {
	opts := testOptions(t)
	writePNG(t, filepath.Join(opts.ImageDir, "step1.png"))

	path, err := NewMarkdownRenderer(opts).Render(sampleRecipe(), map[int]string{1: "step1.png"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(opts.OutputDir, "Ofen-Gnocchi_mit_Feta.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.True(t, strings.HasPrefix(content, "# Ofen-Gnocchi mit Feta\n"))
	assert.Contains(t, content, "- **Typ:** veggie")
	assert.Contains(t, content, "## Zutaten (für 2 Personen)")
	assert.Contains(t, content, "- 500 g Gnocchi\n")
	assert.Contains(t, content, "- 1/2 Zwiebel\n")
	assert.Contains(t, content, "## Anweisungen")
	assert.Contains(t, content, "### Schritt 2: Alles backen.")
	assert.Contains(t, content, "](images/step1.png)")
	assert.Contains(t, content, "**Zutaten für diesen Schritt:**")
	assert.NotContains(t, content, "<no value>")
}

func TestPDFRenderer(t *testing.T) {
	opts := testOptions(t)
	writePNG(t, filepath.Join(opts.ImageDir, "step1.png"))

	path, err := NewPDFRenderer(opts).Render(sampleRecipe(), map[int]string{1: "step1.png"})
	require.NoError(t, err)
	assert.Equal(t, ".pdf", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF-"))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file should be gone")
}

func TestPDFRendererSkipsBrokenImage(t *testing.T) {
	opts := testOptions(t)
	require.NoError(t, os.MkdirAll(opts.ImageDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(opts.ImageDir, "broken.jpg"), []byte("not an image"), 0644))

	log := logger.NewTestLogger()
	opts.Logger = log

	path, err := NewPDFRenderer(opts).Render(sampleRecipe(), map[int]string{1: "broken.jpg", 2: "missing.jpg"})
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.True(t, log.HasMessage("could not add image"))
	assert.True(t, log.HasMessage("step image missing"))
}

func TestDuplicateTitlesGetSuffix(t *testing.T) {
	opts := testOptions(t)
	renderer := NewMarkdownRenderer(opts)

	first, err := renderer.Render(sampleRecipe(), nil)
	require.NoError(t, err)
	second, err := renderer.Render(sampleRecipe(), nil)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, "Ofen-Gnocchi_mit_Feta_2.md", filepath.Base(second))
}

func TestReserveKeepsEarlierDocuments(t *testing.T) {
	opts := testOptions(t)
	renderer := NewMarkdownRenderer(opts)

	first, err := renderer.Render(sampleRecipe(), nil)
	require.NoError(t, err)

	renderer.Reserve([]string{first})
	second, err := renderer.Render(sampleRecipe(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Ofen-Gnocchi_mit_Feta_2.md", filepath.Base(second))

	renderer.Reserve(nil)
	third, err := renderer.Render(sampleRecipe(), nil)
	require.NoError(t, err)
	assert.Equal(t, first, third, "a new run starts with a fresh set of names")
}

func TestOverwriteDisabled(t *testing.T) {
	opts := testOptions(t)
	opts.OverwriteExisting = false

	existing := filepath.Join(opts.OutputDir, "Ofen-Gnocchi_mit_Feta.md")
	require.NoError(t, os.WriteFile(existing, []byte("keep me"), 0644))

	_, err := NewMarkdownRenderer(opts).Render(sampleRecipe(), nil)
	assert.True(t, errors.Is(err, ErrFileExists))

	data, _ := os.ReadFile(existing)
	assert.Equal(t, "keep me", string(data))
}
