package images

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrajcovic/blog-backend/utils"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := NewPipeline(t.TempDir())
	require.NoError(t, err)
	return p
}

var uploadsURL = regexp.MustCompile(`^/uploads/[0-9a-f-]{36}\.jpg$`)

func TestProcessBodyRoundTrip(t *testing.T) {
	p := newTestPipeline(t)

	body, images, err := p.ProcessBody(
		"intro\n\n![x](photo.png)\n\noutro",
		[]Upload{{OriginalName: "photo.png", Data: testPNG(t, 400, 300)}},
	)
	require.NoError(t, err)
	require.Len(t, images, 1)

	img := images[0]
	assert.Equal(t, "photo.png", img.OriginalName)
	assert.Equal(t, ".jpg", img.Extension)
	assert.Equal(t, "image/jpeg", img.Mime)
	assert.Greater(t, img.Size, int64(0))
	assert.Regexp(t, uploadsURL, img.URL())

	// The body now references the derived URL, alt text intact.
	assert.Contains(t, body, "![x]("+img.URL()+")")
	assert.NotContains(t, body, "photo.png)")

	// Both the asset and its thumbnail exist on disk.
	name := img.UUID + img.Extension
	_, err = os.Stat(filepath.Join(p.Root(), name))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(p.Root(), ThumbsDir, name))
	require.NoError(t, err)

	// Re-rendering the stored body produces an <img> tag for the URL.
	html := utils.RenderMarkdown(body)
	assert.Contains(t, html, `<img src="`+img.URL()+`"`)
}

func TestProcessRewritesAllOccurrences(t *testing.T) {
	p := newTestPipeline(t)

	body, images, err := p.ProcessBody(
		"![first](pic.jpg) and again ![second]( pic.jpg )",
		[]Upload{{OriginalName: "pic.jpg", Data: testJPEG(t, 100, 100)}},
	)
	require.NoError(t, err)

	url := images[0].URL()
	assert.Equal(t, "![first]("+url+") and again ![second]("+url+")", body)
}

func TestProcessBoundsLargeImages(t *testing.T) {
	p := newTestPipeline(t)

	_, images, err := p.ProcessBody("![big](big.jpg)",
		[]Upload{{OriginalName: "big.jpg", Data: testJPEG(t, 2400, 1200)}})
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(p.Root(), images[0].UUID+images[0].Extension))
	require.NoError(t, err)
	defer f.Close()
	decoded, _, err := image.Decode(f)
	require.NoError(t, err)

	// 2400x1200 fits the 1200x900 box at scale 0.5.
	assert.Equal(t, 1200, decoded.Bounds().Dx())
	assert.Equal(t, 600, decoded.Bounds().Dy())
}

func TestProcessNeverUpscales(t *testing.T) {
	p := newTestPipeline(t)

	_, images, err := p.ProcessBody("![small](s.jpg)",
		[]Upload{{OriginalName: "s.jpg", Data: testJPEG(t, 200, 150)}})
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(p.Root(), images[0].UUID+images[0].Extension))
	require.NoError(t, err)
	defer f.Close()
	decoded, _, err := image.Decode(f)
	require.NoError(t, err)

	assert.Equal(t, 200, decoded.Bounds().Dx())
	assert.Equal(t, 150, decoded.Bounds().Dy())
}

func TestThumbnailIsFixedSquare(t *testing.T) {
	p := newTestPipeline(t)

	_, images, err := p.ProcessBody("![w](wide.jpg)",
		[]Upload{{OriginalName: "wide.jpg", Data: testJPEG(t, 1600, 400)}})
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(p.Root(), ThumbsDir, images[0].UUID+images[0].Extension))
	require.NoError(t, err)
	defer f.Close()
	decoded, _, err := image.Decode(f)
	require.NoError(t, err)

	assert.Equal(t, thumbSize, decoded.Bounds().Dx())
	assert.Equal(t, thumbSize, decoded.Bounds().Dy())
}

func TestProcessRejectsNonImage(t *testing.T) {
	p := newTestPipeline(t)

	_, _, err := p.ProcessBody("![x](a.txt)",
		[]Upload{{OriginalName: "a.txt", Data: []byte("definitely not an image")}})
	assert.Error(t, err)
}

func TestReconcileDeletesOrphans(t *testing.T) {
	p := newTestPipeline(t)

	_, images, err := p.ProcessBody("![a](a.jpg) ![b](b.jpg)", []Upload{
		{OriginalName: "a.jpg", Data: testJPEG(t, 100, 100)},
		{OriginalName: "b.jpg", Data: testJPEG(t, 100, 100)},
	})
	require.NoError(t, err)
	require.Len(t, images, 2)

	// Edit the body so only the first image remains referenced.
	edited := "![a](" + images[0].URL() + ")"
	kept := p.Reconcile(edited, images)

	require.Len(t, kept, 1)
	assert.Equal(t, images[0].UUID, kept[0].UUID)

	gone := images[1].UUID + images[1].Extension
	_, err = os.Stat(filepath.Join(p.Root(), gone))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(p.Root(), ThumbsDir, gone))
	assert.True(t, os.IsNotExist(err))

	// A second reconcile with no new uploads changes nothing.
	again := p.Reconcile(edited, kept)
	assert.Equal(t, kept, again)
	_, err = os.Stat(filepath.Join(p.Root(), images[0].UUID+images[0].Extension))
	require.NoError(t, err)
}

func TestReconcileSurvivesMissingFiles(t *testing.T) {
	p := newTestPipeline(t)

	_, images, err := p.ProcessBody("![a](a.jpg)",
		[]Upload{{OriginalName: "a.jpg", Data: testJPEG(t, 100, 100)}})
	require.NoError(t, err)

	// Delete the file out from under the pipeline; reconcile must not panic
	// or fail, only log.
	require.NoError(t, os.Remove(filepath.Join(p.Root(), images[0].UUID+images[0].Extension)))
	kept := p.Reconcile("no images left", images)
	assert.Empty(t, kept)
}

func TestReferencedURLs(t *testing.T) {
	urls := ReferencedURLs("![a](/uploads/x.jpg) ![ext](https://example.com/y.png) plain /uploads/z.jpg")
	assert.Equal(t, map[string]bool{"/uploads/x.jpg": true}, urls)
}

func TestReferencedURLsWithTitles(t *testing.T) {
	urls := ReferencedURLs(`![a](/uploads/x.jpg "a caption") ![b](/uploads/y.jpg 'single') ![c](/uploads/z.jpg)`)
	assert.Equal(t, map[string]bool{
		"/uploads/x.jpg": true,
		"/uploads/y.jpg": true,
		"/uploads/z.jpg": true,
	}, urls)
}

func TestReconcileKeepsTitledReferences(t *testing.T) {
	p := newTestPipeline(t)

	_, images, err := p.ProcessBody("![a](a.jpg)",
		[]Upload{{OriginalName: "a.jpg", Data: testJPEG(t, 100, 100)}})
	require.NoError(t, err)
	require.Len(t, images, 1)

	// An edit that adds a caption title must not orphan the asset.
	edited := `![a](` + images[0].URL() + ` "my caption")`
	kept := p.Reconcile(edited, images)

	require.Len(t, kept, 1)
	_, err = os.Stat(filepath.Join(p.Root(), images[0].UUID+images[0].Extension))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(p.Root(), images[0].ThumbPath()))
	assert.NoError(t, err)
}

func TestRewriteKeepsTitle(t *testing.T) {
	p := newTestPipeline(t)

	body, images, err := p.ProcessBody(`before ![alt](pic.jpg "the title") after`,
		[]Upload{{OriginalName: "pic.jpg", Data: testJPEG(t, 100, 100)}})
	require.NoError(t, err)
	require.Len(t, images, 1)

	assert.Equal(t, `before ![alt](`+images[0].URL()+` "the title") after`, body)
	assert.Contains(t, ReferencedURLs(body), images[0].URL())
}

func TestProcessBodyFailureLeavesNoFiles(t *testing.T) {
	p := newTestPipeline(t)

	_, _, err := p.ProcessBody("![a](good.jpg) ![b](bad.txt)", []Upload{
		{OriginalName: "good.jpg", Data: testJPEG(t, 100, 100)},
		{OriginalName: "bad.txt", Data: []byte("definitely not an image")},
	})
	require.Error(t, err)

	// The first upload was already written when the second failed; the
	// post is not saved, so nothing may stay behind on disk.
	entries, err := os.ReadDir(p.Root())
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, e.IsDir(), "unexpected leftover file %s", e.Name())
	}
	thumbs, err := os.ReadDir(filepath.Join(p.Root(), ThumbsDir))
	require.NoError(t, err)
	assert.Empty(t, thumbs)
}
