// Package images is the post body/image pipeline: it turns uploaded files
// into resized JPEG assets plus square thumbnails, rewrites the markdown
// image references in the post body to the final /uploads URLs, and garbage
// collects assets a later edit no longer references.
package images

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "image/gif"
	_ "image/png"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/mkrajcovic/blog-backend/internal/models"
)

// Product-tuned knobs for in-article display. The exact numbers are a
// tuning choice, not a correctness invariant.
const (
	// bodyMaxWidth/bodyMaxHeight bound the in-article image (contain fit,
	// aspect ratio preserved, never upscaled).
	bodyMaxWidth  = 1200
	bodyMaxHeight = 900
	// bodyQuality is the JPEG quality of the in-article image.
	bodyQuality = 60
	// thumbSize is the edge of the square thumbnail (crop to fill).
	thumbSize = 320
	// thumbQuality is the JPEG quality of the thumbnail.
	thumbQuality = 55
)

const (
	// URLPrefix is the public path uploads are served under.
	URLPrefix = "/uploads/"
	// ThumbsDir is the subdirectory holding thumbnail variants.
	ThumbsDir = "thumbs"

	outputExtension = ".jpg"
	outputMime      = "image/jpeg"
)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// imageRef matches a markdown image tag and captures the alt text and
// target. The target may carry an optional quoted title, which markdown
// renderers accept and which must not hide the reference from orphan
// collection.
var imageRef = regexp.MustCompile(`!\[([^\]]*)\]\(\s*([^)\s]+)(?:\s+(?:"[^"]*"|'[^']*'))?\s*\)`)

// Upload is one file submitted alongside a post body. OriginalName is the
// name the body's markdown references it by.
type Upload struct {
	OriginalName string
	Data         []byte
}

type Pipeline struct {
	root string
}

// NewPipeline prepares the uploads root and its thumbs/ subdirectory.
func NewPipeline(root string) (*Pipeline, error) {
	if err := os.MkdirAll(filepath.Join(root, ThumbsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Pipeline{root: root}, nil
}

// ProcessBody runs every upload through the pipeline and rewrites the body's
// markdown references from original filenames to the final public URLs,
// preserving alt text. Files are processed independently in submission order.
func (p *Pipeline) ProcessBody(body string, uploads []Upload) (string, []models.PostImage, error) {
	images := []models.PostImage{}
	for _, u := range uploads {
		img, err := p.process(u)
		if err != nil {
			// The post will not be saved, so files written for earlier
			// uploads in the batch would be unrecorded; remove them.
			for _, done := range images {
				p.remove(done)
			}
			return "", nil, fmt.Errorf("process %s: %w", u.OriginalName, err)
		}
		images = append(images, img)
		body = rewriteReference(body, u.OriginalName, img.URL())
	}
	return body, images, nil
}

// process converts one upload into its stored form: a bounded in-article
// JPEG plus a square thumbnail under thumbs/, both named by a fresh uuid.
func (p *Pipeline) process(u Upload) (models.PostImage, error) {
	contentType := http.DetectContentType(u.Data)
	if !allowedTypes[contentType] {
		return models.PostImage{}, fmt.Errorf("unsupported content type %s", contentType)
	}

	src, _, err := image.Decode(bytes.NewReader(u.Data))
	if err != nil {
		return models.PostImage{}, fmt.Errorf("decode: %w", err)
	}

	id := uuid.New().String()

	mainData, err := encodeBounded(src)
	if err != nil {
		return models.PostImage{}, err
	}
	mainPath := filepath.Join(p.root, id+outputExtension)
	if err := os.WriteFile(mainPath, mainData, 0o644); err != nil {
		return models.PostImage{}, fmt.Errorf("write image: %w", err)
	}

	thumbData, err := encodeThumbnail(src)
	if err != nil {
		return models.PostImage{}, err
	}
	thumbPath := filepath.Join(p.root, ThumbsDir, id+outputExtension)
	if err := os.WriteFile(thumbPath, thumbData, 0o644); err != nil {
		return models.PostImage{}, fmt.Errorf("write thumbnail: %w", err)
	}

	return models.PostImage{
		OriginalName: u.OriginalName,
		UUID:         id,
		Extension:    outputExtension,
		Mime:         outputMime,
		Size:         int64(len(mainData)),
		CreatedAt:    time.Now(),
	}, nil
}

// encodeBounded fits the image into the body bounding box (contain, no crop,
// no upscaling) and encodes it as JPEG.
func encodeBounded(src image.Image) ([]byte, error) {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	scale := 1.0
	if s := float64(bodyMaxWidth) / float64(w); s < scale {
		scale = s
	}
	if s := float64(bodyMaxHeight) / float64(h); s < scale {
		scale = s
	}

	out := src
	if scale < 1.0 {
		dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: bodyQuality}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeThumbnail center-crops the largest square out of the image and
// scales it to the fixed thumbnail size.
func encodeThumbnail(src image.Image) ([]byte, error) {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	side := w
	if h < side {
		side = h
	}
	crop := image.Rect(0, 0, side, side).
		Add(image.Pt(bounds.Min.X+(w-side)/2, bounds.Min.Y+(h-side)/2))

	dst := image.NewRGBA(image.Rect(0, 0, thumbSize, thumbSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: thumbQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// rewriteReference replaces every markdown image tag pointing at
// originalName with the final URL, keeping the alt text and any quoted
// title.
func rewriteReference(body, originalName, url string) string {
	re := regexp.MustCompile(`!\[([^\]]*)\]\(\s*` + regexp.QuoteMeta(originalName) + `(\s+(?:"[^"]*"|'[^']*'))?\s*\)`)
	return re.ReplaceAllString(body, `![$1](`+url+`$2)`)
}

// ReferencedURLs returns the set of /uploads image URLs the body currently
// references.
func ReferencedURLs(body string) map[string]bool {
	urls := map[string]bool{}
	for _, m := range imageRef.FindAllStringSubmatch(body, -1) {
		if target := m[2]; len(target) > len(URLPrefix) && target[:len(URLPrefix)] == URLPrefix {
			urls[target] = true
		}
	}
	return urls
}

// Reconcile drops every previously stored image record whose derived URL the
// body no longer references, deleting its main asset and thumbnail from
// disk. Delete failures are logged and never abort the save: the post record
// is the source of truth, not the filesystem. The returned slice is the kept
// subset, in original order.
func (p *Pipeline) Reconcile(body string, prev []models.PostImage) []models.PostImage {
	referenced := ReferencedURLs(body)

	kept := []models.PostImage{}
	for _, img := range prev {
		if referenced[img.URL()] {
			kept = append(kept, img)
			continue
		}
		p.remove(img)
	}
	return kept
}

func (p *Pipeline) remove(img models.PostImage) {
	name := img.UUID + img.Extension
	for _, path := range []string{
		filepath.Join(p.root, name),
		filepath.Join(p.root, ThumbsDir, name),
	} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logrus.WithError(err).Warnf("Failed to delete orphan image file %s", path)
		}
	}
}

// Root returns the uploads root directory, used for static file serving.
func (p *Pipeline) Root() string {
	return p.root
}
