package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mkrajcovic/blog-backend/internal/adapters/repository"
	"github.com/mkrajcovic/blog-backend/internal/images"
	"github.com/mkrajcovic/blog-backend/internal/middleware"
	"github.com/mkrajcovic/blog-backend/internal/models"
)

// fakePostRepo is an in-memory PostRepository for handler tests.
type fakePostRepo struct {
	mu    sync.Mutex
	posts map[primitive.ObjectID]models.Post
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{posts: map[primitive.ObjectID]models.Post{}}
}

func (r *fakePostRepo) FindByID(_ context.Context, id primitive.ObjectID) (models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return models.Post{}, repository.ErrNotFound
	}
	return p, nil
}

func (r *fakePostRepo) FindBySlug(_ context.Context, slug string) (models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.Slug == slug {
			return p, nil
		}
	}
	return models.Post{}, repository.ErrNotFound
}

func (r *fakePostRepo) FindAll(_ context.Context, locale models.Locale) ([]models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Post{}
	for _, p := range r.posts {
		if p.Locale == locale {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakePostRepo) Insert(_ context.Context, p models.Post) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	r.posts[p.ID] = p
	return p.ID, nil
}

func (r *fakePostRepo) Update(_ context.Context, p models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[p.ID]; !ok {
		return repository.ErrNotFound
	}
	r.posts[p.ID] = p
	return nil
}

func (r *fakePostRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.posts, id)
	return nil
}

func (r *fakePostRepo) CountByAuthor(_ context.Context, author primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.posts {
		if p.Author == author {
			n++
		}
	}
	return n, nil
}

func (r *fakePostRepo) IncrementViews(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Views++
	r.posts[id] = p
	return nil
}

func (r *fakePostRepo) ToggleLike(_ context.Context, id, userID primitive.ObjectID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	for i, l := range p.Likes {
		if l == userID {
			p.Likes = append(p.Likes[:i], p.Likes[i+1:]...)
			r.posts[id] = p
			return false, nil
		}
	}
	p.Likes = append(p.Likes, userID)
	r.posts[id] = p
	return true, nil
}

// postTestEnv wires a post handler against temp-dir storage, with an
// optional authenticated caller injected the way the auth middleware would.
type postTestEnv struct {
	repo     *fakePostRepo
	pipeline *images.Pipeline
	router   *gin.Engine
}

func newPostTestEnv(t *testing.T, userID primitive.ObjectID, role models.Role) *postTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pipeline, err := images.NewPipeline(t.TempDir())
	require.NoError(t, err)

	repo := newFakePostRepo()
	h := NewPostHandler(repo, pipeline)

	router := gin.New()
	router.Use(middleware.LocaleMiddleware(models.LocaleEN))
	if !userID.IsZero() {
		// Same context keys the auth middleware sets after verifying a token.
		router.Use(func(c *gin.Context) {
			c.Set("userId", userID.Hex())
			c.Set("role", string(role))
		})
	}
	router.GET("/posts", h.GetPosts)
	router.GET("/posts/:slug", h.GetPostBySlug)
	router.POST("/posts", h.CreatePost)
	router.POST("/posts/:id", h.UpdatePost)
	router.DELETE("/api/posts/:id", h.DeletePost)
	router.POST("/api/posts/:id/like", h.ToggleLike)

	return &postTestEnv{repo: repo, pipeline: pipeline, router: router}
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

type fileUpload struct {
	name string
	data []byte
}

func multipartBody(t *testing.T, fields map[string]string, files []fileUpload) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		part, err := mw.CreateFormFile("images", f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (env *postTestEnv) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, body)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestCreatePostProcessesBodyImages(t *testing.T) {
	author := primitive.NewObjectID()
	env := newPostTestEnv(t, author, models.RoleUser)

	body, contentType := multipartBody(t,
		map[string]string{
			"title": "First post",
			"body":  "Hello\n\n![sunset](photo.jpg)",
		},
		[]fileUpload{{name: "photo.jpg", data: jpegBytes(t, 40, 30)}},
	)

	w := env.do(t, http.MethodPost, "/posts", body, contentType)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res struct {
		Data struct {
			Post models.Post `json:"post"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	post := res.Data.Post

	assert.Equal(t, author, post.Author)
	assert.True(t, strings.HasPrefix(post.Slug, "first-post-"))
	require.Len(t, post.Images, 1)

	img := post.Images[0]
	assert.Equal(t, "photo.jpg", img.OriginalName)
	assert.Contains(t, post.Body, img.URL())
	assert.NotContains(t, post.Body, "(photo.jpg)")
	// Alt text survives the reference rewrite.
	assert.Contains(t, post.Body, "![sunset](")

	_, err := os.Stat(filepath.Join(env.pipeline.Root(), img.UUID+img.Extension))
	assert.NoError(t, err, "processed file must be on disk")
}

func TestCreatePostRequiresTitleAndBody(t *testing.T) {
	env := newPostTestEnv(t, primitive.NewObjectID(), models.RoleUser)

	body, contentType := multipartBody(t, map[string]string{"title": "No body"}, nil)
	w := env.do(t, http.MethodPost, "/posts", body, contentType)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreatePostWithoutCallerIsUnauthorized(t *testing.T) {
	env := newPostTestEnv(t, primitive.NilObjectID, "")

	body, contentType := multipartBody(t, map[string]string{"title": "T", "body": "B"}, nil)
	w := env.do(t, http.MethodPost, "/posts", body, contentType)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// seedPost runs a real create through the pipeline so the image files exist
// on disk for edit and delete scenarios.
func seedPost(t *testing.T, env *postTestEnv, author primitive.ObjectID, markdownBody string, uploads []fileUpload) models.Post {
	t.Helper()

	pipelineUploads := make([]images.Upload, 0, len(uploads))
	for _, f := range uploads {
		pipelineUploads = append(pipelineUploads, images.Upload{OriginalName: f.name, Data: f.data})
	}
	finalBody, imgs, err := env.pipeline.ProcessBody(markdownBody, pipelineUploads)
	require.NoError(t, err)

	now := time.Now()
	post := models.Post{
		Author:    author,
		Title:     "Seeded",
		Body:      finalBody,
		Slug:      "seeded-1",
		Images:    imgs,
		Locale:    models.LocaleEN,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := env.repo.Insert(context.Background(), post)
	require.NoError(t, err)
	post.ID = id
	return post
}

func TestUpdatePostCollectsDroppedImages(t *testing.T) {
	author := primitive.NewObjectID()
	env := newPostTestEnv(t, author, models.RoleUser)

	post := seedPost(t, env, author, "![a](one.jpg)\n\n![b](two.jpg)", []fileUpload{
		{name: "one.jpg", data: jpegBytes(t, 20, 20)},
		{name: "two.jpg", data: jpegBytes(t, 20, 20)},
	})
	require.Len(t, post.Images, 2)

	var kept, dropped models.PostImage
	if strings.Contains(post.Body, post.Images[0].URL()) && strings.Index(post.Body, post.Images[0].URL()) < strings.Index(post.Body, post.Images[1].URL()) {
		kept, dropped = post.Images[0], post.Images[1]
	} else {
		kept, dropped = post.Images[1], post.Images[0]
	}

	// The edit keeps only the first image reference.
	body, contentType := multipartBody(t, map[string]string{
		"title": "Edited",
		"body":  "![a](" + kept.URL() + ")",
	}, nil)
	w := env.do(t, http.MethodPost, "/posts/"+post.ID.Hex(), body, contentType)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := env.repo.FindByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Edited", stored.Title)
	require.Len(t, stored.Images, 1)
	assert.Equal(t, kept.UUID, stored.Images[0].UUID)

	_, err = os.Stat(filepath.Join(env.pipeline.Root(), dropped.UUID+dropped.Extension))
	assert.True(t, os.IsNotExist(err), "orphaned image must be removed from disk")
	_, err = os.Stat(filepath.Join(env.pipeline.Root(), kept.UUID+kept.Extension))
	assert.NoError(t, err, "referenced image must survive the edit")
}

func TestUpdatePostRejectsOtherUsers(t *testing.T) {
	author := primitive.NewObjectID()
	stranger := primitive.NewObjectID()
	env := newPostTestEnv(t, stranger, models.RoleUser)

	post := seedPost(t, env, author, "plain body", nil)

	body, contentType := multipartBody(t, map[string]string{"title": "Hacked", "body": "x"}, nil)
	w := env.do(t, http.MethodPost, "/posts/"+post.ID.Hex(), body, contentType)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdatePostAllowsAdmin(t *testing.T) {
	author := primitive.NewObjectID()
	admin := primitive.NewObjectID()
	env := newPostTestEnv(t, admin, models.RoleAdmin)

	post := seedPost(t, env, author, "plain body", nil)

	body, contentType := multipartBody(t, map[string]string{"title": "Moderated", "body": "x"}, nil)
	w := env.do(t, http.MethodPost, "/posts/"+post.ID.Hex(), body, contentType)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeletePostRemovesImageFiles(t *testing.T) {
	author := primitive.NewObjectID()
	env := newPostTestEnv(t, author, models.RoleUser)

	post := seedPost(t, env, author, "![a](pic.jpg)", []fileUpload{
		{name: "pic.jpg", data: jpegBytes(t, 20, 20)},
	})
	require.Len(t, post.Images, 1)
	img := post.Images[0]

	w := env.do(t, http.MethodDelete, "/api/posts/"+post.ID.Hex(), nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res struct {
		Data struct {
			Total int64 `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, int64(0), res.Data.Total)

	_, err := env.repo.FindByID(context.Background(), post.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = os.Stat(filepath.Join(env.pipeline.Root(), img.UUID+img.Extension))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(env.pipeline.Root(), img.ThumbPath()))
	assert.True(t, os.IsNotExist(err))
}

func TestGetPostBySlugRendersHTMLAndCountsView(t *testing.T) {
	author := primitive.NewObjectID()
	env := newPostTestEnv(t, author, models.RoleUser)

	post := seedPost(t, env, author, "# Heading\n\nText", nil)

	w := env.do(t, http.MethodGet, "/posts/"+post.Slug, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		Data struct {
			Post models.Post `json:"post"`
			HTML string      `json:"html"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Contains(t, res.Data.HTML, "<h1")
	assert.Equal(t, int64(1), res.Data.Post.Views)

	stored, err := env.repo.FindByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Views)
}

func TestGetPostsFiltersByRequestLocale(t *testing.T) {
	author := primitive.NewObjectID()
	env := newPostTestEnv(t, author, models.RoleUser)

	en := seedPost(t, env, author, "english body", nil)
	sk := en
	sk.ID = primitive.NilObjectID
	sk.Slug = "seeded-2"
	sk.Locale = models.LocaleSK
	_, err := env.repo.Insert(context.Background(), sk)
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/posts?lang=sk", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		Data struct {
			Posts []models.Post `json:"posts"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Data.Posts, 1)
	assert.Equal(t, models.LocaleSK, res.Data.Posts[0].Locale)
}

func TestToggleLikeFlips(t *testing.T) {
	author := primitive.NewObjectID()
	env := newPostTestEnv(t, author, models.RoleUser)

	post := seedPost(t, env, author, "likeable", nil)

	w := env.do(t, http.MethodPost, "/api/posts/"+post.ID.Hex()+"/like", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		Data struct {
			Liked bool `json:"liked"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Data.Liked)

	w = env.do(t, http.MethodPost, "/api/posts/"+post.ID.Hex()+"/like", nil, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.Data.Liked)
}
