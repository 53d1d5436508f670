package taxonomy

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/blogclient/internal/apiclient"
	"github.com/hitoshi/blogclient/internal/credential"
	"github.com/hitoshi/blogclient/internal/model"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/categories":
			w.Write([]byte(`[{"id":"c1","name":"Go","slug":"go","postCount":3}]`))
		case "/categories/c1", "/categories/slug/go":
			w.Write([]byte(`{"id":"c1","name":"Go","slug":"go"}`))
		case "/tags":
			w.Write([]byte(`[{"id":"t1","name":"web","slug":"web"},{"id":"t2","name":"db","slug":"db"}]`))
		case "/tags/t1", "/tags/slug/web":
			w.Write([]byte(`{"id":"t1","name":"web","slug":"web"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	store := credential.NewMemoryStore(time.Hour, time.Hour, logger)
	api := apiclient.NewClient(server.Client(), store, apiclient.Config{BaseURL: server.URL}, nil, logger)
	return NewService(api)
}

func TestCategories(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cats, err := svc.Categories(ctx)
	if err != nil || len(cats) != 1 || cats[0].PostCount != 3 {
		t.Errorf("Categories = %+v, %v", cats, err)
	}
	if c, err := svc.Category(ctx, "c1"); err != nil || c.Slug != "go" {
		t.Errorf("Category = %+v, %v", c, err)
	}
	if c, err := svc.CategoryBySlug(ctx, "go"); err != nil || c.ID != "c1" {
		t.Errorf("CategoryBySlug = %+v, %v", c, err)
	}
	if _, err := svc.CategoryBySlug(ctx, "rust"); !model.IsNotFound(err) {
		t.Errorf("NotFound であるべき: %v", err)
	}
}

func TestTags(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tags, err := svc.Tags(ctx)
	if err != nil || len(tags) != 2 {
		t.Errorf("Tags = %+v, %v", tags, err)
	}
	if tag, err := svc.Tag(ctx, "t1"); err != nil || tag.Name != "web" {
		t.Errorf("Tag = %+v, %v", tag, err)
	}
	if tag, err := svc.TagBySlug(ctx, "web"); err != nil || tag.ID != "t1" {
		t.Errorf("TagBySlug = %+v, %v", tag, err)
	}
	if _, err := svc.Tag(ctx, "missing"); !model.IsNotFound(err) {
		t.Errorf("NotFound であるべき: %v", err)
	}
}
