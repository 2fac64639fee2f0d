package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

func TestImageSearchSendsFirstResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "capybara" || q.Get("searchType") != "image" || q.Get("cx") != "cx-id" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"items":[{"link":"https://img/1.jpg"},{"link":"https://img/2.jpg"}]}`))
	}))
	defer server.Close()

	s := &fakeSender{}
	p := NewImageSearch("key", "cx-id", s, nil)
	p.baseURL = server.URL

	inv := Invocation{Text: "pic capybara", ChatID: 10, MessageID: 3, Caption: "here"}
	if !p.Match(inv) {
		t.Fatal("expected match")
	}
	if err := p.Run(context.Background(), inv); err != nil {
		t.Fatal(err)
	}
	if len(s.photos) != 1 {
		t.Fatalf("expected 1 photo, got %d", len(s.photos))
	}
	got := s.photos[0]
	if got.Media != "https://img/1.jpg" || got.ReplyTo != 3 || got.Caption != "here" || !got.DisableNotification {
		t.Errorf("unexpected photo %+v", got)
	}
}

func TestImageSearchRetriesNextResult(t *testing.T) {
	var (
		mu     sync.Mutex
		starts []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		starts = append(starts, r.URL.Query().Get("start"))
		mu.Unlock()
		items := make([]map[string]string, 10)
		for i := range items {
			items[i] = map[string]string{"link": "https://img/" + strconv.Itoa(i)}
		}
		json.NewEncoder(w).Encode(map[string]any{"items": items})
	}))
	defer server.Close()

	s := &fakeSender{photoErrs: []error{errors.New("bad photo"), errors.New("bad photo")}}
	p := NewImageSearch("key", "cx", s, nil)
	p.baseURL = server.URL

	if err := p.Run(context.Background(), Invocation{Text: "img x", ChatID: 1, MessageID: 1}); err != nil {
		t.Fatal(err)
	}
	if len(s.photos) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(s.photos))
	}
	if s.photos[2].Media != "https://img/2" {
		t.Errorf("expected third result, got %s", s.photos[2].Media)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, st := range starts {
		if st != "1" {
			t.Errorf("expected first page, got start=%s", st)
		}
	}
}

func TestImageSearchGivesUpAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		items := make([]map[string]string, 10)
		for i := range items {
			items[i] = map[string]string{"link": "https://img/" + strconv.Itoa(i)}
		}
		json.NewEncoder(w).Encode(map[string]any{"items": items})
	}))
	defer server.Close()

	errs := make([]error, 10)
	for i := range errs {
		errs[i] = errors.New("bad photo")
	}
	s := &fakeSender{photoErrs: errs}
	p := NewImageSearch("key", "cx", s, nil)
	p.baseURL = server.URL

	if err := p.Run(context.Background(), Invocation{Text: "img x"}); err == nil {
		t.Fatal("expected error after retries")
	}
	if len(s.photos) != maxImageRetries+1 {
		t.Errorf("expected %d attempts, got %d", maxImageRetries+1, len(s.photos))
	}
}

func TestImageSearchNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	s := &fakeSender{}
	p := NewImageSearch("key", "cx", s, nil)
	p.baseURL = server.URL

	if err := p.Run(context.Background(), Invocation{Text: "pic nothing", ChatID: 2, MessageID: 8}); err != nil {
		t.Fatal(err)
	}
	if len(s.texts) != 1 || s.texts[0].Text != NotFoundText || s.texts[0].ReplyTo != 8 {
		t.Errorf("expected not-found reply, got %+v", s.texts)
	}
}

func TestVideoSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "lofi" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"items":[{"id":{"videoId":"abc123"}}]}`))
	}))
	defer server.Close()

	s := &fakeSender{}
	p := NewVideoSearch("key", s)
	p.baseURL = server.URL

	inv := Invocation{Text: "video", ReplyToText: "lofi", ChatID: 4, MessageID: 6, ReplyToID: 5, Caption: "enjoy"}
	if err := p.Run(context.Background(), inv); err != nil {
		t.Fatal(err)
	}
	if len(s.texts) != 1 {
		t.Fatalf("expected 1 message, got %d", len(s.texts))
	}
	if s.texts[0].Text != "enjoy\nhttps://www.youtube.com/watch?v=abc123" {
		t.Errorf("unexpected text %q", s.texts[0].Text)
	}
	if s.texts[0].ReplyTo != 5 {
		t.Errorf("expected reply to 5, got %d", s.texts[0].ReplyTo)
	}
}

func TestGifSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("media_filter") != "mp4" {
			t.Errorf("expected mp4 filter, got %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"results":[{"media_formats":{"mp4":{"url":"https://tenor/x.mp4"}}}]}`))
	}))
	defer server.Close()

	s := &fakeSender{}
	p := NewGifSearch("key", s)
	p.baseURL = server.URL

	if err := p.Run(context.Background(), Invocation{Text: "gif dance", ChatID: 1, MessageID: 2, BusinessConnectionID: "bc"}); err != nil {
		t.Fatal(err)
	}
	if len(s.animations) != 1 || s.animations[0].Media != "https://tenor/x.mp4" || s.animations[0].BusinessConnectionID != "bc" {
		t.Errorf("unexpected animations %+v", s.animations)
	}
}

func TestSearchAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	p := NewGifSearch("key", &fakeSender{})
	p.baseURL = server.URL
	if err := p.Run(context.Background(), Invocation{Text: "gif x"}); err == nil {
		t.Fatal("expected error for 403")
	}
}
