package gemini

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nox-wallpaper/internal/credential"
	"nox-wallpaper/internal/poll"
	"nox-wallpaper/internal/utils"

	"google.golang.org/genai"
)

type fakeBackend struct {
	mu sync.Mutex

	contentResp   *genai.GenerateContentResponse
	contentErr    error
	gotModel      string
	gotContents   []*genai.Content
	gotContentCfg *genai.GenerateContentConfig

	// ops[0] 由 GenerateVideos 返回，其后依次由 GetVideosOperation 返回
	ops         []*genai.GenerateVideosOperation
	videoErr    error
	getErr      error
	gotPrompt   string
	gotImage    *genai.Image
	gotVideoCfg *genai.GenerateVideosConfig
	getCalls    int
}

func (f *fakeBackend) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotModel = model
	f.gotContents = contents
	f.gotContentCfg = config
	return f.contentResp, f.contentErr
}

func (f *fakeBackend) GenerateVideos(ctx context.Context, model string, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotModel = model
	f.gotPrompt = prompt
	f.gotImage = image
	f.gotVideoCfg = config
	if f.videoErr != nil {
		return nil, f.videoErr
	}
	return f.ops[0], nil
}

func (f *fakeBackend) GetVideosOperation(ctx context.Context, operation *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	idx := f.getCalls
	if idx >= len(f.ops) {
		idx = len(f.ops) - 1
	}
	return f.ops[idx], nil
}

type fakeStore struct {
	mu   sync.Mutex
	puts map[string][]byte
	mime map[string]string
	err  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{puts: map[string][]byte{}, mime: map[string]string{}}
}

func (s *fakeStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.puts[key] = data
	s.mime[key] = contentType
	return "/media/" + key, nil
}

func newTestClient(t *testing.T, backend *fakeBackend, store *fakeStore, httpClient *http.Client) *Client {
	t.Helper()
	client, err := NewClient(Config{
		Credentials: credential.NewStore("test-key", nil),
		Store:       store,
		NewBackend: func(ctx context.Context, apiKey string) (Backend, error) {
			if apiKey != "test-key" {
				t.Errorf("backend created with key %q", apiKey)
			}
			return backend, nil
		},
		HTTPClient: httpClient,
		Poller:     poll.Poller{Interval: time.Millisecond, MaxAttempts: 50},
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func imageResponse(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: parts}},
		},
	}
}

func TestNewClient_RequiresCollaborators(t *testing.T) {
	if _, err := NewClient(Config{Store: newFakeStore()}); err == nil {
		t.Error("expected error without credential source")
	}
	if _, err := NewClient(Config{Credentials: credential.NewStore("k", nil)}); err == nil {
		t.Error("expected error without media store")
	}
}

func TestGenerateImage(t *testing.T) {
	ctx := context.Background()

	t.Run("inline image part becomes data uri", func(t *testing.T) {
		backend := &fakeBackend{contentResp: imageResponse(
			&genai.Part{Text: "here is your wallpaper"},
			&genai.Part{InlineData: &genai.Blob{Data: []byte("png-bytes"), MIMEType: "image/png"}},
		)}
		client := newTestClient(t, backend, newFakeStore(), nil)

		ref, err := client.GenerateImage(ctx, "a hero X")
		if err != nil {
			t.Fatalf("GenerateImage() error = %v", err)
		}
		if ref != utils.EncodeDataURI("image/png", []byte("png-bytes")) {
			t.Errorf("GenerateImage() = %q", ref)
		}
		if backend.gotModel != DefaultImageModel {
			t.Errorf("model = %q, want %q", backend.gotModel, DefaultImageModel)
		}
		if backend.gotContentCfg == nil || backend.gotContentCfg.ImageConfig == nil ||
			backend.gotContentCfg.ImageConfig.AspectRatio != "9:16" {
			t.Errorf("request did not ask for 9:16: %+v", backend.gotContentCfg)
		}
		if len(backend.gotContents) != 1 || backend.gotContents[0].Parts[0].Text != "a hero X" {
			t.Errorf("prompt not sent as text part: %+v", backend.gotContents)
		}
	})

	t.Run("missing mime type defaults to png", func(t *testing.T) {
		backend := &fakeBackend{contentResp: imageResponse(
			&genai.Part{InlineData: &genai.Blob{Data: []byte("raw")}},
		)}
		client := newTestClient(t, backend, newFakeStore(), nil)

		ref, err := client.GenerateImage(ctx, "p")
		if err != nil {
			t.Fatalf("GenerateImage() error = %v", err)
		}
		if !strings.HasPrefix(ref, "data:image/png;base64,") {
			t.Errorf("GenerateImage() = %q", ref)
		}
	})

	noImage := []struct {
		name string
		resp *genai.GenerateContentResponse
	}{
		{name: "text only", resp: imageResponse(&genai.Part{Text: "sorry"})},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}},
		{name: "nil content", resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}},
		{name: "empty inline data", resp: imageResponse(&genai.Part{InlineData: &genai.Blob{MIMEType: "image/png"}})},
	}
	for _, tt := range noImage {
		t.Run("generation error when "+tt.name, func(t *testing.T) {
			client := newTestClient(t, &fakeBackend{contentResp: tt.resp}, newFakeStore(), nil)

			_, err := client.GenerateImage(ctx, "p")
			if !IsGenerationError(err) {
				t.Fatalf("GenerateImage() error = %v, want GenerationError", err)
			}
			if err.Error() != noImageMessage {
				t.Errorf("message = %q", err.Error())
			}
		})
	}

	t.Run("api error returned verbatim", func(t *testing.T) {
		apiErr := errors.New("Error 403, Message: API key not valid")
		client := newTestClient(t, &fakeBackend{contentErr: apiErr}, newFakeStore(), nil)

		if _, err := client.GenerateImage(ctx, "p"); err != apiErr {
			t.Errorf("GenerateImage() error = %v, want %v", err, apiErr)
		}
	})

	t.Run("no credential", func(t *testing.T) {
		client, err := NewClient(Config{
			Credentials: credential.NewStore("", nil),
			Store:       newFakeStore(),
			NewBackend: func(ctx context.Context, apiKey string) (Backend, error) {
				t.Error("backend should not be created without a key")
				return nil, nil
			},
		})
		if err != nil {
			t.Fatalf("NewClient() error = %v", err)
		}
		if _, err := client.GenerateImage(ctx, "p"); !errors.Is(err, credential.ErrNoCredential) {
			t.Errorf("GenerateImage() error = %v, want ErrNoCredential", err)
		}
	})
}

func TestGenerateVideo_PollsFetchesAndStores(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("mp4-bytes"))
	}))
	defer srv.Close()

	link := srv.URL + "/v1beta/files/abc:download?alt=media"
	backend := &fakeBackend{ops: []*genai.GenerateVideosOperation{
		{Name: "operations/1"},
		{Name: "operations/1"},
		{Name: "operations/1"},
		{Name: "operations/1", Done: true, Response: &genai.GenerateVideosResponse{
			GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{URI: link}}},
		}},
	}}
	store := newFakeStore()
	client := newTestClient(t, backend, store, srv.Client())

	imageRef := utils.EncodeDataURI("image/png", []byte("seed"))
	ref, err := client.GenerateVideo(context.Background(), imageRef, "flowing energy")
	if err != nil {
		t.Fatalf("GenerateVideo() error = %v", err)
	}

	if backend.getCalls != 3 {
		t.Errorf("expected 3 status checks, got %d", backend.getCalls)
	}
	if string(backend.gotImage.ImageBytes) != "seed" || backend.gotImage.MIMEType != "image/png" {
		t.Errorf("seed image = %+v", backend.gotImage)
	}
	if backend.gotPrompt != "flowing energy" || backend.gotModel != DefaultVideoModel {
		t.Errorf("prompt/model = %q/%q", backend.gotPrompt, backend.gotModel)
	}
	cfg := backend.gotVideoCfg
	if cfg.NumberOfVideos != 1 || cfg.Resolution != "720p" || cfg.AspectRatio != "9:16" {
		t.Errorf("video config = %+v", cfg)
	}

	if gotQuery["key"][0] != "test-key" || gotQuery["alt"][0] != "media" {
		t.Errorf("download query = %v", gotQuery)
	}

	if !strings.HasPrefix(ref, "/media/videos/") || !strings.HasSuffix(ref, ".mp4") {
		t.Errorf("GenerateVideo() ref = %q", ref)
	}
	key := strings.TrimPrefix(ref, "/media/")
	if string(store.puts[key]) != "mp4-bytes" || store.mime[key] != "video/mp4" {
		t.Errorf("stored %q (%s)", store.puts[key], store.mime[key])
	}
}

func TestGenerateVideo_InlineBytesSkipDownload(t *testing.T) {
	backend := &fakeBackend{ops: []*genai.GenerateVideosOperation{
		{Name: "operations/2", Done: true, Response: &genai.GenerateVideosResponse{
			GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{VideoBytes: []byte("inline"), MIMEType: "video/mp4"}}},
		}},
	}}
	store := newFakeStore()
	client := newTestClient(t, backend, store, &http.Client{Transport: failingTransport{}})

	ref, err := client.GenerateVideo(context.Background(), utils.EncodeDataURI("image/png", []byte("seed")), "p")
	if err != nil {
		t.Fatalf("GenerateVideo() error = %v", err)
	}
	if backend.getCalls != 0 {
		t.Errorf("finished operation should not be polled, got %d checks", backend.getCalls)
	}
	if string(store.puts[strings.TrimPrefix(ref, "/media/")]) != "inline" {
		t.Errorf("inline bytes not stored")
	}
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("network unreachable")
}

func TestGenerateVideo_NoLinkIsGenerationError(t *testing.T) {
	tests := []struct {
		name        string
		op          *genai.GenerateVideosOperation
		wantMessage string
	}{
		{
			name:        "empty response",
			op:          &genai.GenerateVideosOperation{Done: true},
			wantMessage: noVideoMessage,
		},
		{
			name: "video without uri",
			op: &genai.GenerateVideosOperation{Done: true, Response: &genai.GenerateVideosResponse{
				GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{}}},
			}},
			wantMessage: noVideoMessage,
		},
		{
			name: "operation error is included",
			op: &genai.GenerateVideosOperation{Done: true, Error: map[string]any{
				"code": 3, "message": "prompt rejected",
			}},
			wantMessage: noVideoMessage + " prompt rejected",
		},
		{
			name: "safety filter reasons are included",
			op: &genai.GenerateVideosOperation{Done: true, Response: &genai.GenerateVideosResponse{
				RAIMediaFilteredCount:   1,
				RAIMediaFilteredReasons: []string{"celebrity likeness"},
			}},
			wantMessage: noVideoMessage + " Filtered: celebrity likeness",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{ops: []*genai.GenerateVideosOperation{{Name: "operations/3"}, tt.op}}
			client := newTestClient(t, backend, newFakeStore(), nil)

			_, err := client.GenerateVideo(context.Background(), utils.EncodeDataURI("image/png", []byte("seed")), "p")
			if !IsGenerationError(err) {
				t.Fatalf("GenerateVideo() error = %v, want GenerationError", err)
			}
			if err.Error() != tt.wantMessage {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMessage)
			}
		})
	}
}

func TestGenerateVideo_ErrorsPropagate(t *testing.T) {
	seed := utils.EncodeDataURI("image/png", []byte("seed"))
	done := &genai.GenerateVideosOperation{Done: true, Response: &genai.GenerateVideosResponse{
		GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{URI: "https://video.invalid/v?alt=media"}}},
	}}

	t.Run("submit error", func(t *testing.T) {
		submitErr := errors.New("Error 404, Message: Requested entity was not found.")
		client := newTestClient(t, &fakeBackend{videoErr: submitErr}, newFakeStore(), nil)
		if _, err := client.GenerateVideo(context.Background(), seed, "p"); err != submitErr {
			t.Errorf("GenerateVideo() error = %v, want %v", err, submitErr)
		}
	})

	t.Run("status check error", func(t *testing.T) {
		getErr := errors.New("status unavailable")
		backend := &fakeBackend{ops: []*genai.GenerateVideosOperation{{Name: "operations/4"}}, getErr: getErr}
		client := newTestClient(t, backend, newFakeStore(), nil)
		if _, err := client.GenerateVideo(context.Background(), seed, "p"); err != getErr {
			t.Errorf("GenerateVideo() error = %v, want %v", err, getErr)
		}
	})

	t.Run("poll exhausted", func(t *testing.T) {
		backend := &fakeBackend{ops: []*genai.GenerateVideosOperation{{Name: "operations/5"}}}
		client := newTestClient(t, backend, newFakeStore(), nil)
		if _, err := client.GenerateVideo(context.Background(), seed, "p"); !errors.Is(err, poll.ErrExhausted) {
			t.Errorf("GenerateVideo() error = %v, want ErrExhausted", err)
		}
		if backend.getCalls != 50 {
			t.Errorf("expected 50 status checks, got %d", backend.getCalls)
		}
	})

	t.Run("fetch transport error", func(t *testing.T) {
		backend := &fakeBackend{ops: []*genai.GenerateVideosOperation{done}}
		client := newTestClient(t, backend, newFakeStore(), &http.Client{Transport: failingTransport{}})
		_, err := client.GenerateVideo(context.Background(), seed, "p")
		if err == nil || !strings.Contains(err.Error(), "network unreachable") {
			t.Errorf("GenerateVideo() error = %v, want transport error", err)
		}
		if IsGenerationError(err) {
			t.Error("transport error must not be reported as GenerationError")
		}
	})

	t.Run("store error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("mp4"))
		}))
		defer srv.Close()

		op := &genai.GenerateVideosOperation{Done: true, Response: &genai.GenerateVideosResponse{
			GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{URI: srv.URL + "/v"}}},
		}}
		store := newFakeStore()
		store.err = errors.New("disk full")
		client := newTestClient(t, &fakeBackend{ops: []*genai.GenerateVideosOperation{op}}, store, srv.Client())
		if _, err := client.GenerateVideo(context.Background(), seed, "p"); err == nil || !strings.Contains(err.Error(), "disk full") {
			t.Errorf("GenerateVideo() error = %v", err)
		}
	})

	t.Run("invalid image reference", func(t *testing.T) {
		backend := &fakeBackend{ops: []*genai.GenerateVideosOperation{done}}
		client := newTestClient(t, backend, newFakeStore(), nil)
		if _, err := client.GenerateVideo(context.Background(), "blob:local/123", "p"); err == nil {
			t.Error("expected error for unsupported image reference")
		}
		if backend.gotImage != nil {
			t.Error("job should not be submitted for an invalid image")
		}
	})
}

func TestClient_BackendFollowsSelectedKey(t *testing.T) {
	creds := credential.NewStore("first", nil)
	var created []string
	client, err := NewClient(Config{
		Credentials: creds,
		Store:       newFakeStore(),
		NewBackend: func(ctx context.Context, apiKey string) (Backend, error) {
			created = append(created, apiKey)
			return &fakeBackend{contentResp: imageResponse(&genai.Part{InlineData: &genai.Blob{Data: []byte("x")}})}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := client.GenerateImage(ctx, "p"); err != nil {
			t.Fatalf("GenerateImage() error = %v", err)
		}
	}
	creds.Set("second")
	if _, err := client.GenerateImage(ctx, "p"); err != nil {
		t.Fatalf("GenerateImage() error = %v", err)
	}

	if len(created) != 2 || created[0] != "first" || created[1] != "second" {
		t.Errorf("backends created for %v", created)
	}
}
