package upload

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/wire"
)

func TestTrackerClampsAndPrunes(t *testing.T) {
	tr := NewTracker(nil)
	tr.Set(1, 150)
	tr.Set(2, -5)
	tr.Set(3, 40)

	if pct, _ := tr.Get(1); pct != 100 {
		t.Errorf("pct(1) = %d, want 100", pct)
	}
	if pct, _ := tr.Get(2); pct != 0 {
		t.Errorf("pct(2) = %d, want 0", pct)
	}

	tr.Prune(func(id int64) bool { return id == 3 })
	snap := tr.Snapshot()
	if len(snap) != 1 || snap[3] != 40 {
		t.Errorf("snapshot after prune = %v, want {3:40}", snap)
	}

	tr.Remove(3)
	if _, ok := tr.Get(3); ok {
		t.Error("entry 3 still present after Remove")
	}
}

func TestTrackerNotifies(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.UploadProgress, 4)
	defer unsub()

	NewTracker(b).Set(7, 55)

	evt := <-ch
	change, ok := evt.Payload.(bus.UploadChange)
	if !ok || change.TempID != 7 || change.Percent != 55 {
		t.Errorf("payload = %#v, want {7 55}", evt.Payload)
	}
}

func TestUploadPostsFilesAndReportsProgress(t *testing.T) {
	var gotAuth string
	var gotNames []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var resp uploadResponse
		for i, fh := range r.MultipartForm.File["files"] {
			f, _ := fh.Open()
			_, _ = io.Copy(io.Discard, f)
			_ = f.Close()
			gotNames = append(gotNames, fh.Filename)
			resp.Medias = append(resp.Medias, wire.Media{ID: int64(i + 1), Name: fh.Filename})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	u := NewUploader(srv.URL, func() string { return "tok" })
	var last int
	medias, err := u.Upload(context.Background(), []File{
		{Name: "a.txt", Size: 5, Reader: strings.NewReader("hello")},
		{Name: "b.txt", Size: 5, Reader: strings.NewReader("world")},
	}, func(pct int) { last = pct })
	if err != nil {
		t.Fatal(err)
	}

	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q, want Bearer tok", gotAuth)
	}
	if len(gotNames) != 2 || len(medias) != 2 {
		t.Fatalf("uploaded %v, medias %v", gotNames, medias)
	}
	if medias[1].Name != "b.txt" || medias[1].ID != 2 {
		t.Errorf("medias[1] = %+v", medias[1])
	}
	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
}

func TestUploadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewUploader(srv.URL, nil).Upload(context.Background(), []File{
		{Name: "a.txt", Size: 1, Reader: strings.NewReader("x")},
	}, nil)
	if err == nil {
		t.Fatal("Upload() expected error on 500")
	}
}

func TestUploadWithoutEndpoint(t *testing.T) {
	if _, err := NewUploader("", nil).Upload(context.Background(), nil, nil); err != ErrNoEndpoint {
		t.Errorf("err = %v, want ErrNoEndpoint", err)
	}
}
