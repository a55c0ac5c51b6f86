package service

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cloaked/internal/cloak"
	"cloaked/internal/models"
	"cloaked/internal/storage"
	"cloaked/internal/store"
)

// fakeObjects is an in-memory object store speaking the same HTTP object API
// as the real service.
type fakeObjects struct {
	mu         sync.Mutex
	objects    map[string][]byte
	failPrefix string // paths starting with this return 500
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (f *fakeObjects) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/object/images/")
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failPrefix != "" && strings.HasPrefix(path, f.failPrefix) {
			http.Error(w, "backend unavailable", http.StatusInternalServerError)
			return
		}
		switch r.Method {
		case http.MethodPost:
			if _, exists := f.objects[path]; exists && r.Header.Get("x-upsert") != "true" {
				http.Error(w, `{"error":"Duplicate"}`, http.StatusConflict)
				return
			}
			body, _ := io.ReadAll(r.Body)
			f.objects[path] = body
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			data, ok := f.objects[path]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write(data)
		case http.MethodDelete:
			delete(f.objects, path)
			w.WriteHeader(http.StatusOK)
		}
	})
}

func (f *fakeObjects) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func (f *fakeObjects) has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[path]
	return ok
}

// fakeEngine is a scripted cloaking backend that counts calls per endpoint.
type fakeEngine struct {
	mu       sync.Mutex
	calls    map[string]int
	cloakErr bool
	proveErr bool
}

func newFakeEngine() *fakeEngine { return &fakeEngine{calls: map[string]int{}} }

func (f *fakeEngine) handler() http.Handler {
	b64 := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[r.URL.Path]++
		f.mu.Unlock()
		switch r.URL.Path {
		case "/cloak/base64":
			if f.cloakErr {
				http.Error(w, "cloaking failed", http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":            "ab12cd34",
				"cloaked_image": b64("cloaked-bytes"),
				"metadata":      map[string]any{"strength": "medium", "attack_type": "pgd", "faces_detected": 1},
			})
		case "/prove/v2/original":
			if f.proveErr {
				http.Error(w, "prove failed", http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"original_swap":     b64("orig-swap"),
				"original_metadata": map[string]any{"status": "success", "reason": "face_swap_complete", "confidence": 97.0, "message": "ok"},
			})
		case "/prove/v2/protected":
			if f.proveErr {
				http.Error(w, "prove failed", http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"protected_swap":     b64("prot-swap"),
				"protected_metadata": map[string]any{"status": "corrupted", "reason": "swap_error", "confidence": 11.0, "message": "corrupted"},
			})
		default:
			http.NotFound(w, r)
		}
	})
}

func (f *fakeEngine) proveCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls["/prove/v2/original"] + f.calls["/prove/v2/protected"] + f.calls["/prove/v2"]
}

type fixture struct {
	db      *gorm.DB
	store   *store.Store
	blobs   *storage.Adapter
	engine  *cloak.Client
	objects *fakeObjects
	backend *fakeEngine
	coord   *Coordinator
	proofs  *ProofService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: glog.Default.LogMode(glog.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ImagePair{}))

	objects := newFakeObjects()
	objSrv := httptest.NewServer(objects.handler())
	t.Cleanup(objSrv.Close)

	backend := newFakeEngine()
	engSrv := httptest.NewServer(backend.handler())
	t.Cleanup(engSrv.Close)

	st := store.New(db)
	blobs := storage.New(objSrv.URL, "test-key", "images", 5*time.Second)
	engine := cloak.NewClient(engSrv.URL, 5*time.Second, 5*time.Second)
	lg := zap.NewNop().Sugar()

	return &fixture{
		db:      db,
		store:   st,
		blobs:   blobs,
		engine:  engine,
		objects: objects,
		backend: backend,
		coord:   NewCoordinator(st, blobs, engine, lg, 1024),
		proofs:  NewProofService(st, blobs, engine, HeuristicAnalyzer{}, lg),
	}
}
