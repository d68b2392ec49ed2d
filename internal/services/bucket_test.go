package services

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/healthpredictor/healthpredictor-backend/internal/platform/apierr"
)

// fakeObjectStore is an in-memory objectStore backend.
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (f *fakeObjectStore) write(ctx context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeObjectStore) open(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, errObjectNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStore) delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeObjectStore) list(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeObjectStore) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		keys = append(keys, k)
	}
	return keys
}

func newFakeBucket(t *testing.T) (*bucketService, *fakeObjectStore) {
	t.Helper()
	store := newFakeObjectStore()
	return &bucketService{
		log:        testLog(t),
		store:      store,
		bucketName: "health-data",
		baseURL:    "https://storage.googleapis.com",
	}, store
}

func newURLOnlyBucket(t *testing.T) *bucketService {
	t.Helper()
	bs, _ := newFakeBucket(t)
	return bs
}

func TestPublicURLRoundTrip(t *testing.T) {
	bs := newURLOnlyBucket(t)

	key := "users/u1/health_data/20250601_120000_data.csv"
	url := bs.PublicURL(key)
	if url != "https://storage.googleapis.com/health-data/"+key {
		t.Fatalf("url = %q", url)
	}

	got, err := bs.keyFromURL(url)
	if err != nil {
		t.Fatalf("keyFromURL: %v", err)
	}
	if got != key {
		t.Fatalf("key = %q, want %q", got, key)
	}
}

func TestKeyFromURLRejectsForeignReferences(t *testing.T) {
	bs := newURLOnlyBucket(t)

	cases := []struct {
		name string
		url  string
	}{
		{"other_bucket", "https://storage.googleapis.com/other-bucket/users/u1/health_data/f.csv"},
		{"other_host", "https://evil.example.com/health-data/users/u1/health_data/f.csv"},
		{"empty_key", "https://storage.googleapis.com/health-data/"},
		{"garbage", "not a url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := bs.keyFromURL(tc.url)
			if err == nil {
				t.Fatalf("expected rejection of %q", tc.url)
			}
			if apierr.CodeOf(err) != apierr.CodeInvalidReference {
				t.Fatalf("expected invalid_reference, got %q", apierr.CodeOf(err))
			}
		})
	}
}

func TestUploadTwiceKeepsOnlyLatest(t *testing.T) {
	bs, store := newFakeBucket(t)
	ctx := context.Background()

	firstURL, err := bs.UploadHealthData(ctx, strings.NewReader("old,data\n"), "u1", "first.csv")
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	secondURL, err := bs.UploadHealthData(ctx, strings.NewReader("new,data\n"), "u1", "second.csv")
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}

	keys := store.keys()
	if len(keys) != 1 {
		t.Fatalf("expected exactly one retained object, got %v", keys)
	}
	if !strings.HasSuffix(keys[0], "_second.csv") {
		t.Fatalf("survivor is not the newest upload: %q", keys[0])
	}

	if _, err := bs.Download(ctx, firstURL); apierr.CodeOf(err) != apierr.CodeNotFound {
		t.Fatalf("old object should be gone, got err=%v", err)
	}
	r, err := bs.Download(ctx, secondURL)
	if err != nil {
		t.Fatalf("download newest: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read newest: %v", err)
	}
	if string(data) != "new,data\n" {
		t.Fatalf("newest content = %q", data)
	}
}

func TestCleanupDoesNotTouchOtherUsers(t *testing.T) {
	bs, store := newFakeBucket(t)
	ctx := context.Background()

	if _, err := bs.UploadHealthData(ctx, strings.NewReader("alice\n"), "alice", "a.csv"); err != nil {
		t.Fatalf("alice upload: %v", err)
	}
	if _, err := bs.UploadHealthData(ctx, strings.NewReader("bob\n"), "bob", "b.csv"); err != nil {
		t.Fatalf("bob upload: %v", err)
	}

	keys := store.keys()
	if len(keys) != 2 {
		t.Fatalf("one object per user expected, got %v", keys)
	}
}

func TestCleanupOlderKeepsGuardedKey(t *testing.T) {
	bs, store := newFakeBucket(t)
	ctx := context.Background()

	prefix := healthDataPrefix("u1")
	seed := map[string]string{
		prefix + "20250101_000000_old.csv":  "old",
		prefix + "20250601_000000_keep.csv": "keep",
	}
	for k, v := range seed {
		if err := store.write(ctx, k, strings.NewReader(v)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	if err := bs.cleanupOlder(ctx, "u1", prefix+"20250601_000000_keep.csv"); err != nil {
		t.Fatalf("cleanupOlder: %v", err)
	}

	keys := store.keys()
	if len(keys) != 1 || !strings.HasSuffix(keys[0], "_keep.csv") {
		t.Fatalf("expected only the guarded key to survive, got %v", keys)
	}
}

func TestDeleteIsBestEffort(t *testing.T) {
	bs, _ := newFakeBucket(t)
	ctx := context.Background()

	url, err := bs.UploadHealthData(ctx, strings.NewReader("x\n"), "u1", "f.csv")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !bs.Delete(ctx, url) {
		t.Fatal("delete of existing object should report gone")
	}
	// Deleting again is idempotent: the object is already gone.
	if !bs.Delete(ctx, url) {
		t.Fatal("delete of absent object should still report gone")
	}
	// A foreign URL is refused, not deleted.
	if bs.Delete(ctx, "https://evil.example.com/health-data/users/u1/health_data/f.csv") {
		t.Fatal("foreign URL must not be reported as deleted")
	}
}

func TestHealthDataPrefixIsPerUser(t *testing.T) {
	a := healthDataPrefix("alice")
	b := healthDataPrefix("bob")
	if a == b {
		t.Fatal("prefixes must differ per user")
	}
	if !strings.HasPrefix(a, "users/alice/") {
		t.Fatalf("prefix = %q", a)
	}
	if !strings.HasSuffix(a, "/") {
		t.Fatalf("prefix must end with a slash so listing cannot match other users: %q", a)
	}
}
