package storage

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dharsanguruparan/filevault/internal/signing"
)

// Object is a stored blob with its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// MemoryStore keeps objects in a map guarded by an RWMutex. Presigned URLs
// point at BaseURL + "/blobs/" + key and carry an HMAC signature.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	signer  *signing.Signer
	baseURL string
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore(signer *signing.Signer, baseURL string) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]Object),
		signer:  signer,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (m *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{Data: buf, ContentType: contentType}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	return obj.Data, nil
}

// Open returns the object under key along with its content type.
func (m *MemoryStore) Open(ctx context.Context, key string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return Object{}, ErrNotFound
	}
	buf := make([]byte, len(obj.Data))
	copy(buf, obj.Data)
	return Object{Data: buf, ContentType: obj.ContentType}, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	q := m.signer.Query(key, ttl)
	return m.baseURL + "/blobs/" + escapeKey(key) + "?" + q.Encode(), nil
}

// Verify reports whether a /blobs request for key carries a valid signature.
func (m *MemoryStore) Verify(key string, q url.Values) bool {
	return m.signer.Validate(key, q.Get(signing.ParamExpires), q.Get(signing.ParamSignature))
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
