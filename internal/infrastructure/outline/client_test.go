package outline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/keygate/internal/application/provisioning"
	"github.com/orris-inc/keygate/internal/shared/config"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

// fakeOutline mimics the access-key endpoints of the management API.
type fakeOutline struct {
	mu   sync.Mutex
	keys map[string]string
	next int
	down bool
}

func (f *fakeOutline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/secret/access-keys":
		f.next++
		id := string(rune('0' + f.next))
		f.keys[id] = ""
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": id, "name": "", "accessUrl": "ss://key-" + id + "@vpn.example:443",
		})
	case r.Method == http.MethodPut && len(r.URL.Path) > len("/secret/access-keys/"):
		id := r.URL.Path[len("/secret/access-keys/") : len(r.URL.Path)-len("/name")]
		if _, ok := f.keys[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.keys[id] = body["name"]
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodDelete:
		id := r.URL.Path[len("/secret/access-keys/"):]
		if _, ok := f.keys[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.keys, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeOutline) name(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[id]
}

func pinFor(srv *httptest.Server) string {
	sum := sha256.Sum256(srv.Certificate().Raw)
	return hex.EncodeToString(sum[:])
}

func TestClient_KeyLifecycle(t *testing.T) {
	fake := &fakeOutline{keys: map[string]string{}}
	srv := httptest.NewTLSServer(fake)
	defer srv.Close()

	c := NewClient(config.OutlineServerConfig{Region: "germany", APIURL: srv.URL + "/secret", CertSHA256: pinFor(srv)}, time.Second, logger.NewNop())
	ctx := context.Background()

	cred, err := c.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", cred.ID)
	assert.Equal(t, "ss://key-1@vpn.example:443", cred.AccessURI)

	require.NoError(t, c.Rename(ctx, cred.ID, "alice_germany_5"))
	assert.Equal(t, "alice_germany_5", fake.name("1"))

	require.NoError(t, c.Delete(ctx, cred.ID))
	err = c.Delete(ctx, cred.ID)
	assert.True(t, errors.Is(err, provisioning.ErrCredentialNotFound))
}

func TestClient_Unavailable(t *testing.T) {
	fake := &fakeOutline{keys: map[string]string{}, down: true}
	srv := httptest.NewTLSServer(fake)
	defer srv.Close()

	c := NewClient(config.OutlineServerConfig{Region: "amsterdam", APIURL: srv.URL + "/secret", CertSHA256: pinFor(srv)}, time.Second, logger.NewNop())
	_, err := c.Create(context.Background())
	assert.True(t, errors.Is(err, provisioning.ErrRegionUnavailable))

	srv.Close()
	_, err = c.Create(context.Background())
	assert.True(t, errors.Is(err, provisioning.ErrRegionUnavailable))
}

func TestClient_RejectsWrongCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(&fakeOutline{keys: map[string]string{}})
	defer srv.Close()

	wrong := "00" + pinFor(srv)[2:]
	c := NewClient(config.OutlineServerConfig{Region: "germany", APIURL: srv.URL + "/secret", CertSHA256: wrong}, time.Second, logger.NewNop())
	_, err := c.Create(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, provisioning.ErrRegionUnavailable))
	assert.ErrorContains(t, err, "pinned fingerprint")
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(config.OutlineConfig{Servers: []config.OutlineServerConfig{
		{Region: "germany", APIURL: "https://de.example/x"},
		{Region: "amsterdam", APIURL: "https://nl.example/y"},
	}}, logger.NewNop())
	require.NoError(t, err)
	_, ok := reg.Provisioner("germany")
	assert.True(t, ok)
	_, ok = reg.Provisioner("france")
	assert.False(t, ok)

	_, err = NewRegistry(config.OutlineConfig{Servers: []config.OutlineServerConfig{
		{Region: "germany", APIURL: "https://a.example"},
		{Region: "germany", APIURL: "https://b.example"},
	}}, logger.NewNop())
	assert.Error(t, err)
}
