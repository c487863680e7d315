package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/connectly/connectly-client/internal/auth"
	"github.com/connectly/connectly-client/internal/config"
	"github.com/connectly/connectly-client/internal/credentials"
	"github.com/connectly/connectly-client/internal/token/tokentest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// itemNotFound mimics `security` exiting with status 44.
type itemNotFound struct{}

func (itemNotFound) Error() string { return "exit status 44" }
func (itemNotFound) ExitCode() int { return 44 }

func testConfig(t *testing.T, baseURL, backend string) *config.Config {
	t.Helper()
	cfg, err := config.Load(
		config.WithEnvPrefix("CONNECTLY_APP_TEST_"),
		config.WithOverrides(map[string]any{
			"base_url":      baseURL,
			"store.backend": backend,
			"store.path":    filepath.Join(t.TempDir(), "auth.json"),
		}),
	)
	require.NoError(t, err)
	return cfg
}

func TestNewStoreBackends(t *testing.T) {
	mr := miniredis.RunT(t)

	for _, backend := range []string{config.BackendFile, config.BackendMemory, config.BackendKeychain, config.BackendRedis} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, config.DefaultBaseURL, backend)
			cfg.Store.Redis.Addr = mr.Addr()

			items := map[string]string{}
			run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
				switch args[0] {
				case "add-generic-password":
					items["item"] = args[len(args)-1]
				case "find-generic-password":
					if v, ok := items["item"]; ok {
						return []byte(v), nil
					}
					return nil, itemNotFound{}
				case "delete-generic-password":
					delete(items, "item")
				}
				return nil, nil
			}

			store, closer, err := NewStore(cfg, run, nil)
			require.NoError(t, err)
			if closer != nil {
				defer closer()
			}

			ctx := context.Background()
			require.NoError(t, store.Write(ctx, credentials.Pair{Access: "a", Refresh: "r"}))
			p, ok := store.Read(ctx)
			require.True(t, ok)
			assert.Equal(t, credentials.Pair{Access: "a", Refresh: "r"}, p)
		})
	}
}

func TestNewStoreUnknownBackend(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Backend: "s3"}}
	_, _, err := NewStore(cfg, nil, nil)
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestAppLoginAndRefresh(t *testing.T) {
	expired := tokentest.Mint(t, 4, time.Now().Add(-time.Minute))
	fresh := tokentest.MintFresh(t, 4)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /posts/users/login/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access": expired, "refresh": "r1"})
	})
	mux.HandleFunc("POST "+auth.DefaultRefreshPath, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(auth.TokenRefreshResponse{Access: fresh})
	})
	mux.HandleFunc("GET /posts/posts/feed/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+fresh {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `[{"id": 1, "content": "hi", "author": 4, "created_at": "2024-11-02T10:15:30Z"}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	reg := prometheus.NewRegistry()
	cfg := testConfig(t, srv.URL, config.BackendFile)
	a, err := New(context.Background(), cfg, nil, WithRegisterer(reg), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	_, err = a.API.Login(ctx, "ada", "pw")
	require.NoError(t, err)
	assert.True(t, a.Session.State(ctx).Expired(time.Now()))
	a.ReportSession(ctx)

	posts, err := a.API.Feed(ctx, 0)
	require.NoError(t, err)
	require.Len(t, posts, 1)

	s := a.Session.State(ctx)
	assert.False(t, s.Expired(time.Now()))
	assert.Equal(t, "4", s.SubjectID)

	reopened := credentials.NewFileStore(cfg.Store.Path, nil)
	assert.Equal(t, fresh, credentials.AccessToken(ctx, reopened), "refreshed token is persisted")
	assert.Equal(t, "r1", credentials.RefreshToken(ctx, reopened))
}

func TestAppSeedsFromEnvironment(t *testing.T) {
	t.Setenv(credentials.EnvAccessToken, "env-access")
	t.Setenv(credentials.EnvRefreshToken, "env-refresh")

	cfg := testConfig(t, config.DefaultBaseURL, config.BackendMemory)
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	p, ok := a.Session.Read(context.Background())
	require.True(t, ok)
	assert.Equal(t, credentials.Pair{Access: "env-access", Refresh: "env-refresh"}, p)
}

func TestAppWithStore(t *testing.T) {
	store := credentials.NewMemoryStore()
	require.NoError(t, store.Write(context.Background(), credentials.Pair{Access: "given"}))

	cfg := testConfig(t, config.DefaultBaseURL, config.BackendRedis)
	a, err := New(context.Background(), cfg, nil, WithStore(store))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "given", credentials.AccessToken(context.Background(), a.Session))
}
