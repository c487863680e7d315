package command

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/connectly/connectly-client/internal/auth"
	"github.com/connectly/connectly-client/internal/token/tokentest"
)

// harness runs the CLI against a fake backend with a file store that
// survives between runs, like separate invocations of the binary.
type harness struct {
	t         *testing.T
	srv       *httptest.Server
	storePath string
}

func newHarness(t *testing.T, mux *http.ServeMux) *harness {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &harness{t: t, srv: srv, storePath: filepath.Join(t.TempDir(), "auth.json")}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	app := App()
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(*cli.Context, error) {}

	full := append([]string{"connectly", "--base-url", h.srv.URL, "--store", "file", "--store-path", h.storePath}, args...)
	err := app.Run(full)
	return out.String(), err
}

func TestAppStructure(t *testing.T) {
	app := App()
	names := map[string]bool{}
	for _, c := range app.Commands {
		names[c.Name] = true
	}
	for _, want := range []string{"login", "google-login", "logout", "status", "call", "users", "feed", "posts", "post", "comments", "comment", "follow", "unfollow"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestLoginStatusLogout(t *testing.T) {
	access := tokentest.MintFresh(t, 12)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /posts/users/login/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["identifier"] != "ada" || body["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access": access, "refresh": "r1"})
	})
	h := newHarness(t, mux)

	out, err := h.run("login", "-u", "ada", "-p", "pw")
	require.NoError(t, err)
	var st statusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.Authenticated)
	assert.Equal(t, "12", st.SubjectID)
	assert.True(t, st.CanRefresh)
	assert.NotNil(t, st.ExpiresAt)

	out, err = h.run("status")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.Authenticated)
	assert.False(t, st.Expired)

	_, err = h.run("logout")
	require.NoError(t, err)

	out, err = h.run("status")
	require.NoError(t, err)
	st = statusOutput{}
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.False(t, st.Authenticated)
}

func TestLoginRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /posts/users/login/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	h := newHarness(t, mux)

	_, err := h.run("login", "-u", "ada", "-p", "bad")
	require.Error(t, err)
}

func TestCallRefreshesAndReplays(t *testing.T) {
	expired := "expired-access"
	fresh := tokentest.MintFresh(t, 3)
	refreshes := 0

	mux := http.NewServeMux()
	mux.HandleFunc("POST /posts/users/login/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access": expired, "refresh": "r1"})
	})
	mux.HandleFunc("POST "+auth.DefaultRefreshPath, func(w http.ResponseWriter, r *http.Request) {
		refreshes++
		json.NewEncoder(w).Encode(auth.TokenRefreshResponse{Access: fresh})
	})
	mux.HandleFunc("POST /posts/posts/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+fresh {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write(body)
	})
	h := newHarness(t, mux)

	_, err := h.run("login", "-u", "ada", "-p", "pw")
	require.NoError(t, err)

	out, err := h.run("call", "--data", `{"content":"hi"}`, "post", "/posts/posts/")
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"hi"}`, out)
	assert.Equal(t, 1, refreshes)

	out, err = h.run("status")
	require.NoError(t, err)
	var st statusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, "3", st.SubjectID)
}

func TestCallSessionExpired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /posts/users/login/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access": "a1", "refresh": "revoked"})
	})
	mux.HandleFunc("POST "+auth.DefaultRefreshPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("GET /posts/posts/feed/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	h := newHarness(t, mux)

	_, err := h.run("login", "-u", "ada", "-p", "pw")
	require.NoError(t, err)

	_, err = h.run("feed")
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 2, exit.ExitCode())

	out, err := h.run("status")
	require.NoError(t, err)
	var st statusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.False(t, st.Authenticated, "failed refresh clears the session")
}

func TestCallArguments(t *testing.T) {
	h := newHarness(t, http.NewServeMux())

	_, err := h.run("call", "GET")
	require.Error(t, err)

	_, err = h.run("call", "--data", "{not json", "POST", "/x/")
	require.Error(t, err)

	_, err = h.run("call", "--data", "{}", "--form", "a=b", "POST", "/x/")
	require.Error(t, err)

	_, err = h.run("follow", "abc")
	require.Error(t, err)
}

func TestUsersAndFollow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /posts/users/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"results":[{"id":1,"username":"ada","email":"ada@example.com","created_at":"2024-11-02T10:15:30Z"}]}`)
	})
	mux.HandleFunc("POST /follows/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id": 4, "message": "Followed"}`)
	})
	h := newHarness(t, mux)

	out, err := h.run("users", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"username": "ada"`)

	_, err = h.run("users", "2")
	require.Error(t, err)

	out, err = h.run("follow", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": 4`)
}
