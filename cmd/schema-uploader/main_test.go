package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-schema-uploader/pkg/config"
)

// fakePlatform is a scripted stand-in for the remote API, recording how
// the tool exercised each endpoint
type fakePlatform struct {
	mu sync.Mutex

	acceptLogin bool
	kinds       []string
	failDelete  map[string]bool

	loginHits  int
	listHits   int
	uploadHits int
	logoutHits int
	deleted    []string
}

func (fp *fakePlatform) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fp.mu.Lock()
		defer fp.mu.Unlock()

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v2/login":
			fp.loginHits++
			if !fp.acceptLogin {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"errors":[{"message":"invalid credentials"}]}`))
				return
			}
			w.Write([]byte(`{"data":{"session_token":"e2e-token"}}`))

		case r.Method == http.MethodGet && r.URL.Path == "/api/v2/custom-nodes":
			fp.listHits++
			body := `{"data":[`
			for i, kind := range fp.kinds {
				if i > 0 {
					body += ","
				}
				body += `{"kindName":"` + kind + `"}`
			}
			body += `]}`
			w.Write([]byte(body))

		case r.Method == http.MethodDelete && len(r.URL.Path) > len("/api/v2/custom-nodes/"):
			kind := r.URL.Path[len("/api/v2/custom-nodes/"):]
			if fp.failDelete[kind] {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fp.deleted = append(fp.deleted, kind)

		case r.Method == http.MethodPost && r.URL.Path == "/api/v2/custom-nodes":
			fp.uploadHits++
			w.WriteHeader(http.StatusCreated)

		case r.Method == http.MethodPost && r.URL.Path == "/api/v2/logout":
			fp.logoutHits++

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{config.EnvServer, config.EnvUsername, config.EnvPassword, config.EnvModel} {
		t.Setenv(key, "")
	}
}

func writeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	content := `{"custom_types":{"VMHost":{"icon":{"name":"server"}}}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunEndToEndSuccess(t *testing.T) {
	clearEnv(t)
	platform := &fakePlatform{acceptLogin: true}
	server := httptest.NewServer(platform.handler())
	defer server.Close()

	var stderr bytes.Buffer
	code := run([]string{
		"-s", server.URL,
		"-u", "admin",
		"-p", "hunter2",
		"-m", writeModel(t),
	}, &stderr)

	assert.Equal(t, exitOK, code, "log output:\n%s", stderr.String())
	assert.Equal(t, 1, platform.loginHits)
	assert.Equal(t, 1, platform.uploadHits)
	assert.Equal(t, 1, platform.logoutHits, "logout must be called exactly once")
	assert.Equal(t, 0, platform.listHits, "no reset requested")
}

func TestRunEndToEndInvalidCredentials(t *testing.T) {
	clearEnv(t)
	platform := &fakePlatform{acceptLogin: false}
	server := httptest.NewServer(platform.handler())
	defer server.Close()

	var stderr bytes.Buffer
	code := run([]string{
		"-s", server.URL,
		"-u", "admin",
		"-p", "wrong",
		"-m", writeModel(t),
	}, &stderr)

	assert.Equal(t, exitFailure, code)
	assert.Equal(t, 0, platform.uploadHits, "upload must never be attempted")
	// Without a token the logout is a local no-op, so the server sees none
	assert.Equal(t, 0, platform.logoutHits)
	assert.Contains(t, stderr.String(), "Failed to authenticate")
}

func TestRunEndToEndResetPartialFailure(t *testing.T) {
	clearEnv(t)
	platform := &fakePlatform{
		acceptLogin: true,
		kinds:       []string{"VMHost", "VMCluster", "Datastore"},
		failDelete:  map[string]bool{"VMCluster": true},
	}
	server := httptest.NewServer(platform.handler())
	defer server.Close()

	var stderr bytes.Buffer
	code := run([]string{
		"-s", server.URL,
		"-u", "admin",
		"-p", "hunter2",
		"-m", writeModel(t),
		"--reset-custom-nodes",
	}, &stderr)

	assert.Equal(t, exitFailure, code)
	assert.ElementsMatch(t, []string{"VMHost", "Datastore"}, platform.deleted,
		"every deletion must be attempted despite the failure")
	assert.Equal(t, 0, platform.uploadHits, "upload must not run after a failed reset")
	assert.Equal(t, 1, platform.logoutHits, "logout still runs")
}

func TestRunEndToEndResetThenUpload(t *testing.T) {
	clearEnv(t)
	platform := &fakePlatform{
		acceptLogin: true,
		kinds:       []string{"VMHost"},
	}
	server := httptest.NewServer(platform.handler())
	defer server.Close()

	var stderr bytes.Buffer
	code := run([]string{
		"-s", server.URL,
		"-u", "admin",
		"-p", "hunter2",
		"-m", writeModel(t),
		"--reset-custom-nodes",
		"-v",
	}, &stderr)

	assert.Equal(t, exitOK, code, "log output:\n%s", stderr.String())
	assert.ElementsMatch(t, []string{"VMHost"}, platform.deleted)
	assert.Equal(t, 1, platform.uploadHits)
	assert.Equal(t, 1, platform.logoutHits)
}

func TestRunUsageErrors(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no arguments", nil},
		{"missing password", []string{"-s", "http://x.example.com", "-u", "admin"}},
		{"unknown flag", []string{"--no-such-flag"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			code := run(tt.args, &stderr)
			assert.Equal(t, exitUsage, code)
			assert.NotEmpty(t, stderr.String())
		})
	}
}

func TestRunMissingModelFile(t *testing.T) {
	clearEnv(t)
	platform := &fakePlatform{acceptLogin: true}
	server := httptest.NewServer(platform.handler())
	defer server.Close()

	var stderr bytes.Buffer
	code := run([]string{
		"-s", server.URL,
		"-u", "admin",
		"-p", "hunter2",
		"-m", filepath.Join(t.TempDir(), "missing.json"),
	}, &stderr)

	assert.Equal(t, exitFailure, code)
	assert.Equal(t, 0, platform.uploadHits)
	assert.Equal(t, 1, platform.logoutHits)
}
