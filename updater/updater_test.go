package updater_test

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/image_updater/document"
	"github.com/byte4ever/image_updater/plan"
	"github.com/byte4ever/image_updater/registry"
	"github.com/byte4ever/image_updater/updater"
)

const testHost = "registry.test"

func digestOf(c string) string {
	return "sha256:" + strings.Repeat(c, 64)
}

// fakeRegistry serves tags/list and manifests for any
// repository from in-memory tables.
type fakeRegistry struct {
	mu      sync.Mutex
	tags    map[string][]string
	digests map[string]string // "<repo>:<tag>" -> digest
	auth    string
	calls   []string
}

func (f *fakeRegistry) setDigest(repo, tag, dgst string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.digests[repo+":"+tag] = dgst
}

func (f *fakeRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, r.URL.Path)

	if f.auth != "" && r.Header.Get("Authorization") != f.auth {
		w.WriteHeader(http.StatusUnauthorized)

		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v2/")

	if repo, ok := strings.CutSuffix(rest, "/tags/list"); ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(
			`{"tags":["` + strings.Join(f.tags[repo], `","`) + `"]}`,
		))

		return
	}

	idx := strings.LastIndex(rest, "/manifests/")
	if idx < 0 {
		w.WriteHeader(http.StatusNotFound)

		return
	}

	repo, tag := rest[:idx], rest[idx+len("/manifests/"):]

	dgst, ok := f.digests[repo+":"+tag]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[{"code":"MANIFEST_UNKNOWN"}]}`))

		return
	}

	w.Header().Set("Content-Type", registry.MediaTypeDockerManifest)
	_, _ = w.Write([]byte(
		`{"schemaVersion":2,"config":{"mediaType":"application/vnd.docker.container.image.v1+json","size":10,"digest":"` +
			dgst + `"}}`,
	))
}

type fixture struct {
	dir      string
	registry *fakeRegistry
	updater  *updater.Updater
}

func newFixture(t *testing.T, strategy registry.Strategy) *fixture {
	t.Helper()

	fr := &fakeRegistry{
		tags: map[string][]string{
			"org/app":    {"1.2.0", "1.3.0", "1.2.5", "2.0.0"},
			"org/worker": {"v1", "v2", "latest"},
		},
		digests: map[string]string{
			"org/app:1.2.0":     digestOf("1"),
			"org/app:1.2.5":     digestOf("2"),
			"org/app:1.3.0":     digestOf("3"),
			"org/app:2.0.0":     digestOf("4"),
			"org/worker:latest": digestOf("a"),
			"org/worker:v2":     digestOf("b"),
		},
	}

	ts := httptest.NewServer(fr)
	t.Cleanup(ts.Close)

	if strategy == nil {
		strategy = registry.NoAuth
	}

	auth := registry.NewAuthenticator(registry.Registration{
		Pattern:  testHost,
		APIBase:  ts.URL,
		Strategy: strategy,
	})

	return &fixture{
		dir:      t.TempDir(),
		registry: fr,
		updater: &updater.Updater{
			Auth:     auth,
			Registry: registry.NewClient(ts.Client()),
		},
	}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func (f *fixture) plan(groups ...plan.Group) *plan.Plan {
	return &plan.Plan{
		ImageKey:  "image",
		SemverKey: "tag",
		DigestKey: "digest",
		Groups:    groups,
	}
}

func readString(t *testing.T, path, keyPath string) string {
	t.Helper()

	tree, err := document.ReadFile(path)
	require.NoError(t, err)

	got, _ := document.GetString(tree, keyPath)

	return got
}

func TestUpdater_Run_updates_then_is_idempotent(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)

	base := fx.write(t, "base.yaml", `
app:
  image: registry.test/org/app
  tag: "~1.2.0"
replicas: 2
`)
	override := fx.write(t, "override.yaml", `
app:
  tag: ^1.2.0
`)
	out := fx.write(t, "out.yaml", `
global:
  env: prod
app:
  tag: 1.2.0
  digest: `+digestOf("1")+`
`)

	p := fx.plan(plan.Group{
		SourceFiles:  []string{base, override},
		OutputFile:   out,
		ImageTagKeys: []string{"app"},
	})

	res, err := fx.updater.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, "Update app to 1.3.0", res.CommitMessage)
	assert.Equal(
		t,
		"app: image version updated from org/app:1.2.0 to org/app:1.3.0",
		res.Report,
	)
	assert.True(t, res.Changed())
	assert.Equal(t, []string{out}, res.ChangedFiles)
	require.Len(t, res.Records, 1)
	assert.Equal(t, digestOf("3"), res.Records[0].NewDigest)

	assert.Equal(t, "1.3.0", readString(t, out, "app.tag"))
	assert.Equal(t, digestOf("3"), readString(t, out, "app.digest"))
	assert.Equal(t, "prod", readString(t, out, "global.env"))

	res, err = fx.updater.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Empty(t, res.CommitMessage)
	assert.False(t, res.Changed())
	assert.Empty(t, res.ChangedFiles)
	assert.Equal(
		t,
		"app: no change in image version org/app:1.3.0",
		res.Report,
	)
}

func TestUpdater_Run_digest_only_change(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)

	src := fx.write(t, "src.yaml", `
app:
  image: registry.test/org/app
  tag: ^1.2.0
`)
	out := fx.write(t, "out.yaml", `
app:
  tag: 1.3.0
  digest: `+digestOf("3")+`
`)

	fx.registry.setDigest("org/app", "1.3.0", digestOf("9"))

	res, err := fx.updater.Run(context.Background(), fx.plan(plan.Group{
		SourceFiles:  []string{src},
		OutputFile:   out,
		ImageTagKeys: []string{"app"},
	}))
	require.NoError(t, err)

	require.Len(t, res.Records, 1)
	assert.Equal(t, "1.3.0", res.Records[0].OldTag)
	assert.Equal(t, "1.3.0", res.Records[0].NewTag)
	assert.Equal(t, digestOf("3"), res.Records[0].OldDigest)
	assert.Equal(t, "Update app to 1.3.0", res.CommitMessage)
	assert.Equal(t, digestOf("9"), readString(t, out, "app.digest"))
}

func TestUpdater_Run_literal_constraint_falls_back(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)

	src := fx.write(t, "src.yaml", `
worker:
  image: registry.test/org/worker
  tag: latest
`)
	out := fx.write(t, "out.yaml", "worker: {}\n")

	res, err := fx.updater.Run(context.Background(), fx.plan(plan.Group{
		SourceFiles:  []string{src},
		OutputFile:   out,
		ImageTagKeys: []string{"worker"},
	}))
	require.NoError(t, err)

	assert.Equal(t, "Update worker to latest", res.CommitMessage)
	assert.Equal(t, "latest", readString(t, out, "worker.tag"))
	assert.Equal(t, digestOf("a"), readString(t, out, "worker.digest"))
}

func TestUpdater_Run_processing_order(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)

	src := fx.write(t, "src.yaml", `
services:
  web:
    image: registry.test/org/app
    tag: ^1.2.0
  worker:
    image: registry.test/org/worker
    tag: v2
`)
	outA := fx.write(t, "a.yaml", "{}\n")
	outB := fx.write(t, "b.yaml", "{}\n")

	res, err := fx.updater.Run(context.Background(), fx.plan(
		plan.Group{
			SourceFiles:  []string{src},
			OutputFile:   outB,
			ImageTagKeys: []string{"services.worker", "services.web"},
		},
		plan.Group{
			SourceFiles:  []string{src},
			OutputFile:   outA,
			ImageTagKeys: []string{"services.web"},
		},
	))
	require.NoError(t, err)

	assert.Equal(
		t,
		"Update services.worker to v2, Update services.web to 1.3.0, "+
			"Update services.web to 1.3.0",
		res.CommitMessage,
	)
	assert.Equal(t, []string{outB, outA}, res.ChangedFiles)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, "services.worker", res.Entries[0].KeyPath)
	assert.Equal(t, "registry.test/org/worker", res.Entries[0].Image)
	assert.Equal(t, "1.3.0", readString(t, outA, "services.web.tag"))
}

func TestUpdater_Run_plan_templates(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)

	src := fx.write(t, "src.yaml", `
app:
  image: registry.test/org/app
  tag: 1.2.5
`)
	out := fx.write(t, "out.yaml", "{}\n")

	p := fx.plan(plan.Group{
		SourceFiles:  []string{src},
		OutputFile:   out,
		ImageTagKeys: []string{"app"},
	})
	p.CommitTemplate = "bump {image} to {tag}"

	res, err := fx.updater.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, "bump registry.test/org/app to 1.2.5", res.CommitMessage)
}

func TestUpdater_Run_exchanged_token_is_used(t *testing.T) {
	t.Parallel()

	wantBasic := "Basic " + base64.StdEncoding.EncodeToString(
		[]byte("user:pass"),
	)

	var (
		mu        sync.Mutex
		exchanges int
	)

	tokenSrv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			exchanges++
			mu.Unlock()

			if r.Header.Get("Authorization") != wantBasic {
				w.WriteHeader(http.StatusUnauthorized)

				return
			}

			_, _ = w.Write([]byte(`{"token":"jwt"}`))
		},
	))
	t.Cleanup(tokenSrv.Close)

	ex, err := registry.NewTokenExchange(registry.ExchangeConfig{
		Realm:      tokenSrv.URL,
		Service:    "container_registry",
		Username:   "user",
		Password:   "pass",
		HTTPClient: tokenSrv.Client(),
	})
	require.NoError(t, err)

	fx := newFixture(t, ex)
	fx.registry.auth = "Bearer jwt"

	src := fx.write(t, "src.yaml", `
app:
  image: registry.test/org/app
  tag: ^1.0.0
`)
	out := fx.write(t, "out.yaml", "{}\n")

	res, err := fx.updater.Run(context.Background(), fx.plan(plan.Group{
		SourceFiles:  []string{src},
		OutputFile:   out,
		ImageTagKeys: []string{"app"},
	}))
	require.NoError(t, err)

	assert.Equal(t, "Update app to 1.3.0", res.CommitMessage)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, exchanges)
}

func TestUpdater_Run_unsupported_registry(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)

	src := fx.write(t, "src.yaml", `
app:
  image: quay.io/org/app
  tag: ^1.0.0
`)
	const outContent = "app:\n  tag: 0.1.0\n"
	out := fx.write(t, "out.yaml", outContent)

	_, err := fx.updater.Run(context.Background(), fx.plan(plan.Group{
		SourceFiles:  []string{src},
		OutputFile:   out,
		ImageTagKeys: []string{"app"},
	}))

	var unsupported *registry.UnsupportedRegistryError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "quay.io", unsupported.Host)
	assert.Contains(t, err.Error(), "versionUpdates[0]")
	assert.Contains(t, err.Error(), "app")

	raw, readErr := os.ReadFile(out)
	require.NoError(t, readErr)
	assert.Equal(t, outContent, string(raw))

	fx.registry.mu.Lock()
	defer fx.registry.mu.Unlock()
	assert.Empty(t, fx.registry.calls)
}

func TestUpdater_Run_short_image_name_is_unsupported(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)

	src := fx.write(t, "src.yaml", `
app:
  image: myorg/app
  tag: ^1.0.0
`)
	out := fx.write(t, "out.yaml", "{}\n")

	_, err := fx.updater.Run(context.Background(), fx.plan(plan.Group{
		SourceFiles:  []string{src},
		OutputFile:   out,
		ImageTagKeys: []string{"app"},
	}))

	var unsupported *registry.UnsupportedRegistryError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "myorg", unsupported.Host)

	fx.registry.mu.Lock()
	defer fx.registry.mu.Unlock()
	assert.Empty(t, fx.registry.calls)
}

func TestUpdater_Run_aborts_without_rollback(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)

	src := fx.write(t, "src.yaml", `
app:
  image: registry.test/org/app
  tag: ^1.2.0
broken:
  tag: ^1.0.0
later:
  image: registry.test/org/worker
  tag: v2
`)
	out := fx.write(t, "out.yaml", "{}\n")

	_, err := fx.updater.Run(context.Background(), fx.plan(plan.Group{
		SourceFiles:  []string{src},
		OutputFile:   out,
		ImageTagKeys: []string{"app", "broken", "later"},
	}))

	var cfgErr *document.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "broken.image")

	assert.Equal(t, "1.3.0", readString(t, out, "app.tag"))
	assert.Empty(t, readString(t, out, "later.tag"))
}

func TestUpdater_Run_invalid_values(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
	}{
		{
			name:   "missing constraint",
			source: "app:\n  image: registry.test/org/app\n",
		},
		{
			name:   "image is a mapping",
			source: "app:\n  image:\n    name: x\n  tag: ^1.0.0\n",
		},
		{
			name:   "constraint is a list",
			source: "app:\n  image: registry.test/org/app\n  tag: [1, 2]\n",
		},
		{
			name:   "malformed image reference",
			source: "app:\n  image: UPPER/Case\n  tag: ^1.0.0\n",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fx := newFixture(t, nil)
			src := fx.write(t, "src.yaml", tt.source)
			out := fx.write(t, "out.yaml", "{}\n")

			_, err := fx.updater.Run(context.Background(), fx.plan(plan.Group{
				SourceFiles:  []string{src},
				OutputFile:   out,
				ImageTagKeys: []string{"app"},
			}))

			var cfgErr *document.ConfigError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestUpdater_Run_missing_manifest(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)

	src := fx.write(t, "src.yaml", `
app:
  image: registry.test/org/app
  tag: 9.9.9
`)
	out := fx.write(t, "out.yaml", "{}\n")

	_, err := fx.updater.Run(context.Background(), fx.plan(plan.Group{
		SourceFiles:  []string{src},
		OutputFile:   out,
		ImageTagKeys: []string{"app"},
	}))

	var reqErr *registry.RegistryRequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusNotFound, reqErr.Status)
}

func TestUpdater_Run_missing_source_file(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)

	_, err := fx.updater.Run(context.Background(), fx.plan(plan.Group{
		SourceFiles:  []string{filepath.Join(fx.dir, "nope.yaml")},
		OutputFile:   filepath.Join(fx.dir, "out.yaml"),
		ImageTagKeys: []string{"app"},
	}))

	var ioErr *document.IOError
	require.ErrorAs(t, err, &ioErr)
}

func TestUpdater_Run_canceled_context(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, nil)

	src := fx.write(t, "src.yaml", `
app:
  image: registry.test/org/app
  tag: ^1.2.0
`)
	out := fx.write(t, "out.yaml", "{}\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.updater.Run(ctx, fx.plan(plan.Group{
		SourceFiles:  []string{src},
		OutputFile:   out,
		ImageTagKeys: []string{"app"},
	}))

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
