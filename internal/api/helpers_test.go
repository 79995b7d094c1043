package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/image-annotator/backend/internal/config"
	"github.com/image-annotator/backend/internal/geometry"
	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/palette"
	"github.com/image-annotator/backend/internal/project"
	"github.com/image-annotator/backend/internal/scanner"
	"github.com/image-annotator/backend/internal/storage"
)

const testImage = "/pics/a.png"

// testEnv wires real handlers over a session manager, scanner, and
// local store rooted in a temp directory.
type testEnv struct {
	e     *echo.Echo
	h     *Handlers
	mgr   *project.Manager
	store storage.Store
	cfg   *config.AppConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tmp := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Storage.DataDirectory = tmp
	cfg.Storage.ProjectsDirectory = filepath.Join(tmp, "projects")
	cfg.Storage.ExportsDirectory = filepath.Join(tmp, "exports")
	cfg.Storage.ImportsDirectory = filepath.Join(tmp, "imports")
	cfg.Storage.PalettesDirectory = filepath.Join(tmp, "palettes")
	cfg.Storage.CatalogDirectory = filepath.Join(tmp, "catalog")
	cfg.Storage.TempDirectory = filepath.Join(tmp, "tmp")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	mgr := project.NewManager(cfg.Storage.CatalogDirectory, 0, project.Settings{})
	t.Cleanup(func() {
		for _, info := range mgr.List() {
			mgr.Close(info.ID)
		}
	})

	store, err := storage.NewLocalStore(cfg.Storage.ExportsDirectory)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if err := palette.WriteDefault(cfg.Storage.PalettesDirectory); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	h := NewHandlers(&Dependencies{
		SessionMgr:  mgr,
		ScanMgr:     scanner.NewManager(mgr),
		Store:       store,
		PalettesDir: cfg.Storage.PalettesDirectory,
		Config:      cfg,
		Version:     "test",
	})
	return &testEnv{e: echo.New(), h: h, mgr: mgr, store: store, cfg: cfg}
}

// request builds a context with an optional JSON body. Path params are
// set by the caller via c.SetParamNames/SetParamValues.
func (env *testEnv) request(t *testing.T, method, target string, body any) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return env.e.NewContext(req, rec), rec
}

// sessionWithImage creates a session holding one registered 640x480
// image so annotation handlers have something to work on.
func (env *testEnv) sessionWithImage(t *testing.T, name string) *project.Session {
	t.Helper()
	sess, err := env.mgr.Create(name)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	err = env.mgr.AddImage(sess.ID(), scanner.FileMeta{Path: testImage, Name: "a.png", Width: 640, Height: 480})
	if err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	return sess
}

func rectGeometry(x1, y1, x2, y2 float64) models.Geometry {
	return models.RectGeometry(geometry.Point{X: x1, Y: y1}, geometry.Point{X: x2, Y: y2})
}

func polygonGeometry(pts ...geometry.Point) models.Geometry {
	return models.PolygonGeometry(pts)
}

// decodeJSON unmarshals a recorded response body.
func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal response: %v\nbody: %s", err, rec.Body.String())
	}
}

// wantAPIError asserts that a handler error carries the expected
// status and code.
func wantAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		apiErr = classify(err)
	}
	if apiErr.Status != status {
		t.Errorf("expected status %d, got %d (%s)", status, apiErr.Status, apiErr.Message)
	}
	if apiErr.Code != code {
		t.Errorf("expected code %s, got %s (%s)", code, apiErr.Code, apiErr.Message)
	}
}
