package course

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"backend-runshare/internal/track"

	"github.com/gofiber/fiber/v2"
)

func newCourseApp(t *testing.T, f *fakeCourseServer) *fiber.App {
	app := fiber.New()
	svc := NewService(newCourseClient(t, f), NewMemoryDraftStore(), track.DefaultPaceModel(), 0)
	RegisterRoutes(app.Group("/courses"), svc, func(c *fiber.Ctx) error {
		c.Locals("user_id", "42")
		c.Locals("token", "tok")
		return c.Next()
	})
	return app
}

func TestCourseHandlersList(t *testing.T) {
	f := &fakeCourseServer{}
	app := newCourseApp(t, f)

	req := httptest.NewRequest(http.MethodGet, "/courses?sort=name&page=2&lat=35.1&lng=129.0", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list status: %v", err)
	}
	var res ListResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Page != 2 || res.Sort != "name" || len(res.Content) != 1 {
		t.Fatalf("unexpected list %+v", res)
	}
	if f.query()["page"] != "2" || f.query()["lng"] != "129" {
		t.Fatalf("unexpected upstream query %v", f.query())
	}

	req = httptest.NewRequest(http.MethodGet, "/courses?lat=north", nil)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for lat")
	}

	req = httptest.NewRequest(http.MethodGet, "/courses?sort=rating", nil)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for sort")
	}
}

func TestCourseHandlersDetail(t *testing.T) {
	f := &fakeCourseServer{gpx: sampleGPX(t)}
	app := newCourseApp(t, f)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/courses/1", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("detail status: %v", err)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/courses/1/file", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("file status: %v", err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/gpx+xml" {
		t.Fatalf("unexpected content type %q", ct)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/courses/2", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", resp.StatusCode)
	}

	f.mu.Lock()
	f.gpx = []byte(`<gpx><trk><trkseg></trkseg></trk></gpx>`)
	f.mu.Unlock()
	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/courses/1", nil))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected unprocessable for empty gpx, got %d", resp.StatusCode)
	}
}

func TestCourseHandlersUploadAndDelete(t *testing.T) {
	f := &fakeCourseServer{}
	app := newCourseApp(t, f)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, _ := w.CreateFormFile("file", "loop.gpx")
	_, _ = part.Write(sampleGPX(t))
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/courses", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status: %v", err)
	}
	if len(f.uploaded()) != 1 || f.uploaded()[0].UserID != "42" {
		t.Fatalf("unexpected uploads %+v", f.uploaded())
	}

	req = httptest.NewRequest(http.MethodPost, "/courses", nil)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request without file")
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/courses/1", nil))
	if err != nil || resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status: %v", err)
	}
}

func TestCourseHandlersDrafts(t *testing.T) {
	f := &fakeCourseServer{}
	app := newCourseApp(t, f)

	post := func(path, payload string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(payload)))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("post %s: %v", path, err)
		}
		return resp
	}

	if resp := post("/courses/drafts/current/publish", ""); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict for empty draft, got %d", resp.StatusCode)
	}
	if resp := post("/courses/drafts/current/points", `{"lat":91,"lng":0}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for invalid point, got %d", resp.StatusCode)
	}
	for _, p := range []string{`{"lat":37.5665,"lng":126.978}`, `{"lat":37.5675,"lng":126.978}`, `{"lat":37.5685,"lng":126.979}`} {
		if resp := post("/courses/drafts/current/points", p); resp.StatusCode != http.StatusCreated {
			t.Fatalf("add point status %d", resp.StatusCode)
		}
	}

	resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/courses/drafts/current/points/last", nil))
	var d Draft
	_ = json.NewDecoder(resp.Body).Decode(&d)
	if resp.StatusCode != http.StatusOK || d.Stats.PointCount != 2 {
		t.Fatalf("undo: status %d points %d", resp.StatusCode, d.Stats.PointCount)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/courses/drafts/current", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("draft status %d", resp.StatusCode)
	}

	if resp := post("/courses/drafts/current/publish", `{"name":"Lunch"}`); resp.StatusCode != http.StatusCreated {
		t.Fatalf("publish status %d", resp.StatusCode)
	}
	if len(f.uploaded()) != 1 || f.uploaded()[0].FileName != "Lunch.gpx" {
		t.Fatalf("unexpected uploads %+v", f.uploaded())
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodDelete, "/courses/drafts/current", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear status %d", resp.StatusCode)
	}
}
