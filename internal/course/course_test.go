package course

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"backend-runshare/internal/gpx"
	"backend-runshare/internal/shared/geo"
	"backend-runshare/internal/upstream"

	"github.com/stretchr/testify/require"
)

// fakeCourseServer records what the course server receives.
type fakeCourseServer struct {
	mu        sync.Mutex
	gpx       []byte
	lastQuery map[string]string
	uploads   []upload
	deleted   []string
}

type upload struct {
	UserID   string
	FileName string
	Data     []byte
}

func (f *fakeCourseServer) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/courses", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			f.lastQuery = map[string]string{}
			for k := range r.URL.Query() {
				f.lastQuery[k] = r.URL.Query().Get(k)
			}
			_ = json.NewEncoder(w).Encode(Page{
				Content: []Course{{
					GpxID: 1, Name: "Han River", Level: LevelBeginner,
					Distance: 5.24, Altitude: 12, DistanceFromUser: 1.26,
					StartLat: 37.52, StartLon: 126.93,
				}},
				TotalPages: 3,
			})
		case http.MethodPost:
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			file, header, err := r.FormFile("file")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(file)
			f.uploads = append(f.uploads, upload{UserID: r.FormValue("userId"), FileName: header.Filename, Data: data})
			_ = json.NewEncoder(w).Encode(Course{GpxID: 9, Name: header.Filename})
		}
	})
	mux.HandleFunc("/courses/1/file", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.URL.Query().Get("userId") == "" {
			http.Error(w, "userId required", http.StatusBadRequest)
			return
		}
		_, _ = w.Write(f.gpx)
	})
	mux.HandleFunc("/courses/1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.deleted = append(f.deleted, r.URL.Query().Get("userId"))
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func sampleTrack() geo.Track {
	return geo.Track{
		{Lat: 37.5665, Lng: 126.9780, Elevation: geo.Float(20)},
		{Lat: 37.5675, Lng: 126.9780, Elevation: geo.Float(25)},
		{Lat: 37.5685, Lng: 126.9790, Elevation: geo.Float(22)},
	}
}

func sampleGPX(t *testing.T) []byte {
	t.Helper()
	data, err := gpx.Serialize(sampleTrack(), gpx.Metadata{
		Name: "Seoul loop",
		Time: time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return data
}

func newCourseClient(t *testing.T, f *fakeCourseServer) *Client {
	srv := f.start(t)
	return NewClient(upstream.New(srv.URL, time.Second))
}

func (f *fakeCourseServer) query() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery
}

func (f *fakeCourseServer) uploaded() []upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]upload(nil), f.uploads...)
}

func (f *fakeCourseServer) deletions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}
