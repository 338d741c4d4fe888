package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rollcall/internal/adapters/http/api"
	service "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

// failingDeps fails every call with err.
type failingDeps struct{ err error }

func (f failingDeps) Students(context.Context) ([]model.Student, error) { return nil, f.err }
func (f failingDeps) CallOnce(context.Context, string) (model.CallResult, bool, error) {
	return model.CallResult{}, false, f.err
}
func (f failingDeps) History(context.Context) ([]model.CallRecord, error) { return nil, f.err }
func (f failingDeps) Stats(context.Context) (model.Stats, error)          { return model.Stats{}, f.err }
func (f failingDeps) Import(context.Context, string, io.Reader) (int, error) {
	return 0, f.err
}
func (f failingDeps) Clear(context.Context) error { return f.err }

func newHandler(deps api.Dependencies) http.Handler {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}})
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return server.Handler(mux)
}

func do(h http.Handler, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func upload(h http.Handler, filename, content string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", filename)
	_, _ = part.Write([]byte(content))
	_ = mw.Close()
	return do(h, http.MethodPost, "/api/import", &buf, map[string]string{"Content-Type": mw.FormDataContentType()})
}

func decode(w *httptest.ResponseRecorder, v any) {
	So(json.Unmarshal(w.Body.Bytes(), v), ShouldBeNil)
}

func TestRollCallAPI(t *testing.T) {
	Convey("Given the API over a fresh service", t, func() {
		h := newHandler(service.New())

		Convey("When calling with an empty roster", func() {
			w := do(h, http.MethodPost, "/api/call", nil, nil)

			Convey("Then it answers 400 with an error message", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				var body map[string]string
				decode(w, &body)
				So(body["error"], ShouldEqual, "student list is empty")
			})
		})

		Convey("When the collections are empty", func() {
			Convey("Then they are encoded as empty arrays", func() {
				So(strings.TrimSpace(do(h, http.MethodGet, "/api/students", nil, nil).Body.String()), ShouldEqual, "[]")
				So(strings.TrimSpace(do(h, http.MethodGet, "/api/history", nil, nil).Body.String()), ShouldEqual, "[]")
				var stats map[string]any
				decode(do(h, http.MethodGet, "/api/stats", nil, nil), &stats)
				So(stats["total_students"], ShouldEqual, float64(0))
				So(stats["student_stats"], ShouldResemble, []any{})
			})
		})

		Convey("When a roster is uploaded", func() {
			w := upload(h, "class.txt", "Alice\nBob\nCarol\n")

			Convey("Then the import succeeds", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body map[string]any
				decode(w, &body)
				So(body["success"], ShouldEqual, true)
				So(body["count"], ShouldEqual, float64(3))

				var students []model.Student
				decode(do(h, http.MethodGet, "/api/students", nil, nil), &students)
				So(students, ShouldResemble, []model.Student{{Name: "Alice"}, {Name: "Bob"}, {Name: "Carol"}})
			})

			Convey("And a call is made", func() {
				w := do(h, http.MethodPost, "/api/call", nil, nil)

				Convey("Then one student is picked and recorded", func() {
					So(w.Code, ShouldEqual, http.StatusOK)
					var res model.CallResult
					decode(w, &res)
					So(res.Name, ShouldBeIn, []string{"Alice", "Bob", "Carol"})
					So(res.Count, ShouldEqual, 1)

					var history []model.CallRecord
					decode(do(h, http.MethodGet, "/api/history", nil, nil), &history)
					So(history, ShouldHaveLength, 1)
					So(history[0].Name, ShouldEqual, res.Name)

					var stats model.Stats
					decode(do(h, http.MethodGet, "/api/stats", nil, nil), &stats)
					So(stats.TotalCalls, ShouldEqual, 1)
					So(stats.StudentStats[0].Name, ShouldEqual, res.Name)
					So(stats.StudentStats[0].Percentage, ShouldEqual, 100)
				})
			})

			Convey("And the same Idempotency-Key is sent twice", func() {
				key := map[string]string{api.HeaderIdempotencyKey: "abc"}
				first := do(h, http.MethodPost, "/api/call", nil, key)
				second := do(h, http.MethodPost, "/api/call", nil, key)

				Convey("Then the second response is a replay", func() {
					So(second.Body.String(), ShouldEqual, first.Body.String())
					So(second.Header().Get(api.HeaderReplayed), ShouldEqual, "true")
					So(first.Header().Get(api.HeaderReplayed), ShouldBeEmpty)
					var history []model.CallRecord
					decode(do(h, http.MethodGet, "/api/history", nil, nil), &history)
					So(history, ShouldHaveLength, 1)
				})
			})

			Convey("And the data is cleared", func() {
				w := do(h, http.MethodPost, "/api/clear", nil, nil)

				Convey("Then the roster is empty again", func() {
					So(w.Code, ShouldEqual, http.StatusOK)
					So(strings.TrimSpace(w.Body.String()), ShouldEqual, `{"success":true}`)
					So(strings.TrimSpace(do(h, http.MethodGet, "/api/students", nil, nil).Body.String()), ShouldEqual, "[]")
				})
			})
		})

		Convey("When an unsupported file is uploaded", func() {
			w := upload(h, "class.pdf", "Alice")

			Convey("Then it is rejected with success false", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				var body map[string]any
				decode(w, &body)
				So(body["success"], ShouldEqual, false)
				So(body["error"], ShouldContainSubstring, "unsupported file format")
			})
		})

		Convey("When the upload is over the size limit", func() {
			w := upload(h, "class.txt", strings.Repeat("Alice\n", (10<<20)/6+1))

			Convey("Then the size limit is reported instead of a missing file", func() {
				So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
				var body map[string]any
				decode(w, &body)
				So(body["success"], ShouldEqual, false)
				So(body["error"], ShouldEqual, "file exceeds the 10 MiB upload limit")
				So(strings.TrimSpace(do(h, http.MethodGet, "/api/students", nil, nil).Body.String()), ShouldEqual, "[]")
			})
		})

		Convey("When a spreadsheet cannot be read", func() {
			w := upload(h, "class.xlsx", "Alice")

			Convey("Then it is rejected as a client error", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "malformed roster file")
			})
		})

		Convey("When the upload has no file field", func() {
			w := do(h, http.MethodPost, "/api/import", strings.NewReader(""), nil)

			Convey("Then the client is asked to choose a file", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "please choose a file")
			})
		})

		Convey("When using the wrong method", func() {
			So(do(h, http.MethodGet, "/api/call", nil, nil).Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(do(h, http.MethodPost, "/api/students", nil, nil).Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(do(h, http.MethodGet, "/api/clear", nil, nil).Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestRollCallAPIFailures(t *testing.T) {
	Convey("Given dependencies that fail", t, func() {
		h := newHandler(failingDeps{err: errors.New("disk on fire")})

		Convey("Then every endpoint answers 500 without leaking the cause", func() {
			for _, tc := range []struct{ method, path string }{
				{http.MethodGet, "/api/students"},
				{http.MethodPost, "/api/call"},
				{http.MethodGet, "/api/history"},
				{http.MethodGet, "/api/stats"},
				{http.MethodPost, "/api/clear"},
			} {
				w := do(h, tc.method, tc.path, nil, nil)
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(w.Body.String(), ShouldNotContainSubstring, "disk on fire")
				So(w.Body.String(), ShouldContainSubstring, `"error"`)
			}
		})
	})
}

func TestOperationalEndpoints(t *testing.T) {
	Convey("Given the API handler", t, func() {
		h := newHandler(service.New())

		Convey("When probing health", func() {
			w := do(h, http.MethodGet, "/healthz", nil, nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, `{"status":"ok"}`)
		})

		Convey("When scraping metrics", func() {
			_ = do(h, http.MethodGet, "/healthz", nil, nil)
			w := do(h, http.MethodGet, "/metrics", nil, nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "rollcall_http_requests_total")
		})

		Convey("When reading service stats", func() {
			w := do(h, http.MethodGet, "/stats", nil, nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("When a request id is supplied", func() {
			w := do(h, http.MethodGet, "/healthz", nil, map[string]string{api.HeaderRequestID: "req-42"})
			So(w.Header().Get(api.HeaderRequestID), ShouldEqual, "req-42")
		})

		Convey("When no request id is supplied", func() {
			w := do(h, http.MethodGet, "/healthz", nil, nil)
			So(w.Header().Get(api.HeaderRequestID), ShouldNotBeBlank)
		})

		Convey("When a browser sends a CORS preflight", func() {
			w := do(h, http.MethodOptions, "/api/call", nil, map[string]string{
				"Origin":                         "http://classroom.test",
				"Access-Control-Request-Method":  http.MethodPost,
				"Access-Control-Request-Headers": api.HeaderIdempotencyKey,
			})

			Convey("Then the origin is allowed", func() {
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
				So(w.Code, ShouldBeLessThan, 300)
			})
		})
	})
}
