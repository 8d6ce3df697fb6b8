package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeStorage struct {
	err error
}

func (f fakeStorage) HealthCheck(ctx context.Context) error { return f.err }

type fakeQueue struct {
	connected bool
}

func (f fakeQueue) Connected() bool { return f.connected }

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name       string
		storageErr error
		connected  bool
		wantCode   int
		wantStatus Status
	}{
		{name: "all healthy", connected: true, wantCode: http.StatusOK, wantStatus: StatusHealthy},
		{name: "storage down", storageErr: errors.New("conn refused"), connected: true,
			wantCode: http.StatusServiceUnavailable, wantStatus: StatusUnhealthy},
		{name: "queue down", connected: false,
			wantCode: http.StatusServiceUnavailable, wantStatus: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewChecker(fakeStorage{err: tt.storageErr}, fakeQueue{connected: tt.connected}).
				WithActiveJobs(func() map[string]int {
					return map[string]int{"IMAGE": 1}
				})

			rec := httptest.NewRecorder()
			ReadinessHandler(checker)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}

			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", resp.Status, tt.wantStatus)
			}
			if resp.ActiveJobs["IMAGE"] != 1 {
				t.Errorf("active jobs = %v", resp.ActiveJobs)
			}
		})
	}
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d", rec.Code)
	}
}

func TestInfoHandler(t *testing.T) {
	info := Info{
		Environment:   "test",
		RequestQueues: []string{"media.requests.image", "media.requests.video", "media.requests.archive"},
		UpdatesQueue:  "media.updates",
		Ceilings:      map[string]int{"IMAGE": 8, "VIDEO": 2, "ARCHIVE": 2},
		WorkDir:       "/tmp/media-worker",
	}

	rec := httptest.NewRecorder()
	InfoHandler(info)(rec, httptest.NewRequest(http.MethodGet, "/info", nil))

	var got Info
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.UpdatesQueue != "media.updates" || got.Ceilings["VIDEO"] != 2 {
		t.Errorf("info = %+v", got)
	}
}
