package health

import (
	"encoding/json"
	"net/http"
)

// Info is the static deployment metadata served at /info.
type Info struct {
	Environment   string         `json:"environment"`
	RequestQueues []string       `json:"request_queues"`
	UpdatesQueue  string         `json:"updates_queue"`
	Ceilings      map[string]int `json:"ceilings"`
	WorkDir       string         `json:"work_dir"`
}

func InfoHandler(info Info) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(info)
	}
}
