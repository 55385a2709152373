package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/kozaktomas/photolink/internal/jobs"
)

// sendSSEEvent writes one server-sent event and flushes it.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = w.Write(jsonData)
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}

func isTerminalEvent(eventType string) bool {
	return eventType == jobs.EventCompleted || eventType == jobs.EventFailed || eventType == jobs.EventCancelled
}

// streamJobEvents streams events of job until its final event,
// the client disconnects, or the event channel closes. The first event is the
// current status so late subscribers see where the job is.
func streamJobEvents(w http.ResponseWriter, r *http.Request, job *jobs.Job, status func() jobs.Status) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// subscribe before the snapshot is sent so no event is missed in between
	eventCh := job.AddListener()
	defer job.RemoveListener(eventCh)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sendSSEEvent(w, flusher, "status", status())

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
			if isTerminalEvent(event.Type) {
				return
			}
		}
	}
}
