package event

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/garden-pi/garden-pi/controller/storage"
)

func (c *Controller) LoadAPI(r *mux.Router) {
	sr := r.PathPrefix("/api/events").Subrouter()
	sr.HandleFunc("", c.rangeEvents).Methods("GET")
	sr.HandleFunc("", c.createEvent).Methods("POST")
	sr.HandleFunc("/{id}", c.getEvent).Methods("GET")
	sr.HandleFunc("/{id}", c.putEvent).Methods("PUT")
	sr.HandleFunc("/{id}", c.deleteEvent).Methods("DELETE")
}

func statusFor(err error) int {
	if errors.Is(err, storage.ErrDoesNotExist) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func (c *Controller) rangeEvents(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	var err error
	if s := r.URL.Query().Get("start"); s != "" {
		if from, err = time.Parse(time.RFC3339, s); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if s := r.URL.Query().Get("end"); s != "" {
		if to, err = time.Parse(time.RFC3339, s); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	occurrences, err := c.Range(from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(occurrences)
}

func (c *Controller) getEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := c.Get(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	json.NewEncoder(w).Encode(ev)
}

func (c *Controller) createEvent(w http.ResponseWriter, r *http.Request) {
	var ev Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := c.Create(ev)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

func (c *Controller) putEvent(w http.ResponseWriter, r *http.Request) {
	var ev Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := c.Update(mux.Vars(r)["id"], ev); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) deleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := c.Delete(mux.Vars(r)["id"]); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
