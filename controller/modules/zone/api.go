package zone

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/garden-pi/garden-pi/controller/storage"
)

// LoadAPI registers the REST endpoints. Handlers are glue only; the
// exported methods above carry the semantics.
func (c *Controller) LoadAPI(r *mux.Router) {
	sr := r.PathPrefix("/api/zones").Subrouter()
	sr.HandleFunc("", c.listZones).Methods("GET")
	sr.HandleFunc("", c.createZone).Methods("POST")
	sr.HandleFunc("/plantable", c.listPlantable).Methods("GET")
	sr.HandleFunc("/control", c.listControl).Methods("GET")
	sr.HandleFunc("/log", c.logList).Methods("GET")
	sr.HandleFunc("/{id}", c.getZone).Methods("GET")
	sr.HandleFunc("/{id}", c.putZone).Methods("PUT")
	sr.HandleFunc("/{id}/switch", c.switchZone).Methods("POST")
	sr.HandleFunc("/{id}/usage", c.usage).Methods("GET")
	sr.HandleFunc("/{id}/usage", c.clearUsage).Methods("DELETE")
}

func statusFor(err error) int {
	if errors.Is(err, storage.ErrDoesNotExist) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func (c *Controller) listZones(w http.ResponseWriter, r *http.Request) {
	zones, err := c.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(zones)
}

func (c *Controller) listPlantable(w http.ResponseWriter, r *http.Request) {
	zones, err := c.ListByKind(Plantable)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(zones)
}

func (c *Controller) listControl(w http.ResponseWriter, r *http.Request) {
	zones, err := c.ListByKind(Control)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(zones)
}

func (c *Controller) getZone(w http.ResponseWriter, r *http.Request) {
	z, err := c.Get(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	json.NewEncoder(w).Encode(z)
}

func (c *Controller) createZone(w http.ResponseWriter, r *http.Request) {
	var z Zone
	if err := json.NewDecoder(r.Body).Decode(&z); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := c.Create(z)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

func (c *Controller) putZone(w http.ResponseWriter, r *http.Request) {
	var z Zone
	if err := json.NewDecoder(r.Body).Decode(&z); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := c.Update(mux.Vars(r)["id"], z); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) switchZone(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		On bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := c.Switch(mux.Vars(r)["id"], payload.On); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) usage(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	usages, err := c.ListUsage(mux.Vars(r)["id"], from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(usages)
}

func (c *Controller) clearUsage(w http.ResponseWriter, r *http.Request) {
	if err := c.ClearUsage(mux.Vars(r)["id"]); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) logList(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	json.NewEncoder(w).Encode(c.logs)
}

func parseRange(r *http.Request) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if s := r.URL.Query().Get("start"); s != "" {
		if from, err = time.Parse(time.RFC3339, s); err != nil {
			return from, to, err
		}
	}
	if s := r.URL.Query().Get("end"); s != "" {
		if to, err = time.Parse(time.RFC3339, s); err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}
