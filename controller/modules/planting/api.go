package planting

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garden-pi/garden-pi/controller/storage"
)

func (c *Controller) Setup() error { return nil }
func (c *Controller) Start()       {}
func (c *Controller) Stop()        {}

func (c *Controller) LoadAPI(r *mux.Router) {
	sr := r.PathPrefix("/api/plantings").Subrouter()
	sr.HandleFunc("", c.listPlantings).Methods("GET")
	sr.HandleFunc("", c.createPlanting).Methods("POST")
	sr.HandleFunc("/{id}", c.getPlanting).Methods("GET")
	sr.HandleFunc("/{id}", c.putPlanting).Methods("PUT")
	sr.HandleFunc("/{id}", c.deletePlanting).Methods("DELETE")

	cr := r.PathPrefix("/api/crops").Subrouter()
	cr.HandleFunc("", c.listCropsAPI).Methods("GET")
	cr.HandleFunc("", c.createCrop).Methods("POST")
	cr.HandleFunc("/{id}", c.getCrop).Methods("GET")
	cr.HandleFunc("/{id}", c.putCrop).Methods("PUT")
}

func statusFor(err error) int {
	if errors.Is(err, storage.ErrDoesNotExist) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func (c *Controller) listPlantings(w http.ResponseWriter, r *http.Request) {
	if zoneID := r.URL.Query().Get("zone"); zoneID != "" {
		plantings, err := c.ListByZone(zoneID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(plantings)
		return
	}
	plantings, err := c.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(plantings)
}

func (c *Controller) getPlanting(w http.ResponseWriter, r *http.Request) {
	p, err := c.Get(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	json.NewEncoder(w).Encode(p)
}

func (c *Controller) createPlanting(w http.ResponseWriter, r *http.Request) {
	var p Planting
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := c.Create(p)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

func (c *Controller) putPlanting(w http.ResponseWriter, r *http.Request) {
	var p Planting
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := c.Update(mux.Vars(r)["id"], p); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) deletePlanting(w http.ResponseWriter, r *http.Request) {
	if err := c.Delete(mux.Vars(r)["id"]); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) listCropsAPI(w http.ResponseWriter, r *http.Request) {
	crops, err := c.ListCrops()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(crops)
}

func (c *Controller) getCrop(w http.ResponseWriter, r *http.Request) {
	crop, err := c.GetCrop(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	json.NewEncoder(w).Encode(crop)
}

func (c *Controller) createCrop(w http.ResponseWriter, r *http.Request) {
	var crop Crop
	if err := json.NewDecoder(r.Body).Decode(&crop); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := c.CreateCrop(crop)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

func (c *Controller) putCrop(w http.ResponseWriter, r *http.Request) {
	var crop Crop
	if err := json.NewDecoder(r.Body).Decode(&crop); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := c.UpdateCrop(mux.Vars(r)["id"], crop); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
