package balance

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

func (c *Controller) LoadAPI(r *mux.Router) {
	sr := r.PathPrefix("/api/balance").Subrouter()
	sr.HandleFunc("/evaluate", c.evaluateNow).Methods("POST")
}

// evaluateNow runs the engine on demand, outside the daily trigger.
func (c *Controller) evaluateNow(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	ids, err := c.Evaluate(now, now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(ids)
}
