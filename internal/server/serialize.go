package server

import (
	"encoding/json"
	"net/http"
)

func encode(w http.ResponseWriter, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.
		NewEncoder(w).
		Encode(v)
}
