package response

import (
	"encoding/json"
	"net/http"
)

// JSON writes v as a JSON body with the given status
func JSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// JSONBytes writes a pre-encoded JSON body
func JSONBytes(w http.ResponseWriter, statusCode int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	w.Write(body)
}

// DecodeJSON decodes a request body of at most maxBytes into v, rejecting
// unknown fields
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return Wrap(http.StatusBadRequest, err)
	}
	return nil
}
