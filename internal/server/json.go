package server

import (
	"encoding/json"
	"net/http"
)

// This file contains helper functions for sending standardized JSON responses.

// respondWithError logs an error (if one is provided) and sends a JSON
// error response to the client with a given message and status code.
func (s *Server) respondWithError(w http.ResponseWriter, code int, msg string, err error) {
	if err != nil {
		s.logger.Error(msg, "error", err)
	}
	type errorResponse struct {
		Error string `json:"error"`
	}
	s.respondWithJSON(w, code, errorResponse{
		Error: msg,
	})
}

// respondWithJSON marshals a payload to JSON, sets the content-type
// header, writes the HTTP status code, and sends the response.
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("error marshalling JSON", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("error writing response", "error", err)
	}
}
