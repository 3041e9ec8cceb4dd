package server

import (
	"fmt"
	"net/http"
)

// CORS headers applied to every /v1 response. The allow-headers list matches
// what browser clients send alongside their session credential.
const (
	corsAllowOrigin  = "*"
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type"
)

// setCORS applies the cross-origin headers to the response.
func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", corsAllowOrigin)
	w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
}

// handlePreflight answers CORS preflight OPTIONS requests for the /v1 routes.
func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	fmt.Fprint(w, "ok")
}
