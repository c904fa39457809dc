// response.go - JSON responses for the ingest and report API.
package util

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

// JSONResponse writes data as JSON with the given status. Once the header is
// out an encoding failure can only be reported on stderr.
func JSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		fmt.Fprintf(os.Stderr, "[perfkit] encode JSON response: %v\n", err)
	}
}

// JSONError writes {"error": msg}.
func JSONError(w http.ResponseWriter, status int, msg string) {
	JSONResponse(w, status, map[string]string{"error": msg})
}
