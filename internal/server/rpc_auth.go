package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

const codeUnauthorized = -32600

// requireToken only lets requests carrying "Authorization: Bearer <secret>"
// through to next. Rejections are JSON-RPC error objects with status 401.
// An empty secret rejects everything.
func requireToken(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !validToken(secret, r.Header.Get("Authorization")) {
			writeRPCError(w, http.StatusUnauthorized, codeUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// validToken compares the bearer token against secret in constant time.
func validToken(secret, authHeader string) bool {
	if secret == "" {
		return false
	}
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

// writeRPCError writes a JSON-RPC 2.0 error response with a null id.
func writeRPCError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
		"id": nil,
	})
}
