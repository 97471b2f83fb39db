// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
// Every body carries a success flag and a message:
//
//	httputil.WriteJSON(w, http.StatusOK, body)
//	httputil.WriteBadRequest(w, "Invalid identity token")
//	httputil.WriteNotFound(w, "User not found")
//	httputil.WriteInternalError(w) // always "Internal server error"
//
// # Request Parsing
//
//	var req loginRequest
//	if err := httputil.ParseJSON(r, &req); err != nil { ... }
//	id, err := httputil.ParsePathString(r, "id")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.LoggingMiddleware,
//		httputil.CORSMiddleware(origins),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// RequestIDMiddleware must run first: the others log through the request-scoped
// logger it installs.
package httputil
