// Package api exposes the login workflow over HTTP.
//
// # Routes
//
//	POST /auth/login        exchange an identity token for a session token
//	GET  /auth/users        list every user
//	GET  /auth/users/{id}   fetch one user
//
// Every response carries {"success": bool, "message": string}. Status codes:
// 200 on success, 400 for a bad identity token or body, 404 for an unknown
// user, 500 for anything else. A 500 never includes the cause.
//
// # Usage
//
//	server := api.NewServer(authService, logger,
//		api.WithMetrics(metrics),
//		api.WithCORSOrigins(origins),
//	)
//	http.ListenAndServe(":8080", server)
package api
