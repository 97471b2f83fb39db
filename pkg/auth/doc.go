// Package auth implements the login workflow of the gateway.
//
// # Overview
//
// A login turns a third-party identity token into a local session token:
//
//	verify identity token
//	  -> resolve user by email
//	  -> on miss: create user (role staff), persist
//	  -> issue session token from the persisted record
//	  -> on create: notify the provisioning service with that token
//	  -> respond
//
// Steps run strictly in that order. The session token always reflects the
// persisted user ID, and the provisioning service is only told about users it
// can already look up.
//
// # Failure handling
//
// Verification failures are reported as ErrInvalidIdentityToken without saying
// which check failed. Storage or signing failures are ErrInternal. A failed
// provisioning notification is logged and counted, never returned.
//
// Two concurrent first logins for the same email race on the directory's email
// uniqueness. The loser re-resolves the winner's record once and completes as an
// existing-user login, so exactly one user and one notification result.
//
// # Usage
//
//	svc := auth.NewService(verifier, directory, issuer, notifier,
//		auth.WithMetrics(metrics),
//		auth.WithLogger(logger),
//		auth.WithNotifyTimeout(5*time.Second),
//	)
//	res, err := svc.Login(ctx, auth.LoginRequest{IDToken: raw})
package auth
