// Package httputil provides the request and response helpers of the finance
// admin API.
//
// # Responses
//
//	httputil.WriteSuccess(w, data)
//	httputil.WriteError(w, err) // status from StatusFor(err)
//
// Errors are answered as {"error": "...", "request_id": "..."}. StatusFor
// maps the engine's sentinels: not found is 404, invalid parameter 400,
// already subscribed 409, unpaid invoices 402, unsupported by the cloud 501,
// remote service failures 502 and anything else 500.
//
// # Requests
//
//	var req RegisterUserRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // 400 already written
//	}
//	vars, ok := httputil.PathStrings(w, r, "provider", "id")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
