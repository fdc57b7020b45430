// Package api serves the finance admin HTTP API.
//
// The API is a thin layer over the engine: every handler decodes its input,
// calls one Service operation and maps the result. Errors are answered with
// the status httputil.StatusFor assigns to the engine's sentinels.
//
// # API Endpoints
//
// Users:
//
//	POST   /fs/users                                      register {id, provider, plan}
//	DELETE /fs/users/{provider}/{id}                      unregister
//	DELETE /fs/users/{provider}/{id}/record               remove an unsubscribed user
//	DELETE /fs/users/{provider}/{id}/purge                purge resources and user
//	PUT    /fs/users/{provider}/{id}/plan                 change plan {plan}
//	PUT    /fs/users/{provider}/{id}/state                update finance state
//	GET    /fs/users/{provider}/{id}/state/{property}     read finance state
//	GET    /fs/users/{provider}/{id}/authorized/{operation}
//
// Plans:
//
//	POST   /fs/plans                                      create {name, kind, options}
//	GET    /fs/plans                                      list names
//	GET    /fs/plans/{name}                               options
//	PUT    /fs/plans/{name}                               replace options {options}
//	DELETE /fs/plans/{name}
//
//	POST   /fs/reload                                     reload configuration
//
// # Usage
//
//	server := api.NewServer(manager, logger, metrics)
//	http.ListenAndServe(":8080", server.Handler())
//
// The API is not authenticated; it is meant to be reachable only from the
// platform's internal network.
package api
