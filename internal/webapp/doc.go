// Package webapp hosts the administrative web applications of the engine:
// Cockpit, Admin and the Engine REST API. They are registered the way a
// servlet container registers them from a deployment descriptor, as named
// filters and servlets bound to URL patterns, and served through one
// http.Handler.
package webapp
