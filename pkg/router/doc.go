// Package router builds the page registry.
//
// Pages are registered on a Router; Group creates nested routers that share
// the registry and inherit access groups and middleware:
//
//	r := router.New()
//	r.Page("/home", "Home", home)
//
//	admin := r.Group("/admin").AccessGroups("admin")
//	admin.Group("/settings").AccessGroups("super_admin").
//		Page("/system", "System", system) // groups: super_admin, admin
//
// Page ids are derived from the route, so a page keeps its id across
// restarts. Registering the same route twice replaces the earlier page.
package router
