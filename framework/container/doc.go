// Package container is a scope-aware dependency injection runtime.
//
// # Overview
//
// Components are declared by constructor functions. Each declaration has a
// Symbol, the source file and qualified name it comes from, and the Registry
// maps that source file to a Scope: the mounted application whose root
// directory contains it, or the ownerless "no-app" scope.
//
// Declarations never block. A component whose parameters are not available
// yet is queued as a DeferredTask in its scope and retried on every
// consistency pass, so units may be loaded in any order.
//
// Resolution blocks. Resolve polls the scope at a fixed interval (and wakes
// early on every store write) until the dependency appears or the scope
// timeout elapses.
//
// # Lifecycle
//
//  1. Create: reg := container.NewRegistry(container.WithLogger(log))
//  2. Add application scopes: reg.AddScope(container.ScopeConfig{...})
//  3. Declare components while loading units:
//     container.Component(NewUserService).Register(reg)
//  4. After discovery: reg.PromoteAll(scope); reg.Rehome(scope); reg.MarkReady(scope)
//  5. Resolve: container.ResolveByType[*UserService](ctx, reg, location)
//
// # Declaring
//
//	// By result type
//	container.Component(NewUserRepository).Register(reg)
//
//	// Named, with a named parameter
//	container.Component(NewReplicaDB).
//	    Named("replica").
//	    Param(0, container.ByName("replica-dsn")).
//	    Register(reg)
//
//	// Forward-declared by type name
//	container.Component(NewSettings).As("Config").Register(reg)
//
//	// Pre-built value
//	reg.Instance(container.CallerSymbol(0), "", cfg)
//
// # Resolving
//
//	svc, err := container.ResolveByType[*UserService](ctx, reg, location)
//
//	// Inside code living under an application root (panics on failure)
//	svc := container.Inject[*UserService](reg)
//
//	// Constructor injection with blocking resolution
//	out, err := reg.Invoke(ctx, location, NewUserController)
//
// # Promotion
//
// Library code outside every application root registers into the ownerless
// scope. When an application finishes discovery, PromoteAll shares the
// ownerless dependencies whose origin matches one of its include prefixes.
// Exclude prefixes drop a dependency unless an include prefix also matches.
package container
