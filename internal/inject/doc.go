// Package inject is a dependency-injection container for scene objects.
//
// Registrations are keyed by (name, type). A registration is also keyed
// under every declared interface its instance implements, so a *Sword
// registered as "Sword" can be fetched as Get[Weapon](c, "Sword").
//
// A Catalog tells Initialize what to do: NodeBindings pick existing host
// nodes by type or group, Components describe plain objects to construct.
// Constructors are Go functions whose parameters are resolved from the
// registry by type and name; components are built in passes until no pass
// makes progress.
//
// After construction, exported struct fields tagged `inject` and declared
// Properties are filled in. An instance whose dependency is not registered
// yet is shelved and completed as soon as a later Register provides it.
//
// Registrations carry scope tags (the scene that was current when they were
// made) and are removed by Clear when their scene goes away. Nodes destroyed
// by the host are purged automatically.
package inject
