// Package meta describes how entity types map onto the graph: primary key
// access, scalar properties, relation definitions, index definitions, labels
// and repository construction.
//
// The mapper consumes metadata through the Provider interface and never
// inspects entity structs itself. The default Provider is Registry, populated
// explicitly at startup:
//
//	reg := meta.NewRegistry()
//	err := reg.Register(&meta.Metadata{
//	    Class: "user",
//	    New:   func() any { return &User{} },
//	    ID:    meta.IDField(func(u *User) **int64 { return &u.ID }),
//	    ...
//	})
//
// Accessors are plain functions over `any` so the package stays free of
// struct-tag reflection; Field and helpers cut the casting boilerplate.
package meta
