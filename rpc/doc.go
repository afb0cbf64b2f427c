// Package rpc exposes ordinary Go funcs as HTTP operations.
//
// # Registration
//
// A Service lists Definitions; NewTable validates each Func by reflection
// and indexes it by verb and path template:
//
//	type Math struct{}
//
//	func (m Math) Definitions() []rpc.Definition {
//	    return []rpc.Definition{
//	        {Method: "GET", Path: "/sum", Func: m.Sum, Params: []string{"a", "b"}},
//	        {Method: "GET", Path: "/sum", Func: m.SumAll, Params: []string{"values"}},
//	        {Method: "GET", Path: "/items/{id}", Func: m.Item, Params: []string{"id", "verbose?"}},
//	    }
//	}
//
//	table, err := rpc.NewTable(Math{})
//	http.Handle("/", rpc.NewHandler(table))
//
// Operations on the same verb and path are overloads when their parameter
// names differ; the request chooses between them by which names it
// supplies. Registering the same names twice is a *DuplicateRouteError.
//
// # Binding
//
// Parameters are found by name in path variables, the query, the form, and
// a JSON object body, in that order, or by position in a JSON array body.
// Repeated fields bind slices in the order they appear. Values are converted
// with the convert package; a parameter the request does not supply binds
// its zero value unless the Binder is strict.
//
// # Results
//
// Results are adapted with value.Adapt and written either through a
// Template chosen by Accept and User-Agent, or through the negotiated
// codec. A func without a result answers 204 No Content.
package rpc
