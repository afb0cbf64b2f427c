// Package jsonrpc exposes an rpc.Dispatcher as a JSON-RPC 2.0 endpoint.
//
// This package implements the JSON-RPC 2.0 specification (https://www.jsonrpc.org/specification)
// and JSON-RPC over HTTP (https://www.simple-is-better.org/json-rpc/transport_http.html).
//
// # Basic Usage
//
// The operations registered in an rpc.Table are callable by verb and path:
//
//	table, _ := rpc.NewTable(service)
//	e := jsonrpc.NewEndpoint(&rpc.Dispatcher{Table: table})
//	http.Handle("/rpc", endpoint.Handler(e.Endpoint))
//
// A request names the operation in method and supplies its arguments in
// params, either by name or by position:
//
//	{"jsonrpc":"2.0","method":"GET /sum","params":{"a":1,"b":2},"id":1}
//	{"jsonrpc":"2.0","method":"/sum","params":[1,2],"id":2}
//
// Overloads are chosen exactly as over plain HTTP: by which parameter names
// the params object supplies.
//
// # Error Handling
//
// Dispatch failures map to the standard codes:
//   - unknown operation or verb: CodeMethodNotFound (-32601)
//   - conversion failure or ambiguous overload: CodeInvalidParams (-32602)
//   - failed authorization: CodeForbidden (-32003)
//   - an *endpoint.EndpointError below 500: CodeServerError (-32000), with
//     the HTTP status in data
//   - anything else: CodeInternalError (-32603), logged and not described
//
// An operation may return a *JSONRPCError to choose its own code.
//
// # Processor Integration
//
// Processors can be passed to endpoint.Handler for cross-cutting concerns:
//
//	http.Handle("/rpc", endpoint.Handler(e.Endpoint, principals, accessLog))
//
// Processor errors return HTTP error responses (not JSON-RPC errors).
package jsonrpc
