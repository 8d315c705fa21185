// Package rpc exposes the sifter to the L1 search nodes over gRPC.
//
// The FrbSifter service has two unary methods: CheckConfiguration, which
// makes every node agree on one configuration document, and FrbEvents,
// which carries one node's detections for one chunk. Messages are plain Go
// structs carried with a JSON codec, so no generated code is involved.
package rpc
