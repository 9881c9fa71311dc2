// Package visualiser streams editing-session frames over gRPC.
//
// A viewer subscribes to one open session and receives, frame by frame, the
// current marker positions together with the markers flagged as outliers at
// that frame. The service is declared directly as a grpc.ServiceDesc and
// carries google.protobuf.Struct messages, so no generated code is needed;
// messages.go maps them to and from the Go types used on both ends.
package visualiser
