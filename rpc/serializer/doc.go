// Package serializer provides message serialization for the gateway RPC
// system. It defines a common interface and two implementations for
// serializing and deserializing messages between client and server.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - jsonSerializerImpl: JSON encoding. Human readable and usable from any
//     language. Statement parameters carry their type tag, so they decode to
//     the exact Go type. Row values decode to json.Number and are converted
//     to the declared key types by the client.
//
//   - gobSerializerImpl: Go's gob encoding. Row and parameter values keep
//     their Go types across the wire, the concrete types that appear inside
//     interface values are registered on package initialization.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	Serializers are typically created once and reused throughout the application:
//
//	  serializer := serializer.NewJSONSerializer()
//	  data, err := serializer.Serialize(message)
//	  // ... send data ...
//	  var receivedMsg common.Message
//	  err = serializer.Deserialize(receivedData, &receivedMsg)
package serializer
