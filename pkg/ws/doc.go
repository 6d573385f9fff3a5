// Package ws implements the server side of the WebSocket wire
// protocol directly on top of net.Conn: the HTTP upgrade handshake and
// the binary frame codec.
//
// The subset implemented is what browser and tool clients actually
// use: unfragmented text and binary messages, ping/pong, and the close
// exchange. Client frames are unmasked in place when a mask key is
// present; frames to clients are never masked. Fragmented messages and
// extensions are rejected.
//
// Frame layout:
//
//	byte 0: FIN(1) RSV(3) opcode(4)
//	byte 1: MASK(1) length(7)
//	length 126: next 2 bytes are a big-endian uint16 length
//	length 127: next 8 bytes are a big-endian uint64 length
//	masked frames: 4-byte mask key, payload XORed with key[i%4]
//
// The handshake side parses the HTTP/1.1 upgrade request byte by byte
// and answers either 101 Switching Protocols with the RFC 6455 accept
// key, or a plain HTTP response for ordinary page requests on the same
// port.
package ws
