// Package protocol defines the messages exchanged between a genwire client
// and its worker, and the frame codec that carries them.
//
// # Frames
//
// Every message travels as one length-prefixed frame:
//
//	+-----------------+---------+----------------------+
//	| length (u32 BE) | kind u8 | msgpack-encoded body |
//	+-----------------+---------+----------------------+
//
// The length covers the kind byte and the body. A CloseMessage has no body.
// Unknown kinds, empty frames and frames above the decoder limit are
// reported as *genwire.DecodeError and end the session.
//
// # Usage
//
//	enc := protocol.NewEncoder(w)
//	err := enc.Encode(&protocol.GeneratorRequest{DocumentFileNames: files})
//
//	dec := protocol.NewDecoder(r)
//	for {
//	    msg, err := dec.Decode()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
package protocol
