package protocol

import "strings"

// ResponsePrefix is prepended to every request text to form the reply
const ResponsePrefix = "Server received: "

// replacementByte stands in for anything outside the single-byte text range
const replacementByte = '?'

// BuildResponse derives the reply text for a request text.
// It is total: any input, including the empty string, produces a response.
func BuildResponse(request string) string {
	return ResponsePrefix + request
}

// Decode interprets a datagram payload as single-byte text.
// Bytes 0x00-0x7F map to the same character; every other byte becomes '?'.
// Decoding never fails, so malformed payloads still yield a usable request text.
func Decode(payload []byte) string {
	var b strings.Builder
	b.Grow(len(payload))

	for _, c := range payload {
		if c > 0x7F {
			b.WriteByte(replacementByte)
			continue
		}
		b.WriteByte(c)
	}

	return b.String()
}

// Encode converts text to its single-byte wire form.
// Runes that do not fit in 7 bits are written as '?'.
func Encode(text string) []byte {
	out := make([]byte, 0, len(text))

	for _, r := range text {
		if r > 0x7F {
			out = append(out, replacementByte)
			continue
		}
		out = append(out, byte(r))
	}

	return out
}

// Respond runs the full payload pipeline: decode the request, build the
// response and encode it for the wire. It returns both the response text
// (for logging) and its encoded bytes.
func Respond(payload []byte) (string, []byte) {
	response := BuildResponse(Decode(payload))
	return response, Encode(response)
}
