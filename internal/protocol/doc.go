// Package protocol implements the datagram text codec and the request to
// response transformation.
package protocol
