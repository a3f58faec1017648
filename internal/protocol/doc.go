// Package protocol implements the ICY (Shoutcast/Icecast) in-band metadata protocol.
// It handles icy-metaint header negotiation, splitting the response body into audio
// frames and metadata blocks, and parsing StreamTitle values into artist and title.
package protocol
