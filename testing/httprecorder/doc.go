/*
Package httprecorder provides a stub http.RoundTripper that answers outbound requests with canned
responses per host, and records every request it is sent.

It stands in for the network when testing code that instruments HTTP clients, so tests can
check both what the client saw and what reached the wire.
*/
package httprecorder
