// Package fakeremote is an in-memory implementation of the remote itinerary
// API. Tests use it to exercise the mirror against real HTTP, and
// `tripsync serve-fake` runs it for local development.
//
// The service can be taken "down" (connections are dropped without a
// response) or made to answer every call with a chosen status, which is how
// offline and rejection scenarios are reproduced.
package fakeremote
