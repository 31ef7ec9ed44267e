// Package codec encodes operations as single tab-separated lines.
//
// Line format (fields joined by a tab):
//
//	c <path> <JSON node>
//	d <path> <JSON node>
//	s <path> <JSON new value> <JSON old value>
//	u <path> <primitive>
//
// where <primitive> is one of
//
//	t+ <pos> <JSON string>
//	t- <pos> <JSON string>
//	a+ <pos> <JSON value>
//	a- <pos> <JSON value>
//
// Paths are dot-joined. An absent set value is written as null, and null
// decodes as ir.Null, so "removed" and "set to null" cannot be told apart
// after a round trip.
package codec
