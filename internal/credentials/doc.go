// Package credentials stores per-user cookie jars that unlock restricted
// sources. A jar written for one user id is only ever returned for that id.
package credentials
