// Package document binds a node graph to a schema and publishes change
// notifications.
//
// A Document is the read surface editors work against. Mutations go through
// a session, which calls Apply and then Notify once a change is committed.
// Listeners registered through the PathProxy run before general
// subscribers.
package document
