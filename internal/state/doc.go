// Package state implements the shared in-process entity store.
//
// The store maps entity ids to JSON-shaped values. Each entity has its own
// critical section so updates to different keys proceed independently;
// snapshot create/restore and bulk queries take store-wide sections for a
// consistent point-in-time view.
//
// Update callbacks run while the entity's lock is held and must not call
// back into the store.
package state
