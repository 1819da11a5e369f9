// Package membership implements fleet-wide group membership with reference
// counted channel subscriptions.
//
// State lives in the shared coordination store:
//
//	rooms:<connection id>   set   groups joined by one connection
//	room-connections        hash  group -> connections across the fleet
//	subscribed-rooms        set   groups some process is subscribed to
//
// Join increments a group's counter and makes sure this process holds a
// channel subscription; Leave decrements every joined group and drops the
// subscription when the fleet count reaches zero, or when this process has
// no local member left.
//
// Work on one group is serialized inside a process. Across processes the
// read of subscribed-rooms and the later decision are not atomic: two
// processes may both subscribe a new group, and a join racing the last leave
// can leave subscribed-rooms stale. Both decisions live in ensureSubscribed
// and releaseSubscription so they can move into a store-side script later.
package membership
