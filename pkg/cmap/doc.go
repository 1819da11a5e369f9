// Package cmap provides a striped, string-keyed concurrent map.
//
// Each stripe owns a plain map behind its own RWMutex. Update and Peek run a
// callback under the key's stripe lock so that values which are not safe for
// concurrent use (member sets, counter hashes) can be mutated in place.
//
//	rooms := cmap.New[map[string]struct{}]()
//	rooms.Update("lobby", func(set map[string]struct{}, ok bool) (map[string]struct{}, bool) {
//		if !ok {
//			set = make(map[string]struct{})
//		}
//		set["rrc-01j..."] = struct{}{}
//		return set, true
//	})
package cmap
