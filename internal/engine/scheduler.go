package engine

// Conflict names a resource that blocked a scheduling request and the
// observation currently holding it.
type Conflict struct {
	Resource Resource `json:"resource"`
	HeldBy   string   `json:"held_by"`
}

// Grant is the outcome of a resource scheduling check.
type Grant struct {
	Granted   bool
	Conflicts []Conflict
}

// CheckResources decides whether the requester may claim every resource
// in required. A resource blocks the request only when a *different*
// sequence holds it: a sequence always re-acquires its own resources.
//
// There is no queuing and no backoff. A refused request leaves all state
// unchanged; the caller retries on a later event.
func CheckResources(state *EngineState, requester string, required ResourceSet) Grant {
	inUse := state.ResourcesInUse()

	var conflicts []Conflict
	for _, r := range required.Sorted() {
		holder, held := inUse[r]
		if held && holder != requester {
			conflicts = append(conflicts, Conflict{Resource: r, HeldBy: holder})
		}
	}

	return Grant{Granted: len(conflicts) == 0, Conflicts: conflicts}
}
