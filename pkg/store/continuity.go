package store

import "github.com/nwnotary/notary-server/pkg/observation"

// Action enumerates what a backend must do in response to a sighting, as
// decided by Decide.
type Action int

const (
	// ActionNoop means the sighting changes nothing: it is a duplicate
	// report of a key that was already seen at or after this instant.
	ActionNoop Action = iota
	// ActionExtend means the backend must bump the End of the existing
	// (service, key) observation identified by ExtendStart to NewEnd.
	ActionExtend
	// ActionOpenNew means the backend must insert a new observation row.
	// If ClosePrev is true, it must also bump the End of the prior
	// most-recent observation (identified by PrevKey/PrevStart) to
	// PrevNewEnd before inserting the new row.
	ActionOpenNew
)

// Decision is the pure result of applying the continuity algorithm to one
// sighting. Backends translate it into the appropriate reads/writes inside
// their own transaction; none of the decision logic itself touches
// storage, so it can be tested without any backend at all.
type Decision struct {
	Action Action

	// Valid when Action == ActionExtend: the Start of the row to extend,
	// and the new End to write.
	ExtendStart int64
	NewEnd      int64

	// Valid when Action == ActionOpenNew: the row to insert.
	NewObservation observation.Observation

	// Valid when Action == ActionOpenNew and ClosePrev is true: the prior
	// most-recent observation (a different key) must have its End bumped
	// forward to PrevNewEnd so the two spans meet without overlapping.
	ClosePrev  bool
	PrevKey    observation.Key
	PrevStart  int64
	PrevNewEnd int64
}

// Decide applies the continuity algorithm described in the specification:
// given the most recent observation for a service (across all keys, or nil
// if the service has none), a freshly sighted key and the current time, it
// decides whether to extend an existing span, open a new one, and whether
// to retroactively close out the previous key's span.
//
// This is the "bumping" variant of the continuity algorithm (an open
// design question in the source material): when a new key supersedes a
// previous one within UpdateLimit, the previous observation's End is
// bumped to now-1 so timelines meet but never overlap. The non-bumping
// variant ("don't assert data we have no evidence for") was considered and
// rejected; see DESIGN.md.
func Decide(mostRecent *observation.Observation, service observation.Service, key observation.Key, now int64) Decision {
	if mostRecent == nil {
		return Decision{
			Action:         ActionOpenNew,
			NewObservation: observation.Observation{Service: service, Key: key, Start: now, End: now},
		}
	}

	gap := now - mostRecent.End

	if mostRecent.Key == key {
		// Case A: same key. Extend if within the jitter tolerance,
		// otherwise the key has reappeared after too long a silence and
		// gets a fresh span.
		if gap <= UpdateLimit {
			if now <= mostRecent.End {
				// Duplicate report inside the same instant (or a report
				// that raced backwards in time): nothing to do.
				return Decision{Action: ActionNoop}
			}
			return Decision{Action: ActionExtend, ExtendStart: mostRecent.Start, NewEnd: now}
		}
		return Decision{
			Action:         ActionOpenNew,
			NewObservation: observation.Observation{Service: service, Key: key, Start: now, End: now},
		}
	}

	// Case B: a different key was sighted. Always open a new span; also
	// bump the previous key's End to close the gap, but only if the
	// notary was actually in continuous-enough operation to vouch for it.
	d := Decision{
		Action:         ActionOpenNew,
		NewObservation: observation.Observation{Service: service, Key: key, Start: now, End: now},
	}
	if gap <= UpdateLimit && now > mostRecent.End {
		d.ClosePrev = true
		d.PrevKey = mostRecent.Key
		d.PrevStart = mostRecent.Start
		d.PrevNewEnd = now - 1
	}
	return d
}
