package migration

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ResolveChain orders revisions from root to head. It fails unless the
// revisions form exactly one linear chain with both operations present.
func ResolveChain(revisions []Revision) ([]Revision, error) {
	byID := make(map[string]Revision, len(revisions))
	for _, rev := range revisions {
		if rev.ID == "" {
			return nil, &ChainError{
				Kind:   ChainEmptyID,
				Detail: fmt.Sprintf("revision with message %q has no id", rev.Message),
			}
		}
		if _, exists := byID[rev.ID]; exists {
			return nil, &ChainError{
				Kind:      ChainDuplicate,
				Revisions: []string{rev.ID},
				Detail:    fmt.Sprintf("revision %s is registered twice", rev.ID),
			}
		}
		if rev.Upgrade == nil || rev.Downgrade == nil {
			return nil, &ChainError{
				Kind:      ChainMissingOperation,
				Revisions: []string{rev.ID},
				Detail:    fmt.Sprintf("revision %s must define both upgrade and downgrade", rev.ID),
			}
		}
		byID[rev.ID] = rev
	}

	// Each predecessor may have one successor; the root is the successor of ""
	next := make(map[string]string, len(revisions))
	for _, rev := range revisions {
		if rev.DownRevision != "" {
			if _, ok := byID[rev.DownRevision]; !ok {
				return nil, &ChainError{
					Kind:      ChainMissingPredecessor,
					Revisions: []string{rev.ID, rev.DownRevision},
					Detail:    fmt.Sprintf("revision %s revises unknown revision %s", rev.ID, rev.DownRevision),
				}
			}
		}
		if other, taken := next[rev.DownRevision]; taken {
			ids := []string{other, rev.ID}
			sort.Strings(ids)
			return nil, &ChainError{
				Kind:      ChainBranch,
				Revisions: ids,
				Detail:    fmt.Sprintf("revisions %s and %s both revise %s", ids[0], ids[1], displayRevision(rev.DownRevision)),
			}
		}
		next[rev.DownRevision] = rev.ID
	}

	chain := make([]Revision, 0, len(revisions))
	for id, ok := next[""]; ok; id, ok = next[id] {
		chain = append(chain, byID[id])
		if len(chain) > len(revisions) {
			break
		}
	}

	if len(chain) != len(revisions) {
		reached := make(map[string]bool, len(chain))
		for _, rev := range chain {
			reached[rev.ID] = true
		}
		var orphans []string
		for id := range byID {
			if !reached[id] {
				orphans = append(orphans, id)
			}
		}
		sort.Strings(orphans)
		return nil, &ChainError{
			Kind:      ChainCycle,
			Revisions: orphans,
			Detail:    fmt.Sprintf("revisions %s are not reachable from the root", strings.Join(orphans, ", ")),
		}
	}

	return chain, nil
}

// Registry is a resolved, immutable revision chain
type Registry struct {
	chain    []Revision
	position map[string]int
}

// NewRegistry resolves revisions once. Chain errors surface here, before any
// database work.
func NewRegistry(revisions ...Revision) (*Registry, error) {
	chain, err := ResolveChain(revisions)
	if err != nil {
		return nil, err
	}

	position := make(map[string]int, len(chain))
	for i, rev := range chain {
		position[rev.ID] = i + 1
	}

	return &Registry{chain: chain, position: position}, nil
}

// Revisions returns the chain from root to head
func (r *Registry) Revisions() []Revision {
	out := make([]Revision, len(r.chain))
	copy(out, r.chain)
	return out
}

// Len returns the number of revisions
func (r *Registry) Len() int {
	return len(r.chain)
}

// Head returns the newest revision ID, empty for an empty chain
func (r *Registry) Head() string {
	if len(r.chain) == 0 {
		return ""
	}
	return r.chain[len(r.chain)-1].ID
}

// Get returns the revision with the exact id
func (r *Registry) Get(id string) (Revision, bool) {
	pos, ok := r.position[id]
	if !ok {
		return Revision{}, false
	}
	return r.chain[pos-1], true
}

// Contains reports whether id is registered. The root state is always known.
func (r *Registry) Contains(id string) bool {
	if id == "" {
		return true
	}
	_, ok := r.position[id]
	return ok
}

// Position returns how many revisions are applied when the marker is id
func (r *Registry) Position(id string) (int, error) {
	if id == "" {
		return 0, nil
	}
	pos, ok := r.position[id]
	if !ok {
		return 0, &UnknownRevisionError{Ref: id}
	}
	return pos, nil
}

// Applied returns the revisions at or before id, root first
func (r *Registry) Applied(id string) ([]Revision, error) {
	pos, err := r.Position(id)
	if err != nil {
		return nil, err
	}
	return append([]Revision(nil), r.chain[:pos]...), nil
}

// Pending returns the revisions after id, root first
func (r *Registry) Pending(id string) ([]Revision, error) {
	pos, err := r.Position(id)
	if err != nil {
		return nil, err
	}
	return append([]Revision(nil), r.chain[pos:]...), nil
}

// Path returns the steps that move the marker from one revision to another.
// Both ends are exact IDs, "" being the root state.
func (r *Registry) Path(from, to string) (Plan, error) {
	fi, err := r.Position(from)
	if err != nil {
		return Plan{}, err
	}
	ti, err := r.Position(to)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{Direction: Up, From: from, To: to}
	switch {
	case ti > fi:
		for _, rev := range r.chain[fi:ti] {
			plan.Steps = append(plan.Steps, upStep(rev))
		}
	case ti < fi:
		plan.Direction = Down
		for i := fi - 1; i >= ti; i-- {
			plan.Steps = append(plan.Steps, downStep(r.chain[i]))
		}
	}
	return plan, nil
}

// Resolve turns a user supplied reference into an exact revision ID.
// Accepted forms are base, head, a full ID, a unique ID prefix, and any of
// those followed by +N or -N. A bare +N or -N is relative to current.
func (r *Registry) Resolve(ref, current string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", &UnknownRevisionError{Ref: ref}
	}
	if _, ok := r.position[ref]; ok {
		return ref, nil
	}

	anchor, offset, relative, err := splitRelative(ref)
	if err != nil {
		return "", err
	}

	var id string
	if anchor == "" {
		id = current
	} else {
		id, err = r.resolveAbsolute(anchor)
		if err != nil {
			return "", err
		}
	}
	if !relative {
		return id, nil
	}

	pos, err := r.Position(id)
	if err != nil {
		return "", err
	}
	target := pos + offset
	if target < 0 || target > len(r.chain) {
		return "", &UnknownRevisionError{Ref: ref}
	}
	if target == 0 {
		return "", nil
	}
	return r.chain[target-1].ID, nil
}

func (r *Registry) resolveAbsolute(ref string) (string, error) {
	switch ref {
	case Base:
		return "", nil
	case Head:
		return r.Head(), nil
	}

	if _, ok := r.position[ref]; ok {
		return ref, nil
	}

	var candidates []string
	for _, rev := range r.chain {
		if strings.HasPrefix(rev.ID, ref) {
			candidates = append(candidates, rev.ID)
		}
	}
	switch len(candidates) {
	case 0:
		return "", &UnknownRevisionError{Ref: ref}
	case 1:
		return candidates[0], nil
	}
	sort.Strings(candidates)
	return "", &UnknownRevisionError{Ref: ref, Candidates: candidates}
}

// splitRelative splits "head-2" into ("head", -2). Exact IDs containing a
// sign are matched before this is called.
func splitRelative(ref string) (anchor string, offset int, relative bool, err error) {
	idx := strings.LastIndexAny(ref, "+-")
	if idx < 0 {
		return ref, 0, false, nil
	}

	n, convErr := strconv.Atoi(ref[idx+1:])
	if convErr != nil || n < 0 {
		return "", 0, false, &UnknownRevisionError{Ref: ref}
	}
	if ref[idx] == '-' {
		n = -n
	}
	return ref[:idx], n, true, nil
}
