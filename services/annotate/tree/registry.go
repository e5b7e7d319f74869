// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

// registry resolves node ids to items. It keeps one combined index across
// every kind plus a typed index per kind, so lookups that need a concrete
// variant avoid a type assertion on the hot path.
//
// Ids are unique across kinds: a Group and a Segment can never share an id.
type registry struct {
	items    map[string]Item
	groups   map[string]*Group
	lists    map[string]*Groups
	segments map[string]*Segment
}

func newRegistry() *registry {
	return &registry{
		items:    make(map[string]Item),
		groups:   make(map[string]*Group),
		lists:    make(map[string]*Groups),
		segments: make(map[string]*Segment),
	}
}

// register indexes the item under its id. It returns ErrDuplicateID when the
// id is already taken by any kind.
func (r *registry) register(it Item) error {
	id := it.ID()
	if _, ok := r.items[id]; ok {
		return NewIDError(id, ErrDuplicateID)
	}
	r.items[id] = it
	switch v := it.(type) {
	case *Group:
		r.groups[id] = v
	case *Groups:
		r.lists[id] = v
	case *Segment:
		r.segments[id] = v
	}
	return nil
}

// unregister drops the id from the combined and typed indexes. Unknown ids
// are ignored so removal is idempotent.
func (r *registry) unregister(id string) {
	delete(r.items, id)
	delete(r.groups, id)
	delete(r.lists, id)
	delete(r.segments, id)
}

func (r *registry) lookup(id string) (Item, bool) {
	it, ok := r.items[id]
	return it, ok
}

func (r *registry) group(id string) (*Group, bool) {
	g, ok := r.groups[id]
	return g, ok
}

func (r *registry) groupList(id string) (*Groups, bool) {
	l, ok := r.lists[id]
	return l, ok
}

func (r *registry) segment(id string) (*Segment, bool) {
	s, ok := r.segments[id]
	return s, ok
}

func (r *registry) len() int { return len(r.items) }
