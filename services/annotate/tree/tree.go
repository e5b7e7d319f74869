// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tree implements the annotation tree model: an arena of Groups
// containers, Group nodes and Segment leaves addressed by id, with duration
// aggregation, a visible/hidden partition per group synchronized to a
// waveform engine, and move/copy/toggle/rank operations over the hierarchy.
package tree

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/evfinkn/speechviz-sub000/services/annotate/peaks"
	"github.com/evfinkn/speechviz-sub000/services/annotate/render"
)

// DefaultMaxNodes is the default node capacity of a Tree.
const DefaultMaxNodes = 100_000

// Tree is the arena owning every annotation item of one document. All
// structural mutation goes through Tree methods so the registry, the
// renderer, the waveform engine and the duration totals stay consistent.
//
// Description:
//
//	The tree holds Groups containers, Group nodes and Segment leaves.
//	Segments live under a Group; the Group tracks which of its segments
//	are visible on the waveform. Durations accumulate upward, so any
//	container answers its total annotated time in O(1).
//
// Thread Safety:
//
//	NOT thread-safe. Confine a Tree to one goroutine or synchronize
//	externally; the annotate service serializes per-document commands.
type Tree struct {
	reg      *registry
	renderer render.TreeRenderer
	engine   peaks.Engine
	logger   *slog.Logger
	maxNodes int
	roots    []string

	// primaryID is the group currently highlighted as the primary speaker.
	primaryID string
}

// Option configures a Tree.
type Option func(*Tree)

// WithRenderer sets the visual tree renderer. Defaults to render.NewNop().
func WithRenderer(r render.TreeRenderer) Option {
	return func(t *Tree) {
		if r != nil {
			t.renderer = r
		}
	}
}

// WithEngine sets the waveform engine. Defaults to peaks.NewNop().
func WithEngine(e peaks.Engine) Option {
	return func(t *Tree) {
		if e != nil {
			t.engine = e
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tree) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMaxNodes caps how many items the tree may hold.
func WithMaxNodes(n int) Option {
	return func(t *Tree) {
		if n > 0 {
			t.maxNodes = n
		}
	}
}

// NewTree creates an empty tree.
func NewTree(opts ...Option) *Tree {
	t := &Tree{
		reg:      newRegistry(),
		renderer: render.NewNop(),
		engine:   peaks.NewNop(),
		logger:   slog.Default(),
		maxNodes: DefaultMaxNodes,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ====== Specs ======

// GroupSpec describes a Group to add. Zero values fall back to defaults:
// a generated id, text equal to the id, checked on, and removable and
// renamable off.
type GroupSpec struct {
	ID     string
	Parent string
	Text   string

	// SNR is the optional signal-to-noise metric used for ranking.
	SNR *float64

	Checked   *bool
	Removable *bool
	Renamable *bool

	// MoveTo and CopyTo declare the destination ids offered for moving and
	// copying this group's segments. Entries may name Groups containers,
	// which expand to their nested groups.
	MoveTo []string
	CopyTo []string
}

// GroupsSpec describes a Groups container to add. Defaults match GroupSpec.
type GroupsSpec struct {
	ID     string
	Parent string
	Text   string

	Checked   *bool
	Removable *bool
	Renamable *bool
}

// SegmentSpec describes a Segment to add. Parent is required and must name
// a Group. Defaults match GroupSpec, with editable off.
type SegmentSpec struct {
	ID     string
	Parent string
	Text   string

	Start float64
	End   float64

	Checked   *bool
	Editable  *bool
	Removable *bool
	Renamable *bool

	// Color is the waveform marker color, empty for the engine default.
	Color string

	// LabelText overrides the waveform marker label. Empty means the
	// display text is used.
	LabelText string
}

// ====== Adding ======

// AddGroup creates a Group and attaches it to the given parent, or as a
// root when the parent id is empty.
func (t *Tree) AddGroup(spec GroupSpec) (*Group, error) {
	if err := t.checkCapacity(); err != nil {
		return nil, err
	}
	parent, err := t.resolveParent(spec.Parent, KindGroup)
	if err != nil {
		return nil, err
	}
	g := &Group{
		base:    t.newBase(spec.ID, spec.Text, spec.Checked, spec.Removable, spec.Renamable),
		hidden:  make(map[string]struct{}),
		visible: make(map[string]struct{}),
		moveTo:  append([]string(nil), spec.MoveTo...),
		copyTo:  append([]string(nil), spec.CopyTo...),
	}
	if spec.SNR != nil {
		v := *spec.SNR
		g.snr = &v
	}
	if err := t.reg.register(g); err != nil {
		return nil, err
	}
	t.attachAt(g, parent, -1)
	t.createVisual(g, parent)
	return g, nil
}

// AddGroups creates a Groups container and attaches it to the given parent,
// or as a root when the parent id is empty.
func (t *Tree) AddGroups(spec GroupsSpec) (*Groups, error) {
	if err := t.checkCapacity(); err != nil {
		return nil, err
	}
	parent, err := t.resolveParent(spec.Parent, KindGroups)
	if err != nil {
		return nil, err
	}
	l := &Groups{
		base: t.newBase(spec.ID, spec.Text, spec.Checked, spec.Removable, spec.Renamable),
	}
	if err := t.reg.register(l); err != nil {
		return nil, err
	}
	t.attachAt(l, parent, -1)
	t.createVisual(l, parent)
	return l, nil
}

// AddSegment creates a Segment under its parent Group. The segment joins
// the parent's visible set, and the waveform engine, only when both the
// segment and the parent are checked.
func (t *Tree) AddSegment(spec SegmentSpec) (*Segment, error) {
	if err := t.checkCapacity(); err != nil {
		return nil, err
	}
	if err := validateInterval(spec.Start, spec.End); err != nil {
		return nil, err
	}
	if spec.Parent == "" {
		return nil, fmt.Errorf("segment requires a parent group: %w", ErrInvalidParent)
	}
	parent, err := t.resolveParent(spec.Parent, KindSegment)
	if err != nil {
		return nil, err
	}
	group := parent.(*Group)
	s := &Segment{
		base:      t.newBase(spec.ID, spec.Text, spec.Checked, spec.Removable, spec.Renamable),
		start:     spec.Start,
		end:       spec.End,
		editable:  boolValue(spec.Editable, false),
		color:     spec.Color,
		labelText: spec.LabelText,
	}
	if err := t.reg.register(s); err != nil {
		return nil, err
	}
	t.attachAt(s, parent, -1)
	t.createVisual(s, parent)
	t.bubbleDuration(s.Parent(), s.Duration())

	if s.Checked() && group.Checked() {
		group.markVisible(s.ID())
		engineID, err := peaks.AddInterval(t.engine, t.intervalSpec(s))
		if err != nil {
			// Unwind so a failed add leaves the tree exactly as it was.
			t.bubbleDuration(s.Parent(), -s.Duration())
			t.detach(s)
			t.renderer.RemoveVisualNode(s.Visual())
			t.reg.unregister(s.ID())
			return nil, fmt.Errorf("add interval for %s: %w", s.ID(), err)
		}
		s.setExternalID(engineID)
	} else {
		group.markHidden(s.ID())
	}
	t.resortByStart(group)
	return s, nil
}

// newBase fills the shared fields, generating an id when none is given.
func (t *Tree) newBase(id, text string, checked, removable, renamable *bool) base {
	if id == "" {
		id = uuid.NewString()
	}
	if text == "" {
		text = id
	}
	return base{
		id:        id,
		text:      text,
		checked:   boolValue(checked, true),
		removable: boolValue(removable, false),
		renamable: boolValue(renamable, false),
	}
}

// ====== Removing ======

// Remove detaches the item and its whole subtree from the tree, the
// renderer and the waveform engine. It fails with ErrNotRemovable when the
// item does not allow removal; descendants are removed with their ancestor
// regardless of their own flag.
func (t *Tree) Remove(id string) error {
	it, ok := t.reg.lookup(id)
	if !ok {
		return NewIDError(id, ErrNotFound)
	}
	if !it.Removable() {
		return NewIDError(id, ErrNotRemovable)
	}
	t.removeSubtree(it)
	return nil
}

func (t *Tree) removeSubtree(it Item) {
	if engineIDs := t.subtreeEngineIDs(it); len(engineIDs) > 0 {
		if err := t.engine.RemoveIntervals(engineIDs); err != nil {
			t.logger.Error("remove intervals failed", "node_id", it.ID(), "error", err)
		}
	}
	t.bubbleDuration(it.Parent(), -it.Duration())
	t.detach(it)
	t.renderer.RemoveVisualNode(it.Visual())
	t.forEachInSubtree(it, func(n Item) {
		t.reg.unregister(n.ID())
	})
}

// subtreeEngineIDs collects the engine ids of every segment in the subtree
// that currently has a waveform marker, in tree order.
func (t *Tree) subtreeEngineIDs(it Item) []string {
	var ids []string
	t.forEachInSubtree(it, func(n Item) {
		if s, ok := n.(*Segment); ok && s.ExternalID() != "" {
			ids = append(ids, s.ExternalID())
		}
	})
	return ids
}

// forEachInSubtree visits the item and its descendants in depth-first child
// order.
func (t *Tree) forEachInSubtree(it Item, fn func(Item)) {
	fn(it)
	for _, cid := range it.Children() {
		if c, ok := t.reg.lookup(cid); ok {
			t.forEachInSubtree(c, fn)
		}
	}
}

// ====== Moving ======

// Move reattaches the item under a new parent. A segment lands at its start
// time position among the new siblings; other kinds append. An empty parent
// id moves the item to the root level.
func (t *Tree) Move(id, newParent string) error {
	if err := t.MoveAt(id, newParent, -1); err != nil {
		return err
	}
	if it, ok := t.reg.lookup(id); ok {
		if g, ok := t.reg.group(it.Parent()); ok {
			t.resortByStart(g)
		}
	}
	return nil
}

// MoveAt reattaches the item under a new parent at the given child index.
// A negative index appends. Moving an item into itself or into one of its
// descendants fails with a CyclicMoveError naming the offending path.
func (t *Tree) MoveAt(id, newParent string, index int) error {
	it, ok := t.reg.lookup(id)
	if !ok {
		return NewIDError(id, ErrNotFound)
	}
	if newParent != "" {
		if _, ok := t.reg.lookup(newParent); !ok {
			return NewIDError(newParent, ErrNotFound)
		}
		if path, cyclic := t.descentPath(id, newParent); cyclic {
			return NewCyclicMoveError(id, newParent, path)
		}
	}
	parent, err := t.resolveParent(newParent, it.Kind())
	if err != nil {
		return err
	}
	if it.Kind() == KindSegment && parent == nil {
		return fmt.Errorf("segment requires a parent group: %w", ErrInvalidParent)
	}

	dur := it.Duration()
	t.bubbleDuration(it.Parent(), -dur)
	t.detach(it)
	t.attachAt(it, parent, index)
	t.bubbleDuration(it.Parent(), dur)

	if s, ok := it.(*Segment); ok {
		if err := t.repartition(s, parent.(*Group)); err != nil {
			return err
		}
	}
	t.renderer.MoveVisualNode(it.Visual(), t.visualOf(parent), index)
	return nil
}

// descentPath reports whether target is id itself or lies in id's subtree,
// returning the id chain from id down to target when it does.
func (t *Tree) descentPath(id, target string) ([]string, bool) {
	var chain []string
	for cur := target; cur != ""; {
		chain = append(chain, cur)
		if cur == id {
			for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
				chain[i], chain[j] = chain[j], chain[i]
			}
			return chain, true
		}
		it, ok := t.reg.lookup(cur)
		if !ok {
			return nil, false
		}
		cur = it.Parent()
	}
	return nil, false
}

// repartition reassigns a moved segment to the new parent's visible or
// hidden set and reconciles the waveform marker with the new state.
func (t *Tree) repartition(s *Segment, newParent *Group) error {
	wasVisible := s.ExternalID() != ""
	nowVisible := s.Checked() && newParent.Checked()
	if nowVisible {
		newParent.markVisible(s.ID())
	} else {
		newParent.markHidden(s.ID())
	}
	switch {
	case nowVisible && !wasVisible:
		engineID, err := peaks.AddInterval(t.engine, t.intervalSpec(s))
		if err != nil {
			return fmt.Errorf("add interval for %s: %w", s.ID(), err)
		}
		s.setExternalID(engineID)
	case !nowVisible && wasVisible:
		engineID := s.ExternalID()
		s.setExternalID("")
		if err := t.engine.RemoveIntervals([]string{engineID}); err != nil {
			return fmt.Errorf("remove interval for %s: %w", s.ID(), err)
		}
	}
	return nil
}

// ====== Renaming and resizing ======

// Rename changes the item's display text. The waveform marker label follows
// for segments that have no explicit label override.
func (t *Tree) Rename(id, text string) error {
	it, ok := t.reg.lookup(id)
	if !ok {
		return NewIDError(id, ErrNotFound)
	}
	if !it.Renamable() {
		return NewIDError(id, ErrNotRenamable)
	}
	it.setText(text)
	t.renderer.SetText(it.Visual(), text)
	if s, ok := it.(*Segment); ok && s.ExternalID() != "" {
		label := s.effectiveLabel()
		err := t.engine.UpdateInterval(s.ExternalID(), peaks.IntervalUpdate{LabelText: &label})
		if err != nil {
			return fmt.Errorf("update interval label for %s: %w", id, err)
		}
	}
	return nil
}

// Resize changes a segment's interval boundaries. The parent's children are
// re-sorted by start time afterwards, so sibling order always reflects
// timeline order.
func (t *Tree) Resize(id string, start, end float64) error {
	s, ok := t.reg.segment(id)
	if !ok {
		return NewIDError(id, ErrNotFound)
	}
	if !s.Editable() {
		return NewIDError(id, ErrNotEditable)
	}
	if err := validateInterval(start, end); err != nil {
		return err
	}
	oldDur := s.Duration()
	s.setInterval(start, end)
	t.bubbleDuration(s.Parent(), s.Duration()-oldDur)

	if s.ExternalID() != "" {
		ns, ne := start, end
		err := t.engine.UpdateInterval(s.ExternalID(), peaks.IntervalUpdate{Start: &ns, End: &ne})
		if err != nil {
			return fmt.Errorf("update interval for %s: %w", id, err)
		}
	}
	if g, ok := t.reg.group(s.Parent()); ok {
		t.resortByStart(g)
	}
	return nil
}

// resortByStart stable-sorts a group's children by segment start time and
// tells the renderer when the order actually changed.
func (t *Tree) resortByStart(g *Group) {
	before := append([]string(nil), g.children...)
	sort.SliceStable(g.children, func(i, j int) bool {
		a, aok := t.reg.segment(g.children[i])
		b, bok := t.reg.segment(g.children[j])
		if !aok || !bok {
			return false
		}
		return a.Start() < b.Start()
	})
	if !equalOrder(before, g.children) {
		t.renderer.ReorderChildren(g.Visual(), t.handlesOf(g.children))
	}
}

// ====== Toggling ======

// Toggle flips the item's checked state, or forces it to the given state,
// and reports whether anything changed. Toggling a container applies the
// new state to every descendant. Segments leaving the visible state are
// removed from the waveform engine in one batched call, and segments
// entering it are added in one batched call. Forcing the current state is
// a no-op reported as unchanged. The engine batches run before any model
// mutation, so a rejected batch leaves the tree exactly as it was; the
// model stays authoritative and the engine re-syncs on its next attach.
func (t *Tree) Toggle(id string, force *bool) (bool, error) {
	it, ok := t.reg.lookup(id)
	if !ok {
		return false, NewIDError(id, ErrNotFound)
	}
	desired := !it.Checked()
	if force != nil {
		if *force == it.Checked() {
			return false, nil
		}
		desired = *force
	}

	parentChecked := true
	if s, ok := it.(*Segment); ok {
		if p, ok := t.reg.group(s.Parent()); ok {
			parentChecked = p.Checked()
		}
	}
	var toShow []*Segment
	var toHide []string
	t.planToggle(it, desired, parentChecked, &toShow, &toHide)

	if len(toHide) > 0 {
		if err := t.engine.RemoveIntervals(toHide); err != nil {
			return false, fmt.Errorf("remove %d intervals: %w", len(toHide), err)
		}
	}
	var engineIDs []string
	if len(toShow) > 0 {
		specs := make([]peaks.Interval, len(toShow))
		for i, s := range toShow {
			specs[i] = t.intervalSpec(s)
		}
		var err error
		engineIDs, err = t.engine.AddIntervals(specs)
		if err != nil {
			return false, fmt.Errorf("add %d intervals: %w", len(toShow), err)
		}
		if len(engineIDs) != len(toShow) {
			return false, fmt.Errorf("engine returned %d ids for %d intervals: %w",
				len(engineIDs), len(toShow), ErrInvariant)
		}
	}

	t.applyToggle(it, desired)
	for i, s := range toShow {
		s.setExternalID(engineIDs[i])
	}
	return true, nil
}

// planToggle walks the subtree a toggle would touch and collects the
// segments whose waveform presence will change, without mutating
// anything. parentChecked is the checked state the segment's parent
// will have once the toggle is applied; every container inside the
// toggled subtree ends up in the desired state, so recursion passes
// the desired state down.
func (t *Tree) planToggle(it Item, on, parentChecked bool, toShow *[]*Segment, toHide *[]string) {
	if s, ok := it.(*Segment); ok {
		if _, ok := t.reg.group(s.Parent()); !ok {
			return
		}
		visible := on && parentChecked
		if visible && s.ExternalID() == "" {
			*toShow = append(*toShow, s)
		}
		if !visible && s.ExternalID() != "" {
			*toHide = append(*toHide, s.ExternalID())
		}
		return
	}
	for _, cid := range it.Children() {
		if c, ok := t.reg.lookup(cid); ok {
			t.planToggle(c, on, on, toShow, toHide)
		}
	}
}

// applyToggle sets the checked state down the subtree and repartitions
// segments between the visible and hidden sets. Engine ids for newly
// visible segments are assigned by Toggle once the engine batch has
// succeeded.
func (t *Tree) applyToggle(it Item, on bool) {
	it.setChecked(on)
	t.renderer.SetChecked(it.Visual(), on)

	if s, ok := it.(*Segment); ok {
		p, ok := t.reg.group(s.Parent())
		if !ok {
			return
		}
		if on && p.Checked() {
			p.markVisible(s.ID())
		} else {
			p.markHidden(s.ID())
			s.setExternalID("")
		}
		return
	}
	for _, cid := range it.Children() {
		if c, ok := t.reg.lookup(cid); ok {
			t.applyToggle(c, on)
		}
	}
}

// ====== Copying ======

// Copy copies a segment, or every segment child of a group, into the
// destination group. Segments whose boundaries already exist in the
// destination are skipped. It returns the newly created segments; an empty
// result means everything was already present.
func (t *Tree) Copy(id, destID string) ([]*Segment, error) {
	it, ok := t.reg.lookup(id)
	if !ok {
		return nil, NewIDError(id, ErrNotFound)
	}
	dest, ok := t.reg.group(destID)
	if !ok {
		if _, exists := t.reg.lookup(destID); !exists {
			return nil, NewIDError(destID, ErrNotFound)
		}
		return nil, NewIDError(destID, ErrInvalidParent)
	}

	var sources []*Segment
	switch v := it.(type) {
	case *Segment:
		sources = []*Segment{v}
	case *Group:
		for _, cid := range v.Children() {
			if s, ok := t.reg.segment(cid); ok {
				sources = append(sources, s)
			}
		}
	default:
		return nil, fmt.Errorf("cannot copy a groups container: %w", NewIDError(id, ErrInvalidParent))
	}

	var created []*Segment
	for _, src := range sources {
		if dest.ID() == src.Parent() || t.hasBoundaries(dest, src.Start(), src.End()) {
			continue
		}
		editable := src.Editable()
		renamable := src.Renamable()
		copied, err := t.AddSegment(SegmentSpec{
			Parent:    dest.ID(),
			Text:      src.Text(),
			Start:     src.Start(),
			End:       src.End(),
			Removable: boolPtr(true),
			Editable:  &editable,
			Renamable: &renamable,
			Color:     src.Color(),
			LabelText: src.labelText,
		})
		if err != nil {
			return created, err
		}
		created = append(created, copied)
	}
	return created, nil
}

// hasBoundaries reports whether the group already holds a segment with the
// exact same interval.
func (t *Tree) hasBoundaries(g *Group, start, end float64) bool {
	for _, cid := range g.Children() {
		if s, ok := t.reg.segment(cid); ok && s.Start() == start && s.End() == end {
			return true
		}
	}
	return false
}

// ====== Sorting ======

// SortKey selects the property SortChildren orders by.
type SortKey int

const (
	// SortByStart orders segment children by interval start time.
	SortByStart SortKey = iota

	// SortByText orders children lexicographically by display text.
	SortByText

	// SortByDuration orders children by total duration.
	SortByDuration
)

// SortChildren stable-sorts the item's children by the given key, ascending
// unless reverse is set.
func (t *Tree) SortChildren(id string, key SortKey, reverse bool) error {
	it, ok := t.reg.lookup(id)
	if !ok {
		return NewIDError(id, ErrNotFound)
	}
	children := it.Children()
	before := append([]string(nil), children...)
	less := t.lessFunc(children, key)
	sort.SliceStable(children, func(i, j int) bool {
		if reverse {
			return less(j, i)
		}
		return less(i, j)
	})
	if !equalOrder(before, children) {
		t.renderer.ReorderChildren(it.Visual(), t.handlesOf(children))
	}
	return nil
}

func (t *Tree) lessFunc(children []string, key SortKey) func(i, j int) bool {
	value := func(idx int) (float64, string) {
		it, ok := t.reg.lookup(children[idx])
		if !ok {
			return math.Inf(1), ""
		}
		switch key {
		case SortByStart:
			if s, ok := it.(*Segment); ok {
				return s.Start(), ""
			}
			return math.Inf(1), ""
		case SortByDuration:
			return it.Duration(), ""
		default:
			return 0, it.Text()
		}
	}
	return func(i, j int) bool {
		ni, si := value(i)
		nj, sj := value(j)
		if key == SortByText {
			return si < sj
		}
		return ni < nj
	}
}

// ====== Destinations ======

// ExpandMoveTo resolves the move destinations offered for the item. For a
// segment the parent group's declared list is used; for a group its own.
// Groups containers in the list expand recursively to their nested groups.
// The item's current parent is never offered.
func (t *Tree) ExpandMoveTo(id string) ([]*Group, error) {
	return t.expandDestinations(id, func(g *Group) []string { return g.moveTo })
}

// ExpandCopyTo resolves the copy destinations offered for the item, with
// the same expansion rules as ExpandMoveTo.
func (t *Tree) ExpandCopyTo(id string) ([]*Group, error) {
	return t.expandDestinations(id, func(g *Group) []string { return g.copyTo })
}

func (t *Tree) expandDestinations(id string, list func(*Group) []string) ([]*Group, error) {
	it, ok := t.reg.lookup(id)
	if !ok {
		return nil, NewIDError(id, ErrNotFound)
	}
	var declared []string
	exclude := it.Parent()
	switch v := it.(type) {
	case *Segment:
		p, ok := t.reg.group(v.Parent())
		if !ok {
			return nil, nil
		}
		declared = list(p)
	case *Group:
		declared = list(v)
	default:
		return nil, nil
	}

	seen := make(map[string]struct{})
	var out []*Group
	var expand func(ids []string)
	expand = func(ids []string) {
		for _, did := range ids {
			if did == exclude || did == id {
				continue
			}
			if g, ok := t.reg.group(did); ok {
				if _, dup := seen[did]; !dup {
					seen[did] = struct{}{}
					out = append(out, g)
				}
				continue
			}
			if l, ok := t.reg.groupList(did); ok {
				expand(l.Children())
				continue
			}
			t.logger.Debug("destination id not found", "node_id", id, "destination", did)
		}
	}
	expand(declared)
	return out, nil
}

// ====== Lookup ======

// Get returns the item with the given id.
func (t *Tree) Get(id string) (Item, bool) { return t.reg.lookup(id) }

// Group returns the Group with the given id.
func (t *Tree) Group(id string) (*Group, bool) { return t.reg.group(id) }

// GroupList returns the Groups container with the given id.
func (t *Tree) GroupList(id string) (*Groups, bool) { return t.reg.groupList(id) }

// Segment returns the Segment with the given id.
func (t *Tree) Segment(id string) (*Segment, bool) { return t.reg.segment(id) }

// Roots returns the top-level items in display order.
func (t *Tree) Roots() []Item {
	out := make([]Item, 0, len(t.roots))
	for _, id := range t.roots {
		if it, ok := t.reg.lookup(id); ok {
			out = append(out, it)
		}
	}
	return out
}

// Len returns the number of items in the tree.
func (t *Tree) Len() int { return t.reg.len() }

// Path returns the ancestor ids of the item, root first, excluding the item
// itself. A root item has an empty path.
func (t *Tree) Path(id string) ([]string, error) {
	it, ok := t.reg.lookup(id)
	if !ok {
		return nil, NewIDError(id, ErrNotFound)
	}
	var path []string
	for pid := it.Parent(); pid != ""; {
		p, ok := t.reg.lookup(pid)
		if !ok {
			return nil, fmt.Errorf("broken parent chain at %s: %w", pid, ErrInvariant)
		}
		path = append(path, pid)
		pid = p.Parent()
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// PlaybackIDs returns the engine interval ids of the visible segments in
// the item's subtree, ordered by start time. Handing the result to a
// playback sequencer plays the item.
func (t *Tree) PlaybackIDs(id string) ([]string, error) {
	it, ok := t.reg.lookup(id)
	if !ok {
		return nil, NewIDError(id, ErrNotFound)
	}
	var segs []*Segment
	t.forEachInSubtree(it, func(n Item) {
		if s, ok := n.(*Segment); ok && s.ExternalID() != "" {
			segs = append(segs, s)
		}
	})
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start() < segs[j].Start() })
	ids := make([]string, len(segs))
	for i, s := range segs {
		ids[i] = s.ExternalID()
	}
	return ids, nil
}

// SetActive marks or unmarks the item as the currently playing one.
func (t *Tree) SetActive(id string, on bool) error {
	it, ok := t.reg.lookup(id)
	if !ok {
		return NewIDError(id, ErrNotFound)
	}
	t.renderer.SetActive(it.Visual(), on)
	return nil
}

// ====== Validation ======

// durationEpsilon absorbs float drift from repeated duration deltas.
const durationEpsilon = 1e-6

// Validate checks the tree's structural invariants: parent and child links
// agree, every registered item is reachable from a root, container
// durations equal the sum of their children, and each group's visible and
// hidden sets exactly partition its children with waveform markers matching
// the visible set. It returns ErrInvariant describing the first violation.
func (t *Tree) Validate() error {
	visited := make(map[string]struct{})
	for _, rid := range t.roots {
		r, ok := t.reg.lookup(rid)
		if !ok {
			return fmt.Errorf("root %s not registered: %w", rid, ErrInvariant)
		}
		if r.Parent() != "" {
			return fmt.Errorf("root %s has parent %s: %w", rid, r.Parent(), ErrInvariant)
		}
		if err := t.validateSubtree(r, visited); err != nil {
			return err
		}
	}
	if len(visited) != t.reg.len() {
		return fmt.Errorf("%d of %d items unreachable from roots: %w",
			t.reg.len()-len(visited), t.reg.len(), ErrInvariant)
	}
	return nil
}

func (t *Tree) validateSubtree(it Item, visited map[string]struct{}) error {
	id := it.ID()
	if _, seen := visited[id]; seen {
		return fmt.Errorf("%s reachable twice: %w", id, ErrInvariant)
	}
	visited[id] = struct{}{}

	var childSum float64
	for _, cid := range it.Children() {
		c, ok := t.reg.lookup(cid)
		if !ok {
			return fmt.Errorf("child %s of %s not registered: %w", cid, id, ErrInvariant)
		}
		if c.Parent() != id {
			return fmt.Errorf("child %s of %s claims parent %s: %w", cid, id, c.Parent(), ErrInvariant)
		}
		if err := t.validateChildKind(it, c); err != nil {
			return err
		}
		childSum += c.Duration()
		if err := t.validateSubtree(c, visited); err != nil {
			return err
		}
	}
	if it.Kind() != KindSegment && math.Abs(childSum-it.Duration()) > durationEpsilon {
		return fmt.Errorf("%s duration %v but children sum %v: %w",
			id, it.Duration(), childSum, ErrInvariant)
	}
	if g, ok := it.(*Group); ok {
		if err := t.validatePartition(g); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) validateChildKind(parent, child Item) error {
	valid := false
	switch parent.Kind() {
	case KindGroup:
		valid = child.Kind() == KindSegment
	case KindGroups:
		valid = child.Kind() == KindGroup || child.Kind() == KindGroups
	}
	if !valid {
		return fmt.Errorf("%s holds %s child %s: %w",
			parent.Kind(), child.Kind(), child.ID(), ErrInvariant)
	}
	return nil
}

func (t *Tree) validatePartition(g *Group) error {
	if len(g.visible)+len(g.hidden) != len(g.children) {
		return fmt.Errorf("group %s partitions %d of %d children: %w",
			g.ID(), len(g.visible)+len(g.hidden), len(g.children), ErrInvariant)
	}
	for _, cid := range g.children {
		_, vis := g.visible[cid]
		_, hid := g.hidden[cid]
		if vis == hid {
			return fmt.Errorf("segment %s in group %s is in %d partitions: %w",
				cid, g.ID(), btoi(vis)+btoi(hid), ErrInvariant)
		}
		s, ok := t.reg.segment(cid)
		if !ok {
			continue
		}
		if vis && s.ExternalID() == "" {
			return fmt.Errorf("visible segment %s has no waveform marker: %w", cid, ErrInvariant)
		}
		if hid && s.ExternalID() != "" {
			return fmt.Errorf("hidden segment %s still has waveform marker %s: %w",
				cid, s.ExternalID(), ErrInvariant)
		}
	}
	return nil
}

// ====== Internals ======

func (t *Tree) checkCapacity() error {
	if t.reg.len() >= t.maxNodes {
		return fmt.Errorf("tree holds %d items: %w", t.reg.len(), ErrMaxNodesExceeded)
	}
	return nil
}

// resolveParent looks up and kind-checks the parent for a child of the
// given kind. An empty id resolves to nil, meaning the root level; segments
// are kept off the root level by their callers.
func (t *Tree) resolveParent(parentID string, child Kind) (Item, error) {
	if parentID == "" {
		return nil, nil
	}
	p, ok := t.reg.lookup(parentID)
	if !ok {
		return nil, NewIDError(parentID, ErrNotFound)
	}
	valid := false
	switch child {
	case KindSegment:
		valid = p.Kind() == KindGroup
	case KindGroup, KindGroups:
		valid = p.Kind() == KindGroups
	}
	if !valid {
		return nil, NewIDError(parentID, ErrInvalidParent)
	}
	return p, nil
}

// attachAt links the item under the parent at the given child index, or at
// the root level when parent is nil. A negative index appends.
func (t *Tree) attachAt(it Item, parent Item, index int) {
	if parent == nil {
		it.setParent("")
		if index < 0 || index > len(t.roots) {
			t.roots = append(t.roots, it.ID())
			return
		}
		t.roots = append(t.roots, "")
		copy(t.roots[index+1:], t.roots[index:])
		t.roots[index] = it.ID()
		return
	}
	it.setParent(parent.ID())
	if index < 0 {
		parent.addChild(it.ID())
		return
	}
	parent.insertChildAt(it.ID(), index)
}

// detach unlinks the item from its parent, or from the root list, and
// drops it from the parent group's partition.
func (t *Tree) detach(it Item) {
	pid := it.Parent()
	if pid == "" {
		for i, rid := range t.roots {
			if rid == it.ID() {
				t.roots = append(t.roots[:i], t.roots[i+1:]...)
				break
			}
		}
		return
	}
	if p, ok := t.reg.lookup(pid); ok {
		p.removeChild(it.ID())
		if g, ok := p.(*Group); ok {
			g.dropFromPartition(it.ID())
		}
	}
	it.setParent("")
}

func (t *Tree) createVisual(it Item, parent Item) {
	h := t.renderer.CreateVisualNode(t.visualOf(parent), it.ID(), it.Text())
	it.setVisual(h)
	if !it.Checked() {
		t.renderer.SetChecked(h, false)
	}
}

func (t *Tree) visualOf(it Item) render.Handle {
	if it == nil {
		return 0
	}
	return it.Visual()
}

// bubbleDuration applies a duration delta to the item and every ancestor,
// refreshing their duration tooltips.
func (t *Tree) bubbleDuration(fromID string, delta float64) {
	if delta == 0 {
		return
	}
	for id := fromID; id != ""; {
		it, ok := t.reg.lookup(id)
		if !ok {
			t.logger.Warn("duration bubble hit unknown ancestor", "node_id", id)
			return
		}
		it.addDuration(delta)
		t.renderer.SetTooltip(it.Visual(), durationTooltip(it.Duration()))
		id = it.Parent()
	}
}

func (t *Tree) intervalSpec(s *Segment) peaks.Interval {
	return peaks.Interval{
		Start:     s.Start(),
		End:       s.End(),
		Editable:  s.Editable(),
		Color:     s.Color(),
		LabelText: s.effectiveLabel(),
	}
}

func (t *Tree) handlesOf(ids []string) []render.Handle {
	out := make([]render.Handle, 0, len(ids))
	for _, id := range ids {
		if it, ok := t.reg.lookup(id); ok {
			out = append(out, it.Visual())
		}
	}
	return out
}

func durationTooltip(d float64) string {
	return fmt.Sprintf("Duration: %.2fs", d)
}

func validateInterval(start, end float64) error {
	if math.IsNaN(start) || math.IsNaN(end) || math.IsInf(start, 0) || math.IsInf(end, 0) {
		return fmt.Errorf("boundaries must be finite: %w", ErrInvalidInterval)
	}
	if end < start {
		return fmt.Errorf("end %v before start %v: %w", end, start, ErrInvalidInterval)
	}
	return nil
}

func boolValue(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func boolPtr(v bool) *bool { return &v }

func equalOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
