// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package action

import (
	"github.com/evfinkn/speechviz-sub000/services/annotate/tree"
)

// NodeSpec is a self-contained snapshot of one tree item and its subtree.
// Actions store specs and ids instead of live items, so replay resolves
// through the tree's registry even after the item has been destroyed and
// rebuilt in between.
type NodeSpec struct {
	Kind   tree.Kind
	ID     string
	Parent string
	Text   string

	Checked   bool
	Removable bool
	Renamable bool

	// Group fields.
	SNR    *float64
	MoveTo []string
	CopyTo []string

	// Segment fields.
	Start     float64
	End       float64
	Editable  bool
	Color     string
	LabelText string

	// Children snapshots, in child order, so a whole subtree restores
	// atomically with one spec.
	Children []NodeSpec
}

// SnapshotNode captures the item with the given id and every descendant.
func SnapshotNode(t *tree.Tree, id string) (NodeSpec, error) {
	it, ok := t.Get(id)
	if !ok {
		return NodeSpec{}, tree.NewIDError(id, tree.ErrNotFound)
	}
	return snapshotItem(t, it), nil
}

func snapshotItem(t *tree.Tree, it tree.Item) NodeSpec {
	spec := NodeSpec{
		Kind:      it.Kind(),
		ID:        it.ID(),
		Parent:    it.Parent(),
		Text:      it.Text(),
		Checked:   it.Checked(),
		Removable: it.Removable(),
		Renamable: it.Renamable(),
	}
	switch v := it.(type) {
	case *tree.Group:
		if snr, ok := v.SNR(); ok {
			spec.SNR = &snr
		}
		spec.MoveTo = append([]string(nil), v.MoveTo()...)
		spec.CopyTo = append([]string(nil), v.CopyTo()...)
	case *tree.Segment:
		spec.Start = v.Start()
		spec.End = v.End()
		spec.Editable = v.Editable()
		spec.Color = v.Color()
		spec.LabelText = v.LabelText()
	}
	for _, cid := range it.Children() {
		if c, ok := t.Get(cid); ok {
			spec.Children = append(spec.Children, snapshotItem(t, c))
		}
	}
	return spec
}

// restore re-adds the snapshot and its subtree to the tree. Parents are
// created before their children, so partitions and durations rebuild
// through the ordinary add path.
func restore(t *tree.Tree, spec NodeSpec) error {
	checked := spec.Checked
	removable := spec.Removable
	renamable := spec.Renamable

	var err error
	switch spec.Kind {
	case tree.KindGroup:
		var snr *float64
		if spec.SNR != nil {
			v := *spec.SNR
			snr = &v
		}
		_, err = t.AddGroup(tree.GroupSpec{
			ID:        spec.ID,
			Parent:    spec.Parent,
			Text:      spec.Text,
			SNR:       snr,
			Checked:   &checked,
			Removable: &removable,
			Renamable: &renamable,
			MoveTo:    spec.MoveTo,
			CopyTo:    spec.CopyTo,
		})
	case tree.KindGroups:
		_, err = t.AddGroups(tree.GroupsSpec{
			ID:        spec.ID,
			Parent:    spec.Parent,
			Text:      spec.Text,
			Checked:   &checked,
			Removable: &removable,
			Renamable: &renamable,
		})
	case tree.KindSegment:
		editable := spec.Editable
		_, err = t.AddSegment(tree.SegmentSpec{
			ID:        spec.ID,
			Parent:    spec.Parent,
			Text:      spec.Text,
			Start:     spec.Start,
			End:       spec.End,
			Checked:   &checked,
			Editable:  &editable,
			Removable: &removable,
			Renamable: &renamable,
			Color:     spec.Color,
			LabelText: spec.LabelText,
		})
	}
	if err != nil {
		return err
	}
	for _, child := range spec.Children {
		if err := restore(t, child); err != nil {
			return err
		}
	}
	return nil
}
