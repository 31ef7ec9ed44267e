package graph

import (
	"cmp"
	"slices"

	"github.com/roach88/docmodel/internal/ir"
	"github.com/roach88/docmodel/internal/op"
)

// Span is an annotation over a range of one text property.
type Span struct {
	ID    string
	Type  string
	Path  ir.Path
	Start int64
	End   int64
}

// spanFrom reads a property annotation: a node with a "path" array and
// integer "startOffset" and "endOffset".
func spanFrom(node ir.Object) (Span, bool) {
	path, ok := node.PathAt("path")
	if !ok || len(path) == 0 {
		return Span{}, false
	}
	start, ok := node.IntAt("startOffset")
	if !ok {
		return Span{}, false
	}
	end, ok := node.IntAt("endOffset")
	if !ok {
		end = start
	}
	return Span{ID: node.ID(), Type: node.Type(), Path: path, Start: start, End: end}, true
}

func compareSpans(a, b Span) int {
	if c := cmp.Compare(a.Start, b.Start); c != 0 {
		return c
	}
	if c := cmp.Compare(a.End, b.End); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// AnnotationIndex maps a property path to the annotations on it, sorted
// by start offset. Paths need not resolve to existing nodes.
type AnnotationIndex struct {
	byPath map[string][]Span
	byID   map[string]Span
}

// NewAnnotationIndex returns an empty annotation index.
func NewAnnotationIndex() *AnnotationIndex {
	return &AnnotationIndex{
		byPath: make(map[string][]Span),
		byID:   make(map[string]Span),
	}
}

func (ai *AnnotationIndex) Select(node ir.Object) bool {
	_, ok := spanFrom(node)
	return ok
}

func (ai *AnnotationIndex) Create(node ir.Object) {
	span, ok := spanFrom(node)
	if !ok {
		return
	}
	ai.remove(span.ID)
	key := span.Path.Key()
	spans := append(ai.byPath[key], span)
	slices.SortFunc(spans, compareSpans)
	ai.byPath[key] = spans
	ai.byID[span.ID] = span
}

func (ai *AnnotationIndex) Delete(node ir.Object) {
	ai.remove(node.ID())
}

// Update re-indexes the annotation when its range or target moved.
func (ai *AnnotationIndex) Update(node ir.Object, o op.Operation) {
	path := o.Path()
	if len(path) < 2 {
		return
	}
	switch path[1] {
	case "path", "startOffset", "endOffset":
		ai.remove(node.ID())
		ai.Create(node)
	}
}

func (ai *AnnotationIndex) Reset(r Reader) {
	ai.byPath = make(map[string][]Span)
	ai.byID = make(map[string]Span)
	for _, id := range r.IDs() {
		if node, ok := r.Node(id); ok && ai.Select(node) {
			ai.Create(node)
		}
	}
}

func (ai *AnnotationIndex) remove(id string) {
	old, ok := ai.byID[id]
	if !ok {
		return
	}
	key := old.Path.Key()
	spans := slices.DeleteFunc(ai.byPath[key], func(s Span) bool { return s.ID == id })
	if len(spans) == 0 {
		delete(ai.byPath, key)
	} else {
		ai.byPath[key] = spans
	}
	delete(ai.byID, id)
}

// Get returns the annotations on path sorted by start offset.
func (ai *AnnotationIndex) Get(path ir.Path) []Span {
	return slices.Clone(ai.byPath[path.Key()])
}

// Overlapping returns the annotations on path whose range touches
// [start, end]. Ranges that only share an endpoint count as touching.
func (ai *AnnotationIndex) Overlapping(path ir.Path, start, end int64) []Span {
	var out []Span
	for _, s := range ai.byPath[path.Key()] {
		if s.Start <= end && s.End >= start {
			out = append(out, s)
		}
	}
	return out
}

// Anchor marks the start or end of a container annotation.
type Anchor struct {
	ID      string
	IsStart bool
	Path    ir.Path
	Offset  int64
}

// anchorsFrom reads a container annotation: a node with "containerId",
// "startPath", "startOffset", "endPath", and "endOffset".
func anchorsFrom(node ir.Object) (container string, anchors [2]Anchor, ok bool) {
	container, ok = node.StringAt("containerId")
	if !ok {
		return "", anchors, false
	}
	startPath, ok := node.PathAt("startPath")
	if !ok {
		return "", anchors, false
	}
	endPath, ok := node.PathAt("endPath")
	if !ok {
		endPath = startPath
	}
	startOffset, _ := node.IntAt("startOffset")
	endOffset, _ := node.IntAt("endOffset")
	anchors[0] = Anchor{ID: node.ID(), IsStart: true, Path: startPath, Offset: startOffset}
	anchors[1] = Anchor{ID: node.ID(), IsStart: false, Path: endPath, Offset: endOffset}
	return container, anchors, true
}

// AnchorIndex maps a container id to the boundary anchors of the container
// annotations inside it.
type AnchorIndex struct {
	byContainer map[string]map[string][2]Anchor
	containerOf map[string]string
}

// NewAnchorIndex returns an empty anchor index.
func NewAnchorIndex() *AnchorIndex {
	return &AnchorIndex{
		byContainer: make(map[string]map[string][2]Anchor),
		containerOf: make(map[string]string),
	}
}

func (xi *AnchorIndex) Select(node ir.Object) bool {
	_, _, ok := anchorsFrom(node)
	return ok
}

func (xi *AnchorIndex) Create(node ir.Object) {
	container, anchors, ok := anchorsFrom(node)
	if !ok {
		return
	}
	xi.remove(node.ID())
	byID, exists := xi.byContainer[container]
	if !exists {
		byID = make(map[string][2]Anchor)
		xi.byContainer[container] = byID
	}
	byID[node.ID()] = anchors
	xi.containerOf[node.ID()] = container
}

func (xi *AnchorIndex) Delete(node ir.Object) {
	xi.remove(node.ID())
}

func (xi *AnchorIndex) Update(node ir.Object, o op.Operation) {
	path := o.Path()
	if len(path) < 2 {
		return
	}
	switch path[1] {
	case "containerId", "startPath", "startOffset", "endPath", "endOffset":
		xi.remove(node.ID())
		xi.Create(node)
	}
}

func (xi *AnchorIndex) Reset(r Reader) {
	xi.byContainer = make(map[string]map[string][2]Anchor)
	xi.containerOf = make(map[string]string)
	for _, id := range r.IDs() {
		if node, ok := r.Node(id); ok && xi.Select(node) {
			xi.Create(node)
		}
	}
}

func (xi *AnchorIndex) remove(id string) {
	container, ok := xi.containerOf[id]
	if !ok {
		return
	}
	delete(xi.byContainer[container], id)
	if len(xi.byContainer[container]) == 0 {
		delete(xi.byContainer, container)
	}
	delete(xi.containerOf, id)
}

// Get returns the anchors in container ordered by annotation id, each
// start anchor before its end anchor.
func (xi *AnchorIndex) Get(container string) []Anchor {
	byID := xi.byContainer[container]
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Anchor, 0, 2*len(ids))
	for _, id := range ids {
		out = append(out, byID[id][0], byID[id][1])
	}
	return out
}
