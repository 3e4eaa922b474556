/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package scene

// SelectionKind tells how many objects are active.
type SelectionKind string

const (
	SelectionNone   SelectionKind = "none"
	SelectionSingle SelectionKind = "single"
	SelectionMulti  SelectionKind = "multi"
)

// ActiveSelectionType is reported as the type of a multi-object selection.
const ActiveSelectionType = "activeSelection"

// Selection is a read-only view of the active objects at one moment.
// Objects holds property copies, not live pointers.
type Selection struct {
	Kind    SelectionKind `json:"kind"`
	Type    string        `json:"type,omitempty"`
	Objects []Object      `json:"objects,omitempty"`
}

// DeriveSelection projects the renderer's active objects. It is recomputed
// after every event that can change the selection and never cached.
func DeriveSelection(r Renderer) Selection {
	if r == nil {
		return Selection{Kind: SelectionNone}
	}
	active := r.ActiveObjects()
	switch len(active) {
	case 0:
		return Selection{Kind: SelectionNone}
	case 1:
		return Selection{Kind: SelectionSingle, Type: string(active[0].Type), Objects: []Object{*active[0].Clone()}}
	}
	objs := make([]Object, len(active))
	for i, o := range active {
		objs[i] = *o.Clone()
	}
	return Selection{Kind: SelectionMulti, Type: ActiveSelectionType, Objects: objs}
}

// Names lists the selected object names in selection order.
func (s Selection) Names() []string {
	out := make([]string, len(s.Objects))
	for i := range s.Objects {
		out[i] = s.Objects[i].Name
	}
	return out
}

// ObjectInfo is one row of the public object list.
type ObjectInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Index   int    `json:"index"`
	Visible bool   `json:"visible"`
	Locked  bool   `json:"locked"`
}

// List enumerates the renderer's objects in draw order.
func List(r Renderer) []ObjectInfo {
	if r == nil {
		return nil
	}
	objs := r.Objects()
	out := make([]ObjectInfo, len(objs))
	for i, o := range objs {
		out[i] = ObjectInfo{Name: o.Name, Type: string(o.Type), Index: i, Visible: o.Visible, Locked: o.Locked}
	}
	return out
}
