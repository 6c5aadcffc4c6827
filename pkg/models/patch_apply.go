package models

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/Raudbjorn/TTTTRPS-sub000/pkg/apperrors"
)

// ApplyPatchSet applies every patch in the set to the campaign draft,
// atomically: either all patches validate and the draft is updated, or the
// draft is left untouched and a PatchValidationError is returned.
//
// Paths are dot-separated JSON field names ("name", "intent.fantasy",
// "session_scope.pacing"). Within a set, later patches win over earlier
// ones on the same field; across sets the store serializes applications
// per draft, so the last applied set wins.
func ApplyPatchSet(campaign *PartialCampaign, set PatchSet) error {
	doc, err := toMap(campaign)
	if err != nil {
		return err
	}

	for _, patch := range set.Patches {
		if err := applyPatch(doc, patch); err != nil {
			return err
		}
		// Validate eagerly so the error names the offending patch.
		if _, err := fromMap(doc, patch.Path); err != nil {
			return err
		}
	}

	updated, err := fromMap(doc, "")
	if err != nil {
		return err
	}
	*campaign = *updated
	return nil
}

func toMap(campaign *PartialCampaign) (map[string]any, error) {
	raw, err := json.Marshal(campaign)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// fromMap decodes the working document back into a PartialCampaign with
// unknown fields disallowed, so a patch that invented a field or assigned
// a mistyped value is rejected.
func fromMap(doc map[string]any, path string) (*PartialCampaign, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var out PartialCampaign
	if err := dec.Decode(&out); err != nil {
		return nil, &apperrors.PatchValidationError{Path: path, Reason: err.Error()}
	}
	return &out, nil
}

func applyPatch(doc map[string]any, patch Patch) error {
	if patch.Path == "" {
		return &apperrors.PatchValidationError{Path: patch.Path, Reason: "empty path"}
	}

	var value any
	if len(patch.Value) > 0 {
		if err := json.Unmarshal(patch.Value, &value); err != nil {
			return &apperrors.PatchValidationError{Path: patch.Path, Reason: "value is not valid JSON"}
		}
	}

	segments := strings.Split(patch.Path, ".")
	node := doc
	for _, segment := range segments[:len(segments)-1] {
		child, ok := node[segment]
		if !ok || child == nil {
			next := map[string]any{}
			node[segment] = next
			node = next
			continue
		}
		childMap, ok := child.(map[string]any)
		if !ok {
			return &apperrors.PatchValidationError{Path: patch.Path, Reason: "intermediate field is not an object"}
		}
		node = childMap
	}

	leaf := segments[len(segments)-1]
	if value == nil {
		delete(node, leaf)
		return nil
	}
	node[leaf] = value
	return nil
}
