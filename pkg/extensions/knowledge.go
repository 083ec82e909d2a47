// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import "context"

// KnowledgeLookup searches supporting material related to a message.
//
// # Description
//
// Results are advisory. The router logs a hit and never alters the prompt
// or fails the request because of it.
//
// # Inputs
//
//   - ctx: Cancellation for the search.
//   - query: The visitor's message.
//   - conversationID: Conversation the query belongs to.
//
// # Outputs
//
//   - string: Matching material. Meaningful only when found is true.
//   - bool: Whether anything was found.
//   - error: Backend failure.
type KnowledgeLookup interface {
	Search(ctx context.Context, query, conversationID string) (string, bool, error)
}

// NopKnowledgeLookup never finds anything.
type NopKnowledgeLookup struct{}

// Search always reports absent.
func (n *NopKnowledgeLookup) Search(ctx context.Context, query, conversationID string) (string, bool, error) {
	return "", false, nil
}

var _ KnowledgeLookup = (*NopKnowledgeLookup)(nil)
