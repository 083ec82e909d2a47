// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestContext_IsEmpty(t *testing.T) {
	var nilCtx *Context
	assert.True(t, nilCtx.IsEmpty())
	assert.True(t, (&Context{}).IsEmpty())
	assert.False(t, (&Context{JobURL: "acme"}).IsEmpty())
}

func TestContext_Merge(t *testing.T) {
	base := Context{LinkedInProfile: "in/a", PastedText: "old"}

	merged := base.Merge(Context{PastedText: "new", UploadedFilesSummary: "cv"})

	assert.Equal(t, "in/a", merged.LinkedInProfile, "empty fields never clear")
	assert.Equal(t, "new", merged.PastedText)
	assert.Equal(t, "cv", merged.UploadedFilesSummary)
	assert.Equal(t, "old", base.PastedText, "receiver is not modified")
}

func TestContext_MergeIsIdempotent(t *testing.T) {
	update := Context{JobURL: "acme", GreenhouseJobDescription: "jd"}
	once := Context{}.Merge(update)
	twice := once.Merge(update)
	assert.Equal(t, once, twice)
}

func TestConversationState_Clone(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := ConversationState{
		ConversationID: "thread_1",
		MessageHistory: []Turn{{Role: RoleUser, Content: "hi", Timestamp: now}},
	}

	c := s.Clone()
	c.MessageHistory[0].Content = "changed"
	c.MessageHistory = append(c.MessageHistory, Turn{Role: RoleAssistant, Content: "hello"})

	assert.Equal(t, "hi", s.MessageHistory[0].Content)
	assert.Len(t, s.MessageHistory, 1)
}
