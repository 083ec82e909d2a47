// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"strings"

	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/datatypes"
)

// contextSection renders one context field. Multiline sections put the value
// on its own line below the label.
type contextSection struct {
	label     string
	multiline bool
	value     func(*datatypes.Context) string
}

// composeOrder is the fixed render order. Changing it changes every prompt.
var composeOrder = []contextSection{
	{"LinkedIn Profile", false, func(c *datatypes.Context) string { return c.LinkedInProfile }},
	{"Company/Job", false, func(c *datatypes.Context) string { return c.JobURL }},
	{"Glassdoor Job Description", true, func(c *datatypes.Context) string { return c.GlassdoorJobDescription }},
	{"Greenhouse Job Description", true, func(c *datatypes.Context) string { return c.GreenhouseJobDescription }},
	{"Additional Context", true, func(c *datatypes.Context) string { return c.PastedText }},
	{"Uploaded Images", true, func(c *datatypes.Context) string { return c.UploadedImagesSummary }},
	{"Uploaded Files", true, func(c *datatypes.Context) string { return c.UploadedFilesSummary }},
}

// Compose builds the effective prompt sent to the reasoning engine.
//
// # Description
//
// With no populated context fields the message is returned unchanged.
// Otherwise the populated fields are rendered in a fixed order, joined by
// blank lines, and followed by the question:
//
//	Context Information:
//	<sections>
//
//	Question: <message>
//
// # Inputs
//
//   - message: The visitor's message.
//   - ctx: Optional context. May be nil.
//
// # Outputs
//
//   - string: The effective prompt.
//
// # Examples
//
//	Compose("Am I qualified?", &datatypes.Context{PastedText: "Job req: Senior Engineer"})
//	// "Context Information:\nAdditional Context:\nJob req: Senior Engineer\n\nQuestion: Am I qualified?"
//
// # Thread Safety
//
// Pure function; safe for concurrent use.
func Compose(message string, ctx *datatypes.Context) string {
	if ctx.IsEmpty() {
		return message
	}

	sections := make([]string, 0, len(composeOrder))
	for _, s := range composeOrder {
		v := s.value(ctx)
		if v == "" {
			continue
		}
		sep := ": "
		if s.multiline {
			sep = ":\n"
		}
		sections = append(sections, s.label+sep+v)
	}

	var b strings.Builder
	b.WriteString("Context Information:\n")
	b.WriteString(strings.Join(sections, "\n\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(message)
	return b.String()
}
