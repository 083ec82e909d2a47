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

// Context is the structured, optional material a visitor attaches to a chat.
//
// # Description
//
// All fields are free-form strings. File-derived fields (images, files) are
// flattened to text by the browser before they reach the orchestrator.
// An empty string means "not provided".
//
// # Fields
//
//   - LinkedInProfile: Profile text or URL.
//   - JobURL: Company or job posting reference.
//   - GlassdoorJobDescription: Job description pulled from Glassdoor.
//   - GreenhouseJobDescription: Job description pulled from Greenhouse.
//   - PastedText: Anything else the visitor pasted.
//   - UploadedImagesSummary: Text summary of uploaded images.
//   - UploadedFilesSummary: Text extracted from uploaded files.
type Context struct {
	LinkedInProfile          string `json:"linkedInProfile,omitempty" yaml:"linkedInProfile" validate:"max=262144"`
	JobURL                   string `json:"jobUrl,omitempty" yaml:"jobUrl" validate:"max=262144"`
	GlassdoorJobDescription  string `json:"glassdoorJobDescription,omitempty" yaml:"glassdoorJobDescription" validate:"max=262144"`
	GreenhouseJobDescription string `json:"greenhouseJobDescription,omitempty" yaml:"greenhouseJobDescription" validate:"max=262144"`
	PastedText               string `json:"pastedText,omitempty" yaml:"pastedText" validate:"max=262144"`
	UploadedImagesSummary    string `json:"uploadedImages,omitempty" yaml:"uploadedImages" validate:"max=262144"`
	UploadedFilesSummary     string `json:"uploadedFiles,omitempty" yaml:"uploadedFiles" validate:"max=262144"`
}

// IsEmpty reports whether no field is populated. A nil Context is empty.
func (c *Context) IsEmpty() bool {
	if c == nil {
		return true
	}
	return *c == Context{}
}

// Merge returns c overlaid with the populated fields of update.
//
// Empty fields of update never clear a value already present in c, so
// merging the same partial context twice yields the same result as once.
func (c Context) Merge(update Context) Context {
	mergeField(&c.LinkedInProfile, update.LinkedInProfile)
	mergeField(&c.JobURL, update.JobURL)
	mergeField(&c.GlassdoorJobDescription, update.GlassdoorJobDescription)
	mergeField(&c.GreenhouseJobDescription, update.GreenhouseJobDescription)
	mergeField(&c.PastedText, update.PastedText)
	mergeField(&c.UploadedImagesSummary, update.UploadedImagesSummary)
	mergeField(&c.UploadedFilesSummary, update.UploadedFilesSummary)
	return c
}

func mergeField(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}
