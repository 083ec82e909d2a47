// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extensions defines the optional collaborators the portfolio chat
// service accepts at construction time.
//
// Every extension point has a no-op default, so the service runs with no
// external dependencies beyond its reasoning engine:
//
//	opts := extensions.DefaultOptions()
//	svc, err := orchestrator.New(cfg, opts)
//
// A deployment with a document index injects a real lookup:
//
//	opts := extensions.DefaultOptions().WithKnowledge(knowledge.NewWeaviateLookup(cfg))
//
// # Extension Categories
//
//   - knowledge.go: Advisory knowledge lookup (KnowledgeLookup)
//   - audit.go: Conversation audit trail (AuditLogger)
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
package extensions

// ServiceOptions groups all extension points.
//
// Nil fields are replaced with no-op defaults by WithDefaults.
type ServiceOptions struct {
	// KnowledgeLookup searches supporting material for a message.
	// Default: NopKnowledgeLookup (always absent)
	KnowledgeLookup KnowledgeLookup

	// AuditLogger records conversation lifecycle events.
	// Default: NopAuditLogger (discards all events)
	AuditLogger AuditLogger
}

// DefaultOptions returns ServiceOptions with no-op defaults.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		KnowledgeLookup: &NopKnowledgeLookup{},
		AuditLogger:     &NopAuditLogger{},
	}
}

// WithDefaults returns a copy of opts with nil fields set to no-ops.
func (opts ServiceOptions) WithDefaults() ServiceOptions {
	if opts.KnowledgeLookup == nil {
		opts.KnowledgeLookup = &NopKnowledgeLookup{}
	}
	if opts.AuditLogger == nil {
		opts.AuditLogger = &NopAuditLogger{}
	}
	return opts
}

// WithKnowledge returns a copy of opts with the given KnowledgeLookup.
func (opts ServiceOptions) WithKnowledge(lookup KnowledgeLookup) ServiceOptions {
	opts.KnowledgeLookup = lookup
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}
