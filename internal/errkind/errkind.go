/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package errkind defines the closed set of machine-readable error
// kinds shared by the Harness, Orchestrator, Registry Store, and State
// Manager (spec.md §7).
package errkind

// Kind is a closed enum of error classifications. Every terminal,
// non-completed outcome in the kernel carries one of these alongside a
// human-readable message.
type Kind string

const (
	ParseError                Kind = "parse_error"
	NotRegistered              Kind = "not_registered"
	PrecheckFailed             Kind = "precheck_failed"
	ProviderTransient          Kind = "provider_transient"
	ProviderTransientExhausted Kind = "provider_transient_exhausted"
	ProviderPermanent          Kind = "provider_permanent"
	ProviderTimeout            Kind = "provider_timeout"
	InvalidJSON                Kind = "invalid_json"
	ValidationFailed           Kind = "validation_failed"
	IOError                    Kind = "io_error"
	IntegrityError             Kind = "integrity_error"
	DuplicateEntity            Kind = "duplicate_entity"
	Cancelled                  Kind = "cancelled"
)

// Retryable reports whether the Harness should retry a call that failed
// with this kind (spec.md §4.3: only provider_transient is retried).
func (k Kind) Retryable() bool {
	return k == ProviderTransient
}
