package telemetry

import (
	"fmt"
)

// API is where scrapers report what happened to them. Adapters, platform
// clients and the runner all receive it, tests swap in a Recorder.
type API interface {
	// ReportBroken reports a failure someone has to look at: an upstream
	// that answered with an error or changed its format.
	//
	// `id` names the component, not the county or dataset. A Socrata request
	// failing for the Santa Clara case series reports `client.resource` under
	// the "santa_clara.socrata" scope, the dataset goes into params or the
	// wrapped error. Ids are lowercase, words joined with underscores,
	// `<type>.<method>`.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something unexpected that did not fail the
	// county, e.g. a cumulative column that disagrees with its daily one.
	ReportWarning(id string, params ...any)

	// ReportDebug is dropped unless logging is verbose.
	ReportDebug(msg string, params ...any)

	// ReportCount reports a running count, e.g. rows returned so far.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes report ids with a dotted namespace, e.g. a Socrata
// client scoped under Santa Clara reports "santa_clara.socrata.client.rows".
type ScopedAPI struct {
	namespace string
	inner     API
}

// NewScopedAPI scopes inner under namespace. Scoping a ScopedAPI again
// extends its namespace instead of wrapping it.
func NewScopedAPI(namespace string, inner API) ScopedAPI {
	if scoped, ok := inner.(ScopedAPI); ok {
		return ScopedAPI{namespace: scoped.namespace + "." + namespace, inner: scoped.inner}
	}
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) id(id string) string {
	return s.namespace + "." + id
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.id(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.id(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.id(id), count)
}
