// Package reconcile decides how EPG metadata is attached to channels.
//
// A pass evaluates every channel against, in order: the protection flag,
// exclusion patterns, inclusion patterns, the respect-existing option, fuzzy
// name matching against the catalog (auto-scan only) and finally the
// clean-unmatched option. The package is pure; callers fetch the snapshot and
// apply the resulting decisions.
package reconcile
