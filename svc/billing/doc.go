// Package billing is the per-session facade a signed-in (or anonymous) user
// interacts with: it picks the active payment provider, prices plans for
// display, runs checkouts through a single-flight coordinator and reads or
// toggles subscription auto-renewal.
//
// One Session serves one user session. Sessions share the Deps, which are
// safe for concurrent use.
package billing
