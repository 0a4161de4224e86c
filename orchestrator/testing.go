// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

// NewSpineTokenForTesting mints a valid SpineToken for use in tests of
// Tool implementations that live outside this package (they cannot
// reach the unexported mintSpineToken directly). Production code never
// calls this — only the orchestrator's execute step, shared by Invoke
// and the async worker, mints tokens on the real call path.
func NewSpineTokenForTesting() SpineToken {
	return mintSpineToken()
}
