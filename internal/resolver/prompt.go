package resolver

import "fmt"

// baseAbsentPlaceholder is the literal BASE section used in a 3-way prompt
// when the path did not exist in the common ancestor (spec.md §4.3).
const baseAbsentPlaceholder = "# File did not exist in base version"

// cannotMergeFilename is the sentinel output name a merge sub-agent writes
// when it gives up (spec.md §4.3, §6).
const cannotMergeFilename = "CANNOT_MERGE.txt"

// twoWayPrompt synthesizes the instructions for a 2-way merge: both file
// bodies verbatim plus the contract for the two acceptable outputs.
func twoWayPrompt(filename, existingBody, newBody string) string {
	return fmt.Sprintf(`You are resolving a file conflict between two versions of %q.

Produce exactly one of the following in your current directory:
  - A file named %q containing a single merged version of both inputs, if
    the changes can be reconciled.
  - A file named %q explaining why the versions cannot be reconciled, if
    they cannot.

=== EXISTING (%s) ===
%s

=== NEW (%s) ===
%s
`, filename, filename, cannotMergeFilename, filename, existingBody, filename, newBody)
}

// threeWayPrompt synthesizes the instructions for a 3-way merge: BASE,
// SHARED, and TASK sections, output filename equal to the shared file's
// name (spec.md §4.3).
func threeWayPrompt(filename, baseBody, sharedBody, taskBody string) string {
	return fmt.Sprintf(`You are resolving a 3-way file conflict for %q.

Produce exactly one of the following in your current directory:
  - A file named %q containing a single merged version reconciling BASE,
    SHARED, and TASK, if the changes can be reconciled.
  - A file named %q explaining why the versions cannot be reconciled, if
    they cannot.

=== BASE ===
%s

=== SHARED (%s) ===
%s

=== TASK (%s) ===
%s
`, filename, filename, cannotMergeFilename, baseBody, filename, sharedBody, filename, taskBody)
}
