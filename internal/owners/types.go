// Package owners implements the OWNERS-file resolution engine of §4: a
// per-directory index of approvers/reviewers/allowed-users, an ancestor
// walk that maps a PR's changed files onto the OWNERS entries that govern
// them, and the authorization predicate gating who may run slash commands.
// It is grounded on the original project's owners_files_handler.py, rebuilt
// around a pre-fetched repository snapshot the way the teacher's own code
// favors plain structs and explicit error returns over dynamic dispatch.
package owners

// Entry is the parsed content of a single OWNERS file.
//
//	approvers: [alice, bob]
//	reviewers: [carol]
//	allowed-users: [dave]
//	root-approvers: false
type Entry struct {
	Approvers     []string `yaml:"approvers"`
	Reviewers     []string `yaml:"reviewers"`
	AllowedUsers  []string `yaml:"allowed-users"`
	RootApprovers *bool    `yaml:"root-approvers"`
}

// requiresRoot reports whether this entry also requires root OWNERS
// approval for the files it governs; false means the entry opts out of
// root approval. Absent the key, root approval
// is required (the original handler's `owners_data.get(ROOT_APPROVERS_KEY,
// True)` default).
func (e Entry) requiresRoot() bool {
	if e.RootApprovers == nil {
		return true
	}
	return *e.RootApprovers
}

// Index maps an OWNERS file's directory (relative to the repo root, "."
// for the root OWNERS file) to its parsed Entry.
type Index struct {
	ByDir map[string]Entry
}

func (idx *Index) dir(path string) (Entry, bool) {
	e, ok := idx.ByDir[path]
	return e, ok
}

// RootEntry returns the root OWNERS file's entry, or a zero Entry if none
// exists.
func (idx *Index) RootEntry() Entry {
	e, _ := idx.dir(".")
	return e
}
