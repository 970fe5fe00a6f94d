package owners

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/gh-fleet/webhook-server/internal/githubclient"
)

// TreeLister fetches the full recursive file listing of a repository at a
// ref. Satisfied by githubclient.Client.FetchRecursiveTree.
type TreeLister interface {
	FetchRecursiveTree(ctx context.Context, owner, repo, ref string) ([]githubclient.TreeEntry, error)
}

// FileFetcher fetches a single file's content at a ref. Satisfied by
// githubclient.Client.FetchFile and config.RemoteFileFetcher alike.
type FileFetcher interface {
	FetchFile(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
}

const defaultMaxOwnersFiles = 1000

// BuildIndex discovers every OWNERS file in the repository tree at ref and
// parses each into the returned Index, keyed by the directory it governs.
// Processing stops once maxFiles OWNERS files have been seen (0 means use
// the original handler's default of 1000), matching §4's guard against
// pathological repositories.
func BuildIndex(ctx context.Context, trees TreeLister, files FileFetcher, owner, repo, ref string, maxFiles int) (*Index, error) {
	if maxFiles <= 0 {
		maxFiles = defaultMaxOwnersFiles
	}

	entries, err := trees.FetchRecursiveTree(ctx, owner, repo, ref)
	if err != nil {
		return nil, fmt.Errorf("owners: list tree: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.Type != "blob" {
			continue
		}
		if path.Base(e.Path) != "OWNERS" {
			continue
		}
		paths = append(paths, e.Path)
		if len(paths) >= maxFiles {
			break
		}
	}

	type fetched struct {
		dir     string
		content Entry
		err     error
	}
	results := make([]fetched, len(paths))
	var wg sync.WaitGroup
	for i, p := range paths {
		wg.Add(1)
		go func(i int, p string) {
			defer wg.Done()
			raw, err := files.FetchFile(ctx, owner, repo, p, ref)
			if err != nil {
				results[i] = fetched{err: fmt.Errorf("fetch %s: %w", p, err)}
				return
			}
			if raw == nil {
				results[i] = fetched{err: fmt.Errorf("owners file vanished: %s", p)}
				return
			}
			var e Entry
			if err := yaml.Unmarshal(raw, &e); err != nil {
				results[i] = fetched{err: fmt.Errorf("invalid OWNERS yaml at %s: %w", p, err)}
				return
			}
			dir := path.Dir(p)
			results[i] = fetched{dir: dir, content: e}
		}(i, p)
	}
	wg.Wait()

	idx := &Index{ByDir: make(map[string]Entry)}
	for _, r := range results {
		if r.err != nil {
			continue // best-effort: a single bad OWNERS file doesn't fail the whole index
		}
		idx.ByDir[r.dir] = r.content
	}
	return idx, nil
}

// isAncestorOrEqual reports whether ownersDir governs changedFolder: either
// they're the same directory, or ownersDir is a proper path ancestor of it.
func isAncestorOrEqual(ownersDir, changedFolder string) bool {
	if ownersDir == changedFolder {
		return true
	}
	return strings.HasPrefix(changedFolder, ownersDir+"/")
}

// ForChangedFiles implements the ancestor walk of the original handler's
// owners_data_for_changed_files: for every changed file's parent directory,
// find every OWNERS entry whose directory is that folder or an ancestor of
// it. The root OWNERS entry is included unless every matched non-root entry
// explicitly opts out via root-approvers: false AND every changed folder is
// covered by some matched entry.
func (idx *Index) ForChangedFiles(changedFiles []string) map[string]Entry {
	changedFolders := make(map[string]struct{})
	for _, f := range changedFiles {
		changedFolders[path.Dir(f)] = struct{}{}
	}

	data := make(map[string]Entry)
	var matchedDirs []string
	var requireRoot *bool

	for dir, entry := range idx.ByDir {
		if dir == "." {
			continue
		}
		for folder := range changedFolders {
			if !isAncestorOrEqual(dir, folder) {
				continue
			}
			data[dir] = entry
			matchedDirs = append(matchedDirs, dir)

			needsRoot := entry.requiresRoot()
			if requireRoot == nil {
				v := needsRoot
				requireRoot = &v
			} else if needsRoot {
				v := true
				requireRoot = &v
			}
		}
	}

	includeRoot := requireRoot == nil || *requireRoot
	if !includeRoot {
		allCovered := true
		for folder := range changedFolders {
			covered := false
			for _, d := range matchedDirs {
				if isAncestorOrEqual(d, folder) {
					covered = true
					break
				}
			}
			if !covered {
				allCovered = false
				break
			}
		}
		includeRoot = !allCovered
	}

	if includeRoot {
		data["."] = idx.RootEntry()
	}
	return data
}

func sortedUnique(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

// AllApprovers flattens every OWNERS entry's approvers across the whole
// repository (not scoped to any PR's changed files).
func (idx *Index) AllApprovers() []string {
	var out []string
	for _, e := range idx.ByDir {
		out = append(out, e.Approvers...)
	}
	return out
}

// AllReviewers flattens every OWNERS entry's reviewers across the whole
// repository.
func (idx *Index) AllReviewers() []string {
	var out []string
	for _, e := range idx.ByDir {
		out = append(out, e.Reviewers...)
	}
	return out
}

// ApproversForChangedFiles returns the sorted, de-duplicated set of
// approvers required for the given changed files.
func (idx *Index) ApproversForChangedFiles(changedFiles []string) []string {
	var out []string
	for _, e := range idx.ForChangedFiles(changedFiles) {
		out = append(out, e.Approvers...)
	}
	return sortedUnique(out)
}

// ReviewersForChangedFiles returns the sorted, de-duplicated set of
// reviewers required for the given changed files.
func (idx *Index) ReviewersForChangedFiles(changedFiles []string) []string {
	var out []string
	for _, e := range idx.ForChangedFiles(changedFiles) {
		out = append(out, e.Reviewers...)
	}
	return sortedUnique(out)
}
