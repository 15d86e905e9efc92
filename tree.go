package pak

import (
	"fmt"
	"slices"
	"strings"

	"github.com/meigma/pak/internal/pathutil"
)

// ViewMode selects the layout of FileTree.
type ViewMode string

// View modes.
const (
	// ViewMerged shows the merged filesystem.
	ViewMerged ViewMode = "merged"

	// ViewByPak shows one subtree per mounted archive.
	ViewByPak ViewMode = "by-pak"
)

// ParseViewMode converts s to a ViewMode. The empty string is ViewMerged.
func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(s) {
	case "", ViewMerged:
		return ViewMerged, nil
	case ViewByPak:
		return ViewByPak, nil
	default:
		return "", fmt.Errorf("unknown view mode %q", s)
	}
}

// TreeNode is a node of a file tree.
//
// In ViewByPak trees the Path of every node below an archive root is
// "<archive id>:<path>"; VFSPath converts it back.
type TreeNode struct {
	Name        string      `json:"name"`
	Path        string      `json:"path"`
	IsDirectory bool        `json:"isDirectory"`
	Size        int64       `json:"size,omitempty"`
	Children    []*TreeNode `json:"children,omitempty"`

	// Set on archive roots of ViewByPak trees.
	IsPakRoot bool   `json:"isPakRoot,omitempty"`
	PakID     string `json:"pakId,omitempty"`
	IsUserPak bool   `json:"isUserPak,omitempty"`

	// Overridden marks files of a ViewByPak tree whose merged copy comes
	// from another archive.
	Overridden bool `json:"overridden,omitempty"`
}

// FileTree builds a tree of the mounted files. Children are sorted with
// directories first, then by name.
//
// A ViewMerged tree holds every merged path once. A ViewByPak tree has one
// root per archive holding all of its entries.
func (e *Explorer) FileTree(mode ViewMode) (*TreeNode, error) {
	root := &TreeNode{Name: "root", IsDirectory: true}
	fsys := e.FS()

	switch mode {
	case ViewMerged, "":
		for _, f := range fsys.Files() {
			insert(root, "", f.Path, f.Size, false)
		}
	case ViewByPak:
		for _, rec := range e.mounts.Mounted() {
			pakRoot := &TreeNode{
				Name:        rec.DisplayName,
				Path:        rec.ID,
				IsDirectory: true,
				IsPakRoot:   true,
				PakID:       rec.ID,
				IsUserPak:   rec.UserProvided,
			}
			for _, entry := range rec.Archive.Entries() {
				winner, _ := fsys.Lookup(entry.Name)
				insert(pakRoot, rec.ID, entry.Name, int64(entry.Length), winner.SourceID != rec.ID)
			}
			root.Children = append(root.Children, pakRoot)
		}
	default:
		return nil, fmt.Errorf("unknown view mode %q", mode)
	}

	sortTree(root)
	return root, nil
}

// insert adds a file at path below root, creating directories as needed.
func insert(root *TreeNode, pakID, path string, size int64, overridden bool) {
	node := root
	dir := ""
	for {
		name, isDir := pathutil.Child(path, pathutil.DirPrefix(dir))
		if !isDir {
			node.Children = append(node.Children, &TreeNode{
				Name:       name,
				Path:       treePath(pakID, path),
				Size:       size,
				Overridden: overridden,
			})
			return
		}
		if dir == "" {
			dir = name
		} else {
			dir += "/" + name
		}
		node = childDir(node, name, treePath(pakID, dir))
	}
}

func childDir(parent *TreeNode, name, path string) *TreeNode {
	for _, c := range parent.Children {
		if c.IsDirectory && c.Name == name {
			return c
		}
	}
	c := &TreeNode{Name: name, Path: path, IsDirectory: true}
	parent.Children = append(parent.Children, c)
	return c
}

func treePath(pakID, path string) string {
	if pakID == "" {
		return path
	}
	return pakID + ":" + path
}

func sortTree(n *TreeNode) {
	slices.SortFunc(n.Children, func(a, b *TreeNode) int {
		if a.IsDirectory != b.IsDirectory {
			if a.IsDirectory {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	for _, c := range n.Children {
		sortTree(c)
	}
}

// VFSPath strips the "<archive id>:" prefix of a ViewByPak tree path.
func VFSPath(treePath string) string {
	if _, path, ok := strings.Cut(treePath, ":"); ok {
		return path
	}
	return treePath
}
