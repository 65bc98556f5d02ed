package content

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
)

var (
	// ErrInvalidName is returned for module or project names that are empty or escape the content root
	ErrInvalidName = errors.New("invalid content name")

	// ErrModuleNotFound is returned when modules/<name> does not exist
	ErrModuleNotFound = errors.New("module not found")

	// ErrProjectNotFound is returned when projects/<id> does not exist
	ErrProjectNotFound = errors.New("project not found")
)

const (
	modulesDir  = "modules"
	projectsDir = "projects"
	exportsDir  = "exports"
	onlineDir   = "online"
)

// FileRepository is a ContentRepository over a directory tree:
//
//	<root>/modules/<name>/...   module sources
//	<root>/projects/<id>/...    project pages
//	<root>/exports/<name>.zip   module export archives
//	<root>/online/<id>/...      published projects
type FileRepository struct {
	root   string
	links  *LinkChecker
	logger arbor.ILogger
}

var _ interfaces.ContentRepository = (*FileRepository)(nil)

// NewFileRepository creates a repository rooted at root
func NewFileRepository(root string, logger arbor.ILogger) *FileRepository {
	return &FileRepository{
		root:   root,
		links:  NewLinkChecker(logger),
		logger: logger,
	}
}

// Root returns the content root directory
func (r *FileRepository) Root() string {
	return r.root
}

// ModuleNames lists the modules present under the content root
func (r *FileRepository) ModuleNames() ([]string, error) {
	return listDirs(filepath.Join(r.root, modulesDir))
}

// ProjectIDs lists the projects present under the content root
func (r *FileRepository) ProjectIDs() ([]string, error) {
	return listDirs(filepath.Join(r.root, projectsDir))
}

func (r *FileRepository) modulePath(name string) (string, error) {
	return r.existingDir(modulesDir, name, ErrModuleNotFound)
}

func (r *FileRepository) projectPath(id string) (string, error) {
	return r.existingDir(projectsDir, id, ErrProjectNotFound)
}

func (r *FileRepository) existingDir(parent, name string, notFound error) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	dir := filepath.Join(r.root, parent, name)
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", notFound, name)
		}
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", notFound, name)
	}
	return dir, nil
}

// ValidateName rejects names that are empty, hidden or not a single path element
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// walkFiles returns regular files under dir as slash-separated relative paths, sorted
func walkFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
