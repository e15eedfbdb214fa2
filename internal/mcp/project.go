package mcp

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

var goModule = regexp.MustCompile(`(?m)^module\s+(\S+)`)

// manifest recognizes one kind of project by its manifest file.
type manifest struct {
	file string
	kind string
	name func(data []byte) (string, error)
}

var manifests = []manifest{
	{"go.mod", "go", goModName},
	{"package.json", "node", packageJSONName},
	{"pyproject.toml", "python", pyprojectName},
	{"Cargo.toml", "rust", cargoName},
}

// ProjectDetector names a project from the first manifest found in its root.
type ProjectDetector struct {
	root   string
	logger *slog.Logger
}

// NewProjectDetector creates a detector for root.
func NewProjectDetector(root string, logger *slog.Logger) *ProjectDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectDetector{root: root, logger: logger}
}

// Detect falls back to the directory name with type "unknown".
func (d *ProjectDetector) Detect() *ProjectInfo {
	info := &ProjectInfo{
		Name:     filepath.Base(d.root),
		RootPath: d.root,
		Type:     "unknown",
	}
	for _, m := range manifests {
		data, err := os.ReadFile(filepath.Join(d.root, m.file))
		if err != nil {
			continue
		}
		name, err := m.name(data)
		if err != nil {
			d.logger.Debug("project_manifest_unreadable",
				slog.String("file", m.file), slog.String("error", err.Error()))
			continue
		}
		if name == "" {
			continue
		}
		info.Name = name
		info.Type = m.kind
		return info
	}
	return info
}

// goModName returns the last element of the module path.
func goModName(data []byte) (string, error) {
	m := goModule.FindSubmatch(data)
	if m == nil {
		return "", nil
	}
	return filepath.Base(string(m[1])), nil
}

// packageJSONName strips the scope of @org/name packages.
func packageJSONName(data []byte) (string, error) {
	var pkg struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return "", err
	}
	if i := strings.LastIndex(pkg.Name, "/"); strings.HasPrefix(pkg.Name, "@") && i >= 0 {
		return pkg.Name[i+1:], nil
	}
	return pkg.Name, nil
}

// pyprojectName reads [project].name, then the poetry table.
func pyprojectName(data []byte) (string, error) {
	var py struct {
		Project struct {
			Name string `toml:"name"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Name string `toml:"name"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if _, err := toml.Decode(string(data), &py); err != nil {
		return "", err
	}
	if py.Project.Name != "" {
		return py.Project.Name, nil
	}
	return py.Tool.Poetry.Name, nil
}

func cargoName(data []byte) (string, error) {
	var cargo struct {
		Package struct {
			Name string `toml:"name"`
		} `toml:"package"`
	}
	if _, err := toml.Decode(string(data), &cargo); err != nil {
		return "", err
	}
	return cargo.Package.Name, nil
}
