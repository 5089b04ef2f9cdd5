package reporting

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/enterprise-contract/ec-policies/internal/ir"
)

// WriteJSON writes the build summary to <outDir>/<buildID>.json.
func WriteJSON(buildID, outDir string, build *ir.Build) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outDir, buildID+".json")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(build); err != nil {
		return "", err
	}
	return path, nil
}
