package shared

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Content struct {
		Dir             string   `yaml:"dir"`              // "./antora/docs"
		AnnotationsFile string   `yaml:"annotations_file"` // "rule_annotations.json"
		BundlesFile     string   `yaml:"bundles_file"`     // "acceptable_tekton_bundles.yml"
		Rego            []string `yaml:"rego"`             // extract in-process instead of annotations_file
		RegoVersion     string   `yaml:"rego_version"`     // "v1"|"v0"
	} `yaml:"content"`

	Site struct {
		OutDir      string `yaml:"out_dir"`      // "./build/site"
		DataFile    string `yaml:"data_file"`    // "data/policy_data.json"
		TemplateExt string `yaml:"template_ext"` // ".tmpl"
		PageExt     string `yaml:"page_ext"`     // ".adoc"
	} `yaml:"site"`

	Rules struct {
		Sort       bool              `yaml:"sort"`
		Strict     bool              `yaml:"strict"`   // duplicate package annotations fail the build
		Disabled   []string          `yaml:"disabled"` // namespace qualifiers to skip
		Namespaces []NamespaceConfig `yaml:"namespaces"`
	} `yaml:"rules"`

	Database struct {
		Driver string `yaml:"driver"` // "sqlite" (default)
		DSN    string `yaml:"dsn"`    // "./policydocs.db"
	} `yaml:"database"`

	Reporting struct {
		OutDir string `yaml:"out_dir"` // "./reports"
	} `yaml:"reporting"`

	Server struct {
		Addr  string            `yaml:"addr"`  // ":8080"
		Users map[string]string `yaml:"users"` // username -> bcrypt hash
	} `yaml:"server"`

	Logging struct {
		Format string `yaml:"format"` // "json"|"text"
		Level  string `yaml:"level"`  // "info"|"debug"|"warn"|"error"
	} `yaml:"logging"`
}

// NamespaceConfig declares an extra policy namespace to document.
type NamespaceConfig struct {
	Name        string `yaml:"name"`
	Qualifier   string `yaml:"qualifier"`
	Description string `yaml:"description"`
}

func DefaultConfig() Config {
	var c Config
	c.Content.Dir = "."
	c.Content.AnnotationsFile = "rule_annotations.json"
	c.Content.BundlesFile = "acceptable_tekton_bundles.yml"
	c.Content.RegoVersion = "v1"
	c.Site.OutDir = "./build/site"
	c.Site.DataFile = "data/policy_data.json"
	c.Site.TemplateExt = ".tmpl"
	c.Site.PageExt = ".adoc"
	c.Rules.Sort = true
	c.Database.Driver = "sqlite"
	c.Database.DSN = "./policydocs.db"
	c.Reporting.OutDir = "./reports"
	c.Server.Addr = ":8080"
	c.Logging.Format = "json"
	c.Logging.Level = "info"
	return c
}

// LoadConfig layers the YAML file at path (optional) and POLICYDOCS_* env
// vars over the defaults. A .env file in the working directory is read first.
func LoadConfig(path string) (Config, error) {
	_ = godotenv.Load()

	c := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	// Env overrides (simple, explicit)
	if v := os.Getenv("POLICYDOCS_CONTENT_DIR"); v != "" {
		c.Content.Dir = v
	}
	if v := os.Getenv("POLICYDOCS_REGO"); v != "" {
		c.Content.Rego = strings.Split(v, string(os.PathListSeparator))
	}
	if v := os.Getenv("POLICYDOCS_SITE_DIR"); v != "" {
		c.Site.OutDir = v
	}
	if v := os.Getenv("POLICYDOCS_SORT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Rules.Sort = b
		}
	}
	if v := os.Getenv("POLICYDOCS_STRICT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Rules.Strict = b
		}
	}
	if v := os.Getenv("POLICYDOCS_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("POLICYDOCS_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("POLICYDOCS_OUT_DIR"); v != "" {
		c.Reporting.OutDir = v
	}
	if v := os.Getenv("POLICYDOCS_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("POLICYDOCS_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("POLICYDOCS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return c, nil
}
