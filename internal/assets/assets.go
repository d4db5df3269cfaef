package assets

import (
	"embed"
	"io/fs"
)

//go:embed embedded_schemas
var Schemas embed.FS

//go:embed embedded_templates
var Templates embed.FS

// SchemaInfo holds schema metadata.
type SchemaInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// KnownSchemas maps schema names to their embedded paths.
var KnownSchemas = map[string]string{
	"asset-manifest-v1.0.0": "embedded_schemas/manifest/v1.0.0/asset-manifest.yaml",
}

// GetSchema returns the embedded schema bytes by path
func GetSchema(relPath string) ([]byte, bool) {
	data, err := Schemas.ReadFile(relPath)
	return data, err == nil
}

// GetTemplate returns an embedded template by file name (e.g. "status.md.hbs").
func GetTemplate(name string) ([]byte, error) {
	return fs.ReadFile(Templates, "embedded_templates/"+name)
}

// GetSchemasFS exposes the schema tree rooted at embedded_schemas.
func GetSchemasFS() fs.FS {
	if sub, err := fs.Sub(Schemas, "embedded_schemas"); err == nil {
		return sub
	}
	return Schemas
}
