// Package config provides XML-based configuration management for air-gapped deployment.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultFileName is the config file expected beside the executable.
const DefaultFileName = "ImageAnnotator.exe.config"

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"ImageAnnotator"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Editor configuration
	Editor EditorConfig `xml:"Editor"`

	// Export configuration
	Export ExportConfig `xml:"Export"`

	// Security configuration
	Security SecurityConfig `xml:"Security"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port            int    `xml:"Port"`
	Host            string `xml:"Host"`
	ReadTimeout     int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout    int    `xml:"WriteTimeoutSeconds"`
	ShutdownTimeout int    `xml:"ShutdownTimeoutSeconds"`
}

// StorageConfig contains file storage settings. Sub-directories may be
// relative, in which case they resolve against DataDirectory.
type StorageConfig struct {
	DataDirectory     string `xml:"DataDirectory"`
	ProjectsDirectory string `xml:"ProjectsDirectory"`
	ExportsDirectory  string `xml:"ExportsDirectory"`
	ImportsDirectory  string `xml:"ImportsDirectory"`
	PalettesDirectory string `xml:"PalettesDirectory"`
	CatalogDirectory  string `xml:"CatalogDirectory"`
	TempDirectory     string `xml:"TempDirectory"`
}

// EditorConfig contains zoom, hit-testing and history settings
type EditorConfig struct {
	MinZoom           float64 `xml:"MinZoom"`
	MaxZoom           float64 `xml:"MaxZoom"`
	ZoomStep          float64 `xml:"ZoomStep"`
	VertexTolerancePx float64 `xml:"VertexTolerancePx"`
	EdgeTolerancePx   float64 `xml:"EdgeTolerancePx"`
	HistoryDepth      int     `xml:"HistoryDepth"`
	DefaultColor      string  `xml:"DefaultColor"`
}

// ExportConfig contains annotation export settings
type ExportConfig struct {
	CircleVertices int    `xml:"CircleVertices"`
	PrettyJSON     bool   `xml:"PrettyJSON"`
	VOCDatabase    string `xml:"VOCDatabase"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	MaxUploadSizeMB int    `xml:"MaxUploadSizeMB"`
	EnableCORS      bool   `xml:"EnableCORS"`
	AllowOrigins    string `xml:"AllowOrigins"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	MaxSessions            int  `xml:"MaxSessions"`
	SessionMaxAgeMinutes   int  `xml:"SessionMaxAgeMinutes"`
	CleanupIntervalMinutes int  `xml:"CleanupIntervalMinutes"`
	EnableRequestLogging   bool `xml:"EnableRequestLogging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:            8845,
			Host:            "0.0.0.0",
			ReadTimeout:     30,
			WriteTimeout:    300,
			ShutdownTimeout: 10,
		},
		Storage: StorageConfig{
			DataDirectory:     "./data",
			ProjectsDirectory: "projects",
			ExportsDirectory:  "exports",
			ImportsDirectory:  "imports",
			PalettesDirectory: "palettes",
			CatalogDirectory:  "catalog",
			TempDirectory:     "temp",
		},
		Editor: EditorConfig{
			MinZoom:           0.1,
			MaxZoom:           5.0,
			ZoomStep:          1.1,
			VertexTolerancePx: 10,
			EdgeTolerancePx:   5,
			HistoryDepth:      50,
			DefaultColor:      "#FF0000",
		},
		Export: ExportConfig{
			CircleVertices: 16,
			PrettyJSON:     true,
			VOCDatabase:    "Unknown",
		},
		Security: SecurityConfig{
			MaxUploadSizeMB: 512,
			EnableCORS:      true,
			AllowOrigins:    "*",
		},
		Advanced: AdvancedConfig{
			MaxSessions:            10,
			SessionMaxAgeMinutes:   240,
			CleanupIntervalMinutes: 10,
			EnableRequestLogging:   true,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &AppConfig{}
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Image Annotator Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// ANNOTATOR_PORT override
	if port := os.Getenv("ANNOTATOR_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// ANNOTATOR_HOST override
	if host := os.Getenv("ANNOTATOR_HOST"); host != "" {
		c.Server.Host = host
	}

	// ANNOTATOR_DATA_DIR override
	if dataDir := os.Getenv("ANNOTATOR_DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}
}

// resolvePaths converts relative paths to absolute. The data directory
// resolves against the config file location; everything else resolves
// against the data directory.
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	resolve := func(dir *string) {
		if !filepath.IsAbs(*dir) {
			*dir = filepath.Join(c.Storage.DataDirectory, *dir)
		}
	}
	resolve(&c.Storage.ProjectsDirectory)
	resolve(&c.Storage.ExportsDirectory)
	resolve(&c.Storage.ImportsDirectory)
	resolve(&c.Storage.PalettesDirectory)
	resolve(&c.Storage.CatalogDirectory)
	resolve(&c.Storage.TempDirectory)
}

// Validate rejects configurations the editor cannot run with.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: port %d out of range", c.Server.Port)
	}
	if c.Editor.MinZoom <= 0 || c.Editor.MaxZoom <= c.Editor.MinZoom {
		return fmt.Errorf("invalid config: zoom bounds %.2f..%.2f", c.Editor.MinZoom, c.Editor.MaxZoom)
	}
	if c.Editor.ZoomStep <= 1 {
		return fmt.Errorf("invalid config: zoom step %.2f must exceed 1", c.Editor.ZoomStep)
	}
	if c.Editor.HistoryDepth <= 0 {
		return fmt.Errorf("invalid config: history depth %d must be positive", c.Editor.HistoryDepth)
	}
	if c.Export.CircleVertices < 3 {
		return fmt.Errorf("invalid config: circle vertices %d below 3", c.Export.CircleVertices)
	}
	return nil
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.ProjectsDirectory,
		c.Storage.ExportsDirectory,
		c.Storage.ImportsDirectory,
		c.Storage.PalettesDirectory,
		c.Storage.CatalogDirectory,
		c.Storage.TempDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
