package sysinfo

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
)

const (
	EntmibPath = "hardware/entmib"

	// TPMSchemaStatus reads the secure-ZTP flag from boardValidated on the
	// TPM status entity; TPMSchemaConfig reads antiCounterfeitingSupported
	// from the TPM config entity. Device generations differ, so the schema
	// is configured per deployment.
	TPMSchemaStatus = "status"
	TPMSchemaConfig = "config"
)

type Config struct {
	Sysname        string   `mapstructure:"sysname"`
	CellID         int      `mapstructure:"cell_id"`
	Provider       string   `mapstructure:"provider"`
	Root           string   `mapstructure:"root"`
	Command        []string `mapstructure:"command"`
	TPMSchema      string   `mapstructure:"tpm_schema"`
	SwiVersionFile string   `mapstructure:"swi_version_file"`
	ArchFile       string   `mapstructure:"arch_file"`
}

func (c Config) withDefaults() Config {
	if c.Sysname == "" {
		c.Sysname = DefaultSysname
	}
	if c.CellID == 0 {
		c.CellID = 1
	}
	if c.Provider == "" {
		c.Provider = ProviderFile
	}
	if c.Root == "" {
		c.Root = DefaultRoot
	}
	if c.TPMSchema == "" {
		c.TPMSchema = TPMSchemaStatus
	}
	if c.SwiVersionFile == "" {
		c.SwiVersionFile = DefaultSwiVersionFile
	}
	if c.ArchFile == "" {
		c.ArchFile = DefaultArchFile
	}
	return c
}

// NewProvider builds the provider selected by config.Provider.
func NewProvider(config Config) (Provider, error) {
	config = config.withDefaults()
	switch config.Provider {
	case ProviderFile:
		return FileProvider{Root: config.Root, Sysname: config.Sysname}, nil
	case ProviderCommand:
		if len(config.Command) == 0 {
			return nil, fmt.Errorf("sysinfo provider %q requires a command", ProviderCommand)
		}
		return CommandProvider{Argv: config.Command, Sysname: config.Sysname}, nil
	default:
		return nil, fmt.Errorf("unknown sysinfo provider %q", config.Provider)
	}
}

// Identity is the device snapshot sent with the bootstrap request.
type Identity struct {
	SystemMAC          string
	ModelName          string
	HardwareVersion    string
	Serial             string
	TPMAPI             string
	TPMFirmwareVersion string
	SecureZTP          bool
	SoftwareVersion    string
	Architecture       string
}

func (i Identity) Headers() map[string]string {
	return map[string]string{
		"X-Arista-SystemMAC":       i.SystemMAC,
		"X-Arista-ModelName":       i.ModelName,
		"X-Arista-HardwareVersion": i.HardwareVersion,
		"X-Arista-Serial":          i.Serial,
		"X-Arista-TpmApi":          i.TPMAPI,
		"X-Arista-TpmFwVersion":    i.TPMFirmwareVersion,
		"X-Arista-SecureZtp":       pythonBool(i.SecureZTP),
		"X-Arista-SoftwareVersion": i.SoftwareVersion,
		"X-Arista-Architecture":    i.Architecture,
	}
}

// The controller expects the capitalised spelling.
func pythonBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

type Reader struct {
	provider Provider
	config   Config
}

func NewReader(provider Provider, config Config) *Reader {
	return &Reader{provider: provider, config: config.withDefaults()}
}

// Read takes a single snapshot of the device identity.
func (r *Reader) Read(ctx context.Context) (Identity, error) {
	mib, err := r.provider.Entity(ctx, EntmibPath)
	if err != nil {
		return Identity{}, err
	}

	tpmBase := "cell/" + strconv.Itoa(r.config.CellID) + "/hardware/tpm/"
	tpmStatus, err := r.provider.Entity(ctx, tpmBase+"status")
	if err != nil {
		return Identity{}, err
	}

	var secure bool
	switch r.config.TPMSchema {
	case TPMSchemaStatus:
		secure = tpmStatus.Bool("boardValidated")
	case TPMSchemaConfig:
		tpmConfig, err := r.provider.Entity(ctx, tpmBase+"config")
		if err != nil {
			return Identity{}, err
		}
		secure = tpmConfig.Bool("antiCounterfeitingSupported")
	default:
		return Identity{}, fmt.Errorf("unknown tpm schema %q", r.config.TPMSchema)
	}

	version, err := softwareVersion(r.config.SwiVersionFile)
	if err != nil {
		return Identity{}, err
	}
	arch, err := architecture(r.config.ArchFile)
	if err != nil {
		return Identity{}, err
	}

	id := Identity{
		SystemMAC:          mib.String("systemMacAddr"),
		ModelName:          mib.String("root/modelName"),
		HardwareVersion:    mib.String("root/hardwareRev"),
		Serial:             mib.String("root/serialNum"),
		TPMAPI:             tpmStatus.String("tpmVersion"),
		TPMFirmwareVersion: tpmStatus.String("firmwareVersion"),
		SecureZTP:          secure,
		SoftwareVersion:    version,
		Architecture:       arch,
	}
	if id.Serial == "" {
		return Identity{}, fmt.Errorf("entity %s has no serial number", EntmibPath)
	}

	slog.Info("Read device identity",
		"serial", id.Serial,
		"model", id.ModelName,
		"software_version", id.SoftwareVersion,
		"secure_ztp", id.SecureZTP)
	return id, nil
}
