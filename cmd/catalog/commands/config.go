package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/catalog-client/internal/auth"
	"github.com/fivetwenty-io/catalog-client/internal/client"
	"github.com/fivetwenty-io/catalog-client/internal/constants"
	"github.com/fivetwenty-io/catalog-client/pkg/catalog"
	"github.com/fivetwenty-io/catalog-client/pkg/catalogclient"
)

// configDirName is the directory under $HOME holding config.yml.
const configDirName = ".catalog"

// Config represents the CLI configuration.
type Config struct {
	APIs       map[string]*APIConfig `json:"apis,omitempty"        yaml:"apis,omitempty"`
	CurrentAPI string                `json:"current_api,omitempty" yaml:"current_api,omitempty"`

	// Global settings
	Output   string          `json:"output,omitempty"   yaml:"output,omitempty"`
	Snapshot *SnapshotConfig `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
}

// APIConfig represents configuration for a single catalog tenant.
type APIConfig struct {
	Endpoint       string     `json:"endpoint"                   yaml:"endpoint"`
	Tenant         string     `json:"tenant,omitempty"           yaml:"tenant,omitempty"`
	Token          string     `json:"token,omitempty"            yaml:"token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty" yaml:"token_expires_at,omitempty"`
	RefreshToken   string     `json:"refresh_token,omitempty"    yaml:"refresh_token,omitempty"`
	LastRefreshed  *time.Time `json:"last_refreshed,omitempty"   yaml:"last_refreshed,omitempty"`
	Username       string     `json:"username,omitempty"         yaml:"username,omitempty"`
	ClientID       string     `json:"client_id,omitempty"        yaml:"client_id,omitempty"`
	ClientSecret   string     `json:"client_secret,omitempty"    yaml:"client_secret,omitempty"`
	TokenURL       string     `json:"token_url,omitempty"        yaml:"token_url,omitempty"`
	PageSize       int64      `json:"page_size,omitempty"        yaml:"page_size,omitempty"`
}

// SnapshotConfig selects the shared cache snapshot store.
type SnapshotConfig struct {
	Type    string `json:"type"              yaml:"type"`
	NATSURL string `json:"nats_url,omitempty" yaml:"nats_url,omitempty"`
	Bucket  string `json:"bucket,omitempty"  yaml:"bucket,omitempty"`
}

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  "Manage catalog CLI configuration including tenants and settings",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigUnsetCommand())
	cmd.AddCommand(newConfigUseCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the CLI configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			masked := maskConfig(config)

			return render(cmd.OutOrStdout(), masked, func(w io.Writer) error {
				return displayConfigTable(w, masked)
			})
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	var apiFlag string

	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Long:  "Set a global configuration value, or a tenant value with --api",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			err = setConfigValue(config, apiFlag, args[0], args[1])
			if err != nil {
				return err
			}

			err = saveConfigStruct(config)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Set %s\n", args[0])

			return nil
		},
	}

	cmd.Flags().StringVar(&apiFlag, "api", "", "tenant to configure")

	return cmd
}

func newConfigUnsetCommand() *cobra.Command {
	var apiFlag string

	cmd := &cobra.Command{
		Use:   "unset KEY",
		Short: "Unset a configuration value",
		Long:  "Remove a global configuration value, or a tenant value with --api",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			err = setConfigValue(config, apiFlag, args[0], "")
			if err != nil {
				return err
			}

			err = saveConfigStruct(config)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Unset %s\n", args[0])

			return nil
		},
	}

	cmd.Flags().StringVar(&apiFlag, "api", "", "tenant to configure")

	return cmd
}

func newConfigUseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "use NAME",
		Short: "Switch the current tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			if _, ok := config.APIs[args[0]]; !ok {
				return fmt.Errorf("%w: '%s'", ErrAPINotFound, args[0])
			}

			config.CurrentAPI = args[0]

			err = saveConfigStruct(config)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Now using %s\n", args[0])

			return nil
		},
	}
}

// configFilePath returns the file in use, defaulting to ~/.catalog/config.yml.
func configFilePath() (string, error) {
	if configFile := viper.ConfigFileUsed(); configFile != "" {
		return configFile, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, configDirName, "config.yml"), nil
}

// loadConfig reads the config file. A missing file is an empty config.
func loadConfig() (*Config, error) {
	config := &Config{APIs: make(map[string]*APIConfig)}

	configFile, err := configFilePath()
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- path comes from the --config flag or the user's home directory
	data, err := os.ReadFile(configFile)

	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		err = yaml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}
	}

	if config.APIs == nil {
		config.APIs = make(map[string]*APIConfig)
	}

	if config.Output == "" {
		config.Output = constants.FormatTable
	}

	return config, nil
}

func saveConfigStruct(config *Config) error {
	configFile, err := configFilePath()
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(configFile), constants.ConfigDirPerm)
	if err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	err = os.WriteFile(configFile, data, constants.ConfigFilePerm)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// extractDomainFromEndpoint extracts the host of a tenant endpoint for use as a config key.
func extractDomainFromEndpoint(endpoint string) string {
	domain := strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")

	if idx := strings.Index(domain, "/"); idx != -1 {
		domain = domain[:idx]
	}

	if idx := strings.Index(domain, ":"); idx != -1 {
		domain = domain[:idx]
	}

	return domain
}

// getAPIConfigByFlag returns the named tenant, or the current one.
func getAPIConfigByFlag(config *Config, apiFlag string) (string, *APIConfig, error) {
	name := apiFlag
	if name == "" {
		name = config.CurrentAPI
	}

	if name == "" {
		if len(config.APIs) == 0 {
			return "", nil, constants.ErrNoAPIsConfigured
		}

		name = sortedKeys(config.APIs)[0]
	}

	if apiConfig, ok := config.APIs[name]; ok {
		return name, apiConfig, nil
	}

	endpoint := catalogclient.NormalizeEndpoint(name)
	for domain, apiConfig := range config.APIs {
		if apiConfig.Endpoint == endpoint {
			return domain, apiConfig, nil
		}
	}

	return "", nil, fmt.Errorf("%w in configuration: '%s'", ErrAPINotFound, name)
}

// CreateClient builds a client from --api/--token when both are given,
// otherwise from the configured tenant with automatic token refresh.
func CreateClient(ctx context.Context) (*client.Client, error) {
	apiFlag := viper.GetString("api")
	tokenFlag := viper.GetString("token")

	if apiFlag != "" && tokenFlag != "" {
		c, err := client.New(ctx, &catalog.Config{
			APIEndpoint: catalogclient.NormalizeEndpoint(apiFlag),
			APIToken:    tokenFlag,
			Logger:      newStderrLogger(),
			Debug:       viper.GetBool("verbose"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create client: %w", err)
		}

		return c, nil
	}

	config, err := loadConfig()
	if err != nil {
		return nil, err
	}

	domain, apiConfig, err := getAPIConfigByFlag(config, apiFlag)
	if err != nil {
		return nil, err
	}

	if apiConfig.Token == "" && apiConfig.RefreshToken == "" && apiConfig.ClientID == "" {
		return nil, fmt.Errorf("%w, use 'catalog login' first", ErrNotAuthenticated)
	}

	clientConfig := buildClientConfig(config, apiConfig)

	c, err := client.NewWithTokenManager(clientConfig, createTokenManager(domain, apiConfig, clientConfig.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return c, nil
}

// withClient runs fn with a fresh client, then closes it and waits for
// renewed tokens to reach the config file.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c, err := CreateClient(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if manager, ok := c.GetTokenManager().(*auth.ConfigTokenManager); ok {
			manager.Wait()
		}

		_ = c.Close()
	}()

	return fn(ctx, c)
}

func buildClientConfig(config *Config, apiConfig *APIConfig) *catalog.Config {
	clientConfig := &catalog.Config{
		APIEndpoint: catalogclient.NormalizeEndpoint(apiConfig.Endpoint),
		Tenant:      apiConfig.Tenant,
		TokenURL:    apiConfig.TokenURL,
		PageSize:    apiConfig.PageSize,
		Logger:      newStderrLogger(),
		Debug:       viper.GetBool("verbose"),
	}

	if config.Snapshot != nil {
		clientConfig.Snapshot = &catalog.SnapshotStoreConfig{
			Type: catalog.SnapshotStoreType(config.Snapshot.Type),
		}

		if config.Snapshot.NATSURL != "" {
			clientConfig.Snapshot.NATS = &catalog.NATSSnapshotConfig{
				URL:    config.Snapshot.NATSURL,
				Bucket: config.Snapshot.Bucket,
			}
		}
	}

	return clientConfig
}

// createTokenManager picks a static manager for API tokens and a
// config-persisting OAuth2 manager for renewable logins.
func createTokenManager(domain string, apiConfig *APIConfig, logger catalog.Logger) auth.TokenManager {
	if apiConfig.RefreshToken == "" && apiConfig.ClientID == "" {
		manager := auth.NewStaticTokenManager(apiConfig.Token)
		if apiConfig.TokenExpiresAt != nil {
			manager.SetToken(apiConfig.Token, *apiConfig.TokenExpiresAt)
		}

		return manager
	}

	tokenURL := apiConfig.TokenURL
	if tokenURL == "" {
		tokenURL = auth.RealmTokenURL(catalogclient.NormalizeEndpoint(apiConfig.Endpoint))
	}

	stored := &auth.Token{AccessToken: apiConfig.Token, RefreshToken: apiConfig.RefreshToken}
	if apiConfig.TokenExpiresAt != nil {
		stored.ExpiresAt = *apiConfig.TokenExpiresAt
	}

	return auth.NewConfigTokenManager(&auth.OAuth2Config{
		TokenURL:     tokenURL,
		ClientID:     apiConfig.ClientID,
		ClientSecret: apiConfig.ClientSecret,
		RefreshToken: apiConfig.RefreshToken,
	}, NewConfigPersister(), domain, stored, logger)
}

// setConfigValue sets (or with an empty value, clears) one key.
func setConfigValue(config *Config, apiFlag, key, value string) error {
	if apiFlag == "" {
		return setGlobalConfig(config, key, value)
	}

	apiConfig, ok := config.APIs[apiFlag]
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrAPINotFound, apiFlag)
	}

	return setAPIConfigValue(apiConfig, key, value)
}

func setGlobalConfig(config *Config, key, value string) error {
	switch key {
	case "output":
		if value != "" && value != constants.FormatTable && value != constants.FormatJSON && value != constants.FormatYAML {
			return constants.ErrInvalidOutputFormat
		}

		config.Output = value
	case "current_api":
		config.CurrentAPI = value
	case "snapshot.type", "snapshot.nats_url", "snapshot.bucket":
		if config.Snapshot == nil {
			config.Snapshot = &SnapshotConfig{}
		}

		switch key {
		case "snapshot.type":
			config.Snapshot.Type = value
		case "snapshot.nats_url":
			config.Snapshot.NATSURL = value
		default:
			config.Snapshot.Bucket = value
		}

		if *config.Snapshot == (SnapshotConfig{}) {
			config.Snapshot = nil
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownConfigKey, key)
	}

	return nil
}

func setAPIConfigValue(apiConfig *APIConfig, key, value string) error {
	switch key {
	case "endpoint":
		apiConfig.Endpoint = value
	case "tenant":
		apiConfig.Tenant = value
	case "token_url":
		apiConfig.TokenURL = value
	case "client_id":
		apiConfig.ClientID = value
	case "client_secret":
		apiConfig.ClientSecret = value
	case "page_size":
		if value == "" {
			apiConfig.PageSize = 0

			return nil
		}

		pageSize, err := strconv.ParseInt(value, 10, 64)
		if err != nil || pageSize <= 0 {
			return fmt.Errorf("%w: page_size must be a positive integer", catalog.ErrInvalidPageSize)
		}

		apiConfig.PageSize = pageSize
	default:
		return fmt.Errorf("%w: %s", ErrUnknownConfigKey, key)
	}

	return nil
}

// maskConfig copies config with every secret masked.
func maskConfig(config *Config) *Config {
	masked := *config
	masked.APIs = make(map[string]*APIConfig, len(config.APIs))

	for domain, apiConfig := range config.APIs {
		copied := *apiConfig
		copied.Token = maskSecret(copied.Token)
		copied.RefreshToken = maskSecret(copied.RefreshToken)
		copied.ClientSecret = maskSecret(copied.ClientSecret)
		masked.APIs[domain] = &copied
	}

	return &masked
}

func displayConfigTable(w io.Writer, config *Config) error {
	global := [][]string{
		{"Output", config.Output},
		{"Current API", orNA(config.CurrentAPI)},
	}

	if config.Snapshot != nil {
		global = append(global,
			[]string{"Snapshot Store", orNA(config.Snapshot.Type)},
			[]string{"Snapshot NATS URL", orNA(config.Snapshot.NATSURL)},
		)
	}

	_, _ = io.WriteString(w, "Global Configuration:\n")

	err := renderTable(w, []string{"Property", "Value"}, global)
	if err != nil {
		return err
	}

	if len(config.APIs) == 0 {
		_, _ = io.WriteString(w, "\nNo tenants configured. Use 'catalog login' to add one.\n")

		return nil
	}

	rows := make([][]string, 0, len(config.APIs))

	for _, domain := range sortedKeys(config.APIs) {
		apiConfig := config.APIs[domain]

		current := ""
		if domain == config.CurrentAPI {
			current = "*"
		}

		expires := constants.NotAvailable
		if apiConfig.TokenExpiresAt != nil {
			expires = apiConfig.TokenExpiresAt.Format(time.RFC3339)
		}

		rows = append(rows, []string{
			domain,
			apiConfig.Endpoint,
			orNA(apiConfig.Username),
			orNA(apiConfig.ClientID),
			orNA(apiConfig.Token),
			expires,
			current,
		})
	}

	_, _ = io.WriteString(w, "\nConfigured Tenants:\n")

	return renderTable(w, []string{"Name", "Endpoint", "Username", "Client ID", "Token", "Expires", "Current"}, rows)
}
