package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/fivetwenty-io/catalog-client/internal/auth"
	"github.com/fivetwenty-io/catalog-client/internal/client"
	"github.com/fivetwenty-io/catalog-client/pkg/catalog"
	"github.com/fivetwenty-io/catalog-client/pkg/catalogclient"
)

// loginOptions holds the credentials gathered by the login command.
type loginOptions struct {
	name         string
	tenant       string
	token        string
	username     string
	password     string
	clientID     string
	clientSecret string
	tokenURL     string
	promptToken  bool
}

// NewLoginCommand creates the login command.
func NewLoginCommand() *cobra.Command {
	opts := &loginOptions{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to a catalog tenant",
		Long: `Authenticate with a catalog tenant and store the credentials.

The tenant is taken from --api. Use --token (or --api-token to be
prompted) for an API token, --client-id/--client-secret for a service
client, or --username/--password for a user login. Missing secrets are
prompted for.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "name to store the tenant under (defaults to the endpoint host)")
	cmd.Flags().StringVar(&opts.tenant, "tenant", "", "tenant name for shared cache snapshots")
	cmd.Flags().StringVarP(&opts.username, "username", "u", "", "username for authentication")
	cmd.Flags().StringVarP(&opts.password, "password", "p", "", "password for authentication")
	cmd.Flags().StringVar(&opts.clientID, "client-id", "", "OAuth2 client ID")
	cmd.Flags().StringVar(&opts.clientSecret, "client-secret", "", "OAuth2 client secret")
	cmd.Flags().StringVar(&opts.tokenURL, "token-url", "", "OAuth2 token endpoint (defaults to the tenant realm)")
	cmd.Flags().BoolVar(&opts.promptToken, "api-token", false, "prompt for an API token")

	return cmd
}

func runLogin(cmd *cobra.Command, opts *loginOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	config, err := loadConfig()
	if err != nil {
		return err
	}

	key, apiConfig, err := resolveLoginTarget(cmd, config, opts)
	if err != nil {
		return err
	}

	opts.token = viper.GetString("token")

	if opts.promptToken && opts.token == "" {
		opts.token, err = promptSecret(cmd, "API token: ")
		if err != nil {
			return err
		}
	}

	if opts.token == "" && opts.clientID == "" {
		if opts.username == "" {
			opts.username, err = promptLine(cmd, "Username: ")
			if err != nil {
				return err
			}
		}

		if opts.password == "" {
			opts.password, err = promptSecret(cmd, "Password: ")
			if err != nil {
				return err
			}
		}
	}

	if opts.clientID != "" && opts.clientSecret == "" {
		opts.clientSecret, err = promptSecret(cmd, "Client secret: ")
		if err != nil {
			return err
		}
	}

	token, err := authenticate(ctx, apiConfig, opts)
	if err != nil {
		return err
	}

	apiConfig.Token = token.AccessToken
	apiConfig.RefreshToken = token.RefreshToken
	apiConfig.TokenExpiresAt = nil

	if !token.ExpiresAt.IsZero() {
		expiresAt := token.ExpiresAt
		apiConfig.TokenExpiresAt = &expiresAt
	}

	now := time.Now()
	apiConfig.LastRefreshed = &now
	apiConfig.Username = opts.username
	apiConfig.ClientID = opts.clientID
	apiConfig.ClientSecret = opts.clientSecret
	apiConfig.TokenURL = opts.tokenURL

	if opts.tenant != "" {
		apiConfig.Tenant = opts.tenant
	}

	config.APIs[key] = apiConfig

	if config.CurrentAPI == "" || len(config.APIs) == 1 {
		config.CurrentAPI = key
	}

	err = saveConfigStruct(config)
	if err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Successfully logged in to %s\n", apiConfig.Endpoint)

	if config.CurrentAPI == key {
		_, _ = fmt.Fprintf(out, "Tenant '%s' set as current target\n", key)
	}

	return nil
}

// resolveLoginTarget finds or creates the config entry login writes to.
func resolveLoginTarget(cmd *cobra.Command, config *Config, opts *loginOptions) (string, *APIConfig, error) {
	target := viper.GetString("api")

	if target == "" {
		target = config.CurrentAPI
	}

	if target == "" {
		var err error

		target, err = promptLine(cmd, "Tenant endpoint: ")
		if err != nil {
			return "", nil, err
		}
	}

	if target == "" {
		return "", nil, ErrAPIEndpointRequired
	}

	if existing, ok := config.APIs[target]; ok {
		return target, existing, nil
	}

	endpoint := catalogclient.NormalizeEndpoint(target)

	key := opts.name
	if key == "" {
		key = extractDomainFromEndpoint(endpoint)
	}

	apiConfig, ok := config.APIs[key]
	if !ok {
		apiConfig = &APIConfig{}
	}

	apiConfig.Endpoint = endpoint

	return key, apiConfig, nil
}

// authenticate obtains a token with the chosen grant and checks that the
// tenant accepts it.
func authenticate(ctx context.Context, apiConfig *APIConfig, opts *loginOptions) (*auth.Token, error) {
	endpoint := catalogclient.NormalizeEndpoint(apiConfig.Endpoint)

	tokenURL := opts.tokenURL
	if tokenURL == "" {
		tokenURL = auth.RealmTokenURL(endpoint)
	}

	var (
		manager auth.TokenManager
		current func() *auth.Token
	)

	switch {
	case opts.token != "":
		manager = auth.NewStaticTokenManager(opts.token)
		current = func() *auth.Token { return &auth.Token{AccessToken: opts.token} }
	default:
		oauth := auth.NewOAuth2TokenManager(&auth.OAuth2Config{
			TokenURL:     tokenURL,
			ClientID:     opts.clientID,
			ClientSecret: opts.clientSecret,
			Username:     opts.username,
			Password:     opts.password,
		})
		manager = oauth
		current = oauth.Token
	}

	c, err := client.NewWithTokenManager(&catalog.Config{
		APIEndpoint: endpoint,
		Tenant:      apiConfig.Tenant,
		Logger:      newStderrLogger(),
		Debug:       viper.GetBool("verbose"),
	}, manager)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	defer func() { _ = c.Close() }()

	err = catalogclient.Ping(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to log in: %w", err)
	}

	token := current()
	if token == nil || token.AccessToken == "" {
		return nil, auth.ErrEmptyAccessToken
	}

	return token, nil
}

func promptLine(cmd *cobra.Command, prompt string) (string, error) {
	_, _ = io.WriteString(cmd.ErrOrStderr(), prompt)

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	return strings.TrimSpace(line), nil
}

// promptSecret reads without echo from a terminal, or a plain line otherwise.
func promptSecret(cmd *cobra.Command, prompt string) (string, error) {
	stdin, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(stdin.Fd())) {
		return promptLine(cmd, prompt)
	}

	_, _ = io.WriteString(cmd.ErrOrStderr(), prompt)

	secret, err := term.ReadPassword(int(stdin.Fd()))

	_, _ = io.WriteString(cmd.ErrOrStderr(), "\n")

	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	return string(secret), nil
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out of a catalog tenant",
		Long:  "Remove stored tokens and client secrets for the current or --api tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			key, apiConfig, err := getAPIConfigByFlag(config, viper.GetString("api"))
			if err != nil {
				return err
			}

			apiConfig.Token = ""
			apiConfig.RefreshToken = ""
			apiConfig.TokenExpiresAt = nil
			apiConfig.LastRefreshed = nil
			apiConfig.ClientSecret = ""

			err = saveConfigStruct(config)
			if err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Successfully logged out of %s\n", key)

			return nil
		},
	}
}
