package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/catalog-client/internal/constants"
	"github.com/fivetwenty-io/catalog-client/pkg/catalog"
)

// Common static errors used throughout the commands package.
var (
	ErrAPINotFound           = errors.New("API not found")
	ErrAPIEndpointRequired   = errors.New("API endpoint is required")
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrUnknownConfigKey      = errors.New("unknown configuration key")
	ErrCategoryOrAllRequired = errors.New("specify a category or --all")
	ErrInvalidQuery          = errors.New("query is not a JSON object")
)

// outputFormat returns the validated --output value.
func outputFormat() (string, error) {
	format := viper.GetString("output")
	if format == "" {
		return constants.FormatTable, nil
	}

	switch format {
	case constants.FormatTable, constants.FormatJSON, constants.FormatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("%w: %q", constants.ErrInvalidOutputFormat, format)
	}
}

// render writes data as JSON or YAML, or calls table for table output.
func render(w io.Writer, data interface{}, table func(io.Writer) error) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}

	switch format {
	case constants.FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", strings.Repeat(" ", constants.JSONIndentSize))

		err = encoder.Encode(data)
		if err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}

		return nil
	case constants.FormatYAML:
		encoder := yaml.NewEncoder(w)
		defer func() { _ = encoder.Close() }()

		err = encoder.Encode(data)
		if err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}

		return nil
	default:
		return table(w)
	}
}

// renderTable renders rows under header.
func renderTable(w io.Writer, header []string, rows [][]string) error {
	columns := make([]any, 0, len(header))
	for _, column := range header {
		columns = append(columns, column)
	}

	table := tablewriter.NewWriter(w)
	table.Header(columns...)

	for _, row := range rows {
		err := table.Append(row)
		if err != nil {
			return fmt.Errorf("failed to append table row: %w", err)
		}
	}

	err := table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

// orNA replaces empty values in table cells.
func orNA(value string) string {
	if value == "" {
		return constants.NotAvailable
	}

	return value
}

// maskSecret hides all but the last four characters of a secret.
func maskSecret(secret string) string {
	const visible = 4

	if secret == "" {
		return ""
	}

	if len(secret) <= visible {
		return constants.MaskedSecret
	}

	return constants.MaskedSecret + secret[len(secret)-visible:]
}

// parseCategories resolves category arguments; all selects every category.
func parseCategories(args []string, all bool) ([]catalog.Category, error) {
	if all {
		return catalog.AllCategories(), nil
	}

	if len(args) == 0 {
		return nil, ErrCategoryOrAllRequired
	}

	categories := make([]catalog.Category, 0, len(args))

	for _, arg := range args {
		category, err := catalog.ParseCategory(arg)
		if err != nil {
			return nil, err
		}

		categories = append(categories, category)
	}

	return categories, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// stderrLogger prints client log lines to stderr when --verbose is set.
type stderrLogger struct {
	w     io.Writer
	debug bool
}

func newStderrLogger() catalog.Logger {
	if !viper.GetBool("verbose") {
		return catalog.NopLogger{}
	}

	return &stderrLogger{w: os.Stderr, debug: true}
}

func (l *stderrLogger) log(level, msg string, fields map[string]interface{}) {
	var b strings.Builder

	b.WriteString(level)
	b.WriteString(" ")
	b.WriteString(msg)

	for _, key := range sortedKeys(fields) {
		fmt.Fprintf(&b, " %s=%v", key, fields[key])
	}

	b.WriteString("\n")

	_, _ = io.WriteString(l.w, b.String())
}

func (l *stderrLogger) Debug(msg string, fields map[string]interface{}) {
	if l.debug {
		l.log("DEBUG", msg, fields)
	}
}

func (l *stderrLogger) Info(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *stderrLogger) Warn(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *stderrLogger) Error(msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, fields)
}
