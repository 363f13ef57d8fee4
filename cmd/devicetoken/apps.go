package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wrale/devicetoken/internal/catalog"
)

// loadCatalog reads the application list. A missing file is not an error:
// the catalog then holds only the top apps.
func loadCatalog(path string, logger *zap.Logger) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.New(nil), nil
	}
	apps, err := catalog.LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("application list not found, using only the top apps", zap.String("path", path))
		return catalog.New(nil), nil
	}
	if err != nil {
		return nil, err
	}
	c := catalog.New(apps)
	logger.Debug("application list loaded", zap.String("path", path), zap.Int("apps", c.Len()))
	return c, nil
}

// loadScopeMap reads the scope map, returning nil when the file is missing
func loadScopeMap(path string, logger *zap.Logger) (*catalog.ScopeMap, error) {
	if path == "" {
		return nil, nil
	}
	m, err := catalog.LoadScopeMap(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug("scope map not found", zap.String("path", path))
		return nil, nil
	}
	return m, err
}

func newAppsCmd(root *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "apps [query]",
		Short: "List the top applications or search the application list",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(levelFor(root.verbose), true)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			c, err := loadCatalog(root.appsCSV, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				printApps(out, "TOP MICROSOFT APPLICATIONS", catalog.TopApps(), 0)
				return nil
			}

			query := strings.Join(args, " ")
			results := c.Search(query, limit)
			if len(results) == 0 {
				return fmt.Errorf("no applications found matching %q", query)
			}
			printApps(out, fmt.Sprintf("SEARCH RESULTS (%d)", len(results)), results, 0)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results, 0 for all")
	return cmd
}

// printApps writes a numbered application list starting at offset+1
func printApps(w io.Writer, title string, apps []catalog.App, offset int) {
	fmt.Fprintln(w, headingStyle.Render("=== "+title+" ==="))
	for i, a := range apps {
		fmt.Fprintf(w, "%s %s\n", keyStyle.Render(fmt.Sprintf("%d.", offset+i+1)), a.Name)
		fmt.Fprintf(w, "   %s %s\n", labelStyle.Render("Client ID:"), a.ClientID)
	}
}

func levelFor(verbose bool) string {
	if verbose {
		return "debug"
	}
	return "warn"
}
