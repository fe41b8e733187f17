package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/leantrace/internal/config"
	"github.com/mvp-joe/leantrace/internal/docinject"
)

var (
	injectTraceDirFlag string
	injectWindowFlag   int
	injectReportFlag   string
)

// injectCmd represents the inject command
var injectCmd = &cobra.Command{
	Use:   "inject <doc-root>",
	Short: "Link trace artifacts into a generated documentation tree",
	Long: `Inject rewrites generated declaration pages in place, adding a link from
each declaration to its trace segment. Pages are matched by the source
location in their editor link; a declaration whose position matches no
segment within the line window is reported, not linked.

Running inject twice on the same inputs produces byte-identical pages.

Examples:
  # Link docbuild output against the default trace directory
  leantrace inject docbuild/doc

  # Use explicit traces and write the report elsewhere
  leantrace inject --traces .leantrace/traces --report report.json docbuild/doc
`,
	Args: cobra.ExactArgs(1),
	RunE: runInject,
}

func init() {
	rootCmd.AddCommand(injectCmd)
	injectCmd.Flags().StringVar(&injectTraceDirFlag, "traces", "", "Trace artifact directory")
	injectCmd.Flags().IntVar(&injectWindowFlag, "window", 0, "Near-match line window")
	injectCmd.Flags().StringVar(&injectReportFlag, "report", "", "Report output path")
}

func runInject(cmd *cobra.Command, args []string) error {
	rootDir, err := resolveRoot()
	if err != nil {
		return err
	}
	cfg, err := config.NewLoader(rootDir).Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	traceDir := filepath.Join(rootDir, cfg.Trace.OutDir)
	if cmd.Flags().Changed("traces") {
		traceDir = injectTraceDirFlag
	}
	window := cfg.Inject.Window
	if cmd.Flags().Changed("window") {
		window = injectWindowFlag
	}
	reportPath := cfg.Inject.Report
	if cmd.Flags().Changed("report") {
		reportPath = injectReportFlag
	}

	report, err := docinject.Inject(cmd.Context(), docinject.Options{
		DocRoot:     args[0],
		ProjectRoot: rootDir,
		TraceDir:    traceDir,
		Window:      window,
		Label:       cfg.Inject.Label,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	if reportPath != "" {
		if !filepath.IsAbs(reportPath) {
			reportPath = filepath.Join(rootDir, reportPath)
		}
		if err := report.WriteFile(reportPath); err != nil {
			return err
		}
	}

	fmt.Printf("✓ Injection complete\n")
	fmt.Printf("  Matched:   %d\n", report.Matched)
	fmt.Printf("  Near:      %d\n", report.Near)
	fmt.Printf("  Unmatched: %d\n", report.Unmatched)
	fmt.Printf("  Updated:   %d\n", report.Updated)
	for _, rec := range report.Records {
		if rec.Kind == docinject.MatchNone {
			fmt.Printf("  ✗ %s: %s\n", rec.PagePath, rec.Reason)
		}
	}
	return nil
}
