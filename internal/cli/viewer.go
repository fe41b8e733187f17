package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/leantrace/internal/config"
	"github.com/mvp-joe/leantrace/internal/trace"
)

var viewerTraceDirFlag string

// viewerCmd represents the viewer command
var viewerCmd = &cobra.Command{
	Use:   "viewer [files...]",
	Short: "Generate viewer pages from existing trace artifacts",
	Long: `Viewer renders the self-contained HTML page for trace artifacts that were
extracted without one (trace --viewer=false). Arguments name source files
relative to the project root; without arguments every artifact in the trace
directory gets a page.`,
	RunE: runViewer,
}

func init() {
	rootCmd.AddCommand(viewerCmd)
	viewerCmd.Flags().StringVar(&viewerTraceDirFlag, "traces", "", "Trace artifact directory")
}

func runViewer(cmd *cobra.Command, args []string) error {
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
		traceDir = viewerTraceDirFlag
	}

	var artifacts []string
	if len(args) > 0 {
		for _, arg := range args {
			artifacts = append(artifacts, filepath.Join(traceDir, filepath.FromSlash(arg)+trace.ArtifactSuffix))
		}
	} else {
		err := filepath.WalkDir(traceDir, func(path string, entry os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !entry.IsDir() && strings.HasSuffix(path, trace.ArtifactSuffix) {
				artifacts = append(artifacts, path)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("walk trace directory: %w", err)
		}
	}

	writer, err := trace.NewWriter(traceDir)
	if err != nil {
		return err
	}
	rendered := 0
	for _, artifact := range artifacts {
		data, err := os.ReadFile(artifact)
		if err != nil {
			return fmt.Errorf("read artifact %s: %w", artifact, err)
		}
		t, err := trace.Decode(data)
		if err != nil {
			return fmt.Errorf("decode artifact %s: %w", artifact, err)
		}
		if _, err := writer.WriteViewer(t, data); err != nil {
			return err
		}
		rendered++
	}

	fmt.Printf("✓ Rendered %d viewer page(s)\n", rendered)
	return nil
}
