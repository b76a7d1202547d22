package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/policysync/pkg/cli"
	"mercator-hq/policysync/pkg/config"
	"mercator-hq/policysync/pkg/policy/bundle"
	"mercator-hq/policysync/pkg/policy/git"
)

var bundleFlags struct {
	repository string
}

var bundleCmd = &cobra.Command{
	Use:   "bundle [revision]",
	Short: "Print the policy bundle of a commit",
	Long: `Build the complete policy bundle of a commit of the policy repository.

Without a revision the head of the tracked branch is used.

Examples:
  # Bundle the tracked branch head
  policysync bundle

  # Bundle a tag of a local checkout as JSON
  policysync bundle v1.2.0 --repository ./policies --output json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBundle,
}

var diffCmd = &cobra.Command{
	Use:   "diff <old-revision> <new-revision>",
	Short: "Print the diff bundle between two commits",
	Long: `Build the bundle that moves an agent from one commit to another.

When both revisions name the same commit, the result is a full resync
bundle listing every directory holding bundled files.

Examples:
  policysync diff HEAD~1 HEAD
  policysync diff 3f2c1a0 main --output yaml`,
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

func init() {
	rootCmd.AddCommand(bundleCmd)
	rootCmd.AddCommand(diffCmd)

	for _, cmd := range []*cobra.Command{bundleCmd, diffCmd} {
		cmd.Flags().StringVarP(&bundleFlags.repository, "repository", "r", "", "override repository URL or local path")
	}
}

func runBundle(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	repo, maker, err := openPolicyRepository(cmd.Context())
	if err != nil {
		return err
	}

	rev := ""
	if len(args) == 1 {
		rev = args[0]
	}
	commit, err := repo.ResolveCommit(rev)
	if err != nil {
		return cli.NewCommandError("bundle", err)
	}
	b, err := maker.MakeBundle(commit)
	if err != nil {
		return cli.NewCommandError("bundle", err)
	}
	return writeBundle(cmd.OutOrStdout(), format, b)
}

func runDiff(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	repo, maker, err := openPolicyRepository(cmd.Context())
	if err != nil {
		return err
	}

	oldCommit, err := repo.ResolveCommit(args[0])
	if err != nil {
		return cli.NewCommandError("diff", err)
	}
	newCommit, err := repo.ResolveCommit(args[1])
	if err != nil {
		return cli.NewCommandError("diff", err)
	}
	b, err := maker.MakeDiffBundle(cmd.Context(), oldCommit, newCommit)
	if err != nil {
		return cli.NewCommandError("diff", err)
	}
	return writeBundle(cmd.OutOrStdout(), format, b)
}

func openPolicyRepository(ctx context.Context, opts ...bundle.Option) (*git.Repository, *bundle.Maker, error) {
	cfg := config.GetConfig()
	repoCfg := cfg.Repository
	if bundleFlags.repository != "" {
		repoCfg.Repository = bundleFlags.repository
	}
	if repoCfg.Repository == "" {
		return nil, nil, cli.NewConfigError("repository.repository", "no policy repository configured")
	}

	repo, err := git.NewRepository(&repoCfg)
	if err != nil {
		return nil, nil, cli.NewConfigError("repository", err.Error())
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := repo.Open(ctx); err != nil {
		return nil, nil, cli.NewCommandError("open repository", err)
	}
	return repo, bundle.NewMaker(cfg.Bundle, opts...), nil
}

func writeBundle(w io.Writer, format cli.OutputFormat, b *bundle.PolicyBundle) error {
	if format != cli.FormatText {
		return cli.NewFormatter(format).FormatTo(w, b)
	}

	if b.IsDiff() {
		fmt.Fprintf(w, "commit %s (from %s)\n", b.Hash, b.OldHash)
	} else {
		fmt.Fprintf(w, "commit %s\n", b.Hash)
	}
	fmt.Fprintln(w, "manifest:")
	for _, p := range b.Manifest {
		fmt.Fprintf(w, "  %s\n", p)
	}
	fmt.Fprintf(w, "data modules: %d\n", len(b.DataModules))
	fmt.Fprintf(w, "policy modules: %d\n", len(b.PolicyModules))
	if b.DeletedFiles != nil {
		for _, p := range b.DeletedFiles.DataModules {
			fmt.Fprintf(w, "deleted data: %s\n", p)
		}
		for _, p := range b.DeletedFiles.PolicyModules {
			fmt.Fprintf(w, "deleted policy: %s\n", p)
		}
	}
	return nil
}
