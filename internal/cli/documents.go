package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	"github.com/nainya/docvcs/pkg/diff"
	"github.com/nainya/docvcs/pkg/history"
	"github.com/nainya/docvcs/pkg/model"
)

// contentFlags reads new content from --content or --file ("-" is stdin).
type contentFlags struct {
	content string
	file    string
}

func (f *contentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.content, "content", "", "content as a literal string")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", `read content from a file ("-" for stdin)`)
}

func (f *contentFlags) read(a *App, cmd *cobra.Command) (string, error) {
	switch {
	case f.file == "-":
		data, err := io.ReadAll(a.in)
		return string(data), err
	case f.file != "":
		data, err := os.ReadFile(f.file)
		return string(data), err
	case cmd.Flags().Changed("content"):
		return f.content, nil
	}
	return "", errors.New("one of --content or --file is required")
}

func newDocsCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "docs",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, "list_documents", "", func(ctx context.Context, b Backend) error {
				docs, err := b.ListDocuments(ctx)
				if err != nil {
					return err
				}
				return a.print(docs, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "DOCUMENT\tDEFAULT BRANCH\tCREATED")
					for _, d := range docs {
						fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.DefaultBranch, d.CreatedAt.Format(time.RFC3339))
					}
					tw.Flush()
				})
			})
		},
	}
}

func newInitCommand(a *App) *cobra.Command {
	var in contentFlags
	var message string
	cmd := &cobra.Command{
		Use:   "init DOCUMENT",
		Short: "Create a document with its first version on main",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := in.read(a, cmd)
			if err != nil {
				return err
			}
			return a.run(cmd, "initialize_document", args[0], func(ctx context.Context, b Backend) error {
				v, err := b.InitializeDocument(ctx, args[0], content, model.InitOptions{Author: a.author, Message: message})
				if err != nil {
					return err
				}
				return a.printVersion(v)
			})
		},
	}
	in.register(cmd)
	cmd.Flags().StringVarP(&message, "message", "m", "", "version message")
	return cmd
}

func newCommitCommand(a *App) *cobra.Command {
	var in contentFlags
	var branchName, message string
	var override bool
	cmd := &cobra.Command{
		Use:   "commit DOCUMENT",
		Short: "Record new content as a version on a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := in.read(a, cmd)
			if err != nil {
				return err
			}
			return a.run(cmd, "create_version", args[0], func(ctx context.Context, b Backend) error {
				v, err := b.CreateVersion(ctx, args[0], branchName, content, model.VersionMeta{
					Author:             a.author,
					Message:            message,
					OverrideProtection: override,
				})
				if err != nil {
					return err
				}
				return a.printVersion(v)
			})
		},
	}
	in.register(cmd)
	cmd.Flags().StringVarP(&branchName, "branch", "b", "", "branch to commit to (default: the document's default branch)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "version message")
	cmd.Flags().BoolVar(&override, "override-protection", false, "commit even if the branch is protected")
	return cmd
}

func newShowCommand(a *App) *cobra.Command {
	var meta bool
	cmd := &cobra.Command{
		Use:   "show DOCUMENT [REF]",
		Short: "Print the content of a version",
		Long: `Print the content of a version. REF is a branch, a tag, a version id or
#N for version number N; it defaults to the default branch head.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := model.MainBranch
			if len(args) == 2 {
				ref = args[1]
			}
			return a.run(cmd, "resolve", args[0], func(ctx context.Context, b Backend) error {
				if len(args) == 1 {
					docs, err := b.ListDocuments(ctx)
					if err != nil {
						return err
					}
					for _, d := range docs {
						if d.ID == args[0] {
							ref = d.DefaultBranch
						}
					}
				}
				v, err := b.Resolve(ctx, args[0], ref)
				if err != nil {
					return err
				}
				if meta {
					return a.printVersion(v)
				}
				return a.print(v, func(w io.Writer) { io.WriteString(w, v.Content) })
			})
		},
	}
	cmd.Flags().BoolVar(&meta, "meta", false, "print version metadata instead of content")
	return cmd
}

func newLogCommand(a *App) *cobra.Command {
	var opts model.HistoryOptions
	var since, until string
	cmd := &cobra.Command{
		Use:   "log DOCUMENT",
		Short: "Show version history, newest first",
		Long: `Show version history, newest first.

--since and --until accept most date formats, e.g. 2024-03-01,
"Mar 1 2024 10:00" or 1709287200.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.Since, err = parseDate(since); err != nil {
				return err
			}
			if opts.Until, err = parseDate(until); err != nil {
				return err
			}
			return a.run(cmd, "get_version_history", args[0], func(ctx context.Context, b Backend) error {
				page, err := b.GetVersionHistory(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return a.print(page, func(w io.Writer) { writeHistory(w, page) })
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.Branch, "branch", "b", "", "only versions reachable from this branch")
	f.StringVar(&opts.Author, "filter-author", "", "only versions by this author")
	f.IntVarP(&opts.Limit, "limit", "n", model.DefaultHistoryLimit, "page size")
	f.IntVar(&opts.Offset, "offset", 0, "entries to skip")
	f.BoolVar(&opts.IncludeContent, "content", false, "include full content")
	f.BoolVarP(&opts.IncludeDiff, "patch", "p", false, "include the diff against the first parent")
	f.StringVar(&since, "since", "", "only versions created at or after this time")
	f.StringVar(&until, "until", "", "only versions created at or before this time")
	return cmd
}

// parseDate parses a free-form date in local time. Empty means unset.
func parseDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := dateparse.ParseLocal(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

func writeHistory(w io.Writer, page *history.Page) {
	for _, e := range page.Items {
		fmt.Fprintf(w, "version %d %s (%s)\n", e.Number, e.ID, e.Branch)
		if len(e.Parents) > 1 {
			fmt.Fprintf(w, "Merge:  %s\n", strings.Join(e.Parents, " "))
		}
		if e.Author != "" {
			fmt.Fprintf(w, "Author: %s\n", e.Author)
		}
		fmt.Fprintf(w, "Date:   %s\n", e.CreatedAt.Local().Format(time.RFC1123))
		fmt.Fprintf(w, "Kind:   %s  +%d -%d\n", e.Kind, e.Changes.Insertions, e.Changes.Deletions)
		if e.Message != "" {
			fmt.Fprintf(w, "\n    %s\n", e.Message)
		}
		if e.Diff != nil {
			for _, op := range e.Diff.Ops {
				if op.Type == diff.OpRetain {
					continue
				}
				for _, u := range op.Units {
					prefix := "+"
					if op.Type == diff.OpDelete {
						prefix = "-"
					}
					fmt.Fprintf(w, "%s%s", prefix, strings.TrimSuffix(u, "\n")+"\n")
				}
			}
		}
		if e.Content != nil {
			fmt.Fprintf(w, "\n%s\n", *e.Content)
		}
		fmt.Fprintln(w)
	}
	if page.HasMore {
		fmt.Fprintf(w, "... %d more (use --offset %d)\n", page.Total-page.Offset-len(page.Items), page.Offset+len(page.Items))
	}
}

func newDiffCommand(a *App) *cobra.Command {
	var contextLines int
	cmd := &cobra.Command{
		Use:   "diff DOCUMENT FROM TO",
		Short: "Compare two versions in unified diff format",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "compare_versions", args[0], func(ctx context.Context, b Backend) error {
				from, err := b.Resolve(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				to, err := b.Resolve(ctx, args[0], args[2])
				if err != nil {
					return err
				}
				result, err := b.CompareVersions(ctx, args[0], from.ID, to.ID)
				if err != nil {
					return err
				}
				if a.asJSON {
					return a.print(result, nil)
				}
				text, err := diff.Format(from.Content, result.Script, contextLines)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "--- %s (version %d)\n+++ %s (version %d)\n", args[1], from.Number, args[2], to.Number)
				_, err = io.WriteString(a.out, text)
				return err
			})
		},
	}
	cmd.Flags().IntVarP(&contextLines, "unified", "U", 3, "lines of context")
	return cmd
}

func newRevertCommand(a *App) *cobra.Command {
	var opts model.RevertOptions
	cmd := &cobra.Command{
		Use:   "revert DOCUMENT REF",
		Short: "Append a version restoring the content of REF",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Author = a.author
			return a.run(cmd, "revert_to_version", args[0], func(ctx context.Context, b Backend) error {
				target, err := b.Resolve(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				v, err := b.RevertToVersion(ctx, args[0], target.ID, opts)
				if err != nil {
					return err
				}
				return a.printVersion(v)
			})
		},
	}
	cmd.Flags().StringVarP(&opts.Branch, "branch", "b", "", "branch to revert on (default: the document's default branch)")
	cmd.Flags().StringVarP(&opts.Message, "message", "m", "", "version message")
	cmd.Flags().BoolVar(&opts.OverrideProtection, "override-protection", false, "revert even if the branch is protected")
	return cmd
}

func newStatsCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats DOCUMENT",
		Short: "Summarize a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "get_document_stats", args[0], func(ctx context.Context, b Backend) error {
				s, err := b.GetDocumentStats(ctx, args[0])
				if err != nil {
					return err
				}
				return a.print(s, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintf(tw, "Document:\t%s\n", s.DocumentID)
					fmt.Fprintf(tw, "Versions:\t%d\n", s.TotalVersions)
					fmt.Fprintf(tw, "Branches:\t%d\n", s.BranchCount)
					fmt.Fprintf(tw, "Tags:\t%d\n", s.TagCount)
					fmt.Fprintf(tw, "Merges:\t%d\n", s.MergeCount)
					fmt.Fprintf(tw, "Reverts:\t%d\n", s.RevertCount)
					fmt.Fprintf(tw, "Contributors:\t%s\n", strings.Join(s.Contributors, ", "))
					fmt.Fprintf(tw, "Last modified:\t%s\n", s.LastModifiedAt.Local().Format(time.RFC1123))
					tw.Flush()
				})
			})
		},
	}
}

func newVerifyCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "verify DOCUMENT",
		Short: "Check the integrity of a document's stored history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "verify_document", args[0], func(ctx context.Context, b Backend) error {
				if err := b.VerifyDocument(ctx, args[0]); err != nil {
					return err
				}
				return a.print(map[string]any{"document_id": args[0], "ok": true}, func(w io.Writer) {
					fmt.Fprintf(w, "%s: ok\n", args[0])
				})
			})
		},
	}
}

func (a *App) printVersion(v *model.Version) error {
	out := *v
	out.Delta = nil
	return a.print(&out, func(w io.Writer) {
		fmt.Fprintf(w, "version %d %s on %s (%s, +%d -%d)\n",
			v.Number, v.ID, v.Branch, v.Kind, v.Changes.Insertions, v.Changes.Deletions)
	})
}
