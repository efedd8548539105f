package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/merge"
	"github.com/nainya/docvcs/pkg/model"
)

func newBranchCommand(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Create, list, rename, protect and delete branches",
	}

	var from string
	var protected bool
	create := &cobra.Command{
		Use:   "create DOCUMENT NAME",
		Short: "Fork a branch at a version (default: the default branch head)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "create_branch", args[0], func(ctx context.Context, b Backend) error {
				fromID := ""
				if from != "" {
					v, err := b.Resolve(ctx, args[0], from)
					if err != nil {
						return err
					}
					fromID = v.ID
				}
				br, err := b.CreateBranch(ctx, args[0], args[1], fromID, model.BranchOptions{CreatedBy: a.author, Protected: protected})
				if err != nil {
					return err
				}
				return a.printBranch(br)
			})
		},
	}
	create.Flags().StringVar(&from, "from", "", "branch, tag, version id or #N to fork from")
	create.Flags().BoolVar(&protected, "protected", false, "protect the new branch")

	list := &cobra.Command{
		Use:   "list DOCUMENT",
		Short: "List branches, default branch first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "list_branches", args[0], func(ctx context.Context, b Backend) error {
				branches, err := b.ListBranches(ctx, args[0])
				if err != nil {
					return err
				}
				return a.print(branches, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "BRANCH\tHEAD\tPROTECTED\tUPDATED")
					for _, br := range branches {
						fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", br.Name, br.Head, br.Protected, br.UpdatedAt.Local().Format(time.RFC3339))
					}
					tw.Flush()
				})
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete DOCUMENT NAME",
		Short: "Delete a branch pointer; its versions stay",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "delete_branch", args[0], func(ctx context.Context, b Backend) error {
				if err := b.DeleteBranch(ctx, args[0], args[1]); err != nil {
					return err
				}
				return a.print(map[string]string{"deleted": args[1]}, func(w io.Writer) {
					fmt.Fprintf(w, "deleted branch %s\n", args[1])
				})
			})
		},
	}

	rename := &cobra.Command{
		Use:   "rename DOCUMENT OLD NEW",
		Short: "Rename a branch",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "rename_branch", args[0], func(ctx context.Context, b Backend) error {
				br, err := b.RenameBranch(ctx, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				return a.printBranch(br)
			})
		},
	}

	var off bool
	protect := &cobra.Command{
		Use:   "protect DOCUMENT NAME",
		Short: "Protect a branch against commits, reverts, renames and deletion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "set_protection", args[0], func(ctx context.Context, b Backend) error {
				br, err := b.SetProtection(ctx, args[0], args[1], !off)
				if err != nil {
					return err
				}
				return a.printBranch(br)
			})
		},
	}
	protect.Flags().BoolVar(&off, "off", false, "remove protection instead")

	cmd.AddCommand(create, list, del, rename, protect)
	return cmd
}

func (a *App) printBranch(br *model.Branch) error {
	return a.print(br, func(w io.Writer) {
		state := ""
		if br.Protected {
			state = " (protected)"
		}
		fmt.Fprintf(w, "branch %s at %s%s\n", br.Name, br.Head, state)
	})
}

func newMergeCommand(a *App) *cobra.Command {
	var opts model.MergeOptions
	var into, strategy string
	cmd := &cobra.Command{
		Use:   "merge DOCUMENT SOURCE",
		Short: "Merge SOURCE into another branch",
		Long: `Merge SOURCE into another branch (default: main).

With --strategy auto, overlapping edits resolve to the target's text and are
listed as conflicts. With --strategy manual, nothing is written when edits
overlap and the conflicts are printed instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Author = a.author
			opts.Strategy = model.MergeStrategy(strategy)
			return a.run(cmd, "merge_branches", args[0], func(ctx context.Context, b Backend) error {
				res, err := b.MergeBranches(ctx, args[0], args[1], into, opts)
				if err != nil {
					if errors.Is(err, apperr.ErrMergeConflict) && res != nil {
						_ = a.print(res, func(w io.Writer) { writeConflicts(w, res.Conflicts) })
					}
					return err
				}
				return a.print(res, func(w io.Writer) {
					fmt.Fprintf(w, "merged %s into %s as version %d %s\n", args[1], into, res.Version.Number, res.Version.ID)
					if len(res.Conflicts) > 0 {
						fmt.Fprintf(w, "%d overlapping region(s) resolved to %s:\n", len(res.Conflicts), into)
						writeConflicts(w, res.Conflicts)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&into, "into", model.MainBranch, "target branch")
	cmd.Flags().StringVar(&strategy, "strategy", string(model.StrategyAuto), "auto or manual")
	cmd.Flags().StringVarP(&opts.Message, "message", "m", "", "merge message")
	return cmd
}

func writeConflicts(w io.Writer, conflicts []merge.Conflict) {
	for _, c := range conflicts {
		fmt.Fprintf(w, "<<<<<<< source (base units %d-%d)\n%s=======\n%s>>>>>>> target\n",
			c.BaseStart, c.BaseEnd, withNewline(c.Source), withNewline(c.Target))
	}
}

func withNewline(s string) string {
	if s == "" || s[len(s)-1] == '\n' {
		return s
	}
	return s + "\n"
}

func newTagCommand(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Create and list tags",
	}

	var opts model.TagOptions
	var tagType string
	create := &cobra.Command{
		Use:   "create DOCUMENT NAME REF",
		Short: "Name a version permanently",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.CreatedBy = a.author
			opts.Type = model.TagType(tagType)
			return a.run(cmd, "create_tag", args[0], func(ctx context.Context, b Backend) error {
				v, err := b.Resolve(ctx, args[0], args[2])
				if err != nil {
					return err
				}
				t, err := b.CreateTag(ctx, args[0], v.ID, args[1], opts)
				if err != nil {
					return err
				}
				return a.print(t, func(w io.Writer) {
					fmt.Fprintf(w, "tag %s (%s) at version %d %s\n", t.Name, t.Type, v.Number, t.VersionID)
				})
			})
		},
	}
	create.Flags().StringVar(&tagType, "type", string(model.TagManual), "release, milestone, backup or manual")
	create.Flags().StringVarP(&opts.Message, "message", "m", "", "tag message")

	var filter string
	list := &cobra.Command{
		Use:   "list DOCUMENT",
		Short: "List tags, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "list_tags", args[0], func(ctx context.Context, b Backend) error {
				tags, err := b.ListTags(ctx, args[0], model.TagType(filter))
				if err != nil {
					return err
				}
				return a.print(tags, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "TAG\tTYPE\tVERSION\tMESSAGE")
					for _, t := range tags {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Name, t.Type, t.VersionID, t.Message)
					}
					tw.Flush()
				})
			})
		},
	}
	list.Flags().StringVar(&filter, "type", "", "only tags of this type")

	cmd.AddCommand(create, list)
	return cmd
}
