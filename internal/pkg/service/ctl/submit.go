package ctl

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jleaniz/turbinia/internal/pkg/client"
	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/message"
	"github.com/jleaniz/turbinia/internal/pkg/recipe"
)

// SubmitFlags are shared by all evidence types.
type SubmitFlags struct {
	Name          string
	Description   string
	Source        string
	RequestID     string
	GroupID       string
	GroupName     string
	Reason        string
	Requester     string
	RecipeFile    string
	JobsAllowlist []string
	JobsDenylist  []string
	Wait          bool
	PollInterval  time.Duration
}

type evidenceBuilder func(cmd *cobra.Command) (evidence.Evidence, error)

func SubmitCommand(root *RootCommand) *cobra.Command {
	f := &SubmitFlags{}
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit evidence for processing.",
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&f.Name, "name", "", "Descriptive name of the evidence.")
	flags.StringVar(&f.Description, "description", "", "Description of the evidence.")
	flags.StringVar(&f.Source, "source", "", "Source of the evidence.")
	flags.StringVar(&f.RequestID, "request-id", "", "Request ID, generated by default.")
	flags.StringVar(&f.GroupID, "group-id", "", "Group ID, generated by default.")
	flags.StringVar(&f.GroupName, "group-name", "", "Name of the request group.")
	flags.StringVar(&f.Reason, "reason", "", "Related ticket or incident ID.")
	flags.StringVar(&f.Requester, "requester", os.Getenv("USER"), "User submitting the request.")
	flags.StringVar(&f.RecipeFile, "recipe", "", "Path to a recipe YAML file.")
	flags.StringSliceVar(&f.JobsAllowlist, "jobs-allowlist", nil, "Jobs to run, all other jobs are skipped.")
	flags.StringSliceVar(&f.JobsDenylist, "jobs-denylist", nil, "Jobs to skip.")
	flags.BoolVarP(&f.Wait, "wait", "w", false, "Wait until all tasks of the request are finished.")
	flags.DurationVar(&f.PollInterval, "poll-interval", client.DefaultPollInterval, "Interval of the status check when waiting.")

	var sourcePath string
	pathFlag := func(c *cobra.Command) {
		c.Flags().StringVar(&sourcePath, "source-path", "", "Local path to the evidence.")
		_ = c.MarkFlagRequired("source-path")
	}

	rawDisk := evidenceCommand(root, f, "rawdisk", "Submit a raw disk image.", func(*cobra.Command) (evidence.Evidence, error) {
		return evidence.NewRawDisk(sourcePath), nil
	})
	pathFlag(rawDisk)

	ewfDisk := evidenceCommand(root, f, "ewfdisk", "Submit an EWF (E01) disk image.", func(*cobra.Command) (evidence.Evidence, error) {
		return evidence.NewEwfDisk(sourcePath), nil
	})
	pathFlag(ewfDisk)

	directory := evidenceCommand(root, f, "directory", "Submit a directory.", func(*cobra.Command) (evidence.Evidence, error) {
		return evidence.NewDirectory(sourcePath), nil
	})
	pathFlag(directory)

	compressed := evidenceCommand(root, f, "compresseddirectory", "Submit a tar.gz archive of a directory.", func(*cobra.Command) (evidence.Evidence, error) {
		return evidence.NewCompressedDirectory(sourcePath), nil
	})
	pathFlag(compressed)

	var profile string
	var modules []string
	rawMemory := evidenceCommand(root, f, "rawmemory", "Submit a raw memory image.", func(*cobra.Command) (evidence.Evidence, error) {
		return evidence.NewRawMemory(sourcePath, profile, modules...), nil
	})
	pathFlag(rawMemory)
	rawMemory.Flags().StringVar(&profile, "profile", "", "Volatility profile of the image.")
	rawMemory.Flags().StringSliceVar(&modules, "module-list", nil, "Volatility modules to run.")

	var browserType, format string
	hindsight := evidenceCommand(root, f, "hindsight", "Submit a Chromium browser profile.", func(*cobra.Command) (evidence.Evidence, error) {
		return evidence.NewChromiumProfile(sourcePath, browserType, format), nil
	})
	pathFlag(hindsight)
	hindsight.Flags().StringVar(&browserType, "browser-type", "Chrome", "Type of the browser.")
	hindsight.Flags().StringVar(&format, "format", "sqlite", "Output format.")

	var project, zone, diskName string
	cloudDisk := evidenceCommand(root, f, "googleclouddisk", "Submit a Google Cloud persistent disk.", func(*cobra.Command) (evidence.Evidence, error) {
		return evidence.NewGoogleCloudDisk(project, zone, diskName), nil
	})
	cloudDisk.Flags().StringVar(&project, "project", "", "Project of the disk.")
	cloudDisk.Flags().StringVar(&zone, "zone", "", "Zone of the disk.")
	cloudDisk.Flags().StringVar(&diskName, "disk-name", "", "Name of the disk.")

	cmd.AddCommand(rawDisk, ewfDisk, directory, compressed, rawMemory, hindsight, cloudDisk)
	return cmd
}

func evidenceCommand(root *RootCommand, f *SubmitFlags, use, short string, build evidenceBuilder) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			item, err := build(cmd)
			if err != nil {
				return err
			}
			base := item.Common()
			base.ExplicitName = f.Name
			base.Description = f.Description
			base.Source = f.Source

			r, err := newRequest(cmd, f, item)
			if err != nil {
				return err
			}
			if err := root.client.SendRequest(ctx, r); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Request ID: %s\n", r.RequestID) // nolint:forbidigo

			if !f.Wait {
				return nil
			}
			return root.client.WaitForRequest(ctx, r.RequestID, "", f.PollInterval)
		},
	}
}

func newRequest(cmd *cobra.Command, f *SubmitFlags, item evidence.Evidence) (*message.Request, error) {
	r := recipe.Default()
	if f.RecipeFile != "" {
		var err error
		if r, err = recipe.Load(f.RecipeFile); err != nil {
			return nil, err
		}
	}

	// Flags take precedence over the recipe file
	globals, _ := r[recipe.GlobalsKey].(map[string]any)
	if len(f.JobsAllowlist) > 0 {
		globals["jobs_allowlist"] = f.JobsAllowlist
	}
	if len(f.JobsDenylist) > 0 {
		globals["jobs_denylist"] = f.JobsDenylist
	}

	return message.NewRequest(cmd.Context(),
		message.WithRequestID(f.RequestID),
		message.WithGroupID(f.GroupID),
		message.WithGroupName(f.GroupName),
		message.WithRequester(f.Requester),
		message.WithReason(f.Reason),
		message.WithRecipe(r),
		message.WithEvidence(item),
		message.WithAllArgs(strings.Join(os.Args, " ")),
	)
}
