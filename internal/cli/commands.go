package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"jscrambler-client/internal/api"
	"jscrambler-client/internal/config"
	"jscrambler-client/internal/project"

	"github.com/spf13/cobra"
)

// ProcessCmd runs the whole workflow described by the configuration file.
func ProcessCmd(a *app) *cobra.Command {
	var dest string
	var deleteProject bool

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Upload, wait, download and extract (the default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("dest") {
				a.cfg.FilesDest = dest
			}
			if cmd.Flags().Changed("delete") {
				a.cfg.DeleteProject = deleteProject
			}

			client, err := a.newProject()
			if err != nil {
				return err
			}
			return client.Process(cmd.Context(), a.cfg)
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "", "override filesDest")
	cmd.Flags().BoolVar(&deleteProject, "delete", false, "delete the project from the service afterwards")
	return cmd
}

// UploadCmd uploads sources and prints the project id.
func UploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload [glob...]",
		Short: "Upload sources and print the new project id",
		Long:  "Upload the files matched by the given globs, or by filesSrc when none is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateKeys(); err != nil {
				return err
			}

			patterns := args
			if len(patterns) == 0 {
				patterns = a.cfg.FilesSrc
			}
			if len(patterns) == 0 {
				return &config.ConfigError{Field: "filesSrc"}
			}
			files, err := config.ExpandGlobs(patterns)
			if err != nil {
				return err
			}

			client, err := a.newProject()
			if err != nil {
				return err
			}
			id, err := client.Upload(cmd.Context(), files, a.cfg.Params)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, id)
			return nil
		},
	}
}

// PollCmd waits for a project to finish.
func PollCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "poll <project-id>",
		Short: "Wait until the project is processed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateKeys(); err != nil {
				return err
			}
			client, err := a.newProject()
			if err != nil {
				return err
			}
			if err := client.Poll(cmd.Context(), args[0]); err != nil {
				return err
			}
			if !a.silent {
				fmt.Fprintf(a.out, "%s %s\n", a.c.green("Project ready:"), args[0])
			}
			return nil
		},
	}
}

// DownloadCmd fetches a finished project, or one of its source files.
func DownloadCmd(a *app) *cobra.Command {
	var sourceID, out string

	cmd := &cobra.Command{
		Use:   "download <project-id>",
		Short: "Download and extract a processed project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateKeys(); err != nil {
				return err
			}
			projectID := args[0]

			client, err := a.newProject()
			if err != nil {
				return err
			}
			data, err := client.Download(cmd.Context(), projectID, sourceID)
			if err != nil {
				return err
			}

			if sourceID != "" {
				if out == "" {
					out = sourceID
				}
				if err := project.WriteSource(out, data); err != nil {
					return fmt.Errorf("failed to write %s: %w", out, err)
				}
				if !a.silent {
					fmt.Fprintf(a.out, "%s %s\n", a.c.green("Saved"), out)
				}
				return nil
			}

			if out == "" {
				out = a.cfg.FilesDest
			}
			if out == "" {
				return &config.ConfigError{Field: "filesDest"}
			}
			return client.Extract(projectID, data, out)
		},
	}
	cmd.Flags().StringVar(&sourceID, "source", "", "download a single source file by id")
	cmd.Flags().StringVarP(&out, "out", "o", "", "destination directory (or file with --source)")
	return cmd
}

// DeleteCmd removes a project from the service.
func DeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project from the service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateKeys(); err != nil {
				return err
			}
			client, err := a.newProject()
			if err != nil {
				return err
			}
			if err := client.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			if !a.silent {
				fmt.Fprintf(a.out, "%s %s\n", a.c.green("Deleted"), args[0])
			}
			return nil
		},
	}
}

// InfoCmd lists the projects of the account.
func InfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "List the projects stored on the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateKeys(); err != nil {
				return err
			}
			client, err := a.newProject()
			if err != nil {
				return err
			}
			projects, err := client.Info(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tRECEIVED\tFINISHED\tSOURCES")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", p.ID, projectStatus(p), p.ReceivedAt, p.FinishedAt, len(p.Sources))
			}
			return w.Flush()
		},
	}
}

func projectStatus(p api.ProjectInfo) string {
	switch {
	case p.ErrorID == "0":
		return "ok"
	case p.ErrorID == "" && p.ErrorMessage == "":
		return "pending"
	case p.ErrorMessage != "":
		return fmt.Sprintf("error %s: %s", p.ErrorID, p.ErrorMessage)
	default:
		return "error " + string(p.ErrorID)
	}
}

// InitCmd writes a configuration template.
func InitCmd(a *app) *cobra.Command {
	var accessKey, secretKey, dest string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(a.cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", a.cfgPath)
			}

			cfg := config.Default()
			cfg.Keys = config.Keys{AccessKey: accessKey, SecretKey: secretKey}
			cfg.FilesSrc = []string{filepath.Join("src", "**", "*.js")}
			cfg.FilesDest = dest
			cfg.Params = map[string]any{}

			if err := config.Save(a.cfgPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s\n", a.c.green("Wrote"), a.cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&accessKey, "access-key", "", "account access key")
	cmd.Flags().StringVar(&secretKey, "secret-key", "", "account secret key")
	cmd.Flags().StringVar(&dest, "dest", "dist", "filesDest of the template")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
