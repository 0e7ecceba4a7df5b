package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/routing"
	rolerepo "github.com/derWhity/medstock/internal/repos/role/sqlite"
	userrepo "github.com/derWhity/medstock/internal/repos/user/sqlite"
	"github.com/kardianos/osext"
	"github.com/spf13/cobra"
)

var (
	configFile string

	newUserRole     string
	newUserPassword string
	newUserFullName string
)

var rootCmd = &cobra.Command{
	Use:           "medstock",
	Short:         "Inventory of medical devices, equipment, medications and reagents",
	Long:          "MedStock serves the inventory UI and its JSON API. Without a subcommand, the service is started.",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       appVersion,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(configFile)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(configFile)
	},
}

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the route table of the UI",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printRoutes(cmd.OutOrStdout(), routing.NewDefaultTable())
	},
}

var useraddCmd = &cobra.Command{
	Use:     "useradd NAME",
	Short:   "Create a user in the local identity store",
	Example: "medstock useradd ana --full-name \"Ana Pérez\" --password s3cr3t-pw --role usuario",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(newUserPassword) < 8 {
			return fmt.Errorf("the password needs at least 8 characters")
		}
		env, err := setup(configFile)
		if err != nil {
			return err
		}
		defer env.db.Close()
		users := userrepo.New(env.db, env.logger)
		roles := rolerepo.New(env.db, env.logger)
		fullName := newUserFullName
		if fullName == "" {
			fullName = args[0]
		}
		u := models.User{Name: args[0], FullName: fullName}
		if err := addUser(users, roles, &u, newUserRole, newUserPassword); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created user '%s' (ID %d) with role '%s'\n", u.Name, u.ID, newUserRole)
		return nil
	},
}

// printRoutes writes the route table as aligned columns
func printRoutes(out io.Writer, table *routing.Table) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPATH\tPAGE\tKIND\tREQUIREMENT")
	for _, r := range table.Routes() {
		kind := r.Kind
		if kind == "" {
			kind = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Path, r.Page, kind, r.Requirement)
	}
	return w.Flush()
}

func defaultConfigFile() string {
	execDir, err := osext.ExecutableFolder()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(execDir, "config.json")
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		defaultConfigFile(),
		"The configuration file to load the application's configuration from",
	)
	useraddCmd.Flags().StringVar(&newUserRole, "role", models.RoleUser, "Name of the user's role")
	useraddCmd.Flags().StringVar(&newUserPassword, "password", "", "The initial password")
	useraddCmd.Flags().StringVar(&newUserFullName, "full-name", "", "The full name shown in the UI")
	useraddCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(serveCmd, routesCmd, useraddCmd)
}

// Execute runs the command line given to the process
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
