package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shift_report/internal/catalog"
	"shift_report/internal/draft"
	"shift_report/internal/form"
	"shift_report/internal/gateway"
	"shift_report/internal/report"
	"shift_report/internal/session"
)

// clientEnv is what every client command needs: the saved session, an API
// client acting for it and a form controller on top.
type clientEnv struct {
	logger *zap.Logger
	store  session.FileStore
	sess   *session.Session
	client *gateway.Client
	form   *form.Controller
}

func (o *rootOptions) client() (*clientEnv, error) {
	cfg, logger, err := o.load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store := session.FileStore{Path: cfg.Client.SessionFile}
	sess := &session.Session{}
	if err := store.Load(sess); err != nil {
		return nil, err
	}

	client := gateway.NewClient(cfg.Client.APIURL, sess, cfg.Client.Timeout)
	return &clientEnv{
		logger: logger,
		store:  store,
		sess:   sess,
		client: client,
		form: form.New(form.Options{
			Gateway: client,
			Auth:    client,
			Source:  client,
			Session: sess,
			Logger:  logger,
		}),
	}, nil
}

// userError turns a controller error into the message the form would show.
func userError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, form.ErrNotLoggedIn) {
		return errors.New("not logged in, run \"shiftreport login\" first")
	}
	return errors.New(form.UserMessage(err))
}

func loginCmd(opts *rootOptions) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.client()
			if err != nil {
				return err
			}
			defer env.logger.Sync()

			if err := env.form.Login(cmd.Context(), username, password); err != nil {
				return userError(err)
			}
			if err := env.store.Save(env.sess); err != nil {
				return err
			}
			role, _ := env.sess.CurrentRole()
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", env.sess.Username(), role)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.client()
			if err != nil {
				return err
			}
			env.form.Logout()
			return env.store.Clear()
		},
	}
}

func reportsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reports",
		Short: "List reports (all of them for an admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.client()
			if err != nil {
				return err
			}
			if err := env.form.Refresh(cmd.Context()); err != nil {
				return userError(err)
			}
			return printReports(cmd.OutOrStdout(), env.form.Reports())
		},
	}
}

func deleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid report id %q", args[0])
			}
			env, err := opts.client()
			if err != nil {
				return err
			}
			if err := env.form.Delete(cmd.Context(), id); err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report %d deleted\n", id)
			return nil
		},
	}
}

func submitCmd(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a report from a YAML draft file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readDraftFile(file)
			if err != nil {
				return err
			}
			env, err := opts.client()
			if err != nil {
				return err
			}
			defer env.logger.Sync()

			ctx := cmd.Context()
			if _, ok := env.sess.CurrentRole(); !ok {
				return userError(form.ErrNotLoggedIn)
			}
			if err := env.form.RefreshCatalog(ctx); err != nil {
				return userError(err)
			}
			if err := env.form.Edit(f.apply); err != nil {
				return err
			}

			id, err := env.form.Submit(ctx)
			if err != nil && id == 0 {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report %d submitted\n", id)
			if err != nil {
				env.logger.Warn("refresh after submit", zap.Error(err))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Draft file (YAML)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func catalogCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog KIND",
		Short: "Print a catalog (workers, tramos or activities)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := catalog.ParseKind(args[0])
			if err != nil {
				return err
			}
			env, err := opts.client()
			if err != nil {
				return err
			}
			if err := env.form.RefreshCatalog(cmd.Context()); err != nil {
				return userError(err)
			}
			return printCatalog(cmd.OutOrStdout(), env.form.Catalog(), kind)
		},
	}
}

func registerCmd(opts *rootOptions) *cobra.Command {
	var username, password, role string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a user (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := session.ParseRole(role)
			if err != nil {
				return err
			}
			env, err := opts.client()
			if err != nil {
				return err
			}
			if err := env.client.Register(cmd.Context(), username, password, r); err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s created\n", username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password")
	cmd.Flags().StringVar(&role, "role", string(session.RoleUser), "Role (admin or user)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func usersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List users (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.client()
			if err != nil {
				return err
			}
			users, err := env.client.Users(cmd.Context())
			if err != nil {
				return userError(err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, u := range users {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", u.ID, u.Username, u.Role)
			}
			return tw.Flush()
		},
	}
}

func elapsedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "elapsed START END",
		Short: "Print the time between two HH:MM clock readings",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), draft.Elapsed(args[0], args[1]))
		},
	}
}

func printReports(w io.Writer, reports []report.Report) error {
	if len(reports) == 0 {
		_, err := fmt.Fprintln(w, "no reports")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range reports {
		fmt.Fprintf(tw, "#%d\t%s\t%s\t%s\t%s\tby %s\n",
			r.ID, r.DateSubmitted.Local().Format("2006-01-02 15:04"), r.Area, r.Jornada, r.Supervisor, r.Username)
		for _, m := range r.Team {
			fmt.Fprintf(tw, "\t%s\t%s\t%s\t%s-%s\t%s\n",
				m.Nombre, m.Cargo, m.TipoAsist, m.HoraInicio, m.HoraFin, draft.Elapsed(m.HoraInicio, m.HoraFin))
		}
		for _, sec := range report.Sections {
			for _, e := range r.Entries(sec) {
				fmt.Fprintf(tw, "\t%s:\t%s\n", sec, e.Descripcion)
			}
		}
	}
	return tw.Flush()
}

func printCatalog(w io.Writer, c *catalog.Cache, kind catalog.Kind) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	switch kind {
	case catalog.KindWorkers:
		for _, wk := range c.Workers() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", wk.ID, wk.RUT, wk.Nombre, wk.Cargo)
		}
	case catalog.KindSegments:
		for _, s := range c.Segments() {
			fmt.Fprintf(tw, "%s\t%s\n", s.ID, s.Nombre)
		}
	case catalog.KindActivities:
		for _, a := range c.Activities() {
			fmt.Fprintf(tw, "%s\t%s\n", a.ID, a.Nombre)
		}
	}
	return tw.Flush()
}
