package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/five82/tripsync/internal/credentials"
	"github.com/five82/tripsync/internal/export"
	"github.com/five82/tripsync/internal/mirror"
	"github.com/five82/tripsync/internal/remote"
)

const qrSize = 256

func newShareCmd(opts *rootOptions) *cobra.Command {
	var (
		emails []string
		public bool
		qrPath string
	)
	cmd := &cobra.Command{
		Use:   "share <id>",
		Short: "Create a share link for an itinerary",
		Long: `Ask the remote service for a share link. Sharing needs the service to be
reachable; nothing is queued when it is not.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			link, err := a.Mirror.Share(cmd.Context(), args[0], remote.ShareRequest{Emails: emails, Public: public})
			if err != nil {
				if remote.IsUnreachable(err) {
					return fmt.Errorf("sharing needs the remote service: %w", err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, link.URL)
			if link.ExpiresAt != "" {
				fmt.Fprintf(out, "expires %s\n", link.ExpiresAt)
			}
			if qrPath != "" {
				png, err := qrcode.Encode(link.URL, qrcode.Medium, qrSize)
				if err != nil {
					return fmt.Errorf("encode qr: %w", err)
				}
				if err := os.WriteFile(qrPath, png, 0o644); err != nil {
					return fmt.Errorf("write qr: %w", err)
				}
				fmt.Fprintf(out, "qr code written to %s\n", qrPath)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&emails, "email", nil, "invite this address (repeatable)")
	f.BoolVar(&public, "public", false, "anyone with the link can view")
	f.StringVar(&qrPath, "qr", "", "also write the link as a QR code PNG to this file")
	return cmd
}

func newPDFCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "pdf <id>",
		Short: "Download an itinerary as PDF",
		Long: `Fetch the PDF rendered by the remote service. When the service is not
available the local copy is rendered instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			doc, err := a.Mirror.PDF(ctx, args[0])
			if err != nil {
				if errors.Is(err, mirror.ErrNotFound) {
					return fmt.Errorf("itinerary %s not found", args[0])
				}
				return err
			}

			path := output
			if path == "" {
				rec, err := a.Mirror.GetByID(ctx, args[0])
				if err != nil {
					return err
				}
				path = export.FileName(rec)
			}
			if path == "-" {
				_, err := cmd.OutOrStdout().Write(doc)
				return err
			}
			if err := os.WriteFile(path, doc, 0o644); err != nil {
				return fmt.Errorf("write pdf: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (default <Title>_Itinerary.pdf)")
	return cmd
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var (
		token   string
		refresh string
		email   string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the bearer token sent to the remote service",
		Long: `Store an auth token issued by the itinerary service. Without --token the
token is read from the first line of stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(false)
			if err != nil {
				return err
			}

			if strings.TrimSpace(token) == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read token: %w", err)
				}
				token = line
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("no token given")
			}

			store, err := credentials.Open(cfg.CredentialsPath, nil)
			if err != nil {
				return err
			}
			creds := credentials.Credentials{
				AuthToken:    token,
				RefreshToken: strings.TrimSpace(refresh),
				Email:        strings.TrimSpace(email),
			}
			if err := store.Set(creds); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "credentials saved to %s\n", store.Path())
			if exp, ok := credentials.Expiry(token); ok {
				if !creds.Authenticated(time.Now()) {
					fmt.Fprintf(out, "warning: token expired %s\n", exp.Local().Format(time.RFC1123))
				} else {
					fmt.Fprintf(out, "token expires %s\n", exp.Local().Format(time.RFC1123))
				}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&token, "token", "", "auth token")
	f.StringVar(&refresh, "refresh-token", "", "refresh token, stored but not used")
	f.StringVar(&email, "email", "", "account email, for display")
	return cmd
}

func newProfileCmd(opts *rootOptions) *cobra.Command {
	return newDocumentCmd(opts, "profile", "user profile",
		func(m *mirror.Mirror) documentAccess {
			return documentAccess{save: m.SaveProfile, load: m.Profile}
		})
}

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	return newDocumentCmd(opts, "settings", "user settings",
		func(m *mirror.Mirror) documentAccess {
			return documentAccess{save: m.SaveSettings, load: m.Settings}
		})
}

type documentAccess struct {
	save func(ctx context.Context, payload json.RawMessage) error
	load func(ctx context.Context) (json.RawMessage, bool, error)
}

func newDocumentCmd(opts *rootOptions, name, what string, access func(*mirror.Mirror) documentAccess) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: "Show or update the " + what,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the cached " + what,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, ok, err := access(a.Mirror).load(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "No %s saved.\n", what)
				return nil
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	})

	var file string
	set := &cobra.Command{
		Use:   "set",
		Short: "Replace the " + what + " from a JSON or YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := readDocumentFile(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := access(a.Mirror).save(cmd.Context(), payload); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s saved\n", name)
			if n, err := a.Queue.Len(cmd.Context()); err == nil && n > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d change(s) waiting to sync\n", n)
			}
			return nil
		},
	}
	set.Flags().StringVar(&file, "file", "-", "document to store, - for stdin")
	cmd.AddCommand(set)
	return cmd
}

// readDocumentFile returns the file as JSON. YAML input (.yaml, .yml) is
// converted.
func readDocumentFile(stdin io.Reader, path string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", path, err)
		}
		return out, nil
	default:
		if !json.Valid(data) {
			return nil, fmt.Errorf("parse %s: not valid JSON", path)
		}
		return json.RawMessage(data), nil
	}
}

func printJSON(w io.Writer, doc json.RawMessage) error {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
