package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/five82/tripsync/internal/export"
	"github.com/five82/tripsync/internal/itinerary"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved itineraries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.Mirror.FetchAll(cmd.Context())
			if err != nil {
				return err
			}
			printRecords(cmd.OutOrStdout(), records)
			return nil
		},
	}
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one itinerary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.Mirror.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rec.DurationMismatch() {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: duration is %d days but %d day plans are stored\n",
					rec.Duration, len(rec.Days))
			}
			return writeRecord(cmd.OutOrStdout(), rec, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "output format: markdown, raw, yaml or json")
	return cmd
}

func writeRecord(w io.Writer, rec itinerary.Record, format string) error {
	switch strings.ToLower(format) {
	case "markdown", "md":
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err != nil {
			return fmt.Errorf("init markdown renderer: %w", err)
		}
		out, err := renderer.Render(export.Markdown(rec))
		if err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		_, err = io.WriteString(w, out)
		return err
	case "raw":
		_, err := io.WriteString(w, export.Markdown(rec))
		return err
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func printRecords(w io.Writer, records []itinerary.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No saved itineraries.")
		return
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		start := r.StartDate
		if t, ok := r.Start(); ok {
			start = t.Format("2006-01-02")
		}
		rows = append(rows, []string{
			r.ID,
			r.Title,
			r.Destination,
			start,
			fmt.Sprint(r.Duration),
			export.FormatAmount(r.TotalCost),
			strings.Join(r.Tags, ", "),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TITLE", "DESTINATION", "START", "DAYS", "COST", "TAGS").
		Rows(rows...)
	fmt.Fprintln(w, t.Render())
}

func newSaveCmd(opts *rootOptions) *cobra.Command {
	var (
		file string
		rec  itinerary.Record
		tags []string
	)
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create or update an itinerary",
		Long: `Save an itinerary from a JSON or YAML file (--file, "-" for stdin) or from
flags. Without an id a new itinerary is created. When the remote service is
unreachable the change is stored locally and queued for sync.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file != "" {
				loaded, err := readRecordFile(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				rec = mergeFlags(loaded, rec, cmd)
			}
			if cmd.Flags().Changed("tag") {
				rec.Tags = tags
			}
			if strings.TrimSpace(rec.Title) == "" {
				return fmt.Errorf("title required (--title or a file)")
			}

			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			saved, err := a.Mirror.Save(cmd.Context(), rec)
			if err != nil {
				return err
			}
			pending, err := a.Queue.Len(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", saved.ID)
			if pending > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d change(s) waiting to sync\n", pending)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&file, "file", "", "read the itinerary from a JSON or YAML file")
	f.StringVar(&rec.ID, "id", "", "itinerary id (update when set)")
	f.StringVar(&rec.Title, "title", "", "title")
	f.StringVar(&rec.Destination, "destination", "", "destination")
	f.StringVar(&rec.Description, "description", "", "description")
	f.StringVar(&rec.StartDate, "start", "", "start date (YYYY-MM-DD)")
	f.IntVar(&rec.Duration, "days", 0, "duration in days")
	f.Float64Var(&rec.TotalCost, "cost", 0, "total cost")
	f.StringSliceVar(&tags, "tag", nil, "tag (repeatable)")
	return cmd
}

// mergeFlags overlays explicitly set flags on a record read from a file.
func mergeFlags(base, flags itinerary.Record, cmd *cobra.Command) itinerary.Record {
	set := cmd.Flags().Changed
	if set("id") {
		base.ID = flags.ID
	}
	if set("title") {
		base.Title = flags.Title
	}
	if set("destination") {
		base.Destination = flags.Destination
	}
	if set("description") {
		base.Description = flags.Description
	}
	if set("start") {
		base.StartDate = flags.StartDate
	}
	if set("days") {
		base.Duration = flags.Duration
	}
	if set("cost") {
		base.TotalCost = flags.TotalCost
	}
	return base
}

func readRecordFile(stdin io.Reader, path string) (itinerary.Record, error) {
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
		return itinerary.Record{}, fmt.Errorf("read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var rec itinerary.Record
		if err := yaml.Unmarshal(data, &rec); err != nil {
			return itinerary.Record{}, fmt.Errorf("parse %s: %w", path, err)
		}
		return rec, nil
	default:
		rec, err := itinerary.Decode(data)
		if err != nil {
			return itinerary.Record{}, fmt.Errorf("parse %s: %w", path, err)
		}
		return rec, nil
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an itinerary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Mirror.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		destination string
		tags        []string
		from, to    string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search itineraries by destination, tags and start date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			criteria := itinerary.Criteria{Destination: destination, Tags: tags}
			if from != "" {
				t, err := itinerary.ParseDate(from)
				if err != nil {
					return fmt.Errorf("parse --from: %w", err)
				}
				criteria.From = t
			}
			if to != "" {
				t, err := itinerary.ParseDate(to)
				if err != nil {
					return fmt.Errorf("parse --to: %w", err)
				}
				criteria.To = t
			}

			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.Mirror.Search(cmd.Context(), criteria)
			if err != nil {
				return err
			}
			printRecords(cmd.OutOrStdout(), records)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&destination, "destination", "", "destination contains (case-insensitive)")
	f.StringSliceVar(&tags, "tag", nil, "tag contains (repeatable, any match)")
	f.StringVar(&from, "from", "", "earliest start date")
	f.StringVar(&to, "to", "", "latest start date")
	return cmd
}
