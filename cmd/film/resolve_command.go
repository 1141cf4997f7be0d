package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ddanialb/Film/internal/resolution"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "resolve <imdb-id>",
		Short: "Resolve an IMDb ID to download links",
		Long: "Resolve looks the ID up in the local cache, then the StreamWide catalog\n" +
			"(when --title is given), then the Telegram bot.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := ctx.orchestrator()
			if err != nil {
				return err
			}
			defer ctx.closeSession()

			res := orch.Resolve(cmd.Context(), args[0], title)
			if err := ctx.emit(cmd, res, func(w io.Writer) error {
				return renderResult(w, res)
			}); err != nil {
				return err
			}
			return resultError(res)
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Title to search the catalog with")
	return cmd
}

func newSeasonCommand(ctx *commandContext) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "season <season-id>",
		Short: "List the files of one season or playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if raw {
				client, err := ctx.catalogClient()
				if err != nil {
					return err
				}
				body, err := client.Raw(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				var pretty bytes.Buffer
				if err := json.Indent(&pretty, body, "", "  "); err != nil {
					return fmt.Errorf("format manifest: %w", err)
				}
				pretty.WriteByte('\n')
				_, err = pretty.WriteTo(cmd.OutOrStdout())
				return err
			}

			orch, err := ctx.orchestrator()
			if err != nil {
				return err
			}
			res := orch.Season(cmd.Context(), args[0])
			if err := ctx.emit(cmd, res, func(w io.Writer) error {
				return renderResult(w, res)
			}); err != nil {
				return err
			}
			return resultError(res)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the undecoded catalog response")
	return cmd
}

func renderResult(w io.Writer, res resolution.Result) error {
	switch res.Kind {
	case resolution.KindNeedsLogin:
		fmt.Fprintln(w, res.Message)
		return nil
	case resolution.KindNotFound:
		fmt.Fprintf(w, "No download links found for %s\n", displayID(res))
		return nil
	case resolution.KindError:
		fmt.Fprintf(w, "Resolution failed: %s\n", res.Message)
		return nil
	}

	var header strings.Builder
	header.WriteString(strings.ToUpper(string(res.Kind[:1])) + string(res.Kind[1:]))
	if id := displayID(res); id != "" {
		header.WriteString(" " + id)
	}
	if res.PlaylistID != "" {
		header.WriteString(" playlist " + res.PlaylistID)
	}
	if res.Strategy != "" {
		header.WriteString(" via " + res.Strategy)
	}
	fmt.Fprintln(w, header.String())

	if len(res.Seasons) > 0 {
		labels := make([]string, 0, len(res.Seasons))
		for _, s := range res.Seasons {
			labels = append(labels, fmt.Sprintf("%d (%s)", s.Number, s.ID))
		}
		fmt.Fprintf(w, "Seasons: %s\n", strings.Join(labels, ", "))
		if res.CurrentSeason > 0 {
			fmt.Fprintf(w, "Showing season %d; use `film season <id>` for the others\n", res.CurrentSeason)
		}
	}
	if len(res.Items) == 0 {
		fmt.Fprintln(w, "No files")
		return nil
	}
	fmt.Fprintln(w, itemsTable(res.Items))
	return nil
}

func displayID(res resolution.Result) string {
	if res.Title != "" && res.ContentID != "" {
		return fmt.Sprintf("%s (%s)", res.Title, res.ContentID)
	}
	return res.ContentID
}

// resultError turns an unsuccessful result into the command's exit error.
func resultError(res resolution.Result) error {
	switch res.Kind {
	case resolution.KindMovie, resolution.KindSeries:
		return nil
	case resolution.KindNeedsLogin:
		return errors.New("telegram login required")
	case resolution.KindNotFound:
		return errors.New("not found")
	default:
		return errors.New("resolution failed")
	}
}
