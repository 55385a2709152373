package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photolink/internal/jobs"
	"github.com/kozaktomas/photolink/internal/scan"
	"github.com/kozaktomas/photolink/internal/source"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan an album for a face or a piece of text",
	Long: `Scan one album and print the photos that match.

A photo matches when it contains a face close to the one in the reference
image, or when its recognized text contains the search text. Numbers only
match whole numbers, so "7" does not match "47".

Examples:
  # Find jersey number 7 in a shared Google Drive folder
  photolink scan --source https://drive.google.com/drive/folders/1AbC --text 7

  # Find a person in a local directory
  photolink scan --source ./photos --face me.jpg

  # Both, as JSON
  photolink scan --source https://1drv.ms/f/s!xyz --face me.jpg --text Novak --json`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().String("source", "", "Album link or local directory (required)")
	scanCmd.Flags().String("face", "", "Reference image with the face to look for")
	scanCmd.Flags().String("text", "", "Text to look for, e.g. a name or jersey number")
	scanCmd.Flags().String("token", "", "Provider access token; defaults to the configured one")
	scanCmd.Flags().Bool("json", false, "Output as JSON")
	_ = scanCmd.MarkFlagRequired("source")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jsonOutput := mustGetBool(cmd, "json")
	req := scan.SubmitRequest{
		Source:     mustGetString(cmd, "source"),
		SearchText: mustGetString(cmd, "text"),
		Credential: source.Credential{Token: mustGetString(cmd, "token")},
	}
	if path := mustGetString(cmd, "face"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading reference image: %w", err)
		}
		req.ReferenceImage = data
	}

	a, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	jobID, err := a.service.Submit(ctx, req)
	if err != nil {
		return err
	}
	job, err := a.service.Job(jobID)
	if err != nil {
		return err
	}

	showProgress := !jsonOutput && isTerminal(os.Stderr)
	followJob(ctx.Done(), job, cmd.ErrOrStderr(), showProgress)
	a.service.Wait()

	status := job.Snapshot()
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
	} else {
		printScanResult(cmd.OutOrStdout(), status)
	}

	switch status.Phase {
	case jobs.PhaseError:
		return fmt.Errorf("scan failed: %s", jobs.SanitizeMessage(status.Error))
	case jobs.PhaseCancelled:
		return errors.New("scan cancelled")
	}
	return nil
}

// followJob drains job events until the job ends. Closing interrupt cancels the job.
func followJob(interrupt <-chan struct{}, job *jobs.Job, out io.Writer, showProgress bool) {
	events := job.AddListener()
	defer job.RemoveListener(events)

	var bar *progressbar.ProgressBar
	startBar := func(total int) {
		if bar == nil && showProgress {
			bar = newScanBar(total, out)
		}
	}

	// the worker is already running, listing may have ended before we subscribed
	if s := job.Snapshot(); s.Phase == jobs.PhaseProcessing {
		startBar(s.Total)
		if bar != nil {
			_ = bar.Set(s.Processed)
		}
	}

	for {
		select {
		case <-interrupt:
			_ = job.Cancel()
			interrupt = nil
		case event, ok := <-events:
			if !ok {
				if bar != nil {
					_ = bar.Finish()
				}
				return
			}
			switch event.Type {
			case jobs.EventPhase:
				if data, ok := event.Data.(map[string]any); ok {
					if total, ok := data["total"].(int); ok {
						startBar(total)
					}
				}
			case jobs.EventProgress:
				if data, ok := event.Data.(map[string]int); ok {
					startBar(data["total"])
					if bar != nil {
						_ = bar.Set(data["processed"])
					}
				}
			}
		}
	}
}

func newScanBar(total int, out io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("Scanning"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func printScanResult(out io.Writer, s jobs.Status) {
	fmt.Fprintf(out, "\nScanned %d of %d photos: %d matches, %d errors\n\n", s.Processed, s.Total, s.MatchCount, s.ErrorCount)

	if len(s.Matches) > 0 {
		rows := make([][]string, 0, len(s.Matches))
		for i, m := range s.Matches {
			rows = append(rows, []string{strconv.Itoa(i + 1), m.Name, m.Reason, m.Link})
		}
		fmt.Fprintln(out, renderTable([]string{"#", "Photo", "Match", "Link"}, rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
	}

	if len(s.Errors) > 0 {
		rows := make([][]string, 0, len(s.Errors))
		for _, e := range s.Errors {
			rows = append(rows, []string{e.Name, jobs.SanitizeMessage(e.Message)})
		}
		fmt.Fprintln(out, "\nFailed photos:")
		fmt.Fprintln(out, renderTable([]string{"Photo", "Error"}, rows, nil))
	}
}
