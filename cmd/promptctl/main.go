package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/sharma-sourabh3435/promptqueue/internal/client"
	"github.com/sharma-sourabh3435/promptqueue/internal/models"
	"github.com/sharma-sourabh3435/promptqueue/pkg/utils"
)

const usage = `Usage: promptctl [-scheduler URL] <command> [options]

Commands:
  create [-mode sequential|parallel] [-workers N] [-label L] [-file F]
                          create a session from a file or stdin, one prompt per line
  start | pause | reset   control the session
  clear                   drop the session
  status                  show progress
  worker <id> pause|resume|reset
  retry <job-id>          requeue a failed job
  reset-job <job-id>      requeue a job from any state
  retry-failed            requeue every failed job
  failed                  print failed prompts, one per line
  signal -worker W -kind progress|completed|error [-seq N] [-percent P] [-artifact URL] [-message M]
  attach -index I -channel C
  watch                   stream events
`

func main() {
	var (
		schedulerURL = flag.String("scheduler", "http://localhost:8080", "Scheduler URL")
		logLevel     = flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	)
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger := utils.InitLogger(utils.LoggingConfig{Level: *logLevel, Output: []string{"console"}})
	c := client.NewClient(*schedulerURL, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, c, flag.Arg(0), flag.Args()[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *client.Client, command string, args []string, out io.Writer) error {
	switch command {
	case "create":
		return create(ctx, c, args, out)
	case "start", "pause", "reset":
		summary, err := c.SessionAction(ctx, command)
		if err != nil {
			return err
		}
		printSummary(out, summary)
		return nil
	case "clear":
		if err := c.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Session cleared")
		return nil
	case "status":
		summary, err := c.Summary(ctx)
		if err != nil {
			return err
		}
		printSummary(out, summary)
		return nil
	case "worker":
		if len(args) != 2 {
			return fmt.Errorf("usage: worker <id> pause|resume|reset")
		}
		if err := c.WorkerAction(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s\n", args[0], args[1])
		return nil
	case "retry", "reset-job":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <job-id>", command)
		}
		action := "retry"
		if command == "reset-job" {
			action = "reset"
		}
		if err := c.JobAction(ctx, args[0], action); err != nil {
			return err
		}
		fmt.Fprintf(out, "Job %s requeued\n", args[0])
		return nil
	case "retry-failed":
		n, err := c.RetryFailed(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Requeued %d failed %s\n", n, plural(n, "job", "jobs"))
		return nil
	case "failed":
		failed, err := c.FailedJobs(ctx)
		if err != nil {
			return err
		}
		for _, f := range failed {
			fmt.Fprintln(out, f.Prompt)
		}
		return nil
	case "signal":
		return sendSignal(ctx, c, args, out)
	case "attach":
		fs := flag.NewFlagSet("attach", flag.ContinueOnError)
		index := fs.Int("index", 0, "Worker index")
		channel := fs.String("channel", "", "Channel ID")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := c.AttachChannel(ctx, *index, *channel); err != nil {
			return err
		}
		fmt.Fprintf(out, "Channel %s attached to worker %d\n", *channel, *index+1)
		return nil
	case "watch":
		return c.Watch(ctx, func(eventType string, event models.Event) {
			printEvent(out, eventType, event)
		})
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func create(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	mode := fs.String("mode", string(models.ModeSequential), "sequential or parallel")
	workers := fs.Int("workers", 0, "Worker count (parallel mode)")
	label := fs.String("label", "", "Session label")
	file := fs.String("file", "", "Prompt file (default stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var data []byte
	var err error
	if *file != "" {
		data, err = os.ReadFile(*file)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("failed to read prompts: %w", err)
	}

	session, err := c.CreateSession(ctx, models.CreateSessionRequest{
		Prompts:     models.ParsePrompts(string(data)),
		Mode:        models.SessionMode(*mode),
		WorkerCount: *workers,
		Label:       *label,
	})
	if err != nil {
		return err
	}

	total := 0
	for _, w := range session.Workers {
		total += w.Queue.Total()
	}
	fmt.Fprintf(out, "Created %s session %s with %s prompts across %d %s\n",
		session.Mode, session.ID, humanize.Comma(int64(total)), len(session.Workers), plural(len(session.Workers), "worker", "workers"))
	return nil
}

func sendSignal(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("signal", flag.ContinueOnError)
	worker := fs.String("worker", "", "Worker ID")
	channel := fs.String("channel", "", "Channel ID")
	kind := fs.String("kind", "", "progress, completed or error")
	seq := fs.Int("seq", 0, "Sequence number")
	job := fs.String("job", "", "Job ID")
	percent := fs.Int("percent", 0, "Progress percent")
	artifact := fs.String("artifact", "", "Artifact URL")
	message := fs.String("message", "", "Error message")
	if err := fs.Parse(args); err != nil {
		return err
	}

	status, err := c.SendSignal(ctx, models.Signal{
		WorkerID:       *worker,
		ChannelID:      *channel,
		JobID:          *job,
		SequenceNumber: *seq,
		Kind:           models.SignalKind(*kind),
		Percent:        *percent,
		ArtifactURL:    *artifact,
		Message:        *message,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, status)
	return nil
}

func printSummary(out io.Writer, s *models.SessionSummary) {
	state := "idle"
	switch {
	case s.IsRunning:
		state = "running"
	case s.FinishedAt != nil:
		state = "finished " + humanize.Time(*s.FinishedAt)
	}

	fmt.Fprintf(out, "%s (%s, %s)\n", s.Label, s.Mode, state)
	fmt.Fprintf(out, "%d/%d completed (%d%%), %d failed, created %s\n",
		s.Completed, s.Total, s.Percentage, s.Failed, humanize.Time(s.CreatedAt))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WORKER\tSTATUS\tDONE\tPROGRESS\tCHANNEL\t")
	for _, w := range s.Workers {
		status := string(w.Status)
		if w.IsPaused {
			status += " (paused)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\t\n", w.ID, status, w.Completed, w.Total, bar(w.Percentage), w.ChannelID)
	}
	tw.Flush()
}

func printEvent(out io.Writer, eventType string, e models.Event) {
	var detail string
	switch models.EventType(eventType) {
	case models.EventJobProgress:
		detail = fmt.Sprintf("%d%%", e.Percent)
	case models.EventJobCompleted:
		detail = e.ArtifactURL
	case models.EventJobFailed, models.EventWorkerClosed:
		detail = e.Message
	case models.EventManualPaste:
		detail = "paste manually: " + e.Prompt
	case models.EventBatchFinished:
		detail = e.Message
	default:
		detail = e.Prompt
	}
	fmt.Fprintf(out, "%s %-15s %-9s #%-4d %s\n", e.Time.Format("15:04:05"), eventType, e.WorkerID, e.SequenceNumber, detail)
}

func bar(percent int) string {
	const width = 20
	filled := percent * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "] " + fmt.Sprintf("%3d%%", percent)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
