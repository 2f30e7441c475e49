package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"scrub/internal/logging"
	mcpserver "scrub/internal/mcp"
	"scrub/internal/pipeline"
	"scrub/internal/service"
	"scrub/internal/storage"
)

const usage = `scrub — batch data-cleaning pipeline

Usage:
  scrub [flags] <command> [command flags]

Commands:
  run       execute a cleaning job (-id <job> or -file <job.yaml>)
  jobs      manage stored jobs (list | create -file <job.yaml> | delete -id <job>)
  runs      list recent runs (-job <id> to filter)
  outcomes  print the per-row outcome log of a run (-run <id>)
  preview   extract+normalize the first rows of a job, committing nothing (-file <job.yaml> [-rows N])
  readers   list available reader types
  watch     run schedule and file-watch triggers until interrupted
  mcp       serve the MCP control interface on stdio

Flags:
  -data <dir>   data directory (default ~/.scrub)
  -log <level>  log level: debug|info|warn|error (default info)
`

func main() {
	dataDir := flag.String("data", "", "data directory (default ~/.scrub)")
	logLevel := flag.String("log", "info", "log level")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	log := logging.New(*logLevel)

	dir := *dataDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatal().Err(err).Msg("resolve home directory")
		}
		dir = filepath.Join(home, ".scrub")
	}

	db, err := storage.New(filepath.Join(dir, "scrub.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	svc := service.NewJobService(
		storage.NewJobStore(db),
		storage.NewRunStore(db),
		storage.NewCleanStore(db),
		&logEmitter{log: log},
		log,
	)
	defer svc.Stop()

	ctx := context.Background()
	args := flag.Args()[1:]

	var cmdErr error
	switch flag.Arg(0) {
	case "run":
		cmdErr = cmdRun(ctx, svc, args)
	case "jobs":
		cmdErr = cmdJobs(ctx, svc, args)
	case "runs":
		cmdErr = cmdRuns(svc, args)
	case "outcomes":
		cmdErr = cmdOutcomes(svc, args)
	case "preview":
		cmdErr = cmdPreview(ctx, svc, args)
	case "readers":
		cmdErr = cmdReaders(svc)
	case "watch":
		cmdErr = cmdWatch(ctx, svc, log)
	case "mcp":
		cmdErr = mcpserver.New(mcpserver.Deps{Jobs: svc, Log: log}).ServeStdio()
	default:
		flag.Usage()
		os.Exit(2)
	}
	if cmdErr != nil {
		log.Fatal().Err(cmdErr).Msg(flag.Arg(0))
	}
}

// logEmitter routes job lifecycle events to the log.
type logEmitter struct {
	log zerolog.Logger
}

func (e *logEmitter) Emit(_ context.Context, event string, data any) {
	e.log.Info().Str("event", event).Interface("data", data).Msg("event")
}

func cmdRun(ctx context.Context, svc *service.JobService, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	id := fs.String("id", "", "stored job ID")
	file := fs.String("file", "", "YAML job file for an ad-hoc run")
	fs.Parse(args)

	var sum *pipeline.Summary
	var err error
	switch {
	case *id != "":
		sum, err = svc.RunJob(ctx, *id)
	case *file != "":
		var job *pipeline.Job
		job, err = service.LoadJobFile(*file)
		if err != nil {
			return err
		}
		sum, err = svc.Execute(ctx, job)
	default:
		return fmt.Errorf("run requires -id or -file")
	}

	if sum != nil {
		printSummary(sum)
	}
	return err
}

func printSummary(sum *pipeline.Summary) {
	fmt.Printf("run %s: %s\n", sum.RunID, sum.Status)
	fmt.Printf("  total      %d\n", sum.Total)
	fmt.Printf("  accepted   %d\n", sum.Accepted)
	fmt.Printf("  duplicates %d\n", sum.Duplicates)
	fmt.Printf("  rejected   %d\n", sum.RejectedTotal())
	for reason, count := range sum.Rejected {
		fmt.Printf("    %-24s %d\n", reason, count)
	}
	if sum.Error != "" {
		fmt.Printf("  error: %s\n", sum.Error)
	}
}

func cmdJobs(ctx context.Context, svc *service.JobService, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		jobs, err := svc.ListJobs()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tREADER\tTRIGGER\tENABLED\tLAST STATUS")
		for _, j := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\n",
				j.ID, j.Name, j.ReaderType, j.TriggerType, j.Enabled, j.LastStatus)
		}
		return w.Flush()
	case "create":
		fs := flag.NewFlagSet("jobs create", flag.ExitOnError)
		file := fs.String("file", "", "YAML job file")
		fs.Parse(rest)
		if *file == "" {
			return fmt.Errorf("jobs create requires -file")
		}
		job, err := service.LoadJobFile(*file)
		if err != nil {
			return err
		}
		if err := svc.CreateJob(ctx, job); err != nil {
			return err
		}
		fmt.Printf("created job %s (%s)\n", job.ID, job.Name)
		return nil
	case "delete":
		fs := flag.NewFlagSet("jobs delete", flag.ExitOnError)
		id := fs.String("id", "", "job ID")
		fs.Parse(rest)
		if *id == "" {
			return fmt.Errorf("jobs delete requires -id")
		}
		return svc.DeleteJob(ctx, *id)
	default:
		return fmt.Errorf("unknown jobs subcommand: %q", sub)
	}
}

func cmdRuns(svc *service.JobService, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	jobID := fs.String("job", "", "filter by job ID")
	fs.Parse(args)

	runs, err := svc.ListRuns(*jobID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tJOB\tSTARTED\tSTATUS\tTOTAL\tACCEPTED\tDUP\tREJECTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.ID, r.JobID, r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Status, r.Total, r.Accepted, r.Duplicates, r.Rejected)
	}
	return w.Flush()
}

func cmdOutcomes(svc *service.JobService, args []string) error {
	fs := flag.NewFlagSet("outcomes", flag.ExitOnError)
	runID := fs.String("run", "", "run ID")
	fs.Parse(args)
	if *runID == "" {
		return fmt.Errorf("outcomes requires -run")
	}

	_, outcomes, err := svc.GetRun(*runID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROW\tDISPOSITION\tREASON\tDETAIL\tRECORD")
	for _, o := range outcomes {
		ref := o.RecordID
		if o.DuplicateOf != "" {
			ref = "dup of " + o.DuplicateOf
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", o.RowNum, o.Disposition, o.Reason, o.Detail, ref)
	}
	return w.Flush()
}

func cmdPreview(ctx context.Context, svc *service.JobService, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	file := fs.String("file", "", "YAML job file")
	rows := fs.Int("rows", 10, "rows to preview")
	fs.Parse(args)
	if *file == "" {
		return fmt.Errorf("preview requires -file")
	}

	job, err := service.LoadJobFile(*file)
	if err != nil {
		return err
	}
	recs, err := svc.Preview(ctx, job.ReaderType, job.ReaderConfig, &job.Pipeline, *rows)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func cmdReaders(svc *service.JobService) error {
	out, err := json.MarshalIndent(svc.ListReaders(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func cmdWatch(ctx context.Context, svc *service.JobService, log zerolog.Logger) error {
	svc.RestartWatchers(ctx)
	log.Info().Msg("watching; Ctrl-C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	// Let in-flight runs finish before tearing down.
	log.Info().Msg("shutting down")
	svc.Stop()
	svc.WaitRunning(ctx)
	return nil
}
