package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"

	"dbregistry/internal"
	"dbregistry/internal/config"
	"dbregistry/internal/connectors"
	"dbregistry/internal/connectors/sheets"
	"dbregistry/internal/listener"
	"dbregistry/internal/logging"
	"dbregistry/internal/pipeline"
	"dbregistry/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		a := fs.String("a", cfg.SourceAPath, "first search export (.csv|.xlsx), latest mailed export when empty")
		b := fs.String("b", cfg.SourceBPath, "second search export (.csv|.xlsx), latest mailed export when empty")
		contactsPath := fs.String("contacts", cfg.ContactsPath, "contacts table file")
		contactsURL := fs.String("contacts-url", cfg.ContactsURL, "published contacts table URL")
		out := fs.String("out", filepath.Join(cfg.OutputDir, "registry.xlsx"), "output xlsx path")
		csvOut := fs.String("csv", "", "also write the registry as csv")
		publish := fs.Bool("publish", false, "publish the registry to SHEETS_PUBLISH_ID")
		strict := fs.Bool("strict", cfg.StrictConsistency, "fail on inconsistent groups")
		_ = fs.Parse(os.Args[2:])
		cfg.StrictConsistency = *strict

		src, err := listener.ContactsSource(ctx, cfg, *contactsPath, *contactsURL)
		must(err)
		in := pipeline.RunInput{SourceA: *a, SourceB: *b, Contacts: src, ContactsLabel: firstNonEmpty(*contactsPath, *contactsURL, cfg.ContactsSheetID)}
		res, err := pipeline.NewProcessingService(db, cfg, log).Run(ctx, in)
		var consistency *pipeline.ConsistencyError
		if errors.As(err, &consistency) {
			must(printConflicts(consistency.Conflicts))
			fmt.Fprintf(os.Stderr, "run %s stored with diagnostics only\n", res.RunID)
			os.Exit(2)
		}
		must(err)

		must(pipeline.ExportRegistryToXLSX(res.Entries, res.Diagnostics, *out))
		if strings.TrimSpace(*csvOut) != "" {
			must(pipeline.ExportRegistryToCSV(res.Entries, *csvOut))
		}
		if *publish {
			must(publishRegistry(ctx, cfg, res.Entries))
		}
		fmt.Printf("run done id=%s entries=%d diagnostics=%d output=%s\n", res.RunID, len(res.Entries), len(res.Diagnostics), *out)
	case "check":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		a := fs.String("a", cfg.SourceAPath, "first search export")
		b := fs.String("b", cfg.SourceBPath, "second search export")
		_ = fs.Parse(os.Args[2:])
		conflicts, err := pipeline.NewProcessingService(db, cfg, log).Check(pipeline.RunInput{SourceA: *a, SourceB: *b})
		must(err)
		if len(conflicts) == 0 {
			fmt.Println("no inconsistent groups")
			return
		}
		must(printConflicts(conflicts))
		os.Exit(2)
	case "summary":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.String("run", "", "run id, latest when empty")
		_ = fs.Parse(os.Args[2:])
		run, entries, diagnostics, err := pipeline.NewProcessingService(db, cfg, log).Stored(*runID)
		must(err)
		fmt.Printf("run %s %s (%s)\n", run.ID, run.Status, run.CreatedAt)
		must(pipeline.Summarize(entries, diagnostics).Render(os.Stdout))
	case "export:xlsx", "export:csv":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.String("run", "", "run id, latest when empty")
		out := fs.String("out", "", "output path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--out is required"))
		}
		run, entries, diagnostics, err := pipeline.NewProcessingService(db, cfg, log).Completed(*runID)
		must(err)
		if cmd == "export:csv" {
			must(pipeline.ExportRegistryToCSV(entries, *out))
		} else {
			must(pipeline.ExportRegistryToXLSX(entries, diagnostics, *out))
		}
		fmt.Printf("exported run %s entries=%d to %s\n", run.ID, len(entries), *out)
	case "publish:sheets":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.String("run", "", "run id, latest when empty")
		_ = fs.Parse(os.Args[2:])
		run, entries, _, err := pipeline.NewProcessingService(db, cfg, log).Completed(*runID)
		must(err)
		must(publishRegistry(ctx, cfg, entries))
		fmt.Printf("published run %s entries=%d to %s\n", run.ID, len(entries), cfg.SheetsPublishID)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.WatchProvider, "gmail|imap")
		label := fs.String("label", cfg.WatchLabel, "mailbox/label")
		max := fs.Int("max", cfg.WatchFetchMax, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := listener.MailConnector(ctx, cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.ExportDir, []string{cfg.SourceALabel, cfg.SourceBLabel}, conn, log)
		result, err := fetch.FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d skipped=%d\n", *provider, result.Fetched, result.Stored, result.Skipped)
	case "watch":
		must(watch(ctx, db, cfg, log))
	default:
		usage()
		os.Exit(1)
	}
}

func watch(ctx context.Context, db *storage.DB, cfg config.Config, log zerolog.Logger) error {
	svc, err := listener.NewFromConfig(ctx, db, cfg, log)
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}

func publishRegistry(ctx context.Context, cfg config.Config, entries []internal.RegistryEntry) error {
	if err := cfg.Require("SHEETS_PUBLISH_ID", cfg.SheetsPublishID); err != nil {
		return err
	}
	client, err := sheets.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	return client.Publish(ctx, cfg.SheetsPublishID, cfg.SheetsPublishRange, pipeline.RegistryTable(entries))
}

func printConflicts(conflicts []pipeline.Conflict) error {
	table := tablewriter.NewTable(os.Stdout)
	table.Header("name", "field", "values")
	for _, c := range conflicts {
		if err := table.Append(c.Name, c.Field, strings.Join(c.Values, " | ")); err != nil {
			return err
		}
	}
	return table.Render()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func usage() {
	fmt.Println("usage: dbregistry <command>")
	fmt.Println("commands:")
	fmt.Println("  run [--a=search1.xlsx] [--b=search2.csv] [--contacts=contacts.csv|--contacts-url=...] [--out=...xlsx] [--csv=...csv] [--publish] [--strict]")
	fmt.Println("  check [--a=...] [--b=...]")
	fmt.Println("  summary [--run=<id>]")
	fmt.Println("  export:xlsx [--run=<id>] --out=./out/registry.xlsx")
	fmt.Println("  export:csv [--run=<id>] --out=./out/registry.csv")
	fmt.Println("  publish:sheets [--run=<id>]")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=20")
	fmt.Println("  watch")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
