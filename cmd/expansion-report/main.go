package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/contentforge/kwuniverse/internal/report"
	"github.com/contentforge/kwuniverse/internal/runstore"
)

func main() {
	dbPath := flag.String("db", "", "SQLite path holding expansion runs")
	runID := flag.String("run", "", "Run ID to render (empty = most recent)")
	format := flag.String("format", "markdown", "Output format: markdown, html, pdf")
	outPath := flag.String("out", "", "Write output to file (empty = stdout)")
	list := flag.Bool("list", false, "List stored runs and exit")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("missing -db")
	}
	store, err := runstore.Open(*dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if *list {
		runs, err := store.ListRuns(50)
		if err != nil {
			log.Fatal(err)
		}
		for _, r := range runs {
			fmt.Printf("%s\t%s\tkeywords=%d\tcost=$%.4f\tsuccess=%v\n",
				r.RunID, r.StartedAt.Format("2006-01-02 15:04"), r.TotalKeywords, r.TotalCost, r.Success)
		}
		return
	}

	id := *runID
	if id == "" {
		runs, err := store.ListRuns(1)
		if err != nil {
			log.Fatal(err)
		}
		if len(runs) == 0 {
			log.Fatal("no runs stored")
		}
		id = runs[0].RunID
	}

	res, err := store.LoadResult(id)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var payload []byte
	switch *format {
	case "markdown":
		payload = []byte(report.BuildMarkdown(res))
	case "html":
		html, err := report.RenderHTML(res)
		if err != nil {
			log.Fatal(err)
		}
		payload = []byte(html)
	case "pdf":
		pdf, err := report.NewPDFRenderer().Render(ctx, res)
		if err != nil {
			log.Fatalf("pdf render: %v", err)
		}
		payload = pdf
	default:
		log.Fatalf("unknown format %q", *format)
	}

	if *outPath == "" {
		os.Stdout.Write(payload)
		return
	}
	if err := os.WriteFile(*outPath, payload, 0o644); err != nil {
		log.Fatal(err)
	}
	log.Printf("kwuniverse report_written run=%s format=%s path=%s bytes=%d", id, *format, *outPath, len(payload))
}
