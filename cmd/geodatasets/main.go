package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/exprnorm"
	_ "github.com/carbocation/exprnorm/compileinfoprint"
	"github.com/carbocation/exprnorm/geo"
	"github.com/carbocation/exprnorm/outputs"
)

func main() {
	var dbPath, cacheDir, filter, dataset, uncheck, sampleType, outDir, baseURL string
	var annotations, transpose, spots, download, complete bool

	flag.StringVar(&dbPath, "db", "geo.sqlite3", "Path of the SQLite dataset index built by geoindex.")
	flag.StringVar(&cacheDir, "cache", "~/.cache/exprnorm/geo", "Directory holding <GDS>.soft.gz files. May be a Google Storage prefix (gs://bucket/prefix).")
	flag.StringVar(&filter, "filter", "", "(Optional) Space-separated terms that must all occur in a dataset's ID, title, organism or description.")
	flag.BoolVar(&complete, "complete", false, "(Optional) If true, print the filter suggestions that match the last -filter term, then exit.")
	flag.StringVar(&dataset, "dataset", "", "(Optional) GDS identifier to select. Without it, the (filtered) datasets are listed.")
	flag.BoolVar(&annotations, "annotations", false, "(Optional) If true, print the sample annotations of -dataset instead of committing it.")
	flag.StringVar(&uncheck, "uncheck", "", "(Optional) Comma-separated subsets to leave out, as type=description, or a bare type to leave out all of its subsets.")
	flag.BoolVar(&transpose, "transpose", false, "(Optional) If true, samples are rows and features are columns.")
	flag.BoolVar(&spots, "spots", false, "(Optional) If true, report one row per spot instead of merging spots by gene.")
	flag.StringVar(&sampleType, "sample-type", "", "(Optional) Only annotate samples with subsets of this type.")
	flag.BoolVar(&download, "download", false, "(Optional) If true, datasets missing from a local cache are downloaded from NCBI.")
	flag.StringVar(&baseURL, "base-url", geo.NCBIBaseURL, "Where missing SOFT files are downloaded from.")
	flag.StringVar(&outDir, "output", ".", "Directory where the committed table is written.")
	flag.Parse()

	ctx := context.Background()

	idx, err := geo.OpenSQLIndex(exprnorm.ExpandHome(dbPath))
	if err != nil {
		log.Fatalln(err)
	}
	defer idx.Close()

	fetcher := &geo.SOFTFetcher{}
	var cache geo.Cache
	if strings.HasPrefix(cacheDir, "gs://") {
		sclient, err := storage.NewClient(ctx)
		if err != nil {
			log.Fatalln(err)
		}
		defer sclient.Close()

		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(cacheDir, "gs://"), "/")
		cache = geo.GSCache{Client: sclient, Bucket: bucket, Prefix: prefix}
	} else {
		local := geo.LocalCache{Dir: cacheDir}
		cache = local
		if download {
			fetcher.Downloader = &geo.Downloader{Cache: local, BaseURL: baseURL, Retries: 3, Logger: log.Default()}
		}
	}
	fetcher.Cache = cache

	hub := outputs.NewHub()
	sink := outputs.TSVSink{Dir: outDir}
	if err := hub.Subscribe(geo.ChannelExpression, sink); err != nil {
		log.Fatalln(err)
	}

	b := geo.NewBrowser(geo.BrowserOptions{
		Index:     idx,
		Cache:     cache,
		Fetcher:   fetcher,
		Publisher: hub,
	})

	if err := b.Load(ctx); err != nil {
		log.Fatalln(err)
	}

	if complete {
		for _, word := range geo.Complete(b.Vocabulary(), filter) {
			fmt.Println(word)
		}
		return
	}

	b.SetFilter(filter)
	fmt.Fprint(os.Stderr, b.Info())
	fmt.Fprintln(os.Stderr)

	if dataset == "" {
		fmt.Println(strings.Join(append(geo.RowHeader, "Cached"), "\t"))
		for _, r := range b.Visible() {
			fmt.Println(strings.Join(append(r.Cells(), fmt.Sprint(r.Cached)), "\t"))
		}
		return
	}

	if err := b.Select(dataset); err != nil {
		log.Fatalln(err)
	}

	for _, item := range strings.Split(uncheck, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		typ, subset, _ := strings.Cut(item, "=")
		if err := b.SetChecked(typ, subset, false); err != nil {
			log.Fatalln(err)
		}
	}

	if annotations {
		d, _ := b.Selected()
		fmt.Printf("%s: %s\n%s\n\n", d.ID, d.Title, b.Description())
		for _, a := range b.Annotations() {
			fmt.Printf("%s\n", a.Type)
			for _, s := range a.Subsets {
				mark := " "
				if s.Checked {
					mark = "x"
				}
				fmt.Printf("  [%s] %s (%d samples)\n", mark, s.Description, s.SampleCount)
			}
		}
		return
	}

	b.SetOptions(geo.FetchOptions{
		ReportGenes: !spots,
		Transpose:   transpose,
		SampleType:  sampleType,
	})

	t, err := b.Commit(ctx)
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Fprintf(os.Stderr, "Wrote %d rows and %d columns of %s to %s\n", t.NumRows(), t.NumColumns(), dataset, sink.Path(geo.ChannelExpression))
}
