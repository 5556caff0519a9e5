package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/aybabtme/uniplot/histogram"
	"github.com/carbocation/exprnorm"
	_ "github.com/carbocation/exprnorm/compileinfoprint"
	"github.com/carbocation/exprnorm/maplot"
	"github.com/carbocation/exprnorm/outputs"
	"github.com/carbocation/exprnorm/table"
)

func main() {
	var input, group, mergeName, centerName, outDir, pngPath string
	var bqProject, bqDataset, bqPrefix string
	var cutoff, window float64
	var appendZ, listGroups, async bool
	var histWidth, width, height int

	flag.StringVar(&input, "input", "", "Expression table (tab or comma delimited, optionally compressed). Columns whose header starts with # are annotations; lines starting with ! carry sample attributes. May be a Google Storage URL (gs://).")
	flag.StringVar(&group, "group", "", "(Optional) Sample attribute that splits the columns into exactly two labels. Defaults to the first attribute.")
	flag.BoolVar(&listGroups, "list-groups", false, "(Optional) If true, list the sample attributes and their labels, then exit.")
	flag.StringVar(&mergeName, "merge", "average", "Replicate merging method: average or median.")
	flag.StringVar(&centerName, "center", "average", "Centering method: average, lowess-fast or lowess.")
	flag.Float64Var(&cutoff, "cutoff", maplot.DefaultZCutoff, fmt.Sprintf("Z-score cutoff for the filtered output, between %.0f and %.0f.", maplot.MinZCutoff, maplot.MaxZCutoff))
	flag.Float64Var(&window, "window", maplot.DefaultZScoreWindow, "Fraction of rows, by intensity, used to estimate each row's local standard deviation.")
	flag.BoolVar(&appendZ, "append-z", false, "(Optional) If true, append a Z-Score column to the outputs.")
	flag.BoolVar(&async, "async", false, "(Optional) If true, normalize on a background worker.")
	flag.StringVar(&outDir, "output", ".", "Directory where the normalized and filtered tables are written.")
	flag.StringVar(&pngPath, "png", "", "(Optional) Path of a PNG rendering of the MA plot.")
	flag.IntVar(&width, "width", 800, "Width of the PNG rendering.")
	flag.IntVar(&height, "height", 600, "Height of the PNG rendering.")
	flag.IntVar(&histWidth, "histogram", 40, "Width of the z-score histogram printed to STDERR. 0 disables it.")
	flag.StringVar(&bqProject, "project", "", "(Optional) Google Cloud project for a BigQuery copy of the outputs.")
	flag.StringVar(&bqDataset, "dataset", "", "(Optional) BigQuery dataset that receives the outputs. Requires -project.")
	flag.StringVar(&bqPrefix, "table-prefix", "maplot_", "Prefix of the BigQuery table names.")
	flag.Parse()

	if input == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}

	mergeMethod, err := maplot.ParseMergeMethod(mergeName)
	if err != nil {
		log.Fatalln(err)
	}
	centerMethod, err := maplot.ParseCenterMethod(centerName)
	if err != nil {
		log.Fatalln(err)
	}

	ctx := context.Background()

	var sclient *storage.Client
	if strings.HasPrefix(input, "gs://") {
		sclient, err = storage.NewClient(ctx)
		if err != nil {
			log.Fatalln(err)
		}
		defer sclient.Close()
	}

	data, err := readTable(ctx, input, sclient)
	if err != nil {
		log.Fatalln(err)
	}

	if listGroups {
		for _, g := range data.Groups() {
			fmt.Printf("%s\t%s\n", g, strings.Join(data.Labels(g), "\t"))
		}
		return
	}

	hub := outputs.NewHub()
	if err := hub.Subscribe(maplot.ChannelNormalized, outputs.TSVSink{Dir: outDir}); err != nil {
		log.Fatalln(err)
	}
	if err := hub.Subscribe(maplot.ChannelFiltered, outputs.TSVSink{Dir: outDir}); err != nil {
		log.Fatalln(err)
	}

	if bqDataset != "" {
		if bqProject == "" {
			log.Fatalln("-dataset requires -project")
		}
		bq, err := bigquery.NewClient(ctx, bqProject)
		if err != nil {
			log.Fatalln("Connecting to BigQuery:", err)
		}
		defer bq.Close()

		sink := outputs.BigQuerySink{Context: ctx, Client: bq, Dataset: bqDataset, TablePrefix: bqPrefix}
		for _, channel := range []string{maplot.ChannelNormalized, maplot.ChannelFiltered} {
			if err := hub.Subscribe(channel, sink); err != nil {
				log.Fatalln(err)
			}
		}
	}

	var plotter maplot.Plotter
	if pngPath != "" {
		plotter = maplot.PNGPlotter{Path: exprnorm.ExpandHome(pngPath), Width: width, Height: height}
	}

	settings := maplot.DefaultSettings()
	settings.Center = centerMethod
	settings.ZWindow = window
	settings.AppendZScore = appendZ

	c := maplot.NewController(maplot.Options{
		Publisher: hub,
		Plotter:   plotter,
		Async:     async,
		Settings:  &settings,
	})

	// SetData selects the first attribute, which may not be the one asked for
	err = c.SetData(data)
	if group != "" {
		err = c.SelectGroup(group)
	}
	if err != nil {
		log.Fatalln(err)
	}
	if mergeMethod != maplot.MergeAverage {
		if err := c.SelectMerge(mergeMethod); err != nil {
			log.Fatalln(err)
		}
	}
	if err := c.SetCutoff(cutoff); err != nil {
		log.Fatalln(err)
	}
	c.Wait()

	log.Println(c.Info())

	if err := c.Err(); err != nil {
		log.Fatalln(err)
	}

	g := c.Grouping()
	log.Printf("Split on %s: %s (%d columns) vs %s (%d columns)\n", c.Group(), g.Labels[0].Value, len(g.Split[0]), g.Labels[1].Value, len(g.Split[1]))

	if err := c.Commit(); err != nil {
		log.Fatalln(err)
	}

	p := c.Projection()
	log.Println(maplot.Summarize(data.NumRows(), p))

	for _, channel := range hub.Channels() {
		log.Printf("%s: %s\n", channel, outputs.TSVSink{Dir: outDir}.Path(channel))
	}

	if histWidth > 0 && len(p.Z) > 0 {
		fmt.Fprintln(os.Stderr, "Z-scores:")
		if err := histogram.Fprint(os.Stderr, histogram.Hist(25, p.Z), histogram.Linear(histWidth)); err != nil {
			log.Fatalln(err)
		}
	}
}

func readTable(ctx context.Context, path string, client *storage.Client) (*table.Table, error) {
	rc, err := exprnorm.OpenSource(ctx, path, client)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	t, err := table.Read(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Base(path)
	for _, suffix := range []string{".gz", ".xz", ".zip", ".bz2"} {
		base = strings.TrimSuffix(base, suffix)
	}
	t.Name = strings.TrimSuffix(base, filepath.Ext(base))

	return t, nil
}
