package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/carbocation/exprnorm"
	_ "github.com/carbocation/exprnorm/compileinfoprint"
	"github.com/carbocation/exprnorm/geo"
)

func main() {
	var dbPath, cacheDir, datasetsPath, subsetsPath, download, baseURL string
	var retries int

	flag.StringVar(&dbPath, "db", "geo.sqlite3", "Path of the SQLite index. Created if it does not yet exist.")
	flag.StringVar(&cacheDir, "cache", "~/.cache/exprnorm/geo", "Directory holding downloaded <GDS>.soft.gz files.")
	flag.StringVar(&datasetsPath, "datasets", "", "(Optional) Tab-delimited dataset records with a header (id, title, organism, ...). Imported instead of scanning the cache.")
	flag.StringVar(&subsetsPath, "subsets", "", "(Optional) Tab-delimited subset records with a header (dataset_id, type, description, samples). Requires -datasets.")
	flag.StringVar(&download, "download", "", "(Optional) Comma-separated GDS identifiers to download into the cache before indexing.")
	flag.StringVar(&baseURL, "base-url", geo.NCBIBaseURL, "Where the SOFT files are downloaded from.")
	flag.IntVar(&retries, "retries", 3, "Number of additional attempts for each failed download.")
	flag.Parse()

	ctx := context.Background()
	cache := geo.LocalCache{Dir: cacheDir}

	if err := os.MkdirAll(exprnorm.ExpandHome(cacheDir), 0755); err != nil {
		log.Fatalln(err)
	}

	if download != "" {
		d := &geo.Downloader{
			Cache:   cache,
			BaseURL: baseURL,
			Retries: retries,
			Backoff: 5 * time.Second,
			Logger:  log.Default(),
		}
		for _, id := range strings.Split(download, ",") {
			if err := d.Download(ctx, strings.TrimSpace(id)); err != nil {
				log.Fatalln(err)
			}
		}
	}

	idx, err := geo.OpenSQLIndex(exprnorm.ExpandHome(dbPath))
	if err != nil {
		log.Fatalln(err)
	}
	defer idx.Close()

	var datasets []geo.DatasetInfo
	if datasetsPath != "" {
		datasets, err = importRecords(datasetsPath, subsetsPath)
	} else {
		datasets, err = scanCache(ctx, cache)
	}
	if err != nil {
		log.Fatalln(err)
	}

	if err := idx.Put(ctx, datasets...); err != nil {
		log.Fatalln(err)
	}

	all, err := idx.Datasets(ctx)
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Fprintf(os.Stderr, "Indexed %d datasets. %s now holds %d datasets.\n", len(datasets), dbPath, len(all))
}

func importRecords(datasetsPath, subsetsPath string) ([]geo.DatasetInfo, error) {
	df, err := os.Open(exprnorm.ExpandHome(datasetsPath))
	if err != nil {
		return nil, err
	}
	defer df.Close()

	if subsetsPath == "" {
		return geo.ImportTSV(df, nil)
	}

	sf, err := os.Open(exprnorm.ExpandHome(subsetsPath))
	if err != nil {
		return nil, err
	}
	defer sf.Close()

	return geo.ImportTSV(df, sf)
}

// scanCache parses the header of every cached SOFT file. Files that fail to
// parse are reported and skipped.
func scanCache(ctx context.Context, cache geo.LocalCache) ([]geo.DatasetInfo, error) {
	ids, err := cache.IDs()
	if err != nil {
		return nil, err
	}

	var out []geo.DatasetInfo
	for i, id := range ids {
		s, err := parseCached(ctx, cache, id)
		if err != nil {
			log.Println("Skipping", id, err)
			continue
		}
		out = append(out, s.Info)

		if (i+1)%100 == 0 {
			log.Printf("Parsed %d of %d cached datasets\n", i+1, len(ids))
		}
	}

	return out, nil
}

func parseCached(ctx context.Context, cache geo.LocalCache, id string) (*geo.SOFT, error) {
	rc, err := cache.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return geo.ParseSOFT(rc)
}
